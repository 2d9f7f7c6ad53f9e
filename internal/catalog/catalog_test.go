package catalog

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDoc = `# My repositories

## Tools <!-- daily -->
- alpha
- beta

some prose that is ignored

## Learning
- gamma

## 前端 <!-- 1.5高地 -->
- delta
-
`

func TestParse(t *testing.T) {
	t.Parallel()

	cat, err := Parse(strings.NewReader(sampleDoc))
	require.NoError(t, err)
	require.Len(t, cat.Groups, 3)

	tools := cat.Groups[0]
	assert.Equal(t, "Tools", tools.Name)
	assert.Equal(t, "daily", tools.Tag)
	assert.Equal(t, []string{"alpha", "beta"}, tools.Repos)

	learning := cat.Groups[1]
	assert.Equal(t, "Learning", learning.Name)
	assert.Empty(t, learning.Tag)
	assert.Equal(t, []string{"gamma"}, learning.Repos)

	frontend := cat.Groups[2]
	assert.Equal(t, "前端", frontend.Name)
	assert.Equal(t, "1.5号高地", frontend.Tag)
	assert.Equal(t, []string{"delta"}, frontend.Repos)

	assert.Equal(t, 4, cat.TotalRepos())
}

func TestParseBulletsBeforeHeadingIgnored(t *testing.T) {
	t.Parallel()

	cat, err := Parse(strings.NewReader("- orphan\n## G\n- kept\n"))
	require.NoError(t, err)
	require.Len(t, cat.Groups, 1)
	assert.Equal(t, []string{"kept"}, cat.Groups[0].Repos)
}

func TestNormalizeTag(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		tag  string
		want string
	}{
		{name: "integer hill", tag: "1高地", want: "1号高地"},
		{name: "decimal hill", tag: "2.5高地", want: "2.5号高地"},
		{name: "already normalized", tag: "1号高地", want: "1号高地"},
		{name: "plain tag untouched", tag: "daily", want: "daily"},
		{name: "non-numeric prefix untouched", tag: "x高地", want: "x高地"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, normalizeTag(tt.tag))
		})
	}
}

func TestGroupDirName(t *testing.T) {
	t.Parallel()

	g := Group{Name: "Tools", Tag: "daily"}
	assert.Equal(t, "Tools (daily)", g.DirName())
	assert.Equal(t, filepath.Join("/repos", "Tools (daily)"), g.Dir("/repos"))

	untagged := Group{Name: "Learning"}
	assert.Equal(t, "Learning", untagged.DirName())
}

func TestFindGroupByFuzzyName(t *testing.T) {
	t.Parallel()

	cat, err := Parse(strings.NewReader(sampleDoc))
	require.NoError(t, err)

	// Exact match wins.
	g, ok := cat.FindGroupByFuzzyName("Tools")
	require.True(t, ok)
	assert.Equal(t, "Tools", g.Name)

	// Case-insensitive substring.
	g, ok = cat.FindGroupByFuzzyName("learn")
	require.True(t, ok)
	assert.Equal(t, "Learning", g.Name)

	// First match in catalog order.
	g, ok = cat.FindGroupByFuzzyName("o")
	require.True(t, ok)
	assert.Equal(t, "Tools", g.Name)

	_, ok = cat.FindGroupByFuzzyName("nonexistent")
	assert.False(t, ok)
}

func TestLoadMissingDocument(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "REPOS.md"))
	assert.Error(t, err)
}
