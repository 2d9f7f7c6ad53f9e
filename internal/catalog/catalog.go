// Package catalog parses the grouping document that declares which
// repositories belong to which local group directory.
package catalog

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

const (
	headingPrefix = "## "
	bulletPrefix  = "- "
)

// numericHillTag matches tags like "1高地" or "1.5高地"; such tags get the
// "号" counter inserted before "高地" when rendered as a directory name.
var numericHillTag = regexp.MustCompile(`^(\d+(?:\.\d+)?)高地$`)

// Group is a named, optionally tagged, ordered set of repository short names.
type Group struct {
	// Name is the group heading, unique within the catalog.
	Name string

	// Tag is the optional label from the heading's inline comment,
	// already normalized.
	Tag string

	// Repos are the repository short names in declared order.
	Repos []string
}

// DirName returns the group's directory name: "<name>" or "<name> (<tag>)".
func (g *Group) DirName() string {
	if g.Tag == "" {
		return g.Name
	}
	return fmt.Sprintf("%s (%s)", g.Name, g.Tag)
}

// Dir returns the group's target directory under the given repos root.
func (g *Group) Dir(reposRoot string) string {
	return filepath.Join(reposRoot, g.DirName())
}

// Catalog holds all groups in document order.
type Catalog struct {
	Groups []Group
}

// Load reads and parses the grouping document. A missing document is an
// environment setup failure and aborts the run.
func Load(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open grouping document %s: %w", path, err)
	}
	defer f.Close()

	cat, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse grouping document %s: %w", path, err)
	}
	return cat, nil
}

// Parse reads an ordered sequence of groups: a "## name [<!-- tag -->]"
// heading introduces a group, subsequent "- short-name" bullets belong to it
// until the next heading. Blank and unrecognized lines are ignored.
func Parse(r io.Reader) (*Catalog, error) {
	cat := &Catalog{}
	var current *Group

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case strings.HasPrefix(line, headingPrefix):
			name, tag := parseHeading(strings.TrimPrefix(line, headingPrefix))
			if name == "" {
				continue
			}
			cat.Groups = append(cat.Groups, Group{Name: name, Tag: tag})
			current = &cat.Groups[len(cat.Groups)-1]
		case strings.HasPrefix(line, bulletPrefix):
			if current == nil {
				continue
			}
			short := strings.TrimSpace(strings.TrimPrefix(line, bulletPrefix))
			if short != "" {
				current.Repos = append(current.Repos, short)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	return cat, nil
}

// parseHeading splits a heading into the group name and an optional
// "<!-- tag -->" inline comment.
func parseHeading(s string) (name, tag string) {
	open := strings.Index(s, "<!--")
	if open < 0 {
		return strings.TrimSpace(s), ""
	}
	name = strings.TrimSpace(s[:open])
	rest := s[open+len("<!--"):]
	if end := strings.Index(rest, "-->"); end >= 0 {
		tag = normalizeTag(strings.TrimSpace(rest[:end]))
	}
	return name, tag
}

// normalizeTag inserts "号" before "高地" in numeric-suffixed hill tags,
// e.g. "1.5高地" becomes "1.5号高地". Other tags pass through unchanged.
func normalizeTag(tag string) string {
	if m := numericHillTag.FindStringSubmatch(tag); m != nil {
		return m[1] + "号高地"
	}
	return tag
}

// FindGroupByFuzzyName returns the group matching input: an exact name match
// wins; otherwise the first case-insensitive substring match in catalog
// order. Ambiguity beyond first-match is not disambiguated.
func (c *Catalog) FindGroupByFuzzyName(input string) (*Group, bool) {
	for i := range c.Groups {
		if c.Groups[i].Name == input {
			return &c.Groups[i], true
		}
	}
	needle := strings.ToLower(input)
	for i := range c.Groups {
		if strings.Contains(strings.ToLower(c.Groups[i].Name), needle) {
			return &c.Groups[i], true
		}
	}
	return nil, false
}

// GroupDirs returns every group's target directory under the repos root,
// in catalog order.
func (c *Catalog) GroupDirs(reposRoot string) []string {
	dirs := make([]string, 0, len(c.Groups))
	for i := range c.Groups {
		dirs = append(dirs, c.Groups[i].Dir(reposRoot))
	}
	return dirs
}

// TotalRepos returns the number of configured short names across all groups.
func (c *Catalog) TotalRepos() int {
	n := 0
	for i := range c.Groups {
		n += len(c.Groups[i].Repos)
	}
	return n
}
