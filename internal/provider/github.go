package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	// listPageSize is the page size used for the bulk repository listing.
	listPageSize = 100

	// maxRetries bounds retries of transient API failures per request.
	maxRetries = 3

	requestTimeout = 30 * time.Second
)

// githubProvider implements Provider against the GitHub REST API.
type githubProvider struct {
	baseURL    string
	token      string
	listingCap int
	httpClient *http.Client
}

// NewGitHub creates a Provider backed by the GitHub REST API. baseURL is
// overridable for tests; token may be empty for anonymous access to public
// repositories.
func NewGitHub(baseURL, token string, listingCap int) Provider {
	return &githubProvider{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		token:      token,
		listingCap: listingCap,
		httpClient: &http.Client{Timeout: requestTimeout},
	}
}

// repoPayload mirrors the subset of the GitHub repository object we consume.
type repoPayload struct {
	Name          string    `json:"name"`
	FullName      string    `json:"full_name"`
	Description   string    `json:"description"`
	Language      string    `json:"language"`
	Stars         int       `json:"stargazers_count"`
	Forks         int       `json:"forks_count"`
	PushedAt      time.Time `json:"pushed_at"`
	Archived      bool      `json:"archived"`
	Private       bool      `json:"private"`
	DefaultBranch string    `json:"default_branch"`
	CloneURL      string    `json:"clone_url"`
}

func (p *repoPayload) toRepository() Repository {
	return Repository{
		Name:          p.Name,
		FullName:      p.FullName,
		Description:   p.Description,
		Language:      p.Language,
		Stars:         p.Stars,
		Forks:         p.Forks,
		PushedAt:      p.PushedAt,
		Archived:      p.Archived,
		Private:       p.Private,
		DefaultBranch: p.DefaultBranch,
		CloneURL:      p.CloneURL,
	}
}

// Viewer returns the login of the authenticated identity.
func (g *githubProvider) Viewer(ctx context.Context) (string, error) {
	var payload struct {
		Login string `json:"login"`
	}
	if err := g.doJSON(ctx, http.MethodGet, "/user", nil, &payload); err != nil {
		return "", fmt.Errorf("failed to query authenticated identity: %w", err)
	}
	return payload.Login, nil
}

// ListOwned pages through the authenticated identity's repositories up to
// the configured cap.
func (g *githubProvider) ListOwned(ctx context.Context) ([]Repository, error) {
	var repos []Repository
	for page := 1; len(repos) < g.listingCap; page++ {
		endpoint := fmt.Sprintf("/user/repos?affiliation=owner&per_page=%d&page=%d", listPageSize, page)
		var payload []repoPayload
		if err := g.doJSON(ctx, http.MethodGet, endpoint, nil, &payload); err != nil {
			return nil, fmt.Errorf("failed to list repositories (page %d): %w", page, err)
		}
		if len(payload) == 0 {
			break
		}
		for i := range payload {
			if len(repos) == g.listingCap {
				slog.Warn("Bulk listing reached cap, remaining repositories unresolved",
					"cap", g.listingCap)
				return repos, nil
			}
			repos = append(repos, payload[i].toRepository())
		}
		if len(payload) < listPageSize {
			break
		}
	}
	return repos, nil
}

// Get probes a single repository under owner/name.
func (g *githubProvider) Get(ctx context.Context, owner, name string) (*Repository, error) {
	endpoint := "/repos/" + path.Join(owner, name)
	var payload repoPayload
	if err := g.doJSON(ctx, http.MethodGet, endpoint, nil, &payload); err != nil {
		return nil, err
	}
	repo := payload.toRepository()
	return &repo, nil
}

// SyncFork asks the provider to merge the upstream parent into the fork's
// branch (GitHub merge-upstream primitive).
func (g *githubProvider) SyncFork(ctx context.Context, owner, name, branch string) error {
	endpoint := "/repos/" + path.Join(owner, name) + "/merge-upstream"
	body := map[string]string{"branch": branch}
	if err := g.doJSON(ctx, http.MethodPost, endpoint, body, nil); err != nil {
		return fmt.Errorf("failed to sync fork %s/%s: %w", owner, name, err)
	}
	return nil
}

// doJSON performs one API call with retries around transient failures.
// 4xx responses (other than 429) are permanent; 404 maps to ErrNotFound.
func (g *githubProvider) doJSON(ctx context.Context, method, endpoint string, body, out any) error {
	operation := func() (struct{}, error) {
		return struct{}{}, g.doJSONOnce(ctx, method, endpoint, body, out)
	}
	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(maxRetries),
	)
	return err
}

func (g *githubProvider) doJSONOnce(ctx context.Context, method, endpoint string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to encode request body: %w", err))
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+endpoint, reader)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to build request: %w", err))
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		// Network errors are retryable.
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to decode response: %w", err))
		}
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return backoff.Permanent(ErrNotFound)
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("rate limited: %s", resp.Status)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return backoff.Permanent(fmt.Errorf("request rejected: %s", resp.Status))
	default:
		return fmt.Errorf("server error: %s", resp.Status)
	}
}
