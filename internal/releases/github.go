package releases

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const githubAPI = "https://api.github.com"

// GitHubSource resolves assets of the latest release of a repository.
type GitHubSource struct {
	Owner    string
	Repo     string
	Token    string
	Manifest Manifest

	baseURL string
	client  *http.Client
}

func NewGitHubSource(owner, repo, token string, m Manifest) *GitHubSource {
	return &GitHubSource{
		Owner:    owner,
		Repo:     repo,
		Token:    token,
		Manifest: m,
		baseURL:  githubAPI,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

type githubRelease struct {
	TagName string        `json:"tag_name"`
	Assets  []githubAsset `json:"assets"`
}

type githubAsset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
}

func (g *GitHubSource) DownloadURL(ctx context.Context, p Platform) (string, error) {
	want, err := g.Manifest.Asset(p)
	if err != nil {
		return "", err
	}

	endpoint := fmt.Sprintf("%s/repos/%s/%s/releases/latest", g.baseURL, url.PathEscape(g.Owner), url.PathEscape(g.Repo))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("build github request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", "QuackQuery-Server")
	if g.Token != "" {
		req.Header.Set("Authorization", "Bearer "+g.Token)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("github latest release: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return "", fmt.Errorf("github latest release: status %d: %s", resp.StatusCode, string(body))
	}

	var rel githubRelease
	if err := json.NewDecoder(resp.Body).Decode(&rel); err != nil {
		return "", fmt.Errorf("decode github release: %w", err)
	}
	for _, a := range rel.Assets {
		if a.Name == want.Name && a.BrowserDownloadURL != "" {
			return a.BrowserDownloadURL, nil
		}
	}
	return "", fmt.Errorf("%w: %s not in release %s", ErrAssetNotFound, want.Name, rel.TagName)
}
