// Package registry lists and downloads releases of Pawn packages and
// compiler toolchains from the GitHub REST API.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"

	"golang.org/x/mod/semver"

	"opencli/internal/retry"
	"opencli/internal/version"
)

const (
	defaultBaseURL   = "https://api.github.com"
	defaultUserAgent = "opencli/dev"

	perPage  = 100
	maxPages = 10

	maxJSONResponseBytes = 10 << 20
)

type (
	// Release is a published GitHub release.
	Release struct {
		TagName    string
		Name       string
		Prerelease bool
		Draft      bool
		Assets     []Asset
		HTMLURL    string
	}

	// Asset is a single downloadable file attached to a release.
	Asset struct {
		Name               string
		BrowserDownloadURL string
		Size               int64
		ContentType        string
	}

	// ContentItem is one entry of a repository directory listing.
	ContentItem struct {
		Name        string `json:"name"`
		Path        string `json:"path"`
		Type        string `json:"type"`
		Size        int64  `json:"size"`
		DownloadURL string `json:"download_url"`
	}

	githubRelease struct {
		TagName    string        `json:"tag_name"`
		Name       string        `json:"name"`
		Prerelease bool          `json:"prerelease"`
		Draft      bool          `json:"draft"`
		HTMLURL    string        `json:"html_url"`
		Assets     []githubAsset `json:"assets"`
	}

	githubAsset struct {
		Name               string `json:"name"`
		BrowserDownloadURL string `json:"browser_download_url"`
		Size               int64  `json:"size"`
		ContentType        string `json:"content_type"`
	}

	// GitHubClient talks to the GitHub Releases API. Release listings are
	// memoized for the lifetime of the client, which is one command.
	GitHubClient struct {
		httpClient *http.Client
		baseURL    string
		token      string
		userAgent  string

		retry retry.Policy

		mu       sync.Mutex
		releases map[string][]Release
	}

	// ClientOption configures a GitHubClient during construction.
	ClientOption func(*GitHubClient)
)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(g *GitHubClient) {
		if c != nil {
			g.httpClient = c
		}
	}
}

// WithBaseURL overrides the GitHub API base URL, primarily for test servers.
func WithBaseURL(base string) ClientOption {
	return func(g *GitHubClient) {
		g.baseURL = strings.TrimRight(base, "/")
	}
}

// WithToken sets a GitHub token. It is only sent to GitHub hosts.
func WithToken(token string) ClientOption {
	return func(g *GitHubClient) {
		g.token = strings.TrimSpace(token)
	}
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) ClientOption {
	return func(g *GitHubClient) {
		if ua != "" {
			g.userAgent = ua
		}
	}
}

// WithRetry retries transient failures of release listings under p.
// Downloads are retried by the cache, not here.
func WithRetry(p retry.Policy) ClientOption {
	return func(g *GitHubClient) {
		g.retry = p
	}
}

// NewGitHubClient creates a client against api.github.com unless overridden.
func NewGitHubClient(opts ...ClientOption) *GitHubClient {
	c := &GitHubClient{
		httpClient: http.DefaultClient,
		baseURL:    defaultBaseURL,
		userAgent:  defaultUserAgent,
		releases:   map[string][]Release{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListReleases returns the non-draft releases of owner/repo sorted by
// semantic version, newest first. Tags that are not semver sort last.
func (c *GitHubClient) ListReleases(ctx context.Context, owner, repo string) ([]Release, error) {
	key := strings.ToLower(owner + "/" + repo)
	c.mu.Lock()
	cached, ok := c.releases[key]
	c.mu.Unlock()
	if ok {
		return cached, nil
	}

	pageURL := fmt.Sprintf("%s/repos/%s/%s/releases?per_page=%d",
		c.baseURL, url.PathEscape(owner), url.PathEscape(repo), perPage)

	var all []Release
	for page := 0; page < maxPages && pageURL != ""; page++ {
		var (
			releases []Release
			next     string
		)
		err := c.withRetry(ctx, func(ctx context.Context) error {
			var err error
			releases, next, err = c.releasePage(ctx, pageURL)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("list releases of %s/%s: %w", owner, repo, err)
		}
		for i := range releases {
			if !releases[i].Draft {
				all = append(all, releases[i])
			}
		}
		pageURL = next
	}

	sortReleasesBySemverDesc(all)

	c.mu.Lock()
	c.releases[key] = all
	c.mu.Unlock()
	return all, nil
}

func (c *GitHubClient) releasePage(ctx context.Context, pageURL string) ([]Release, string, error) {
	resp, err := c.get(ctx, pageURL)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if err := checkResponse(resp, pageURL); err != nil {
		return nil, "", err
	}
	releases, err := parseReleases(io.LimitReader(resp.Body, maxJSONResponseBytes))
	if err != nil {
		return nil, "", err
	}
	return releases, parseLinkHeader(resp.Header.Get("Link")), nil
}

func (c *GitHubClient) withRetry(ctx context.Context, op func(ctx context.Context) error) error {
	if c.retry.MaxAttempts <= 1 {
		return op(ctx)
	}
	return retry.Do(ctx, c.retry, op)
}

// Versions returns the parseable release versions of owner/repo.
func (c *GitHubClient) Versions(ctx context.Context, owner, repo string) ([]version.Version, error) {
	releases, err := c.ListReleases(ctx, owner, repo)
	if err != nil {
		return nil, err
	}
	out := make([]version.Version, 0, len(releases))
	for _, r := range releases {
		v, err := version.ParseVersion(r.TagName)
		if err != nil {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

// ReleaseFor returns the release of owner/repo whose tag parses to v.
func (c *GitHubClient) ReleaseFor(ctx context.Context, owner, repo string, v version.Version) (Release, error) {
	releases, err := c.ListReleases(ctx, owner, repo)
	if err != nil {
		return Release{}, err
	}
	for _, r := range releases {
		tv, err := version.ParseVersion(r.TagName)
		if err == nil && tv.Same(v) {
			return r, nil
		}
	}
	return Release{}, fmt.Errorf("%s/%s %s: %w", owner, repo, v, ErrReleaseNotFound)
}

// Contents lists the repository root of owner/repo at ref.
func (c *GitHubClient) Contents(ctx context.Context, owner, repo, ref string) ([]ContentItem, error) {
	reqURL := fmt.Sprintf("%s/repos/%s/%s/contents/?ref=%s",
		c.baseURL, url.PathEscape(owner), url.PathEscape(repo), url.QueryEscape(ref))
	resp, err := c.get(ctx, reqURL)
	if err != nil {
		return nil, fmt.Errorf("list contents of %s/%s@%s: %w", owner, repo, ref, err)
	}
	defer resp.Body.Close()
	if err := checkResponse(resp, reqURL); err != nil {
		return nil, fmt.Errorf("list contents of %s/%s@%s: %w", owner, repo, ref, err)
	}

	var items []ContentItem
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxJSONResponseBytes)).Decode(&items); err != nil {
		return nil, fmt.Errorf("decode contents of %s/%s: %w", owner, repo, err)
	}
	return items, nil
}

// Download streams the body at assetURL into w and returns the byte count.
func (c *GitHubClient) Download(ctx context.Context, assetURL string, w io.Writer) (int64, error) {
	resp, err := c.get(ctx, assetURL)
	if err != nil {
		return 0, fmt.Errorf("download %s: %w", redactURL(assetURL), err)
	}
	defer resp.Body.Close()
	if err := checkResponse(resp, redactURL(assetURL)); err != nil {
		return 0, fmt.Errorf("download: %w", err)
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("download %s: %w", redactURL(assetURL), err)
	}
	if resp.ContentLength > 0 && n != resp.ContentLength {
		return n, fmt.Errorf("download %s: %w", redactURL(assetURL), io.ErrUnexpectedEOF)
	}
	return n, nil
}

func (c *GitHubClient) get(ctx context.Context, reqURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	req.Header.Set("User-Agent", c.userAgent)
	if c.token != "" && isGitHubHost(req.URL, c.baseURL) {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func checkResponse(resp *http.Response, reqURL string) error {
	if err := checkRateLimit(resp); err != nil {
		return err
	}
	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return ErrReleaseNotFound
	default:
		return &StatusError{Code: resp.StatusCode, URL: reqURL}
	}
}

func parseReleases(body io.Reader) ([]Release, error) {
	var raw []githubRelease
	if err := json.NewDecoder(body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding releases: %w", err)
	}
	releases := make([]Release, 0, len(raw))
	for _, gr := range raw {
		releases = append(releases, toRelease(gr))
	}
	return releases, nil
}

// parseLinkHeader extracts the "next" page URL from a Link header.
//
// Example header: <https://api.github.com/...?page=2>; rel="next", <...>; rel="last"
func parseLinkHeader(header string) string {
	if header == "" {
		return ""
	}
	for part := range strings.SplitSeq(header, ",") {
		part = strings.TrimSpace(part)
		if !strings.Contains(part, `rel="next"`) {
			continue
		}
		start := strings.Index(part, "<")
		end := strings.Index(part, ">")
		if start >= 0 && end > start {
			return part[start+1 : end]
		}
	}
	return ""
}

func toRelease(gr githubRelease) Release {
	assets := make([]Asset, 0, len(gr.Assets))
	for _, ga := range gr.Assets {
		assets = append(assets, Asset(ga))
	}
	return Release{
		TagName:    gr.TagName,
		Name:       gr.Name,
		Prerelease: gr.Prerelease,
		Draft:      gr.Draft,
		Assets:     assets,
		HTMLURL:    gr.HTMLURL,
	}
}

// semverTag maps Pawn-style tags ("2.13.8", "v3.10.11", "r5") onto the
// canonical form x/mod/semver expects.
func semverTag(tag string) string {
	v, err := version.ParseVersion(tag)
	if err != nil {
		return ""
	}
	return "v" + v.String()
}

func sortReleasesBySemverDesc(releases []Release) {
	slices.SortStableFunc(releases, func(a, b Release) int {
		return semver.Compare(semverTag(b.TagName), semverTag(a.TagName))
	})
}

// isGitHubHost reports whether reqURL targets a host that may receive the
// token: the configured API host, and github.com or raw.githubusercontent.com
// when talking to the public API.
func isGitHubHost(reqURL *url.URL, baseURL string) bool {
	base, err := url.Parse(baseURL)
	if err != nil {
		return false
	}
	if strings.EqualFold(reqURL.Host, base.Host) {
		return true
	}
	if strings.EqualFold(base.Host, "api.github.com") {
		return strings.EqualFold(reqURL.Host, "github.com") ||
			strings.EqualFold(reqURL.Host, "raw.githubusercontent.com")
	}
	return false
}

// redactURL strips query parameters and fragments for error messages.
func redactURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<invalid-url>"
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}
