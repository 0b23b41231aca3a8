package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ucli-tools/registry/internal/limits"
	"go.uber.org/zap"
)

var (
	// ErrInvalidReference indicates the repo string has no host/owner/repo pattern
	ErrInvalidReference = errors.New("invalid repository reference")
	// ErrNetwork indicates a transport failure, timeout or unexpected status
	ErrNetwork = errors.New("network error")
	// ErrMalformedResponse indicates a payload that is not a commit listing
	ErrMalformedResponse = errors.New("malformed response")
	// ErrNotFound indicates the repository has no resolvable commit
	ErrNotFound = errors.New("commit not found")
)

const (
	DefaultAPIURL    = "https://api.github.com"
	DefaultWebURL    = "https://github.com"
	DefaultTimeout   = 10 * time.Second
	DefaultUserAgent = "ucli-registry-updater"
)

// APIError is a non-success response from the hosting API
type APIError struct {
	StatusCode int
	Body       []byte
	Message    string // parsed from {"message": "..."} if present
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("github API error %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("github API error %d: %s", e.StatusCode, string(e.Body))
}

func decodeAPIError(resp *http.Response) *APIError {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, limits.ErrorBody))
	var m struct {
		Message string `json:"message"`
	}
	_ = json.Unmarshal(b, &m)
	return &APIError{StatusCode: resp.StatusCode, Body: b, Message: m.Message}
}

// Client is a lightweight GitHub REST API client for commit lookups
type Client struct {
	httpClient *http.Client
	apiURL     string
	webURL     string
	webHost    string
	token      string
	userAgent  string
	logger     *zap.Logger
}

// Option configures a Client
type Option func(*Client)

func WithAPIURL(u string) Option { return func(c *Client) { c.apiURL = strings.TrimRight(u, "/") } }
func WithWebURL(u string) Option { return func(c *Client) { c.webURL = strings.TrimRight(u, "/") } }
func WithToken(t string) Option { return func(c *Client) { c.token = t } }
func WithUserAgent(ua string) Option { return func(c *Client) { c.userAgent = ua } }
func WithLogger(l *zap.Logger) Option { return func(c *Client) { c.logger = l } }

// WithTimeout bounds each request, including reading the body
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a new GitHub API client
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		apiURL:     DefaultAPIURL,
		webURL:     DefaultWebURL,
		userAgent:  DefaultUserAgent,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.webHost = hostOf(c.webURL)
	return c
}

// hostOf returns the lower-cased host of a web base URL
func hostOf(webURL string) string {
	u, err := url.Parse(webURL)
	if err != nil || u.Host == "" {
		return "github.com"
	}
	return strings.ToLower(u.Hostname())
}

// LatestCommit returns the most recent commit on the repository's default branch.
// Exactly one request is made; failures are not retried.
func (c *Client) LatestCommit(ctx context.Context, ref Reference) (*Commit, error) {
	if ref.Owner == "" || ref.Name == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidReference, ref.String())
	}
	if ref.Host != "" && ref.Host != c.webHost && ref.Host != "www."+c.webHost {
		return nil, fmt.Errorf("%w: unsupported host %q (expected %s)", ErrInvalidReference, ref.Host, c.webHost)
	}

	endpoint := fmt.Sprintf("%s/repos/%s/%s/commits?per_page=1",
		c.apiURL, url.PathEscape(ref.Owner), url.PathEscape(ref.Name))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %v", ErrNetwork, err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	req.Header.Set("User-Agent", c.userAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	c.logger.Debug("fetching latest commit", zap.String("repo", ref.Slug()), zap.String("url", endpoint))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNetwork, ref.Slug(), err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound,
		resp.StatusCode == http.StatusConflict, // empty repository
		resp.StatusCode == http.StatusUnprocessableEntity:
		return nil, fmt.Errorf("%w: %s: %w", ErrNotFound, ref.Slug(), decodeAPIError(resp))
	case resp.StatusCode/100 != 2:
		return nil, fmt.Errorf("%w: %s: %w", ErrNetwork, ref.Slug(), decodeAPIError(resp))
	}

	var commits []commitResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, limits.CommitList)).Decode(&commits); err != nil {
		var netErr interface{ Timeout() bool }
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, fmt.Errorf("%w: %s: reading response: %v", ErrNetwork, ref.Slug(), err)
		}
		return nil, fmt.Errorf("%w: %s: failed to decode commit list: %v", ErrMalformedResponse, ref.Slug(), err)
	}
	if len(commits) == 0 {
		return nil, fmt.Errorf("%w: %s: empty commit list", ErrNotFound, ref.Slug())
	}

	commit, err := commits[0].toCommit(c.webURL, ref)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ref.Slug(), err)
	}

	c.logger.Debug("resolved latest commit",
		zap.String("repo", ref.Slug()),
		zap.String("sha", commit.ShortHash),
		zap.String("date", commit.Date))
	return commit, nil
}
