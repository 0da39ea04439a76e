// Package github is a small GitHub REST client for issue automation: issue
// reads and mutations, lazy paginated search, repository dispatch, and
// GitHub App installation authentication.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/andywolf/triagebot/internal/logging"
)

const (
	apiVersion     = "2022-11-28"
	defaultBaseURL = "https://api.github.com"
	defaultTimeout = 30 * time.Second
	searchPageSize = 100
)

// API is the issue-tracker surface the bots depend on. *Client implements it
// against GitHub; the testbed package provides an in-memory fake.
type API interface {
	Repo() RepoRef
	ForRepo(repo RepoRef) API

	GetIssue(ctx context.Context, number int) (*Issue, error)
	CreateIssue(ctx context.Context, title, body string) (*Issue, error)
	AddLabel(ctx context.Context, number int, label string) error
	RemoveLabel(ctx context.Context, number int, label string) error
	AddAssignee(ctx context.Context, number int, login string) error
	RemoveAssignee(ctx context.Context, number int, login string) error
	PostComment(ctx context.Context, number int, body string) error
	CloseIssue(ctx context.Context, number int, reason StateReason) error
	SetMilestone(ctx context.Context, number, milestone int) error

	Comments(ctx context.Context, number int) iter.Seq2[*Comment, error]
	Events(ctx context.Context, number int) iter.Seq2[*IssueEvent, error]
	Query(ctx context.Context, expression string) iter.Seq2[[]*Issue, error]

	HasWriteAccess(ctx context.Context, login string) (bool, error)
	RepoHasLabel(ctx context.Context, name string) (bool, error)
	CreateLabel(ctx context.Context, name, color, description string) error
	Dispatch(ctx context.Context, eventType string, payload any) error
	ReadFile(ctx context.Context, path string) ([]byte, error)

	CurrentRateLimit() RateLimit
	RateLimits(ctx context.Context) (map[string]RateLimit, error)
}

// Config holds configuration for creating a Client.
type Config struct {
	// BaseURL is the API root. Defaults to https://api.github.com.
	BaseURL string

	// Repo is the repository the client operates on.
	Repo RepoRef

	// TokenSource authenticates every request. Use StaticToken for a
	// personal or workflow token, or a *TokenManager for App auth.
	TokenSource oauth2.TokenSource

	// HTTPClient overrides the transport stack entirely. When nil a client
	// with retry and oauth2 transports is built.
	HTTPClient *http.Client

	// Readonly logs mutations instead of sending them.
	Readonly bool

	Logger logging.Logger
}

// StaticToken returns a TokenSource for a fixed token.
func StaticToken(token string) oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
}

// shared is state common to a client and every client derived with ForRepo.
type shared struct {
	baseURL    string
	httpClient *http.Client
	readonly   bool
	logger     logging.Logger
	rateLimit  *rateLimitTracker

	mu          sync.Mutex
	writeAccess map[string]bool
}

// Client is a repository-scoped GitHub REST client.
type Client struct {
	repo   RepoRef
	shared *shared
}

var _ API = (*Client)(nil)

// NewClient creates a client from cfg.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Repo.IsZero() {
		return nil, fmt.Errorf("github: repository is required")
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		if cfg.TokenSource == nil {
			return nil, fmt.Errorf("github: no authentication configured")
		}
		httpClient = &http.Client{
			Timeout: defaultTimeout,
			Transport: &oauth2.Transport{
				Source: oauth2.ReuseTokenSource(nil, cfg.TokenSource),
				Base:   &RetryTransport{Logger: cfg.Logger},
			},
		}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.Nop()
	}

	return &Client{
		repo: cfg.Repo,
		shared: &shared{
			baseURL:     baseURL,
			httpClient:  httpClient,
			readonly:    cfg.Readonly,
			logger:      logger,
			rateLimit:   &rateLimitTracker{},
			writeAccess: make(map[string]bool),
		},
	}, nil
}

// Repo returns the repository this client is scoped to.
func (c *Client) Repo() RepoRef {
	return c.repo
}

// ForRepo returns a client for another repository sharing this client's
// transport, readonly mode and rate-limit counters.
func (c *Client) ForRepo(repo RepoRef) API {
	return &Client{repo: repo, shared: c.shared}
}

func (c *Client) repoPath(format string, args ...any) string {
	return fmt.Sprintf("/repos/%s/%s", c.repo.Owner, c.repo.Name) + fmt.Sprintf(format, args...)
}

// mutate runs fn unless the client is readonly.
func (c *Client) mutate(what string, fn func() error) error {
	if c.shared.readonly {
		c.shared.logger.Infof("readonly: skipping %s on %s", what, c.repo)
		return nil
	}
	return fn()
}

// do executes a request and returns the body. Non-2xx responses become
// *APIError. path is relative to the base URL unless it is absolute.
func (c *Client) do(ctx context.Context, method, path string, requestBody any) ([]byte, http.Header, error) {
	url := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		url = c.shared.baseURL + path
	}

	resp, err := c.doRaw(ctx, method, url, requestBody)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("github: reading response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, nil, parseAPIErrorFromBody(resp.StatusCode, body)
	}
	return body, resp.Header, nil
}

// doRaw sends a request without interpreting the response. The caller
// closes the body.
func (c *Client) doRaw(ctx context.Context, method, url string, requestBody any) (*http.Response, error) {
	var bodyReader io.Reader
	if requestBody != nil {
		encoded, err := json.Marshal(requestBody)
		if err != nil {
			return nil, fmt.Errorf("github: encoding request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("github: creating request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", apiVersion)
	if requestBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.shared.rateLimit.countCall()
	resp, err := c.shared.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("github: %s %s: %w", method, url, err)
	}
	c.shared.rateLimit.update(resp.Header)
	return resp, nil
}

func (c *Client) get(ctx context.Context, path string, result any) error {
	body, _, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, result)
}

func (c *Client) send(ctx context.Context, method, path string, requestBody, result any) error {
	body, _, err := c.do(ctx, method, path, requestBody)
	if err != nil {
		return err
	}
	if result != nil && len(body) > 0 {
		return json.Unmarshal(body, result)
	}
	return nil
}
