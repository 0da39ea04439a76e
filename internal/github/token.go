package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// InstallationToken is a GitHub App installation access token.
type InstallationToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// TokenExchanger trades App JWTs for installation tokens.
type TokenExchanger struct {
	httpClient *http.Client
	baseURL    string
}

// TokenExchangerOption configures a TokenExchanger.
type TokenExchangerOption func(*TokenExchanger)

// WithHTTPClient sets the HTTP client used for the exchange.
func WithHTTPClient(client *http.Client) TokenExchangerOption {
	return func(t *TokenExchanger) {
		t.httpClient = client
	}
}

// WithBaseURL sets the API root (GitHub Enterprise, tests).
func WithBaseURL(url string) TokenExchangerOption {
	return func(t *TokenExchanger) {
		t.baseURL = strings.TrimRight(url, "/")
	}
}

// NewTokenExchanger creates a TokenExchanger.
func NewTokenExchanger(opts ...TokenExchangerOption) *TokenExchanger {
	t := &TokenExchanger{
		httpClient: &http.Client{Timeout: defaultTimeout, Transport: &RetryTransport{}},
		baseURL:    defaultBaseURL,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// ExchangeToken exchanges a signed App JWT for an installation token,
// valid for one hour.
func (t *TokenExchanger) ExchangeToken(ctx context.Context, jwt string, installationID int64) (*InstallationToken, error) {
	if jwt == "" {
		return nil, fmt.Errorf("JWT cannot be empty")
	}
	if installationID <= 0 {
		return nil, fmt.Errorf("installation ID must be positive")
	}

	url := fmt.Sprintf("%s/app/installations/%d/access_tokens", t.baseURL, installationID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Authorization", "Bearer "+jwt)
	req.Header.Set("X-GitHub-Api-Version", apiVersion)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusCreated {
		apiErr := parseAPIErrorFromBody(resp.StatusCode, body)
		switch resp.StatusCode {
		case http.StatusUnauthorized:
			return nil, fmt.Errorf("unauthorized (check JWT validity and expiration): %w", apiErr)
		case http.StatusForbidden:
			return nil, fmt.Errorf("forbidden (check App permissions): %w", apiErr)
		case http.StatusNotFound:
			return nil, fmt.Errorf("not found (check installation ID): %w", apiErr)
		default:
			return nil, apiErr
		}
	}

	var token InstallationToken
	if err := json.Unmarshal(body, &token); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}
	return &token, nil
}
