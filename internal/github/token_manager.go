package github

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// TokenRefreshBuffer is how long before expiry an installation token is
// replaced.
const TokenRefreshBuffer = 5 * time.Minute

// TokenManager is an oauth2.TokenSource for GitHub App installation tokens.
// It mints a JWT, exchanges it and refreshes the result shortly before it
// expires.
type TokenManager struct {
	mu sync.RWMutex

	ctx            context.Context
	installationID int64

	token     string
	expiresAt time.Time

	jwtGenerator   *JWTGenerator
	tokenExchanger *TokenExchanger
	nowFunc        func() time.Time
}

var _ oauth2.TokenSource = (*TokenManager)(nil)

// TokenManagerOption configures a TokenManager.
type TokenManagerOption func(*TokenManager)

// WithNowFunc sets a custom time function for testing.
func WithNowFunc(fn func() time.Time) TokenManagerOption {
	return func(tm *TokenManager) {
		tm.nowFunc = fn
		tm.jwtGenerator.now = fn
	}
}

// WithTokenExchanger sets a custom token exchanger.
func WithTokenExchanger(exchanger *TokenExchanger) TokenManagerOption {
	return func(tm *TokenManager) {
		tm.tokenExchanger = exchanger
	}
}

// NewTokenManager creates a TokenManager. ctx bounds every token exchange.
func NewTokenManager(ctx context.Context, appID, installationID int64, privateKey []byte, opts ...TokenManagerOption) (*TokenManager, error) {
	if installationID <= 0 {
		return nil, fmt.Errorf("installation ID must be positive")
	}
	if len(privateKey) == 0 {
		return nil, fmt.Errorf("private key cannot be empty")
	}

	jwtGen, err := NewJWTGenerator(appID, privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create JWT generator: %w", err)
	}

	tm := &TokenManager{
		ctx:            ctx,
		installationID: installationID,
		jwtGenerator:   jwtGen,
		tokenExchanger: NewTokenExchanger(),
		nowFunc:        time.Now,
	}
	for _, opt := range opts {
		opt(tm)
	}
	return tm, nil
}

// Token returns a valid installation token, refreshing it when needed.
func (tm *TokenManager) Token() (*oauth2.Token, error) {
	tm.mu.RLock()
	if tm.isValidLocked() {
		tok := tm.oauthTokenLocked()
		tm.mu.RUnlock()
		return tok, nil
	}
	tm.mu.RUnlock()

	return tm.Refresh()
}

// Refresh forces a new installation token.
func (tm *TokenManager) Refresh() (*oauth2.Token, error) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	jwt, err := tm.jwtGenerator.GenerateToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate JWT: %w", err)
	}

	installToken, err := tm.tokenExchanger.ExchangeToken(tm.ctx, jwt, tm.installationID)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange token: %w", err)
	}

	tm.token = installToken.Token
	tm.expiresAt = installToken.ExpiresAt
	return tm.oauthTokenLocked(), nil
}

// NeedsRefresh reports whether the token is missing or expires within
// TokenRefreshBuffer.
func (tm *TokenManager) NeedsRefresh() bool {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return !tm.isValidLocked()
}

// ExpiresAt returns the current token's expiry, or the zero time.
func (tm *TokenManager) ExpiresAt() time.Time {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return tm.expiresAt
}

func (tm *TokenManager) isValidLocked() bool {
	if tm.token == "" {
		return false
	}
	return tm.expiresAt.After(tm.nowFunc().Add(TokenRefreshBuffer))
}

// oauthTokenLocked reports an expiry moved forward by the refresh buffer so
// oauth2.ReuseTokenSource asks again before GitHub would reject the token.
func (tm *TokenManager) oauthTokenLocked() *oauth2.Token {
	return &oauth2.Token{
		AccessToken: tm.token,
		TokenType:   "Bearer",
		Expiry:      tm.expiresAt.Add(-TokenRefreshBuffer),
	}
}
