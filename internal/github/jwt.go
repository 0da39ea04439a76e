package github

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// MaxJWTDuration is the maximum duration allowed for GitHub App JWTs.
// GitHub rejects JWTs with expiration longer than 10 minutes.
const MaxJWTDuration = 10 * time.Minute

// jwtClockSkew backdates iat so a runner clock slightly ahead of GitHub's
// does not produce a token "issued in the future".
const jwtClockSkew = 60 * time.Second

// JWTGenerator signs GitHub App JWTs.
type JWTGenerator struct {
	appID      int64
	privateKey *rsa.PrivateKey
	now        func() time.Time
}

// NewJWTGenerator creates a generator for appID from a PEM private key.
func NewJWTGenerator(appID int64, privateKeyPEM []byte) (*JWTGenerator, error) {
	if appID <= 0 {
		return nil, fmt.Errorf("app ID must be positive")
	}

	privateKey, err := parsePrivateKey(privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	return &JWTGenerator{
		appID:      appID,
		privateKey: privateKey,
		now:        time.Now,
	}, nil
}

// GenerateToken creates a JWT valid for the maximum allowed duration.
func (g *JWTGenerator) GenerateToken() (string, error) {
	return g.GenerateTokenWithDuration(MaxJWTDuration - jwtClockSkew)
}

// GenerateTokenWithDuration creates a JWT valid for duration, which must not
// exceed MaxJWTDuration.
func (g *JWTGenerator) GenerateTokenWithDuration(duration time.Duration) (string, error) {
	if duration <= 0 {
		return "", fmt.Errorf("duration must be positive")
	}
	if duration > MaxJWTDuration {
		return "", fmt.Errorf("duration %v exceeds maximum allowed %v", duration, MaxJWTDuration)
	}

	now := g.now()
	claims := jwt.RegisteredClaims{
		Issuer:    strconv.FormatInt(g.appID, 10),
		IssuedAt:  jwt.NewNumericDate(now.Add(-jwtClockSkew)),
		ExpiresAt: jwt.NewNumericDate(now.Add(duration)),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(g.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// parsePrivateKey parses a PKCS#1 or PKCS#8 PEM-encoded RSA private key.
func parsePrivateKey(pemData []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block")
	}

	if block.Type == "RSA PRIVATE KEY" {
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key is not RSA")
	}
	return rsaKey, nil
}
