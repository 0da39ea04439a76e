// Package gcp adapts Google Cloud services to the bot framework: Secret
// Manager for the GitHub App key, Cloud Storage for blob state and Cloud
// Logging for telemetry.
package gcp

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/api/option"
)

// secretTimeout bounds one AccessSecretVersion call.
const secretTimeout = 10 * time.Second

// SecretFetcher defines the interface for fetching secrets
type SecretFetcher interface {
	FetchSecret(ctx context.Context, secretPath string) (string, error)
	Close() error
}

// secretAccessor is the subset of the Secret Manager client used here.
type secretAccessor interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

// SecretManagerClient wraps the GCP Secret Manager client
type SecretManagerClient struct {
	client    secretAccessor
	projectID string
}

var _ SecretFetcher = (*SecretManagerClient)(nil)

// NewSecretManagerClient creates a Secret Manager client. projectID is used
// to expand bare secret names; when empty it is taken from the environment.
func NewSecretManagerClient(ctx context.Context, projectID string, opts ...option.ClientOption) (*SecretManagerClient, error) {
	client, err := secretmanager.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create secret manager client: %w", err)
	}

	if projectID == "" {
		projectID = ProjectIDFromEnv()
	}

	return &SecretManagerClient{
		client:    client,
		projectID: projectID,
	}, nil
}

// ProjectIDFromEnv returns the GCP project from the usual environment
// variables, or "".
func ProjectIDFromEnv() string {
	for _, key := range []string{"GOOGLE_CLOUD_PROJECT", "GCP_PROJECT", "GCLOUD_PROJECT"} {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return ""
}

// FetchSecret retrieves a secret payload. secretPath may be:
//   - projects/PROJECT_ID/secrets/SECRET_NAME/versions/VERSION
//   - projects/PROJECT_ID/secrets/SECRET_NAME (latest version)
//   - SECRET_NAME (latest version in the client's project)
func (c *SecretManagerClient) FetchSecret(ctx context.Context, secretPath string) (string, error) {
	name, err := c.normalizeSecretPath(secretPath)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, secretTimeout)
	defer cancel()

	result, err := c.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
	if err != nil {
		return "", fmt.Errorf("failed to access secret version %s: %w", name, err)
	}
	return string(result.GetPayload().GetData()), nil
}

func (c *SecretManagerClient) normalizeSecretPath(secretPath string) (string, error) {
	secretPath = strings.TrimSpace(secretPath)
	if strings.HasPrefix(secretPath, "projects/") {
		if strings.Contains(secretPath, "/versions/") {
			return secretPath, nil
		}
		if strings.Contains(secretPath, "/secrets/") {
			return secretPath + "/versions/latest", nil
		}
		return "", fmt.Errorf("invalid secret path %q", secretPath)
	}

	if c.projectID == "" {
		return "", fmt.Errorf("secret %q has no project: set gcpProject or use a full resource name", secretPath)
	}
	return fmt.Sprintf("projects/%s/secrets/%s/versions/latest", c.projectID, path.Base(secretPath)), nil
}

// Close closes the Secret Manager client
func (c *SecretManagerClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}
