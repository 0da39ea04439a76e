package github

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Dispatch sends a repository_dispatch event with the given type and client
// payload.
func (c *Client) Dispatch(ctx context.Context, eventType string, payload any) error {
	return c.mutate(fmt.Sprintf("dispatch %q", eventType), func() error {
		req := map[string]any{"event_type": eventType}
		if payload != nil {
			req["client_payload"] = payload
		}
		if err := c.send(ctx, http.MethodPost, c.repoPath("/dispatches"), req, nil); err != nil {
			return fmt.Errorf("dispatching %q to %s: %w", eventType, c.repo, err)
		}
		return nil
	})
}

// ReadFile returns a file's contents from the default branch. A missing
// file yields an error matching ErrNotFound.
func (c *Client) ReadFile(ctx context.Context, path string) ([]byte, error) {
	var resp struct {
		Type     string `json:"type"`
		Encoding string `json:"encoding"`
		Content  string `json:"content"`
	}

	escaped := make([]string, 0)
	for _, seg := range strings.Split(strings.TrimPrefix(path, "/"), "/") {
		escaped = append(escaped, url.PathEscape(seg))
	}
	if err := c.get(ctx, c.repoPath("/contents/%s", strings.Join(escaped, "/")), &resp); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if resp.Type != "" && resp.Type != "file" {
		return nil, fmt.Errorf("reading %s: not a file (%s)", path, resp.Type)
	}
	if resp.Encoding != "base64" {
		return []byte(resp.Content), nil
	}

	data, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(resp.Content, "\n", ""))
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return data, nil
}
