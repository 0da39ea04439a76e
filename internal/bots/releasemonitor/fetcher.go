package releasemonitor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/andywolf/triagebot/internal/github"
	"github.com/andywolf/triagebot/internal/logging"
)

// DefaultUpdateURL is the root of the release update service.
const DefaultUpdateURL = "https://update.code.visualstudio.com"

// ReleaseFetcher returns the latest published version of a quality.
type ReleaseFetcher interface {
	Latest(ctx context.Context, quality string) (string, error)
}

// HTTPFetcher reads <BaseURL>/api/update/darwin/<quality>/latest.
type HTTPFetcher struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPFetcher creates a fetcher with retries on transport errors and 5xx.
func NewHTTPFetcher(baseURL string, logger logging.Logger) *HTTPFetcher {
	if baseURL == "" {
		baseURL = DefaultUpdateURL
	}
	return &HTTPFetcher{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: &github.RetryTransport{Logger: logger},
		},
	}
}

type releaseJSON struct {
	Version string `json:"version"`
	Name    string `json:"name"`
}

func (f *HTTPFetcher) Latest(ctx context.Context, quality string) (string, error) {
	endpoint := fmt.Sprintf("%s/api/update/darwin/%s/latest", f.BaseURL, url.PathEscape(quality))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/json")

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching latest %s release: %w", quality, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("reading latest %s release: %w", quality, err)
	}
	switch {
	case resp.StatusCode == http.StatusNoContent:
		return "", nil
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("fetching latest %s release: HTTP %d", quality, resp.StatusCode)
	}

	var rel releaseJSON
	if err := json.Unmarshal(body, &rel); err != nil {
		return "", fmt.Errorf("decoding latest %s release: %w", quality, err)
	}
	return rel.Version, nil
}
