package github

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// RateLimit is a snapshot of API quota as last reported by GitHub.
type RateLimit struct {
	Limit     int
	Remaining int
	Used      int
	ResetAt   time.Time
	Calls     int // requests issued by this process
}

// rateLimitTracker records quota headers from every response. It never
// blocks requests; the snapshot exists for end-of-run logging.
type rateLimitTracker struct {
	mu    sync.Mutex
	last  RateLimit
	calls int
}

func (t *rateLimitTracker) countCall() {
	t.mu.Lock()
	t.calls++
	t.mu.Unlock()
}

func (t *rateLimitTracker) update(header http.Header) {
	remaining, err := strconv.Atoi(header.Get("X-RateLimit-Remaining"))
	if err != nil {
		return
	}
	limit, _ := strconv.Atoi(header.Get("X-RateLimit-Limit"))
	used, _ := strconv.Atoi(header.Get("X-RateLimit-Used"))

	var reset time.Time
	if resetUnix, err := strconv.ParseInt(header.Get("X-RateLimit-Reset"), 10, 64); err == nil {
		reset = time.Unix(resetUnix, 0)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.last = RateLimit{Limit: limit, Remaining: remaining, Used: used, ResetAt: reset}
}

func (t *rateLimitTracker) snapshot() RateLimit {
	t.mu.Lock()
	defer t.mu.Unlock()
	rl := t.last
	rl.Calls = t.calls
	return rl
}

// CurrentRateLimit returns the last observed quota and the number of calls
// issued. Clients derived with ForRepo share the same counters.
func (c *Client) CurrentRateLimit() RateLimit {
	return c.shared.rateLimit.snapshot()
}

// RateLimits fetches per-category quota (core, search, graphql, ...) from
// GET /rate_limit. The request does not count against the quota.
func (c *Client) RateLimits(ctx context.Context) (map[string]RateLimit, error) {
	var resp struct {
		Resources map[string]struct {
			Limit     int   `json:"limit"`
			Remaining int   `json:"remaining"`
			Used      int   `json:"used"`
			Reset     int64 `json:"reset"`
		} `json:"resources"`
	}
	if err := c.get(ctx, "/rate_limit", &resp); err != nil {
		return nil, err
	}

	out := make(map[string]RateLimit, len(resp.Resources))
	for name, r := range resp.Resources {
		out[name] = RateLimit{
			Limit:     r.Limit,
			Remaining: r.Remaining,
			Used:      r.Used,
			ResetAt:   time.Unix(r.Reset, 0),
		}
	}
	return out, nil
}
