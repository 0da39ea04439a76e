package github

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/codeGROOVE-dev/retry"

	"github.com/andywolf/triagebot/internal/logging"
)

const (
	retryAttempts  = 4
	retryDelay     = 500 * time.Millisecond
	retryMaxDelay  = 10 * time.Second
	retryMaxJitter = 250 * time.Millisecond
	maxRequestSize = 1 * 1024 * 1024
)

// RetryTransport retries transport errors, and 5xx responses to idempotent
// requests, with exponential backoff and jitter. A 5xx to POST or PATCH may
// follow a committed write, so it is returned as-is, as are rate-limit
// responses (403, 429): the bots never throttle themselves.
type RetryTransport struct {
	Base     http.RoundTripper
	Attempts uint          // defaults to retryAttempts
	Delay    time.Duration // initial delay, defaults to retryDelay
	Logger   logging.Logger
}

// RoundTrip implements http.RoundTripper.
func (t *RetryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	attempts := t.Attempts
	if attempts == 0 {
		attempts = retryAttempts
	}
	delay := t.Delay
	if delay == 0 {
		delay = retryDelay
	}
	logger := t.Logger
	if logger == nil {
		logger = logging.Nop()
	}

	var bodyBytes []byte
	if req.Body != nil {
		var err error
		bodyBytes, err = io.ReadAll(io.LimitReader(req.Body, maxRequestSize))
		if err != nil {
			return nil, err
		}
		_ = req.Body.Close()
	}

	var resp *http.Response
	attempt := 0

	err := retry.Do(
		func() error {
			attempt++
			if bodyBytes != nil {
				req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
			}

			var err error
			resp, err = base.RoundTrip(req)
			if err != nil {
				logger.Warningf("%s %s failed (attempt %d): %v", req.Method, req.URL.Path, attempt, err)
				return err
			}

			if resp.StatusCode >= 500 && resp.StatusCode < 600 && idempotent(req.Method) {
				// Buffer the body so the final response stays readable.
				respBody, _ := io.ReadAll(resp.Body)
				_ = resp.Body.Close()
				resp.Body = io.NopCloser(bytes.NewReader(respBody))
				logger.Warningf("%s %s returned %d (attempt %d)", req.Method, req.URL.Path, resp.StatusCode, attempt)
				return &retryableError{StatusCode: resp.StatusCode}
			}
			return nil
		},
		retry.Context(req.Context()),
		retry.Attempts(attempts),
		retry.Delay(delay),
		retry.MaxDelay(retryMaxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.MaxJitter(retryMaxJitter),
		retry.RetryIf(func(err error) bool {
			return req.Context().Err() == nil
		}),
	)
	if err != nil {
		var retryErr *retryableError
		if errors.As(err, &retryErr) && resp != nil {
			// Out of attempts on a server error: hand back the response so
			// the caller reports it as an API error.
			return resp, nil
		}
		return nil, err
	}
	return resp, nil
}

func idempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodPut, http.MethodDelete:
		return true
	}
	return false
}

// retryableError marks a response status that should be retried.
type retryableError struct {
	StatusCode int
}

func (e *retryableError) Error() string {
	return http.StatusText(e.StatusCode)
}
