package github

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrNotFound matches, via errors.Is, any 404 response from the API.
var ErrNotFound = errors.New("github: not found")

// APIError represents a non-2xx response from the GitHub REST API.
type APIError struct {
	StatusCode       int
	Message          string
	DocumentationURL string
	Errors           []ValidationError
}

// ValidationError describes a field-level failure on a 422 response.
type ValidationError struct {
	Resource string `json:"resource"`
	Code     string `json:"code"`
	Field    string `json:"field"`
	Message  string `json:"message"`
}

func (e *APIError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "github: HTTP %d: %s", e.StatusCode, e.Message)
	for _, ve := range e.Errors {
		detail := ve.Message
		if detail == "" {
			detail = ve.Code
		}
		fmt.Fprintf(&b, "; %s.%s: %s", ve.Resource, ve.Field, detail)
	}
	return b.String()
}

// Is lets errors.Is(err, ErrNotFound) match 404 responses.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// NotFound reports whether the response was a 404.
func (e *APIError) NotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// IsNotFound reports whether err is a GitHub API 404 Not Found response.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// QueryError reports a search page that could not be fetched or was
// reported incomplete. Results yielded before it are a strict prefix of the
// full result set.
type QueryError struct {
	Query string
	Page  int
	Err   error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("github: query %q failed on page %d: %v", e.Query, e.Page, e.Err)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

// ErrIncompleteResults is wrapped by a QueryError when GitHub reports a
// search page as incomplete (typically a search timeout).
var ErrIncompleteResults = errors.New("search results incomplete")

func parseAPIErrorFromBody(statusCode int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: statusCode}

	var parsed struct {
		Message          string            `json:"message"`
		DocumentationURL string            `json:"documentation_url"`
		Errors           []ValidationError `json:"errors"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil || parsed.Message == "" {
		apiErr.Message = strings.TrimSpace(string(body))
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(statusCode)
		}
		return apiErr
	}

	apiErr.Message = parsed.Message
	apiErr.DocumentationURL = parsed.DocumentationURL
	apiErr.Errors = parsed.Errors
	return apiErr
}
