package github

import (
	"context"
	"encoding/json"
	"io"
	"iter"
	"net/http"
	"strings"
)

// PageIterator lazily fetches pages from a paginated endpoint by following
// rel="next" Link headers. It is forward-only and not safe for concurrent use.
type PageIterator[T any] struct {
	client  *Client
	nextURL string
	page    int
	done    bool
	decode  func([]byte) ([]T, error)
}

func newPageIterator[T any](client *Client, firstURL string, decode func([]byte) ([]T, error)) *PageIterator[T] {
	if decode == nil {
		decode = decodeArray[T]
	}
	return &PageIterator[T]{client: client, nextURL: firstURL, decode: decode}
}

func decodeArray[T any](body []byte) ([]T, error) {
	var items []T
	err := json.Unmarshal(body, &items)
	return items, err
}

// Done reports whether the last page has been fetched.
func (it *PageIterator[T]) Done() bool {
	return it.done || it.nextURL == ""
}

// Page returns the number of pages fetched so far.
func (it *PageIterator[T]) Page() int {
	return it.page
}

// Next fetches the next page. It returns nil, nil once Done.
func (it *PageIterator[T]) Next(ctx context.Context) ([]T, error) {
	if it.Done() {
		return nil, nil
	}

	resp, err := it.client.doRaw(ctx, http.MethodGet, it.nextURL, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, parseAPIErrorFromBody(resp.StatusCode, body)
	}

	items, err := it.decode(body)
	if err != nil {
		return nil, err
	}

	it.page++
	it.nextURL = parseLinkNext(resp.Header.Get("Link"))
	if it.nextURL == "" {
		it.done = true
	}
	return items, nil
}

// Pages returns the remaining pages as a sequence. A fetch error is yielded
// once and ends the sequence. Empty pages are skipped.
func (it *PageIterator[T]) Pages(ctx context.Context) iter.Seq2[[]T, error] {
	return func(yield func([]T, error) bool) {
		for !it.Done() {
			items, err := it.Next(ctx)
			if err != nil {
				yield(nil, err)
				return
			}
			if len(items) == 0 {
				continue
			}
			if !yield(items, nil) {
				return
			}
		}
	}
}

// Items flattens Pages into single items.
func (it *PageIterator[T]) Items(ctx context.Context) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for page, err := range it.Pages(ctx) {
			if err != nil {
				var zero T
				yield(zero, err)
				return
			}
			for _, item := range page {
				if !yield(item, nil) {
					return
				}
			}
		}
	}
}

// parseLinkNext extracts the rel="next" URL from an RFC 5988 Link header.
//
// Format: <https://api.github.com/...?page=2>; rel="next", <...>; rel="last"
func parseLinkNext(header string) string {
	for _, part := range strings.Split(header, ",") {
		segments := strings.SplitN(strings.TrimSpace(part), ";", 2)
		if len(segments) != 2 {
			continue
		}
		urlPart := strings.TrimSpace(segments[0])
		if !strings.Contains(segments[1], `rel="next"`) {
			continue
		}
		if strings.HasPrefix(urlPart, "<") && strings.HasSuffix(urlPart, ">") {
			return urlPart[1 : len(urlPart)-1]
		}
	}
	return ""
}
