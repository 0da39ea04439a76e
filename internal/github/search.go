package github

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"net/url"
	"strings"
)

type searchResponse struct {
	TotalCount        int          `json:"total_count"`
	IncompleteResults bool         `json:"incomplete_results"`
	Items             []*issueJSON `json:"items"`
}

// Query runs an issue search scoped to the client's repository and yields
// result pages in provider order.
//
// Each range over the returned sequence starts a fresh search. Pages are
// fetched only as the consumer advances; breaking out of the loop stops all
// further requests. A failed page fetch, or a page GitHub marks as
// incomplete, is yielded once as a *QueryError and ends the sequence.
func (c *Client) Query(ctx context.Context, expression string) iter.Seq2[[]*Issue, error] {
	q := expression
	if !strings.Contains(q, "repo:") {
		q = strings.TrimSpace(q + " repo:" + c.repo.String())
	}

	return func(yield func([]*Issue, error) bool) {
		first := fmt.Sprintf("%s/search/issues?q=%s&per_page=%d", c.shared.baseURL, url.QueryEscape(q), searchPageSize)
		it := newPageIterator(c, first, decodeSearchPage)

		for !it.Done() {
			page, err := it.Next(ctx)
			if err != nil {
				yield(nil, &QueryError{Query: q, Page: it.Page() + 1, Err: err})
				return
			}
			if len(page) == 0 {
				continue
			}
			if !yield(page, nil) {
				return
			}
		}
	}
}

func decodeSearchPage(body []byte) ([]*Issue, error) {
	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	if resp.IncompleteResults {
		return nil, ErrIncompleteResults
	}
	issues := make([]*Issue, 0, len(resp.Items))
	for _, w := range resp.Items {
		issues = append(issues, w.toIssue())
	}
	return issues, nil
}
