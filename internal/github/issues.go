package github

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"net/url"
)

// GetIssue fetches an issue or pull request. A deleted or inaccessible
// issue yields an error matching ErrNotFound.
func (c *Client) GetIssue(ctx context.Context, number int) (*Issue, error) {
	var w issueJSON
	if err := c.get(ctx, c.repoPath("/issues/%d", number), &w); err != nil {
		return nil, fmt.Errorf("getting issue %d: %w", number, err)
	}
	return w.toIssue(), nil
}

// CreateIssue opens a new issue in the client's repository.
func (c *Client) CreateIssue(ctx context.Context, title, body string) (*Issue, error) {
	var created *Issue
	err := c.mutate("create issue", func() error {
		var w issueJSON
		req := map[string]string{"title": title, "body": body}
		if err := c.send(ctx, http.MethodPost, c.repoPath("/issues"), req, &w); err != nil {
			return fmt.Errorf("creating issue: %w", err)
		}
		created = w.toIssue()
		return nil
	})
	return created, err
}

// AddLabel applies a label the repository already defines.
func (c *Client) AddLabel(ctx context.Context, number int, label string) error {
	exists, err := c.RepoHasLabel(ctx, label)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("adding label %q to #%d: label is not defined in %s", label, number, c.repo)
	}
	return c.mutate(fmt.Sprintf("add label %q to #%d", label, number), func() error {
		req := map[string][]string{"labels": {label}}
		if err := c.send(ctx, http.MethodPost, c.repoPath("/issues/%d/labels", number), req, nil); err != nil {
			return fmt.Errorf("adding label %q to #%d: %w", label, number, err)
		}
		return nil
	})
}

// RemoveLabel removes a label. A label that is already absent is not an error.
func (c *Client) RemoveLabel(ctx context.Context, number int, label string) error {
	return c.mutate(fmt.Sprintf("remove label %q from #%d", label, number), func() error {
		path := c.repoPath("/issues/%d/labels/%s", number, url.PathEscape(label))
		if err := c.send(ctx, http.MethodDelete, path, nil, nil); err != nil && !IsNotFound(err) {
			return fmt.Errorf("removing label %q from #%d: %w", label, number, err)
		}
		return nil
	})
}

// AddAssignee assigns login to the issue.
func (c *Client) AddAssignee(ctx context.Context, number int, login string) error {
	return c.mutate(fmt.Sprintf("assign %s to #%d", login, number), func() error {
		req := map[string][]string{"assignees": {login}}
		if err := c.send(ctx, http.MethodPost, c.repoPath("/issues/%d/assignees", number), req, nil); err != nil {
			return fmt.Errorf("assigning %s to #%d: %w", login, number, err)
		}
		return nil
	})
}

// RemoveAssignee unassigns login. An assignee that is already absent is not
// an error.
func (c *Client) RemoveAssignee(ctx context.Context, number int, login string) error {
	return c.mutate(fmt.Sprintf("unassign %s from #%d", login, number), func() error {
		req := map[string][]string{"assignees": {login}}
		err := c.send(ctx, http.MethodDelete, c.repoPath("/issues/%d/assignees", number), req, nil)
		if err != nil && !IsNotFound(err) {
			return fmt.Errorf("unassigning %s from #%d: %w", login, number, err)
		}
		return nil
	})
}

// PostComment adds a comment to the issue.
func (c *Client) PostComment(ctx context.Context, number int, body string) error {
	return c.mutate(fmt.Sprintf("comment on #%d", number), func() error {
		req := map[string]string{"body": body}
		if err := c.send(ctx, http.MethodPost, c.repoPath("/issues/%d/comments", number), req, nil); err != nil {
			return fmt.Errorf("commenting on #%d: %w", number, err)
		}
		return nil
	})
}

// CloseIssue closes the issue with the given reason.
func (c *Client) CloseIssue(ctx context.Context, number int, reason StateReason) error {
	return c.mutate(fmt.Sprintf("close #%d", number), func() error {
		req := map[string]string{"state": "closed"}
		if reason != "" {
			req["state_reason"] = string(reason)
		}
		if err := c.send(ctx, http.MethodPatch, c.repoPath("/issues/%d", number), req, nil); err != nil {
			return fmt.Errorf("closing #%d: %w", number, err)
		}
		return nil
	})
}

// SetMilestone moves the issue into the milestone with the given number.
func (c *Client) SetMilestone(ctx context.Context, number, milestone int) error {
	return c.mutate(fmt.Sprintf("set milestone %d on #%d", milestone, number), func() error {
		req := map[string]int{"milestone": milestone}
		if err := c.send(ctx, http.MethodPatch, c.repoPath("/issues/%d", number), req, nil); err != nil {
			return fmt.Errorf("setting milestone %d on #%d: %w", milestone, number, err)
		}
		return nil
	})
}

// Comments lists the issue's comments oldest first, one page at a time.
func (c *Client) Comments(ctx context.Context, number int) iter.Seq2[*Comment, error] {
	first := c.shared.baseURL + c.repoPath("/issues/%d/comments?per_page=%d", number, searchPageSize)
	return newPageIterator[*Comment](c, first, nil).Items(ctx)
}

// Events lists the issue's event history oldest first.
func (c *Client) Events(ctx context.Context, number int) iter.Seq2[*IssueEvent, error] {
	first := c.shared.baseURL + c.repoPath("/issues/%d/events?per_page=%d", number, searchPageSize)
	it := newPageIterator(c, first, func(body []byte) ([]*IssueEvent, error) {
		raw, err := decodeArray[*issueEventJSON](body)
		if err != nil {
			return nil, err
		}
		events := make([]*IssueEvent, 0, len(raw))
		for _, w := range raw {
			events = append(events, w.toEvent())
		}
		return events, nil
	})
	return it.Items(ctx)
}

// RepoHasLabel reports whether the repository defines a label.
func (c *Client) RepoHasLabel(ctx context.Context, name string) (bool, error) {
	var label labelJSON
	err := c.get(ctx, c.repoPath("/labels/%s", url.PathEscape(name)), &label)
	if IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking label %q: %w", name, err)
	}
	return true, nil
}

// CreateLabel defines a new repository label.
func (c *Client) CreateLabel(ctx context.Context, name, color, description string) error {
	return c.mutate(fmt.Sprintf("create label %q", name), func() error {
		req := map[string]string{"name": name, "color": color, "description": description}
		if err := c.send(ctx, http.MethodPost, c.repoPath("/labels"), req, nil); err != nil {
			return fmt.Errorf("creating label %q: %w", name, err)
		}
		return nil
	})
}

// HasWriteAccess reports whether login has write, maintain or admin
// permission on the repository. Results are cached for the client's lifetime.
func (c *Client) HasWriteAccess(ctx context.Context, login string) (bool, error) {
	key := c.repo.String() + ":" + login

	c.shared.mu.Lock()
	cached, ok := c.shared.writeAccess[key]
	c.shared.mu.Unlock()
	if ok {
		return cached, nil
	}

	var resp struct {
		Permission string `json:"permission"`
	}
	err := c.get(ctx, c.repoPath("/collaborators/%s/permission", url.PathEscape(login)), &resp)
	var apiErr *APIError
	if errors.As(err, &apiErr) && (apiErr.StatusCode == http.StatusNotFound || apiErr.StatusCode == http.StatusForbidden) {
		err = nil
		resp.Permission = "none"
	}
	if err != nil {
		return false, fmt.Errorf("checking permission for %s: %w", login, err)
	}

	has := resp.Permission == "admin" || resp.Permission == "maintain" || resp.Permission == "write"

	c.shared.mu.Lock()
	c.shared.writeAccess[key] = has
	c.shared.mu.Unlock()
	return has, nil
}
