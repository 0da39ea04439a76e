package testbed

import (
	"strings"
	"unicode"

	"github.com/andywolf/triagebot/internal/github"
)

// SearchQuery is the subset of GitHub issue search syntax the testbed
// understands. Unknown qualifiers such as sort: are ignored.
type SearchQuery struct {
	Repo          github.RepoRef
	State         string // "open", "closed" or ""
	Type          string // "issue", "pr" or ""
	Labels        []string
	ExcludeLabels []string
	Milestone     string
	NoMilestone   bool
	Text          []string
}

// ParseQuery parses a search expression. Values may be double-quoted.
func ParseQuery(expression string) SearchQuery {
	var q SearchQuery
	for _, term := range splitTerms(expression) {
		negated := strings.HasPrefix(term, "-")
		term = strings.TrimPrefix(term, "-")

		key, value, ok := strings.Cut(term, ":")
		if !ok {
			q.Text = append(q.Text, strings.ToLower(strings.Trim(term, `"`)))
			continue
		}
		value = strings.Trim(value, `"`)

		switch key {
		case "repo":
			if r, err := github.ParseRepoRef(value); err == nil {
				q.Repo = r
			}
		case "is", "state", "type":
			switch value {
			case "open", "closed":
				q.State = value
			case "issue", "pr":
				q.Type = value
			}
		case "label":
			if negated {
				q.ExcludeLabels = append(q.ExcludeLabels, value)
			} else {
				q.Labels = append(q.Labels, value)
			}
		case "milestone":
			q.Milestone = value
		case "no":
			if value == "milestone" {
				q.NoMilestone = true
			}
		}
	}
	return q
}

// Match reports whether issue satisfies every term of q.
func (q SearchQuery) Match(issue *github.Issue) bool {
	switch q.State {
	case "open":
		if !issue.Open {
			return false
		}
	case "closed":
		if issue.Open {
			return false
		}
	}
	switch q.Type {
	case "issue":
		if issue.IsPullRequest {
			return false
		}
	case "pr":
		if !issue.IsPullRequest {
			return false
		}
	}

	for _, l := range q.Labels {
		if !issue.HasLabel(l) {
			return false
		}
	}
	for _, l := range q.ExcludeLabels {
		if issue.HasLabel(l) {
			return false
		}
	}

	if q.NoMilestone && issue.Milestone != nil {
		return false
	}
	if q.Milestone != "" && (issue.Milestone == nil || issue.Milestone.Title != q.Milestone) {
		return false
	}

	haystack := strings.ToLower(issue.Title + "\n" + issue.Body)
	for _, word := range q.Text {
		if !strings.Contains(haystack, word) {
			return false
		}
	}
	return true
}

// splitTerms splits on whitespace outside double quotes.
func splitTerms(s string) []string {
	var terms []string
	var cur strings.Builder
	quoted := false

	for _, r := range s {
		switch {
		case r == '"':
			quoted = !quoted
			cur.WriteRune(r)
		case unicode.IsSpace(r) && !quoted:
			if cur.Len() > 0 {
				terms = append(terms, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteRune(r)
		}
	}
	if cur.Len() > 0 {
		terms = append(terms, cur.String())
	}
	return terms
}
