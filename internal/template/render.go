// Package template expands {{name}} placeholders in the comments bots post.
package template

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/andywolf/triagebot/internal/github"
)

var placeholder = regexp.MustCompile(`\{\{\s*([a-zA-Z_][a-zA-Z0-9_]*)\s*\}\}`)

// Render replaces each {{name}} in text with vars[name]. Unknown names are
// left untouched so a typo shows up in the posted comment rather than
// silently disappearing.
func Render(text string, vars map[string]string) string {
	if len(vars) == 0 || !strings.Contains(text, "{{") {
		return text
	}
	return placeholder.ReplaceAllStringFunc(text, func(match string) string {
		name := placeholder.FindStringSubmatch(match)[1]
		if v, ok := vars[name]; ok {
			return v
		}
		return match
	})
}

// IssueVars returns the placeholders every issue comment can use: author,
// number, title, upvotes and comments.
func IssueVars(issue *github.Issue) map[string]string {
	return map[string]string{
		"author":   issue.Author.Login,
		"number":   strconv.Itoa(issue.Number),
		"title":    issue.Title,
		"upvotes":  strconv.Itoa(issue.Reactions.Upvotes),
		"comments": strconv.Itoa(issue.NumComments),
	}
}

// Merge returns a new map with extra overriding base.
func Merge(base, extra map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
