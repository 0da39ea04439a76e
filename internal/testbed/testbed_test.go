package testbed

import (
	"context"
	"errors"
	"testing"

	"github.com/andywolf/triagebot/internal/github"
)

var repo = github.RepoRef{Owner: "octo", Name: "hello"}

func TestParseQuery(t *testing.T) {
	q := ParseQuery(`is:open is:issue label:"feature request" -label:"on hold" milestone:"Backlog Candidates" repo:octo/other crash`)

	if q.State != "open" || q.Type != "issue" {
		t.Errorf("State/Type = %q/%q", q.State, q.Type)
	}
	if len(q.Labels) != 1 || q.Labels[0] != "feature request" {
		t.Errorf("Labels = %v", q.Labels)
	}
	if len(q.ExcludeLabels) != 1 || q.ExcludeLabels[0] != "on hold" {
		t.Errorf("ExcludeLabels = %v", q.ExcludeLabels)
	}
	if q.Milestone != "Backlog Candidates" {
		t.Errorf("Milestone = %q", q.Milestone)
	}
	if q.Repo != (github.RepoRef{Owner: "octo", Name: "other"}) {
		t.Errorf("Repo = %v", q.Repo)
	}
	if len(q.Text) != 1 || q.Text[0] != "crash" {
		t.Errorf("Text = %v", q.Text)
	}
}

func TestSearchQuery_Match(t *testing.T) {
	issue := &github.Issue{
		Number:    1,
		Title:     "Editor crash",
		Labels:    []string{"bug"},
		Open:      true,
		Milestone: &github.Milestone{Number: 3, Title: "March"},
	}

	tests := []struct {
		query string
		want  bool
	}{
		{"is:open label:bug", true},
		{"is:closed", false},
		{"-label:bug", false},
		{"milestone:March crash", true},
		{"no:milestone", false},
		{"is:pr", false},
		{"sort:created-asc", true},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			if got := ParseQuery(tt.query).Match(issue); got != tt.want {
				t.Errorf("Match(%q) = %v, want %v", tt.query, got, tt.want)
			}
		})
	}
}

func TestQuery_PagesAndFailure(t *testing.T) {
	tb := New(repo, WithPageSize(2))
	for n := 1; n <= 5; n++ {
		tb.AddIssue(github.Issue{Number: n, Labels: []string{"x"}})
	}

	var sizes []int
	for page, err := range tb.Query(context.Background(), "label:x") {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		sizes = append(sizes, len(page))
	}
	if len(sizes) != 3 || sizes[0] != 2 || sizes[2] != 1 {
		t.Errorf("page sizes = %v, want [2 2 1]", sizes)
	}

	boom := errors.New("boom")
	tb.FailQueryPage(2, boom)
	pages := 0
	var gotErr error
	for _, err := range tb.Query(context.Background(), "label:x") {
		if err != nil {
			gotErr = err
			break
		}
		pages++
	}
	var qe *github.QueryError
	if pages != 1 || !errors.As(gotErr, &qe) || qe.Page != 2 || !errors.Is(gotErr, boom) {
		t.Errorf("pages = %d, err = %v", pages, gotErr)
	}
}

func TestMutationsAreApplied(t *testing.T) {
	ctx := context.Background()
	tb := New(repo, WithLabels("stale"), WithMilestone(7, "Candidates"))
	tb.AddIssue(github.Issue{Number: 4, Title: "t"})

	if err := tb.AddLabel(ctx, 4, "stale"); err != nil {
		t.Fatal(err)
	}
	if err := tb.AddLabel(ctx, 4, "undefined"); err == nil {
		t.Error("AddLabel should reject labels the repository does not define")
	}
	if err := tb.SetMilestone(ctx, 4, 7); err != nil {
		t.Fatal(err)
	}
	if err := tb.CloseIssue(ctx, 4, github.ReasonNotPlanned); err != nil {
		t.Fatal(err)
	}

	issue := tb.Issue(4)
	if issue.Open || issue.StateReason != github.ReasonNotPlanned || !issue.HasLabel("stale") {
		t.Errorf("issue = %+v", issue)
	}
	if issue.Milestone == nil || issue.Milestone.Title != "Candidates" {
		t.Errorf("Milestone = %+v", issue.Milestone)
	}
	if got := len(tb.Mutations()); got != 3 {
		t.Errorf("mutations = %d, want 3", got)
	}

	if _, err := tb.GetIssue(ctx, 99); !errors.Is(err, github.ErrNotFound) {
		t.Errorf("GetIssue(99) = %v, want ErrNotFound", err)
	}
}

func TestFailOn(t *testing.T) {
	tb := New(repo)
	tb.AddIssue(github.Issue{Number: 1}).AddIssue(github.Issue{Number: 2})
	boom := errors.New("boom")
	tb.FailOn("PostComment", 2, boom)

	if err := tb.PostComment(context.Background(), 1, "hi"); err != nil {
		t.Errorf("PostComment(1) = %v", err)
	}
	if err := tb.PostComment(context.Background(), 2, "hi"); !errors.Is(err, boom) {
		t.Errorf("PostComment(2) = %v, want boom", err)
	}

	tb.ClearFailures()
	if err := tb.PostComment(context.Background(), 2, "hi"); err != nil {
		t.Errorf("PostComment(2) after ClearFailures = %v", err)
	}
}
