package github

import (
	"fmt"
	"strings"
	"time"

	gogithub "github.com/google/go-github/v82/github"

	"github.com/randalmurphal/repovault/internal/hosting"
)

func mapLabel(l *gogithub.Label) hosting.Label {
	return hosting.Label{
		Name:        l.GetName(),
		Color:       l.GetColor(),
		Description: l.GetDescription(),
	}
}

func toGitHubLabel(l hosting.Label) *gogithub.Label {
	out := &gogithub.Label{
		Name:  gogithub.Ptr(l.Name),
		Color: gogithub.Ptr(strings.TrimPrefix(l.Color, "#")),
	}
	if l.Description != "" {
		out.Description = gogithub.Ptr(l.Description)
	}
	return out
}

func mapMilestone(m *gogithub.Milestone) hosting.Milestone {
	return hosting.Milestone{
		Number:      m.GetNumber(),
		Title:       m.GetTitle(),
		Description: m.GetDescription(),
		State:       m.GetState(),
		DueOn:       formatTime(m.GetDueOn().Time),
	}
}

func toGitHubMilestone(m hosting.Milestone) (*gogithub.Milestone, error) {
	out := &gogithub.Milestone{
		Title:       gogithub.Ptr(m.Title),
		Description: gogithub.Ptr(m.Description),
	}
	if m.State != "" {
		out.State = gogithub.Ptr(m.State)
	}
	if m.DueOn != "" {
		due, err := time.Parse(time.RFC3339, m.DueOn)
		if err != nil {
			return nil, fmt.Errorf("milestone %q due date %q: %w", m.Title, m.DueOn, err)
		}
		out.DueOn = &gogithub.Timestamp{Time: due}
	}
	return out, nil
}

func mapIssue(i *gogithub.Issue) hosting.Issue {
	var labels []string
	for _, l := range i.Labels {
		if name := l.GetName(); name != "" {
			labels = append(labels, name)
		}
	}
	return hosting.Issue{
		Number:    i.GetNumber(),
		Title:     i.GetTitle(),
		Body:      i.GetBody(),
		State:     i.GetState(),
		Labels:    labels,
		Milestone: i.GetMilestone().GetNumber(),
		Author:    i.GetUser().GetLogin(),
		CreatedAt: formatTime(i.GetCreatedAt().Time),
		ClosedAt:  formatTime(i.GetClosedAt().Time),
	}
}

func mapIssueComment(issue int, c *gogithub.IssueComment) hosting.Comment {
	return hosting.Comment{
		ID:          c.GetID(),
		IssueNumber: issue,
		Body:        c.GetBody(),
		Author:      c.GetUser().GetLogin(),
		CreatedAt:   formatTime(c.GetCreatedAt().Time),
	}
}

func mapRelease(r *gogithub.RepositoryRelease) hosting.Release {
	return hosting.Release{
		ID:         r.GetID(),
		TagName:    r.GetTagName(),
		Name:       r.GetName(),
		Body:       r.GetBody(),
		Draft:      r.GetDraft(),
		Prerelease: r.GetPrerelease(),
		Target:     r.GetTargetCommitish(),
		CreatedAt:  formatTime(r.GetCreatedAt().Time),
	}
}

func toGitHubRelease(r hosting.Release) *gogithub.RepositoryRelease {
	out := &gogithub.RepositoryRelease{
		TagName:    gogithub.Ptr(r.TagName),
		Name:       gogithub.Ptr(r.Name),
		Body:       gogithub.Ptr(r.Body),
		Draft:      gogithub.Ptr(r.Draft),
		Prerelease: gogithub.Ptr(r.Prerelease),
	}
	if r.Target != "" {
		out.TargetCommitish = gogithub.Ptr(r.Target)
	}
	return out
}

// mapPR converts a go-github PullRequest to a hosting.PR.
func mapPR(pr *gogithub.PullRequest) *hosting.PR {
	state := pr.GetState()
	if pr.GetMerged() || !pr.GetMergedAt().IsZero() {
		state = "merged"
	}

	// Extract labels.
	var labels []string
	for _, l := range pr.Labels {
		if name := l.GetName(); name != "" {
			labels = append(labels, name)
		}
	}

	return &hosting.PR{
		Number:     pr.GetNumber(),
		Title:      pr.GetTitle(),
		Body:       pr.GetBody(),
		State:      state,
		HeadBranch: pr.GetHead().GetRef(),
		BaseBranch: pr.GetBase().GetRef(),
		Draft:      pr.GetDraft(),
		Labels:     labels,
		Milestone:  pr.GetMilestone().GetNumber(),
		Author:     pr.GetUser().GetLogin(),
		CreatedAt:  formatTime(pr.GetCreatedAt().Time),
		MergedAt:   formatTime(pr.GetMergedAt().Time),
	}
}

// mapPRComment converts a go-github PullRequestComment to a hosting.PRComment.
func mapPRComment(number int, c *gogithub.PullRequestComment) hosting.PRComment {
	line := c.GetLine()
	if line == 0 {
		line = c.GetOriginalLine()
	}

	return hosting.PRComment{
		ID:        c.GetID(),
		PRNumber:  number,
		Body:      c.GetBody(),
		Path:      c.GetPath(),
		Line:      line,
		Side:      c.GetSide(),
		CommitID:  c.GetCommitID(),
		Author:    c.GetUser().GetLogin(),
		CreatedAt: formatTime(c.GetCreatedAt().Time),
	}
}
