package gitlab

import (
	"time"

	gogitlab "gitlab.com/gitlab-org/api/client-go"

	"github.com/randalmurphal/repovault/internal/hosting"
)

// mapMilestone converts a milestone and records its IID -> ID mapping.
func (g *GitLabProvider) mapMilestone(m *gogitlab.Milestone) hosting.Milestone {
	g.mu.Lock()
	g.milestoneIDs[int(m.IID)] = m.ID
	g.mu.Unlock()

	state := m.State
	if state == "active" {
		state = "open"
	}
	var due string
	if m.DueDate != nil {
		due = time.Time(*m.DueDate).UTC().Format(time.RFC3339)
	}
	return hosting.Milestone{
		Number:      int(m.IID),
		Title:       m.Title,
		Description: m.Description,
		State:       state,
		DueOn:       due,
	}
}

func mapIssue(i *gogitlab.Issue) hosting.Issue {
	state := i.State
	if state == "opened" {
		state = "open"
	}
	var milestone int
	if i.Milestone != nil {
		milestone = int(i.Milestone.IID)
	}
	var author string
	if i.Author != nil {
		author = i.Author.Username
	}
	return hosting.Issue{
		Number:    int(i.IID),
		Title:     i.Title,
		Body:      i.Description,
		State:     state,
		Labels:    append([]string(nil), i.Labels...),
		Milestone: milestone,
		Author:    author,
		CreatedAt: formatTime(i.CreatedAt),
		ClosedAt:  formatTime(i.ClosedAt),
	}
}

func mapRelease(r *gogitlab.Release) hosting.Release {
	return hosting.Release{
		TagName:   r.TagName,
		Name:      r.Name,
		Body:      r.Description,
		Target:    r.Commit.ID,
		CreatedAt: formatTime(r.CreatedAt),
	}
}

// mapMR converts a GitLab MergeRequest to a hosting.PR.
func mapMR(mr *gogitlab.MergeRequest) *hosting.PR {
	return mapBasicMR(&mr.BasicMergeRequest)
}

// mapBasicMR converts a GitLab BasicMergeRequest to a hosting.PR.
func mapBasicMR(mr *gogitlab.BasicMergeRequest) *hosting.PR {
	state := mr.State
	switch state {
	case "opened":
		state = "open"
	case "locked":
		state = "closed"
	}

	var milestone int
	if mr.Milestone != nil {
		milestone = int(mr.Milestone.IID)
	}
	var author string
	if mr.Author != nil {
		author = mr.Author.Username
	}

	return &hosting.PR{
		Number:     int(mr.IID),
		Title:      mr.Title,
		Body:       mr.Description,
		State:      state,
		HeadBranch: mr.SourceBranch,
		BaseBranch: mr.TargetBranch,
		Draft:      mr.Draft,
		Labels:     append([]string(nil), mr.Labels...),
		Milestone:  milestone,
		Author:     author,
		CreatedAt:  formatTime(mr.CreatedAt),
		MergedAt:   formatTime(mr.MergedAt),
	}
}

// mapNote converts a GitLab Note to a hosting.PRComment.
func mapNote(number int, note *gogitlab.Note) hosting.PRComment {
	comment := hosting.PRComment{
		ID:        note.ID,
		PRNumber:  number,
		Body:      note.Body,
		Author:    note.Author.Username,
		CreatedAt: formatTime(note.CreatedAt),
	}

	if note.Position != nil {
		comment.Path = note.Position.NewPath
		comment.Line = int(note.Position.NewLine)
		comment.CommitID = note.Position.HeadSHA
	}

	return comment
}
