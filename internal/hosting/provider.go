// Package hosting provides a unified interface for git hosting providers (GitHub, GitLab).
package hosting

import (
	"context"
)

// ProviderType identifies which hosting provider is in use.
type ProviderType string

const (
	ProviderGitHub  ProviderType = "github"
	ProviderGitLab  ProviderType = "gitlab"
	ProviderMemory  ProviderType = "memory"
	ProviderUnknown ProviderType = "unknown"
)

// Provider is the interface for git hosting providers.
// Implementations exist for GitHub (go-github), GitLab (client-go) and an
// in-memory project used by tests.
type Provider interface {
	// Labels
	ListLabels(ctx context.Context) ([]Label, error)
	CreateLabel(ctx context.Context, label Label) (*Label, error)
	UpdateLabel(ctx context.Context, name string, label Label) (*Label, error)

	// Milestones
	ListMilestones(ctx context.Context) ([]Milestone, error)
	CreateMilestone(ctx context.Context, m Milestone) (*Milestone, error)
	UpdateMilestone(ctx context.Context, number int, m Milestone) (*Milestone, error)

	// Issues (pull requests excluded)
	ListIssues(ctx context.Context) ([]Issue, error)
	CreateIssue(ctx context.Context, opts IssueCreateOptions) (*Issue, error)
	CloseIssue(ctx context.Context, number int) error
	ListIssueComments(ctx context.Context, number int) ([]Comment, error)
	CreateIssueComment(ctx context.Context, number int, body string) (*Comment, error)

	// Releases
	ListReleases(ctx context.Context) ([]Release, error)
	CreateRelease(ctx context.Context, r Release) (*Release, error)
	UpdateRelease(ctx context.Context, id int64, r Release) (*Release, error)

	// Pull requests / merge requests
	ListPRs(ctx context.Context) ([]PR, error)
	CreatePR(ctx context.Context, opts PRCreateOptions) (*PR, error)
	ClosePR(ctx context.Context, number int) error
	ListPRComments(ctx context.Context, number int) ([]PRComment, error)
	CreatePRComment(ctx context.Context, number int, comment PRCommentCreate) (*PRComment, error)

	// Repository access for the vcs service
	CloneURL() string
	GitAuth() GitAuth

	// Auth + metadata
	CheckAuth(ctx context.Context) error
	Name() ProviderType
	OwnerRepo() (string, string)
}

// GitAuth holds HTTP basic credentials for git over https.
type GitAuth struct {
	Username string
	Token    string
}

// Label represents an issue label.
type Label struct {
	Name        string `json:"name"`
	Color       string `json:"color"`
	Description string `json:"description,omitempty"`
}

// Milestone represents a milestone.
type Milestone struct {
	Number      int    `json:"number"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	State       string `json:"state"` // open, closed
	DueOn       string `json:"due_on,omitempty"`
}

// Issue represents an issue.
type Issue struct {
	Number    int      `json:"number"`
	Title     string   `json:"title"`
	Body      string   `json:"body"`
	State     string   `json:"state"` // open, closed
	Labels    []string `json:"labels,omitempty"`
	Milestone int      `json:"milestone,omitempty"` // milestone number, 0 for none
	Author    string   `json:"author"`
	CreatedAt string   `json:"created_at"`
	ClosedAt  string   `json:"closed_at,omitempty"`
}

// IssueCreateOptions for creating an issue.
type IssueCreateOptions struct {
	Title     string   `json:"title"`
	Body      string   `json:"body"`
	Labels    []string `json:"labels,omitempty"`
	Milestone int      `json:"milestone,omitempty"`
}

// Comment represents an issue comment / issue note.
type Comment struct {
	ID          int64  `json:"id"`
	IssueNumber int    `json:"issue_number"`
	Body        string `json:"body"`
	Author      string `json:"author"`
	CreatedAt   string `json:"created_at"`
}

// Release represents a release attached to a tag.
type Release struct {
	ID         int64  `json:"id"`
	TagName    string `json:"tag_name"`
	Name       string `json:"name"`
	Body       string `json:"body"`
	Draft      bool   `json:"draft"`
	Prerelease bool   `json:"prerelease"`
	Target     string `json:"target,omitempty"`
	CreatedAt  string `json:"created_at,omitempty"`
}

// PR represents a pull request / merge request.
type PR struct {
	Number     int      `json:"number"`
	Title      string   `json:"title"`
	Body       string   `json:"body"`
	State      string   `json:"state"` // open, closed, merged
	HeadBranch string   `json:"head_branch"`
	BaseBranch string   `json:"base_branch"`
	Draft      bool     `json:"draft"`
	Labels     []string `json:"labels,omitempty"`
	Milestone  int      `json:"milestone,omitempty"`
	Author     string   `json:"author"`
	CreatedAt  string   `json:"created_at"`
	MergedAt   string   `json:"merged_at,omitempty"`
}

// PRCreateOptions for creating a PR / merge request.
type PRCreateOptions struct {
	Title     string   `json:"title"`
	Body      string   `json:"body"`
	Head      string   `json:"head"` // Source branch
	Base      string   `json:"base"` // Target branch
	Draft     bool     `json:"draft"`
	Labels    []string `json:"labels,omitempty"`
	Milestone int      `json:"milestone,omitempty"`
}

// PRComment represents a pull request review comment / MR diff note.
type PRComment struct {
	ID        int64  `json:"id"`
	PRNumber  int    `json:"pr_number"`
	Body      string `json:"body"`
	Path      string `json:"path,omitempty"` // File path for inline comments
	Line      int    `json:"line,omitempty"`
	Side      string `json:"side,omitempty"` // LEFT or RIGHT
	CommitID  string `json:"commit_id,omitempty"`
	Author    string `json:"author"`
	CreatedAt string `json:"created_at"`
}

// PRCommentCreate for creating a comment / note.
type PRCommentCreate struct {
	Body     string `json:"body"`
	Path     string `json:"path,omitempty"`
	Line     int    `json:"line,omitempty"`
	Side     string `json:"side,omitempty"`
	CommitID string `json:"commit_id,omitempty"`
}

// AttributionHeader prefixes restored bodies with the original author and
// date, since restores are created by the restoring account.
func AttributionHeader(author, createdAt string) string {
	if author == "" {
		return ""
	}
	if createdAt == "" {
		return "_Originally posted by @" + author + "_\n\n"
	}
	return "_Originally posted by @" + author + " on " + createdAt + "_\n\n"
}
