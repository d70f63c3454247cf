package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	gogithub "github.com/google/go-github/v82/github"

	"github.com/randalmurphal/repovault/internal/hosting"
)

// Compile-time interface check.
var _ hosting.Provider = (*GitHubProvider)(nil)

func init() {
	hosting.RegisterProvider(hosting.ProviderGitHub, newProvider)
}

const perPage = 100

// GitHubProvider implements hosting.Provider using the go-github library.
type GitHubProvider struct {
	client  *gogithub.Client
	owner   string
	repo    string
	token   string
	webBase string
}

// newProvider creates a new GitHubProvider for the remote and config.
func newProvider(remote string, cfg hosting.Config) (hosting.Provider, error) {
	token, err := resolveToken(cfg)
	if err != nil {
		return nil, err
	}

	owner, repo, err := hosting.OwnerRepoFrom(remote)
	if err != nil {
		return nil, err
	}

	// Create authenticated, rate-limited HTTP client and go-github client.
	httpClient := &http.Client{
		Transport: &hosting.BearerTransport{
			Token:   token,
			Limiter: hosting.NewLimiter(cfg.RequestsPerSecond),
		},
	}

	client := gogithub.NewClient(httpClient)
	webBase := "https://github.com"

	// GitHub Enterprise: override base URL.
	if cfg.BaseURL != "" {
		baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
		var parseErr error
		client.BaseURL, parseErr = client.BaseURL.Parse(baseURL + "/api/v3/")
		if parseErr != nil {
			return nil, fmt.Errorf("parse base URL %q: %w", cfg.BaseURL, parseErr)
		}
		client.UploadURL, parseErr = client.UploadURL.Parse(baseURL + "/api/uploads/")
		if parseErr != nil {
			return nil, fmt.Errorf("parse upload URL %q: %w", cfg.BaseURL, parseErr)
		}
		webBase = baseURL
	}

	return &GitHubProvider{
		client:  client,
		owner:   owner,
		repo:    repo,
		token:   token,
		webBase: webBase,
	}, nil
}

// Name returns the provider type.
func (g *GitHubProvider) Name() hosting.ProviderType {
	return hosting.ProviderGitHub
}

// OwnerRepo returns the owner and repository name.
func (g *GitHubProvider) OwnerRepo() (string, string) {
	return g.owner, g.repo
}

// CloneURL returns the https clone URL of the repository.
func (g *GitHubProvider) CloneURL() string {
	return fmt.Sprintf("%s/%s/%s.git", g.webBase, g.owner, g.repo)
}

// GitAuth returns credentials for git over https.
func (g *GitHubProvider) GitAuth() hosting.GitAuth {
	return hosting.GitAuth{Username: "x-access-token", Token: g.token}
}

// CheckAuth validates the token by fetching the authenticated user.
func (g *GitHubProvider) CheckAuth(ctx context.Context) error {
	_, resp, err := g.client.Users.Get(ctx, "")
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return fmt.Errorf("check auth: %w", hosting.ErrAuthFailed)
		}
		return fmt.Errorf("check auth: %w", err)
	}
	return nil
}

// ListLabels lists every label of the repository.
func (g *GitHubProvider) ListLabels(ctx context.Context) ([]hosting.Label, error) {
	var result []hosting.Label
	opts := &gogithub.ListOptions{PerPage: perPage}
	for {
		labels, resp, err := g.client.Issues.ListLabels(ctx, g.owner, g.repo, opts)
		if err != nil {
			return nil, fmt.Errorf("list labels: %w", err)
		}
		for _, l := range labels {
			result = append(result, mapLabel(l))
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return result, nil
}

// CreateLabel creates a label.
func (g *GitHubProvider) CreateLabel(ctx context.Context, label hosting.Label) (*hosting.Label, error) {
	created, resp, err := g.client.Issues.CreateLabel(ctx, g.owner, g.repo, toGitHubLabel(label))
	if err != nil {
		return nil, fmt.Errorf("create label %q: %w", label.Name, classify(resp, err))
	}
	mapped := mapLabel(created)
	return &mapped, nil
}

// UpdateLabel replaces the label called name.
func (g *GitHubProvider) UpdateLabel(ctx context.Context, name string, label hosting.Label) (*hosting.Label, error) {
	updated, resp, err := g.client.Issues.EditLabel(ctx, g.owner, g.repo, name, toGitHubLabel(label))
	if err != nil {
		return nil, fmt.Errorf("update label %q: %w", name, classify(resp, err))
	}
	mapped := mapLabel(updated)
	return &mapped, nil
}

// ListMilestones lists open and closed milestones.
func (g *GitHubProvider) ListMilestones(ctx context.Context) ([]hosting.Milestone, error) {
	var result []hosting.Milestone
	opts := &gogithub.MilestoneListOptions{
		State:       "all",
		ListOptions: gogithub.ListOptions{PerPage: perPage},
	}
	for {
		milestones, resp, err := g.client.Issues.ListMilestones(ctx, g.owner, g.repo, opts)
		if err != nil {
			return nil, fmt.Errorf("list milestones: %w", err)
		}
		for _, m := range milestones {
			result = append(result, mapMilestone(m))
		}
		if resp.NextPage == 0 {
			break
		}
		opts.ListOptions.Page = resp.NextPage
	}
	return result, nil
}

// CreateMilestone creates a milestone.
func (g *GitHubProvider) CreateMilestone(ctx context.Context, m hosting.Milestone) (*hosting.Milestone, error) {
	req, err := toGitHubMilestone(m)
	if err != nil {
		return nil, err
	}
	created, resp, err := g.client.Issues.CreateMilestone(ctx, g.owner, g.repo, req)
	if err != nil {
		return nil, fmt.Errorf("create milestone %q: %w", m.Title, classify(resp, err))
	}
	mapped := mapMilestone(created)
	return &mapped, nil
}

// UpdateMilestone replaces milestone number.
func (g *GitHubProvider) UpdateMilestone(ctx context.Context, number int, m hosting.Milestone) (*hosting.Milestone, error) {
	req, err := toGitHubMilestone(m)
	if err != nil {
		return nil, err
	}
	updated, resp, err := g.client.Issues.EditMilestone(ctx, g.owner, g.repo, number, req)
	if err != nil {
		return nil, fmt.Errorf("update milestone %d: %w", number, classify(resp, err))
	}
	mapped := mapMilestone(updated)
	return &mapped, nil
}

// ListIssues lists every issue, excluding pull requests, oldest first.
func (g *GitHubProvider) ListIssues(ctx context.Context) ([]hosting.Issue, error) {
	var result []hosting.Issue
	opts := &gogithub.IssueListByRepoOptions{
		State:       "all",
		Sort:        "created",
		Direction:   "asc",
		ListOptions: gogithub.ListOptions{PerPage: perPage},
	}
	for {
		issues, resp, err := g.client.Issues.ListByRepo(ctx, g.owner, g.repo, opts)
		if err != nil {
			return nil, fmt.Errorf("list issues: %w", err)
		}
		for _, i := range issues {
			if i.IsPullRequest() {
				continue
			}
			result = append(result, mapIssue(i))
		}
		if resp.NextPage == 0 {
			break
		}
		opts.ListOptions.Page = resp.NextPage
	}
	return result, nil
}

// CreateIssue creates an issue.
func (g *GitHubProvider) CreateIssue(ctx context.Context, opts hosting.IssueCreateOptions) (*hosting.Issue, error) {
	req := &gogithub.IssueRequest{
		Title: gogithub.Ptr(opts.Title),
		Body:  gogithub.Ptr(opts.Body),
	}
	if len(opts.Labels) > 0 {
		req.Labels = &opts.Labels
	}
	if opts.Milestone > 0 {
		req.Milestone = gogithub.Ptr(opts.Milestone)
	}
	created, resp, err := g.client.Issues.Create(ctx, g.owner, g.repo, req)
	if err != nil {
		return nil, fmt.Errorf("create issue %q: %w", opts.Title, classify(resp, err))
	}
	mapped := mapIssue(created)
	return &mapped, nil
}

// CloseIssue closes issue number.
func (g *GitHubProvider) CloseIssue(ctx context.Context, number int) error {
	_, resp, err := g.client.Issues.Edit(ctx, g.owner, g.repo, number, &gogithub.IssueRequest{
		State: gogithub.Ptr("closed"),
	})
	if err != nil {
		return fmt.Errorf("close issue %d: %w", number, classify(resp, err))
	}
	return nil
}

// ListIssueComments lists the comments of issue number.
func (g *GitHubProvider) ListIssueComments(ctx context.Context, number int) ([]hosting.Comment, error) {
	var result []hosting.Comment
	opts := &gogithub.IssueListCommentsOptions{
		ListOptions: gogithub.ListOptions{PerPage: perPage},
	}
	for {
		comments, resp, err := g.client.Issues.ListComments(ctx, g.owner, g.repo, number, opts)
		if err != nil {
			return nil, fmt.Errorf("list issue %d comments: %w", number, classify(resp, err))
		}
		for _, c := range comments {
			result = append(result, mapIssueComment(number, c))
		}
		if resp.NextPage == 0 {
			break
		}
		opts.ListOptions.Page = resp.NextPage
	}
	return result, nil
}

// CreateIssueComment adds a comment to issue number.
func (g *GitHubProvider) CreateIssueComment(ctx context.Context, number int, body string) (*hosting.Comment, error) {
	created, resp, err := g.client.Issues.CreateComment(ctx, g.owner, g.repo, number, &gogithub.IssueComment{
		Body: gogithub.Ptr(body),
	})
	if err != nil {
		return nil, fmt.Errorf("create comment on issue %d: %w", number, classify(resp, err))
	}
	mapped := mapIssueComment(number, created)
	return &mapped, nil
}

// ListReleases lists every release.
func (g *GitHubProvider) ListReleases(ctx context.Context) ([]hosting.Release, error) {
	var result []hosting.Release
	opts := &gogithub.ListOptions{PerPage: perPage}
	for {
		releases, resp, err := g.client.Repositories.ListReleases(ctx, g.owner, g.repo, opts)
		if err != nil {
			return nil, fmt.Errorf("list releases: %w", err)
		}
		for _, r := range releases {
			result = append(result, mapRelease(r))
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return result, nil
}

// CreateRelease creates a release for an existing tag.
func (g *GitHubProvider) CreateRelease(ctx context.Context, r hosting.Release) (*hosting.Release, error) {
	created, resp, err := g.client.Repositories.CreateRelease(ctx, g.owner, g.repo, toGitHubRelease(r))
	if err != nil {
		return nil, fmt.Errorf("create release %q: %w", r.TagName, classify(resp, err))
	}
	mapped := mapRelease(created)
	return &mapped, nil
}

// UpdateRelease replaces release id.
func (g *GitHubProvider) UpdateRelease(ctx context.Context, id int64, r hosting.Release) (*hosting.Release, error) {
	updated, resp, err := g.client.Repositories.EditRelease(ctx, g.owner, g.repo, id, toGitHubRelease(r))
	if err != nil {
		return nil, fmt.Errorf("update release %d: %w", id, classify(resp, err))
	}
	mapped := mapRelease(updated)
	return &mapped, nil
}

// ListPRs lists every pull request, oldest first.
func (g *GitHubProvider) ListPRs(ctx context.Context) ([]hosting.PR, error) {
	var result []hosting.PR
	opts := &gogithub.PullRequestListOptions{
		State:       "all",
		Sort:        "created",
		Direction:   "asc",
		ListOptions: gogithub.ListOptions{PerPage: perPage},
	}
	for {
		prs, resp, err := g.client.PullRequests.List(ctx, g.owner, g.repo, opts)
		if err != nil {
			return nil, fmt.Errorf("list PRs: %w", err)
		}
		for _, pr := range prs {
			result = append(result, *mapPR(pr))
		}
		if resp.NextPage == 0 {
			break
		}
		opts.ListOptions.Page = resp.NextPage
	}
	return result, nil
}

// CreatePR creates a pull request.
func (g *GitHubProvider) CreatePR(ctx context.Context, opts hosting.PRCreateOptions) (*hosting.PR, error) {
	newPR := &gogithub.NewPullRequest{
		Title: gogithub.Ptr(opts.Title),
		Body:  gogithub.Ptr(opts.Body),
		Head:  gogithub.Ptr(opts.Head),
		Base:  gogithub.Ptr(opts.Base),
		Draft: gogithub.Ptr(opts.Draft),
	}

	created, resp, err := g.client.PullRequests.Create(ctx, g.owner, g.repo, newPR)
	if err != nil {
		return nil, fmt.Errorf("create PR: %w", classify(resp, err))
	}

	prNumber := created.GetNumber()

	// Labels and milestone live on the issue side of a PR (best-effort).
	if len(opts.Labels) > 0 || opts.Milestone > 0 {
		req := &gogithub.IssueRequest{}
		if len(opts.Labels) > 0 {
			req.Labels = &opts.Labels
		}
		if opts.Milestone > 0 {
			req.Milestone = gogithub.Ptr(opts.Milestone)
		}
		if _, _, editErr := g.client.Issues.Edit(ctx, g.owner, g.repo, prNumber, req); editErr != nil {
			slog.Warn("failed to set labels or milestone on PR",
				"pr", prNumber,
				"labels", opts.Labels,
				"milestone", opts.Milestone,
				"error", editErr)
		}
	}

	mapped := mapPR(created)
	mapped.Labels = opts.Labels
	mapped.Milestone = opts.Milestone
	return mapped, nil
}

// ClosePR closes pull request number without merging.
func (g *GitHubProvider) ClosePR(ctx context.Context, number int) error {
	_, resp, err := g.client.PullRequests.Edit(ctx, g.owner, g.repo, number, &gogithub.PullRequest{
		State: gogithub.Ptr("closed"),
	})
	if err != nil {
		return fmt.Errorf("close PR %d: %w", number, classify(resp, err))
	}
	return nil
}

// ListPRComments lists review comments on a PR.
func (g *GitHubProvider) ListPRComments(ctx context.Context, number int) ([]hosting.PRComment, error) {
	var allComments []*gogithub.PullRequestComment
	opts := &gogithub.PullRequestListCommentsOptions{
		ListOptions: gogithub.ListOptions{PerPage: perPage},
	}

	for {
		comments, resp, err := g.client.PullRequests.ListComments(ctx, g.owner, g.repo, number, opts)
		if err != nil {
			return nil, fmt.Errorf("list PR %d comments: %w", number, classify(resp, err))
		}
		allComments = append(allComments, comments...)
		if resp.NextPage == 0 {
			break
		}
		opts.ListOptions.Page = resp.NextPage
	}

	result := make([]hosting.PRComment, 0, len(allComments))
	for _, c := range allComments {
		result = append(result, mapPRComment(number, c))
	}
	return result, nil
}

// CreatePRComment creates a comment on a PR. Inline comments need a path
// and a commit that still exists in the target repository.
func (g *GitHubProvider) CreatePRComment(ctx context.Context, number int, comment hosting.PRCommentCreate) (*hosting.PRComment, error) {
	if comment.Path != "" && comment.CommitID != "" {
		return g.createInlineComment(ctx, number, comment)
	}
	return g.createGeneralComment(ctx, number, comment.Body)
}

func (g *GitHubProvider) createInlineComment(ctx context.Context, number int, comment hosting.PRCommentCreate) (*hosting.PRComment, error) {
	side := "RIGHT"
	if comment.Side != "" {
		side = comment.Side
	}

	reviewComment := &gogithub.PullRequestComment{
		Body:     gogithub.Ptr(comment.Body),
		Path:     gogithub.Ptr(comment.Path),
		Line:     gogithub.Ptr(comment.Line),
		Side:     gogithub.Ptr(side),
		CommitID: gogithub.Ptr(comment.CommitID),
	}

	created, resp, err := g.client.PullRequests.CreateComment(ctx, g.owner, g.repo, number, reviewComment)
	if err != nil {
		// The anchor may not survive a restore; keep the text as a general comment.
		slog.Warn("inline comment rejected, posting as general comment",
			"pr", number, "path", comment.Path, "error", classify(resp, err))
		return g.createGeneralComment(ctx, number, comment.Body)
	}

	mapped := mapPRComment(number, created)
	return &mapped, nil
}

func (g *GitHubProvider) createGeneralComment(ctx context.Context, number int, body string) (*hosting.PRComment, error) {
	issueComment := &gogithub.IssueComment{
		Body: gogithub.Ptr(body),
	}

	created, resp, err := g.client.Issues.CreateComment(ctx, g.owner, g.repo, number, issueComment)
	if err != nil {
		return nil, fmt.Errorf("create comment on PR %d: %w", number, classify(resp, err))
	}

	return &hosting.PRComment{
		ID:        created.GetID(),
		PRNumber:  number,
		Body:      created.GetBody(),
		Author:    created.GetUser().GetLogin(),
		CreatedAt: formatTime(created.GetCreatedAt().Time),
	}, nil
}

// classify maps well-known status codes onto hosting errors.
func classify(resp *gogithub.Response, err error) error {
	if resp == nil {
		return err
	}
	switch resp.StatusCode {
	case http.StatusNotFound:
		return errors.Join(hosting.ErrNotFound, err)
	case http.StatusUnauthorized, http.StatusForbidden:
		return errors.Join(hosting.ErrAuthFailed, err)
	case http.StatusUnprocessableEntity:
		if strings.Contains(err.Error(), "already_exists") {
			return errors.Join(hosting.ErrAlreadyExists, err)
		}
	}
	return err
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
