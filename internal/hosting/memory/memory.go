// Package memory provides an in-process hosting.Provider. Projects live in a
// package-level table keyed by "owner/repo" so a save and a restore in the
// same process can address source and target by name.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/randalmurphal/repovault/internal/hosting"
)

// Compile-time interface check.
var _ hosting.Provider = (*Project)(nil)

func init() {
	hosting.RegisterProvider(hosting.ProviderMemory, newProvider)
}

var (
	projectsMu sync.Mutex
	projects   = map[string]*Project{}
)

func newProvider(remote string, _ hosting.Config) (hosting.Provider, error) {
	owner, repo, err := hosting.OwnerRepoFrom(remote)
	if err != nil {
		return nil, err
	}
	return Lookup(owner, repo), nil
}

// Lookup returns the shared project owner/repo, creating it when absent.
func Lookup(owner, repo string) *Project {
	projectsMu.Lock()
	defer projectsMu.Unlock()
	key := owner + "/" + repo
	if p, ok := projects[key]; ok {
		return p
	}
	p := New(owner, repo)
	projects[key] = p
	return p
}

// Project is an in-memory hosted repository. Issues and pull requests share
// one number sequence, as they do on GitHub.
type Project struct {
	owner, repo string

	mu            sync.Mutex
	cloneURL      string
	labels        []hosting.Label
	milestones    []hosting.Milestone
	issues        []hosting.Issue
	comments      map[int][]hosting.Comment
	releases      []hosting.Release
	prs           []hosting.PR
	prComments    map[int][]hosting.PRComment
	nextNumber    int
	nextMilestone int
	nextID        int64
	failures      map[string]error
	calls         map[string]int
	now           func() time.Time
}

// New returns an empty, unshared project.
func New(owner, repo string) *Project {
	return &Project{
		owner:         owner,
		repo:          repo,
		cloneURL:      hosting.MemoryScheme + owner + "/" + repo,
		comments:      make(map[int][]hosting.Comment),
		prComments:    make(map[int][]hosting.PRComment),
		nextNumber:    1,
		nextMilestone: 1,
		nextID:        1,
		failures:      make(map[string]error),
		calls:         make(map[string]int),
		now:           time.Now,
	}
}

// SetCloneURL points the vcs service at a real repository, such as a local
// bare repository in tests.
func (p *Project) SetCloneURL(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cloneURL = url
}

// FailOn makes every later call to method return err. A nil err clears it.
func (p *Project) FailOn(method string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err == nil {
		delete(p.failures, method)
		return
	}
	p.failures[method] = err
}

// Calls reports how many times method has been invoked.
func (p *Project) Calls(method string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[method]
}

// enter records a call and returns its injected failure. Callers hold p.mu.
func (p *Project) enter(ctx context.Context, method string) error {
	p.calls[method]++
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.failures[method]; err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	return nil
}

func (p *Project) stamp() string {
	return p.now().UTC().Format(time.RFC3339)
}

// Name returns the provider type.
func (p *Project) Name() hosting.ProviderType { return hosting.ProviderMemory }

// OwnerRepo returns the owner and repository name.
func (p *Project) OwnerRepo() (string, string) { return p.owner, p.repo }

// CloneURL returns the repository address for the vcs service.
func (p *Project) CloneURL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cloneURL
}

// GitAuth returns empty credentials.
func (p *Project) GitAuth() hosting.GitAuth { return hosting.GitAuth{} }

// CheckAuth always succeeds unless a failure is injected.
func (p *Project) CheckAuth(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enter(ctx, "CheckAuth")
}

// ListLabels returns labels sorted by name.
func (p *Project) ListLabels(ctx context.Context) ([]hosting.Label, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter(ctx, "ListLabels"); err != nil {
		return nil, err
	}
	out := append([]hosting.Label(nil), p.labels...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// CreateLabel adds a label; names are unique.
func (p *Project) CreateLabel(ctx context.Context, label hosting.Label) (*hosting.Label, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter(ctx, "CreateLabel"); err != nil {
		return nil, err
	}
	for _, l := range p.labels {
		if l.Name == label.Name {
			return nil, fmt.Errorf("create label %q: %w", label.Name, hosting.ErrAlreadyExists)
		}
	}
	p.labels = append(p.labels, label)
	return &label, nil
}

// UpdateLabel replaces the label called name.
func (p *Project) UpdateLabel(ctx context.Context, name string, label hosting.Label) (*hosting.Label, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter(ctx, "UpdateLabel"); err != nil {
		return nil, err
	}
	for i, l := range p.labels {
		if l.Name == name {
			p.labels[i] = label
			return &label, nil
		}
	}
	return nil, fmt.Errorf("update label %q: %w", name, hosting.ErrNotFound)
}

// ListMilestones returns milestones in number order.
func (p *Project) ListMilestones(ctx context.Context) ([]hosting.Milestone, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter(ctx, "ListMilestones"); err != nil {
		return nil, err
	}
	return append([]hosting.Milestone(nil), p.milestones...), nil
}

// CreateMilestone adds a milestone with the next number; titles are unique.
func (p *Project) CreateMilestone(ctx context.Context, m hosting.Milestone) (*hosting.Milestone, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter(ctx, "CreateMilestone"); err != nil {
		return nil, err
	}
	for _, existing := range p.milestones {
		if existing.Title == m.Title {
			return nil, fmt.Errorf("create milestone %q: %w", m.Title, hosting.ErrAlreadyExists)
		}
	}
	m.Number = p.nextMilestone
	p.nextMilestone++
	if m.State == "" {
		m.State = "open"
	}
	p.milestones = append(p.milestones, m)
	return &m, nil
}

// UpdateMilestone replaces milestone number, keeping its number.
func (p *Project) UpdateMilestone(ctx context.Context, number int, m hosting.Milestone) (*hosting.Milestone, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter(ctx, "UpdateMilestone"); err != nil {
		return nil, err
	}
	for i, existing := range p.milestones {
		if existing.Number == number {
			m.Number = number
			p.milestones[i] = m
			return &m, nil
		}
	}
	return nil, fmt.Errorf("update milestone %d: %w", number, hosting.ErrNotFound)
}

// ListIssues returns issues in number order.
func (p *Project) ListIssues(ctx context.Context) ([]hosting.Issue, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter(ctx, "ListIssues"); err != nil {
		return nil, err
	}
	return append([]hosting.Issue(nil), p.issues...), nil
}

// CreateIssue opens an issue with the next number.
func (p *Project) CreateIssue(ctx context.Context, opts hosting.IssueCreateOptions) (*hosting.Issue, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter(ctx, "CreateIssue"); err != nil {
		return nil, err
	}
	issue := hosting.Issue{
		Number:    p.nextNumber,
		Title:     opts.Title,
		Body:      opts.Body,
		State:     "open",
		Labels:    append([]string(nil), opts.Labels...),
		Milestone: opts.Milestone,
		Author:    "repovault",
		CreatedAt: p.stamp(),
	}
	p.nextNumber++
	p.issues = append(p.issues, issue)
	return &issue, nil
}

// CloseIssue closes issue number.
func (p *Project) CloseIssue(ctx context.Context, number int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter(ctx, "CloseIssue"); err != nil {
		return err
	}
	for i := range p.issues {
		if p.issues[i].Number == number {
			p.issues[i].State = "closed"
			p.issues[i].ClosedAt = p.stamp()
			return nil
		}
	}
	return fmt.Errorf("close issue %d: %w", number, hosting.ErrNotFound)
}

// ListIssueComments returns the comments of issue number.
func (p *Project) ListIssueComments(ctx context.Context, number int) ([]hosting.Comment, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter(ctx, "ListIssueComments"); err != nil {
		return nil, err
	}
	if !p.hasIssue(number) {
		return nil, fmt.Errorf("issue %d: %w", number, hosting.ErrNotFound)
	}
	return append([]hosting.Comment(nil), p.comments[number]...), nil
}

// CreateIssueComment adds a comment to issue number.
func (p *Project) CreateIssueComment(ctx context.Context, number int, body string) (*hosting.Comment, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter(ctx, "CreateIssueComment"); err != nil {
		return nil, err
	}
	if !p.hasIssue(number) {
		return nil, fmt.Errorf("issue %d: %w", number, hosting.ErrNotFound)
	}
	c := hosting.Comment{
		ID:          p.nextID,
		IssueNumber: number,
		Body:        body,
		Author:      "repovault",
		CreatedAt:   p.stamp(),
	}
	p.nextID++
	p.comments[number] = append(p.comments[number], c)
	return &c, nil
}

func (p *Project) hasIssue(number int) bool {
	for _, i := range p.issues {
		if i.Number == number {
			return true
		}
	}
	return false
}

// ListReleases returns releases in creation order.
func (p *Project) ListReleases(ctx context.Context) ([]hosting.Release, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter(ctx, "ListReleases"); err != nil {
		return nil, err
	}
	return append([]hosting.Release(nil), p.releases...), nil
}

// CreateRelease adds a release; tags are unique.
func (p *Project) CreateRelease(ctx context.Context, r hosting.Release) (*hosting.Release, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter(ctx, "CreateRelease"); err != nil {
		return nil, err
	}
	for _, existing := range p.releases {
		if existing.TagName == r.TagName {
			return nil, fmt.Errorf("create release %q: %w", r.TagName, hosting.ErrAlreadyExists)
		}
	}
	r.ID = p.nextID
	p.nextID++
	if r.CreatedAt == "" {
		r.CreatedAt = p.stamp()
	}
	p.releases = append(p.releases, r)
	return &r, nil
}

// UpdateRelease replaces release id.
func (p *Project) UpdateRelease(ctx context.Context, id int64, r hosting.Release) (*hosting.Release, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter(ctx, "UpdateRelease"); err != nil {
		return nil, err
	}
	for i, existing := range p.releases {
		if existing.ID == id {
			r.ID = id
			p.releases[i] = r
			return &r, nil
		}
	}
	return nil, fmt.Errorf("update release %d: %w", id, hosting.ErrNotFound)
}

// ListPRs returns pull requests in number order.
func (p *Project) ListPRs(ctx context.Context) ([]hosting.PR, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter(ctx, "ListPRs"); err != nil {
		return nil, err
	}
	return append([]hosting.PR(nil), p.prs...), nil
}

// CreatePR opens a pull request with the next number.
func (p *Project) CreatePR(ctx context.Context, opts hosting.PRCreateOptions) (*hosting.PR, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter(ctx, "CreatePR"); err != nil {
		return nil, err
	}
	pr := hosting.PR{
		Number:     p.nextNumber,
		Title:      opts.Title,
		Body:       opts.Body,
		State:      "open",
		HeadBranch: opts.Head,
		BaseBranch: opts.Base,
		Draft:      opts.Draft,
		Labels:     append([]string(nil), opts.Labels...),
		Milestone:  opts.Milestone,
		Author:     "repovault",
		CreatedAt:  p.stamp(),
	}
	p.nextNumber++
	p.prs = append(p.prs, pr)
	return &pr, nil
}

// ClosePR closes pull request number.
func (p *Project) ClosePR(ctx context.Context, number int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter(ctx, "ClosePR"); err != nil {
		return err
	}
	for i := range p.prs {
		if p.prs[i].Number == number {
			p.prs[i].State = "closed"
			return nil
		}
	}
	return fmt.Errorf("close PR %d: %w", number, hosting.ErrNotFound)
}

// ListPRComments returns the review comments of pull request number.
func (p *Project) ListPRComments(ctx context.Context, number int) ([]hosting.PRComment, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter(ctx, "ListPRComments"); err != nil {
		return nil, err
	}
	if !p.hasPR(number) {
		return nil, fmt.Errorf("PR %d: %w", number, hosting.ErrNotFound)
	}
	return append([]hosting.PRComment(nil), p.prComments[number]...), nil
}

// CreatePRComment adds a review comment to pull request number.
func (p *Project) CreatePRComment(ctx context.Context, number int, comment hosting.PRCommentCreate) (*hosting.PRComment, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter(ctx, "CreatePRComment"); err != nil {
		return nil, err
	}
	if !p.hasPR(number) {
		return nil, fmt.Errorf("PR %d: %w", number, hosting.ErrNotFound)
	}
	c := hosting.PRComment{
		ID:        p.nextID,
		PRNumber:  number,
		Body:      comment.Body,
		Path:      comment.Path,
		Line:      comment.Line,
		Side:      comment.Side,
		CommitID:  comment.CommitID,
		Author:    "repovault",
		CreatedAt: p.stamp(),
	}
	p.nextID++
	p.prComments[number] = append(p.prComments[number], c)
	return &c, nil
}

func (p *Project) hasPR(number int) bool {
	for _, pr := range p.prs {
		if pr.Number == number {
			return true
		}
	}
	return false
}

// Seed helpers bypass numbering so tests can build a source project that
// looks like a real one, gaps included.

// SeedIssue stores issue as-is and advances the number sequence past it.
func (p *Project) SeedIssue(issue hosting.Issue, comments ...hosting.Comment) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.issues = append(p.issues, issue)
	sort.Slice(p.issues, func(i, j int) bool { return p.issues[i].Number < p.issues[j].Number })
	if issue.Number >= p.nextNumber {
		p.nextNumber = issue.Number + 1
	}
	for _, c := range comments {
		c.IssueNumber = issue.Number
		if c.ID == 0 {
			c.ID = p.nextID
			p.nextID++
		}
		p.comments[issue.Number] = append(p.comments[issue.Number], c)
	}
}

// SeedPR stores pr as-is and advances the number sequence past it.
func (p *Project) SeedPR(pr hosting.PR, comments ...hosting.PRComment) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prs = append(p.prs, pr)
	sort.Slice(p.prs, func(i, j int) bool { return p.prs[i].Number < p.prs[j].Number })
	if pr.Number >= p.nextNumber {
		p.nextNumber = pr.Number + 1
	}
	for _, c := range comments {
		c.PRNumber = pr.Number
		if c.ID == 0 {
			c.ID = p.nextID
			p.nextID++
		}
		p.prComments[pr.Number] = append(p.prComments[pr.Number], c)
	}
}

// SeedMilestone stores m as-is and advances the milestone sequence past it.
func (p *Project) SeedMilestone(m hosting.Milestone) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.milestones = append(p.milestones, m)
	if m.Number >= p.nextMilestone {
		p.nextMilestone = m.Number + 1
	}
}
