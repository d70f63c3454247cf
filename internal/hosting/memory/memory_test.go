package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/repovault/internal/hosting"
)

func TestNewProvider_SharesProjects(t *testing.T) {
	t.Parallel()

	a, err := hosting.NewProvider(context.Background(), "", hosting.Config{Repository: "memory://shared-test/a"})
	require.NoError(t, err)
	b, err := hosting.NewProvider(context.Background(), "", hosting.Config{Provider: "memory", Repository: "shared-test/a"})
	require.NoError(t, err)

	assert.Same(t, a, b)
	assert.Equal(t, hosting.ProviderMemory, a.Name())
	owner, repo := a.OwnerRepo()
	assert.Equal(t, "shared-test", owner)
	assert.Equal(t, "a", repo)
}

func TestProject_IssuesAndPRsShareNumbers(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	p := New("o", "r")

	issue, err := p.CreateIssue(ctx, hosting.IssueCreateOptions{Title: "one"})
	require.NoError(t, err)
	pr, err := p.CreatePR(ctx, hosting.PRCreateOptions{Title: "two", Head: "f", Base: "main"})
	require.NoError(t, err)

	assert.Equal(t, 1, issue.Number)
	assert.Equal(t, 2, pr.Number)

	p.SeedIssue(hosting.Issue{Number: 10, Title: "seeded"})
	next, err := p.CreateIssue(ctx, hosting.IssueCreateOptions{Title: "after"})
	require.NoError(t, err)
	assert.Equal(t, 11, next.Number)
}

func TestProject_UniqueNames(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	p := New("o", "r")

	_, err := p.CreateLabel(ctx, hosting.Label{Name: "bug"})
	require.NoError(t, err)
	_, err = p.CreateLabel(ctx, hosting.Label{Name: "bug"})
	assert.ErrorIs(t, err, hosting.ErrAlreadyExists)

	_, err = p.CreateRelease(ctx, hosting.Release{TagName: "v1"})
	require.NoError(t, err)
	_, err = p.CreateRelease(ctx, hosting.Release{TagName: "v1"})
	assert.ErrorIs(t, err, hosting.ErrAlreadyExists)

	_, err = p.UpdateLabel(ctx, "missing", hosting.Label{Name: "missing"})
	assert.ErrorIs(t, err, hosting.ErrNotFound)
}

func TestProject_CommentsRequireParent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	p := New("o", "r")

	_, err := p.CreateIssueComment(ctx, 1, "hi")
	assert.ErrorIs(t, err, hosting.ErrNotFound)

	p.SeedIssue(hosting.Issue{Number: 1}, hosting.Comment{Body: "first"})
	comments, err := p.ListIssueComments(ctx, 1)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, 1, comments[0].IssueNumber)
	assert.NotZero(t, comments[0].ID)
}

func TestProject_FailOn(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	p := New("o", "r")
	boom := errors.New("boom")

	p.FailOn("ListLabels", boom)
	_, err := p.ListLabels(ctx)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, p.Calls("ListLabels"))

	p.FailOn("ListLabels", nil)
	_, err = p.ListLabels(ctx)
	assert.NoError(t, err)
}

func TestProject_HonorsCancellation(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New("o", "r").ListIssues(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
