package catalog

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"

	"github.com/randalmurphal/repovault/internal/entity"
	"github.com/randalmurphal/repovault/internal/hosting"
	"github.com/randalmurphal/repovault/internal/selection"
)

func commentsEntity() *entity.Definition {
	return &entity.Definition{
		EntityName: Comments,
		DependsOn:  []string{Issues},
		Owner:      Issues,
		Type:       selection.TypeBoolean,
		Default:    "true",
		Needs: map[entity.Operation][]entity.Service{
			entity.OpSave:    apiStore,
			entity.OpRestore: apiStore,
		},
		Save:    saveComments,
		Restore: restoreComments,
	}
}

// parentNumbers returns the numbers of the parent entity's items that the
// enablement's parent scope allows. The saved parent document is read when
// present, otherwise list is called.
func parentNumbers(ctx context.Context, sc *entity.StrategyContext, parent string, list func(context.Context) ([]int, error)) ([]int, error) {
	en := sc.Enablement()
	var all []int
	if data, err := os.ReadFile(sc.Store().DataPath(parent)); err == nil {
		for _, n := range gjson.GetBytes(data, "#.number").Array() {
			all = append(all, int(n.Int()))
		}
	} else {
		if all, err = list(ctx); err != nil {
			return nil, err
		}
	}

	var out []int
	for _, n := range all {
		if en.AllowsParent(n) {
			out = append(out, n)
		}
	}
	sort.Ints(out)
	return out, nil
}

// fanOut calls fetch for every parent with bounded concurrency and returns
// the results concatenated in parent order.
func fanOut[T any](ctx context.Context, parents []int, fetch func(context.Context, int) ([]T, error)) ([]T, error) {
	results := make([][]T, len(parents))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fanOutLimit)
	for i, parent := range parents {
		g.Go(func() error {
			items, err := fetch(gctx, parent)
			if err != nil {
				return err
			}
			results[i] = items
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	var out []T
	for _, r := range results {
		out = append(out, r...)
	}
	return out, nil
}

func saveComments(sc *entity.StrategyContext) (entity.Strategy, error) {
	return run(sc, func(ctx context.Context) (entity.Outcome, error) {
		api := sc.API()
		parents, err := parentNumbers(ctx, sc, Issues, func(ctx context.Context) ([]int, error) {
			issues, err := api.ListIssues(ctx)
			if err != nil {
				return nil, fmt.Errorf("list issues: %w", err)
			}
			nums := make([]int, len(issues))
			for i, issue := range issues {
				nums[i] = issue.Number
			}
			return nums, nil
		})
		if err != nil {
			return entity.Outcome{}, err
		}

		comments, err := fanOut(ctx, parents, func(ctx context.Context, number int) ([]hosting.Comment, error) {
			cs, err := api.ListIssueComments(ctx, number)
			if err != nil {
				return nil, fmt.Errorf("list comments of issue #%d: %w", number, err)
			}
			return cs, nil
		})
		if err != nil {
			return entity.Outcome{}, err
		}
		if comments == nil {
			comments = []hosting.Comment{}
		}
		if err := saveDocument(sc, comments, len(comments)); err != nil {
			return entity.Outcome{}, err
		}
		return entity.Outcome{Items: len(comments)}, nil
	})
}

// restoreComments attaches comments to the issues restored in this target,
// found through the issue number map. Comments whose issue was not restored
// are skipped.
func restoreComments(sc *entity.StrategyContext) (entity.Strategy, error) {
	return run(sc, func(ctx context.Context) (entity.Outcome, error) {
		var out entity.Outcome
		var saved []hosting.Comment
		if ok, err := loadDocument(sc, Comments, &saved); !ok || err != nil {
			return out, err
		}
		numbers, err := sc.Store().ReadMap(Issues)
		if err != nil {
			return out, err
		}

		en := sc.Enablement()
		api := sc.API()
		logger := sc.Logger()
		for _, c := range saved {
			target, ok := numbers[c.IssueNumber]
			if !ok || !en.AllowsParent(c.IssueNumber) {
				logger.Debug("issue not restored, skipping comment", "issue", c.IssueNumber, "comment", c.ID)
				out.Skipped++
				continue
			}
			if _, err := api.CreateIssueComment(ctx, target, attributed(c.Author, c.CreatedAt, c.Body)); err != nil {
				return out, fmt.Errorf("create comment on issue #%d: %w", target, err)
			}
			out.Items++
		}
		return out, nil
	})
}
