package catalog

import (
	"context"
	"fmt"

	"github.com/randalmurphal/repovault/internal/entity"
	"github.com/randalmurphal/repovault/internal/hosting"
	"github.com/randalmurphal/repovault/internal/selection"
)

func prCommentsEntity() *entity.Definition {
	return &entity.Definition{
		EntityName: PRComments,
		DependsOn:  []string{PullRequests},
		Owner:      PullRequests,
		Type:       selection.TypeBoolean,
		Default:    "true",
		Needs: map[entity.Operation][]entity.Service{
			entity.OpSave:    apiStore,
			entity.OpRestore: apiStore,
		},
		Save:    savePRComments,
		Restore: restorePRComments,
	}
}

func savePRComments(sc *entity.StrategyContext) (entity.Strategy, error) {
	return run(sc, func(ctx context.Context) (entity.Outcome, error) {
		api := sc.API()
		parents, err := parentNumbers(ctx, sc, PullRequests, func(ctx context.Context) ([]int, error) {
			prs, err := api.ListPRs(ctx)
			if err != nil {
				return nil, fmt.Errorf("list pull requests: %w", err)
			}
			nums := make([]int, len(prs))
			for i, pr := range prs {
				nums[i] = pr.Number
			}
			return nums, nil
		})
		if err != nil {
			return entity.Outcome{}, err
		}

		comments, err := fanOut(ctx, parents, func(ctx context.Context, number int) ([]hosting.PRComment, error) {
			cs, err := api.ListPRComments(ctx, number)
			if err != nil {
				return nil, fmt.Errorf("list comments of pull request #%d: %w", number, err)
			}
			return cs, nil
		})
		if err != nil {
			return entity.Outcome{}, err
		}
		if comments == nil {
			comments = []hosting.PRComment{}
		}
		if err := saveDocument(sc, comments, len(comments)); err != nil {
			return entity.Outcome{}, err
		}
		return entity.Outcome{Items: len(comments)}, nil
	})
}

func restorePRComments(sc *entity.StrategyContext) (entity.Strategy, error) {
	return run(sc, func(ctx context.Context) (entity.Outcome, error) {
		var out entity.Outcome
		var saved []hosting.PRComment
		if ok, err := loadDocument(sc, PRComments, &saved); !ok || err != nil {
			return out, err
		}
		numbers, err := sc.Store().ReadMap(PullRequests)
		if err != nil {
			return out, err
		}

		en := sc.Enablement()
		api := sc.API()
		for _, c := range saved {
			target, ok := numbers[c.PRNumber]
			if !ok || !en.AllowsParent(c.PRNumber) {
				out.Skipped++
				continue
			}
			_, err := api.CreatePRComment(ctx, target, hosting.PRCommentCreate{
				Body:     attributed(c.Author, c.CreatedAt, c.Body),
				Path:     c.Path,
				Line:     c.Line,
				Side:     c.Side,
				CommitID: c.CommitID,
			})
			if err != nil {
				return out, fmt.Errorf("create comment on pull request #%d: %w", target, err)
			}
			out.Items++
		}
		return out, nil
	})
}
