package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/randalmurphal/repovault/internal/entity"
	"github.com/randalmurphal/repovault/internal/hosting"
	"github.com/randalmurphal/repovault/internal/selection"
	"github.com/randalmurphal/repovault/internal/storage"
)

func pullRequestsEntity() *entity.Definition {
	return &entity.Definition{
		EntityName: PullRequests,
		DependsOn:  []string{Labels, Milestones, GitRepository},
		Type:       selection.TypeNumeric,
		Default:    "true",
		Needs: map[entity.Operation][]entity.Service{
			entity.OpSave:    apiStore,
			entity.OpRestore: apiStore,
		},
		Save:    savePullRequests,
		Restore: restorePullRequests,
	}
}

func prNumber(pr hosting.PR) int { return pr.Number }

func savePullRequests(sc *entity.StrategyContext) (entity.Strategy, error) {
	return run(sc, func(ctx context.Context) (entity.Outcome, error) {
		all, err := sc.API().ListPRs(ctx)
		if err != nil {
			return entity.Outcome{}, fmt.Errorf("list pull requests: %w", err)
		}
		prs := selected(sc.Enablement(), all, prNumber)
		if err := saveDocument(sc, prs, len(prs)); err != nil {
			return entity.Outcome{}, err
		}
		return entity.Outcome{Items: len(prs), Skipped: len(all) - len(prs)}, nil
	})
}

// restorePullRequests reopens the selected pull requests against the branches
// pushed by git_repository. A pull request whose branches no longer exist
// cannot be created; it is skipped with a warning. The entity fails only when
// none could be created.
func restorePullRequests(sc *entity.StrategyContext) (entity.Strategy, error) {
	return run(sc, func(ctx context.Context) (entity.Outcome, error) {
		var out entity.Outcome
		var saved []hosting.PR
		if ok, err := loadDocument(sc, PullRequests, &saved); !ok || err != nil {
			return out, err
		}
		store := sc.Store()
		milestones, err := store.ReadMap(Milestones)
		if err != nil {
			return out, err
		}

		prs := selected(sc.Enablement(), saved, prNumber)
		out.Skipped = len(saved) - len(prs)

		numbers := storage.NumberMap{}
		defer func() {
			if err := store.WriteMap(PullRequests, numbers); err != nil {
				sc.Logger().Warn("write pull request map", "error", err)
			}
		}()

		api := sc.API()
		logger := sc.Logger()
		var errs []error
		for _, pr := range prs {
			created, err := api.CreatePR(ctx, hosting.PRCreateOptions{
				Title:     pr.Title,
				Body:      attributed(pr.Author, pr.CreatedAt, pr.Body),
				Head:      pr.HeadBranch,
				Base:      pr.BaseBranch,
				Draft:     pr.Draft,
				Labels:    pr.Labels,
				Milestone: mapMilestone(milestones, pr.Milestone),
			})
			if err != nil {
				if ctx.Err() != nil {
					return out, ctx.Err()
				}
				logger.Warn("could not restore pull request", "number", pr.Number, "head", pr.HeadBranch, "error", err)
				errs = append(errs, fmt.Errorf("pull request #%d: %w", pr.Number, err))
				out.Skipped++
				continue
			}
			numbers[pr.Number] = created.Number
			out.Items++

			if isClosed(pr.State) {
				if err := api.ClosePR(ctx, created.Number); err != nil {
					return out, fmt.Errorf("close pull request #%d: %w", created.Number, err)
				}
			}
		}
		if out.Items == 0 && len(errs) > 0 {
			return out, errors.Join(errs...)
		}
		return out, nil
	})
}
