package catalog

import (
	"context"
	"fmt"

	"github.com/randalmurphal/repovault/internal/entity"
	"github.com/randalmurphal/repovault/internal/hosting"
	"github.com/randalmurphal/repovault/internal/selection"
	"github.com/randalmurphal/repovault/internal/storage"
)

func issuesEntity() *entity.Definition {
	return &entity.Definition{
		EntityName: Issues,
		DependsOn:  []string{Labels, Milestones},
		Type:       selection.TypeNumeric,
		Default:    "true",
		Needs: map[entity.Operation][]entity.Service{
			entity.OpSave:    apiStore,
			entity.OpRestore: apiStore,
		},
		Save:    saveIssues,
		Restore: restoreIssues,
	}
}

func issueNumber(i hosting.Issue) int { return i.Number }

func saveIssues(sc *entity.StrategyContext) (entity.Strategy, error) {
	return run(sc, func(ctx context.Context) (entity.Outcome, error) {
		all, err := sc.API().ListIssues(ctx)
		if err != nil {
			return entity.Outcome{}, fmt.Errorf("list issues: %w", err)
		}
		issues := selected(sc.Enablement(), all, issueNumber)
		if err := saveDocument(sc, issues, len(issues)); err != nil {
			return entity.Outcome{}, err
		}
		return entity.Outcome{Items: len(issues), Skipped: len(all) - len(issues)}, nil
	})
}

// restoreIssues recreates the selected issues in ascending number order. The
// target assigns new numbers, so the old-to-new mapping is written for the
// comments entity.
func restoreIssues(sc *entity.StrategyContext) (entity.Strategy, error) {
	return run(sc, func(ctx context.Context) (entity.Outcome, error) {
		var out entity.Outcome
		var saved []hosting.Issue
		if ok, err := loadDocument(sc, Issues, &saved); !ok || err != nil {
			return out, err
		}
		store := sc.Store()
		milestones, err := store.ReadMap(Milestones)
		if err != nil {
			return out, err
		}

		issues := selected(sc.Enablement(), saved, issueNumber)
		out.Skipped = len(saved) - len(issues)

		numbers := storage.NumberMap{}
		defer func() {
			if err := store.WriteMap(Issues, numbers); err != nil {
				sc.Logger().Warn("write issue map", "error", err)
			}
		}()

		api := sc.API()
		logger := sc.Logger()
		for _, issue := range issues {
			created, err := api.CreateIssue(ctx, hosting.IssueCreateOptions{
				Title:     issue.Title,
				Body:      attributed(issue.Author, issue.CreatedAt, issue.Body),
				Labels:    issue.Labels,
				Milestone: mapMilestone(milestones, issue.Milestone),
			})
			if err != nil {
				return out, fmt.Errorf("create issue #%d: %w", issue.Number, err)
			}
			numbers[issue.Number] = created.Number
			out.Items++

			if isClosed(issue.State) {
				if err := api.CloseIssue(ctx, created.Number); err != nil {
					return out, fmt.Errorf("close issue #%d: %w", created.Number, err)
				}
			}
			logger.Debug("issue restored", "from", issue.Number, "to", created.Number)
		}
		return out, nil
	})
}
