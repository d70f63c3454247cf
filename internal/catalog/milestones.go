package catalog

import (
	"context"
	"fmt"

	"github.com/randalmurphal/repovault/internal/conflict"
	"github.com/randalmurphal/repovault/internal/entity"
	rverrors "github.com/randalmurphal/repovault/internal/errors"
	"github.com/randalmurphal/repovault/internal/hosting"
	"github.com/randalmurphal/repovault/internal/selection"
	"github.com/randalmurphal/repovault/internal/storage"
)

func milestonesEntity() *entity.Definition {
	return &entity.Definition{
		EntityName: Milestones,
		Type:       selection.TypeBoolean,
		Default:    "true",
		Needs: map[entity.Operation][]entity.Service{
			entity.OpSave:    apiStore,
			entity.OpRestore: apiStorePolicy,
		},
		Save:    saveMilestones,
		Restore: restoreMilestones,
	}
}

func saveMilestones(sc *entity.StrategyContext) (entity.Strategy, error) {
	return run(sc, func(ctx context.Context) (entity.Outcome, error) {
		ms, err := sc.API().ListMilestones(ctx)
		if err != nil {
			return entity.Outcome{}, fmt.Errorf("list milestones: %w", err)
		}
		if err := saveDocument(sc, ms, len(ms)); err != nil {
			return entity.Outcome{}, err
		}
		return entity.Outcome{Items: len(ms)}, nil
	})
}

// restoreMilestones matches milestones by title and writes a number map so
// issues and pull requests can point at the restored milestones.
func restoreMilestones(sc *entity.StrategyContext) (entity.Strategy, error) {
	return run(sc, func(ctx context.Context) (entity.Outcome, error) {
		var out entity.Outcome
		var saved []hosting.Milestone
		if ok, err := loadDocument(sc, Milestones, &saved); !ok || err != nil {
			return out, err
		}

		api := sc.API()
		existing, err := api.ListMilestones(ctx)
		if err != nil {
			return out, fmt.Errorf("list target milestones: %w", err)
		}
		byTitle := make(map[string]hosting.Milestone, len(existing))
		for _, m := range existing {
			byTitle[m.Title] = m
		}

		numbers := storage.NumberMap{}
		defer func() {
			if err := sc.Store().WriteMap(Milestones, numbers); err != nil {
				sc.Logger().Warn("write milestone map", "error", err)
			}
		}()

		policy := sc.ConflictPolicy()
		for _, m := range saved {
			current, exists := byTitle[m.Title]
			if !exists {
				created, err := api.CreateMilestone(ctx, m)
				if err != nil {
					return out, fmt.Errorf("create milestone %q: %w", m.Title, err)
				}
				byTitle[created.Title] = *created
				numbers[m.Number] = created.Number
				out.Items++
				continue
			}

			switch policy.Decide(conflict.Identity{Entity: Milestones, Key: m.Title}, conflict.Item{Entity: Milestones, Key: m.Title}) {
			case conflict.Skip:
				numbers[m.Number] = current.Number
				out.Skipped++
			case conflict.Overwrite:
				updated, err := api.UpdateMilestone(ctx, current.Number, m)
				if err != nil {
					return out, fmt.Errorf("update milestone %q: %w", m.Title, err)
				}
				numbers[m.Number] = updated.Number
				out.Overwritten++
			case conflict.Rename:
				renamed := m
				renamed.Title = conflict.RenameKey(m.Title, func(s string) bool {
					_, ok := byTitle[s]
					return ok
				})
				created, err := api.CreateMilestone(ctx, renamed)
				if err != nil {
					return out, fmt.Errorf("create milestone %q: %w", renamed.Title, err)
				}
				byTitle[created.Title] = *created
				numbers[m.Number] = created.Number
				out.Renamed++
			case conflict.Fail:
				return out, rverrors.ErrConflict(Milestones, m.Title)
			}
		}
		return out, nil
	})
}
