package catalog

import (
	"context"
	"fmt"

	"github.com/randalmurphal/repovault/internal/conflict"
	"github.com/randalmurphal/repovault/internal/entity"
	rverrors "github.com/randalmurphal/repovault/internal/errors"
	"github.com/randalmurphal/repovault/internal/hosting"
	"github.com/randalmurphal/repovault/internal/selection"
)

func labelsEntity() *entity.Definition {
	return &entity.Definition{
		EntityName: Labels,
		Type:       selection.TypeBoolean,
		Default:    "true",
		Needs: map[entity.Operation][]entity.Service{
			entity.OpSave:    apiStore,
			entity.OpRestore: apiStorePolicy,
		},
		Save:    saveLabels,
		Restore: restoreLabels,
	}
}

func saveLabels(sc *entity.StrategyContext) (entity.Strategy, error) {
	return run(sc, func(ctx context.Context) (entity.Outcome, error) {
		labels, err := sc.API().ListLabels(ctx)
		if err != nil {
			return entity.Outcome{}, fmt.Errorf("list labels: %w", err)
		}
		if err := saveDocument(sc, labels, len(labels)); err != nil {
			return entity.Outcome{}, err
		}
		return entity.Outcome{Items: len(labels)}, nil
	})
}

func restoreLabels(sc *entity.StrategyContext) (entity.Strategy, error) {
	return run(sc, func(ctx context.Context) (entity.Outcome, error) {
		var out entity.Outcome
		var saved []hosting.Label
		if ok, err := loadDocument(sc, Labels, &saved); !ok || err != nil {
			return out, err
		}

		api := sc.API()
		existing, err := api.ListLabels(ctx)
		if err != nil {
			return out, fmt.Errorf("list target labels: %w", err)
		}
		taken := make(map[string]bool, len(existing))
		for _, l := range existing {
			taken[l.Name] = true
		}

		policy := sc.ConflictPolicy()
		logger := sc.Logger()
		for _, l := range saved {
			if !taken[l.Name] {
				if _, err := api.CreateLabel(ctx, l); err != nil {
					return out, fmt.Errorf("create label %q: %w", l.Name, err)
				}
				taken[l.Name] = true
				out.Items++
				continue
			}

			switch policy.Decide(conflict.Identity{Entity: Labels, Key: l.Name}, conflict.Item{Entity: Labels, Key: l.Name}) {
			case conflict.Skip:
				logger.Debug("label exists, skipping", "label", l.Name)
				out.Skipped++
			case conflict.Overwrite:
				if _, err := api.UpdateLabel(ctx, l.Name, l); err != nil {
					return out, fmt.Errorf("update label %q: %w", l.Name, err)
				}
				out.Overwritten++
			case conflict.Rename:
				renamed := l
				renamed.Name = conflict.RenameKey(l.Name, func(s string) bool { return taken[s] })
				if _, err := api.CreateLabel(ctx, renamed); err != nil {
					return out, fmt.Errorf("create label %q: %w", renamed.Name, err)
				}
				taken[renamed.Name] = true
				logger.Info("label exists, restored under new name", "label", l.Name, "renamed", renamed.Name)
				out.Renamed++
			case conflict.Fail:
				return out, rverrors.ErrConflict(Labels, l.Name)
			}
		}
		return out, nil
	})
}
