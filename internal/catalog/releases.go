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

func releasesEntity() *entity.Definition {
	return &entity.Definition{
		EntityName: Releases,
		DependsOn:  []string{GitRepository},
		Type:       selection.TypeBoolean,
		Default:    "true",
		Needs: map[entity.Operation][]entity.Service{
			entity.OpSave:    apiStore,
			entity.OpRestore: apiStorePolicy,
		},
		Save:    saveReleases,
		Restore: restoreReleases,
	}
}

func saveReleases(sc *entity.StrategyContext) (entity.Strategy, error) {
	return run(sc, func(ctx context.Context) (entity.Outcome, error) {
		releases, err := sc.API().ListReleases(ctx)
		if err != nil {
			return entity.Outcome{}, fmt.Errorf("list releases: %w", err)
		}
		if err := saveDocument(sc, releases, len(releases)); err != nil {
			return entity.Outcome{}, err
		}
		return entity.Outcome{Items: len(releases)}, nil
	})
}

// restoreReleases recreates releases keyed by tag. A tag cannot be renamed,
// so the rename policy falls back to skipping.
func restoreReleases(sc *entity.StrategyContext) (entity.Strategy, error) {
	return run(sc, func(ctx context.Context) (entity.Outcome, error) {
		var out entity.Outcome
		var saved []hosting.Release
		if ok, err := loadDocument(sc, Releases, &saved); !ok || err != nil {
			return out, err
		}

		api := sc.API()
		existing, err := api.ListReleases(ctx)
		if err != nil {
			return out, fmt.Errorf("list target releases: %w", err)
		}
		byTag := make(map[string]hosting.Release, len(existing))
		for _, r := range existing {
			byTag[r.TagName] = r
		}

		policy := sc.ConflictPolicy()
		logger := sc.Logger()
		for _, r := range saved {
			r.Body = attributedRelease(r)
			current, exists := byTag[r.TagName]
			if !exists {
				if _, err := api.CreateRelease(ctx, r); err != nil {
					return out, fmt.Errorf("create release %q: %w", r.TagName, err)
				}
				out.Items++
				continue
			}

			switch policy.Decide(conflict.Identity{Entity: Releases, Key: r.TagName}, conflict.Item{Entity: Releases, Key: r.TagName}) {
			case conflict.Skip:
				out.Skipped++
			case conflict.Rename:
				logger.Warn("release tags cannot be renamed, skipping", "tag", r.TagName)
				out.Skipped++
			case conflict.Overwrite:
				if _, err := api.UpdateRelease(ctx, current.ID, r); err != nil {
					return out, fmt.Errorf("update release %q: %w", r.TagName, err)
				}
				out.Overwritten++
			case conflict.Fail:
				return out, rverrors.ErrConflict(Releases, r.TagName)
			}
		}
		return out, nil
	})
}

func attributedRelease(r hosting.Release) string {
	if r.CreatedAt == "" {
		return r.Body
	}
	return "_Originally released on " + r.CreatedAt + "_\n\n" + r.Body
}
