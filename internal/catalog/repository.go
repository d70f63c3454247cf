package catalog

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/randalmurphal/repovault/internal/entity"
	"github.com/randalmurphal/repovault/internal/git"
	"github.com/randalmurphal/repovault/internal/selection"
)

// MirrorDir is the bare mirror's directory under the data root.
const MirrorDir = "git_repository.git"

func gitRepositoryEntity() *entity.Definition {
	needs := []entity.Service{entity.ServiceAPI, entity.ServiceVCS, entity.ServiceDataRoot}
	return &entity.Definition{
		EntityName: GitRepository,
		Type:       selection.TypeBoolean,
		Default:    "true",
		Needs: map[entity.Operation][]entity.Service{
			entity.OpSave:    needs,
			entity.OpRestore: needs,
		},
		Save:    saveRepository,
		Restore: restoreRepository,
	}
}

func gitAuth(sc *entity.StrategyContext) git.Auth {
	a := sc.API().GitAuth()
	return git.Auth{Username: a.Username, Token: a.Token}
}

func saveRepository(sc *entity.StrategyContext) (entity.Strategy, error) {
	dest := filepath.Join(sc.DataRoot(), MirrorDir)
	return run(sc, func(ctx context.Context) (entity.Outcome, error) {
		api, vcs := sc.API(), sc.VCS()
		if err := vcs.Clone(ctx, api.CloneURL(), gitAuth(sc), dest); err != nil {
			return entity.Outcome{}, err
		}
		tags, err := vcs.Tags(ctx, dest)
		if err != nil {
			return entity.Outcome{}, err
		}
		sc.Logger().Info("repository mirrored", "path", dest, "tags", len(tags))
		if store := sc.Store(); store != nil {
			if err := recordManifest(sc, store, 1); err != nil {
				return entity.Outcome{}, err
			}
		}
		return entity.Outcome{Items: 1}, nil
	})
}

func restoreRepository(sc *entity.StrategyContext) (entity.Strategy, error) {
	dir := filepath.Join(sc.DataRoot(), MirrorDir)
	return run(sc, func(ctx context.Context) (entity.Outcome, error) {
		if err := git.RequireMirror(dir); err != nil {
			return entity.Outcome{}, fmt.Errorf("no saved repository: %w", err)
		}
		if err := sc.VCS().Push(ctx, dir, sc.API().CloneURL(), gitAuth(sc)); err != nil {
			return entity.Outcome{}, err
		}
		return entity.Outcome{Items: 1}, nil
	})
}
