// Package catalog defines the hosted-project entities repovault can save and
// restore, and registers them with an entity.Registry.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/randalmurphal/repovault/internal/entity"
	"github.com/randalmurphal/repovault/internal/hosting"
	"github.com/randalmurphal/repovault/internal/selection"
	"github.com/randalmurphal/repovault/internal/storage"
)

// Entity names.
const (
	Labels        = "labels"
	Milestones    = "milestones"
	GitRepository = "git_repository"
	Issues        = "issues"
	Comments      = "comments"
	Releases      = "releases"
	PullRequests  = "pull_requests"
	PRComments    = "pr_comments"
)

// fanOutLimit bounds concurrent per-parent API calls in comment saves.
const fanOutLimit = 4

// All returns every entity in registration order.
func All() []entity.Descriptor {
	return []entity.Descriptor{
		labelsEntity(),
		milestonesEntity(),
		gitRepositoryEntity(),
		issuesEntity(),
		commentsEntity(),
		releasesEntity(),
		pullRequestsEntity(),
		prCommentsEntity(),
	}
}

// Register adds every entity from All to reg. Registration stops at the first
// rejected descriptor.
func Register(reg *entity.Registry) error {
	for _, d := range All() {
		if err := reg.Register(d); err != nil {
			return fmt.Errorf("register %s: %w", d.Name(), err)
		}
	}
	return nil
}

// NewRegistry returns a validated registry holding the full catalog.
func NewRegistry(logger *slog.Logger) (*entity.Registry, error) {
	reg := entity.NewRegistry(entity.WithRegistryLogger(logger))
	if err := Register(reg); err != nil {
		return nil, err
	}
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	return reg, nil
}

var (
	apiStore       = []entity.Service{entity.ServiceAPI, entity.ServiceStore}
	apiStorePolicy = []entity.Service{entity.ServiceAPI, entity.ServiceStore, entity.ServiceConflictPolicy}
)

// run wraps fn as the strategy for the context's entity.
func run(sc *entity.StrategyContext, fn func(ctx context.Context) (entity.Outcome, error)) (entity.Strategy, error) {
	return entity.StrategyFunc{Name: sc.Entity(), Fn: fn}, nil
}

// saveDocument writes items as the entity's document and records it in the
// manifest.
func saveDocument(sc *entity.StrategyContext, items any, count int) error {
	store := sc.Store()
	name := sc.Entity()
	if err := store.Write(name, items); err != nil {
		return err
	}
	return recordManifest(sc, store, count)
}

func recordManifest(sc *entity.StrategyContext, store *storage.Store, count int) error {
	header := storage.Manifest{}
	if api := sc.API(); api != nil {
		owner, repo := api.OwnerRepo()
		header.Provider = string(api.Name())
		header.Repository = owner + "/" + repo
	}
	em := storage.EntityManifest{
		Selection: sc.Enablement().Selection.String(),
		Items:     count,
		SavedAt:   time.Now().UTC(),
	}
	if err := store.RecordEntity(sc.Entity(), em, header); err != nil {
		return fmt.Errorf("record %s in manifest: %w", sc.Entity(), err)
	}
	return nil
}

// loadDocument reads the entity's saved document. A missing document is not
// an error: found is false and the restore has nothing to do.
func loadDocument(sc *entity.StrategyContext, name string, v any) (found bool, err error) {
	if err := sc.Store().Read(name, v); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			sc.Logger().Info("nothing saved, skipping restore", "document", name)
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// attributed prefixes body with the original author line.
func attributed(author, createdAt, body string) string {
	return hosting.AttributionHeader(author, createdAt) + body
}

// selected filters numbers by the entity's selection and sorts them.
func selected[T any](en selection.Enablement, items []T, number func(T) int) []T {
	out := make([]T, 0, len(items))
	for _, it := range items {
		if en.Allows(number(it)) {
			out = append(out, it)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return number(out[i]) < number(out[j]) })
	return out
}

// mapMilestone translates a saved milestone number through the restored
// milestone map. Unmapped milestones are dropped.
func mapMilestone(m storage.NumberMap, number int) int {
	if number == 0 {
		return 0
	}
	if n, ok := m[number]; ok {
		return n
	}
	return 0
}

// isClosed reports whether an item state needs closing after restore.
func isClosed(state string) bool {
	return state == "closed" || state == "merged"
}
