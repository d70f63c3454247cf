package entity

import (
	"context"
	"log/slog"
	"reflect"

	"github.com/randalmurphal/repovault/internal/conflict"
	"github.com/randalmurphal/repovault/internal/git"
	"github.com/randalmurphal/repovault/internal/hosting"
	"github.com/randalmurphal/repovault/internal/selection"
	"github.com/randalmurphal/repovault/internal/storage"
)

// VCS is the repository transport the git_repository entity uses.
type VCS interface {
	Clone(ctx context.Context, url string, auth git.Auth, dest string) error
	Push(ctx context.Context, dir, url string, auth git.Auth) error
	Tags(ctx context.Context, dir string) ([]string, error)
}

var _ VCS = (*git.Mirror)(nil)

// StrategyContext carries the services available to strategies. It is never
// modified after construction; ForEntity derives per-entity copies that share
// the same services.
type StrategyContext struct {
	services   map[Service]any
	logger     *slog.Logger
	descriptor Descriptor
	enablement selection.Enablement
}

// ContextOption configures a StrategyContext.
type ContextOption func(*StrategyContext)

// NewStrategyContext builds a context. Nil services are left unset.
func NewStrategyContext(opts ...ContextOption) *StrategyContext {
	sc := &StrategyContext{services: make(map[Service]any), logger: slog.Default()}
	for _, opt := range opts {
		opt(sc)
	}
	return sc
}

// WithService sets an arbitrary service. Nil values are ignored.
func WithService(name Service, v any) ContextOption {
	return func(sc *StrategyContext) {
		if !isNil(v) {
			sc.services[name] = v
		}
	}
}

// WithAPI sets the hosting provider.
func WithAPI(p hosting.Provider) ContextOption { return WithService(ServiceAPI, p) }

// WithVCS sets the repository transport.
func WithVCS(v VCS) ContextOption { return WithService(ServiceVCS, v) }

// WithStore sets the data store.
func WithStore(s *storage.Store) ContextOption { return WithService(ServiceStore, s) }

// WithConflictPolicy sets the restore collision policy.
func WithConflictPolicy(p conflict.Policy) ContextOption {
	return WithService(ServiceConflictPolicy, p)
}

// WithDataRoot sets the data root directory. An empty path is ignored.
func WithDataRoot(dir string) ContextOption {
	return func(sc *StrategyContext) {
		if dir != "" {
			sc.services[ServiceDataRoot] = dir
		}
	}
}

// WithLogger sets the logger handed to strategies.
func WithLogger(l *slog.Logger) ContextOption {
	return func(sc *StrategyContext) {
		if l != nil {
			sc.logger = l
		}
	}
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}

// Lookup returns a service and whether it is present.
func (sc *StrategyContext) Lookup(name Service) (any, bool) {
	v, ok := sc.services[name]
	return v, ok
}

// Has reports whether a service is present.
func (sc *StrategyContext) Has(name Service) bool {
	_, ok := sc.services[name]
	return ok
}

// API returns the hosting provider, or nil.
func (sc *StrategyContext) API() hosting.Provider {
	p, _ := sc.services[ServiceAPI].(hosting.Provider)
	return p
}

// VCS returns the repository transport, or nil.
func (sc *StrategyContext) VCS() VCS {
	v, _ := sc.services[ServiceVCS].(VCS)
	return v
}

// Store returns the data store, or nil.
func (sc *StrategyContext) Store() *storage.Store {
	s, _ := sc.services[ServiceStore].(*storage.Store)
	return s
}

// DataRoot returns the data root directory, or "".
func (sc *StrategyContext) DataRoot() string {
	s, _ := sc.services[ServiceDataRoot].(string)
	return s
}

// ConflictPolicy returns the collision policy; the zero policy skips.
func (sc *StrategyContext) ConflictPolicy() conflict.Policy {
	p, _ := sc.services[ServiceConflictPolicy].(conflict.Policy)
	return p
}

// Logger returns a logger tagged with the current entity.
func (sc *StrategyContext) Logger() *slog.Logger {
	if sc.descriptor != nil {
		return sc.logger.With("entity", sc.descriptor.Name())
	}
	return sc.logger
}

// Descriptor returns the entity this context was derived for, or nil.
func (sc *StrategyContext) Descriptor() Descriptor { return sc.descriptor }

// Enablement returns the entity's resolved selection.
func (sc *StrategyContext) Enablement() selection.Enablement { return sc.enablement }

// Entity returns the current entity name, or "".
func (sc *StrategyContext) Entity() string {
	if sc.descriptor == nil {
		return ""
	}
	return sc.descriptor.Name()
}

// ForEntity returns a copy of sc bound to d and e.
func (sc *StrategyContext) ForEntity(d Descriptor, e selection.Enablement) *StrategyContext {
	cp := *sc
	cp.descriptor = d
	cp.enablement = e
	return &cp
}
