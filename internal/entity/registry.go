package entity

import (
	"fmt"
	"log/slog"
	"sync"

	rverrors "github.com/randalmurphal/repovault/internal/errors"
	"github.com/randalmurphal/repovault/internal/selection"
)

// Diagnostic records a descriptor that Register refused.
type Diagnostic struct {
	Name string
	Err  error
}

// Registry holds entity descriptors. Descriptors are registered during
// startup, then Validate freezes the registry and fixes the run order.
type Registry struct {
	mu          sync.RWMutex
	logger      *slog.Logger
	descriptors []Descriptor
	byName      map[string]Descriptor
	diagnostics []Diagnostic
	graph       *graph
	order       []Descriptor
	frozen      bool
	validateErr error
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRegistryLogger sets the logger used for rejected descriptors.
func WithRegistryLogger(l *slog.Logger) RegistryOption {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRegistry returns an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		logger: slog.Default(),
		byName: make(map[string]Descriptor),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds d. Malformed or duplicate descriptors are logged, kept as
// diagnostics and returned as an error; the registry is left unchanged.
func (r *Registry) Register(d Descriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if d == nil {
		return r.reject("", rverrors.ErrInvalidDescriptor("", "descriptor is nil"))
	}
	name := d.Name()
	if r.frozen {
		return rverrors.ErrRegistryFrozen(name)
	}
	if err := checkShape(d); err != nil {
		return r.reject(name, err)
	}
	if _, dup := r.byName[name]; dup {
		return r.reject(name, rverrors.ErrInvalidDescriptor(name, "an entity with this name is already registered"))
	}

	r.descriptors = append(r.descriptors, d)
	r.byName[name] = d
	return nil
}

func (r *Registry) reject(name string, err error) error {
	r.logger.Warn("skipping entity descriptor", "entity", name, "error", err)
	r.diagnostics = append(r.diagnostics, Diagnostic{Name: name, Err: err})
	return err
}

// checkShape validates a descriptor in isolation.
func checkShape(d Descriptor) error {
	name := d.Name()
	if name == "" {
		return rverrors.ErrInvalidDescriptor(name, "name is empty")
	}
	if !d.SelectionType().Valid() {
		return rverrors.ErrInvalidDescriptor(name, fmt.Sprintf("unknown selection type %d", d.SelectionType()))
	}
	if _, err := selection.ParseFor(d.SelectionType(), d.DefaultSelection()); err != nil {
		return rverrors.ErrInvalidDescriptor(name, fmt.Sprintf("default selection %q: %v", d.DefaultSelection(), err))
	}
	if parent := d.Parent(); parent != "" {
		found := false
		for _, dep := range d.Dependencies() {
			if dep == parent {
				found = true
				break
			}
		}
		if !found {
			return rverrors.ErrInvalidDescriptor(name, fmt.Sprintf("parent %q is not listed as a dependency", parent))
		}
	}
	return nil
}

// Validate checks that every dependency is registered and that the graph is
// acyclic, then freezes the registry. Later calls return the first result.
func (r *Registry) Validate() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return r.validateErr
	}

	names := make([]string, len(r.descriptors))
	deps := make(map[string][]string, len(r.descriptors))
	for i, d := range r.descriptors {
		names[i] = d.Name()
		deps[d.Name()] = d.Dependencies()
	}

	for _, d := range r.descriptors {
		for _, dep := range d.Dependencies() {
			if _, ok := r.byName[dep]; !ok {
				return rverrors.ErrUnknownDependency(d.Name(), dep)
			}
		}
	}

	g := newGraph(names, deps)
	if cycle := g.findCycle(); cycle != nil {
		return rverrors.ErrDependencyCycle(cycle)
	}
	order, ok := g.order()
	if !ok {
		// findCycle and order disagree only if the graph changed underneath.
		return rverrors.ErrDependencyCycle(nil)
	}

	r.graph = g
	r.order = make([]Descriptor, len(order))
	for i, n := range order {
		r.order[i] = r.byName[n]
	}
	r.frozen = true
	return nil
}

// Frozen reports whether Validate has succeeded.
func (r *Registry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}

// Ordered returns the descriptors in run order. It is empty before Validate.
func (r *Registry) Ordered() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Descriptor(nil), r.order...)
}

// Names returns the entity names in run order, or in registration order
// before Validate.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	src := r.order
	if !r.frozen {
		src = r.descriptors
	}
	names := make([]string, len(src))
	for i, d := range src {
		names[i] = d.Name()
	}
	return names
}

// Get returns the descriptor called name.
func (r *Registry) Get(name string) (Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byName[name]
	if !ok {
		return nil, rverrors.ErrEntityNotFound(name)
	}
	return d, nil
}

// Dependents returns the entities that transitively depend on name.
func (r *Registry) Dependents(name string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.graph == nil {
		return nil
	}
	return r.graph.dependents(name)
}

// Diagnostics returns the descriptors Register refused.
func (r *Registry) Diagnostics() []Diagnostic {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Diagnostic(nil), r.diagnostics...)
}

// Len returns the number of registered descriptors.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.descriptors)
}

// SelectionNodes implements selection.Graph.
func (r *Registry) SelectionNodes() []selection.Node {
	r.mu.RLock()
	defer r.mu.RUnlock()
	nodes := make([]selection.Node, len(r.descriptors))
	for i, d := range r.descriptors {
		nodes[i] = selection.Node{
			Name:         d.Name(),
			Dependencies: d.Dependencies(),
			Parent:       d.Parent(),
			Type:         d.SelectionType(),
			Default:      d.DefaultSelection(),
		}
	}
	return nodes
}
