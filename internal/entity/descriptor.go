// Package entity holds the registry of backup entity types, their dependency
// graph, and the factory that turns descriptors into runnable strategies.
package entity

import (
	"context"

	"github.com/randalmurphal/repovault/internal/selection"
)

// Operation is the direction of a run.
type Operation string

const (
	OpSave    Operation = "save"
	OpRestore Operation = "restore"
)

// Service names a collaborator a strategy may need from its context.
type Service string

const (
	ServiceAPI            Service = "api_service"
	ServiceVCS            Service = "vcs_service"
	ServiceConflictPolicy Service = "conflict_policy"
	ServiceDataRoot       Service = "data_root"
	ServiceStore          Service = "store"
)

// Descriptor describes one entity type.
type Descriptor interface {
	Name() string
	// Dependencies lists entities that must run before this one.
	Dependencies() []string
	// Parent is the dependency that owns this entity's items, or "".
	Parent() string
	SelectionType() selection.Type
	DefaultSelection() string
	RequiredServices(op Operation) []Service
	// SaveStrategy and RestoreStrategy return a nil Strategy and nil error
	// when the entity has nothing to do for that operation.
	SaveStrategy(sc *StrategyContext) (Strategy, error)
	RestoreStrategy(sc *StrategyContext) (Strategy, error)
}

// Strategy performs one entity's save or restore.
type Strategy interface {
	Entity() string
	Run(ctx context.Context) (Outcome, error)
}

// Outcome counts what a strategy did.
type Outcome struct {
	Items       int `json:"items"`
	Skipped     int `json:"skipped"`
	Overwritten int `json:"overwritten"`
	Renamed     int `json:"renamed"`
}

// Add accumulates o2 into o.
func (o *Outcome) Add(o2 Outcome) {
	o.Items += o2.Items
	o.Skipped += o2.Skipped
	o.Overwritten += o2.Overwritten
	o.Renamed += o2.Renamed
}

// StrategyFunc adapts a function to Strategy.
type StrategyFunc struct {
	Name string
	Fn   func(ctx context.Context) (Outcome, error)
}

// Entity returns the entity name.
func (f StrategyFunc) Entity() string { return f.Name }

// Run calls Fn.
func (f StrategyFunc) Run(ctx context.Context) (Outcome, error) { return f.Fn(ctx) }

// Builder constructs a strategy from a context.
type Builder func(sc *StrategyContext) (Strategy, error)

// Definition is a declarative Descriptor.
type Definition struct {
	EntityName string
	DependsOn  []string
	Owner      string
	Type       selection.Type
	Default    string
	Needs      map[Operation][]Service
	Save       Builder
	Restore    Builder
}

var _ Descriptor = (*Definition)(nil)

func (d *Definition) Name() string                  { return d.EntityName }
func (d *Definition) Parent() string                { return d.Owner }
func (d *Definition) SelectionType() selection.Type { return d.Type }
func (d *Definition) DefaultSelection() string      { return d.Default }

func (d *Definition) Dependencies() []string {
	return append([]string(nil), d.DependsOn...)
}

func (d *Definition) RequiredServices(op Operation) []Service {
	return append([]Service(nil), d.Needs[op]...)
}

func (d *Definition) SaveStrategy(sc *StrategyContext) (Strategy, error) {
	if d.Save == nil {
		return nil, nil
	}
	return d.Save(sc)
}

func (d *Definition) RestoreStrategy(sc *StrategyContext) (Strategy, error) {
	if d.Restore == nil {
		return nil, nil
	}
	return d.Restore(sc)
}
