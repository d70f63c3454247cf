package entity

import (
	"errors"
	"fmt"
	"log/slog"

	rverrors "github.com/randalmurphal/repovault/internal/errors"
	"github.com/randalmurphal/repovault/internal/selection"
)

// Step is one enabled entity in a plan.
type Step struct {
	Entity     string
	Descriptor Descriptor
	Enablement selection.Enablement
	// Strategy is nil when Err is set or the entity has nothing to do.
	Strategy Strategy
	Err      error
}

// NoOp reports whether the step was built without a strategy.
func (s Step) NoOp() bool { return s.Strategy == nil && s.Err == nil }

// Plan is the ordered set of strategies for one run.
type Plan struct {
	Operation Operation
	Steps     []Step
	Warnings  []selection.Warning
	// Dependents maps each entity to the entities that transitively depend on it.
	Dependents map[string][]string
	err        error
}

// Strategies returns the built strategies in run order.
func (p *Plan) Strategies() []Strategy {
	var out []Strategy
	for _, s := range p.Steps {
		if s.Strategy != nil {
			out = append(out, s.Strategy)
		}
	}
	return out
}

// Entities returns the step entity names in run order.
func (p *Plan) Entities() []string {
	out := make([]string, len(p.Steps))
	for i, s := range p.Steps {
		out[i] = s.Entity
	}
	return out
}

// Step returns the step for entity.
func (p *Plan) Step(entity string) (Step, bool) {
	for _, s := range p.Steps {
		if s.Entity == entity {
			return s, true
		}
	}
	return Step{}, false
}

// RegistryErr returns the error that prevented any step from being built,
// such as a dependency cycle.
func (p *Plan) RegistryErr() error { return p.err }

// Err joins the registry error and every step construction error.
func (p *Plan) Err() error {
	errs := []error{p.err}
	for _, s := range p.Steps {
		errs = append(errs, s.Err)
	}
	return errors.Join(errs...)
}

// Factory builds plans from a validated registry.
type Factory struct {
	logger *slog.Logger
}

// NewFactory returns a factory logging to logger, or slog.Default when nil.
func NewFactory(logger *slog.Logger) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{logger: logger}
}

// Build constructs a strategy for every enabled entity in run order.
// Construction continues past failures; each failure stays on its step.
func (f *Factory) Build(op Operation, reg *Registry, res *selection.Resolution, sc *StrategyContext) *Plan {
	plan := &Plan{Operation: op, Dependents: make(map[string][]string)}
	if err := reg.Validate(); err != nil {
		plan.err = err
		return plan
	}
	if res == nil {
		plan.err = rverrors.ErrConfigInvalid("include", "no selection was resolved")
		return plan
	}
	plan.Warnings = append(plan.Warnings, res.Warnings...)
	if sc == nil {
		sc = NewStrategyContext()
	}

	for _, d := range reg.Ordered() {
		name := d.Name()
		en, ok := res.Get(name)
		if !ok || !en.Enabled {
			continue
		}
		plan.Dependents[name] = reg.Dependents(name)

		step := Step{Entity: name, Descriptor: d, Enablement: en}
		if svc, missing := missingService(d, op, sc); missing {
			step.Err = rverrors.ErrServiceMissing(name, string(svc))
		} else {
			step.Strategy, step.Err = f.construct(op, d, sc.ForEntity(d, en))
		}
		if step.Err != nil {
			f.logger.Warn("strategy construction failed", "entity", name, "operation", op, "error", step.Err)
		}
		plan.Steps = append(plan.Steps, step)
	}
	return plan
}

// BuildSave builds a save plan.
func (f *Factory) BuildSave(reg *Registry, res *selection.Resolution, sc *StrategyContext) *Plan {
	return f.Build(OpSave, reg, res, sc)
}

// BuildRestore builds a restore plan.
func (f *Factory) BuildRestore(reg *Registry, res *selection.Resolution, sc *StrategyContext) *Plan {
	return f.Build(OpRestore, reg, res, sc)
}

func missingService(d Descriptor, op Operation, sc *StrategyContext) (Service, bool) {
	for _, svc := range d.RequiredServices(op) {
		if !sc.Has(svc) {
			return svc, true
		}
	}
	return "", false
}

// construct calls the descriptor's factory method, converting errors and
// panics into strategy construction errors.
func (f *Factory) construct(op Operation, d Descriptor, sc *StrategyContext) (s Strategy, err error) {
	defer func() {
		if r := recover(); r != nil {
			s = nil
			err = rverrors.ErrStrategyConstruction(d.Name(), fmt.Errorf("panic: %v", r))
		}
	}()

	switch op {
	case OpSave:
		s, err = d.SaveStrategy(sc)
	case OpRestore:
		s, err = d.RestoreStrategy(sc)
	default:
		return nil, rverrors.ErrConfigInvalid("operation", fmt.Sprintf("unknown operation %q", op))
	}
	if err != nil {
		return nil, rverrors.ErrStrategyConstruction(d.Name(), err)
	}
	return s, nil
}
