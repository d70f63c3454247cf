// Package orchestrator executes a plan of entity strategies in dependency
// order, tracks each entity's state and produces a run result.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/randalmurphal/repovault/internal/entity"
	"github.com/randalmurphal/repovault/internal/metrics"
)

// Options controls the failure policy of a run.
type Options struct {
	// Critical names entities whose failure aborts the rest of the run.
	Critical []string `yaml:"critical" mapstructure:"critical"`
	// StopOnFirstFailure aborts the run at the first failed entity.
	StopOnFirstFailure bool `yaml:"stop_on_first_failure" mapstructure:"stop_on_first_failure"`
	// SkipDependentsOnFailure skips entities that depend on a failed one.
	// By default a failure is recorded and its dependents still run.
	SkipDependentsOnFailure bool `yaml:"skip_dependents_on_failure" mapstructure:"skip_dependents_on_failure"`
}

// Recorder persists finished runs.
type Recorder interface {
	RecordRun(ctx context.Context, run *RunResult) error
}

// Orchestrator runs plans. It holds no per-run state and may be reused.
type Orchestrator struct {
	opts     Options
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
	recorder Recorder
	now      func() time.Time
	newID    func() string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithOptions sets the failure policy.
func WithOptions(opts Options) Option {
	return func(o *Orchestrator) { o.opts = opts }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics records entity and run metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithTracer wraps the run and each entity in a span.
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) {
		if t != nil {
			o.tracer = t
		}
	}
}

// WithRecorder persists every finished run. Recording failures are logged.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// New returns an orchestrator.
func New(opts ...Option) *Orchestrator {
	o := &Orchestrator{
		logger: slog.Default(),
		tracer: noop.NewTracerProvider().Tracer("noop"),
		now:    time.Now,
		newID:  func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Save runs a save plan.
func (o *Orchestrator) Save(ctx context.Context, plan *entity.Plan) (*RunResult, error) {
	return o.runOp(ctx, entity.OpSave, plan)
}

// Restore runs a restore plan.
func (o *Orchestrator) Restore(ctx context.Context, plan *entity.Plan) (*RunResult, error) {
	return o.runOp(ctx, entity.OpRestore, plan)
}

func (o *Orchestrator) runOp(ctx context.Context, op entity.Operation, plan *entity.Plan) (*RunResult, error) {
	if plan == nil {
		return nil, fmt.Errorf("%s: no plan", op)
	}
	if plan.Operation != op {
		return nil, fmt.Errorf("%s: plan was built for %s", op, plan.Operation)
	}
	if err := plan.RegistryErr(); err != nil {
		return nil, err
	}
	return o.Run(ctx, plan)
}

// Run executes plan's steps in order. Entity failures are recorded in the
// result rather than returned; the error is non-nil only when ctx ends the
// run early.
func (o *Orchestrator) Run(ctx context.Context, plan *entity.Plan) (*RunResult, error) {
	run := &RunResult{
		ID:        o.newID(),
		Operation: plan.Operation,
		StartedAt: o.now().UTC(),
	}
	for _, step := range plan.Steps {
		run.Entities = append(run.Entities, &EntityResult{Name: step.Entity, Status: StatePending})
	}

	logger := o.logger.With("run", run.ID, "operation", plan.Operation)
	ctx, span := o.tracer.Start(ctx, "repovault."+string(plan.Operation),
		trace.WithAttributes(
			attribute.String("repovault.run_id", run.ID),
			attribute.Int("repovault.entities", len(plan.Steps)),
		))
	defer span.End()

	logger.Info("run started", "entities", len(plan.Steps))

	// blocked maps an entity to the failed dependency that gates it.
	blocked := make(map[string]string)
	aborted := ""
	var ctxErr error

	for i, step := range plan.Steps {
		res := run.Entities[i]

		switch {
		case aborted != "":
			o.skip(logger, plan.Operation, res, aborted)
			continue
		case ctx.Err() != nil:
			ctxErr = ctx.Err()
			o.skip(logger, plan.Operation, res, "run cancelled")
			continue
		}
		if dep, ok := blocked[step.Entity]; ok && o.opts.SkipDependentsOnFailure {
			o.skip(logger, plan.Operation, res, "dependency "+dep+" failed")
			continue
		}

		o.execute(ctx, logger, plan.Operation, step, res)

		if res.Status != StateFailed {
			continue
		}
		for _, dependent := range plan.Dependents[step.Entity] {
			if _, already := blocked[dependent]; !already {
				blocked[dependent] = step.Entity
			}
		}
		switch {
		case slices.Contains(o.opts.Critical, step.Entity):
			aborted = "critical entity " + step.Entity + " failed"
		case o.opts.StopOnFirstFailure:
			aborted = "stopped after " + step.Entity + " failed"
		}
		if aborted != "" {
			logger.Warn("aborting run", "reason", aborted)
		}
	}

	if ctxErr == nil {
		ctxErr = ctx.Err()
	}
	run.FinishedAt = o.now().UTC()
	run.Status = computeStatus(run.Entities, ctxErr != nil)
	o.finish(ctx, logger, span, run)
	return run, ctxErr
}

// execute moves one entity through Running to a terminal state.
func (o *Orchestrator) execute(ctx context.Context, logger *slog.Logger, op entity.Operation, step entity.Step, res *EntityResult) {
	log := logger.With("entity", step.Entity)

	if step.Err != nil {
		o.mustTransition(log, res, StateFailed)
		res.err = step.Err
		res.Error = step.Err.Error()
		log.Error("entity not runnable", "error", step.Err)
		o.observe(op, res, 0)
		return
	}
	if step.Strategy == nil {
		o.mustTransition(log, res, StateSkipped)
		res.noop = true
		res.Reason = "nothing to " + string(op)
		log.Debug("entity has no strategy for operation")
		o.observe(op, res, 0)
		return
	}

	o.mustTransition(log, res, StateRunning)
	ctx, span := o.tracer.Start(ctx, "repovault.entity",
		trace.WithAttributes(
			attribute.String("repovault.entity", step.Entity),
			attribute.String("repovault.selection", step.Enablement.Selection.String()),
		))
	defer span.End()

	log.Info("entity started", "selection", step.Enablement.Selection.String())
	start := o.now()
	outcome, err := runStrategy(ctx, step.Strategy)
	elapsed := o.now().Sub(start)
	res.DurationMS = elapsed.Milliseconds()
	res.setOutcome(outcome)

	span.SetAttributes(
		attribute.Int("repovault.items", outcome.Items),
		attribute.Int("repovault.skipped", outcome.Skipped),
	)
	if err != nil {
		o.mustTransition(log, res, StateFailed)
		res.err = err
		res.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Error("entity failed", "error", err, "duration", elapsed)
	} else {
		o.mustTransition(log, res, StateSucceeded)
		log.Info("entity finished",
			"items", outcome.Items,
			"skipped", outcome.Skipped,
			"overwritten", outcome.Overwritten,
			"renamed", outcome.Renamed,
			"duration", elapsed,
		)
	}
	o.observe(op, res, elapsed)
}

// runStrategy calls s.Run, turning a panic into an error so one entity
// cannot take down the run.
func runStrategy(ctx context.Context, s entity.Strategy) (out entity.Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("strategy panicked: %v", r)
		}
	}()
	return s.Run(ctx)
}

func (o *Orchestrator) skip(logger *slog.Logger, op entity.Operation, res *EntityResult, reason string) {
	o.mustTransition(logger, res, StateSkipped)
	res.Reason = reason
	logger.Info("entity skipped", "entity", res.Name, "reason", reason)
	o.observe(op, res, 0)
}

// mustTransition applies a state change. Illegal changes are programming
// errors; they are logged and ignored so the result stays consistent.
func (o *Orchestrator) mustTransition(logger *slog.Logger, res *EntityResult, to State) {
	if err := res.transition(to); err != nil {
		logger.Error("state machine violation", "error", err)
	}
}

func (o *Orchestrator) observe(op entity.Operation, res *EntityResult, d time.Duration) {
	if o.metrics == nil {
		return
	}
	o.metrics.EntityFinished(string(op), res.Name, string(res.Status), d)
	o.metrics.Items(string(op), res.Name, "processed", res.Items)
	o.metrics.Items(string(op), res.Name, "skipped", res.Skipped)
	o.metrics.Items(string(op), res.Name, "overwritten", res.Overwritten)
	o.metrics.Items(string(op), res.Name, "renamed", res.Renamed)
}

func (o *Orchestrator) finish(ctx context.Context, logger *slog.Logger, span trace.Span, run *RunResult) {
	span.SetAttributes(attribute.String("repovault.status", string(run.Status)))
	if run.Status != RunSuccess {
		span.SetStatus(codes.Error, string(run.Status))
	}
	if o.metrics != nil {
		o.metrics.RunFinished(string(run.Operation), string(run.Status), run.Duration(), run.FinishedAt)
	}

	logger.Info("run finished",
		"status", run.Status,
		"succeeded", run.Count(StateSucceeded),
		"failed", run.Count(StateFailed),
		"skipped", run.Count(StateSkipped),
		"duration", run.Duration(),
	)

	if o.recorder != nil {
		// Record even when ctx was cancelled.
		if err := o.recorder.RecordRun(context.WithoutCancel(ctx), run); err != nil {
			logger.Warn("failed to record run", "error", err)
		}
	}
}
