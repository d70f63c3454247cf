package entity

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rverrors "github.com/randalmurphal/repovault/internal/errors"
	"github.com/randalmurphal/repovault/internal/hosting/memory"
	"github.com/randalmurphal/repovault/internal/selection"
)

func noopStrategy(name string) Builder {
	return func(sc *StrategyContext) (Strategy, error) {
		return StrategyFunc{Name: name, Fn: func(context.Context) (Outcome, error) { return Outcome{}, nil }}, nil
	}
}

func resolveAll(t *testing.T, r *Registry, raw map[string]string) *selection.Resolution {
	t.Helper()
	res, err := selection.Resolver{}.Resolve(r, raw)
	require.NoError(t, err)
	return res
}

func TestBuild_MissingServiceSkipsFactory(t *testing.T) {
	t.Parallel()

	called := false
	r := NewRegistry()
	mustRegister(t, r, &Definition{
		EntityName: "git_repository",
		Type:       selection.TypeBoolean,
		Default:    "true",
		Needs:      map[Operation][]Service{OpSave: {ServiceAPI, ServiceVCS}},
		Save: func(sc *StrategyContext) (Strategy, error) {
			called = true
			return nil, nil
		},
	})

	sc := NewStrategyContext(WithAPI(memory.New("acme", "widgets")))
	plan := NewFactory(nil).BuildSave(r, resolveAll(t, r, nil), sc)

	require.Len(t, plan.Steps, 1)
	step := plan.Steps[0]
	assert.False(t, called, "factory must not run without its services")
	require.Error(t, step.Err)
	assert.True(t, rverrors.HasCode(step.Err, rverrors.CodeServiceMissing))
	assert.Equal(t, "vcs_service", rverrors.AsError(step.Err).Service)
	assert.Nil(t, step.Strategy)
}

func TestBuild_TypedNilServiceCountsAsMissing(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	mustRegister(t, r, &Definition{
		EntityName: "labels",
		Type:       selection.TypeBoolean,
		Default:    "true",
		Needs:      map[Operation][]Service{OpRestore: {ServiceAPI}},
		Restore:    noopStrategy("labels"),
	})

	var p *memory.Project
	sc := NewStrategyContext(WithAPI(p))
	plan := NewFactory(nil).BuildRestore(r, resolveAll(t, r, nil), sc)

	require.Len(t, plan.Steps, 1)
	assert.True(t, rverrors.HasCode(plan.Steps[0].Err, rverrors.CodeServiceMissing))
}

func TestBuild_WrapsErrorsAndPanics(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	r := NewRegistry()
	mustRegister(t, r,
		&Definition{EntityName: "labels", Type: selection.TypeBoolean, Default: "true",
			Save: func(*StrategyContext) (Strategy, error) { return nil, boom }},
		&Definition{EntityName: "milestones", Type: selection.TypeBoolean, Default: "true",
			Save: func(*StrategyContext) (Strategy, error) { panic("bad wiring") }},
		&Definition{EntityName: "releases", Type: selection.TypeBoolean, Default: "true",
			Save: noopStrategy("releases")},
	)

	plan := NewFactory(nil).BuildSave(r, resolveAll(t, r, nil), nil)
	require.Len(t, plan.Steps, 3, "construction continues past failures")

	labels, _ := plan.Step("labels")
	assert.True(t, rverrors.HasCode(labels.Err, rverrors.CodeStrategyConstruction))
	assert.ErrorIs(t, labels.Err, boom)

	milestones, _ := plan.Step("milestones")
	assert.True(t, rverrors.HasCode(milestones.Err, rverrors.CodeStrategyConstruction))
	assert.Contains(t, milestones.Err.Error(), "bad wiring")

	releases, _ := plan.Step("releases")
	require.NoError(t, releases.Err)
	require.NotNil(t, releases.Strategy)

	require.Len(t, plan.Strategies(), 1)
	assert.Equal(t, "releases", plan.Strategies()[0].Entity())
	assert.ErrorIs(t, plan.Err(), boom)
}

func TestBuild_NilStrategyIsNoOp(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	mustRegister(t, r, def("labels"))

	plan := NewFactory(nil).BuildRestore(r, resolveAll(t, r, nil), nil)
	require.Len(t, plan.Steps, 1)
	assert.True(t, plan.Steps[0].NoOp())
	assert.Empty(t, plan.Strategies())
	assert.NoError(t, plan.Err())
}

func TestBuild_DisabledEntitiesOmitted(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	mustRegister(t, r,
		&Definition{EntityName: "labels", Type: selection.TypeBoolean, Default: "true", Save: noopStrategy("labels")},
		&Definition{EntityName: "issues", DependsOn: []string{"labels"}, Type: selection.TypeNumeric, Default: "true", Save: noopStrategy("issues")},
		&Definition{EntityName: "releases", Type: selection.TypeBoolean, Default: "false", Save: noopStrategy("releases")},
	)

	plan := NewFactory(nil).BuildSave(r, resolveAll(t, r, map[string]string{"labels": "false"}), nil)
	assert.Equal(t, []string{"issues"}, plan.Entities())
	require.Len(t, plan.Warnings, 1, "disabled ordering dependency is reported")
}

func TestBuild_StrategyContextIsPerEntity(t *testing.T) {
	t.Parallel()

	seen := map[string]string{}
	capture := func(sc *StrategyContext) (Strategy, error) {
		seen[sc.Entity()] = sc.Enablement().Selection.String()
		return nil, nil
	}
	r := NewRegistry()
	mustRegister(t, r,
		&Definition{EntityName: "issues", Type: selection.TypeNumeric, Default: "true", Save: capture},
		&Definition{EntityName: "pull_requests", Type: selection.TypeNumeric, Default: "true", Save: capture},
	)

	base := NewStrategyContext()
	NewFactory(nil).BuildSave(r, resolveAll(t, r, map[string]string{"issues": "1-3"}), base)

	assert.Equal(t, map[string]string{"issues": "1-3", "pull_requests": "true"}, seen)
	assert.Empty(t, base.Entity(), "base context is not modified")
}

func TestBuild_InvalidRegistry(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	mustRegister(t, r, def("a", "b"), def("b", "a"))

	plan := NewFactory(nil).BuildSave(r, &selection.Resolution{}, nil)
	assert.Empty(t, plan.Steps)
	assert.True(t, rverrors.HasCode(plan.Err(), rverrors.CodeDependencyCycle))
}
