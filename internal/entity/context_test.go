package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/randalmurphal/repovault/internal/conflict"
	"github.com/randalmurphal/repovault/internal/selection"
)

func TestStrategyContext_Services(t *testing.T) {
	t.Parallel()

	policy := conflict.NewPolicy(conflict.ModeRename, nil)
	sc := NewStrategyContext(
		WithConflictPolicy(policy),
		WithDataRoot(""),
		WithService("custom", nil),
	)

	assert.True(t, sc.Has(ServiceConflictPolicy))
	assert.Equal(t, conflict.ModeRename, sc.ConflictPolicy().ModeFor("labels"))
	assert.False(t, sc.Has(ServiceDataRoot), "empty data root is unset")
	assert.False(t, sc.Has("custom"), "nil service is unset")
	assert.Nil(t, sc.API())
	assert.Nil(t, sc.Store())
	assert.Empty(t, sc.DataRoot())
}

func TestStrategyContext_ForEntity(t *testing.T) {
	t.Parallel()

	sc := NewStrategyContext(WithDataRoot("/data"))
	d := def("issues")
	spec := selection.MustExplicit(4, 5)
	child := sc.ForEntity(d, selection.Enablement{Entity: "issues", Enabled: true, Selection: spec})

	assert.Equal(t, "issues", child.Entity())
	assert.Same(t, d, child.Descriptor())
	assert.True(t, child.Enablement().Allows(4))
	assert.Equal(t, "/data", child.DataRoot(), "services are shared")
	assert.Nil(t, sc.Descriptor())
}

func TestConflictPolicyZeroValueSkips(t *testing.T) {
	t.Parallel()

	sc := NewStrategyContext()
	assert.Equal(t, conflict.ModeSkip, sc.ConflictPolicy().ModeFor("labels"))
}
