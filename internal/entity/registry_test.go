package entity

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	rverrors "github.com/randalmurphal/repovault/internal/errors"
	"github.com/randalmurphal/repovault/internal/selection"
)

func def(name string, deps ...string) *Definition {
	return &Definition{EntityName: name, DependsOn: deps, Type: selection.TypeBoolean, Default: "true"}
}

func mustRegister(t *testing.T, r *Registry, ds ...Descriptor) {
	t.Helper()
	for _, d := range ds {
		require.NoError(t, r.Register(d))
	}
}

func TestRegister_RejectsMalformed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		d    Descriptor
	}{
		{"nil", nil},
		{"empty name", def("")},
		{"bad type", &Definition{EntityName: "x", Type: 0, Default: "true"}},
		{"bad default", &Definition{EntityName: "x", Type: selection.TypeBoolean, Default: "1-3"}},
		{"blank default", &Definition{EntityName: "x", Type: selection.TypeNumeric, Default: ""}},
		{"parent not a dependency", &Definition{EntityName: "x", Owner: "y", Type: selection.TypeBoolean, Default: "true"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := NewRegistry()
			err := r.Register(tt.d)
			require.Error(t, err)
			assert.True(t, rverrors.IsConfiguration(err), "got %v", err)
			assert.Zero(t, r.Len())
			assert.Len(t, r.Diagnostics(), 1)
		})
	}
}

func TestRegister_Duplicate(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	mustRegister(t, r, def("labels"))
	require.Error(t, r.Register(def("labels")))
	assert.Equal(t, 1, r.Len())
	require.Len(t, r.Diagnostics(), 1)
	assert.Equal(t, "labels", r.Diagnostics()[0].Name)
}

func TestRegister_FrozenAfterValidate(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	mustRegister(t, r, def("labels"))
	require.NoError(t, r.Validate())
	assert.True(t, r.Frozen())

	err := r.Register(def("milestones"))
	require.Error(t, err)
	assert.True(t, rverrors.HasCode(err, rverrors.CodeRegistryFrozen))
	assert.NoError(t, r.Validate(), "validate is idempotent")
}

func TestValidate_UnknownDependency(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	mustRegister(t, r, def("issues", "labels"))
	err := r.Validate()
	require.Error(t, err)
	assert.True(t, rverrors.HasCode(err, rverrors.CodeUnknownDependency))
	assert.Contains(t, err.Error(), "labels")
	assert.False(t, r.Frozen())
}

func TestValidate_CycleReportsFullPath(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	mustRegister(t, r, def("a", "c"), def("b", "a"), def("c", "b"))
	err := r.Validate()
	require.Error(t, err)
	assert.True(t, rverrors.HasCode(err, rverrors.CodeDependencyCycle))

	e := rverrors.AsError(err)
	require.NotNil(t, e)
	assert.Equal(t, []string{"a", "c", "b", "a"}, e.Path)
	assert.Contains(t, err.Error(), "a -> c -> b -> a")
}

func TestValidate_SelfDependency(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	mustRegister(t, r, def("a", "a"))
	err := r.Validate()
	require.Error(t, err)
	assert.Equal(t, []string{"a", "a"}, rverrors.AsError(err).Path)
}

func TestOrdered_StableByRegistrationIndex(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	mustRegister(t, r,
		def("issues", "labels", "milestones"),
		def("labels"),
		def("comments", "issues"),
		def("milestones"),
		def("releases"),
	)
	require.NoError(t, r.Validate())

	assert.Equal(t, []string{"labels", "milestones", "issues", "comments", "releases"}, r.Names())

	ordered := r.Ordered()
	ordered[0] = nil
	assert.NotNil(t, r.Ordered()[0], "Ordered returns a copy")
}

func TestGet(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	mustRegister(t, r, def("labels"))

	d, err := r.Get("labels")
	require.NoError(t, err)
	assert.Equal(t, "labels", d.Name())

	_, err = r.Get("wiki")
	assert.True(t, rverrors.HasCode(err, rverrors.CodeEntityNotFound))
}

func TestDependents(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	mustRegister(t, r, def("labels"), def("issues", "labels"), def("comments", "issues"), def("releases"))
	assert.Nil(t, r.Dependents("labels"), "no graph before Validate")
	require.NoError(t, r.Validate())

	assert.Equal(t, []string{"issues", "comments"}, r.Dependents("labels"))
	assert.Empty(t, r.Dependents("releases"))
}

func TestSelectionNodes(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	mustRegister(t, r, def("issues"), &Definition{
		EntityName: "comments", DependsOn: []string{"issues"}, Owner: "issues",
		Type: selection.TypeBoolean, Default: "false",
	})

	nodes := r.SelectionNodes()
	require.Len(t, nodes, 2)
	assert.Equal(t, "issues", nodes[1].Parent)
	assert.Equal(t, "false", nodes[1].Default)
}

// TestOrder_Property checks that on random DAGs every entity comes after its
// dependencies and that the order does not change between runs.
func TestOrder_Property(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 12).Draw(rt, "n")
		names := make([]string, n)
		for i := range names {
			names[i] = fmt.Sprintf("e%02d", i)
		}
		// Dependencies only point at lower-numbered entities, which keeps the
		// graph acyclic; registration order is shuffled separately.
		deps := make(map[string][]string, n)
		for i := 1; i < n; i++ {
			for j := 0; j < i; j++ {
				if rapid.Bool().Draw(rt, fmt.Sprintf("edge_%d_%d", i, j)) {
					deps[names[i]] = append(deps[names[i]], names[j])
				}
			}
		}
		perm := rapid.Permutation(names).Draw(rt, "registration")

		build := func() []string {
			r := NewRegistry()
			for _, name := range perm {
				if err := r.Register(def(name, deps[name]...)); err != nil {
					rt.Fatalf("Register(%s): %v", name, err)
				}
			}
			if err := r.Validate(); err != nil {
				rt.Fatalf("Validate: %v", err)
			}
			return r.Names()
		}

		order := build()
		if len(order) != n {
			rt.Fatalf("order has %d entries, want %d", len(order), n)
		}
		pos := make(map[string]int, n)
		for i, name := range order {
			pos[name] = i
		}
		for name, ds := range deps {
			for _, d := range ds {
				if pos[d] > pos[name] {
					rt.Fatalf("%s runs before its dependency %s: %s", name, d, strings.Join(order, ","))
				}
			}
		}
		if again := build(); strings.Join(again, ",") != strings.Join(order, ",") {
			rt.Fatalf("order not deterministic: %v vs %v", order, again)
		}
	})
}
