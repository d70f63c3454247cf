package selection

import (
	"fmt"
	"sort"

	rverrors "github.com/randalmurphal/repovault/internal/errors"
)

// Node is the selection-relevant view of one entity.
type Node struct {
	Name         string
	Dependencies []string
	// Parent is the dependency that owns this entity's items (issues own
	// comments). Empty for entities that only depend on others for ordering.
	Parent  string
	Type    Type
	Default string
}

// Graph exposes the entity nodes a resolver works over.
type Graph interface {
	SelectionNodes() []Node
}

// Severity grades resolver warnings.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Warning is a non-fatal resolution finding.
type Warning struct {
	Entity     string
	Dependency string
	Severity   Severity
	Message    string
}

// String renders the warning for logs and CLI output.
func (w Warning) String() string {
	return fmt.Sprintf("%s: %s", w.Entity, w.Message)
}

// Enablement is the resolved selection of one entity.
type Enablement struct {
	Entity    string
	Enabled   bool
	Selection Spec
	// Parent and ParentScope narrow the entity's items to those belonging
	// to selected parent items. ParentScope is All when there is no parent
	// or the selection was overridden.
	Parent      string
	ParentScope Spec
	Overridden  bool
}

// Allows reports whether the item numbered id is selected.
func (e Enablement) Allows(id int) bool {
	return e.Enabled && e.Selection.Contains(id)
}

// AllowsParent reports whether items belonging to parent item parentID are selected.
func (e Enablement) AllowsParent(parentID int) bool {
	return e.Enabled && e.ParentScope.Contains(parentID)
}

// Includes reports whether item id belonging to parent item parentID is selected.
func (e Enablement) Includes(id, parentID int) bool {
	return e.Allows(id) && e.AllowsParent(parentID)
}

// Empty reports whether the entity can select no item at all.
func (e Enablement) Empty() bool {
	return !e.Enabled || e.Selection.IsNone() || e.ParentScope.IsNone()
}

// Resolution is the output of Resolve.
type Resolution struct {
	Enablements map[string]Enablement
	Warnings    []Warning
}

// Get returns the enablement for an entity.
func (r *Resolution) Get(name string) (Enablement, bool) {
	e, ok := r.Enablements[name]
	return e, ok
}

// Enabled returns the names of enabled entities in sorted order.
func (r *Resolution) Enabled() []string {
	var names []string
	for name, e := range r.Enablements {
		if e.Enabled {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Resolver turns raw spec strings into enablements.
type Resolver struct {
	// Strict turns "child enabled while its parent is disabled" into a
	// configuration error instead of a warning.
	Strict bool
}

// Resolve parses raw specs for every node of g and applies parent coupling.
// Entities missing from raw use their default. Names in overrides keep their
// own selection without parent narrowing. Resolve does not mutate its inputs
// and returns the same result for the same inputs.
func (r Resolver) Resolve(g Graph, raw map[string]string, overrides ...string) (*Resolution, error) {
	nodes := g.SelectionNodes()
	byName := make(map[string]Node, len(nodes))
	for _, n := range nodes {
		byName[n.Name] = n
	}

	for _, name := range sortedKeys(raw) {
		if _, ok := byName[name]; !ok {
			return nil, rverrors.ErrSelectionInvalid(name, raw[name], "no such entity")
		}
	}
	overridden := make(map[string]bool, len(overrides))
	for _, name := range overrides {
		if _, ok := byName[name]; !ok {
			return nil, rverrors.ErrConfigInvalid("overrides", fmt.Sprintf("unknown entity %q", name))
		}
		overridden[name] = true
	}

	res := &Resolution{Enablements: make(map[string]Enablement, len(nodes))}

	// Own selections first; coupling needs every parent parsed.
	for _, n := range nodes {
		value, ok := raw[n.Name]
		if !ok {
			value = n.Default
		}
		spec, err := ParseFor(n.Type, value)
		if err != nil {
			return nil, rverrors.ErrSelectionInvalid(n.Name, value, err.Error())
		}
		res.Enablements[n.Name] = Enablement{
			Entity:      n.Name,
			Enabled:     !spec.IsNone(),
			Selection:   spec,
			Parent:      n.Parent,
			ParentScope: All(),
			Overridden:  overridden[n.Name],
		}
	}

	c := coupler{nodes: byName, res: res, strict: r.Strict, done: make(map[string]bool, len(nodes))}
	for _, n := range nodes {
		if err := c.couple(n.Name); err != nil {
			return nil, err
		}
	}
	return res, nil
}

type coupler struct {
	nodes  map[string]Node
	res    *Resolution
	strict bool
	done   map[string]bool
}

// couple narrows name's parent scope, resolving its parent first so that an
// effectively empty grandparent propagates down the chain.
func (c *coupler) couple(name string) error {
	if c.done[name] {
		return nil
	}
	c.done[name] = true

	n := c.nodes[name]
	e := c.res.Enablements[name]

	if n.Parent != "" {
		if _, ok := c.nodes[n.Parent]; ok {
			if err := c.couple(n.Parent); err != nil {
				return err
			}
		}
	}
	if !e.Enabled {
		return nil
	}

	for _, dep := range n.Dependencies {
		if dep == n.Parent {
			continue
		}
		if de, ok := c.res.Enablements[dep]; ok && !de.Enabled {
			c.res.Warnings = append(c.res.Warnings, Warning{
				Entity:     name,
				Dependency: dep,
				Severity:   SeverityInfo,
				Message:    fmt.Sprintf("%s is disabled; references to it may not restore", dep),
			})
		}
	}

	if n.Parent == "" || e.Overridden {
		return nil
	}
	pe, ok := c.res.Enablements[n.Parent]
	if !ok {
		return nil
	}
	if pe.Empty() {
		if c.strict {
			return rverrors.ErrSelectionInvalid(name, e.Selection.String(),
				fmt.Sprintf("requires %s to be enabled", n.Parent))
		}
		c.res.Warnings = append(c.res.Warnings, Warning{
			Entity:     name,
			Dependency: n.Parent,
			Severity:   SeverityWarning,
			Message:    fmt.Sprintf("enabled but %s is disabled; no items will be processed", n.Parent),
		})
		e.ParentScope = None()
	} else {
		e.ParentScope = pe.Selection
	}
	c.res.Enablements[name] = e
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
