// Package conflict decides what a restore does when an incoming item
// collides with an item already present in the target project.
package conflict

import (
	"fmt"
	"strings"
)

// Mode is the configured collision behavior.
type Mode string

const (
	// ModeSkip leaves the existing item untouched and omits the incoming one.
	ModeSkip Mode = "skip"
	// ModeOverwrite replaces the existing item in place.
	ModeOverwrite Mode = "overwrite"
	// ModeRename keeps both by giving the incoming item a new identity.
	ModeRename Mode = "rename"
	// ModeFail aborts the entity's restore on the first collision.
	ModeFail Mode = "fail"
)

// DefaultMode is used when nothing is configured.
const DefaultMode = ModeSkip

// Modes lists every supported mode.
func Modes() []Mode {
	return []Mode{ModeSkip, ModeOverwrite, ModeRename, ModeFail}
}

// ParseMode parses a mode name. The empty string yields DefaultMode.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return DefaultMode, nil
	case ModeSkip, ModeOverwrite, ModeRename, ModeFail:
		return m, nil
	default:
		return "", fmt.Errorf("unknown conflict mode %q (supported: skip, overwrite, rename, fail)", s)
	}
}

// Decision is the outcome for one colliding item.
type Decision int

const (
	Skip Decision = iota
	Overwrite
	Rename
	Fail
)

// String returns the decision name.
func (d Decision) String() string {
	switch d {
	case Overwrite:
		return "overwrite"
	case Rename:
		return "rename"
	case Fail:
		return "fail"
	default:
		return "skip"
	}
}

// Identity names an item already present in the target.
type Identity struct {
	Entity string
	Key    string
}

// Item describes an incoming item about to be created.
type Item struct {
	Entity string
	Key    string
}

// Decide returns the decision for a collision between existing and
// incoming under mode. It depends on nothing but its arguments.
func Decide(existing Identity, incoming Item, mode Mode) Decision {
	switch mode {
	case ModeOverwrite:
		return Overwrite
	case ModeRename:
		return Rename
	case ModeFail:
		return Fail
	default:
		return Skip
	}
}

// Policy selects a mode per entity. The zero value skips everything.
type Policy struct {
	Default   Mode
	PerEntity map[string]Mode
}

// NewPolicy builds a policy from a default mode and per-entity overrides.
func NewPolicy(def Mode, perEntity map[string]Mode) Policy {
	cp := make(map[string]Mode, len(perEntity))
	for k, v := range perEntity {
		cp[k] = v
	}
	return Policy{Default: def, PerEntity: cp}
}

// ModeFor returns the effective mode for an entity.
func (p Policy) ModeFor(entity string) Mode {
	if m, ok := p.PerEntity[entity]; ok && m != "" {
		return m
	}
	if p.Default == "" {
		return DefaultMode
	}
	return p.Default
}

// Decide applies the entity's mode to a collision.
func (p Policy) Decide(existing Identity, incoming Item) Decision {
	return Decide(existing, incoming, p.ModeFor(incoming.Entity))
}

// RenameKey returns the first key derived from key that taken reports as free:
// "key (restored)", then "key (restored 2)", "key (restored 3)", ...
func RenameKey(key string, taken func(string) bool) string {
	candidate := key + " (restored)"
	for n := 2; taken(candidate); n++ {
		candidate = fmt.Sprintf("%s (restored %d)", key, n)
	}
	return candidate
}
