// Package selection parses per-entity inclusion specs and resolves which
// items of each entity a run processes.
//
// A spec is "true" (all items), "false" (no items) or a space-separated list
// of positive numbers and inclusive ranges, e.g. "1-10 20 30-35".
package selection

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Type is the kind of selection an entity accepts.
type Type int

const (
	// TypeBoolean entities are either fully included or excluded.
	TypeBoolean Type = iota + 1
	// TypeNumeric entities additionally accept explicit number sets.
	TypeNumeric
)

// String returns the type name.
func (t Type) String() string {
	switch t {
	case TypeBoolean:
		return "boolean"
	case TypeNumeric:
		return "numeric"
	default:
		return "unknown"
	}
}

// Valid reports whether t is a known selection type.
func (t Type) Valid() bool {
	return t == TypeBoolean || t == TypeNumeric
}

// Kind distinguishes the variants of a Spec.
type Kind int

const (
	KindNone Kind = iota
	KindAll
	KindExplicit
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindAll:
		return "all"
	case KindExplicit:
		return "explicit"
	default:
		return "none"
	}
}

// Range is an inclusive span of item numbers.
type Range struct {
	Start int
	End   int
}

// Spec is a parsed selection. The zero value selects nothing.
type Spec struct {
	kind   Kind
	ranges []Range // sorted, non-overlapping, non-adjacent
}

// All returns a spec selecting every item.
func All() Spec { return Spec{kind: KindAll} }

// None returns a spec selecting no item.
func None() Spec { return Spec{} }

// Explicit returns a spec selecting exactly the given numbers.
func Explicit(ids ...int) (Spec, error) {
	if len(ids) == 0 {
		return Spec{}, errors.New("explicit selection must not be empty")
	}
	ranges := make([]Range, 0, len(ids))
	for _, id := range ids {
		if id <= 0 {
			return Spec{}, fmt.Errorf("%d is not a positive integer", id)
		}
		ranges = append(ranges, Range{Start: id, End: id})
	}
	return Spec{kind: KindExplicit, ranges: normalize(ranges)}, nil
}

// MustExplicit is Explicit for fixed inputs; it panics on invalid ids.
func MustExplicit(ids ...int) Spec {
	s, err := Explicit(ids...)
	if err != nil {
		panic(err)
	}
	return s
}

// Kind returns the spec variant.
func (s Spec) Kind() Kind { return s.kind }

// IsAll reports whether every item is selected.
func (s Spec) IsAll() bool { return s.kind == KindAll }

// IsNone reports whether no item is selected.
func (s Spec) IsNone() bool { return s.kind == KindNone }

// Ranges returns a copy of the explicit ranges.
func (s Spec) Ranges() []Range {
	return append([]Range(nil), s.ranges...)
}

// IDs expands an explicit spec into its numbers in ascending order.
// It returns nil for All and None.
func (s Spec) IDs() []int {
	if s.kind != KindExplicit {
		return nil
	}
	var ids []int
	for _, r := range s.ranges {
		for i := r.Start; i <= r.End; i++ {
			ids = append(ids, i)
		}
	}
	return ids
}

// Contains reports whether item id is selected.
func (s Spec) Contains(id int) bool {
	switch s.kind {
	case KindAll:
		return true
	case KindExplicit:
		i := sort.Search(len(s.ranges), func(i int) bool { return s.ranges[i].End >= id })
		return i < len(s.ranges) && s.ranges[i].Start <= id
	default:
		return false
	}
}

// Intersect returns the items selected by both specs.
func (s Spec) Intersect(o Spec) Spec {
	switch {
	case s.kind == KindNone || o.kind == KindNone:
		return None()
	case s.kind == KindAll:
		return o
	case o.kind == KindAll:
		return s
	}
	var out []Range
	i, j := 0, 0
	for i < len(s.ranges) && j < len(o.ranges) {
		a, b := s.ranges[i], o.ranges[j]
		lo, hi := max(a.Start, b.Start), min(a.End, b.End)
		if lo <= hi {
			out = append(out, Range{Start: lo, End: hi})
		}
		if a.End < b.End {
			i++
		} else {
			j++
		}
	}
	if len(out) == 0 {
		return None()
	}
	return Spec{kind: KindExplicit, ranges: out}
}

// Equal reports whether both specs select the same items.
func (s Spec) Equal(o Spec) bool {
	if s.kind != o.kind || len(s.ranges) != len(o.ranges) {
		return false
	}
	for i := range s.ranges {
		if s.ranges[i] != o.ranges[i] {
			return false
		}
	}
	return true
}

// String returns the canonical form of the spec.
func (s Spec) String() string { return Format(s) }

// Format renders a spec in canonical form: ascending numbers with
// consecutive runs collapsed into ranges. The result re-parses to an
// identical spec.
func Format(s Spec) string {
	switch s.kind {
	case KindAll:
		return "true"
	case KindNone:
		return "false"
	}
	parts := make([]string, 0, len(s.ranges))
	for _, r := range s.ranges {
		if r.Start == r.End {
			parts = append(parts, strconv.Itoa(r.Start))
		} else {
			parts = append(parts, strconv.Itoa(r.Start)+"-"+strconv.Itoa(r.End))
		}
	}
	return strings.Join(parts, " ")
}

// Parse parses a spec string. It never coerces malformed input.
func Parse(raw string) (Spec, error) {
	if strings.TrimSpace(raw) == "" {
		return Spec{}, errors.New("selection must not be empty")
	}
	switch strings.ToLower(raw) {
	case "true":
		return All(), nil
	case "false":
		return None(), nil
	}

	tokens := strings.Split(raw, " ")
	ranges := make([]Range, 0, len(tokens))
	for _, tok := range tokens {
		r, err := parseToken(tok)
		if err != nil {
			return Spec{}, err
		}
		ranges = append(ranges, r)
	}
	return Spec{kind: KindExplicit, ranges: normalize(ranges)}, nil
}

// ParseFor parses raw and checks it against the entity's selection type.
func ParseFor(t Type, raw string) (Spec, error) {
	s, err := Parse(raw)
	if err != nil {
		return Spec{}, err
	}
	if t == TypeBoolean && s.kind == KindExplicit {
		return Spec{}, errors.New(`entity only accepts "true" or "false"`)
	}
	return s, nil
}

func parseToken(tok string) (Range, error) {
	if tok == "" {
		return Range{}, errors.New("tokens must be separated by exactly one space")
	}
	for _, c := range tok {
		if (c < '0' || c > '9') && c != '-' {
			return Range{}, fmt.Errorf("unsupported character %q in %q", c, tok)
		}
	}
	start, end, isRange := strings.Cut(tok, "-")
	lo, err := parseInteger(start, tok)
	if err != nil {
		return Range{}, err
	}
	if !isRange {
		return Range{Start: lo, End: lo}, nil
	}
	hi, err := parseInteger(end, tok)
	if err != nil {
		return Range{}, err
	}
	if hi < lo {
		return Range{}, fmt.Errorf("range %q ends before it starts", tok)
	}
	return Range{Start: lo, End: hi}, nil
}

func parseInteger(s, tok string) (int, error) {
	if s == "" || strings.Contains(s, "-") {
		return 0, fmt.Errorf("malformed token %q", tok)
	}
	if s[0] == '0' {
		return 0, fmt.Errorf("%q is not a positive integer", s)
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%q is out of range", s)
	}
	return n, nil
}

// normalize sorts ranges and merges overlapping or adjacent spans.
func normalize(ranges []Range) []Range {
	sort.Slice(ranges, func(i, j int) bool { return ranges[i].Start < ranges[j].Start })
	out := ranges[:0]
	for _, r := range ranges {
		// End+1 would wrap at math.MaxInt.
		if n := len(out); n > 0 && (out[n-1].End == math.MaxInt || r.Start <= out[n-1].End+1) {
			if r.End > out[n-1].End {
				out[n-1].End = r.End
			}
			continue
		}
		out = append(out, r)
	}
	return out
}
