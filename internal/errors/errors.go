// Package errors provides structured error types for repovault.
package errors

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Code represents a unique error code.
type Code string

// Error codes for repovault.
const (
	// Configuration errors, all raised before any entity runs.
	CodeConfigInvalid          Code = "CONFIG_INVALID"
	CodeUnknownDependency      Code = "CONFIG_UNKNOWN_DEPENDENCY"
	CodeDependencyCycle        Code = "CONFIG_DEPENDENCY_CYCLE"
	CodeSelectionInvalid       Code = "CONFIG_SELECTION_INVALID"
	CodeDataFormatIncompatible Code = "DATA_FORMAT_INCOMPATIBLE"
	CodeEntityNotFound         Code = "ENTITY_NOT_FOUND"
	CodeServiceMissing         Code = "SERVICE_MISSING"
	CodeStrategyConstruction   Code = "STRATEGY_CONSTRUCTION"
	CodeConflict               Code = "CONFLICT"
	CodeRegistryFrozen         Code = "REGISTRY_FROZEN"
)

// Category groups error codes by the point in a run at which they surface.
type Category int

const (
	CategoryUnknown Category = iota
	// CategoryConfiguration errors stop the run before it starts.
	CategoryConfiguration
	// CategoryEntity errors are contained to a single entity.
	CategoryEntity
	CategoryNotFound
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryConfiguration:
		return "configuration"
	case CategoryEntity:
		return "entity"
	case CategoryNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

var codeCategories = map[Code]Category{
	CodeConfigInvalid:          CategoryConfiguration,
	CodeUnknownDependency:      CategoryConfiguration,
	CodeDependencyCycle:        CategoryConfiguration,
	CodeSelectionInvalid:       CategoryConfiguration,
	CodeDataFormatIncompatible: CategoryConfiguration,
	CodeRegistryFrozen:         CategoryConfiguration,
	CodeEntityNotFound:         CategoryNotFound,
	CodeServiceMissing:         CategoryEntity,
	CodeStrategyConstruction:   CategoryEntity,
	CodeConflict:               CategoryEntity,
}

// Error is the structured error type for repovault.
type Error struct {
	Code    Code     `json:"code"`
	What    string   `json:"what"`
	Why     string   `json:"why,omitempty"`
	Fix     string   `json:"fix,omitempty"`
	Entity  string   `json:"entity,omitempty"`
	Service string   `json:"service,omitempty"`
	Path    []string `json:"path,omitempty"`
	Cause   error    `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.What)
	if e.Why != "" {
		b.WriteString(": ")
		b.WriteString(e.Why)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// UserMessage returns a user-friendly message for CLI output.
func (e *Error) UserMessage() string {
	var b strings.Builder
	b.WriteString("Error: ")
	b.WriteString(e.What)
	if e.Why != "" {
		b.WriteString("\n\nWhy: ")
		b.WriteString(e.Why)
	}
	if e.Fix != "" {
		b.WriteString("\n\nFix: ")
		b.WriteString(e.Fix)
	}
	return b.String()
}

// Category returns the error category.
func (e *Error) Category() Category {
	if cat, ok := codeCategories[e.Code]; ok {
		return cat
	}
	return CategoryUnknown
}

// MarshalJSON implements json.Marshaler.
func (e *Error) MarshalJSON() ([]byte, error) {
	type alias Error
	aux := struct {
		*alias
		CauseMsg string `json:"cause,omitempty"`
	}{
		alias: (*alias)(e),
	}
	if e.Cause != nil {
		aux.CauseMsg = e.Cause.Error()
	}
	return json.Marshal(aux)
}

// Is reports whether target is an Error with the same code.
// A target with Entity set additionally matches on entity.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if e.Code != t.Code {
		return false
	}
	return t.Entity == "" || t.Entity == e.Entity
}

// WithCause returns a copy of the error with the given cause.
func (e *Error) WithCause(err error) *Error {
	cp := *e
	cp.Cause = err
	return &cp
}

// --- Error constructors ---

// ErrConfigInvalid returns an error for invalid configuration.
func ErrConfigInvalid(field, reason string) *Error {
	return &Error{
		Code: CodeConfigInvalid,
		What: fmt.Sprintf("invalid configuration: %s", field),
		Why:  reason,
		Fix:  "Check repovault.yaml and the REPOVAULT_* / INCLUDE_* environment variables",
	}
}

// ErrInvalidDescriptor returns an error for a descriptor that failed shape checks.
func ErrInvalidDescriptor(name, reason string) *Error {
	return &Error{
		Code:   CodeConfigInvalid,
		What:   fmt.Sprintf("entity descriptor %q is invalid", name),
		Why:    reason,
		Entity: name,
	}
}

// ErrUnknownDependency returns an error when an entity depends on an unregistered entity.
func ErrUnknownDependency(entity, dependency string) *Error {
	return &Error{
		Code:   CodeUnknownDependency,
		What:   fmt.Sprintf("entity %s depends on unknown entity %s", entity, dependency),
		Why:    "Every dependency must name a registered entity",
		Fix:    "Register the missing entity or remove it from the dependency list",
		Entity: entity,
	}
}

// ErrDependencyCycle returns an error naming the full cycle, e.g. a -> b -> a.
func ErrDependencyCycle(path []string) *Error {
	entity := ""
	if len(path) > 0 {
		entity = path[0]
	}
	return &Error{
		Code:   CodeDependencyCycle,
		What:   "entity dependency cycle detected",
		Why:    strings.Join(path, " -> "),
		Fix:    "Remove one of the dependencies along the cycle",
		Entity: entity,
		Path:   append([]string(nil), path...),
	}
}

// ErrSelectionInvalid returns an error for a malformed selection spec.
func ErrSelectionInvalid(entity, raw, reason string) *Error {
	return &Error{
		Code:   CodeSelectionInvalid,
		What:   fmt.Sprintf("invalid selection %q for %s", raw, entity),
		Why:    reason,
		Fix:    `Use "true", "false" or space-separated numbers and ranges such as "1-10 20 30-35"`,
		Entity: entity,
	}
}

// ErrEntityNotFound returns an error when an entity is not registered.
func ErrEntityNotFound(name string) *Error {
	return &Error{
		Code:   CodeEntityNotFound,
		What:   fmt.Sprintf("entity %s not found", name),
		Why:    "No entity with this name is registered",
		Fix:    "Run 'repovault entities' to list available entities",
		Entity: name,
	}
}

// ErrServiceMissing returns an error when a required service is absent from the strategy context.
func ErrServiceMissing(entity, service string) *Error {
	return &Error{
		Code:    CodeServiceMissing,
		What:    fmt.Sprintf("entity %s requires service %s", entity, service),
		Why:     "The service is not configured for this run",
		Entity:  entity,
		Service: service,
	}
}

// ErrStrategyConstruction wraps a failure raised while building an entity's strategy.
func ErrStrategyConstruction(entity string, cause error) *Error {
	return &Error{
		Code:   CodeStrategyConstruction,
		What:   fmt.Sprintf("build strategy for %s", entity),
		Entity: entity,
		Cause:  cause,
	}
}

// ErrConflict returns an error for a restore collision under the fail policy.
func ErrConflict(entity, identity string) *Error {
	return &Error{
		Code:   CodeConflict,
		What:   fmt.Sprintf("%s %q already exists in the target", entity, identity),
		Why:    "The conflict policy for this entity is 'fail'",
		Fix:    "Choose skip, overwrite or rename via conflict.mode or conflict.entities",
		Entity: entity,
	}
}

// ErrDataFormatIncompatible returns an error when a data root was written by an unsupported format version.
func ErrDataFormatIncompatible(version, constraint string) *Error {
	return &Error{
		Code: CodeDataFormatIncompatible,
		What: fmt.Sprintf("data format %s is not supported", version),
		Why:  fmt.Sprintf("This build reads data formats matching %s", constraint),
		Fix:  "Restore with the repovault version that produced the backup",
	}
}

// ErrRegistryFrozen returns an error when registering after validation.
func ErrRegistryFrozen(name string) *Error {
	return &Error{
		Code:   CodeRegistryFrozen,
		What:   fmt.Sprintf("cannot register %s after validation", name),
		Why:    "The entity registry is read-only once validated",
		Entity: name,
	}
}

// AsError attempts to convert an error to an *Error.
// Returns nil if the error is not an *Error.
func AsError(err error) *Error {
	var e *Error
	if As(err, &e) {
		return e
	}
	return nil
}

// As is a convenience wrapper for errors.As.
func As(err error, target any) bool {
	return asError(err, target)
}

// asError implements errors.As behavior for *Error, following both
// single and joined wrapping.
func asError(err error, target any) bool {
	if err == nil {
		return false
	}
	if e, ok := err.(*Error); ok {
		if t, ok := target.(**Error); ok {
			*t = e
			return true
		}
	}
	switch u := err.(type) {
	case interface{ Unwrap() error }:
		return asError(u.Unwrap(), target)
	case interface{ Unwrap() []error }:
		for _, inner := range u.Unwrap() {
			if asError(inner, target) {
				return true
			}
		}
	}
	return false
}

// IsConfiguration reports whether err carries a configuration-category error.
func IsConfiguration(err error) bool {
	e := AsError(err)
	return e != nil && e.Category() == CategoryConfiguration
}

// HasCode reports whether err carries an *Error with the given code.
func HasCode(err error, code Code) bool {
	e := AsError(err)
	return e != nil && e.Code == code
}

// Wrap wraps a generic error into an Error with unknown code.
func Wrap(err error, what string) *Error {
	return &Error{
		Code:  Code("UNKNOWN"),
		What:  what,
		Cause: err,
	}
}
