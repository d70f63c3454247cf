package orchestrator

import (
	"fmt"
	"time"

	"github.com/randalmurphal/repovault/internal/entity"
)

// State is an entity's position in a run.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StateSkipped   State = "skipped"
)

// Terminal reports whether s is a final state.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateSkipped
}

// canTransition lists the legal moves. Pending may be skipped without
// running; a terminal state never changes.
func canTransition(from, to State) bool {
	switch from {
	case StatePending:
		return to == StateRunning || to == StateFailed || to == StateSkipped
	case StateRunning:
		return to.Terminal()
	default:
		return false
	}
}

// RunStatus summarizes a whole run.
type RunStatus string

const (
	RunSuccess        RunStatus = "success"
	RunPartialFailure RunStatus = "partial_failure"
	RunFailure        RunStatus = "failure"
)

// EntityResult is one entity's record in a run.
type EntityResult struct {
	Name        string `json:"name"`
	Status      State  `json:"status"`
	Error       string `json:"error,omitempty"`
	Reason      string `json:"reason,omitempty"`
	Items       int    `json:"items"`
	Skipped     int    `json:"skipped"`
	Overwritten int    `json:"overwritten"`
	Renamed     int    `json:"renamed"`
	DurationMS  int64  `json:"duration_ms"`

	err error
	// noop marks an entity skipped because it has nothing to do for the
	// operation, as opposed to one skipped after a failure.
	noop bool
}

// Err returns the error that failed the entity, or nil.
func (r *EntityResult) Err() error { return r.err }

// Outcome returns the item counts as an entity.Outcome.
func (r *EntityResult) Outcome() entity.Outcome {
	return entity.Outcome{Items: r.Items, Skipped: r.Skipped, Overwritten: r.Overwritten, Renamed: r.Renamed}
}

func (r *EntityResult) transition(to State) error {
	if !canTransition(r.Status, to) {
		return fmt.Errorf("entity %s: illegal transition %s -> %s", r.Name, r.Status, to)
	}
	r.Status = to
	return nil
}

func (r *EntityResult) setOutcome(o entity.Outcome) {
	r.Items, r.Skipped, r.Overwritten, r.Renamed = o.Items, o.Skipped, o.Overwritten, o.Renamed
}

// RunResult is the record of one save or restore.
type RunResult struct {
	ID         string           `json:"id"`
	Operation  entity.Operation `json:"operation"`
	Status     RunStatus        `json:"status"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Entities   []*EntityResult  `json:"entities"`
}

// Entity returns the result for name, or nil.
func (r *RunResult) Entity(name string) *EntityResult {
	for _, e := range r.Entities {
		if e.Name == name {
			return e
		}
	}
	return nil
}

// Count returns how many entities ended in state s.
func (r *RunResult) Count(s State) int {
	n := 0
	for _, e := range r.Entities {
		if e.Status == s {
			n++
		}
	}
	return n
}

// Totals sums the item counts of every entity.
func (r *RunResult) Totals() entity.Outcome {
	var total entity.Outcome
	for _, e := range r.Entities {
		total.Add(e.Outcome())
	}
	return total
}

// Duration is the wall time of the run.
func (r *RunResult) Duration() time.Duration { return r.FinishedAt.Sub(r.StartedAt) }

// Failed reports whether the run did not fully succeed.
func (r *RunResult) Failed() bool { return r.Status != RunSuccess }

// computeStatus derives the run status. A run is a failure only when no
// entity finished cleanly: every entity failed or was skipped because of a
// failure. Entities skipped as no-ops count as finished. Any other failure,
// or an interrupted run, is partial.
func computeStatus(entities []*EntityResult, interrupted bool) RunStatus {
	var failed, clean int
	for _, e := range entities {
		switch {
		case e.Status == StateFailed:
			failed++
		case e.Status == StateSucceeded, e.noop:
			clean++
		}
	}
	switch {
	case failed > 0 && clean == 0:
		return RunFailure
	case failed > 0:
		return RunPartialFailure
	case interrupted && clean == 0:
		return RunFailure
	case interrupted:
		return RunPartialFailure
	default:
		return RunSuccess
	}
}
