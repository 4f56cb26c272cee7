package models

import "time"

// TableOutcome is the terminal outcome of one table's workflow.
type TableOutcome string

const (
	OutcomeSkipped   TableOutcome = "skipped"   // declined at the prompt, or nothing matched
	OutcomeSubmitted TableOutcome = "submitted" // mutation accepted, completion not awaited
	OutcomeCompleted TableOutcome = "completed" // mutation finished rewriting all parts
	OutcomeFailed    TableOutcome = "failed"    // submission, lookup, or the mutation itself failed
	OutcomeTimedOut  TableOutcome = "timed_out" // still running when the wait budget ran out
	OutcomeChecked   TableOutcome = "checked"   // checkout-only status lookup succeeded
)

// TableResult is the outcome of one table, plus whatever detail the workflow
// gathered along the way.
type TableResult struct {
	Table      string       `json:"table"`
	Outcome    TableOutcome `json:"outcome"`
	MutationID string       `json:"mutation_id,omitempty"`
	// Detail carries a short human-readable note for outcomes that have no
	// error, e.g. why a table was skipped.
	Detail string `json:"detail,omitempty"`
	// Status is the last observed snapshot; for TimedOut it preserves the
	// final parts_remaining count.
	Status *MutationStatus `json:"status,omitempty"`
	// Mutations holds the per-mutation snapshots from a checkout lookup.
	Mutations []MutationStatus `json:"mutations,omitempty"`
	Err       error            `json:"-"`
}

// RunResult aggregates every table's outcome for one run.
type RunResult struct {
	RunID      string        `json:"run_id"`
	Database   string        `json:"database"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Tables     []TableResult `json:"tables"`
}

// Succeeded reports whether every table reached an acceptable outcome. Any
// Failed or TimedOut table makes the run unsuccessful as a whole.
func (r *RunResult) Succeeded() bool {
	for _, t := range r.Tables {
		if t.Outcome == OutcomeFailed || t.Outcome == OutcomeTimedOut {
			return false
		}
	}
	return true
}

// Failures returns the results that made the run unsuccessful.
func (r *RunResult) Failures() []TableResult {
	var failed []TableResult
	for _, t := range r.Tables {
		if t.Outcome == OutcomeFailed || t.Outcome == OutcomeTimedOut {
			failed = append(failed, t)
		}
	}
	return failed
}
