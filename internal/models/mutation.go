package models

import "time"

// DeleteRequest describes one purge run: delete every row in each target
// table whose match-key column starts with one of the given prefixes.
// Immutable once validated; owned by the orchestrator for the whole run.
type DeleteRequest struct {
	Database string   `json:"database"`
	Tables   []string `json:"tables"`
	MatchKey string   `json:"match_key"`
	Prefixes []string `json:"prefixes"`
}

// MutationStatement is a delete mutation compiled for a single table.
// Predicate carries the human-readable summary shown in confirmation prompts.
type MutationStatement struct {
	Database  string `json:"database"`
	Table     string `json:"table"`
	SQL       string `json:"sql"`
	Predicate string `json:"predicate"`
}

// MutationHandle identifies an accepted, asynchronously-running mutation
// inside the store. Created once submission is acknowledged.
type MutationHandle struct {
	Database    string    `json:"database"`
	Table       string    `json:"table"`
	MutationID  string    `json:"mutation_id"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// MutationStatus is a point-in-time snapshot of one mutation, recomputed on
// every poll and never persisted.
type MutationStatus struct {
	Table          string `json:"table"`
	MutationID     string `json:"mutation_id"`
	IsDone         bool   `json:"is_done"`
	PartsRemaining int    `json:"parts_remaining"`
	FailReason     string `json:"fail_reason,omitempty"`
	CreateTime     string `json:"create_time,omitempty"`
}

// Terminal reports whether the mutation needs no further polling.
func (s *MutationStatus) Terminal() bool {
	if s.FailReason != "" {
		return true
	}
	return s.IsDone || s.PartsRemaining == 0
}

// MutationSummary aggregates the mutations currently known to the store for
// one table. Counts are independent: a failed mutation that still has parts
// to rewrite is counted both failed and in progress.
type MutationSummary struct {
	Total      int `json:"total"`
	InProgress int `json:"in_progress"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}

// SummarizeMutations folds status snapshots into per-table counts for the
// checkout report.
func SummarizeMutations(statuses []MutationStatus) MutationSummary {
	summary := MutationSummary{Total: len(statuses)}
	for _, s := range statuses {
		if s.PartsRemaining > 0 {
			summary.InProgress++
		}
		if s.IsDone {
			summary.Completed++
		}
		if s.FailReason != "" {
			summary.Failed++
		}
	}
	return summary
}
