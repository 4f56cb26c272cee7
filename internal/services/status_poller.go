package services

import (
	"context"
	"time"

	"github.com/platformbuilds/chpurge/internal/models"
	"github.com/platformbuilds/chpurge/internal/query"
	"github.com/platformbuilds/chpurge/pkg/logger"
)

// PollState is the terminal state of one await. A mutation is Pending until
// it reaches one of these.
type PollState string

const (
	PollDone     PollState = "done"
	PollFailed   PollState = "failed"
	PollTimedOut PollState = "timed_out"
)

// PollResult is what an await ends with: the terminal state plus the last
// snapshot observed. Status is nil when the mutation was never seen in the
// metadata table.
type PollResult struct {
	State  PollState
	Status *models.MutationStatus
}

// StatusPoller tracks an accepted mutation until it finishes, fails, or the
// wait budget runs out. The clock and sleep are injectable so the timeout
// arithmetic is testable without real waiting.
type StatusPoller struct {
	store  Store
	logger logger.Logger
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
}

func NewStatusPoller(store Store, log logger.Logger) *StatusPoller {
	return &StatusPoller{
		store:  store,
		logger: log,
		now:    time.Now,
		sleep:  sleepContext,
	}
}

// Await polls the mutation metadata until the handle's mutation is done or
// failed, or maxWait elapses. A failure reported by the store ends polling
// immediately: a failed mutation does not self-resolve, so there is nothing
// to wait for. Timing out is inconclusive, not a failure; the mutation may
// still complete after we stop watching, and the last seen snapshot is
// preserved in the result. Cancellation reads as a timeout for the same
// reason: the store has no cancel-mutation primitive, so the mutation stays
// in flight regardless.
func (p *StatusPoller) Await(ctx context.Context, handle *models.MutationHandle, interval, maxWait time.Duration) (*PollResult, error) {
	lookup, err := query.BuildStatusLookup(handle.Database, handle.Table)
	if err != nil {
		return nil, err
	}

	deadline := p.now().Add(maxWait)
	var last *models.MutationStatus

	for {
		rows, err := p.store.Execute(ctx, lookup)
		if err != nil {
			if ctx.Err() != nil {
				return &PollResult{State: PollTimedOut, Status: last}, nil
			}
			return nil, err
		}

		if status, ok := findMutation(rows, handle); ok {
			last = status
			if status.Terminal() {
				if status.FailReason != "" {
					p.logger.Warn("mutation failed",
						"table", handle.Table,
						"mutation_id", handle.MutationID,
						"reason", status.FailReason,
					)
					return &PollResult{State: PollFailed, Status: status}, nil
				}
				p.logger.Debug("mutation finished",
					"table", handle.Table,
					"mutation_id", handle.MutationID,
				)
				return &PollResult{State: PollDone, Status: status}, nil
			}
			p.logger.Debug("mutation still running",
				"table", handle.Table,
				"mutation_id", handle.MutationID,
				"parts_remaining", status.PartsRemaining,
			)
		}

		if !p.now().Before(deadline) {
			p.logger.Warn("wait budget exhausted",
				"table", handle.Table,
				"mutation_id", handle.MutationID,
			)
			return &PollResult{State: PollTimedOut, Status: last}, nil
		}
		if err := p.sleep(ctx, interval); err != nil {
			return &PollResult{State: PollTimedOut, Status: last}, nil
		}
	}
}

// findMutation locates the handle's mutation in the lookup rows. The row can
// be absent briefly right after submission, or after the store prunes old
// metadata.
func findMutation(rows []map[string]string, handle *models.MutationHandle) (*models.MutationStatus, bool) {
	for _, row := range rows {
		if row[query.ColMutationID] == handle.MutationID {
			status := statusFromRow(handle.Table, row)
			return &status, true
		}
	}
	return nil, false
}
