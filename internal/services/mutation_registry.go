package services

import (
	"context"
	"fmt"
	"time"

	"github.com/platformbuilds/chpurge/internal/models"
	"github.com/platformbuilds/chpurge/internal/query"
	"github.com/platformbuilds/chpurge/pkg/logger"
)

// idLookupBackoff is the initial wait between mutation-id discovery
// attempts; it doubles per attempt.
const idLookupBackoff = 200 * time.Millisecond

// MutationUnresolvedError reports a submission whose store-assigned id could
// not be discovered within the lookup budget. The mutation itself may well
// be running; a checkout run shows it.
type MutationUnresolvedError struct {
	Table    string
	Attempts int
}

func (e *MutationUnresolvedError) Error() string {
	return fmt.Sprintf("mutation id for table %s unresolved after %d lookups", e.Table, e.Attempts)
}

// MutationRegistry submits delete mutations and resolves the id the store
// assigned to each accepted submission.
type MutationRegistry struct {
	store         Store
	logger        logger.Logger
	lookupRetries int
	sleep         func(ctx context.Context, d time.Duration) error
}

func NewMutationRegistry(store Store, lookupRetries int, log logger.Logger) *MutationRegistry {
	if lookupRetries < 1 {
		lookupRetries = 1
	}
	return &MutationRegistry{
		store:         store,
		logger:        log,
		lookupRetries: lookupRetries,
		sleep:         sleepContext,
	}
}

// Submit sends the delete statement and discovers the mutation id. A
// successful send means the store accepted the mutation, not that it ran;
// it executes in the background from here on.
//
// The store's submission response carries no id, so discovery reads the
// status lookup back and takes the last row (newest mutation). That read is
// racy against concurrent mutations on the same table from elsewhere; the
// store's API offers nothing stronger.
func (r *MutationRegistry) Submit(ctx context.Context, stmt *models.MutationStatement) (*models.MutationHandle, error) {
	if err := r.store.Exec(ctx, stmt.SQL); err != nil {
		return nil, err
	}
	submittedAt := time.Now()
	r.logger.Info("delete mutation submitted",
		"database", stmt.Database,
		"table", stmt.Table,
		"predicate", stmt.Predicate,
	)

	lookup, err := query.BuildStatusLookup(stmt.Database, stmt.Table)
	if err != nil {
		return nil, err
	}

	backoff := idLookupBackoff
	for attempt := 1; attempt <= r.lookupRetries; attempt++ {
		rows, err := r.store.Execute(ctx, lookup)
		if err != nil {
			// The statement went through; a cancelled lookup leaves the id
			// unresolved, not the submission failed.
			if ctx.Err() != nil {
				break
			}
			return nil, err
		}
		if len(rows) > 0 {
			status := statusFromRow(stmt.Table, rows[len(rows)-1])
			r.logger.Debug("mutation id resolved",
				"table", stmt.Table,
				"mutation_id", status.MutationID,
				"attempt", attempt,
			)
			return &models.MutationHandle{
				Database:    stmt.Database,
				Table:       stmt.Table,
				MutationID:  status.MutationID,
				SubmittedAt: submittedAt,
			}, nil
		}
		if attempt == r.lookupRetries || ctx.Err() != nil {
			break
		}
		if err := r.sleep(ctx, backoff); err != nil {
			break
		}
		backoff *= 2
	}
	return nil, &MutationUnresolvedError{Table: stmt.Table, Attempts: r.lookupRetries}
}

// ListMutations returns the current status snapshots for a table, oldest
// first. A table with no recorded mutations yields an empty list.
func (r *MutationRegistry) ListMutations(ctx context.Context, database, table string) ([]models.MutationStatus, error) {
	lookup, err := query.BuildStatusLookup(database, table)
	if err != nil {
		return nil, err
	}
	rows, err := r.store.Execute(ctx, lookup)
	if err != nil {
		return nil, err
	}
	statuses := make([]models.MutationStatus, 0, len(rows))
	for _, row := range rows {
		statuses = append(statuses, statusFromRow(table, row))
	}
	return statuses, nil
}
