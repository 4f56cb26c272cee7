package services

import (
	"context"
	"strconv"
	"time"

	"github.com/platformbuilds/chpurge/internal/models"
	"github.com/platformbuilds/chpurge/internal/query"
)

// Store is the slice of the ClickHouse client the services need. The
// concrete implementation is storage/clickhouse.Client; tests substitute a
// scripted fake.
type Store interface {
	// Execute runs a row-returning statement.
	Execute(ctx context.Context, stmt string) ([]map[string]string, error)
	// Exec runs a statement for effect only.
	Exec(ctx context.Context, stmt string) error
}

// statusFromRow converts one status-lookup row into a snapshot. Missing or
// malformed numeric columns read as zero.
func statusFromRow(table string, row map[string]string) models.MutationStatus {
	parts, _ := strconv.Atoi(row[query.ColPartsToDo])
	return models.MutationStatus{
		Table:          table,
		MutationID:     row[query.ColMutationID],
		IsDone:         row[query.ColIsDone] == "1",
		PartsRemaining: parts,
		FailReason:     row[query.ColFailReason],
		CreateTime:     row[query.ColCreateTime],
	}
}

// sleepContext sleeps for d or until ctx is cancelled, whichever comes
// first.
func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
