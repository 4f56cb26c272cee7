package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/platformbuilds/chpurge/internal/config"
	"github.com/platformbuilds/chpurge/internal/models"
	"github.com/platformbuilds/chpurge/internal/query"
	"github.com/platformbuilds/chpurge/pkg/logger"
)

// MutationFailedError carries the store's own failure reason verbatim.
type MutationFailedError struct {
	Table      string
	MutationID string
	Reason     string
}

func (e *MutationFailedError) Error() string {
	return fmt.Sprintf("mutation %s on table %s failed: %s", e.MutationID, e.Table, e.Reason)
}

// ConfirmRequest is everything shown to the operator before one table's
// delete proceeds.
type ConfirmRequest struct {
	Database  string
	Table     string
	Predicate string
	// Matches counts the distinct key values the predicate hits; Sample
	// holds up to the preview limit of them.
	Matches int
	Sample  []string
}

// Confirmer asks the operator to approve one table's delete. Table
// workflows run concurrently, so implementations must be safe for
// concurrent use; the terminal implementation serializes prompts
// internally. A cancelled context reads as a decline, without waiting
// for operator input.
type Confirmer interface {
	Confirm(ctx context.Context, req ConfirmRequest) bool
}

// RunOptions is the interaction policy for one run.
type RunOptions struct {
	// CheckoutOnly reports current mutation state per table and never
	// submits anything.
	CheckoutOnly bool
	// AwaitEnd tracks each submitted mutation to a terminal state.
	AwaitEnd bool
	// Force skips the preview and the confirmation prompt.
	Force bool
}

// Orchestrator drives a whole run: per-table build, confirm, submit, await,
// and the final aggregation.
type Orchestrator struct {
	registry  *MutationRegistry
	poller    *StatusPoller
	store     Store
	confirmer Confirmer
	cfg       config.CleanerConfig
	logger    logger.Logger
}

func NewOrchestrator(
	registry *MutationRegistry,
	poller *StatusPoller,
	store Store,
	confirmer Confirmer,
	cfg config.CleanerConfig,
	log logger.Logger,
) *Orchestrator {
	return &Orchestrator{
		registry:  registry,
		poller:    poller,
		store:     store,
		confirmer: confirmer,
		cfg:       cfg,
		logger:    log,
	}
}

// Run validates the request and works every table to a terminal outcome.
// Table workflows are independent: one table failing never aborts its
// siblings, and the aggregate only succeeds when no table failed or timed
// out. The returned error is non-nil only for invalid requests, before any
// store call.
func (o *Orchestrator) Run(ctx context.Context, req *models.DeleteRequest, opts RunOptions) (*models.RunResult, error) {
	if opts.CheckoutOnly {
		if err := req.ValidateCheckout(); err != nil {
			return nil, err
		}
	} else {
		if err := req.Validate(); err != nil {
			return nil, err
		}
	}

	result := &models.RunResult{
		RunID:     uuid.New().String(),
		Database:  req.Database,
		StartedAt: time.Now(),
	}
	o.logger.Info("run starting",
		"run_id", result.RunID,
		"database", req.Database,
		"tables", len(req.Tables),
		"checkout_only", opts.CheckoutOnly,
		"await", opts.AwaitEnd,
		"force", opts.Force,
	)

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, o.cfg.Workers)
	)
	for _, table := range req.Tables {
		wg.Add(1)
		go func(table string) {
			defer wg.Done()

			var tr models.TableResult
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
				switch {
				case ctx.Err() != nil:
					// A free slot can win the select against a cancelled
					// context; nothing ran for this table either way.
					tr = models.TableResult{Table: table, Outcome: models.OutcomeSkipped, Detail: "run cancelled"}
				case opts.CheckoutOnly:
					tr = o.checkoutTable(ctx, req.Database, table)
				default:
					tr = o.runTable(ctx, req, opts, table)
				}
			case <-ctx.Done():
				// Never started, so nothing was submitted for it.
				tr = models.TableResult{Table: table, Outcome: models.OutcomeSkipped, Detail: "run cancelled"}
			}
			o.logger.Info("table finished",
				"run_id", result.RunID,
				"table", tr.Table,
				"outcome", string(tr.Outcome),
			)

			mu.Lock()
			result.Tables = append(result.Tables, tr)
			mu.Unlock()
		}(table)
	}
	wg.Wait()

	result.FinishedAt = time.Now()
	sortByRequestOrder(result.Tables, req.Tables)

	o.logger.Info("run finished",
		"run_id", result.RunID,
		"succeeded", result.Succeeded(),
		"took", result.FinishedAt.Sub(result.StartedAt),
	)
	return result, nil
}

// runTable is one table's workflow: build, preview, confirm, submit, and
// optionally await. Steps within it are strictly sequential.
func (o *Orchestrator) runTable(ctx context.Context, req *models.DeleteRequest, opts RunOptions, table string) models.TableResult {
	stmt, err := query.BuildDelete(req.Database, table, req.MatchKey, req.Prefixes)
	if err != nil {
		return models.TableResult{Table: table, Outcome: models.OutcomeFailed, Err: err}
	}

	if !opts.Force {
		matches, sample, err := o.preview(ctx, req, table)
		if err != nil {
			if ctx.Err() != nil {
				return models.TableResult{Table: table, Outcome: models.OutcomeSkipped, Detail: "run cancelled"}
			}
			o.logger.Error("preview failed", "table", table, "error", err)
			return models.TableResult{Table: table, Outcome: models.OutcomeFailed, Err: err}
		}
		if matches == 0 {
			o.logger.Info("no matching rows", "table", table, "predicate", stmt.Predicate)
			return models.TableResult{Table: table, Outcome: models.OutcomeSkipped, Detail: "no matching rows"}
		}
		approved := o.confirmer.Confirm(ctx, ConfirmRequest{
			Database:  req.Database,
			Table:     table,
			Predicate: stmt.Predicate,
			Matches:   matches,
			Sample:    sample,
		})
		if !approved {
			if ctx.Err() != nil {
				o.logger.Info("run cancelled at the prompt", "table", table)
				return models.TableResult{Table: table, Outcome: models.OutcomeSkipped, Detail: "run cancelled"}
			}
			o.logger.Info("deletion declined", "table", table)
			return models.TableResult{Table: table, Outcome: models.OutcomeSkipped, Detail: "declined"}
		}
	}

	handle, err := o.registry.Submit(ctx, stmt)
	if err != nil {
		// An unresolved id means the store accepted the mutation but we lost
		// track of it. That is inconclusive, not a failure.
		var unresolved *MutationUnresolvedError
		if errors.As(err, &unresolved) {
			o.logger.Warn("mutation id unresolved", "table", table, "attempts", unresolved.Attempts)
			return models.TableResult{Table: table, Outcome: models.OutcomeTimedOut, Detail: "mutation id unresolved", Err: err}
		}
		if ctx.Err() != nil {
			// Cancelled mid-submission: the statement may or may not have
			// reached the store.
			o.logger.Warn("run cancelled during submission", "table", table)
			return models.TableResult{Table: table, Outcome: models.OutcomeTimedOut, Detail: "run cancelled", Err: err}
		}
		o.logger.Error("submission failed", "table", table, "error", err)
		return models.TableResult{Table: table, Outcome: models.OutcomeFailed, Err: err}
	}

	if !opts.AwaitEnd {
		return models.TableResult{Table: table, Outcome: models.OutcomeSubmitted, MutationID: handle.MutationID}
	}

	poll, err := o.poller.Await(ctx, handle,
		time.Duration(o.cfg.PollInterval)*time.Second,
		time.Duration(o.cfg.MaxWait)*time.Second,
	)
	if err != nil {
		o.logger.Error("status polling failed", "table", table, "mutation_id", handle.MutationID, "error", err)
		return models.TableResult{Table: table, Outcome: models.OutcomeFailed, MutationID: handle.MutationID, Err: err}
	}

	switch poll.State {
	case PollDone:
		return models.TableResult{Table: table, Outcome: models.OutcomeCompleted, MutationID: handle.MutationID, Status: poll.Status}
	case PollFailed:
		return models.TableResult{
			Table:      table,
			Outcome:    models.OutcomeFailed,
			MutationID: handle.MutationID,
			Status:     poll.Status,
			Err:        &MutationFailedError{Table: table, MutationID: handle.MutationID, Reason: poll.Status.FailReason},
		}
	default:
		return models.TableResult{Table: table, Outcome: models.OutcomeTimedOut, MutationID: handle.MutationID, Status: poll.Status}
	}
}

// checkoutTable is the read-only diagnostic path: status lookup, no
// submission.
func (o *Orchestrator) checkoutTable(ctx context.Context, database, table string) models.TableResult {
	statuses, err := o.registry.ListMutations(ctx, database, table)
	if err != nil {
		if ctx.Err() != nil {
			return models.TableResult{Table: table, Outcome: models.OutcomeSkipped, Detail: "run cancelled"}
		}
		o.logger.Error("status lookup failed", "table", table, "error", err)
		return models.TableResult{Table: table, Outcome: models.OutcomeFailed, Err: err}
	}
	return models.TableResult{Table: table, Outcome: models.OutcomeChecked, Mutations: statuses}
}

// preview counts the distinct keys the predicate would hit and samples a few
// for the prompt. A zero count skips the sample query.
func (o *Orchestrator) preview(ctx context.Context, req *models.DeleteRequest, table string) (int, []string, error) {
	countSQL, err := query.BuildPreviewCount(req.Database, table, req.MatchKey, req.Prefixes)
	if err != nil {
		return 0, nil, err
	}
	rows, err := o.store.Execute(ctx, countSQL)
	if err != nil {
		return 0, nil, err
	}
	matches := 0
	if len(rows) > 0 {
		matches, err = strconv.Atoi(rows[0][query.ColMatches])
		if err != nil {
			return 0, nil, fmt.Errorf("unreadable match count %q for table %s: %w", rows[0][query.ColMatches], table, err)
		}
	}
	if matches == 0 {
		return 0, nil, nil
	}

	sampleSQL, err := query.BuildPreview(req.Database, table, req.MatchKey, req.Prefixes, o.cfg.PreviewLimit)
	if err != nil {
		return 0, nil, err
	}
	rows, err = o.store.Execute(ctx, sampleSQL)
	if err != nil {
		return 0, nil, err
	}
	sample := make([]string, 0, len(rows))
	for _, row := range rows {
		sample = append(sample, row[req.MatchKey])
	}
	return matches, sample, nil
}

// sortByRequestOrder restores the user-specified table order after the
// concurrent workers appended results as they finished.
func sortByRequestOrder(results []models.TableResult, tables []string) {
	order := make(map[string]int, len(tables))
	for i, t := range tables {
		order[t] = i
	}
	sort.Slice(results, func(i, j int) bool {
		return order[results[i].Table] < order[results[j].Table]
	})
}
