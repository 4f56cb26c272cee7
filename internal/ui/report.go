package ui

import (
	"fmt"
	"io"
	"time"

	"github.com/platformbuilds/chpurge/internal/models"
)

// WriteRunReport renders every table's outcome and the aggregate verdict.
// Logs go to stderr; this is the stdout surface of a run.
func WriteRunReport(w io.Writer, result *models.RunResult) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s %s\n",
		headerStyle.Render("Run "+result.RunID),
		renderMuted("database "+result.Database),
	)

	for _, tr := range result.Tables {
		writeTableResult(w, tr)
	}

	fmt.Fprintln(w)
	took := result.FinishedAt.Sub(result.StartedAt).Round(time.Millisecond)
	if result.Succeeded() {
		fmt.Fprintln(w, renderSuccess(fmt.Sprintf("%d table(s) processed in %s", len(result.Tables), took)))
		return
	}
	fmt.Fprintln(w, renderError(fmt.Sprintf("%d of %d table(s) did not complete (%s)",
		len(result.Failures()), len(result.Tables), took)))
}

func writeTableResult(w io.Writer, tr models.TableResult) {
	switch tr.Outcome {
	case models.OutcomeCompleted:
		fmt.Fprintf(w, "  %s %s completed (mutation %s)\n",
			successStyle.Render(iconSuccess), tr.Table, tr.MutationID)

	case models.OutcomeSubmitted:
		fmt.Fprintf(w, "  %s %s submitted (mutation %s, running in the background)\n",
			accentStyle.Render(iconArrow), tr.Table, tr.MutationID)

	case models.OutcomeSkipped:
		fmt.Fprintf(w, "  %s %s\n", renderMuted(iconDot), renderMuted(tr.Table+" skipped: "+tr.Detail))

	case models.OutcomeTimedOut:
		label := tr.Table + " timed out"
		if tr.MutationID != "" {
			label += " (mutation " + tr.MutationID + ")"
		}
		fmt.Fprintf(w, "  %s %s\n", warnStyle.Render(iconWarning), label)
		if tr.Status != nil {
			fmt.Fprintf(w, "      %s\n", renderMuted(fmt.Sprintf(
				"%d parts still to do; re-run with --checkout-only to follow it", tr.Status.PartsRemaining)))
		} else if tr.Detail != "" {
			fmt.Fprintf(w, "      %s\n", renderMuted(tr.Detail))
		}

	case models.OutcomeFailed:
		fmt.Fprintf(w, "  %s %s failed\n", errorStyle.Render(iconError), tr.Table)
		if tr.Err != nil {
			fmt.Fprintf(w, "      %s\n", renderMuted(tr.Err.Error()))
		}

	case models.OutcomeChecked:
		writeCheckout(w, tr)
	}
}

func writeCheckout(w io.Writer, tr models.TableResult) {
	summary := models.SummarizeMutations(tr.Mutations)
	fmt.Fprintf(w, "  %s %s: %d mutation(s), %d in progress, %d completed, %d failed\n",
		accentStyle.Render(iconArrow), tr.Table,
		summary.Total, summary.InProgress, summary.Completed, summary.Failed,
	)
	for _, m := range tr.Mutations {
		line := m.MutationID + "  " + m.CreateTime
		switch {
		case m.FailReason != "":
			fmt.Fprintf(w, "      %s %s\n", errorStyle.Render(iconError), line)
			fmt.Fprintf(w, "        %s\n", renderMuted(m.FailReason))
		case m.IsDone:
			fmt.Fprintf(w, "      %s %s\n", successStyle.Render(iconSuccess), line)
		default:
			fmt.Fprintf(w, "      %s %s\n", renderMuted(iconDot),
				renderMuted(fmt.Sprintf("%s (%d parts to do)", line, m.PartsRemaining)))
		}
	}
}
