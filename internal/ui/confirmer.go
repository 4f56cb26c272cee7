// Package ui renders the confirmation prompt and the run report for the
// terminal.
package ui

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/platformbuilds/chpurge/internal/services"
)

// TerminalConfirmer asks the operator before a table's delete is submitted.
// Concurrent table workflows share one prompt stream; the mutex keeps their
// questions from interleaving.
type TerminalConfirmer struct {
	mu  sync.Mutex
	in  *bufio.Scanner
	out io.Writer
}

func NewTerminalConfirmer(in io.Reader, out io.Writer) *TerminalConfirmer {
	return &TerminalConfirmer{
		in:  bufio.NewScanner(in),
		out: out,
	}
}

// Confirm shows the preview and reads one line. Anything but an explicit yes
// declines, and a closed input stream declines everything that follows.
// Cancellation declines without waiting for the line; the read stays pending
// on the input, which is fine for a process about to exit. The run context
// is shared, so once it is cancelled no later Confirm touches the scanner
// again.
func (c *TerminalConfirmer) Confirm(ctx context.Context, req services.ConfirmRequest) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ctx.Err() != nil {
		return false
	}

	fmt.Fprintln(c.out)
	fmt.Fprintln(c.out, promptBoxStyle.Render(promptBody(req)))
	fmt.Fprintf(c.out, "Delete these rows from %s.%s? [y/N]: ", req.Database, req.Table)

	type scanResult struct {
		text string
		ok   bool
	}
	answers := make(chan scanResult, 1)
	go func() {
		ok := c.in.Scan()
		answers <- scanResult{text: c.in.Text(), ok: ok}
	}()

	select {
	case res := <-answers:
		if !res.ok {
			fmt.Fprintln(c.out)
			return false
		}
		answer := strings.ToLower(strings.TrimSpace(res.text))
		return answer == "y" || answer == "yes"
	case <-ctx.Done():
		fmt.Fprintln(c.out)
		return false
	}
}

func promptBody(req services.ConfirmRequest) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(req.Database + "." + req.Table))
	b.WriteByte('\n')
	fmt.Fprintf(&b, "%s %s\n", renderMuted("predicate:"), req.Predicate)
	fmt.Fprintf(&b, "%s %s\n", renderMuted("matches:"), accentStyle.Render(fmt.Sprintf("%d", req.Matches)))
	if len(req.Sample) > 0 {
		b.WriteString(renderMuted("sample:"))
		b.WriteByte('\n')
		for _, s := range req.Sample {
			fmt.Fprintf(&b, "  %s %s\n", iconDot, s)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
