package pipeline

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// RenderSummary writes the step list and the count table for a finished run.
func RenderSummary(w io.Writer, r *Result) {
	for i, step := range r.Steps {
		fmt.Fprintf(w, "Step %d/%d: %s\n", i+1, len(r.Steps), step.Name)
		fmt.Fprintf(w, "  %s\n", step.Summary)
	}
	fmt.Fprintln(w)

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.Style().Format.Footer = text.FormatDefault
	t.SetTitle("Sync run " + r.RunID)
	t.AppendHeader(table.Row{"Fetched", "Unique", "Saved", "Cached", "Generated", "Fallback", "Removed", "Errors"})
	t.AppendRow(table.Row{
		r.Fetched,
		r.UniqueArticles,
		r.Persisted,
		r.Cached,
		r.Generated,
		r.Fallback,
		r.Removed,
		r.Errors,
	})
	t.AppendFooter(table.Row{"Duration", r.Duration().Round(time.Millisecond).String()})
	t.Render()

	for _, be := range r.ReconcileErrors {
		fmt.Fprintf(w, "  delete batch of %d failed: %v\n", len(be.Identities), be.Err)
	}
}
