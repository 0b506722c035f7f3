package reporting

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/eugenetaranov/router-reset-dns/api/schemas"
)

// TextReporter writes a human readable table followed by per-operation totals.
type TextReporter struct {
	writer io.WriteCloser
}

// NewTextReporter creates a text reporter that owns writer.
func NewTextReporter(writer io.WriteCloser) *TextReporter {
	return &TextReporter{writer: writer}
}

func (r *TextReporter) Write(summary *schemas.RunSummary) error {
	tw := tabwriter.NewWriter(r.writer, 0, 4, 2, ' ', 0)
	ops := operations(summary)

	fmt.Fprintf(tw, "run %s\n\n", summary.RunID)
	fmt.Fprint(tw, "ROW\tADDRESS\tMODEL\tGROUP")
	for _, op := range ops {
		fmt.Fprintf(tw, "\t%s", op)
	}
	fmt.Fprintln(tw)

	for _, dev := range summary.Devices {
		group := dev.Group
		if group == "" {
			group = "-"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s", dev.Row, dev.Address, dev.Model, group)
		for _, op := range ops {
			out, ok := dev.Outcome(op)
			if !ok {
				fmt.Fprint(tw, "\t-")
				continue
			}
			fmt.Fprintf(tw, "\t%s", out)
		}
		fmt.Fprintln(tw)
	}

	fmt.Fprintln(tw)
	for _, op := range ops {
		c := summary.Totals[op]
		fmt.Fprintf(tw, "%s\tsucceeded %d\tskipped %d\tfatal %d\n", op, c.Succeeded, c.Skipped, c.Fatal)
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("failed to write text report: %w", err)
	}
	return nil
}

func (r *TextReporter) Close() error {
	return r.writer.Close()
}
