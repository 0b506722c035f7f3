package reporting

import (
	"fmt"
	"io"
	"os"

	"github.com/eugenetaranov/router-reset-dns/api/schemas"
)

// Reporter defines the interface for writing run summaries to an output.
type Reporter interface {
	// Write renders one run summary.
	Write(summary *schemas.RunSummary) error
	// Close finalizes the report and closes any underlying resources (e.g., file handles).
	Close() error
}

// nopWriteCloser wraps an io.Writer and provides a no-op Close method.
type nopWriteCloser struct {
	io.Writer
}

func (nwc *nopWriteCloser) Close() error {
	return nil
}

// New creates a new reporter based on the specified format and output path.
// An empty path or "stdout" writes to standard output.
func New(format, outputPath string) (Reporter, error) {
	switch format {
	case "json", "junit", "text":
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}

	var writer io.WriteCloser
	if outputPath == "" || outputPath == "stdout" {
		writer = &nopWriteCloser{os.Stdout}
	} else {
		f, err := os.Create(outputPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create output file %s: %w", outputPath, err)
		}
		writer = f
	}
	return NewWithWriter(format, writer)
}

// NewWithWriter creates a reporter that takes ownership of writer.
func NewWithWriter(format string, writer io.WriteCloser) (Reporter, error) {
	switch format {
	case "json":
		return NewJSONReporter(writer), nil
	case "junit":
		return NewJUnitReporter(writer), nil
	case "text":
		return NewTextReporter(writer), nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}

// operations returns the operations present in the summary in a stable order.
func operations(summary *schemas.RunSummary) []schemas.Operation {
	var ops []schemas.Operation
	for _, op := range []schemas.Operation{schemas.OpResetDNS, schemas.OpResetPassword} {
		if _, ok := summary.Totals[op]; ok {
			ops = append(ops, op)
		}
	}
	return ops
}
