package reporting

import (
	"fmt"
	"io"

	"github.com/eugenetaranov/router-reset-dns/api/schemas"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// JSONReporter writes the summary as one indented JSON document.
type JSONReporter struct {
	writer io.WriteCloser
}

// NewJSONReporter creates a JSON reporter that owns writer.
func NewJSONReporter(writer io.WriteCloser) *JSONReporter {
	return &JSONReporter{writer: writer}
}

func (r *JSONReporter) Write(summary *schemas.RunSummary) error {
	out, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize run summary: %w", err)
	}
	if _, err := r.writer.Write(append(out, '\n')); err != nil {
		return fmt.Errorf("failed to write run summary: %w", err)
	}
	return nil
}

func (r *JSONReporter) Close() error {
	return r.writer.Close()
}
