package reporting

import (
	"fmt"
	"io"
	"strconv"

	"github.com/beevik/etree"
	"github.com/eugenetaranov/router-reset-dns/api/schemas"
)

// JUnitReporter writes the summary as a JUnit XML document: one test suite per
// operation and one test case per device, so CI systems can chart a run.
type JUnitReporter struct {
	writer io.WriteCloser
}

// NewJUnitReporter creates a JUnit reporter that owns writer.
func NewJUnitReporter(writer io.WriteCloser) *JUnitReporter {
	return &JUnitReporter{writer: writer}
}

func seconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

func (r *JUnitReporter) Write(summary *schemas.RunSummary) error {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	root := doc.CreateElement("testsuites")
	root.CreateAttr("name", "router-reset "+summary.RunID)

	for _, op := range operations(summary) {
		counts := summary.Totals[op]
		suite := root.CreateElement("testsuite")
		suite.CreateAttr("name", string(op))
		suite.CreateAttr("tests", strconv.Itoa(counts.Total()))
		suite.CreateAttr("failures", strconv.Itoa(counts.Fatal))
		suite.CreateAttr("skipped", strconv.Itoa(counts.Skipped))
		if !summary.StartedAt.IsZero() {
			suite.CreateAttr("timestamp", summary.StartedAt.UTC().Format("2006-01-02T15:04:05"))
		}

		var total float64
		for _, dev := range summary.Devices {
			out, ok := dev.Outcome(op)
			if !ok {
				continue
			}
			var elapsed float64
			for _, res := range dev.Operations {
				if res.Operation == op {
					elapsed = res.Duration.Seconds()
				}
			}
			total += elapsed

			tc := suite.CreateElement("testcase")
			tc.CreateAttr("classname", dev.Model)
			tc.CreateAttr("name", fmt.Sprintf("row %d %s", dev.Row, dev.Address))
			tc.CreateAttr("time", seconds(elapsed))
			switch out.Status {
			case schemas.StatusSkipped:
				tc.CreateElement("skipped").CreateAttr("message", out.Reason)
			case schemas.StatusFatal:
				f := tc.CreateElement("failure")
				f.CreateAttr("type", string(out.Kind))
				f.CreateAttr("message", out.Reason)
			}
		}
		suite.CreateAttr("time", seconds(total))
	}

	doc.Indent(2)
	if _, err := doc.WriteTo(r.writer); err != nil {
		return fmt.Errorf("failed to write junit report: %w", err)
	}
	return nil
}

func (r *JUnitReporter) Close() error {
	return r.writer.Close()
}
