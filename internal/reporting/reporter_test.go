package reporting_test

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eugenetaranov/router-reset-dns/api/schemas"
	"github.com/eugenetaranov/router-reset-dns/internal/reporting"
)

type bufferCloser struct {
	bytes.Buffer
	closed bool
}

func (b *bufferCloser) Close() error {
	b.closed = true
	return nil
}

func sampleSummary() *schemas.RunSummary {
	started := time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)
	s := schemas.NewRunSummary("run-42", started)
	s.Record(schemas.DeviceResult{
		Row: 1, Address: "10.0.0.1", Model: "ModelX",
		Operations: []schemas.OperationResult{
			{Operation: schemas.OpResetDNS, Outcome: schemas.Skipped(schemas.KindConfigResolution, "model not found")},
		},
	})
	s.Record(schemas.DeviceResult{
		Row: 2, Address: "10.0.0.2", Model: "F660", Group: "zte",
		Operations: []schemas.OperationResult{
			{Operation: schemas.OpResetDNS, Outcome: schemas.Succeeded(), StartedAt: started, Duration: 1500 * time.Millisecond},
		},
	})
	s.Record(schemas.DeviceResult{
		Row: 3, Address: "10.0.0.3", Model: "F660", Group: "zte",
		Operations: []schemas.OperationResult{
			{Operation: schemas.OpResetDNS, Outcome: schemas.Fatal("driver_failure: chrome crashed")},
		},
	})
	s.FinishedAt = started.Add(time.Minute)
	return s
}

// TestNew_Success_Stdout tests creating reporters writing to stdout.
func TestNew_Success_Stdout(t *testing.T) {
	for _, format := range []string{"json", "junit", "text"} {
		r, err := reporting.New(format, "stdout")
		require.NoError(t, err)
		assert.NotNil(t, r)
		assert.NoError(t, r.Close())

		r, err = reporting.New(format, "")
		require.NoError(t, err)
		assert.NoError(t, r.Close())
	}
}

// TestNew_Success_File tests creating a reporter writing to a file.
func TestNew_Success_File(t *testing.T) {
	tmpFile := filepath.Join(t.TempDir(), "summary.json")

	r, err := reporting.New("json", tmpFile)
	require.NoError(t, err)
	require.NoError(t, r.Write(sampleSummary()))
	require.NoError(t, r.Close())

	data, err := os.ReadFile(tmpFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"run_id": "run-42"`)
}

// TestNew_Failure_UnsupportedFormat checks that no file is created for an unknown format.
func TestNew_Failure_UnsupportedFormat(t *testing.T) {
	tmpFile := filepath.Join(t.TempDir(), "output.sarif")
	r, err := reporting.New("sarif", tmpFile)
	assert.Error(t, err)
	assert.Nil(t, r)
	assert.Contains(t, err.Error(), "unsupported output format: sarif")

	_, err = os.Stat(tmpFile)
	assert.True(t, os.IsNotExist(err))
}

// TestNew_Failure_FileCreation tests errors during output file creation.
func TestNew_Failure_FileCreation(t *testing.T) {
	r, err := reporting.New("json", t.TempDir())
	assert.Error(t, err)
	assert.Nil(t, r)
	assert.Contains(t, err.Error(), "failed to create output file")
}

func TestJSONReporter(t *testing.T) {
	buf := &bufferCloser{}
	r, err := reporting.NewWithWriter("json", buf)
	require.NoError(t, err)
	require.NoError(t, r.Write(sampleSummary()))
	require.NoError(t, r.Close())
	assert.True(t, buf.closed)

	var decoded struct {
		RunID   string `json:"run_id"`
		Devices []struct {
			Row      int    `json:"row"`
			Username string `json:"username"`
		} `json:"devices"`
		Totals map[string]schemas.Counts `json:"totals"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "run-42", decoded.RunID)
	assert.Len(t, decoded.Devices, 3)
	assert.Equal(t, schemas.Counts{Succeeded: 1, Skipped: 1, Fatal: 1}, decoded.Totals["reset-dns"])
	assert.NotContains(t, buf.String(), "password")
}

func TestJUnitReporter(t *testing.T) {
	buf := &bufferCloser{}
	r := reporting.NewJUnitReporter(buf)
	require.NoError(t, r.Write(sampleSummary()))

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(buf.Bytes()))

	suite := doc.FindElement("//testsuite[@name='reset-dns']")
	require.NotNil(t, suite)
	assert.Equal(t, "3", suite.SelectAttrValue("tests", ""))
	assert.Equal(t, "1", suite.SelectAttrValue("failures", ""))
	assert.Equal(t, "1", suite.SelectAttrValue("skipped", ""))
	assert.Equal(t, "1.500", suite.SelectAttrValue("time", ""))

	cases := suite.SelectElements("testcase")
	require.Len(t, cases, 3)
	assert.Equal(t, "row 1 10.0.0.1", cases[0].SelectAttrValue("name", ""))
	require.NotNil(t, cases[0].SelectElement("skipped"))
	assert.Equal(t, "model not found", cases[0].SelectElement("skipped").SelectAttrValue("message", ""))
	assert.Nil(t, cases[1].SelectElement("skipped"))
	require.NotNil(t, cases[2].SelectElement("failure"))
	assert.Equal(t, "driver_failure", cases[2].SelectElement("failure").SelectAttrValue("type", ""))
}

func TestTextReporter(t *testing.T) {
	buf := &bufferCloser{}
	r := reporting.NewTextReporter(buf)
	require.NoError(t, r.Write(sampleSummary()))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "run run-42\n"))
	assert.Contains(t, out, "skipped(model not found)")
	assert.Contains(t, out, "succeeded")
	assert.Regexp(t, `reset-dns\s+succeeded 1\s+skipped 1\s+fatal 1`, out)
}
