package cmd

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eugenetaranov/router-reset-dns/api/schemas"
	"github.com/eugenetaranov/router-reset-dns/internal/config"
)

func storedRun(t *testing.T) *fakeStore {
	t.Helper()
	s := newFakeStore()
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for _, res := range []schemas.DeviceResult{
		{Row: 0, Address: "10.0.0.1", Model: "ModelX", Operations: []schemas.OperationResult{
			{Operation: schemas.OpResetDNS, Outcome: schemas.Skipped(schemas.KindConfigResolution, "model not found"), StartedAt: started},
		}},
		{Row: 1, Address: "10.0.0.2", Model: "F660", Group: "zte", Operations: []schemas.OperationResult{
			{Operation: schemas.OpResetDNS, Outcome: schemas.Succeeded(), StartedAt: started, Duration: 3 * time.Second},
		}},
	} {
		require.NoError(t, s.Record(context.Background(), "run-1", res))
	}
	return s
}

func TestReportCmd_JUnit(t *testing.T) {
	resetForTest(t)
	provider := &fakeProvider{store: storedRun(t)}
	outPath := filepath.Join(t.TempDir(), "report.xml")

	_, err := executeCommand(t, dependencies{stores: provider},
		"report", "--run-id", "run-1", "-o", outPath, "-f", "junit")
	require.NoError(t, err)
	assert.Equal(t, 1, provider.cleaned)

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromFile(outPath))
	suite := doc.FindElement("//testsuite[@name='reset-dns']")
	require.NotNil(t, suite)
	assert.Equal(t, "2", suite.SelectAttrValue("tests", ""))
	assert.Equal(t, "1", suite.SelectAttrValue("skipped", ""))
}

func TestReportCmd_Text(t *testing.T) {
	resetForTest(t)
	outPath := filepath.Join(t.TempDir(), "report.txt")

	_, err := executeCommand(t, dependencies{stores: &fakeProvider{store: storedRun(t)}},
		"report", "--run-id", "run-1", "--output", outPath)
	require.NoError(t, err)

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "10.0.0.2")
	assert.Contains(t, string(data), "model not found")
}

func TestReportCmd_Errors(t *testing.T) {
	t.Run("missing run id", func(t *testing.T) {
		resetForTest(t)
		_, err := executeCommand(t, dependencies{stores: &fakeProvider{store: newFakeStore()}}, "report")
		require.Error(t, err)
		assert.Contains(t, err.Error(), `required flag(s) "run-id" not set`)
	})

	t.Run("unknown run", func(t *testing.T) {
		resetForTest(t)
		provider := &fakeProvider{store: newFakeStore()}
		_, err := executeCommand(t, dependencies{stores: provider}, "report", "--run-id", "nope")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to load run nope")
		assert.Equal(t, 1, provider.cleaned)
	})

	t.Run("store unavailable", func(t *testing.T) {
		resetForTest(t)
		provider := &fakeProvider{err: errors.New("database URL is not configured")}
		_, err := executeCommand(t, dependencies{stores: provider}, "report", "--run-id", "run-1")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to initialize store: database URL is not configured")
	})
}

func TestDefaultStoreProvider_RequiresURL(t *testing.T) {
	resetForTest(t)
	_, _, err := NewStoreProvider().Create(context.Background(), config.NewDefaultConfig())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database URL is not configured")
}
