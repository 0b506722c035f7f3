package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eugenetaranov/router-reset-dns/api/schemas"
	"github.com/eugenetaranov/router-reset-dns/internal/browser"
	"github.com/eugenetaranov/router-reset-dns/internal/config"
	"github.com/eugenetaranov/router-reset-dns/internal/mocks"
	"github.com/eugenetaranov/router-reset-dns/internal/observability"
)

// testDocument holds both the application settings and the model document,
// the way a deployment keeps them in one config.yaml.
const testDocument = `
logger:
  level: fatal
automation:
  element_timeout: 50ms
  dialog_timeout: 50ms
models:
  zte: [F660]
routers:
  zte:
    login: {basic: true}
    steps:
      - {type: id, location: mmNet}
    dns:
      dns_1: {type: id, location: dns1}
      dns_2: {type: id, location: dns2}
      submit: {type: id, location: save, wait: 0}
`

const testInventory = `address;port;vendor;serial;credentials;model
10.0.0.1;80;acme;s1;admin:pw;ModelX
10.0.0.2;8080;zte;s2;admin:pw;F660
`

// resetForTest isolates a test from the process environment and global logger.
func resetForTest(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "")
	t.Setenv("ROUTER_RESET_DATABASE_URL", "")
	t.Chdir(t.TempDir())

	observability.ResetForTest()
	observability.InitializeLogger(config.LoggerConfig{Level: "fatal", Format: "console", ServiceName: "test"})
	t.Cleanup(observability.ResetForTest)
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// permissiveDriver answers every page interaction successfully.
func permissiveDriver() *mocks.MockDriver {
	d := new(mocks.MockDriver)
	d.On("Navigate", mock.Anything, mock.Anything).Return(nil).Maybe()
	d.On("WaitFor", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	d.On("Click", mock.Anything, mock.Anything).Return(nil).Maybe()
	d.On("Clear", mock.Anything, mock.Anything).Return(nil).Maybe()
	d.On("Type", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	d.On("SelectOption", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	d.On("Value", mock.Anything, mock.Anything).Return("", nil).Maybe()
	d.On("EnterFrame", mock.Anything, mock.Anything).Return(nil).Maybe()
	d.On("ParentFrame", mock.Anything).Return(nil).Maybe()
	d.On("ArmDialog", mock.Anything).Return().Maybe()
	d.On("DisarmDialog").Return().Maybe()
	d.On("AwaitDialog", mock.Anything).Return(nil).Maybe()
	d.On("Close", mock.Anything).Return(nil)
	return d
}

func launcherFor(l browser.Launcher) launcherFactory {
	return func(*zap.Logger, config.Interface) browser.Launcher { return l }
}

// fakeStore keeps outcomes in memory.
type fakeStore struct {
	mu      sync.Mutex
	records map[string][]schemas.DeviceResult
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[string][]schemas.DeviceResult)}
}

func (s *fakeStore) Record(_ context.Context, runID string, res schemas.DeviceResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[runID] = append(s.records[runID], res)
	return nil
}

func (s *fakeStore) LoadRun(_ context.Context, runID string) (*schemas.RunSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	devices, ok := s.records[runID]
	if !ok {
		return nil, schemas.NewError(schemas.KindConfigInvalid, "no outcomes stored for run "+runID)
	}
	summary := schemas.NewRunSummary(runID, time.Time{})
	for _, d := range devices {
		summary.Record(d)
	}
	return summary, nil
}

type fakeProvider struct {
	store   *fakeStore
	err     error
	created int
	cleaned int
}

func (p *fakeProvider) Create(context.Context, config.Interface) (outcomeStore, func(), error) {
	p.created++
	if p.err != nil {
		return nil, nil, p.err
	}
	return p.store, func() { p.cleaned++ }, nil
}

// executeCommand runs a fresh command tree with deps and returns its output.
func executeCommand(t *testing.T, deps dependencies, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd(deps)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}
