// Package mocks holds testify mocks for the interfaces wired across packages.
package mocks

import (
	"context"

	"github.com/eugenetaranov/router-reset-dns/api/schemas"
	"github.com/eugenetaranov/router-reset-dns/internal/browser"
	"github.com/eugenetaranov/router-reset-dns/internal/config"
	"github.com/stretchr/testify/mock"
)

// -- Config Mock --

// MockConfig mocks the config.Interface.
type MockConfig struct {
	mock.Mock
}

var _ config.Interface = (*MockConfig)(nil)

func (m *MockConfig) Logger() config.LoggerConfig {
	args := m.Called()
	return args.Get(0).(config.LoggerConfig)
}

func (m *MockConfig) Browser() config.BrowserConfig {
	args := m.Called()
	return args.Get(0).(config.BrowserConfig)
}

func (m *MockConfig) Automation() config.AutomationConfig {
	args := m.Called()
	return args.Get(0).(config.AutomationConfig)
}

func (m *MockConfig) Inventory() config.InventoryConfig {
	args := m.Called()
	return args.Get(0).(config.InventoryConfig)
}

func (m *MockConfig) Runner() config.RunnerConfig {
	args := m.Called()
	return args.Get(0).(config.RunnerConfig)
}

func (m *MockConfig) Database() config.DatabaseConfig {
	args := m.Called()
	return args.Get(0).(config.DatabaseConfig)
}

func (m *MockConfig) Report() config.ReportConfig {
	args := m.Called()
	return args.Get(0).(config.ReportConfig)
}

// -- Browser Mocks --

// MockDriver mocks browser.Driver. Every call is recorded so tests can assert
// the exact sequence of page interactions.
type MockDriver struct {
	mock.Mock
}

var _ browser.Driver = (*MockDriver)(nil)

func (m *MockDriver) Navigate(ctx context.Context, url string) error {
	args := m.Called(ctx, url)
	return args.Error(0)
}

func (m *MockDriver) WaitFor(ctx context.Context, loc schemas.Locator, cond browser.Condition) error {
	args := m.Called(ctx, loc, cond)
	return args.Error(0)
}

func (m *MockDriver) Click(ctx context.Context, loc schemas.Locator) error {
	args := m.Called(ctx, loc)
	return args.Error(0)
}

func (m *MockDriver) Clear(ctx context.Context, loc schemas.Locator) error {
	args := m.Called(ctx, loc)
	return args.Error(0)
}

func (m *MockDriver) Type(ctx context.Context, loc schemas.Locator, text string) error {
	args := m.Called(ctx, loc, text)
	return args.Error(0)
}

func (m *MockDriver) SelectOption(ctx context.Context, loc schemas.Locator, value string) error {
	args := m.Called(ctx, loc, value)
	return args.Error(0)
}

func (m *MockDriver) Value(ctx context.Context, loc schemas.Locator) (string, error) {
	args := m.Called(ctx, loc)
	return args.String(0), args.Error(1)
}

func (m *MockDriver) EnterFrame(ctx context.Context, frame string) error {
	args := m.Called(ctx, frame)
	return args.Error(0)
}

func (m *MockDriver) ParentFrame(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockDriver) ArmDialog(accept bool) {
	m.Called(accept)
}

func (m *MockDriver) DisarmDialog() {
	m.Called()
}

func (m *MockDriver) AwaitDialog(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockDriver) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockLauncher mocks browser.Launcher.
type MockLauncher struct {
	mock.Mock
}

var _ browser.Launcher = (*MockLauncher)(nil)

func (m *MockLauncher) Launch(ctx context.Context) (browser.Driver, error) {
	args := m.Called(ctx)
	if d, ok := args.Get(0).(browser.Driver); ok {
		return d, args.Error(1)
	}
	return nil, args.Error(1)
}

// -- Sink Mock --

// MockResultSink mocks schemas.ResultSink.
type MockResultSink struct {
	mock.Mock
}

var _ schemas.ResultSink = (*MockResultSink)(nil)

func (m *MockResultSink) Record(ctx context.Context, runID string, res schemas.DeviceResult) error {
	args := m.Called(ctx, runID, res)
	return args.Error(0)
}
