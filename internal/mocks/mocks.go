// File: internal/mocks/mocks.go
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/scalewob/api/schemas"
	"github.com/xkilldash9x/scalewob/internal/config"
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

func (m *MockConfig) Session() config.SessionConfig {
	args := m.Called()
	return args.Get(0).(config.SessionConfig)
}

func (m *MockConfig) Readiness() config.ReadinessConfig {
	args := m.Called()
	return args.Get(0).(config.ReadinessConfig)
}

func (m *MockConfig) Registry() config.RegistryConfig {
	args := m.Called()
	return args.Get(0).(config.RegistryConfig)
}

func (m *MockConfig) Database() config.DatabaseConfig {
	args := m.Called()
	return args.Get(0).(config.DatabaseConfig)
}

func (m *MockConfig) NATS() config.NATSConfig {
	args := m.Called()
	return args.Get(0).(config.NATSConfig)
}

func (m *MockConfig) Metrics() config.MetricsConfig {
	args := m.Called()
	return args.Get(0).(config.MetricsConfig)
}

func (m *MockConfig) Server() config.ServerConfig {
	args := m.Called()
	return args.Get(0).(config.ServerConfig)
}

func (m *MockConfig) SetBrowserHeadless(b bool)       { m.Called(b) }
func (m *MockConfig) SetBrowserEngine(s string)       { m.Called(s) }
func (m *MockConfig) SetSessionEnvID(s string)        { m.Called(s) }
func (m *MockConfig) SetSessionPlatform(s string)     { m.Called(s) }
func (m *MockConfig) SetSessionQuality(s string)      { m.Called(s) }
func (m *MockConfig) SetSessionRecordFailures(b bool) { m.Called(b) }

// -- Driver Mock --

// MockDriver mocks browser.Driver for tests that assert exact call patterns.
// FakeDriver is usually the better fit.
type MockDriver struct {
	mock.Mock
}

func (m *MockDriver) Navigate(ctx context.Context, url string) error {
	return m.Called(ctx, url).Error(0)
}

func (m *MockDriver) Back(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockDriver) DispatchMouseEvent(ctx context.Context, data schemas.MouseEventData) error {
	return m.Called(ctx, data).Error(0)
}

func (m *MockDriver) DispatchTouchEvent(ctx context.Context, data schemas.TouchEventData) error {
	return m.Called(ctx, data).Error(0)
}

func (m *MockDriver) DispatchKeyEvent(ctx context.Context, data schemas.KeyEventData) error {
	return m.Called(ctx, data).Error(0)
}

func (m *MockDriver) Sleep(ctx context.Context, d time.Duration) error {
	return m.Called(ctx, d).Error(0)
}

func (m *MockDriver) Evaluate(ctx context.Context, script string, out interface{}) error {
	return m.Called(ctx, script, out).Error(0)
}

func (m *MockDriver) EvaluateAsync(ctx context.Context, script string, out interface{}) error {
	return m.Called(ctx, script, out).Error(0)
}

func (m *MockDriver) CaptureScreenshot(ctx context.Context, clip *schemas.Clip, scale float64) ([]byte, error) {
	args := m.Called(ctx, clip, scale)
	var b []byte
	if v := args.Get(0); v != nil {
		b = v.([]byte)
	}
	return b, args.Error(1)
}

func (m *MockDriver) Close(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// -- Result Sink Mock --

// MockSink mocks a result sink.
type MockSink struct {
	mock.Mock
}

func (m *MockSink) Name() string {
	return m.Called().String(0)
}

func (m *MockSink) Publish(ctx context.Context, record schemas.EvaluationRecord) error {
	return m.Called(ctx, record).Error(0)
}

// -- Task Source Mock --

// MockTaskSource mocks the task registry lookup used by sessions.
type MockTaskSource struct {
	mock.Mock
}

func (m *MockTaskSource) Lookup(ctx context.Context, id string) (*schemas.TaskDescriptor, error) {
	args := m.Called(ctx, id)
	var t *schemas.TaskDescriptor
	if v := args.Get(0); v != nil {
		t = v.(*schemas.TaskDescriptor)
	}
	return t, args.Error(1)
}
