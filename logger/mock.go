package logger

import (
	"sync/atomic"

	"github.com/stretchr/testify/mock"
)

// MockLogger is a testify mock of Logger. Log calls are matched on the method name with the arguments
// (msg, keysAndValues). Level and SetLevel are plain state so components may guard debug logging without
// extra expectations, and With returns the same mock so child loggers share its expectations.
type MockLogger struct {
	mock.Mock
	level atomic.Int32
}

var _ Logger = (*MockLogger)(nil)

func NewMockLogger() *MockLogger {
	return &MockLogger{}
}

// AllowAll accepts every log call. Tests can still assert on individual calls afterwards.
func (m *MockLogger) AllowAll() *MockLogger {
	for _, method := range []string{"Debug", "Info", "Warn", "Error", "Fatal"} {
		m.On(method, mock.Anything, mock.Anything).Maybe().Return()
	}

	return m
}

func (m *MockLogger) log(method string, msg string, keysAndValues []any) {
	m.MethodCalled(method, msg, keysAndValues)
}

func (m *MockLogger) Debug(msg string, keysAndValues ...any) { m.log("Debug", msg, keysAndValues) }
func (m *MockLogger) Info(msg string, keysAndValues ...any)  { m.log("Info", msg, keysAndValues) }
func (m *MockLogger) Warn(msg string, keysAndValues ...any)  { m.log("Warn", msg, keysAndValues) }
func (m *MockLogger) Error(msg string, keysAndValues ...any) { m.log("Error", msg, keysAndValues) }
func (m *MockLogger) Fatal(msg string, keysAndValues ...any) { m.log("Fatal", msg, keysAndValues) }

func (m *MockLogger) SetLevel(level LogLevel) { m.level.Store(int32(level)) }
func (m *MockLogger) Level() LogLevel         { return LogLevel(m.level.Load()) }

func (m *MockLogger) With(...any) Logger { return m }
