package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	require := require.New(t)

	tests := []struct {
		description string
		input       string
		expected    LogLevel
	}{
		{"debug", "debug", DebugLevel},
		{"upper case warn", "WARN", WarnLevel},
		{"warning alias", "warning", WarnLevel},
		{"error with spaces", " error ", ErrorLevel},
		{"fatal", "fatal", FatalLevel},
		{"empty defaults to info", "", InfoLevel},
		{"unknown defaults to info", "verbose", InfoLevel},
	}

	for _, tt := range tests {
		require.Equal(tt.expected, ParseLevel(tt.input), tt.description)
	}
}

func TestSlogLogger_JSONOutput(t *testing.T) {
	require := require.New(t)
	t.Setenv("ENV", "")

	var buf bytes.Buffer
	l := NewSlogWithWriter(&buf, InfoLevel, false)

	l.Debug("hidden")
	require.Zero(buf.Len())

	l.With("component", "rtsi").Info("connected", "port", 30004)

	var rec map[string]any
	require.NoError(json.Unmarshal(buf.Bytes(), &rec))
	require.Equal("connected", rec["msg"])
	require.Equal("rtsi", rec["component"])
	require.EqualValues(30004, rec["port"])
	require.Contains(rec, "ts")

	l.SetLevel(DebugLevel)
	require.Equal(DebugLevel, l.Level())
}

func TestSetDefault_LastRegistrationWins(t *testing.T) {
	require := require.New(t)
	defer ResetDefault()

	first := NewMockLogger()
	first.On("Info", "from first", mock.Anything).Return()
	second := NewMockLogger()
	second.On("Info", "from second", mock.Anything).Return()

	SetDefault(first)
	Info("from first")

	prev := SetDefault(second)
	require.Same(first, prev)
	Info("from second")

	first.AssertNumberOfCalls(t, "Info", 1)
	second.AssertNumberOfCalls(t, "Info", 1)

	// nil registration is ignored
	SetDefault(nil)
	require.Same(second, GetLogger())

	ResetDefault()
	require.Same(builtinLog, GetLogger())
}
