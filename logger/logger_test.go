package logger

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetLevelFromEnv(t *testing.T) {
	originalValue := os.Getenv(EnvLogLevel)
	defer os.Setenv(EnvLogLevel, originalValue)

	tests := []struct {
		name          string
		envValue      string
		expectedLevel LogLevel
	}{
		{name: "trace level", envValue: "trace", expectedLevel: LevelTrace},
		{name: "debug level", envValue: "debug", expectedLevel: LevelDebug},
		{name: "warn level", envValue: "warn", expectedLevel: LevelWarn},
		{name: "warning alias", envValue: "warning", expectedLevel: LevelWarn},
		{name: "error level", envValue: "error", expectedLevel: LevelError},
		{name: "none", envValue: "off", expectedLevel: LevelNone},
		{name: "mixed case debug", envValue: "DeBuG", expectedLevel: LevelDebug},
		{name: "empty string", envValue: "", expectedLevel: LevelInfo},
		{name: "invalid value", envValue: "invalid", expectedLevel: LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Setenv(EnvLogLevel, tt.envValue)
			assert.Equal(t, tt.expectedLevel, GetLevelFromEnv())
		})
	}
}

func TestWriterLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriterLogger(&buf, LevelWarn, false)

	log.Debug("hidden %d", 1)
	log.Info("hidden %d", 2)
	log.Warn("shown %d", 3)
	log.Error("shown %d", 4)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "[WARN ] shown 3")
	assert.Contains(t, out, "[ERROR] shown 4")
	assert.False(t, log.IsLevelEnabled(LevelInfo))
	assert.True(t, log.IsLevelEnabled(LevelError))
}

func TestWriterLoggerPrefixAndMetadata(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriterLogger(&buf, LevelTrace, false).
		WithPrefix("[tier]").
		WithPrefix("[tier]").
		With(map[string]interface{}{"tier": 1})

	log.Info("hello")
	assert.Contains(t, buf.String(), `[tier] hello {"tier":1}`)
}

func TestNopLogger(t *testing.T) {
	log := NewNopLogger()
	log.Error("nothing")
	assert.False(t, log.IsLevelEnabled(LevelError))
}

func TestTestLogger(t *testing.T) {
	log := NewTestLogger()

	log.Trace("Trace message %d", 1)
	log.Debug("Debug message")
	log.Info("Info message")
	log.Warn("Warn message %s", "x")
	log.With(map[string]interface{}{"k": "v"}).Error("Error message")

	logs := log.Logs()
	assert.Len(t, logs, 5)
	assert.Equal(t, "TRACE", logs[0].Severity)
	assert.Equal(t, "Trace message 1", logs[0].String())
	assert.Equal(t, "WARNING", logs[3].Severity)
	assert.Equal(t, "ERROR", logs[4].Severity)
	assert.Equal(t, 1, log.Count("WARNING"))
	assert.True(t, log.Contains("message x"))
	assert.False(t, log.Contains("missing"))
}
