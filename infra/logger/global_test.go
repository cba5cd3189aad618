package logger

import (
	"bytes"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func resetGlobal() {
	SetGlobalLogger(nil)
	once = sync.Once{}
}

func TestInitGlobalLogger(t *testing.T) {
	resetGlobal()
	t.Cleanup(resetGlobal)

	InitGlobalLogger(SystemLoggerConfig{Output: &bytes.Buffer{}, Environment: "production"})

	l := GetGlobalLogger()
	assert.Equal(t, "paykit", l.service)
	assert.Equal(t, "1.0.0", l.version)
	assert.Equal(t, LevelInfo, l.minLevel)
}

func TestInitGlobalLogger_Development(t *testing.T) {
	resetGlobal()
	t.Cleanup(resetGlobal)

	InitGlobalLogger(SystemLoggerConfig{Output: &bytes.Buffer{}, Environment: "development"})
	assert.Equal(t, LevelDebug, GetGlobalLogger().minLevel)
}

func TestInitGlobalLogger_OnlyOnce(t *testing.T) {
	resetGlobal()
	t.Cleanup(resetGlobal)

	InitGlobalLogger(SystemLoggerConfig{Output: &bytes.Buffer{}, Service: "first"})
	first := GetGlobalLogger()

	InitGlobalLogger(SystemLoggerConfig{Output: &bytes.Buffer{}, Service: "second"})
	assert.Same(t, first, GetGlobalLogger())
	assert.Equal(t, "first", first.service)
}

func TestGetGlobalLogger_Fallback(t *testing.T) {
	resetGlobal()
	t.Cleanup(resetGlobal)

	l := GetGlobalLogger()
	assert.NotNil(t, l)
	assert.Equal(t, "paykit", l.service)
	assert.Same(t, l, GetGlobalLogger())
}

func TestGlobalConvenienceFunctions(t *testing.T) {
	resetGlobal()
	t.Cleanup(resetGlobal)

	buf := &bytes.Buffer{}
	SetGlobalLogger(NewSystemLogger(SystemLoggerConfig{Output: buf, MinLevel: LevelDebug}))

	Debug("debug message")
	Info("info message", LogContext{Provider: "stripe"})
	Warn("warn message")
	Error("error message", nil)

	out := buf.String()
	assert.Contains(t, out, "debug message")
	assert.Contains(t, out, "info message")
	assert.Contains(t, out, `"provider":"stripe"`)
	assert.Contains(t, out, "error message")
}

func TestWithProvider(t *testing.T) {
	resetGlobal()
	t.Cleanup(resetGlobal)

	contextLogger := WithProvider("paypal")
	assert.Equal(t, "paypal", contextLogger.context.Provider)
}
