package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu      sync.Mutex
	entries []SystemLog
	done    chan struct{}
}

func (s *recordingSink) LogSystemEvent(_ context.Context, entry SystemLog) error {
	s.mu.Lock()
	s.entries = append(s.entries, entry)
	s.mu.Unlock()
	s.done <- struct{}{}
	return nil
}

func newBufferLogger(minLevel LogLevel) (*SystemLogger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	return NewSystemLogger(SystemLoggerConfig{
		Output:      buf,
		MinLevel:    minLevel,
		Service:     "test-service",
		Version:     "1.0.0",
		Environment: "test",
	}), buf
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal(line, &entry))
		out = append(out, entry)
	}
	return out
}

func TestNewSystemLogger(t *testing.T) {
	logger, _ := newBufferLogger(LevelWarn)

	assert.Equal(t, LevelWarn, logger.minLevel)
	assert.Equal(t, "test-service", logger.service)
	assert.Equal(t, "1.0.0", logger.version)
	assert.Equal(t, "test", logger.environment)

	invalid, _ := newBufferLogger("loud")
	assert.Equal(t, LevelInfo, invalid.minLevel)
}

func TestSystemLogger_WritesJSON(t *testing.T) {
	logger, buf := newBufferLogger(LevelDebug)

	logger.Info("Payment created", LogContext{
		Provider:  "stripe",
		RequestID: "req-123",
		Fields:    map[string]any{"amount": "19.99"},
	})
	logger.Error("Payment failed", errors.New("card declined"), LogContext{Provider: "paypal"})

	entries := decodeLines(t, buf)
	require.Len(t, entries, 2)

	assert.Equal(t, "info", entries[0]["level"])
	assert.Equal(t, "Payment created", entries[0]["message"])
	assert.Equal(t, "stripe", entries[0]["provider"])
	assert.Equal(t, "req-123", entries[0]["request_id"])
	assert.Equal(t, "19.99", entries[0]["amount"])
	assert.Equal(t, "test-service", entries[0]["service"])

	assert.Equal(t, "error", entries[1]["level"])
	assert.Equal(t, "card declined", entries[1]["error"])
}

func TestSystemLogger_ShouldLog(t *testing.T) {
	tests := []struct {
		name     string
		minLevel LogLevel
		level    LogLevel
		expected bool
	}{
		{"debug_level_allows_all", LevelDebug, LevelDebug, true},
		{"info_level_blocks_debug", LevelInfo, LevelDebug, false},
		{"info_level_allows_info", LevelInfo, LevelInfo, true},
		{"warn_level_allows_error", LevelWarn, LevelError, true},
		{"error_level_blocks_warn", LevelError, LevelWarn, false},
		{"fatal_level_allows_fatal", LevelFatal, LevelFatal, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, _ := newBufferLogger(tt.minLevel)
			assert.Equal(t, tt.expected, logger.shouldLog(tt.level))
		})
	}
}

func TestSystemLogger_FiltersBelowMinLevel(t *testing.T) {
	logger, buf := newBufferLogger(LevelWarn)

	logger.Debug("debug")
	logger.Info("info")
	logger.Warn("warn")

	entries := decodeLines(t, buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "warn", entries[0]["message"])
}

func TestSystemLogger_Sink(t *testing.T) {
	sink := &recordingSink{done: make(chan struct{}, 4)}
	logger := NewSystemLogger(SystemLoggerConfig{
		Output:   &bytes.Buffer{},
		MinLevel: LevelDebug,
		Service:  "paykit",
		Sink:     sink,
	})

	logger.Info("not shipped")
	logger.Warn("shipped", LogContext{Provider: "stripe"})

	select {
	case <-sink.done:
	case <-time.After(2 * time.Second):
		t.Fatal("sink was not called")
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Len(t, sink.entries, 1)
	assert.Equal(t, "shipped", sink.entries[0].Message)
	assert.Equal(t, LevelWarn, sink.entries[0].Level)
	assert.Equal(t, "stripe", sink.entries[0].Provider)
	assert.Equal(t, "paykit", sink.entries[0].Service)
}

func TestExtractComponent(t *testing.T) {
	tests := []struct {
		name     string
		filePath string
		expected string
	}{
		{"provider_file", "/path/to/paykit/provider/stripe/stripe.go", "provider/stripe"},
		{"handler_file", "/path/to/paykit/handler/payment.go", "handler"},
		{"unknown_file", "/some/other/path/file.go", "path"},
		{"single_part", "file.go", "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, extractComponent(tt.filePath))
		})
	}
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, LevelError, ParseLevel(" error "))
	assert.Equal(t, LevelInfo, ParseLevel(""))
	assert.Equal(t, LevelInfo, ParseLevel("verbose"))
}

func TestContextLogger(t *testing.T) {
	systemLogger, buf := newBufferLogger(LevelDebug)

	ctx := LogContext{Provider: "paypal"}
	contextLogger := systemLogger.WithContext(ctx)

	assert.Same(t, systemLogger, contextLogger.systemLogger)
	assert.Equal(t, ctx, contextLogger.context)

	contextLogger.AddField("key", "value").
		SetProvider("stripe").
		SetRequestID("req-456")

	assert.Equal(t, "stripe", contextLogger.context.Provider)
	assert.Equal(t, "req-456", contextLogger.context.RequestID)
	assert.Equal(t, "value", contextLogger.context.Fields["key"])

	contextLogger.Warn("context message")
	entries := decodeLines(t, buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "stripe", entries[0]["provider"])
	assert.Equal(t, "value", entries[0]["key"])
}

func TestContextLogger_AddFieldDoesNotMutateCaller(t *testing.T) {
	systemLogger, _ := newBufferLogger(LevelDebug)
	fields := map[string]any{"a": 1}

	systemLogger.WithContext(LogContext{Fields: fields}).AddField("b", 2)
	assert.Len(t, fields, 1)
}
