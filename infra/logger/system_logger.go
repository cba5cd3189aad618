package logger

import (
	"context"
	"io"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// LogLevel represents the severity level of a log entry
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
	LevelFatal LogLevel = "fatal"
)

var zerologLevels = map[LogLevel]zerolog.Level{
	LevelDebug: zerolog.DebugLevel,
	LevelInfo:  zerolog.InfoLevel,
	LevelWarn:  zerolog.WarnLevel,
	LevelError: zerolog.ErrorLevel,
	LevelFatal: zerolog.FatalLevel,
}

// ParseLevel maps a level name onto a LogLevel, defaulting to info
func ParseLevel(s string) LogLevel {
	level := LogLevel(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := zerologLevels[level]; ok {
		return level
	}
	return LevelInfo
}

// SystemLog is the structured entry handed to a Sink
type SystemLog struct {
	Timestamp   time.Time      `json:"timestamp"`
	Level       LogLevel       `json:"level"`
	Message     string         `json:"message"`
	Component   string         `json:"component"`
	Provider    string         `json:"provider,omitempty"`
	RequestID   string         `json:"request_id,omitempty"`
	Error       string         `json:"error,omitempty"`
	Fields      map[string]any `json:"fields,omitempty"`
	Environment string         `json:"environment"`
	Service     string         `json:"service"`
	Version     string         `json:"version"`
}

// Sink receives a copy of every entry at or above warn level, e.g. to index
// it in OpenSearch
type Sink interface {
	LogSystemEvent(ctx context.Context, entry SystemLog) error
}

// SystemLoggerConfig represents configuration for system logger
type SystemLoggerConfig struct {
	Output      io.Writer // defaults to os.Stdout
	Console     bool      // human readable output instead of JSON
	MinLevel    LogLevel
	Service     string
	Version     string
	Environment string
	Sink        Sink
}

// LogContext holds contextual information for logging
type LogContext struct {
	Provider  string
	RequestID string
	Fields    map[string]any
}

// SystemLogger writes structured entries through zerolog
type SystemLogger struct {
	zl          zerolog.Logger
	sink        Sink
	minLevel    LogLevel
	service     string
	version     string
	environment string
}

// NewSystemLogger creates a new system logger
func NewSystemLogger(config SystemLoggerConfig) *SystemLogger {
	out := config.Output
	if out == nil {
		out = os.Stdout
	}
	if config.Console {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	minLevel := config.MinLevel
	if _, ok := zerologLevels[minLevel]; !ok {
		minLevel = LevelInfo
	}

	zl := zerolog.New(out).
		Level(zerologLevels[minLevel]).
		With().
		Timestamp().
		Str("service", config.Service).
		Str("version", config.Version).
		Str("env", config.Environment).
		Logger()

	return &SystemLogger{
		zl:          zl,
		sink:        config.Sink,
		minLevel:    minLevel,
		service:     config.Service,
		version:     config.Version,
		environment: config.Environment,
	}
}

// Zerolog exposes the underlying logger, e.g. for HTTP request logging
func (sl *SystemLogger) Zerolog() *zerolog.Logger {
	return &sl.zl
}

// Debug logs a debug message
func (sl *SystemLogger) Debug(message string, ctx ...LogContext) {
	sl.log(LevelDebug, message, nil, ctx...)
}

// Info logs an info message
func (sl *SystemLogger) Info(message string, ctx ...LogContext) {
	sl.log(LevelInfo, message, nil, ctx...)
}

// Warn logs a warning message
func (sl *SystemLogger) Warn(message string, ctx ...LogContext) {
	sl.log(LevelWarn, message, nil, ctx...)
}

// Error logs an error message
func (sl *SystemLogger) Error(message string, err error, ctx ...LogContext) {
	sl.log(LevelError, message, err, ctx...)
}

// Fatal logs a fatal message and exits
func (sl *SystemLogger) Fatal(message string, err error, ctx ...LogContext) {
	sl.log(LevelFatal, message, err, ctx...)
	os.Exit(1)
}

func (sl *SystemLogger) log(level LogLevel, message string, err error, ctx ...LogContext) {
	if !sl.shouldLog(level) {
		return
	}

	var logCtx LogContext
	if len(ctx) > 0 {
		logCtx = ctx[0]
	}

	// three frames up is the caller of Info/Warn/... or of a global helper
	component := "unknown"
	if _, file, _, ok := runtime.Caller(3); ok {
		component = extractComponent(file)
	}

	var event *zerolog.Event
	switch level {
	case LevelDebug:
		event = sl.zl.Debug()
	case LevelInfo:
		event = sl.zl.Info()
	case LevelWarn:
		event = sl.zl.Warn()
	default:
		// fatal is written at error level; Fatal exits itself
		event = sl.zl.Error()
	}

	event = event.Str("component", component)
	if logCtx.Provider != "" {
		event = event.Str("provider", logCtx.Provider)
	}
	if logCtx.RequestID != "" {
		event = event.Str("request_id", logCtx.RequestID)
	}
	if err != nil {
		event = event.Err(err)
	}
	if len(logCtx.Fields) > 0 {
		event = event.Fields(logCtx.Fields)
	}
	event.Msg(message)

	if sl.sink != nil && sl.levelOrder(level) >= sl.levelOrder(LevelWarn) {
		entry := SystemLog{
			Timestamp:   time.Now().UTC(),
			Level:       level,
			Message:     message,
			Component:   component,
			Provider:    logCtx.Provider,
			RequestID:   logCtx.RequestID,
			Fields:      logCtx.Fields,
			Environment: sl.environment,
			Service:     sl.service,
			Version:     sl.version,
		}
		if err != nil {
			entry.Error = err.Error()
		}
		go sl.logToSink(entry)
	}
}

func (sl *SystemLogger) shouldLog(level LogLevel) bool {
	return sl.levelOrder(level) >= sl.levelOrder(sl.minLevel)
}

func (sl *SystemLogger) levelOrder(level LogLevel) int {
	return int(zerologLevels[level])
}

// extractComponent turns a source path into a package path relative to the
// module, e.g. /src/paykit/provider/stripe/stripe.go -> provider/stripe
func extractComponent(file string) string {
	parts := strings.Split(file, "/")
	for i, part := range parts {
		if part == "paykit" && i+1 < len(parts)-1 {
			return strings.Join(parts[i+1:len(parts)-1], "/")
		}
	}
	if len(parts) >= 2 {
		return parts[len(parts)-2]
	}
	return "unknown"
}

func (sl *SystemLogger) logToSink(entry SystemLog) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := sl.sink.LogSystemEvent(ctx, entry); err != nil {
		sl.zl.Warn().Err(err).Msg("Failed to ship log entry")
	}
}

// WithContext creates a new logger with context
func (sl *SystemLogger) WithContext(ctx LogContext) *ContextLogger {
	return &ContextLogger{
		systemLogger: sl,
		context:      ctx,
	}
}

// ContextLogger wraps SystemLogger with context
type ContextLogger struct {
	systemLogger *SystemLogger
	context      LogContext
}

// Debug logs a debug message with context
func (cl *ContextLogger) Debug(message string) {
	cl.systemLogger.log(LevelDebug, message, nil, cl.context)
}

// Info logs an info message with context
func (cl *ContextLogger) Info(message string) {
	cl.systemLogger.log(LevelInfo, message, nil, cl.context)
}

// Warn logs a warning message with context
func (cl *ContextLogger) Warn(message string) {
	cl.systemLogger.log(LevelWarn, message, nil, cl.context)
}

// Error logs an error message with context
func (cl *ContextLogger) Error(message string, err error) {
	cl.systemLogger.log(LevelError, message, err, cl.context)
}

// AddField adds a field to the context
func (cl *ContextLogger) AddField(key string, value any) *ContextLogger {
	fields := make(map[string]any, len(cl.context.Fields)+1)
	for k, v := range cl.context.Fields {
		fields[k] = v
	}
	fields[key] = value
	cl.context.Fields = fields
	return cl
}

// SetProvider sets the provider in context
func (cl *ContextLogger) SetProvider(provider string) *ContextLogger {
	cl.context.Provider = provider
	return cl
}

// SetRequestID sets the request ID in context
func (cl *ContextLogger) SetRequestID(requestID string) *ContextLogger {
	cl.context.RequestID = requestID
	return cl
}
