// Package logger is the process-wide structured logger. Call sites use
// key/value pairs: logger.Info("sms sent", "provider", name, "phone", p).
// Values under PII-ish keys are redacted before they reach the sink.
package logger

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level represents the severity of a log entry.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

var levelNames = map[Level]string{
	DEBUG: "DEBUG",
	INFO:  "INFO",
	WARN:  "WARN",
	ERROR: "ERROR",
}

func (l Level) String() string { return levelNames[l] }

func (l Level) zap() zapcore.Level {
	switch l {
	case DEBUG:
		return zapcore.DebugLevel
	case WARN:
		return zapcore.WarnLevel
	case ERROR:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// ParseLevel maps "debug", "info", "warn" and "error" to a Level. Unknown
// strings map to INFO.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DEBUG
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	default:
		return INFO
	}
}

// Logger wraps a zap.SugaredLogger with optional PII redaction.
type Logger struct {
	mu        sync.RWMutex
	level     zap.AtomicLevel
	sugar     *zap.SugaredLogger
	base      *zap.Logger
	redactPII bool
}

var defaultLogger = newDefault()

func newDefault() *Logger {
	cfg := zap.NewProductionConfig()
	cfg.Sampling = nil
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.MessageKey = "msg"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	base, err := cfg.Build(zap.AddCallerSkip(2))
	if err != nil {
		base = zap.NewNop()
	}
	return &Logger{level: cfg.Level, base: base, sugar: base.Sugar(), redactPII: true}
}

// New wraps an existing zap logger. Used by tests (zaptest/observer) and by
// binaries that build their own zap config.
func New(base *zap.Logger, redactPII bool) *Logger {
	return &Logger{
		level:     zap.NewAtomicLevelAt(zapcore.DebugLevel),
		base:      base,
		sugar:     base.WithOptions(zap.AddCallerSkip(2)).Sugar(),
		redactPII: redactPII,
	}
}

// SetDefault replaces the package-level logger.
func SetDefault(l *Logger) { defaultLogger = l }

// SetLevel sets the minimum log level for the default logger.
func SetLevel(l Level) { defaultLogger.level.SetLevel(l.zap()) }

// SetRedactPII enables or disables PII redaction for the default logger.
func SetRedactPII(r bool) {
	defaultLogger.mu.Lock()
	defaultLogger.redactPII = r
	defaultLogger.mu.Unlock()
}

// Zap exposes the underlying zap logger for libraries that want one.
func Zap() *zap.Logger { return defaultLogger.base }

// Sync flushes buffered entries. Call before exit.
func Sync() error { return defaultLogger.base.Sync() }

// Debug emits a DEBUG-level structured log entry.
func Debug(msg string, fields ...interface{}) { defaultLogger.log(DEBUG, msg, fields...) }

// Info emits an INFO-level structured log entry.
func Info(msg string, fields ...interface{}) { defaultLogger.log(INFO, msg, fields...) }

// Warn emits a WARN-level structured log entry.
func Warn(msg string, fields ...interface{}) { defaultLogger.log(WARN, msg, fields...) }

// Error emits an ERROR-level structured log entry.
func Error(msg string, fields ...interface{}) { defaultLogger.log(ERROR, msg, fields...) }

func (l *Logger) log(level Level, msg string, fields ...interface{}) {
	l.mu.RLock()
	redact := l.redactPII
	l.mu.RUnlock()

	kv := make([]interface{}, 0, len(fields))
	for i := 0; i < len(fields)-1; i += 2 {
		key := fmt.Sprintf("%v", fields[i])
		val := fields[i+1]
		if err, ok := val.(error); ok {
			val = err.Error()
		}
		if redact {
			if s, ok := val.(string); ok {
				val = redactPIIValue(key, s)
			}
		}
		kv = append(kv, key, val)
	}

	switch level {
	case DEBUG:
		l.sugar.Debugw(msg, kv...)
	case WARN:
		l.sugar.Warnw(msg, kv...)
	case ERROR:
		l.sugar.Errorw(msg, kv...)
	default:
		l.sugar.Infow(msg, kv...)
	}
}

func redactPIIValue(key, val string) string {
	key = strings.ToLower(key)
	switch {
	case strings.Contains(key, "email"):
		return RedactEmail(val)
	case strings.Contains(key, "phone") || key == "to" || key == "number":
		return RedactPhone(val)
	}
	val = emailRegex.ReplaceAllStringFunc(val, RedactEmail)
	return phoneRegex.ReplaceAllStringFunc(val, RedactPhone)
}
