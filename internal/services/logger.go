package services

import (
    "context"
    "io"
    "log/slog"
    "os"
    "strings"
)

// Logger defines common logging interface for all services
type Logger interface {
    Info(msg string, keysAndValues ...interface{})
    Error(msg string, keysAndValues ...interface{})
    Debug(msg string, keysAndValues ...interface{})
    Warn(msg string, keysAndValues ...interface{})
}

// LogLevel represents different logging levels
type LogLevel int

const (
    LogLevelDebug LogLevel = iota
    LogLevelInfo
    LogLevelWarn
    LogLevelError
)

func (l LogLevel) String() string {
    switch l {
    case LogLevelDebug:
        return "DEBUG"
    case LogLevelInfo:
        return "INFO"
    case LogLevelWarn:
        return "WARN"
    case LogLevelError:
        return "ERROR"
    default:
        return "UNKNOWN"
    }
}

func (l LogLevel) slogLevel() slog.Level {
    switch l {
    case LogLevelDebug:
        return slog.LevelDebug
    case LogLevelWarn:
        return slog.LevelWarn
    case LogLevelError:
        return slog.LevelError
    default:
        return slog.LevelInfo
    }
}

// ParseLogLevel maps LOG_LEVEL values onto a LogLevel, defaulting to INFO.
func ParseLogLevel(s string) LogLevel {
    switch strings.ToUpper(strings.TrimSpace(s)) {
    case "DEBUG":
        return LogLevelDebug
    case "WARN", "WARNING":
        return LogLevelWarn
    case "ERROR":
        return LogLevelError
    default:
        return LogLevelInfo
    }
}

// ProductionLogger is a structured logger for production use
type ProductionLogger struct {
    logger  *slog.Logger
    level   *slog.LevelVar
    service string
}

// NewProductionLogger creates a logger writing to w. Structured output is JSON,
// otherwise the human-readable text handler is used.
func NewProductionLogger(service string, w io.Writer, level LogLevel, structured bool) *ProductionLogger {
    lv := new(slog.LevelVar)
    lv.Set(level.slogLevel())

    opts := &slog.HandlerOptions{Level: lv}
    var handler slog.Handler
    if structured {
        handler = slog.NewJSONHandler(w, opts)
    } else {
        handler = slog.NewTextHandler(w, opts)
    }

    return &ProductionLogger{
        logger:  slog.New(handler).With(slog.String("service", service)),
        level:   lv,
        service: service,
    }
}

// SetLevel updates the logging level
func (p *ProductionLogger) SetLevel(level LogLevel) {
    p.level.Set(level.slogLevel())
}

// With returns a child logger that always carries the given fields.
func (p *ProductionLogger) With(keysAndValues ...interface{}) *ProductionLogger {
    return &ProductionLogger{
        logger:  p.logger.With(keysAndValues...),
        level:   p.level,
        service: p.service,
    }
}

// Slog exposes the underlying slog logger for libraries that want one.
func (p *ProductionLogger) Slog() *slog.Logger {
    return p.logger
}

func (p *ProductionLogger) Info(msg string, keysAndValues ...interface{}) {
    p.log(slog.LevelInfo, msg, keysAndValues...)
}

func (p *ProductionLogger) Error(msg string, keysAndValues ...interface{}) {
    p.log(slog.LevelError, msg, keysAndValues...)
}

func (p *ProductionLogger) Debug(msg string, keysAndValues ...interface{}) {
    p.log(slog.LevelDebug, msg, keysAndValues...)
}

func (p *ProductionLogger) Warn(msg string, keysAndValues ...interface{}) {
    p.log(slog.LevelWarn, msg, keysAndValues...)
}

func (p *ProductionLogger) log(level slog.Level, msg string, keysAndValues ...interface{}) {
    // Odd trailing keys are dropped rather than rendered as !BADKEY.
    if len(keysAndValues)%2 != 0 {
        keysAndValues = keysAndValues[:len(keysAndValues)-1]
    }
    p.logger.Log(context.Background(), level, msg, keysAndValues...)
}

// NoOpLogger is a logger that does nothing (for testing)
type NoOpLogger struct{}

func (n *NoOpLogger) Info(msg string, keysAndValues ...interface{})  {}
func (n *NoOpLogger) Error(msg string, keysAndValues ...interface{}) {}
func (n *NoOpLogger) Debug(msg string, keysAndValues ...interface{}) {}
func (n *NoOpLogger) Warn(msg string, keysAndValues ...interface{})  {}

// Environment-based logger factory
func NewLogger(service string) Logger {
    env := strings.ToLower(os.Getenv("ENV"))
    if env == "test" {
        return &NoOpLogger{}
    }

    // Use structured logging in production, human-readable for development
    return NewProductionLogger(service, os.Stdout, ParseLogLevel(os.Getenv("LOG_LEVEL")), env == "production")
}
