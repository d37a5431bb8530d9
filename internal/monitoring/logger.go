package monitoring

import (
	"context"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// Logger provides structured JSON logging with domain-specific helpers
type Logger struct {
	*slog.Logger
	level *slog.LevelVar
}

// NewLogger creates a JSON logger on stdout at the given level
func NewLogger(level slog.Level) *Logger {
	return NewLoggerTo(os.Stdout, level)
}

// NewLoggerTo creates a JSON logger writing to w
func NewLoggerTo(w io.Writer, level slog.Level) *Logger {
	lv := new(slog.LevelVar)
	lv.Set(level)

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:     lv,
		AddSource: true,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Add timestamp in RFC3339 format
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{
					Key:   "timestamp",
					Value: slog.StringValue(a.Value.Time().Format(time.RFC3339)),
				}
			}
			return a
		},
	})

	return &Logger{Logger: slog.New(handler), level: lv}
}

// ParseLevel maps a config string onto a slog level, defaulting to info
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// SetLevel changes the logging level in place
func (l *Logger) SetLevel(level slog.Level) {
	l.level.Set(level)
}

// RequestLogger logs HTTP request details
func (l *Logger) RequestLogger(method, path, ip, userAgent, requestID string, statusCode int, duration time.Duration) {
	l.Info("HTTP Request",
		"method", method,
		"path", path,
		"ip", ip,
		"user_agent", userAgent,
		"request_id", requestID,
		"status_code", statusCode,
		"duration_ms", duration.Milliseconds(),
	)
}

// SimulationLogger logs a completed damage estimate
func (l *Logger) SimulationLogger(mode string, prediction float64, topFeature string, duration time.Duration, cacheHit bool) {
	l.Info("Simulation Completed",
		"mode", mode,
		"prediction", prediction,
		"top_feature", topFeature,
		"duration_ms", duration.Milliseconds(),
		"cache_hit", cacheHit,
	)
}

// StreamLogger logs the end of a progress stream
func (l *Logger) StreamLogger(route string, events int, lastProgress int, outcome string, duration time.Duration) {
	level := slog.LevelInfo
	if outcome != "complete" {
		level = slog.LevelWarn
	}
	l.Log(context.Background(), level, "Stream Finished",
		"route", route,
		"events", events,
		"last_progress", lastProgress,
		"outcome", outcome,
		"duration_ms", duration.Milliseconds(),
	)
}

// ModelLogger logs model lifecycle events such as loading and fallback
func (l *Logger) ModelLogger(event, name string, details map[string]interface{}) {
	attrs := []any{"event", event, "model", name}
	for key, value := range details {
		attrs = append(attrs, key, value)
	}
	l.Info("Model Event", attrs...)
}

// APIErrorLogger logs API errors with context
func (l *Logger) APIErrorLogger(err error, method, path, ip string, statusCode int) {
	_, file, line, ok := runtime.Caller(2)
	caller := "unknown"
	if ok {
		caller = file + ":" + strconv.Itoa(line)
	}

	l.Error("API Error",
		"error", err.Error(),
		"method", method,
		"path", path,
		"ip", ip,
		"status_code", statusCode,
		"caller", caller,
	)
}

// ExternalServiceLogger logs calls to brokers, databases and blob stores
func (l *Logger) ExternalServiceLogger(service, operation string, duration time.Duration, err error) {
	if err != nil {
		l.Warn("External Service Call",
			"service", service,
			"operation", operation,
			"duration_ms", duration.Milliseconds(),
			"success", false,
			"error", err.Error(),
		)
		return
	}
	l.Debug("External Service Call",
		"service", service,
		"operation", operation,
		"duration_ms", duration.Milliseconds(),
		"success", true,
	)
}

// CacheLogger logs cache operations
func (l *Logger) CacheLogger(operation, key string, hit bool, itemCount int) {
	if len(key) > 8 {
		key = key[:8] + "..."
	}
	l.Debug("Cache Operation",
		"operation", operation,
		"key_hash", key,
		"hit", hit,
		"cache_size", itemCount,
	)
}

// SystemLogger logs system-level events
func (l *Logger) SystemLogger(event, details string) {
	l.Info("System Event",
		"event", event,
		"details", details,
		"uptime", time.Since(startTime).String(),
	)
}

// SecurityLogger logs security-related events
func (l *Logger) SecurityLogger(event, ip, userAgent string, details map[string]interface{}) {
	attrs := []any{
		"event", event,
		"ip", ip,
		"user_agent", userAgent,
	}
	for key, value := range details {
		attrs = append(attrs, key, value)
	}

	l.Warn("Security Event", attrs...)
}

// PerformanceLogger logs performance metrics
func (l *Logger) PerformanceLogger(metric string, value float64, unit string) {
	l.Info("Performance Metric",
		"metric", metric,
		"value", value,
		"unit", unit,
	)
}

var startTime = time.Now()
