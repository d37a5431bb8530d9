package monitoring

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerWritesRFC3339Timestamp(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, slog.LevelInfo)

	logger.SimulationLogger("heuristic", 1, "superstructure", 3*time.Millisecond, false)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "Simulation Completed", entry["msg"])
	assert.Equal(t, "heuristic", entry["mode"])
	ts, ok := entry["timestamp"].(string)
	require.True(t, ok)
	_, err := time.Parse(time.RFC3339, ts)
	assert.NoError(t, err)
}

func TestLoggerSetLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, slog.LevelWarn)

	logger.ModelLogger("loaded", "rf", nil)
	assert.Zero(t, buf.Len())

	logger.SetLevel(slog.LevelInfo)
	logger.ModelLogger("loaded", "rf", map[string]interface{}{"trees": 3})
	assert.Contains(t, buf.String(), `"trees":3`)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
}

func TestMetricsStats(t *testing.T) {
	m := NewMetrics()
	m.IncrementRequest()
	m.IncrementRequest()
	m.IncrementError()
	m.IncrementCacheHit()
	m.IncrementCacheMiss()
	m.RecordSimulation("model")
	m.RecordSimulation("fallback")
	m.RecordStream("started")
	m.RecordStream("complete")
	m.RecordStream("error")
	m.RecordEventPublish(false)
	m.IncrementRateLimitEndpoint("/simulate")
	for i := 1; i <= 10; i++ {
		m.RecordResponseTime(time.Duration(i) * time.Millisecond)
	}

	stats := m.GetStats()
	assert.Equal(t, int64(2), stats["total_requests"])
	assert.Equal(t, 50.0, stats["error_rate_percent"])
	assert.Equal(t, 50.0, stats["cache_hit_rate_percent"])
	assert.Equal(t, int64(1), stats["simulations"].(map[string]int64)["fallback"])
	assert.Equal(t, int64(1), stats["streams"].(map[string]int64)["failed"])
	assert.Equal(t, int64(1), stats["background"].(map[string]int64)["events_failed"])
	assert.Equal(t, 5*time.Millisecond, m.GetPercentileResponseTime(50))
	assert.Equal(t, int64(1), m.GetRateLimitStats()["endpoint_blocks"].(map[string]int64)["/simulate"])
}

func TestMonitoringMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, slog.LevelInfo)
	metrics := NewMetrics()

	router := gin.New()
	router.Use(RequestIDMiddleware(), MonitoringMiddleware(metrics, logger))
	router.GET("/ok", func(c *gin.Context) { c.String(http.StatusOK, "OK") })
	router.GET("/fail", func(c *gin.Context) {
		_ = c.Error(errors.New("boom"))
		c.Status(http.StatusInternalServerError)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/fail", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))

	assert.Equal(t, int64(2), metrics.RequestCount)
	assert.Equal(t, int64(1), metrics.ErrorCount)
	assert.Equal(t, map[int]int64{200: 1, 500: 1}, metrics.GetStatusCodeDistribution())
	assert.Contains(t, buf.String(), "API Error")
	assert.Contains(t, buf.String(), `"request_id":"abc-123"`)
}

func TestSecurityPatterns(t *testing.T) {
	assert.True(t, containsSQLInjectionPatterns("id=1 UNION SELECT password"))
	assert.False(t, containsSQLInjectionPatterns("limit=10"))
	assert.True(t, containsSuspiciousUserAgent("sqlmap/1.7"))
	assert.False(t, containsSuspiciousUserAgent("Mozilla/5.0"))
}
