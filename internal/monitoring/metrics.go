package monitoring

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

const maxResponseSamples = 1000

// Metrics holds in-process application counters
type Metrics struct {
	RequestCount int64
	ErrorCount   int64
	CacheHits    int64
	CacheMisses  int64
	StartTime    time.Time

	// Simulation outcomes
	HeuristicSimulations int64
	ModelSimulations     int64
	FallbackSimulations  int64
	ModelFailures        int64

	// Streams
	StreamsStarted   int64
	StreamsCompleted int64
	StreamsFailed    int64

	// Background work
	HistoryWrites   int64
	HistoryFailures int64
	EventsPublished int64
	EventsFailed    int64

	responseTimes []time.Duration
	responseMutex sync.RWMutex

	requestCountByStatus map[int]int64
	statusMutex          sync.RWMutex

	// Rate limit metrics
	RateLimitIPBlocks       int64
	RateLimitRedisErrors    int64
	RateLimitFallbackCount  int64
	rateLimitEndpointBlocks map[string]int64
	rateLimitMutex          sync.RWMutex
}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	return &Metrics{
		StartTime:               time.Now(),
		responseTimes:           make([]time.Duration, 0, maxResponseSamples),
		requestCountByStatus:    make(map[int]int64),
		rateLimitEndpointBlocks: make(map[string]int64),
	}
}

// IncrementRequest increments the request count
func (m *Metrics) IncrementRequest() { atomic.AddInt64(&m.RequestCount, 1) }

// IncrementError increments the error count
func (m *Metrics) IncrementError() { atomic.AddInt64(&m.ErrorCount, 1) }

// IncrementCacheHit increments cache hit count
func (m *Metrics) IncrementCacheHit() { atomic.AddInt64(&m.CacheHits, 1) }

// IncrementCacheMiss increments cache miss count
func (m *Metrics) IncrementCacheMiss() { atomic.AddInt64(&m.CacheMisses, 1) }

// RecordSimulation counts a finished simulation by the engine that produced it
func (m *Metrics) RecordSimulation(mode string) {
	switch mode {
	case "heuristic":
		atomic.AddInt64(&m.HeuristicSimulations, 1)
	case "model":
		atomic.AddInt64(&m.ModelSimulations, 1)
	case "fallback":
		atomic.AddInt64(&m.FallbackSimulations, 1)
	}
}

// IncrementModelFailure counts inference errors
func (m *Metrics) IncrementModelFailure() { atomic.AddInt64(&m.ModelFailures, 1) }

// RecordStream counts a stream start or its terminal outcome
func (m *Metrics) RecordStream(outcome string) {
	switch outcome {
	case "started":
		atomic.AddInt64(&m.StreamsStarted, 1)
	case "complete":
		atomic.AddInt64(&m.StreamsCompleted, 1)
	default:
		atomic.AddInt64(&m.StreamsFailed, 1)
	}
}

// RecordHistoryWrite counts persistence attempts
func (m *Metrics) RecordHistoryWrite(success bool) {
	if success {
		atomic.AddInt64(&m.HistoryWrites, 1)
		return
	}
	atomic.AddInt64(&m.HistoryFailures, 1)
}

// RecordEventPublish counts event publication attempts
func (m *Metrics) RecordEventPublish(success bool) {
	if success {
		atomic.AddInt64(&m.EventsPublished, 1)
		return
	}
	atomic.AddInt64(&m.EventsFailed, 1)
}

// RecordResponseTime keeps the last samples for percentiles
func (m *Metrics) RecordResponseTime(duration time.Duration) {
	m.responseMutex.Lock()
	m.responseTimes = append(m.responseTimes, duration)
	if len(m.responseTimes) > maxResponseSamples {
		m.responseTimes = m.responseTimes[1:]
	}
	m.responseMutex.Unlock()
}

// RecordRequestByStatus records request count by HTTP status code
func (m *Metrics) RecordRequestByStatus(statusCode int) {
	m.statusMutex.Lock()
	defer m.statusMutex.Unlock()
	m.requestCountByStatus[statusCode]++
}

// GetPercentileResponseTime calculates percentile response time
func (m *Metrics) GetPercentileResponseTime(percentile float64) time.Duration {
	m.responseMutex.RLock()
	times := make([]time.Duration, len(m.responseTimes))
	copy(times, m.responseTimes)
	m.responseMutex.RUnlock()

	if len(times) == 0 {
		return 0
	}
	sort.Slice(times, func(i, j int) bool { return times[i] < times[j] })

	index := int(float64(len(times)-1) * percentile / 100.0)
	if index >= len(times) {
		index = len(times) - 1
	}
	return times[index]
}

// GetStatusCodeDistribution returns request count by status code
func (m *Metrics) GetStatusCodeDistribution() map[int]int64 {
	m.statusMutex.RLock()
	defer m.statusMutex.RUnlock()

	distribution := make(map[int]int64, len(m.requestCountByStatus))
	for code, count := range m.requestCountByStatus {
		distribution[code] = count
	}
	return distribution
}

// IncrementRateLimitIPBlock increments IP-based rate limit blocks
func (m *Metrics) IncrementRateLimitIPBlock() { atomic.AddInt64(&m.RateLimitIPBlocks, 1) }

// IncrementRateLimitRedisError increments Redis error count for rate limiting
func (m *Metrics) IncrementRateLimitRedisError() { atomic.AddInt64(&m.RateLimitRedisErrors, 1) }

// IncrementRateLimitFallback increments fallback rate limiter usage count
func (m *Metrics) IncrementRateLimitFallback() { atomic.AddInt64(&m.RateLimitFallbackCount, 1) }

// IncrementRateLimitEndpoint increments rate limit blocks for a specific endpoint
func (m *Metrics) IncrementRateLimitEndpoint(endpoint string) {
	m.rateLimitMutex.Lock()
	defer m.rateLimitMutex.Unlock()
	m.rateLimitEndpointBlocks[endpoint]++
}

// GetRateLimitStats returns rate limiting statistics
func (m *Metrics) GetRateLimitStats() map[string]interface{} {
	m.rateLimitMutex.RLock()
	endpointBlocks := make(map[string]int64, len(m.rateLimitEndpointBlocks))
	for k, v := range m.rateLimitEndpointBlocks {
		endpointBlocks[k] = v
	}
	m.rateLimitMutex.RUnlock()

	return map[string]interface{}{
		"ip_blocks":       atomic.LoadInt64(&m.RateLimitIPBlocks),
		"redis_errors":    atomic.LoadInt64(&m.RateLimitRedisErrors),
		"fallback_count":  atomic.LoadInt64(&m.RateLimitFallbackCount),
		"endpoint_blocks": endpointBlocks,
	}
}

// GetStats returns current metrics statistics
func (m *Metrics) GetStats() map[string]interface{} {
	requests := atomic.LoadInt64(&m.RequestCount)
	errors := atomic.LoadInt64(&m.ErrorCount)
	cacheHits := atomic.LoadInt64(&m.CacheHits)
	cacheMisses := atomic.LoadInt64(&m.CacheMisses)

	errorRate := float64(0)
	if requests > 0 {
		errorRate = float64(errors) / float64(requests) * 100
	}

	cacheHitRate := float64(0)
	if total := cacheHits + cacheMisses; total > 0 {
		cacheHitRate = float64(cacheHits) / float64(total) * 100
	}

	return map[string]interface{}{
		"uptime_seconds":         time.Since(m.StartTime).Seconds(),
		"start_time":             m.StartTime.Format(time.RFC3339),
		"total_requests":         requests,
		"error_count":            errors,
		"error_rate_percent":     errorRate,
		"cache_hits":             cacheHits,
		"cache_misses":           cacheMisses,
		"cache_hit_rate_percent": cacheHitRate,

		"simulations": map[string]int64{
			"heuristic":      atomic.LoadInt64(&m.HeuristicSimulations),
			"model":          atomic.LoadInt64(&m.ModelSimulations),
			"fallback":       atomic.LoadInt64(&m.FallbackSimulations),
			"model_failures": atomic.LoadInt64(&m.ModelFailures),
		},
		"streams": map[string]int64{
			"started":   atomic.LoadInt64(&m.StreamsStarted),
			"completed": atomic.LoadInt64(&m.StreamsCompleted),
			"failed":    atomic.LoadInt64(&m.StreamsFailed),
		},
		"background": map[string]int64{
			"history_writes":   atomic.LoadInt64(&m.HistoryWrites),
			"history_failures": atomic.LoadInt64(&m.HistoryFailures),
			"events_published": atomic.LoadInt64(&m.EventsPublished),
			"events_failed":    atomic.LoadInt64(&m.EventsFailed),
		},

		"p50_response_time_ms":     float64(m.GetPercentileResponseTime(50)) / 1e6,
		"p95_response_time_ms":     float64(m.GetPercentileResponseTime(95)) / 1e6,
		"p99_response_time_ms":     float64(m.GetPercentileResponseTime(99)) / 1e6,
		"status_code_distribution": m.GetStatusCodeDistribution(),
		"rate_limit":               m.GetRateLimitStats(),
	}
}
