package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/ZanzyTHEbar/quakesim/internal/monitoring"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFallbackLimiter(t *testing.T, config Config) (*RateLimiter, *monitoring.Metrics) {
	t.Helper()
	metrics := monitoring.NewMetrics()
	limiter := NewRateLimiter(&RedisClient{enabled: false}, config, metrics)
	t.Cleanup(limiter.Close)
	return limiter, metrics
}

func TestRateLimiterFallbackMode(t *testing.T) {
	limiter, metrics := newFallbackLimiter(t, DefaultConfig())
	ctx := context.Background()
	rateLimit := Rate{Limit: 5, Period: time.Minute}

	for i := 0; i < 5; i++ {
		result, err := limiter.Allow(ctx, "test:ip:1", rateLimit)
		require.NoError(t, err)
		assert.True(t, result.Allowed, "Request %d should be allowed", i+1)
		assert.Equal(t, 5, result.Limit)
		assert.Equal(t, 4-i, result.Remaining)
	}

	result, err := limiter.Allow(ctx, "test:ip:1", rateLimit)
	require.NoError(t, err)
	assert.False(t, result.Allowed, "6th request should be blocked")
	assert.Greater(t, result.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, result.RetryAfter, 12*time.Second)
	assert.Equal(t, int64(6), metrics.GetRateLimitStats()["fallback_count"])
}

func TestRateLimiterBurstMultiplier(t *testing.T) {
	config := DefaultConfig()
	config.BurstMultiplier = 2
	limiter, _ := newFallbackLimiter(t, config)

	allowed := 0
	for i := 0; i < 15; i++ {
		result, err := limiter.Allow(context.Background(), "test:burst", Rate{Limit: 5, Period: time.Hour})
		require.NoError(t, err)
		if result.Allowed {
			allowed++
		}
	}
	assert.Equal(t, 10, allowed)
}

func TestRateLimiterMultipleKeys(t *testing.T) {
	limiter, _ := newFallbackLimiter(t, DefaultConfig())
	ctx := context.Background()
	rateLimit := Rate{Limit: 3, Period: time.Minute}

	for _, key := range []string{"ip:1", "ip:2", "ip:3"} {
		for i := 0; i < 3; i++ {
			result, err := limiter.Allow(ctx, key, rateLimit)
			require.NoError(t, err)
			assert.True(t, result.Allowed, "Key %s request %d should be allowed", key, i+1)
		}

		result, err := limiter.Allow(ctx, key, rateLimit)
		require.NoError(t, err)
		assert.False(t, result.Allowed, "Key %s 4th request should be blocked", key)
	}
}

func TestRateLimiterRejectsInvalidRate(t *testing.T) {
	limiter, _ := newFallbackLimiter(t, DefaultConfig())

	_, err := limiter.Allow(context.Background(), "k", Rate{Limit: 0, Period: time.Minute})
	assert.Error(t, err)
	_, err = limiter.Allow(context.Background(), "k", Rate{Limit: 1})
	assert.Error(t, err)
}

func TestRateLimiterEvictsIdle(t *testing.T) {
	config := DefaultConfig()
	config.IdleTimeout = time.Minute
	limiter, _ := newFallbackLimiter(t, config)

	for i := 0; i < 10; i++ {
		_, err := limiter.Allow(context.Background(), "test:idle:"+strconv.Itoa(i), PerMinute(5))
		require.NoError(t, err)
	}
	assert.Equal(t, 10, limiter.GetStats()["fallback_limiters"])

	assert.Equal(t, 0, limiter.evictIdle(time.Now()))
	assert.Equal(t, 10, limiter.evictIdle(time.Now().Add(2*time.Minute)))
	assert.Equal(t, 0, limiter.GetStats()["fallback_limiters"])
}

func TestRateLimiterStats(t *testing.T) {
	limiter, _ := newFallbackLimiter(t, DefaultConfig())

	stats := limiter.GetStats()
	assert.False(t, stats["redis_enabled"].(bool))
	assert.Equal(t, 0, stats["fallback_limiters"])
}

func TestRateLimiterConcurrency(t *testing.T) {
	limiter, _ := newFallbackLimiter(t, DefaultConfig())
	rateLimit := Rate{Limit: 100, Period: time.Hour}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				result, err := limiter.Allow(context.Background(), "test:concurrent", rateLimit)
				if err != nil || !result.Allowed {
					continue
				}
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, allowed)
}

func TestRedisClientDisabled(t *testing.T) {
	client, err := NewRedisClient(context.Background(), RedisConfig{})
	require.NoError(t, err)
	assert.False(t, client.IsEnabled())
	assert.Error(t, client.HealthCheck(context.Background()))
	assert.NoError(t, client.Close())
	assert.Equal(t, false, client.GetPoolStats()["enabled"])

	var nilClient *RedisClient
	assert.False(t, nilClient.IsEnabled())
	assert.Nil(t, nilClient.GetClient())
}

func TestRedisOptionsFromURL(t *testing.T) {
	opts, err := redisOptions(RedisConfig{Addr: "redis://:secret@cache:6380/2"})
	require.NoError(t, err)
	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, "secret", opts.Password)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, 10, opts.PoolSize)

	opts, err = redisOptions(RedisConfig{Addr: "localhost:6379", DB: 1})
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", opts.Addr)
	assert.Equal(t, 1, opts.DB)

	_, err = redisOptions(RedisConfig{Addr: "http://nope"})
	assert.Error(t, err)
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	config := DefaultConfig()
	config.IPLimitPerMin = 10
	config.SimulateLimitPerMin = 2
	limiter, metrics := newFallbackLimiter(t, config)

	router := gin.New()
	router.Use(limiter.IPRateLimitMiddleware())
	router.POST("/simulate", limiter.SimulateRateLimit(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	router.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	do := func(method, path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(method, path, nil)
		req.RemoteAddr = "10.0.0.1:1234"
		router.ServeHTTP(w, req)
		return w
	}

	for i := 0; i < 2; i++ {
		w := do(http.MethodPost, "/simulate")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "10", w.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, "2", w.Header().Get("X-RateLimit-Endpoint-Limit"))
	}

	w := do(http.MethodPost, "/simulate")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error": "Rate limit exceeded", "category": "rate_limit"}`, w.Body.String())
	assert.Equal(t, int64(1), metrics.GetRateLimitStats()["endpoint_blocks"].(map[string]int64)["simulate"])

	// other routes only see the global limit
	w = do(http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "6", w.Header().Get("X-RateLimit-Remaining"))
}
