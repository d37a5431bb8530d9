package cache

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ZanzyTHEbar/quakesim/internal/monitoring"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheExpiry(t *testing.T) {
	c := NewCache(time.Minute)
	defer c.Close()

	now := time.Unix(1000, 0)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v")))
	data, found, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("v"), data)

	now = now.Add(2 * time.Minute)
	_, found, _ = c.Get(ctx, "k")
	assert.False(t, found)
	assert.Equal(t, 1, c.Stats()["expired_items"])

	c.purgeExpired()
	assert.Equal(t, 0, c.Size())
}

func TestKeyDependsOnPathAndBody(t *testing.T) {
	a := Key("/simulate", []byte(`{"age":1}`))
	assert.Equal(t, a, Key("/simulate", []byte(`{"age":1}`)))
	assert.NotEqual(t, a, Key("/api/predict", []byte(`{"age":1}`)))
	assert.NotEqual(t, a, Key("/simulate", []byte(`{"age":2}`)))
	assert.Len(t, a, 32)
}

func TestMiddlewareReplaysSuccessfulResponses(t *testing.T) {
	gin.SetMode(gin.TestMode)

	store := NewCache(time.Minute)
	defer store.Close()
	metrics := monitoring.NewMetrics()

	calls := 0
	router := gin.New()
	router.POST("/simulate", Middleware(store, metrics), func(c *gin.Context) {
		calls++
		if strings.Contains(c.GetHeader("X-Fail"), "yes") {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bad"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"damage_grade": 1})
	})

	post := func(body string, fail bool) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/simulate", strings.NewReader(body))
		if fail {
			req.Header.Set("X-Fail", "yes")
		}
		router.ServeHTTP(w, req)
		return w
	}

	w := post(`{"age": 10}`, false)
	assert.Equal(t, "MISS", w.Header().Get("X-Cache"))
	w = post(`{"age": 10}`, false)
	assert.Equal(t, "HIT", w.Header().Get("X-Cache"))
	assert.JSONEq(t, `{"damage_grade": 1}`, w.Body.String())
	assert.Equal(t, 1, calls)

	post(`{"age": 11}`, true)
	w = post(`{"age": 11}`, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 3, calls)

	stats := metrics.GetStats()
	assert.Equal(t, int64(1), stats["cache_hits"])
	assert.Equal(t, int64(3), stats["cache_misses"])
}
