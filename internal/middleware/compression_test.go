package middleware

import (
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(cm *CompressionMiddleware) *gin.Engine {
	r := gin.New()
	r.Use(cm.Handler())
	r.GET("/large", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"data": strings.Repeat("damage ", 500)})
	})
	r.GET("/small", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	r.GET("/binary", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/octet-stream", []byte(strings.Repeat("x", 4096)))
	})
	r.GET("/empty", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	r.GET("/simulate/stream", func(c *gin.Context) {
		c.Header("Content-Type", "text/event-stream")
		c.String(http.StatusOK, strings.Repeat("data: {}\n\n", 500))
	})
	return r
}

func get(r http.Handler, path, acceptEncoding string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if acceptEncoding != "" {
		req.Header.Set("Accept-Encoding", acceptEncoding)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCompression(t *testing.T) {
	cfg := DefaultCompressionConfig()
	cfg.SkipPath = func(path string) bool { return strings.HasSuffix(path, "/stream") }
	r := newRouter(NewCompressionMiddleware(cfg))

	tests := []struct {
		name           string
		path           string
		acceptEncoding string
		compressed     bool
		status         int
	}{
		{"large json", "/large", "gzip, deflate", true, http.StatusOK},
		{"client without gzip", "/large", "", false, http.StatusOK},
		{"gzip refused", "/large", "gzip;q=0", false, http.StatusOK},
		{"below min size", "/small", "gzip", false, http.StatusOK},
		{"other content type", "/binary", "gzip", false, http.StatusOK},
		{"no body", "/empty", "gzip", false, http.StatusNoContent},
		{"skipped path", "/simulate/stream", "gzip", false, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := get(r, tt.path, tt.acceptEncoding)
			assert.Equal(t, tt.status, w.Code)
			if tt.compressed {
				assert.Equal(t, "gzip", w.Header().Get("Content-Encoding"))
				assert.Contains(t, w.Header().Values("Vary"), "Accept-Encoding")
			} else {
				assert.Empty(t, w.Header().Get("Content-Encoding"))
			}
		})
	}
}

func TestCompressedBodyRoundTrips(t *testing.T) {
	cm := NewCompressionMiddleware(DefaultCompressionConfig())
	r := newRouter(cm)

	plain := get(r, "/large", "")
	w := get(r, "/large", "gzip")
	require.Equal(t, "gzip", w.Header().Get("Content-Encoding"))
	assert.Less(t, w.Body.Len(), plain.Body.Len())

	zr, err := gzip.NewReader(w.Body)
	require.NoError(t, err)
	body, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Equal(t, plain.Body.String(), string(body))

	stats := cm.GetStats()
	assert.Equal(t, int64(1), stats["compressed_requests"])
	assert.Greater(t, stats["compressed_bytes"].(int64), int64(0))
}

func TestSmallBodyIsWrittenUnchanged(t *testing.T) {
	r := newRouter(NewCompressionMiddleware(DefaultCompressionConfig()))

	w := get(r, "/small", "gzip")
	assert.JSONEq(t, `{"ok":true}`, w.Body.String())
}

func TestCompressionConfigDefaults(t *testing.T) {
	cm := NewCompressionMiddleware(CompressionConfig{CompressionLevel: 42})
	assert.Equal(t, 1024, cm.config.MinSize)
	assert.Equal(t, gzip.DefaultCompression, cm.config.CompressionLevel)
	assert.NotEmpty(t, cm.config.ContentTypes)
}
