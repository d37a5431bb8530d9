package security

import (
	"bytes"
	"crypto/tls"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecurityConfig(t *testing.T) {
	config := DefaultSecurityConfig()

	assert.Equal(t, int64(64<<10), config.MaxBodyBytes)
	assert.Equal(t, 30*time.Second, config.RequestTimeout)
	assert.Equal(t, []string{"http://localhost:3000"}, config.AllowedOrigins)

	sm := NewSecurityMiddleware(SecurityConfig{})
	assert.Equal(t, config.MaxBodyBytes, sm.Config().MaxBodyBytes)
	assert.Equal(t, config.RequestTimeout, sm.Config().RequestTimeout)
}

func TestSecurityHeaders(t *testing.T) {
	gin.SetMode(gin.TestMode)
	sm := NewSecurityMiddleware(DefaultSecurityConfig())

	r := gin.New()
	r.Use(sm.SecurityHeaders)
	r.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "test"})
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/test", nil)
	r.ServeHTTP(w, req)

	headers := w.Header()
	assert.Equal(t, "nosniff", headers.Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", headers.Get("X-Frame-Options"))
	assert.Equal(t, "1; mode=block", headers.Get("X-XSS-Protection"))
	assert.Equal(t, "strict-origin-when-cross-origin", headers.Get("Referrer-Policy"))
	assert.Contains(t, headers.Get("Content-Security-Policy"), "default-src 'none'")
	assert.Empty(t, headers.Get("Strict-Transport-Security"))

	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/test", nil)
	req.TLS = &tls.ConnectionState{}
	r.ServeHTTP(w, req)
	assert.Contains(t, w.Header().Get("Strict-Transport-Security"), "max-age=31536000")
}

func TestValidateContentType(t *testing.T) {
	gin.SetMode(gin.TestMode)
	sm := NewSecurityMiddleware(DefaultSecurityConfig())

	r := gin.New()
	r.Use(sm.ValidateContentType)
	r.POST("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "success"})
	})

	tests := []struct {
		name           string
		contentType    string
		expectedStatus int
	}{
		{
			name:           "valid JSON",
			contentType:    "application/json",
			expectedStatus: http.StatusOK,
		},
		{
			name:           "JSON with charset",
			contentType:    "application/json; charset=utf-8",
			expectedStatus: http.StatusOK,
		},
		{
			name:           "form data",
			contentType:    "application/x-www-form-urlencoded",
			expectedStatus: http.StatusUnsupportedMediaType,
		},
		{
			name:           "invalid content type",
			contentType:    "text/plain",
			expectedStatus: http.StatusUnsupportedMediaType,
		},
		{
			name:           "no content type",
			contentType:    "",
			expectedStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req, _ := http.NewRequest("POST", "/test", bytes.NewBufferString(`{"test": "data"}`))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}

			r.ServeHTTP(w, req)
			assert.Equal(t, tt.expectedStatus, w.Code)
		})
	}
}

func TestLimitBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	sm := NewSecurityMiddleware(SecurityConfig{MaxBodyBytes: 32})

	r := gin.New()
	r.Use(sm.LimitBody)
	r.POST("/test", func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		require.NoError(t, err)
		c.String(http.StatusOK, string(body))
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/test", strings.NewReader(`{"age":10}`))
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `{"age":10}`, w.Body.String())

	w = httptest.NewRecorder()
	req, _ = http.NewRequest("POST", "/test", strings.NewReader(strings.Repeat("x", 64)))
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	// chunked bodies have no declared length
	w = httptest.NewRecorder()
	req, _ = http.NewRequest("POST", "/test", io.NopCloser(strings.NewReader(strings.Repeat("x", 64))))
	req.ContentLength = -1
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestValidateJSONBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	sm := NewSecurityMiddleware(DefaultSecurityConfig())

	r := gin.New()
	r.POST("/simulate", sm.ValidateJSONBody, func(c *gin.Context) {
		body, _ := io.ReadAll(c.Request.Body)
		c.String(http.StatusOK, string(body))
	})

	tests := []struct {
		name           string
		body           string
		expectedStatus int
	}{
		{"object", `{"num_floors": 2}`, http.StatusOK},
		{"empty", ``, http.StatusBadRequest},
		{"array", `[1, 2]`, http.StatusBadRequest},
		{"malformed", `{"num_floors": `, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req, _ := http.NewRequest("POST", "/simulate", strings.NewReader(tt.body))
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedStatus == http.StatusOK {
				assert.Equal(t, tt.body, w.Body.String())
			} else {
				assert.Contains(t, w.Body.String(), `"category":"validation"`)
			}
		})
	}
}

func TestRequestTimeout(t *testing.T) {
	gin.SetMode(gin.TestMode)

	config := DefaultSecurityConfig()
	config.RequestTimeout = time.Millisecond
	sm := NewSecurityMiddleware(config)

	r := gin.New()
	r.Use(sm.RequestTimeout)
	handler := func(c *gin.Context) {
		_, hasDeadline := c.Request.Context().Deadline()
		c.JSON(http.StatusOK, gin.H{"deadline": hasDeadline})
	}
	r.POST("/simulate", handler)
	r.POST("/simulate/stream", handler)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/simulate", nil)
	r.ServeHTTP(w, req)
	assert.JSONEq(t, `{"deadline": true}`, w.Body.String())
	assert.Equal(t, "0", w.Header().Get("X-Timeout"))

	w = httptest.NewRecorder()
	req, _ = http.NewRequest("POST", "/simulate/stream", nil)
	r.ServeHTTP(w, req)
	assert.JSONEq(t, `{"deadline": false}`, w.Body.String())
	assert.Empty(t, w.Header().Get("X-Timeout"))
}

func TestIsStreamPath(t *testing.T) {
	assert.True(t, IsStreamPath("/simulate/stream"))
	assert.True(t, IsStreamPath("/api/predict/stream/"))
	assert.False(t, IsStreamPath("/simulate"))
	assert.False(t, IsStreamPath("/streams"))
}

func TestSecurityMiddlewareIntegration(t *testing.T) {
	gin.SetMode(gin.TestMode)
	sm := NewSecurityMiddleware(DefaultSecurityConfig())

	r := gin.New()
	r.Use(sm.SecurityHeaders)
	r.Use(sm.RequestTimeout)
	r.Use(sm.ValidateContentType)
	r.Use(sm.LimitBody)
	r.POST("/simulate", sm.ValidateJSONBody, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "processed"})
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/simulate", strings.NewReader(`{"num_floors": 2}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status": "processed"}`, w.Body.String())
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
}
