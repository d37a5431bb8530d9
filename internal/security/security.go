package security

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "github.com/ZanzyTHEbar/quakesim/internal/errors"
)

// SecurityConfig holds security configuration
type SecurityConfig struct {
	MaxBodyBytes   int64         `yaml:"max_body_bytes"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	TrustedProxies []string      `yaml:"trusted_proxies"`
	EnableHSTS     bool          `yaml:"enable_hsts"`
}

// DefaultSecurityConfig returns secure defaults
func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		MaxBodyBytes:   64 << 10,
		RequestTimeout: 30 * time.Second,
		AllowedOrigins: []string{"http://localhost:3000"},
		TrustedProxies: []string{"127.0.0.1", "::1", "10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"},
	}
}

// SecurityMiddleware bundles the request hardening handlers
type SecurityMiddleware struct {
	config SecurityConfig
}

// NewSecurityMiddleware creates a new security middleware instance
func NewSecurityMiddleware(config SecurityConfig) *SecurityMiddleware {
	defaults := DefaultSecurityConfig()
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = defaults.MaxBodyBytes
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = defaults.RequestTimeout
	}
	if len(config.AllowedOrigins) == 0 {
		config.AllowedOrigins = defaults.AllowedOrigins
	}
	return &SecurityMiddleware{config: config}
}

// Config returns the effective configuration
func (sm *SecurityMiddleware) Config() SecurityConfig { return sm.config }

// SecurityHeaders adds security headers to responses
func (sm *SecurityMiddleware) SecurityHeaders(c *gin.Context) {
	setSecurityHeaders(c, sm.config.EnableHSTS)
	c.Next()
}

// ValidateContentType rejects request bodies that are not JSON
func (sm *SecurityMiddleware) ValidateContentType(c *gin.Context) {
	if !hasBody(c.Request) {
		c.Next()
		return
	}

	contentType := c.GetHeader("Content-Type")
	if contentType != "" {
		mediaType, _, err := mime.ParseMediaType(contentType)
		if err != nil || mediaType != "application/json" {
			c.AbortWithStatusJSON(http.StatusUnsupportedMediaType, gin.H{
				"error":    "unsupported content type",
				"category": string(apperrors.CategoryValidation),
			})
			return
		}
	}

	c.Next()
}

// LimitBody caps the request body and rejects oversized payloads with 413
// before any handler reads them.
func (sm *SecurityMiddleware) LimitBody(c *gin.Context) {
	if !hasBody(c.Request) || c.Request.Body == nil {
		c.Next()
		return
	}

	limit := sm.config.MaxBodyBytes
	if c.Request.ContentLength > limit {
		abortTooLarge(c, limit)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, limit))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			abortTooLarge(c, limit)
			return
		}
		apperrors.Respond(c, apperrors.NewValidationError("failed to read request body", err.Error()))
		c.Abort()
		return
	}
	c.Request.Body = io.NopCloser(bytes.NewReader(body))

	c.Next()
}

// ValidateJSONBody requires the body of simulation routes to be one JSON
// object. Field-level checks happen in the inference layer.
func (sm *SecurityMiddleware) ValidateJSONBody(c *gin.Context) {
	if c.Request.Body == nil {
		c.Request.Body = http.NoBody
	}
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		apperrors.Respond(c, apperrors.NewValidationError("failed to read request body", err.Error()))
		c.Abort()
		return
	}
	c.Request.Body = io.NopCloser(bytes.NewReader(body))

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' || !json.Valid(trimmed) {
		apperrors.Respond(c, apperrors.NewValidationError("request body must be a JSON object"))
		c.Abort()
		return
	}

	c.Next()
}

// RequestTimeout attaches a deadline to the request context. Streaming
// routes are left alone and end when the client disconnects.
func (sm *SecurityMiddleware) RequestTimeout(c *gin.Context) {
	if IsStreamPath(c.Request.URL.Path) {
		c.Next()
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), sm.config.RequestTimeout)
	defer cancel()

	c.Request = c.Request.WithContext(ctx)
	c.Header("X-Timeout", strconv.Itoa(int(sm.config.RequestTimeout.Seconds())))

	c.Next()
}

// IsStreamPath reports whether path serves a progress stream
func IsStreamPath(path string) bool {
	return strings.HasSuffix(strings.TrimRight(path, "/"), "/stream")
}

func hasBody(r *http.Request) bool {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	}
	return false
}

func abortTooLarge(c *gin.Context, limit int64) {
	c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
		"error":    "request body exceeds " + strconv.FormatInt(limit, 10) + " bytes",
		"category": string(apperrors.CategoryValidation),
	})
}
