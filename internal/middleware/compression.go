// Package middleware holds response transforms shared by all routes.
package middleware

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
)

// CompressionConfig holds configuration for response compression
type CompressionConfig struct {
	MinSize          int      `yaml:"min_size"`          // smaller responses are sent as is
	CompressionLevel int      `yaml:"compression_level"` // gzip level, 1-9
	ContentTypes     []string `yaml:"content_types"`
	// SkipPath exempts routes that must not be buffered, such as event streams
	SkipPath func(path string) bool `yaml:"-"`
}

// DefaultCompressionConfig returns the default compression configuration
func DefaultCompressionConfig() CompressionConfig {
	return CompressionConfig{
		MinSize:          1024,
		CompressionLevel: gzip.DefaultCompression,
		ContentTypes: []string{
			"application/json",
			"text/plain",
		},
	}
}

// CompressionMiddleware gzips responses for clients that accept it
type CompressionMiddleware struct {
	config CompressionConfig
	stats  *CompressionStats
	pool   sync.Pool
}

// NewCompressionMiddleware creates a new compression middleware
func NewCompressionMiddleware(config CompressionConfig) *CompressionMiddleware {
	defaults := DefaultCompressionConfig()
	if config.MinSize <= 0 {
		config.MinSize = defaults.MinSize
	}
	if config.CompressionLevel < gzip.HuffmanOnly || config.CompressionLevel > gzip.BestCompression {
		config.CompressionLevel = defaults.CompressionLevel
	}
	if len(config.ContentTypes) == 0 {
		config.ContentTypes = defaults.ContentTypes
	}

	cm := &CompressionMiddleware{
		config: config,
		stats:  &CompressionStats{},
	}
	cm.pool.New = func() interface{} {
		gz, _ := gzip.NewWriterLevel(nil, config.CompressionLevel)
		return gz
	}
	return cm
}

// Handler returns the gin middleware
func (cm *CompressionMiddleware) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !clientAcceptsGzip(c.Request) || c.Request.Method == http.MethodHead ||
			(cm.config.SkipPath != nil && cm.config.SkipPath(c.Request.URL.Path)) {
			c.Next()
			return
		}

		w := &gzipResponseWriter{ResponseWriter: c.Writer, cm: cm}
		c.Writer = w
		defer w.finish()

		c.Next()
	}
}

func clientAcceptsGzip(r *http.Request) bool {
	for _, enc := range strings.Split(r.Header.Get("Accept-Encoding"), ",") {
		name, params, _ := strings.Cut(strings.TrimSpace(enc), ";")
		if strings.EqualFold(strings.TrimSpace(name), "gzip") && strings.ReplaceAll(params, " ", "") != "q=0" {
			return true
		}
	}
	return false
}

func (cm *CompressionMiddleware) shouldCompress(contentType string) bool {
	for _, ct := range cm.config.ContentTypes {
		if strings.Contains(contentType, ct) {
			return true
		}
	}
	return false
}

// gzipResponseWriter buffers the first MinSize bytes to decide whether the
// response is worth compressing.
type gzipResponseWriter struct {
	gin.ResponseWriter
	cm      *CompressionMiddleware
	buf     bytes.Buffer
	gz      *gzip.Writer
	counter countingWriter
	decided bool
	size    int64
}

func (w *gzipResponseWriter) Write(data []byte) (int, error) {
	w.size += int64(len(data))
	if w.gz != nil {
		return w.gz.Write(data)
	}
	if w.decided {
		return w.ResponseWriter.Write(data)
	}

	w.buf.Write(data)
	if w.buf.Len() >= w.cm.config.MinSize {
		if err := w.decide(); err != nil {
			return 0, err
		}
	}
	return len(data), nil
}

func (w *gzipResponseWriter) WriteString(s string) (int, error) {
	return w.Write([]byte(s))
}

// decide starts compression when the buffered body qualifies, then drains
// the buffer.
func (w *gzipResponseWriter) decide() error {
	w.decided = true
	header := w.Header()
	if header.Get("Content-Encoding") != "" || !w.cm.shouldCompress(header.Get("Content-Type")) {
		return w.drain(w.ResponseWriter)
	}

	header.Set("Content-Encoding", "gzip")
	header.Add("Vary", "Accept-Encoding")
	header.Del("Content-Length")

	w.counter = countingWriter{w: w.ResponseWriter}
	w.gz = w.cm.pool.Get().(*gzip.Writer)
	w.gz.Reset(&w.counter)
	return w.drain(w.gz)
}

func (w *gzipResponseWriter) drain(dst io.Writer) error {
	if w.buf.Len() == 0 {
		return nil
	}
	_, err := dst.Write(w.buf.Bytes())
	w.buf.Reset()
	return err
}

// Flush sends what is buffered so far, compressed or not.
func (w *gzipResponseWriter) Flush() {
	if !w.decided {
		_ = w.decide()
	}
	if w.gz != nil {
		_ = w.gz.Flush()
	}
	w.ResponseWriter.Flush()
}

func (w *gzipResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := w.ResponseWriter.(http.Hijacker); ok {
		return hijacker.Hijack()
	}
	return nil, nil, errors.New("response writer does not implement http.Hijacker")
}

// finish writes a short body uncompressed or closes the gzip stream.
func (w *gzipResponseWriter) finish() {
	if !w.decided {
		w.decided = true
		_ = w.drain(w.ResponseWriter)
		w.cm.stats.RecordRequest(w.size, w.size, false)
		return
	}
	if w.gz == nil {
		w.cm.stats.RecordRequest(w.size, w.size, false)
		return
	}

	_ = w.gz.Close()
	w.gz.Reset(nil)
	w.cm.pool.Put(w.gz)
	w.gz = nil
	w.cm.stats.RecordRequest(w.size, w.counter.n, true)
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// CompressionStats tracks compression statistics
type CompressionStats struct {
	TotalRequests      int64
	CompressedRequests int64
	TotalBytes         int64
	CompressedBytes    int64
}

// RecordRequest records a request's compression stats
func (cs *CompressionStats) RecordRequest(originalSize, writtenSize int64, compressed bool) {
	atomic.AddInt64(&cs.TotalRequests, 1)
	atomic.AddInt64(&cs.TotalBytes, originalSize)
	if compressed {
		atomic.AddInt64(&cs.CompressedRequests, 1)
		atomic.AddInt64(&cs.CompressedBytes, writtenSize)
	}
}

// GetStats returns current compression statistics
func (cs *CompressionStats) GetStats() map[string]interface{} {
	total := atomic.LoadInt64(&cs.TotalBytes)
	compressed := atomic.LoadInt64(&cs.CompressedBytes)

	ratio := float64(0)
	if total > 0 {
		ratio = float64(compressed) / float64(total)
	}

	return map[string]interface{}{
		"total_requests":      atomic.LoadInt64(&cs.TotalRequests),
		"compressed_requests": atomic.LoadInt64(&cs.CompressedRequests),
		"total_bytes":         total,
		"compressed_bytes":    compressed,
		"compression_ratio":   ratio,
	}
}

// GetStats returns compression statistics
func (cm *CompressionMiddleware) GetStats() map[string]interface{} {
	return cm.stats.GetStats()
}
