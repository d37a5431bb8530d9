// Package encoding marshals the JSON written on hot paths, such as stream
// frames and broker messages, through pooled buffers.
package encoding

import (
	"bytes"
	"encoding/json"
	"sync"
)

// Buffers grown past maxPooledBuffer are dropped instead of pooled.
const maxPooledBuffer = 64 << 10

// EncoderPool hands out reusable buffers for JSON encoding
type EncoderPool struct {
	pool sync.Pool
}

// NewEncoderPool creates a pool. Output is not HTML-escaped.
func NewEncoderPool() *EncoderPool {
	return &EncoderPool{
		pool: sync.Pool{
			New: func() interface{} { return new(bytes.Buffer) },
		},
	}
}

// Marshal encodes v as compact JSON without a trailing newline. The
// returned slice is owned by the caller.
func (ep *EncoderPool) Marshal(v interface{}) ([]byte, error) {
	buf := ep.pool.Get().(*bytes.Buffer)
	buf.Reset()
	defer ep.put(buf)

	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}

	data := bytes.TrimSuffix(buf.Bytes(), []byte{'\n'})
	return append([]byte(nil), data...), nil
}

func (ep *EncoderPool) put(buf *bytes.Buffer) {
	if buf.Cap() > maxPooledBuffer {
		return
	}
	ep.pool.Put(buf)
}

// Global encoder pool instance
var globalEncoderPool = NewEncoderPool()

// MarshalJSON marshals data using the global encoder pool
func MarshalJSON(v interface{}) ([]byte, error) {
	return globalEncoderPool.Marshal(v)
}
