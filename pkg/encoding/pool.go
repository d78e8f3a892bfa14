package encoding

import (
	"bytes"
	"encoding/json"
	"sync"
)

// maxPooledBuffer keeps outlier payloads from pinning memory in the pool
const maxPooledBuffer = 64 * 1024

// BufferPool pools bytes.Buffer for JSON encoding of events and cache values
var BufferPool = sync.Pool{
	New: func() interface{} {
		return new(bytes.Buffer)
	},
}

// GetBuffer retrieves an empty bytes.Buffer from the pool
func GetBuffer() *bytes.Buffer {
	buf := BufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// PutBuffer returns a bytes.Buffer to the pool
func PutBuffer(buf *bytes.Buffer) {
	if buf.Cap() > maxPooledBuffer {
		return
	}
	buf.Reset()
	BufferPool.Put(buf)
}

// EncodeJSON encodes v to compact JSON using a pooled buffer. The result
// carries no trailing newline and does not alias the pool.
func EncodeJSON(v interface{}) ([]byte, error) {
	buf := GetBuffer()
	defer PutBuffer(buf)

	if err := json.NewEncoder(buf).Encode(v); err != nil {
		return nil, err
	}

	out := bytes.TrimSuffix(buf.Bytes(), []byte("\n"))
	result := make([]byte, len(out))
	copy(result, out)
	return result, nil
}
