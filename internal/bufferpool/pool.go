// Package bufferpool recycles the byte buffers command formatting builds
// for each request, avoiding an allocation per command on the hot path.
// Adapted from the teacher's internal byteBufferPool (formerly
// internal/buffer_pool.go), exported here so the command formatters of the
// root package can share one pool instance.
package bufferpool

import (
	"bytes"
	"sync"
)

const initialCapacity = 256

var pool = sync.Pool{
	New: func() any {
		return bytes.NewBuffer(make([]byte, 0, initialCapacity))
	},
}

// Get returns a reset, ready-to-use buffer.
func Get() *bytes.Buffer {
	return pool.Get().(*bytes.Buffer)
}

// Put returns buf to the pool after clearing it.
func Put(buf *bytes.Buffer) {
	buf.Reset()
	pool.Put(buf)
}
