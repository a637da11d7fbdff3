package transfer

import (
	"fmt"
	"sync"
)

// MaxBufferSize bounds the chunk buffer a write task may request.
const MaxBufferSize = 16 << 20

var bufferPool = sync.Pool{
	New: func() any {
		b := make([]byte, 0, DefaultMaxChunkSize)
		return &b
	},
}

// chunkBuffer is a pooled transfer buffer owned by one write task.
type chunkBuffer struct {
	buf *[]byte
}

// acquireBuffer returns a buffer with room for size bytes.
func acquireBuffer(size int) (chunkBuffer, error) {
	if size < 0 || size > MaxBufferSize {
		return chunkBuffer{}, fmt.Errorf("buffer size %d outside [0, %d]", size, MaxBufferSize)
	}
	b := bufferPool.Get().(*[]byte)
	if cap(*b) < size {
		*b = make([]byte, size)
	}
	*b = (*b)[:size]
	return chunkBuffer{buf: b}, nil
}

// bytes returns the first n bytes of the buffer.
func (c chunkBuffer) bytes(n int) []byte {
	return (*c.buf)[:n]
}

// release returns the buffer to the pool. It is safe on a zero chunkBuffer.
func (c chunkBuffer) release() {
	if c.buf == nil {
		return
	}
	*c.buf = (*c.buf)[:0]
	bufferPool.Put(c.buf)
}
