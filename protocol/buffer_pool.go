package protocol

import (
	"sync"
)

// Writers are pooled so that broadcast fan-out does not allocate a fresh
// buffer per recipient.

const maxPooledWriter = 64 * 1024 // don't pool oversized buffers

var writerPool = sync.Pool{
	New: func() interface{} {
		return NewWriter()
	},
}

// GetWriter retrieves a reset writer from the pool.
func GetWriter() *Writer {
	w := writerPool.Get().(*Writer)
	w.Reset()
	return w
}

// PutWriter returns a writer to the pool. Oversized buffers are dropped to
// keep the pool's memory bounded.
func PutWriter(w *Writer) {
	if w == nil || cap(w.buf) > maxPooledWriter {
		return
	}
	writerPool.Put(w)
}
