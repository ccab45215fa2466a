package encoder

import (
	"io"
	"sync/atomic"
)

// CountingWriter counts the bytes passed to the wrapped sink.
type CountingWriter struct {
	w     io.WriteCloser
	count atomic.Int64
}

func NewCountingWriter(w io.WriteCloser) *CountingWriter {
	return &CountingWriter{w: w}
}

func (c *CountingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.count.Add(int64(n))
	return n, err
}

func (c *CountingWriter) Close() error {
	return c.w.Close()
}

func (c *CountingWriter) Count() int64 {
	return c.count.Load()
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }

// NopCloser turns a writer the caller keeps owning, such as an http response, into a sink.
func NopCloser(w io.Writer) io.WriteCloser {
	return nopCloser{w}
}
