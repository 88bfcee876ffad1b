package streaming

import (
	"io"
	"sync"
	"time"
)

// ProgressFunc receives the cumulative byte count and the time since the
// stream started. It is called at chunk boundaries and once at EOF.
type ProgressFunc func(transferred int64, elapsed time.Duration)

// Stream is a finite, non-restartable byte stream with a size hint.
// SizeHint returns -1 when the size is unknown.
type Stream interface {
	io.ReadCloser
	SizeHint() int64
}

// ChunkReader wraps a reader and reports progress every chunkSize bytes
type ChunkReader struct {
	rc         io.ReadCloser
	size       int64
	chunkSize  int64
	onProgress ProgressFunc
	start      time.Time

	read       int64
	reportedAt int64
	done       bool
	closeOnce  sync.Once
	closeErr   error
}

// NewStream wraps rc as a Stream. onProgress may be nil.
func NewStream(rc io.ReadCloser, size int64, chunkSize int, onProgress ProgressFunc) *ChunkReader {
	if chunkSize <= 0 {
		chunkSize = 1 << 20
	}
	return &ChunkReader{
		rc:         rc,
		size:       size,
		chunkSize:  int64(chunkSize),
		onProgress: onProgress,
		start:      time.Now(),
	}
}

func (c *ChunkReader) Read(p []byte) (int, error) {
	n, err := c.rc.Read(p)
	c.read += int64(n)

	if c.onProgress != nil {
		switch {
		case err == io.EOF && !c.done:
			c.done = true
			c.reportedAt = c.read
			c.onProgress(c.read, time.Since(c.start))
		case c.read-c.reportedAt >= c.chunkSize:
			c.reportedAt = c.read
			c.onProgress(c.read, time.Since(c.start))
		}
	}
	return n, err
}

func (c *ChunkReader) Close() error {
	c.closeOnce.Do(func() { c.closeErr = c.rc.Close() })
	return c.closeErr
}

func (c *ChunkReader) SizeHint() int64 {
	return c.size
}

// Transferred returns the bytes read so far
func (c *ChunkReader) Transferred() int64 {
	return c.read
}

// ProgressReader reports progress for a plain io.Reader; used on upload
// bodies where the sink client drives the reads.
type ProgressReader struct {
	*ChunkReader
}

// NewProgressReader wraps r without taking ownership of closing it
func NewProgressReader(r io.Reader, size int64, chunkSize int, onProgress ProgressFunc) *ProgressReader {
	return &ProgressReader{ChunkReader: NewStream(io.NopCloser(r), size, chunkSize, onProgress)}
}
