package timeshift

import (
	"context"
	"io"

	"github.com/sanshiro-tv/tunerd/internal/apperr"
)

const readerChunkSize = 32 * 1024

// RingReader streams bytes from a Ring starting at a fixed position,
// either following the writer indefinitely (limit < 0, for
// open_live_reader) or stopping at a fixed end position (open_record_reader
// over [start, limit)). It never blocks the writer: its delivery channel is
// bounded and a slow consumer is dropped from, not waited on, exactly like
// internal/broadcaster.Subscriber.
type RingReader struct {
	ring  *Ring
	pos   int64
	limit int64 // -1 means unbounded (live)

	ch       chan []byte
	lagCount uint64
	cancel   context.CancelFunc
	done     chan struct{}
	err      error
}

// newRingReader starts the background pump goroutine and returns a reader
// whose Chunks channel delivers data as it becomes available.
func newRingReader(ring *Ring, start, limit int64, capacity int) *RingReader {
	ctx, cancel := context.WithCancel(context.Background())
	r := &RingReader{
		ring:   ring,
		pos:    start,
		limit:  limit,
		ch:     make(chan []byte, capacity),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go r.pump(ctx)
	return r
}

func (r *RingReader) pump(ctx context.Context) {
	defer close(r.done)
	defer close(r.ch)

	for {
		if r.limit >= 0 && r.pos >= r.limit {
			return
		}

		avail, err := r.ring.waitUntil(ctx, r.pos)
		if err != nil && err != io.EOF {
			r.err = err
			return
		}

		end := avail
		if r.limit >= 0 && end > r.limit {
			end = r.limit
		}
		for end > r.pos {
			chunkEnd := end
			if chunkEnd-r.pos > readerChunkSize {
				chunkEnd = r.pos + readerChunkSize
			}
			buf := make([]byte, chunkEnd-r.pos)
			if rerr := r.ring.ReadRange(r.pos, chunkEnd, buf); rerr != nil {
				r.err = rerr
				return
			}
			select {
			case r.ch <- buf:
			default:
				r.lagCount++
			}
			r.pos = chunkEnd
		}

		if err == io.EOF {
			return
		}
	}
}

// Chunks returns the delivery channel, closed when the reader stops
// (limit reached, the ring shut down, or an error occurred — check Err).
func (r *RingReader) Chunks() <-chan []byte {
	return r.ch
}

// Err returns apperr.ErrOutOfRange if the requested window was overwritten
// before it could be read, or any other I/O error encountered, or nil.
func (r *RingReader) Err() error {
	<-r.done
	if r.err == apperr.ErrOutOfRange {
		return apperr.ErrOutOfRange
	}
	return r.err
}

// Close stops the pump goroutine.
func (r *RingReader) Close() error {
	r.cancel()
	<-r.done
	return nil
}
