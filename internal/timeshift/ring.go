// Package timeshift implements the Timeshift Recorder and Timeshift
// Manager: continuous per-service capture into a fixed-size ring file
// plus a JSON sidecar describing program-boundary records.
package timeshift

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/sanshiro-tv/tunerd/internal/apperr"
	"github.com/sanshiro-tv/tunerd/internal/models"
)

// Ring is a fixed-size raw-TS byte arena addressed by an ever-increasing
// position counter; the on-disk offset is Pos modulo Size. Size is
// immutable once the ring is opened. Readers never block the writer:
// they wait on cond and re-read whatever has newly landed, the same
// never-block-the-producer contract as internal/broadcaster.
type Ring struct {
	mu      sync.Mutex
	cond    *sync.Cond
	file    *os.File
	size    int64
	current models.CurrentPoint
	closed  bool
}

// OpenRing opens (creating if necessary) the ring file at path, truncated
// or extended to exactly size bytes, starting at the given current point.
func OpenRing(path string, size int64, start models.CurrentPoint) (*Ring, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("timeshift: opening ring file: %w", err)
	}
	if info, err := f.Stat(); err == nil && info.Size() != size {
		if err := f.Truncate(size); err != nil {
			f.Close()
			return nil, fmt.Errorf("timeshift: sizing ring file: %w", err)
		}
	}
	r := &Ring{file: f, size: size, current: start}
	r.cond = sync.NewCond(&r.mu)
	return r, nil
}

// Size returns the ring's immutable byte capacity.
func (r *Ring) Size() int64 {
	return r.size
}

// Current returns the writer's live position.
func (r *Ring) Current() models.CurrentPoint {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Write appends chunk at the current position, wrapping at Size, and
// advances the current point. It returns the position the chunk was
// written to (the point *before* the advance), which callers use as a new
// record's start_pos.
func (r *Ring) Write(chunk []byte, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	writtenAt := r.current.Pos
	if err := r.writeAtLocked(writtenAt, chunk); err != nil {
		return 0, err
	}
	r.current = models.CurrentPoint{Pos: writtenAt + int64(len(chunk)), Timestamp: now}
	r.cond.Broadcast()
	return writtenAt, nil
}

func (r *Ring) writeAtLocked(pos int64, chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}
	if int64(len(chunk)) > r.size {
		return fmt.Errorf("timeshift: chunk of %d bytes exceeds ring size %d", len(chunk), r.size)
	}

	offset := pos % r.size
	tail := r.size - offset
	if int64(len(chunk)) <= tail {
		_, err := r.file.WriteAt(chunk, offset)
		return err
	}

	if _, err := r.file.WriteAt(chunk[:tail], offset); err != nil {
		return err
	}
	_, err := r.file.WriteAt(chunk[tail:], 0)
	return err
}

// ReadRange reads the byte range [start, end) (absolute, monotonic
// positions, not yet reduced modulo Size) into p, which must be exactly
// end-start bytes long. It fails with apperr.ErrOutOfRange if any part of
// the requested range has already been overwritten by the writer, i.e. if
// start is behind the writer's current retention window.
func (r *Ring) ReadRange(start, end int64, p []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if end <= start {
		return nil
	}
	if int64(len(p)) != end-start {
		return fmt.Errorf("timeshift: buffer length %d does not match range length %d", len(p), end-start)
	}
	if end > r.current.Pos {
		return apperr.ErrOutOfRange
	}
	oldestRetained := r.current.Pos - r.size
	if oldestRetained > 0 && start < oldestRetained {
		return apperr.ErrOutOfRange
	}

	offset := start % r.size
	length := end - start
	tail := r.size - offset
	if length <= tail {
		_, err := r.file.ReadAt(p, offset)
		return err
	}
	if _, err := r.file.ReadAt(p[:tail], offset); err != nil {
		return err
	}
	_, err := r.file.ReadAt(p[tail:], 0)
	return err
}

// waitUntil blocks until the writer's position advances past pos, the ring
// is shut down (returns io.EOF), or ctx is done (returns ctx.Err()).
func (r *Ring) waitUntil(ctx context.Context, pos int64) (int64, error) {
	stop := context.AfterFunc(ctx, func() {
		r.mu.Lock()
		r.cond.Broadcast()
		r.mu.Unlock()
	})
	defer stop()

	r.mu.Lock()
	defer r.mu.Unlock()
	for r.current.Pos <= pos && !r.closed && ctx.Err() == nil {
		r.cond.Wait()
	}
	if ctx.Err() != nil {
		return r.current.Pos, ctx.Err()
	}
	if r.closed {
		return r.current.Pos, io.EOF
	}
	return r.current.Pos, nil
}

// Shutdown wakes every waiting reader with io.EOF. It does not close the
// underlying file; callers still call Close separately.
func (r *Ring) Shutdown() {
	r.mu.Lock()
	r.closed = true
	r.cond.Broadcast()
	r.mu.Unlock()
}

// Close closes the underlying file.
func (r *Ring) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.file.Close()
}
