package timeshift

import (
	"sync"

	"github.com/sanshiro-tv/tunerd/pkg/diskslice"

	"github.com/sanshiro-tv/tunerd/internal/models"
)

// RecordIndex is the ordered list of a recorder's *closed* records (the
// one open, recording=true record lives separately on the Recorder itself
// until it's closed and appended here). Backed by diskslice.DiskSlice so a
// long-retention recorder with many thousands of program-boundary records
// spills its index to a temp file instead of growing resident memory
// without bound.
type RecordIndex struct {
	mu   sync.Mutex
	opts diskslice.Options
	ds   *diskslice.DiskSlice[models.TimeshiftRecord]
}

// diskSliceOptions builds the spill options for one recorder's record
// index: a 16 MiB in-memory threshold before overflowing to a named temp
// file, so long-lived recorders with many records don't grow unbounded
// resident memory.
func diskSliceOptions(name string) diskslice.Options {
	opts := diskslice.DefaultOptions()
	opts.MemoryThreshold = 16 * 1024 * 1024
	opts.Name = "timeshift-" + name
	return opts
}

// NewRecordIndex creates an empty index using opts for any future spill.
func NewRecordIndex(opts diskslice.Options) (*RecordIndex, error) {
	ds, err := diskslice.New[models.TimeshiftRecord](opts)
	if err != nil {
		return nil, err
	}
	return &RecordIndex{opts: opts, ds: ds}, nil
}

// Append adds a newly closed record to the end of the index. Callers must
// ensure ids are strictly increasing; the index does not enforce it.
func (ix *RecordIndex) Append(r models.TimeshiftRecord) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.ds.Append(r)
}

// Len returns the number of closed records currently indexed.
func (ix *RecordIndex) Len() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.ds.Len()
}

// Get returns the record at index i by insertion order, or false if out of
// range.
func (ix *RecordIndex) Get(i int) (models.TimeshiftRecord, bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	item, err := ix.ds.Get(i)
	if err != nil {
		return models.TimeshiftRecord{}, false
	}
	return *item, true
}

// Find returns the record with the given id, or false if not present.
func (ix *RecordIndex) Find(id models.TimeshiftRecordId) (models.TimeshiftRecord, bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	var found models.TimeshiftRecord
	ok := false
	_ = ix.ds.For(func(_ int, item *models.TimeshiftRecord) bool {
		if item.ID == id {
			found = *item
			ok = true
			return false
		}
		return true
	})
	return found, ok
}

// All returns a snapshot of every closed record, in insertion order. Used
// by the sidecar writer and by list queries.
func (ix *RecordIndex) All() ([]models.TimeshiftRecord, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.ds.ToSlice()
}

// Oldest returns the first (lowest-id) closed record, or false if empty.
func (ix *RecordIndex) Oldest() (models.TimeshiftRecord, bool) {
	return ix.Get(0)
}

// EvictBefore drops every closed record whose EndPos is at or behind
// minRetainedPos (the writer's current retention floor), rebuilding the
// backing DiskSlice since diskslice offers no in-place removal. Returns
// the evicted records for logging/event purposes.
func (ix *RecordIndex) EvictBefore(minRetainedPos int64) ([]models.TimeshiftRecord, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	all, err := ix.ds.ToSlice()
	if err != nil {
		return nil, err
	}

	keepFrom := 0
	for keepFrom < len(all) && all[keepFrom].EndPos <= minRetainedPos {
		keepFrom++
	}
	if keepFrom == 0 {
		return nil, nil
	}

	evicted := all[:keepFrom]
	kept := all[keepFrom:]

	rebuilt, err := diskslice.New[models.TimeshiftRecord](ix.opts)
	if err != nil {
		return nil, err
	}
	if err := rebuilt.AppendSlice(kept); err != nil {
		rebuilt.Close()
		return nil, err
	}

	old := ix.ds
	ix.ds = rebuilt
	old.Close()
	return evicted, nil
}

// Close releases the index's backing storage.
func (ix *RecordIndex) Close() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.ds.Close()
}
