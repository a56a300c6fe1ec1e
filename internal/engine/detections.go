package engine

import "sync"

// DefaultBufferLimit is the default maximum number of detection batches
// retained by a Buffer.
const DefaultBufferLimit = 4096

// Buffer is the append-only sequence of detection batches for the current
// broadcast. Batches carry absolute sequence numbers so that each viewer's
// compositor can hold its own cursor and advance independently; appends never
// invalidate a cursor.
//
// Retention: the buffer keeps at most limit batches. When it overflows, the
// oldest batches are dropped and the base sequence advances; a cursor that
// has fallen behind the base resumes at the oldest retained batch. A
// late-joining viewer therefore replays at most the retained window, not the
// whole broadcast.
type Buffer struct {
	mu      sync.RWMutex
	base    uint64
	batches []DetectionBatch
	limit   int
}

// NewBuffer returns a buffer retaining at most limit batches. If limit <= 0,
// DefaultBufferLimit is used.
func NewBuffer(limit int) *Buffer {
	if limit <= 0 {
		limit = DefaultBufferLimit
	}
	return &Buffer{limit: limit}
}

// Append adds a batch at the tail of the sequence, evicting from the head if
// the retention limit is exceeded.
func (b *Buffer) Append(batch DetectionBatch) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.batches = append(b.batches, batch)
	if over := len(b.batches) - b.limit; over > 0 {
		// Copy down rather than re-slice so the evicted batches can be
		// collected.
		kept := make([]DetectionBatch, len(b.batches)-over)
		copy(kept, b.batches[over:])
		b.batches = kept
		b.base += uint64(over)
	}
}

// ReadNext returns the batch at cursor and the cursor for the batch after
// it. If cursor points before the retained window it is advanced to the
// oldest retained batch, so cursors are monotonically non-decreasing and a
// batch is never delivered twice to the same cursor. ok is false at
// end-of-buffer; the returned cursor is then the position to retry from.
func (b *Buffer) ReadNext(cursor uint64) (batch DetectionBatch, next uint64, ok bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if cursor < b.base {
		cursor = b.base
	}
	idx := cursor - b.base
	if idx >= uint64(len(b.batches)) {
		return DetectionBatch{}, cursor, false
	}
	return b.batches[idx], cursor + 1, true
}

// Len returns the number of currently retained batches.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.batches)
}
