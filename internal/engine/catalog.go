package engine

import (
	"sort"
	"sync"
	"time"
)

// Catalog is the in-memory index of completed and in-progress recordings,
// keyed by filename. Entries are created when a recorder opens and finalized
// when it closes; this subsystem never deletes them.
type Catalog struct {
	mu      sync.RWMutex
	entries map[string]*RecordingMetadata
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{entries: make(map[string]*RecordingMetadata)}
}

// Add registers a newly opened recording. An existing entry with the same
// filename is overwritten; filenames carry a random disambiguator so this
// only happens if the caller reuses one deliberately.
func (c *Catalog) Add(meta RecordingMetadata) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := meta
	c.entries[meta.Filename] = &m
}

// Finalize stamps the end time and file size on an entry. Finalizing an
// unknown filename is a no-op; the recorder may have failed before its
// catalog entry was created.
func (c *Catalog) Finalize(filename string, end time.Time, size int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if m, ok := c.entries[filename]; ok {
		e := end
		m.EndTime = &e
		m.Filesize = size
	}
}

// Get returns a copy of the entry for filename.
func (c *Catalog) Get(filename string) (RecordingMetadata, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.entries[filename]
	if !ok {
		return RecordingMetadata{}, false
	}
	return *m, true
}

// List returns copies of all entries sorted by start time descending, the
// order the dashboard shows archived recordings in.
func (c *Catalog) List() []RecordingMetadata {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]RecordingMetadata, 0, len(c.entries))
	for _, m := range c.entries {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartTime.After(out[j].StartTime)
	})
	return out
}

// Len returns the number of catalog entries.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
