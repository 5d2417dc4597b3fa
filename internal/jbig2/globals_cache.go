package jbig2

import (
	"sync"
)

// Globals is the frozen result of decoding a globals stream: the segments
// it defined, keyed by number. It is never mutated after decoding, so one
// value may back any number of concurrent decodes.
type Globals struct {
	segments map[uint32]*Segment
	order    []*Segment
}

// Segment returns the globals segment with the given number.
func (g *Globals) Segment(number uint32) *Segment {
	if g == nil {
		return nil
	}
	return g.segments[number]
}

// Len returns the number of segments.
func (g *Globals) Len() int {
	if g == nil {
		return 0
	}
	return len(g.order)
}

const defaultGlobalsCacheSize = 2

type globalsEntry struct {
	key     string
	globals *Globals
}

// GlobalsCache keeps the most recently used decoded globals so that images
// sharing one globals stream decode it once.
type GlobalsCache struct {
	mu      sync.Mutex
	size    int
	entries []globalsEntry
}

// NewGlobalsCache returns a cache holding at most size entries; a size
// below 1 selects the default.
func NewGlobalsCache(size int) *GlobalsCache {
	if size < 1 {
		size = defaultGlobalsCacheSize
	}
	return &GlobalsCache{size: size, entries: make([]globalsEntry, 0, size)}
}

// Get returns the globals stored under key and marks them most recent.
func (gc *GlobalsCache) Get(key string) (*Globals, bool) {
	gc.mu.Lock()
	defer gc.mu.Unlock()
	for i, e := range gc.entries {
		if e.key == key {
			copy(gc.entries[1:i+1], gc.entries[:i])
			gc.entries[0] = e
			return e.globals, true
		}
	}
	return nil, false
}

// Put stores g under key as the most recent entry, evicting the least
// recently used one when full.
func (gc *GlobalsCache) Put(key string, g *Globals) {
	gc.mu.Lock()
	defer gc.mu.Unlock()
	for i, e := range gc.entries {
		if e.key == key {
			gc.entries = append(gc.entries[:i], gc.entries[i+1:]...)
			break
		}
	}
	if len(gc.entries) >= gc.size {
		gc.entries = gc.entries[:gc.size-1]
	}
	gc.entries = append([]globalsEntry{{key, g}}, gc.entries...)
}

// Len returns the number of cached entries.
func (gc *GlobalsCache) Len() int {
	gc.mu.Lock()
	defer gc.mu.Unlock()
	return len(gc.entries)
}
