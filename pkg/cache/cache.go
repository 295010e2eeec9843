// Package cache implements the segmented LRU block cache that fronts
// table readers. The keyspace is striped across power-of-two segments,
// each with its own lock, access-ordered map and byte budget, so
// concurrent readers contend only within a segment.
package cache

import (
	"container/list"
	"encoding/binary"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
)

const (
	// DefaultMaxBytes is the default global byte budget
	DefaultMaxBytes = 64 << 20
	// minSegments and maxSegments bound the automatic segment count
	minSegments = 8
	maxSegments = 64
)

// Key identifies a cached block by table path and block offset
type Key struct {
	Path   string
	Offset uint64
}

// BlockCache is a bounded concurrent store from Key to decompressed
// block bytes. Values are copied in on Put and returned by reference
// on Get; a returned slice stays valid after eviction because the
// cache never reuses buffers, but callers must not modify it.
type BlockCache struct {
	segments   []*segment
	mask       uint64
	maxBytes   int64
	perSegment int64
	totalBytes atomic.Int64
}

type segment struct {
	mu    sync.Mutex
	items map[Key]*list.Element
	lru   *list.List // front = most recent
	bytes int64
}

type entry struct {
	key   Key
	value []byte
}

// New creates a cache with maxBytes of budget and an automatic
// segment count: the smallest power of two at or above 2x CPUs,
// clamped to [8, 64].
func New(maxBytes int64) *BlockCache {
	return NewWithSegments(maxBytes, autoSegments())
}

// NewWithSegments creates a cache with an explicit segment count,
// rounded up to a power of two.
func NewWithSegments(maxBytes int64, segments int) *BlockCache {
	if maxBytes < 1 {
		maxBytes = DefaultMaxBytes
	}
	if segments < 1 {
		segments = autoSegments()
	}
	n := nextPow2(segments)

	c := &BlockCache{
		segments:   make([]*segment, n),
		mask:       uint64(n - 1),
		maxBytes:   maxBytes,
		perSegment: max64(1, maxBytes/int64(n)),
	}
	for i := range c.segments {
		c.segments[i] = &segment{
			items: make(map[Key]*list.Element),
			lru:   list.New(),
		}
	}
	return c
}

// Get returns the cached bytes for key, moving the entry to
// most-recently-used. A miss returns (nil, false). Any internal panic
// degrades to a miss; the cache never returns partial bytes.
func (c *BlockCache) Get(key Key) (value []byte, ok bool) {
	defer func() {
		if recover() != nil {
			value, ok = nil, false
		}
	}()

	s := c.segment(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	el, found := s.items[key]
	if !found {
		return nil, false
	}
	s.lru.MoveToFront(el)
	return el.Value.(*entry).value, true
}

// Put copies value into the cache. Empty values and values larger
// than a segment budget are not inserted. The owning segment evicts
// least-recently-used entries until it is back within budget.
func (c *BlockCache) Put(key Key, value []byte) {
	n := int64(len(value))
	if n == 0 || n > c.perSegment {
		return
	}
	owned := make([]byte, n)
	copy(owned, value)

	s := c.segment(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	if el, found := s.items[key]; found {
		prev := el.Value.(*entry)
		s.bytes -= int64(len(prev.value))
		c.totalBytes.Add(-int64(len(prev.value)))
		prev.value = owned
		s.lru.MoveToFront(el)
	} else {
		s.items[key] = s.lru.PushFront(&entry{key: key, value: owned})
	}
	s.bytes += n
	c.totalBytes.Add(n)

	for s.bytes > c.perSegment && s.lru.Len() > 0 {
		oldest := s.lru.Back()
		e := oldest.Value.(*entry)
		s.lru.Remove(oldest)
		delete(s.items, e.key)
		s.bytes -= int64(len(e.value))
		c.totalBytes.Add(-int64(len(e.value)))
	}
}

// Remove drops a single entry if present
func (c *BlockCache) Remove(key Key) {
	s := c.segment(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	if el, found := s.items[key]; found {
		e := el.Value.(*entry)
		s.lru.Remove(el)
		delete(s.items, key)
		s.bytes -= int64(len(e.value))
		c.totalBytes.Add(-int64(len(e.value)))
	}
}

// Clear drops every entry. Segments are cleared one at a time; no two
// segment locks are ever held together.
func (c *BlockCache) Clear() {
	for _, s := range c.segments {
		s.mu.Lock()
		s.items = make(map[Key]*list.Element)
		s.lru.Init()
		c.totalBytes.Add(-s.bytes)
		s.bytes = 0
		s.mu.Unlock()
	}
}

// CurrentBytes returns the total cached bytes across all segments
func (c *BlockCache) CurrentBytes() int64 {
	return max64(0, c.totalBytes.Load())
}

// Segments returns the segment count
func (c *BlockCache) Segments() int {
	return len(c.segments)
}

func (c *BlockCache) segment(key Key) *segment {
	var d xxhash.Digest
	d.Reset()
	d.WriteString(key.Path)
	var off [8]byte
	binary.BigEndian.PutUint64(off[:], key.Offset)
	d.Write(off[:])
	return c.segments[spread(d.Sum64())&c.mask]
}

func spread(h uint64) uint64 {
	return h ^ (h >> 16)
}

func autoSegments() int {
	return clampInt(nextPow2(2*runtime.GOMAXPROCS(0)), minSegments, maxSegments)
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

func clampInt(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
