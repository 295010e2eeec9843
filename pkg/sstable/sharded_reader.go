package sstable

import (
	"bytes"
	"container/heap"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tabletdb/tablet/pkg/common/log"
	"github.com/tabletdb/tablet/pkg/shard"
)

// ShardedReader serves one logical table stored as a set of shard
// files. Point gets touch exactly one shard; scans merge all shard
// iterators in key order.
type ShardedReader struct {
	base    string
	readers []*Reader
	sharder shard.Func
	num     int
	meta    Metadata
}

// OpenShardedReader opens every shard of base. The shard count is read
// from shard 0's file name and must match the count in its meta block;
// the sharding function is reconstructed from shard 0's meta block, and
// every shard must carry the identical (sharder, config, numShards)
// triple.
func OpenShardedReader(base string, opts *ReaderOptions) (*ShardedReader, error) {
	num, err := discoverShardCount(base)
	if err != nil {
		return nil, err
	}

	sr := &ShardedReader{base: base, num: num, readers: make([]*Reader, num)}
	for i := 0; i < num; i++ {
		r, err := OpenReader(ShardPath(base, i, num), opts)
		if err != nil {
			sr.Close()
			return nil, fmt.Errorf("shard %d: %w", i, err)
		}
		sr.readers[i] = r
	}

	ref := sr.readers[0].Metadata()
	if ref.NumShards != num {
		sr.Close()
		return nil, fmt.Errorf("%w: shard manifest skew: meta says %d shards, found %d",
			ErrCorruption, ref.NumShards, num)
	}
	for i, r := range sr.readers[1:] {
		m := r.Metadata()
		if m.SharderName != ref.SharderName ||
			!bytes.Equal(m.SharderConfig, ref.SharderConfig) ||
			m.NumShards != ref.NumShards {
			sr.Close()
			return nil, fmt.Errorf("%w: shard manifest skew at shard %d", ErrCorruption, i+1)
		}
	}

	fn, err := shard.New(ref.SharderName, ref.SharderConfig, num)
	if err != nil {
		sr.Close()
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	sr.sharder = fn

	sr.meta = ref
	sr.meta.Path = base
	for _, r := range sr.readers[1:] {
		m := r.Metadata()
		sr.meta.Entries += m.Entries
		sr.meta.UniqueKeys += m.UniqueKeys
	}

	log.WithField("table", base).Debug("opened sharded table: %d shards, sharder %s",
		num, ref.SharderName)
	return sr, nil
}

// discoverShardCount finds numShards from shard 0's file name
func discoverShardCount(base string) (int, error) {
	matches, err := filepath.Glob(base + "-00000-of-*.sst")
	if err != nil {
		return 0, fmt.Errorf("failed to list shards for %s: %w", base, err)
	}
	if len(matches) == 0 {
		return 0, fmt.Errorf("no shard files found for %s", base)
	}
	if len(matches) > 1 {
		return 0, fmt.Errorf("%w: multiple shard sets for %s", ErrCorruption, base)
	}

	digits := strings.TrimSuffix(strings.TrimPrefix(matches[0], base+"-00000-of-"), ".sst")
	n, err := strconv.Atoi(digits)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: unparseable shard file name %s", ErrCorruption, matches[0])
	}
	return n, nil
}

// Get routes the lookup to the shard owning key
func (sr *ShardedReader) Get(key []byte) ([]byte, error) {
	s, err := sr.sharder.ShardOf(key, sr.num)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return sr.readers[s].Get(key)
}

// MightContain reports whether the owning shard's filter admits key
func (sr *ShardedReader) MightContain(key []byte) bool {
	s, err := sr.sharder.ShardOf(key, sr.num)
	if err != nil {
		return false
	}
	return sr.readers[s].MightContain(key)
}

// Metadata returns the aggregated metadata of the shard set
func (sr *ShardedReader) Metadata() Metadata {
	return sr.meta
}

// NumShards returns the shard count
func (sr *ShardedReader) NumShards() int {
	return sr.num
}

// Scan returns a merged iterator over [start, end) across all shards.
// For the range sharder, shards hold disjoint ascending key ranges, so
// the merge degenerates to visiting intersecting shards in order.
func (sr *ShardedReader) Scan(start, end []byte) *MergedIterator {
	var iters []*Iterator
	if rs, ok := sr.sharder.(*shard.Range); ok {
		lo, hi := 0, sr.num-1
		if len(start) > 0 {
			lo, _ = rs.ShardOf(start, sr.num)
		}
		if len(end) > 0 {
			// end is exclusive but may still land inside its shard
			hi, _ = rs.ShardOf(end, sr.num)
		}
		for i := lo; i <= hi; i++ {
			iters = append(iters, sr.readers[i].Scan(start, end))
		}
		return &MergedIterator{iters: iters, sequential: true}
	}

	for _, r := range sr.readers {
		iters = append(iters, r.Scan(start, end))
	}
	return &MergedIterator{iters: iters}
}

// Close closes every shard reader, keeping the first error
func (sr *ShardedReader) Close() error {
	var firstErr error
	for _, r := range sr.readers {
		if r == nil {
			continue
		}
		if err := r.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// MergedIterator yields entries from multiple shard iterators in
// non-decreasing key order. Ties across shards break by shard index,
// preserving a stable order for duplicate keys.
type MergedIterator struct {
	iters      []*Iterator
	heap       mergeHeap
	sequential bool // shards hold disjoint ascending ranges
	seqIdx     int
	current    *Iterator
	started    bool
	err        error
}

// Next advances to the next entry across all shards
func (m *MergedIterator) Next() bool {
	if m.err != nil {
		return false
	}
	if m.sequential {
		return m.nextSequential()
	}
	if !m.started {
		m.started = true
		for i, it := range m.iters {
			if it.Next() {
				heap.Push(&m.heap, mergeItem{it: it, idx: i})
			} else if err := it.Err(); err != nil {
				m.err = err
				return false
			}
		}
	} else if m.heap.Len() > 0 {
		top := &m.heap.items[0]
		if top.it.Next() {
			heap.Fix(&m.heap, 0)
		} else {
			if err := top.it.Err(); err != nil {
				m.err = err
				return false
			}
			heap.Pop(&m.heap)
		}
	}

	if m.heap.Len() == 0 {
		m.current = nil
		return false
	}
	m.current = m.heap.items[0].it
	return true
}

func (m *MergedIterator) nextSequential() bool {
	for m.seqIdx < len(m.iters) {
		it := m.iters[m.seqIdx]
		if it.Next() {
			m.current = it
			return true
		}
		if err := it.Err(); err != nil {
			m.err = err
			return false
		}
		m.seqIdx++
	}
	m.current = nil
	return false
}

// Key returns the current key
func (m *MergedIterator) Key() []byte {
	if m.current == nil {
		return nil
	}
	return m.current.Key()
}

// Value returns the current value
func (m *MergedIterator) Value() []byte {
	if m.current == nil {
		return nil
	}
	return m.current.Value()
}

// Err returns the first error encountered by any shard iterator
func (m *MergedIterator) Err() error {
	return m.err
}

type mergeItem struct {
	it  *Iterator
	idx int
}

type mergeHeap struct {
	items []mergeItem
}

func (h *mergeHeap) Len() int { return len(h.items) }

func (h *mergeHeap) Less(i, j int) bool {
	c := bytes.Compare(h.items[i].it.Key(), h.items[j].it.Key())
	if c != 0 {
		return c < 0
	}
	return h.items[i].idx < h.items[j].idx
}

func (h *mergeHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }

func (h *mergeHeap) Push(x any) { h.items = append(h.items, x.(mergeItem)) }

func (h *mergeHeap) Pop() any {
	old := h.items
	n := len(old)
	item := old[n-1]
	h.items = old[:n-1]
	return item
}
