package sstable

import (
	"fmt"

	"github.com/tabletdb/tablet/pkg/shard"
)

// ShardPath returns the file name of shard i of numShards for base
func ShardPath(base string, i, numShards int) string {
	return fmt.Sprintf("%s-%05d-of-%05d.sst", base, i, numShards)
}

// ShardedWriter splits one logical table across numShards files, each
// a complete table in its own right. Every shard's meta block carries
// the same sharder identity so readers can verify the set is coherent.
type ShardedWriter struct {
	writers  []*Writer
	sharder  shard.Func
	num      int
	finished bool
}

// NewShardedWriter creates writers for every shard of base. Options
// apply uniformly to all shards; the sharder identity fields are
// filled in from fn.
func NewShardedWriter(base string, numShards int, fn shard.Func, opts *WriterOptions) (*ShardedWriter, error) {
	if numShards <= 0 {
		return nil, fmt.Errorf("%w: numShards must be positive, got %d", ErrInvalidInput, numShards)
	}
	if fn == nil {
		return nil, fmt.Errorf("%w: nil sharding function", ErrInvalidInput)
	}

	o := opts.norm()
	o.SharderName = fn.Name()
	o.SharderConfig = fn.Config()
	o.NumShards = numShards

	sw := &ShardedWriter{
		writers: make([]*Writer, numShards),
		sharder: fn,
		num:     numShards,
	}
	for i := 0; i < numShards; i++ {
		w, err := NewWriter(ShardPath(base, i, numShards), o)
		if err != nil {
			sw.Abort()
			return nil, err
		}
		sw.writers[i] = w
	}
	return sw, nil
}

// Add routes a key/value pair to its shard. Callers stream keys in
// global sorted order; each shard then receives a sorted subsequence.
func (sw *ShardedWriter) Add(key, value []byte) error {
	s, err := sw.sharder.ShardOf(key, sw.num)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return sw.writers[s].Add(key, value)
}

// Finish publishes every shard. On error, shards already published
// remain; callers treat the set as incomplete until Finish returns nil.
func (sw *ShardedWriter) Finish() error {
	if sw.finished {
		return fmt.Errorf("%w: writer already finished", ErrInvalidInput)
	}
	sw.finished = true

	for i, w := range sw.writers {
		if err := w.Finish(); err != nil {
			for _, rest := range sw.writers[i+1:] {
				rest.Abort()
			}
			return fmt.Errorf("shard %d: %w", i, err)
		}
	}
	return nil
}

// Abort discards all shards still under construction
func (sw *ShardedWriter) Abort() {
	sw.finished = true
	for _, w := range sw.writers {
		if w != nil {
			w.Abort()
		}
	}
}
