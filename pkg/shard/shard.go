// Package shard provides deterministic key-to-shard mapping for
// sharded tables. A sharding function must be deterministic, stable
// forever for a given name, and roughly uniform across shards.
package shard

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"github.com/spaolacci/murmur3"
	"github.com/tabletdb/tablet/pkg/codec"
)

var (
	// ErrInvalidShardCount is returned when numShards is not positive
	ErrInvalidShardCount = errors.New("numShards must be positive")
	// ErrUnknownSharder is returned for a name with no registered implementation
	ErrUnknownSharder = errors.New("unknown sharder name")
)

// Func maps keys to shard indices. Implementations are recorded by
// name and config in every shard's meta block and must reproduce the
// same mapping when reconstructed from that identity.
type Func interface {
	// ShardOf returns the shard index for key in [0, numShards)
	ShardOf(key []byte, numShards int) (int, error)
	// Name is the stable identifier recorded in table metadata
	Name() string
	// Config is the serialized configuration recorded alongside Name
	Config() []byte
}

// New reconstructs a sharding function from its recorded identity
func New(name string, config []byte, numShards int) (Func, error) {
	switch name {
	case ModName:
		return Mod{}, nil
	case FingerprintName:
		return Fingerprint{}, nil
	case RangeName:
		boundaries, err := decodeBoundaries(config)
		if err != nil {
			return nil, err
		}
		return NewRange(boundaries)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSharder, name)
	}
}

// ModName identifies the default murmur3_32 modulo sharder
const ModName = "mod"

// Mod shards by (murmur3_32(key) & 0x7FFFFFFF) mod numShards
type Mod struct{}

func (Mod) ShardOf(key []byte, numShards int) (int, error) {
	if numShards <= 0 {
		return 0, ErrInvalidShardCount
	}
	h := murmur3.Sum32(key)
	return int((h & 0x7FFFFFFF) % uint32(numShards)), nil
}

func (Mod) Name() string   { return ModName }
func (Mod) Config() []byte { return nil }

// FingerprintName identifies the 64-bit fingerprint sharder
const FingerprintName = "fingerprint:v2"

// Fingerprint shards by the low 64 bits of murmur3_128, for workloads
// needing stricter load balance than the 32-bit mod sharder.
type Fingerprint struct{}

func (Fingerprint) ShardOf(key []byte, numShards int) (int, error) {
	if numShards <= 0 {
		return 0, ErrInvalidShardCount
	}
	low, _ := murmur3.Sum128(key)
	return int((low & 0x7FFFFFFFFFFFFFFF) % uint64(numShards)), nil
}

func (Fingerprint) Name() string   { return FingerprintName }
func (Fingerprint) Config() []byte { return nil }

// RangeName identifies the boundary-based range sharder
const RangeName = "range:v1"

// Range shards by upper-bound binary search over sorted boundary keys.
// With boundaries B[0..N-2], shard 0 holds keys < B[0] and shard i
// holds B[i-1] <= key < B[i]. Scans over a range sharder keep locality:
// all keys of shard i sort before all keys of shard i+1.
type Range struct {
	boundaries [][]byte
}

// NewRange creates a range sharder from strictly ascending boundaries
func NewRange(boundaries [][]byte) (*Range, error) {
	if len(boundaries) == 0 {
		return nil, errors.New("range sharder requires at least one boundary")
	}
	for i := 1; i < len(boundaries); i++ {
		if bytes.Compare(boundaries[i-1], boundaries[i]) >= 0 {
			return nil, fmt.Errorf("boundaries must be in ascending order (index %d)", i)
		}
	}
	copied := make([][]byte, len(boundaries))
	for i, b := range boundaries {
		copied[i] = append([]byte(nil), b...)
	}
	return &Range{boundaries: copied}, nil
}

func (r *Range) ShardOf(key []byte, numShards int) (int, error) {
	if numShards <= 0 {
		return 0, ErrInvalidShardCount
	}
	if numShards != len(r.boundaries)+1 {
		return 0, fmt.Errorf("numShards %d must equal boundaries+1 (%d)",
			numShards, len(r.boundaries)+1)
	}
	return sort.Search(len(r.boundaries), func(i int) bool {
		return bytes.Compare(key, r.boundaries[i]) < 0
	}), nil
}

func (r *Range) Name() string { return RangeName }

// Config serializes the boundaries as varint count followed by
// varint-length-prefixed keys.
func (r *Range) Config() []byte {
	out := codec.AppendUvarint32(nil, uint32(len(r.boundaries)))
	for _, b := range r.boundaries {
		out = codec.AppendUvarint32(out, uint32(len(b)))
		out = append(out, b...)
	}
	return out
}

// Boundaries returns the sorted boundary keys
func (r *Range) Boundaries() [][]byte {
	return r.boundaries
}

func decodeBoundaries(config []byte) ([][]byte, error) {
	count, n, err := codec.Uvarint32(config)
	if err != nil {
		return nil, fmt.Errorf("invalid range sharder config: %w", err)
	}
	pos := n
	boundaries := make([][]byte, 0, count)
	for i := uint32(0); i < count; i++ {
		klen, n, err := codec.Uvarint32(config[pos:])
		if err != nil {
			return nil, fmt.Errorf("invalid range sharder config: %w", err)
		}
		pos += n
		if pos+int(klen) > len(config) {
			return nil, errors.New("invalid range sharder config: boundary overruns buffer")
		}
		boundaries = append(boundaries, append([]byte(nil), config[pos:pos+int(klen)]...))
		pos += int(klen)
	}
	return boundaries, nil
}
