// Package sstable implements immutable, sorted, block-structured
// on-disk tables: the writer that produces them, the reader that
// serves point and range queries through the block cache, and the
// sharded variants that split one logical table across shard files.
package sstable

import (
	"errors"

	"github.com/tabletdb/tablet/pkg/codec"
	"github.com/tabletdb/tablet/pkg/sstable/block"
	"github.com/tabletdb/tablet/pkg/sstable/filter"
)

const (
	// DefaultBlockSize is the target pre-compression payload size of a data block
	DefaultBlockSize = 4 * 1024
	// DefaultRestartInterval is the default entry count between restart points
	DefaultRestartInterval = block.RestartInterval

	// headerPadSize is the zero-filled reservation at the start of every
	// table file, kept for a future superblock
	headerPadSize = 64

	// tmpSuffix names the in-progress sibling of a table file
	tmpSuffix = ".tmp"
	// SidecarSuffix names the bloom sidecar next to a table file
	SidecarSuffix = ".bf"
)

var (
	// ErrNotFound indicates a key absent from the table. It is a normal
	// lookup outcome, not a failure.
	ErrNotFound = errors.New("key not found in sstable")
	// ErrCorruption indicates the file bytes fail integrity or structural checks
	ErrCorruption = block.ErrCorruption
	// ErrInvalidInput indicates caller input that violates the writer or
	// sharding contracts
	ErrInvalidInput = errors.New("invalid input")
)

// IndexEntry locates one data block within the table file
type IndexEntry struct {
	// FirstKey is the first key stored in the block
	FirstKey []byte
	// Offset is the file offset of the block record
	Offset uint64
	// Length is the full record length including header and CRC trailer
	Length uint32
}

// WriterOptions configure table construction. The zero value selects
// the defaults for every field.
type WriterOptions struct {
	// BlockSize is the target pre-compression payload size per data block.
	// Default: 4KiB.
	BlockSize int

	// RestartInterval is the number of entries between restart points
	// for prefix compression of keys.
	// Default: 16.
	RestartInterval int

	// Compression selects the block codec.
	// Default: zstd.
	Compression codec.Compression

	// CompressionLevel applies to zstd.
	// Default: 3.
	CompressionLevel int

	// BloomBits is the filter size in bits. Default: 2^20.
	BloomBits uint32

	// BloomHashes is the number of filter probes per key. Default: 4.
	BloomHashes uint8

	// Sharder identity stamped into the meta block. Left empty for
	// single-file tables; the sharded writer fills these in.
	SharderName   string
	SharderConfig []byte
	NumShards     int
}

func (o *WriterOptions) norm() *WriterOptions {
	var oo WriterOptions
	if o != nil {
		oo = *o
	}
	if oo.BlockSize < 1 {
		oo.BlockSize = DefaultBlockSize
	}
	if oo.RestartInterval < 1 {
		oo.RestartInterval = DefaultRestartInterval
	}
	if !oo.Compression.IsValid() {
		oo.Compression = codec.ZstdCompression
	}
	if oo.CompressionLevel < 1 {
		oo.CompressionLevel = codec.DefaultCompressionLevel
	}
	if oo.BloomBits == 0 {
		oo.BloomBits = filter.DefaultBits
	}
	if oo.BloomHashes == 0 {
		oo.BloomHashes = filter.DefaultHashes
	}
	if oo.NumShards < 1 {
		oo.NumShards = 1
	}
	return &oo
}
