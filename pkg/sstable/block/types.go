package block

import "errors"

// Type identifies the role of a block within the table file
type Type uint8

const (
	// TypeData holds key/value entries
	TypeData Type = 0
	// TypeIndex holds (firstKey, offset, length) records
	TypeIndex Type = 1
	// TypeFilter holds the bloom filter bytes
	TypeFilter Type = 2
	// TypeMeta holds the table metadata text
	TypeMeta Type = 3
)

const (
	// HeaderSize is the fixed size of the on-disk block header
	HeaderSize = 12
	// TrailerSize is the size of the CRC32C trailer
	TrailerSize = 4
	// RestartInterval is the default number of entries between restart points
	RestartInterval = 16

	// flagZstd marks a zstd-compressed payload
	flagZstd = 1 << 0
	// flagSnappy marks a snappy-compressed payload
	flagSnappy = 1 << 1
)

// ErrCorruption indicates the block bytes fail integrity or structural checks
var ErrCorruption = errors.New("block corruption detected")
