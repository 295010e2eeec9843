// Package config carries the tunables for table construction and
// caching, with validation and a durable JSON manifest recording how a
// table set was built.
package config

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig indicates a knob outside its legal range
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Config holds every tuning knob with JSON tags for manifest persistence
type Config struct {
	Version int `json:"version"`

	// Table layout
	BlockSize        int    `json:"block_size"`
	RestartInterval  int    `json:"restart_interval"`
	CompressionLevel int    `json:"compression_level"`
	Compression      string `json:"compression"`

	// Bloom filter
	BloomBits   uint32 `json:"bloom_bits"`
	BloomHashes uint8  `json:"bloom_hashes"`

	// Block cache
	CacheMaxBytes int64 `json:"cache_max_bytes"`
	CacheSegments int   `json:"cache_segments"` // 0 = automatic

	// Sharding
	NumShards   int    `json:"num_shards"`
	SharderName string `json:"sharder_name"`
}

// CurrentVersion is the manifest schema version
const CurrentVersion = 1

// NewDefaultConfig creates a Config with the recommended defaults
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentVersion,

		BlockSize:        4 * 1024,
		RestartInterval:  16,
		CompressionLevel: 3,
		Compression:      "zstd",

		BloomBits:   1 << 20,
		BloomHashes: 4,

		CacheMaxBytes: 64 * 1024 * 1024,
		CacheSegments: 0,

		NumShards:   1,
		SharderName: "mod",
	}
}

// Validate checks that every knob is inside its legal range
func (c *Config) Validate() error {
	if c.BlockSize < 1 {
		return fmt.Errorf("%w: block size must be positive", ErrInvalidConfig)
	}
	if c.RestartInterval < 1 {
		return fmt.Errorf("%w: restart interval must be positive", ErrInvalidConfig)
	}
	if c.CompressionLevel < 1 {
		return fmt.Errorf("%w: compression level must be positive", ErrInvalidConfig)
	}
	if c.BloomBits == 0 {
		return fmt.Errorf("%w: bloom bits must be positive", ErrInvalidConfig)
	}
	if c.BloomHashes == 0 {
		return fmt.Errorf("%w: bloom hashes must be positive", ErrInvalidConfig)
	}
	if c.CacheMaxBytes < 1 {
		return fmt.Errorf("%w: cache budget must be positive", ErrInvalidConfig)
	}
	if c.CacheSegments < 0 {
		return fmt.Errorf("%w: cache segments must be non-negative", ErrInvalidConfig)
	}
	if c.NumShards < 1 {
		return fmt.Errorf("%w: shard count must be positive", ErrInvalidConfig)
	}
	return nil
}
