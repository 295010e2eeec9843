package codec

import (
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"
)

var (
	// ErrUnknownCodec is returned when an unsupported compression codec is specified
	ErrUnknownCodec = errors.New("unknown compression codec")

	// ErrSizeMismatch is returned when decompressed output does not match
	// the size recorded in the block header
	ErrSizeMismatch = errors.New("decompressed size mismatch")
)

// Compression identifies a block compression codec
type Compression int

const (
	// ZstdCompression is the default codec
	ZstdCompression Compression = iota
	// SnappyCompression is a lighter alternative codec
	SnappyCompression
	// NoCompression stores block payloads raw
	NoCompression

	unknownCompression
)

// IsValid reports whether c names a supported codec
func (c Compression) IsValid() bool {
	return c >= ZstdCompression && c < unknownCompression
}

// String returns the codec name as recorded in table metadata
func (c Compression) String() string {
	switch c {
	case NoCompression:
		return "none"
	case ZstdCompression:
		return "zstd"
	case SnappyCompression:
		return "snappy"
	default:
		return fmt.Sprintf("compression(%d)", c)
	}
}

// ParseCompression maps a metadata codec name back to a Compression
func ParseCompression(name string) (Compression, error) {
	switch name {
	case "none":
		return NoCompression, nil
	case "zstd":
		return ZstdCompression, nil
	case "snappy":
		return SnappyCompression, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
}

// DefaultCompressionLevel is the zstd level used when none is configured
const DefaultCompressionLevel = 3

// Compressor compresses and decompresses block payloads
type Compressor struct {
	codec Compression

	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder

	// Mutex to protect encoder access; EncodeAll on a shared encoder
	// is stateful with respect to its internal buffers
	mu sync.Mutex
}

// NewCompressor creates a compressor for the given codec and level.
// The level only applies to zstd.
func NewCompressor(codec Compression, level int) (*Compressor, error) {
	c := &Compressor{codec: codec}

	if codec == ZstdCompression {
		if level <= 0 {
			level = DefaultCompressionLevel
		}
		enc, err := zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
		}
		c.zstdEncoder = enc
	}

	// The decoder side handles every known codec regardless of what the
	// writer was configured with, so readers can share one Compressor.
	dec, err := zstd.NewReader(nil)
	if err != nil {
		if c.zstdEncoder != nil {
			c.zstdEncoder.Close()
		}
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	c.zstdDecoder = dec

	return c, nil
}

// Codec returns the codec this compressor writes with
func (c *Compressor) Codec() Compression {
	return c.codec
}

// Compress compresses data with the configured codec. For
// NoCompression the input is returned unchanged.
func (c *Compressor) Compress(data []byte) ([]byte, error) {
	switch c.codec {
	case NoCompression:
		return data, nil
	case ZstdCompression:
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.zstdEncoder.EncodeAll(data, nil), nil
	case SnappyCompression:
		return snappy.Encode(nil, data), nil
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnknownCodec, c.codec)
	}
}

// Decompress decompresses data written with the given codec and
// verifies the output is exactly uncompressedSize bytes.
func (c *Compressor) Decompress(data []byte, codec Compression, uncompressedSize int) ([]byte, error) {
	var out []byte
	var err error

	switch codec {
	case NoCompression:
		out = data
	case ZstdCompression:
		out, err = c.zstdDecoder.DecodeAll(data, make([]byte, 0, uncompressedSize))
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
	case SnappyCompression:
		out, err = snappy.Decode(make([]byte, 0, uncompressedSize), data)
		if err != nil {
			return nil, fmt.Errorf("snappy decompress: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnknownCodec, codec)
	}

	if len(out) != uncompressedSize {
		return nil, fmt.Errorf("%w: got %d bytes, header says %d",
			ErrSizeMismatch, len(out), uncompressedSize)
	}
	return out, nil
}

// Close releases codec resources
func (c *Compressor) Close() error {
	if c.zstdEncoder != nil {
		c.zstdEncoder.Close()
		c.zstdEncoder = nil
	}
	if c.zstdDecoder != nil {
		c.zstdDecoder.Close()
		c.zstdDecoder = nil
	}
	return nil
}
