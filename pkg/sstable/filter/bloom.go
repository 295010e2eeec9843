// Package filter implements the bloom filter guarding table reads and
// its memory-mappable sidecar format.
package filter

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"

	"github.com/spaolacci/murmur3"
)

const (
	// Magic identifies a bloom sidecar file
	Magic = uint64(0x0000BF1DBEAD0B11)
	// headerSize is magic(8) + k(1) + m(4)
	headerSize = 13

	// DefaultBits is the default filter size in bits
	DefaultBits = 1 << 20
	// DefaultHashes is the default number of probes per key
	DefaultHashes = 4

	// Seeds for the two murmur3 hashes driving double hashing
	seed1 = 0
	seed2 = 4
)

// ErrBadMagic indicates the sidecar bytes are not a bloom filter
var ErrBadMagic = errors.New("bad bloom magic")

// Bloom is a fixed-parameter bloom filter with k double-hashed probes
// over an m-bit array.
type Bloom struct {
	m    uint32
	k    uint8
	bits []byte
}

// New creates an empty filter with m bits and k hash probes
func New(m uint32, k uint8) *Bloom {
	if m == 0 {
		m = DefaultBits
	}
	if k == 0 {
		k = DefaultHashes
	}
	return &Bloom{
		m:    m,
		k:    k,
		bits: make([]byte, (m+7)>>3),
	}
}

// Add sets the k probe bits for key
func (b *Bloom) Add(key []byte) {
	h1 := murmur3.Sum32WithSeed(key, seed1)
	h2 := murmur3.Sum32WithSeed(key, seed2)
	for i := uint32(0); i < uint32(b.k); i++ {
		idx := (uint64(h1) + uint64(i)*uint64(h2)) % uint64(b.m)
		b.bits[idx>>3] |= 1 << (idx & 7)
	}
}

// MightContain reports whether key may be present. False means the key
// was definitely never added.
func (b *Bloom) MightContain(key []byte) bool {
	h1 := murmur3.Sum32WithSeed(key, seed1)
	h2 := murmur3.Sum32WithSeed(key, seed2)
	for i := uint32(0); i < uint32(b.k); i++ {
		idx := (uint64(h1) + uint64(i)*uint64(h2)) % uint64(b.m)
		if b.bits[idx>>3]&(1<<(idx&7)) == 0 {
			return false
		}
	}
	return true
}

// Encode serializes the filter in sidecar form:
// [magic u64][k u8][m u32][bit bytes]. The filter block inside the
// table file carries these exact bytes as well, so either source can
// seed a reader.
func (b *Bloom) Encode() []byte {
	out := make([]byte, headerSize+len(b.bits))
	binary.BigEndian.PutUint64(out[0:8], Magic)
	out[8] = b.k
	binary.BigEndian.PutUint32(out[9:13], b.m)
	copy(out[headerSize:], b.bits)
	return out
}

// Decode parses sidecar bytes into a filter
func Decode(data []byte) (*Bloom, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("bloom filter truncated: %d bytes", len(data))
	}
	if magic := binary.BigEndian.Uint64(data[0:8]); magic != Magic {
		return nil, fmt.Errorf("%w: %#016x", ErrBadMagic, magic)
	}
	k := data[8]
	m := binary.BigEndian.Uint32(data[9:13])
	want := int((m + 7) >> 3)
	if len(data) < headerSize+want {
		return nil, fmt.Errorf("bloom filter truncated: %d bit bytes, want %d",
			len(data)-headerSize, want)
	}

	b := New(m, k)
	copy(b.bits, data[headerSize:headerSize+want])
	return b, nil
}

// WriteFile persists the filter to path and fsyncs it
func (b *Bloom) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create bloom sidecar: %w", err)
	}
	if _, err := f.Write(b.Encode()); err != nil {
		f.Close()
		return fmt.Errorf("failed to write bloom sidecar: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("failed to sync bloom sidecar: %w", err)
	}
	return f.Close()
}

// Open loads a filter from a sidecar file written by WriteFile
func Open(path string) (*Bloom, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read bloom sidecar: %w", err)
	}
	return Decode(data)
}
