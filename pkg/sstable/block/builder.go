package block

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/tabletdb/tablet/pkg/codec"
)

// Builder constructs a block payload: prefix-compressed entries
// followed by the restart array and its count. The surrounding record
// framing (header, compression, CRC) is applied by Encode.
type Builder struct {
	restartInterval int
	buf             []byte
	restarts        []uint32
	firstKey        []byte
	lastKey         []byte
	counter         int
}

// NewBuilder creates a builder with the given restart interval
func NewBuilder(restartInterval int) *Builder {
	if restartInterval < 1 {
		restartInterval = RestartInterval
	}
	return &Builder{
		restartInterval: restartInterval,
		restarts:        make([]uint32, 0, 16),
	}
}

// Add appends a key/value pair. Keys must arrive in non-decreasing
// order; equal keys are allowed for multi-version callers.
func (b *Builder) Add(key, value []byte) error {
	if b.counter > 0 && bytes.Compare(key, b.lastKey) < 0 {
		return fmt.Errorf("keys must be added in non-decreasing order, got %q after %q",
			key, b.lastKey)
	}

	shared := 0
	if b.counter%b.restartInterval == 0 {
		b.restarts = append(b.restarts, uint32(len(b.buf)))
	} else {
		shared = sharedPrefixLen(b.lastKey, key)
	}

	b.buf = codec.AppendUvarint32(b.buf, uint32(shared))
	b.buf = codec.AppendUvarint32(b.buf, uint32(len(key)-shared))
	b.buf = codec.AppendUvarint32(b.buf, uint32(len(value)))
	b.buf = append(b.buf, key[shared:]...)
	b.buf = append(b.buf, value...)

	if b.counter == 0 {
		b.firstKey = append(b.firstKey[:0], key...)
	}
	b.lastKey = append(b.lastKey[:0], key...)
	b.counter++
	return nil
}

// FirstKey returns the first key added since the last Reset
func (b *Builder) FirstKey() []byte {
	return b.firstKey
}

// Entries returns the number of entries added since the last Reset
func (b *Builder) Entries() int {
	return b.counter
}

// EstimatedSize returns the approximate serialized payload size,
// used by the writer to trigger a block flush.
func (b *Builder) EstimatedSize() int {
	if b.counter == 0 {
		return 0
	}
	return len(b.buf) + 4*len(b.restarts) + 4
}

// Finish appends the restart array and count and returns the payload.
// The builder must be Reset before reuse.
func (b *Builder) Finish() []byte {
	payload := b.buf
	var tmp [4]byte
	for _, off := range b.restarts {
		binary.BigEndian.PutUint32(tmp[:], off)
		payload = append(payload, tmp[:]...)
	}
	binary.BigEndian.PutUint32(tmp[:], uint32(len(b.restarts)))
	payload = append(payload, tmp[:]...)
	return payload
}

// Reset clears the builder for the next block
func (b *Builder) Reset() {
	b.buf = b.buf[:0]
	b.restarts = b.restarts[:0]
	b.firstKey = b.firstKey[:0]
	b.lastKey = b.lastKey[:0]
	b.counter = 0
}

func sharedPrefixLen(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}
