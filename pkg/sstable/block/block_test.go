package block

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/tabletdb/tablet/pkg/codec"
)

func buildPayload(t *testing.T, restartInterval int, pairs [][2]string) []byte {
	t.Helper()
	b := NewBuilder(restartInterval)
	for _, kv := range pairs {
		if err := b.Add([]byte(kv[0]), []byte(kv[1])); err != nil {
			t.Fatalf("failed to add %q: %v", kv[0], err)
		}
	}
	return b.Finish()
}

func TestBuilderReaderRoundTrip(t *testing.T) {
	numEntries := 100
	pairs := make([][2]string, 0, numEntries)
	for i := 0; i < numEntries; i++ {
		pairs = append(pairs, [2]string{
			fmt.Sprintf("key%05d", i),
			fmt.Sprintf("value%05d", i),
		})
	}

	payload := buildPayload(t, 16, pairs)
	reader, err := NewReader(payload)
	if err != nil {
		t.Fatalf("failed to create block reader: %v", err)
	}

	for _, kv := range pairs {
		value, found, err := reader.Get([]byte(kv[0]))
		if err != nil {
			t.Fatalf("get %q failed: %v", kv[0], err)
		}
		if !found {
			t.Fatalf("key %q not found", kv[0])
		}
		if string(value) != kv[1] {
			t.Errorf("value mismatch for %q: expected %q, got %q", kv[0], kv[1], value)
		}
	}

	if _, found, err := reader.Get([]byte("zzz")); err != nil || found {
		t.Errorf("expected miss for absent key, found=%v err=%v", found, err)
	}
	if _, found, err := reader.Get([]byte("aaa")); err != nil || found {
		t.Errorf("expected miss before first key, found=%v err=%v", found, err)
	}
}

func TestBuilderSharedPrefixReconstruction(t *testing.T) {
	// restartInterval 2 puts restart points at "aa", "ac" and "ba", so
	// "ab" is encoded against "aa" (shared prefix "a") and "b" against "ac".
	pairs := [][2]string{
		{"aa", "v-aa"}, {"ab", "v-ab"}, {"ac", "v-ac"}, {"b", "v-b"}, {"ba", "v-ba"},
	}
	payload := buildPayload(t, 2, pairs)

	reader, err := NewReader(payload)
	if err != nil {
		t.Fatalf("failed to create block reader: %v", err)
	}

	for _, kv := range pairs {
		value, found, err := reader.Get([]byte(kv[0]))
		if err != nil || !found {
			t.Fatalf("get %q: found=%v err=%v", kv[0], found, err)
		}
		if string(value) != kv[1] {
			t.Errorf("value mismatch for %q: expected %q, got %q", kv[0], kv[1], value)
		}
	}

	// Full iteration reconstructs every key in order
	it := reader.Iter(nil, nil)
	var got []string
	for it.Next() {
		got = append(got, string(it.Key()))
	}
	if err := it.Err(); err != nil {
		t.Fatalf("iteration failed: %v", err)
	}
	want := []string{"aa", "ab", "ac", "b", "ba"}
	if len(got) != len(want) {
		t.Fatalf("expected %d keys, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("key %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestBuilderRejectsOutOfOrder(t *testing.T) {
	b := NewBuilder(16)
	if err := b.Add([]byte("b"), []byte("1")); err != nil {
		t.Fatalf("first add failed: %v", err)
	}
	if err := b.Add([]byte("a"), []byte("2")); err == nil {
		t.Errorf("expected error for out-of-order key")
	}
	// Equal keys are allowed for multi-version callers
	if err := b.Add([]byte("b"), []byte("3")); err != nil {
		t.Errorf("equal key rejected: %v", err)
	}
}

func TestIteratorRange(t *testing.T) {
	pairs := make([][2]string, 0, 26)
	for c := byte('a'); c <= 'z'; c++ {
		pairs = append(pairs, [2]string{string(c), "v" + string(c)})
	}
	payload := buildPayload(t, 4, pairs)
	reader, err := NewReader(payload)
	if err != nil {
		t.Fatalf("failed to create block reader: %v", err)
	}

	it := reader.Iter([]byte("f"), []byte("j"))
	var got []string
	for it.Next() {
		got = append(got, string(it.Key()))
	}
	if err := it.Err(); err != nil {
		t.Fatalf("iteration failed: %v", err)
	}
	want := []string{"f", "g", "h", "i"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestEncodeDecodeCompressed(t *testing.T) {
	comp, err := codec.NewCompressor(codec.ZstdCompression, 3)
	if err != nil {
		t.Fatalf("failed to create compressor: %v", err)
	}
	defer comp.Close()

	pairs := make([][2]string, 0, 64)
	for i := 0; i < 64; i++ {
		pairs = append(pairs, [2]string{
			fmt.Sprintf("repetitive-key-%05d", i),
			strings.Repeat("v", 50),
		})
	}
	payload := buildPayload(t, 16, pairs)

	record, err := Encode(payload, TypeData, comp)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if len(record) >= len(payload)+HeaderSize+TrailerSize {
		t.Errorf("repetitive payload was not stored compressed")
	}

	decoded, err := Decode(record, TypeData, comp)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if !bytes.Equal(decoded, payload) {
		t.Errorf("decoded payload differs from original")
	}
}

func TestEncodeStoresRawWhenCompressionDoesNotShrink(t *testing.T) {
	comp, err := codec.NewCompressor(codec.ZstdCompression, 3)
	if err != nil {
		t.Fatalf("failed to create compressor: %v", err)
	}
	defer comp.Close()

	// A tiny incompressible payload stays raw; flags must be zero.
	b := NewBuilder(16)
	if err := b.Add([]byte{0x01, 0xfe, 0x7a}, []byte{0x9c, 0x11}); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	payload := b.Finish()

	record, err := Encode(payload, TypeData, comp)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if record[9] != 0 {
		t.Errorf("expected raw flags, got %#02x", record[9])
	}
	if len(record) != HeaderSize+len(payload)+TrailerSize {
		t.Errorf("raw record size mismatch: %d", len(record))
	}

	decoded, err := Decode(record, TypeData, comp)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if !bytes.Equal(decoded, payload) {
		t.Errorf("decoded payload differs from original")
	}
}

func TestDecodeDetectsCorruption(t *testing.T) {
	comp, err := codec.NewCompressor(codec.ZstdCompression, 3)
	if err != nil {
		t.Fatalf("failed to create compressor: %v", err)
	}
	defer comp.Close()

	payload := buildPayload(t, 16, [][2]string{{"key", "value"}})
	record, err := Encode(payload, TypeData, comp)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	// Flipping any single byte must surface as corruption
	for _, pos := range []int{0, 5, 8, HeaderSize + 1, len(record) - 1} {
		corrupted := append([]byte(nil), record...)
		corrupted[pos] ^= 0xff
		if _, err := Decode(corrupted, TypeData, comp); !errors.Is(err, ErrCorruption) {
			t.Errorf("flip at %d: expected ErrCorruption, got %v", pos, err)
		}
	}

	// Truncation
	if _, err := Decode(record[:HeaderSize+TrailerSize-1], TypeData, comp); !errors.Is(err, ErrCorruption) {
		t.Errorf("expected ErrCorruption for truncated record, got %v", err)
	}

	// Wrong block type
	if _, err := Decode(record, TypeIndex, comp); !errors.Is(err, ErrCorruption) {
		t.Errorf("expected ErrCorruption for wrong type, got %v", err)
	}
}

func TestDecodeRejectsUnknownFlags(t *testing.T) {
	payload := buildPayload(t, 16, [][2]string{{"key", "value"}})
	record, err := Encode(payload, TypeData, nil)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	// Set both compression bits and re-seal the CRC so only the flag
	// combination is at fault.
	record[9] = flagZstd | flagSnappy
	crc := codec.CRC32C(record[:len(record)-TrailerSize])
	record[len(record)-4] = byte(crc >> 24)
	record[len(record)-3] = byte(crc >> 16)
	record[len(record)-2] = byte(crc >> 8)
	record[len(record)-1] = byte(crc)

	_, err = Decode(record, TypeData, nil)
	if !errors.Is(err, ErrCorruption) || !strings.Contains(err.Error(), "unknown block flags") {
		t.Errorf("expected unknown-flags corruption, got %v", err)
	}
}
