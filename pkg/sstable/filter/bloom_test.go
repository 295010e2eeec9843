package filter

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"
)

func TestBloomNoFalseNegatives(t *testing.T) {
	b := New(1<<16, 4)

	numKeys := 1000
	for i := 0; i < numKeys; i++ {
		b.Add([]byte(fmt.Sprintf("key%05d", i)))
	}

	for i := 0; i < numKeys; i++ {
		key := []byte(fmt.Sprintf("key%05d", i))
		if !b.MightContain(key) {
			t.Errorf("false negative for %s", key)
		}
	}
}

func TestBloomFalsePositiveRate(t *testing.T) {
	b := New(1<<20, 4)

	for i := 0; i < 10000; i++ {
		b.Add([]byte(fmt.Sprintf("present%06d", i)))
	}

	falsePositives := 0
	probes := 10000
	for i := 0; i < probes; i++ {
		if b.MightContain([]byte(fmt.Sprintf("absent%06d", i))) {
			falsePositives++
		}
	}

	// With m=2^20 and n=10k the expected rate is well under 1%;
	// allow generous slack to keep the test deterministic in spirit.
	if rate := float64(falsePositives) / float64(probes); rate > 0.05 {
		t.Errorf("false positive rate too high: %.4f", rate)
	}
}

func TestBloomEncodeDecode(t *testing.T) {
	b := New(1<<12, 3)
	keys := []string{"alpha", "beta", "gamma"}
	for _, k := range keys {
		b.Add([]byte(k))
	}

	decoded, err := Decode(b.Encode())
	if err != nil {
		t.Fatalf("failed to decode filter: %v", err)
	}
	for _, k := range keys {
		if !decoded.MightContain([]byte(k)) {
			t.Errorf("decoded filter lost key %s", k)
		}
	}
	if decoded.m != b.m || decoded.k != b.k {
		t.Errorf("parameters did not round trip: m=%d/%d k=%d/%d",
			decoded.m, b.m, decoded.k, b.k)
	}
}

func TestBloomSidecarFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "table.sst.bf")

	b := New(1<<12, 4)
	b.Add([]byte("durable"))
	if err := b.WriteFile(path); err != nil {
		t.Fatalf("failed to write sidecar: %v", err)
	}

	loaded, err := Open(path)
	if err != nil {
		t.Fatalf("failed to open sidecar: %v", err)
	}
	if !loaded.MightContain([]byte("durable")) {
		t.Errorf("loaded filter lost its key")
	}
}

func TestBloomBadMagic(t *testing.T) {
	b := New(1<<12, 4)
	data := b.Encode()
	data[0] ^= 0xff

	if _, err := Decode(data); !errors.Is(err, ErrBadMagic) {
		t.Errorf("expected ErrBadMagic, got %v", err)
	}
}

func TestBloomTruncated(t *testing.T) {
	b := New(1<<12, 4)
	data := b.Encode()

	if _, err := Decode(data[:8]); err == nil {
		t.Errorf("expected error for truncated header")
	}
	if _, err := Decode(data[:len(data)/2]); err == nil {
		t.Errorf("expected error for truncated bit array")
	}
}
