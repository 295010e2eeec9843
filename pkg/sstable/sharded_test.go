package sstable

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/tabletdb/tablet/pkg/cache"
	"github.com/tabletdb/tablet/pkg/shard"
)

func writeShardedTable(t *testing.T, base string, numShards int, fn shard.Func, pairs [][2]string) {
	t.Helper()
	sw, err := NewShardedWriter(base, numShards, fn, &WriterOptions{BlockSize: 512})
	if err != nil {
		t.Fatalf("failed to create sharded writer: %v", err)
	}
	for _, kv := range pairs {
		if err := sw.Add([]byte(kv[0]), []byte(kv[1])); err != nil {
			t.Fatalf("failed to add %q: %v", kv[0], err)
		}
	}
	if err := sw.Finish(); err != nil {
		t.Fatalf("failed to finish sharded table: %v", err)
	}
}

func sortedPairs(n int) [][2]string {
	pairs := make([][2]string, 0, n)
	for i := 0; i < n; i++ {
		key := fmt.Sprintf("key%06d", i)
		pairs = append(pairs, [2]string{key, "value-" + key})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i][0] < pairs[j][0] })
	return pairs
}

func TestShardedRoundTripMod(t *testing.T) {
	base := filepath.Join(t.TempDir(), "table")
	pairs := sortedPairs(10000)
	writeShardedTable(t, base, 4, shard.Mod{}, pairs)

	// All four shard files exist with sidecars
	for i := 0; i < 4; i++ {
		p := ShardPath(base, i, 4)
		if _, err := os.Stat(p); err != nil {
			t.Fatalf("shard file missing: %v", err)
		}
		if _, err := os.Stat(p + SidecarSuffix); err != nil {
			t.Fatalf("shard sidecar missing: %v", err)
		}
	}

	sr, err := OpenShardedReader(base, &ReaderOptions{Cache: cache.New(4 << 20)})
	if err != nil {
		t.Fatalf("failed to open sharded reader: %v", err)
	}
	defer sr.Close()

	if sr.NumShards() != 4 {
		t.Errorf("expected 4 shards, got %d", sr.NumShards())
	}

	for _, kv := range pairs {
		v, err := sr.Get([]byte(kv[0]))
		if err != nil {
			t.Fatalf("get %q failed: %v", kv[0], err)
		}
		if string(v) != kv[1] {
			t.Errorf("value mismatch for %q", kv[0])
		}
	}
	if _, err := sr.Get([]byte("absent-key")); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	// Merged scan yields every entry in global key order
	it := sr.Scan(nil, nil)
	i := 0
	prev := ""
	for it.Next() {
		key := string(it.Key())
		if key < prev {
			t.Fatalf("merged scan out of order: %q after %q", key, prev)
		}
		if key != pairs[i][0] {
			t.Fatalf("entry %d: expected %q, got %q", i, pairs[i][0], key)
		}
		prev = key
		i++
	}
	if err := it.Err(); err != nil {
		t.Fatalf("merged scan failed: %v", err)
	}
	if i != len(pairs) {
		t.Errorf("merged scan yielded %d entries, expected %d", i, len(pairs))
	}

	meta := sr.Metadata()
	if meta.Entries != uint64(len(pairs)) {
		t.Errorf("aggregated entries: expected %d, got %d", len(pairs), meta.Entries)
	}
	if meta.SharderName != shard.ModName {
		t.Errorf("sharder name: expected %q, got %q", shard.ModName, meta.SharderName)
	}
}

func TestShardedRangeScanOpensSubset(t *testing.T) {
	base := filepath.Join(t.TempDir(), "table")
	boundaries := [][]byte{[]byte("key003000"), []byte("key006000")}
	fn, err := shard.NewRange(boundaries)
	if err != nil {
		t.Fatalf("failed to create range sharder: %v", err)
	}

	pairs := sortedPairs(9000)
	writeShardedTable(t, base, 3, fn, pairs)

	sr, err := OpenShardedReader(base, nil)
	if err != nil {
		t.Fatalf("failed to open sharded reader: %v", err)
	}
	defer sr.Close()

	// Range scans stay ordered and complete
	it := sr.Scan([]byte("key002500"), []byte("key003500"))
	count := 0
	prev := ""
	for it.Next() {
		key := string(it.Key())
		if key < prev {
			t.Fatalf("range scan out of order: %q after %q", key, prev)
		}
		prev = key
		count++
	}
	if err := it.Err(); err != nil {
		t.Fatalf("range scan failed: %v", err)
	}
	if count != 1000 {
		t.Errorf("expected 1000 entries, got %d", count)
	}

	// Point gets route across boundary shards correctly
	for _, key := range []string{"key000000", "key002999", "key003000", "key005999", "key006000", "key008999"} {
		if _, err := sr.Get([]byte(key)); err != nil {
			t.Errorf("get %q failed: %v", key, err)
		}
	}
}

func TestShardedFingerprint(t *testing.T) {
	base := filepath.Join(t.TempDir(), "table")
	pairs := sortedPairs(2000)
	writeShardedTable(t, base, 5, shard.Fingerprint{}, pairs)

	sr, err := OpenShardedReader(base, nil)
	if err != nil {
		t.Fatalf("failed to open sharded reader: %v", err)
	}
	defer sr.Close()

	for _, kv := range pairs[:200] {
		if v, err := sr.Get([]byte(kv[0])); err != nil || string(v) != kv[1] {
			t.Errorf("get %q: err=%v v=%q", kv[0], err, v)
		}
	}
}

func TestShardedManifestSkew(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "table")
	pairs := sortedPairs(100)
	writeShardedTable(t, base, 2, shard.Mod{}, pairs)

	// Replace shard 1 with a table written under a different sharder
	// identity; the set is no longer coherent.
	rogue := filepath.Join(dir, "rogue.sst")
	w, err := NewWriter(rogue, &WriterOptions{
		SharderName: shard.FingerprintName,
		NumShards:   2,
	})
	if err != nil {
		t.Fatalf("failed to create rogue writer: %v", err)
	}
	if err := w.Add([]byte("k"), []byte("v")); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if err := w.Finish(); err != nil {
		t.Fatalf("finish failed: %v", err)
	}
	if err := os.Rename(rogue, ShardPath(base, 1, 2)); err != nil {
		t.Fatalf("failed to swap shard: %v", err)
	}

	if _, err := OpenShardedReader(base, nil); !errors.Is(err, ErrCorruption) {
		t.Errorf("expected shard manifest skew corruption, got %v", err)
	}
}

func TestShardedWriterInvalidInput(t *testing.T) {
	base := filepath.Join(t.TempDir(), "table")

	if _, err := NewShardedWriter(base, 0, shard.Mod{}, nil); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for zero shards, got %v", err)
	}
	if _, err := NewShardedWriter(base, 4, nil, nil); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for nil sharder, got %v", err)
	}
}

func TestShardedReaderMissing(t *testing.T) {
	if _, err := OpenShardedReader(filepath.Join(t.TempDir(), "absent"), nil); err == nil {
		t.Errorf("expected error for missing shard set")
	}
}
