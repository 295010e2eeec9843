package sstable

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// creatorTag is written into every meta block
const creatorTag = "tabletdb/tablet v1"

// Metadata describes a table as recorded in its meta block
type Metadata struct {
	// Entries is the total number of key/value pairs written
	Entries uint64
	// UniqueKeys is the number of distinct keys written
	UniqueKeys uint64
	// NumShards is the shard count of the logical table this file belongs to
	NumShards int
	// SharderName identifies the sharding function ("" for unsharded tables)
	SharderName string
	// SharderConfig is the sharding function's serialized configuration
	SharderConfig []byte
	// Compression is the codec name the writer was configured with
	Compression string
	// CreatedBy is the creator tag
	CreatedBy string
	// Path is the file this metadata was read from (not stored on disk)
	Path string
}

// encodeMeta renders the meta block payload: one key=value pair per
// line, binary values hex encoded.
func encodeMeta(m *Metadata) []byte {
	var sb strings.Builder
	fmt.Fprintf(&sb, "creator=%s\n", creatorTag)
	fmt.Fprintf(&sb, "entries=%d\n", m.Entries)
	fmt.Fprintf(&sb, "unique_keys=%d\n", m.UniqueKeys)
	fmt.Fprintf(&sb, "num_shards=%d\n", m.NumShards)
	fmt.Fprintf(&sb, "sharder=%s\n", m.SharderName)
	fmt.Fprintf(&sb, "sharder_config=%s\n", hex.EncodeToString(m.SharderConfig))
	fmt.Fprintf(&sb, "compression=%s\n", m.Compression)
	return []byte(sb.String())
}

// parseMeta parses a meta block payload. Unknown keys are ignored so
// newer writers can add fields without breaking older readers.
func parseMeta(payload []byte) (*Metadata, error) {
	m := &Metadata{NumShards: 1}
	for _, line := range strings.Split(string(payload), "\n") {
		if line == "" {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("%w: malformed meta line %q", ErrCorruption, line)
		}
		var err error
		switch k {
		case "creator":
			m.CreatedBy = v
		case "entries":
			m.Entries, err = strconv.ParseUint(v, 10, 64)
		case "unique_keys":
			m.UniqueKeys, err = strconv.ParseUint(v, 10, 64)
		case "num_shards":
			m.NumShards, err = strconv.Atoi(v)
		case "sharder":
			m.SharderName = v
		case "sharder_config":
			m.SharderConfig, err = hex.DecodeString(v)
		case "compression":
			m.Compression = v
		}
		if err != nil {
			return nil, fmt.Errorf("%w: bad meta field %s=%q: %v", ErrCorruption, k, v, err)
		}
	}
	return m, nil
}
