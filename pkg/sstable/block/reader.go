package block

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/tabletdb/tablet/pkg/codec"
)

// Reader parses a plain block payload (entries, restart array, count)
// whose record framing has already been validated by Decode.
type Reader struct {
	data     []byte // entry region only
	restarts []uint32
}

// NewReader parses a block payload into a Reader
func NewReader(payload []byte) (*Reader, error) {
	if len(payload) < 4 {
		return nil, fmt.Errorf("%w: block truncated (%d bytes)", ErrCorruption, len(payload))
	}

	numRestarts := binary.BigEndian.Uint32(payload[len(payload)-4:])
	restartArrayOffset := len(payload) - 4 - 4*int(numRestarts)
	if restartArrayOffset < 0 {
		return nil, fmt.Errorf("%w: restart count %d exceeds block size %d",
			ErrCorruption, numRestarts, len(payload))
	}

	restarts := make([]uint32, numRestarts)
	for i := range restarts {
		restarts[i] = binary.BigEndian.Uint32(payload[restartArrayOffset+4*i:])
		if int(restarts[i]) > restartArrayOffset {
			return nil, fmt.Errorf("%w: restart offset %d beyond entry region %d",
				ErrCorruption, restarts[i], restartArrayOffset)
		}
	}

	return &Reader{
		data:     payload[:restartArrayOffset],
		restarts: restarts,
	}, nil
}

// restartKey decodes the first key of the restart region starting at off.
// The first entry of a restart region always has shared = 0.
func (r *Reader) restartKey(off uint32) ([]byte, error) {
	pos := int(off)
	shared, n, err := codec.Uvarint32(r.data[pos:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruption, err)
	}
	pos += n
	if shared != 0 {
		return nil, fmt.Errorf("%w: restart entry has shared prefix %d", ErrCorruption, shared)
	}
	nonShared, n, err := codec.Uvarint32(r.data[pos:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruption, err)
	}
	pos += n
	_, n, err = codec.Uvarint32(r.data[pos:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruption, err)
	}
	pos += n
	if pos+int(nonShared) > len(r.data) {
		return nil, fmt.Errorf("%w: restart key overruns block", ErrCorruption)
	}
	return r.data[pos : pos+int(nonShared)], nil
}

// Get returns the value for target, or (nil, false) if the block does
// not contain it. It binary-searches the restart points on their first
// keys, then scans forward within the chosen restart region.
func (r *Reader) Get(target []byte) ([]byte, bool, error) {
	if len(r.restarts) == 0 {
		return nil, false, nil
	}

	// Greatest restart whose first key <= target
	lo, hi := 0, len(r.restarts)-1
	var searchErr error
	idx := -1
	for lo <= hi {
		mid := (lo + hi) / 2
		key, err := r.restartKey(r.restarts[mid])
		if err != nil {
			searchErr = err
			break
		}
		if bytes.Compare(key, target) <= 0 {
			idx = mid
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}
	if searchErr != nil {
		return nil, false, searchErr
	}
	if idx < 0 {
		return nil, false, nil
	}

	it := r.iterAt(r.restarts[idx])
	for it.Next() {
		switch cmp := bytes.Compare(it.Key(), target); {
		case cmp == 0:
			return it.Value(), true, nil
		case cmp > 0:
			return nil, false, nil
		}
	}
	return nil, false, it.Err()
}

// Iter returns a forward iterator over entries with keys in
// [start, end); a nil bound leaves that end open.
func (r *Reader) Iter(start, end []byte) *Iterator {
	it := r.iterAt(0)
	it.end = end

	if len(start) > 0 && len(r.restarts) > 0 {
		// Start from the greatest restart with firstKey <= start so the
		// scan skips ahead of unrelated restart regions.
		lo, hi, idx := 0, len(r.restarts)-1, 0
		for lo <= hi {
			mid := (lo + hi) / 2
			key, err := r.restartKey(r.restarts[mid])
			if err != nil {
				it.err = err
				return it
			}
			if bytes.Compare(key, start) <= 0 {
				idx = mid
				lo = mid + 1
			} else {
				hi = mid - 1
			}
		}
		it.pos = int(r.restarts[idx])
		it.start = start
	}
	return it
}

func (r *Reader) iterAt(off uint32) *Iterator {
	return &Iterator{reader: r, pos: int(off)}
}
