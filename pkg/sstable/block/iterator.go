package block

import (
	"bytes"
	"fmt"

	"github.com/tabletdb/tablet/pkg/codec"
)

// Iterator walks block entries forward, reconstructing prefix-compressed
// keys as it goes. Iteration is forward only; callers needing a new
// scan construct a fresh iterator.
type Iterator struct {
	reader *Reader
	pos    int
	key    []byte
	value  []byte
	start  []byte // skip keys below this bound
	end    []byte // stop at keys >= this bound
	err    error
	done   bool
}

// Next advances to the next entry in range. It returns false at the
// end of the block, past the end bound, or on a decode error.
func (it *Iterator) Next() bool {
	if it.err != nil || it.done {
		return false
	}
	for {
		if it.pos >= len(it.reader.data) {
			it.done = true
			return false
		}
		if !it.decodeEntry() {
			return false
		}
		if it.start != nil && bytes.Compare(it.key, it.start) < 0 {
			continue
		}
		it.start = nil
		if it.end != nil && bytes.Compare(it.key, it.end) >= 0 {
			it.done = true
			return false
		}
		return true
	}
}

// Key returns the current key. The slice is owned by the iterator and
// is overwritten by the next call to Next.
func (it *Iterator) Key() []byte {
	return it.key
}

// Value returns the current value. Valid until the next call to Next.
func (it *Iterator) Value() []byte {
	return it.value
}

// Err returns the first decode error encountered, if any
func (it *Iterator) Err() error {
	return it.err
}

func (it *Iterator) decodeEntry() bool {
	data := it.reader.data
	pos := it.pos

	shared, n, err := codec.Uvarint32(data[pos:])
	if err != nil {
		it.fail(err)
		return false
	}
	pos += n
	nonShared, n, err := codec.Uvarint32(data[pos:])
	if err != nil {
		it.fail(err)
		return false
	}
	pos += n
	valueLen, n, err := codec.Uvarint32(data[pos:])
	if err != nil {
		it.fail(err)
		return false
	}
	pos += n

	if int(shared) > len(it.key) {
		it.err = fmt.Errorf("%w: shared prefix %d exceeds previous key length %d",
			ErrCorruption, shared, len(it.key))
		return false
	}
	if pos+int(nonShared)+int(valueLen) > len(data) {
		it.err = fmt.Errorf("%w: entry overruns block", ErrCorruption)
		return false
	}

	it.key = append(it.key[:shared], data[pos:pos+int(nonShared)]...)
	pos += int(nonShared)
	it.value = data[pos : pos+int(valueLen)]
	it.pos = pos + int(valueLen)
	return true
}

func (it *Iterator) fail(err error) {
	it.err = fmt.Errorf("%w: %v", ErrCorruption, err)
}
