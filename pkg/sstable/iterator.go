package sstable

import (
	"bytes"

	"github.com/tabletdb/tablet/pkg/sstable/block"
)

// Iterator walks a table's entries in key order across data blocks.
// Iteration is forward only; construct a fresh iterator for a new scan.
type Iterator struct {
	reader   *Reader
	blockIdx int
	blockIt  *block.Iterator
	start    []byte
	end      []byte
	err      error
	done     bool
}

// Next advances to the next entry in range, fetching data blocks
// through the cache as it crosses block boundaries.
func (it *Iterator) Next() bool {
	if it.err != nil || it.done {
		return false
	}
	for {
		if it.blockIt == nil {
			if it.blockIdx >= len(it.reader.index) {
				it.done = true
				return false
			}
			if it.end != nil && bytes.Compare(it.reader.index[it.blockIdx].FirstKey, it.end) >= 0 {
				it.done = true
				return false
			}
			br, err := it.reader.fetchBlock(it.blockIdx)
			if err != nil {
				it.err = err
				return false
			}
			it.blockIt = br.Iter(it.start, it.end)
			// Only the first block needs the start bound; later blocks
			// begin past it by construction.
			it.start = nil
		}

		if it.blockIt.Next() {
			return true
		}
		if err := it.blockIt.Err(); err != nil {
			it.err = err
			return false
		}
		// Block exhausted. If the end bound cut it short, the scan is over.
		it.blockIt = nil
		it.blockIdx++
	}
}

// Key returns the current key; valid until the next call to Next
func (it *Iterator) Key() []byte {
	if it.blockIt == nil {
		return nil
	}
	return it.blockIt.Key()
}

// Value returns the current value; valid until the next call to Next
func (it *Iterator) Value() []byte {
	if it.blockIt == nil {
		return nil
	}
	return it.blockIt.Value()
}

// Err returns the first error the iterator encountered, if any
func (it *Iterator) Err() error {
	return it.err
}
