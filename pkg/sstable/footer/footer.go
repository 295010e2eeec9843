package footer

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// Size is the fixed size of the footer in bytes. The four bytes
	// before the magic are reserved padding, written as zero.
	Size = 48
	// Magic is the trailer identifying a valid table file ("LBATSTLA")
	Magic = uint64(0x415453535441424C)
)

// ErrBadMagic indicates the trailing bytes are not a table footer
var ErrBadMagic = errors.New("bad footer magic")

// Footer records the extents of the index, filter and meta blocks.
// It is always the last Size bytes of a table file, with the magic as
// the final eight bytes.
type Footer struct {
	IndexOffset  uint64
	IndexLength  uint32
	FilterOffset uint64
	FilterLength uint32
	MetaOffset   uint64
	MetaLength   uint32
}

// Encode serializes the footer to its fixed big-endian layout
func (f *Footer) Encode() []byte {
	out := make([]byte, Size)
	binary.BigEndian.PutUint64(out[0:8], f.IndexOffset)
	binary.BigEndian.PutUint32(out[8:12], f.IndexLength)
	binary.BigEndian.PutUint64(out[12:20], f.FilterOffset)
	binary.BigEndian.PutUint32(out[20:24], f.FilterLength)
	binary.BigEndian.PutUint64(out[24:32], f.MetaOffset)
	binary.BigEndian.PutUint32(out[32:36], f.MetaLength)
	binary.BigEndian.PutUint64(out[40:48], Magic)
	return out
}

// Decode parses a footer from the last Size bytes of a file
func Decode(data []byte) (*Footer, error) {
	if len(data) < Size {
		return nil, fmt.Errorf("footer data too small: %d bytes, expected %d",
			len(data), Size)
	}
	if magic := binary.BigEndian.Uint64(data[40:48]); magic != Magic {
		return nil, fmt.Errorf("%w: %#016x, expected %#016x", ErrBadMagic, magic, Magic)
	}
	return &Footer{
		IndexOffset:  binary.BigEndian.Uint64(data[0:8]),
		IndexLength:  binary.BigEndian.Uint32(data[8:12]),
		FilterOffset: binary.BigEndian.Uint64(data[12:20]),
		FilterLength: binary.BigEndian.Uint32(data[20:24]),
		MetaOffset:   binary.BigEndian.Uint64(data[24:32]),
		MetaLength:   binary.BigEndian.Uint32(data[32:36]),
	}, nil
}
