package block

import (
	"encoding/binary"
	"fmt"

	"github.com/tabletdb/tablet/pkg/codec"
)

// Encode frames a block payload into its on-disk record:
// a 12-byte header, the stored payload (compressed when the compressor
// shrinks it, raw otherwise), and a CRC32C trailer over header‖payload.
// Index, filter and meta blocks are always stored raw.
func Encode(payload []byte, typ Type, comp *codec.Compressor) ([]byte, error) {
	stored := payload
	var flags uint8

	if typ == TypeData && comp != nil && comp.Codec() != codec.NoCompression {
		compressed, err := comp.Compress(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to compress block: %w", err)
		}
		if len(compressed) < len(payload) {
			stored = compressed
			switch comp.Codec() {
			case codec.ZstdCompression:
				flags = flagZstd
			case codec.SnappyCompression:
				flags = flagSnappy
			}
		}
	}

	record := make([]byte, HeaderSize, HeaderSize+len(stored)+TrailerSize)
	binary.BigEndian.PutUint32(record[0:4], uint32(len(stored)))
	binary.BigEndian.PutUint32(record[4:8], uint32(len(payload)))
	record[8] = byte(typ)
	record[9] = flags
	binary.BigEndian.PutUint16(record[10:12], 0)
	record = append(record, stored...)

	crc := codec.CRC32C(record)
	var trailer [TrailerSize]byte
	binary.BigEndian.PutUint32(trailer[:], crc)
	return append(record, trailer[:]...), nil
}

// Decode validates a full on-disk record and returns its plain payload.
// It checks structural bounds, the CRC32C trailer, the expected block
// type and the compression flags, decompressing when needed.
func Decode(record []byte, want Type, comp *codec.Compressor) ([]byte, error) {
	if len(record) < HeaderSize+TrailerSize {
		return nil, fmt.Errorf("%w: block truncated (%d bytes)", ErrCorruption, len(record))
	}

	body := record[:len(record)-TrailerSize]
	crcRead := binary.BigEndian.Uint32(record[len(record)-TrailerSize:])
	if crc := codec.CRC32C(body); crc != crcRead {
		return nil, fmt.Errorf("%w: block CRC mismatch: computed %08x, stored %08x",
			ErrCorruption, crc, crcRead)
	}

	storedSize := binary.BigEndian.Uint32(record[0:4])
	uncompressedSize := binary.BigEndian.Uint32(record[4:8])
	typ := Type(record[8])
	flags := record[9]

	if int(storedSize) != len(record)-HeaderSize-TrailerSize {
		return nil, fmt.Errorf("%w: stored size %d does not match record body %d",
			ErrCorruption, storedSize, len(record)-HeaderSize-TrailerSize)
	}
	if typ != want {
		return nil, fmt.Errorf("%w: unexpected block type %d, want %d",
			ErrCorruption, typ, want)
	}

	stored := record[HeaderSize : HeaderSize+int(storedSize)]

	var blockCodec codec.Compression
	switch flags {
	case 0:
		if storedSize != uncompressedSize {
			return nil, fmt.Errorf("%w: raw block sizes disagree: %d vs %d",
				ErrCorruption, storedSize, uncompressedSize)
		}
		// Copy out so callers never alias a shared read buffer
		payload := make([]byte, len(stored))
		copy(payload, stored)
		return payload, nil
	case flagZstd:
		blockCodec = codec.ZstdCompression
	case flagSnappy:
		blockCodec = codec.SnappyCompression
	default:
		return nil, fmt.Errorf("%w: unknown block flags %#02x", ErrCorruption, flags)
	}

	if comp == nil {
		return nil, fmt.Errorf("%w: compressed block but no codec available", ErrCorruption)
	}
	payload, err := comp.Decompress(stored, blockCodec, int(uncompressedSize))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruption, err)
	}
	return payload, nil
}
