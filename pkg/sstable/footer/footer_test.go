package footer

import (
	"encoding/binary"
	"errors"
	"testing"
)

func TestFooterRoundTrip(t *testing.T) {
	f := &Footer{
		IndexOffset:  4096,
		IndexLength:  512,
		FilterOffset: 2048,
		FilterLength: 131085,
		MetaOffset:   4700,
		MetaLength:   96,
	}

	data := f.Encode()
	if len(data) != Size {
		t.Fatalf("encoded footer is %d bytes, expected %d", len(data), Size)
	}

	decoded, err := Decode(data)
	if err != nil {
		t.Fatalf("failed to decode footer: %v", err)
	}
	if *decoded != *f {
		t.Errorf("round trip mismatch: %+v != %+v", decoded, f)
	}
}

func TestFooterMagicIsLastEightBytes(t *testing.T) {
	data := (&Footer{}).Encode()
	if magic := binary.BigEndian.Uint64(data[len(data)-8:]); magic != Magic {
		t.Errorf("magic not in trailing position: %#016x", magic)
	}
}

func TestFooterBadMagic(t *testing.T) {
	data := (&Footer{}).Encode()
	data[47] ^= 0xff

	if _, err := Decode(data); !errors.Is(err, ErrBadMagic) {
		t.Errorf("expected ErrBadMagic, got %v", err)
	}
}

func TestFooterTooSmall(t *testing.T) {
	if _, err := Decode(make([]byte, Size-1)); err == nil {
		t.Errorf("expected error for short footer")
	}
}
