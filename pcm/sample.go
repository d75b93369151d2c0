// Package pcm defines the typed PCM sample formats carried over the wire:
// their byte size, signedness, silence value, and little-endian
// byte<->sample conversion.
package pcm

import (
	"encoding/binary"
	"fmt"
	"math"
)

// SampleType enumerates the interleaved PCM sample encodings this transport
// understands. All samples are packed, little-endian on the wire.
type SampleType uint8

const (
	U8 SampleType = iota
	U16
	U24
	U32
	U64
	I8
	I16
	I24
	I32
	I64
	IEEF32
	IEEF64
)

func (t SampleType) String() string {
	switch t {
	case U8:
		return "U8"
	case U16:
		return "U16"
	case U24:
		return "U24"
	case U32:
		return "U32"
	case U64:
		return "U64"
	case I8:
		return "I8"
	case I16:
		return "I16"
	case I24:
		return "I24"
	case I32:
		return "I32"
	case I64:
		return "I64"
	case IEEF32:
		return "IEEF32"
	case IEEF64:
		return "IEEF64"
	default:
		return fmt.Sprintf("SampleType(%d)", uint8(t))
	}
}

// Size returns the number of bytes a single sample of this type occupies.
func (t SampleType) Size() int {
	switch t {
	case U8, I8:
		return 1
	case U16, I16:
		return 2
	case U24, I24:
		return 3
	case U32, I32, IEEF32:
		return 4
	case U64, I64, IEEF64:
		return 8
	default:
		panic(fmt.Sprintf("pcm: unknown sample type %v", t))
	}
}

// IsSigned reports whether the format's values are signed, including
// floating-point types.
func (t SampleType) IsSigned() bool {
	switch t {
	case I8, I16, I24, I32, I64, IEEF32, IEEF64:
		return true
	default:
		return false
	}
}

// IsFloat reports whether the format is an IEEE floating-point encoding.
func (t SampleType) IsFloat() bool {
	return t == IEEF32 || t == IEEF64
}

// Silence returns the little-endian byte pattern representing silence
// (zero amplitude) for this sample type. Unsigned formats are biased to
// their midpoint.
func (t SampleType) Silence() []byte {
	buf := make([]byte, t.Size())
	if !t.IsSigned() {
		// unsigned PCM represents 0 amplitude at the midpoint of its range
		switch t {
		case U8:
			buf[0] = 0x80
		case U16:
			binary.LittleEndian.PutUint16(buf, 0x8000)
		case U24:
			buf[2] = 0x80
		case U32:
			binary.LittleEndian.PutUint32(buf, 0x80000000)
		case U64:
			binary.LittleEndian.PutUint64(buf, 0x8000000000000000)
		}
	}
	return buf
}

// ToBytesInt64 writes the little-endian representation of an integer
// sample (signed or unsigned, carried in an int64) into buf[0:t.Size()].
// buf must be at least t.Size() bytes long. It is the caller's
// responsibility to pass a value consistent with t's signedness and width
// (see FromBytesInt64 for the inverse).
func ToBytesInt64(t SampleType, v int64, buf []byte) {
	switch t {
	case U8:
		buf[0] = byte(uint64(v))
	case U16:
		binary.LittleEndian.PutUint16(buf, uint16(v))
	case U24:
		u := uint32(v)
		buf[0] = byte(u)
		buf[1] = byte(u >> 8)
		buf[2] = byte(u >> 16)
	case U32:
		binary.LittleEndian.PutUint32(buf, uint32(v))
	case U64:
		binary.LittleEndian.PutUint64(buf, uint64(v))
	case I8:
		buf[0] = byte(v)
	case I16:
		binary.LittleEndian.PutUint16(buf, uint16(int16(v)))
	case I24:
		u := uint32(int32(v))
		buf[0] = byte(u)
		buf[1] = byte(u >> 8)
		buf[2] = byte(u >> 16)
	case I32:
		binary.LittleEndian.PutUint32(buf, uint32(int32(v)))
	case I64:
		binary.LittleEndian.PutUint64(buf, uint64(v))
	default:
		panic(fmt.Sprintf("pcm: %v is not an integer sample type", t))
	}
}

// FromBytesInt64 is the inverse of ToBytesInt64, sign- or zero-extending
// into an int64 as appropriate for t.
func FromBytesInt64(t SampleType, buf []byte) int64 {
	switch t {
	case U8:
		return int64(buf[0])
	case U16:
		return int64(binary.LittleEndian.Uint16(buf))
	case U24:
		return int64(uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16)
	case U32:
		return int64(binary.LittleEndian.Uint32(buf))
	case U64:
		return int64(binary.LittleEndian.Uint64(buf))
	case I8:
		return int64(int8(buf[0]))
	case I16:
		return int64(int16(binary.LittleEndian.Uint16(buf)))
	case I24:
		u := uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16
		// sign-extend bit 23
		if u&0x800000 != 0 {
			u |= 0xFF000000
		}
		return int64(int32(u))
	case I32:
		return int64(int32(binary.LittleEndian.Uint32(buf)))
	case I64:
		return int64(binary.LittleEndian.Uint64(buf))
	default:
		panic(fmt.Sprintf("pcm: %v is not an integer sample type", t))
	}
}

// ToBytesFloat writes the little-endian IEEE-754 representation of v into
// buf. t must be IEEF32 or IEEF64.
func ToBytesFloat(t SampleType, v float64, buf []byte) {
	switch t {
	case IEEF32:
		binary.LittleEndian.PutUint32(buf, math.Float32bits(float32(v)))
	case IEEF64:
		binary.LittleEndian.PutUint64(buf, math.Float64bits(v))
	default:
		panic(fmt.Sprintf("pcm: %v is not a float sample type", t))
	}
}

// FromBytesFloat is the inverse of ToBytesFloat.
func FromBytesFloat(t SampleType, buf []byte) float64 {
	switch t {
	case IEEF32:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(buf)))
	case IEEF64:
		return math.Float64frombits(binary.LittleEndian.Uint64(buf))
	default:
		panic(fmt.Sprintf("pcm: %v is not a float sample type", t))
	}
}
