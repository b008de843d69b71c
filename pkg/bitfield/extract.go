// Package bitfield locates DBC signals inside CAN payloads.
//
// Bits are numbered per byte, LSB first: bit n of byte b has the global index b*8+n.
//
//	         bit
//	      7  6  5  4  3  2  1  0
//	b  0  7  6  5  4  3  2  1  0
//	y  1 15 14 13 12 11 10  9  8
//	t  2 23 22 21 20 19 18 17 16
//	e  3 31 30 29 28 27 26 25 24
//
// Intel signals count up from the start bit, each bit worth twice the previous one.
// A signal starting at 12 with 8 bits reads 12..19 and bit 12 is the LSB.
//
// Motorola signals count down inside the current byte and continue at bit 7 of the
// next byte. The same signal reads 12, 11, 10, 9, 8, 23, 22, 21 and bit 12 is the MSB.
package bitfield

import (
	"github.com/cockroachdb/errors"
)

// ByteOrder selects the addressing convention of a signal.
type ByteOrder uint8

const (
	// Intel is the little-endian bit stream (DBC "@1").
	Intel ByteOrder = iota
	// Motorola is the big-endian sawtooth (DBC "@0").
	Motorola
)

func (o ByteOrder) String() string {
	switch o {
	case Intel:
		return "intel"
	case Motorola:
		return "motorola"
	default:
		return "unknown"
	}
}

var (
	// ErrInvalidLength is returned for bit lengths outside 1..64.
	ErrInvalidLength = errors.New("bit length out of range")
	// ErrInsufficientLength is returned when the requested bits are not inside the payload.
	ErrInsufficientLength = errors.New("bit range exceeds frame length")
)

// Extract reads length bits starting at start and returns them as an unsigned magnitude.
// When signed is set the magnitude is sign extended from bit length-1 to 64 bits, so
// int64(v) yields the two's complement value.
//
// Extract never reads outside data.
func Extract(data []byte, start, length int, order ByteOrder, signed bool) (uint64, error) {
	if length < 1 || length > 64 {
		return 0, ErrInvalidLength
	}
	if start < 0 || start+length > len(data)*8 {
		return 0, ErrInsufficientLength
	}

	var (
		v   uint64
		err error
	)
	switch order {
	case Intel:
		v = extractIntel(data, start, length)
	case Motorola:
		v, err = extractMotorola(data, start, length)
	default:
		return 0, errors.Newf("unknown byte order %d", order)
	}
	if err != nil {
		return 0, err
	}

	if signed {
		v = SignExtend(v, length)
	}
	return v, nil
}

// SignExtend widens a length-bit two's complement value to 64 bits.
func SignExtend(v uint64, length int) uint64 {
	if length >= 64 || length < 1 {
		return v
	}
	if v&(uint64(1)<<(length-1)) != 0 {
		v |= ^((uint64(1) << length) - 1)
	}
	return v
}

func extractIntel(data []byte, start, length int) uint64 {
	var result uint64
	for i := 0; i < length; i++ {
		pos := start + i
		if (data[pos/8]>>(pos%8))&1 == 1 {
			result |= uint64(1) << i
		}
	}
	return result
}

// extractMotorola walks the sawtooth. The caller only checks start+length, which does not
// bound the sawtooth footprint, so every byte index is checked here.
func extractMotorola(data []byte, start, length int) (uint64, error) {
	var result uint64
	bit := start
	for i := 0; i < length; i++ {
		idx := bit / 8
		if idx >= len(data) {
			return 0, ErrInsufficientLength
		}
		result <<= 1
		if (data[idx]>>(bit%8))&1 == 1 {
			result |= 1
		}
		if bit%8 == 0 {
			bit += 15
		} else {
			bit--
		}
	}
	return result, nil
}
