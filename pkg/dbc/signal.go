package dbc

import (
	"math"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/BIwashi/dbcsignal/pkg/bitfield"
	"github.com/BIwashi/dbcsignal/pkg/can"
)

// Decode failures. They are routine (most frames do not carry most multiplexed
// signals), so they are returned unwrapped and compared with errors.Is.
var (
	// ErrMultiplexMismatch means the multiplexor selects another signal set. The signal
	// is absent from this frame; it is not a fault.
	ErrMultiplexMismatch = errors.New("signal not present in this multiplexed frame")
	// ErrMultiplexUnavailable means the signal is multiplexed but no multiplexor can be decoded.
	ErrMultiplexUnavailable = errors.New("multiplexor unavailable")
	// ErrInsufficientFrameLength means the signal's bits are not inside the frame.
	ErrInsufficientFrameLength = bitfield.ErrInsufficientLength
	// ErrUnsupportedConversion means the entry point cannot represent the signal's type.
	ErrUnsupportedConversion = errors.New("unsupported conversion for signal type")
	// ErrUnknownSignal means the handle does not refer to a signal of the message.
	ErrUnknownSignal = errors.New("unknown signal")
)

// DecodeAsText renders the signal as "<name>: <value><unit>", or "<name>: <description>"
// when the value table has an entry for the value. STRING signals return the raw
// characters without prefix.
func (m *Message) DecodeAsText(f *can.Frame, ref SignalRef) (string, error) {
	s, ok := m.At(ref)
	if !ok {
		return "", ErrUnknownSignal
	}
	if err := m.resolveMultiplex(f, s, 0); err != nil {
		return "", err
	}
	if s.Type == String {
		return s.text(f.Payload())
	}

	v, err := s.physical(f.Payload())
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(s.Name)
	b.WriteString(": ")
	if desc, ok := s.Describe(v); ok {
		b.WriteString(desc)
	} else {
		b.WriteString(FormatValue(v))
		b.WriteString(s.Unit)
	}
	return b.String(), nil
}

// DecodeAsInt returns the scaled value truncated to 32 bits. Only integer signals
// are accepted.
func (m *Message) DecodeAsInt(f *can.Frame, ref SignalRef) (int32, error) {
	return m.decodeInt(f, ref, 0)
}

func (m *Message) decodeInt(f *can.Frame, ref SignalRef, depth int) (int32, error) {
	s, ok := m.At(ref)
	if !ok {
		return 0, ErrUnknownSignal
	}
	switch s.Type {
	case String, SingleFloat, DoubleFloat:
		return 0, ErrUnsupportedConversion
	}
	if err := m.resolveMultiplex(f, s, depth); err != nil {
		return 0, err
	}

	v, err := s.scaledInteger(f.Payload())
	if err != nil {
		return 0, err
	}
	return int32(int64(v)), nil
}

// DecodeAsDouble returns the scaled value of any non STRING signal.
func (m *Message) DecodeAsDouble(f *can.Frame, ref SignalRef) (float64, error) {
	s, ok := m.At(ref)
	if !ok {
		return 0, ErrUnknownSignal
	}
	if s.Type == String {
		return 0, ErrUnsupportedConversion
	}
	if err := m.resolveMultiplex(f, s, 0); err != nil {
		return 0, err
	}
	return s.physical(f.Payload())
}

// FormatValue formats a physical value with six significant digits.
func FormatValue(v float64) string {
	return strconv.FormatFloat(v, 'g', 6, 64)
}

func (s *Signal) physical(data []byte) (float64, error) {
	switch s.Type {
	case SignedInt, UnsignedInt:
		return s.scaledInteger(data)
	case SingleFloat:
		if s.StartBit+32 > len(data)*8 {
			return 0, ErrInsufficientFrameLength
		}
		raw, err := bitfield.Extract(data, s.StartBit, 32, s.ByteOrder, false)
		if err != nil {
			return 0, err
		}
		return float64(math.Float32frombits(uint32(raw)))*s.Scale + s.Offset, nil
	case DoubleFloat:
		// Double signals are read from the whole 8 byte payload; StartBit and
		// ByteOrder are not consulted.
		if len(data) < 8 {
			return 0, ErrInsufficientFrameLength
		}
		raw, err := bitfield.Extract(data, 0, 64, bitfield.Intel, false)
		if err != nil {
			return 0, err
		}
		return math.Float64frombits(raw)*s.Scale + s.Offset, nil
	default:
		return 0, ErrUnsupportedConversion
	}
}

func (s *Signal) scaledInteger(data []byte) (float64, error) {
	if s.StartBit+s.BitLength > len(data)*8 {
		return 0, ErrInsufficientFrameLength
	}
	signed := s.Type == SignedInt
	raw, err := bitfield.Extract(data, s.StartBit, s.BitLength, s.ByteOrder, signed)
	if err != nil {
		return 0, err
	}
	var v float64
	if signed {
		v = float64(int64(raw))
	} else {
		v = float64(raw)
	}
	return v*s.Scale + s.Offset, nil
}

func (s *Signal) text(data []byte) (string, error) {
	if s.BitLength%8 != 0 {
		return "", ErrUnsupportedConversion
	}
	start := s.StartBit / 8
	n := s.BitLength / 8
	if s.StartBit < 0 || start+n > len(data) {
		return "", ErrInsufficientFrameLength
	}
	return string(data[start : start+n]), nil
}
