package dbc

import (
	"encoding/binary"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BIwashi/dbcsignal/pkg/bitfield"
	"github.com/BIwashi/dbcsignal/pkg/can"
)

func frame(data ...byte) *can.Frame {
	return &can.Frame{ID: 0x100, Data: data}
}

func single(s *Signal) (*Message, SignalRef) {
	return &Message{ID: 0x100, Name: "Test", Length: 8, Signals: []*Signal{s}}, RefAt(0)
}

func TestDecodeLinearScaling(t *testing.T) {
	m, ref := single(&Signal{
		Name:      "Speed",
		BitLength: 8,
		Type:      UnsignedInt,
		Scale:     0.5,
		Offset:    2,
		Unit:      "km/h",
	})
	f := frame(10)

	d, err := m.DecodeAsDouble(f, ref)
	require.NoError(t, err)
	assert.InDelta(t, 7.0, d, 1e-9)

	i, err := m.DecodeAsInt(f, ref)
	require.NoError(t, err)
	assert.EqualValues(t, 7, i)

	text, err := m.DecodeAsText(f, ref)
	require.NoError(t, err)
	assert.Equal(t, "Speed: 7km/h", text)
}

func TestDecodeAsIntTruncates(t *testing.T) {
	m, ref := single(&Signal{Name: "Torque", BitLength: 8, Type: SignedInt, Scale: 0.5})

	v, err := m.DecodeAsInt(frame(5), ref)
	require.NoError(t, err)
	assert.EqualValues(t, 2, v)

	v, err = m.DecodeAsInt(frame(0xFB), ref) // -5
	require.NoError(t, err)
	assert.EqualValues(t, -2, v)
}

func TestDecodeSignedness(t *testing.T) {
	signed, sref := single(&Signal{Name: "S", BitLength: 8, Type: SignedInt, Scale: 1})
	unsigned, uref := single(&Signal{Name: "U", BitLength: 8, Type: UnsignedInt, Scale: 1})
	f := frame(0xF6)

	s, err := signed.DecodeAsInt(f, sref)
	require.NoError(t, err)
	assert.EqualValues(t, -10, s)

	u, err := unsigned.DecodeAsInt(f, uref)
	require.NoError(t, err)
	assert.EqualValues(t, 246, u)
}

func TestDecodeValueTable(t *testing.T) {
	m, ref := single(&Signal{
		Name:      "Lamp",
		BitLength: 8,
		Type:      UnsignedInt,
		Scale:     1,
		Unit:      "",
		Values:    []ValueDescription{{0, "OFF"}, {1, "ON"}},
	})

	text, err := m.DecodeAsText(frame(1), ref)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(text, "ON"))
	assert.Equal(t, "Lamp: ON", text)

	text, err = m.DecodeAsText(frame(2), ref)
	require.NoError(t, err)
	assert.Equal(t, "Lamp: 2", text)
}

func TestDecodeValueTableUsesTruncatedScaledValue(t *testing.T) {
	m, ref := single(&Signal{
		Name:      "Level",
		BitLength: 8,
		Type:      UnsignedInt,
		Scale:     0.1,
		Values:    []ValueDescription{{1, "LOW"}},
	})

	text, err := m.DecodeAsText(frame(17), ref)
	require.NoError(t, err)
	assert.Equal(t, "Level: LOW", text)
}

func TestDecodeSingleFloat(t *testing.T) {
	m, ref := single(&Signal{Name: "F", StartBit: 0, BitLength: 32, Type: SingleFloat, Scale: 1})
	f := frame(0x00, 0x00, 0x80, 0x3F)

	v, err := m.DecodeAsDouble(f, ref)
	require.NoError(t, err)
	assert.Equal(t, 1.0, v)

	text, err := m.DecodeAsText(f, ref)
	require.NoError(t, err)
	assert.Equal(t, "F: 1", text)

	_, err = m.DecodeAsInt(f, ref)
	assert.ErrorIs(t, err, ErrUnsupportedConversion)

	_, err = m.DecodeAsDouble(frame(0x00, 0x80, 0x3F), ref)
	assert.ErrorIs(t, err, ErrInsufficientFrameLength)
}

func TestDecodeSingleFloatMotorola(t *testing.T) {
	m, ref := single(&Signal{
		Name:      "F",
		StartBit:  7,
		BitLength: 32,
		ByteOrder: bitfield.Motorola,
		Type:      SingleFloat,
		Scale:     2,
		Offset:    -1,
	})

	v, err := m.DecodeAsDouble(frame(0x3F, 0x80, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00), ref)
	require.NoError(t, err)
	assert.Equal(t, 1.0, v)
}

func TestDecodeDoubleFloatUsesWholeFrame(t *testing.T) {
	m, ref := single(&Signal{
		Name:      "D",
		StartBit:  16,
		BitLength: 64,
		ByteOrder: bitfield.Motorola,
		Type:      DoubleFloat,
		Scale:     2,
		Offset:    1,
	})
	data := make([]byte, 8)
	binary.LittleEndian.PutUint64(data, math.Float64bits(2.5))

	v, err := m.DecodeAsDouble(frame(data...), ref)
	require.NoError(t, err)
	assert.Equal(t, 6.0, v)

	_, err = m.DecodeAsDouble(frame(data[:7]...), ref)
	assert.ErrorIs(t, err, ErrInsufficientFrameLength)

	_, err = m.DecodeAsInt(frame(data...), ref)
	assert.ErrorIs(t, err, ErrUnsupportedConversion)
}

func TestDecodeShortFrame(t *testing.T) {
	m, ref := single(&Signal{Name: "Wide", StartBit: 20, BitLength: 16, Type: UnsignedInt, Scale: 1})
	f := frame(0xFF, 0xFF, 0xFF)

	_, err := m.DecodeAsInt(f, ref)
	assert.ErrorIs(t, err, ErrInsufficientFrameLength)
	_, err = m.DecodeAsDouble(f, ref)
	assert.ErrorIs(t, err, ErrInsufficientFrameLength)
	_, err = m.DecodeAsText(f, ref)
	assert.ErrorIs(t, err, ErrInsufficientFrameLength)

	_, err = m.DecodeAsInt(nil, ref)
	assert.ErrorIs(t, err, ErrInsufficientFrameLength)
}

func TestDecodeString(t *testing.T) {
	m, ref := single(&Signal{Name: "VIN", StartBit: 8, BitLength: 24, Type: String})
	f := frame('x', 'A', 'B', 'C')

	text, err := m.DecodeAsText(f, ref)
	require.NoError(t, err)
	assert.Equal(t, "ABC", text)

	_, err = m.DecodeAsInt(f, ref)
	assert.ErrorIs(t, err, ErrUnsupportedConversion)
	_, err = m.DecodeAsDouble(f, ref)
	assert.ErrorIs(t, err, ErrUnsupportedConversion)

	_, err = m.DecodeAsText(frame('x', 'A'), ref)
	assert.ErrorIs(t, err, ErrInsufficientFrameLength)

	odd, oref := single(&Signal{Name: "Odd", BitLength: 12, Type: String})
	_, err = odd.DecodeAsText(f, oref)
	assert.ErrorIs(t, err, ErrUnsupportedConversion)
}

func TestDecodeUnknownSignal(t *testing.T) {
	m, _ := single(&Signal{Name: "A", BitLength: 8, Scale: 1})

	_, err := m.DecodeAsInt(frame(1), NoSignal)
	assert.ErrorIs(t, err, ErrUnknownSignal)
	_, err = m.DecodeAsDouble(frame(1), RefAt(3))
	assert.ErrorIs(t, err, ErrUnknownSignal)
	_, err = m.DecodeAsText(frame(1), RefAt(-4))
	assert.ErrorIs(t, err, ErrUnknownSignal)
}

func TestSignalRef(t *testing.T) {
	var zero SignalRef
	_, ok := zero.Index()
	assert.False(t, ok)

	i, ok := RefAt(2).Index()
	assert.True(t, ok)
	assert.Equal(t, 2, i)

	m := &Message{Signals: []*Signal{{Name: "A"}, {Name: "B"}}}
	ref, ok := m.Signal("B")
	require.True(t, ok)
	s, ok := m.At(ref)
	require.True(t, ok)
	assert.Equal(t, "B", s.Name)

	_, ok = m.Signal("C")
	assert.False(t, ok)
}

func TestSignalInRange(t *testing.T) {
	s := &Signal{Min: -10, Max: 10}
	assert.True(t, s.InRange(10))
	assert.False(t, s.InRange(10.5))
	assert.True(t, (&Signal{}).InRange(1e9))
}
