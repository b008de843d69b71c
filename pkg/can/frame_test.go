package can

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	ecan "go.einride.tech/can"
)

func TestFromEinride(t *testing.T) {
	ts := time.Unix(1700000000, 0)
	f := FromEinride(ecan.Frame{
		ID:         0x18FEF100,
		Length:     3,
		Data:       ecan.Data{0x01, 0x02, 0x03, 0xFF},
		IsExtended: true,
	}, ts)

	assert.EqualValues(t, 0x18FEF100, f.ID)
	assert.True(t, f.IsExtended)
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, f.Data)
	assert.Equal(t, 24, f.BitLength())
	assert.Equal(t, ts, f.Timestamp)
}

func TestFrameEinride(t *testing.T) {
	f := &Frame{ID: 0x123, Data: []byte{0xAA, 0xBB}}
	ef, ok := f.Einride()
	require.True(t, ok)
	assert.EqualValues(t, 2, ef.Length)
	assert.Equal(t, byte(0xBB), ef.Data[1])

	fd := &Frame{ID: 0x123, Data: make([]byte, 12)}
	_, ok = fd.Einride()
	assert.False(t, ok)
}

func TestNilFrame(t *testing.T) {
	var f *Frame
	assert.Zero(t, f.Length())
	assert.Nil(t, f.Payload())
}
