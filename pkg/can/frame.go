package can

import (
	"time"

	ecan "go.einride.tech/can"
)

// MaxDataLength is the largest CAN FD payload.
const MaxDataLength = 64

// Frame is a captured CAN or CAN FD frame.
// Data is not limited to 8 bytes, so this does not embed einride can.Frame.
type Frame struct {
	ID         uint32
	IsExtended bool
	IsRemote   bool
	Data       []byte
	// Timestamp is the capture time (pcap CaptureInfo or receive time).
	Timestamp time.Time
}

// Length returns the payload length in bytes.
func (f *Frame) Length() int {
	if f == nil {
		return 0
	}
	return len(f.Data)
}

// BitLength returns the payload length in bits.
func (f *Frame) BitLength() int {
	return f.Length() * 8
}

// Payload returns the data bytes, nil for a nil frame.
func (f *Frame) Payload() []byte {
	if f == nil {
		return nil
	}
	return f.Data
}

// FromEinride converts an einride classic CAN frame.
func FromEinride(f ecan.Frame, ts time.Time) Frame {
	n := int(f.Length)
	if n > len(f.Data) {
		n = len(f.Data)
	}
	data := make([]byte, n)
	copy(data, f.Data[:n])
	return Frame{
		ID:         f.ID,
		IsExtended: f.IsExtended,
		IsRemote:   f.IsRemote,
		Data:       data,
		Timestamp:  ts,
	}
}

// Einride converts to an einride frame. ok is false when the payload does not fit
// a classic CAN frame.
func (f *Frame) Einride() (ecan.Frame, bool) {
	if len(f.Data) > len(ecan.Data{}) {
		return ecan.Frame{}, false
	}
	out := ecan.Frame{
		ID:         f.ID,
		Length:     uint8(len(f.Data)),
		IsRemote:   f.IsRemote,
		IsExtended: f.IsExtended,
	}
	copy(out.Data[:], f.Data)
	return out, true
}
