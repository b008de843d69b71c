package dbc

import (
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/BIwashi/dbcsignal/pkg/can"
)

// ErrUnknownMessage is returned for frames whose ID is not in the database.
var ErrUnknownMessage = errors.New("unknown message id")

// DecodedSignal is one present signal of a decoded frame.
type DecodedSignal struct {
	Name string
	// Physical is the scaled value. It is zero for STRING signals.
	Physical    float64
	Text        string
	Description string
	Unit        string
	Signal      *Signal
	Timestamp   time.Time
}

// DecodedMessage holds the signals carried by one frame.
type DecodedMessage struct {
	Message *Message
	Frame   *can.Frame
	Signals []DecodedSignal
	// Unavailable names signals that should be present but could not be decoded,
	// e.g. because the frame is shorter than the definition.
	Unavailable []string
}

// Decoder decodes whole frames against a database snapshot. It is safe for concurrent
// use; Swap publishes a new snapshot without disturbing decodes in flight.
type Decoder struct {
	db atomic.Pointer[Database]
}

// NewDecoder returns a Decoder serving db.
func NewDecoder(db *Database) *Decoder {
	d := &Decoder{}
	d.db.Store(db)
	return d
}

// Database returns the current snapshot.
func (d *Decoder) Database() *Database {
	return d.db.Load()
}

// Swap replaces the snapshot and returns the previous one.
func (d *Decoder) Swap(db *Database) *Database {
	return d.db.Swap(db)
}

// Decode looks up the frame's message and decodes every signal it carries.
func (d *Decoder) Decode(f *can.Frame) (*DecodedMessage, error) {
	db := d.db.Load()
	if db == nil {
		return nil, errors.New("decoder has no database")
	}
	message, ok := db.Message(f.ID, f.IsExtended)
	if !ok {
		return nil, errors.Wrapf(ErrUnknownMessage, "0x%X", f.ID)
	}
	if f.IsRemote {
		return nil, errors.Newf("remote frame 0x%X carries no data", f.ID)
	}

	out := &DecodedMessage{
		Message: message,
		Frame:   f,
		Signals: make([]DecodedSignal, 0, len(message.Signals)),
	}
	for i, s := range message.Signals {
		ds, err := decodeSignal(message, f, RefAt(i), s)
		switch {
		case err == nil:
			out.Signals = append(out.Signals, ds)
		case errors.Is(err, ErrMultiplexMismatch):
			// not carried by this frame
		default:
			out.Unavailable = append(out.Unavailable, s.Name)
		}
	}
	return out, nil
}

func decodeSignal(m *Message, f *can.Frame, ref SignalRef, s *Signal) (DecodedSignal, error) {
	ds := DecodedSignal{
		Name:      s.Name,
		Unit:      s.Unit,
		Signal:    s,
		Timestamp: f.Timestamp,
	}
	text, err := m.DecodeAsText(f, ref)
	if err != nil {
		return ds, err
	}
	ds.Text = text
	if s.Type == String {
		return ds, nil
	}

	v, err := m.DecodeAsDouble(f, ref)
	if err != nil {
		return ds, err
	}
	ds.Physical = v
	if desc, ok := s.Describe(v); ok {
		ds.Description = desc
	}
	return ds, nil
}
