package dbc

import (
	"github.com/cockroachdb/errors"

	"github.com/BIwashi/dbcsignal/pkg/can"
)

// resolveMultiplex returns nil when s is present in f.
//
// The multiplexor is decoded with the integer path and is itself subject to this check,
// so nested multiplexors are followed. The chain can not be longer than the number of
// signals in the message; a longer one is a cycle.
func (m *Message) resolveMultiplex(f *can.Frame, s *Signal, depth int) error {
	if !s.IsMultiplexed {
		return nil
	}
	if depth >= len(m.Signals) {
		return ErrMultiplexUnavailable
	}

	ref := s.Multiplexor
	if ref == NoSignal {
		ref = m.Multiplexor
	}
	if _, ok := m.At(ref); !ok {
		return ErrMultiplexUnavailable
	}

	v, err := m.decodeInt(f, ref, depth+1)
	if err != nil {
		if errors.Is(err, ErrMultiplexMismatch) {
			return err
		}
		return ErrMultiplexUnavailable
	}
	if v != s.MultiplexValue {
		return ErrMultiplexMismatch
	}
	return nil
}

// Present reports whether the signal is carried by f.
func (m *Message) Present(f *can.Frame, ref SignalRef) bool {
	s, ok := m.At(ref)
	if !ok {
		return false
	}
	return m.resolveMultiplex(f, s, 0) == nil
}
