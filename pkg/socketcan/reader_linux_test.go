//go:build linux

package socketcan

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	ecan "go.einride.tech/can"
	"go.einride.tech/can/pkg/socketcan"

	"github.com/BIwashi/dbcsignal/pkg/can"
)

func pipeReader(t *testing.T) (*Reader, net.Conn) {
	t.Helper()
	local, remote := net.Pipe()
	t.Cleanup(func() {
		_ = local.Close()
		_ = remote.Close()
	})
	return &Reader{conn: local, recv: socketcan.NewReceiver(local)}, remote
}

// errorFrame is a raw 16 byte can_frame with the error flag set.
func errorFrame() []byte {
	b := make([]byte, 16)
	binary.LittleEndian.PutUint32(b, 0x20000000|0x04)
	b[4] = 8
	return b
}

func TestReaderRun(t *testing.T) {
	r, remote := pipeReader(t)

	go func() {
		defer remote.Close()
		ctx := context.Background()
		tx := socketcan.NewTransmitter(remote)
		_ = tx.TransmitFrame(ctx, ecan.Frame{ID: 0x100, Length: 2, Data: ecan.Data{20, 3}})
		_, _ = remote.Write(errorFrame())
		_ = tx.TransmitFrame(ctx, ecan.Frame{ID: 0x18FEF100, IsExtended: true, Length: 1, Data: ecan.Data{7}})
	}()

	var got []can.Frame
	err := r.Run(context.Background(), func(f *can.Frame) error {
		got = append(got, *f)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, uint32(0x100), got[0].ID)
	assert.False(t, got[0].IsExtended)
	assert.Equal(t, []byte{20, 3}, got[0].Data)

	assert.Equal(t, uint32(0x18FEF100), got[1].ID)
	assert.True(t, got[1].IsExtended)
	assert.Equal(t, []byte{7}, got[1].Data)
	assert.False(t, got[1].Timestamp.IsZero())
}

func TestReaderRunCallbackError(t *testing.T) {
	r, remote := pipeReader(t)
	go func() {
		tx := socketcan.NewTransmitter(remote)
		_ = tx.TransmitFrame(context.Background(), ecan.Frame{ID: 0x100, Length: 1, Data: ecan.Data{1}})
	}()

	stop := errors.New("stop")
	err := r.Run(context.Background(), func(*can.Frame) error {
		return stop
	})
	assert.ErrorIs(t, err, stop)
}

func TestReaderRunCancel(t *testing.T) {
	r, _ := pipeReader(t)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(10*time.Millisecond, cancel)

	err := r.Run(ctx, func(*can.Frame) error {
		t.Fatal("no frame expected")
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReaderClose(t *testing.T) {
	assert.NoError(t, (&Reader{}).Close())

	r, _ := pipeReader(t)
	require.NoError(t, r.Close())
	err := r.Run(context.Background(), func(*can.Frame) error { return nil })
	assert.ErrorIs(t, err, io.ErrClosedPipe)
}
