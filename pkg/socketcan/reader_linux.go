//go:build linux

package socketcan

import (
	"context"
	"net"
	"time"

	"github.com/cockroachdb/errors"
	"go.einride.tech/can/pkg/socketcan"

	"github.com/BIwashi/dbcsignal/pkg/can"
)

// Reader receives frames from a SocketCAN interface.
type Reader struct {
	conn net.Conn
	recv *socketcan.Receiver
}

// Dial opens a raw CAN socket on ifname (e.g. "can0", "vcan0").
func Dial(ctx context.Context, ifname string) (*Reader, error) {
	conn, err := socketcan.DialContext(ctx, "can", ifname)
	if err != nil {
		return nil, errors.Wrapf(err, "socketcan dial %s", ifname)
	}
	return &Reader{
		conn: conn,
		recv: socketcan.NewReceiver(conn),
	}, nil
}

// Run calls fn for every received data frame until ctx is done, fn fails or the socket
// is closed. Cancelling ctx closes the socket to unblock the receiver.
func (r *Reader) Run(ctx context.Context, fn func(*can.Frame) error) error {
	stop := context.AfterFunc(ctx, func() {
		_ = r.conn.Close()
	})
	defer stop()

	for r.recv.Receive() {
		if r.recv.HasErrorFrame() {
			continue
		}
		f := can.FromEinride(r.recv.Frame(), time.Now())
		if err := fn(&f); err != nil {
			return err
		}
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err := r.recv.Err(); err != nil {
		return errors.Wrap(err, "socketcan receive")
	}
	return nil
}

func (r *Reader) Close() error {
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
