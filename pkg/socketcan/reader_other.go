//go:build !linux

package socketcan

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/BIwashi/dbcsignal/pkg/can"
)

// ErrUnsupported is returned on platforms without SocketCAN.
var ErrUnsupported = errors.New("socketcan is only available on linux")

type Reader struct{}

func Dial(context.Context, string) (*Reader, error) {
	return nil, ErrUnsupported
}

func (r *Reader) Run(context.Context, func(*can.Frame) error) error {
	return ErrUnsupported
}

func (r *Reader) Close() error {
	return nil
}
