package monitor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/BIwashi/dbcsignal/pkg/can"
	"github.com/BIwashi/dbcsignal/pkg/cli"
	"github.com/BIwashi/dbcsignal/pkg/dbc"
	"github.com/BIwashi/dbcsignal/pkg/socketcan"
)

type monitor struct {
	dbcFile     string
	iface       string
	showUnknown bool
}

func NewCommand() *cobra.Command {
	s := &monitor{
		iface: "can0",
	}

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Decode live SocketCAN traffic using a DBC file.",
		Example: `  # Log decoded signals from vcan0
  dbcsignal monitor --dbc-file vehicle.dbc --interface vcan0`,
		RunE: cli.WithContext(s.run),
	}

	cmd.Flags().StringVar(&s.dbcFile, "dbc-file", s.dbcFile, "DBC file")
	cmd.Flags().StringVar(&s.iface, "interface", s.iface, "SocketCAN interface")
	cmd.Flags().BoolVar(&s.showUnknown, "show-unknown", s.showUnknown, "Log frames with unknown IDs")

	cmd.MarkFlagRequired("dbc-file")

	return cmd
}

func (s *monitor) run(ctx context.Context, input cli.Input) error {
	db, err := dbc.ParseFile(s.dbcFile)
	if err != nil {
		return errors.Wrap(err, "failed to parse DBC file")
	}
	reader, err := socketcan.Dial(ctx, s.iface)
	if err != nil {
		return err
	}
	defer reader.Close()

	input.Logger.Info("Monitoring CAN interface", "interface", s.iface, "messages", len(db.Messages))

	decoder := dbc.NewDecoder(db)
	err = reader.Run(ctx, func(f *can.Frame) error {
		logFrame(input.Logger, decoder, f, s.showUnknown)
		return nil
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func logFrame(logger *slog.Logger, decoder *dbc.Decoder, f *can.Frame, showUnknown bool) {
	decoded, err := decoder.Decode(f)
	if err != nil {
		if showUnknown && errors.Is(err, dbc.ErrUnknownMessage) {
			logger.Info("unknown_frame", "can_id", fmt.Sprintf("0x%03X", f.ID), "data", fmt.Sprintf("% X", f.Data))
		}
		return
	}
	for _, sv := range decoded.Signals {
		logger.Info(sv.Text,
			"can_id", fmt.Sprintf("0x%03X", f.ID),
			"message", decoded.Message.Name,
		)
	}
	for _, name := range decoded.Unavailable {
		logger.Debug("signal_unavailable", "message", decoded.Message.Name, "signal", name)
	}
}
