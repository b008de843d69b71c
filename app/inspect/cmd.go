package inspect

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/BIwashi/dbcsignal/pkg/can"
	"github.com/BIwashi/dbcsignal/pkg/cli"
	"github.com/BIwashi/dbcsignal/pkg/dbc"
)

type inspector struct {
	dbcFile  string
	id       string
	data     string
	extended bool
}

func NewCommand() *cobra.Command {
	s := &inspector{}

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Decode a single CAN frame and print its signals.",
		Example: `  # Decode frame 0x123 with payload 01 02 03 04
  dbcsignal inspect --dbc-file vehicle.dbc --id 0x123 --data 01020304`,
		RunE: cli.WithContext(s.run),
	}

	cmd.Flags().StringVar(&s.dbcFile, "dbc-file", s.dbcFile, "DBC file")
	cmd.Flags().StringVar(&s.id, "id", s.id, "CAN ID (decimal or 0x prefixed hex)")
	cmd.Flags().StringVar(&s.data, "data", s.data, "Payload as hex bytes, separators ' ', ':' and '.' are ignored")
	cmd.Flags().BoolVar(&s.extended, "extended", s.extended, "Use the 29-bit identifier space")

	cmd.MarkFlagRequired("dbc-file")
	cmd.MarkFlagRequired("id")

	return cmd
}

func (s *inspector) run(_ context.Context, input cli.Input) error {
	db, err := dbc.ParseFile(s.dbcFile)
	if err != nil {
		return errors.Wrap(err, "failed to parse DBC file")
	}
	frame, err := ParseFrame(s.id, s.data, s.extended)
	if err != nil {
		return err
	}
	input.Logger.Debug("inspecting frame", "can_id", fmt.Sprintf("0x%X", frame.ID), "length", frame.Length())

	return Print(input.Stdout, dbc.NewDecoder(db), frame)
}

// ParseFrame builds a frame from command line notation.
func ParseFrame(id, data string, extended bool) (*can.Frame, error) {
	canID, err := strconv.ParseUint(id, 0, 32)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid CAN ID %q", id)
	}
	clean := strings.NewReplacer(" ", "", ":", "", ".", "").Replace(data)
	payload, err := hex.DecodeString(clean)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid payload %q", data)
	}
	if len(payload) > can.MaxDataLength {
		return nil, errors.Newf("payload of %d bytes exceeds %d", len(payload), can.MaxDataLength)
	}
	return &can.Frame{ID: uint32(canID), IsExtended: extended, Data: payload}, nil
}

// Print writes one line per signal carried by the frame.
func Print(w io.Writer, decoder *dbc.Decoder, frame *can.Frame) error {
	decoded, err := decoder.Decode(frame)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "%s (0x%X)\n", decoded.Message.Name, frame.ID); err != nil {
		return errors.Wrap(err, "write output")
	}
	for _, sv := range decoded.Signals {
		if _, err := fmt.Fprintf(w, "  %s\n", sv.Text); err != nil {
			return errors.Wrap(err, "write output")
		}
	}
	for _, name := range decoded.Unavailable {
		if _, err := fmt.Fprintf(w, "  %s: <unavailable>\n", name); err != nil {
			return errors.Wrap(err, "write output")
		}
	}
	return nil
}
