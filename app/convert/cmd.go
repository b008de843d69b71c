package convert

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/BIwashi/dbcsignal/pkg/cli"
	"github.com/BIwashi/dbcsignal/pkg/dbc"
	"github.com/BIwashi/dbcsignal/pkg/mcap"
	"github.com/BIwashi/dbcsignal/pkg/pcapng"
)

type converter struct {
	dbcFile    string
	pcapngFile string
	mcapFile   string
}

func NewCommand() *cobra.Command {
	s := &converter{
		dbcFile:    "",
		pcapngFile: "",
		mcapFile:   "",
	}

	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Convert CAN data captured with pcapng to MCAP using a DBC file.",
		Long: `Convert PCAPNG files captured from CAN bus to MCAP format.

This command reads CAN frames from a PCAPNG file, decodes them using a DBC file,
and writes one MCAP channel per decoded signal.`,
		Example: `  # Convert PCAPNG to MCAP
  dbcsignal convert --dbc-file toyota.dbc --pcapng-file capture.pcapng --mcap-file output.mcap`,
		RunE: cli.WithContext(s.run),
	}

	cmd.Flags().StringVar(&s.dbcFile, "dbc-file", s.dbcFile, "DBC file")
	cmd.Flags().StringVar(&s.pcapngFile, "pcapng-file", s.pcapngFile, "PCAPNG file")
	cmd.Flags().StringVar(&s.mcapFile, "mcap-file", s.mcapFile, "MCAP file")

	cmd.MarkFlagRequired("dbc-file")
	cmd.MarkFlagRequired("pcapng-file")
	cmd.MarkFlagRequired("mcap-file")

	return cmd
}

// frameKey separates standard and extended frames sharing an ID.
type frameKey struct {
	id       uint32
	extended bool
}

// stats summarises a conversion.
type stats struct {
	frames      int
	messages    int
	skipped     int
	unavailable int
	outOfRange  int
	msgCounts   map[frameKey]int
}

func (s *converter) run(ctx context.Context, input cli.Input) error {
	input.Logger.Info("Starting PCAPNG to MCAP conversion",
		"dbc_file", s.dbcFile,
		"pcapng_file", s.pcapngFile,
		"mcap_file", s.mcapFile,
	)

	db, err := dbc.ParseFile(s.dbcFile)
	if err != nil {
		return errors.Wrap(err, "failed to parse DBC file")
	}
	input.Logger.Info(fmt.Sprintf("Found %d messages in DBC file", len(db.Messages)))
	for _, w := range db.Warnings {
		input.Logger.Warn("dbc_warning", "error", w)
	}

	pcapFile, err := os.Open(s.pcapngFile)
	if err != nil {
		return errors.Wrap(err, "failed to open PCAPNG file")
	}
	defer pcapFile.Close()

	reader, err := pcapng.NewReader(pcapFile)
	if err != nil {
		return errors.Wrap(err, "failed to create PCAPNG reader")
	}

	mcapOutFile, err := os.Create(s.mcapFile)
	if err != nil {
		return errors.Wrap(err, "failed to create MCAP file")
	}
	defer mcapOutFile.Close()

	writer, err := mcap.NewWriter(mcapOutFile)
	if err != nil {
		return errors.Wrap(err, "failed to create MCAP writer")
	}

	startTime := time.Now()
	st, err := convert(ctx, input, dbc.NewDecoder(db), reader, writer)
	if cerr := writer.Close(); err == nil && cerr != nil {
		err = errors.Wrap(cerr, "failed to finalize MCAP file")
	}
	if err != nil {
		return err
	}
	duration := time.Since(startTime)

	input.Logger.Info("Conversion completed successfully!",
		"total_frames", st.frames,
		"decoded_messages", st.messages,
		"skipped_frames", st.skipped,
		"unavailable_signals", st.unavailable,
		"out_of_range_signals", st.outOfRange,
		"output_file", s.mcapFile,
		"duration", duration,
		"rate_fps", fmt.Sprintf("%.2f", float64(st.frames)/duration.Seconds()),
	)

	if len(st.msgCounts) > 0 {
		input.Logger.Info(fmt.Sprintf("Found %d unique message types", len(st.msgCounts)))
		for _, msg := range db.Messages {
			if count, ok := st.msgCounts[frameKey{msg.ID, msg.IsExtended}]; ok {
				input.Logger.Debug(fmt.Sprintf("  0x%03X (%s): %d messages", msg.ID, msg.Name, count))
			}
		}
	}

	return nil
}

func convert(ctx context.Context, input cli.Input, decoder *dbc.Decoder, reader *pcapng.Reader, writer *mcap.Writer) (*stats, error) {
	st := &stats{msgCounts: make(map[frameKey]int)}

	for {
		select {
		case <-ctx.Done():
			return nil, errors.Wrap(ctx.Err(), "conversion cancelled")
		default:
		}

		frame, err := reader.ReadFrame()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, errors.Wrap(err, "failed to read frame")
		}
		st.frames++

		decoded, err := decoder.Decode(frame)
		if err != nil {
			// Skip frames that can't be decoded (unknown message IDs)
			st.skipped++
			continue
		}
		st.unavailable += len(decoded.Unavailable)

		// Out-of-range validation (no clamp) against DBC metadata
		for _, sv := range decoded.Signals {
			if sv.Signal.Type == dbc.String || sv.Signal.InRange(sv.Physical) {
				continue
			}
			st.outOfRange++
			input.Logger.Debug("signal_out_of_range",
				"can_id", fmt.Sprintf("0x%03X", frame.ID),
				"message", decoded.Message.Name,
				"signal", sv.Name,
				"value", sv.Physical,
				"min", sv.Signal.Min,
				"max", sv.Signal.Max,
			)
		}

		if err := writer.WriteDecodedMessage(decoded); err != nil {
			return nil, errors.Wrap(err, "failed to write message")
		}

		st.messages++
		st.msgCounts[frameKey{frame.ID, frame.IsExtended}]++

		// Progress reporting every 10000 frames
		if st.frames%10000 == 0 {
			input.Logger.Info(fmt.Sprintf("Progress: %d frames processed, %d messages decoded, %d skipped",
				st.frames, st.messages, st.skipped))
		}
	}

	return st, nil
}
