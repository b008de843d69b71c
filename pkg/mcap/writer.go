package mcap

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/foxglove/mcap/go/mcap"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/BIwashi/dbcsignal/pkg/dbc"
)

const schemaName = "google.protobuf.Struct"

// Writer writes decoded signals into an MCAP file.
//
// Design decisions:
//   - Single protobuf schema (google.protobuf.Struct) reused by all channels.
//   - Channel granularity = (CAN message, Signal) i.e. one signal per channel/topic.
//   - Topic naming: /can/<MessageName>/<SignalName>
//   - Channel metadata includes: can_id (hex), message (dbc BO_ name), signal, unit (if any), is_extended.
//
// A new channel is created lazily on first occurrence of a (can_id, signal_name) combination.
type Writer struct {
	mu         sync.Mutex
	writer     *mcap.Writer
	schemaID   uint16
	nextChanID uint16
	channels   map[string]uint16 // key: canID_hex + "/" + frame format + ":" + signalName
	sequence   uint32
}

// NewWriter initializes an MCAP writer with the Struct schema registered.
// The provided io.Writer should be an opened file (will not be closed here).
func NewWriter(out io.Writer) (*Writer, error) {
	w, err := mcap.NewWriter(out, &mcap.WriterOptions{
		Chunked:     true,
		ChunkSize:   2 * 1024 * 1024, // 2MB chunks
		Compression: mcap.CompressionZSTD,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create MCAP writer")
	}

	if err := w.WriteHeader(&mcap.Header{
		Profile: "",
		Library: "dbcsignal",
	}); err != nil {
		return nil, errors.Wrap(err, "write header")
	}

	fdSet := &descriptorpb.FileDescriptorSet{
		File: []*descriptorpb.FileDescriptorProto{
			protodesc.ToFileDescriptorProto(structpb.File_google_protobuf_struct_proto),
		},
	}
	data, err := proto.Marshal(fdSet)
	if err != nil {
		return nil, errors.Wrap(err, "marshal schema descriptor")
	}

	schemaID := uint16(1)
	if err := w.WriteSchema(&mcap.Schema{
		ID:       schemaID,
		Name:     schemaName,
		Encoding: "protobuf",
		Data:     data,
	}); err != nil {
		return nil, errors.Wrap(err, "write schema")
	}

	return &Writer{
		writer:     w,
		schemaID:   schemaID,
		nextChanID: 0,
		channels:   make(map[string]uint16),
	}, nil
}

// channelKey builds internal key. Standard and extended frames may share an ID.
func channelKey(hexID string, isExtended bool, signalName string) string {
	format := "std"
	if isExtended {
		format = "ext"
	}
	return hexID + "/" + format + ":" + signalName
}

// validUTF8 replaces invalid sequences; protobuf strings must be UTF-8 and DBC
// files are often Latin-1.
func validUTF8(s string) string {
	return strings.ToValidUTF8(s, "\uFFFD")
}

// ensureChannel ensures a channel exists for a given signal; returns channel ID.
// Callers hold w.mu.
func (w *Writer) ensureChannel(msg *dbc.Message, signal *dbc.Signal) (uint16, error) {
	hexID := fmt.Sprintf("0x%X", msg.ID)
	key := channelKey(hexID, msg.IsExtended, signal.Name)
	if id, ok := w.channels[key]; ok {
		return id, nil
	}

	w.nextChanID++
	chID := w.nextChanID

	topic := validUTF8(fmt.Sprintf("/can/%s/%s", msg.Name, signal.Name))
	metadata := map[string]string{
		"can_id":      hexID,
		"message":     validUTF8(msg.Name),
		"signal":      validUTF8(signal.Name),
		"is_extended": fmt.Sprintf("%t", msg.IsExtended),
		"value_type":  signal.Type.String(),
	}
	if signal.Unit != "" {
		metadata["unit"] = validUTF8(signal.Unit)
	}

	if err := w.writer.WriteChannel(&mcap.Channel{
		ID:              chID,
		SchemaID:        w.schemaID,
		Topic:           topic,
		MessageEncoding: "protobuf",
		Metadata:        metadata,
	}); err != nil {
		return 0, errors.Wrapf(err, "write channel (topic=%s)", topic)
	}

	w.channels[key] = chID
	return chID, nil
}

// WriteDecodedMessage writes every signal of dm as an MCAP message on its own channel.
// LogTime/PublishTime use the signal timestamp.
func (w *Writer) WriteDecodedMessage(dm *dbc.DecodedMessage) error {
	if dm == nil || dm.Message == nil {
		return errors.New("nil DecodedMessage")
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	for i := range dm.Signals {
		if err := w.writeSignal(dm.Message, &dm.Signals[i]); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) writeSignal(msg *dbc.Message, ds *dbc.DecodedSignal) error {
	channelID, err := w.ensureChannel(msg, ds.Signal)
	if err != nil {
		return err
	}

	payload, err := buildPayload(msg, ds)
	if err != nil {
		return err
	}
	data, err := proto.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "marshal payload")
	}

	ts := uint64(ds.Timestamp.UnixNano())
	w.sequence++
	if err := w.writer.WriteMessage(&mcap.Message{
		ChannelID:   channelID,
		Sequence:    w.sequence,
		LogTime:     ts,
		PublishTime: ts,
		Data:        data,
	}); err != nil {
		return errors.Wrap(err, "write message")
	}
	return nil
}

// ChannelCount returns the number of channels created so far.
func (w *Writer) ChannelCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.channels)
}

// Close finalizes the MCAP file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.writer.Close()
}

// buildPayload renders a decoded signal as a Struct. All strings are forced to UTF-8.
func buildPayload(msg *dbc.Message, ds *dbc.DecodedSignal) (*structpb.Struct, error) {
	fields := map[string]any{
		"message":     validUTF8(msg.Name),
		"signal":      validUTF8(ds.Name),
		"can_id":      float64(msg.ID),
		"is_extended": msg.IsExtended,
		"text":        validUTF8(ds.Text),
	}
	if ds.Signal.Type == dbc.String {
		// STRING payloads are arbitrary bytes
		fields["raw"] = hex.EncodeToString([]byte(ds.Text))
	} else {
		fields["value"] = ds.Physical
	}
	if ds.Unit != "" {
		fields["unit"] = validUTF8(ds.Unit)
	}
	if ds.Description != "" {
		fields["description"] = validUTF8(ds.Description)
	}
	payload, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, errors.Wrapf(err, "build payload for %s", ds.Name)
	}
	return payload, nil
}
