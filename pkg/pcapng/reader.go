package pcapng

import (
	"encoding/binary"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/BIwashi/dbcsignal/pkg/can"
)

// LinkTypeCANSocketCAN is LINKTYPE_CAN_SOCKETCAN.
// ref: https://www.tcpdump.org/linktypes.html
const LinkTypeCANSocketCAN layers.LinkType = 227

// ErrErrorFrame is returned for CAN error frames.
var ErrErrorFrame = errors.New("error in RawCAN frame")

// Reader reads CAN frames from PCAPNG file
type Reader struct {
	reader      *pcapgo.NgReader
	linkType    layers.LinkType
	packetCount uint64
	skipped     uint64
}

// NewReader creates a new PCAPNG reader
func NewReader(r io.Reader) (*Reader, error) {
	ngReader, err := pcapgo.NewNgReader(r, pcapgo.DefaultNgReaderOptions)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create pcapng reader")
	}

	return &Reader{
		reader:   ngReader,
		linkType: ngReader.LinkType(),
	}, nil
}

// ReadFrame returns the next CAN frame, skipping packets that are not CAN data frames.
// It returns io.EOF at the end of the capture.
func (r *Reader) ReadFrame() (*can.Frame, error) {
	for {
		data, ci, err := r.reader.ReadPacketData()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			return nil, errors.Wrap(err, "failed to read packet data")
		}

		r.packetCount++

		frame, err := r.extractCANFrame(data, ci)
		if err != nil {
			r.skipped++
			continue
		}
		return frame, nil
	}
}

// extractCANFrame extracts CAN frame from the packet
func (r *Reader) extractCANFrame(data []byte, ci gopacket.CaptureInfo) (*can.Frame, error) {
	switch r.linkType {
	case layers.LinkTypeLinuxSLL:
		packet := gopacket.NewPacket(data, r.linkType, gopacket.Default)
		payload := data
		if sllLayer := packet.Layer(layers.LayerTypeLinuxSLL); sllLayer != nil {
			payload = sllLayer.(*layers.LinuxSLL).Payload
		}
		// cooked captures keep the host byte order
		return extractRawCANFrame(payload, binary.LittleEndian, ci)
	case LinkTypeCANSocketCAN:
		return extractRawCANFrame(data, binary.BigEndian, ci)
	default:
		return nil, errors.Newf("unsupported link type: %v", r.linkType)
	}
}

const (
	idFlagExtended = 0x80000000
	idFlagRemote   = 0x40000000
	idFlagError    = 0x20000000
	idMaskExtended = 0x1fffffff
	idMaskStandard = 0x7ff

	headerLength = 8
)

// extractRawCANFrame decodes a SocketCAN can_frame / canfd_frame.
func extractRawCANFrame(data []byte, order binary.ByteOrder, ci gopacket.CaptureInfo) (*can.Frame, error) {
	if len(data) < headerLength {
		return nil, errors.Newf("data too short for CAN frame: %d", len(data))
	}

	var (
		// Parse CAN ID and flags
		canIDRaw = order.Uint32(data[0:4])

		isExtended = (canIDRaw & idFlagExtended) != 0
		isRemote   = (canIDRaw & idFlagRemote) != 0
		isError    = (canIDRaw & idFlagError) != 0
	)
	if isError {
		return nil, ErrErrorFrame
	}

	canID := canIDRaw & idMaskStandard
	if isExtended {
		canID = canIDRaw & idMaskExtended
	}

	dataLen := int(data[4])
	if dataLen > can.MaxDataLength {
		dataLen = can.MaxDataLength
	}
	if avail := len(data) - headerLength; dataLen > avail {
		dataLen = avail
	}
	payload := make([]byte, dataLen)
	copy(payload, data[headerLength:headerLength+dataLen])

	return &can.Frame{
		ID:         canID,
		IsExtended: isExtended,
		IsRemote:   isRemote,
		Data:       payload,
		Timestamp:  ci.Timestamp,
	}, nil
}

// PacketCount returns the number of packets read
func (r *Reader) PacketCount() uint64 {
	return r.packetCount
}

// Skipped returns the number of packets that were not CAN data frames.
func (r *Reader) Skipped() uint64 {
	return r.skipped
}
