package mqttc

import (
	"errors"
	"fmt"
	"io"
)

var (
	ErrPacketTooLarge    = errors.New("mqttc: packet exceeds maximum size")
	ErrUnknownPacketType = fmt.Errorf("mqttc: unknown packet type: %w", ErrMalformedPacket)
)

// Maximum packet size presets, applied to the remaining length of inbound
// packets.
const (
	// MaxPacketSizeProtocol is the largest remaining length the wire
	// format can express.
	MaxPacketSizeProtocol uint32 = maxVarint

	// MaxPacketSizeDefault (4MB) suits typical broker deployments.
	MaxPacketSizeDefault uint32 = 4 * 1024 * 1024

	// MaxPacketSizeMinimal (16KB) suits constrained devices.
	MaxPacketSizeMinimal uint32 = 16 * 1024
)

// newPacket returns a zero packet of the given type.
func newPacket(t PacketType) Packet {
	switch t {
	case PacketCONNECT:
		return &ConnectPacket{}
	case PacketCONNACK:
		return &ConnackPacket{}
	case PacketPUBLISH:
		return &PublishPacket{}
	case PacketPUBACK:
		return &PubackPacket{}
	case PacketPUBREC:
		return &PubrecPacket{}
	case PacketPUBREL:
		return &PubrelPacket{}
	case PacketPUBCOMP:
		return &PubcompPacket{}
	case PacketSUBSCRIBE:
		return &SubscribePacket{}
	case PacketSUBACK:
		return &SubackPacket{}
	case PacketUNSUBSCRIBE:
		return &UnsubscribePacket{}
	case PacketUNSUBACK:
		return &UnsubackPacket{}
	case PacketPINGREQ:
		return &PingreqPacket{}
	case PacketPINGRESP:
		return &PingrespPacket{}
	case PacketDISCONNECT:
		return &DisconnectPacket{}
	case PacketAUTH:
		return &AuthPacket{}
	default:
		return nil
	}
}

// ReadPacket reads a complete MQTT packet from the reader. version selects
// the wire format the stream was negotiated with.
//
// A short read while the header or body is still arriving reports
// ErrInsufficientBytes so the caller can wait for more data. Once the full
// body is in hand, running out of bytes mid-field is a structural violation
// and reports ErrMalformedPacket.
//
// If maxSize is greater than 0, packets larger than maxSize return
// ErrPacketTooLarge.
func ReadPacket(r io.Reader, version ProtocolVersion, maxSize uint32) (Packet, int, error) {
	var header FixedHeader
	n, err := header.Decode(r)
	if err != nil {
		return nil, n, insufficientOr(err)
	}
	header.Version = version

	if err := header.ValidateFlags(); err != nil {
		return nil, n, err
	}

	// Check max size
	if maxSize > 0 && header.RemainingLength > maxSize {
		return nil, n, ErrPacketTooLarge
	}

	// Read remaining bytes
	remaining := make([]byte, header.RemainingLength)
	if header.RemainingLength > 0 {
		rn, err := io.ReadFull(r, remaining)
		n += rn
		if err != nil {
			return nil, n, insufficientOr(err)
		}
	}

	packet := newPacket(header.PacketType)
	if packet == nil {
		return nil, n, ErrUnknownPacketType
	}

	// Decode packet. The body is complete, so an EOF inside a field means
	// the declared lengths disagree with the content.
	br := getBytesReader(remaining)
	_, err = packet.Decode(br, header)
	putBytesReader(br)
	if err != nil {
		return nil, n, malformedOr(err)
	}

	return packet, n, nil
}

// WritePacket writes a complete MQTT packet to the writer.
// If maxSize is greater than 0, packets larger than maxSize will return ErrPacketTooLarge.
func WritePacket(w io.Writer, packet Packet, maxSize uint32) (int, error) {
	if err := packet.Validate(); err != nil {
		return 0, err
	}

	if maxSize > 0 && uint32(packet.Size()) > maxSize {
		return 0, ErrPacketTooLarge
	}

	return packet.Encode(w)
}

// insufficientOr translates a short-read error into ErrInsufficientBytes,
// passing every other error through.
func insufficientOr(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrInsufficientBytes
	}
	return err
}

// malformedOr translates an end-of-buffer error from a body decode into
// ErrMalformedPacket, passing every other error through.
func malformedOr(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrMalformedPacket
	}
	return err
}

// bytesReader wraps a byte slice for io.Reader interface.
type bytesReader struct {
	data []byte
	pos  int
}

func (r *bytesReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	n := copy(p, r.data[r.pos:])
	r.pos += n
	return n, nil
}
