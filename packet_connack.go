package mqttc

import (
	"bytes"
	"errors"
	"io"
)

// CONNACK packet errors.
var (
	ErrInvalidConnackFlags      = errors.New("invalid CONNACK flags")
	ErrInvalidConnectReturnCode = errors.New("invalid CONNACK return code")
)

// ConnackPacket represents an MQTT CONNACK packet.
// On v3.1.1 the second variable header byte is a ConnectReturnCode; on v5 it
// is a ReasonCode followed by properties. Both are kept so callers can read
// whichever the negotiated version filled in.
// MQTT v5.0 spec: Section 3.2
type ConnackPacket struct {
	// Version selects the wire format.
	Version ProtocolVersion

	// SessionPresent indicates if a session exists from a previous connection.
	SessionPresent bool

	// ReasonCode is the connection result reason code (v5).
	ReasonCode ReasonCode

	// ReturnCode is the connection result return code (v3.1.1).
	ReturnCode ConnectReturnCode

	// Props contains the CONNACK properties (v5 only).
	Props Properties
}

// Type returns the packet type.
func (p *ConnackPacket) Type() PacketType {
	return PacketCONNACK
}

// Properties returns a pointer to the packet's properties.
func (p *ConnackPacket) Properties() *Properties {
	return &p.Props
}

// Accepted reports whether the server accepted the connection, regardless of
// protocol version.
func (p *ConnackPacket) Accepted() bool {
	if p.Version.is5() {
		return p.ReasonCode == ReasonSuccess
	}
	return p.ReturnCode == ConnectionAccepted
}

// Reason returns the v5 reason code, mapping the v3.1.1 return code when the
// packet was decoded from a v3.1.1 stream.
func (p *ConnackPacket) Reason() ReasonCode {
	if p.Version.is5() {
		return p.ReasonCode
	}
	return p.ReturnCode.ReasonCode()
}

// Encode writes the packet to the writer.
func (p *ConnackPacket) Encode(w io.Writer) (int, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}

	var buf bytes.Buffer

	// Connect Acknowledge Flags
	var flags byte
	if p.SessionPresent {
		flags = 0x01
	}
	if err := buf.WriteByte(flags); err != nil {
		return 0, err
	}

	if p.Version.is5() {
		// Reason Code
		if err := buf.WriteByte(byte(p.ReasonCode)); err != nil {
			return 1, err
		}

		// Properties
		if _, err := p.Props.Encode(&buf); err != nil {
			return 2, err
		}
	} else {
		// Return Code
		if err := buf.WriteByte(byte(p.ReturnCode)); err != nil {
			return 1, err
		}
	}

	// Write fixed header
	header := FixedHeader{
		PacketType:      PacketCONNACK,
		Flags:           0x00,
		RemainingLength: uint32(buf.Len()),
	}

	total, err := header.Encode(w)
	if err != nil {
		return total, err
	}

	// Write variable header
	n, err := w.Write(buf.Bytes())
	return total + n, err
}

// Decode reads the packet from the reader.
func (p *ConnackPacket) Decode(r io.Reader, header FixedHeader) (int, error) {
	if header.PacketType != PacketCONNACK {
		return 0, ErrInvalidPacketType
	}

	p.Version = header.Version

	var totalRead int

	// Connect Acknowledge Flags
	var flagsBuf [1]byte
	n, err := io.ReadFull(r, flagsBuf[:])
	totalRead += n
	if err != nil {
		return totalRead, err
	}

	// Reserved bits must be 0
	if flagsBuf[0]&0xFE != 0 {
		return totalRead, ErrInvalidConnackFlags
	}

	p.SessionPresent = flagsBuf[0]&0x01 != 0

	// Reason / Return Code
	var codeBuf [1]byte
	n, err = io.ReadFull(r, codeBuf[:])
	totalRead += n
	if err != nil {
		return totalRead, err
	}

	if header.Version.is5() {
		p.ReasonCode = ReasonCode(codeBuf[0])
		if !p.ReasonCode.ValidFor(PacketCONNACK) {
			return totalRead, ErrInvalidReasonCode
		}

		// Properties (if remaining length allows)
		if header.RemainingLength > 2 {
			n, err = p.Props.Decode(r)
			totalRead += n
			if err != nil {
				return totalRead, err
			}
			if err := p.Props.ValidateFor(PropCtxCONNACK); err != nil {
				return totalRead, err
			}
		}
	} else {
		p.ReturnCode = ConnectReturnCode(codeBuf[0])
		if !p.ReturnCode.Valid() {
			return totalRead, ErrInvalidConnectReturnCode
		}
		if header.RemainingLength != 2 {
			return totalRead, ErrMalformedPacket
		}
	}

	return totalRead, nil
}

// Size returns the exact number of bytes Encode will write.
func (p *ConnackPacket) Size() int {
	body := 2 // acknowledge flags + reason/return code
	if p.Version.is5() {
		body += p.Props.EncodedSize()
	}
	return 1 + varintSize(uint32(body)) + body
}

// Validate validates the packet contents.
func (p *ConnackPacket) Validate() error {
	if p.Version.is5() {
		if !p.ReasonCode.ValidFor(PacketCONNACK) {
			return ErrInvalidReasonCode
		}

		// If reason code is not success, session present must be false
		if p.ReasonCode != ReasonSuccess && p.SessionPresent {
			return ErrInvalidConnackFlags
		}
	} else {
		if !p.ReturnCode.Valid() {
			return ErrInvalidConnectReturnCode
		}

		if p.ReturnCode != ConnectionAccepted && p.SessionPresent {
			return ErrInvalidConnackFlags
		}
	}

	return nil
}
