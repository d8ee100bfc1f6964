package mqttc

import (
	"bytes"
	"io"
)

// UnsubackPacket represents an MQTT UNSUBACK packet.
// The v3.1.1 form carries only the packet identifier; the v5 form adds
// properties and one reason code per topic filter.
// MQTT v5.0 spec: Section 3.11
type UnsubackPacket struct {
	Version     ProtocolVersion
	PacketID    uint16
	Props       Properties
	ReasonCodes []ReasonCode
}

// Type returns the packet type.
func (p *UnsubackPacket) Type() PacketType { return PacketUNSUBACK }

// Properties returns a pointer to the packet's properties.
func (p *UnsubackPacket) Properties() *Properties { return &p.Props }

// GetPacketID returns the packet identifier.
func (p *UnsubackPacket) GetPacketID() uint16 { return p.PacketID }

// SetPacketID sets the packet identifier.
func (p *UnsubackPacket) SetPacketID(id uint16) { p.PacketID = id }

// Encode writes the packet to the writer.
func (p *UnsubackPacket) Encode(w io.Writer) (int, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}
	if err := p.Props.ValidateFor(PropCtxUNSUBACK); err != nil {
		return 0, err
	}

	var buf bytes.Buffer

	// Packet Identifier
	_, err := buf.Write([]byte{byte(p.PacketID >> 8), byte(p.PacketID)})
	if err != nil {
		return 0, err
	}

	if p.Version.is5() {
		// Properties
		if _, err := p.Props.Encode(&buf); err != nil {
			return 0, err
		}

		// Payload: reason codes
		for _, rc := range p.ReasonCodes {
			if err := buf.WriteByte(byte(rc)); err != nil {
				return 0, err
			}
		}
	}

	// Write fixed header
	header := FixedHeader{
		PacketType:      PacketUNSUBACK,
		Flags:           0x00,
		RemainingLength: uint32(buf.Len()),
	}

	total, err := header.Encode(w)
	if err != nil {
		return total, err
	}

	n, err := w.Write(buf.Bytes())
	return total + n, err
}

// Decode reads the packet from the reader.
func (p *UnsubackPacket) Decode(r io.Reader, header FixedHeader) (int, error) {
	if header.PacketType != PacketUNSUBACK {
		return 0, ErrInvalidPacketType
	}

	p.Version = header.Version

	if !header.Version.is5() && header.RemainingLength != 2 {
		return 0, ErrMalformedPacket
	}

	var totalRead int

	// Packet Identifier
	var idBuf [2]byte
	n, err := io.ReadFull(r, idBuf[:])
	totalRead += n
	if err != nil {
		return totalRead, err
	}
	p.PacketID = uint16(idBuf[0])<<8 | uint16(idBuf[1])

	if header.Version.is5() {
		// Properties
		n, err = p.Props.Decode(r)
		totalRead += n
		if err != nil {
			return totalRead, err
		}
		if err := p.Props.ValidateFor(PropCtxUNSUBACK); err != nil {
			return totalRead, err
		}

		// Payload: reason codes
		p.ReasonCodes = nil
		for totalRead < int(header.RemainingLength) {
			var rcBuf [1]byte
			n, err = io.ReadFull(r, rcBuf[:])
			totalRead += n
			if err != nil {
				return totalRead, err
			}
			rc := ReasonCode(rcBuf[0])
			if !rc.ValidFor(PacketUNSUBACK) {
				return totalRead, ErrInvalidReasonCode
			}
			p.ReasonCodes = append(p.ReasonCodes, rc)
		}
	}

	return totalRead, nil
}

// Size returns the exact number of bytes Encode will write.
func (p *UnsubackPacket) Size() int {
	body := 2 // packet identifier
	if p.Version.is5() {
		body += p.Props.EncodedSize()
		body += len(p.ReasonCodes)
	}
	return 1 + varintSize(uint32(body)) + body
}

// Validate validates the packet contents.
func (p *UnsubackPacket) Validate() error {
	if p.PacketID == 0 {
		return ErrInvalidPacketID
	}
	if p.Version.is5() {
		if len(p.ReasonCodes) == 0 {
			return ErrProtocolViolation
		}
		for _, rc := range p.ReasonCodes {
			if !rc.ValidFor(PacketUNSUBACK) {
				return ErrInvalidReasonCode
			}
		}
	}
	return nil
}
