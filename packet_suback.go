package mqttc

import (
	"bytes"
	"io"
)

// SubackPacket represents an MQTT SUBACK packet.
// The payload carries one reason code per requested subscription, in order.
// On v3.1.1 only the granted QoS values and 0x80 are legal.
// MQTT v5.0 spec: Section 3.9
type SubackPacket struct {
	Version     ProtocolVersion
	PacketID    uint16
	Props       Properties
	ReasonCodes []ReasonCode
}

// Type returns the packet type.
func (p *SubackPacket) Type() PacketType { return PacketSUBACK }

// Properties returns a pointer to the packet's properties.
func (p *SubackPacket) Properties() *Properties { return &p.Props }

// GetPacketID returns the packet identifier.
func (p *SubackPacket) GetPacketID() uint16 { return p.PacketID }

// SetPacketID sets the packet identifier.
func (p *SubackPacket) SetPacketID(id uint16) { p.PacketID = id }

// Encode writes the packet to the writer.
func (p *SubackPacket) Encode(w io.Writer) (int, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}

	var buf bytes.Buffer

	// Packet Identifier
	_, err := buf.Write([]byte{byte(p.PacketID >> 8), byte(p.PacketID)})
	if err != nil {
		return 0, err
	}

	// Properties (v5 only)
	if p.Version.is5() {
		if _, err := p.Props.Encode(&buf); err != nil {
			return 0, err
		}
	}

	// Payload: reason codes
	for _, rc := range p.ReasonCodes {
		if err := buf.WriteByte(byte(rc)); err != nil {
			return 0, err
		}
	}

	// Write fixed header
	header := FixedHeader{
		PacketType:      PacketSUBACK,
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
func (p *SubackPacket) Decode(r io.Reader, header FixedHeader) (int, error) {
	if header.PacketType != PacketSUBACK {
		return 0, ErrInvalidPacketType
	}

	p.Version = header.Version

	var totalRead int

	// Packet Identifier
	var idBuf [2]byte
	n, err := io.ReadFull(r, idBuf[:])
	totalRead += n
	if err != nil {
		return totalRead, err
	}
	p.PacketID = uint16(idBuf[0])<<8 | uint16(idBuf[1])

	// Properties (v5 only)
	if header.Version.is5() {
		n, err = p.Props.Decode(r)
		totalRead += n
		if err != nil {
			return totalRead, err
		}
		if err := p.Props.ValidateFor(PropCtxSUBACK); err != nil {
			return totalRead, err
		}
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
		if !p.validReasonCode(rc) {
			return totalRead, ErrInvalidReasonCode
		}
		p.ReasonCodes = append(p.ReasonCodes, rc)
	}

	if len(p.ReasonCodes) == 0 {
		return totalRead, ErrProtocolViolation
	}

	return totalRead, nil
}

func (p *SubackPacket) validReasonCode(rc ReasonCode) bool {
	if p.Version.is5() {
		return rc.ValidFor(PacketSUBACK)
	}
	return rc <= ReasonGrantedQoS2 || rc == subackFailureV311
}

// Size returns the exact number of bytes Encode will write.
func (p *SubackPacket) Size() int {
	body := 2 // packet identifier
	if p.Version.is5() {
		body += p.Props.EncodedSize()
	}
	body += len(p.ReasonCodes)
	return 1 + varintSize(uint32(body)) + body
}

// Validate validates the packet contents.
func (p *SubackPacket) Validate() error {
	if p.PacketID == 0 {
		return ErrInvalidPacketID
	}
	if len(p.ReasonCodes) == 0 {
		return ErrProtocolViolation
	}
	for _, rc := range p.ReasonCodes {
		if !p.validReasonCode(rc) {
			return ErrInvalidReasonCode
		}
	}
	return nil
}
