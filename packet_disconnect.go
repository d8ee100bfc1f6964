package mqttc

import (
	"bytes"
	"io"
)

// DisconnectPacket represents an MQTT DISCONNECT packet.
// The v3.1.1 form has an empty body. The v5 form omits the reason code and
// properties entirely when the reason is success and no properties are
// present.
// MQTT v5.0 spec: Section 3.14
type DisconnectPacket struct {
	Version    ProtocolVersion
	ReasonCode ReasonCode
	Props      Properties
}

// Type returns the packet type.
func (p *DisconnectPacket) Type() PacketType { return PacketDISCONNECT }

// Properties returns a pointer to the packet's properties.
func (p *DisconnectPacket) Properties() *Properties { return &p.Props }

// Encode writes the packet to the writer.
func (p *DisconnectPacket) Encode(w io.Writer) (int, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}
	if err := p.Props.ValidateFor(PropCtxDISCONNECT); err != nil {
		return 0, err
	}

	var buf bytes.Buffer

	if p.Version.is5() {
		// Reason Code and Properties (optional if success with no properties)
		if p.ReasonCode != ReasonSuccess || p.Props.Len() > 0 {
			if err := buf.WriteByte(byte(p.ReasonCode)); err != nil {
				return 0, err
			}

			if p.Props.Len() > 0 {
				if _, err := p.Props.Encode(&buf); err != nil {
					return 0, err
				}
			}
		}
	}

	// Write fixed header
	header := FixedHeader{
		PacketType:      PacketDISCONNECT,
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
func (p *DisconnectPacket) Decode(r io.Reader, header FixedHeader) (int, error) {
	if header.PacketType != PacketDISCONNECT {
		return 0, ErrInvalidPacketType
	}
	if header.Flags != 0x00 {
		return 0, ErrInvalidPacketFlags
	}

	p.Version = header.Version
	p.ReasonCode = ReasonSuccess

	if !header.Version.is5() {
		if header.RemainingLength != 0 {
			return 0, ErrMalformedPacket
		}
		return 0, nil
	}

	var totalRead int

	// Reason Code (optional)
	if header.RemainingLength > 0 {
		var reasonBuf [1]byte
		n, err := io.ReadFull(r, reasonBuf[:])
		totalRead += n
		if err != nil {
			return totalRead, err
		}
		p.ReasonCode = ReasonCode(reasonBuf[0])
		if !p.ReasonCode.ValidFor(PacketDISCONNECT) {
			return totalRead, ErrInvalidReasonCode
		}

		// Properties (optional)
		if header.RemainingLength > 1 {
			n, err = p.Props.Decode(r)
			totalRead += n
			if err != nil {
				return totalRead, err
			}
			if err := p.Props.ValidateFor(PropCtxDISCONNECT); err != nil {
				return totalRead, err
			}
		}
	}

	return totalRead, nil
}

// Size returns the exact number of bytes Encode will write.
func (p *DisconnectPacket) Size() int {
	body := 0
	if p.Version.is5() {
		if p.ReasonCode != ReasonSuccess || p.Props.Len() > 0 {
			body++ // reason code
			if p.Props.Len() > 0 {
				body += p.Props.EncodedSize()
			}
		}
	}
	return 1 + varintSize(uint32(body)) + body
}

// Validate validates the packet contents.
func (p *DisconnectPacket) Validate() error {
	if p.Version.is5() && !p.ReasonCode.ValidFor(PacketDISCONNECT) {
		return ErrInvalidReasonCode
	}
	return nil
}
