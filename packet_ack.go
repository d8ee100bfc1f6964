package mqttc

import (
	"bytes"
	"io"
)

// ackPacket is a helper for encoding/decoding simple acknowledgment packets
// (PUBACK, PUBREC, PUBREL, PUBCOMP).
type ackPacket struct {
	Version    ProtocolVersion
	PacketID   uint16
	ReasonCode ReasonCode
	Props      Properties
}

// encodeAck encodes an acknowledgment packet with the given packet type and flags.
// v3.1.1 acks carry only the packet identifier. v5 acks omit the reason code
// and properties entirely when the reason is success and no properties are
// present, and omit the property block when it would be empty.
func encodeAck(w io.Writer, packetType PacketType, flags byte, ack *ackPacket) (int, error) {
	var buf bytes.Buffer

	// Packet Identifier
	_, err := buf.Write([]byte{byte(ack.PacketID >> 8), byte(ack.PacketID)})
	if err != nil {
		return 0, err
	}

	if ack.Version.is5() {
		// Reason Code and Properties (optional if success with no properties)
		if ack.ReasonCode != ReasonSuccess || ack.Props.Len() > 0 {
			if err := buf.WriteByte(byte(ack.ReasonCode)); err != nil {
				return 2, err
			}

			if ack.Props.Len() > 0 {
				_, err = ack.Props.Encode(&buf)
				if err != nil {
					return 3, err
				}
			}
		}
	}

	// Write fixed header
	header := FixedHeader{
		PacketType:      packetType,
		Flags:           flags,
		RemainingLength: uint32(buf.Len()),
	}

	total, err := header.Encode(w)
	if err != nil {
		return total, err
	}

	n, err := w.Write(buf.Bytes())
	return total + n, err
}

// ackSize mirrors encodeAck field for field.
func ackSize(ack *ackPacket) int {
	body := 2 // packet identifier

	if ack.Version.is5() {
		if ack.ReasonCode != ReasonSuccess || ack.Props.Len() > 0 {
			body++ // reason code
			if ack.Props.Len() > 0 {
				body += ack.Props.EncodedSize()
			}
		}
	}

	return 1 + varintSize(uint32(body)) + body
}

// decodeAck decodes an acknowledgment packet with property validation.
func decodeAck(r io.Reader, header FixedHeader, ack *ackPacket, propCtx PropertyContext) (int, error) {
	ack.Version = header.Version

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
	ack.PacketID = uint16(idBuf[0])<<8 | uint16(idBuf[1])

	ack.ReasonCode = ReasonSuccess

	// Reason Code (optional, v5 only)
	if header.Version.is5() && header.RemainingLength > 2 {
		var reasonBuf [1]byte
		n, err = io.ReadFull(r, reasonBuf[:])
		totalRead += n
		if err != nil {
			return totalRead, err
		}
		ack.ReasonCode = ReasonCode(reasonBuf[0])
		if !ack.ReasonCode.ValidFor(header.PacketType) {
			return totalRead, ErrInvalidReasonCode
		}

		// Properties (optional)
		if header.RemainingLength > 3 {
			n, err = ack.Props.Decode(r)
			totalRead += n
			if err != nil {
				return totalRead, err
			}
			if err := ack.Props.ValidateFor(propCtx); err != nil {
				return totalRead, err
			}
		}
	}

	return totalRead, nil
}
