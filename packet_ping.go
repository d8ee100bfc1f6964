package mqttc

import "io"

// PINGREQ and PINGRESP carry nothing beyond the fixed header.

func encodeEmptyPacket(w io.Writer, packetType PacketType) (int, error) {
	header := FixedHeader{PacketType: packetType}
	return header.Encode(w)
}

func decodeEmptyPacket(header FixedHeader, packetType PacketType) (int, error) {
	if header.PacketType != packetType {
		return 0, ErrInvalidPacketType
	}
	if header.Flags != 0x00 {
		return 0, ErrInvalidPacketFlags
	}
	if header.RemainingLength != 0 {
		return 0, ErrProtocolViolation
	}
	return 0, nil
}

// PingreqPacket represents an MQTT PINGREQ packet.
// MQTT v5.0 spec: Section 3.12
type PingreqPacket struct{}

func (p *PingreqPacket) Type() PacketType { return PacketPINGREQ }

func (p *PingreqPacket) Encode(w io.Writer) (int, error) {
	return encodeEmptyPacket(w, PacketPINGREQ)
}

func (p *PingreqPacket) Decode(_ io.Reader, header FixedHeader) (int, error) {
	return decodeEmptyPacket(header, PacketPINGREQ)
}

// Size returns the exact number of bytes Encode will write.
func (p *PingreqPacket) Size() int { return 2 }

func (p *PingreqPacket) Validate() error { return nil }

// PingrespPacket represents an MQTT PINGRESP packet.
// MQTT v5.0 spec: Section 3.13
type PingrespPacket struct{}

func (p *PingrespPacket) Type() PacketType { return PacketPINGRESP }

func (p *PingrespPacket) Encode(w io.Writer) (int, error) {
	return encodeEmptyPacket(w, PacketPINGRESP)
}

func (p *PingrespPacket) Decode(_ io.Reader, header FixedHeader) (int, error) {
	return decodeEmptyPacket(header, PacketPINGRESP)
}

// Size returns the exact number of bytes Encode will write.
func (p *PingrespPacket) Size() int { return 2 }

func (p *PingrespPacket) Validate() error { return nil }
