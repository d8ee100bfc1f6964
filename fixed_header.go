package mqttc

import (
	"fmt"
	"io"
)

// PacketType identifies an MQTT control packet. The value occupies the high
// nibble of the first byte on the wire; 0 is reserved.
type PacketType byte

const (
	PacketCONNECT PacketType = iota + 1
	PacketCONNACK
	PacketPUBLISH
	PacketPUBACK
	PacketPUBREC
	PacketPUBREL
	PacketPUBCOMP
	PacketSUBSCRIBE
	PacketSUBACK
	PacketUNSUBSCRIBE
	PacketUNSUBACK
	PacketPINGREQ
	PacketPINGRESP
	PacketDISCONNECT
	PacketAUTH
)

var packetTypeNames = [...]string{
	"", "CONNECT", "CONNACK", "PUBLISH", "PUBACK", "PUBREC", "PUBREL",
	"PUBCOMP", "SUBSCRIBE", "SUBACK", "UNSUBSCRIBE", "UNSUBACK",
	"PINGREQ", "PINGRESP", "DISCONNECT", "AUTH",
}

// String returns the packet type name as it appears in the protocol.
func (p PacketType) String() string {
	if !p.Valid() {
		return "UNKNOWN"
	}
	return packetTypeNames[p]
}

// Valid reports whether p names a control packet.
func (p PacketType) Valid() bool {
	return p >= PacketCONNECT && p <= PacketAUTH
}

// Fixed header errors.
var (
	ErrInvalidPacketType  = fmt.Errorf("invalid packet type: %w", ErrMalformedPacket)
	ErrInvalidPacketFlags = fmt.Errorf("invalid packet flags: %w", ErrMalformedPacket)
)

// PUBLISH flag bits in the low nibble of the control byte.
const (
	flagRetain  = 0x01
	flagQoSMask = 0x06
	flagDUP     = 0x08
)

// FixedHeader is the two-to-five byte prefix every control packet starts
// with: a control byte (type nibble plus flags nibble) followed by the body
// length as a variable byte integer. Version records the protocol version
// the stream was negotiated with so packet decoders can branch on it.
type FixedHeader struct {
	PacketType      PacketType
	Flags           byte
	RemainingLength uint32
	Version         ProtocolVersion
}

// Encode writes the fixed header to w and returns the bytes written.
func (h *FixedHeader) Encode(w io.Writer) (int, error) {
	if !h.PacketType.Valid() {
		return 0, ErrInvalidPacketType
	}

	control := byte(h.PacketType)<<4 | h.Flags&0x0F
	n, err := w.Write([]byte{control})
	if err != nil {
		return n, err
	}

	vn, err := encodeVarint(w, h.RemainingLength)
	return n + vn, err
}

// Decode reads the fixed header from r and returns the bytes consumed.
func (h *FixedHeader) Decode(r io.Reader) (int, error) {
	var control [1]byte
	n, err := io.ReadFull(r, control[:])
	if err != nil {
		return n, err
	}

	h.PacketType = PacketType(control[0] >> 4)
	h.Flags = control[0] & 0x0F
	if !h.PacketType.Valid() {
		return n, ErrInvalidPacketType
	}

	length, vn, err := decodeVarint(r)
	n += vn
	if err != nil {
		return n, err
	}

	h.RemainingLength = length
	return n, nil
}

// Size returns the encoded size of the fixed header in bytes.
func (h *FixedHeader) Size() int {
	return 1 + varintSize(h.RemainingLength)
}

// ValidateFlags checks the flags nibble against the per-type table: PUBLISH
// carries DUP, QoS and RETAIN; PUBREL, SUBSCRIBE and UNSUBSCRIBE are pinned
// to 0x02; every other type to 0x00.
func (h *FixedHeader) ValidateFlags() error {
	if !h.PacketType.Valid() {
		return ErrInvalidPacketType
	}

	switch h.PacketType {
	case PacketPUBLISH:
		if h.QoS() == 3 {
			return ErrInvalidPacketFlags
		}
	case PacketPUBREL, PacketSUBSCRIBE, PacketUNSUBSCRIBE:
		if h.Flags != 0x02 {
			return ErrInvalidPacketFlags
		}
	default:
		if h.Flags != 0x00 {
			return ErrInvalidPacketFlags
		}
	}
	return nil
}

// DUP reports the PUBLISH duplicate delivery flag.
func (h *FixedHeader) DUP() bool {
	return h.Flags&flagDUP != 0
}

// SetDUP sets or clears the PUBLISH duplicate delivery flag.
func (h *FixedHeader) SetDUP(dup bool) {
	if dup {
		h.Flags |= flagDUP
	} else {
		h.Flags &^= flagDUP
	}
}

// QoS extracts the PUBLISH quality of service level from the flags.
func (h *FixedHeader) QoS() byte {
	return (h.Flags & flagQoSMask) >> 1
}

// SetQoS stores the PUBLISH quality of service level in the flags.
func (h *FixedHeader) SetQoS(qos byte) {
	h.Flags = h.Flags&^flagQoSMask | (qos&0x03)<<1
}

// Retain reports the PUBLISH retain flag.
func (h *FixedHeader) Retain() bool {
	return h.Flags&flagRetain != 0
}

// SetRetain sets or clears the PUBLISH retain flag.
func (h *FixedHeader) SetRetain(retain bool) {
	if retain {
		h.Flags |= flagRetain
	} else {
		h.Flags &^= flagRetain
	}
}
