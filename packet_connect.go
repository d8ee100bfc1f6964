package mqttc

import (
	"bytes"
	"errors"
	"io"
)

// CONNECT packet constants.
const protocolName = "MQTT"

// Connect flag bit positions.
const (
	connectFlagCleanStart   = 0x02
	connectFlagWillFlag     = 0x04
	connectFlagWillRetain   = 0x20
	connectFlagPasswordFlag = 0x40
	connectFlagUsernameFlag = 0x80
)

// CONNECT packet errors.
var (
	ErrInvalidProtocolName    = errors.New("invalid protocol name")
	ErrInvalidProtocolVersion = errors.New("unsupported protocol version")
	ErrInvalidConnectFlags    = errors.New("invalid connect flags")
	ErrClientIDTooLong        = errors.New("client ID too long")
	ErrClientIDRequired       = errors.New("client ID required with clean start false")
)

// ConnectPacket represents an MQTT CONNECT packet.
// MQTT v5.0 spec: Section 3.1
type ConnectPacket struct {
	// Version selects the wire format: protocol level 4 for v3.1.1,
	// level 5 for v5.0. v3.1.1 omits the property blocks.
	Version ProtocolVersion

	// ClientID is the client identifier.
	ClientID string

	// CleanStart indicates whether the session should start clean.
	// On v3.1.1 this is the Clean Session flag.
	CleanStart bool

	// KeepAlive is the keep alive interval in seconds.
	KeepAlive uint16

	// Props contains the CONNECT properties (v5 only).
	Props Properties

	// Username for authentication.
	Username string

	// Password for authentication.
	Password []byte

	// Will message configuration.
	WillFlag    bool
	WillRetain  bool
	WillQoS     byte
	WillTopic   string
	WillPayload []byte
	WillProps   Properties
}

// Type returns the packet type.
func (p *ConnectPacket) Type() PacketType {
	return PacketCONNECT
}

// Properties returns a pointer to the packet's properties.
func (p *ConnectPacket) Properties() *Properties {
	return &p.Props
}

// protocolLevel returns the protocol level byte for the packet's version.
func (p *ConnectPacket) protocolLevel() byte {
	if p.Version.is5() {
		return byte(ProtocolV5)
	}
	return byte(ProtocolV311)
}

// connectFlags returns the connect flags byte.
func (p *ConnectPacket) connectFlags() byte {
	var flags byte

	if p.CleanStart {
		flags |= connectFlagCleanStart
	}

	if p.WillFlag {
		flags |= connectFlagWillFlag
		flags |= (p.WillQoS & 0x03) << 3
		if p.WillRetain {
			flags |= connectFlagWillRetain
		}
	}

	if len(p.Password) > 0 {
		flags |= connectFlagPasswordFlag
	}

	if p.Username != "" {
		flags |= connectFlagUsernameFlag
	}

	return flags
}

// setConnectFlags parses the connect flags byte.
func (p *ConnectPacket) setConnectFlags(flags byte) error {
	// Reserved bit must be 0
	if flags&0x01 != 0 {
		return ErrInvalidConnectFlags
	}

	p.CleanStart = flags&connectFlagCleanStart != 0
	p.WillFlag = flags&connectFlagWillFlag != 0
	p.WillQoS = (flags >> 3) & 0x03
	p.WillRetain = flags&connectFlagWillRetain != 0

	// Will QoS must be 0 if Will Flag is 0
	if !p.WillFlag && p.WillQoS != 0 {
		return ErrInvalidConnectFlags
	}

	// Will Retain must be 0 if Will Flag is 0
	if !p.WillFlag && p.WillRetain {
		return ErrInvalidConnectFlags
	}

	// Will QoS must not be 3
	if p.WillQoS > 2 {
		return ErrInvalidConnectFlags
	}

	return nil
}

// Encode writes the packet to the writer.
func (p *ConnectPacket) Encode(w io.Writer) (int, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}
	if err := p.Props.ValidateFor(PropCtxCONNECT); err != nil {
		return 0, err
	}
	if p.WillFlag {
		if err := p.WillProps.ValidateFor(PropCtxWILL); err != nil {
			return 0, err
		}
	}

	// Build variable header and payload
	var buf bytes.Buffer

	// Protocol Name
	if _, err := encodeString(&buf, protocolName); err != nil {
		return 0, err
	}

	// Protocol Level
	if err := buf.WriteByte(p.protocolLevel()); err != nil {
		return 0, err
	}

	// Connect Flags
	if err := buf.WriteByte(p.connectFlags()); err != nil {
		return 0, err
	}

	// Keep Alive
	if _, err := buf.Write([]byte{byte(p.KeepAlive >> 8), byte(p.KeepAlive)}); err != nil {
		return 0, err
	}

	// Properties (v5 only)
	if p.Version.is5() {
		if _, err := p.Props.Encode(&buf); err != nil {
			return 0, err
		}
	}

	// Payload

	// Client ID
	if _, err := encodeString(&buf, p.ClientID); err != nil {
		return 0, err
	}

	// Will Properties, Topic, Payload
	if p.WillFlag {
		if p.Version.is5() {
			if _, err := p.WillProps.Encode(&buf); err != nil {
				return 0, err
			}
		}

		if _, err := encodeString(&buf, p.WillTopic); err != nil {
			return 0, err
		}

		if _, err := encodeBinary(&buf, p.WillPayload); err != nil {
			return 0, err
		}
	}

	// Username
	if p.Username != "" {
		if _, err := encodeString(&buf, p.Username); err != nil {
			return 0, err
		}
	}

	// Password
	if len(p.Password) > 0 {
		if _, err := encodeBinary(&buf, p.Password); err != nil {
			return 0, err
		}
	}

	// Write fixed header
	header := FixedHeader{
		PacketType:      PacketCONNECT,
		Flags:           0x00,
		RemainingLength: uint32(buf.Len()),
	}

	total, err := header.Encode(w)
	if err != nil {
		return total, err
	}

	// Write variable header and payload
	n, err := w.Write(buf.Bytes())
	return total + n, err
}

// Decode reads the packet from the reader.
func (p *ConnectPacket) Decode(r io.Reader, header FixedHeader) (int, error) {
	if header.PacketType != PacketCONNECT {
		return 0, ErrInvalidPacketType
	}

	var totalRead int

	// Protocol Name
	protoName, n, err := decodeString(r)
	totalRead += n
	if err != nil {
		return totalRead, err
	}
	if protoName != protocolName {
		return totalRead, ErrInvalidProtocolName
	}

	// Protocol Level
	var versionBuf [1]byte
	n, err = io.ReadFull(r, versionBuf[:])
	totalRead += n
	if err != nil {
		return totalRead, err
	}
	switch ProtocolVersion(versionBuf[0]) {
	case ProtocolV311, ProtocolV5:
		p.Version = ProtocolVersion(versionBuf[0])
	default:
		return totalRead, ErrInvalidProtocolVersion
	}

	// Connect Flags
	var flagsBuf [1]byte
	n, err = io.ReadFull(r, flagsBuf[:])
	totalRead += n
	if err != nil {
		return totalRead, err
	}
	if err := p.setConnectFlags(flagsBuf[0]); err != nil {
		return totalRead, err
	}

	usernameFlag := flagsBuf[0]&connectFlagUsernameFlag != 0
	passwordFlag := flagsBuf[0]&connectFlagPasswordFlag != 0

	// Keep Alive
	var keepAliveBuf [2]byte
	n, err = io.ReadFull(r, keepAliveBuf[:])
	totalRead += n
	if err != nil {
		return totalRead, err
	}
	p.KeepAlive = uint16(keepAliveBuf[0])<<8 | uint16(keepAliveBuf[1])

	// Properties (v5 only)
	if p.Version.is5() {
		n, err = p.Props.Decode(r)
		totalRead += n
		if err != nil {
			return totalRead, err
		}
		if err := p.Props.ValidateFor(PropCtxCONNECT); err != nil {
			return totalRead, err
		}
	}

	// Payload

	// Client ID
	p.ClientID, n, err = decodeString(r)
	totalRead += n
	if err != nil {
		return totalRead, err
	}

	// Will Properties, Topic, Payload
	if p.WillFlag {
		if p.Version.is5() {
			n, err = p.WillProps.Decode(r)
			totalRead += n
			if err != nil {
				return totalRead, err
			}
			if err := p.WillProps.ValidateFor(PropCtxWILL); err != nil {
				return totalRead, err
			}
		}

		p.WillTopic, n, err = decodeString(r)
		totalRead += n
		if err != nil {
			return totalRead, err
		}

		p.WillPayload, n, err = decodeBinary(r)
		totalRead += n
		if err != nil {
			return totalRead, err
		}
	}

	// Username
	if usernameFlag {
		p.Username, n, err = decodeString(r)
		totalRead += n
		if err != nil {
			return totalRead, err
		}
	}

	// Password
	if passwordFlag {
		p.Password, n, err = decodeBinary(r)
		totalRead += n
		if err != nil {
			return totalRead, err
		}
	}

	return totalRead, nil
}

// Size returns the exact number of bytes Encode will write.
func (p *ConnectPacket) Size() int {
	body := stringSize(protocolName)
	body += 1 // protocol level
	body += 1 // connect flags
	body += 2 // keep alive

	if p.Version.is5() {
		body += p.Props.EncodedSize()
	}

	body += stringSize(p.ClientID)

	if p.WillFlag {
		if p.Version.is5() {
			body += p.WillProps.EncodedSize()
		}
		body += stringSize(p.WillTopic)
		body += binarySize(p.WillPayload)
	}

	if p.Username != "" {
		body += stringSize(p.Username)
	}

	if len(p.Password) > 0 {
		body += binarySize(p.Password)
	}

	return 1 + varintSize(uint32(body)) + body
}

// Validate validates the packet contents.
func (p *ConnectPacket) Validate() error {
	// Client ID length check (max 23 characters recommended, but up to 65535 allowed)
	if len(p.ClientID) > 65535 {
		return ErrClientIDTooLong
	}

	// Client ID must be present if CleanStart is false
	if !p.CleanStart && p.ClientID == "" {
		return ErrClientIDRequired
	}

	// Will QoS must be valid
	if p.WillQoS > 2 {
		return ErrInvalidConnectFlags
	}

	// Will Retain and Will QoS should be 0 if Will Flag is not set
	if !p.WillFlag && (p.WillRetain || p.WillQoS != 0) {
		return ErrInvalidConnectFlags
	}

	if p.WillFlag && p.WillTopic == "" {
		return ErrTopicNameEmpty
	}

	return nil
}
