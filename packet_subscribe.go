package mqttc

import (
	"bytes"
	"errors"
	"io"
)

var (
	ErrInvalidPacketID             = errors.New("invalid packet identifier")
	ErrProtocolViolation           = errors.New("protocol violation")
	ErrInvalidSubscriptionID       = errors.New("invalid subscription identifier")
	maxSubscriptionIdentifierValue = uint32(268435455) // 0x0FFFFFFF per MQTT v5.0 spec
)

// Subscription represents a topic filter with subscription options.
// The v5-only options (NoLocal, RetainAsPublish, RetainHandling) are ignored
// when encoding for a v3.1.1 stream.
// MQTT v5.0 spec: Section 3.8.3.1
type Subscription struct {
	TopicFilter     string
	QoS             byte
	NoLocal         bool
	RetainAsPublish bool
	RetainHandling  byte
	SubscriptionID  uint32 // Set from SUBSCRIBE properties, used in session state
}

// SubscribePacket represents an MQTT SUBSCRIBE packet.
// MQTT v5.0 spec: Section 3.8
type SubscribePacket struct {
	Version       ProtocolVersion
	PacketID      uint16
	Props         Properties
	Subscriptions []Subscription
}

// Type returns the packet type.
func (p *SubscribePacket) Type() PacketType { return PacketSUBSCRIBE }

// Properties returns a pointer to the packet's properties.
func (p *SubscribePacket) Properties() *Properties { return &p.Props }

// GetPacketID returns the packet identifier.
func (p *SubscribePacket) GetPacketID() uint16 { return p.PacketID }

// SetPacketID sets the packet identifier.
func (p *SubscribePacket) SetPacketID(id uint16) { p.PacketID = id }

// options returns the subscription options byte. v3.1.1 carries only the
// requested QoS.
func (p *SubscribePacket) options(sub *Subscription) byte {
	options := sub.QoS & 0x03
	if p.Version.is5() {
		if sub.NoLocal {
			options |= 0x04
		}
		if sub.RetainAsPublish {
			options |= 0x08
		}
		options |= (sub.RetainHandling & 0x03) << 4
	}
	return options
}

// Encode writes the packet to the writer.
func (p *SubscribePacket) Encode(w io.Writer) (int, error) {
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

	// Payload: subscriptions
	for i := range p.Subscriptions {
		sub := &p.Subscriptions[i]

		// Topic Filter
		if _, err := encodeString(&buf, sub.TopicFilter); err != nil {
			return 0, err
		}

		// Subscription Options
		if err := buf.WriteByte(p.options(sub)); err != nil {
			return 0, err
		}
	}

	// Write fixed header
	header := FixedHeader{
		PacketType:      PacketSUBSCRIBE,
		Flags:           0x02, // SUBSCRIBE must have flags 0x02
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
func (p *SubscribePacket) Decode(r io.Reader, header FixedHeader) (int, error) {
	if header.PacketType != PacketSUBSCRIBE {
		return 0, ErrInvalidPacketType
	}
	if header.Flags != 0x02 {
		return 0, ErrInvalidPacketFlags
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
	var subscriptionID uint32
	if header.Version.is5() {
		n, err = p.Props.Decode(r)
		totalRead += n
		if err != nil {
			return totalRead, err
		}
		if err := p.Props.ValidateFor(PropCtxSUBSCRIBE); err != nil {
			return totalRead, err
		}

		// Subscription identifier, when present, must be 1-268435455
		if p.Props.Has(PropSubscriptionIdentifier) {
			subscriptionID = p.Props.GetUint32(PropSubscriptionIdentifier)
			if subscriptionID == 0 || subscriptionID > maxSubscriptionIdentifierValue {
				return totalRead, ErrInvalidSubscriptionID
			}
		}
	}

	// Payload: subscriptions
	p.Subscriptions = nil
	for totalRead < int(header.RemainingLength) {
		var sub Subscription

		// Topic Filter
		topicFilter, n, err := decodeString(r)
		totalRead += n
		if err != nil {
			return totalRead, err
		}
		sub.TopicFilter = topicFilter

		// Subscription Options
		var optBuf [1]byte
		n, err = io.ReadFull(r, optBuf[:])
		totalRead += n
		if err != nil {
			return totalRead, err
		}
		options := optBuf[0]

		sub.QoS = options & 0x03

		if header.Version.is5() {
			sub.NoLocal = (options & 0x04) != 0
			sub.RetainAsPublish = (options & 0x08) != 0
			sub.RetainHandling = (options >> 4) & 0x03
			sub.SubscriptionID = subscriptionID

			// Check reserved bits
			if (options & 0xC0) != 0 {
				return totalRead, ErrProtocolViolation
			}
		} else {
			// v3.1.1 reserves everything above the QoS bits
			if (options & 0xFC) != 0 {
				return totalRead, ErrProtocolViolation
			}
		}

		p.Subscriptions = append(p.Subscriptions, sub)
	}

	return totalRead, nil
}

// Size returns the exact number of bytes Encode will write.
func (p *SubscribePacket) Size() int {
	body := 2 // packet identifier
	if p.Version.is5() {
		body += p.Props.EncodedSize()
	}
	for i := range p.Subscriptions {
		body += stringSize(p.Subscriptions[i].TopicFilter) + 1
	}
	return 1 + varintSize(uint32(body)) + body
}

// Validate validates the packet contents.
func (p *SubscribePacket) Validate() error {
	if p.PacketID == 0 {
		return ErrInvalidPacketID
	}
	if len(p.Subscriptions) == 0 {
		return ErrProtocolViolation
	}
	for _, sub := range p.Subscriptions {
		if sub.TopicFilter == "" {
			return ErrProtocolViolation
		}
		if sub.QoS > 2 {
			return ErrInvalidQoS
		}
		if sub.RetainHandling > 2 {
			return ErrProtocolViolation
		}
	}
	return nil
}
