package mqttc

import (
	"io"
	"time"
)

// ProtocolVersion identifies the MQTT protocol revision in use.
type ProtocolVersion byte

const (
	// ProtocolV311 is MQTT version 3.1.1 (protocol level 4).
	ProtocolV311 ProtocolVersion = 4
	// ProtocolV5 is MQTT version 5.0 (protocol level 5).
	ProtocolV5 ProtocolVersion = 5
)

// String returns the string representation of the protocol version.
func (v ProtocolVersion) String() string {
	switch v {
	case ProtocolV311:
		return "3.1.1"
	case ProtocolV5:
		return "5.0"
	default:
		return "unknown"
	}
}

// is5 reports whether the version uses v5 framing. The zero value behaves
// as v5 so bare packet literals encode the modern format.
func (v ProtocolVersion) is5() bool {
	return v != ProtocolV311
}

// QoS levels.
const (
	// QoS0 is at-most-once delivery.
	QoS0 byte = 0
	// QoS1 is at-least-once delivery.
	QoS1 byte = 1
	// QoS2 is exactly-once delivery.
	QoS2 byte = 2
)

// validQoS reports whether q is one of the three defined QoS levels.
func validQoS(q byte) bool {
	return q <= QoS2
}

// Packet is the interface that all MQTT control packets implement.
type Packet interface {
	// Type returns the packet type.
	Type() PacketType

	// Encode writes the packet to the writer.
	// Returns the number of bytes written.
	Encode(w io.Writer) (int, error)

	// Decode reads the packet body from the reader. The fixed header has
	// already been decoded and its remaining-length bytes are all that r
	// will yield.
	// Returns the number of bytes read.
	Decode(r io.Reader, header FixedHeader) (int, error)

	// Size returns the exact number of bytes Encode will write, including
	// the fixed header. It mirrors Encode field for field in the same
	// order; the two must never disagree.
	Size() int

	// Validate validates the packet contents.
	Validate() error
}

// PacketWithID is implemented by packets that carry a packet identifier.
type PacketWithID interface {
	Packet

	// GetPacketID returns the packet identifier.
	GetPacketID() uint16

	// SetPacketID sets the packet identifier.
	SetPacketID(id uint16)
}

// PacketWithProperties is implemented by packets that carry v5 properties.
type PacketWithProperties interface {
	Packet

	// Properties returns a pointer to the packet's properties.
	Properties() *Properties
}

// Message represents an MQTT application message.
// This is the user-facing struct with public fields for easy access.
type Message struct {
	// Topic is the topic name to publish to or received from.
	Topic string

	// Payload is the application message payload.
	Payload []byte

	// QoS is the Quality of Service level (0, 1, or 2).
	QoS byte

	// Retain indicates if this is a retained message.
	Retain bool

	// PacketID is the packet identifier correlating this message with its
	// acknowledgments. Assigned by the session for QoS > 0; zero otherwise.
	PacketID uint16

	// DUP indicates the message is a retransmission of an earlier attempt.
	DUP bool

	// PayloadFormat indicates if the payload is UTF-8 encoded text (1) or unspecified bytes (0).
	PayloadFormat byte

	// MessageExpiry is the lifetime of the message in seconds.
	// Zero means no expiry.
	MessageExpiry uint32

	// ContentType is the MIME type of the payload.
	ContentType string

	// ResponseTopic is the topic for response messages.
	ResponseTopic string

	// CorrelationData is used to correlate request/response messages.
	CorrelationData []byte

	// UserProperties contains user-defined name-value pairs, order preserved.
	UserProperties []StringPair

	// SubscriptionIdentifiers lists the identifiers of the subscriptions
	// that caused the server to deliver this message (v5 only, inbound).
	SubscriptionIdentifiers []uint32

	// PublishedAt is when the message entered this client: delivery time
	// for inbound messages, zero unless set by the application for
	// outbound ones. Interpreted together with MessageExpiry.
	PublishedAt time.Time
}

// NewMessage creates a message for the given topic and QoS level.
func NewMessage(topic string, qos byte) *Message {
	return &Message{Topic: topic, QoS: qos}
}

// Clone creates a deep copy of the message.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}

	clone := &Message{
		Topic:         m.Topic,
		QoS:           m.QoS,
		Retain:        m.Retain,
		PacketID:      m.PacketID,
		DUP:           m.DUP,
		PayloadFormat: m.PayloadFormat,
		MessageExpiry: m.MessageExpiry,
		ContentType:   m.ContentType,
		ResponseTopic: m.ResponseTopic,
		PublishedAt:   m.PublishedAt,
	}

	if m.Payload != nil {
		clone.Payload = make([]byte, len(m.Payload))
		copy(clone.Payload, m.Payload)
	}

	if m.CorrelationData != nil {
		clone.CorrelationData = make([]byte, len(m.CorrelationData))
		copy(clone.CorrelationData, m.CorrelationData)
	}

	if m.UserProperties != nil {
		clone.UserProperties = make([]StringPair, len(m.UserProperties))
		copy(clone.UserProperties, m.UserProperties)
	}

	if m.SubscriptionIdentifiers != nil {
		clone.SubscriptionIdentifiers = make([]uint32, len(m.SubscriptionIdentifiers))
		copy(clone.SubscriptionIdentifiers, m.SubscriptionIdentifiers)
	}

	return clone
}

// IsExpired reports whether the message has outlived its expiry interval.
// Messages without an expiry, or without a publication timestamp, never
// expire.
func (m *Message) IsExpired() bool {
	if m.MessageExpiry == 0 || m.PublishedAt.IsZero() {
		return false
	}
	return time.Since(m.PublishedAt) > time.Duration(m.MessageExpiry)*time.Second
}

// RemainingExpiry returns the seconds left before the message expires,
// zero when it already has. Without a publication timestamp the full
// interval is returned.
func (m *Message) RemainingExpiry() uint32 {
	if m.MessageExpiry == 0 {
		return 0
	}
	if m.PublishedAt.IsZero() {
		return m.MessageExpiry
	}
	elapsed := uint32(time.Since(m.PublishedAt) / time.Second)
	if elapsed >= m.MessageExpiry {
		return 0
	}
	return m.MessageExpiry - elapsed
}

// ToProperties converts the message metadata to MQTT properties.
// This is used when encoding a v5 PUBLISH packet.
func (m *Message) ToProperties() Properties {
	var p Properties

	if m.PayloadFormat != 0 {
		p.Set(PropPayloadFormatIndicator, m.PayloadFormat)
	}

	if m.MessageExpiry != 0 {
		p.Set(PropMessageExpiryInterval, m.MessageExpiry)
	}

	if m.ContentType != "" {
		p.Set(PropContentType, m.ContentType)
	}

	if m.ResponseTopic != "" {
		p.Set(PropResponseTopic, m.ResponseTopic)
	}

	if len(m.CorrelationData) > 0 {
		p.Set(PropCorrelationData, m.CorrelationData)
	}

	for _, up := range m.UserProperties {
		p.Add(PropUserProperty, up)
	}

	return p
}

// FromProperties populates the message metadata from MQTT properties.
// This is used when decoding a v5 PUBLISH packet.
func (m *Message) FromProperties(p *Properties) {
	if p == nil {
		return
	}

	m.PayloadFormat = p.GetByte(PropPayloadFormatIndicator)
	m.MessageExpiry = p.GetUint32(PropMessageExpiryInterval)
	m.ContentType = p.GetString(PropContentType)
	m.ResponseTopic = p.GetString(PropResponseTopic)
	m.CorrelationData = p.GetBinary(PropCorrelationData)
	m.UserProperties = p.GetAllStringPairs(PropUserProperty)
	m.SubscriptionIdentifiers = p.GetAllVarInts(PropSubscriptionIdentifier)
}
