package mqttc

// WillMessage is the Last Will and Testament carried in CONNECT. The server
// publishes it on the client's behalf when the connection ends without a
// clean DISCONNECT.
type WillMessage struct {
	Topic   string
	Payload []byte
	QoS     byte
	Retain  bool

	// DelayInterval in seconds. The server holds the will back until the
	// interval expires or the session ends, whichever comes first.
	DelayInterval uint32

	// PayloadFormat is 1 for UTF-8 text, 0 for opaque bytes.
	PayloadFormat byte

	// MessageExpiry in seconds; zero means the will never expires.
	MessageExpiry uint32

	// ContentType is the MIME type of the payload.
	ContentType string

	// ResponseTopic and CorrelationData support request/response over the
	// will message.
	ResponseTopic   string
	CorrelationData []byte

	UserProperties []StringPair
}

// WillMessageFromConnect extracts the will from a CONNECT packet, or nil
// when the packet carries none.
func WillMessageFromConnect(pkt *ConnectPacket) *WillMessage {
	if !pkt.WillFlag {
		return nil
	}

	will := &WillMessage{
		Topic:   pkt.WillTopic,
		Payload: pkt.WillPayload,
		QoS:     pkt.WillQoS,
		Retain:  pkt.WillRetain,
	}

	if pkt.WillProps.Len() > 0 {
		will.DelayInterval = pkt.WillProps.GetUint32(PropWillDelayInterval)
		will.PayloadFormat = pkt.WillProps.GetByte(PropPayloadFormatIndicator)
		will.MessageExpiry = pkt.WillProps.GetUint32(PropMessageExpiryInterval)
		will.ContentType = pkt.WillProps.GetString(PropContentType)
		will.ResponseTopic = pkt.WillProps.GetString(PropResponseTopic)
		will.CorrelationData = pkt.WillProps.GetBinary(PropCorrelationData)
		will.UserProperties = pkt.WillProps.GetAllStringPairs(PropUserProperty)
	}

	return will
}

// ToMessage converts the will into a Message, the shape handed to message
// handlers.
func (w *WillMessage) ToMessage() *Message {
	return &Message{
		Topic:           w.Topic,
		Payload:         w.Payload,
		QoS:             w.QoS,
		Retain:          w.Retain,
		PayloadFormat:   w.PayloadFormat,
		MessageExpiry:   w.MessageExpiry,
		ContentType:     w.ContentType,
		ResponseTopic:   w.ResponseTopic,
		CorrelationData: w.CorrelationData,
		UserProperties:  w.UserProperties,
	}
}

// ToProperties builds the CONNECT will property block. Zero-valued fields
// are left off the wire.
func (w *WillMessage) ToProperties() *Properties {
	props := &Properties{}

	if w.DelayInterval > 0 {
		props.Set(PropWillDelayInterval, w.DelayInterval)
	}
	if w.PayloadFormat > 0 {
		props.Set(PropPayloadFormatIndicator, w.PayloadFormat)
	}
	if w.MessageExpiry > 0 {
		props.Set(PropMessageExpiryInterval, w.MessageExpiry)
	}
	if w.ContentType != "" {
		props.Set(PropContentType, w.ContentType)
	}
	if w.ResponseTopic != "" {
		props.Set(PropResponseTopic, w.ResponseTopic)
	}
	if len(w.CorrelationData) > 0 {
		props.Set(PropCorrelationData, w.CorrelationData)
	}
	for _, up := range w.UserProperties {
		props.Add(PropUserProperty, up)
	}

	return props
}

// Validate checks the will topic and QoS.
func (w *WillMessage) Validate() error {
	if err := ValidateTopicName(w.Topic); err != nil {
		return err
	}
	if !validQoS(w.QoS) {
		return ErrInvalidQoS
	}
	return nil
}
