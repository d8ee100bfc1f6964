package mqttc

import "fmt"

// ReasonCode represents an MQTT v5.0 reason code.
type ReasonCode byte

// ErrInvalidReasonCode indicates a reason code byte outside the closed set
// defined for its packet type.
var ErrInvalidReasonCode = fmt.Errorf("invalid reason code: %w", ErrMalformedPacket)

// Reason codes as defined in MQTT v5.0 specification, Section 2.4.
const (
	// Success / Normal disconnection / Granted QoS 0
	ReasonSuccess ReasonCode = 0x00
	// Granted QoS 1
	ReasonGrantedQoS1 ReasonCode = 0x01
	// Granted QoS 2
	ReasonGrantedQoS2 ReasonCode = 0x02
	// Disconnect with Will Message
	ReasonDisconnectWithWill ReasonCode = 0x04
	// No matching subscribers
	ReasonNoMatchingSubscribers ReasonCode = 0x10
	// No subscription existed
	ReasonNoSubscriptionExisted ReasonCode = 0x11
	// Continue authentication
	ReasonContinueAuth ReasonCode = 0x18
	// Re-authenticate
	ReasonReAuth ReasonCode = 0x19
	// Unspecified error
	ReasonUnspecifiedError ReasonCode = 0x80
	// Malformed Packet
	ReasonMalformedPacket ReasonCode = 0x81
	// Protocol Error
	ReasonProtocolError ReasonCode = 0x82
	// Implementation specific error
	ReasonImplSpecificError ReasonCode = 0x83
	// Unsupported Protocol Version
	ReasonUnsupportedProtocolVersion ReasonCode = 0x84
	// Client Identifier not valid
	ReasonClientIDNotValid ReasonCode = 0x85
	// Bad User Name or Password
	ReasonBadUserNameOrPassword ReasonCode = 0x86
	// Not authorized
	ReasonNotAuthorized ReasonCode = 0x87
	// Server unavailable
	ReasonServerUnavailable ReasonCode = 0x88
	// Server busy
	ReasonServerBusy ReasonCode = 0x89
	// Banned
	ReasonBanned ReasonCode = 0x8A
	// Server shutting down
	ReasonServerShuttingDown ReasonCode = 0x8B
	// Bad authentication method
	ReasonBadAuthMethod ReasonCode = 0x8C
	// Keep Alive timeout
	ReasonKeepAliveTimeout ReasonCode = 0x8D
	// Session taken over
	ReasonSessionTakenOver ReasonCode = 0x8E
	// Topic Filter invalid
	ReasonTopicFilterInvalid ReasonCode = 0x8F
	// Topic Name invalid
	ReasonTopicNameInvalid ReasonCode = 0x90
	// Packet Identifier in use
	ReasonPacketIDInUse ReasonCode = 0x91
	// Packet Identifier not found
	ReasonPacketIDNotFound ReasonCode = 0x92
	// Receive Maximum exceeded
	ReasonReceiveMaxExceeded ReasonCode = 0x93
	// Topic Alias invalid
	ReasonTopicAliasInvalid ReasonCode = 0x94
	// Packet too large
	ReasonPacketTooLarge ReasonCode = 0x95
	// Message rate too high
	ReasonMessageRateTooHigh ReasonCode = 0x96
	// Quota exceeded
	ReasonQuotaExceeded ReasonCode = 0x97
	// Administrative action
	ReasonAdminAction ReasonCode = 0x98
	// Payload format invalid
	ReasonPayloadFormatInvalid ReasonCode = 0x99
	// Retain not supported
	ReasonRetainNotSupported ReasonCode = 0x9A
	// QoS not supported
	ReasonQoSNotSupported ReasonCode = 0x9B
	// Use another server
	ReasonUseAnotherServer ReasonCode = 0x9C
	// Server moved
	ReasonServerMoved ReasonCode = 0x9D
	// Shared Subscriptions not supported
	ReasonSharedSubsNotSupported ReasonCode = 0x9E
	// Connection rate exceeded
	ReasonConnectionRateExceeded ReasonCode = 0x9F
	// Maximum connect time
	ReasonMaxConnectTime ReasonCode = 0xA0
	// Subscription Identifiers not supported
	ReasonSubIDsNotSupported ReasonCode = 0xA1
	// Wildcard Subscriptions not supported
	ReasonWildcardSubsNotSupported ReasonCode = 0xA2
)

// ReasonGrantedQoS0 aliases ReasonSuccess in SUBACK payloads.
const ReasonGrantedQoS0 = ReasonSuccess

// subackFailureV311 is the only failure return code a v3.1.1 SUBACK may carry.
const subackFailureV311 ReasonCode = 0x80

var reasonCodeStrings = map[ReasonCode]string{
	ReasonSuccess:                    "Success",
	ReasonGrantedQoS1:                "Granted QoS 1",
	ReasonGrantedQoS2:                "Granted QoS 2",
	ReasonDisconnectWithWill:         "Disconnect with Will Message",
	ReasonNoMatchingSubscribers:      "No matching subscribers",
	ReasonNoSubscriptionExisted:      "No subscription existed",
	ReasonContinueAuth:               "Continue authentication",
	ReasonReAuth:                     "Re-authenticate",
	ReasonUnspecifiedError:           "Unspecified error",
	ReasonMalformedPacket:            "Malformed Packet",
	ReasonProtocolError:              "Protocol Error",
	ReasonImplSpecificError:          "Implementation specific error",
	ReasonUnsupportedProtocolVersion: "Unsupported Protocol Version",
	ReasonClientIDNotValid:           "Client Identifier not valid",
	ReasonBadUserNameOrPassword:      "Bad User Name or Password",
	ReasonNotAuthorized:              "Not authorized",
	ReasonServerUnavailable:          "Server unavailable",
	ReasonServerBusy:                 "Server busy",
	ReasonBanned:                     "Banned",
	ReasonServerShuttingDown:         "Server shutting down",
	ReasonBadAuthMethod:              "Bad authentication method",
	ReasonKeepAliveTimeout:           "Keep Alive timeout",
	ReasonSessionTakenOver:           "Session taken over",
	ReasonTopicFilterInvalid:         "Topic Filter invalid",
	ReasonTopicNameInvalid:           "Topic Name invalid",
	ReasonPacketIDInUse:              "Packet Identifier in use",
	ReasonPacketIDNotFound:           "Packet Identifier not found",
	ReasonReceiveMaxExceeded:         "Receive Maximum exceeded",
	ReasonTopicAliasInvalid:          "Topic Alias invalid",
	ReasonPacketTooLarge:             "Packet too large",
	ReasonMessageRateTooHigh:         "Message rate too high",
	ReasonQuotaExceeded:              "Quota exceeded",
	ReasonAdminAction:                "Administrative action",
	ReasonPayloadFormatInvalid:       "Payload format invalid",
	ReasonRetainNotSupported:         "Retain not supported",
	ReasonQoSNotSupported:            "QoS not supported",
	ReasonUseAnotherServer:           "Use another server",
	ReasonServerMoved:                "Server moved",
	ReasonSharedSubsNotSupported:     "Shared Subscriptions not supported",
	ReasonConnectionRateExceeded:     "Connection rate exceeded",
	ReasonMaxConnectTime:             "Maximum connect time",
	ReasonSubIDsNotSupported:         "Subscription Identifiers not supported",
	ReasonWildcardSubsNotSupported:   "Wildcard Subscriptions not supported",
}

// String returns the human-readable description of the reason code.
func (r ReasonCode) String() string {
	if s, ok := reasonCodeStrings[r]; ok {
		return s
	}
	return "Unknown reason code"
}

// IsError returns true if the reason code indicates an error (>= 0x80).
func (r ReasonCode) IsError() bool {
	return r >= 0x80
}

// IsSuccess returns true if the reason code indicates success (< 0x80).
func (r ReasonCode) IsSuccess() bool {
	return r < 0x80
}

// reasonCodeTables lists, per packet type, the reason code bytes that packet
// may carry. Each set is closed; a byte outside its packet's table is
// rejected on decode, never coerced.
var reasonCodeTables = map[PacketType]map[ReasonCode]bool{
	PacketCONNACK: {
		ReasonSuccess:                    true,
		ReasonUnspecifiedError:           true,
		ReasonMalformedPacket:            true,
		ReasonProtocolError:              true,
		ReasonImplSpecificError:          true,
		ReasonUnsupportedProtocolVersion: true,
		ReasonClientIDNotValid:           true,
		ReasonBadUserNameOrPassword:      true,
		ReasonNotAuthorized:              true,
		ReasonServerUnavailable:          true,
		ReasonServerBusy:                 true,
		ReasonBanned:                     true,
		ReasonBadAuthMethod:              true,
		ReasonTopicNameInvalid:           true,
		ReasonPacketTooLarge:             true,
		ReasonQuotaExceeded:              true,
		ReasonPayloadFormatInvalid:       true,
		ReasonRetainNotSupported:         true,
		ReasonQoSNotSupported:            true,
		ReasonUseAnotherServer:           true,
		ReasonServerMoved:                true,
		ReasonConnectionRateExceeded:     true,
	},
	PacketPUBACK: {
		ReasonSuccess:               true,
		ReasonNoMatchingSubscribers: true,
		ReasonUnspecifiedError:      true,
		ReasonImplSpecificError:     true,
		ReasonNotAuthorized:         true,
		ReasonTopicNameInvalid:      true,
		ReasonPacketIDInUse:         true,
		ReasonQuotaExceeded:         true,
		ReasonPayloadFormatInvalid:  true,
	},
	PacketPUBREC: {
		ReasonSuccess:               true,
		ReasonNoMatchingSubscribers: true,
		ReasonUnspecifiedError:      true,
		ReasonImplSpecificError:     true,
		ReasonNotAuthorized:         true,
		ReasonTopicNameInvalid:      true,
		ReasonPacketIDInUse:         true,
		ReasonQuotaExceeded:         true,
		ReasonPayloadFormatInvalid:  true,
	},
	PacketPUBREL: {
		ReasonSuccess:          true,
		ReasonPacketIDNotFound: true,
	},
	PacketPUBCOMP: {
		ReasonSuccess:          true,
		ReasonPacketIDNotFound: true,
	},
	PacketSUBACK: {
		ReasonGrantedQoS0:              true,
		ReasonGrantedQoS1:              true,
		ReasonGrantedQoS2:              true,
		ReasonUnspecifiedError:         true,
		ReasonImplSpecificError:        true,
		ReasonNotAuthorized:            true,
		ReasonTopicFilterInvalid:       true,
		ReasonPacketIDInUse:            true,
		ReasonQuotaExceeded:            true,
		ReasonSharedSubsNotSupported:   true,
		ReasonSubIDsNotSupported:       true,
		ReasonWildcardSubsNotSupported: true,
	},
	PacketUNSUBACK: {
		ReasonSuccess:               true,
		ReasonNoSubscriptionExisted: true,
		ReasonUnspecifiedError:      true,
		ReasonImplSpecificError:     true,
		ReasonNotAuthorized:         true,
		ReasonTopicFilterInvalid:    true,
		ReasonPacketIDInUse:         true,
	},
	PacketDISCONNECT: {
		ReasonSuccess:                  true,
		ReasonDisconnectWithWill:       true,
		ReasonUnspecifiedError:         true,
		ReasonMalformedPacket:          true,
		ReasonProtocolError:            true,
		ReasonImplSpecificError:        true,
		ReasonNotAuthorized:            true,
		ReasonServerBusy:               true,
		ReasonServerShuttingDown:       true,
		ReasonKeepAliveTimeout:         true,
		ReasonSessionTakenOver:         true,
		ReasonTopicFilterInvalid:       true,
		ReasonTopicNameInvalid:         true,
		ReasonReceiveMaxExceeded:       true,
		ReasonTopicAliasInvalid:        true,
		ReasonPacketTooLarge:           true,
		ReasonMessageRateTooHigh:       true,
		ReasonQuotaExceeded:            true,
		ReasonAdminAction:              true,
		ReasonPayloadFormatInvalid:     true,
		ReasonRetainNotSupported:       true,
		ReasonQoSNotSupported:          true,
		ReasonUseAnotherServer:         true,
		ReasonServerMoved:              true,
		ReasonSharedSubsNotSupported:   true,
		ReasonMaxConnectTime:           true,
		ReasonSubIDsNotSupported:       true,
		ReasonWildcardSubsNotSupported: true,
	},
	PacketAUTH: {
		ReasonSuccess:      true,
		ReasonContinueAuth: true,
		ReasonReAuth:       true,
	},
}

// ValidFor returns true if the reason code may appear in the given packet type.
func (r ReasonCode) ValidFor(t PacketType) bool {
	return reasonCodeTables[t][r]
}

// ConnectReturnCode is the v3.1.1 CONNACK return code.
type ConnectReturnCode byte

// CONNACK return codes as defined in MQTT v3.1.1, Section 3.2.2.3.
const (
	ConnectionAccepted         ConnectReturnCode = 0
	ConnRefusedProtocolVersion ConnectReturnCode = 1
	ConnRefusedIdentifier      ConnectReturnCode = 2
	ConnRefusedServerUnavail   ConnectReturnCode = 3
	ConnRefusedBadUserPass     ConnectReturnCode = 4
	ConnRefusedNotAuthorized   ConnectReturnCode = 5
)

// Valid returns true if the return code is defined by v3.1.1.
func (c ConnectReturnCode) Valid() bool {
	return c <= ConnRefusedNotAuthorized
}

// String returns the human-readable description of the return code.
func (c ConnectReturnCode) String() string {
	switch c {
	case ConnectionAccepted:
		return "Connection Accepted"
	case ConnRefusedProtocolVersion:
		return "Connection Refused: unacceptable protocol version"
	case ConnRefusedIdentifier:
		return "Connection Refused: identifier rejected"
	case ConnRefusedServerUnavail:
		return "Connection Refused: server unavailable"
	case ConnRefusedBadUserPass:
		return "Connection Refused: bad user name or password"
	case ConnRefusedNotAuthorized:
		return "Connection Refused: not authorized"
	default:
		return "Unknown return code"
	}
}

// ReasonCode maps the v3.1.1 return code onto the closest v5 reason code so
// callers can handle both versions uniformly.
func (c ConnectReturnCode) ReasonCode() ReasonCode {
	switch c {
	case ConnectionAccepted:
		return ReasonSuccess
	case ConnRefusedProtocolVersion:
		return ReasonUnsupportedProtocolVersion
	case ConnRefusedIdentifier:
		return ReasonClientIDNotValid
	case ConnRefusedServerUnavail:
		return ReasonServerUnavailable
	case ConnRefusedBadUserPass:
		return ReasonBadUserNameOrPassword
	case ConnRefusedNotAuthorized:
		return ReasonNotAuthorized
	default:
		return ReasonUnspecifiedError
	}
}
