package mqttc

import (
	"errors"
	"fmt"
)

// Base error classes for wire-level failures. Specific codec errors wrap one
// of these so callers can classify with errors.Is.
var (
	// ErrMalformedPacket indicates a structural wire violation: bad remaining
	// length, unknown reason code byte, wrong fixed-header flags, or a
	// reserved-bit violation. Fatal to the current connection attempt.
	ErrMalformedPacket = errors.New("malformed packet")

	// ErrInsufficientBytes indicates the buffer ended before a complete
	// packet could be parsed. The caller should wait for more bytes rather
	// than reject the stream.
	ErrInsufficientBytes = errors.New("insufficient bytes")

	// ErrUnknownPacketID indicates an acknowledgment referenced a packet
	// identifier with no matching pending entry.
	ErrUnknownPacketID = errors.New("unknown packet id")
)

// ErrUnknownPropertyID indicates a property identifier outside the set the
// protocol defines. Classifies as ErrMalformedPacket.
var ErrUnknownPropertyID = fmt.Errorf("unknown property id: %w", ErrMalformedPacket)

// InvalidPropertyTypeError reports a property identifier that is either
// unknown or not legal for the packet type being decoded.
// Extract with errors.As; classifies as ErrUnknownPropertyID and
// ErrMalformedPacket with errors.Is.
type InvalidPropertyTypeError struct {
	ID PropertyID
}

func (e *InvalidPropertyTypeError) Error() string {
	return fmt.Sprintf("invalid property type 0x%02X", byte(e.ID))
}

func (e *InvalidPropertyTypeError) Unwrap() error { return ErrUnknownPropertyID }

// UnknownPacketIDError reports an acknowledgment naming a packet identifier
// the session is not tracking, either because it was never issued or because
// the flow already completed. Fatal to the operation only, not to the session.
type UnknownPacketIDError struct {
	PacketID uint16
}

func (e *UnknownPacketIDError) Error() string {
	return fmt.Sprintf("unknown packet id %d", e.PacketID)
}

func (e *UnknownPacketIDError) Unwrap() error { return ErrUnknownPacketID }
