package mqttc

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisconnectPacketEncodeDecode(t *testing.T) {
	t.Run("v311 is always empty", func(t *testing.T) {
		pkt := &DisconnectPacket{Version: ProtocolV311}

		raw := encodePacket(t, pkt)
		assert.Equal(t, []byte{0xE0, 0x00}, raw)
	})

	t.Run("v5 normal disconnection drops the tail", func(t *testing.T) {
		pkt := &DisconnectPacket{Version: ProtocolV5}

		raw := encodePacket(t, pkt)
		assert.Equal(t, []byte{0xE0, 0x00}, raw)

		decoded := roundTrip(t, pkt, ProtocolV5).(*DisconnectPacket)
		assert.Equal(t, ReasonSuccess, decoded.ReasonCode)
	})

	t.Run("v5 with reason", func(t *testing.T) {
		pkt := &DisconnectPacket{Version: ProtocolV5, ReasonCode: ReasonDisconnectWithWill}

		raw := encodePacket(t, pkt)
		assert.Equal(t, []byte{0xE0, 0x01, 0x04}, raw)

		decoded := roundTrip(t, pkt, ProtocolV5).(*DisconnectPacket)
		assert.Equal(t, ReasonDisconnectWithWill, decoded.ReasonCode)
	})

	t.Run("v5 with reason and properties", func(t *testing.T) {
		pkt := &DisconnectPacket{Version: ProtocolV5, ReasonCode: ReasonServerShuttingDown}
		pkt.Props.Set(PropReasonString, "maintenance")
		pkt.Props.Set(PropSessionExpiryInterval, uint32(0))

		decoded := roundTrip(t, pkt, ProtocolV5).(*DisconnectPacket)
		assert.Equal(t, ReasonServerShuttingDown, decoded.ReasonCode)
		assert.Equal(t, "maintenance", decoded.Props.GetString(PropReasonString))
	})
}

func TestDisconnectPacketValidation(t *testing.T) {
	t.Run("reason code outside the DISCONNECT table", func(t *testing.T) {
		pkt := &DisconnectPacket{Version: ProtocolV5, ReasonCode: ReasonContinueAuth}
		assert.ErrorIs(t, pkt.Validate(), ErrInvalidReasonCode)
	})

	t.Run("v311 ignores the reason code", func(t *testing.T) {
		pkt := &DisconnectPacket{Version: ProtocolV311, ReasonCode: ReasonContinueAuth}
		assert.NoError(t, pkt.Validate())
	})
}

func TestDisconnectPacketEncodeErrors(t *testing.T) {
	pkt := &DisconnectPacket{Version: ProtocolV5}
	// Topic Alias Maximum belongs to CONNECT and CONNACK
	pkt.Props.Set(PropTopicAliasMaximum, uint16(5))

	var buf bytes.Buffer
	_, err := pkt.Encode(&buf)

	var typeErr *InvalidPropertyTypeError
	require.ErrorAs(t, err, &typeErr)
	assert.Equal(t, PropTopicAliasMaximum, typeErr.ID)
}

func TestDisconnectPacketDecodeErrors(t *testing.T) {
	t.Run("v311 body must be empty", func(t *testing.T) {
		var pkt DisconnectPacket
		header := FixedHeader{PacketType: PacketDISCONNECT, RemainingLength: 1, Version: ProtocolV311}
		_, err := pkt.Decode(bytes.NewReader([]byte{0x00}), header)
		assert.ErrorIs(t, err, ErrMalformedPacket)
	})

	t.Run("invalid reason byte on the wire", func(t *testing.T) {
		raw := []byte{0xE0, 0x01, 0x18}
		_, _, err := ReadPacket(bytes.NewReader(raw), ProtocolV5, 0)
		assert.ErrorIs(t, err, ErrInvalidReasonCode)
	})
}
