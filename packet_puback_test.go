package mqttc

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPubackPacketEncodeDecode(t *testing.T) {
	t.Run("v311", func(t *testing.T) {
		pkt := &PubackPacket{Version: ProtocolV311, PacketID: 0x1234}

		raw := encodePacket(t, pkt)
		assert.Equal(t, []byte{0x40, 0x02, 0x12, 0x34}, raw)

		decoded := roundTrip(t, pkt, ProtocolV311).(*PubackPacket)
		assert.Equal(t, uint16(0x1234), decoded.PacketID)
	})

	t.Run("v5 success", func(t *testing.T) {
		pkt := &PubackPacket{Version: ProtocolV5, PacketID: 1}

		decoded := roundTrip(t, pkt, ProtocolV5).(*PubackPacket)
		assert.Equal(t, uint16(1), decoded.PacketID)
		assert.Equal(t, ReasonSuccess, decoded.ReasonCode)
	})

	t.Run("v5 reason and properties", func(t *testing.T) {
		pkt := &PubackPacket{
			Version:    ProtocolV5,
			PacketID:   2,
			ReasonCode: ReasonQuotaExceeded,
		}
		pkt.Props.Set(PropReasonString, "quota")

		decoded := roundTrip(t, pkt, ProtocolV5).(*PubackPacket)
		assert.Equal(t, ReasonQuotaExceeded, decoded.ReasonCode)
		assert.Equal(t, "quota", decoded.Props.GetString(PropReasonString))
	})
}

func TestPubackPacketValidation(t *testing.T) {
	t.Run("zero packet ID", func(t *testing.T) {
		pkt := &PubackPacket{Version: ProtocolV5}
		assert.ErrorIs(t, pkt.Validate(), ErrInvalidPacketID)

		var buf bytes.Buffer
		_, err := pkt.Encode(&buf)
		assert.ErrorIs(t, err, ErrInvalidPacketID)
	})

	t.Run("reason code outside the PUBACK table", func(t *testing.T) {
		pkt := &PubackPacket{Version: ProtocolV5, PacketID: 1, ReasonCode: ReasonPacketIDNotFound}
		assert.ErrorIs(t, pkt.Validate(), ErrInvalidReasonCode)
	})

	t.Run("v311 ignores reason codes", func(t *testing.T) {
		pkt := &PubackPacket{Version: ProtocolV311, PacketID: 1, ReasonCode: ReasonPacketIDNotFound}
		assert.NoError(t, pkt.Validate())
	})
}

func TestPubackPacketEncodeErrors(t *testing.T) {
	t.Run("property illegal in PUBACK", func(t *testing.T) {
		pkt := &PubackPacket{Version: ProtocolV5, PacketID: 1}
		pkt.Props.Set(PropTopicAlias, uint16(4))

		var buf bytes.Buffer
		_, err := pkt.Encode(&buf)

		var typeErr *InvalidPropertyTypeError
		require.ErrorAs(t, err, &typeErr)
		assert.Equal(t, PropTopicAlias, typeErr.ID)
	})
}

func TestPubackPacketDecodeErrors(t *testing.T) {
	t.Run("wrong packet type", func(t *testing.T) {
		var pkt PubackPacket
		_, err := pkt.Decode(bytes.NewReader(nil), FixedHeader{PacketType: PacketPUBREC})
		assert.ErrorIs(t, err, ErrInvalidPacketType)
	})

	t.Run("invalid reason byte on the wire", func(t *testing.T) {
		raw := []byte{0x40, 0x03, 0x00, 0x01, 0x8D}
		_, _, err := ReadPacket(bytes.NewReader(raw), ProtocolV5, 0)
		assert.ErrorIs(t, err, ErrInvalidReasonCode)
	})
}
