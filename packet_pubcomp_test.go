//nolint:dupl // the four QoS acknowledgment packets share a shape by definition
package mqttc

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPubcompPacketEncodeDecode(t *testing.T) {
	t.Run("v311", func(t *testing.T) {
		pkt := &PubcompPacket{Version: ProtocolV311, PacketID: 6}

		raw := encodePacket(t, pkt)
		assert.Equal(t, []byte{0x70, 0x02, 0x00, 0x06}, raw)
	})

	t.Run("v5 with reason and properties", func(t *testing.T) {
		pkt := &PubcompPacket{
			Version:    ProtocolV5,
			PacketID:   6,
			ReasonCode: ReasonPacketIDNotFound,
		}
		pkt.Props.Set(PropReasonString, "unknown id")

		decoded := roundTrip(t, pkt, ProtocolV5).(*PubcompPacket)
		assert.Equal(t, uint16(6), decoded.PacketID)
		assert.Equal(t, ReasonPacketIDNotFound, decoded.ReasonCode)
		assert.Equal(t, "unknown id", decoded.Props.GetString(PropReasonString))
	})
}

func TestPubcompPacketValidation(t *testing.T) {
	t.Run("zero packet ID", func(t *testing.T) {
		pkt := &PubcompPacket{Version: ProtocolV5}
		assert.ErrorIs(t, pkt.Validate(), ErrInvalidPacketID)
	})

	t.Run("reason code outside the PUBCOMP table", func(t *testing.T) {
		pkt := &PubcompPacket{Version: ProtocolV5, PacketID: 1, ReasonCode: ReasonQuotaExceeded}
		assert.ErrorIs(t, pkt.Validate(), ErrInvalidReasonCode)
	})
}

func TestPubcompPacketEncodeErrors(t *testing.T) {
	pkt := &PubcompPacket{Version: ProtocolV5, PacketID: 1}
	pkt.Props.Set(PropTopicAlias, uint16(2))

	var buf bytes.Buffer
	_, err := pkt.Encode(&buf)

	var typeErr *InvalidPropertyTypeError
	require.ErrorAs(t, err, &typeErr)
	assert.Equal(t, PropTopicAlias, typeErr.ID)
}
