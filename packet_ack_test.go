package mqttc

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// encodeAckBytes runs the shared acknowledgment encoder and checks the
// ackSize mirror against the bytes written.
func encodeAckBytes(t *testing.T, packetType PacketType, flags byte, ack *ackPacket) []byte {
	t.Helper()

	var buf bytes.Buffer
	n, err := encodeAck(&buf, packetType, flags, ack)
	require.NoError(t, err)
	assert.Equal(t, ackSize(ack), n, "ackSize must match the bytes encodeAck writes")

	return buf.Bytes()
}

func TestAckCodecWireFormat(t *testing.T) {
	t.Run("v311 is always four bytes", func(t *testing.T) {
		raw := encodeAckBytes(t, PacketPUBACK, 0x00, &ackPacket{
			Version:    ProtocolV311,
			PacketID:   0x1234,
			ReasonCode: ReasonNoMatchingSubscribers, // ignored pre-v5
		})
		assert.Equal(t, []byte{0x40, 0x02, 0x12, 0x34}, raw)
	})

	t.Run("v5 success without properties drops the tail", func(t *testing.T) {
		raw := encodeAckBytes(t, PacketPUBACK, 0x00, &ackPacket{
			Version:  ProtocolV5,
			PacketID: 0x0001,
		})
		assert.Equal(t, []byte{0x40, 0x02, 0x00, 0x01}, raw)
	})

	t.Run("v5 non-success reason without properties", func(t *testing.T) {
		raw := encodeAckBytes(t, PacketPUBACK, 0x00, &ackPacket{
			Version:    ProtocolV5,
			PacketID:   0x0001,
			ReasonCode: ReasonNoMatchingSubscribers,
		})
		assert.Equal(t, []byte{0x40, 0x03, 0x00, 0x01, 0x10}, raw)
	})

	t.Run("v5 with properties keeps reason and block", func(t *testing.T) {
		ack := &ackPacket{Version: ProtocolV5, PacketID: 2}
		ack.Props.Set(PropReasonString, "ok")

		raw := encodeAckBytes(t, PacketPUBACK, 0x00, ack)
		// success reason byte must still be present ahead of the block
		assert.Equal(t, byte(0x00), raw[4])

		header := FixedHeader{
			PacketType:      PacketPUBACK,
			RemainingLength: uint32(len(raw) - 2),
			Version:         ProtocolV5,
		}

		var decoded ackPacket
		_, err := decodeAck(bytes.NewReader(raw[2:]), header, &decoded, PropCtxPUBACK)
		require.NoError(t, err)
		assert.Equal(t, uint16(2), decoded.PacketID)
		assert.Equal(t, ReasonSuccess, decoded.ReasonCode)
		assert.Equal(t, "ok", decoded.Props.GetString(PropReasonString))
	})

	t.Run("pubrel flags pass through", func(t *testing.T) {
		raw := encodeAckBytes(t, PacketPUBREL, 0x02, &ackPacket{
			Version:  ProtocolV5,
			PacketID: 7,
		})
		assert.Equal(t, byte(0x62), raw[0])
	})
}

func TestAckCodecDecode(t *testing.T) {
	t.Run("v5 omitted tail defaults to success", func(t *testing.T) {
		header := FixedHeader{PacketType: PacketPUBACK, RemainingLength: 2, Version: ProtocolV5}

		var decoded ackPacket
		n, err := decodeAck(bytes.NewReader([]byte{0x00, 0x05}), header, &decoded, PropCtxPUBACK)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		assert.Equal(t, uint16(5), decoded.PacketID)
		assert.Equal(t, ReasonSuccess, decoded.ReasonCode)
		assert.Equal(t, ProtocolV5, decoded.Version)
	})

	t.Run("v311 remaining length must be two", func(t *testing.T) {
		header := FixedHeader{PacketType: PacketPUBACK, RemainingLength: 3, Version: ProtocolV311}

		var decoded ackPacket
		_, err := decodeAck(bytes.NewReader([]byte{0x00, 0x05, 0x00}), header, &decoded, PropCtxPUBACK)
		assert.ErrorIs(t, err, ErrMalformedPacket)
	})

	t.Run("reason code outside the packet table", func(t *testing.T) {
		// 0x8D is a DISCONNECT reason, never a PUBACK one
		header := FixedHeader{PacketType: PacketPUBACK, RemainingLength: 3, Version: ProtocolV5}

		var decoded ackPacket
		_, err := decodeAck(bytes.NewReader([]byte{0x00, 0x05, 0x8D}), header, &decoded, PropCtxPUBACK)
		assert.ErrorIs(t, err, ErrInvalidReasonCode)
	})

	t.Run("property illegal in ack context", func(t *testing.T) {
		body := &bytes.Buffer{}
		body.Write([]byte{0x00, 0x05, 0x10})

		var props Properties
		props.Set(PropTopicAlias, uint16(3))
		_, err := props.Encode(body)
		require.NoError(t, err)

		header := FixedHeader{
			PacketType:      PacketPUBACK,
			RemainingLength: uint32(body.Len()),
			Version:         ProtocolV5,
		}

		var decoded ackPacket
		_, err = decodeAck(bytes.NewReader(body.Bytes()), header, &decoded, PropCtxPUBACK)

		var typeErr *InvalidPropertyTypeError
		require.ErrorAs(t, err, &typeErr)
		assert.Equal(t, PropTopicAlias, typeErr.ID)
	})

	t.Run("truncated packet identifier", func(t *testing.T) {
		header := FixedHeader{PacketType: PacketPUBACK, RemainingLength: 2, Version: ProtocolV5}

		var decoded ackPacket
		_, err := decodeAck(bytes.NewReader([]byte{0x00}), header, &decoded, PropCtxPUBACK)
		assert.Error(t, err)
	})
}

func BenchmarkAckEncode(b *testing.B) {
	ack := &ackPacket{Version: ProtocolV5, PacketID: 100, ReasonCode: ReasonNoMatchingSubscribers}
	var buf bytes.Buffer

	b.ResetTimer()
	b.ReportAllocs()

	for b.Loop() {
		buf.Reset()
		if _, err := encodeAck(&buf, PacketPUBACK, 0x00, ack); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkAckDecode(b *testing.B) {
	raw := []byte{0x00, 0x64, 0x10}
	header := FixedHeader{PacketType: PacketPUBACK, RemainingLength: 3, Version: ProtocolV5}

	b.ResetTimer()
	b.ReportAllocs()

	for b.Loop() {
		var ack ackPacket
		if _, err := decodeAck(bytes.NewReader(raw), header, &ack, PropCtxPUBACK); err != nil {
			b.Fatal(err)
		}
	}
}
