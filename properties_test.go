package mqttc

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPropertiesAccess(t *testing.T) {
	t.Run("set replaces, add accumulates", func(t *testing.T) {
		var p Properties

		p.Set(PropContentType, "text/plain")
		p.Set(PropContentType, "application/json")
		assert.Equal(t, 1, p.Len())
		assert.Equal(t, "application/json", p.GetString(PropContentType))

		p.Add(PropUserProperty, StringPair{Key: "a", Value: "1"})
		p.Add(PropUserProperty, StringPair{Key: "b", Value: "2"})
		assert.Equal(t, 3, p.Len())
		assert.Len(t, p.GetAllStringPairs(PropUserProperty), 2)
	})

	t.Run("typed getters with missing values", func(t *testing.T) {
		var p Properties

		assert.False(t, p.Has(PropTopicAlias))
		assert.Nil(t, p.Get(PropTopicAlias))
		assert.Equal(t, byte(0), p.GetByte(PropMaximumQoS))
		assert.Equal(t, uint16(0), p.GetUint16(PropTopicAlias))
		assert.Equal(t, uint32(0), p.GetUint32(PropMessageExpiryInterval))
		assert.Equal(t, "", p.GetString(PropContentType))
		assert.Nil(t, p.GetBinary(PropCorrelationData))
	})

	t.Run("delete removes all occurrences", func(t *testing.T) {
		var p Properties
		p.Add(PropUserProperty, StringPair{Key: "a", Value: "1"})
		p.Add(PropUserProperty, StringPair{Key: "b", Value: "2"})
		p.Set(PropTopicAlias, uint16(3))

		p.Delete(PropUserProperty)
		assert.Equal(t, 1, p.Len())
		assert.True(t, p.Has(PropTopicAlias))
	})

	t.Run("nil receiver is a safe no-op", func(t *testing.T) {
		var p *Properties
		p.Set(PropTopicAlias, uint16(1))
		p.Add(PropUserProperty, StringPair{})
		p.Delete(PropTopicAlias)
		assert.Equal(t, 0, p.Len())
		assert.False(t, p.Has(PropTopicAlias))
		assert.NoError(t, p.ValidateFor(PropCtxPUBLISH))
	})
}

func TestPropertiesEncodeDecode(t *testing.T) {
	t.Run("empty block is a single zero byte", func(t *testing.T) {
		var p Properties
		var buf bytes.Buffer

		n, err := p.Encode(&buf)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.Equal(t, []byte{0x00}, buf.Bytes())
		assert.Equal(t, 1, p.EncodedSize())
	})

	t.Run("every value type round trips", func(t *testing.T) {
		var p Properties
		p.Set(PropPayloadFormatIndicator, byte(1))
		p.Set(PropTopicAlias, uint16(42))
		p.Set(PropMessageExpiryInterval, uint32(3600))
		p.Set(PropSubscriptionIdentifier, uint32(123456))
		p.Set(PropContentType, "application/json")
		p.Set(PropCorrelationData, []byte{0xDE, 0xAD})
		p.Add(PropUserProperty, StringPair{Key: "k1", Value: "v1"})
		p.Add(PropUserProperty, StringPair{Key: "k2", Value: "v2"})

		var buf bytes.Buffer
		n, err := p.Encode(&buf)
		require.NoError(t, err)
		assert.Equal(t, p.EncodedSize(), n)

		var decoded Properties
		rn, err := decoded.Decode(&buf)
		require.NoError(t, err)
		assert.Equal(t, n, rn)

		assert.Equal(t, byte(1), decoded.GetByte(PropPayloadFormatIndicator))
		assert.Equal(t, uint16(42), decoded.GetUint16(PropTopicAlias))
		assert.Equal(t, uint32(3600), decoded.GetUint32(PropMessageExpiryInterval))
		assert.Equal(t, []uint32{123456}, decoded.GetAllVarInts(PropSubscriptionIdentifier))
		assert.Equal(t, "application/json", decoded.GetString(PropContentType))
		assert.Equal(t, []byte{0xDE, 0xAD}, decoded.GetBinary(PropCorrelationData))
		assert.Equal(t,
			[]StringPair{{Key: "k1", Value: "v1"}, {Key: "k2", Value: "v2"}},
			decoded.GetAllStringPairs(PropUserProperty))
	})

	t.Run("insertion order preserved", func(t *testing.T) {
		var p Properties
		p.Add(PropUserProperty, StringPair{Key: "first", Value: "1"})
		p.Set(PropContentType, "text/plain")
		p.Add(PropUserProperty, StringPair{Key: "second", Value: "2"})

		var buf bytes.Buffer
		_, err := p.Encode(&buf)
		require.NoError(t, err)

		var decoded Properties
		_, err = decoded.Decode(&buf)
		require.NoError(t, err)

		pairs := decoded.GetAllStringPairs(PropUserProperty)
		require.Len(t, pairs, 2)
		assert.Equal(t, "first", pairs[0].Key)
		assert.Equal(t, "second", pairs[1].Key)
	})
}

func TestPropertiesDecodeErrors(t *testing.T) {
	t.Run("unknown identifier", func(t *testing.T) {
		// Block of length 2 with the reserved identifier 0x7F
		var p Properties
		_, err := p.Decode(bytes.NewReader([]byte{0x02, 0x7F, 0x00}))

		assert.ErrorIs(t, err, ErrUnknownPropertyID)
		assert.ErrorIs(t, err, ErrMalformedPacket)

		var typeErr *InvalidPropertyTypeError
		require.ErrorAs(t, err, &typeErr)
		assert.Equal(t, PropertyID(0x7F), typeErr.ID)
	})

	t.Run("duplicate non-repeatable identifier", func(t *testing.T) {
		// Topic Alias appears twice in one block
		raw := []byte{
			0x06,
			byte(PropTopicAlias), 0x00, 0x01,
			byte(PropTopicAlias), 0x00, 0x02,
		}
		var p Properties
		_, err := p.Decode(bytes.NewReader(raw))
		assert.ErrorIs(t, err, ErrDuplicateProperty)
		assert.ErrorIs(t, err, ErrMalformedPacket)
	})

	t.Run("repeatable identifiers may repeat", func(t *testing.T) {
		var src Properties
		src.Add(PropUserProperty, StringPair{Key: "a", Value: "1"})
		src.Add(PropUserProperty, StringPair{Key: "a", Value: "2"})

		var buf bytes.Buffer
		_, err := src.Encode(&buf)
		require.NoError(t, err)

		var p Properties
		_, err = p.Decode(&buf)
		assert.NoError(t, err)
	})

	t.Run("declared length overruns content", func(t *testing.T) {
		// Length says 3 but a two byte int property consumes 3 bytes starting
		// past the block end
		raw := []byte{0x04, byte(PropTopicAlias), 0x00, 0x01, byte(PropPayloadFormatIndicator), 0x01}
		var p Properties
		_, err := p.Decode(bytes.NewReader(raw[:4]))
		assert.Error(t, err)
	})

	t.Run("length mismatch", func(t *testing.T) {
		// Declared length 2, but the property consumes 3 bytes
		raw := []byte{0x02, byte(PropTopicAlias), 0x00, 0x01}
		var p Properties
		_, err := p.Decode(bytes.NewReader(raw))
		assert.ErrorIs(t, err, ErrPropertyLengthMismatch)
	})
}

func TestPropertiesValidateFor(t *testing.T) {
	t.Run("legal set passes", func(t *testing.T) {
		var p Properties
		p.Set(PropReasonString, "ok")
		p.Add(PropUserProperty, StringPair{Key: "a", Value: "1"})

		assert.NoError(t, p.ValidateFor(PropCtxPUBACK))
	})

	t.Run("identifier illegal in context", func(t *testing.T) {
		var p Properties
		p.Set(PropTopicAlias, uint16(4))

		// Topic Alias belongs to PUBLISH, nowhere else
		assert.NoError(t, p.ValidateFor(PropCtxPUBLISH))

		err := p.ValidateFor(PropCtxCONNECT)
		var typeErr *InvalidPropertyTypeError
		require.ErrorAs(t, err, &typeErr)
		assert.Equal(t, PropTopicAlias, typeErr.ID)

		assert.Error(t, p.ValidateFor(PropCtxPUBACK))
		assert.Error(t, p.ValidateFor(PropCtxAUTH))
	})

	t.Run("duplicate non-repeatable identifier", func(t *testing.T) {
		var p Properties
		p.Add(PropContentType, "text/plain")
		p.Add(PropContentType, "application/json")

		assert.ErrorIs(t, p.ValidateFor(PropCtxPUBLISH), ErrDuplicateProperty)
	})

	t.Run("repeatable identifiers pass", func(t *testing.T) {
		var p Properties
		p.Add(PropUserProperty, StringPair{Key: "a", Value: "1"})
		p.Add(PropUserProperty, StringPair{Key: "b", Value: "2"})

		assert.NoError(t, p.ValidateFor(PropCtxPUBLISH))
	})
}

func TestInvalidPropertyTypeError(t *testing.T) {
	err := &InvalidPropertyTypeError{ID: PropertyID(0x7F)}

	assert.True(t, errors.Is(err, ErrUnknownPropertyID))
	assert.True(t, errors.Is(err, ErrMalformedPacket))
	assert.NotEmpty(t, err.Error())
}
