package mqttc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type prefixingInterceptor struct {
	prefix string
}

func (i *prefixingInterceptor) OnSend(msg *Message) *Message {
	msg.Payload = append([]byte(i.prefix), msg.Payload...)
	return msg
}

func (i *prefixingInterceptor) OnConsume(msg *Message) *Message {
	msg.Payload = append([]byte(i.prefix), msg.Payload...)
	return msg
}

type droppingInterceptor struct{}

func (i *droppingInterceptor) OnSend(_ *Message) *Message    { return nil }
func (i *droppingInterceptor) OnConsume(_ *Message) *Message { return nil }

type panickingInterceptor struct{}

func (i *panickingInterceptor) OnSend(_ *Message) *Message    { panic("producer boom") }
func (i *panickingInterceptor) OnConsume(_ *Message) *Message { panic("consumer boom") }

func TestApplyProducerInterceptors(t *testing.T) {
	logger := NewNoOpLogger()

	t.Run("empty chain passes through", func(t *testing.T) {
		msg := &Message{Topic: "a", Payload: []byte("x")}
		out := applyProducerInterceptors(nil, msg, logger)
		assert.Same(t, msg, out)
	})

	t.Run("chain applies in order", func(t *testing.T) {
		msg := &Message{Topic: "a", Payload: []byte("x")}
		out := applyProducerInterceptors([]ProducerInterceptor{
			&prefixingInterceptor{prefix: "1"},
			&prefixingInterceptor{prefix: "2"},
		}, msg, logger)

		require.NotNil(t, out)
		assert.Equal(t, []byte("21x"), out.Payload)
	})

	t.Run("nil return breaks the chain", func(t *testing.T) {
		msg := &Message{Topic: "a", Payload: []byte("x")}
		out := applyProducerInterceptors([]ProducerInterceptor{
			&droppingInterceptor{},
			&prefixingInterceptor{prefix: "never"},
		}, msg, logger)

		assert.Nil(t, out)
	})

	t.Run("panic passes the message on unchanged", func(t *testing.T) {
		msg := &Message{Topic: "a", Payload: []byte("x")}
		out := applyProducerInterceptors([]ProducerInterceptor{
			&panickingInterceptor{},
			&prefixingInterceptor{prefix: "p"},
		}, msg, logger)

		require.NotNil(t, out)
		assert.Equal(t, []byte("px"), out.Payload)
	})
}

func TestApplyConsumerInterceptors(t *testing.T) {
	logger := NewNoOpLogger()

	t.Run("empty chain passes through", func(t *testing.T) {
		msg := &Message{Topic: "a", Payload: []byte("x")}
		out := applyConsumerInterceptors(nil, msg, logger)
		assert.Same(t, msg, out)
	})

	t.Run("chain applies in order", func(t *testing.T) {
		msg := &Message{Topic: "a", Payload: []byte("x")}
		out := applyConsumerInterceptors([]ConsumerInterceptor{
			&prefixingInterceptor{prefix: "1"},
			&prefixingInterceptor{prefix: "2"},
		}, msg, logger)

		require.NotNil(t, out)
		assert.Equal(t, []byte("21x"), out.Payload)
	})

	t.Run("nil return drops the delivery", func(t *testing.T) {
		msg := &Message{Topic: "a", Payload: []byte("x")}
		out := applyConsumerInterceptors([]ConsumerInterceptor{
			&droppingInterceptor{},
		}, msg, logger)

		assert.Nil(t, out)
	})

	t.Run("panic passes the message on unchanged", func(t *testing.T) {
		msg := &Message{Topic: "a", Payload: []byte("x")}
		out := applyConsumerInterceptors([]ConsumerInterceptor{
			&panickingInterceptor{},
		}, msg, logger)

		require.NotNil(t, out)
		assert.Equal(t, []byte("x"), out.Payload)
	})
}

func TestInterceptorOptions(t *testing.T) {
	opts := applyOptions(
		WithProducerInterceptors(&prefixingInterceptor{prefix: "a"}, &prefixingInterceptor{prefix: "b"}),
		WithConsumerInterceptors(&droppingInterceptor{}),
	)

	assert.Len(t, opts.producerInterceptors, 2)
	assert.Len(t, opts.consumerInterceptors, 1)
}
