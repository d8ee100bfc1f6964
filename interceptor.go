package mqttc

// ProducerInterceptor allows interception and modification of messages
// before they are published. Interceptors run in the order they are
// configured, each receiving the message from the previous one.
//
// Similar to Sarama's ProducerInterceptor for Kafka clients.
type ProducerInterceptor interface {
	// OnSend is called when a message is about to be published.
	// Return the (potentially modified) message to continue the chain, or
	// nil to drop the message.
	//
	// WARNING: The message is NOT a copy. Modifications affect the original.
	OnSend(msg *Message) *Message
}

// ConsumerInterceptor allows interception and modification of messages
// after they are received but before they are delivered on the Messages
// channel. Interceptors run in the order they are configured.
//
// Similar to Sarama's ConsumerInterceptor for Kafka clients.
type ConsumerInterceptor interface {
	// OnConsume is called when a message is received. Return the
	// (potentially modified) message to continue the chain, or nil to
	// drop the delivery. A dropped QoS 1 or 2 message is still
	// acknowledged to the server.
	//
	// WARNING: The message is NOT a copy. Modifications affect the original.
	OnConsume(msg *Message) *Message
}

// safelyApplyProducerInterceptor applies a producer interceptor with panic
// recovery. If the interceptor panics, the original message is passed on
// unchanged.
func safelyApplyProducerInterceptor(interceptor ProducerInterceptor, msg *Message, logger Logger) (result *Message) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("producer interceptor panic", LogFields{
				LogFieldTopic: msg.Topic,
				LogFieldError: r,
			})
			result = msg
		}
	}()
	return interceptor.OnSend(msg)
}

// safelyApplyConsumerInterceptor applies a consumer interceptor with panic
// recovery. If the interceptor panics, the original message is passed on
// unchanged.
func safelyApplyConsumerInterceptor(interceptor ConsumerInterceptor, msg *Message, logger Logger) (result *Message) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("consumer interceptor panic", LogFields{
				LogFieldTopic: msg.Topic,
				LogFieldError: r,
			})
			result = msg
		}
	}()
	return interceptor.OnConsume(msg)
}

// applyProducerInterceptors runs the producer chain. A nil return from any
// interceptor breaks the chain and drops the message.
func applyProducerInterceptors(interceptors []ProducerInterceptor, msg *Message, logger Logger) *Message {
	if len(interceptors) == 0 {
		return msg
	}
	current := msg
	for _, interceptor := range interceptors {
		if current == nil {
			return nil
		}
		current = safelyApplyProducerInterceptor(interceptor, current, logger)
	}
	return current
}

// applyConsumerInterceptors runs the consumer chain. A nil return from any
// interceptor breaks the chain and drops the delivery.
func applyConsumerInterceptors(interceptors []ConsumerInterceptor, msg *Message, logger Logger) *Message {
	if len(interceptors) == 0 {
		return msg
	}
	current := msg
	for _, interceptor := range interceptors {
		if current == nil {
			return nil
		}
		current = safelyApplyConsumerInterceptor(interceptor, current, logger)
	}
	return current
}
