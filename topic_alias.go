package mqttc

import "errors"

var (
	ErrTopicAliasInvalid  = errors.New("topic alias invalid")
	ErrTopicAliasExceeded = errors.New("topic alias maximum exceeded")
	ErrTopicAliasNotFound = errors.New("topic alias not found")
)

// topicAliases tracks the topic alias bindings of one connection: aliases
// the server announces on inbound publishes, and aliases this client
// assigns to outgoing topics within the budget the server granted in
// CONNACK. Alias zero is never valid in either direction.
//
// The event loop goroutine owns it exclusively. Nothing here locks; every
// access must come from that goroutine.
type topicAliases struct {
	inbound  map[uint16]string
	outbound map[string]uint16
	nextOut  uint16

	// inboundMax is the Topic Alias Maximum this client advertised in
	// CONNECT; the server must not announce aliases above it.
	inboundMax uint16

	// serverMax is the Topic Alias Maximum from CONNACK. Zero means the
	// server accepts no aliases and outgoing publishes carry full topics.
	serverMax uint16
}

func newTopicAliases(inboundMax uint16) *topicAliases {
	return &topicAliases{
		inbound:    make(map[uint16]string),
		outbound:   make(map[string]uint16),
		nextOut:    1,
		inboundMax: inboundMax,
	}
}

// setServerMax records the alias budget granted by the current CONNACK,
// replacing whatever a previous connection granted.
func (a *topicAliases) setServerMax(maxAliases uint16) {
	a.serverMax = maxAliases
}

// remember stores the binding announced by an inbound publish that carries
// both a topic and an alias.
func (a *topicAliases) remember(alias uint16, topic string) error {
	if alias == 0 {
		return ErrTopicAliasInvalid
	}
	if a.inboundMax > 0 && alias > a.inboundMax {
		return ErrTopicAliasExceeded
	}
	a.inbound[alias] = topic
	return nil
}

// resolve returns the topic bound to an inbound alias. An alias the server
// never announced is a protocol error on its side.
func (a *topicAliases) resolve(alias uint16) (string, error) {
	if alias == 0 {
		return "", ErrTopicAliasInvalid
	}
	topic, ok := a.inbound[alias]
	if !ok {
		return "", ErrTopicAliasNotFound
	}
	return topic, nil
}

// outboundFor returns the alias assigned to an outgoing topic, allocating
// the next one while the server's budget lasts. Zero means publish without
// an alias.
func (a *topicAliases) outboundFor(topic string) uint16 {
	if a.serverMax == 0 {
		return 0
	}
	if alias, ok := a.outbound[topic]; ok {
		return alias
	}
	if a.nextOut <= a.serverMax {
		alias := a.nextOut
		a.outbound[topic] = alias
		a.nextOut++
		return alias
	}
	return 0
}

// clear drops every binding in both directions. Aliases never survive a
// reconnection; the next CONNACK sets a fresh server budget.
func (a *topicAliases) clear() {
	a.inbound = make(map[uint16]string)
	a.outbound = make(map[string]uint16)
	a.nextOut = 1
}
