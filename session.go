package mqttc

import (
	"errors"
	"sort"
)

var (
	// ErrPacketIDExhausted is returned when all 65535 packet identifiers
	// are tied up in unacknowledged flows.
	ErrPacketIDExhausted = errors.New("no free packet identifiers")
)

// session holds all per-connection protocol state: packet identifier
// allocation, unacknowledged publish flows in both directions, pending
// manual acknowledgments, and the subscription set.
//
// The event loop goroutine owns the session exclusively. Nothing here
// locks; every access must come from that goroutine.
type session struct {
	// nextID is the candidate for the next allocation. Wraps 65535 -> 1;
	// zero is never a valid packet identifier.
	nextID uint16

	// outgoingPub holds QoS 1 and QoS 2 publishes sent but not yet
	// acknowledged (PUBACK for QoS 1, PUBREC for QoS 2), keyed by packet
	// identifier.
	outgoingPub map[uint16]*PublishPacket

	// outgoingRel holds packet identifiers whose PUBREL has been sent and
	// whose PUBCOMP is still outstanding.
	outgoingRel map[uint16]struct{}

	// incomingRec holds packet identifiers of inbound QoS 2 publishes for
	// which PUBREC has been sent and PUBREL has not yet arrived. Used to
	// suppress redelivery of duplicates.
	incomingRec map[uint16]struct{}

	// pendingInbound maps inbound packet identifiers to their QoS while
	// the application has not yet acknowledged them. Only populated in
	// manual-ack mode.
	pendingInbound map[uint16]byte

	// subscriptions records the requested subscriptions by topic filter so
	// they can be replayed after a reconnect.
	subscriptions map[string]Subscription

	// quota limits the number of outgoing QoS > 0 publishes in flight,
	// per the server's Receive Maximum.
	quota *FlowController
}

func newSession(receiveMaximum uint16) *session {
	return &session{
		nextID:         1,
		outgoingPub:    make(map[uint16]*PublishPacket),
		outgoingRel:    make(map[uint16]struct{}),
		incomingRec:    make(map[uint16]struct{}),
		pendingInbound: make(map[uint16]byte),
		subscriptions:  make(map[string]Subscription),
		quota:          NewFlowController(receiveMaximum),
	}
}

// inflight reports whether the packet identifier is occupied by an
// unfinished outgoing flow.
func (s *session) inflight(id uint16) bool {
	if _, ok := s.outgoingPub[id]; ok {
		return true
	}
	_, ok := s.outgoingRel[id]
	return ok
}

// allocPacketID returns the next free packet identifier. Identifiers are
// issued in increasing order, wrap from 65535 back to 1, and are never
// reissued while their flow is unacknowledged.
func (s *session) allocPacketID() (uint16, error) {
	start := s.nextID
	for {
		id := s.nextID
		s.nextID++
		if s.nextID == 0 {
			s.nextID = 1
		}
		if !s.inflight(id) {
			return id, nil
		}
		if s.nextID == start {
			return 0, ErrPacketIDExhausted
		}
	}
}

// trackPublish records an outgoing QoS > 0 publish awaiting acknowledgment.
// The caller must have acquired quota and assigned the packet identifier.
func (s *session) trackPublish(p *PublishPacket) {
	s.outgoingPub[p.PacketID] = p
}

// ackPublish completes a QoS 1 flow on PUBACK. It returns the original
// publish, or an UnknownPacketIDError if the identifier is not in flight.
func (s *session) ackPublish(id uint16) (*PublishPacket, error) {
	p, ok := s.outgoingPub[id]
	if !ok {
		return nil, &UnknownPacketIDError{PacketID: id}
	}
	delete(s.outgoingPub, id)
	s.quota.Release()
	return p, nil
}

// recvPubrec advances a QoS 2 flow on PUBREC: the publish is released and
// the identifier moves to the awaiting-PUBCOMP set.
func (s *session) recvPubrec(id uint16) error {
	if _, ok := s.outgoingPub[id]; !ok {
		return &UnknownPacketIDError{PacketID: id}
	}
	delete(s.outgoingPub, id)
	s.outgoingRel[id] = struct{}{}
	return nil
}

// recvPubcomp completes a QoS 2 flow on PUBCOMP and frees the identifier.
func (s *session) recvPubcomp(id uint16) error {
	if _, ok := s.outgoingRel[id]; !ok {
		return &UnknownPacketIDError{PacketID: id}
	}
	delete(s.outgoingRel, id)
	s.quota.Release()
	return nil
}

// recvQoS2Publish records an inbound QoS 2 publish. It returns false if the
// identifier is already being tracked, meaning the publish is a duplicate
// and must not be redelivered (PUBREC is still resent).
func (s *session) recvQoS2Publish(id uint16) bool {
	if _, ok := s.incomingRec[id]; ok {
		return false
	}
	s.incomingRec[id] = struct{}{}
	return true
}

// recvPubrel completes the inbound half of a QoS 2 flow. It returns true
// even for an unknown identifier so PUBCOMP can be retransmitted after the
// first exchange completed.
func (s *session) recvPubrel(id uint16) {
	delete(s.incomingRec, id)
}

// notePendingInbound records an inbound publish that the application must
// acknowledge manually.
func (s *session) notePendingInbound(id uint16, qos byte) {
	s.pendingInbound[id] = qos
}

// takePendingInbound consumes a pending manual acknowledgment and returns
// the QoS of the original publish. Acknowledging an identifier that is not
// pending, including acknowledging the same message twice, returns an
// UnknownPacketIDError.
func (s *session) takePendingInbound(id uint16) (byte, error) {
	qos, ok := s.pendingInbound[id]
	if !ok {
		return 0, &UnknownPacketIDError{PacketID: id}
	}
	delete(s.pendingInbound, id)
	return qos, nil
}

// addSubscription records subscriptions for replay after reconnect.
func (s *session) addSubscription(subs ...Subscription) {
	for _, sub := range subs {
		s.subscriptions[sub.TopicFilter] = sub
	}
}

// removeSubscription forgets subscriptions by topic filter.
func (s *session) removeSubscription(filters ...string) {
	for _, f := range filters {
		delete(s.subscriptions, f)
	}
}

// subscriptionList returns the recorded subscriptions ordered by filter.
func (s *session) subscriptionList() []Subscription {
	filters := make([]string, 0, len(s.subscriptions))
	for f := range s.subscriptions {
		filters = append(filters, f)
	}
	sort.Strings(filters)

	subs := make([]Subscription, 0, len(filters))
	for _, f := range filters {
		subs = append(subs, s.subscriptions[f])
	}
	return subs
}

// resumePublishes returns the unacknowledged outgoing publishes in packet
// identifier order, each marked as a duplicate for retransmission.
func (s *session) resumePublishes() []*PublishPacket {
	ids := make([]int, 0, len(s.outgoingPub))
	for id := range s.outgoingPub {
		ids = append(ids, int(id))
	}
	sort.Ints(ids)

	pubs := make([]*PublishPacket, 0, len(ids))
	for _, id := range ids {
		p := s.outgoingPub[uint16(id)]
		p.DUP = true
		pubs = append(pubs, p)
	}
	return pubs
}

// resumeReleases returns the packet identifiers whose PUBREL must be
// retransmitted, in order.
func (s *session) resumeReleases() []uint16 {
	ids := make([]int, 0, len(s.outgoingRel))
	for id := range s.outgoingRel {
		ids = append(ids, int(id))
	}
	sort.Ints(ids)

	out := make([]uint16, 0, len(ids))
	for _, id := range ids {
		out = append(out, uint16(id))
	}
	return out
}

// clearInbound drops inbound-side state that does not survive a
// reconnection. Pending manual acknowledgments refer to deliveries on the
// old connection; a late Ack for one of them reports UnknownPacketIDError
// rather than acknowledging an unrelated redelivery.
func (s *session) clearInbound() {
	s.incomingRec = make(map[uint16]struct{})
	s.pendingInbound = make(map[uint16]byte)
}

// reset discards all session state. Used when the server answers a
// clean-start connect, or when the session is accepted without session
// present.
func (s *session) reset() {
	s.nextID = 1
	s.outgoingPub = make(map[uint16]*PublishPacket)
	s.outgoingRel = make(map[uint16]struct{})
	s.incomingRec = make(map[uint16]struct{})
	s.pendingInbound = make(map[uint16]byte)
	s.quota.Reset()
}
