package mqttc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"
)

// ConnState is the connection lifecycle state of a Client.
type ConnState int32

const (
	// StateDisconnected means no connection is established.
	StateDisconnected ConnState = iota
	// StateConnecting means a connect or reconnect attempt is in progress.
	StateConnecting
	// StateConnected means the session is live.
	StateConnected
	// StateDisconnecting means a graceful shutdown is in progress.
	StateDisconnecting
)

// String returns the string representation of the connection state.
func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	default:
		return "unknown"
	}
}

// errStopped signals a deliberate shutdown to the run loop.
var errStopped = errors.New("stopped")

type requestKind int

const (
	reqPublish requestKind = iota
	reqSubscribe
	reqUnsubscribe
	reqAck
	reqDisconnect
)

// request is one operation handed from the client facade to the event
// loop. The reply channel carries the processing result back to the
// caller; it must have capacity 1 so the loop never blocks on it.
type request struct {
	kind    requestKind
	msg     *Message
	subs    []Subscription
	filters []string
	reason  ReasonCode
	reply   chan error
}

// inboundPacket is one decoded packet from the read pump.
type inboundPacket struct {
	packet Packet
	size   int
}

// run drives the connection lifecycle after the initial connect has
// succeeded: serve until the connection dies, then reconnect if configured.
func (c *Client) run() {
	defer close(c.done)
	defer c.setState(StateDisconnected)

	for {
		err := c.serve()
		if err == nil || errors.Is(err, errStopped) {
			return
		}

		c.setState(StateDisconnected)
		c.closeConn()
		c.emit(NewConnectionLostError(err))

		if !c.options.autoReconnect {
			return
		}
		if !c.reconnect() {
			c.emit(ErrReconnectFailed)
			return
		}
	}
}

// reconnect retries the connection with backoff until it succeeds, the
// attempt budget is spent, or the client is stopped. Returns true when a
// new connection is live.
func (c *Client) reconnect() bool {
	var stopped atomic.Bool
	backoff := c.options.reconnectBackoff

	for attempt := 1; c.options.maxReconnects < 0 || attempt <= c.options.maxReconnects; attempt++ {
		c.emit(NewReconnectEvent(attempt, c.options.maxReconnects, backoff, func() {
			stopped.Store(true)
		}))
		c.stats.ReconnectAttempt()

		select {
		case <-time.After(backoff):
		case <-c.parentCtx.Done():
			return false
		}
		if stopped.Load() {
			return false
		}

		ctx, cancel := context.WithTimeout(c.parentCtx, c.options.connectTimeout)
		err := c.connect(ctx)
		cancel()
		if err == nil {
			return true
		}

		c.logger.Warn("reconnect attempt failed", LogFields{
			LogFieldAttempt: attempt,
			LogFieldError:   err.Error(),
		})

		if c.options.backoffStrategy != nil {
			backoff = c.options.backoffStrategy(attempt, backoff, err)
		} else {
			backoff *= 2
		}
		if backoff > c.options.maxBackoff {
			backoff = c.options.maxBackoff
		}
	}
	return false
}

// connect dials the next server and performs the MQTT handshake,
// including any enhanced authentication exchange. On success the session
// is resumed or reset according to the CONNACK session-present flag.
func (c *Client) connect(ctx context.Context) error {
	c.setState(StateConnecting)

	addr, err := c.nextServer(ctx)
	if err != nil {
		c.setState(StateDisconnected)
		return err
	}

	conn, err := c.dial(ctx, addr)
	if err != nil {
		c.setState(StateDisconnected)
		return err
	}

	pkt := c.buildConnect()

	if c.options.enhancedAuth != nil && c.version.is5() {
		result, err := c.options.enhancedAuth.AuthStart(ctx)
		if err != nil {
			conn.Close()
			c.setState(StateDisconnected)
			return fmt.Errorf("enhanced auth start failed: %w", err)
		}
		pkt.Props.Set(PropAuthenticationMethod, c.options.enhancedAuth.AuthMethod())
		if len(result.AuthData) > 0 {
			pkt.Props.Set(PropAuthenticationData, result.AuthData)
		}
		c.authState = result.State
	}

	c.conn = conn
	c.ka.reset(time.Now())
	c.outboundMax = c.options.maxPacketSize

	if err := c.writePacket(pkt); err != nil {
		c.closeConn()
		c.setState(StateDisconnected)
		return fmt.Errorf("failed to send CONNECT: %w", err)
	}

	connack, err := c.readConnackWithAuth(ctx)
	if err != nil {
		c.closeConn()
		c.setState(StateDisconnected)
		return err
	}

	if err := c.applyConnackProperties(connack); err != nil {
		c.closeConn()
		c.setState(StateDisconnected)
		return err
	}

	// Aliases and pending inbound deliveries are bound to the old network
	// connection and never carry over.
	c.aliases.clear()
	c.sess.clearInbound()

	if !connack.SessionPresent {
		c.sess.reset()
		c.sentAt = make(map[uint16]time.Time)
	}

	c.setState(StateConnected)
	c.stats.Connected()
	c.emit(NewConnectedEvent(connack.SessionPresent, connack.Properties()))

	if connack.SessionPresent {
		c.resumeSession()
	}
	c.restoreSubscriptions()

	return nil
}

// buildConnect assembles the CONNECT packet from the options.
func (c *Client) buildConnect() *ConnectPacket {
	pkt := &ConnectPacket{
		Version:    c.version,
		ClientID:   c.ClientID(),
		CleanStart: c.options.cleanStart,
		KeepAlive:  c.options.keepAlive,
		Username:   c.options.username,
		Password:   c.options.password,
	}

	if c.options.willTopic != "" {
		pkt.WillFlag = true
		pkt.WillTopic = c.options.willTopic
		pkt.WillPayload = c.options.willPayload
		pkt.WillRetain = c.options.willRetain
		pkt.WillQoS = c.options.willQoS
		if c.options.willProps != nil && c.version.is5() {
			pkt.WillProps = *c.options.willProps
		}
	}

	if c.version.is5() {
		if c.options.sessionExpiryInterval > 0 {
			pkt.Props.Set(PropSessionExpiryInterval, c.options.sessionExpiryInterval)
		}
		if c.options.receiveMaximum > 0 && c.options.receiveMaximum < 65535 {
			pkt.Props.Set(PropReceiveMaximum, c.options.receiveMaximum)
		}
		if c.options.maxPacketSize > 0 {
			pkt.Props.Set(PropMaximumPacketSize, c.options.maxPacketSize)
		}
		if c.options.topicAliasMaximum > 0 {
			pkt.Props.Set(PropTopicAliasMaximum, c.options.topicAliasMaximum)
		}
		for key, value := range c.options.userProperties {
			pkt.Props.Add(PropUserProperty, StringPair{Key: key, Value: value})
		}
	}

	return pkt
}

// readConnackWithAuth reads packets until CONNACK arrives, answering any
// enhanced authentication challenges along the way.
func (c *Client) readConnackWithAuth(ctx context.Context) (*ConnackPacket, error) {
	pkt, err := c.readHandshakePacket()
	if err != nil {
		return nil, err
	}

	for {
		authPkt, isAuth := pkt.(*AuthPacket)
		if !isAuth {
			break
		}

		if c.options.enhancedAuth == nil {
			return nil, fmt.Errorf("received AUTH packet but enhanced auth not configured: %w", ErrProtocolError)
		}

		if authPkt.ReasonCode != ReasonContinueAuth {
			return nil, fmt.Errorf("enhanced auth failed: %s: %w", authPkt.ReasonCode, ErrAuthFailed)
		}

		authCtx := &EnhancedAuthContext{
			AuthMethod: authPkt.Props.GetString(PropAuthenticationMethod),
			AuthData:   authPkt.Props.GetBinary(PropAuthenticationData),
			ReasonCode: authPkt.ReasonCode,
			State:      c.authState,
		}

		result, err := c.options.enhancedAuth.AuthContinue(ctx, authCtx)
		if err != nil {
			return nil, fmt.Errorf("enhanced auth continue failed: %w", err)
		}
		c.authState = result.State

		resp := &AuthPacket{ReasonCode: ReasonContinueAuth}
		resp.Props.Set(PropAuthenticationMethod, c.options.enhancedAuth.AuthMethod())
		if len(result.AuthData) > 0 {
			resp.Props.Set(PropAuthenticationData, result.AuthData)
		}
		if err := c.writePacket(resp); err != nil {
			return nil, fmt.Errorf("failed to send AUTH: %w", err)
		}

		pkt, err = c.readHandshakePacket()
		if err != nil {
			return nil, err
		}
	}

	connack, ok := pkt.(*ConnackPacket)
	if !ok {
		return nil, fmt.Errorf("expected CONNACK, got %s: %w", pkt.Type(), ErrProtocolError)
	}

	if !connack.Accepted() {
		return nil, NewConnectError(connack.Reason(), connack.Properties())
	}

	return connack, nil
}

// readHandshakePacket reads one packet under the connect timeout.
func (c *Client) readHandshakePacket() (Packet, error) {
	c.conn.SetReadDeadline(time.Now().Add(c.options.connectTimeout))
	pkt, n, err := ReadPacket(c.conn, c.version, c.options.maxPacketSize)
	c.conn.SetReadDeadline(time.Time{})
	if err != nil {
		return nil, fmt.Errorf("failed to read handshake response: %w", err)
	}
	c.ka.touchRecv(time.Now())
	c.stats.PacketReceived(pkt.Type())
	c.stats.BytesReceived(n)
	return pkt, nil
}

// applyConnackProperties applies the v5 CONNACK properties to the
// negotiated connection parameters.
func (c *Client) applyConnackProperties(connack *ConnackPacket) error {
	c.ka.setInterval(c.options.keepAlive)
	c.wildcardSubAvail = true
	c.sharedSubAvail = true
	c.subIDAvail = true
	c.retainAvail = true

	props := connack.Properties()
	if props == nil || !c.version.is5() {
		return nil
	}

	if assignedID := props.GetString(PropAssignedClientIdentifier); assignedID != "" {
		c.setClientID(assignedID)
	}

	if serverKA := props.GetUint16(PropServerKeepAlive); serverKA > 0 {
		c.ka.setInterval(serverKA)
	}

	// Maximum Packet Size limits what we may send, not what we accept.
	if props.Has(PropMaximumPacketSize) {
		maxSize := props.GetUint32(PropMaximumPacketSize)
		if maxSize == 0 || maxSize > MaxPacketSizeProtocol {
			return fmt.Errorf("server sent invalid Maximum Packet Size: %w", ErrProtocolViolation)
		}
		c.outboundMax = maxSize
	}

	if props.Has(PropReceiveMaximum) {
		serverRM := props.GetUint16(PropReceiveMaximum)
		if serverRM == 0 {
			return fmt.Errorf("server sent Receive Maximum = 0: %w", ErrProtocolViolation)
		}
		c.sess.quota.SetReceiveMaximum(serverRM)
	}

	// Absent means zero: no aliases on this connection.
	c.aliases.setServerMax(props.GetUint16(PropTopicAliasMaximum))

	if props.Has(PropWildcardSubAvailable) {
		c.wildcardSubAvail = props.GetByte(PropWildcardSubAvailable) != 0
	}
	if props.Has(PropSharedSubAvailable) {
		c.sharedSubAvail = props.GetByte(PropSharedSubAvailable) != 0
	}
	if props.Has(PropSubscriptionIDAvailable) {
		c.subIDAvail = props.GetByte(PropSubscriptionIDAvailable) != 0
	}
	if props.Has(PropRetainAvailable) {
		c.retainAvail = props.GetByte(PropRetainAvailable) != 0
	}

	return nil
}

// resumeSession retransmits the unfinished QoS flows on a resumed session:
// unacknowledged publishes with the DUP flag, then outstanding PUBRELs.
func (c *Client) resumeSession() {
	now := time.Now()

	for _, p := range c.sess.resumePublishes() {
		p.Version = c.version
		// Aliases did not survive the reconnect
		p.Props.Delete(PropTopicAlias)
		if err := c.writePacket(p); err != nil {
			c.logger.Warn("failed to retransmit publish", LogFields{
				LogFieldPacketID: p.PacketID,
				LogFieldError:    err.Error(),
			})
			return
		}
		c.sentAt[p.PacketID] = now
	}

	for _, id := range c.sess.resumeReleases() {
		rel := &PubrelPacket{Version: c.version, PacketID: id}
		if err := c.writePacket(rel); err != nil {
			c.logger.Warn("failed to retransmit pubrel", LogFields{
				LogFieldPacketID: id,
				LogFieldError:    err.Error(),
			})
			return
		}
		c.sentAt[id] = now
	}
}

// restoreSubscriptions replays the recorded subscriptions after a
// reconnect so wildcard routing keeps working on a fresh server session.
func (c *Client) restoreSubscriptions() {
	subs := c.sess.subscriptionList()
	if len(subs) == 0 {
		return
	}
	if err := c.sendSubscribe(subs); err != nil {
		c.logger.Warn("failed to restore subscriptions", LogFields{
			LogFieldError: err.Error(),
		})
	}
}

// serve is the event loop proper: a single goroutine that owns all session
// state and multiplexes requests, inbound packets, and timers.
func (c *Client) serve() error {
	stop := make(chan struct{})
	defer close(stop)

	inboundCh := make(chan inboundPacket, 8)
	readErrCh := make(chan error, 1)
	go c.readPump(c.conn, stop, inboundCh, readErrCh)

	var keepAliveC <-chan time.Time
	if c.ka.enabled() {
		ticker := time.NewTicker(c.ka.tickInterval())
		defer ticker.Stop()
		keepAliveC = ticker.C
	}

	resend := time.NewTicker(c.options.resendInterval)
	defer resend.Stop()

	for {
		select {
		case <-c.parentCtx.Done():
			c.shutdown(ReasonSuccess)
			return errStopped

		case req := <-c.requests:
			if req.kind == reqDisconnect {
				c.shutdown(req.reason)
				req.reply <- nil
				return errStopped
			}
			req.reply <- c.handleRequest(req)

		case in := <-inboundCh:
			c.ka.touchRecv(time.Now())
			c.stats.PacketReceived(in.packet.Type())
			c.stats.BytesReceived(in.size)
			if err := c.handleInbound(in.packet); err != nil {
				return err
			}

		case err := <-readErrCh:
			return &ConnectionError{Reason: err}

		case now := <-keepAliveC:
			if err := c.checkKeepAlive(now); err != nil {
				return err
			}

		case now := <-resend.C:
			c.resendUnacked(now)
		}
	}
}

// readPump decodes packets off the connection and feeds the event loop.
// It exits on the first read error, which includes the loop closing the
// connection underneath it.
func (c *Client) readPump(conn net.Conn, stop <-chan struct{}, ch chan<- inboundPacket, errCh chan<- error) {
	for {
		pkt, n, err := ReadPacket(conn, c.version, c.options.maxPacketSize)
		if err != nil {
			select {
			case errCh <- err:
			case <-stop:
			}
			return
		}
		select {
		case ch <- inboundPacket{packet: pkt, size: n}:
		case <-stop:
			return
		}
	}
}

// handleRequest dispatches one facade request.
func (c *Client) handleRequest(req *request) error {
	switch req.kind {
	case reqPublish:
		return c.doPublish(req.msg)
	case reqSubscribe:
		return c.doSubscribe(req.subs)
	case reqUnsubscribe:
		return c.doUnsubscribe(req.filters)
	case reqAck:
		return c.doAck(req.msg)
	default:
		return ErrProtocolError
	}
}

func (c *Client) doPublish(msg *Message) error {
	msg = applyProducerInterceptors(c.options.producerInterceptors, msg, c.logger)
	if msg == nil {
		return nil
	}

	if err := ValidateTopicName(msg.Topic); err != nil {
		return err
	}
	if !validQoS(msg.QoS) {
		return ErrInvalidQoS
	}
	if msg.Retain && !c.retainAvail {
		return ErrRetainNotSupported
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(c.parentCtx); err != nil {
			return err
		}
	}

	pkt := &PublishPacket{}
	pkt.FromMessage(msg)
	pkt.Version = c.version

	// Establish an outbound alias alongside the full topic when the
	// server advertised alias support. The topic is never elided so
	// retransmissions stay self-contained.
	if c.version.is5() {
		if alias := c.aliases.outboundFor(msg.Topic); alias > 0 {
			pkt.Props.Set(PropTopicAlias, alias)
		}
	}

	if msg.QoS > QoS0 {
		if !c.sess.quota.TryAcquire() {
			return ErrQuotaExceeded
		}
		id, err := c.sess.allocPacketID()
		if err != nil {
			c.sess.quota.Release()
			return err
		}
		pkt.PacketID = id
		c.sess.trackPublish(pkt)
		c.sentAt[id] = time.Now()
		c.stats.InflightUp()
	}

	if err := c.writePacket(pkt); err != nil {
		if msg.QoS > QoS0 {
			delete(c.sess.outgoingPub, pkt.PacketID)
			delete(c.sentAt, pkt.PacketID)
			c.sess.quota.Release()
			c.stats.InflightDown()
		}
		return err
	}

	c.stats.MessageSent(msg.QoS)
	return nil
}

func (c *Client) doSubscribe(subs []Subscription) error {
	for _, sub := range subs {
		if err := ValidateTopicFilter(sub.TopicFilter); err != nil {
			return err
		}
		if !validQoS(sub.QoS) {
			return ErrInvalidQoS
		}
		if !c.wildcardSubAvail && containsWildcard(matchFilter(sub.TopicFilter)) {
			return ErrWildcardSubNotSupported
		}
		if !c.sharedSubAvail && isSharedSubscription(sub.TopicFilter) {
			return ErrSharedSubNotSupported
		}
		if sub.SubscriptionID > 0 && !c.subIDAvail {
			return ErrSubIDNotSupported
		}
	}
	return c.sendSubscribe(subs)
}

// sendSubscribe writes a SUBSCRIBE and records the pending filters for
// SUBACK correlation and reconnect replay.
func (c *Client) sendSubscribe(subs []Subscription) error {
	id, err := c.sess.allocPacketID()
	if err != nil {
		return err
	}

	pkt := &SubscribePacket{
		Version:       c.version,
		PacketID:      id,
		Subscriptions: subs,
	}
	if c.version.is5() && subs[0].SubscriptionID > 0 {
		pkt.Props.Set(PropSubscriptionIdentifier, subs[0].SubscriptionID)
	}

	if err := c.writePacket(pkt); err != nil {
		return err
	}

	c.pendingSub[id] = subs
	c.sess.addSubscription(subs...)
	return nil
}

func (c *Client) doUnsubscribe(filters []string) error {
	for _, f := range filters {
		if err := ValidateTopicFilter(f); err != nil {
			return err
		}
	}

	id, err := c.sess.allocPacketID()
	if err != nil {
		return err
	}

	pkt := &UnsubscribePacket{
		Version:      c.version,
		PacketID:     id,
		TopicFilters: filters,
	}

	if err := c.writePacket(pkt); err != nil {
		return err
	}

	c.pendingUnsub[id] = filters
	return nil
}

func (c *Client) doAck(msg *Message) error {
	qos, err := c.sess.takePendingInbound(msg.PacketID)
	if err != nil {
		return err
	}
	c.stats.PendingAckDown()

	switch qos {
	case QoS1:
		return c.writePacket(&PubackPacket{Version: c.version, PacketID: msg.PacketID})
	case QoS2:
		return c.writePacket(&PubrecPacket{Version: c.version, PacketID: msg.PacketID})
	default:
		return nil
	}
}

// handleInbound dispatches one packet from the server. A non-nil return
// ends the connection.
func (c *Client) handleInbound(pkt Packet) error {
	switch p := pkt.(type) {
	case *PublishPacket:
		return c.handlePublish(p)
	case *PubackPacket:
		c.handlePuback(p)
	case *PubrecPacket:
		return c.handlePubrec(p)
	case *PubrelPacket:
		return c.handlePubrel(p)
	case *PubcompPacket:
		c.handlePubcomp(p)
	case *SubackPacket:
		c.handleSuback(p)
	case *UnsubackPacket:
		c.handleUnsuback(p)
	case *PingrespPacket:
		// touchRecv already cleared the outstanding ping
	case *DisconnectPacket:
		c.emit(NewDisconnectError(p.ReasonCode, &p.Props, true))
		return &ConnectionError{Reason: ErrServerDisconnect}
	case *AuthPacket:
		return c.handleReauth(p)
	default:
		// CONNECT, SUBSCRIBE and the other client-to-server packets
		// have no business arriving here.
		c.logger.Warn("unexpected inbound packet", LogFields{
			LogFieldPacketType: pkt.Type().String(),
		})
	}
	return nil
}

func (c *Client) handlePublish(pkt *PublishPacket) error {
	if c.version.is5() {
		if alias := pkt.Props.GetUint16(PropTopicAlias); alias > 0 {
			if pkt.Topic == "" {
				topic, err := c.aliases.resolve(alias)
				if err != nil {
					return &ConnectionError{Reason: err}
				}
				pkt.Topic = topic
			} else if err := c.aliases.remember(alias, pkt.Topic); err != nil {
				return &ConnectionError{Reason: err}
			}
		}
	}

	msg := pkt.ToMessage()
	c.stats.MessageReceived(msg.QoS)

	switch msg.QoS {
	case QoS0:
		c.deliver(msg)

	case QoS1:
		if c.options.manualAcks {
			c.sess.notePendingInbound(msg.PacketID, QoS1)
			c.stats.PendingAckUp()
			c.deliver(msg)
			return nil
		}
		c.deliver(msg)
		return c.writePacket(&PubackPacket{Version: c.version, PacketID: msg.PacketID})

	case QoS2:
		fresh := c.sess.recvQoS2Publish(msg.PacketID)
		if c.options.manualAcks {
			if fresh {
				c.sess.notePendingInbound(msg.PacketID, QoS2)
				c.stats.PendingAckUp()
				c.deliver(msg)
			}
			return nil
		}
		if err := c.writePacket(&PubrecPacket{Version: c.version, PacketID: msg.PacketID}); err != nil {
			return err
		}
		if fresh {
			c.deliver(msg)
		}
	}
	return nil
}

func (c *Client) handlePuback(pkt *PubackPacket) {
	if _, err := c.sess.ackPublish(pkt.PacketID); err != nil {
		c.logger.Warn("puback for unknown packet", LogFields{
			LogFieldPacketID: pkt.PacketID,
		})
		c.emit(err)
		return
	}
	c.completeOutgoing(pkt.PacketID)

	if pkt.ReasonCode.IsError() {
		c.emit(NewPublishError("", pkt.PacketID, pkt.ReasonCode))
	}
}

func (c *Client) handlePubrec(pkt *PubrecPacket) error {
	if pkt.ReasonCode.IsError() {
		// The server rejected the publish; the flow ends here.
		if _, err := c.sess.ackPublish(pkt.PacketID); err == nil {
			c.completeOutgoing(pkt.PacketID)
		}
		c.emit(NewPublishError("", pkt.PacketID, pkt.ReasonCode))
		return nil
	}

	if err := c.sess.recvPubrec(pkt.PacketID); err != nil {
		c.logger.Warn("pubrec for unknown packet", LogFields{
			LogFieldPacketID: pkt.PacketID,
		})
		c.emit(err)
		return nil
	}

	c.sentAt[pkt.PacketID] = time.Now()
	return c.writePacket(&PubrelPacket{Version: c.version, PacketID: pkt.PacketID})
}

func (c *Client) handlePubrel(pkt *PubrelPacket) error {
	c.sess.recvPubrel(pkt.PacketID)
	// PUBCOMP is always sent, including for retransmitted PUBRELs whose
	// first PUBCOMP was lost.
	return c.writePacket(&PubcompPacket{Version: c.version, PacketID: pkt.PacketID})
}

func (c *Client) handlePubcomp(pkt *PubcompPacket) {
	if err := c.sess.recvPubcomp(pkt.PacketID); err != nil {
		c.logger.Warn("pubcomp for unknown packet", LogFields{
			LogFieldPacketID: pkt.PacketID,
		})
		c.emit(err)
		return
	}
	c.completeOutgoing(pkt.PacketID)
}

// completeOutgoing finishes the bookkeeping for an acknowledged outgoing
// publish flow.
func (c *Client) completeOutgoing(id uint16) {
	if sent, ok := c.sentAt[id]; ok {
		c.stats.PublishLatency(time.Since(sent))
		delete(c.sentAt, id)
	}
	c.stats.InflightDown()
}

func (c *Client) handleSuback(pkt *SubackPacket) {
	subs, ok := c.pendingSub[pkt.PacketID]
	if !ok {
		c.logger.Warn("suback for unknown packet", LogFields{
			LogFieldPacketID: pkt.PacketID,
		})
		c.emit(&UnknownPacketIDError{PacketID: pkt.PacketID})
		return
	}
	delete(c.pendingSub, pkt.PacketID)

	for i, rc := range pkt.ReasonCodes {
		if i >= len(subs) {
			break
		}
		if rc.IsError() {
			c.sess.removeSubscription(subs[i].TopicFilter)
			c.emit(NewSubscribeError(subs[i].TopicFilter, rc))
		}
	}
}

func (c *Client) handleUnsuback(pkt *UnsubackPacket) {
	filters, ok := c.pendingUnsub[pkt.PacketID]
	if !ok {
		c.logger.Warn("unsuback for unknown packet", LogFields{
			LogFieldPacketID: pkt.PacketID,
		})
		c.emit(&UnknownPacketIDError{PacketID: pkt.PacketID})
		return
	}
	delete(c.pendingUnsub, pkt.PacketID)

	for i, f := range filters {
		// The v3.1.1 form carries no reason codes; absence means success.
		if c.version.is5() && i < len(pkt.ReasonCodes) && pkt.ReasonCodes[i].IsError() {
			c.emit(fmt.Errorf("%w: %s: %s", ErrUnsubscribeFailed, f, pkt.ReasonCodes[i]))
			continue
		}
		c.sess.removeSubscription(f)
	}
}

// handleReauth answers a server-initiated AUTH exchange on a live
// connection.
func (c *Client) handleReauth(pkt *AuthPacket) error {
	if c.options.enhancedAuth == nil {
		return &ConnectionError{Reason: ErrProtocolError}
	}
	if pkt.ReasonCode == ReasonSuccess {
		return nil
	}

	authCtx := &EnhancedAuthContext{
		AuthMethod: pkt.Props.GetString(PropAuthenticationMethod),
		AuthData:   pkt.Props.GetBinary(PropAuthenticationData),
		ReasonCode: pkt.ReasonCode,
		State:      c.authState,
	}

	result, err := c.options.enhancedAuth.AuthContinue(c.parentCtx, authCtx)
	if err != nil {
		return &ConnectionError{Reason: err}
	}
	c.authState = result.State

	resp := &AuthPacket{ReasonCode: ReasonContinueAuth}
	resp.Props.Set(PropAuthenticationMethod, c.options.enhancedAuth.AuthMethod())
	if len(result.AuthData) > 0 {
		resp.Props.Set(PropAuthenticationData, result.AuthData)
	}
	return c.writePacket(resp)
}

// checkKeepAlive sends PINGREQ after one idle interval and declares the
// connection dead after two intervals without inbound traffic.
func (c *Client) checkKeepAlive(now time.Time) error {
	if c.ka.expired(now) {
		return &ConnectionError{Reason: ErrKeepAliveTimeout}
	}

	if c.ka.shouldPing(now) {
		if err := c.writePacket(&PingreqPacket{}); err != nil {
			return &ConnectionError{Reason: err}
		}
		c.ka.pingSent()
	}
	return nil
}

// resendUnacked retransmits publish flows that have waited longer than the
// resend interval without an acknowledgment.
func (c *Client) resendUnacked(now time.Time) {
	for id, sent := range c.sentAt {
		if now.Sub(sent) < c.options.resendInterval {
			continue
		}

		if p, ok := c.sess.outgoingPub[id]; ok {
			p.DUP = true
			if err := c.writePacket(p); err != nil {
				return
			}
			c.sentAt[id] = now
			continue
		}

		if _, ok := c.sess.outgoingRel[id]; ok {
			if err := c.writePacket(&PubrelPacket{Version: c.version, PacketID: id}); err != nil {
				return
			}
			c.sentAt[id] = now
		}
	}
}

// deliver hands an inbound message to the Messages channel. Delivery
// blocks when the consumer lags, which is the backpressure the bounded
// channel is there for. A consumer interceptor returning nil drops the
// delivery without affecting the acknowledgment flow.
func (c *Client) deliver(msg *Message) {
	msg = applyConsumerInterceptors(c.options.consumerInterceptors, msg, c.logger)
	if msg == nil {
		return
	}

	select {
	case c.messages <- msg:
	case <-c.parentCtx.Done():
	}
}

// shutdown performs the graceful half of a disconnect: DISCONNECT packet,
// connection teardown, event.
func (c *Client) shutdown(reason ReasonCode) {
	c.setState(StateDisconnecting)

	if c.conn != nil {
		pkt := &DisconnectPacket{Version: c.version, ReasonCode: reason}
		if err := c.writePacket(pkt); err != nil {
			c.logger.Debug("failed to send DISCONNECT", LogFields{
				LogFieldError: err.Error(),
			})
		}
	}
	c.closeConn()
	c.setState(StateDisconnected)
	c.emit(NewDisconnectError(reason, nil, false))
}

// writePacket validates and writes one packet under the write deadline.
func (c *Client) writePacket(pkt Packet) error {
	if c.conn == nil {
		return ErrNotConnected
	}

	if c.options.writeTimeout > 0 {
		c.conn.SetWriteDeadline(time.Now().Add(c.options.writeTimeout))
		defer c.conn.SetWriteDeadline(time.Time{})
	}

	n, err := WritePacket(c.conn, pkt, c.outboundMax)
	if err != nil {
		return err
	}

	c.ka.touchSent(time.Now())
	c.stats.PacketSent(pkt.Type())
	c.stats.BytesSent(n)
	return nil
}

func (c *Client) closeConn() {
	if c.conn != nil {
		c.conn.Close()
	}
}

// emit invokes the event handler, if any.
func (c *Client) emit(event error) {
	if c.options.onEvent != nil {
		c.options.onEvent(c, event)
	}
}
