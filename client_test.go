package mqttc

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBroker is a minimal in-process MQTT server for exercising the client
// end to end over a real TCP connection. It answers CONNECT with a canned
// CONNACK and, when autoAck is set, completes the standard packet exchanges:
// SUBACK for SUBSCRIBE, UNSUBACK for UNSUBSCRIBE, PINGRESP for PINGREQ, and
// the PUBACK / PUBREC / PUBCOMP side of the publish flows.
//
// Every packet read off the wire is forwarded to the received channel so
// tests can assert on what the client actually sent.
type fakeBroker struct {
	t *testing.T

	sessionPresent bool
	connackReason  ReasonCode
	connackProps   *Properties
	autoAck        bool
	authChallenge  bool

	listener net.Listener

	mu   sync.Mutex
	conn net.Conn

	received  chan Packet
	connected chan struct{}
}

func newFakeBroker(t *testing.T) *fakeBroker {
	t.Helper()

	b := &fakeBroker{
		t:             t,
		connackReason: ReasonSuccess,
		autoAck:       true,
		received:      make(chan Packet, 64),
		connected:     make(chan struct{}, 4),
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	b.listener = listener
	t.Cleanup(func() { listener.Close() })

	go b.acceptLoop()
	return b
}

func (b *fakeBroker) URL() string {
	return "tcp://" + b.listener.Addr().String()
}

func (b *fakeBroker) acceptLoop() {
	for {
		conn, err := b.listener.Accept()
		if err != nil {
			return
		}
		b.mu.Lock()
		b.conn = conn
		b.mu.Unlock()
		b.serve(conn)
	}
}

func (b *fakeBroker) serve(conn net.Conn) {
	defer conn.Close()

	for {
		pkt, _, err := ReadPacket(conn, ProtocolV5, 0)
		if err != nil {
			return
		}

		select {
		case b.received <- pkt:
		default:
		}

		switch p := pkt.(type) {
		case *ConnectPacket:
			if b.authChallenge {
				challenge := &AuthPacket{ReasonCode: ReasonContinueAuth}
				challenge.Props.Set(PropAuthenticationMethod, p.Props.GetString(PropAuthenticationMethod))
				challenge.Props.Set(PropAuthenticationData, []byte("server-challenge"))
				if b.send(challenge) != nil {
					return
				}
				continue
			}
			if b.sendConnack() != nil {
				return
			}
			if b.connackReason != ReasonSuccess {
				return
			}

		case *AuthPacket:
			if b.sendConnack() != nil {
				return
			}

		case *PublishPacket:
			if !b.autoAck {
				continue
			}
			switch p.QoS {
			case QoS1:
				b.send(&PubackPacket{Version: ProtocolV5, PacketID: p.PacketID})
			case QoS2:
				b.send(&PubrecPacket{Version: ProtocolV5, PacketID: p.PacketID})
			}

		case *PubrelPacket:
			if b.autoAck {
				b.send(&PubcompPacket{Version: ProtocolV5, PacketID: p.PacketID})
			}

		case *SubscribePacket:
			codes := make([]ReasonCode, len(p.Subscriptions))
			for i, sub := range p.Subscriptions {
				codes[i] = ReasonCode(sub.QoS)
			}
			b.send(&SubackPacket{Version: ProtocolV5, PacketID: p.PacketID, ReasonCodes: codes})

		case *UnsubscribePacket:
			codes := make([]ReasonCode, len(p.TopicFilters))
			b.send(&UnsubackPacket{Version: ProtocolV5, PacketID: p.PacketID, ReasonCodes: codes})

		case *PingreqPacket:
			b.send(&PingrespPacket{})

		case *DisconnectPacket:
			return
		}
	}
}

func (b *fakeBroker) sendConnack() error {
	ack := &ConnackPacket{
		Version:        ProtocolV5,
		SessionPresent: b.sessionPresent,
		ReasonCode:     b.connackReason,
	}
	if b.connackProps != nil {
		ack.Props = *b.connackProps
	}
	if err := b.send(ack); err != nil {
		return err
	}
	select {
	case b.connected <- struct{}{}:
	default:
	}
	return nil
}

// send writes a packet to the current client connection.
func (b *fakeBroker) send(pkt Packet) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn == nil {
		return net.ErrClosed
	}
	_, err := WritePacket(b.conn, pkt, 0)
	return err
}

// dropConnection closes the client connection without a DISCONNECT, the way
// a crashed broker or a flaky network would.
func (b *fakeBroker) dropConnection() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn != nil {
		b.conn.Close()
	}
}

// expect waits for a packet of the given type, skipping everything else
// that arrives in between.
func (b *fakeBroker) expect(t *testing.T, want PacketType) Packet {
	t.Helper()

	deadline := time.After(3 * time.Second)
	for {
		select {
		case pkt := <-b.received:
			if pkt.Type() == want {
				return pkt
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", want)
			return nil
		}
	}
}

// waitConnected blocks until the broker has answered a CONNECT.
func (b *fakeBroker) waitConnected(t *testing.T) {
	t.Helper()

	select {
	case <-b.connected:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for client to connect")
	}
}

func dialTestClient(t *testing.T, b *fakeBroker, extra ...Option) *Client {
	t.Helper()

	opts := append([]Option{
		WithServers(b.URL()),
		WithClientID("test-client"),
		WithConnectTimeout(2 * time.Second),
		WithAutoReconnect(false),
	}, extra...)

	client, err := Dial(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func receiveMessage(t *testing.T, client *Client) *Message {
	t.Helper()

	select {
	case msg := <-client.Messages():
		return msg
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for message delivery")
		return nil
	}
}

func TestClientConnectAndDisconnect(t *testing.T) {
	b := newFakeBroker(t)
	client := dialTestClient(t, b)

	assert.True(t, client.IsConnected())
	assert.Equal(t, StateConnected, client.State())
	assert.Equal(t, "test-client", client.ClientID())

	connect := b.expect(t, PacketCONNECT).(*ConnectPacket)
	assert.Equal(t, "test-client", connect.ClientID)

	require.NoError(t, client.Disconnect(context.Background()))
	b.expect(t, PacketDISCONNECT)

	select {
	case <-client.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("client did not shut down after disconnect")
	}
	assert.Equal(t, StateDisconnected, client.State())
	assert.False(t, client.IsConnected())
}

func TestClientConnectRejected(t *testing.T) {
	b := newFakeBroker(t)
	b.connackReason = ReasonNotAuthorized

	_, err := Dial(
		WithServers(b.URL()),
		WithClientID("test-client"),
		WithConnectTimeout(2*time.Second),
	)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuthFailed)

	var ce *ConnectError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ReasonNotAuthorized, ce.ReasonCode)
}

func TestClientAssignedClientID(t *testing.T) {
	b := newFakeBroker(t)
	props := &Properties{}
	props.Set(PropAssignedClientIdentifier, "srv-generated-42")
	b.connackProps = props

	client := dialTestClient(t, b, WithClientID(""), WithCleanStart(true))
	assert.Equal(t, "srv-generated-42", client.ClientID())
}

func TestClientDialNoServers(t *testing.T) {
	_, err := Dial(WithConnectTimeout(time.Second))
	assert.Error(t, err)
}

func TestClientDialConnectionRefused(t *testing.T) {
	_, err := Dial(
		WithServers("tcp://127.0.0.1:1"),
		WithConnectTimeout(time.Second),
	)
	assert.Error(t, err)
}

func TestClientPublishQoS0(t *testing.T) {
	b := newFakeBroker(t)
	client := dialTestClient(t, b)

	err := client.Publish(context.Background(), &Message{
		Topic:   "sensor/temp",
		Payload: []byte("21.5"),
		QoS:     QoS0,
	})
	require.NoError(t, err)

	pub := b.expect(t, PacketPUBLISH).(*PublishPacket)
	assert.Equal(t, "sensor/temp", pub.Topic)
	assert.Equal(t, []byte("21.5"), pub.Payload)
	assert.Equal(t, QoS0, pub.QoS)
	assert.Zero(t, pub.PacketID)
}

func TestClientPublishQoS1SequentialPacketIDs(t *testing.T) {
	b := newFakeBroker(t)
	client := dialTestClient(t, b)

	for i := 0; i < 3; i++ {
		err := client.Publish(context.Background(), &Message{
			Topic:   "sensor/temp",
			Payload: []byte("x"),
			QoS:     QoS1,
		})
		require.NoError(t, err)
	}

	for want := uint16(1); want <= 3; want++ {
		pub := b.expect(t, PacketPUBLISH).(*PublishPacket)
		assert.Equal(t, want, pub.PacketID)
		assert.Equal(t, QoS1, pub.QoS)
	}
}

func TestClientPublishQoS2Flow(t *testing.T) {
	b := newFakeBroker(t)
	client := dialTestClient(t, b)

	err := client.Publish(context.Background(), &Message{
		Topic:   "alarm/fire",
		Payload: []byte("now"),
		QoS:     QoS2,
	})
	require.NoError(t, err)

	pub := b.expect(t, PacketPUBLISH).(*PublishPacket)
	assert.Equal(t, QoS2, pub.QoS)

	rel := b.expect(t, PacketPUBREL).(*PubrelPacket)
	assert.Equal(t, pub.PacketID, rel.PacketID)
}

func TestClientPublishInvalidTopic(t *testing.T) {
	b := newFakeBroker(t)
	client := dialTestClient(t, b)

	err := client.Publish(context.Background(), &Message{
		Topic: "sensor/+/temp",
		QoS:   QoS0,
	})
	assert.Error(t, err)
}

func TestClientPublishQuotaExceeded(t *testing.T) {
	b := newFakeBroker(t)
	props := &Properties{}
	props.Set(PropReceiveMaximum, uint16(1))
	b.connackProps = props
	b.autoAck = false

	client := dialTestClient(t, b)

	err := client.Publish(context.Background(), &Message{
		Topic: "a/b", Payload: []byte("1"), QoS: QoS1,
	})
	require.NoError(t, err)

	err = client.Publish(context.Background(), &Message{
		Topic: "a/b", Payload: []byte("2"), QoS: QoS1,
	})
	assert.ErrorIs(t, err, ErrQuotaExceeded)
}

func TestClientPublishRetainUnavailable(t *testing.T) {
	b := newFakeBroker(t)
	props := &Properties{}
	props.Set(PropRetainAvailable, byte(0))
	b.connackProps = props

	client := dialTestClient(t, b)

	err := client.Publish(context.Background(), &Message{
		Topic:   "status/online",
		Payload: []byte("1"),
		QoS:     QoS0,
		Retain:  true,
	})
	assert.ErrorIs(t, err, ErrRetainNotSupported)

	// Non-retained publishes still go through.
	err = client.Publish(context.Background(), &Message{
		Topic: "status/online", Payload: []byte("1"), QoS: QoS0,
	})
	assert.NoError(t, err)
}

func TestClientSubscribeCapabilityGates(t *testing.T) {
	b := newFakeBroker(t)
	props := &Properties{}
	props.Set(PropWildcardSubAvailable, byte(0))
	props.Set(PropSharedSubAvailable, byte(0))
	props.Set(PropSubscriptionIDAvailable, byte(0))
	b.connackProps = props

	client := dialTestClient(t, b)
	ctx := context.Background()

	assert.ErrorIs(t, client.Subscribe(ctx, "sensor/#", QoS0), ErrWildcardSubNotSupported)
	assert.ErrorIs(t, client.Subscribe(ctx, "$share/group/sensor/temp", QoS0), ErrSharedSubNotSupported)
	assert.ErrorIs(t, client.SubscribeWith(ctx, Subscription{
		TopicFilter:    "sensor/temp",
		SubscriptionID: 7,
	}), ErrSubIDNotSupported)

	// A plain filter is unaffected by the capability gates.
	assert.NoError(t, client.Subscribe(ctx, "sensor/temp", QoS1))
	b.expect(t, PacketSUBSCRIBE)
}

func TestClientSubscribeAndReceive(t *testing.T) {
	b := newFakeBroker(t)
	client := dialTestClient(t, b)

	require.NoError(t, client.Subscribe(context.Background(), "sensor/+", QoS0))
	sub := b.expect(t, PacketSUBSCRIBE).(*SubscribePacket)
	require.Len(t, sub.Subscriptions, 1)
	assert.Equal(t, "sensor/+", sub.Subscriptions[0].TopicFilter)

	require.NoError(t, b.send(&PublishPacket{
		Version: ProtocolV5,
		Topic:   "sensor/temp",
		Payload: []byte("21.5"),
		QoS:     QoS0,
	}))

	msg := receiveMessage(t, client)
	assert.Equal(t, "sensor/temp", msg.Topic)
	assert.Equal(t, []byte("21.5"), msg.Payload)
	assert.Equal(t, QoS0, msg.QoS)
}

func TestClientReceiveQoS1AutoAck(t *testing.T) {
	b := newFakeBroker(t)
	client := dialTestClient(t, b)

	require.NoError(t, b.send(&PublishPacket{
		Version:  ProtocolV5,
		Topic:    "sensor/temp",
		Payload:  []byte("22"),
		QoS:      QoS1,
		PacketID: 7,
	}))

	msg := receiveMessage(t, client)
	assert.Equal(t, uint16(7), msg.PacketID)

	ack := b.expect(t, PacketPUBACK).(*PubackPacket)
	assert.Equal(t, uint16(7), ack.PacketID)
}

func TestClientReceiveQoS2Flow(t *testing.T) {
	b := newFakeBroker(t)
	client := dialTestClient(t, b)

	require.NoError(t, b.send(&PublishPacket{
		Version:  ProtocolV5,
		Topic:    "alarm/fire",
		Payload:  []byte("now"),
		QoS:      QoS2,
		PacketID: 9,
	}))

	msg := receiveMessage(t, client)
	assert.Equal(t, QoS2, msg.QoS)

	rec := b.expect(t, PacketPUBREC).(*PubrecPacket)
	assert.Equal(t, uint16(9), rec.PacketID)

	require.NoError(t, b.send(&PubrelPacket{Version: ProtocolV5, PacketID: 9}))

	comp := b.expect(t, PacketPUBCOMP).(*PubcompPacket)
	assert.Equal(t, uint16(9), comp.PacketID)
}

func TestClientManualAcks(t *testing.T) {
	b := newFakeBroker(t)
	client := dialTestClient(t, b, WithManualAcks(true))
	ctx := context.Background()

	require.NoError(t, b.send(&PublishPacket{
		Version:  ProtocolV5,
		Topic:    "work/items",
		Payload:  []byte("job-1"),
		QoS:      QoS1,
		PacketID: 11,
	}))

	msg := receiveMessage(t, client)

	require.NoError(t, client.Ack(ctx, msg))
	ack := b.expect(t, PacketPUBACK).(*PubackPacket)
	assert.Equal(t, uint16(11), ack.PacketID)

	// A second acknowledgment of the same message has nothing to match.
	err := client.Ack(ctx, msg)
	require.Error(t, err)
	var upe *UnknownPacketIDError
	assert.ErrorAs(t, err, &upe)
}

func TestClientAckWithoutManualAcks(t *testing.T) {
	b := newFakeBroker(t)
	client := dialTestClient(t, b)

	err := client.Ack(context.Background(), &Message{QoS: QoS1, PacketID: 1})
	assert.Error(t, err)
}

func TestClientUnsubscribe(t *testing.T) {
	b := newFakeBroker(t)
	client := dialTestClient(t, b)
	ctx := context.Background()

	require.NoError(t, client.Subscribe(ctx, "sensor/temp", QoS0))
	b.expect(t, PacketSUBSCRIBE)

	require.NoError(t, client.Unsubscribe(ctx, "sensor/temp"))
	unsub := b.expect(t, PacketUNSUBSCRIBE).(*UnsubscribePacket)
	assert.Equal(t, []string{"sensor/temp"}, unsub.TopicFilters)
}

func TestClientKeepAlive(t *testing.T) {
	b := newFakeBroker(t)
	dialTestClient(t, b, WithKeepAlive(1))

	b.expect(t, PacketPINGREQ)
}

func TestClientServerDisconnect(t *testing.T) {
	b := newFakeBroker(t)

	events := make(chan error, 16)
	client := dialTestClient(t, b, OnEvent(func(_ *Client, event error) {
		select {
		case events <- event:
		default:
		}
	}))

	require.NoError(t, b.send(&DisconnectPacket{
		Version:    ProtocolV5,
		ReasonCode: ReasonServerShuttingDown,
	}))

	select {
	case <-client.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("client did not stop after server disconnect")
	}

	var sawServerDisconnect, sawConnectionLost bool
	for {
		select {
		case event := <-events:
			if errors.Is(event, ErrServerDisconnect) {
				sawServerDisconnect = true
			}
			if errors.Is(event, ErrConnectionLost) {
				sawConnectionLost = true
			}
		default:
			assert.True(t, sawServerDisconnect, "expected a server disconnect event")
			assert.True(t, sawConnectionLost, "expected a connection lost event")
			return
		}
	}
}

func TestClientReconnectRestoresSubscriptions(t *testing.T) {
	b := newFakeBroker(t)

	events := make(chan error, 16)
	client := dialTestClient(t, b,
		WithAutoReconnect(true),
		WithMaxReconnects(5),
		WithReconnectBackoff(20*time.Millisecond),
		WithMaxBackoff(100*time.Millisecond),
		OnEvent(func(_ *Client, event error) {
			select {
			case events <- event:
			default:
			}
		}),
	)

	b.waitConnected(t)
	require.NoError(t, client.Subscribe(context.Background(), "sensor/temp", QoS1))
	b.expect(t, PacketSUBSCRIBE)

	b.dropConnection()

	b.waitConnected(t)
	b.expect(t, PacketCONNECT)
	sub := b.expect(t, PacketSUBSCRIBE).(*SubscribePacket)
	require.Len(t, sub.Subscriptions, 1)
	assert.Equal(t, "sensor/temp", sub.Subscriptions[0].TopicFilter)

	require.Eventually(t, client.IsConnected, 3*time.Second, 10*time.Millisecond)

	sawReconnect := false
	for done := false; !done; {
		select {
		case event := <-events:
			if errors.Is(event, ErrReconnecting) {
				sawReconnect = true
			}
		default:
			done = true
		}
	}
	assert.True(t, sawReconnect, "expected a reconnect event")
}

// staticAuth is a fixed-response enhanced authenticator for exercising the
// AUTH exchange during the handshake.
type staticAuth struct {
	startData    []byte
	continueData []byte
}

func (a *staticAuth) AuthMethod() string { return "X-TEST" }

func (a *staticAuth) AuthStart(_ context.Context) (*EnhancedAuthResult, error) {
	return &EnhancedAuthResult{AuthData: a.startData}, nil
}

func (a *staticAuth) AuthContinue(_ context.Context, _ *EnhancedAuthContext) (*EnhancedAuthResult, error) {
	return &EnhancedAuthResult{AuthData: a.continueData}, nil
}

func TestClientEnhancedAuth(t *testing.T) {
	b := newFakeBroker(t)
	b.authChallenge = true

	auth := &staticAuth{
		startData:    []byte("client-first"),
		continueData: []byte("client-final"),
	}
	dialTestClient(t, b, WithEnhancedAuthentication(auth))

	connect := b.expect(t, PacketCONNECT).(*ConnectPacket)
	assert.Equal(t, "X-TEST", connect.Props.GetString(PropAuthenticationMethod))
	assert.Equal(t, []byte("client-first"), connect.Props.GetBinary(PropAuthenticationData))

	response := b.expect(t, PacketAUTH).(*AuthPacket)
	assert.Equal(t, ReasonContinueAuth, response.ReasonCode)
	assert.Equal(t, "X-TEST", response.Props.GetString(PropAuthenticationMethod))
	assert.Equal(t, []byte("client-final"), response.Props.GetBinary(PropAuthenticationData))
}

func TestClientRequestAfterClose(t *testing.T) {
	b := newFakeBroker(t)
	client := dialTestClient(t, b)

	require.NoError(t, client.Close())

	err := client.Publish(context.Background(), &Message{Topic: "a/b", QoS: QoS0})
	assert.Error(t, err)
}

func TestClientSubscribeValidation(t *testing.T) {
	b := newFakeBroker(t)
	client := dialTestClient(t, b)
	ctx := context.Background()

	assert.Error(t, client.Subscribe(ctx, "", QoS0))
	assert.Error(t, client.Subscribe(ctx, "sensor/temp", 3))
	assert.Error(t, client.SubscribeWith(ctx))
	assert.Error(t, client.Unsubscribe(ctx))
	assert.Error(t, client.SubscribeMultiple(ctx, nil))
}
