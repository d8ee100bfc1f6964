// Package mqttc provides an MQTT v3.1.1 and v5.0 client library.
//
// This package implements the client side of the MQTT Version 5.0 OASIS
// Standard (https://docs.oasis-open.org/mqtt/mqtt/v5.0/mqtt-v5.0.html) and
// MQTT Version 3.1.1, selectable per connection.
//
// # Features
//
//   - All 15 MQTT control packet types, v3.1.1 and v5.0 wire formats
//   - Complete v5.0 properties system with per-packet legality checking
//   - QoS 0, 1, 2 message flows with session resumption and DUP retransmission
//   - Automatic reconnection with backoff and subscription replay
//   - Topic validation and matching with wildcard support (+, #)
//   - Transports: TCP, TLS, WebSocket, WSS, QUIC, Unix sockets, SOCKS5/HTTP proxies
//   - Enhanced authentication (AUTH exchange) with a SCRAM implementation
//   - Flow control honoring the server's Receive Maximum
//   - Pluggable logging and metrics, including a Prometheus backend
//
// # Client
//
// Dial connects to a broker and returns a Client whose methods enqueue work
// for a single event-loop goroutine that owns all session state:
//
//	client, err := mqttc.Dial(
//	    mqttc.WithServers("tcp://localhost:1883"),
//	    mqttc.WithClientID("my-client"),
//	    mqttc.WithKeepAlive(60),
//	)
//	defer client.Close()
//
//	err = client.Subscribe(ctx, "sensors/#", mqttc.QoS1)
//
//	err = client.Publish(ctx, &mqttc.Message{
//	    Topic:   "sensors/room1/temp",
//	    Payload: []byte("21.5"),
//	    QoS:     mqttc.QoS1,
//	})
//
// Inbound messages arrive on the Messages channel:
//
//	for msg := range client.Messages() {
//	    fmt.Printf("%s: %s\n", msg.Topic, msg.Payload)
//	}
//
// Do not call Ack synchronously from the goroutine draining Messages while
// the channel is full; drain and acknowledge from separate goroutines, or
// acknowledge after the read loop has consumed the message.
//
// TLS and WebSocket connections select the transport by URL scheme:
//
//	client, err := mqttc.Dial(
//	    mqttc.WithServers("ssl://localhost:8883"),
//	    mqttc.WithTLS(&tls.Config{}),
//	)
//
//	client, err := mqttc.Dial(mqttc.WithServers("ws://localhost:8080/mqtt"))
//
// # Connection lifecycle
//
// The client reconnects automatically unless WithAutoReconnect(false) is
// set, replaying subscriptions and retransmitting unacknowledged QoS > 0
// publishes when the session survives. Lifecycle notifications are
// delivered to the OnEvent handler as typed errors that work with
// errors.Is and errors.As:
//
//	mqttc.OnEvent(func(c *mqttc.Client, e error) {
//	    switch {
//	    case errors.Is(e, mqttc.ErrConnected):
//	        log.Println("connected")
//	    case errors.Is(e, mqttc.ErrConnectionLost):
//	        log.Printf("connection lost: %v", e)
//	    }
//	})
//
// # Manual acknowledgments
//
// With WithManualAcks(true) the client stops acknowledging inbound QoS > 0
// publishes on its own; the application calls Ack when it has durably
// processed a message:
//
//	client, _ := mqttc.Dial(
//	    mqttc.WithServers("tcp://localhost:1883"),
//	    mqttc.WithManualAcks(true),
//	)
//
//	msg := <-client.Messages()
//	// ... process ...
//	client.Ack(ctx, msg)
//
// # Packet codec
//
// The packet layer is usable on its own. Use ReadPacket and WritePacket to
// exchange packets over any io.Reader/io.Writer:
//
//	pkt, n, err := mqttc.ReadPacket(conn, mqttc.ProtocolV5, maxPacketSize)
//
//	n, err := mqttc.WritePacket(conn, packet, maxPacketSize)
//
// Every packet implements Encode, Decode, Size and Validate; Size always
// returns exactly the byte count Encode writes.
//
// # Enhanced authentication
//
// Implement EnhancedAuthenticator for multi-step AUTH exchanges, or use the
// provided SCRAM client:
//
//	auth := mqttc.NewSCRAMClientAuthenticator("user", "pass", mqttc.SCRAMHashSHA256)
//	client, err := mqttc.Dial(
//	    mqttc.WithServers("tcp://localhost:1883"),
//	    mqttc.WithEnhancedAuthentication(auth),
//	)
//
// # Topic matching
//
// Topic validation and matching support MQTT wildcards:
//
//	err := mqttc.ValidateTopicName("sensors/temperature")
//	err = mqttc.ValidateTopicFilter("sensors/+/status")
//	matched := mqttc.TopicMatch("sensors/#", "sensors/room1/temp")
//	shared, _ := mqttc.ParseSharedSubscription("$share/group/topic")
//
// # Metrics
//
// Implement the Metrics interface, or use one of the provided backends:
//
//	// In-memory, for tests and local inspection
//	metrics := mqttc.NewMemoryMetrics()
//
//	// Prometheus, registered against a prometheus.Registerer
//	metrics := mqttc.NewPrometheusMetrics(prometheus.DefaultRegisterer)
//
//	client, err := mqttc.Dial(
//	    mqttc.WithServers("tcp://localhost:1883"),
//	    mqttc.WithMetrics(metrics),
//	)
//
// # Logging
//
// Implement the Logger interface for structured logging:
//
//	logger := mqttc.NewStdLogger(os.Stdout, mqttc.LogLevelInfo)
//	client, err := mqttc.Dial(
//	    mqttc.WithServers("tcp://localhost:1883"),
//	    mqttc.WithLogger(logger),
//	)
package mqttc
