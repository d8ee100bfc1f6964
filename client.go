package mqttc

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Client is an MQTT v3.1.1 / v5.0 client. All session state is owned by a
// single event-loop goroutine; the exported methods hand requests to that
// loop over a bounded queue and wait for the result, so a Client is safe
// for concurrent use.
type Client struct {
	options *clientOptions
	logger  Logger
	stats   *ClientMetrics

	requests chan *request
	messages chan *Message
	done     chan struct{}

	parentCtx context.Context
	cancel    context.CancelFunc

	state       atomic.Int32
	closed      atomic.Bool
	serverIndex uint32

	mu       sync.RWMutex
	clientID string

	// The fields below are owned by the event-loop goroutine and must not
	// be touched from anywhere else after DialContext returns.
	version      ProtocolVersion
	conn         net.Conn
	sess         *session
	aliases      *topicAliases
	limiter      *rate.Limiter
	ka           *keepAliveTracker
	sentAt       map[uint16]time.Time
	pendingSub   map[uint16][]Subscription
	pendingUnsub map[uint16][]string
	outboundMax  uint32
	authState    any

	// Server capabilities advertised in CONNACK. All default to
	// available until the server says otherwise.
	wildcardSubAvail bool
	sharedSubAvail   bool
	subIDAvail       bool
	retainAvail      bool
}

// Dial connects to the configured server and starts the client.
func Dial(opts ...Option) (*Client, error) {
	return DialContext(context.Background(), opts...)
}

// DialContext connects with a context that bounds the lifetime of the whole
// client: when ctx is canceled the client shuts down.
func DialContext(ctx context.Context, opts ...Option) (*Client, error) {
	options := applyOptions(opts...)

	if len(options.servers) == 0 && options.serverResolver == nil {
		return nil, errors.New("no servers configured")
	}

	clientCtx, cancel := context.WithCancel(ctx)

	c := &Client{
		options:      options,
		logger:       options.logger,
		stats:        NewClientMetrics(options.metrics),
		requests:     make(chan *request, options.requestQueueSize),
		messages:     make(chan *Message, options.requestQueueSize),
		done:         make(chan struct{}),
		parentCtx:    clientCtx,
		cancel:       cancel,
		clientID:     options.clientID,
		version:      options.protocolVersion,
		sess:         newSession(options.receiveMaximum),
		aliases:      newTopicAliases(options.topicAliasMaximum),
		ka:           newKeepAliveTracker(options.keepAlive),
		sentAt:       make(map[uint16]time.Time),
		pendingSub:   make(map[uint16][]Subscription),
		pendingUnsub: make(map[uint16][]string),
	}

	if options.rateLimit != rate.Inf {
		burst := options.rateBurst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(options.rateLimit, burst)
	}

	connectCtx, connectCancel := context.WithTimeout(clientCtx, options.connectTimeout)
	err := c.connect(connectCtx)
	connectCancel()
	if err != nil {
		cancel()
		return nil, err
	}

	go c.run()
	return c, nil
}

// Publish sends a message. For QoS 0 it returns once the packet is written;
// for QoS 1 and 2 it returns once the publish is written and tracked, not
// once it is acknowledged. ErrQuotaExceeded is returned when the server's
// Receive Maximum worth of publishes is already in flight.
func (c *Client) Publish(ctx context.Context, msg *Message) error {
	return c.enqueue(ctx, &request{kind: reqPublish, msg: msg})
}

// Subscribe subscribes to a single topic filter at the given QoS.
func (c *Client) Subscribe(ctx context.Context, filter string, qos byte) error {
	return c.SubscribeWith(ctx, Subscription{TopicFilter: filter, QoS: qos})
}

// SubscribeMultiple subscribes to several filters in one SUBSCRIBE packet.
func (c *Client) SubscribeMultiple(ctx context.Context, filters map[string]byte) error {
	if len(filters) == 0 {
		return errors.New("no topic filters provided")
	}
	subs := make([]Subscription, 0, len(filters))
	for f, qos := range filters {
		subs = append(subs, Subscription{TopicFilter: f, QoS: qos})
	}
	return c.SubscribeWith(ctx, subs...)
}

// SubscribeWith subscribes with full per-subscription options.
func (c *Client) SubscribeWith(ctx context.Context, subs ...Subscription) error {
	if len(subs) == 0 {
		return errors.New("no subscriptions provided")
	}
	return c.enqueue(ctx, &request{kind: reqSubscribe, subs: subs})
}

// Unsubscribe removes one or more topic filters.
func (c *Client) Unsubscribe(ctx context.Context, filters ...string) error {
	if len(filters) == 0 {
		return errors.New("no topic filters provided")
	}
	return c.enqueue(ctx, &request{kind: reqUnsubscribe, filters: filters})
}

// Ack acknowledges a message delivered while manual acknowledgments are
// enabled. Acknowledging a message twice, or one the client is not waiting
// on, returns an UnknownPacketIDError.
//
// Ack must not be called synchronously from the goroutine draining
// Messages while that goroutine ignores the channel: the acknowledgment is
// processed by the same loop that delivers messages.
func (c *Client) Ack(ctx context.Context, msg *Message) error {
	if !c.options.manualAcks {
		return errors.New("manual acknowledgments are not enabled")
	}
	if msg.QoS == QoS0 {
		return nil
	}
	return c.enqueue(ctx, &request{kind: reqAck, msg: msg})
}

// Disconnect performs a graceful disconnect with a normal reason code and
// stops the client.
func (c *Client) Disconnect(ctx context.Context) error {
	return c.DisconnectWithCode(ctx, ReasonSuccess)
}

// DisconnectWithCode disconnects with a specific reason code.
func (c *Client) DisconnectWithCode(ctx context.Context, code ReasonCode) error {
	if c.closed.Swap(true) {
		return nil
	}

	err := c.enqueue(ctx, &request{kind: reqDisconnect, reason: code})
	c.cancel()

	select {
	case <-c.done:
	case <-time.After(time.Second):
	}
	return err
}

// Close stops the client immediately. The connection is torn down without
// waiting for in-flight requests; prefer Disconnect for a clean shutdown.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		<-c.done
		return nil
	}

	c.cancel()

	select {
	case <-c.done:
	case <-time.After(time.Second):
	}
	return nil
}

// Messages returns the channel of inbound publishes. The channel is
// closed never; use Done to observe client shutdown.
func (c *Client) Messages() <-chan *Message {
	return c.messages
}

// Done is closed when the event loop has exited and no further delivery
// or reconnection will happen.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// State returns the current connection state.
func (c *Client) State() ConnState {
	return ConnState(c.state.Load())
}

// IsConnected reports whether the session is currently live.
func (c *Client) IsConnected() bool {
	return c.State() == StateConnected
}

// ClientID returns the effective client identifier, including one assigned
// by the server.
func (c *Client) ClientID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.clientID
}

func (c *Client) setState(s ConnState) {
	c.state.Store(int32(s))
}

func (c *Client) setClientID(id string) {
	c.mu.Lock()
	c.clientID = id
	c.mu.Unlock()
}

// enqueue hands a request to the event loop and waits for the outcome.
func (c *Client) enqueue(ctx context.Context, req *request) error {
	req.reply = make(chan error, 1)

	select {
	case c.requests <- req:
	case <-c.done:
		return ErrRequestQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-req.reply:
		return err
	case <-c.done:
		return ErrRequestQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// nextServer picks the next server address, preferring the resolver when
// one is configured and rotating round-robin across attempts.
func (c *Client) nextServer(ctx context.Context) (string, error) {
	var servers []string

	if c.options.serverResolver != nil {
		resolved, err := c.options.serverResolver(ctx)
		if err == nil && len(resolved) > 0 {
			servers = resolved
		}
		// A failing resolver falls back to the static list
	}

	if len(servers) == 0 {
		servers = c.options.servers
	}
	if len(servers) == 0 {
		return "", errors.New("no servers available")
	}

	index := atomic.AddUint32(&c.serverIndex, 1) - 1
	return servers[index%uint32(len(servers))], nil
}

// dial creates the network connection for the given server URI. The scheme
// selects the transport: tcp/mqtt, ssl/tls/mqtts, ws/wss, unix, quic.
func (c *Client) dial(ctx context.Context, addr string) (net.Conn, error) {
	u, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid address: %w", err)
	}

	host := u.Host
	if u.Port() == "" {
		switch u.Scheme {
		case "tcp", "mqtt":
			host = net.JoinHostPort(u.Hostname(), "1883")
		case "ssl", "tls", "mqtts":
			host = net.JoinHostPort(u.Hostname(), "8883")
		case "ws":
			host = net.JoinHostPort(u.Hostname(), "80")
		case "wss":
			host = net.JoinHostPort(u.Hostname(), "443")
		case "quic":
			host = net.JoinHostPort(u.Hostname(), "8883")
		}
	}

	proxyDialer, err := c.resolveProxy(addr)
	if err != nil {
		return nil, fmt.Errorf("proxy configuration error: %w", err)
	}

	var conn net.Conn
	dialer := &net.Dialer{}

	switch u.Scheme {
	case "tcp", "mqtt":
		if proxyDialer != nil {
			conn, err = proxyDialer.DialContext(ctx, "tcp", host)
		} else {
			conn, err = dialer.DialContext(ctx, "tcp", host)
		}

	case "ssl", "tls", "mqtts":
		tlsConfig := c.options.tlsConfig
		if tlsConfig == nil {
			tlsConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		if proxyDialer != nil {
			// Dial through the proxy, then wrap with TLS
			conn, err = proxyDialer.DialContext(ctx, "tcp", host)
			if err == nil && conn != nil {
				tlsConn := tls.Client(conn, tlsConfig)
				if err = tlsConn.HandshakeContext(ctx); err != nil {
					conn.Close()
					return nil, fmt.Errorf("TLS handshake failed: %w", err)
				}
				conn = tlsConn
			}
		} else {
			tlsDialer := &tls.Dialer{NetDialer: dialer, Config: tlsConfig}
			conn, err = tlsDialer.DialContext(ctx, "tcp", host)
		}

	case "ws", "wss":
		wsDialer := NewWSDialer()
		if c.options.tlsConfig != nil && wsDialer.Dialer != nil {
			wsDialer.Dialer.TLSClientConfig = c.options.tlsConfig
		}
		if proxyDialer != nil || c.options.proxyFromEnv {
			wsDialer.SetProxyFromEnvironment()
		}
		var wsConn Conn
		wsConn, err = wsDialer.Dial(ctx, addr)
		if wsConn != nil {
			conn = wsConn.(net.Conn)
		}

	case "unix":
		// unix:///path/to/socket; proxies do not apply here
		socketPath := u.Path
		if socketPath == "" {
			socketPath = u.Host + u.Path
		}
		unixDialer := NewUnixDialer()
		var unixConn Conn
		unixConn, err = unixDialer.Dial(ctx, socketPath)
		if unixConn != nil {
			conn = unixConn.(net.Conn)
		}

	case "quic":
		// QUIC over a proxy is not supported
		quicDialer := NewQUICDialer(c.options.tlsConfig)
		var quicConn Conn
		quicConn, err = quicDialer.Dial(ctx, host)
		if quicConn != nil {
			conn = quicConn.(net.Conn)
		}

	default:
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}

	if err != nil {
		return nil, fmt.Errorf("dial failed: %w", err)
	}
	return conn, nil
}

// resolveProxy returns a ProxyDialer based on the client configuration, or
// nil when no proxy should be used.
func (c *Client) resolveProxy(targetAddr string) (*ProxyDialer, error) {
	if c.options.proxy != nil {
		return NewProxyDialer(
			c.options.proxy.URL,
			c.options.proxy.Username,
			c.options.proxy.Password,
		)
	}

	if c.options.proxyFromEnv {
		proxyURL, err := ProxyFromEnvironment(targetAddr)
		if err != nil {
			return nil, err
		}
		if proxyURL != nil {
			return NewProxyDialer(proxyURL.String(), "", "")
		}
	}

	return nil, nil
}
