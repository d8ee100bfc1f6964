package mqttc

import (
	"context"
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newWSEchoServer upgrades connections and echoes binary messages back.
func newWSEchoServer(t *testing.T) *httptest.Server {
	t.Helper()

	upgrader := websocket.Upgrader{
		Subprotocols: []string{WebSocketSubprotocol},
	}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			messageType, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(messageType, data); err != nil {
				return
			}
		}
	}))
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestWSDialer(t *testing.T) {
	server := newWSEchoServer(t)
	defer server.Close()

	dialer := NewWSDialer()
	conn, err := dialer.Dial(context.Background(), wsURL(server))
	require.NoError(t, err)
	defer conn.Close()

	payload := []byte{0x30, 0x05, 0x00, 0x01, 0x61, 0x00, 0x78}
	_, err = conn.Write(payload)
	require.NoError(t, err)

	buf := make([]byte, len(payload))
	n, err := conn.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, payload[:n], buf[:n])
}

func TestWSConnPartialReads(t *testing.T) {
	server := newWSEchoServer(t)
	defer server.Close()

	dialer := NewWSDialer()
	conn, err := dialer.Dial(context.Background(), wsURL(server))
	require.NoError(t, err)
	defer conn.Close()

	payload := []byte("0123456789")
	_, err = conn.Write(payload)
	require.NoError(t, err)

	// One WebSocket message read through a small buffer must be
	// reassembled across Read calls.
	var got []byte
	buf := make([]byte, 3)
	for len(got) < len(payload) {
		n, err := conn.Read(buf)
		require.NoError(t, err)
		got = append(got, buf[:n]...)
	}
	assert.Equal(t, payload, got)
}

func TestWSDialerRejectsTextFrames(t *testing.T) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteMessage(websocket.TextMessage, []byte("not mqtt"))
		time.Sleep(100 * time.Millisecond)
	}))
	defer server.Close()

	dialer := NewWSDialer()
	conn, err := dialer.Dial(context.Background(), wsURL(server))
	require.NoError(t, err)
	defer conn.Close()

	buf := make([]byte, 16)
	_, err = conn.Read(buf)
	assert.ErrorIs(t, err, ErrProtocolViolation)
}

func TestWSDialerConnectionRefused(t *testing.T) {
	dialer := NewWSDialer()
	_, err := dialer.Dial(context.Background(), "ws://127.0.0.1:1/mqtt")
	assert.Error(t, err)
}

func TestWSDialerDeadlines(t *testing.T) {
	server := newWSEchoServer(t)
	defer server.Close()

	dialer := NewWSDialer()
	conn, err := dialer.Dial(context.Background(), wsURL(server))
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetDeadline(time.Now().Add(50*time.Millisecond)))

	buf := make([]byte, 1)
	_, err = conn.Read(buf)
	assert.Error(t, err, "read past the deadline must fail")
}

func TestNewWSDialerTLSConfig(t *testing.T) {
	_, pool := generateTestCertificate(t)

	dialer := NewWSDialerTLS(&tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12})
	require.NotNil(t, dialer.Dialer)
	assert.NotNil(t, dialer.Dialer.TLSClientConfig)
	assert.Contains(t, dialer.Dialer.Subprotocols, WebSocketSubprotocol)
}
