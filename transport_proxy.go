package mqttc

import (
	"bufio"
	"context"
	"encoding/base64"
	"fmt"
	"net"
	"net/http"
	"net/url"

	"golang.org/x/net/http/httpproxy"
	"golang.org/x/net/proxy"
)

// ProxyConfig names the proxy a client should tunnel through.
type ProxyConfig struct {
	// URL of the proxy: http://host:port, https://host:port or
	// socks5://host:port.
	URL string

	// Username and Password authenticate against the proxy. Credentials
	// embedded in the URL are used when these are empty.
	Username string
	Password string
}

// ProxyDialer tunnels connections through an HTTP CONNECT or SOCKS5 proxy.
type ProxyDialer struct {
	proxyURL *url.URL
	username string
	password string
	forward  net.Dialer
}

// NewProxyDialer parses the proxy URL and builds a dialer for it.
// Supported schemes: http, https (both CONNECT) and socks5.
func NewProxyDialer(proxyURL, username, password string) (*ProxyDialer, error) {
	u, err := url.Parse(proxyURL)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy URL: %w", err)
	}

	if username == "" && u.User != nil {
		username = u.User.Username()
		password, _ = u.User.Password()
	}

	return &ProxyDialer{
		proxyURL: u,
		username: username,
		password: password,
	}, nil
}

// proxyAddress returns the proxy host:port, filling in the scheme's
// customary port when the URL names none.
func (d *ProxyDialer) proxyAddress() string {
	if d.proxyURL.Port() != "" {
		return d.proxyURL.Host
	}

	port := "8080"
	switch d.proxyURL.Scheme {
	case "https":
		port = "443"
	case "socks5", "socks5h":
		port = "1080"
	}
	return net.JoinHostPort(d.proxyURL.Hostname(), port)
}

// DialContext connects to the target address through the proxy.
func (d *ProxyDialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	switch d.proxyURL.Scheme {
	case "http", "https":
		return d.dialHTTPConnect(ctx, addr)
	case "socks5", "socks5h":
		return d.dialSOCKS5(ctx, network, addr)
	default:
		return nil, fmt.Errorf("unsupported proxy scheme: %s", d.proxyURL.Scheme)
	}
}

func (d *ProxyDialer) dialHTTPConnect(ctx context.Context, targetAddr string) (net.Conn, error) {
	conn, err := d.forward.DialContext(ctx, "tcp", d.proxyAddress())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to proxy: %w", err)
	}

	req := &http.Request{
		Method: http.MethodConnect,
		URL:    &url.URL{Opaque: targetAddr},
		Host:   targetAddr,
		Header: make(http.Header),
	}
	if d.username != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(d.username + ":" + d.password))
		req.Header.Set("Proxy-Authorization", "Basic "+credentials)
	}

	if err := req.Write(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to send CONNECT request: %w", err)
	}

	resp, err := http.ReadResponse(bufio.NewReader(conn), req)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to read CONNECT response: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		conn.Close()
		return nil, fmt.Errorf("proxy CONNECT failed: %s", resp.Status)
	}

	return conn, nil
}

func (d *ProxyDialer) dialSOCKS5(ctx context.Context, network, targetAddr string) (net.Conn, error) {
	var auth *proxy.Auth
	if d.username != "" {
		auth = &proxy.Auth{User: d.username, Password: d.password}
	}

	dialer, err := proxy.SOCKS5("tcp", d.proxyAddress(), auth, &d.forward)
	if err != nil {
		return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
	}

	// proxy.Dialer has no DialContext, so run the dial in a goroutine and
	// race it against the context.
	type dialResult struct {
		conn net.Conn
		err  error
	}
	results := make(chan dialResult, 1)
	go func() {
		conn, err := dialer.Dial(network, targetAddr)
		results <- dialResult{conn, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case result := <-results:
		if result.err != nil {
			return nil, fmt.Errorf("SOCKS5 dial failed: %w", result.err)
		}
		return result.conn, nil
	}
}

// ProxyFromEnvironment returns the proxy URL for the given broker address
// based on the HTTP_PROXY, HTTPS_PROXY and NO_PROXY environment variables.
// TLS-wrapped schemes (ssl, tls, mqtts, wss, quic) consult HTTPS_PROXY and
// fall back to HTTP_PROXY; everything else uses HTTP_PROXY. Returns nil
// when no proxy applies.
func ProxyFromEnvironment(targetAddr string) (*url.URL, error) {
	u, err := url.Parse(targetAddr)
	if err != nil {
		return nil, nil
	}

	proxyFor := httpproxy.FromEnvironment().ProxyFunc()

	target := &url.URL{Scheme: "http", Host: u.Host}
	switch u.Scheme {
	case "https", "tls", "ssl", "mqtts", "wss", "quic":
		target.Scheme = "https"
	}

	proxyURL, err := proxyFor(target)
	if err != nil || proxyURL != nil {
		return proxyURL, err
	}

	if target.Scheme == "https" {
		target.Scheme = "http"
		return proxyFor(target)
	}

	return nil, nil
}
