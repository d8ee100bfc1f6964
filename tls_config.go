package mqttc

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
)

// ErrInvalidCACertificate indicates the CA bundle could not be parsed.
var ErrInvalidCACertificate = errors.New("invalid CA certificate")

// NewTLSConfig builds a client TLS configuration from PEM files. caFile is
// the CA bundle used to verify the server; certFile and keyFile carry the
// client certificate for mutual TLS and may both be empty when the server
// does not require one.
func NewTLSConfig(caFile, certFile, keyFile string) (*tls.Config, error) {
	caPEM, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA certificate: %w", err)
	}

	var certPEM, keyPEM []byte
	if certFile != "" {
		certPEM, err = os.ReadFile(certFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read client certificate: %w", err)
		}
		keyPEM, err = os.ReadFile(keyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read client key: %w", err)
		}
	}

	return NewTLSConfigFromPEM(caPEM, certPEM, keyPEM)
}

// NewTLSConfigFromPEM builds a client TLS configuration from in-memory PEM
// blocks. certPEM and keyPEM may be nil when no client certificate is used.
func NewTLSConfigFromPEM(caPEM, certPEM, keyPEM []byte) (*tls.Config, error) {
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caPEM) {
		return nil, ErrInvalidCACertificate
	}

	config := &tls.Config{
		MinVersion: tls.VersionTLS12,
		RootCAs:    pool,
	}

	if len(certPEM) > 0 {
		cert, err := tls.X509KeyPair(certPEM, keyPEM)
		if err != nil {
			return nil, fmt.Errorf("failed to load client key pair: %w", err)
		}
		config.Certificates = []tls.Certificate{cert}
	}

	return config, nil
}
