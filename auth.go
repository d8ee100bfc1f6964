package mqttc

import "context"

// EnhancedAuthContext carries the server's side of an in-progress enhanced
// authentication exchange.
type EnhancedAuthContext struct {
	// AuthMethod is the authentication method being used.
	AuthMethod string

	// AuthData is the authentication data from the AUTH packet.
	AuthData []byte

	// ReasonCode is the reason code from the AUTH packet.
	ReasonCode ReasonCode

	// State holds authenticator-specific state between exchanges.
	State any
}

// EnhancedAuthResult represents the result of one enhanced authentication
// step on the client side.
type EnhancedAuthResult struct {
	// Done indicates authentication is complete (no more exchanges needed).
	Done bool

	// AuthData is authentication data to send to the server.
	AuthData []byte

	// Properties contains additional properties for the AUTH packet.
	Properties Properties

	// State holds authenticator-specific state for the next exchange.
	State any
}

// EnhancedAuthenticator drives the client half of an enhanced
// authentication exchange over AUTH packets (MQTT 5.0 feature).
type EnhancedAuthenticator interface {
	// AuthMethod returns the authentication method name (e.g., "SCRAM-SHA-256").
	AuthMethod() string

	// AuthStart begins the enhanced authentication process.
	// Called when building the CONNECT packet to get initial auth data.
	AuthStart(ctx context.Context) (*EnhancedAuthResult, error)

	// AuthContinue continues the enhanced authentication process.
	// Called when an AUTH packet with ContinueAuthentication is received.
	AuthContinue(ctx context.Context, authCtx *EnhancedAuthContext) (*EnhancedAuthResult, error)
}
