package mqttc

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1" //nolint:gosec // SHA-1 required for SCRAM-SHA-1 compatibility
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"errors"
	"fmt"
	"hash"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// SCRAMHash represents the hash algorithm used for SCRAM authentication.
type SCRAMHash int

const (
	// SCRAMHashSHA1 uses SHA-1 (for legacy compatibility, not recommended for new deployments).
	SCRAMHashSHA1 SCRAMHash = iota
	// SCRAMHashSHA256 uses SHA-256 (recommended).
	SCRAMHashSHA256
	// SCRAMHashSHA512 uses SHA-512 (highest security).
	SCRAMHashSHA512
)

// String returns the MQTT auth method name for this hash.
func (h SCRAMHash) String() string {
	switch h {
	case SCRAMHashSHA1:
		return "SCRAM-SHA-1"
	case SCRAMHashSHA256:
		return "SCRAM-SHA-256"
	case SCRAMHashSHA512:
		return "SCRAM-SHA-512"
	default:
		return "SCRAM-SHA-256"
	}
}

// hashFunc returns the hash.Hash constructor for this algorithm.
func (h SCRAMHash) hashFunc() func() hash.Hash {
	switch h {
	case SCRAMHashSHA1:
		return sha1.New
	case SCRAMHashSHA256:
		return sha256.New
	case SCRAMHashSHA512:
		return sha512.New
	default:
		return sha256.New
	}
}

// keySize returns the key size in bytes for this hash.
func (h SCRAMHash) keySize() int {
	switch h {
	case SCRAMHashSHA1:
		return 20
	case SCRAMHashSHA256:
		return 32
	case SCRAMHashSHA512:
		return 64
	default:
		return 32
	}
}

// SCRAM errors.
var (
	// ErrSCRAMInvalidServerFirst is returned when the server challenge
	// cannot be parsed or violates the protocol.
	ErrSCRAMInvalidServerFirst = errors.New("invalid SCRAM server-first-message")

	// ErrSCRAMInvalidServerSignature is returned when the server's final
	// signature does not verify, meaning the server does not know the
	// password derivative it claims to.
	ErrSCRAMInvalidServerSignature = errors.New("invalid SCRAM server signature")
)

// scramClientState holds exchange state between AuthStart and AuthContinue.
type scramClientState struct {
	clientNonce     string
	clientFirstBare string
	authMessage     string
	saltedPassword  []byte
	awaitingFinal   bool
}

// SCRAMClientAuthenticator implements the client half of the SCRAM exchange
// over MQTT 5.0 AUTH packets. It sends the client-first-message with
// CONNECT, answers the server challenge with a proof, and verifies the
// server signature for mutual authentication.
type SCRAMClientAuthenticator struct {
	username string
	password string
	hashType SCRAMHash
}

// NewSCRAMClientAuthenticator creates a client authenticator for the given
// credentials and hash algorithm.
func NewSCRAMClientAuthenticator(username, password string, hashType SCRAMHash) *SCRAMClientAuthenticator {
	return &SCRAMClientAuthenticator{
		username: username,
		password: password,
		hashType: hashType,
	}
}

// AuthMethod returns the authentication method name.
func (a *SCRAMClientAuthenticator) AuthMethod() string {
	return a.hashType.String()
}

// AuthStart produces the client-first-message carried in CONNECT.
func (a *SCRAMClientAuthenticator) AuthStart(_ context.Context) (*EnhancedAuthResult, error) {
	nonce := generateScramNonce()
	bare := fmt.Sprintf("n=%s,r=%s", a.username, nonce)

	state := &scramClientState{
		clientNonce:     nonce,
		clientFirstBare: bare,
	}

	return &EnhancedAuthResult{
		AuthData: []byte("n,," + bare),
		State:    state,
	}, nil
}

// AuthContinue answers the server's challenge. The first continuation
// carries the server-first-message and produces the client proof; the
// second carries the server-final-message, whose signature is verified
// before the exchange is reported done.
func (a *SCRAMClientAuthenticator) AuthContinue(_ context.Context, authCtx *EnhancedAuthContext) (*EnhancedAuthResult, error) {
	state, ok := authCtx.State.(*scramClientState)
	if !ok || state == nil {
		return nil, ErrSCRAMInvalidServerFirst
	}

	data := string(authCtx.AuthData)

	if state.awaitingFinal || strings.HasPrefix(data, "v=") {
		if err := a.verifyServerFinal(state, data); err != nil {
			return nil, err
		}
		return &EnhancedAuthResult{Done: true, State: state}, nil
	}

	return a.answerServerFirst(state, data)
}

// answerServerFirst parses r=<nonce>,s=<salt>,i=<iterations> and builds the
// client-final-message with the proof.
func (a *SCRAMClientAuthenticator) answerServerFirst(state *scramClientState, serverFirst string) (*EnhancedAuthResult, error) {
	serverNonce, saltB64, iterStr := parseScramServerFirst(serverFirst)
	if serverNonce == "" || saltB64 == "" || iterStr == "" {
		return nil, ErrSCRAMInvalidServerFirst
	}

	// The server nonce must extend the client nonce
	if !strings.HasPrefix(serverNonce, state.clientNonce) {
		return nil, ErrSCRAMInvalidServerFirst
	}

	salt, err := base64.StdEncoding.DecodeString(saltB64)
	if err != nil {
		return nil, ErrSCRAMInvalidServerFirst
	}

	iterations, err := strconv.Atoi(iterStr)
	if err != nil || iterations < 1 {
		return nil, ErrSCRAMInvalidServerFirst
	}

	hashFunc := a.hashType.hashFunc()

	// SaltedPassword = PBKDF2(password, salt, iterations, keySize, Hash)
	state.saltedPassword = pbkdf2.Key([]byte(a.password), salt, iterations, a.hashType.keySize(), hashFunc)

	// ClientKey = HMAC(SaltedPassword, "Client Key")
	clientKeyHMAC := hmac.New(hashFunc, state.saltedPassword)
	clientKeyHMAC.Write([]byte("Client Key"))
	clientKey := clientKeyHMAC.Sum(nil)

	// StoredKey = H(ClientKey)
	h := hashFunc()
	h.Write(clientKey)
	storedKey := h.Sum(nil)

	clientFinalWithoutProof := "c=biws,r=" + serverNonce
	state.authMessage = fmt.Sprintf("%s,%s,%s", state.clientFirstBare, serverFirst, clientFinalWithoutProof)

	// ClientSignature = HMAC(StoredKey, AuthMessage)
	clientSigHMAC := hmac.New(hashFunc, storedKey)
	clientSigHMAC.Write([]byte(state.authMessage))
	clientSignature := clientSigHMAC.Sum(nil)

	// ClientProof = ClientKey XOR ClientSignature
	proof := make([]byte, len(clientKey))
	for i := range clientKey {
		proof[i] = clientKey[i] ^ clientSignature[i]
	}

	state.awaitingFinal = true

	clientFinal := clientFinalWithoutProof + ",p=" + base64.StdEncoding.EncodeToString(proof)
	return &EnhancedAuthResult{
		AuthData: []byte(clientFinal),
		State:    state,
	}, nil
}

// verifyServerFinal checks v=<signature> against the expected server
// signature, proving the server also holds the password derivative.
func (a *SCRAMClientAuthenticator) verifyServerFinal(state *scramClientState, serverFinal string) error {
	if !strings.HasPrefix(serverFinal, "v=") {
		return ErrSCRAMInvalidServerSignature
	}

	got, err := base64.StdEncoding.DecodeString(serverFinal[2:])
	if err != nil {
		return ErrSCRAMInvalidServerSignature
	}

	hashFunc := a.hashType.hashFunc()

	// ServerKey = HMAC(SaltedPassword, "Server Key")
	serverKeyHMAC := hmac.New(hashFunc, state.saltedPassword)
	serverKeyHMAC.Write([]byte("Server Key"))
	serverKey := serverKeyHMAC.Sum(nil)

	// ServerSignature = HMAC(ServerKey, AuthMessage)
	serverSigHMAC := hmac.New(hashFunc, serverKey)
	serverSigHMAC.Write([]byte(state.authMessage))
	want := serverSigHMAC.Sum(nil)

	if !hmac.Equal(got, want) {
		return ErrSCRAMInvalidServerSignature
	}
	return nil
}

// SCRAMCredentials contains pre-computed SCRAM credentials. A server
// implementation stores these instead of the password; tests use them to
// play the server half of the exchange.
type SCRAMCredentials struct {
	// Hash is the hash algorithm used for these credentials.
	Hash SCRAMHash

	// Salt is the random salt used for key derivation (should be unique per user).
	Salt []byte

	// Iterations is the PBKDF2 iteration count (minimum 4096 recommended).
	Iterations int

	// StoredKey is H(ClientKey) where ClientKey = HMAC(SaltedPassword, "Client Key").
	StoredKey []byte

	// ServerKey is HMAC(SaltedPassword, "Server Key").
	ServerKey []byte
}

// ComputeSCRAMCredentials computes SCRAM credentials from a plaintext password.
// The salt should be randomly generated and unique per user.
// Iterations should be at least 4096 (higher is more secure but slower).
func ComputeSCRAMCredentials(hashType SCRAMHash, password string, salt []byte, iterations int) *SCRAMCredentials {
	hashFunc := hashType.hashFunc()
	keySize := hashType.keySize()

	// SaltedPassword = PBKDF2(password, salt, iterations, keySize, Hash)
	saltedPassword := pbkdf2.Key([]byte(password), salt, iterations, keySize, hashFunc)

	// ClientKey = HMAC(SaltedPassword, "Client Key")
	clientKeyHMAC := hmac.New(hashFunc, saltedPassword)
	clientKeyHMAC.Write([]byte("Client Key"))
	clientKey := clientKeyHMAC.Sum(nil)

	// StoredKey = H(ClientKey)
	h := hashFunc()
	h.Write(clientKey)
	storedKey := h.Sum(nil)

	// ServerKey = HMAC(SaltedPassword, "Server Key")
	serverKeyHMAC := hmac.New(hashFunc, saltedPassword)
	serverKeyHMAC.Write([]byte("Server Key"))
	serverKey := serverKeyHMAC.Sum(nil)

	return &SCRAMCredentials{
		Hash:       hashType,
		Salt:       salt,
		Iterations: iterations,
		StoredKey:  storedKey,
		ServerKey:  serverKey,
	}
}

// GenerateSalt generates a random salt for SCRAM credential computation.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	return salt, nil
}

// parseScramServerFirst extracts nonce, salt, and iteration count from the
// server-first-message.
func parseScramServerFirst(msg string) (nonce, salt, iterations string) {
	for _, part := range strings.Split(msg, ",") {
		if len(part) < 2 {
			continue
		}
		switch part[:2] {
		case "r=":
			nonce = part[2:]
		case "s=":
			salt = part[2:]
		case "i=":
			iterations = part[2:]
		}
	}
	return
}

// generateScramNonce creates a cryptographically secure random nonce.
func generateScramNonce() string {
	b := make([]byte, 18)
	if _, err := rand.Read(b); err != nil {
		// Fallback to less secure but functional nonce
		return "fallback-nonce"
	}
	return base64.StdEncoding.EncodeToString(b)
}
