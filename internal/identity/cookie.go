// Package identity implements the HMAC-signed session cookie used to
// carry a client's identity across reconnects. The wire format is
// base64url(payload) + "." + base64url(mac), distinct from a JWS token:
// the payload itself is shaped like a jwt.RegisteredClaims so the
// project's jwt dependency describes the session, but the signing and
// encoding are done by hand to match the two-segment format.
package identity

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// KeySize is the length in bytes of the signing key, per spec: 64
// secure-random bytes when none is supplied.
const KeySize = 64

// ErrInvalid is returned for every failure mode of Verify: malformed
// token, invalid base64, or MAC mismatch. Callers cannot and should not
// distinguish between these.
var ErrInvalid = errors.New("identity: no valid identity")

// Codec signs and verifies session cookies under a single server-wide
// key. The key is immutable after construction.
type Codec struct {
	key []byte
}

// NewCodec builds a Codec around an existing key (e.g. loaded from a
// keyfile). The key must be exactly KeySize bytes.
func NewCodec(key []byte) (*Codec, error) {
	if len(key) != KeySize {
		return nil, errors.New("identity: key must be 64 bytes")
	}
	cp := make([]byte, KeySize)
	copy(cp, key)
	return &Codec{key: cp}, nil
}

// GenerateKey returns KeySize secure-random bytes suitable for NewCodec.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}

// Claims is the payload shape signed into the cookie: a session
// identifier plus standard registered-claim timestamps.
type Claims struct {
	jwt.RegisteredClaims
	SessionID string `json:"sid"`
}

// Sign produces the two-segment signed token for sessionID.
func (c *Codec) Sign(sessionID string) (string, error) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
		SessionID: sessionID,
	}
	payload, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}

	mac := hmac.New(sha256.New, c.key)
	mac.Write(payload)
	sum := mac.Sum(nil)

	encPayload := base64.RawURLEncoding.EncodeToString(payload)
	encMAC := base64.RawURLEncoding.EncodeToString(sum)
	return encPayload + "." + encMAC, nil
}

// Verify checks a token produced by Sign and recovers its Claims. Every
// failure mode collapses to ErrInvalid.
func (c *Codec) Verify(token string) (*Claims, error) {
	parts := strings.SplitN(token, ".", 2)
	if len(parts) != 2 {
		return nil, ErrInvalid
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, ErrInvalid
	}
	mac, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, ErrInvalid
	}

	expected := hmac.New(sha256.New, c.key)
	expected.Write(payload)
	if !hmac.Equal(mac, expected.Sum(nil)) {
		return nil, ErrInvalid
	}

	var claims Claims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, ErrInvalid
	}
	return &claims, nil
}
