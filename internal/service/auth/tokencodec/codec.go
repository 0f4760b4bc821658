// Package tokencodec encodes claims into signed expiring JWT strings and back.
//
// Only HMAC-SHA256 is accepted. Verification failures are reported as
// *VerificationError, which tells an expired token apart from a malformed or
// forged one. Callers reject all of them alike; the reason is for telemetry.
package tokencodec

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/nkiryanov/authcore/internal/clock"
)

const (
	MinSecretLen = 32

	defaultIssuer   = "authcore"
	defaultAudience = "authcore-api"
)

type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

func (k Kind) Valid() bool {
	return k == KindAccess || k == KindRefresh
}

// Claims carried by every token
type Claims struct {
	Subject     string
	SecondaryID string
	Kind        Kind

	// Unique token identifier (jti)
	ID string

	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Wire representation of Claims
type jwtClaims struct {
	jwt.RegisteredClaims
	SecondaryID string `json:"sid,omitempty"`
	Kind        Kind   `json:"knd"`
}

type Config struct {
	// Shared secret used to sign tokens
	// Required, at least MinSecretLen bytes
	Secret []byte

	// Envelope fields. Defaults are used if empty
	Issuer   string
	Audience string

	// Source of randomness for token ids. crypto/rand if nil
	Rand io.Reader
}

type Codec struct {
	secret   []byte
	issuer   string
	audience string
	method   jwt.SigningMethod
	rand     io.Reader
	clock    clock.Clock
}

func New(cfg Config, clk clock.Clock) (*Codec, error) {
	if len(cfg.Secret) < MinSecretLen {
		return nil, fmt.Errorf("secret key must be at least %d bytes, got %d", MinSecretLen, len(cfg.Secret))
	}
	if cfg.Issuer == "" {
		cfg.Issuer = defaultIssuer
	}
	if cfg.Audience == "" {
		cfg.Audience = defaultAudience
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.Reader
	}
	if clk == nil {
		clk = clock.Real{}
	}

	secret := make([]byte, len(cfg.Secret))
	copy(secret, cfg.Secret)

	return &Codec{
		secret:   secret,
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		method:   jwt.SigningMethodHS256,
		rand:     cfg.Rand,
		clock:    clk,
	}, nil
}

// Issue signs claims valid for ttl from now
// Returns the token and the claims exactly as encoded (with id, issued and expiry times filled)
func (c *Codec) Issue(claims Claims, ttl time.Duration) (string, Claims, error) {
	if ttl < time.Second {
		return "", claims, fmt.Errorf("token ttl must be at least one second, got %s", ttl)
	}
	if !claims.Kind.Valid() {
		return "", claims, fmt.Errorf("unknown token kind %q", claims.Kind)
	}
	if claims.Subject == "" {
		return "", claims, errors.New("token subject must not be empty")
	}

	if claims.ID == "" {
		id, err := uuid.NewRandomFromReader(c.rand)
		if err != nil {
			return "", claims, fmt.Errorf("error while generating token id. Err: %w", err)
		}
		claims.ID = id.String()
	}

	now := c.clock.Now().Truncate(time.Second)
	claims.IssuedAt = now
	claims.ExpiresAt = now.Add(ttl)

	token := jwt.NewWithClaims(c.method, jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   claims.Subject,
			Audience:  jwt.ClaimStrings{c.audience},
			ID:        claims.ID,
			IssuedAt:  jwt.NewNumericDate(claims.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(claims.ExpiresAt),
		},
		SecondaryID: claims.SecondaryID,
		Kind:        claims.Kind,
	})

	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", claims, fmt.Errorf("error while signing token. Err: %w", err)
	}

	return signed, claims, nil
}

// Verify checks signature, issuer, audience and expiry
// Any failure is *VerificationError
func (c *Codec) Verify(token string) (Claims, error) {
	wire := &jwtClaims{}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{c.method.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithAudience(c.audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(c.clock.Now),
	)

	_, err := parser.ParseWithClaims(token, wire, func(t *jwt.Token) (any, error) {
		return c.secret, nil
	})
	if err != nil {
		return Claims{}, classify(err)
	}

	claims, err := fromWire(wire)
	if err != nil {
		return Claims{}, &VerificationError{Reason: ReasonMalformed, Err: err}
	}

	return claims, nil
}

// DecodeUnsafe extracts claims WITHOUT checking the signature
// Result is advisory only (e.g. "refresh soon?") and must never be trusted for access decisions
func (c *Codec) DecodeUnsafe(token string) (Claims, error) {
	wire := &jwtClaims{}

	_, _, err := jwt.NewParser().ParseUnverified(token, wire)
	if err != nil {
		return Claims{}, &VerificationError{Reason: ReasonMalformed, Err: err}
	}

	claims, err := fromWire(wire)
	if err != nil {
		return Claims{}, &VerificationError{Reason: ReasonMalformed, Err: err}
	}

	return claims, nil
}

// Issue with a one-off codec using default envelope and the real clock
func Issue(claims Claims, secret []byte, ttl time.Duration) (string, error) {
	c, err := New(Config{Secret: secret}, clock.Real{})
	if err != nil {
		return "", err
	}

	token, _, err := c.Issue(claims, ttl)
	return token, err
}

// Verify with a one-off codec using default envelope and the real clock
func Verify(token string, secret []byte) (Claims, error) {
	c, err := New(Config{Secret: secret}, clock.Real{})
	if err != nil {
		return Claims{}, err
	}

	return c.Verify(token)
}

func fromWire(wire *jwtClaims) (Claims, error) {
	switch {
	case !wire.Kind.Valid():
		return Claims{}, fmt.Errorf("unknown token kind %q", wire.Kind)
	case wire.Subject == "":
		return Claims{}, errors.New("token has no subject")
	case wire.ID == "":
		return Claims{}, errors.New("token has no id")
	case wire.IssuedAt == nil || wire.ExpiresAt == nil:
		return Claims{}, errors.New("token has no issued or expiry time")
	case !wire.ExpiresAt.After(wire.IssuedAt.Time):
		return Claims{}, errors.New("token expires before it is issued")
	}

	return Claims{
		Subject:     wire.Subject,
		SecondaryID: wire.SecondaryID,
		Kind:        wire.Kind,
		ID:          wire.ID,
		IssuedAt:    wire.IssuedAt.Time,
		ExpiresAt:   wire.ExpiresAt.Time,
	}, nil
}
