// Package csrf issues anti-forgery tokens bound to a subject.
// Tokens may be verified many times until they expire.
package csrf

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/nkiryanov/authcore/internal/clock"
)

const (
	defaultValidity = 24 * time.Hour
	tokenBytes      = 32
)

type Config struct {
	// How long an issued token stays valid
	// If not set than default is used
	Validity time.Duration

	// Source of random bytes, crypto/rand if nil
	Rand io.Reader
}

type entry struct {
	subject   string
	expiresAt time.Time
}

type Guard struct {
	validity time.Duration
	rand     io.Reader
	clock    clock.Clock

	mu      sync.Mutex
	entries map[string]entry
}

func New(cfg Config, clk clock.Clock) (*Guard, error) {
	if cfg.Validity == 0 {
		cfg.Validity = defaultValidity
	}
	if cfg.Validity < 0 {
		return nil, errors.New("csrf validity must be positive")
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.Reader
	}
	if clk == nil {
		clk = clock.Real{}
	}

	return &Guard{
		validity: cfg.Validity,
		rand:     cfg.Rand,
		clock:    clk,
		entries:  make(map[string]entry),
	}, nil
}

// Issue new token for subject
func (g *Guard) Issue(subject string) (string, error) {
	if subject == "" {
		return "", errors.New("csrf subject is empty")
	}

	b := make([]byte, tokenBytes)
	if _, err := io.ReadFull(g.rand, b); err != nil {
		return "", fmt.Errorf("error while generating csrf token. Err: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(b)

	now := g.clock.Now()

	g.mu.Lock()
	defer g.mu.Unlock()

	g.entries[token] = entry{subject: subject, expiresAt: now.Add(g.validity)}
	return token, nil
}

// Verify reports whether token was issued to subject and is not expired
// Valid token is kept
func (g *Guard) Verify(token string, subject string) bool {
	if token == "" || subject == "" {
		return false
	}

	now := g.clock.Now()

	g.mu.Lock()
	defer g.mu.Unlock()

	e, ok := g.entries[token]
	if !ok {
		return false
	}
	if !now.Before(e.expiresAt) {
		delete(g.entries, token)
		return false
	}

	return subtle.ConstantTimeCompare([]byte(e.subject), []byte(subject)) == 1
}

// Sweep drops expired tokens
func (g *Guard) Sweep(now time.Time) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	count := 0
	for token, e := range g.entries {
		if !now.Before(e.expiresAt) {
			delete(g.entries, token)
			count++
		}
	}
	return count
}

func (g *Guard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.entries)
}
