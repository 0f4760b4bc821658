// Package revocation keeps the set of live refresh token ids.
//
// A refresh token can be rotated only while its entry exists and is unexpired.
// Deleting the entry is what makes logout effective before natural expiry.
package revocation

import (
	"sync"
	"time"

	"github.com/nkiryanov/authcore/internal/clock"
)

type entry struct {
	subject   string
	expiresAt time.Time
}

type Registry struct {
	clock clock.Clock

	mu      sync.Mutex
	entries map[string]entry
}

func New(clk clock.Clock) *Registry {
	if clk == nil {
		clk = clock.Real{}
	}

	return &Registry{
		clock:   clk,
		entries: make(map[string]entry),
	}
}

// Register refresh token id owned by subject
// Idempotent: registering the same id again keeps the first entry
func (r *Registry) Register(tokenID string, subject string, expiresAt time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[tokenID]; ok {
		return
	}
	r.entries[tokenID] = entry{subject: subject, expiresAt: expiresAt}
}

// IsLive reports whether the id is registered and not expired
// Expired entries are dropped on the way
func (r *Registry) IsLive(tokenID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[tokenID]
	if !ok {
		return false
	}
	if !r.clock.Now().Before(e.expiresAt) {
		delete(r.entries, tokenID)
		return false
	}
	return true
}

// Revoke deletes the entry and reports whether it existed
func (r *Registry) Revoke(tokenID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.entries[tokenID]
	delete(r.entries, tokenID)
	return ok
}

// Consume deletes the entry only if it is live: check and delete under one lock
// Of two concurrent callers with the same id at most one gets true
func (r *Registry) Consume(tokenID string) (subject string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[tokenID]
	if !ok {
		return "", false
	}
	delete(r.entries, tokenID)

	if !r.clock.Now().Before(e.expiresAt) {
		return "", false
	}
	return e.subject, true
}

// RevokeAllForSubject deletes every entry owned by subject and returns how many were deleted
func (r *Registry) RevokeAllForSubject(subject string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for id, e := range r.entries {
		if e.subject == subject {
			delete(r.entries, id)
			count++
		}
	}
	return count
}

// Sweep deletes every entry expired at now
func (r *Registry) Sweep(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for id, e := range r.entries {
		if !now.Before(e.expiresAt) {
			delete(r.entries, id)
			count++
		}
	}
	return count
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
