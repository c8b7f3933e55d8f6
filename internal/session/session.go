// Package session keeps the card numbers that passed verification, keyed by
// an opaque token handed back to the caller.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

const DefaultTTL = 30 * time.Minute

type entry struct {
	cardNumber string
	expiresAt  time.Time
}

// Store is safe for concurrent use. A token can be taken at most once.
type Store struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]entry
}

// New returns a Store whose tokens expire after ttl. A non-positive ttl
// uses DefaultTTL.
func New(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]entry),
	}
}

// Issue records a verified card number and returns its token.
func (s *Store) Issue(cardNumber string) string {
	token := uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[token] = entry{
		cardNumber: cardNumber,
		expiresAt:  s.now().Add(s.ttl),
	}
	return token
}

// Take removes the token and returns the card number it carried. It reports
// false for unknown, already used or expired tokens.
func (s *Store) Take(token string) (string, bool) {
	if token == "" {
		return "", false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[token]
	if !ok {
		return "", false
	}
	delete(s.entries, token)
	if !s.now().Before(e.expiresAt) {
		return "", false
	}
	return e.cardNumber, true
}

// Peek returns the card number of a live token without consuming it.
func (s *Store) Peek(token string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[token]
	if !ok || !s.now().Before(e.expiresAt) {
		return "", false
	}
	return e.cardNumber, true
}

// Sweep drops expired tokens and returns how many were removed.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	n := 0
	for token, e := range s.entries {
		if !now.Before(e.expiresAt) {
			delete(s.entries, token)
			n++
		}
	}
	return n
}

// Len returns the number of stored tokens, expired ones included.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
