// Package ticket issues and redeems the single-use stream tokens handed out
// by ListFlights and GetFlightInfo and consumed by DoGet.
package ticket

import (
	"crypto/rand"
	"encoding/base64"
	"sync"
	"time"

	"flightgate/internal/domain"
)

// DefaultTTL is how long an unredeemed ticket stays valid.
const DefaultTTL = 120 * time.Minute

// tokenBytes sizes the random ticket token before base64 encoding.
const tokenBytes = 24

// Grant is what a redeemed ticket entitles the caller to stream.
type Grant struct {
	// Profile is the provider profile the ticket was minted under.
	Profile string
	// Path is the provider storage path to stream.
	Path string
}

type entry struct {
	grant   Grant
	expires time.Time
}

// Store holds pending tickets in memory. Tickets are single use: redemption
// removes them whether or not they are still valid.
type Store struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	tickets map[string]entry
}

// NewStore builds a store with the given TTL; zero means DefaultTTL.
func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		ttl:     ttl,
		now:     time.Now,
		tickets: make(map[string]entry),
	}
}

// Add mints a ticket for the grant and returns its opaque token.
func (s *Store) Add(grant Grant) string {
	buf := make([]byte, tokenBytes)
	rand.Read(buf)
	token := base64.RawURLEncoding.EncodeToString(buf)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickets[token] = entry{grant: grant, expires: s.now().Add(s.ttl)}
	return token
}

// Use redeems a token. The ticket is removed even when expired, so a token
// never validates twice.
func (s *Store) Use(token string) (Grant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.tickets[token]
	if !ok {
		return Grant{}, domain.ErrTicket("ticket is unknown or already used")
	}
	delete(s.tickets, token)
	// A ticket is valid strictly before issued_at+TTL; the boundary instant
	// is already expired.
	if !s.now().Before(e.expires) {
		return Grant{}, domain.ErrTicket("ticket has expired")
	}
	return e.grant, nil
}

// Sweep drops expired tickets and reports how many were removed.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for token, e := range s.tickets {
		if !now.Before(e.expires) {
			delete(s.tickets, token)
			removed++
		}
	}
	return removed
}

// Len reports how many tickets are outstanding, expired or not.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tickets)
}
