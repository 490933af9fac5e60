// Package session issues and validates the opaque tokens that gate both
// page requests and websocket upgrades.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"strings"
	"sync"
	"time"
)

// CookieName is the credential carrier used by browsers and the Go client.
const CookieName = "parlor_session"

// DefaultTTL matches the cookie max-age handed to clients.
const DefaultTTL = 10 * time.Minute

// sweepInterval bounds how long an expired session can linger in memory
// after its last validation attempt.
const sweepInterval = time.Minute

// Claims is the result of a successful validation.
type Claims struct {
	Token    string
	Username string
}

type entry struct {
	username  string
	createdAt time.Time
	expiresAt time.Time
}

// Store holds live sessions. All methods are safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	sessions map[string]entry
	done     chan struct{}
	once     sync.Once
}

// NewStore creates a session store and starts its background sweep.
// Call Close to stop the sweep goroutine.
func NewStore() *Store {
	s := &Store{
		sessions: make(map[string]entry),
		done:     make(chan struct{}),
	}
	go s.sweep()
	return s
}

// Create issues a fresh token for username, valid for ttl. A non-positive
// ttl falls back to DefaultTTL.
func (s *Store) Create(username string, ttl time.Duration) string {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing means the process has no usable entropy
		// source; issuing a guessable token is worse than crashing.
		panic("session: rand.Read: " + err.Error())
	}
	token := hex.EncodeToString(buf)

	now := time.Now()
	s.mu.Lock()
	s.sessions[token] = entry{
		username:  username,
		createdAt: now,
		expiresAt: now.Add(ttl),
	}
	s.mu.Unlock()

	return token
}

// Validate extracts the session token from a raw Cookie header value and
// looks it up. Malformed or missing input is an invalid session, not an
// error. Expiry is re-checked here on every call.
func (s *Store) Validate(cookieHeader string) (Claims, bool) {
	token, ok := parseCookie(cookieHeader)
	if !ok {
		return Claims{}, false
	}
	username, ok := s.lookup(token)
	if !ok {
		return Claims{}, false
	}
	return Claims{Token: token, Username: username}, true
}

// Invalidate removes the session immediately, independent of expiry.
func (s *Store) Invalidate(token string) {
	s.mu.Lock()
	delete(s.sessions, token)
	s.mu.Unlock()
}

// Username reports the username bound to a live token, or false if the
// token is unknown or expired.
func (s *Store) Username(token string) (string, bool) {
	return s.lookup(token)
}

// Cookie builds the credential cookie for a token, expiring client-side in
// step with the server-side session.
func (s *Store) Cookie(token string, ttl time.Duration) *http.Cookie {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(ttl / time.Second),
		HttpOnly: true,
	}
}

// Close stops the background sweep.
func (s *Store) Close() {
	s.once.Do(func() { close(s.done) })
}

func (s *Store) lookup(token string) (string, bool) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[token]
	if !ok {
		return "", false
	}
	if !now.Before(e.expiresAt) {
		delete(s.sessions, token)
		return "", false
	}
	return e.username, true
}

// sweep evicts expired sessions that were never validated again. Lazy
// expiry in lookup already keeps stale sessions from validating; the sweep
// only bounds memory.
func (s *Store) sweep() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case now := <-ticker.C:
			s.mu.Lock()
			for token, e := range s.sessions {
				if !now.Before(e.expiresAt) {
					delete(s.sessions, token)
				}
			}
			s.mu.Unlock()
		}
	}
}

// parseCookie pulls the session token out of a raw Cookie header. It never
// fails hard on garbage input.
func parseCookie(header string) (string, bool) {
	for _, part := range strings.Split(header, ";") {
		name, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		if name == CookieName && value != "" {
			return value, true
		}
	}
	return "", false
}
