package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrNoToken indicates that no bearer token is loaded.
	ErrNoToken = errors.New("session: no token loaded")
	// ErrMalformedToken indicates the stored token is not a parsable JWT.
	ErrMalformedToken = errors.New("session: malformed token")
)

// Session holds the authenticated caller state passed explicitly to every
// collaborator that talks to the remote API. There is no package-level
// mutable state: construct on login/load, Clear on logout.
type Session struct {
	mu    sync.RWMutex
	token string
}

// New returns an empty, unauthenticated session.
func New() *Session {
	return &Session{}
}

// SetToken installs the bearer token for subsequent requests.
func (s *Session) SetToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = strings.TrimSpace(token)
}

// Token returns the current bearer token, or an empty string when logged out.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Clear drops the token. Called on logout.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
}

// ExpiresAt reports the token expiry claim. The token signature is the
// server's concern; the client only inspects claims to know when to prompt
// for a fresh login.
func (s *Session) ExpiresAt() (time.Time, error) {
	token := s.Token()
	if token == "" {
		return time.Time{}, ErrNoToken
	}

	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	expiry, err := claims.GetExpirationTime()
	if err != nil || expiry == nil {
		return time.Time{}, fmt.Errorf("%w: missing exp claim", ErrMalformedToken)
	}
	return expiry.Time, nil
}

// Authenticated reports whether a token is loaded and not expired at the
// provided instant. Tokens without a parsable expiry count as authenticated;
// the server will reject them if they are stale.
func (s *Session) Authenticated(now time.Time) bool {
	if s.Token() == "" {
		return false
	}
	expiry, err := s.ExpiresAt()
	if err != nil {
		return true
	}
	return now.Before(expiry)
}

// LoadFile reads a persisted token from disk. A missing file leaves the
// session unauthenticated without error.
func (s *Session) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("session: read token file: %w", err)
	}
	s.SetToken(string(data))
	return nil
}

// SaveFile persists the current token to disk with owner-only permissions.
func (s *Session) SaveFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("session: create token dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(s.Token()), 0o600); err != nil {
		return fmt.Errorf("session: write token file: %w", err)
	}
	return nil
}
