package execution

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// SessionState is the broker session lifecycle
type SessionState string

const (
	SessionOpen          SessionState = "open"
	SessionAuthenticated SessionState = "authenticated"
	SessionClosed        SessionState = "closed"
)

// Credentials for the broker login
type Credentials struct {
	Username string
	Password string
	MFACode  string
}

// Authenticator performs the broker login and logout
type Authenticator interface {
	Login(ctx context.Context, creds Credentials) (token string, err error)
	Logout(ctx context.Context, token string) error
}

// Session owns broker authentication state and is injected into gateways
type Session struct {
	mu    sync.RWMutex
	auth  Authenticator
	creds Credentials
	state SessionState
	token string
}

// OpenSession creates a session in the open state
func OpenSession(auth Authenticator, creds Credentials) *Session {
	return &Session{auth: auth, creds: creds, state: SessionOpen}
}

func (s *Session) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Authenticated reports whether orders may be sent
func (s *Session) Authenticated() bool { return s.State() == SessionAuthenticated }

// Authenticate logs in. Calling it on an authenticated session is a no-op.
func (s *Session) Authenticate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case SessionAuthenticated:
		return nil
	case SessionClosed:
		return ErrSessionClosed
	}
	token, err := s.auth.Login(ctx, s.creds)
	if err != nil {
		log.Error().Err(err).Str("user", s.creds.Username).Msg("Broker login failed")
		return fmt.Errorf("broker login: %w", err)
	}
	s.token = token
	s.state = SessionAuthenticated
	return nil
}

// Close logs out if needed; the session cannot be reused
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == SessionClosed {
		return nil
	}
	var err error
	if s.state == SessionAuthenticated {
		err = s.auth.Logout(ctx, s.token)
	}
	s.state = SessionClosed
	s.token = ""
	return err
}

// PaperAuthenticator accepts any login with a username
type PaperAuthenticator struct{}

func (PaperAuthenticator) Login(_ context.Context, creds Credentials) (string, error) {
	if creds.Username == "" {
		return "", fmt.Errorf("username required")
	}
	return "paper-" + creds.Username, nil
}

func (PaperAuthenticator) Logout(context.Context, string) error { return nil }
