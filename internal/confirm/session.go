package confirm

import (
	"crypto/subtle"
	"time"
)

// State of a confirmation session
type State string

const (
	Awaiting State = "AWAITING_CONFIRMATION"
	Approved State = "APPROVED"
	Rejected State = "REJECTED"
	TimedOut State = "TIMED_OUT"
)

// Terminal reports whether no further transition is possible
func (s State) Terminal() bool { return s != Awaiting }

// Response is one answer to a confirmation prompt
type Response int

const (
	Unrecognized Response = iota
	Affirm
	Deny
	Override
)

func (r Response) String() string {
	switch r {
	case Affirm:
		return "affirm"
	case Deny:
		return "deny"
	case Override:
		return "override"
	default:
		return "unrecognized"
	}
}

// Session holds one confirmation exchange. It lives only for the duration
// of a single Verify call.
type Session struct {
	Required int
	Received int
	Deadline time.Time
	State    State

	secret string
}

func NewSession(required int, deadline time.Time, secret string) *Session {
	if required < 1 {
		required = 1
	}
	return &Session{Required: required, Deadline: deadline, State: Awaiting, secret: secret}
}

// Expire moves the session to TimedOut if now is past the deadline
func (s *Session) Expire(now time.Time) State {
	if !s.State.Terminal() && now.After(s.Deadline) {
		s.State = TimedOut
	}
	return s.State
}

// Affirm counts one confirmation
func (s *Session) Affirm() State {
	if s.State.Terminal() {
		return s.State
	}
	s.Received++
	if s.Received >= s.Required {
		s.State = Approved
	}
	return s.State
}

// Deny rejects immediately
func (s *Session) Deny() State {
	if !s.State.Terminal() {
		s.State = Rejected
	}
	return s.State
}

// Override approves when attempt matches the configured secret. A wrong
// attempt, or no configured secret, leaves the state unchanged.
func (s *Session) Override(attempt string) State {
	if s.State.Terminal() || s.secret == "" {
		return s.State
	}
	if subtle.ConstantTimeCompare([]byte(attempt), []byte(s.secret)) == 1 {
		s.State = Approved
	}
	return s.State
}
