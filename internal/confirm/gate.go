package confirm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// Prompter collects answers from an operator. Implementations must return
// promptly once ctx is done.
type Prompter interface {
	Confirm(ctx context.Context, step, total int) (Response, error)
	Secret(ctx context.Context) (string, error)
}

// Presenter is implemented by prompters that can show the trade summary
type Presenter interface {
	Present(summary string)
}

// Clock abstracts wall time for tests
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the real clock
var SystemClock Clock = systemClock{}

// Settings for the gate
type Settings struct {
	RequiredConfirmations int
	Timeout               time.Duration
	OverrideSecret        string
}

// Gate blocks a trade until it is approved, rejected or the deadline passes
type Gate struct {
	settings Settings
	prompter Prompter
	clock    Clock
}

func NewGate(settings Settings, prompter Prompter, clock Clock) *Gate {
	if clock == nil {
		clock = SystemClock
	}
	return &Gate{settings: settings, prompter: prompter, clock: clock}
}

// Verify runs one confirmation exchange. Deadline expiry and cancellation of
// ctx both end in TimedOut; only cancellation also returns ctx's error so the
// caller can stop. A prompter failure rejects the trade.
func (g *Gate) Verify(ctx context.Context, summary string) (State, error) {
	start := g.clock.Now()
	s := NewSession(g.settings.RequiredConfirmations, start.Add(g.settings.Timeout), g.settings.OverrideSecret)

	promptCtx, cancel := context.WithTimeout(ctx, g.settings.Timeout)
	defer cancel()

	if p, ok := g.prompter.(Presenter); ok {
		p.Present(summary)
	}

	for !s.State.Terminal() {
		if s.Expire(g.clock.Now()).Terminal() {
			break
		}

		resp, err := g.prompter.Confirm(promptCtx, s.Received+1, s.Required)
		if err != nil {
			return g.interrupted(ctx, s, err)
		}
		if s.Expire(g.clock.Now()).Terminal() {
			break
		}

		switch resp {
		case Affirm:
			s.Affirm()
		case Deny:
			s.Deny()
		case Override:
			attempt, err := g.prompter.Secret(promptCtx)
			if err != nil {
				return g.interrupted(ctx, s, err)
			}
			if s.Expire(g.clock.Now()).Terminal() {
				continue
			}
			if s.Override(attempt) != Approved {
				log.Warn().Msg("Override secret rejected")
			}
		}
	}

	log.Info().
		Str("state", string(s.State)).
		Int("received", s.Received).
		Int("required", s.Required).
		Dur("elapsed", g.clock.Now().Sub(start)).
		Msg("Confirmation finished")
	return s.State, nil
}

func (g *Gate) interrupted(ctx context.Context, s *Session, err error) (State, error) {
	switch {
	case ctx.Err() != nil:
		s.State = TimedOut
		return s.State, ctx.Err()
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		s.State = TimedOut
		return s.State, nil
	default:
		s.State = Rejected
		return s.State, fmt.Errorf("confirmation prompt failed: %w", err)
	}
}
