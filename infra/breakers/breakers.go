package breakers

import (
	"time"

	cb "github.com/sony/gobreaker"
)

// Settings controls when a breaker trips
type Settings struct {
	ConsecutiveFailures uint32
	MinRequests         uint32
	FailureRatio        float64
	Interval            time.Duration
	Timeout             time.Duration
	// IsSuccessful classifies errors that should not count against the breaker
	IsSuccessful  func(err error) bool
	OnStateChange func(name, from, to string)
}

// DefaultSettings trips after 3 consecutive failures, or when more than 5%
// of at least 20 requests in the interval fail.
func DefaultSettings() Settings {
	return Settings{
		ConsecutiveFailures: 3,
		MinRequests:         20,
		FailureRatio:        0.05,
		Interval:            60 * time.Second,
		Timeout:             60 * time.Second,
	}
}

type Breaker struct{ cb *cb.CircuitBreaker }

func New(name string, s Settings) *Breaker {
	st := cb.Settings{Name: name}
	st.Interval = s.Interval
	st.Timeout = s.Timeout
	st.ReadyToTrip = func(counts cb.Counts) bool {
		if counts.ConsecutiveFailures >= s.ConsecutiveFailures {
			return true
		}
		total := counts.Requests
		if total < s.MinRequests {
			return false
		}
		return float64(counts.TotalFailures)/float64(total) > s.FailureRatio
	}
	if s.IsSuccessful != nil {
		st.IsSuccessful = s.IsSuccessful
	}
	if s.OnStateChange != nil {
		st.OnStateChange = func(name string, from, to cb.State) {
			s.OnStateChange(name, from.String(), to.String())
		}
	}
	return &Breaker{cb: cb.NewCircuitBreaker(st)}
}

func (b *Breaker) Execute(fn func() (any, error)) (any, error) { return b.cb.Execute(fn) }

// State returns "closed", "half-open" or "open"
func (b *Breaker) State() string { return b.cb.State().String() }

// Name returns the breaker name
func (b *Breaker) Name() string { return b.cb.Name() }

// IsOpen reports whether err was produced by a tripped breaker
func IsOpen(err error) bool {
	return err == cb.ErrOpenState || err == cb.ErrTooManyRequests
}
