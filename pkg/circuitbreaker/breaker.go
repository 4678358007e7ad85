// Package circuitbreaker wraps sony/gobreaker for the external services the
// calculator depends on. Each upstream (LLM, RxNorm, NDC directory) gets its
// own breaker so one failing dependency does not block the others.
package circuitbreaker

import (
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Settings tunes one breaker.
type Settings struct {
	Name string
	// MaxHalfOpenRequests is how many probe requests pass while half-open.
	MaxHalfOpenRequests uint32
	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout time.Duration
	// Interval is the closed-state window for clearing counts.
	Interval time.Duration
	// ConsecutiveFailures trips the breaker below MinRequests.
	ConsecutiveFailures uint32
	// FailureRatio trips the breaker once MinRequests have been seen.
	FailureRatio float64
	MinRequests  uint32
}

// AIDefaults returns settings for LLM calls. Model endpoints fail slowly and
// expensively, so the breaker trips early and stays open longer.
func AIDefaults(name string) Settings {
	return Settings{
		Name:                name,
		MaxHalfOpenRequests: 1,
		OpenTimeout:         45 * time.Second,
		Interval:            60 * time.Second,
		ConsecutiveFailures: 3,
		FailureRatio:        0.5,
		MinRequests:         6,
	}
}

// CatalogDefaults returns settings for the public terminology APIs, which are
// cheap to probe and tolerate more failures before tripping.
func CatalogDefaults(name string) Settings {
	return Settings{
		Name:                name,
		MaxHalfOpenRequests: 3,
		OpenTimeout:         20 * time.Second,
		Interval:            60 * time.Second,
		ConsecutiveFailures: 5,
		FailureRatio:        0.6,
		MinRequests:         10,
	}
}

// StateFunc receives state transitions, typically to drive a metrics gauge.
type StateFunc func(name string, state gobreaker.State)

// Breaker is a named circuit breaker around one upstream dependency.
type Breaker struct {
	cb      *gobreaker.CircuitBreaker
	name    string
	logger  *zap.Logger
	onState StateFunc
}

// New builds a breaker. onState may be nil.
func New(s Settings, logger *zap.Logger, onState StateFunc) *Breaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Breaker{name: s.Name, logger: logger, onState: onState}

	b.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: s.MaxHalfOpenRequests,
		Interval:    s.Interval,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < s.MinRequests {
				return counts.ConsecutiveFailures >= s.ConsecutiveFailures
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= s.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
			if b.onState != nil {
				b.onState(name, to)
			}
		},
	})

	if onState != nil {
		onState(s.Name, gobreaker.StateClosed)
	}
	return b
}

// Do runs fn through the breaker.
func (b *Breaker) Do(fn func() (any, error)) (any, error) {
	return b.cb.Execute(fn)
}

// Name returns the breaker's name.
func (b *Breaker) Name() string {
	return b.name
}

// State returns the current gobreaker state.
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

// Rejected reports whether err means the breaker refused the call without
// attempting it.
func Rejected(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// StateValue maps a gobreaker state to a stable numeric encoding for gauges:
// closed 0, half-open 1, open 2.
func StateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
