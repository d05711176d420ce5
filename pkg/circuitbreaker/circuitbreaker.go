// Package circuitbreaker stops calling a failing dependency for a while.
package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

var ErrOpen = errors.New("circuit breaker is open")

type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

type Settings struct {
	Name string
	// MaxFailures consecutive failures open the circuit.
	MaxFailures int
	// Cooldown is how long the circuit stays open before one trial call.
	Cooldown time.Duration
	Clock    func() time.Time
}

type CircuitBreaker struct {
	name        string
	maxFailures int
	cooldown    time.Duration
	clock       func() time.Time

	mu          sync.Mutex
	state       State
	failures    int
	openedAt    time.Time
	trialActive bool
}

func New(settings Settings) *CircuitBreaker {
	if settings.MaxFailures < 1 {
		settings.MaxFailures = 5
	}
	if settings.Clock == nil {
		settings.Clock = time.Now
	}
	return &CircuitBreaker{
		name:        settings.Name,
		maxFailures: settings.MaxFailures,
		cooldown:    settings.Cooldown,
		clock:       settings.Clock,
		state:       StateClosed,
	}
}

func (cb *CircuitBreaker) Name() string { return cb.name }

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Execute runs fn unless the circuit is open. While half-open only a single
// trial call goes through.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.before(); err != nil {
		return err
	}
	err := fn()
	cb.after(err)
	return err
}

func (cb *CircuitBreaker) before() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.clock().Sub(cb.openedAt) < cb.cooldown {
			return ErrOpen
		}
		cb.state = StateHalfOpen
		cb.trialActive = true
	case StateHalfOpen:
		if cb.trialActive {
			return ErrOpen
		}
		cb.trialActive = true
	}
	return nil
}

func (cb *CircuitBreaker) after(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.trialActive = false
	if err == nil {
		cb.state = StateClosed
		cb.failures = 0
		return
	}
	cb.failures++
	if cb.state == StateHalfOpen || cb.failures >= cb.maxFailures {
		cb.state = StateOpen
		cb.openedAt = cb.clock()
	}
}
