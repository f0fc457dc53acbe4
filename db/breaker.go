package db

import (
	"context"
	"sync"
	"time"

	"github.com/fenixflow/ff-storage-sub000/internal/logger"
	"github.com/fenixflow/ff-storage-sub000/storeerr"
)

// BreakerState is the state of a CircuitBreaker.
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	}
	return "closed"
}

// CircuitBreakerConfig configures a CircuitBreaker.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive transient failures that
	// open the breaker.
	FailureThreshold int
	// CoolDown is how long the breaker stays open before letting a trial
	// call through.
	CoolDown time.Duration
	// OnStateChange, if set, is called after every transition.
	OnStateChange func(from, to BreakerState)
}

// DefaultCircuitBreakerConfig opens after 5 failures for 30 seconds.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{FailureThreshold: 5, CoolDown: 30 * time.Second}
}

// CircuitBreaker fails fast after repeated transient failures. Only errors
// for which storeerr.IsRetryable holds count as failures; constraint
// violations and other caller errors leave it closed.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig
	now func() time.Time

	mu       sync.Mutex
	state    BreakerState
	failures int
	openedAt time.Time
	trial    bool
}

// NewCircuitBreaker returns a closed breaker.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultCircuitBreakerConfig().FailureThreshold
	}
	if cfg.CoolDown <= 0 {
		cfg.CoolDown = DefaultCircuitBreakerConfig().CoolDown
	}
	return &CircuitBreaker{cfg: cfg, now: time.Now}
}

// State returns the current state, moving open to half-open once the
// cool-down has elapsed.
func (b *CircuitBreaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshLocked()
	return b.state
}

// Execute runs fn unless the breaker is open. A nil breaker always runs fn.
func (b *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if b == nil {
		return fn(ctx)
	}
	if err := b.acquire(); err != nil {
		return err
	}
	err := fn(ctx)
	b.record(err)
	return err
}

func (b *CircuitBreaker) acquire() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshLocked()

	switch b.state {
	case BreakerOpen:
		return storeerr.New(storeerr.KindCircuitBreakerOpen, "query",
			"circuit breaker is open after repeated connection failures")
	case BreakerHalfOpen:
		if b.trial {
			return storeerr.New(storeerr.KindCircuitBreakerOpen, "query",
				"circuit breaker is half-open and a trial call is in flight")
		}
		b.trial = true
	}
	return nil
}

func (b *CircuitBreaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	transient := err != nil && storeerr.IsRetryable(err)
	if b.state == BreakerHalfOpen {
		b.trial = false
		if transient {
			b.transitionLocked(BreakerOpen)
			b.openedAt = b.now()
			return
		}
		b.failures = 0
		b.transitionLocked(BreakerClosed)
		return
	}

	if !transient {
		b.failures = 0
		return
	}
	b.failures++
	if b.failures >= b.cfg.FailureThreshold && b.state == BreakerClosed {
		b.transitionLocked(BreakerOpen)
		b.openedAt = b.now()
	}
}

func (b *CircuitBreaker) refreshLocked() {
	if b.state == BreakerOpen && b.now().Sub(b.openedAt) >= b.cfg.CoolDown {
		b.transitionLocked(BreakerHalfOpen)
	}
}

func (b *CircuitBreaker) transitionLocked(to BreakerState) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	logger.Get().Debug("Circuit breaker state change", "from", from.String(), "to", to.String())
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(from, to)
	}
}
