package embed

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is returned when the circuit breaker rejects a request
// because the embedding endpoint has been failing.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// BreakerConfig holds the circuit breaker tuning knobs.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures required to trip
	// the circuit. Default: 3.
	MaxFailures uint32

	// Timeout is how long the circuit stays open before half-open probing.
	// Default: 30 seconds.
	Timeout time.Duration

	// HalfOpenMaxSuccesses is the number of consecutive successes required
	// in half-open state to close the circuit again. Default: 2.
	HalfOpenMaxSuccesses uint32
}

// BreakerMetrics holds counters about circuit breaker traffic.
type BreakerMetrics struct {
	TotalRequests        uint64
	TotalSuccesses       uint64
	TotalFailures        uint64
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

// Breaker wraps gobreaker to keep a failing embedding endpoint from stalling
// ingestion and retrieval. Closed passes traffic through, open rejects
// immediately, half-open admits probe requests.
type Breaker struct {
	breaker *gobreaker.CircuitBreaker
	mu      sync.RWMutex
	metrics BreakerMetrics
}

// NewBreaker creates a circuit breaker with the given configuration.
// Zero-valued fields fall back to defaults.
func NewBreaker(config BreakerConfig) *Breaker {
	if config.MaxFailures == 0 {
		config.MaxFailures = 3
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.HalfOpenMaxSuccesses == 0 {
		config.HalfOpenMaxSuccesses = 2
	}

	b := &Breaker{}
	b.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "EmbeddingCircuitBreaker",
		MaxRequests: config.HalfOpenMaxSuccesses,
		Interval:    0,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.MaxFailures
		},
	})

	return b
}

// Execute runs fn through the circuit breaker. If the circuit is open it
// returns ErrCircuitOpen without calling fn.
func (b *Breaker) Execute(ctx context.Context, fn func() (interface{}, error)) (interface{}, error) {
	select {
	case <-ctx.Done():
		b.recordFailure()
		return nil, ctx.Err()
	default:
	}

	result, err := b.breaker.Execute(func() (interface{}, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		return fn()
	})

	if err != nil {
		b.recordFailure()
		if errors.Is(err, gobreaker.ErrOpenState) {
			return nil, ErrCircuitOpen
		}
		return nil, err
	}

	b.recordSuccess()
	return result, nil
}

// State returns "closed", "open", or "half-open".
func (b *Breaker) State() string {
	switch b.breaker.State() {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateOpen:
		return "open"
	case gobreaker.StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Metrics returns the current traffic counters.
func (b *Breaker) Metrics() BreakerMetrics {
	b.mu.RLock()
	defer b.mu.RUnlock()

	counts := b.breaker.Counts()
	return BreakerMetrics{
		TotalRequests:        b.metrics.TotalRequests,
		TotalSuccesses:       b.metrics.TotalSuccesses,
		TotalFailures:        b.metrics.TotalFailures,
		ConsecutiveSuccesses: counts.ConsecutiveSuccesses,
		ConsecutiveFailures:  counts.ConsecutiveFailures,
	}
}

func (b *Breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.metrics.TotalRequests++
	b.metrics.TotalSuccesses++
}

func (b *Breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.metrics.TotalRequests++
	b.metrics.TotalFailures++
}
