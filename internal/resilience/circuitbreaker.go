// Package resilience wraps gobreaker with the logging/configuration idiom
// used by this pipeline's source and OCR adapters, plus a shared
// exponential-backoff retry helper.
package resilience

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Config defines a circuit breaker's trip thresholds and name.
type Config struct {
	Name          string
	MaxRequests   uint32
	Interval      time.Duration
	Timeout       time.Duration
	MaxFailures   uint32
	OnStateChange func(name string, from, to gobreaker.State)
}

// DefaultConfig returns sensible defaults for an external-adapter breaker.
func DefaultConfig(name string) Config {
	return Config{
		Name:        name,
		MaxRequests: 3,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		MaxFailures: 5,
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("[circuitbreaker:%s] state changed: %s -> %s", name, from, to)
		},
	}
}

// CircuitBreaker wraps gobreaker with a named, pre-configured policy.
type CircuitBreaker struct {
	cb   *gobreaker.CircuitBreaker[any]
	name string
}

// New creates a circuit breaker from the given config.
func New(config Config) *CircuitBreaker {
	settings := gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && (counts.ConsecutiveFailures >= config.MaxFailures || failureRatio >= 0.6)
		},
		OnStateChange: config.OnStateChange,
	}
	return &CircuitBreaker{cb: gobreaker.NewCircuitBreaker[any](settings), name: config.Name}
}

// Execute runs fn under circuit-breaker protection.
func (c *CircuitBreaker) Execute(fn func() (any, error)) (any, error) {
	result, err := c.cb.Execute(fn)
	if err != nil {
		return nil, fmt.Errorf("circuit breaker %s: %w", c.name, err)
	}
	return result, nil
}

// ExecuteCtx runs fn under circuit-breaker protection, short-circuiting if
// ctx is already done.
func (c *CircuitBreaker) ExecuteCtx(ctx context.Context, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := c.Execute(func() (any, error) {
		return nil, fn(ctx)
	})
	return err
}

// Retry runs fn with exponential backoff: initial delay, doubling each
// attempt up to cap, for at most maxAttempts tries.
func Retry(ctx context.Context, initial, cap time.Duration, maxAttempts int, fn func() error) error {
	delay := initial
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > cap {
			delay = cap
		}
	}
	return lastErr
}
