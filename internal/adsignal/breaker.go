package adsignal

import (
	"context"
	"errors"
	"time"

	"github.com/aimerfeng/minerewards/internal/monitoring"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

// BreakerConfig holds configuration for the verification circuit breaker
type BreakerConfig struct {
	// MaxRequests is the number of requests allowed through while half-open
	MaxRequests uint32
	// Interval is the cyclic period of the closed state after which counts clear
	Interval time.Duration
	// Timeout is how long the breaker stays open before probing again
	Timeout time.Duration
	// FailureThreshold is the number of consecutive failures that opens it
	FailureThreshold uint32
}

// DefaultBreakerConfig returns default circuit breaker configuration
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:      3,
		Interval:         60 * time.Second,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
	}
}

// BreakerState is the state of the circuit breaker
type BreakerState string

const (
	BreakerStateClosed   BreakerState = "closed"
	BreakerStateOpen     BreakerState = "open"
	BreakerStateHalfOpen BreakerState = "half-open"
)

// breaker wraps gobreaker so that only upstream failures trip it. A
// rejected proof is a valid answer and counts as success.
type breaker struct {
	name string
	cb   *gobreaker.CircuitBreaker
}

func newBreaker(name string, cfg BreakerConfig) *breaker {
	monitoring.SetCircuitBreakerState(name, 0)
	return &breaker{
		name: name,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        name,
			MaxRequests: cfg.MaxRequests,
			Interval:    cfg.Interval,
			Timeout:     cfg.Timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= cfg.FailureThreshold
			},
			OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
				log.Info().
					Str("circuit_breaker", name).
					Str("from", stateToString(from)).
					Str("to", stateToString(to)).
					Msg("Circuit breaker state changed")
				monitoring.SetCircuitBreakerState(name, stateToGauge(to))
			},
			IsSuccessful: func(err error) bool {
				if err == nil {
					return true
				}
				if errors.Is(err, ErrSignalUnavailable) || errors.Is(err, ErrSignalTimeout) {
					return false
				}
				// Rejections and caller cancellations say nothing about upstream health.
				return true
			},
		}),
	}
}

// execute runs fn behind the breaker. An open breaker fails fast with
// ErrSignalUnavailable.
func (b *breaker) execute(ctx context.Context, fn func() error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		log.Warn().Str("circuit_breaker", b.name).Msg("Circuit breaker is open, rejecting verification")
		return ErrSignalUnavailable
	}
	return err
}

func (b *breaker) state() BreakerState {
	return BreakerState(stateToString(b.cb.State()))
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return string(BreakerStateClosed)
	case gobreaker.StateOpen:
		return string(BreakerStateOpen)
	case gobreaker.StateHalfOpen:
		return string(BreakerStateHalfOpen)
	default:
		return "unknown"
	}
}

func stateToGauge(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateOpen:
		return 1
	case gobreaker.StateHalfOpen:
		return 0.5
	default:
		return 0
	}
}
