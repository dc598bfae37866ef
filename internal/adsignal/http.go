package adsignal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aimerfeng/minerewards/internal/config"
	"github.com/aimerfeng/minerewards/internal/monitoring"
	"github.com/rs/zerolog/log"
)

// maxResponseBytes bounds how much of a verification response is read
const maxResponseBytes = 64 << 10

type verifyRequest struct {
	UID   string `json:"uid"`
	Proof string `json:"proof"`
}

type verifyResponse struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// HTTPVerifier posts the completion proof to an ad-network verification
// endpoint. Each call has its own timeout and runs behind a circuit breaker
// that opens after repeated upstream failures.
type HTTPVerifier struct {
	url     string
	timeout time.Duration
	client  *http.Client
	breaker *breaker
}

// NewHTTPVerifier creates a verifier for cfg.VerifyURL
func NewHTTPVerifier(cfg *config.AdSignalConfig, client *http.Client) *HTTPVerifier {
	if client == nil {
		client = &http.Client{}
	}
	bc := DefaultBreakerConfig()
	if cfg.FailureThreshold > 0 {
		bc.FailureThreshold = uint32(cfg.FailureThreshold)
	}
	if cfg.OpenTimeout > 0 {
		bc.Timeout = cfg.OpenTimeout
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPVerifier{
		url:     cfg.VerifyURL,
		timeout: timeout,
		client:  client,
		breaker: newBreaker("ad-verifier", bc),
	}
}

// New returns an HTTPVerifier when a verification URL is configured and
// AcceptAll otherwise.
func New(cfg *config.AdSignalConfig) Verifier {
	if cfg.VerifyURL == "" {
		log.Warn().Msg("AD_VERIFY_URL not set, accepting every non-empty ad proof")
		return AcceptAll{}
	}
	return NewHTTPVerifier(cfg, nil)
}

// State returns the circuit breaker state
func (v *HTTPVerifier) State() BreakerState {
	return v.breaker.state()
}

// Verify implements Verifier
func (v *HTTPVerifier) Verify(ctx context.Context, uid, proof string) error {
	if proof == "" {
		monitoring.RecordAdSignal("rejected")
		return ErrSignalRejected
	}

	err := v.breaker.execute(ctx, func() error {
		return v.call(ctx, uid, proof)
	})
	switch {
	case err == nil:
		monitoring.RecordAdSignal("valid")
	case errors.Is(err, ErrSignalRejected):
		monitoring.RecordAdSignal("rejected")
	case errors.Is(err, ErrSignalTimeout):
		monitoring.RecordAdSignal("timeout")
	default:
		monitoring.RecordAdSignal("unavailable")
	}
	return err
}

func (v *HTTPVerifier) call(ctx context.Context, uid, proof string) error {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	body, err := json.Marshal(verifyRequest{UID: uid, Proof: proof})
	if err != nil {
		return fmt.Errorf("failed to encode verification request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSignalUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ErrSignalTimeout
		}
		return fmt.Errorf("%w: %v", ErrSignalUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: upstream status %d", ErrSignalUnavailable, resp.StatusCode)
	}

	var out verifyResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&out); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ErrSignalTimeout
		}
		return fmt.Errorf("%w: malformed response: %v", ErrSignalUnavailable, err)
	}
	if resp.StatusCode >= 400 || !out.Valid {
		log.Debug().Str("user_id", uid).Int("status", resp.StatusCode).Str("reason", out.Reason).Msg("Ad proof rejected")
		return ErrSignalRejected
	}
	return nil
}
