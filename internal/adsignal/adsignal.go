// Package adsignal verifies that a rewarded ad was actually watched before a
// boost or watch-and-earn grant is issued.
package adsignal

import (
	"context"
	"errors"
	"strings"
)

// Verification errors. Any of them means the ad did not complete and no
// reward operation may run.
var (
	ErrSignalRejected    = errors.New("ad completion rejected")
	ErrSignalTimeout     = errors.New("ad verification timed out")
	ErrSignalUnavailable = errors.New("ad verification unavailable")
)

// Verifier checks an ad-network completion proof for uid
type Verifier interface {
	Verify(ctx context.Context, uid, proof string) error
}

// AcceptAll trusts any non-empty proof. It stands in for the ad network in
// development.
type AcceptAll struct{}

// Verify implements Verifier
func (AcceptAll) Verify(ctx context.Context, uid, proof string) error {
	if strings.TrimSpace(proof) == "" {
		return ErrSignalRejected
	}
	return nil
}

// IsSignalFailure reports whether err is any ad verification failure
func IsSignalFailure(err error) bool {
	return errors.Is(err, ErrSignalRejected) ||
		errors.Is(err, ErrSignalTimeout) ||
		errors.Is(err, ErrSignalUnavailable)
}
