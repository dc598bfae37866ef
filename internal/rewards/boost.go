package rewards

import (
	"context"
	"time"

	"github.com/aimerfeng/minerewards/internal/clock"
	"github.com/aimerfeng/minerewards/internal/ledger"
	"github.com/shopspring/decimal"
)

// ClaimBoost grants BoostReward if the caller has boosts left in the
// current window, and zero otherwise. The caller must have verified an ad
// completion first.
//
// The window is anchored at lastReset, which every grant re-stamps, so it
// runs for BoostWindow after the most recent boost.
func (s *Service) ClaimBoost(ctx context.Context) (decimal.Decimal, error) {
	return s.claim(ctx, OpClaimBoost, applyClaimBoost)
}

func applyClaimBoost(l *ledger.Ledger, now time.Time) (decimal.Decimal, string, error) {
	b := &l.Boost
	if boostWindowExpired(b, now) {
		b.UsedToday = 0
		b.LastReset = &now
	}
	if b.UsedToday >= MaxBoosts {
		return decimal.Zero, OutcomeLimitReached, ledger.ErrNoChange
	}

	b.UsedToday++
	b.LastReset = &now
	b.Balance = b.Balance.Add(BoostReward)
	l.Mining.Credit(BoostReward)
	return BoostReward, OutcomeGranted, nil
}

func boostWindowExpired(b *ledger.Boost, now time.Time) bool {
	return b.LastReset == nil || clock.Elapsed(*b.LastReset, now) >= BoostWindow
}

// BoostsRemaining is the number of boosts that could be granted at now
func BoostsRemaining(b ledger.Boost, now time.Time) int {
	if boostWindowExpired(&b, now) {
		return MaxBoosts
	}
	return MaxBoosts - b.UsedToday
}
