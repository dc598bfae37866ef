package rewards

import (
	"context"
	"time"

	"github.com/aimerfeng/minerewards/internal/clock"
	"github.com/aimerfeng/minerewards/internal/ledger"
	"github.com/shopspring/decimal"
)

var secondsPerAccrualCap = decimal.NewFromInt(int64(AccrualCap / time.Second))

// MiningReward is the accrual of a session started at start, as of now.
// Elapsed time is counted in whole seconds and saturates at AccrualCap.
func MiningReward(start, now time.Time) decimal.Decimal {
	elapsed := clock.Capped(clock.Elapsed(start, now), AccrualCap)
	seconds := decimal.NewFromInt(int64(elapsed / time.Second))
	return seconds.Mul(MiningDailyMax).DivRound(secondsPerAccrualCap, RewardDecimals)
}

// StartMining opens a session for the caller. Starting while a session is
// running keeps the running session.
func (s *Service) StartMining(ctx context.Context) error {
	_, err := s.transact(ctx, OpStartMining, func(l *ledger.Ledger, now time.Time) (decimal.Decimal, string, error) {
		if !l.Mining.Start(now) {
			return decimal.Zero, OutcomeUnchanged, ledger.ErrNoChange
		}
		return decimal.Zero, OutcomeApplied, nil
	})
	return err
}

// StopMining closes the caller's session. Accrual that was not claimed
// before stopping is forfeited.
func (s *Service) StopMining(ctx context.Context) error {
	_, err := s.transact(ctx, OpStopMining, func(l *ledger.Ledger, now time.Time) (decimal.Decimal, string, error) {
		if !l.Mining.Stop() {
			return decimal.Zero, OutcomeUnchanged, ledger.ErrNoChange
		}
		return decimal.Zero, OutcomeApplied, nil
	})
	return err
}

// ClaimMining banks the accrual of the running session and closes it. It
// returns zero when no session is running; a concurrent second claim sees
// the closed session.
func (s *Service) ClaimMining(ctx context.Context) (decimal.Decimal, error) {
	return s.claim(ctx, OpClaimMining, applyClaimMining)
}

func applyClaimMining(l *ledger.Ledger, now time.Time) (decimal.Decimal, string, error) {
	start, ok := l.Mining.SessionStart()
	if !ok {
		return decimal.Zero, OutcomeNoSession, ledger.ErrNoChange
	}
	reward := MiningReward(start, now)
	l.Mining.Claim(now, reward)
	return reward, OutcomeGranted, nil
}
