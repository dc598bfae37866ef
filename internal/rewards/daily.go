package rewards

import (
	"context"
	"time"

	"github.com/aimerfeng/minerewards/internal/clock"
	"github.com/aimerfeng/minerewards/internal/ledger"
	"github.com/shopspring/decimal"
)

// DailyReward is the grant for a claim that reaches streak. Day 7 pays the
// jackpot; every other day pays DailyStep per streak day.
func DailyReward(streak int) decimal.Decimal {
	if streak == JackpotStreak {
		return StreakJackpot
	}
	return DailyStep.Mul(decimal.NewFromInt(int64(streak)))
}

// NextStreak is the streak a claim at now would reach, and whether a claim
// is allowed at all.
func NextStreak(d ledger.DailyClaim, now time.Time) (int, bool) {
	if d.LastClaim == nil {
		return d.Streak + 1, true
	}
	since := clock.Elapsed(*d.LastClaim, now)
	switch {
	case since < DailyCooldown:
		return d.Streak, false
	case since >= StreakBreak:
		return 1, true
	default:
		return d.Streak + 1, true
	}
}

// ClaimDaily grants the daily check-in reward. It returns zero when the
// caller already claimed within DailyCooldown. A gap of StreakBreak or more
// restarts the streak at one.
func (s *Service) ClaimDaily(ctx context.Context) (decimal.Decimal, error) {
	return s.claim(ctx, OpClaimDaily, applyClaimDaily)
}

func applyClaimDaily(l *ledger.Ledger, now time.Time) (decimal.Decimal, string, error) {
	d := &l.DailyClaim
	streak, ok := NextStreak(*d, now)
	if !ok {
		return decimal.Zero, OutcomeCooldown, ledger.ErrNoChange
	}

	reward := DailyReward(streak)
	d.Streak = streak
	d.LastClaim = &now
	d.TotalEarned = d.TotalEarned.Add(reward)
	l.Mining.Credit(reward)
	return reward, OutcomeGranted, nil
}
