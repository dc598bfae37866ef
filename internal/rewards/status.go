package rewards

import (
	"context"
	"time"

	"github.com/aimerfeng/minerewards/internal/ledger"
	"github.com/shopspring/decimal"
)

// Status is the caller's ledger with the derived values a client needs to
// tell a limit from a zero reward.
type Status struct {
	Ledger              *ledger.Ledger  `json:"ledger"`
	AsOf                time.Time       `json:"as_of"`
	LiveBalance         decimal.Decimal `json:"live_balance"`
	MiningAccrued       decimal.Decimal `json:"mining_accrued_unclaimed"`
	MiningSaturatesAt   *time.Time      `json:"mining_saturates_at,omitempty"`
	BoostRemaining      int             `json:"boost_remaining"`
	BoostWindowResetsAt *time.Time      `json:"boost_window_resets_at,omitempty"`
	DailyClaimable      bool            `json:"daily_claimable"`
	DailyNextReward     decimal.Decimal `json:"daily_next_reward"`
	DailyNextClaimAt    *time.Time      `json:"daily_next_claim_at,omitempty"`
	DailyStreakBreaksAt *time.Time      `json:"daily_streak_breaks_at,omitempty"`
}

// Status reads the caller's ledger. A missing ledger is ledger.ErrLedgerMissing.
func (s *Service) Status(ctx context.Context) (*Status, error) {
	uid, err := s.identity.UID(ctx)
	if err != nil {
		return nil, err
	}
	l, err := s.store.Get(ctx, uid)
	if err != nil {
		return nil, err
	}
	return StatusOf(l, s.clock.Now()), nil
}

// StatusOf derives the status of l at now
func StatusOf(l *ledger.Ledger, now time.Time) *Status {
	st := &Status{
		Ledger:         l,
		AsOf:           now,
		LiveBalance:    LiveBalance(SnapshotOf(&l.Mining), now),
		MiningAccrued:  decimal.Zero,
		BoostRemaining: BoostsRemaining(l.Boost, now),
	}

	if start, ok := l.Mining.SessionStart(); ok {
		st.MiningAccrued = MiningReward(start, now)
		saturates := start.Add(AccrualCap)
		st.MiningSaturatesAt = &saturates
	}

	if !boostWindowExpired(&l.Boost, now) {
		resets := l.Boost.LastReset.Add(BoostWindow)
		st.BoostWindowResetsAt = &resets
	}

	streak, ok := NextStreak(l.DailyClaim, now)
	st.DailyClaimable = ok
	if ok {
		st.DailyNextReward = DailyReward(streak)
	} else {
		st.DailyNextReward = DailyReward(streak + 1)
	}
	if last := l.DailyClaim.LastClaim; last != nil {
		next := last.Add(DailyCooldown)
		st.DailyNextClaimAt = &next
		if l.DailyClaim.Streak > 0 {
			breaks := last.Add(StreakBreak)
			st.DailyStreakBreaksAt = &breaks
		}
	}
	return st
}
