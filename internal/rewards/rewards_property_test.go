package rewards

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"pgregory.net/rapid"
)

// ============================================
// Property Tests for Mining Accrual
// ============================================

// TestProperty_MiningReward_Monotonic tests that a later claim never pays less
// *For any* t1 <= t2 after a session start, reward(t1) SHALL be <= reward(t2).
func TestProperty_MiningReward_Monotonic(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		a := rapid.Int64Range(0, 72*3600*1000).Draw(rt, "a_ms")
		b := rapid.Int64Range(0, 72*3600*1000).Draw(rt, "b_ms")
		if a > b {
			a, b = b, a
		}

		r1 := MiningReward(t0, t0.Add(time.Duration(a)*time.Millisecond))
		r2 := MiningReward(t0, t0.Add(time.Duration(b)*time.Millisecond))

		if r1.GreaterThan(r2) {
			rt.Fatalf("PROPERTY VIOLATION: reward at %dms (%s) exceeds reward at %dms (%s)", a, r1, b, r2)
		}
	})
}

// TestProperty_ClaimMining_Capped tests that a claim always pays within [0, 4.8]
// *For any* elapsed time, including negative skew, the claimed reward SHALL
// be between zero and the daily maximum, and SHALL match the pure accrual.
func TestProperty_ClaimMining_Capped(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		f := newFixture(rt)
		if err := f.svc.StartMining(f.ctx); err != nil {
			rt.Fatalf("start failed: %v", err)
		}

		elapsed := time.Duration(rapid.Int64Range(-3600, 30*24*3600).Draw(rt, "elapsed_s")) * time.Second
		now := f.clock.Advance(elapsed)

		reward, err := f.svc.ClaimMining(f.ctx)
		if err != nil {
			rt.Fatalf("claim failed: %v", err)
		}
		if reward.IsNegative() || reward.GreaterThan(MiningDailyMax) {
			rt.Fatalf("PROPERTY VIOLATION: reward %s outside [0, %s] after %s", reward, MiningDailyMax, elapsed)
		}
		if want := MiningReward(t0, now); !reward.Equal(want) {
			rt.Fatalf("PROPERTY VIOLATION: claimed %s, projection says %s", reward, want)
		}
		if f.ledger(rt).Mining.Active() {
			rt.Fatalf("PROPERTY VIOLATION: session still running after claim")
		}
	})
}

// TestProperty_LiveBalance_MatchesClaim tests that the projection equals the
// balance a claim at the same instant would produce.
func TestProperty_LiveBalance_MatchesClaim(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		f := newFixture(rt)
		watches := rapid.IntRange(0, 5).Draw(rt, "watches")
		for i := 0; i < watches; i++ {
			if _, err := f.svc.ClaimWatchEarn(f.ctx); err != nil {
				rt.Fatalf("watch failed: %v", err)
			}
		}
		if err := f.svc.StartMining(f.ctx); err != nil {
			rt.Fatalf("start failed: %v", err)
		}
		now := f.clock.Advance(time.Duration(rapid.Int64Range(0, 48*3600).Draw(rt, "elapsed_s")) * time.Second)

		projected := LiveBalance(SnapshotOf(&f.ledger(rt).Mining), now)
		if _, err := f.svc.ClaimMining(f.ctx); err != nil {
			rt.Fatalf("claim failed: %v", err)
		}
		if got := f.ledger(rt).Mining.Balance; !got.Equal(projected) {
			rt.Fatalf("PROPERTY VIOLATION: projected %s, claimed balance %s", projected, got)
		}
	})
}

// ============================================
// Property Tests for the Boost Limiter
// ============================================

// TestProperty_Boost_Bound tests the boost limiter against a reference model
// *For any* sequence of boost attempts, usedToday SHALL stay within 0..3,
// every grant SHALL equal 0.5, and a grant SHALL happen exactly when the
// sliding window has room.
func TestProperty_Boost_Bound(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		f := newFixture(rt)

		// Reference model: ledger.New stamps lastReset at creation.
		modelReset := t0
		modelUsed := 0
		granted := decimal.Zero

		steps := rapid.IntRange(1, 40).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			gap := time.Duration(rapid.Int64Range(0, 30*60).Draw(rt, "gap_min")) * time.Minute
			now := f.clock.Advance(gap)

			if now.Sub(modelReset) >= BoostWindow {
				modelUsed = 0
				modelReset = now
			}
			expectGrant := modelUsed < MaxBoosts
			if expectGrant {
				modelUsed++
				modelReset = now
			}

			reward, err := f.svc.ClaimBoost(f.ctx)
			if err != nil {
				rt.Fatalf("boost failed: %v", err)
			}
			if expectGrant && !reward.Equal(BoostReward) {
				rt.Fatalf("PROPERTY VIOLATION: step %d expected grant of %s, got %s", i, BoostReward, reward)
			}
			if !expectGrant && !reward.IsZero() {
				rt.Fatalf("PROPERTY VIOLATION: step %d expected limit, got %s", i, reward)
			}
			granted = granted.Add(reward)

			b := f.ledger(rt).Boost
			if b.UsedToday < 0 || b.UsedToday > MaxBoosts {
				rt.Fatalf("PROPERTY VIOLATION: usedToday %d out of range", b.UsedToday)
			}
		}

		if got := f.ledger(rt).Boost.Balance; !got.Equal(granted) {
			rt.Fatalf("PROPERTY VIOLATION: boost balance %s != granted %s", got, granted)
		}
	})
}

// ============================================
// Property Tests for the Daily Streak
// ============================================

// TestProperty_Daily_StreakResetLaw tests that a 48h gap restarts the streak
// *For any* built-up streak and any gap of 48h or more, the next claim SHALL
// set streak to 1 and pay 0.1.
func TestProperty_Daily_StreakResetLaw(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		f := newFixture(rt)
		days := rapid.IntRange(1, 12).Draw(rt, "days")
		for i := 0; i < days; i++ {
			if _, err := f.svc.ClaimDaily(f.ctx); err != nil {
				rt.Fatalf("claim failed: %v", err)
			}
			f.clock.Advance(24 * time.Hour)
		}

		last := *f.ledger(rt).DailyClaim.LastClaim
		gap := StreakBreak + time.Duration(rapid.Int64Range(0, 30*24*3600).Draw(rt, "extra_s"))*time.Second
		f.clock.Set(last.Add(gap))

		reward, err := f.svc.ClaimDaily(f.ctx)
		if err != nil {
			rt.Fatalf("claim failed: %v", err)
		}
		if streak := f.ledger(rt).DailyClaim.Streak; streak != 1 {
			rt.Fatalf("PROPERTY VIOLATION: streak %d after %s gap, expected 1", streak, gap)
		}
		if !reward.Equal(DailyStep) {
			rt.Fatalf("PROPERTY VIOLATION: reward %s after reset, expected %s", reward, DailyStep)
		}
	})
}

// TestProperty_Daily_Jackpot tests the day-seven reward
// *For any* gaps between 24h and 48h, the seventh consecutive claim SHALL pay 2.0.
func TestProperty_Daily_Jackpot(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		f := newFixture(rt)
		var reward decimal.Decimal
		for day := 1; day <= JackpotStreak; day++ {
			var err error
			reward, err = f.svc.ClaimDaily(f.ctx)
			if err != nil {
				rt.Fatalf("claim failed: %v", err)
			}
			gap := DailyCooldown + time.Duration(rapid.Int64Range(0, 24*3600-1).Draw(rt, "gap_s"))*time.Second
			f.clock.Advance(gap)
		}
		if !reward.Equal(StreakJackpot) {
			rt.Fatalf("PROPERTY VIOLATION: day %d paid %s, expected %s", JackpotStreak, reward, StreakJackpot)
		}
	})
}

// TestProperty_Daily_CooldownPaysZero tests that a claim inside the cooldown pays nothing
func TestProperty_Daily_CooldownPaysZero(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		f := newFixture(rt)
		if _, err := f.svc.ClaimDaily(f.ctx); err != nil {
			rt.Fatalf("claim failed: %v", err)
		}
		before := f.ledger(rt)

		f.clock.Advance(time.Duration(rapid.Int64Range(0, 24*3600-1).Draw(rt, "gap_s")) * time.Second)
		reward, err := f.svc.ClaimDaily(f.ctx)
		if err != nil {
			rt.Fatalf("claim failed: %v", err)
		}
		if !reward.IsZero() {
			rt.Fatalf("PROPERTY VIOLATION: claim inside cooldown paid %s", reward)
		}
		if after := f.ledger(rt); after.Version != before.Version {
			rt.Fatalf("PROPERTY VIOLATION: cooldown claim wrote the ledger")
		}
	})
}

// ============================================
// Property Tests for Watch and Earn
// ============================================

// TestProperty_WatchEarn_Additive tests the watch counters
// *For any* N claims, totalWatched SHALL be N and totalEarned SHALL be 0.25*N exactly.
func TestProperty_WatchEarn_Additive(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		f := newFixture(rt)
		n := rapid.IntRange(0, 60).Draw(rt, "n")
		for i := 0; i < n; i++ {
			if _, err := f.svc.ClaimWatchEarn(f.ctx); err != nil {
				rt.Fatalf("watch failed: %v", err)
			}
		}

		w := f.ledger(rt).WatchEarn
		want := WatchReward.Mul(decimal.NewFromInt(int64(n)))
		if w.TotalWatched != int64(n) {
			rt.Fatalf("PROPERTY VIOLATION: totalWatched %d, expected %d", w.TotalWatched, n)
		}
		if !w.TotalEarned.Equal(want) {
			rt.Fatalf("PROPERTY VIOLATION: totalEarned %s, expected %s", w.TotalEarned, want)
		}
	})
}
