// Package rewards implements the reward operations: the mining
// start/stop/claim cycle, boosts, the daily streak, watch-and-earn grants,
// referrals and the live balance projection.
//
// Every mutating operation resolves the caller first and then runs exactly
// one ledger transaction. Nothing is cached between calls; all accrual is
// derived from stored timestamps at claim time.
package rewards

import (
	"context"
	"errors"
	"time"

	"github.com/aimerfeng/minerewards/internal/clock"
	"github.com/aimerfeng/minerewards/internal/identity"
	"github.com/aimerfeng/minerewards/internal/ledger"
	"github.com/aimerfeng/minerewards/internal/logging"
	"github.com/aimerfeng/minerewards/internal/monitoring"
	"github.com/shopspring/decimal"
)

// Reward amounts
var (
	MiningDailyMax = decimal.RequireFromString("4.8")
	BoostReward    = decimal.RequireFromString("0.5")
	WatchReward    = decimal.RequireFromString("0.25")
	DailyStep      = decimal.RequireFromString("0.1")
	StreakJackpot  = decimal.NewFromInt(2)
)

// Windows and limits
const (
	AccrualCap     = 24 * time.Hour
	BoostWindow    = 24 * time.Hour
	MaxBoosts      = ledger.MaxBoostsPerWindow
	DailyCooldown  = 24 * time.Hour
	StreakBreak    = 48 * time.Hour
	JackpotStreak  = 7
	RewardDecimals = 8
)

// Operation names used in logs and metrics
const (
	OpStartMining      = "start_mining"
	OpStopMining       = "stop_mining"
	OpClaimMining      = "claim_mining"
	OpClaimBoost       = "claim_boost"
	OpClaimDaily       = "claim_daily"
	OpClaimWatchEarn   = "claim_watch_earn"
	OpCreateLedger     = "create_ledger"
	OpRegisterReferral = "register_referral"
)

// Outcomes
const (
	OutcomeGranted         = "granted"
	OutcomeApplied         = "applied"
	OutcomeUnchanged       = "unchanged"
	OutcomeNoSession       = "no_session"
	OutcomeLimitReached    = "limit_reached"
	OutcomeCooldown        = "cooldown"
	OutcomeLedgerMissing   = "ledger_missing"
	OutcomeUnauthenticated = "unauthenticated"
	OutcomeFailed          = "failed"
)

// Referral errors
var (
	ErrReferralCodeNotFound = errors.New("referral code not found")
	ErrSelfReferral         = errors.New("cannot refer yourself")
	ErrAlreadyReferred      = errors.New("already referred")
)

// Service runs reward operations against a ledger store on behalf of the
// caller resolved from the request context.
type Service struct {
	store    ledger.Store
	identity identity.Resolver
	clock    clock.Clock
}

// NewService creates a reward service. A nil clock uses the wall clock.
func NewService(store ledger.Store, resolver identity.Resolver, clk clock.Clock) *Service {
	if clk == nil {
		clk = clock.System{}
	}
	return &Service{
		store:    store,
		identity: resolver,
		clock:    clk,
	}
}

// Now returns the service clock's time
func (s *Service) Now() time.Time {
	return s.clock.Now()
}

// applyFunc mutates one ledger at now. It returns the reward granted, the
// outcome label, and ledger.ErrNoChange when nothing must be written.
type applyFunc func(l *ledger.Ledger, now time.Time) (decimal.Decimal, string, error)

// transact resolves the caller and runs apply in one ledger transaction
func (s *Service) transact(ctx context.Context, op string, apply applyFunc) (decimal.Decimal, error) {
	started := time.Now()

	uid, err := s.identity.UID(ctx)
	if err != nil {
		s.record(op, "", OutcomeUnauthenticated, decimal.Zero, decimal.Zero, started)
		return decimal.Zero, err
	}

	now := s.clock.Now()
	reward := decimal.Zero
	balance := decimal.Zero
	outcome := OutcomeFailed

	err = s.store.Update(ctx, uid, func(l *ledger.Ledger) error {
		var applyErr error
		reward, outcome, applyErr = apply(l, now)
		balance = l.Mining.Balance
		return applyErr
	})
	if err != nil {
		if errors.Is(err, ledger.ErrLedgerMissing) {
			outcome = OutcomeLedgerMissing
		} else {
			outcome = OutcomeFailed
			logging.LogError(err, "", "rewards", op)
		}
		s.record(op, uid, outcome, decimal.Zero, decimal.Zero, started)
		return decimal.Zero, err
	}

	s.record(op, uid, outcome, reward, balance, started)
	return reward, nil
}

// claim runs a reward grant; a missing ledger yields a zero reward
func (s *Service) claim(ctx context.Context, op string, apply applyFunc) (decimal.Decimal, error) {
	reward, err := s.transact(ctx, op, apply)
	if errors.Is(err, ledger.ErrLedgerMissing) {
		return decimal.Zero, nil
	}
	return reward, err
}

func (s *Service) record(op, uid, outcome string, reward, balance decimal.Decimal, started time.Time) {
	latency := time.Since(started)
	monitoring.RecordReward(op, outcome, reward.InexactFloat64(), latency)
	logging.LogReward(&logging.RewardLogEntry{
		UserID:    uid,
		Operation: op,
		Reward:    reward,
		Balance:   balance,
		Outcome:   outcome,
		Latency:   latency,
	})
}
