package rewards

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aimerfeng/minerewards/internal/ledger"
	"github.com/shopspring/decimal"
)

// MaxUsernameLength bounds the profile username
const MaxUsernameLength = 32

// maxCodeAttempts bounds suffixing a referral code that is already taken
const maxCodeAttempts = 20

// ErrInvalidUsername is returned for a username that is too long
var ErrInvalidUsername = errors.New("invalid username")

// CreateLedger creates the caller's ledger with every sub-ledger at its
// default. With a referral code, the new ledger and the referrer's counters
// are written in one transaction, so either both change or neither does.
func (s *Service) CreateLedger(ctx context.Context, username, referralCode string) (*ledger.Ledger, error) {
	started := time.Now()
	uid, err := s.identity.UID(ctx)
	if err != nil {
		s.record(OpCreateLedger, "", OutcomeUnauthenticated, decimal.Zero, decimal.Zero, started)
		return nil, err
	}

	username = strings.TrimSpace(username)
	if len(username) > MaxUsernameLength {
		return nil, fmt.Errorf("%w: longer than %d characters", ErrInvalidUsername, MaxUsernameLength)
	}

	var referrer *ledger.Ledger
	if code := ledger.NormalizeReferralCode(referralCode); code != "" {
		referrer, err = s.findReferrer(ctx, code)
		if err != nil {
			return nil, err
		}
		if referrer.UID == uid {
			return nil, ErrSelfReferral
		}
	}

	now := s.clock.Now()
	base := ledger.DefaultReferralCode(uid)
	own := base
	var l *ledger.Ledger
	for attempt := 1; ; attempt++ {
		l = ledger.New(uid, username, own, now)
		if referrer != nil {
			l.Profile.ReferredBy = referrer.Profile.ReferralCode
			err = s.store.CreateReferred(ctx, l, referrer.UID)
		} else {
			err = s.store.Create(ctx, l)
		}
		if !errors.Is(err, ledger.ErrReferralCodeTaken) || attempt >= maxCodeAttempts {
			break
		}
		own = base + strconv.Itoa(attempt)
	}
	if err != nil {
		outcome := OutcomeFailed
		if errors.Is(err, ledger.ErrLedgerExists) {
			outcome = OutcomeUnchanged
		}
		s.record(OpCreateLedger, uid, outcome, decimal.Zero, decimal.Zero, started)
		// The referrer vanished between lookup and insert.
		if referrer != nil && errors.Is(err, ledger.ErrLedgerMissing) {
			return nil, ErrReferralCodeNotFound
		}
		return nil, err
	}
	s.record(OpCreateLedger, uid, OutcomeApplied, decimal.Zero, decimal.Zero, started)
	return s.store.Get(ctx, uid)
}

// RegisterReferral links the caller to the owner of code. The caller's
// referredBy and the referrer's counters change in one transaction.
func (s *Service) RegisterReferral(ctx context.Context, code string) error {
	started := time.Now()
	uid, err := s.identity.UID(ctx)
	if err != nil {
		s.record(OpRegisterReferral, "", OutcomeUnauthenticated, decimal.Zero, decimal.Zero, started)
		return err
	}

	referrer, err := s.findReferrer(ctx, ledger.NormalizeReferralCode(code))
	if err != nil {
		return err
	}
	if referrer.UID == uid {
		return ErrSelfReferral
	}

	err = s.store.UpdateMany(ctx, []string{uid, referrer.UID}, func(ledgers []*ledger.Ledger) error {
		me, ref := ledgers[0], ledgers[1]
		if me.Profile.ReferredBy != "" {
			return ErrAlreadyReferred
		}
		me.Profile.ReferredBy = ref.Profile.ReferralCode
		ref.Referrals.AddReferral(me.UID)
		return nil
	})
	if err != nil {
		s.record(OpRegisterReferral, uid, OutcomeFailed, decimal.Zero, decimal.Zero, started)
		return err
	}
	s.record(OpRegisterReferral, uid, OutcomeApplied, decimal.Zero, decimal.Zero, started)
	return nil
}

func (s *Service) findReferrer(ctx context.Context, code string) (*ledger.Ledger, error) {
	if code == "" {
		return nil, ErrReferralCodeNotFound
	}
	referrer, err := s.store.FindByReferralCode(ctx, code)
	if err != nil {
		if errors.Is(err, ledger.ErrLedgerMissing) {
			return nil, ErrReferralCodeNotFound
		}
		return nil, fmt.Errorf("failed to resolve referral code: %w", err)
	}
	return referrer, nil
}
