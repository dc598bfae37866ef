// Package ledger holds the per-user reward ledger: its typed model, the
// schema-validated document codec, and the transactional stores it lives in.
package ledger

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// MaxBoostsPerWindow is the number of boost grants allowed per boost window
const MaxBoostsPerWindow = 3

// ReferralCodeLength is the length of a generated referral code
const ReferralCodeLength = 6

// Ledger errors
var (
	ErrLedgerMissing       = errors.New("ledger not found")
	ErrLedgerExists        = errors.New("ledger already exists")
	ErrInvalidLedger       = errors.New("invalid ledger document")
	ErrReferralCodeTaken   = errors.New("referral code already in use")
	ErrTransactionConflict = errors.New("ledger transaction conflict")
	ErrNoChange            = errors.New("no change")
)

// Ledger is the persisted reward state of one user. The four reward
// sub-ledgers are independent state machines that share one record.
type Ledger struct {
	UID        string     `json:"uid"`
	Profile    Profile    `json:"profile"`
	Mining     Mining     `json:"mining"`
	Boost      Boost      `json:"boost"`
	DailyClaim DailyClaim `json:"dailyClaim"`
	WatchEarn  WatchEarn  `json:"watchEarn"`
	Referrals  Referrals  `json:"referrals"`
	Version    int64      `json:"version"`
}

// Profile is owned by profile setup; rewards only read the referral linkage
type Profile struct {
	Username     string    `json:"username"`
	AvatarURL    string    `json:"avatarUrl,omitempty"`
	ReferralCode string    `json:"referralCode"`
	ReferredBy   string    `json:"referredBy,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Boost tracks grants inside the current boost window
type Boost struct {
	UsedToday int             `json:"usedToday"`
	LastReset *time.Time      `json:"lastReset"`
	Balance   decimal.Decimal `json:"balance"`
}

// DailyClaim tracks the daily check-in streak
type DailyClaim struct {
	LastClaim   *time.Time      `json:"lastClaim"`
	Streak      int             `json:"streak"`
	TotalEarned decimal.Decimal `json:"totalEarned"`
}

// WatchEarn counts rewarded ad completions
type WatchEarn struct {
	TotalWatched int64           `json:"totalWatched"`
	TotalEarned  decimal.Decimal `json:"totalEarned"`
}

// Referrals tracks users who signed up with this user's code
type Referrals struct {
	TotalReferred int      `json:"totalReferred"`
	ReferredUsers []string `json:"referredUsers"`
}

// New creates a ledger with every sub-ledger at its default
func New(uid, username, referralCode string, now time.Time) *Ledger {
	return &Ledger{
		UID: uid,
		Profile: Profile{
			Username:     username,
			ReferralCode: referralCode,
			CreatedAt:    now,
		},
		Mining: Mining{state: Idle{}},
		// The original profile setup stamps lastReset at creation, which opens
		// the first boost window immediately.
		Boost:     Boost{LastReset: timePtr(now)},
		Referrals: Referrals{ReferredUsers: []string{}},
	}
}

// DefaultReferralCode derives a referral code from a uid
func DefaultReferralCode(uid string) string {
	code := uid
	if len(code) > ReferralCodeLength {
		code = code[:ReferralCodeLength]
	}
	return strings.ToUpper(code)
}

// NormalizeReferralCode canonicalizes user input before lookup
func NormalizeReferralCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// AddReferral records a referred user once
func (r *Referrals) AddReferral(uid string) bool {
	for _, u := range r.ReferredUsers {
		if u == uid {
			return false
		}
	}
	r.ReferredUsers = append(r.ReferredUsers, uid)
	r.TotalReferred++
	return true
}

// Validate checks the range invariants of every sub-ledger
func (l *Ledger) Validate() error {
	switch {
	case l.UID == "":
		return invalid("uid is empty")
	case l.Mining.Balance.IsNegative():
		return invalid("mining.balance is negative")
	case l.Boost.UsedToday < 0 || l.Boost.UsedToday > MaxBoostsPerWindow:
		return invalid("boost.usedToday out of range")
	case l.Boost.Balance.IsNegative():
		return invalid("boost.balance is negative")
	case l.DailyClaim.Streak < 0:
		return invalid("dailyClaim.streak is negative")
	case l.DailyClaim.TotalEarned.IsNegative():
		return invalid("dailyClaim.totalEarned is negative")
	case l.WatchEarn.TotalWatched < 0:
		return invalid("watchEarn.totalWatched is negative")
	case l.WatchEarn.TotalEarned.IsNegative():
		return invalid("watchEarn.totalEarned is negative")
	case l.Referrals.TotalReferred < 0:
		return invalid("referrals.totalReferred is negative")
	}
	return nil
}

func invalid(reason string) error {
	return &ValidationError{Reason: reason}
}

// ValidationError describes why a ledger document was rejected
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return ErrInvalidLedger.Error() + ": " + e.Reason
}

// Unwrap lets errors.Is match ErrInvalidLedger
func (e *ValidationError) Unwrap() error {
	return ErrInvalidLedger
}

func timePtr(t time.Time) *time.Time {
	return &t
}
