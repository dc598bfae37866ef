package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// UpdateFunc mutates ledgers inside one transaction. Returning an error
// aborts without writing; returning ErrNoChange ends the transaction
// without writing and the update reports success.
type UpdateFunc func(ledgers []*Ledger) error

// Store is the transactional ledger boundary. Every mutation is an atomic,
// isolated read-modify-write of the addressed ledgers.
type Store interface {
	// Create inserts a new ledger. ErrLedgerExists if the uid is taken,
	// ErrReferralCodeTaken if the referral code is.
	Create(ctx context.Context, l *Ledger) error
	// CreateReferred inserts l and records it as a referral of referrerUID
	// in the same transaction. ErrLedgerMissing if the referrer is absent,
	// otherwise the errors of Create.
	CreateReferred(ctx context.Context, l *Ledger, referrerUID string) error
	// Get reads one ledger. ErrLedgerMissing if absent.
	Get(ctx context.Context, uid string) (*Ledger, error)
	// Update runs fn on one ledger. ErrLedgerMissing if absent.
	Update(ctx context.Context, uid string, fn func(l *Ledger) error) error
	// UpdateMany runs fn on several distinct ledgers in the order given.
	// ErrLedgerMissing if any is absent.
	UpdateMany(ctx context.Context, uids []string, fn UpdateFunc) error
	// FindByReferralCode resolves a referral code to its owner's ledger.
	FindByReferralCode(ctx context.Context, code string) (*Ledger, error)
	// Stats aggregates ledger counters as of now.
	Stats(ctx context.Context, now time.Time) (*Stats, error)
}

// Stats is an aggregate view used for monitoring
type Stats struct {
	Ledgers            int64           `json:"ledgers"`
	RunningSessions    int64           `json:"running_sessions"`
	SaturatedSessions  int64           `json:"saturated_sessions"`
	TotalMiningBalance decimal.Decimal `json:"total_mining_balance"`
}

// SaturationAge is the session age after which accrual stops growing
const SaturationAge = 24 * time.Hour

func single(fn func(l *Ledger) error) UpdateFunc {
	return func(ledgers []*Ledger) error {
		return fn(ledgers[0])
	}
}

func distinct(uids []string) bool {
	seen := make(map[string]struct{}, len(uids))
	for _, uid := range uids {
		if _, ok := seen[uid]; ok {
			return false
		}
		seen[uid] = struct{}{}
	}
	return true
}
