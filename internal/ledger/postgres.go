package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const ledgerColumns = `uid, username, COALESCE(avatar_url, ''), referral_code, COALESCE(referred_by, ''),
	created_at, mining, boost, daily_claim, watch_earn, referrals, version`

// PostgresStore keeps ledgers in the ledgers table. Each sub-ledger is a
// JSONB column; rows are locked with SELECT ... FOR UPDATE for the length
// of a transaction.
type PostgresStore struct {
	db    *pgxpool.Pool
	retry RetryConfig
}

// NewPostgresStore creates a store over an existing pool
func NewPostgresStore(db *pgxpool.Pool, retryCfg RetryConfig) *PostgresStore {
	return &PostgresStore{
		db:    db,
		retry: retryCfg,
	}
}

// execer is satisfied by both the pool and a transaction
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Create inserts a new ledger
func (s *PostgresStore) Create(ctx context.Context, l *Ledger) error {
	if err := l.Validate(); err != nil {
		return err
	}
	doc, err := Encode(l)
	if err != nil {
		return err
	}
	return insertLedger(ctx, s.db, doc)
}

// CreateReferred inserts l and updates the referrer's counters in one
// transaction. The referrer row is locked before the insert.
func (s *PostgresStore) CreateReferred(ctx context.Context, l *Ledger, referrerUID string) error {
	if referrerUID == l.UID {
		return ErrLedgerMissing
	}
	if err := l.Validate(); err != nil {
		return err
	}
	doc, err := Encode(l)
	if err != nil {
		return err
	}

	return withConflictRetry(ctx, s.retry, "create_referred", func(ctx context.Context) error {
		tx, err := s.db.Begin(ctx)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer tx.Rollback(ctx)

		row := tx.QueryRow(ctx, `SELECT `+ledgerColumns+` FROM ledgers WHERE uid = $1 FOR UPDATE`, referrerUID)
		refDoc, err := scanDocument(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrLedgerMissing
			}
			return fmt.Errorf("failed to lock referrer: %w", err)
		}
		referrer, err := Decode(refDoc)
		if err != nil {
			return err
		}

		if err := insertLedger(ctx, tx, doc); err != nil {
			return err
		}

		referrer.Referrals.AddReferral(l.UID)
		if err := writeLedger(ctx, tx, referrer); err != nil {
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("failed to commit ledger transaction: %w", err)
		}
		return nil
	})
}

func insertLedger(ctx context.Context, db execer, doc Document) error {
	result, err := db.Exec(ctx, `
		INSERT INTO ledgers (uid, username, avatar_url, referral_code, referred_by, created_at,
			mining, boost, daily_claim, watch_earn, referrals, version)
		VALUES ($1, $2, NULLIF($3, ''), $4, NULLIF($5, ''), $6, $7, $8, $9, $10, $11, 1)
		ON CONFLICT (uid) DO NOTHING
	`, doc.UID, doc.Username, doc.AvatarURL, doc.ReferralCode, doc.ReferredBy, doc.CreatedAt,
		[]byte(doc.Mining), []byte(doc.Boost), []byte(doc.DailyClaim), []byte(doc.WatchEarn), []byte(doc.Referrals))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == sqlStateUniqueViolation {
			return ErrReferralCodeTaken
		}
		return fmt.Errorf("failed to create ledger: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrLedgerExists
	}
	return nil
}

// writeLedger validates l and writes it back, bumping its version
func writeLedger(ctx context.Context, db execer, l *Ledger) error {
	if err := l.Validate(); err != nil {
		return err
	}
	doc, err := Encode(l)
	if err != nil {
		return err
	}
	_, err = db.Exec(ctx, `
		UPDATE ledgers
		SET username = $2, avatar_url = NULLIF($3, ''), referred_by = NULLIF($4, ''),
			mining = $5, boost = $6, daily_claim = $7, watch_earn = $8, referrals = $9,
			version = version + 1, updated_at = NOW()
		WHERE uid = $1
	`, doc.UID, doc.Username, doc.AvatarURL, doc.ReferredBy,
		[]byte(doc.Mining), []byte(doc.Boost), []byte(doc.DailyClaim), []byte(doc.WatchEarn), []byte(doc.Referrals))
	if err != nil {
		return fmt.Errorf("failed to write ledger: %w", err)
	}
	return nil
}

// Get reads one ledger
func (s *PostgresStore) Get(ctx context.Context, uid string) (*Ledger, error) {
	row := s.db.QueryRow(ctx, `SELECT `+ledgerColumns+` FROM ledgers WHERE uid = $1`, uid)
	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLedgerMissing
		}
		return nil, fmt.Errorf("failed to get ledger: %w", err)
	}
	return Decode(doc)
}

// Update runs fn on one ledger
func (s *PostgresStore) Update(ctx context.Context, uid string, fn func(l *Ledger) error) error {
	return s.UpdateMany(ctx, []string{uid}, single(fn))
}

// UpdateMany locks the rows in uid order, runs fn and writes the result.
// Serialization failures and deadlocks are retried with backoff.
func (s *PostgresStore) UpdateMany(ctx context.Context, uids []string, fn UpdateFunc) error {
	if len(uids) == 0 || !distinct(uids) {
		return fmt.Errorf("update requires distinct uids, got %v", uids)
	}
	return withConflictRetry(ctx, s.retry, "update", func(ctx context.Context) error {
		return s.updateOnce(ctx, uids, fn)
	})
}

func (s *PostgresStore) updateOnce(ctx context.Context, uids []string, fn UpdateFunc) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Lock in a stable order so two multi-row transactions cannot deadlock.
	rows, err := tx.Query(ctx, `
		SELECT `+ledgerColumns+` FROM ledgers WHERE uid = ANY($1) ORDER BY uid FOR UPDATE
	`, uids)
	if err != nil {
		return fmt.Errorf("failed to lock ledgers: %w", err)
	}
	byUID := make(map[string]*Ledger, len(uids))
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan ledger: %w", err)
		}
		l, err := Decode(doc)
		if err != nil {
			rows.Close()
			return err
		}
		byUID[l.UID] = l
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read ledgers: %w", err)
	}

	ledgers := make([]*Ledger, 0, len(uids))
	for _, uid := range uids {
		l, ok := byUID[uid]
		if !ok {
			return ErrLedgerMissing
		}
		ledgers = append(ledgers, l)
	}

	if err := fn(ledgers); err != nil {
		if errors.Is(err, ErrNoChange) {
			return nil
		}
		return err
	}

	for _, l := range ledgers {
		if err := writeLedger(ctx, tx, l); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit ledger transaction: %w", err)
	}
	return nil
}

// FindByReferralCode resolves a referral code
func (s *PostgresStore) FindByReferralCode(ctx context.Context, code string) (*Ledger, error) {
	row := s.db.QueryRow(ctx, `SELECT `+ledgerColumns+` FROM ledgers WHERE referral_code = $1`, code)
	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLedgerMissing
		}
		return nil, fmt.Errorf("failed to find referral code: %w", err)
	}
	return Decode(doc)
}

// Stats aggregates counters over all ledgers
func (s *PostgresStore) Stats(ctx context.Context, now time.Time) (*Stats, error) {
	var stats Stats
	var total string
	err := s.db.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE mining->>'state' = 'running'),
			COUNT(*) FILTER (WHERE mining->>'state' = 'running'
				AND (mining->>'sessionStart')::timestamptz <= $1),
			COALESCE(SUM((mining->>'balance')::numeric), 0)::text
		FROM ledgers
	`, now.Add(-SaturationAge)).Scan(&stats.Ledgers, &stats.RunningSessions, &stats.SaturatedSessions, &total)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate ledger stats: %w", err)
	}

	stats.TotalMiningBalance, err = decimal.NewFromString(total)
	if err != nil {
		return nil, fmt.Errorf("failed to parse total balance: %w", err)
	}
	return &stats, nil
}

func scanDocument(row pgx.Row) (Document, error) {
	var doc Document
	var mining, boost, daily, watch, referrals []byte
	err := row.Scan(
		&doc.UID, &doc.Username, &doc.AvatarURL, &doc.ReferralCode, &doc.ReferredBy,
		&doc.CreatedAt, &mining, &boost, &daily, &watch, &referrals, &doc.Version,
	)
	if err != nil {
		return Document{}, err
	}
	doc.Mining = mining
	doc.Boost = boost
	doc.DailyClaim = daily
	doc.WatchEarn = watch
	doc.Referrals = referrals
	doc.CreatedAt = doc.CreatedAt.UTC()
	return doc, nil
}
