package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// MemoryStore keeps encoded ledgers in process. One mutex serializes every
// transaction, and mutations are applied to decoded copies so an aborted
// transaction leaves nothing behind.
type MemoryStore struct {
	mu     sync.Mutex
	docs   map[string]Document
	byCode map[string]string
}

// NewMemoryStore creates an empty in-process store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:   make(map[string]Document),
		byCode: make(map[string]string),
	}
}

// Create inserts a new ledger
func (s *MemoryStore) Create(ctx context.Context, l *Ledger) error {
	if err := l.Validate(); err != nil {
		return err
	}
	doc, err := Encode(l)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.docs[l.UID]; ok {
		return ErrLedgerExists
	}
	if _, ok := s.byCode[l.Profile.ReferralCode]; ok {
		return ErrReferralCodeTaken
	}
	doc.Version = 1
	s.docs[l.UID] = doc
	s.byCode[l.Profile.ReferralCode] = l.UID
	return nil
}

// CreateReferred inserts l and updates its referrer atomically
func (s *MemoryStore) CreateReferred(ctx context.Context, l *Ledger, referrerUID string) error {
	if err := l.Validate(); err != nil {
		return err
	}
	doc, err := Encode(l)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	refDoc, ok := s.docs[referrerUID]
	if !ok || referrerUID == l.UID {
		return ErrLedgerMissing
	}
	if _, ok := s.docs[l.UID]; ok {
		return ErrLedgerExists
	}
	if _, ok := s.byCode[l.Profile.ReferralCode]; ok {
		return ErrReferralCodeTaken
	}

	referrer, err := Decode(refDoc)
	if err != nil {
		return err
	}
	referrer.Referrals.AddReferral(l.UID)
	if err := referrer.Validate(); err != nil {
		return err
	}
	encodedRef, err := Encode(referrer)
	if err != nil {
		return err
	}
	encodedRef.Version = refDoc.Version + 1

	doc.Version = 1
	s.docs[l.UID] = doc
	s.byCode[l.Profile.ReferralCode] = l.UID
	s.docs[referrerUID] = encodedRef
	return nil
}

// Get reads one ledger
func (s *MemoryStore) Get(ctx context.Context, uid string) (*Ledger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[uid]
	if !ok {
		return nil, ErrLedgerMissing
	}
	return Decode(doc)
}

// Update runs fn on one ledger
func (s *MemoryStore) Update(ctx context.Context, uid string, fn func(l *Ledger) error) error {
	return s.UpdateMany(ctx, []string{uid}, single(fn))
}

// UpdateMany runs fn on several ledgers atomically
func (s *MemoryStore) UpdateMany(ctx context.Context, uids []string, fn UpdateFunc) error {
	if len(uids) == 0 || !distinct(uids) {
		return fmt.Errorf("update requires distinct uids, got %v", uids)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ledgers := make([]*Ledger, 0, len(uids))
	for _, uid := range uids {
		doc, ok := s.docs[uid]
		if !ok {
			return ErrLedgerMissing
		}
		l, err := Decode(doc)
		if err != nil {
			return err
		}
		ledgers = append(ledgers, l)
	}

	if err := fn(ledgers); err != nil {
		if errors.Is(err, ErrNoChange) {
			return nil
		}
		return err
	}

	encoded := make([]Document, 0, len(ledgers))
	for _, l := range ledgers {
		if err := l.Validate(); err != nil {
			return err
		}
		doc, err := Encode(l)
		if err != nil {
			return err
		}
		doc.Version = s.docs[l.UID].Version + 1
		encoded = append(encoded, doc)
	}
	for _, doc := range encoded {
		s.docs[doc.UID] = doc
	}
	return nil
}

// FindByReferralCode resolves a referral code
func (s *MemoryStore) FindByReferralCode(ctx context.Context, code string) (*Ledger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	uid, ok := s.byCode[code]
	if !ok {
		return nil, ErrLedgerMissing
	}
	return Decode(s.docs[uid])
}

// Stats aggregates counters over all ledgers
func (s *MemoryStore) Stats(ctx context.Context, now time.Time) (*Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := &Stats{TotalMiningBalance: decimal.Zero}
	for _, doc := range s.docs {
		l, err := Decode(doc)
		if err != nil {
			return nil, err
		}
		stats.Ledgers++
		stats.TotalMiningBalance = stats.TotalMiningBalance.Add(l.Mining.Balance)
		if start, ok := l.Mining.SessionStart(); ok {
			stats.RunningSessions++
			if !start.After(now.Add(-SaturationAge)) {
				stats.SaturatedSessions++
			}
		}
	}
	return stats, nil
}

// Put stores a raw document as-is, bypassing validation. It exists to seed
// legacy or partial documents.
func (s *MemoryStore) Put(doc Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[doc.UID] = doc
	if doc.ReferralCode != "" {
		s.byCode[doc.ReferralCode] = doc.UID
	}
}
