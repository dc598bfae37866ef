package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seeded(t *testing.T, uids ...string) *MemoryStore {
	t.Helper()
	s := NewMemoryStore()
	for _, uid := range uids {
		require.NoError(t, s.Create(context.Background(), New(uid, uid, DefaultReferralCode(uid), t0)))
	}
	return s
}

func TestMemoryStore_Create(t *testing.T) {
	ctx := context.Background()
	s := seeded(t, "alpha-1")

	assert.ErrorIs(t, s.Create(ctx, New("alpha-1", "", "OTHER1", t0)), ErrLedgerExists)
	assert.ErrorIs(t, s.Create(ctx, New("alpha-2", "", "ALPHA-", t0)), ErrReferralCodeTaken)
	assert.ErrorIs(t, s.Create(ctx, New("", "", "EMPTY1", t0)), ErrInvalidLedger)

	l, err := s.FindByReferralCode(ctx, "ALPHA-")
	require.NoError(t, err)
	assert.Equal(t, "alpha-1", l.UID)
	assert.Equal(t, int64(1), l.Version)

	_, err = s.FindByReferralCode(ctx, "NOPE00")
	assert.ErrorIs(t, err, ErrLedgerMissing)
}

func TestMemoryStore_CreateReferred(t *testing.T) {
	ctx := context.Background()
	s := seeded(t, "alpha-1", "bravo-2")

	assertUntouched := func() {
		t.Helper()
		_, err := s.Get(ctx, "carol-3")
		assert.ErrorIs(t, err, ErrLedgerMissing)
		referrer, err := s.Get(ctx, "alpha-1")
		require.NoError(t, err)
		assert.Equal(t, 0, referrer.Referrals.TotalReferred)
		assert.Equal(t, int64(1), referrer.Version)
	}

	assert.ErrorIs(t, s.CreateReferred(ctx, New("carol-3", "", "CAROL-", t0), "missing-9"), ErrLedgerMissing)
	assertUntouched()
	assert.ErrorIs(t, s.CreateReferred(ctx, New("carol-3", "", "BRAVO-", t0), "alpha-1"), ErrReferralCodeTaken)
	assertUntouched()
	assert.ErrorIs(t, s.CreateReferred(ctx, New("bravo-2", "", "OTHER9", t0), "alpha-1"), ErrLedgerExists)
	assertUntouched()
	assert.ErrorIs(t, s.CreateReferred(ctx, New("carol-3", "", "CAROL-", t0), "carol-3"), ErrLedgerMissing)
	assertUntouched()

	carol := New("carol-3", "carol", "CAROL-", t0)
	carol.Profile.ReferredBy = "ALPHA-"
	require.NoError(t, s.CreateReferred(ctx, carol, "alpha-1"))

	got, err := s.Get(ctx, "carol-3")
	require.NoError(t, err)
	assert.Equal(t, "ALPHA-", got.Profile.ReferredBy)
	assert.Equal(t, int64(1), got.Version)

	referrer, err := s.Get(ctx, "alpha-1")
	require.NoError(t, err)
	assert.Equal(t, 1, referrer.Referrals.TotalReferred)
	assert.Equal(t, []string{"carol-3"}, referrer.Referrals.ReferredUsers)
	assert.Equal(t, int64(2), referrer.Version)
}

func TestMemoryStore_UpdateCommits(t *testing.T) {
	ctx := context.Background()
	s := seeded(t, "alpha-1")

	require.NoError(t, s.Update(ctx, "alpha-1", func(l *Ledger) error {
		l.Mining.Credit(decimal.NewFromInt(2))
		return nil
	}))

	l, err := s.Get(ctx, "alpha-1")
	require.NoError(t, err)
	assert.Equal(t, "2", l.Mining.Balance.String())
	assert.Equal(t, int64(2), l.Version)
}

func TestMemoryStore_NoChangeSkipsWrite(t *testing.T) {
	ctx := context.Background()
	s := seeded(t, "alpha-1")

	err := s.Update(ctx, "alpha-1", func(l *Ledger) error {
		l.Mining.Credit(decimal.NewFromInt(5))
		return ErrNoChange
	})
	require.NoError(t, err)

	l, err := s.Get(ctx, "alpha-1")
	require.NoError(t, err)
	assert.True(t, l.Mining.Balance.IsZero())
	assert.Equal(t, int64(1), l.Version)
}

func TestMemoryStore_ErrorRollsBack(t *testing.T) {
	ctx := context.Background()
	s := seeded(t, "alpha-1")
	boom := errors.New("boom")

	err := s.Update(ctx, "alpha-1", func(l *Ledger) error {
		l.WatchEarn.TotalWatched = 10
		return boom
	})
	assert.ErrorIs(t, err, boom)

	err = s.Update(ctx, "alpha-1", func(l *Ledger) error {
		l.WatchEarn.TotalWatched = 10
		l.Boost.UsedToday = MaxBoostsPerWindow + 1
		return nil
	})
	assert.ErrorIs(t, err, ErrInvalidLedger)

	l, err := s.Get(ctx, "alpha-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), l.WatchEarn.TotalWatched)
}

func TestMemoryStore_UpdateMany(t *testing.T) {
	ctx := context.Background()
	s := seeded(t, "alpha-1", "bravo-2")

	assert.Error(t, s.UpdateMany(ctx, []string{"alpha-1", "alpha-1"}, func([]*Ledger) error { return nil }))
	assert.Error(t, s.UpdateMany(ctx, nil, func([]*Ledger) error { return nil }))

	err := s.UpdateMany(ctx, []string{"alpha-1", "missing"}, func(ls []*Ledger) error {
		t.Fatal("fn must not run when a ledger is missing")
		return nil
	})
	assert.ErrorIs(t, err, ErrLedgerMissing)

	// A failure after mutating both leaves both untouched
	err = s.UpdateMany(ctx, []string{"bravo-2", "alpha-1"}, func(ls []*Ledger) error {
		ls[0].Profile.ReferredBy = ls[1].Profile.ReferralCode
		ls[1].Referrals.AddReferral(ls[0].UID)
		return errors.New("abort")
	})
	require.Error(t, err)
	a, _ := s.Get(ctx, "alpha-1")
	b, _ := s.Get(ctx, "bravo-2")
	assert.Equal(t, 0, a.Referrals.TotalReferred)
	assert.Empty(t, b.Profile.ReferredBy)

	// Ledgers arrive in the order requested
	require.NoError(t, s.UpdateMany(ctx, []string{"bravo-2", "alpha-1"}, func(ls []*Ledger) error {
		require.Equal(t, "bravo-2", ls[0].UID)
		ls[0].Profile.ReferredBy = ls[1].Profile.ReferralCode
		ls[1].Referrals.AddReferral(ls[0].UID)
		return nil
	}))
	a, _ = s.Get(ctx, "alpha-1")
	b, _ = s.Get(ctx, "bravo-2")
	assert.Equal(t, []string{"bravo-2"}, a.Referrals.ReferredUsers)
	assert.Equal(t, "ALPHA-", b.Profile.ReferredBy)
}

func TestMemoryStore_ConcurrentUpdatesSerialize(t *testing.T) {
	ctx := context.Background()
	s := seeded(t, "alpha-1")

	const workers = 50
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Update(ctx, "alpha-1", func(l *Ledger) error {
				l.WatchEarn.TotalWatched++
				return nil
			})
		}()
	}
	wg.Wait()

	l, err := s.Get(ctx, "alpha-1")
	require.NoError(t, err)
	assert.Equal(t, int64(workers), l.WatchEarn.TotalWatched)
	assert.Equal(t, int64(workers+1), l.Version)
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	s := seeded(t, "alpha-1")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Update(ctx, "alpha-1", func(*Ledger) error { return nil }), context.Canceled)
}

func TestMemoryStore_PutLegacyDocument(t *testing.T) {
	s := NewMemoryStore()
	s.Put(Document{
		UID:          "legacy-1",
		ReferralCode: "LEGACY",
		Mining:       json.RawMessage(`{"miningActive":true,"lastStart":"2026-03-01T08:00:00Z","balance":1}`),
	})

	stats, err := s.Stats(context.Background(), t0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Ledgers)
	assert.Equal(t, int64(1), stats.RunningSessions)
	assert.Equal(t, int64(0), stats.SaturatedSessions)
	assert.Equal(t, "1", stats.TotalMiningBalance.String())
}
