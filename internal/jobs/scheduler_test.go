package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/aimerfeng/minerewards/internal/clock"
	"github.com/aimerfeng/minerewards/internal/config"
	"github.com/aimerfeng/minerewards/internal/database"
	"github.com/aimerfeng/minerewards/internal/ledger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePool struct {
	calls int
}

func (p *fakePool) Stats() database.PoolStats {
	p.calls++
	return database.PoolStats{Acquired: 3, Idle: 2, Total: 5}
}

func testConfig() *config.WorkerConfig {
	return &config.WorkerConfig{
		StatsSchedule:     "@every 1h",
		PoolStatsSchedule: "@every 1h",
		Timezone:          "UTC",
	}
}

func seedStore(t *testing.T, now time.Time) *ledger.MemoryStore {
	t.Helper()
	ctx := context.Background()
	store := ledger.NewMemoryStore()

	idle := ledger.New("idle-user", "idle", "IDLE01", now)
	idle.Mining.Credit(decimal.RequireFromString("1.5"))
	require.NoError(t, store.Create(ctx, idle))

	fresh := ledger.New("fresh-user", "fresh", "FRESH1", now)
	fresh.Mining.Start(now.Add(-time.Hour))
	require.NoError(t, store.Create(ctx, fresh))

	saturated := ledger.New("sat-user", "sat", "SAT001", now)
	saturated.Mining.Start(now.Add(-25 * time.Hour))
	saturated.Mining.Credit(decimal.RequireFromString("0.25"))
	require.NoError(t, store.Create(ctx, saturated))

	return store
}

func TestNewScheduler_RejectsBadSchedule(t *testing.T) {
	cfg := testConfig()
	cfg.StatsSchedule = "not a schedule"
	_, err := NewScheduler(ledger.NewMemoryStore(), nil, nil, cfg)
	assert.Error(t, err)
}

func TestNewScheduler_UnknownTimezoneFallsBackToUTC(t *testing.T) {
	cfg := testConfig()
	cfg.Timezone = "Mars/Olympus_Mons"
	s, err := NewScheduler(ledger.NewMemoryStore(), nil, nil, cfg)
	require.NoError(t, err)
	assert.Equal(t, time.UTC, s.cron.Location())
}

func TestRunNow_LedgerStats(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	store := seedStore(t, now)
	s, err := NewScheduler(store, nil, clock.NewManual(now), testConfig())
	require.NoError(t, err)

	require.NoError(t, s.RunNow(context.Background(), JobLedgerStats))

	stats := s.LastStats()
	require.NotNil(t, stats)
	assert.Equal(t, int64(3), stats.Ledgers)
	assert.Equal(t, int64(2), stats.RunningSessions)
	assert.Equal(t, int64(1), stats.SaturatedSessions)
	assert.True(t, stats.TotalMiningBalance.Equal(decimal.RequireFromString("1.75")))
}

func TestRunNow_PoolStats(t *testing.T) {
	pool := &fakePool{}
	s, err := NewScheduler(ledger.NewMemoryStore(), pool, nil, testConfig())
	require.NoError(t, err)

	require.NoError(t, s.RunNow(context.Background(), JobPoolStats))
	assert.Equal(t, 1, pool.calls)
}

func TestRunNow_Errors(t *testing.T) {
	s, err := NewScheduler(ledger.NewMemoryStore(), nil, nil, testConfig())
	require.NoError(t, err)

	assert.Error(t, s.RunNow(context.Background(), "unknown"))
	assert.Error(t, s.RunNow(context.Background(), JobPoolStats), "pool job is not configured without a pool")
}

func TestScheduler_StartStop(t *testing.T) {
	s, err := NewScheduler(ledger.NewMemoryStore(), &fakePool{}, nil, testConfig())
	require.NoError(t, err)

	assert.False(t, s.IsRunning())
	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.IsRunning())
	assert.Error(t, s.Start(context.Background()))

	s.Stop()
	assert.False(t, s.IsRunning())
	s.Stop()
}

func TestGetStatus(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s, err := NewScheduler(ledger.NewMemoryStore(), &fakePool{}, clock.NewManual(now), testConfig())
	require.NoError(t, err)
	require.NoError(t, s.RunNow(context.Background(), JobLedgerStats))

	status := s.GetStatus()
	assert.False(t, status.Running)
	require.Len(t, status.Jobs, 2)

	byName := map[string]JobStatus{}
	for _, j := range status.Jobs {
		byName[j.Name] = j
	}
	require.Contains(t, byName, JobLedgerStats)
	require.NotNil(t, byName[JobLedgerStats].LastRun)
	assert.Equal(t, now, *byName[JobLedgerStats].LastRun)
	assert.Nil(t, byName[JobPoolStats].LastRun)
}
