// Package jobs runs the periodic background work of the worker binary:
// aggregating ledger statistics and sampling connection pool usage into
// Prometheus gauges.
package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aimerfeng/minerewards/internal/clock"
	"github.com/aimerfeng/minerewards/internal/config"
	"github.com/aimerfeng/minerewards/internal/database"
	"github.com/aimerfeng/minerewards/internal/ledger"
	"github.com/aimerfeng/minerewards/internal/monitoring"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Job names
const (
	JobLedgerStats = "ledger_stats"
	JobPoolStats   = "pool_stats"
)

// PoolStatter reports connection pool usage
type PoolStatter interface {
	Stats() database.PoolStats
}

// Scheduler runs background jobs on cron schedules
type Scheduler struct {
	cron    *cron.Cron
	store   ledger.Store
	pool    PoolStatter
	clock   clock.Clock
	config  *config.WorkerConfig
	timeout time.Duration

	mu         sync.Mutex
	running    bool
	ctx        context.Context
	cancel     context.CancelFunc
	lastRun    map[string]time.Time
	lastErr    map[string]string
	lastStats  *ledger.Stats
	entryNames map[cron.EntryID]string
}

// NewScheduler creates a scheduler. pool may be nil when no database is in
// use, in which case the pool job is not registered.
func NewScheduler(store ledger.Store, pool PoolStatter, clk clock.Clock, cfg *config.WorkerConfig) (*Scheduler, error) {
	if clk == nil {
		clk = clock.System{}
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		log.Warn().Err(err).Str("timezone", cfg.Timezone).Msg("Unknown timezone, using UTC")
		loc = time.UTC
	}

	s := &Scheduler{
		cron:       cron.New(cron.WithLocation(loc)),
		store:      store,
		pool:       pool,
		clock:      clk,
		config:     cfg,
		timeout:    30 * time.Second,
		lastRun:    make(map[string]time.Time),
		lastErr:    make(map[string]string),
		entryNames: make(map[cron.EntryID]string),
	}
	if err := s.register(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) register() error {
	id, err := s.cron.AddFunc(s.config.StatsSchedule, func() { s.runJob(JobLedgerStats) })
	if err != nil {
		return fmt.Errorf("invalid stats schedule %q: %w", s.config.StatsSchedule, err)
	}
	s.entryNames[id] = JobLedgerStats

	if s.pool == nil {
		return nil
	}
	id, err = s.cron.AddFunc(s.config.PoolStatsSchedule, func() { s.runJob(JobPoolStats) })
	if err != nil {
		return fmt.Errorf("invalid pool stats schedule %q: %w", s.config.PoolStatsSchedule, err)
	}
	s.entryNames[id] = JobPoolStats
	return nil
}

// Start begins running scheduled jobs. Jobs run with contexts derived from
// ctx.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("scheduler already running")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true
	s.cron.Start()

	log.Info().Int("jobs", len(s.entryNames)).Str("timezone", s.cron.Location().String()).Msg("Job scheduler started")
	return nil
}

// Stop halts scheduling and waits for running jobs to finish
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	cancel()
	log.Info().Msg("Job scheduler stopped")
}

// IsRunning returns whether the scheduler is running
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// RunNow runs one job immediately
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	var err error
	switch name {
	case JobLedgerStats:
		err = s.collectLedgerStats(ctx)
	case JobPoolStats:
		if s.pool == nil {
			return fmt.Errorf("job %q is not configured", name)
		}
		s.collectPoolStats()
	default:
		return fmt.Errorf("unknown job %q", name)
	}
	s.finish(name, err)
	return err
}

// LastStats returns the ledger statistics from the most recent run
func (s *Scheduler) LastStats() *ledger.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastStats
}

func (s *Scheduler) runJob(name string) {
	s.mu.Lock()
	base := s.ctx
	s.mu.Unlock()
	if base == nil {
		base = context.Background()
	}
	ctx, cancel := context.WithTimeout(base, s.timeout)
	defer cancel()
	if err := s.RunNow(ctx, name); err != nil {
		log.Error().Err(err).Str("job", name).Msg("Scheduled job failed")
	}
}

func (s *Scheduler) finish(name string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRun[name] = s.clock.Now()
	if err != nil {
		s.lastErr[name] = err.Error()
	} else {
		delete(s.lastErr, name)
	}
}

func (s *Scheduler) collectLedgerStats(ctx context.Context) error {
	stats, err := s.store.Stats(ctx, s.clock.Now())
	if err != nil {
		return fmt.Errorf("failed to aggregate ledger stats: %w", err)
	}
	total, _ := stats.TotalMiningBalance.Float64()
	monitoring.SetLedgerStats(stats.Ledgers, stats.RunningSessions, stats.SaturatedSessions, total)

	s.mu.Lock()
	s.lastStats = stats
	s.mu.Unlock()

	log.Debug().
		Int64("ledgers", stats.Ledgers).
		Int64("running", stats.RunningSessions).
		Int64("saturated", stats.SaturatedSessions).
		Str("total_mining_balance", stats.TotalMiningBalance.String()).
		Msg("Ledger stats collected")
	return nil
}

func (s *Scheduler) collectPoolStats() {
	ps := s.pool.Stats()
	monitoring.SetDBConnections(ps.Acquired, ps.Idle)
}

// JobStatus describes one scheduled job
type JobStatus struct {
	Name      string     `json:"name"`
	NextRun   time.Time  `json:"next_run"`
	LastRun   *time.Time `json:"last_run,omitempty"`
	LastError string     `json:"last_error,omitempty"`
}

// SchedulerStatus represents the current status of the scheduler
type SchedulerStatus struct {
	Running bool        `json:"running"`
	Jobs    []JobStatus `json:"jobs"`
}

// GetStatus returns the current status of the scheduler
func (s *Scheduler) GetStatus() *SchedulerStatus {
	entries := s.cron.Entries()

	s.mu.Lock()
	defer s.mu.Unlock()

	status := &SchedulerStatus{Running: s.running}
	for _, e := range entries {
		name := s.entryNames[e.ID]
		js := JobStatus{Name: name, NextRun: e.Next, LastError: s.lastErr[name]}
		if t, ok := s.lastRun[name]; ok {
			js.LastRun = &t
		}
		status.Jobs = append(status.Jobs, js)
	}
	return status
}
