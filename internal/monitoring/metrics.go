package monitoring

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Reward metrics
	RewardOperations  *prometheus.CounterVec
	RewardAmountTotal *prometheus.CounterVec
	RewardDuration    *prometheus.HistogramVec

	// Ledger store metrics
	LedgerConflicts *prometheus.CounterVec

	// Ad signal metrics
	AdSignalResults     *prometheus.CounterVec
	CircuitBreakerState *prometheus.GaugeVec

	// Abuse guards
	RateLimitHits      prometheus.Counter
	IdempotencyReplays *prometheus.CounterVec

	// Ledger statistics, refreshed by the worker
	LedgersTotal         prometheus.Gauge
	MiningSessionsActive prometheus.Gauge
	MiningSessionsCapped prometheus.Gauge
	MiningBalanceTotal   prometheus.Gauge

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge
}

var (
	metrics  *Metrics
	initOnce sync.Once
)

// Init initializes all Prometheus metrics
func Init() *Metrics {
	initOnce.Do(func() {
		metrics = newMetrics()
	})
	return metrics
}

func newMetrics() *Metrics {
	return &Metrics{
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed",
			},
		),

		RewardOperations: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reward_operations_total",
				Help: "Total number of reward operations by outcome",
			},
			[]string{"operation", "outcome"},
		),
		RewardAmountTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reward_amount_total",
				Help: "Total reward amount granted",
			},
			[]string{"operation"},
		),
		RewardDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "reward_operation_duration_seconds",
				Help:    "Reward operation duration in seconds, including store retries",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"operation"},
		),

		LedgerConflicts: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_transaction_conflicts_total",
				Help: "Ledger transaction attempts that hit a write conflict",
			},
			[]string{"operation"},
		),

		AdSignalResults: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ad_signal_results_total",
				Help: "Ad completion verifications by result",
			},
			[]string{"result"},
		),
		CircuitBreakerState: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 0.5=half-open)",
			},
			[]string{"name"},
		),

		RateLimitHits: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "rate_limit_hits_total",
				Help: "Total number of rate limit hits",
			},
		),
		IdempotencyReplays: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "idempotency_replays_total",
				Help: "Requests answered from a stored idempotent response",
			},
			[]string{"operation"},
		),

		LedgersTotal: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "ledgers_total",
				Help: "Number of reward ledgers",
			},
		),
		MiningSessionsActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "mining_sessions_active",
				Help: "Number of running mining sessions",
			},
		),
		MiningSessionsCapped: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "mining_sessions_capped",
				Help: "Running sessions older than the accrual cap",
			},
		),
		MiningBalanceTotal: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "mining_balance_total",
				Help: "Sum of claimed mining balances",
			},
		),

		DBConnectionsActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
	}
}

// Get returns the global metrics instance
func Get() *Metrics {
	return Init()
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// MetricsMiddleware is a Gin middleware for collecting HTTP metrics
func MetricsMiddleware() gin.HandlerFunc {
	m := Get()
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		method := c.Request.Method

		m.HTTPRequestsInFlight.Inc()
		defer m.HTTPRequestsInFlight.Dec()

		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		duration := time.Since(start).Seconds()

		m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
		m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// RecordReward records a finished reward operation
func RecordReward(operation, outcome string, amount float64, duration time.Duration) {
	m := Get()
	m.RewardOperations.WithLabelValues(operation, outcome).Inc()
	if amount > 0 {
		m.RewardAmountTotal.WithLabelValues(operation).Add(amount)
	}
	m.RewardDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordLedgerConflict records a conflicting transaction attempt
func RecordLedgerConflict(operation string) {
	Get().LedgerConflicts.WithLabelValues(operation).Inc()
}

// RecordAdSignal records an ad verification result
func RecordAdSignal(result string) {
	Get().AdSignalResults.WithLabelValues(result).Inc()
}

// SetCircuitBreakerState sets the circuit breaker state
// state: 0=closed, 1=open, 0.5=half-open
func SetCircuitBreakerState(name string, state float64) {
	Get().CircuitBreakerState.WithLabelValues(name).Set(state)
}

// RecordRateLimitHit records a rate limit hit
func RecordRateLimitHit() {
	Get().RateLimitHits.Inc()
}

// RecordIdempotencyReplay records a replayed response
func RecordIdempotencyReplay(operation string) {
	Get().IdempotencyReplays.WithLabelValues(operation).Inc()
}

// SetLedgerStats publishes aggregate ledger statistics
func SetLedgerStats(ledgers, running, capped int64, totalBalance float64) {
	m := Get()
	m.LedgersTotal.Set(float64(ledgers))
	m.MiningSessionsActive.Set(float64(running))
	m.MiningSessionsCapped.Set(float64(capped))
	m.MiningBalanceTotal.Set(totalBalance)
}

// SetDBConnections sets database connection metrics
func SetDBConnections(active, idle int) {
	Get().DBConnectionsActive.Set(float64(active))
	Get().DBConnectionsIdle.Set(float64(idle))
}
