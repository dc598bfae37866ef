package server

import (
	"context"
	"net/http"
	"time"

	"github.com/aimerfeng/minerewards/internal/adsignal"
	"github.com/aimerfeng/minerewards/internal/cache"
	"github.com/aimerfeng/minerewards/internal/clock"
	"github.com/aimerfeng/minerewards/internal/config"
	"github.com/aimerfeng/minerewards/internal/identity"
	"github.com/aimerfeng/minerewards/internal/idempotency"
	"github.com/aimerfeng/minerewards/internal/ledger"
	"github.com/aimerfeng/minerewards/internal/logging"
	"github.com/aimerfeng/minerewards/internal/middleware"
	"github.com/aimerfeng/minerewards/internal/monitoring"
	"github.com/aimerfeng/minerewards/internal/ratelimit"
	"github.com/aimerfeng/minerewards/internal/rewards"
	"github.com/gin-gonic/gin"
)

// HealthChecker is a dependency reported by /health
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Deps are the collaborators of the API server. Redis and DB are optional.
type Deps struct {
	Store    ledger.Store
	Verifier adsignal.Verifier
	Clock    clock.Clock
	Redis    *cache.Redis
	DB       HealthChecker
}

// APIServer represents the rewards API server
type APIServer struct {
	config        *config.Config
	router        *gin.Engine
	service       *rewards.Service
	verifier      adsignal.Verifier
	authenticator *middleware.Authenticator
	limiter       *ratelimit.Limiter
	guard         *idempotency.Guard
	checks        map[string]HealthChecker
}

// NewAPIServer creates a new API server instance
func NewAPIServer(cfg *config.Config, deps Deps) *APIServer {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.CORS(cfg.CORS.AllowedOrigins))
	router.Use(monitoring.MetricsMiddleware())
	router.Use(logging.RequestLogger())

	verifier := deps.Verifier
	if verifier == nil {
		verifier = adsignal.New(&cfg.AdSignal)
	}

	srv := &APIServer{
		config:        cfg,
		router:        router,
		service:       rewards.NewService(deps.Store, identity.ContextResolver{}, deps.Clock),
		verifier:      verifier,
		authenticator: middleware.NewAuthenticator(identity.NewIssuer(&cfg.JWT)),
		checks:        make(map[string]HealthChecker),
	}

	if deps.DB != nil {
		srv.checks["database"] = deps.DB
	}
	if deps.Redis != nil {
		srv.checks["redis"] = deps.Redis
		if cfg.RateLimit.Enabled {
			srv.limiter = ratelimit.New(deps.Redis, &cfg.RateLimit)
		}
		if cfg.Idempotency.Enabled {
			srv.guard = idempotency.NewGuard(deps.Redis, cfg.Idempotency.TTL)
		}
	}

	srv.setupRoutes()
	return srv
}

// Router returns the gin router
func (s *APIServer) Router() http.Handler {
	return s.router
}

// setupRoutes configures all API routes
func (s *APIServer) setupRoutes() {
	s.router.GET("/health", s.healthCheck)

	v1 := s.router.Group("/api/v1")
	v1.Use(s.authenticator.Auth())
	if s.limiter != nil {
		v1.Use(s.limiter.Middleware())
	}
	{
		v1.POST("/ledger", s.handleCreateLedger)
		v1.GET("/ledger", s.handleStatus)
		v1.POST("/referrals", s.handleRegisterReferral)
		v1.POST("/live-balance", s.handleLiveBalance)

		mining := v1.Group("/mining")
		{
			mining.POST("/start", s.idempotent(rewards.OpStartMining), s.handleStartMining)
			mining.POST("/stop", s.idempotent(rewards.OpStopMining), s.handleStopMining)
			mining.POST("/claim", s.idempotent(rewards.OpClaimMining), s.handleClaimMining)
		}

		v1.POST("/boost/claim", s.idempotent(rewards.OpClaimBoost), s.handleClaimBoost)
		v1.POST("/daily/claim", s.idempotent(rewards.OpClaimDaily), s.handleClaimDaily)
		v1.POST("/watch/claim", s.idempotent(rewards.OpClaimWatchEarn), s.handleClaimWatchEarn)
	}
}

// idempotent guards op with the Idempotency-Key middleware when Redis is
// configured
func (s *APIServer) idempotent(op string) gin.HandlerFunc {
	if s.guard == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return s.guard.Middleware(op)
}

// healthCheck reports the state of every configured dependency
func (s *APIServer) healthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	deps := gin.H{}
	for name, check := range s.checks {
		if err := check.Health(ctx); err != nil {
			deps[name] = "unhealthy"
			status = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "healthy"
	}

	overall := "healthy"
	if status != http.StatusOK {
		overall = "unhealthy"
	}
	c.JSON(status, gin.H{
		"status":       overall,
		"service":      "api",
		"dependencies": deps,
	})
}
