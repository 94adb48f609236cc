// Package api exposes the verification workflow to the admin SPA: operator
// login, pending-request views, the two-step approve flow, rejections,
// balance lookups, audit queries, and a websocket feed of balance changes.
package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"fx-backoffice/config"
	"fx-backoffice/internal/audit"
	"fx-backoffice/internal/auth"
	"fx-backoffice/internal/events"
	"fx-backoffice/internal/platform"
	"fx-backoffice/internal/store"
	"fx-backoffice/internal/verify"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RateLimiter provides simple in-memory rate limiting per key
type RateLimiter struct {
	requests map[string][]time.Time
	mu       sync.Mutex
	limit    int
	window   time.Duration
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
	}
}

// Allow checks if a request is allowed for the given key
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-r.window)

	var recent []time.Time
	for _, t := range r.requests[key] {
		if t.After(windowStart) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= r.limit {
		r.requests[key] = recent
		return false
	}

	r.requests[key] = append(recent, now)
	return true
}

// DecisionEngine is the verification engine surface the handlers use
type DecisionEngine interface {
	PreviewApprove(ctx context.Context, pauth platform.AuthContext, requestID string, verifiedAmount float64) (*verify.ApprovalPreview, error)
	Approve(ctx context.Context, pauth platform.AuthContext, requestID string, verifiedAmount float64, opts verify.ApproveOptions) (*verify.Outcome, error)
	Reject(ctx context.Context, pauth platform.AuthContext, requestID, reason string, confirmed bool) (*verify.Outcome, error)
}

// RequestView is the request store surface the handlers use
type RequestView interface {
	LoadPending(ctx context.Context, pauth platform.AuthContext, scope store.Scope) (store.LoadResult, error)
	Get(id string) (platform.PaymentRequest, bool)
}

// BalanceReader reads balance snapshots for display
type BalanceReader interface {
	Get(ctx context.Context, pauth platform.AuthContext, owner platform.Owner) (*platform.AccountBalance, bool, error)
}

// AuditReader queries the local decision trail
type AuditReader interface {
	ListByRequest(ctx context.Context, requestID string) ([]audit.Entry, error)
	ListByOperator(ctx context.Context, operatorID string, limit int) ([]audit.Entry, error)
	ListRecent(ctx context.Context, limit int) ([]audit.Entry, error)
}

// LoginService authenticates operators
type LoginService interface {
	Login(ctx context.Context, req auth.LoginRequest) (*auth.LoginResponse, error)
}

// Server represents the HTTP API server
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	cfg        config.ServerConfig

	engine      DecisionEngine
	requests    RequestView
	balances    BalanceReader
	auditReader AuditReader
	authService LoginService
	jwtManager  *auth.JWTManager
	eventBus    *events.EventBus
	hub         *WSHub

	// platformToken authenticates this service against the platform; it is
	// combined with the acting operator id into an AuthContext per call.
	platformToken string

	loginLimiter    *RateLimiter
	decisionLimiter *RateLimiter
	logger          zerolog.Logger
}

// decisionRateLimit caps decisions per operator per minute. Well above any
// human review pace, it only stops runaway scripts and stuck retry loops.
const decisionRateLimit = 30

// NewServer creates a new API server
func NewServer(
	cfg config.ServerConfig,
	engine DecisionEngine,
	requests RequestView,
	balances BalanceReader,
	auditReader AuditReader,
	authService LoginService,
	jwtManager *auth.JWTManager,
	eventBus *events.EventBus,
	platformToken string,
	logger zerolog.Logger,
) *Server {
	if cfg.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		router:          gin.New(),
		cfg:             cfg,
		engine:          engine,
		requests:        requests,
		balances:        balances,
		auditReader:     auditReader,
		authService:     authService,
		jwtManager:      jwtManager,
		eventBus:        eventBus,
		hub:             NewWSHub(logger),
		platformToken:   platformToken,
		loginLimiter:    NewRateLimiter(10, time.Minute),
		decisionLimiter: NewRateLimiter(decisionRateLimit, time.Minute),
		logger:          logger.With().Str("component", "api").Logger(),
	}

	s.router.Use(gin.Recovery())
	s.router.Use(s.requestLogger())

	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "Authorization")
	s.router.Use(cors.New(corsConfig))

	s.registerRoutes()

	return s
}

func (s *Server) registerRoutes() {
	api := s.router.Group("/api")

	api.GET("/health", s.handleHealth)
	api.POST("/auth/login", s.handleLogin)

	protected := api.Group("")
	protected.Use(auth.Middleware(s.jwtManager))
	{
		protected.GET("/requests/pending", s.handleListPending)
		protected.GET("/requests/:id", s.handleGetRequest)
		decisions := protected.Group("")
		decisions.Use(s.limitDecisions())
		{
			decisions.POST("/requests/:id/approve/preview", s.handlePreviewApprove)
			decisions.POST("/requests/:id/approve", s.handleApprove)
			decisions.POST("/requests/:id/reject", s.handleReject)
		}

		protected.GET("/accounts/balance", s.handleGetBalance)

		protected.GET("/audit/requests/:id", s.handleAuditByRequest)
		protected.GET("/audit/mine", s.handleAuditMine)
		protected.GET("/audit/recent", auth.AdminOnly(), s.handleAuditRecent)
	}

	s.router.GET("/ws", s.handleWebSocket)
}

// Start runs the websocket hub, bridges bus events onto it, and begins
// serving. Blocks until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	go s.hub.Run()
	s.bridgeEvents()

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	s.logger.Info().Str("addr", addr).Msg("admin API listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// bridgeEvents forwards workflow events to connected dashboard views
func (s *Server) bridgeEvents() {
	if s.eventBus == nil {
		return
	}
	forward := func(event events.Event) {
		s.hub.BroadcastEvent(event)
	}
	s.eventBus.Subscribe(events.EventBalanceUpdated, forward)
	s.eventBus.Subscribe(events.EventRequestFinalized, forward)
	s.eventBus.Subscribe(events.EventSnapshotStale, forward)
}

// limitDecisions rate-limits the decision routes per operator. Must run
// after auth.Middleware so the operator id is set.
func (s *Server) limitDecisions() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.decisionLimiter.Allow(auth.OperatorID(c)) {
			errorResponse(c, http.StatusTooManyRequests, "too many decisions, slow down")
			c.Abort()
			return
		}
		c.Next()
	}
}

// platformAuth builds the platform credential for a call made on behalf of
// an operator.
func (s *Server) platformAuth(operatorID string) platform.AuthContext {
	return platform.AuthContext{Token: s.platformToken, OperatorID: operatorID}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("request")
	}
}

func errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"success": false,
		"message": message,
	})
}

func successResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}
