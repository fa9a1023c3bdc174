// Package api exposes the crowdsale over HTTP with gin.
//
// State-changing routes take the acting address from the X-Caller header.
// Amounts travel as decimal wei strings.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/xraph/crowdsale"
	"github.com/xraph/crowdsale/access"
	"github.com/xraph/crowdsale/contribution"
	"github.com/xraph/crowdsale/event"
	"github.com/xraph/crowdsale/round"
	"github.com/xraph/crowdsale/sale"
	"github.com/xraph/crowdsale/types"
)

// CallerHeader carries the acting address.
const CallerHeader = "X-Caller"

// Sale is the set of entry point operations the router serves.
// *proxy.EntryPoint implements it.
type Sale interface {
	StartRound(ctx context.Context, caller types.Address, params crowdsale.RoundParams) (*round.Round, error)
	Buy(ctx context.Context, buyer types.Address, amount types.Amount) (*contribution.Contribution, error)
	FinalizeRound(ctx context.Context, caller types.Address, roundID uint64) (*round.Round, error)
	ClaimRound(ctx context.Context, caller types.Address, roundID uint64) (*event.Event, error)
	RefundRound(ctx context.Context, caller types.Address, roundID uint64) (*event.Event, error)
	WithdrawRound(ctx context.Context, caller types.Address, roundID uint64) (*event.Event, error)
	SetEndTime(ctx context.Context, caller types.Address, roundID uint64, endTime time.Time) (*round.Round, error)
	SetRoundMetadata(ctx context.Context, caller types.Address, roundID uint64, title, description string) (*round.Round, error)
	SetTreasury(ctx context.Context, caller, treasury types.Address) error
	Upgrade(ctx context.Context, caller types.Address, version string) error
	Version() string

	SaleState(ctx context.Context) (*sale.State, error)
	Rounds(ctx context.Context) ([]*round.Round, error)
	RoundInfo(ctx context.Context, roundID uint64) (*round.Info, error)
	Contribution(ctx context.Context, roundID uint64, addr types.Address) (*contribution.Contribution, error)
	Events(ctx context.Context, opts event.ListOpts) ([]*event.Event, error)
}

// Token is the entitlement token surface. *token.Authority implements it.
type Token interface {
	GrantRole(ctx context.Context, caller types.Address, role access.Role, account types.Address) error
	BalanceOf(ctx context.Context, account types.Address) (types.Amount, error)
	TotalSupply(ctx context.Context) (types.Amount, error)
}

// Server holds the router dependencies.
type Server struct {
	sale     Sale
	token    Token
	logger   *slog.Logger
	gatherer prometheus.Gatherer
	health   func(ctx context.Context) error

	leaderboardLimit int
	legacyFirstRound bool
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithGatherer sets the registry served on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithHealthCheck sets the check behind /health.
func WithHealthCheck(fn func(ctx context.Context) error) Option {
	return func(s *Server) { s.health = fn }
}

// WithLeaderboard sets the default row limit and the legacy round label.
func WithLeaderboard(limit int, legacyFirstRound bool) Option {
	return func(s *Server) {
		s.leaderboardLimit = limit
		s.legacyFirstRound = legacyFirstRound
	}
}

// New creates a Server.
func New(sl Sale, tok Token, opts ...Option) *Server {
	s := &Server{
		sale:     sl,
		token:    tok,
		logger:   slog.Default(),
		gatherer: prometheus.DefaultGatherer,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the gin engine.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.requestLogger())
	r.Use(corsMiddleware())

	r.GET("/health", s.getHealth)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	v1 := r.Group("/api/v1")
	{
		v1.GET("/sale", s.getSale)
		v1.GET("/events", s.listEvents)
		v1.GET("/leaderboard", s.getLeaderboard)

		rounds := v1.Group("/rounds")
		{
			rounds.GET("", s.listRounds)
			rounds.GET("/current", s.getCurrentRound)
			rounds.GET("/:id", s.getRound)
			rounds.GET("/:id/contributions/:address", s.getContribution)

			rounds.POST("", requireCaller(), s.startRound)
			rounds.POST("/current/buy", requireCaller(), s.buy)
			rounds.POST("/:id/finalize", requireCaller(), s.finalize)
			rounds.POST("/:id/claim", requireCaller(), s.claim)
			rounds.POST("/:id/refund", requireCaller(), s.refund)
			rounds.POST("/:id/withdraw", requireCaller(), s.withdraw)
			rounds.PATCH("/:id", requireCaller(), s.updateRound)
		}

		v1.PUT("/treasury", requireCaller(), s.setTreasury)
		v1.POST("/upgrade", requireCaller(), s.upgrade)

		tok := v1.Group("/token")
		{
			tok.GET("/balances/:address", s.getBalance)
			tok.POST("/roles", requireCaller(), s.grantRole)
		}
	}

	return r
}

func (s *Server) getHealth(c *gin.Context) {
	if s.health != nil {
		if err := s.health(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "crowdsale",
		"version": s.sale.Version(),
	})
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("api: request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, "+CallerHeader)

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
