package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/referral/internal/authorization"
	"github.com/smallbiznis/referral/internal/balance"
	"github.com/smallbiznis/referral/internal/cache"
	"github.com/smallbiznis/referral/internal/claim"
	claimdomain "github.com/smallbiznis/referral/internal/claim/domain"
	"github.com/smallbiznis/referral/internal/config"
	"github.com/smallbiznis/referral/internal/notification"
	"github.com/smallbiznis/referral/internal/observability"
	obslogger "github.com/smallbiznis/referral/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/referral/internal/observability/metrics"
	obstracing "github.com/smallbiznis/referral/internal/observability/tracing"
	"github.com/smallbiznis/referral/internal/providers/email"
	"github.com/smallbiznis/referral/internal/ratelimit"
	"github.com/smallbiznis/referral/internal/referral"
	referraldomain "github.com/smallbiznis/referral/internal/referral/domain"
	"github.com/smallbiznis/referral/internal/reward"
	rewarddomain "github.com/smallbiznis/referral/internal/reward/domain"
	"github.com/smallbiznis/referral/internal/stats"
	statsdomain "github.com/smallbiznis/referral/internal/stats/domain"
	"github.com/smallbiznis/referral/internal/tier"
	tierdomain "github.com/smallbiznis/referral/internal/tier/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

// Services are the domain modules behind the HTTP API. Commands that run jobs
// without serving HTTP use them directly.
var Services = fx.Options(
	ratelimit.Module,
	cache.Module,
	authorization.Module,
	tier.Module,
	email.Module,
	notification.Module,
	balance.Module,
	stats.Module,
	referral.Module,
	reward.Module,
	claim.Module,
)

var Module = fx.Module("http.server",
	Services,
	fx.Provide(registerGin),
	fx.Provide(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(cfg config.Config, obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, s *Server, log *zap.Logger) {
	addr := cfg.HTTPAddr
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine       *gin.Engine
	cfg          config.Config
	log          *zap.Logger
	apiKeys      []apiKey
	authzSvc     authorization.Service
	referralSvc  referraldomain.Service
	rewardSvc    rewarddomain.Service
	claimSvc     claimdomain.Service
	statsSvc     statsdomain.Service
	tiers        tierdomain.Provider
	trackLimiter *ratelimit.TrackLimiter
	metrics      *obsmetrics.ReferralMetrics
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	Cfg          config.Config
	Log          *zap.Logger
	AuthzSvc     authorization.Service
	ReferralSvc  referraldomain.Service
	RewardSvc    rewarddomain.Service
	ClaimSvc     claimdomain.Service
	StatsSvc     statsdomain.Service
	Tiers        tierdomain.Provider
	TrackLimiter *ratelimit.TrackLimiter     `optional:"true"`
	Metrics      *obsmetrics.ReferralMetrics `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	log := p.Log.Named("http")
	s := &Server{
		engine:       p.Gin,
		cfg:          p.Cfg,
		log:          log,
		apiKeys:      newAPIKeys(p.Cfg.APIKeys, log),
		authzSvc:     p.AuthzSvc,
		referralSvc:  p.ReferralSvc,
		rewardSvc:    p.RewardSvc,
		claimSvc:     p.ClaimSvc,
		statsSvc:     p.StatsSvc,
		tiers:        p.Tiers,
		trackLimiter: p.TrackLimiter,
		metrics:      p.Metrics,
	}
	if len(s.apiKeys) == 0 {
		log.Warn("no api keys configured, every /api/v1 request will be rejected")
	}

	s.registerAPIRoutes()
	s.registerAdminRoutes()
	s.registerFallback()

	return s
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api/v1", s.APIKeyRequired())

	api.POST("/track", s.authorize(authorization.ObjectFunnel, authorization.ActionTrack), s.TrackRateLimit(), s.Track)
	api.POST("/activate", s.authorize(authorization.ObjectReward, authorization.ActionActivate), s.Activate)
	api.GET("/tiers", s.authorize(authorization.ObjectTier, authorization.ActionView), s.ListTiers)

	beneficiary := api.Group("", s.BeneficiaryRequired())
	beneficiary.GET("/rewards", s.authorize(authorization.ObjectReward, authorization.ActionView), s.ListRewards)
	beneficiary.POST("/claim", s.authorize(authorization.ObjectReward, authorization.ActionClaim), s.Claim)
	beneficiary.GET("/statistics", s.authorize(authorization.ObjectStatistics, authorization.ActionView), s.GetStatistics)
	beneficiary.POST("/referrals", s.authorize(authorization.ObjectReferral, authorization.ActionCreate), s.CreateReferral)
	beneficiary.GET("/referrals", s.authorize(authorization.ObjectReferral, authorization.ActionView), s.ListReferrals)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/api/v1/admin", s.APIKeyRequired())

	admin.GET("/referrals/:id", s.authorize(authorization.ObjectReferral, authorization.ActionView), s.GetReferral)
	admin.POST("/referrals/:id/activate", s.authorize(authorization.ObjectReward, authorization.ActionForceActivate), s.AdminActivate)
	admin.POST("/referrals/:id/expire", s.authorize(authorization.ObjectReferral, authorization.ActionExpire), s.AdminExpire)
	admin.POST("/referrals/:id/cancel", s.authorize(authorization.ObjectReferral, authorization.ActionCancel), s.AdminCancel)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
