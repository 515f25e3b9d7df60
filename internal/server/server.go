package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/cariledger/internal/audit"
	auditdomain "github.com/smallbiznis/cariledger/internal/audit/domain"
	"github.com/smallbiznis/cariledger/internal/cari"
	caridomain "github.com/smallbiznis/cariledger/internal/cari/domain"
	"github.com/smallbiznis/cariledger/internal/config"
	"github.com/smallbiznis/cariledger/internal/ledger"
	ledgerdomain "github.com/smallbiznis/cariledger/internal/ledger/domain"
	"github.com/smallbiznis/cariledger/internal/observability"
	obsmiddleware "github.com/smallbiznis/cariledger/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/cariledger/internal/observability/metrics"
	obstracing "github.com/smallbiznis/cariledger/internal/observability/tracing"
	"github.com/smallbiznis/cariledger/internal/organization"
	organizationdomain "github.com/smallbiznis/cariledger/internal/organization/domain"
	"github.com/smallbiznis/cariledger/internal/reference"
	referencedomain "github.com/smallbiznis/cariledger/internal/reference/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	audit.Module,
	reference.Module,
	cari.Module,
	ledger.Module,
	organization.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger, obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(log.Named("http"), obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	if httpMetrics != nil {
		r.Use(httpMetrics.GinMiddleware())
	}
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

type engineParams struct {
	fx.In

	Log         *zap.Logger
	ObsCfg      observability.Config
	HTTPMetrics *obsmetrics.HTTPMetrics `optional:"true"`
}

func registerGin(p engineParams) *gin.Engine {
	return NewEngine(p.Log, p.ObsCfg, p.HTTPMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, r *gin.Engine) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine          *gin.Engine
	cfg             config.Config
	log             *zap.Logger
	auditSvc        auditdomain.Service
	cariSvc         caridomain.Service
	ledgerSvc       ledgerdomain.Service
	organizationSvc organizationdomain.Service
	refrepo         referencedomain.Repository
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	Log             *zap.Logger
	AuditSvc        auditdomain.Service
	CariSvc         caridomain.Service
	LedgerSvc       ledgerdomain.Service
	OrganizationSvc organizationdomain.Service
	Refrepo         referencedomain.Repository
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		log:             p.Log.Named("http.server"),
		auditSvc:        p.AuditSvc,
		cariSvc:         p.CariSvc,
		ledgerSvc:       p.LedgerSvc,
		organizationSvc: p.OrganizationSvc,
		refrepo:         p.Refrepo,
	}

	svc.registerAPIRoutes()
	svc.registerFallback()
	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")
	api.Use(ActorContext())

	api.GET("/currencies", s.ListCurrencies)

	// -------- Tenants --------
	api.POST("/tenants", s.CreateOrganization)
	api.GET("/tenants", s.ListOrganizations)
	api.GET("/tenants/:id", s.GetOrganization)

	scoped := api.Group("", OrgContext())

	// -------- Cari accounts --------
	scoped.GET("/cari-accounts", s.ListCariAccounts)
	scoped.POST("/cari-accounts", s.CreateCariAccount)
	scoped.GET("/cari-accounts/munferit", s.GetMunferitAccount)
	scoped.POST("/cari-accounts/recalculate-all", s.RecalculateAllBalances)
	scoped.GET("/cari-accounts/:id", s.GetCariAccount)
	scoped.PATCH("/cari-accounts/:id", s.UpdateCariAccount)
	scoped.DELETE("/cari-accounts/:id", s.DeleteCariAccount)

	// -------- Ledger --------
	scoped.GET("/cari-accounts/:id/transactions", s.ListCariTransactions)
	scoped.POST("/cari-accounts/:id/transactions", s.PostCariTransaction)
	scoped.GET("/cari-accounts/:id/balances", s.GetCariBalances)
	scoped.GET("/cari-accounts/:id/drift", s.CheckCariDrift)
	scoped.POST("/cari-accounts/:id/recalculate", s.RecalculateBalance)
	scoped.POST("/cari-transactions/:id/void", s.VoidCariTransaction)

	// -------- Audit --------
	scoped.GET("/audit-logs", s.ListAuditLogs)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
