package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	accountdomain "github.com/smallbiznis/ledgerbridge/internal/account/domain"
	"github.com/smallbiznis/ledgerbridge/internal/clock"
	"github.com/smallbiznis/ledgerbridge/internal/config"
	"github.com/smallbiznis/ledgerbridge/internal/observability"
	obslogger "github.com/smallbiznis/ledgerbridge/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/ledgerbridge/internal/observability/metrics"
	obstracing "github.com/smallbiznis/ledgerbridge/internal/observability/tracing"
	"github.com/smallbiznis/ledgerbridge/internal/pipeline"
	"github.com/smallbiznis/ledgerbridge/internal/pipeline/runlog"
	"github.com/smallbiznis/ledgerbridge/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

// AccountExporter runs every document type of one account.
type AccountExporter interface {
	ProcessAccountByID(ctx context.Context, id string) ([]pipeline.BatchResult, error)
}

// ExportLimiter throttles dashboard-triggered exports per account.
type ExportLimiter interface {
	AllowExport(ctx context.Context, account string) (*ratelimit.RateLimitResult, error)
}

// RunLister reads the per-document run ledger.
type RunLister interface {
	List(ctx context.Context, accountID string, filter runlog.ListFilter) ([]runlog.DocumentRun, error)
	CountByState(ctx context.Context, accountID string) (map[string]int64, error)
}

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics, log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowAllOrigins:  true,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Request-Id"},
		ExposeHeaders:    []string{"X-Request-Id", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Logger:          log,
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

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics, log *zap.Logger) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics, log)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.Dashboard.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("dashboard server stopped", zap.Error(err))
				}
			}()
			log.Info("dashboard listening", zap.String("addr", cfg.Dashboard.Addr))
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
	engine     *gin.Engine
	cfg        config.Config
	log        *zap.Logger
	accounts   accountdomain.Service
	exporter   AccountExporter
	limiter    ExportLimiter
	runs       RunLister
	taskLogs   obslogger.TaskLogSink
	tasks      *taskRegistry
	obsMetrics *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	Log        *zap.Logger
	Clock      clock.Clock
	Accounts   accountdomain.Service
	Runner     *pipeline.Runner
	Runs       *runlog.Recorder      `optional:"true"`
	Guard      *ratelimit.SyncGuard  `optional:"true"`
	TaskLogs   obslogger.TaskLogSink `optional:"true"`
	ObsMetrics *obsmetrics.Metrics   `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:     p.Gin,
		cfg:        p.Cfg,
		log:        p.Log.Named("server"),
		accounts:   p.Accounts,
		exporter:   p.Runner,
		taskLogs:   p.TaskLogs,
		tasks:      newTaskRegistry(p.Clock, 24*time.Hour),
		obsMetrics: p.ObsMetrics,
	}
	if p.Guard != nil {
		svc.limiter = p.Guard
	}
	if p.Runs != nil {
		svc.runs = p.Runs
	}
	if svc.taskLogs == nil {
		svc.taskLogs = obslogger.NewMemoryTaskSink()
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
	api.Use(s.BasicAuthRequired())

	// -------- Accounts --------
	api.GET("/accounts", s.ListAccounts)
	api.POST("/accounts", s.CreateAccount)
	api.GET("/accounts/:id", s.GetAccount)
	api.PUT("/accounts/:id", s.UpdateAccount)
	api.DELETE("/accounts/:id", s.DeleteAccount)
	api.POST("/accounts/:id/duplicate", s.DuplicateAccount)
	api.GET("/accounts/:id/cursors", s.GetAccountCursors)
	api.GET("/accounts/:id/runs", s.ListAccountRuns)

	// -------- Export tasks --------
	api.POST("/accounts/:id/export", s.ExportAccount)
	api.GET("/tasks/:id", s.GetTask)
	api.GET("/tasks/:id/logs", s.GetTaskLogs)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
