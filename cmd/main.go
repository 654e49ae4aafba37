package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/duynhne/campus-portal/config"
	database "github.com/duynhne/campus-portal/internal/core"
	"github.com/duynhne/campus-portal/internal/core/domain"
	"github.com/duynhne/campus-portal/internal/core/repository/memory"
	"github.com/duynhne/campus-portal/internal/core/repository/psql"
	"github.com/duynhne/campus-portal/internal/identity"
	logicv1 "github.com/duynhne/campus-portal/internal/logic/v1"
	webv1 "github.com/duynhne/campus-portal/internal/web/v1"
	"github.com/duynhne/campus-portal/middleware"
)

func main() {
	// Load configuration from environment variables (with .env file support for local dev)
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		panic("Configuration validation failed: " + err.Error())
	}

	logger, err := middleware.NewLogger(cfg.Logging)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Service starting",
		zap.String("service", cfg.Service.Name),
		zap.String("version", cfg.Service.Version),
		zap.String("env", cfg.Service.Env),
		zap.String("port", cfg.Service.Port),
	)

	if cfg.Tracing.Enabled {
		if _, err := middleware.InitTracing(cfg); err != nil {
			logger.Warn("Failed to initialize tracing", zap.Error(err))
		} else {
			logger.Info("Tracing initialized",
				zap.String("endpoint", cfg.Tracing.Endpoint),
				zap.Float64("sample_rate", cfg.Tracing.SampleRate),
			)
		}
	} else {
		logger.Info("Tracing disabled (TRACING_ENABLED=false)")
	}

	if cfg.Profiling.Enabled {
		if err := middleware.InitProfiling(cfg); err != nil {
			logger.Warn("Failed to initialize profiling", zap.Error(err))
		} else {
			logger.Info("Profiling initialized", zap.String("endpoint", cfg.Profiling.Endpoint))
			defer middleware.StopProfiling()
		}
	} else {
		logger.Info("Profiling disabled (PROFILING_ENABLED=false)")
	}

	// Document store: PostgreSQL when configured, process memory otherwise.
	var (
		pool  *pgxpool.Pool
		store domain.ProfileStore
	)
	if cfg.Database.Enabled() {
		pool, err = database.Connect(context.Background(), cfg.Database)
		if err != nil {
			logger.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer pool.Close()
		logger.Info("Database connection pool established", zap.String("host", cfg.Database.Host))

		if cfg.Database.Migrate {
			if err := database.Migrate(context.Background(), pool); err != nil {
				logger.Fatal("Failed to run migrations", zap.Error(err))
			}
			logger.Info("Database migrations applied")
		}
		store = psql.NewProfileRepository(pool)
	} else {
		logger.Warn("DB_HOST not set, profiles are kept in memory and lost on restart")
		store = memory.NewProfileStore(nil)
	}

	identityClient := identity.NewClient(cfg.Identity)
	logger.Info("Identity client initialized", zap.String("endpoint", cfg.Identity.Endpoint))

	registry := logicv1.NewRegistry(logicv1.VisitorFactory{
		Provider:   identityClient,
		Store:      store,
		Rules:      logicv1.NewProfileRules(cfg.Profile),
		GateSecret: cfg.Gate.Secret,
		GateWindow: cfg.Gate.ErrorWindow,
		Logger:     logger,
	})
	cookies := middleware.NewSessionCookies(cfg.Session)

	templates, err := webv1.Templates()
	if err != nil {
		logger.Fatal("Failed to parse templates", zap.Error(err))
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.SetHTMLTemplate(templates)

	var isShuttingDown atomic.Bool

	// Tracing middleware (must be first for context propagation)
	r.Use(middleware.TracingMiddleware(cfg.Tracing.ServiceName))

	// Logging middleware (must be before Prometheus middleware)
	r.Use(middleware.LoggingMiddleware(logger))

	if cfg.Metrics.Enabled {
		r.Use(middleware.PrometheusMiddleware())
		r.GET(cfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Returns 503 once shutdown has started, to drain traffic before HTTP shutdown.
	r.GET("/ready", func(c *gin.Context) {
		if isShuttingDown.Load() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "shutting_down"})
			return
		}
		if pool != nil {
			if err := pool.Ping(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "database_unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Portal pages and actions; probes and scrapes get no visitor cookie.
	portal := r.Group("", cookies.VisitorMiddleware())
	webv1.NewHandler(registry, cookies, cfg.Identity.GoogleClientID, logger).Register(portal)

	srv := &http.Server{
		Addr:              ":" + cfg.Service.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting campus portal", zap.String("port", cfg.Service.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return registry.Run(gctx, cfg.Session.SweepInterval, cfg.Session.IdleTimeout)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutdown signal received")

		// Fail readiness first and wait for propagation.
		isShuttingDown.Store(true)
		if drainDelay := cfg.ReadinessDrainDelay; drainDelay > 0 && ctx.Err() != nil {
			logger.Info("Readiness drain delay started", zap.Duration("delay", drainDelay))
			time.Sleep(drainDelay)
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		logger.Info("Shutting down server...", zap.Duration("timeout", cfg.ShutdownTimeout))
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server stopped with error", zap.Error(err))
	} else {
		logger.Info("HTTP server shutdown complete")
	}

	// Cleanup sequence: HTTP server (above), then database, then tracer.
	if pool != nil {
		pool.Close()
		logger.Info("Database pool closed")
	}

	flushCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := middleware.Shutdown(flushCtx); err != nil {
		logger.Error("Tracer shutdown error", zap.Error(err))
	}

	logger.Info("Graceful shutdown complete")
}
