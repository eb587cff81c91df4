package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/remitdesk/remitdesk/cmd/remitdesk/cli"
	"github.com/remitdesk/remitdesk/internal/app"
	"github.com/remitdesk/remitdesk/internal/auth"
	"github.com/remitdesk/remitdesk/internal/dashboard"
	"github.com/remitdesk/remitdesk/internal/invitations"
	"github.com/remitdesk/remitdesk/internal/observability"
	"github.com/remitdesk/remitdesk/internal/onboarding"
	"github.com/remitdesk/remitdesk/internal/platform/cache"
	"github.com/remitdesk/remitdesk/internal/platform/db"
	"github.com/remitdesk/remitdesk/internal/rbac"
	"github.com/remitdesk/remitdesk/internal/shared"
	"github.com/remitdesk/remitdesk/internal/users"
	"github.com/remitdesk/remitdesk/internal/view"
	"github.com/remitdesk/remitdesk/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	if len(os.Args) > 1 && os.Args[1] == "jobs" {
		jobsCLI := cli.NewJobsCLI(cfg.RedisAddr)
		defer jobsCLI.Close()
		if err := jobsCLI.Run(ctx, os.Args[2:], os.Stdout); err != nil {
			logger.Error("jobs command", slog.Any("error", err))
			os.Exit(1)
		}
		return
	}

	dbpool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns, MaxConnLifetime: cfg.PGMaxConnLife})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	routes := rbac.NewRouteTable(cfg.GateAllowUnmatched, rbac.DefaultRoutes().Entries()...)
	sessionManager := shared.NewSessionManager(redisClient, cfg.SessionCookie, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	tokens, err := auth.NewTokenManager(cfg.TokenSecret, cfg.TokenIssuer, cfg.TokenTTL, cfg.IsProduction())
	if err != nil {
		logger.Error("init token manager", slog.Any("error", err))
		os.Exit(1)
	}

	templates, err := view.NewEngine(routes)
	if err != nil {
		logger.Error("parse templates", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := observability.NewMetrics()
	gate := rbac.NewGate(rbac.GateConfig{
		Verifier: tokens,
		Routes:   routes,
		Logger:   logger,
		Observer: metrics,
	})

	auditLogger := shared.NewAuditLogger(dbpool)

	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	authService := auth.NewService(auth.NewRepository(dbpool), auditLogger)
	authHandler := auth.NewHandler(logger, authService, tokens, routes, templates, sessionManager, csrfManager)

	onboardingService := onboarding.NewService(onboarding.NewRepository(dbpool), auditLogger)
	onboardingHandler := onboarding.NewHandler(logger, onboardingService, templates, csrfManager)

	usersService := users.NewService(users.NewRepository(dbpool), auditLogger)
	usersHandler := users.NewHandler(logger, usersService, templates, csrfManager)

	invitationRepo := invitations.NewRepository(dbpool)
	stats := dashboard.NewStatsProvider(usersService, invitationRepo, onboardingService, dashboard.NewCache(redisClient, cfg.StatsCacheTTL))
	authService.OnChange(stats.Invalidate)
	onboardingService.OnChange(stats.Invalidate)
	invitationService := invitations.NewService(invitationRepo, jobClient, auditLogger, invitations.Options{
		TTL:     cfg.InvitationTTL,
		BaseURL: cfg.PublicBaseURL,
		Logger:  logger,
		Changed: stats.Invalidate,
	})
	invitationHandler := invitations.NewHandler(logger, invitationService, templates, csrfManager)
	dashboardHandler := dashboard.NewHandler(logger, stats, onboardingService, routes, templates, csrfManager)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		SessionManager:    sessionManager,
		CSRFManager:       csrfManager,
		Verifier:          tokens,
		Gate:              gate,
		Metrics:           metrics,
		AuthHandler:       authHandler,
		DashboardHandler:  dashboardHandler,
		InvitationHandler: invitationHandler,
		OnboardingHandler: onboardingHandler,
		UsersHandler:      usersHandler,
		JobHandler:        jobHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
