package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	apihttp "github.com/spec-kit/helpdesk-service/internal/api/http"
	"github.com/spec-kit/helpdesk-service/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/config"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/observability"
	"github.com/spec-kit/helpdesk-service/internal/persistence"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	"github.com/spec-kit/helpdesk-service/internal/service"
	"github.com/spec-kit/helpdesk-service/internal/sla"
	"github.com/spec-kit/helpdesk-service/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	postgres, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("postgres connection failed", zap.Error(err))
	}
	defer postgres.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, postgres.PoolHandle(), logger); err != nil {
			logger.Fatal("migrations failed", zap.Error(err))
		}
	}

	redisStore := persistence.NewRedis(cfg.Redis, logger)
	defer redisStore.Close()

	ticketRepo := repository.NewTicketRepository(postgres.PoolHandle())
	commentRepo := repository.NewCommentRepository(postgres.PoolHandle())
	userRepo := repository.NewUserRepository(postgres.PoolHandle())

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()
	evaluator := sla.NewEvaluator(sla.SystemClock{}, cfg.SLA.Resolution())

	authService := service.NewAuthService(cfg.Auth, userRepo)
	assigner := service.NewAssignmentService(ticketRepo, userRepo, logger)
	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo:  ticketRepo,
		CommentRepo: commentRepo,
		UserRepo:    userRepo,
		Assigner:    assigner,
		SLA:         evaluator,
		Dispatcher:  dispatcher,
		Metrics:     metrics,
		Logger:      logger,
	})
	reportService := service.NewReportService(ticketRepo, userRepo, evaluator)
	notificationService := service.NewNotificationService(dispatcher, logger, cfg.Notification)

	worker.StartNotificationWorker(notificationService)
	worker.NewSLAMonitor(ticketRepo, metrics, logger, cfg.SLA.MonitorInterval()).Start(ctx)

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ErrorHandler: apihttp.ErrorHandler(logger, metrics),
	})
	app.Use(recover.New())
	app.Use(observability.RequestLogger(logger, metrics))
	app.Use(apihttp.RequestTimeout(cfg.App.RequestTimeout()))

	apihttp.RegisterRoutes(app, apihttp.RouterDependencies{
		Users:       handlers.NewUsersHandler(authService),
		Tickets:     handlers.NewTicketsHandler(ticketService),
		Reports:     handlers.NewReportsHandler(reportService),
		Health:      handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, postgres, redisStore),
		AuthMW:      auth.NewAuthMiddleware(authService.TokenManager(), userRepo),
		Limiter:     apihttp.NewRateLimiter(redisStore.Client, cfg.RateLimit, logger),
		Idempotency: apihttp.NewIdempotency(redisStore.Client, cfg.RateLimit.IdempotencyTTL(), logger),
		RateCfg:     cfg.RateLimit,
	})

	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.App.Addr()))
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("server stopped", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
