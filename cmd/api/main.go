package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/noc-kit/faultdesk/internal/api/http"
	"github.com/noc-kit/faultdesk/internal/api/http/handlers"
	"github.com/noc-kit/faultdesk/internal/auth"
	"github.com/noc-kit/faultdesk/internal/config"
	"github.com/noc-kit/faultdesk/internal/events"
	"github.com/noc-kit/faultdesk/internal/observability"
	"github.com/noc-kit/faultdesk/internal/persistence"
	"github.com/noc-kit/faultdesk/internal/repository"
	"github.com/noc-kit/faultdesk/internal/service"
	"github.com/noc-kit/faultdesk/internal/settings"
	"github.com/noc-kit/faultdesk/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	metrics := observability.NewMetrics()
	hub := events.NewHub(cfg.Feed.HistoryCapacity, cfg.Feed.SubscriberCapacity, logger, metrics.RecordEventDropped)
	settingsStore := settings.NewRedisStore(redis.Client, cfg.TTR)
	store := repository.NewPostgresStore(pg.PoolHandle())

	ticketService := service.NewTicketService(service.TicketDependencies{
		Store:       store,
		Settings:    settingsStore,
		Hub:         hub,
		Logger:      logger,
		Metrics:     metrics,
		LockTimeout: cfg.Worker.LockTimeout(),
	})

	alertWorker := worker.NewTTRAlertWorker(store, settingsStore, hub, logger, cfg.Worker.ScanInterval)
	go alertWorker.Run(ctx)

	authMiddleware := auth.NewAuthMiddleware(auth.NewVerifier(cfg.Auth.JWTSecret))

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Tickets:        handlers.NewTicketsHandler(ticketService),
		Notifications:  handlers.NewNotificationsHandler(hub),
		Settings:       handlers.NewSettingsHandler(settingsStore),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
