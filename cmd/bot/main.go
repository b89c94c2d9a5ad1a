package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/modkit/modmail-relay/internal/api/http"
	"github.com/modkit/modmail-relay/internal/api/http/handlers"
	"github.com/modkit/modmail-relay/internal/auth"
	"github.com/modkit/modmail-relay/internal/config"
	"github.com/modkit/modmail-relay/internal/events"
	"github.com/modkit/modmail-relay/internal/observability"
	"github.com/modkit/modmail-relay/internal/persistence"
	"github.com/modkit/modmail-relay/internal/platform"
	"github.com/modkit/modmail-relay/internal/repository"
	"github.com/modkit/modmail-relay/internal/service"
	"github.com/modkit/modmail-relay/internal/worker"
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

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	client := platform.NewRESTClient(cfg.Platform)
	directory := repository.NewTicketDirectory(client, cfg.Routing, cfg.Platform.BotUserID, logger)
	authorizer := auth.NewAuthorizer(cfg.Routing)
	closer := worker.NewCloseScheduler(logger)
	defer closer.Stop()

	dispatcher := events.NewInMemoryDispatcher(logger)
	metrics := observability.NewMetrics()

	relayService := service.NewRelayService(service.RelayDependencies{
		Directory:  directory,
		Platform:   client,
		Authorizer: authorizer,
		Closer:     closer,
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Logger:     logger,
		Routing:    cfg.Routing,
		Lifecycle:  cfg.Lifecycle,
	})
	lifecycleService := service.NewLifecycleService(service.LifecycleDependencies{
		Directory:  directory,
		Platform:   client,
		Authorizer: authorizer,
		Closer:     closer,
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Logger:     logger,
		Routing:    cfg.Routing,
		Lifecycle:  cfg.Lifecycle,
	})
	broadcastService := service.NewBroadcastService(service.BroadcastDependencies{
		Directory:  directory,
		Platform:   client,
		Authorizer: authorizer,
		Dispatcher: dispatcher,
		Logger:     logger,
		Config:     cfg.Broadcast,
	})

	notifications := service.NewNotificationService(dispatcher, logger)
	notifications.RegisterHandlers()

	tokens := auth.NewTokenManager(cfg.Gateway.JWTSecret, 0)
	gatewayAuth := auth.NewGatewayAuth(tokens)
	deduper := persistence.NewRedisDeduper(redis, cfg.Gateway.DedupTTL(), logger)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, redis),
		Events:         handlers.NewEventsHandler(relayService, lifecycleService, broadcastService, deduper),
		AuthMiddleware: gatewayAuth,
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
