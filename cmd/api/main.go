package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/status-engine/internal/api/http"
	"github.com/spec-kit/status-engine/internal/api/http/handlers"
	"github.com/spec-kit/status-engine/internal/authority"
	"github.com/spec-kit/status-engine/internal/broker"
	"github.com/spec-kit/status-engine/internal/config"
	"github.com/spec-kit/status-engine/internal/observability"
	"github.com/spec-kit/status-engine/internal/service"
	"github.com/spec-kit/status-engine/internal/statuscache"
	"github.com/spec-kit/status-engine/internal/subscription"
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

	metrics := observability.NewMetrics()
	cache := statuscache.New()
	registry := subscription.NewRegistry(logger)

	supervisor := broker.NewSupervisor(cfg.Broker, logger, metrics)
	publisher := broker.NewPublisher(supervisor, logger, metrics)
	consumer := broker.NewConsumer(supervisor, cache, registry, logger, metrics)
	consumer.Start(ctx)
	supervisor.Start()
	defer supervisor.Close()

	authorityClient := authority.NewClient(cfg.Authority, cfg.App.Name, logger)

	statusService := service.NewStatusService(service.Dependencies{
		Authority: authorityClient,
		Cache:     cache,
		Registry:  registry,
		Publisher: publisher,
		Logger:    logger,
	})

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	healthHandler := handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, supervisor, authorityClient, cache)
	statusHandler := handlers.NewStatusHandler(statusService)

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health: healthHandler,
		Status: statusHandler,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	metricsServer := &http.Server{Addr: cfg.App.MetricsAddr(), Handler: metricsMux(metrics)}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	cancel()
	_ = metricsServer.Close()
	_ = app.Shutdown()
}

func metricsMux(metrics *observability.Metrics) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
