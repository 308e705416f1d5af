package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"

	httpadapter "github.com/couchcryptid/typhoon-info-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/typhoon-info-service/internal/adapter/kafka"
	"github.com/couchcryptid/typhoon-info-service/internal/adapter/kma"
	"github.com/couchcryptid/typhoon-info-service/internal/config"
	"github.com/couchcryptid/typhoon-info-service/internal/domain"
	"github.com/couchcryptid/typhoon-info-service/internal/fetch"
	"github.com/couchcryptid/typhoon-info-service/internal/geo"
	"github.com/couchcryptid/typhoon-info-service/internal/observability"
	"github.com/couchcryptid/typhoon-info-service/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	gazetteer, err := geo.NewGazetteer()
	if err != nil {
		logger.Error("failed to load region gazetteer", "error", err)
		os.Exit(1)
	}

	upstream := kma.NewClient(cfg.ServiceKey, cfg.UpstreamBaseURL, cfg.UpstreamTimeout, logger)
	coordinator := fetch.NewCoordinator(upstream, fetch.Config{
		LiveTTL:        cfg.LiveTTL,
		HistoricalTTL:  cfg.HistoricalTTL,
		MaxRetries:     cfg.FetchMaxRetries,
		InitialBackoff: cfg.FetchInitialBackoff,
		PerTryTimeout:  cfg.UpstreamTimeout,
		MaxEntries:     cfg.CacheMaxEntries,
	}, clockwork.NewRealClock(), logger, metrics)

	// Alert publishing is feature-flagged via KAFKA_BROKERS / ALERTS_ENABLED.
	var publisher service.AlertPublisher
	var publisherClose func() error
	if cfg.AlertsEnabled {
		p := kafkaadapter.NewPublisher(cfg.KafkaBrokers, cfg.KafkaAlertTopic, logger)
		publisher = p
		publisherClose = p.Close
		logger.Info("impact alert publishing enabled", "topic", cfg.KafkaAlertTopic, "brokers", cfg.KafkaBrokers)
	} else {
		logger.Info("impact alert publishing disabled")
	}

	engine := domain.NewWindowEngine(domain.WindowConfig{
		SamplesPerSegment: cfg.WindowSamples,
		Epsilon:           cfg.WindowEpsilon,
		CoarseBulletinGap: cfg.CoarseBulletinGap,
	})

	svc := service.NewService(coordinator, gazetteer, engine, publisher, clockwork.NewRealClock(), logger, metrics)
	srv := httpadapter.NewServer(cfg.HTTPAddr, svc, coordinator, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if publisherClose != nil {
		if err := publisherClose(); err != nil {
			logger.Error("kafka publisher close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
