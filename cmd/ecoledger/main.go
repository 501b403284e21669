package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"EcoLedger/internal/config"
	"EcoLedger/internal/economy"
	"EcoLedger/internal/events"
	"EcoLedger/internal/messages"
	"EcoLedger/internal/observability"
	"EcoLedger/internal/scheduler"
	"EcoLedger/internal/server"
	"EcoLedger/internal/session"
	"EcoLedger/internal/store"
)

func main() {
	cfg := config.Default()
	logger := observability.NewLogger("main", cfg.LogLevel)
	logger.Info().Str("system", cfg.SystemName).Msg("starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// --- Postgres ---
	db, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres open")
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		logger.Fatal().Err(err).Msg("postgres ping")
	}
	logger.Info().Msg("postgres connected")

	// --- Migrations ---
	migrator := store.NewMigrator(db, cfg.MigrationsDir, observability.NewLogger("migrator", cfg.LogLevel))
	if err := migrator.Up(ctx); err != nil {
		logger.Fatal().Err(err).Msg("run migrations")
	}
	logger.Info().Msg("migrations applied")

	balanceStore := store.NewBalanceStore(db)
	if err := balanceStore.EnsureSchema(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ensure schema")
	}

	// --- Observability ---
	metrics := observability.NewMetrics()
	healthChecker := observability.NewHealthChecker()

	// --- Cache ---
	cache := economy.NewBalanceCache(cfg.DefaultBalance, metrics)

	// --- NATS ---
	nc, js, err := events.Connect(cfg.NATSURL, observability.NewLogger("nats", cfg.LogLevel))
	if err != nil {
		logger.Fatal().Err(err).Msg("nats connect")
	}
	defer nc.Close()
	logger.Info().Msg("nats connected")

	if err := session.EnsureStream(ctx, js); err != nil {
		logger.Fatal().Err(err).Msg("ensure session stream")
	}
	if err := events.EnsureOutboundStream(ctx, js); err != nil {
		logger.Fatal().Err(err).Msg("ensure outbound stream")
	}

	// --- Outbound publisher ---
	publishChan := make(chan events.Event, 1024)
	publisher := events.NewPublisher(js, publishChan, observability.NewLogger("publisher", cfg.LogLevel))

	// --- Session lifecycle + subscriber ---
	// The lifecycle gets its own context, cancelled only if its queues fail to
	// drain during shutdown, so a wedged storage call cannot stall exit.
	lifecycleCtx, lifecycleCancel := context.WithCancel(context.Background())
	defer lifecycleCancel()
	lifecycle := session.NewLifecycle(lifecycleCtx, cache, balanceStore, observability.NewLogger("lifecycle", cfg.LogLevel), metrics, publishChan)
	subscriber := session.NewSubscriber(js, lifecycle, observability.NewLogger("subscriber", cfg.LogLevel))
	if err := subscriber.Subscribe(ctx); err != nil {
		logger.Fatal().Err(err).Msg("nats subscribe")
	}

	// --- Autosave scheduler ---
	autosave := scheduler.NewAutoSave(cache, balanceStore, cfg.AutosaveInterval, observability.NewLogger("autosave", cfg.LogLevel), metrics, publishChan)

	// --- HTTP command surface ---
	fmtr := messages.NewFormatter(cfg.CurrencyName, cfg.CurrencyNamePlural, cfg.TopFormat)
	api := server.New(cache, fmtr, cfg.DefaultTop, metrics, healthChecker, observability.NewLogger("http", cfg.LogLevel))
	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: api.Router(),
	}

	errChan := make(chan error, 4)

	// 1. Outbound publisher loop
	go func() {
		if err := publisher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errChan <- err
		}
	}()

	// 2. Autosave loop
	go func() {
		if err := autosave.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errChan <- err
		}
	}()

	// 3. HTTP server
	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("http server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	// 4. Prometheus metrics server
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: metricsMux,
	}
	go func() {
		logger.Info().Str("addr", cfg.MetricsAddr).Msg("metrics server listening")
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	healthChecker.SetReady(true)
	logger.Info().
		Str("http", cfg.HTTPAddr).
		Str("metrics", cfg.MetricsAddr).
		Dur("autosave", cfg.AutosaveInterval).
		Msg("ready")

	select {
	case sig := <-sigChan:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errChan:
		logger.Error().Err(err).Msg("component failed, shutting down")
	}

	// Shutdown order matters: stop new session events first, let in-flight
	// per-account operations drain, then write the final snapshot of the
	// cache, and only then release the store. A failed final flush is fatal
	// because it means unsaved balances are being dropped.
	cancel()
	subscriber.Stop()

	drained := make(chan struct{})
	go func() {
		lifecycle.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(30 * time.Second):
		logger.Warn().Msg("session queues did not drain in time, aborting in-flight storage calls")
		lifecycleCancel()
		<-drained
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := autosave.FlushNow(shutdownCtx, "shutdown"); err != nil {
		logger.Fatal().Err(err).Msg("final flush failed, unsaved balances lost")
	}

	if err := balanceStore.Close(); err != nil {
		logger.Error().Err(err).Msg("store close")
	}

	_ = httpServer.Shutdown(shutdownCtx)
	_ = metricsServer.Shutdown(shutdownCtx)

	logger.Info().Msg("shutdown complete")
}
