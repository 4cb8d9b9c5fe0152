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

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	"github.com/ericfisherdev/fiscalkeeper/internal/adapter/driven/aesgcm"
	"github.com/ericfisherdev/fiscalkeeper/internal/adapter/driven/gateway"
	"github.com/ericfisherdev/fiscalkeeper/internal/adapter/driven/notify"
	sqliteadapter "github.com/ericfisherdev/fiscalkeeper/internal/adapter/driven/sqlite"
	httphandler "github.com/ericfisherdev/fiscalkeeper/internal/adapter/driving/http"
	"github.com/ericfisherdev/fiscalkeeper/internal/application"
	"github.com/ericfisherdev/fiscalkeeper/internal/config"
	"github.com/ericfisherdev/fiscalkeeper/internal/domain/port/driven"
	"github.com/ericfisherdev/fiscalkeeper/internal/metrics"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load .env (if present) then configuration. Real env vars win.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel})))
	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"gateway_url", cfg.GatewayURL,
		"monitor_hour", cfg.MonitorHour,
		"kafka", cfg.HasKafka(),
	)

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open database (dual reader/writer with WAL mode) and migrate.
	db, err := sqliteadapter.NewDB(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()
	slog.Info("database opened", "path", cfg.DBPath)

	if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
		return err
	}
	slog.Info("migrations complete")

	// 4. Metrics registry.
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	// 5. Wire adapters.
	cipher, err := aesgcm.New(cfg.SecretKey, slog.Default())
	if err != nil {
		return err
	}
	m.SetEphemeralKey(cipher.Ephemeral())

	companyStore := sqliteadapter.NewCompanyRepo(db)
	credentialStore := sqliteadapter.NewCredentialRepo(db)
	notificationStore := sqliteadapter.NewNotificationRepo(db)

	gatewayClient, err := gateway.NewClient(cfg.GatewayURL, cfg.GatewayToken, cfg.GatewayRPS)
	if err != nil {
		return err
	}

	var notifier driven.Notifier = notify.NewLogEmitter(slog.Default())
	if cfg.HasKafka() {
		kafka, err := notify.NewKafkaEmitter(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return err
		}
		defer kafka.Close()
		notifier = kafka
		slog.Info("kafka notifier configured", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}

	// 6. Application services.
	alertSvc := application.NewAlertService(notificationStore, notifier, m)
	credentialSvc := application.NewCredentialService(credentialStore, companyStore, cipher)
	connectionSvc := application.NewConnectionService(companyStore, credentialStore, gatewayClient, gatewayClient, alertSvc, m)
	monitor := application.NewCertificateMonitor(credentialSvc, credentialStore, companyStore, connectionSvc, alertSvc, m, cfg.MonitorHour)

	// 7. Background tasks.
	orchestrator := application.NewOrchestrator(m,
		monitor,
		application.NewJobTask("municipality-retries", cfg.RetryInterval, gatewayClient.ProcessMunicipalityRetries, companyStore.Ping),
		application.NewJobTask("invoice-status-sync", cfg.InvoicePollInterval, gatewayClient.SyncInvoiceStatuses, companyStore.Ping),
	)
	orchestrator.StartAll(ctx)

	// 8. HTTP API.
	apiHandler := httphandler.NewHandler(companyStore, credentialSvc, connectionSvc, monitor, orchestrator, slog.Default())
	handler := httphandler.NewServeMux(apiHandler, registry, slog.Default())

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
			stop()
		}
	}()

	slog.Info("fiscalkeeper started", "listen_addr", cfg.ListenAddr)

	// 9. Wait for shutdown signal.
	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}
	if err := orchestrator.Stop(); err != nil {
		slog.Warn("background task ended with error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}
