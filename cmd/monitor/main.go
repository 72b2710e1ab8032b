// cmd/monitor/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/OmkarPadhy/AQI-Dashboard/internal/alerting"
	"github.com/OmkarPadhy/AQI-Dashboard/internal/alertlog"
	"github.com/OmkarPadhy/AQI-Dashboard/internal/anomaly"
	"github.com/OmkarPadhy/AQI-Dashboard/internal/api"
	"github.com/OmkarPadhy/AQI-Dashboard/internal/cache"
	"github.com/OmkarPadhy/AQI-Dashboard/internal/config"
	"github.com/OmkarPadhy/AQI-Dashboard/internal/data"
	"github.com/OmkarPadhy/AQI-Dashboard/internal/exposure"
	"github.com/OmkarPadhy/AQI-Dashboard/internal/ingest"
	"github.com/OmkarPadhy/AQI-Dashboard/internal/logging"
	"github.com/OmkarPadhy/AQI-Dashboard/internal/metrics"
	"github.com/OmkarPadhy/AQI-Dashboard/internal/monitor"
	"github.com/OmkarPadhy/AQI-Dashboard/internal/storage"
	"github.com/OmkarPadhy/AQI-Dashboard/internal/websocket"
)

const serviceName = "exposure-monitor"

func main() {
	// --- Configuration ---
	configPath := flag.String("config", ".", "Path to the configuration file directory")
	webDir := flag.String("webdir", "", "Path to the web assets directory (overrides server.web_dir)")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *webDir != "" {
		cfg.Server.WebDir = *webDir
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, serviceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error building logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Monitor exited with error", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

// sources picks the ingestion source, its fallback and the history backend.
func sources(cfg *config.Config, archive *storage.Archive, m *metrics.Metrics, logger *zap.Logger) (ingest.Source, ingest.Source, ingest.WindowFetcher, func(), error) {
	sim, err := ingest.NewSimulator(cfg.Ingest.Simulator.Variant, cfg.Ingest.Simulator.Interval,
		cfg.Ingest.Simulator.Seed, cfg.Ingest.Simulator.DeviceID, logger)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	noop := func() {}
	if cfg.Ingest.Mode == config.ModeMock {
		return sim, nil, archive, noop, nil
	}

	var fallback ingest.Source
	if cfg.Ingest.FallbackToMock {
		fallback = sim
	}

	r := cfg.Ingest.Retry
	policy := ingest.RetryPolicy{
		MaxAttempts:     r.MaxAttempts,
		InitialInterval: r.InitialInterval,
		MaxInterval:     r.MaxInterval,
		AttemptTimeout:  r.AttemptTimeout,
		BreakerFailures: r.BreakerFailures,
		BreakerTimeout:  r.BreakerTimeout,
	}

	switch cfg.Ingest.Backend {
	case config.BackendPostgres:
		pg := cfg.Ingest.Postgres
		db, err := ingest.OpenPostgres(pg.DSN)
		if err != nil {
			if fallback == nil {
				return nil, nil, nil, nil, err
			}
			logger.Warn("Postgres unreachable, history served from the archive", zap.Error(err))
			return ingest.NewUnavailable(ingest.SourcePostgres, err), fallback, archive, noop, nil
		}
		src := ingest.NewPostgresSource(db, pg.DSN, pg.Table, pg.Channel, logger)
		res := ingest.NewResilient(src, src, policy, m, logger)
		return res, fallback, res, func() { db.Close() }, nil

	case config.BackendMQTT:
		mq := cfg.Ingest.MQTT
		src := ingest.NewMQTTSource(ingest.MQTTOptions{
			Broker:   mq.Broker,
			ClientID: mq.ClientID,
			Username: mq.Username,
			Password: mq.Password,
			Topic:    mq.Topic,
			QoS:      mq.QoS,
		}, logger)
		res := ingest.NewResilient(src, archive, policy, m, logger)
		return res, fallback, res, noop, nil
	}
	return nil, nil, nil, nil, fmt.Errorf("%w: unknown ingest backend %q", config.ErrInvalidConfig, cfg.Ingest.Backend)
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	// --- Initialize Components ---
	table, err := cfg.ThresholdTable()
	if err != nil {
		return err
	}
	m := metrics.New()
	hub := websocket.NewHub(logger)

	archive, err := storage.NewArchive(cfg.Storage.ArchivePath)
	if err != nil {
		return err
	}
	defer archive.Close()

	var notifiers []alerting.Notifier
	if len(cfg.Kafka.Brokers) > 0 {
		kn := alerting.NewKafkaNotifier(cfg.Kafka.Brokers, cfg.Kafka.AlertTopic, logger)
		defer kn.Close()
		notifiers = append(notifiers, kn)
	}
	if cfg.Alerts.WebhookURL != "" {
		notifiers = append(notifiers, alerting.NewWebhookNotifier(cfg.Alerts.WebhookURL, cfg.Alerts.WebhookTimeout, logger))
	}
	alerter := alerting.NewAlerter(hub, logger, notifiers...)

	opts := monitor.Options{
		Store:          storage.NewMemoryStore(cfg.Storage.MemoryCapacity),
		Detector:       anomaly.NewDetector(table),
		Log:            alertlog.New(cfg.Alerts.Capacity),
		Archive:        archive,
		Alerter:        alerter,
		Broadcaster:    hub,
		Metrics:        m,
		Logger:         logger,
		Primary:        data.Quantity(cfg.Exposure.PrimaryField),
		WindowSize:     cfg.Exposure.WindowSize,
		DefaultProfile: exposure.RiskProfile(cfg.Exposure.DefaultProfile),
	}

	if cfg.Redis.Enabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := redisClient.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			logger.Warn("Redis unreachable, alert log will not be shared", zap.Error(err))
		} else {
			opts.Cache = cache.NewAlertCache(redisClient, cfg.Redis.AlertKey, cfg.Redis.AlertTTL, logger)
		}
	}

	source, fallback, history, closeSources, err := sources(cfg, archive, m, logger)
	if err != nil {
		return err
	}
	defer closeSources()
	opts.History = history

	mon := monitor.New(opts)
	if err := mon.RestoreAlerts(ctx); err != nil {
		logger.Warn("Could not restore alert log", zap.Error(err))
	}

	apiHandler := api.NewAPIHandler(mon, hub, table, m, cfg.Server.WebDir, cfg.Ingest.Mode, logger)

	// --- Start WebSocket Hub and ingestion ---
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	go hub.Run(runCtx)

	ingestDone := make(chan error, 1)
	go func() { ingestDone <- mon.Run(runCtx, source, fallback) }()

	// --- Setup HTTP Servers ---
	dataServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.DataPort),
		Handler:           api.SetupDataRouter(apiHandler),
		ReadHeaderTimeout: 10 * time.Second,
	}
	uiServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.UIPort),
		Handler:           api.SetupUIRouter(apiHandler, cfg.Server.CORSOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 2)
	for name, srv := range map[string]*http.Server{"data": dataServer, "ui": uiServer} {
		go func(name string, srv *http.Server) {
			logger.Info("Starting HTTP server", zap.String("server", name), zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErr <- fmt.Errorf("%s server: %w", name, err)
			}
		}(name, srv)
	}

	// --- Graceful Shutdown ---
	var runErr error
	ingestStopped := false
	select {
	case <-ctx.Done():
		logger.Info("Shutting down servers...")
	case runErr = <-serverErr:
	case runErr = <-ingestDone:
		ingestStopped = true
		if runErr == nil {
			runErr = errors.New("ingestion stopped unexpectedly")
		}
	}
	cancelRun()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	for _, srv := range []*http.Server{dataServer, uiServer} {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Server shutdown error", zap.String("addr", srv.Addr), zap.Error(err))
		}
	}
	if !ingestStopped {
		<-ingestDone
	}
	alerter.Wait()

	logger.Info("Servers gracefully stopped.")
	return runErr
}
