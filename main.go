package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	alarmhttp "github.com/ericmeyer1/buzzline-06-meyer/internal/alarms/interfaces/http"
	alarmnotify "github.com/ericmeyer1/buzzline-06-meyer/internal/alarms/notify"
	"github.com/ericmeyer1/buzzline-06-meyer/internal/config"
	dashboardapp "github.com/ericmeyer1/buzzline-06-meyer/internal/dashboard/application"
	dashboardhttp "github.com/ericmeyer1/buzzline-06-meyer/internal/dashboard/interfaces/http"
	"github.com/ericmeyer1/buzzline-06-meyer/internal/eventing"
	"github.com/ericmeyer1/buzzline-06-meyer/internal/observability/metrics"
	ingest "github.com/ericmeyer1/buzzline-06-meyer/internal/telemetry/application"
	telemetry "github.com/ericmeyer1/buzzline-06-meyer/internal/telemetry/domain"
	telemetrydynamo "github.com/ericmeyer1/buzzline-06-meyer/internal/telemetry/infrastructure/dynamo"
	telemetrymemory "github.com/ericmeyer1/buzzline-06-meyer/internal/telemetry/infrastructure/memory"
	telemetrypostgres "github.com/ericmeyer1/buzzline-06-meyer/internal/telemetry/infrastructure/postgres"
	filesource "github.com/ericmeyer1/buzzline-06-meyer/internal/telemetry/interfaces/file"
	mqttsource "github.com/ericmeyer1/buzzline-06-meyer/internal/telemetry/interfaces/mqtt"
	"github.com/ericmeyer1/buzzline-06-meyer/internal/telemetry/interfaces/push"
)

const shutdownTimeout = 5 * time.Second

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sink, err := openSink(ctx, cfg.Sink, logger)
	if err != nil {
		logger.Fatal("sink error", zap.String("kind", cfg.Sink.Kind), zap.Error(err))
	}
	defer sink.close()

	source, ingestHandler, closeSource, err := openSource(cfg.Transport, logger)
	if err != nil {
		logger.Fatal("transport error", zap.String("kind", cfg.Transport.Kind), zap.Error(err))
	}
	defer closeSource()

	broker := alarmhttp.NewSSEBroker()
	notifier, err := buildNotifier(cfg.Alerts, broker, logger)
	if err != nil {
		logger.Fatal("alert notifier error", zap.Error(err))
	}

	engine, err := ingest.NewEngine(sink.writer,
		ingest.WithDeduplicator(eventing.NewDeduplicator(cfg.Ingest.DedupCapacity)),
		ingest.WithWindowCapacity(cfg.Window.Capacity),
		ingest.WithNotifier(notifier),
		ingest.WithLogger(logger.Named("engine")),
		ingest.WithSinkName(cfg.Sink.Kind),
		ingest.WithSinkTimeout(cfg.Sink.Timeout),
		ingest.WithWorkers(cfg.Ingest.Workers),
	)
	if err != nil {
		logger.Fatal("engine error", zap.Error(err))
	}
	loop, err := ingest.NewLoop(engine, source, cfg.Ingest.PollInterval, logger.Named("ingest"))
	if err != nil {
		logger.Fatal("ingest loop error", zap.Error(err))
	}

	hub := dashboardhttp.NewHub(logger.Named("ws"))
	refresher, err := dashboardapp.NewRefresher(engine, hub, cfg.Dashboard.RefreshInterval, logger.Named("dashboard"))
	if err != nil {
		logger.Fatal("dashboard refresher error", zap.Error(err))
	}
	handlerOpts := []dashboardhttp.Option{
		dashboardhttp.WithHistoryLimit(cfg.Dashboard.HistoryLimit),
		dashboardhttp.WithLogger(logger.Named("http")),
	}
	if sink.query != nil {
		handlerOpts = append(handlerOpts, dashboardhttp.WithReadingQuery(sink.query))
	}
	handler, err := dashboardhttp.NewHandler(engine, handlerOpts...)
	if err != nil {
		logger.Fatal("dashboard handler error", zap.Error(err))
	}
	router := dashboardhttp.NewRouter(handler, dashboardhttp.Routes{
		Hub:         hub,
		AlarmStream: alarmhttp.NewStreamHandler(broker),
		Ingest:      ingestHandler,
		Logger:      logger.Named("http"),
	})
	server := &http.Server{
		Addr:              cfg.Dashboard.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return refresher.Run(gctx)
	})
	g.Go(func() error {
		logger.Info("http listening", zap.String("addr", cfg.Dashboard.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		summary, err := loop.Run(gctx)
		logger.Info("final summary",
			zap.Int64("anomalies_detected", summary.AnomalyCount),
			zap.Int("machines_observed", summary.Machines),
			zap.Int64("processed", summary.Processed),
			zap.Int64("duplicates", summary.Duplicates),
			zap.Int64("malformed", summary.Malformed),
			zap.Int64("sink_failures", summary.SinkFailures),
		)
		return err
	})

	if err := g.Wait(); err != nil {
		logger.Error("analytics service stopped with error", zap.Error(err))
		return
	}
	logger.Info("analytics service stopped")
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	if cfg.Development {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// openedSink bundles the configured writer with its optional history query.
type openedSink struct {
	writer telemetry.ReadingSink
	query  telemetry.ReadingQuery
	close  func()
}

func openSink(ctx context.Context, cfg config.SinkConfig, logger *zap.Logger) (openedSink, error) {
	var out openedSink
	out.close = func() {}

	switch cfg.Kind {
	case config.SinkPostgres:
		db, err := sql.Open("pgx", cfg.Postgres.DSN)
		if err != nil {
			return out, err
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return out, err
		}
		repo := telemetrypostgres.NewReadingRepository(db, telemetrypostgres.WithTable(cfg.Postgres.Table))
		if err := repo.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return out, err
		}
		out.writer, out.query = repo, repo
		out.close = func() { _ = db.Close() }
	case config.SinkDynamoDB:
		client, err := telemetrydynamo.NewClient(cfg.DynamoDB.Region)
		if err != nil {
			return out, err
		}
		table, err := telemetrydynamo.NewReadingTable(client, telemetrydynamo.WithTable(cfg.DynamoDB.Table))
		if err != nil {
			return out, err
		}
		out.writer, out.query = table, table
	default:
		repo := telemetrymemory.NewReadingRepository()
		out.writer, out.query = repo, repo
	}

	if cfg.RetryAttempts > 1 {
		retrying, err := ingest.NewRetryingSink(out.writer, cfg.RetryAttempts, cfg.RetryBackoff, logger.Named("sink"))
		if err != nil {
			out.close()
			return out, err
		}
		out.writer = retrying
	}
	logger.Info("sink ready", zap.String("kind", cfg.Kind), zap.Int("retry_attempts", cfg.RetryAttempts))
	return out, nil
}

// openSource returns the configured source and, for push ingestion, the
// handler producers post to.
func openSource(cfg config.TransportConfig, logger *zap.Logger) (telemetry.Source, http.Handler, func(), error) {
	switch cfg.Kind {
	case config.TransportHTTP:
		src := push.NewSource(cfg.HTTP.BufferSize, logger.Named("push"))
		return src, src, func() {}, nil
	case config.TransportMQTT:
		sub, err := mqttsource.NewSubscriber(mqttsource.Config{
			Broker:   cfg.MQTT.Broker,
			Topic:    cfg.MQTT.Topic,
			ClientID: cfg.MQTT.ClientID,
			QoS:      byte(cfg.MQTT.QoS),
		}, mqttsource.WithLogger(logger.Named("mqtt")))
		if err != nil {
			return nil, nil, nil, err
		}
		return sub, nil, func() { _ = sub.Close() }, nil
	default:
		tail, err := filesource.NewTailSource(cfg.File.Path, logger.Named("file"))
		if err != nil {
			return nil, nil, nil, err
		}
		return tail, nil, func() {}, nil
	}
}

func buildNotifier(cfg config.AlertsConfig, broker *alarmhttp.SSEBroker, logger *zap.Logger) (ingest.AnomalyNotifier, error) {
	notifiers := []alarmnotify.AnomalyNotifier{
		alarmnotify.NewLogNotifier(logger.Named("alerts")),
		broker,
	}
	if cfg.WebhookURL != "" {
		channel, err := alarmnotify.NewWebhookChannel(cfg.WebhookURL,
			alarmnotify.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		)
		if err != nil {
			return nil, err
		}
		tpl, err := alarmnotify.NewTemplate(cfg.Template)
		if err != nil {
			return nil, err
		}
		webhook, err := alarmnotify.NewNotifier(channel, tpl,
			alarmnotify.WithCooldown(cfg.Cooldown),
			alarmnotify.WithRequestTimeout(cfg.Timeout),
			alarmnotify.WithChannelName("webhook"),
		)
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, webhook)
	}
	return alarmnotify.NewMultiNotifier(notifiers...), nil
}
