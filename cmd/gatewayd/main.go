// Command gatewayd runs the computation gateway: it wires the Kafka
// producer/consumer, the Result Ledger, the Feeder, the Router, the
// WebSocket Hub and the HTTP API together and runs them under a single
// Dispatcher until SIGINT or SIGTERM.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/velivolant/gateway"
	"github.com/velivolant/gateway/config"
	"github.com/velivolant/gateway/httpapi"
	"github.com/velivolant/gateway/storage/pgstore"
	"github.com/velivolant/gateway/ws"
)

func main() {
	os.Exit(run())
}

func run() int {
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		return 1
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", zap.Error(err))
		return 1
	}

	db, err := sql.Open("pgx", cfg.Postgres().DSN())
	if err != nil {
		logger.Error("failed to open postgres connection", zap.Error(err))
		return 1
	}
	defer db.Close()
	db.SetMaxOpenConns(20)

	store := pgstore.NewPGStore(db, logger)
	ledger := gateway.NewLedger(store, db, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := ledger.EnsureSchema(ctx); err != nil {
		logger.Error("failed to ensure ledger schema", zap.Error(err))
		return 1
	}

	metrics := gateway.NewOpenTelemetryMetricsCollector()

	kafkaCfg := cfg.Kafka()
	producer, err := gateway.NewKafkaProducer(logger,
		gateway.WithKafkaProducerLogger(logger),
		gateway.WithKafkaProducerProps(kafkaConnProps(kafkaCfg)),
	)
	if err != nil {
		logger.Error("failed to create kafka producer", zap.Error(err))
		return 1
	}
	defer producer.Close()

	feeder := gateway.NewFeeder(producer,
		gateway.WithFeederLogger(logger),
		gateway.WithFeederMetrics(metrics),
	)

	hub := ws.NewHub([]byte(cfg.JWTSecret), logger)
	ws.RegisterMetrics(prometheus.DefaultRegisterer)

	router := gateway.NewRouter(ledger, feeder,
		gateway.WithRouterLogger(logger),
		gateway.WithRouterMetrics(metrics),
		gateway.WithRouterBroadcaster(hub),
	)

	consumer, err := gateway.NewKafkaConsumer(router.Route, logger,
		gateway.WithKafkaConsumerLogger(logger),
		gateway.WithKafkaConsumerProps(kafkaConnProps(kafkaCfg)),
	)
	if err != nil {
		logger.Error("failed to create kafka consumer", zap.Error(err))
		return 1
	}

	ledgerCleanup := gateway.NewLedgerCleanup(store, logger, metrics)

	server := httpapi.NewServer(feeder, ledger, logger)
	ginEngine := httpapi.NewRouter(server, http.HandlerFunc(hub.ServeHTTP), logger)
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: ginEngine,
	}
	httpWorker := newHTTPServerWorker(httpServer, logger)

	dispatcher := gateway.NewDispatcher(logger,
		consumer,
		feeder.SweepWorker(),
		ledgerCleanup.Worker(),
		hub,
		httpWorker,
	)

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("gatewayd starting", zap.Int("http_port", cfg.HTTPPort))
	dispatcher.Start(sigCtx)
	logger.Info("gatewayd stopped")

	return 0
}

// kafkaConnProps translates config.KafkaConfig into the broker
// connectivity subset of a kafka.ConfigMap; idempotence, acks and the
// other producer/consumer behavioral defaults stay baked into
// NewKafkaProducer/NewKafkaConsumer and are only overridden here for
// connection and auth details.
func kafkaConnProps(k config.KafkaConfig) kafka.ConfigMap {
	props := kafka.ConfigMap{
		"bootstrap.servers": strings.Join(k.Brokers, ","),
	}
	switch {
	case k.SASLEnabled && k.SSL:
		props["security.protocol"] = "SASL_SSL"
	case k.SASLEnabled:
		props["security.protocol"] = "SASL_PLAINTEXT"
	case k.SSL:
		props["security.protocol"] = "SSL"
	}
	if k.SASLEnabled {
		props["sasl.mechanisms"] = "PLAIN"
		props["sasl.username"] = k.APIKey
		props["sasl.password"] = k.APISecret
	}
	return props
}

// httpServerWorker adapts *http.Server to the Worker interface so the
// Dispatcher can supervise it alongside the Kafka and WS workers.
type httpServerWorker struct {
	server *http.Server
	logger *zap.Logger
}

func newHTTPServerWorker(server *http.Server, logger *zap.Logger) *httpServerWorker {
	return &httpServerWorker{server: server, logger: logger}
}

func (w *httpServerWorker) Name() string { return "http-api" }

func (w *httpServerWorker) Start(ctx context.Context) {
	go func() {
		<-ctx.Done()
		w.Stop()
	}()

	w.logger.Info("http api listening", zap.String("addr", w.server.Addr))
	if err := w.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		w.logger.Error("http server error", zap.Error(err))
	}
}

func (w *httpServerWorker) Stop() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := w.server.Shutdown(shutdownCtx); err != nil {
		w.logger.Error("http server shutdown error", zap.Error(err))
	}
}
