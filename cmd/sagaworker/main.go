// Command sagaworker drives the saga coordinator: it consumes job-submitted
// and task-completed events, folds them into the saga state machine, and
// republishes stuck fan-outs.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/netreach/lookupd/internal/adapter/bus/kafka"
	"github.com/netreach/lookupd/internal/adapter/observability"
	"github.com/netreach/lookupd/internal/adapter/repo/postgres"
	statestoreredis "github.com/netreach/lookupd/internal/adapter/statestore/redis"
	"github.com/netreach/lookupd/internal/app"
	"github.com/netreach/lookupd/internal/config"
	"github.com/netreach/lookupd/internal/domain"
	"github.com/netreach/lookupd/internal/sagastore"
	pgsagastore "github.com/netreach/lookupd/internal/sagastore/postgres"
	redissagastore "github.com/netreach/lookupd/internal/sagastore/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(":9091", mux); err != nil {
			slog.Error("sagaworker metrics server error", slog.Any("error", err))
		}
	}()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	ctx := context.Background()

	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		slog.Error("db connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	var sagaStore sagastore.Store
	switch cfg.SagaStoreBackend {
	case "redis":
		rdb, err := statestoreredis.NewClient(cfg.StateStoreURL)
		if err != nil {
			slog.Error("state store connect failed", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() { _ = rdb.Close() }()
		sagaStore = redissagastore.New(rdb)
	default:
		sagaStore = pgsagastore.New(pool)
	}

	producer, err := kafka.NewProducer(cfg.BusBrokers)
	if err != nil {
		slog.Error("bus producer connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer producer.Close()

	coordinator := app.NewSagaCoordinator(sagaStore, producer)

	sweeper := app.NewFanoutSweeper(sagaStore, producer, cfg.SagaSweepAfter, cfg.SagaSweepInterval)
	go sweeper.Run(ctx)

	consumer, err := kafka.NewConsumer(cfg.BusBrokers, "lookupd-saga-coordinator", kafka.TopicJobSubmitted, kafka.TopicTaskCompleted)
	if err != nil {
		slog.Error("bus consumer connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer consumer.Close()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	runCtx, cancel := context.WithCancel(ctx)
	go func() {
		<-sigCh
		slog.Info("shutdown signal received")
		cancel()
	}()

	slog.Info("saga coordinator starting")
	if err := consumer.Run(runCtx, func(ctx context.Context, topic string, _, value []byte) error {
		return handleRecord(ctx, coordinator, topic, value)
	}); err != nil {
		slog.Error("saga coordinator stopped with error", slog.Any("error", err))
	}
}

func handleRecord(ctx context.Context, coordinator *app.SagaCoordinator, topic string, value []byte) error {
	switch topic {
	case kafka.TopicJobSubmitted:
		var e domain.JobSubmitted
		if err := json.Unmarshal(value, &e); err != nil {
			return fmt.Errorf("op=sagaworker.unmarshal_job_submitted: %w", err)
		}
		return coordinator.HandleJobSubmitted(ctx, e)
	case kafka.TopicTaskCompleted:
		var e domain.TaskCompleted
		if err := json.Unmarshal(value, &e); err != nil {
			return fmt.Errorf("op=sagaworker.unmarshal_task_completed: %w", err)
		}
		return coordinator.HandleTaskCompleted(ctx, e)
	default:
		slog.Warn("saga coordinator received record on unknown topic", slog.String("topic", topic))
		return nil
	}
}
