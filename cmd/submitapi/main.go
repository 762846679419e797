// Command submitapi starts the lookupd HTTP submission and polling API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/netreach/lookupd/internal/adapter/bus/kafka"
	httpserver "github.com/netreach/lookupd/internal/adapter/httpserver"
	"github.com/netreach/lookupd/internal/adapter/observability"
	"github.com/netreach/lookupd/internal/adapter/repo/postgres"
	statestoreredis "github.com/netreach/lookupd/internal/adapter/statestore/redis"
	"github.com/netreach/lookupd/internal/app"
	"github.com/netreach/lookupd/internal/config"
	"github.com/netreach/lookupd/internal/domain"
	"github.com/netreach/lookupd/internal/query"
	"github.com/netreach/lookupd/internal/resultstore"
	pgresultstore "github.com/netreach/lookupd/internal/resultstore/postgres"
	redisresultstore "github.com/netreach/lookupd/internal/resultstore/redis"
	"github.com/netreach/lookupd/internal/sagastore"
	pgsagastore "github.com/netreach/lookupd/internal/sagastore/postgres"
	redissagastore "github.com/netreach/lookupd/internal/sagastore/redis"
	"github.com/netreach/lookupd/internal/submission"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

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

	rdb, err := statestoreredis.NewClient(cfg.StateStoreURL)
	if err != nil {
		slog.Error("state store connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = rdb.Close() }()

	var sagaStore sagastore.Store
	switch cfg.SagaStoreBackend {
	case "redis":
		sagaStore = redissagastore.New(rdb)
	default:
		sagaStore = pgsagastore.New(pool)
	}

	resolver, err := resultstore.NewResolver(
		domain.StorageKind(cfg.ResultStoreDefaultBackend),
		pgresultstore.New(pool),
		redisresultstore.New(rdb, cfg.ResultStoreTTL),
	)
	if err != nil {
		slog.Error("result store resolver init failed", slog.Any("error", err))
		os.Exit(1)
	}

	producer, err := kafka.NewProducer(cfg.BusBrokers)
	if err != nil {
		slog.Error("bus producer connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer producer.Close()

	jobRepo := postgres.NewJobRepo(pool)

	if cfg.DataRetention > 0 {
		cleanupSvc := postgres.NewCleanupService(pool, cfg.DataRetention)
		go cleanupSvc.RunPeriodic(ctx, cfg.CleanupInterval)
		slog.Info("cleanup service started", slog.Duration("retention", cfg.DataRetention), slog.Duration("interval", cfg.CleanupInterval))
	}

	sub := submission.NewService(jobRepo, sagaStore, producer, cfg.ValidatorAllowSingleLabel, cfg.MaxServicesPerJob)
	assembler := query.NewAssembler(sagaStore, resolver)

	dbCheck, stateCheck, busCheck := app.BuildReadinessChecks(pool, redisPinger{rdb}, noopPinger{})

	srv := httpserver.NewServer(cfg, sub, assembler, dbCheck, stateCheck, busCheck)
	handler := app.BuildRouter(cfg, srv)

	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.Int("port", cfg.Port))
		errCh <- srvHTTP.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = srvHTTP.Shutdown(shutdownCtx)
}

// redisPinger adapts statestoreredis.Ping to app.Pinger.
type redisPinger struct{ rdb *redis.Client }

func (p redisPinger) Ping(ctx context.Context) error { return statestoreredis.Ping(ctx, p.rdb) }

// noopPinger is used where no cheap liveness probe exists for a collaborator
// (the Kafka producer's health is implied by successful publishes).
type noopPinger struct{}

func (noopPinger) Ping(context.Context) error { return nil }
