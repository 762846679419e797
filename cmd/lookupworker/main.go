// Command lookupworker runs a single-service lookup worker pool (C4). The
// service kind it serves is selected at startup via --kind or LOOKUP_KIND,
// so the same binary serves geoip, ping, rdap, and reversedns depending on
// how the process is invoked.
package main

import (
	"context"
	"encoding/json"
	"flag"
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
	"github.com/netreach/lookupd/internal/config"
	"github.com/netreach/lookupd/internal/domain"
	"github.com/netreach/lookupd/internal/resultstore"
	pgresultstore "github.com/netreach/lookupd/internal/resultstore/postgres"
	redisresultstore "github.com/netreach/lookupd/internal/resultstore/redis"
	"github.com/netreach/lookupd/internal/worker"
	"github.com/netreach/lookupd/internal/worker/lookups/geoip"
	"github.com/netreach/lookupd/internal/worker/lookups/ping"
	"github.com/netreach/lookupd/internal/worker/lookups/rdap"
	"github.com/netreach/lookupd/internal/worker/lookups/reversedns"
)

func main() {
	var kindFlag string
	flag.StringVar(&kindFlag, "kind", os.Getenv("LOOKUP_KIND"), "service kind to run (geoip, ping, rdap, reversedns)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	envelope, err := buildEnvelope(domain.ServiceKind(kindFlag), cfg)
	if err != nil {
		slog.Error("worker envelope init failed", slog.Any("error", err))
		os.Exit(1)
	}

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(":9092", mux); err != nil {
			slog.Error("lookupworker metrics server error", slog.Any("error", err))
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

	rdb, err := statestoreredis.NewClient(cfg.StateStoreURL)
	if err != nil {
		slog.Error("state store connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = rdb.Close() }()

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

	runtime := worker.NewRuntime(envelope, resolver, producer)

	groupID := "lookupd-workers-" + string(envelope.Kind)
	consumer, err := kafka.NewConsumer(cfg.BusBrokers, groupID, kafka.CommandTopic(envelope.Kind))
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

	slog.Info("lookup worker starting", slog.String("kind", string(envelope.Kind)))
	if err := consumer.Run(runCtx, func(ctx context.Context, _ string, _, value []byte) error {
		var cmd domain.Command
		if err := json.Unmarshal(value, &cmd); err != nil {
			return fmt.Errorf("op=lookupworker.unmarshal_command: %w", err)
		}
		return runtime.HandleCommand(ctx, cmd)
	}); err != nil {
		slog.Error("lookup worker stopped with error", slog.Any("error", err))
	}
}

func buildEnvelope(kind domain.ServiceKind, cfg config.Config) (worker.Envelope, error) {
	switch kind {
	case domain.ServiceGeoIP:
		return worker.Envelope{Kind: domain.ServiceGeoIP, Validate: geoip.Validate, PerformLookup: geoip.PerformLookup}, nil
	case domain.ServicePing:
		lookup := ping.NewLookup(ping.Config{
			ProbeCount:   cfg.PingProbeCount,
			ProbeSpacing: cfg.PingProbeSpacing,
			ProbeTimeout: cfg.PingProbeTimeout,
		})
		return worker.Envelope{Kind: domain.ServicePing, Validate: ping.Validate, PerformLookup: lookup.PerformLookup}, nil
	case domain.ServiceRDAP:
		lookup := rdap.NewLookup(cfg.RDAPTimeout)
		return worker.Envelope{Kind: domain.ServiceRDAP, Validate: rdap.Validate, PerformLookup: lookup.PerformLookup}, nil
	case domain.ServiceReverseDNS:
		return worker.Envelope{Kind: domain.ServiceReverseDNS, Validate: reversedns.Validate, PerformLookup: reversedns.PerformLookup}, nil
	default:
		return worker.Envelope{}, fmt.Errorf("op=lookupworker.buildEnvelope: unknown service kind %q", kind)
	}
}
