package app

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/netreach/lookupd/internal/domain"
	"github.com/netreach/lookupd/internal/sagastore"
)

// FanoutSweeper republishes commands for sagas whose fan-out never fully
// landed: a saga committed to Processing before its commands were
// successfully published (see the fan-out durability decision in
// SPEC_FULL.md §4.4), or whose worker never reported back within
// SagaSweepAfter. Each pass republishes every pending service of every
// Processing saga created before the cutoff. The saga discards completions
// for services no longer pending. A republished command that runs twice
// writes its result twice: the key_value backend overwrites the record under
// its (jobID, kind) key, while the document_db backend inserts a second
// document under a new document ID.
type FanoutSweeper struct {
	Store    sagastore.Store
	Bus      domain.Bus
	After    time.Duration
	Interval time.Duration
}

// NewFanoutSweeper constructs a FanoutSweeper with sane defaults when after
// or interval are not positive.
func NewFanoutSweeper(store sagastore.Store, bus domain.Bus, after, interval time.Duration) *FanoutSweeper {
	if after <= 0 {
		after = 2 * time.Minute
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &FanoutSweeper{Store: store, Bus: bus, After: after, Interval: interval}
}

// Run sweeps once immediately, then on every tick until ctx is cancelled.
func (s *FanoutSweeper) Run(ctx context.Context) {
	if s == nil || s.Store == nil || s.Bus == nil {
		return
	}

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.sweepOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			slog.Info("fan-out sweeper stopping")
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *FanoutSweeper) sweepOnce(ctx context.Context) {
	tracer := otel.Tracer("sagas.sweeper")
	ctx, span := tracer.Start(ctx, "FanoutSweeper.sweepOnce")
	defer span.End()

	cutoff := time.Now().Add(-s.After)
	const pageSize = 100

	instances, err := s.Store.ListStuckProcessing(ctx, cutoff, pageSize)
	if err != nil {
		span.RecordError(err)
		slog.Error("fan-out sweep failed to list stuck sagas", slog.Any("error", err))
		return
	}

	span.SetAttributes(attribute.Int("sagas.stuck_count", len(instances)))

	republished := 0
	for _, inst := range instances {
		pending := inst.Pending()
		if len(pending) == 0 {
			continue
		}
		for _, kind := range pending {
			cmd := domain.Command{JobID: inst.JobID, Target: inst.Target, TargetKind: inst.TargetKind, Kind: kind}
			if err := s.Bus.PublishCommand(ctx, cmd); err != nil {
				slog.Error("fan-out sweep failed to republish command",
					slog.String("job_id", inst.JobID), slog.String("kind", string(kind)), slog.Any("error", err))
				continue
			}
			republished++
		}
	}

	span.SetAttributes(attribute.Int("sagas.commands_republished", republished))
}
