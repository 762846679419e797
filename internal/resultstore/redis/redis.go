// Package redis implements the key_value resultstore.Backend on Redis: each
// lookup result is a JSON blob under its own key with a configurable TTL.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/netreach/lookupd/internal/domain"
)

// Backend stores result records as Redis strings.
type Backend struct {
	rdb *redis.Client
	ttl time.Duration
}

// New constructs a Backend backed by rdb, writing every record with ttl (0
// disables expiry).
func New(rdb *redis.Client, ttl time.Duration) *Backend {
	return &Backend{rdb: rdb, ttl: ttl}
}

// Kind reports the StorageKind this backend implements.
func (b *Backend) Kind() domain.StorageKind { return domain.StorageKeyValue }

func resultKey(jobID string, kind domain.ServiceKind) string {
	return fmt.Sprintf("worker-result:%s:%s", jobID, kind)
}

type wireResult struct {
	JobID        string    `json:"job_id"`
	Kind         domain.ServiceKind `json:"kind"`
	Success      bool      `json:"success"`
	ErrorMessage string    `json:"error_message,omitempty"`
	DurationMS   int64     `json:"duration_ms"`
	CompletedAt  time.Time `json:"completed_at"`
	Data         []byte    `json:"data,omitempty"`
}

func (b *Backend) save(ctx domain.Context, jobID string, kind domain.ServiceKind, w wireResult) (domain.ResultLocation, error) {
	raw, err := json.Marshal(w)
	if err != nil {
		return domain.ResultLocation{}, fmt.Errorf("op=resultstore.redis.marshal: %w", err)
	}
	key := resultKey(jobID, kind)
	if err := b.rdb.Set(ctx, key, raw, b.ttl).Err(); err != nil {
		return domain.ResultLocation{}, fmt.Errorf("op=resultstore.redis.save: %w", err)
	}
	return domain.ResultLocation{Backend: domain.StorageKeyValue, Key: key, TTL: b.ttl}, nil
}

// SaveSuccess persists a successful lookup result.
func (b *Backend) SaveSuccess(ctx domain.Context, jobID string, kind domain.ServiceKind, data []byte, duration time.Duration) (domain.ResultLocation, error) {
	return b.save(ctx, jobID, kind, wireResult{
		JobID: jobID, Kind: kind, Success: true,
		DurationMS: duration.Milliseconds(), CompletedAt: time.Now().UTC(), Data: data,
	})
}

// SaveFailure persists a failed lookup result.
func (b *Backend) SaveFailure(ctx domain.Context, jobID string, kind domain.ServiceKind, errMsg string, duration time.Duration) (domain.ResultLocation, error) {
	return b.save(ctx, jobID, kind, wireResult{
		JobID: jobID, Kind: kind, Success: false, ErrorMessage: errMsg,
		DurationMS: duration.Milliseconds(), CompletedAt: time.Now().UTC(),
	})
}

// Fetch dereferences loc. A missing or corrupt key is tolerated and reported
// as (nil, nil), per the query assembler's contract in §4.6.
func (b *Backend) Fetch(ctx domain.Context, loc domain.ResultLocation) (*domain.Result, error) {
	raw, err := b.rdb.Get(ctx, loc.Key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("op=resultstore.redis.fetch: %w", err)
	}
	var w wireResult
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, nil
	}
	return &domain.Result{
		JobID:        w.JobID,
		Kind:         w.Kind,
		Success:      w.Success,
		ErrorMessage: w.ErrorMessage,
		Duration:     time.Duration(w.DurationMS) * time.Millisecond,
		CompletedAt:  w.CompletedAt,
		Data:         w.Data,
	}, nil
}
