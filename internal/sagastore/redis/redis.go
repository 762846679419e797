// Package redis implements the sagastore.Store port on Redis, using a Lua
// script to make the compare-and-set on an instance's version atomic, the
// same pattern internal/service/ratelimiter uses for its token bucket.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/netreach/lookupd/internal/domain"
	"github.com/netreach/lookupd/internal/saga"
	"github.com/netreach/lookupd/internal/sagastore"
)

const keyPrefix = "saga:"

// Store persists saga instances as JSON strings in Redis, plus a sorted set
// of Processing job ids ordered by creation time so the fan-out sweeper can
// page through stale ones without a full key scan.
type Store struct {
	rdb       *redis.Client
	casScript *redis.Script
}

// New constructs a Store backed by rdb.
func New(rdb *redis.Client) *Store {
	return &Store{rdb: rdb, casScript: redis.NewScript(luaCAS)}
}

// luaCAS only overwrites the stored instance when its current version still
// matches expectedVersion, and bumps the processing index accordingly.
const luaCAS = `
local key = KEYS[1]
local processingKey = KEYS[2]
local expectedVersion = tonumber(ARGV[1])
local newValue = ARGV[2]
local newVersion = tonumber(ARGV[3])
local jobID = ARGV[4]
local stillProcessing = ARGV[5]
local createdAt = tonumber(ARGV[6])

local current = redis.call("GET", key)
if current == false then
  return 0
end

local data = cjson.decode(current)
if tonumber(data.Version) ~= expectedVersion then
  return 0
end

redis.call("SET", key, newValue)
if stillProcessing == "1" then
  redis.call("ZADD", processingKey, createdAt, jobID)
else
  redis.call("ZREM", processingKey, jobID)
end
return 1
`

type wire struct {
	JobID             string                                 `json:"JobID"`
	Target            string                                 `json:"Target"`
	TargetKind        domain.TargetKind                       `json:"TargetKind"`
	RequestedServices []domain.ServiceKind                    `json:"RequestedServices"`
	Status            domain.JobStatus                        `json:"Status"`
	CreatedAt         time.Time                               `json:"CreatedAt"`
	CompletedAt       *time.Time                               `json:"CompletedAt"`
	Completions       map[domain.ServiceKind]saga.Outcome     `json:"Completions"`
	Version           int                                     `json:"Version"`
}

func toWire(inst saga.Instance) wire {
	return wire{
		JobID:             inst.JobID,
		Target:            inst.Target,
		TargetKind:        inst.TargetKind,
		RequestedServices: inst.RequestedServices,
		Status:            inst.Status,
		CreatedAt:         inst.CreatedAt,
		CompletedAt:       inst.CompletedAt,
		Completions:       inst.Completions,
		Version:           inst.Version,
	}
}

func (w wire) toInstance() saga.Instance {
	return saga.Instance{
		JobID:             w.JobID,
		Target:            w.Target,
		TargetKind:        w.TargetKind,
		RequestedServices: w.RequestedServices,
		Status:            w.Status,
		CreatedAt:         w.CreatedAt,
		CompletedAt:       w.CompletedAt,
		Completions:       w.Completions,
		Version:           w.Version,
	}
}

func instanceKey(jobID string) string { return keyPrefix + jobID }

const processingIndexKey = keyPrefix + "processing"

// Get loads the current instance for jobID.
func (s *Store) Get(ctx domain.Context, jobID string) (saga.Instance, error) {
	raw, err := s.rdb.Get(ctx, instanceKey(jobID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return saga.Instance{}, fmt.Errorf("op=sagastore.redis.get: %w", domain.ErrNotFound)
	}
	if err != nil {
		return saga.Instance{}, fmt.Errorf("op=sagastore.redis.get: %w", err)
	}
	var w wire
	if err := json.Unmarshal(raw, &w); err != nil {
		return saga.Instance{}, fmt.Errorf("op=sagastore.redis.get_unmarshal: %w", err)
	}
	return w.toInstance(), nil
}

// Create inserts a new saga instance at version 1, failing with
// domain.ErrConflict if one already exists for that job id.
func (s *Store) Create(ctx domain.Context, inst saga.Instance) error {
	inst.Version = 1
	raw, err := json.Marshal(toWire(inst))
	if err != nil {
		return fmt.Errorf("op=sagastore.redis.create_marshal: %w", err)
	}
	ok, err := s.rdb.SetNX(ctx, instanceKey(inst.JobID), raw, 0).Result()
	if err != nil {
		return fmt.Errorf("op=sagastore.redis.create: %w", err)
	}
	if !ok {
		return fmt.Errorf("op=sagastore.redis.create: %w", domain.ErrConflict)
	}
	if inst.Status == domain.JobProcessing {
		if err := s.rdb.ZAdd(ctx, processingIndexKey, redis.Z{
			Score:  float64(inst.CreatedAt.Unix()),
			Member: inst.JobID,
		}).Err(); err != nil {
			return fmt.Errorf("op=sagastore.redis.create_index: %w", err)
		}
	}
	return nil
}

// CAS persists inst guarded by its Version via the luaCAS script.
func (s *Store) CAS(ctx domain.Context, inst saga.Instance) error {
	raw, err := json.Marshal(toWire(saga.Instance{
		JobID:             inst.JobID,
		Target:            inst.Target,
		TargetKind:        inst.TargetKind,
		RequestedServices: inst.RequestedServices,
		Status:            inst.Status,
		CreatedAt:         inst.CreatedAt,
		CompletedAt:       inst.CompletedAt,
		Completions:       inst.Completions,
		Version:           inst.Version + 1,
	}))
	if err != nil {
		return fmt.Errorf("op=sagastore.redis.cas_marshal: %w", err)
	}

	stillProcessing := "0"
	if inst.Status == domain.JobProcessing {
		stillProcessing = "1"
	}

	res, err := s.casScript.Run(ctx, s.rdb,
		[]string{instanceKey(inst.JobID), processingIndexKey},
		inst.Version, raw, inst.Version+1, inst.JobID, stillProcessing, inst.CreatedAt.Unix(),
	).Result()
	if err != nil {
		return fmt.Errorf("op=sagastore.redis.cas: %w", err)
	}
	applied, _ := res.(int64)
	if applied != 1 {
		return fmt.Errorf("op=sagastore.redis.cas: %w", sagastore.ErrVersionConflict)
	}
	return nil
}

// ListStuckProcessing returns instances whose CreatedAt predates olderThan
// from the processing index, oldest first.
func (s *Store) ListStuckProcessing(ctx domain.Context, olderThan time.Time, limit int) ([]saga.Instance, error) {
	ids, err := s.rdb.ZRangeByScore(ctx, processingIndexKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   fmt.Sprintf("%d", olderThan.Unix()),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("op=sagastore.redis.list_stuck: %w", err)
	}

	out := make([]saga.Instance, 0, len(ids))
	for _, id := range ids {
		inst, err := s.Get(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			// Index and instance drifted apart (e.g. key expired); drop
			// the stale index entry and move on.
			s.rdb.ZRem(ctx, processingIndexKey, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		if inst.Status != domain.JobProcessing {
			s.rdb.ZRem(ctx, processingIndexKey, id)
			continue
		}
		out = append(out, inst)
	}
	return out, nil
}
