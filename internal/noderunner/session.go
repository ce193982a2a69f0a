package noderunner

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/flowkit-run/flowkit/internal/flowtypes"
	"github.com/redis/go-redis/v9"
)

// Session is the NPU registry (spec.md §4.4). It is backed by Redis so
// multiple Node Runner instances can share one pool, per spec.md §6.7's
// redis_host/redis_port config -- the teacher's own Store interfaces are
// per-process in-memory caches (graph/store/memory.go); this is the one
// place the spec explicitly calls out a shared backing store.
//
// Each NPU is a Redis string key "npu:{id}" holding its JSON-encoded
// NpuStatus (address/status/last_seen/metrics), plus
// a membership in the "npu:lastseen" sorted set scored by last_seen (unix
// nanoseconds) so the sweeper can find everything past its TTL with one
// range query instead of scanning every key.
type Session struct {
	rdb    *redis.Client
	expiry time.Duration
}

const (
	npuKeyPrefix  = "npu:"
	npuLastSeenZ  = "npu:lastseen"
)

// NewSession connects to the given Redis address.
func NewSession(addr string, expirySeconds int) *Session {
	if expirySeconds <= 0 {
		expirySeconds = 10
	}
	return &Session{
		rdb:    redis.NewClient(&redis.Options{Addr: addr}),
		expiry: time.Duration(expirySeconds) * time.Second,
	}
}

func npuKey(id string) string { return npuKeyPrefix + id }

// Add registers a new NPU. Fails with ErrNpuExists if id is already
// present.
func (s *Session) Add(ctx context.Context, id, address string) error {
	exists, err := s.rdb.Exists(ctx, npuKey(id)).Result()
	if err != nil {
		return fmt.Errorf("noderunner: session add: %w", err)
	}
	if exists > 0 {
		return ErrNpuExists
	}

	now := time.Now()
	status := flowtypes.NpuStatus{ID: id, Address: address, Status: "alive", LastSeen: now}
	if err := s.write(ctx, status); err != nil {
		return err
	}
	return nil
}

// UpdateMetrics overwrites an NPU's metrics and refreshes last_seen. Fails
// with ErrNpuUnknown if id is absent.
func (s *Session) UpdateMetrics(ctx context.Context, id string, metrics flowtypes.NpuMetrics) error {
	existing, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	existing.Metrics = metrics
	existing.LastSeen = time.Now()
	return s.write(ctx, existing)
}

func (s *Session) write(ctx context.Context, status flowtypes.NpuStatus) error {
	raw, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("noderunner: session marshal: %w", err)
	}
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, npuKey(status.ID), raw, 0)
	pipe.ZAdd(ctx, npuLastSeenZ, redis.Z{Score: float64(status.LastSeen.UnixNano()), Member: status.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("noderunner: session write: %w", err)
	}
	return nil
}

// GetByID returns the NPU's current status, or ErrNpuUnknown.
func (s *Session) GetByID(ctx context.Context, id string) (flowtypes.NpuStatus, error) {
	raw, err := s.rdb.Get(ctx, npuKey(id)).Bytes()
	if err == redis.Nil {
		return flowtypes.NpuStatus{}, ErrNpuUnknown
	}
	if err != nil {
		return flowtypes.NpuStatus{}, fmt.Errorf("noderunner: session get: %w", err)
	}
	var status flowtypes.NpuStatus
	if err := json.Unmarshal(raw, &status); err != nil {
		return flowtypes.NpuStatus{}, fmt.Errorf("noderunner: session decode: %w", err)
	}
	return status, nil
}

// GetAll lists every currently-registered NPU.
func (s *Session) GetAll(ctx context.Context) ([]flowtypes.NpuStatus, error) {
	ids, err := s.rdb.ZRange(ctx, npuLastSeenZ, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("noderunner: session list: %w", err)
	}
	out := make([]flowtypes.NpuStatus, 0, len(ids))
	for _, id := range ids {
		status, err := s.GetByID(ctx, id)
		if err == ErrNpuUnknown {
			continue // raced with a concurrent expiry/delete
		}
		if err != nil {
			return nil, err
		}
		out = append(out, status)
	}
	return out, nil
}

// remove atomically deletes id from both the hash and the sorted set.
func (s *Session) remove(ctx context.Context, id string) error {
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, npuKey(id))
	pipe.ZRem(ctx, npuLastSeenZ, id)
	_, err := pipe.Exec(ctx)
	return err
}

// RunSweeper removes every NPU whose last_seen is older than the configured
// expiry, once per second, until ctx is cancelled (spec.md §4.4).
func (s *Session) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Session) sweepOnce(ctx context.Context) {
	cutoff := time.Now().Add(-s.expiry)
	expired, err := s.rdb.ZRangeByScore(ctx, npuLastSeenZ, &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", cutoff.UnixNano()),
	}).Result()
	if err != nil {
		return
	}
	for _, id := range expired {
		_ = s.remove(ctx, id)
	}
}
