package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sharedcode/lodc"
)

// redisEntry is the JSON wire shape mirrored into Redis, matching the
// teacher's blob-marshal-to-struct pattern used for L1/L2 cache sync.
type redisEntry struct {
	Region uint32 `json:"region"`
	Offset uint64 `json:"offset"`
	Length uint32 `json:"length"`
	Seq    uint64 `json:"seq"`
}

// RedisMirror wraps a MemIndexer and mirrors every InsertBatch/Remove
// into Redis, so other processes sharing the same cache deployment can
// observe recovered (or newly written) entries without talking to this
// process directly — the same cross-process L2 role the teacher's
// redis.Client plays for its L1 node cache.
type RedisMirror struct {
	local *MemIndexer
	rdb   *redis.Client
	ttl   time.Duration
}

// NewRedisMirror wraps local with a Redis-backed mirror. ttl of 0 means
// entries never expire in Redis (the source of truth remains local).
func NewRedisMirror(local *MemIndexer, rdb *redis.Client, ttl time.Duration) *RedisMirror {
	return &RedisMirror{local: local, rdb: rdb, ttl: ttl}
}

func (m *RedisMirror) key(hash uint64) string {
	return fmt.Sprintf("lodc:idx:%d", hash)
}

// InsertBatch writes through to the local indexer first, then mirrors
// to Redis best-effort — a mirror failure is logged, not propagated,
// since local state is authoritative.
func (m *RedisMirror) InsertBatch(batch []lodc.HashedEntryAddress) {
	m.local.InsertBatch(batch)

	ctx := context.Background()
	pipe := m.rdb.Pipeline()
	for _, h := range batch {
		payload, err := json.Marshal(redisEntry{
			Region: uint32(h.Addr.Region),
			Offset: h.Addr.Offset,
			Length: h.Addr.Length,
			Seq:    uint64(h.Addr.Seq),
		})
		if err != nil {
			slog.Warn("failed to marshal indexer entry for redis mirror", "hash", h.Hash, "err", err)
			continue
		}
		pipe.Set(ctx, m.key(h.Hash), payload, m.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		slog.Warn("failed to mirror indexer batch to redis", "err", err)
	}
}

// Lookup checks the local indexer first, falling back to Redis only if
// the local process has not yet observed the hash (e.g. it was
// recovered by a peer process sharing this deployment).
func (m *RedisMirror) Lookup(hash uint64) (lodc.EntryAddress, bool) {
	if addr, ok := m.local.Lookup(hash); ok {
		return addr, true
	}
	raw, err := m.rdb.Get(context.Background(), m.key(hash)).Bytes()
	if err != nil {
		return lodc.EntryAddress{}, false
	}
	var e redisEntry
	if err := json.Unmarshal(raw, &e); err != nil {
		return lodc.EntryAddress{}, false
	}
	return lodc.EntryAddress{
		Region: lodc.RegionID(e.Region),
		Offset: e.Offset,
		Length: e.Length,
		Seq:    lodc.Sequence(e.Seq),
	}, true
}

// Remove deletes hash from both the local indexer and Redis.
func (m *RedisMirror) Remove(hash uint64) {
	m.local.Remove(hash)
	if err := m.rdb.Del(context.Background(), m.key(hash)).Err(); err != nil {
		slog.Warn("failed to remove mirrored indexer entry from redis", "hash", hash, "err", err)
	}
}
