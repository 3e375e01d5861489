package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/talgya/macrosim/internal/worldstate"
)

// Cache wraps the redis-backed hot-path tier. Keys follow the keyspace
// named in the external interfaces section: sim:{id}:world,
// sim:{id}:agent:{aid}, sim:{id}:participants, sim:{id}:logs.
type Cache struct {
	rdb    *redis.Client
	prefix string
}

// NewCache connects to redis at addr, pinging to verify connectivity before
// returning, matching the teacher's connect-then-ping idiom.
func NewCache(addr string) (*Cache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     20,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed (%s): %w", addr, err)
	}
	return &Cache{rdb: rdb, prefix: "sim:"}, nil
}

func (c *Cache) Close() error { return c.rdb.Close() }

func (c *Cache) worldKey(simID string) string         { return c.prefix + simID + ":world" }
func (c *Cache) participantsKey(simID string) string  { return c.prefix + simID + ":participants" }
func (c *Cache) logsKey(simID string) string          { return c.prefix + simID + ":logs" }
func (c *Cache) agentKey(simID, agentID string) string {
	return c.prefix + simID + ":agent:" + agentID
}

// PutWorld writes the full world-state blob for a simulation.
func (c *Cache) PutWorld(ctx context.Context, simID string, w *worldstate.WorldState) error {
	blob, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("marshal world state: %w", err)
	}
	if err := c.rdb.Set(ctx, c.worldKey(simID), blob, 0).Err(); err != nil {
		return fmt.Errorf("redis SET world %s: %w", simID, err)
	}
	return nil
}

// GetWorld reads the full world-state blob, or redis.Nil-wrapping error if
// absent.
func (c *Cache) GetWorld(ctx context.Context, simID string) (*worldstate.WorldState, error) {
	blob, err := c.rdb.Get(ctx, c.worldKey(simID)).Bytes()
	if err != nil {
		return nil, fmt.Errorf("redis GET world %s: %w", simID, err)
	}
	var w worldstate.WorldState
	if err := json.Unmarshal(blob, &w); err != nil {
		return nil, fmt.Errorf("unmarshal world state %s: %w", simID, err)
	}
	return &w, nil
}

// DeleteWorld removes every cache key belonging to a simulation.
func (c *Cache) DeleteWorld(ctx context.Context, simID string) error {
	keys := []string{c.worldKey(simID), c.participantsKey(simID), c.logsKey(simID)}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis DEL simulation %s: %w", simID, err)
	}
	return nil
}

// ApplyUpdates applies a batch of commands to the cached world state inside
// a single redis transaction (read-modify-write under WATCH), so the batch
// is all-or-nothing against the cache tier — the atomicity invariant from
// the concurrency section.
func (c *Cache) ApplyUpdates(ctx context.Context, simID string, cmds []worldstate.StateUpdateCommand) (*worldstate.WorldState, error) {
	key := c.worldKey(simID)
	var result *worldstate.WorldState

	txf := func(tx *redis.Tx) error {
		blob, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			return fmt.Errorf("redis GET world %s: %w", simID, err)
		}
		var w worldstate.WorldState
		if err := json.Unmarshal(blob, &w); err != nil {
			return fmt.Errorf("unmarshal world state %s: %w", simID, err)
		}
		if err := worldstate.ApplyAll(&w, cmds); err != nil {
			return fmt.Errorf("apply updates %s: %w", simID, err)
		}
		newBlob, err := json.Marshal(&w)
		if err != nil {
			return fmt.Errorf("marshal world state %s: %w", simID, err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, newBlob, 0)
			return nil
		})
		if err != nil {
			return fmt.Errorf("redis pipeline set world %s: %w", simID, err)
		}
		result = &w
		return nil
	}

	if err := c.rdb.Watch(ctx, txf, key); err != nil {
		return nil, err
	}
	return result, nil
}

// RecordParticipant adds an entity id to the participants set. The coverage
// guard does not read this set; it takes its entity list from the world
// state's households.
func (c *Cache) RecordParticipant(ctx context.Context, simID, entityID string) error {
	if err := c.rdb.SAdd(ctx, c.participantsKey(simID), entityID).Err(); err != nil {
		return fmt.Errorf("redis SADD participants %s: %w", simID, err)
	}
	return nil
}

// Participants returns every entity id registered for a simulation.
func (c *Cache) Participants(ctx context.Context, simID string) ([]string, error) {
	members, err := c.rdb.SMembers(ctx, c.participantsKey(simID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis SMEMBERS participants %s: %w", simID, err)
	}
	return members, nil
}

// PushLog appends a tick-log entry to the bounded recent-log list, trimming
// to the most recent maxLen entries.
func (c *Cache) PushLog(ctx context.Context, simID string, entry any, maxLen int64) error {
	blob, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal log entry: %w", err)
	}
	pipe := c.rdb.TxPipeline()
	pipe.LPush(ctx, c.logsKey(simID), blob)
	pipe.LTrim(ctx, c.logsKey(simID), 0, maxLen-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis push log %s: %w", simID, err)
	}
	return nil
}
