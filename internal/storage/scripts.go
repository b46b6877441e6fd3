package storage

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Lua scripts for atomic progress updates.
//
// Each record is a hash; the per-user index set lists the clue keys that
// have a record. Both keys share a hash tag so the scripts stay valid on a
// cluster.

// luaEnsure inserts a default record if absent and returns the hash.
// KEYS[1] = record key
// KEYS[2] = user index key
// ARGV[1] = created_at (RFC3339Nano)
// ARGV[2] = clue key
const luaEnsure = `
if redis.call("HSETNX", KEYS[1], "created_at", ARGV[1]) == 1 then
    redis.call("HSET", KEYS[1], "solved", "0")
    redis.call("SADD", KEYS[2], ARGV[2])
end
return redis.call("HGETALL", KEYS[1])
`

// luaMarkSolved flips solved to 1 exactly once.
// KEYS[1] = record key
// KEYS[2] = user index key
// ARGV[1] = solved_at (RFC3339Nano)
// ARGV[2] = clue key
//
// Returns 1 when the record changed, 0 when it was already solved.
const luaMarkSolved = `
if redis.call("HGET", KEYS[1], "solved") == "1" then
    return 0
end
redis.call("HSETNX", KEYS[1], "created_at", ARGV[1])
redis.call("HSET", KEYS[1], "solved", "1", "solved_at", ARGV[1])
redis.call("SADD", KEYS[2], ARGV[2])
return 1
`

// luaReset restores an existing record to unsolved.
// KEYS[1] = record key
//
// Returns 1 when a record was reset, 0 when none existed.
const luaReset = `
if redis.call("EXISTS", KEYS[1]) == 0 then
    return 0
end
redis.call("HSET", KEYS[1], "solved", "0")
redis.call("HDEL", KEYS[1], "solved_at")
return 1
`

// scriptLoader manages the lifecycle of Lua scripts in Redis.
// Scripts are loaded once via SCRIPT LOAD and then executed by SHA.
type scriptLoader struct {
	client *redis.Client

	ensure     *redis.Script
	markSolved *redis.Script
	reset      *redis.Script
}

func newScriptLoader(client *redis.Client) *scriptLoader {
	return &scriptLoader{
		client:     client,
		ensure:     redis.NewScript(luaEnsure),
		markSolved: redis.NewScript(luaMarkSolved),
		reset:      redis.NewScript(luaReset),
	}
}

// LoadAll pre-loads all Lua scripts into the Redis script cache. go-redis
// reloads transparently if the cache is flushed.
func (sl *scriptLoader) LoadAll(ctx context.Context) error {
	scripts := map[string]*redis.Script{
		"ensure":      sl.ensure,
		"mark_solved": sl.markSolved,
		"reset":       sl.reset,
	}

	for name, script := range scripts {
		if err := script.Load(ctx, sl.client).Err(); err != nil {
			return fmt.Errorf("failed to load script %q: %w", name, err)
		}
	}

	return nil
}
