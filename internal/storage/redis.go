package storage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Default configuration values for the Redis connection pool.
const (
	DefaultPoolSize      = 10
	DefaultMinIdleConns  = 3
	DefaultDialTimeout   = 5 * time.Second
	DefaultReadTimeout   = 3 * time.Second
	DefaultWriteTimeout  = 3 * time.Second
	DefaultMaxRetries    = 3
	DefaultRetryDelay    = 100 * time.Millisecond
	DefaultMaxRetryDelay = 500 * time.Millisecond
)

// RedisConfig holds the configuration for the Redis storage backend.
type RedisConfig struct {
	// Addr is the Redis server address (host:port).
	Addr string
	// Password is the Redis password (empty for no auth).
	Password string
	// DB is the Redis database number.
	DB int

	PoolSize     int
	MinIdleConns int

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	MaxRetries    int
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
}

// DefaultRedisConfig returns a RedisConfig with sensible defaults.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:          "localhost:6379",
		PoolSize:      DefaultPoolSize,
		MinIdleConns:  DefaultMinIdleConns,
		DialTimeout:   DefaultDialTimeout,
		ReadTimeout:   DefaultReadTimeout,
		WriteTimeout:  DefaultWriteTimeout,
		MaxRetries:    DefaultMaxRetries,
		RetryDelay:    DefaultRetryDelay,
		MaxRetryDelay: DefaultMaxRetryDelay,
	}
}

// RedisStore implements ClueStateStore with one hash per record.
type RedisStore struct {
	client  *redis.Client
	scripts *scriptLoader
	now     func() time.Time
	mu      sync.RWMutex
	closed  bool
}

// NewRedisStore creates a Redis-backed store. It validates the connection
// by sending a PING and pre-loads the Lua scripts.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:            cfg.Addr,
		Password:        cfg.Password,
		DB:              cfg.DB,
		PoolSize:        cfg.PoolSize,
		MinIdleConns:    cfg.MinIdleConns,
		DialTimeout:     cfg.DialTimeout,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		MaxRetries:      cfg.MaxRetries,
		MinRetryBackoff: cfg.RetryDelay,
		MaxRetryBackoff: cfg.MaxRetryDelay,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: failed to connect to %s: %w", cfg.Addr, err)
	}

	rs := &RedisStore{
		client:  client,
		scripts: newScriptLoader(client),
		now:     func() time.Time { return time.Now().UTC() },
	}

	if err := rs.scripts.LoadAll(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: failed to load Lua scripts: %w", err)
	}

	slog.Info("redis: clue progress store connected",
		"addr", cfg.Addr, "pool_size", cfg.PoolSize, "min_idle", cfg.MinIdleConns)

	return rs, nil
}

// Get returns the record hash for (userID, clueKey).
func (rs *RedisStore) Get(ctx context.Context, userID, clueKey string) (Record, bool, error) {
	if err := validateKey(userID, clueKey); err != nil {
		return Record{}, false, err
	}

	rs.mu.RLock()
	defer rs.mu.RUnlock()

	if rs.closed {
		return Record{}, false, ErrStorageClosed
	}

	fields, err := rs.client.HGetAll(ctx, recordKey(userID, clueKey)).Result()
	if err != nil {
		return Record{}, false, fmt.Errorf("redis: get %s/%s failed: %w", userID, clueKey, err)
	}
	if len(fields) == 0 {
		return Record{}, false, nil
	}

	rec, err := decodeRecord(userID, clueKey, fields)
	if err != nil {
		return Record{}, false, err
	}
	return rec, true, nil
}

// PredecessorUnlocked reports whether the predecessor of (month, index) is solved.
func (rs *RedisStore) PredecessorUnlocked(ctx context.Context, userID string, month, index int) (bool, error) {
	return predecessorUnlocked(ctx, rs, userID, month, index)
}

// EnsureRecord atomically inserts a default record if absent.
func (rs *RedisStore) EnsureRecord(ctx context.Context, userID, clueKey string) (Record, error) {
	if err := validateKey(userID, clueKey); err != nil {
		return Record{}, err
	}

	rs.mu.RLock()
	defer rs.mu.RUnlock()

	if rs.closed {
		return Record{}, ErrStorageClosed
	}

	raw, err := rs.scripts.ensure.Run(ctx, rs.client,
		[]string{recordKey(userID, clueKey), indexKey(userID)},
		rs.now().Format(time.RFC3339Nano), clueKey,
	).StringSlice()
	if err != nil {
		return Record{}, fmt.Errorf("redis: ensure %s/%s failed: %w", userID, clueKey, err)
	}

	fields := make(map[string]string, len(raw)/2)
	for i := 0; i+1 < len(raw); i += 2 {
		fields[raw[i]] = raw[i+1]
	}
	return decodeRecord(userID, clueKey, fields)
}

// MarkSolved atomically marks the record solved once.
func (rs *RedisStore) MarkSolved(ctx context.Context, userID, clueKey string, solvedAt time.Time) (bool, error) {
	if err := validateKey(userID, clueKey); err != nil {
		return false, err
	}

	rs.mu.RLock()
	defer rs.mu.RUnlock()

	if rs.closed {
		return false, ErrStorageClosed
	}

	changed, err := rs.scripts.markSolved.Run(ctx, rs.client,
		[]string{recordKey(userID, clueKey), indexKey(userID)},
		solvedAt.UTC().Format(time.RFC3339Nano), clueKey,
	).Int()
	if err != nil {
		return false, fmt.Errorf("redis: mark solved %s/%s failed: %w", userID, clueKey, err)
	}
	return changed == 1, nil
}

// Reset clears solved state for an existing record.
func (rs *RedisStore) Reset(ctx context.Context, userID, clueKey string) error {
	if err := validateKey(userID, clueKey); err != nil {
		return err
	}

	rs.mu.RLock()
	defer rs.mu.RUnlock()

	if rs.closed {
		return ErrStorageClosed
	}

	if err := rs.scripts.reset.Run(ctx, rs.client, []string{recordKey(userID, clueKey)}).Err(); err != nil {
		return fmt.Errorf("redis: reset %s/%s failed: %w", userID, clueKey, err)
	}
	return nil
}

// List returns all records indexed for userID.
func (rs *RedisStore) List(ctx context.Context, userID string) ([]Record, error) {
	rs.mu.RLock()
	defer rs.mu.RUnlock()

	if rs.closed {
		return nil, ErrStorageClosed
	}

	keys, err := rs.client.SMembers(ctx, indexKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: list %s failed: %w", userID, err)
	}

	cmds := make([]*redis.MapStringStringCmd, len(keys))
	_, err = rs.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, k := range keys {
			cmds[i] = pipe.HGetAll(ctx, recordKey(userID, k))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("redis: list %s failed: %w", userID, err)
	}

	out := make([]Record, 0, len(keys))
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		rec, err := decodeRecord(userID, keys[i], fields)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}

	sortRecords(out)
	return out, nil
}

// Ping checks connectivity to the Redis server.
func (rs *RedisStore) Ping(ctx context.Context) error {
	rs.mu.RLock()
	defer rs.mu.RUnlock()

	if rs.closed {
		return ErrStorageClosed
	}

	if err := rs.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping failed: %w", err)
	}
	return nil
}

// Close gracefully shuts down the Redis connection.
func (rs *RedisStore) Close() error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.closed {
		return nil
	}

	rs.closed = true
	slog.Info("redis: closing connection")

	return rs.client.Close()
}

// PoolStats returns the current connection pool statistics.
func (rs *RedisStore) PoolStats() *redis.PoolStats {
	return rs.client.PoolStats()
}

// recordKey builds "cluegate:progress:{user}:clueKey". The braces form a
// hash tag so a user's records and index hash to one slot.
func recordKey(userID, clueKey string) string {
	return fmt.Sprintf("cluegate:progress:{%s}:%s", userID, clueKey)
}

func indexKey(userID string) string {
	return fmt.Sprintf("cluegate:progress:{%s}:index", userID)
}

func decodeRecord(userID, clueKey string, fields map[string]string) (Record, error) {
	rec := Record{UserID: userID, ClueKey: clueKey, Solved: fields["solved"] == "1"}

	if raw := fields["created_at"]; raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return Record{}, fmt.Errorf("redis: invalid created_at for %s/%s: %w", userID, clueKey, err)
		}
		rec.CreatedAt = t.UTC()
	}
	if raw := fields["solved_at"]; raw != "" && rec.Solved {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return Record{}, fmt.Errorf("redis: invalid solved_at for %s/%s: %w", userID, clueKey, err)
		}
		t = t.UTC()
		rec.SolvedAt = &t
	}
	return rec, nil
}
