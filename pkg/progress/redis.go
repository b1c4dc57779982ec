package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/XinsongDu/Twitter-Tracker/pkg/config"
	"github.com/XinsongDu/Twitter-Tracker/pkg/models"
)

// RedisMirror copies committed targets into a Redis hash per crawl mode
// so other processes can watch progress without reading local files.
type RedisMirror struct {
	client *redis.Client
	prefix string
}

// NewRedisMirror connects to the configured Redis and verifies it with a ping
func NewRedisMirror(ctx context.Context, cfg config.RedisConfig) (*RedisMirror, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Addr, err)
	}
	return NewRedisMirrorWithClient(client, cfg.KeyPrefix), nil
}

// NewRedisMirrorWithClient wraps an existing client
func NewRedisMirrorWithClient(client *redis.Client, prefix string) *RedisMirror {
	if prefix == "" {
		prefix = "twtracker"
	}
	return &RedisMirror{client: client, prefix: prefix}
}

func (m *RedisMirror) key(kind models.Kind) string {
	return fmt.Sprintf("%s:progress:%s", m.prefix, kind)
}

// Put stores the target and the update time in one pipeline
func (m *RedisMirror) Put(ctx context.Context, kind models.Kind, id string, target models.Target) error {
	data, err := json.Marshal(target)
	if err != nil {
		return fmt.Errorf("marshal target: %w", err)
	}

	pipe := m.client.Pipeline()
	pipe.HSet(ctx, m.key(kind), id, data)
	pipe.Set(ctx, m.key(kind)+":updated_at", time.Now().UTC().Format(time.RFC3339), 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store progress in redis: %w", err)
	}
	return nil
}

// Load reads every mirrored target of kind
func (m *RedisMirror) Load(ctx context.Context, kind models.Kind) (map[string]models.Target, error) {
	entries, err := m.client.HGetAll(ctx, m.key(kind)).Result()
	if err != nil {
		return nil, fmt.Errorf("read progress from redis: %w", err)
	}

	targets := make(map[string]models.Target, len(entries))
	for id, data := range entries {
		var t models.Target
		if err := json.Unmarshal([]byte(data), &t); err != nil {
			return nil, fmt.Errorf("decode mirrored target %s: %w", id, err)
		}
		t.ID = id
		t.Kind = kind
		targets[id] = t
	}
	return targets, nil
}

// UpdatedAt returns the time of the last mirrored commit, zero if none
func (m *RedisMirror) UpdatedAt(ctx context.Context, kind models.Kind) (time.Time, error) {
	v, err := m.client.Get(ctx, m.key(kind)+":updated_at").Result()
	if err == redis.Nil {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339, v)
}

// Close releases the connection pool
func (m *RedisMirror) Close() error {
	return m.client.Close()
}
