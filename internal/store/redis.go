package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisSnapshots stores each collection as a plain string value, one key per
// collection, written together in a MULTI/EXEC block.
type RedisSnapshots struct {
	client *redis.Client
	prefix string
}

func NewRedisSnapshots(redisURL string) (*RedisSnapshots, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisSnapshotsWithClient(client), nil
}

func NewRedisSnapshotsWithClient(client *redis.Client) *RedisSnapshots {
	return &RedisSnapshots{
		client: client,
		prefix: "portal:",
	}
}

func (r *RedisSnapshots) key(name string) string {
	return r.prefix + name
}

func (r *RedisSnapshots) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	return data, nil
}

func (r *RedisSnapshots) PutAll(ctx context.Context, snapshots map[string][]byte) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for key, data := range snapshots {
			pipe.Set(ctx, r.key(key), data, 0)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("put snapshots: %w", err)
	}
	return nil
}

func (r *RedisSnapshots) Close() error {
	return r.client.Close()
}

func (r *RedisSnapshots) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
