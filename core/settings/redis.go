package settings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/AvaProtocol/ap-bundler/storage"
)

const defaultRedisTimeout = 3 * time.Second

type RedisConfig struct {
	Address  string
	Password string
	DB       int
	// Prefix namespaces the keys when the instance is shared.
	Prefix  string
	Timeout time.Duration
}

// RedisKV stores settings in redis, for deployments running several bundler
// processes against the same accounts.
type RedisKV struct {
	client  redis.UniversalClient
	prefix  string
	timeout time.Duration
}

func NewRedisKV(cfg RedisConfig) (*RedisKV, error) {
	if cfg.Address == "" {
		return nil, errors.New("redis address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	kv := NewRedisKVWithClient(client, cfg.Prefix, cfg.Timeout)

	ctx, cancel := context.WithTimeout(context.Background(), kv.timeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", cfg.Address, err)
	}
	return kv, nil
}

func NewRedisKVWithClient(client redis.UniversalClient, prefix string, timeout time.Duration) *RedisKV {
	if timeout <= 0 {
		timeout = defaultRedisTimeout
	}
	return &RedisKV{client: client, prefix: prefix, timeout: timeout}
}

func (r *RedisKV) GetKey(key []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	value, err := r.client.Get(ctx, r.prefix+string(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, storage.ErrKeyNotFound
	}
	return value, err
}

func (r *RedisKV) Set(key, value []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	return r.client.Set(ctx, r.prefix+string(key), value, 0).Err()
}

func (r *RedisKV) Close() error {
	return r.client.Close()
}
