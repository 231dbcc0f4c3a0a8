package state

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore persists SessionState with a native redis connection.
type RedisStore struct {
	client    redis.UniversalClient
	keyPrefix string
	ttl       time.Duration
}

type RedisConfig struct {
	Addr     string `envconfig:"ADDR" split_words:"true"`
	Password string `envconfig:"PASSWORD" split_words:"true"`
	DB       int    `envconfig:"DB" split_words:"true" default:"0"`
	PoolSize int    `envconfig:"POOL_SIZE" split_words:"true" default:"10"`
}

func NewRedisStore(ctx context.Context, cfg RedisConfig, opts ...StoreOption) (*RedisStore, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, errors.New("redis address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewRedisStoreFromClient(client, opts...)
}

// NewRedisStoreFromClient wraps an existing client (used with miniredis in tests).
func NewRedisStoreFromClient(client redis.UniversalClient, opts ...StoreOption) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	o, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}
	return &RedisStore{
		client:    client,
		keyPrefix: o.keyPrefix,
		ttl:       o.ttl,
	}, nil
}

func (s *RedisStore) Load(ctx context.Context, threadID string) (*SessionState, error) {
	key, err := threadKey(s.keyPrefix, threadID)
	if err != nil {
		return nil, err
	}

	raw, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrStateNotFound
		}
		return nil, fmt.Errorf("get session state: %w", err)
	}
	return decodeState(raw)
}

func (s *RedisStore) Save(ctx context.Context, st *SessionState) error {
	payload, err := encodeState(st)
	if err != nil {
		return err
	}
	key, err := threadKey(s.keyPrefix, st.ThreadID)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, key, payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("set session state: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, threadID string) error {
	key, err := threadKey(s.keyPrefix, threadID)
	if err != nil {
		return err
	}
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("delete session state: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
