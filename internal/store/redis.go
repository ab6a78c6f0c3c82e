package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	logx "stocknotify/pkg/logx"
)

type redisKV struct {
	rdb *redis.Client
	log logx.Logger
}

func openRedis(cfg Config, log logx.Logger) (KV, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, errors.New("store.addr is required for redis driver")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return &redisKV{rdb: rdb, log: log}, nil
}

func (s *redisKV) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *redisKV) Put(ctx context.Context, key, value string) error {
	if key == "" {
		return nil
	}
	// Dedup state is perpetual until overwritten; no TTL.
	return s.rdb.Set(ctx, key, value, 0).Err()
}

func (s *redisKV) Close() error {
	return s.rdb.Close()
}
