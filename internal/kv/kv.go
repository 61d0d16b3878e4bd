package kv

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"genqueue/internal/config"
)

// ErrClosed is returned by operations on a closed backend.
var ErrClosed = errors.New("kv backend closed")

// Backend is a synchronous string key-value store.
type Backend interface {
	// Get returns the value for key and whether it was present.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Open builds the backend selected by cfg.Store.Backend.
func Open(cfg *config.Config) (Backend, error) {
	if cfg == nil {
		return nil, errors.New("kv: config is nil")
	}
	switch strings.ToLower(cfg.Store.Backend) {
	case "", "sqlite":
		if err := cfg.EnsureDirectories(); err != nil {
			return nil, fmt.Errorf("ensure directories: %w", err)
		}
		return OpenSQLite(cfg.StorePath())
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Store.RedisAddr,
			Password: cfg.Store.RedisPassword,
			DB:       cfg.Store.RedisDB,
		})
		ttl := time.Duration(cfg.Store.RedisTTLHours) * time.Hour
		return NewRedis(client, cfg.Store.RedisPrefix, ttl), nil
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("kv: unsupported backend %q", cfg.Store.Backend)
	}
}
