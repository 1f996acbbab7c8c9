package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/redis/go-redis/v9"

	"github.com/creastat/shopper/keystore"
)

// DefaultStatePath is where the file store keeps client state when
// store.path is empty.
func DefaultStatePath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate config directory: %w", err)
	}
	return filepath.Join(dir, "shopper", "state.json"), nil
}

// OpenKeyStore builds the key store selected by cfg.Store. The caller owns
// the result and must Close it.
func OpenKeyStore(ctx context.Context, cfg *Config) (keystore.Store, error) {
	opts := []keystore.StoreOption{keystore.WithNamespace(cfg.Store.Namespace)}

	switch keystore.StoreType(cfg.Store.Type) {
	case keystore.StoreTypeFile:
		path := cfg.Store.Path
		if path == "" {
			var err error
			if path, err = DefaultStatePath(); err != nil {
				return nil, err
			}
		}
		opts = append(opts, keystore.WithFilePath(path))

	case keystore.StoreTypeRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		opts = append(opts, keystore.WithRedisClient(client), keystore.WithRedisTTL(cfg.Redis.TTL))

	case keystore.StoreTypeSupabase:
		client, err := keystore.NewSupabaseClient(cfg.Supabase.URL, cfg.Supabase.Key)
		if err != nil {
			return nil, err
		}
		opts = append(opts, keystore.WithSupabaseClient(client), keystore.WithSupabaseTable(cfg.Supabase.Table))
	}

	return keystore.NewStore(keystore.StoreType(cfg.Store.Type), opts...)
}
