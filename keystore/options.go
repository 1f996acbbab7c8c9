package keystore

import (
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/supabase-community/supabase-go"
)

// StoreOption is a functional option for configuring a store.
type StoreOption func(*storeConfig)

// storeConfig holds configuration for stores.
type storeConfig struct {
	redisClient    *redis.Client
	redisTTL       time.Duration
	filePath       string
	supabaseClient *supabase.Client
	supabaseTable  string
	namespace      string
}

// WithRedisClient sets the Redis client for the Redis store.
func WithRedisClient(client *redis.Client) StoreOption {
	return func(c *storeConfig) {
		c.redisClient = client
	}
}

// WithRedisTTL sets the TTL for Redis keys. Zero keeps keys forever.
func WithRedisTTL(ttl time.Duration) StoreOption {
	return func(c *storeConfig) {
		c.redisTTL = ttl
	}
}

// WithFilePath sets the JSON file used by the file store.
func WithFilePath(path string) StoreOption {
	return func(c *storeConfig) {
		c.filePath = path
	}
}

// WithSupabaseClient sets the Supabase client for the Supabase store.
func WithSupabaseClient(client *supabase.Client) StoreOption {
	return func(c *storeConfig) {
		c.supabaseClient = client
	}
}

// WithSupabaseTable overrides the table used by the Supabase store.
func WithSupabaseTable(table string) StoreOption {
	return func(c *storeConfig) {
		c.supabaseTable = table
	}
}

// WithNamespace scopes keys of shared backends (Redis, Supabase) to one
// client profile.
func WithNamespace(ns string) StoreOption {
	return func(c *storeConfig) {
		c.namespace = ns
	}
}
