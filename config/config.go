// Package config loads client and development-server settings.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/creastat/shopper/keystore"
)

// Config is the complete configuration.
type Config struct {
	API      APIConfig      `koanf:"api"`
	Store    StoreConfig    `koanf:"store"`
	Redis    RedisConfig    `koanf:"redis"`
	Supabase SupabaseConfig `koanf:"supabase"`
	Chat     ChatConfig     `koanf:"chat"`
	Log      LogConfig      `koanf:"log"`
	Server   ServerConfig   `koanf:"server"`
}

// APIConfig locates the review backend.
type APIConfig struct {
	BaseURL string        `koanf:"base_url"`
	Timeout time.Duration `koanf:"timeout"`
}

// StoreConfig selects where the credential and anonymous id persist.
type StoreConfig struct {
	Type      string `koanf:"type"`
	Path      string `koanf:"path"`
	Namespace string `koanf:"namespace"`
}

// RedisConfig is used when store.type is redis.
type RedisConfig struct {
	Addr     string        `koanf:"addr"`
	Password string        `koanf:"password"`
	DB       int           `koanf:"db"`
	TTL      time.Duration `koanf:"ttl"`
}

// SupabaseConfig is used when store.type is supabase.
type SupabaseConfig struct {
	URL   string `koanf:"url"`
	Key   string `koanf:"key"`
	Table string `koanf:"table"`
}

// ChatConfig tunes review and chat requests.
type ChatConfig struct {
	DataMode   string `koanf:"data_mode"`
	DisableWeb bool   `koanf:"disable_web"`
}

// LogConfig selects level and encoding.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// ServerConfig configures the fakeapi development server.
type ServerConfig struct {
	Addr            string        `koanf:"addr"`
	JWTSecret       string        `koanf:"jwt_secret"`
	TokenTTL        time.Duration `koanf:"token_ttl"`
	FirstSessionID  int64         `koanf:"first_session_id"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	RequestLog      bool          `koanf:"request_log"`
}

func applyDefaults(cfg *Config) {
	if cfg.API.BaseURL == "" {
		cfg.API.BaseURL = "http://localhost:8000"
	}
	if cfg.API.Timeout == 0 {
		cfg.API.Timeout = 60 * time.Second
	}

	if cfg.Store.Type == "" {
		cfg.Store.Type = string(keystore.StoreTypeFile)
	}
	if cfg.Store.Namespace == "" {
		cfg.Store.Namespace = "shopper"
	}

	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Supabase.Table == "" {
		cfg.Supabase.Table = "client_state"
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8000"
	}
	if cfg.Server.TokenTTL == 0 {
		cfg.Server.TokenTTL = 7 * 24 * time.Hour
	}
	if cfg.Server.FirstSessionID == 0 {
		cfg.Server.FirstSessionID = 1
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid api base URL %q", c.API.BaseURL)
	}
	if c.API.Timeout < 0 {
		return errors.New("api timeout must not be negative")
	}

	switch keystore.StoreType(c.Store.Type) {
	case keystore.StoreTypeMemory, keystore.StoreTypeFile:
	case keystore.StoreTypeRedis:
		if c.Redis.Addr == "" {
			return errors.New("redis address required for redis store")
		}
	case keystore.StoreTypeSupabase:
		if c.Supabase.URL == "" || c.Supabase.Key == "" {
			return errors.New("supabase url and key required for supabase store")
		}
	default:
		return fmt.Errorf("%w: %q", keystore.ErrInvalidStoreType, c.Store.Type)
	}

	if c.Log.Format != "json" && c.Log.Format != "console" {
		return fmt.Errorf("invalid log format %q (must be json or console)", c.Log.Format)
	}
	if c.Server.FirstSessionID < 1 {
		return errors.New("first session id must be positive")
	}
	return nil
}
