package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creastat/shopper/keystore"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8000", cfg.API.BaseURL)
	assert.Equal(t, 60*time.Second, cfg.API.Timeout)
	assert.Equal(t, "file", cfg.Store.Type)
	assert.Equal(t, "shopper", cfg.Store.Namespace)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, ":8000", cfg.Server.Addr)
	assert.Equal(t, int64(1), cfg.Server.FirstSessionID)
	assert.False(t, cfg.Chat.DisableWeb)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
api:
  base_url: https://reviews.example.com
  timeout: 15s
store:
  type: memory
chat:
  data_mode: live
  disable_web: true
log:
  format: json
server:
  token_ttl: 1h
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://reviews.example.com", cfg.API.BaseURL)
	assert.Equal(t, 15*time.Second, cfg.API.Timeout)
	assert.Equal(t, "memory", cfg.Store.Type)
	assert.Equal(t, "live", cfg.Chat.DataMode)
	assert.True(t, cfg.Chat.DisableWeb)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, time.Hour, cfg.Server.TokenTTL)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "api:\n  base_url: https://file.example.com\n")
	t.Setenv("SHOPPER_API_BASE_URL", "https://env.example.com")
	t.Setenv("SHOPPER_SERVER_JWT_SECRET", "from-env")
	t.Setenv("SHOPPER_CHAT_DATA_MODE", "cached")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://env.example.com", cfg.API.BaseURL)
	assert.Equal(t, "from-env", cfg.Server.JWTSecret)
	assert.Equal(t, "cached", cfg.Chat.DataMode)
}

func TestEnvKey(t *testing.T) {
	tests := map[string]string{
		"SHOPPER_API_BASE_URL":            "api.base_url",
		"SHOPPER_STORE_TYPE":              "store.type",
		"SHOPPER_SERVER_FIRST_SESSION_ID": "server.first_session_id",
		"SHOPPER_DEBUG":                   "debug",
	}
	for in, want := range tests {
		assert.Equal(t, want, envKey(in), in)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad base url", func(c *Config) { c.API.BaseURL = "localhost:8000" }},
		{"unknown store", func(c *Config) { c.Store.Type = "etcd" }},
		{"supabase without key", func(c *Config) { c.Store.Type = "supabase"; c.Supabase.URL = "https://x.supabase.co" }},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cfg Config
			applyDefaults(&cfg)
			require.NoError(t, cfg.Validate())
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	var cfg Config
	applyDefaults(&cfg)
	cfg.Store.Type = "etcd"
	assert.ErrorIs(t, cfg.Validate(), keystore.ErrInvalidStoreType)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestOpenKeyStore(t *testing.T) {
	ctx := context.Background()

	var cfg Config
	applyDefaults(&cfg)
	cfg.Store.Path = filepath.Join(t.TempDir(), "state.json")

	store, err := OpenKeyStore(ctx, &cfg)
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, keystore.KeyAnonymousID, "anon-1"))
	require.NoError(t, store.Close())

	reopened, err := OpenKeyStore(ctx, &cfg)
	require.NoError(t, err)
	defer reopened.Close()
	v, ok, err := reopened.Get(ctx, keystore.KeyAnonymousID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "anon-1", v)

	cfg.Store.Type = "memory"
	mem, err := OpenKeyStore(ctx, &cfg)
	require.NoError(t, err)
	assert.IsType(t, &keystore.MemoryStore{}, mem)
}
