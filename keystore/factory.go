package keystore

import "strings"

// StoreType represents the type of key store.
type StoreType string

const (
	StoreTypeMemory   StoreType = "memory"
	StoreTypeFile     StoreType = "file"
	StoreTypeRedis    StoreType = "redis"
	StoreTypeSupabase StoreType = "supabase"
)

const (
	defaultNamespace     = "shopper"
	defaultSupabaseTable = "client_state"
)

// NewStore creates a new Store based on the given type.
// File requires WithFilePath, Redis requires WithRedisClient and Supabase
// requires WithSupabaseClient.
func NewStore(storeType StoreType, opts ...StoreOption) (Store, error) {
	config := &storeConfig{}

	for _, opt := range opts {
		opt(config)
	}

	namespace := strings.TrimSpace(config.namespace)
	if namespace == "" {
		namespace = defaultNamespace
	}

	switch storeType {
	case StoreTypeMemory:
		return NewMemoryStore(), nil

	case StoreTypeFile:
		if config.filePath == "" {
			return nil, ErrInvalidConfig
		}
		return OpenFileStore(config.filePath)

	case StoreTypeRedis:
		if config.redisClient == nil {
			return nil, ErrInvalidConfig
		}
		return NewRedisStore(config.redisClient, namespace, config.redisTTL), nil

	case StoreTypeSupabase:
		if config.supabaseClient == nil {
			return nil, ErrInvalidConfig
		}
		table := config.supabaseTable
		if table == "" {
			table = defaultSupabaseTable
		}
		return NewSupabaseStore(config.supabaseClient, table, namespace), nil

	default:
		return nil, ErrInvalidStoreType
	}
}
