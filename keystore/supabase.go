package keystore

import (
	"context"
	"fmt"

	"github.com/supabase-community/supabase-go"
)

// SupabaseStore implements Store on a Supabase table:
//
//	create table client_state (
//	  namespace text not null,
//	  key       text not null,
//	  value     text not null,
//	  primary key (namespace, key)
//	);
type SupabaseStore struct {
	client    *supabase.Client
	table     string
	namespace string
}

type stateRow struct {
	Namespace string `json:"namespace"`
	Key       string `json:"key"`
	Value     string `json:"value"`
}

// NewSupabaseStore creates a new Supabase-backed store.
func NewSupabaseStore(client *supabase.Client, table, namespace string) *SupabaseStore {
	return &SupabaseStore{
		client:    client,
		table:     table,
		namespace: namespace,
	}
}

// Get implements Store.
func (s *SupabaseStore) Get(ctx context.Context, key string) (string, bool, error) {
	var rows []stateRow
	_, err := s.client.From(s.table).
		Select("namespace,key,value", "", false).
		Eq("namespace", s.namespace).
		Eq("key", key).
		ExecuteTo(&rows)
	if err != nil {
		return "", false, fmt.Errorf("failed to get state %q: %w", key, err)
	}
	if len(rows) == 0 {
		return "", false, nil
	}
	return rows[0].Value, true, nil
}

// Set implements Store.
func (s *SupabaseStore) Set(ctx context.Context, key, value string) error {
	row := stateRow{Namespace: s.namespace, Key: key, Value: value}
	_, _, err := s.client.From(s.table).
		Upsert(row, "namespace,key", "minimal", "").
		Execute()
	if err != nil {
		return fmt.Errorf("failed to set state %q: %w", key, err)
	}
	return nil
}

// Delete implements Store.
func (s *SupabaseStore) Delete(ctx context.Context, key string) error {
	_, _, err := s.client.From(s.table).
		Delete("minimal", "").
		Eq("namespace", s.namespace).
		Eq("key", key).
		Execute()
	if err != nil {
		return fmt.Errorf("failed to delete state %q: %w", key, err)
	}
	return nil
}

// Close implements Store.
func (s *SupabaseStore) Close() error {
	// Supabase client doesn't require explicit close
	return nil
}

// NewSupabaseClient creates the Supabase client used by the store.
func NewSupabaseClient(url, apiKey string) (*supabase.Client, error) {
	if url == "" {
		return nil, fmt.Errorf("supabase URL is required")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("supabase API key is required")
	}
	client, err := supabase.NewClient(url, apiKey, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create supabase client: %w", err)
	}
	return client, nil
}

var _ Store = (*SupabaseStore)(nil)
