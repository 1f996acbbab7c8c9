package keystore

import "context"

// Store defines durable key/value storage for client state such as the access
// credential and the anonymous identifier. Writes are last-write-wins.
type Store interface {
	// Get returns the value stored under key.
	// A missing key returns ok == false and a nil error.
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close closes the store and releases any resources.
	Close() error
}

// Well-known keys.
const (
	KeyAccessToken = "access_token"
	KeyAnonymousID = "anonymous_id"
)
