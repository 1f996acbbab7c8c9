// Package identity resolves the durable anonymous identifier used for guest
// scoped requests.
package identity

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/creastat/shopper/keystore"
)

// Generator produces a fresh anonymous identifier.
type Generator func() (string, error)

// Resolver lazily creates and then reuses the anonymous identifier stored
// under keystore.KeyAnonymousID.
type Resolver struct {
	mu       sync.Mutex
	keys     keystore.Store
	generate Generator
	logger   *zap.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithGenerator replaces the default random generator.
func WithGenerator(g Generator) Option {
	return func(r *Resolver) {
		if g != nil {
			r.generate = g
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewResolver creates a resolver over keys.
func NewResolver(keys keystore.Store, opts ...Option) *Resolver {
	r := &Resolver{
		keys:     keys,
		generate: NewID,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the stored identifier, creating and persisting one first if
// none exists. Repeated calls against the same storage return the same value.
func (r *Resolver) Resolve(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok, err := r.keys.Get(ctx, keystore.KeyAnonymousID)
	if err != nil {
		return "", fmt.Errorf("failed to read anonymous id: %w", err)
	}
	if ok && id != "" {
		return id, nil
	}

	id, err = r.generate()
	if err != nil {
		return "", fmt.Errorf("failed to generate anonymous id: %w", err)
	}
	if err := r.keys.Set(ctx, keystore.KeyAnonymousID, id); err != nil {
		return "", fmt.Errorf("failed to persist anonymous id: %w", err)
	}

	r.logger.Info("anonymous identity created", zap.String("anonymous_id", id))
	return id, nil
}

// NewID returns a random UUID, or a time and pseudo-random composite when the
// secure source is unavailable.
func NewID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return FallbackID(time.Now()), nil
	}
	return id.String(), nil
}

// FallbackID builds a non-cryptographic identifier from the wall clock and a
// random component.
func FallbackID(now time.Time) string {
	return "anon-" + strconv.FormatInt(now.UnixMilli(), 36) + "-" + strconv.FormatUint(rand.Uint64(), 36)
}
