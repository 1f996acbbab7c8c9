// Package lists keeps local copies of server-owned collections (history and
// shortlist) and applies mutations optimistically, rolling them back when the
// server rejects them.
package lists

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/creastat/shopper"
)

// ErrUnsupported is returned by a Remote that cannot perform an operation.
var ErrUnsupported = errors.New("operation not supported by remote")

// Remote is the server of record for one collection.
type Remote[T any] interface {
	Load(ctx context.Context) ([]T, error)
	Add(ctx context.Context, entry T) error
	Remove(ctx context.Context, entry T) error
}

// Option configures a Reconciler.
type Option func(*options)

type options struct {
	prepend bool
	logger  *zap.Logger
}

// WithPrepend inserts new entries at the front instead of the back.
func WithPrepend() Option {
	return func(o *options) { o.prepend = true }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// Reconciler is a local cache of a remote collection keyed by normalized
// product name.
type Reconciler[T any] struct {
	mu    sync.Mutex
	items []T
	// epoch advances whenever the cache is replaced wholesale. A rollback
	// computed against an older epoch is not applied.
	epoch uint64

	remote  Remote[T]
	nameOf  func(T) string
	prepend bool
	logger  *zap.Logger
}

// New creates a Reconciler. nameOf extracts the product name used as key.
func New[T any](remote Remote[T], nameOf func(T) string, opts ...Option) *Reconciler[T] {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Reconciler[T]{
		remote:  remote,
		nameOf:  nameOf,
		prepend: o.prepend,
		logger:  o.logger,
	}
}

func (r *Reconciler[T]) key(e T) string {
	return shopper.NormalizeName(r.nameOf(e))
}

// Load replaces the cache with the server's collection. On failure the cache
// is left as it was.
func (r *Reconciler[T]) Load(ctx context.Context) error {
	items, err := r.remote.Load(ctx)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.items = append([]T(nil), items...)
	r.epoch++
	n := len(r.items)
	r.mu.Unlock()

	r.logger.Debug("list loaded", zap.Int("entries", n))
	return nil
}

// Add inserts entry unless an entry with the same key is present, in which
// case it reports false and makes no request. The entry is visible before the
// server call and removed again if that call fails.
func (r *Reconciler[T]) Add(ctx context.Context, entry T) (bool, error) {
	k := r.key(entry)

	r.mu.Lock()
	if r.indexOf(k) >= 0 {
		r.mu.Unlock()
		return false, nil
	}
	if r.prepend {
		r.items = append([]T{entry}, r.items...)
	} else {
		r.items = append(r.items, entry)
	}
	epoch := r.epoch
	r.mu.Unlock()

	if err := r.remote.Add(ctx, entry); err != nil {
		r.mu.Lock()
		if r.epoch == epoch {
			if i := r.indexOf(k); i >= 0 {
				r.items = append(r.items[:i:i], r.items[i+1:]...)
			}
		}
		r.mu.Unlock()

		r.logger.Warn("add rolled back", zap.String("key", k), zap.Error(err))
		return false, err
	}
	return true, nil
}

// Remove deletes the entry with entry's key and asks the server to do the
// same. If the server call fails the entry is put back at its old position.
// The server is asked even when the key is not cached; a failure then leaves
// the cache as it was.
func (r *Reconciler[T]) Remove(ctx context.Context, entry T) error {
	k := r.key(entry)

	r.mu.Lock()
	pos := r.indexOf(k)
	var removed T
	if pos >= 0 {
		removed = r.items[pos]
		r.items = append(r.items[:pos:pos], r.items[pos+1:]...)
	}
	epoch := r.epoch
	r.mu.Unlock()

	if err := r.remote.Remove(ctx, entry); err != nil {
		if pos >= 0 {
			r.mu.Lock()
			if r.epoch == epoch && r.indexOf(k) < 0 {
				at := min(pos, len(r.items))
				r.items = append(r.items[:at], append([]T{removed}, r.items[at:]...)...)
			}
			r.mu.Unlock()
		}

		r.logger.Warn("remove rolled back", zap.String("key", k), zap.Error(err))
		return err
	}
	return nil
}

// Items returns a copy of the cache.
func (r *Reconciler[T]) Items() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]T{}, r.items...)
}

// Contains reports whether an entry with name's normalized key is cached.
func (r *Reconciler[T]) Contains(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.indexOf(shopper.NormalizeName(name)) >= 0
}

// Len returns the number of cached entries.
func (r *Reconciler[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

// Discard drops the cache. In-flight mutations complete against the server
// but no longer roll back into the emptied cache.
func (r *Reconciler[T]) Discard() {
	r.mu.Lock()
	r.items = nil
	r.epoch++
	r.mu.Unlock()
}

// indexOf must be called with mu held.
func (r *Reconciler[T]) indexOf(k string) int {
	for i, e := range r.items {
		if r.key(e) == k {
			return i
		}
	}
	return -1
}
