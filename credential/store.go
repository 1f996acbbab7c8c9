// Package credential holds the process-wide access credential and broadcasts
// its lifecycle to every interested component.
package credential

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/creastat/shopper/keystore"
)

// Reason explains why the credential changed.
type Reason string

const (
	ReasonLogin        Reason = "login"
	ReasonLogout       Reason = "logout"
	ReasonUnauthorized Reason = "unauthorized"
	ReasonUnknown      Reason = "unknown"
)

var ErrEmptyToken = errors.New("credential token is empty")

// Event is delivered to subscribers after every Set and Clear.
type Event struct {
	Token   string
	Present bool
	Reason  Reason
}

// Handler receives credential events. Handlers run synchronously inside Set
// and Clear and must not call Set or Clear themselves; work that needs to
// change the credential has to run on another goroutine.
type Handler func(Event)

type subscription struct {
	id      uint64
	handler Handler
}

// Store is the single holder of the access credential.
type Store struct {
	dispatchMu sync.Mutex

	mu      sync.RWMutex
	token   string
	present bool
	subs    []subscription
	nextID  uint64

	keys   keystore.Store
	logger *zap.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// Open loads the persisted credential from keys.
func Open(ctx context.Context, keys keystore.Store, opts ...Option) (*Store, error) {
	s := &Store{
		keys:   keys,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	token, ok, err := keys.Get(ctx, keystore.KeyAccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to load credential: %w", err)
	}
	if ok && token != "" {
		s.token = token
		s.present = true
	}
	return s, nil
}

// Get returns the current credential, if any.
func (s *Store) Get() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.present
}

// SetLogin stores token with ReasonLogin.
func (s *Store) SetLogin(ctx context.Context, token string) error {
	return s.Set(ctx, token, ReasonLogin)
}

// Set persists token and notifies every current subscriber before returning.
// A persistence failure is returned after the in-process value has been
// replaced and subscribers notified.
func (s *Store) Set(ctx context.Context, token string, reason Reason) error {
	if token == "" {
		return ErrEmptyToken
	}
	if reason == "" {
		reason = ReasonLogin
	}
	return s.apply(ctx, Event{Token: token, Present: true, Reason: reason})
}

// Clear removes the credential and notifies every current subscriber.
func (s *Store) Clear(ctx context.Context, reason Reason) error {
	if reason == "" {
		reason = ReasonLogout
	}
	return s.apply(ctx, Event{Reason: reason})
}

// ClearIf clears the credential only while it still equals token, so a stale
// rejection cannot destroy a newer login. It reports whether a Clear happened.
func (s *Store) ClearIf(ctx context.Context, token string, reason Reason) (bool, error) {
	if reason == "" {
		reason = ReasonUnauthorized
	}
	return s.applyIf(ctx, Event{Reason: reason}, func(current string, present bool) bool {
		return present && current == token
	})
}

// Subscribe registers h for every future event, after all previously
// registered handlers. The returned func unsubscribes and is idempotent.
func (s *Store) Subscribe(h Handler) func() {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.subs = append(s.subs, subscription{id: id, handler: h})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { s.unsubscribe(id) })
	}
}

func (s *Store) unsubscribe(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, sub := range s.subs {
		if sub.id == id {
			s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
			return
		}
	}
}

func (s *Store) apply(ctx context.Context, ev Event) error {
	_, err := s.applyIf(ctx, ev, nil)
	return err
}

func (s *Store) applyIf(ctx context.Context, ev Event, cond func(string, bool) bool) (bool, error) {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()

	if cond != nil {
		s.mu.RLock()
		ok := cond(s.token, s.present)
		s.mu.RUnlock()
		if !ok {
			return false, nil
		}
	}

	var persistErr error
	if ev.Present {
		persistErr = s.keys.Set(ctx, keystore.KeyAccessToken, ev.Token)
	} else {
		persistErr = s.keys.Delete(ctx, keystore.KeyAccessToken)
	}
	if persistErr != nil {
		s.logger.Warn("credential persistence failed",
			zap.String("reason", string(ev.Reason)),
			zap.Error(persistErr))
		persistErr = fmt.Errorf("failed to persist credential: %w", persistErr)
	}

	s.mu.Lock()
	s.token = ev.Token
	s.present = ev.Present
	subs := make([]subscription, len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	s.logger.Debug("credential changed",
		zap.Bool("present", ev.Present),
		zap.String("reason", string(ev.Reason)),
		zap.Int("subscribers", len(subs)))

	for _, sub := range subs {
		sub.handler(ev)
	}
	return true, persistErr
}
