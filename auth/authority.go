// Package auth decides whether the client is anonymous or signed in, and keeps
// that view consistent with the credential store.
package auth

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/creastat/shopper"
	"github.com/creastat/shopper/api"
	"github.com/creastat/shopper/credential"
)

// State is the authority's view of the session.
type State string

const (
	// StateBootstrapping means a credential is present but not yet verified.
	// It covers the initial check and re-verification of a credential set by
	// another component.
	StateBootstrapping State = "bootstrapping"
	StateAnonymous     State = "anonymous"
	StateAuthenticated State = "authenticated"
)

// API is the part of the backend client the authority uses.
type API interface {
	Login(ctx context.Context, email, password string) (api.AuthResponse, error)
	Register(ctx context.Context, email, password string) (api.AuthResponse, error)
	Me(ctx context.Context) (shopper.User, error)
}

// Credentials is the part of the credential store the authority uses.
type Credentials interface {
	Get() (string, bool)
	Set(ctx context.Context, token string, reason credential.Reason) error
	Clear(ctx context.Context, reason credential.Reason) error
	ClearIf(ctx context.Context, token string, reason credential.Reason) (bool, error)
	Subscribe(h credential.Handler) func()
}

// Watcher is called after every state or user change. Watchers may run
// inside a credential notification and must not log in or out synchronously.
type Watcher func(State, *shopper.User)

// Option configures an Authority.
type Option func(*Authority)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *Authority) {
		if l != nil {
			a.logger = l
		}
	}
}

type pendingLogin struct {
	token string
	user  shopper.User
}

type watcher struct {
	id uint64
	fn Watcher
}

// Authority tracks the signed-in user.
type Authority struct {
	creds  Credentials
	api    API
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	unsub  func()

	mu       sync.Mutex
	state    State
	user     *shopper.User
	gen      uint64
	pending  *pendingLogin
	watchers []watcher
	nextID   uint64
	closed   bool
}

// New creates an Authority in StateBootstrapping and subscribes it to creds.
// Call Bootstrap to run the initial verification.
func New(creds Credentials, client API, opts ...Option) *Authority {
	ctx, cancel := context.WithCancel(context.Background())
	a := &Authority{
		creds:  creds,
		api:    client,
		logger: zap.NewNop(),
		ctx:    ctx,
		cancel: cancel,
		state:  StateBootstrapping,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.unsub = creds.Subscribe(a.onCredential)
	return a
}

// Bootstrap verifies the persisted credential. Without one the authority
// becomes anonymous immediately. A credential the server does not accept is
// cleared with ReasonUnauthorized; the returned error is informational since
// the authority has already degraded to anonymous.
func (a *Authority) Bootstrap(ctx context.Context) error {
	token, ok := a.creds.Get()

	a.mu.Lock()
	gen := a.gen
	a.mu.Unlock()

	if !ok {
		a.transition(gen, StateAnonymous, nil)
		return nil
	}

	user, err := a.api.Me(ctx)
	if err != nil {
		if ctx.Err() != nil {
			a.transition(gen, StateAnonymous, nil)
			return err
		}
		a.logger.Info("stored credential rejected", zap.Error(err))
		a.reject(ctx, token)
		a.transition(gen, StateAnonymous, nil)
		return err
	}

	a.transition(gen, StateAuthenticated, &user)
	return nil
}

// Login signs in and adopts the returned user before returning. On failure
// the server's message is returned and nothing changes.
func (a *Authority) Login(ctx context.Context, email, password string) (shopper.User, error) {
	return a.authenticate(ctx, email, password, a.api.Login)
}

// Register creates an account and signs in to it.
func (a *Authority) Register(ctx context.Context, email, password string) (shopper.User, error) {
	return a.authenticate(ctx, email, password, a.api.Register)
}

func (a *Authority) authenticate(
	ctx context.Context,
	email, password string,
	call func(context.Context, string, string) (api.AuthResponse, error),
) (shopper.User, error) {
	if err := shopper.ValidateCredentials(email, password); err != nil {
		return shopper.User{}, err
	}

	resp, err := call(ctx, strings.TrimSpace(email), password)
	if err != nil {
		return shopper.User{}, err
	}

	a.mu.Lock()
	a.pending = &pendingLogin{token: resp.AccessToken, user: resp.User}
	a.mu.Unlock()

	err = a.creds.Set(ctx, resp.AccessToken, credential.ReasonLogin)

	a.mu.Lock()
	a.pending = nil
	a.mu.Unlock()

	if err != nil {
		// The credential is live for this process even if it was not persisted.
		a.logger.Warn("credential not persisted", zap.Error(err))
	}
	return resp.User, nil
}

// Logout clears the credential. The user is dropped before Logout returns and
// no request is made.
func (a *Authority) Logout(ctx context.Context) error {
	return a.creds.Clear(ctx, credential.ReasonLogout)
}

// State returns the current state.
func (a *Authority) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// User returns the signed-in user, or nil.
func (a *Authority) User() *shopper.User {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.user == nil {
		return nil
	}
	u := *a.user
	return &u
}

// Authenticated reports whether a verified user is present.
func (a *Authority) Authenticated() bool {
	return a.State() == StateAuthenticated
}

// Watch registers fn for future changes and returns a func that removes it.
func (a *Authority) Watch(fn Watcher) func() {
	a.mu.Lock()
	a.nextID++
	id := a.nextID
	a.watchers = append(a.watchers, watcher{id: id, fn: fn})
	a.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			a.mu.Lock()
			defer a.mu.Unlock()
			for i, w := range a.watchers {
				if w.id == id {
					a.watchers = append(a.watchers[:i:i], a.watchers[i+1:]...)
					return
				}
			}
		})
	}
}

// Wait blocks until background verifications have finished.
func (a *Authority) Wait() {
	a.wg.Wait()
}

// Close unsubscribes from the credential store and stops background work.
func (a *Authority) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.mu.Unlock()

	a.unsub()
	a.cancel()
	a.wg.Wait()
	return nil
}

// onCredential runs synchronously inside the credential store's Set/Clear.
func (a *Authority) onCredential(ev credential.Event) {
	a.mu.Lock()
	a.gen++
	gen := a.gen

	var changed bool
	switch {
	case !ev.Present:
		changed = a.setLocked(StateAnonymous, nil)
	case a.pending != nil && a.pending.token == ev.Token:
		user := a.pending.user
		changed = a.setLocked(StateAuthenticated, &user)
	case a.closed:
	default:
		changed = a.setLocked(StateBootstrapping, nil)
		a.wg.Add(1)
		go a.reverify(gen, ev.Token)
	}
	n := a.snapshotLocked(changed)
	a.mu.Unlock()

	a.logger.Debug("credential event observed",
		zap.Bool("present", ev.Present),
		zap.String("reason", string(ev.Reason)))
	n.deliver()
}

// reverify checks a credential set by another component. Its result is kept
// only if no credential event happened in the meantime.
func (a *Authority) reverify(gen uint64, token string) {
	defer a.wg.Done()

	user, err := a.api.Me(a.ctx)
	if err != nil {
		if a.ctx.Err() != nil {
			return
		}
		a.logger.Info("credential failed verification", zap.Error(err))
		a.reject(a.ctx, token)
		a.transition(gen, StateAnonymous, nil)
		return
	}
	a.transition(gen, StateAuthenticated, &user)
}

// reject clears token unless the credential has changed since. The transport
// may already have cleared it on a 401.
func (a *Authority) reject(ctx context.Context, token string) {
	if _, err := a.creds.ClearIf(context.WithoutCancel(ctx), token, credential.ReasonUnauthorized); err != nil {
		a.logger.Warn("failed to clear rejected credential", zap.Error(err))
	}
}

// transition applies a verification outcome if no credential event
// superseded it.
func (a *Authority) transition(gen uint64, state State, user *shopper.User) {
	a.mu.Lock()
	if a.gen != gen {
		a.mu.Unlock()
		return
	}
	n := a.snapshotLocked(a.setLocked(state, user))
	a.mu.Unlock()

	n.deliver()
}

func (a *Authority) setLocked(state State, user *shopper.User) bool {
	if a.state == state && sameUser(a.user, user) {
		return false
	}
	prev := a.state
	a.state = state
	a.user = user
	a.logger.Info("session state changed",
		zap.String("from", string(prev)),
		zap.String("to", string(state)))
	return true
}

// notification is a change captured under mu and delivered after unlock.
type notification struct {
	watchers []watcher
	state    State
	user     *shopper.User
}

func (a *Authority) snapshotLocked(changed bool) notification {
	if !changed || len(a.watchers) == 0 {
		return notification{}
	}
	n := notification{
		watchers: append([]watcher(nil), a.watchers...),
		state:    a.state,
	}
	if a.user != nil {
		u := *a.user
		n.user = &u
	}
	return n
}

func (n notification) deliver() {
	for _, w := range n.watchers {
		w.fn(n.state, n.user)
	}
}

func sameUser(a, b *shopper.User) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
