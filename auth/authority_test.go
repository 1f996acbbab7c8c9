package auth_test

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creastat/shopper"
	"github.com/creastat/shopper/api"
	"github.com/creastat/shopper/auth"
	"github.com/creastat/shopper/credential"
	"github.com/creastat/shopper/internal/fakeapi"
	"github.com/creastat/shopper/keystore"
)

const password = "secret-pass"

type env struct {
	backend *fakeapi.Server
	url     string
	keys    keystore.Store
	creds   *credential.Store
	client  *api.Client

	mu     sync.Mutex
	events []credential.Event
}

func newEnv(t *testing.T) *env {
	t.Helper()

	backend := fakeapi.New(fakeapi.Config{})
	server := httptest.NewServer(backend.Handler())
	t.Cleanup(server.Close)

	return &env{backend: backend, url: server.URL, keys: keystore.NewMemoryStore()}
}

// open creates the credential store and client over the env's key store,
// as a fresh process would.
func (e *env) open(t *testing.T) *auth.Authority {
	t.Helper()
	ctx := context.Background()

	creds, err := credential.Open(ctx, e.keys)
	require.NoError(t, err)
	client, err := api.New(api.Config{BaseURL: e.url}, creds)
	require.NoError(t, err)

	e.creds, e.client = creds, client
	creds.Subscribe(func(ev credential.Event) {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.events = append(e.events, ev)
	})

	a := auth.New(creds, client)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func (e *env) recorded() []credential.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]credential.Event(nil), e.events...)
}

// account registers email on the backend through a separate client and
// returns the issued token.
func (e *env) account(t *testing.T, email string) api.AuthResponse {
	t.Helper()
	c, err := api.New(api.Config{BaseURL: e.url}, nil)
	require.NoError(t, err)
	resp, err := c.Register(context.Background(), email, password)
	require.NoError(t, err)
	return resp
}

func TestBootstrapWithoutCredential(t *testing.T) {
	e := newEnv(t)
	a := e.open(t)
	assert.Equal(t, auth.StateBootstrapping, a.State())

	require.NoError(t, a.Bootstrap(context.Background()))
	assert.Equal(t, auth.StateAnonymous, a.State())
	assert.Nil(t, a.User())
	assert.Empty(t, e.backend.Requests("/api/auth/me"))
}

func TestBootstrapWithValidCredential(t *testing.T) {
	e := newEnv(t)
	resp := e.account(t, "valid@example.com")
	require.NoError(t, e.keys.Set(context.Background(), keystore.KeyAccessToken, resp.AccessToken))

	a := e.open(t)
	require.NoError(t, a.Bootstrap(context.Background()))

	assert.Equal(t, auth.StateAuthenticated, a.State())
	require.NotNil(t, a.User())
	assert.Equal(t, resp.User, *a.User())
}

func TestBootstrapWithRejectedCredential(t *testing.T) {
	e := newEnv(t)
	resp := e.account(t, "revoked@example.com")
	ctx := context.Background()
	require.NoError(t, e.keys.Set(ctx, keystore.KeyAccessToken, resp.AccessToken))
	e.backend.Revoke(resp.AccessToken)

	a := e.open(t)
	err := a.Bootstrap(ctx)
	require.ErrorIs(t, err, shopper.ErrUnauthorized)

	assert.Equal(t, auth.StateAnonymous, a.State())
	_, present := e.creds.Get()
	assert.False(t, present)

	events := e.recorded()
	require.Len(t, events, 1)
	assert.Equal(t, credential.ReasonUnauthorized, events[0].Reason)

	_, stored, err := e.keys.Get(ctx, keystore.KeyAccessToken)
	require.NoError(t, err)
	assert.False(t, stored)
}

func TestLoginAdoptsUserSynchronously(t *testing.T) {
	e := newEnv(t)
	created := e.account(t, "login@example.com")
	a := e.open(t)
	ctx := context.Background()
	require.NoError(t, a.Bootstrap(ctx))

	var seen []auth.State
	a.Watch(func(s auth.State, _ *shopper.User) { seen = append(seen, s) })

	user, err := a.Login(ctx, " login@example.com ", password)
	require.NoError(t, err)
	assert.Equal(t, created.User, user)
	assert.Equal(t, auth.StateAuthenticated, a.State())
	assert.Equal(t, created.User, *a.User())
	assert.Equal(t, []auth.State{auth.StateAuthenticated}, seen)

	a.Wait()
	assert.Empty(t, e.backend.Requests("/api/auth/me"), "own login must not be re-verified")

	events := e.recorded()
	require.Len(t, events, 1)
	assert.Equal(t, credential.ReasonLogin, events[0].Reason)
	assert.True(t, events[0].Present)
}

func TestRegisterSignsIn(t *testing.T) {
	e := newEnv(t)
	a := e.open(t)
	ctx := context.Background()
	require.NoError(t, a.Bootstrap(ctx))

	user, err := a.Register(ctx, "new@example.com", password)
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", user.Email)
	assert.True(t, a.Authenticated())

	_, err = a.Register(ctx, "new@example.com", password)
	require.Error(t, err)
	assert.Equal(t, "Email already registered", err.Error())
	assert.True(t, a.Authenticated())
}

func TestLoginFailureKeepsPreviousSession(t *testing.T) {
	e := newEnv(t)
	e.account(t, "keep@example.com")
	a := e.open(t)
	ctx := context.Background()
	require.NoError(t, a.Bootstrap(ctx))

	user, err := a.Login(ctx, "keep@example.com", password)
	require.NoError(t, err)
	token, _ := e.creds.Get()

	_, err = a.Login(ctx, "keep@example.com", "wrong-password")
	require.Error(t, err)
	assert.Equal(t, "Invalid email or password", err.Error())

	assert.Equal(t, auth.StateAuthenticated, a.State())
	assert.Equal(t, user, *a.User())
	current, present := e.creds.Get()
	assert.True(t, present)
	assert.Equal(t, token, current)
	assert.Len(t, e.recorded(), 1)
}

func TestLoginValidationMakesNoRequest(t *testing.T) {
	e := newEnv(t)
	a := e.open(t)
	ctx := context.Background()

	_, err := a.Login(ctx, "not-an-email", password)
	require.ErrorIs(t, err, shopper.ErrValidation)
	_, err = a.Register(ctx, "short@example.com", "123")
	require.ErrorIs(t, err, shopper.ErrValidation)

	assert.Empty(t, e.backend.Requests("/api/auth/login"))
	assert.Empty(t, e.backend.Requests("/api/auth/register"))
}

func TestLogoutIsLocal(t *testing.T) {
	e := newEnv(t)
	e.account(t, "logout@example.com")
	a := e.open(t)
	ctx := context.Background()
	require.NoError(t, a.Bootstrap(ctx))
	_, err := a.Login(ctx, "logout@example.com", password)
	require.NoError(t, err)

	before := len(e.backend.Requests("/api/auth/login"))
	require.NoError(t, a.Logout(ctx))

	assert.Equal(t, auth.StateAnonymous, a.State())
	assert.Nil(t, a.User())
	assert.Len(t, e.backend.Requests("/api/auth/login"), before)
	assert.Empty(t, e.backend.Requests("/api/auth/me"))

	events := e.recorded()
	require.Len(t, events, 2)
	assert.Equal(t, credential.ReasonLogout, events[1].Reason)
}

func TestUnauthorizedElsewhereSignsOut(t *testing.T) {
	e := newEnv(t)
	e.account(t, "cascade@example.com")
	a := e.open(t)
	ctx := context.Background()
	require.NoError(t, a.Bootstrap(ctx))
	_, err := a.Login(ctx, "cascade@example.com", password)
	require.NoError(t, err)

	token, _ := e.creds.Get()
	e.backend.Revoke(token)

	_, err = e.client.Shortlist(ctx)
	require.ErrorIs(t, err, shopper.ErrUnauthorized)

	// No refresh or wait: the transition happened inside the failing call.
	assert.Equal(t, auth.StateAnonymous, a.State())
	assert.Nil(t, a.User())

	events := e.recorded()
	require.Len(t, events, 2)
	assert.Equal(t, credential.ReasonUnauthorized, events[1].Reason)
}

func TestExternalCredentialIsVerified(t *testing.T) {
	e := newEnv(t)
	other := e.account(t, "other@example.com")
	a := e.open(t)
	ctx := context.Background()
	require.NoError(t, a.Bootstrap(ctx))

	require.NoError(t, e.creds.Set(ctx, other.AccessToken, credential.ReasonUnknown))
	a.Wait()

	assert.Equal(t, auth.StateAuthenticated, a.State())
	assert.Equal(t, other.User, *a.User())
	assert.Len(t, e.backend.Requests("/api/auth/me"), 1)
}

func TestExternalInvalidCredentialDegrades(t *testing.T) {
	e := newEnv(t)
	a := e.open(t)
	ctx := context.Background()
	require.NoError(t, a.Bootstrap(ctx))

	require.NoError(t, e.creds.Set(ctx, "garbage-token", credential.ReasonUnknown))
	a.Wait()

	assert.Equal(t, auth.StateAnonymous, a.State())
	_, present := e.creds.Get()
	assert.False(t, present)

	events := e.recorded()
	require.Len(t, events, 2)
	assert.Equal(t, credential.ReasonUnauthorized, events[1].Reason)
}

func TestStaleVerificationIsDropped(t *testing.T) {
	e := newEnv(t)
	other := e.account(t, "stale@example.com")
	a := e.open(t)
	ctx := context.Background()
	require.NoError(t, a.Bootstrap(ctx))

	require.NoError(t, e.creds.Set(ctx, other.AccessToken, credential.ReasonUnknown))
	require.NoError(t, a.Logout(ctx))
	a.Wait()

	assert.Equal(t, auth.StateAnonymous, a.State())
	assert.Nil(t, a.User())
}

func TestWatchUnsubscribe(t *testing.T) {
	e := newEnv(t)
	a := e.open(t)
	ctx := context.Background()

	calls := 0
	stop := a.Watch(func(auth.State, *shopper.User) { calls++ })
	require.NoError(t, a.Bootstrap(ctx))
	assert.Equal(t, 1, calls)

	stop()
	stop()
	_, err := a.Register(ctx, "watch@example.com", password)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}
