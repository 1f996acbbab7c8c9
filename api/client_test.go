package api_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creastat/shopper"
	"github.com/creastat/shopper/api"
	"github.com/creastat/shopper/credential"
	"github.com/creastat/shopper/internal/fakeapi"
	"github.com/creastat/shopper/keystore"
)

type harness struct {
	backend *fakeapi.Server
	server  *httptest.Server
	creds   *credential.Store
	client  *api.Client
	events  []credential.Event
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	backend := fakeapi.New(fakeapi.Config{})
	server := httptest.NewServer(backend.Handler())
	t.Cleanup(server.Close)

	creds, err := credential.Open(context.Background(), keystore.NewMemoryStore())
	require.NoError(t, err)

	client, err := api.New(api.Config{BaseURL: server.URL + "/"}, creds)
	require.NoError(t, err)

	h := &harness{backend: backend, server: server, creds: creds, client: client}
	creds.Subscribe(func(ev credential.Event) { h.events = append(h.events, ev) })
	return h
}

func (h *harness) register(t *testing.T, email string) api.AuthResponse {
	t.Helper()
	resp, err := h.client.Register(context.Background(), email, "secret-pass")
	require.NoError(t, err)
	require.NoError(t, h.creds.SetLogin(context.Background(), resp.AccessToken))
	return resp
}

func TestRegisterLoginAndMe(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	reg := h.register(t, "Shopper@Example.com")
	assert.Equal(t, "shopper@example.com", reg.User.Email)

	me, err := h.client.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, reg.User, me)

	login, err := h.client.Login(ctx, "shopper@example.com", "secret-pass")
	require.NoError(t, err)
	assert.NotEmpty(t, login.AccessToken)
	assert.Equal(t, reg.User.ID, login.User.ID)

	calls := h.backend.Requests("/api/auth/me")
	require.Len(t, calls, 1)
	assert.Equal(t, "Bearer "+reg.AccessToken, calls[0].Authorization)
}

func TestLoginFailureKeepsCredential(t *testing.T) {
	h := newHarness(t)
	reg := h.register(t, "a@example.com")
	h.events = nil

	_, err := h.client.Login(context.Background(), "a@example.com", "wrong-password")
	require.Error(t, err)

	var statusErr *shopper.HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusUnauthorized, statusErr.Status)
	assert.Equal(t, "Invalid email or password", statusErr.Message)

	tok, ok := h.creds.Get()
	assert.True(t, ok)
	assert.Equal(t, reg.AccessToken, tok)
	assert.Empty(t, h.events)

	// login never carries the credential
	for _, req := range h.backend.Requests("/api/auth/login") {
		assert.Empty(t, req.Authorization)
	}
}

func TestUnauthorizedCascadesExactlyOnce(t *testing.T) {
	h := newHarness(t)
	reg := h.register(t, "b@example.com")
	h.events = nil
	h.backend.Revoke(reg.AccessToken)

	_, err := h.client.Shortlist(context.Background())
	require.Error(t, err)
	assert.True(t, shopper.IsUnauthorized(err))

	_, err = h.client.Me(context.Background())
	require.Error(t, err)

	require.Len(t, h.events, 1)
	assert.Equal(t, credential.Event{Reason: credential.ReasonUnauthorized}, h.events[0])
	_, ok := h.creds.Get()
	assert.False(t, ok)
}

func TestAnonymousUnauthorizedDoesNotEmit(t *testing.T) {
	h := newHarness(t)

	_, err := h.client.Shortlist(context.Background())
	assert.True(t, shopper.IsUnauthorized(err))
	assert.Empty(t, h.events)
}

func TestChatErrorEnvelope(t *testing.T) {
	h := newHarness(t)
	h.backend.SetChatFunc(func(context.Context, api.ChatRequest) (string, error) {
		return "", errors.New("review service unavailable")
	})

	_, err := h.client.Chat(context.Background(), api.ChatRequest{ProductName: "Kindle", Message: "hi"})
	var statusErr *shopper.HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusOK, statusErr.Status)
	assert.Equal(t, "review service unavailable", statusErr.Message)
}

func TestChatAnonymousCarriesNoSession(t *testing.T) {
	h := newHarness(t)

	resp, err := h.client.Chat(context.Background(), api.ChatRequest{
		ProductName: "Kindle",
		Message:     "Is it waterproof?",
		UserID:      "anon-1",
		UseWeb:      true,
	})
	require.NoError(t, err)
	assert.Equal(t, "About Kindle: Is it waterproof?", resp.Reply)
	assert.Nil(t, resp.SessionID)

	reqs := h.backend.Requests("/api/chat")
	require.Len(t, reqs, 1)
	assert.JSONEq(t, `{
		"product_name": "Kindle",
		"message": "Is it waterproof?",
		"conversation_history": [],
		"data_mode": null,
		"use_web": true,
		"user_profile": null,
		"user_id": "anon-1",
		"session_id": null
	}`, string(reqs[0].Body))
}

func TestHistoryAndTranscript(t *testing.T) {
	h := newHarness(t)
	h.register(t, "c@example.com")
	ctx := context.Background()

	_, err := h.client.Review(ctx, api.ReviewRequest{ProductName: "Pixel 8", UseWeb: true})
	require.NoError(t, err)

	resp, err := h.client.Chat(ctx, api.ChatRequest{ProductName: "Pixel 8", Message: "Battery?"})
	require.NoError(t, err)
	require.NotNil(t, resp.SessionID)

	summary, err := h.client.HistorySummary(ctx, "")
	require.NoError(t, err)
	entries := summary.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "Pixel 8", entries[0].Name)
	require.NotNil(t, entries[0].Rating)
	assert.Equal(t, "4.2/5", *entries[0].Rating)

	latest, err := h.client.LatestSession(ctx, "", "Pixel 8")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, *resp.SessionID, *latest)

	rows, err := h.client.ChatSessionMessages(ctx, "", *latest)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, shopper.RoleUser, rows[0].Role)
	assert.Equal(t, "Battery?", rows[0].Content)

	review, err := h.client.SavedReview(ctx, "Pixel 8")
	require.NoError(t, err)
	assert.Contains(t, string(review), "Pixel 8")

	missing, err := h.client.SavedReview(ctx, "Unknown")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestProfileRoundTrip(t *testing.T) {
	h := newHarness(t)
	h.register(t, "d@example.com")
	ctx := context.Background()

	p, err := h.client.Profile(ctx)
	require.NoError(t, err)
	assert.Nil(t, p)

	minBudget, maxBudget := 100, 500
	require.NoError(t, h.client.SaveProfile(ctx, "anon", shopper.Profile{
		MinBudget: &minBudget,
		MaxBudget: &maxBudget,
		UseCases:  []string{"gaming"},
	}))

	p, err = h.client.Profile(ctx)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, 500, *p.MaxBudget)
	assert.Equal(t, []string{"gaming"}, p.UseCases)
	assert.Equal(t, []string{}, p.PreferredBrands)
}

func TestCompareValidationMessage(t *testing.T) {
	h := newHarness(t)

	_, err := h.client.Compare(context.Background(), []string{"only one"})
	var statusErr *shopper.HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusUnprocessableEntity, statusErr.Status)
	assert.Equal(t, "List should have between 2 and 4 items", statusErr.Message)

	out, err := h.client.Compare(context.Background(), []string{"A", "B"})
	require.NoError(t, err)
	assert.Contains(t, string(out), `"winner":"A"`)
}

func TestNetworkFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	server.Close()

	client, err := api.New(api.Config{BaseURL: server.URL, Timeout: time.Second}, nil)
	require.NoError(t, err)

	_, err = client.Stats(context.Background())
	assert.ErrorIs(t, err, shopper.ErrNetwork)
}

func TestNewRequiresBaseURL(t *testing.T) {
	_, err := api.New(api.Config{}, nil)
	assert.Error(t, err)
}

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
		want   string
	}{
		{name: "empty body", body: "", status: 502, want: "Bad Gateway"},
		{name: "json string", body: `"plain failure"`, status: 400, want: "plain failure"},
		{name: "detail", body: `{"detail":"Email already registered"}`, status: 400, want: "Email already registered"},
		{name: "message", body: `{"message":"slow down"}`, status: 429, want: "slow down"},
		{name: "nested error", body: `{"error":{"message":"boom"}}`, status: 500, want: "boom"},
		{name: "validation list", body: `{"detail":[{"msg":"a"},{"msg":"b"}]}`, status: 422, want: "a; b"},
		{name: "raw text", body: "upstream timeout", status: 504, want: "upstream timeout"},
		{name: "unknown object", body: `{"code":7}`, status: 500, want: "Internal Server Error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, api.ErrorMessage([]byte(tt.body), tt.status))
		})
	}
}

func TestTimestampAcceptsZonelessISO(t *testing.T) {
	var ts api.Timestamp
	require.NoError(t, ts.UnmarshalJSON([]byte(`"2024-05-01T10:20:30.123456"`)))
	assert.Equal(t, 2024, ts.Time().Year())
	assert.Equal(t, 123456000, ts.Time().Nanosecond())

	require.NoError(t, ts.UnmarshalJSON([]byte(`"2024-05-01T10:20:30Z"`)))
	assert.Equal(t, 10, ts.Time().Hour())

	assert.Error(t, ts.UnmarshalJSON([]byte(`"yesterday"`)))
}
