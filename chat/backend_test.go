package chat_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creastat/shopper"
	"github.com/creastat/shopper/api"
	"github.com/creastat/shopper/chat"
	"github.com/creastat/shopper/credential"
	"github.com/creastat/shopper/internal/fakeapi"
	"github.com/creastat/shopper/keystore"
)

func TestConversationAgainstBackend(t *testing.T) {
	backend := fakeapi.New(fakeapi.Config{FirstSessionID: 42})
	backend.SetChatFunc(func(context.Context, api.ChatRequest) (string, error) { return "Yes", nil })
	server := httptest.NewServer(backend.Handler())
	t.Cleanup(server.Close)

	ctx := context.Background()
	creds, err := credential.Open(ctx, keystore.NewMemoryStore())
	require.NoError(t, err)
	client, err := api.New(api.Config{BaseURL: server.URL}, creds)
	require.NoError(t, err)
	resp, err := client.Register(ctx, "chat@example.com", "secret-pass")
	require.NoError(t, err)
	require.NoError(t, creds.SetLogin(ctx, resp.AccessToken))

	m := chat.New(client)
	m.Switch("Trail Boots")

	reply, err := m.Send(ctx, "Is this durable?", nil)
	require.NoError(t, err)
	assert.Equal(t, "Yes", reply.Content)
	require.NotNil(t, m.SessionID())
	assert.Equal(t, int64(42), *m.SessionID())

	_, err = m.Send(ctx, "Even in snow?", nil)
	require.NoError(t, err)
	m.Wait()

	calls := backend.Requests("/api/chat")
	require.Len(t, calls, 2)

	var first, second map[string]any
	require.NoError(t, json.Unmarshal(calls[0].Body, &first))
	require.NoError(t, json.Unmarshal(calls[1].Body, &second))
	assert.Nil(t, first["session_id"])
	assert.EqualValues(t, 42, second["session_id"])
	assert.Len(t, second["conversation_history"], 3)

	// The stored transcript hydrates an equivalent conversation.
	rows, err := client.ChatSessionMessages(ctx, "", 42)
	require.NoError(t, err)
	restored := chat.New(client)
	restored.Hydrate("Trail Boots", m.SessionID(), shopper.TranscriptToMessages(rows))
	assert.Equal(t, m.Messages(), restored.Messages())
}

func TestChatErrorEnvelopeIsRecorded(t *testing.T) {
	backend := fakeapi.New(fakeapi.Config{})
	server := httptest.NewServer(backend.Handler())
	t.Cleanup(server.Close)

	client, err := api.New(api.Config{BaseURL: server.URL}, nil)
	require.NoError(t, err)

	m := chat.New(client)
	m.Switch("Kindle")
	backend.SetChatFunc(func(context.Context, api.ChatRequest) (string, error) {
		return "", assert.AnError
	})

	_, err = m.Send(context.Background(), "hello", nil)
	require.Error(t, err)
	assert.Equal(t, assert.AnError.Error(), err.Error())
	assert.Equal(t, []shopper.ChatMessage{user("hello")}, m.Messages())
	m.Wait()
}
