// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jeranaias/localchat/internal/chat"
	"github.com/jeranaias/localchat/internal/config"
	"github.com/jeranaias/localchat/internal/ollama"
)

// scriptedClient streams a fixed reply and serves a fixed model list.
type scriptedClient struct {
	models  []ollama.ModelInfo
	listErr error
	reply   []string
}

func (c *scriptedClient) ListModels(ctx context.Context) ([]ollama.ModelInfo, error) {
	return c.models, c.listErr
}

func (c *scriptedClient) Ping(ctx context.Context) error { return nil }

func (c *scriptedClient) ChatStream(ctx context.Context, model string, messages []ollama.Message, cb ollama.StreamCallback) error {
	for _, delta := range c.reply {
		cb(ollama.StreamChunk{Content: delta})
	}
	cb(ollama.StreamChunk{Done: true})
	return nil
}

func newTestREPL(client *scriptedClient) (*REPL, *bytes.Buffer) {
	store := chat.NewStore(client, nil, nil)
	out := &bytes.Buffer{}
	r := New(Options{
		Store:  store,
		Config: config.Default(),
		Out:    out,
	})
	return r, out
}

func TestSendCreatesChatAndStreams(t *testing.T) {
	client := &scriptedClient{reply: []string{"Hi ", "there"}}
	r, out := newTestREPL(client)

	r.send(context.Background(), "hello")

	require.Contains(t, out.String(), "Started a new chat with llama3.2")
	require.Contains(t, out.String(), "Hi there")

	metas := r.store.Sessions()
	require.Len(t, metas, 1)
	require.Equal(t, 2, metas[0].MessageCount)
}

func TestSendReusesActiveChat(t *testing.T) {
	client := &scriptedClient{reply: []string{"ok"}}
	r, _ := newTestREPL(client)

	r.send(context.Background(), "first")
	r.send(context.Background(), "second")

	require.Len(t, r.store.Sessions(), 1)
	require.Equal(t, 4, r.store.Sessions()[0].MessageCount)
}

func TestDispatchQuit(t *testing.T) {
	r, _ := newTestREPL(&scriptedClient{})
	require.True(t, r.dispatch(context.Background(), "/quit"))
	require.True(t, r.dispatch(context.Background(), "/q"))
	require.False(t, r.dispatch(context.Background(), "/help"))
}

func TestDispatchUnknown(t *testing.T) {
	r, out := newTestREPL(&scriptedClient{})
	require.False(t, r.dispatch(context.Background(), "/bogus"))
	require.Contains(t, out.String(), "Unknown command /bogus")
}

func TestCmdModels(t *testing.T) {
	client := &scriptedClient{
		models: []ollama.ModelInfo{
			{Name: "llama3.2", Size: 2 * 1024 * 1024 * 1024},
			{Name: "mistral", Size: 4 * 1024 * 1024 * 1024},
		},
	}
	r, out := newTestREPL(client)

	r.dispatch(context.Background(), "/models")
	require.Contains(t, out.String(), "llama3.2")
	require.Contains(t, out.String(), "mistral")
	require.Contains(t, out.String(), "2 GB", "sizes shown human-readable")
	require.Contains(t, out.String(), "4 GB")
}

func TestCmdModelsError(t *testing.T) {
	client := &scriptedClient{listErr: errors.New("server not running")}
	r, out := newTestREPL(client)

	r.dispatch(context.Background(), "/models")
	require.Contains(t, out.String(), "Could not list models")
}

func TestCmdNewAndChats(t *testing.T) {
	r, out := newTestREPL(&scriptedClient{})

	r.dispatch(context.Background(), "/new mistral")
	r.dispatch(context.Background(), "/new")
	r.dispatch(context.Background(), "/chats")

	s := out.String()
	require.Contains(t, s, "mistral")
	require.Contains(t, s, "llama3.2")
	require.Contains(t, s, "* ", "active chat marked")
}

func TestCmdSwitchAndDelete(t *testing.T) {
	r, out := newTestREPL(&scriptedClient{})

	r.dispatch(context.Background(), "/new mistral")
	r.dispatch(context.Background(), "/new llama3.2")
	require.Len(t, r.store.Sessions(), 2)

	// Position 2 is the older (mistral) chat.
	r.dispatch(context.Background(), "/switch 2")
	active, ok := r.store.ActiveChat()
	require.True(t, ok)
	require.Equal(t, "mistral", active.Model)

	r.dispatch(context.Background(), "/delete 1")
	require.Len(t, r.store.Sessions(), 1)
	require.Equal(t, "mistral", r.store.Sessions()[0].Model)

	out.Reset()
	r.dispatch(context.Background(), "/switch 9")
	require.Contains(t, out.String(), "No chat 9")
}

func TestCmdRename(t *testing.T) {
	r, out := newTestREPL(&scriptedClient{})

	r.dispatch(context.Background(), "/rename nothing active")
	require.Contains(t, out.String(), "No active chat")

	r.dispatch(context.Background(), "/new")
	r.dispatch(context.Background(), "/rename build notes")

	active, ok := r.store.ActiveChat()
	require.True(t, ok)
	require.Equal(t, "build notes", active.Title)
}

func TestCmdStatus(t *testing.T) {
	r, out := newTestREPL(&scriptedClient{})

	r.dispatch(context.Background(), "/status")
	require.Contains(t, out.String(), "Active:  none")

	out.Reset()
	r.dispatch(context.Background(), "/new")
	r.dispatch(context.Background(), "/status")
	require.Contains(t, out.String(), "llama3.2")
}
