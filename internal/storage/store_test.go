// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// Both backends must satisfy the same contract; run the shared suite
// against each.
func openStores(t *testing.T) map[string]Store {
	t.Helper()

	sqliteStore, err := NewSQLiteStore(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqliteStore.Close() })

	fileStore, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { fileStore.Close() })

	return map[string]Store{
		"sqlite": sqliteStore,
		"file":   fileStore,
	}
}

func TestStore_PutGetRoundTrip(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			value := []byte(`{"chats":[],"current_chat_id":null}`)
			require.NoError(t, store.Put("chat-store", value))

			got, err := store.Get("chat-store")
			require.NoError(t, err)
			require.Equal(t, value, got)
		})
	}
}

func TestStore_PutOverwrites(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Put("rec", []byte("first")))
			require.NoError(t, store.Put("rec", []byte("second")))

			got, err := store.Get("rec")
			require.NoError(t, err)
			require.Equal(t, []byte("second"), got)
		})
	}
}

func TestStore_GetMissing(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Get("never-written")
			require.True(t, errors.Is(err, ErrRecordNotFound), "got %v", err)
		})
	}
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")

	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Put("chat-store", []byte("persisted")))
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get("chat-store")
	require.NoError(t, err)
	require.Equal(t, []byte("persisted"), got)
}
