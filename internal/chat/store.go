// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat implements the chat-session engine.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/jeranaias/localchat/internal/ollama"
	"github.com/jeranaias/localchat/internal/storage"
)

// recordName is the fixed key the full engine state is persisted under.
const recordName = "chat-store"

// Client is the inference-server surface the store depends on. Satisfied by
// *ollama.Client; tests substitute fakes.
type Client interface {
	ListModels(ctx context.Context) ([]ollama.ModelInfo, error)
	Ping(ctx context.Context) error
	ChatStream(ctx context.Context, model string, messages []ollama.Message, callback ollama.StreamCallback) error
}

// snapshot is the persisted form of the engine state: the full session
// collection and the active pointer, nothing partial.
type snapshot struct {
	Chats         []*ChatSession `json:"chats"`
	CurrentChatID string         `json:"current_chat_id"`
}

// =============================================================================
// STORE
// =============================================================================

// Store owns the chat sessions and orchestrates streaming replies.
//
// All mutations run as discrete steps under one mutex; the only suspension
// point is the network read inside a streaming send, during which other
// operations (switching, deleting sessions) may interleave safely because
// every stream-side write re-resolves its targets by identity key.
type Store struct {
	mu       sync.Mutex
	sessions []*ChatSession // most-recent-first
	activeID string
	inflight map[string]context.CancelFunc // chat ID -> stream cancel

	client    Client
	persister storage.Store
	logger    *slog.Logger

	// Model catalog state, observed by the UI.
	models        []ollama.ModelInfo
	modelsErr     string
	loadingModels bool

	// Observers. Both may be nil.
	speedObserver  func(tokensPerSec int)
	streamObserver func(chatID, delta string)
}

// NewStore creates a session store with injected dependencies. A nil logger
// discards; a nil persister keeps state in memory only.
func NewStore(client Client, persister storage.Store, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Store{
		inflight:  make(map[string]context.CancelFunc),
		client:    client,
		persister: persister,
		logger:    logger,
	}
}

// SetSpeedObserver registers the tokens/second observer for streaming
// replies. Must be set before streaming begins.
func (s *Store) SetSpeedObserver(fn func(tokensPerSec int)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.speedObserver = fn
}

// SetStreamObserver registers an observer for incremental reply content.
func (s *Store) SetStreamObserver(fn func(chatID, delta string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streamObserver = fn
}

// =============================================================================
// PERSISTENCE
// =============================================================================

// Load rehydrates state from the persister. A missing record means a fresh
// start. Messages persisted mid-stream are reconciled to non-streaming with
// a visible interruption marker.
func (s *Store) Load() error {
	if s.persister == nil {
		return nil
	}

	data, err := s.persister.Get(recordName)
	if errors.Is(err, storage.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load chat state: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("failed to decode chat state: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions = snap.Chats
	if s.sessions == nil {
		s.sessions = make([]*ChatSession, 0)
	}
	s.activeID = snap.CurrentChatID

	for _, sess := range s.sessions {
		sess.reconcileInterrupted()
	}

	return nil
}

// persistLocked snapshots current state to durable storage. Failures are
// logged, not propagated: the engine continues on in-memory state. Caller
// holds the mutex, which also serializes writes in mutation order.
func (s *Store) persistLocked() {
	if s.persister == nil {
		return
	}

	data, err := json.Marshal(snapshot{
		Chats:         s.sessions,
		CurrentChatID: s.activeID,
	})
	if err != nil {
		s.logger.Error("failed to encode chat state", "error", err)
		return
	}

	if err := s.persister.Put(recordName, data); err != nil {
		s.logger.Error("failed to persist chat state", "error", err)
	}
}

// =============================================================================
// MODEL CATALOG
// =============================================================================

// FetchAvailableModels queries the server's model catalog. Failures are
// recorded in shared state for the UI to observe, never thrown past this
// boundary. The loading flag is cleared exactly once however the call ends.
func (s *Store) FetchAvailableModels(ctx context.Context) {
	s.mu.Lock()
	s.loadingModels = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.loadingModels = false
		s.mu.Unlock()
	}()

	models, err := s.client.ListModels(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.modelsErr = err.Error()
		if ollama.IsNotRunning(err) {
			s.modelsErr = "server is not running (start it with: ollama serve)"
		}
		s.logger.Warn("failed to fetch model catalog", "error", err)
		return
	}
	s.models = models
	s.modelsErr = ""
}

// Models returns the cached model catalog.
func (s *Store) Models() []ollama.ModelInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ollama.ModelInfo, len(s.models))
	copy(out, s.models)
	return out
}

// ModelsError returns the last catalog fetch error, empty if none.
func (s *Store) ModelsError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.modelsErr
}

// LoadingModels reports whether a catalog fetch is in progress.
func (s *Store) LoadingModels() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadingModels
}

// =============================================================================
// SESSION OPERATIONS
// =============================================================================

// CreateChat creates a new session, inserts it at the front of the list
// (most-recent-first), makes it active, and returns its ID.
// Returns ErrModelRequired if model is empty.
func (s *Store) CreateChat(title, model string) (string, error) {
	if model == "" {
		return "", ErrModelRequired
	}

	sess := NewChatSession(title, model)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = append([]*ChatSession{sess}, s.sessions...)
	s.activeID = sess.ID
	s.persistLocked()

	return sess.ID, nil
}

// DeleteChat removes a session, cancelling any in-flight stream for it and
// clearing the active pointer if it referenced the deleted session.
func (s *Store) DeleteChat(chatID string) error {
	s.mu.Lock()

	idx := -1
	for i, sess := range s.sessions {
		if sess.ID == chatID {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return ErrChatNotFound
	}

	s.sessions = append(s.sessions[:idx], s.sessions[idx+1:]...)
	if s.activeID == chatID {
		s.activeID = ""
	}
	cancel := s.inflight[chatID]
	s.persistLocked()
	s.mu.Unlock()

	// Cancel outside the lock; the stream's cleanup re-acquires it.
	if cancel != nil {
		cancel()
	}
	return nil
}

// RenameChat sets a session's title.
func (s *Store) RenameChat(chatID, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.findLocked(chatID)
	if sess == nil {
		return ErrChatNotFound
	}
	sess.Title = title
	s.persistLocked()
	return nil
}

// SetActiveChat sets the active pointer. Deliberately no existence check:
// the pointer may reference a since-deleted session, and readers must treat
// that as a valid, displayable state.
func (s *Store) SetActiveChat(chatID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeID = chatID
	s.persistLocked()
}

// ActiveChat returns a snapshot of the active session. ok is false when no
// active session resolves (none set, or it was deleted).
func (s *Store) ActiveChat() (*ChatSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.findLocked(s.activeID)
	if sess == nil {
		return nil, false
	}
	return sess.Clone(), true
}

// ActiveChatID returns the raw active pointer, which may be dangling.
func (s *Store) ActiveChatID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}

// Chat returns a snapshot of the named session.
func (s *Store) Chat(chatID string) (*ChatSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.findLocked(chatID)
	if sess == nil {
		return nil, false
	}
	return sess.Clone(), true
}

// Sessions lists session metadata, most recent first.
func (s *Store) Sessions() []SessionMeta {
	s.mu.Lock()
	defer s.mu.Unlock()

	metas := make([]SessionMeta, len(s.sessions))
	for i, sess := range s.sessions {
		metas[i] = sess.Meta()
	}
	return metas
}

// AddMessage appends an already-constructed message to the named session.
// Returns ErrChatNotFound for an unknown session rather than silently
// dropping the message.
func (s *Store) AddMessage(chatID string, msg *Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.findLocked(chatID)
	if sess == nil {
		return ErrChatNotFound
	}
	sess.AddMessage(msg)
	s.persistLocked()
	return nil
}

// findLocked resolves a session by ID. Caller holds the mutex.
func (s *Store) findLocked(chatID string) *ChatSession {
	for _, sess := range s.sessions {
		if sess.ID == chatID {
			return sess
		}
	}
	return nil
}

// =============================================================================
// SEND MESSAGE
// =============================================================================

// SendMessage appends the user message and a streaming assistant
// placeholder, then streams the reply into the placeholder.
//
// Validation failures (unknown chat, stream already in flight) return an
// error and mutate nothing. Transport and stream failures do not: they are
// rendered into the assistant message as an error-prefixed text. Whatever
// happens, the placeholder's streaming flag is cleared exactly once and the
// throughput estimator is reset to zero before this returns.
func (s *Store) SendMessage(ctx context.Context, chatID, text string) error {
	s.mu.Lock()

	sess := s.findLocked(chatID)
	if sess == nil {
		s.mu.Unlock()
		return ErrChatNotFound
	}
	if _, busy := s.inflight[chatID]; busy {
		s.mu.Unlock()
		return ErrStreamInFlight
	}

	userMsg := NewUserMessage(text)
	assistantMsg := NewAssistantMessage()
	sess.AddMessage(userMsg)
	sess.AddMessage(assistantMsg)
	assistantID := assistantMsg.ID

	// The outgoing request replays prior history and carries the new text
	// exactly once, as the final turn. The just-appended pair is excluded
	// from the replay.
	wire := sess.wireHistory(map[string]bool{userMsg.ID: true, assistantID: true})
	wire = append(wire, ollama.NewUserMessage(text))
	model := sess.Model

	streamCtx, cancel := context.WithCancel(ctx)
	s.inflight[chatID] = cancel

	// Both messages are visible (and persisted) before any network activity.
	s.persistLocked()
	estimator := NewSpeedEstimator(s.speedObserver)
	streamObserver := s.streamObserver
	s.mu.Unlock()

	// Guaranteed cleanup: finalize the placeholder and reset the estimator
	// no matter which path the stream took. Lookups are by identity; if the
	// session was deleted mid-stream this degrades to a no-op.
	defer func() {
		estimator.Finish()

		s.mu.Lock()
		delete(s.inflight, chatID)
		if sess := s.findLocked(chatID); sess != nil {
			if msg := sess.MessageByID(assistantID); msg != nil {
				msg.finalize(int(estimator.Tokens()), estimator.Elapsed(), float64(estimator.Rate()))
			}
		}
		s.persistLocked()
		s.mu.Unlock()

		cancel()
	}()

	err := s.client.ChatStream(streamCtx, model, wire, func(chunk ollama.StreamChunk) {
		if chunk.Content == "" {
			return
		}
		estimator.Record(chunk.Content)

		// Atomic read-modify-write against current store state, never a
		// stale captured reference.
		s.mu.Lock()
		target := s.findLocked(chatID)
		if target == nil {
			// Session deleted mid-stream: stop reading, mutate nothing.
			s.mu.Unlock()
			cancel()
			return
		}
		if msg := target.MessageByID(assistantID); msg != nil {
			msg.AppendDelta(chunk.Content)
		}
		s.mu.Unlock()

		if streamObserver != nil {
			streamObserver(chatID, chunk.Content)
		}
	})

	if err != nil && streamCtx.Err() == nil {
		s.logger.Warn("chat stream failed", "chat_id", chatID, "error", err)
		s.mu.Lock()
		if sess := s.findLocked(chatID); sess != nil {
			if msg := sess.MessageByID(assistantID); msg != nil {
				msg.SetError(err.Error())
			}
		}
		s.mu.Unlock()
	}

	return nil
}

// Streaming reports whether the named session has a reply in flight.
func (s *Store) Streaming(chatID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, busy := s.inflight[chatID]
	return busy
}
