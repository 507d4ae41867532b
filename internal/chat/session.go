// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat implements the chat-session engine.
package chat

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/localchat/internal/ollama"
	"github.com/jeranaias/localchat/internal/util"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// errorPrefix marks an assistant message whose stream failed.
const errorPrefix = "Error: "

// interruptedMarker is appended to messages rehydrated mid-stream.
const interruptedMarker = "[interrupted]"

// Message represents a single message in a chat session.
//
// The ID is the message's identity within its session: unique, immutable,
// and the only key used for lookups during streaming. Content is mutable
// only while IsStreaming is true.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`

	// IsStreaming is true from creation until finalize or error. Persisted
	// so a snapshot taken mid-stream round-trips; rehydration reconciles it.
	IsStreaming bool `json:"is_streaming"`

	// Generation statistics, recorded on finalize of assistant messages.
	TokenCount   int     `json:"token_count,omitempty"`
	DurationMs   int64   `json:"duration_ms,omitempty"`
	TokensPerSec float64 `json:"tokens_per_sec,omitempty"`
}

// NewUserMessage creates a user message.
func NewUserMessage(content string) *Message {
	return &Message{
		ID:        uuid.NewString(),
		Role:      RoleUser,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// NewAssistantMessage creates the streaming placeholder for an assistant
// reply: empty content, streaming flag set.
func NewAssistantMessage() *Message {
	return &Message{
		ID:          uuid.NewString(),
		Role:        RoleAssistant,
		Timestamp:   time.Now(),
		IsStreaming: true,
	}
}

// AppendDelta appends an incremental content fragment. No-op once the
// message is finalized.
func (m *Message) AppendDelta(delta string) {
	if m.IsStreaming {
		m.Content += delta
	}
}

// SetError replaces the content with an error-indicating value. No-op once
// the message is finalized.
func (m *Message) SetError(description string) {
	if m.IsStreaming {
		m.Content = errorPrefix + description
	}
}

// IsError reports whether the message carries a streaming failure.
func (m *Message) IsError() bool {
	return m.Role == RoleAssistant && strings.HasPrefix(m.Content, errorPrefix)
}

// finalize clears the streaming flag and records generation statistics.
// Idempotent: a second call does nothing.
func (m *Message) finalize(tokenCount int, elapsed time.Duration, tokensPerSec float64) {
	if !m.IsStreaming {
		return
	}
	m.IsStreaming = false
	m.TokenCount = tokenCount
	m.DurationMs = elapsed.Milliseconds()
	m.TokensPerSec = tokensPerSec
}

// Preview returns a truncated single-line preview of the content.
func (m *Message) Preview(maxLen int) string {
	return util.Truncate(util.FirstLine(m.Content), maxLen)
}

// =============================================================================
// CHAT SESSION TYPE
// =============================================================================

// ChatSession holds one conversation thread bound to a model.
//
// Message order is append order; nothing reorders. The model is immutable
// after creation, the title is user-settable.
type ChatSession struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Model     string     `json:"model"`
	CreatedAt time.Time  `json:"created_at"`
	Messages  []*Message `json:"messages"`
}

// NewChatSession creates a session for the given model. The title may be
// empty; it is then auto-derived from the first user message.
func NewChatSession(title, model string) *ChatSession {
	return &ChatSession{
		ID:        uuid.NewString(),
		Title:     title,
		Model:     model,
		CreatedAt: time.Now(),
		Messages:  make([]*Message, 0),
	}
}

// AddMessage appends a message and auto-titles the session if needed.
func (s *ChatSession) AddMessage(msg *Message) {
	s.Messages = append(s.Messages, msg)
	if s.Title == "" && msg.Role == RoleUser {
		s.Title = msg.Preview(50)
	}
}

// MessageByID returns the message with the given identity key, or nil.
// Lookups during streaming always go through here, never by index, because
// concurrent mutations may change positions.
func (s *ChatSession) MessageByID(id string) *Message {
	for _, msg := range s.Messages {
		if msg.ID == id {
			return msg
		}
	}
	return nil
}

// wireHistory converts the session's messages to the wire format, skipping
// empty-content messages (the streaming placeholder among them) and any
// message whose ID is in exclude.
func (s *ChatSession) wireHistory(exclude map[string]bool) []ollama.Message {
	wire := make([]ollama.Message, 0, len(s.Messages))
	for _, msg := range s.Messages {
		if exclude[msg.ID] || msg.Content == "" {
			continue
		}
		switch msg.Role {
		case RoleUser:
			wire = append(wire, ollama.NewUserMessage(msg.Content))
		case RoleAssistant:
			wire = append(wire, ollama.NewAssistantMessage(msg.Content))
		}
	}
	return wire
}

// reconcileInterrupted clears the streaming flag on any message persisted
// mid-stream, marking the content so the interruption is visible. Called on
// rehydrate: a loaded session must never show a permanently streaming
// message.
func (s *ChatSession) reconcileInterrupted() {
	for _, msg := range s.Messages {
		if !msg.IsStreaming {
			continue
		}
		msg.IsStreaming = false
		if msg.Content == "" {
			msg.Content = interruptedMarker
		} else {
			msg.Content += "\n" + interruptedMarker
		}
	}
}

// Clone returns a deep copy. Accessors hand these out so callers never hold
// a mutable reference into the store.
func (s *ChatSession) Clone() *ChatSession {
	clone := &ChatSession{
		ID:        s.ID,
		Title:     s.Title,
		Model:     s.Model,
		CreatedAt: s.CreatedAt,
		Messages:  make([]*Message, len(s.Messages)),
	}
	for i, msg := range s.Messages {
		msgCopy := *msg
		clone.Messages[i] = &msgCopy
	}
	return clone
}

// Meta returns lightweight metadata for listing.
func (s *ChatSession) Meta() SessionMeta {
	return SessionMeta{
		ID:           s.ID,
		Title:        s.Title,
		Model:        s.Model,
		MessageCount: len(s.Messages),
		CreatedAt:    s.CreatedAt,
	}
}

// SessionMeta holds lightweight metadata for listing sessions.
type SessionMeta struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Model        string    `json:"model"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
}
