// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ollama provides the HTTP client for communicating with the local
// inference server and the decoder for its newline-delimited JSON stream.
package ollama

import "time"

// =============================================================================
// REQUEST TYPES
// =============================================================================

// Message represents a chat message in the wire format.
type Message struct {
	Role    string `json:"role"` // "user", "assistant", "system"
	Content string `json:"content"`
}

// ChatRequest is the request body for the /api/chat endpoint.
type ChatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) Message {
	return Message{Role: "user", Content: content}
}

// NewAssistantMessage creates a new assistant message.
func NewAssistantMessage(content string) Message {
	return Message{Role: "assistant", Content: content}
}

// =============================================================================
// MODEL TYPES
// =============================================================================

// ModelInfo contains information about an installed model.
type ModelInfo struct {
	Name       string       `json:"name"`
	ModifiedAt time.Time    `json:"modified_at"`
	Size       int64        `json:"size"`
	Digest     string       `json:"digest"`
	Details    ModelDetails `json:"details,omitempty"`
}

// ModelDetails contains detailed information about a model.
type ModelDetails struct {
	Format            string   `json:"format"`
	Family            string   `json:"family"`
	Families          []string `json:"families"`
	ParameterSize     string   `json:"parameter_size"`
	QuantizationLevel string   `json:"quantization_level"`
}

// ListModelsResponse is the response from the /api/tags endpoint.
type ListModelsResponse struct {
	Models []ModelInfo `json:"models"`
}

// FormatSize formats the model size in human-readable form.
func (m *ModelInfo) FormatSize() string {
	const (
		kb = 1 << 10
		mb = 1 << 20
		gb = 1 << 30
	)

	switch {
	case m.Size >= gb:
		return formatSize(float64(m.Size)/gb, "GB")
	case m.Size >= mb:
		return formatSize(float64(m.Size)/mb, "MB")
	case m.Size >= kb:
		return formatSize(float64(m.Size)/kb, "KB")
	default:
		return formatSize(float64(m.Size), "B")
	}
}

func formatSize(v float64, unit string) string {
	whole := int64(v)
	frac := int64((v - float64(whole)) * 10)
	if frac == 0 {
		return itoa(whole) + " " + unit
	}
	return itoa(whole) + "." + itoa(frac) + " " + unit
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	var digits []byte
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

// =============================================================================
// STREAMING TYPES
// =============================================================================

// StreamRecord is one parsed line of a streaming chat response. Records that
// carry no content delta (status-only lines) are valid; their Message.Content
// is simply empty.
type StreamRecord struct {
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
	Message   struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done          bool   `json:"done"`
	DoneReason    string `json:"done_reason,omitempty"`
	EvalCount     int    `json:"eval_count,omitempty"`
	EvalDuration  int64  `json:"eval_duration,omitempty"`
	TotalDuration int64  `json:"total_duration,omitempty"`
}

// StreamChunk is what the stream pipeline delivers to its callback.
type StreamChunk struct {
	// Content is the incremental text delta from this record, if any.
	Content string

	// Done is set on the terminal record.
	Done       bool
	DoneReason string

	// EvalCount is the server's token count, populated on the final record.
	EvalCount int

	// Model is the model name reported by the stream.
	Model string
}

// StreamCallback is called for each accepted chunk, in arrival order.
type StreamCallback func(chunk StreamChunk)

// serverError is the error body the server returns on non-2xx responses.
type serverError struct {
	Error string `json:"error"`
}
