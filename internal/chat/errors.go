// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat implements the chat-session engine.
package chat

// ValidationError reports an invalid argument to a store operation. These
// are the only errors that interrupt the caller; streaming-time failures are
// captured into the conversation instead.
type ValidationError struct {
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return e.Message
}

// Is implements errors.Is support for comparing validation errors.
func (e *ValidationError) Is(target error) bool {
	t, ok := target.(*ValidationError)
	if !ok {
		return false
	}
	return e.Message == t.Message
}

var (
	// ErrModelRequired is returned when creating a chat without a model.
	ErrModelRequired = &ValidationError{Message: "model is required"}

	// ErrChatNotFound is returned when a chat ID does not resolve.
	ErrChatNotFound = &ValidationError{Message: "chat not found"}

	// ErrStreamInFlight is returned when a send is attempted on a chat that
	// is already streaming a reply.
	ErrStreamInFlight = &ValidationError{Message: "a reply is already streaming for this chat"}
)
