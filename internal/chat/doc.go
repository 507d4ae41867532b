// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat implements the chat-session engine: the session/message data
// model, the session store orchestrating streaming replies, and the
// throughput estimator.
//
// The Store owns all sessions. Observers read state through snapshot
// accessors and identity lookups; they never hold a mutable handle into the
// store. During a streaming reply the in-flight assistant message is mutated
// in place, looked up by its identity key on every delta so concurrent
// session mutations (switching, deleting) cannot misdirect a write.
package chat
