// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ollama provides the HTTP client for communicating with the local
// inference server and the decoder for its newline-delimited JSON stream.
//
// # Key Types
//
//   - Client: HTTP client for the server API (/api/tags, /api/ps, /api/chat)
//   - LineBuffer: chunk-tolerant splitter producing complete text lines
//   - StreamRecord: one parsed line of a streaming chat response
//   - StreamReader: composes LineBuffer and record parsing over an io.Reader
//
// # Usage
//
// Create a client and stream a chat reply:
//
//	client := ollama.NewClient()
//	err := client.ChatStream(ctx, "llama3", messages, func(chunk ollama.StreamChunk) {
//	    fmt.Print(chunk.Content)
//	})
//
// A malformed line in the stream is logged and skipped; it never aborts an
// in-progress reply.
package ollama
