// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ollama provides the HTTP client for communicating with the local
// inference server and the decoder for its newline-delimited JSON stream.
package ollama

import (
	"bytes"
	"strings"
)

// LineBuffer turns an arbitrary byte chunk stream into complete text lines.
//
// The server's streaming body arrives in chunks whose boundaries fall
// anywhere, including inside a line or inside a multi-byte UTF-8 sequence.
// LineBuffer accumulates raw bytes and only converts to string once a full
// line is available, so a rune split across two chunks is reassembled
// intact. Empty and whitespace-only lines are dropped.
//
// Invariant: for a fixed byte stream, the emitted line sequence is the same
// for every possible chunking.
type LineBuffer struct {
	buf []byte
}

// Feed appends a chunk and returns all complete lines now available.
// Content after the last newline stays buffered for the next call.
func (b *LineBuffer) Feed(chunk []byte) []string {
	b.buf = append(b.buf, chunk...)

	var lines []string
	for {
		i := bytes.IndexByte(b.buf, '\n')
		if i < 0 {
			break
		}
		line := strings.TrimSpace(string(b.buf[:i]))
		b.buf = b.buf[i+1:]
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}

	// Reclaim the consumed prefix so the buffer does not grow without bound
	// on long streams.
	if len(b.buf) == 0 {
		b.buf = nil
	}

	return lines
}

// Flush returns whatever remains unterminated when the stream ends, clearing
// the buffer. The second return is false when nothing (or only whitespace)
// remains.
func (b *LineBuffer) Flush() (string, bool) {
	tail := strings.TrimSpace(string(b.buf))
	b.buf = nil
	if tail == "" {
		return "", false
	}
	return tail, true
}

// Len reports the number of buffered bytes awaiting a newline.
func (b *LineBuffer) Len() int {
	return len(b.buf)
}
