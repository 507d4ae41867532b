// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ollama provides the HTTP client for communicating with the local
// inference server and the decoder for its newline-delimited JSON stream.
package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/jeranaias/localchat/internal/util"
)

// ErrMalformedRecord marks a stream line that failed JSON parsing. Callers
// log and skip; a single bad line never aborts an in-progress reply.
var ErrMalformedRecord = errors.New("malformed stream record")

// ParseRecord parses one complete line of the chat stream.
func ParseRecord(line string) (*StreamRecord, error) {
	var rec StreamRecord
	if err := json.Unmarshal([]byte(line), &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	return &rec, nil
}

// TokenEstimate approximates the token contribution of a content delta using
// the ~4 characters per token heuristic. Used only for rate estimation.
func TokenEstimate(delta string) float64 {
	return float64(len(delta)) / 4
}

// =============================================================================
// STREAM READER
// =============================================================================

// StreamReader drives the chunk -> line -> record pipeline over a response
// body. Malformed lines are logged and skipped. The final unterminated line,
// if any, is parsed as the last record at EOF.
type StreamReader struct {
	reader io.Reader
	lines  LineBuffer
	logger *slog.Logger
	model  string
}

// NewStreamReader creates a stream reader. A nil logger discards decode
// warnings.
func NewStreamReader(r io.Reader, logger *slog.Logger) *StreamReader {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &StreamReader{reader: r, logger: logger}
}

// Process reads the stream and calls the callback for each record, in order.
// Returns nil on a terminal record or clean EOF, the context error on
// cancellation, and the read error otherwise.
func (s *StreamReader) Process(ctx context.Context, callback StreamCallback) error {
	buf := make([]byte, 4096)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := s.reader.Read(buf)
		if n > 0 {
			for _, line := range s.lines.Feed(buf[:n]) {
				if s.dispatch(line, callback) {
					return nil
				}
			}
		}
		if err != nil {
			if err == io.EOF {
				// The final partial record case: content after the last
				// newline when the stream closes.
				if tail, ok := s.lines.Flush(); ok {
					s.dispatch(tail, callback)
				}
				return nil
			}
			return err
		}
	}
}

// dispatch parses a line and forwards the chunk. Returns true on the
// terminal record.
func (s *StreamReader) dispatch(line string, callback StreamCallback) bool {
	rec, err := ParseRecord(line)
	if err != nil {
		s.logger.Warn("skipping malformed stream line",
			"error", err,
			"line", util.Truncate(line, 120))
		return false
	}

	if rec.Model != "" {
		s.model = rec.Model
	}

	callback(StreamChunk{
		Content:    rec.Message.Content,
		Done:       rec.Done,
		DoneReason: rec.DoneReason,
		EvalCount:  rec.EvalCount,
		Model:      s.model,
	})

	return rec.Done
}
