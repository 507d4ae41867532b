// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestParseRecord(t *testing.T) {
	tests := []struct {
		name        string
		line        string
		wantContent string
		wantDone    bool
		wantErr     bool
	}{
		{
			name:        "content delta",
			line:        `{"model":"llama3","message":{"role":"assistant","content":"He"},"done":false}`,
			wantContent: "He",
		},
		{
			name:     "terminal record",
			line:     `{"model":"llama3","message":{"role":"assistant","content":""},"done":true,"done_reason":"stop","eval_count":42}`,
			wantDone: true,
		},
		{
			name: "status-only record accepted without delta",
			line: `{"model":"llama3","done":false}`,
		},
		{
			name:    "malformed json",
			line:    `{"message":{"content":`,
			wantErr: true,
		},
		{
			name:    "not json at all",
			line:    `<html>502 bad gateway</html>`,
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec, err := ParseRecord(tc.line)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				if !errors.Is(err, ErrMalformedRecord) {
					t.Errorf("error %v should wrap ErrMalformedRecord", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseRecord failed: %v", err)
			}
			if rec.Message.Content != tc.wantContent {
				t.Errorf("content = %q, want %q", rec.Message.Content, tc.wantContent)
			}
			if rec.Done != tc.wantDone {
				t.Errorf("done = %v, want %v", rec.Done, tc.wantDone)
			}
		})
	}
}

func TestTokenEstimate(t *testing.T) {
	if got := TokenEstimate("abcd"); got != 1 {
		t.Errorf("TokenEstimate(abcd) = %v, want 1", got)
	}
	if got := TokenEstimate("ab"); got != 0.5 {
		t.Errorf("TokenEstimate(ab) = %v, want 0.5", got)
	}
	if got := TokenEstimate(""); got != 0 {
		t.Errorf("TokenEstimate() = %v, want 0", got)
	}
}

func TestStreamReader_MalformedLinesAreSkipped(t *testing.T) {
	body := strings.Join([]string{
		`{"message":{"content":"He"}}`,
		`this is not json`,
		`{"message":{"content":"llo"}}`,
		`{"broken":`,
		`{"message":{"content":"!"},"done":true}`,
	}, "\n") + "\n"

	reader := NewStreamReader(strings.NewReader(body), nil)

	var deltas []string
	var done bool
	err := reader.Process(context.Background(), func(chunk StreamChunk) {
		if chunk.Content != "" {
			deltas = append(deltas, chunk.Content)
		}
		if chunk.Done {
			done = true
		}
	})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	want := []string{"He", "llo", "!"}
	if len(deltas) != len(want) {
		t.Fatalf("deltas = %q, want %q", deltas, want)
	}
	for i := range want {
		if deltas[i] != want[i] {
			t.Errorf("delta[%d] = %q, want %q", i, deltas[i], want[i])
		}
	}
	if !done {
		t.Error("terminal record not seen")
	}
}

func TestStreamReader_FinalPartialRecord(t *testing.T) {
	// Stream ends without a trailing newline; the last line must still be
	// parsed and delivered.
	body := `{"message":{"content":"a"}}` + "\n" + `{"message":{"content":"b"}}`

	reader := NewStreamReader(strings.NewReader(body), nil)

	var got string
	err := reader.Process(context.Background(), func(chunk StreamChunk) {
		got += chunk.Content
	})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if got != "ab" {
		t.Errorf("accumulated %q, want ab", got)
	}
}

func TestStreamReader_StopsAtTerminalRecord(t *testing.T) {
	body := `{"message":{"content":"x"},"done":true}` + "\n" + `{"message":{"content":"never"}}` + "\n"

	reader := NewStreamReader(strings.NewReader(body), nil)

	var got string
	if err := reader.Process(context.Background(), func(chunk StreamChunk) {
		got += chunk.Content
	}); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if got != "x" {
		t.Errorf("accumulated %q, want x", got)
	}
}

func TestStreamReader_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// A reader that would block forever; cancellation must win.
	reader := NewStreamReader(blockingReader{}, nil)

	err := reader.Process(ctx, func(StreamChunk) {})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

type blockingReader struct{}

func (blockingReader) Read(p []byte) (int, error) {
	select {} // never returns
}

func TestStreamReader_PropagatesReadError(t *testing.T) {
	readErr := errors.New("connection reset")
	reader := NewStreamReader(io.MultiReader(
		strings.NewReader(`{"message":{"content":"He"}}`+"\n"),
		errReader{err: readErr},
	), nil)

	var got string
	err := reader.Process(context.Background(), func(chunk StreamChunk) {
		got += chunk.Content
	})
	if !errors.Is(err, readErr) {
		t.Errorf("err = %v, want %v", err, readErr)
	}
	if got != "He" {
		t.Errorf("deltas before the error must still be delivered, got %q", got)
	}
}

type errReader struct{ err error }

func (r errReader) Read(p []byte) (int, error) { return 0, r.err }
