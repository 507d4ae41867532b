// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat implements the chat-session engine.
package chat

import (
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/jeranaias/localchat/internal/ollama"
)

// emitInterval caps how often the estimator notifies its observer. Deltas
// can arrive far faster than a UI can usefully redraw.
const emitInterval = 500 * time.Millisecond

// SpeedEstimator tracks tokens/second for one streaming reply.
//
// Token counts are the len/4 approximation accumulated fractionally; the
// rate is computed against the stream start and emitted rounded to the
// nearest integer, at most once per emitInterval (leading edge, so the
// first delta emits immediately). Finish always emits a terminal zero,
// exactly once, so no stale rate survives the stream.
type SpeedEstimator struct {
	mu       sync.Mutex
	start    time.Time
	tokens   float64
	limiter  *rate.Limiter
	observer func(tokensPerSec int)
	finished bool
}

// NewSpeedEstimator creates an estimator reporting to observer. A nil
// observer disables emission but token accounting still runs.
func NewSpeedEstimator(observer func(tokensPerSec int)) *SpeedEstimator {
	return &SpeedEstimator{
		start:    time.Now(),
		limiter:  rate.NewLimiter(rate.Every(emitInterval), 1),
		observer: observer,
	}
}

// Record accounts for one content delta and emits the updated rate if the
// limiter allows.
func (e *SpeedEstimator) Record(delta string) {
	e.mu.Lock()
	if e.finished {
		e.mu.Unlock()
		return
	}
	e.tokens += ollama.TokenEstimate(delta)
	current := e.rateLocked()
	emit := e.observer != nil && e.limiter.Allow()
	observer := e.observer
	e.mu.Unlock()

	// Observer runs outside the lock; it may call back into the store.
	if emit {
		observer(current)
	}
}

// Finish emits the terminal zero rate. Safe to call multiple times; only
// the first call emits.
func (e *SpeedEstimator) Finish() {
	e.mu.Lock()
	if e.finished {
		e.mu.Unlock()
		return
	}
	e.finished = true
	observer := e.observer
	e.mu.Unlock()

	if observer != nil {
		observer(0)
	}
}

// Tokens returns the accumulated token estimate.
func (e *SpeedEstimator) Tokens() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tokens
}

// Rate returns the current rounded tokens/second.
func (e *SpeedEstimator) Rate() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rateLocked()
}

// Elapsed returns time since the stream started.
func (e *SpeedEstimator) Elapsed() time.Duration {
	return time.Since(e.start)
}

func (e *SpeedEstimator) rateLocked() int {
	elapsed := time.Since(e.start).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return int(math.Round(e.tokens / elapsed))
}
