// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type rateRecorder struct {
	mu    sync.Mutex
	rates []int
}

func (r *rateRecorder) observe(tokensPerSec int) {
	r.mu.Lock()
	r.rates = append(r.rates, tokensPerSec)
	r.mu.Unlock()
}

func (r *rateRecorder) all() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int, len(r.rates))
	copy(out, r.rates)
	return out
}

func TestSpeedEstimatorAccumulatesFractionalTokens(t *testing.T) {
	est := NewSpeedEstimator(nil)

	est.Record("ab")  // 0.5 tokens
	est.Record("cd")  // 0.5 tokens
	est.Record("efg") // 0.75 tokens

	require.InDelta(t, 1.75, est.Tokens(), 1e-9)
}

func TestSpeedEstimatorEmitsOnFirstDelta(t *testing.T) {
	rec := &rateRecorder{}
	est := NewSpeedEstimator(rec.observe)

	est.Record("some content here")

	rates := rec.all()
	require.Len(t, rates, 1, "leading-edge limiter emits immediately")
}

func TestSpeedEstimatorThrottlesEmission(t *testing.T) {
	rec := &rateRecorder{}
	est := NewSpeedEstimator(rec.observe)

	// A burst of deltas well inside one emit interval produces a single
	// emission; token accounting still covers all of them.
	for i := 0; i < 50; i++ {
		est.Record("abcd")
	}

	require.Len(t, rec.all(), 1)
	require.InDelta(t, 50.0, est.Tokens(), 1e-9)
}

func TestSpeedEstimatorFinishEmitsZeroOnce(t *testing.T) {
	rec := &rateRecorder{}
	est := NewSpeedEstimator(rec.observe)

	est.Record("abcd")
	est.Finish()
	est.Finish()
	est.Record("ignored after finish")

	rates := rec.all()
	require.Equal(t, 0, rates[len(rates)-1])

	zeros := 0
	for _, r := range rates {
		if r == 0 {
			zeros++
		}
	}
	require.Equal(t, 1, zeros)
	require.InDelta(t, 1.0, est.Tokens(), 1e-9, "no accounting after finish")
}

func TestSpeedEstimatorNilObserver(t *testing.T) {
	est := NewSpeedEstimator(nil)
	est.Record("abcdefgh")
	est.Finish()
	require.InDelta(t, 2.0, est.Tokens(), 1e-9)
}
