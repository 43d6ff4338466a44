// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-sharechallenge.
//
// go-sharechallenge is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package metrics

import (
	"context"
	"runtime"
	"time"
)

// ChallengeState is the read-only view of a running challenge sampled on
// each tick. *challenge.Coordinator implements it.
type ChallengeState interface {
	Registered() int
	Pending() bool
	LastRoundStarted() time.Time
}

// StateCollector periodically samples challenge state into gauges that
// are not updated on the request path: registry size, pad pending, time
// since the last round, goroutines and uptime.
type StateCollector struct {
	ctx      context.Context
	cancel   context.CancelFunc
	interval time.Duration
	state    ChallengeState
	now      func() time.Time
	started  time.Time
}

// NewStateCollector creates a collector sampling state every interval.
// A nil state samples only the process gauges.
//
// Example:
//
//	collector := metrics.NewStateCollector(ctx, coordinator, 5*time.Second)
//	go collector.Start()
//	defer collector.Stop()
func NewStateCollector(ctx context.Context, state ChallengeState, interval time.Duration) *StateCollector {
	collectorCtx, cancel := context.WithCancel(ctx)
	return &StateCollector{
		ctx:      collectorCtx,
		cancel:   cancel,
		interval: interval,
		state:    state,
		now:      time.Now,
		started:  time.Now(),
	}
}

// Start samples immediately and then on every tick until Stop or the
// parent context is cancelled. It blocks.
func (sc *StateCollector) Start() {
	ticker := time.NewTicker(sc.interval)
	defer ticker.Stop()

	sc.Collect()

	for {
		select {
		case <-sc.ctx.Done():
			return
		case <-ticker.C:
			sc.Collect()
		}
	}
}

// Stop halts the collector.
func (sc *StateCollector) Stop() {
	sc.cancel()
}

// Collect takes one sample. It is a no-op while metrics are disabled.
func (sc *StateCollector) Collect() {
	if !IsEnabled() {
		return
	}
	now := sc.now()

	Goroutines.Set(float64(runtime.NumGoroutine()))
	ServerUptime.Set(now.Sub(sc.started).Seconds())

	if sc.state == nil {
		return
	}
	RegisteredParticipants.Set(float64(sc.state.Registered()))
	if sc.state.Pending() {
		PadPending.Set(1)
	} else {
		PadPending.Set(0)
	}
	// before the first round, report uptime so the gauge still grows
	last := sc.state.LastRoundStarted()
	if last.IsZero() {
		last = sc.started
	}
	LastRoundAgeSeconds.Set(now.Sub(last).Seconds())
}

// StartStateCollector creates a collector and runs it in the background
// until ctx is cancelled.
func StartStateCollector(ctx context.Context, state ChallengeState, interval time.Duration) *StateCollector {
	collector := NewStateCollector(ctx, state, interval)
	go collector.Start()
	return collector
}
