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

package challenge

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/jeremyhahn/go-sharechallenge/pkg/correlation"
	"github.com/jeremyhahn/go-sharechallenge/pkg/logging"
)

// DefaultRoundInterval is the time between automatic round starts.
const DefaultRoundInterval = 30 * time.Second

// RoundStarter starts a round. *Coordinator implements it.
type RoundStarter interface {
	StartNewRound() (RoundSummary, error)
}

var _ RoundStarter = (*Coordinator)(nil)

// RoundTimer starts a new round every interval, whether or not the previous
// round was answered. The first round starts one interval after Start.
type RoundTimer struct {
	starter  RoundStarter
	interval time.Duration
	logger   logging.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRoundTimer creates a timer driving starter. A non-positive interval
// selects DefaultRoundInterval.
func NewRoundTimer(starter RoundStarter, interval time.Duration, logger logging.Logger) *RoundTimer {
	if interval <= 0 {
		interval = DefaultRoundInterval
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &RoundTimer{
		starter:  starter,
		interval: interval,
		logger:   logger,
	}
}

// Start runs the timer in a goroutine until ctx is cancelled or Stop is
// called. Calling Start on a running timer is a no-op.
func (t *RoundTimer) Start(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cancel != nil {
		return
	}
	ctx, t.cancel = context.WithCancel(ctx)
	t.done = make(chan struct{})

	go t.run(ctx, t.done)
}

func (t *RoundTimer) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	t.logger.Info("Round timer started", logging.Duration("interval", t.interval))

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("Round timer stopped")
			return
		case <-ticker.C:
			summary, err := t.starter.StartNewRound()
			roundCtx := correlation.WithRoundID(ctx, strconv.FormatUint(summary.Round, 10))
			if err != nil {
				t.logger.Error("Failed to start round",
					logging.ContextFields(roundCtx, logging.Error(err))...)
				continue
			}
			t.logger.Info("Round started", logging.ContextFields(roundCtx,
				logging.Int("parts", summary.Parts),
				logging.Int("participants", summary.Participants),
				logging.Int("delivered", summary.Delivered))...)
		}
	}
}

// Stop halts the timer and waits for an in-flight round to finish.
func (t *RoundTimer) Stop() {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel, t.done = nil, nil
	t.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
