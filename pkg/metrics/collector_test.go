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
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubState struct {
	registered int
	pending    bool
	last       time.Time
}

func (s stubState) Registered() int             { return s.registered }
func (s stubState) Pending() bool               { return s.pending }
func (s stubState) LastRoundStarted() time.Time { return s.last }

func TestStateCollector_Collect(t *testing.T) {
	Enable()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		state       stubState
		wantPending float64
		wantAge     float64
	}{
		{
			name:        "pad waiting",
			state:       stubState{registered: 4, pending: true, last: base.Add(-500 * time.Millisecond)},
			wantPending: 1,
			wantAge:     0.5,
		},
		{
			name:        "pad consumed",
			state:       stubState{registered: 0, last: base.Add(-12 * time.Second)},
			wantPending: 0,
			wantAge:     12,
		},
		{
			name:        "no round yet",
			state:       stubState{registered: 2},
			wantPending: 0,
			wantAge:     30,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc := NewStateCollector(context.Background(), tt.state, time.Second)
			defer sc.Stop()
			sc.started = base.Add(-30 * time.Second)
			sc.now = func() time.Time { return base }

			sc.Collect()

			assert.Equal(t, float64(tt.state.registered), testutil.ToFloat64(RegisteredParticipants))
			assert.Equal(t, tt.wantPending, testutil.ToFloat64(PadPending))
			assert.InDelta(t, tt.wantAge, testutil.ToFloat64(LastRoundAgeSeconds), 1e-9)
			assert.InDelta(t, 30, testutil.ToFloat64(ServerUptime), 1e-9)
			assert.GreaterOrEqual(t, testutil.ToFloat64(Goroutines), float64(1))
		})
	}
}

func TestStateCollector_NilState(t *testing.T) {
	Enable()
	PadPending.Set(7)

	sc := NewStateCollector(context.Background(), nil, time.Second)
	defer sc.Stop()
	sc.Collect()

	assert.Equal(t, float64(7), testutil.ToFloat64(PadPending))
	assert.GreaterOrEqual(t, testutil.ToFloat64(Goroutines), float64(1))
}

func TestStateCollector_Disabled(t *testing.T) {
	Disable()
	defer Enable()

	Goroutines.Set(0)
	sc := NewStateCollector(context.Background(), stubState{registered: 3}, time.Second)
	defer sc.Stop()
	sc.Collect()

	assert.Zero(t, testutil.ToFloat64(Goroutines))
}

func TestStateCollector_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sc := NewStateCollector(ctx, stubState{}, 10*time.Millisecond)

	done := make(chan struct{})
	go func() {
		sc.Start()
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("collector did not stop after context cancellation")
	}
}

func TestStartStateCollector(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NotNil(t, StartStateCollector(ctx, stubState{}, 50*time.Millisecond))
}
