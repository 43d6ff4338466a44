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

package correlation

import (
	"context"
	"net/http"
	"testing"

	"github.com/google/uuid"
)

func TestCorrelationIDRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		id   string
	}{
		{name: "regular id", id: "req-1"},
		{name: "empty id", id: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := WithCorrelationID(context.Background(), tt.id)
			if got := GetCorrelationID(ctx); got != tt.id {
				t.Errorf("GetCorrelationID() = %q, want %q", got, tt.id)
			}
		})
	}
}

func TestGetCorrelationID_Missing(t *testing.T) {
	if got := GetCorrelationID(context.Background()); got != "" {
		t.Errorf("GetCorrelationID() = %q, want empty", got)
	}
}

func TestRoundIDRoundTrip(t *testing.T) {
	ctx := WithRoundID(context.Background(), "round-7")
	if got := GetRoundID(ctx); got != "round-7" {
		t.Errorf("GetRoundID() = %q, want round-7", got)
	}
	if got := GetCorrelationID(ctx); got != "" {
		t.Errorf("round id leaked into correlation id: %q", got)
	}
}

func TestFromHeaders(t *testing.T) {
	t.Run("prefers correlation header", func(t *testing.T) {
		h := http.Header{}
		h.Set(CorrelationIDHeader, "corr")
		h.Set(RequestIDHeader, "req")
		if got := FromHeaders(h.Get); got != "corr" {
			t.Errorf("FromHeaders() = %q, want corr", got)
		}
	})

	t.Run("falls back to request header", func(t *testing.T) {
		h := http.Header{}
		h.Set(RequestIDHeader, "req")
		if got := FromHeaders(h.Get); got != "req" {
			t.Errorf("FromHeaders() = %q, want req", got)
		}
	})

	t.Run("generates when absent", func(t *testing.T) {
		got := FromHeaders(http.Header{}.Get)
		if _, err := uuid.Parse(got); err != nil {
			t.Errorf("FromHeaders() returned invalid UUID %q: %v", got, err)
		}
	})
}

func TestNewID_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewID()
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
	}
}
