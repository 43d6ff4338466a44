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

// Package correlation carries request and round identifiers through contexts
// so that log lines from the REST API and the coordinator can be tied together.
package correlation

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const (
	// CorrelationIDKey is the context key for request correlation IDs
	CorrelationIDKey contextKey = "correlation-id"

	// RoundIDKey is the context key for the identifier of a challenge round
	RoundIDKey contextKey = "round-id"

	// RequestIDHeader is the HTTP header for request IDs
	RequestIDHeader = "X-Request-ID"

	// CorrelationIDHeader is the HTTP header for correlation IDs
	CorrelationIDHeader = "X-Correlation-ID"
)

// WithCorrelationID adds a correlation ID to the context.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, CorrelationIDKey, id)
}

// GetCorrelationID retrieves the correlation ID from context, or "".
func GetCorrelationID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(CorrelationIDKey).(string); ok {
		return id
	}
	return ""
}

// FromHeaders picks the first non-empty ID out of the correlation and
// request headers, generating a fresh one when neither is set.
func FromHeaders(get func(string) string) string {
	if id := get(CorrelationIDHeader); id != "" {
		return id
	}
	if id := get(RequestIDHeader); id != "" {
		return id
	}
	return NewID()
}

// WithRoundID tags the context with a round identifier.
func WithRoundID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, RoundIDKey, id)
}

// GetRoundID retrieves the round identifier from context, or "".
func GetRoundID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(RoundIDKey).(string); ok {
		return id
	}
	return ""
}

// NewID generates a new UUID v4.
func NewID() string {
	return uuid.New().String()
}
