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

package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jeremyhahn/go-sharechallenge/pkg/challenge"
	"github.com/jeremyhahn/go-sharechallenge/pkg/health"
	"github.com/jeremyhahn/go-sharechallenge/pkg/logging"
)

// DefaultMaxBodyBytes caps the submission request body.
const DefaultMaxBodyBytes int64 = 64 << 10

// HandlerContext holds dependencies for REST handlers.
type HandlerContext struct {
	// Submitter verifies decoded candidates
	Submitter challenge.Submitter
	// Rounds reports round progress (optional)
	Rounds RoundInfo
	// Version is the API version
	Version string
	// HealthChecker manages health check probes
	HealthChecker HealthChecker
	// MaxBodyBytes limits the submission body size
	MaxBodyBytes int64

	logger logging.Logger
}

// HealthChecker defines the interface for health checking.
type HealthChecker interface {
	Live(ctx context.Context) health.CheckResult
	Ready(ctx context.Context) []health.CheckResult
	Startup(ctx context.Context) health.CheckResult
}

// RoundInfo exposes read-only round state. *challenge.Coordinator
// implements it.
type RoundInfo interface {
	Round() uint64
	Registered() int
	Pending() bool
}

// RoundStatusResponse is the reply to GET /api/v1/round.
type RoundStatusResponse struct {
	Round      uint64 `json:"round"`
	Registered int    `json:"registered"`
	Pending    bool   `json:"pending"`
}

// NewHandlerContext creates a new handler context.
func NewHandlerContext(submitter challenge.Submitter, version string, log logging.Logger) *HandlerContext {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &HandlerContext{
		Submitter:    submitter,
		Version:      version,
		MaxBodyBytes: DefaultMaxBodyBytes,
		logger:       log,
	}
}

// SetHealthChecker sets the health checker for the handler context.
func (h *HandlerContext) SetHealthChecker(checker HealthChecker) {
	h.HealthChecker = checker
}

// HealthHandler handles GET /health requests.
func (h *HandlerContext) HealthHandler(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:  "healthy",
		Version: h.Version,
	}
	writeJSON(w, resp, http.StatusOK)
}

// submissionBody mirrors SubmissionRequest but detects a missing field.
type submissionBody struct {
	SecretKey *string `json:"secret_key"`
}

// SubmitHandler handles POST /secret requests.
//
// Malformed JSON, a missing secret_key, and oversized bodies are transport
// errors and never reach the coordinator. Every decoded request gets a 200
// with a SubmissionResponse, whatever the verification outcome.
func (h *HandlerContext) SubmitHandler(w http.ResponseWriter, r *http.Request) {
	limit := h.MaxBodyBytes
	if limit <= 0 {
		limit = DefaultMaxBodyBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	var body submissionBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			handleError(w, ErrPayloadTooLarge)
			return
		}
		writeErrorWithMessage(w, ErrInvalidRequest, "malformed JSON body", http.StatusBadRequest)
		return
	}
	if body.SecretKey == nil {
		writeErrorWithMessage(w, ErrInvalidRequest, "missing field: secret_key", http.StatusBadRequest)
		return
	}

	resp := challenge.Submit(h.Submitter, SubmissionRequest{SecretKey: *body.SecretKey})

	fields := []logging.Field{logging.Bool("verified", resp.SecretKeyVerified)}
	if resp.Message != nil {
		fields = append(fields, logging.String("reason", *resp.Message))
	}
	if slogAdapter, ok := h.logger.(*logging.SlogAdapter); ok {
		slogAdapter.InfoContext(r.Context(), "Submission processed", fields...)
	} else {
		h.logger.Info("Submission processed", fields...)
	}

	writeJSON(w, resp, http.StatusOK)
}

// RoundStatusHandler handles GET /api/v1/round requests.
func (h *HandlerContext) RoundStatusHandler(w http.ResponseWriter, r *http.Request) {
	if h.Rounds == nil {
		handleError(w, ErrNotReady)
		return
	}
	writeJSON(w, RoundStatusResponse{
		Round:      h.Rounds.Round(),
		Registered: h.Rounds.Registered(),
		Pending:    h.Rounds.Pending(),
	}, http.StatusOK)
}
