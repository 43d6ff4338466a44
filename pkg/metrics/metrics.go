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

// Package metrics provides Prometheus instrumentation for the challenge
// server: round lifecycle, share delivery, participant registration,
// submission outcomes, HTTP traffic and process resources.
package metrics

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Namespace is the Prometheus namespace for all challenge metrics
	Namespace = "sharechallenge"

	// Label names
	LabelOperation  = "operation"
	LabelStatus     = "status"
	LabelResult     = "result"
	LabelErrorType  = "error_type"
	LabelProtocol   = "protocol"
	LabelMethod     = "method"
	LabelStatusCode = "status_code"

	// Share delivery status values
	StatusDelivered = "delivered"
	StatusFailed    = "failed"

	// Registration status values
	StatusAccepted   = "accepted"
	StatusDuplicate  = "duplicate"
	StatusUnresolved = "unresolved"
	StatusThrottled  = "throttled"

	// Submission results
	ResultSuccess     = "success"
	ResultInvalidKey  = "invalid_key"
	ResultLate        = "late"
	ResultBadEncoding = "bad_encoding"

	// Operation names
	OpStartRound = "start_round"
	OpSubmit     = "submit"
	OpRegister   = "register"
	OpAccept     = "accept"
	OpHTTP       = "http"
)

var (
	// RoundsTotal counts rounds started.
	RoundsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "rounds_total",
			Help:      "Total number of challenge rounds started",
		},
	)

	// CurrentRound is the number of the most recently started round.
	CurrentRound = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "current_round",
			Help:      "Number of the most recently started round",
		},
	)

	// RoundParts records how many shares each round was split into.
	RoundParts = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "round_parts",
			Help:      "Number of shares generated per round",
			Buckets:   []float64{3, 4, 5, 8, 16, 32, 64, 128},
		},
	)

	// SharesTotal counts share writes by delivery status.
	SharesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "shares_total",
			Help:      "Total number of shares written to participants by status",
		},
		[]string{LabelStatus},
	)

	// PadsExpiredTotal counts pads replaced by a new round before anyone
	// submitted against them.
	PadsExpiredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "pads_expired_total",
			Help:      "Total number of round pads that expired without a submission",
		},
	)

	// SubmissionsTotal counts submissions by result.
	SubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "submissions_total",
			Help:      "Total number of secret key submissions by result",
		},
		[]string{LabelResult},
	)

	// SubmissionLatency tracks the time between pad creation and the
	// submission that consumed it.
	SubmissionLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "submission_latency_seconds",
			Help:      "Time from round start to the submission that consumed the pad",
			Buckets:   []float64{.01, .05, .1, .25, .5, .75, 1, 2.5, 5, 15, 30},
		},
	)

	// RegistrationsTotal counts participant registration attempts by status.
	RegistrationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "registrations_total",
			Help:      "Total number of participant registration attempts by status",
		},
		[]string{LabelStatus},
	)

	// RegisteredParticipants is the number of participants waiting for the
	// next round.
	RegisteredParticipants = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "registered_participants",
			Help:      "Number of participants registered for the next round",
		},
	)

	// ErrorsTotal tracks errors by operation and error type.
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "errors_total",
			Help:      "Total number of errors by operation and error type",
		},
		[]string{LabelOperation, LabelErrorType},
	)

	// ActiveConnections tracks the number of active connections by protocol.
	ActiveConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "active_connections",
			Help:      "Number of active connections by protocol",
		},
		[]string{LabelProtocol},
	)

	// HTTPRequestsTotal tracks the total number of HTTP requests by method and status code.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method and status code",
		},
		[]string{LabelMethod, LabelStatusCode},
	)

	// HTTPRequestDuration tracks the duration of HTTP requests in seconds.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{LabelMethod},
	)

	// Goroutines tracks the current number of goroutines.
	// Updated periodically by the resource collector.
	Goroutines = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "goroutines",
			Help:      "Current number of goroutines",
		},
	)

	// PadPending is 1 while a round's pad is waiting for a submission.
	// Sampled by the state collector.
	PadPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "pad_pending",
			Help:      "Whether a round pad is waiting for a submission (0 or 1)",
		},
	)

	// LastRoundAgeSeconds is the time since the most recent round started.
	LastRoundAgeSeconds = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "last_round_age_seconds",
			Help:      "Seconds since the most recent round started",
		},
	)

	// ServerUptime tracks the server uptime in seconds since startup.
	ServerUptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "server_uptime_seconds",
			Help:      "Server uptime in seconds since startup",
		},
	)

	enabled atomic.Bool
)

func init() {
	enabled.Store(true)
}

// RecordRound records a round start with its share count and delivery
// outcome.
//
// Example:
//
//	metrics.RecordRound(round, parts, delivered, failed)
func RecordRound(round uint64, parts, delivered, failed int) {
	if !enabled.Load() {
		return
	}
	RoundsTotal.Inc()
	CurrentRound.Set(float64(round))
	RoundParts.Observe(float64(parts))
	if delivered > 0 {
		SharesTotal.WithLabelValues(StatusDelivered).Add(float64(delivered))
	}
	if failed > 0 {
		SharesTotal.WithLabelValues(StatusFailed).Add(float64(failed))
	}
	RegisteredParticipants.Set(0)
}

// RecordPadExpired records a pad that no submission consumed.
func RecordPadExpired() {
	if !enabled.Load() {
		return
	}
	PadsExpiredTotal.Inc()
}

// RecordSubmission records a submission result. elapsed is the pad age at
// the time of submission; pass a negative duration when no pad was pending.
func RecordSubmission(result string, elapsed time.Duration) {
	if !enabled.Load() {
		return
	}
	SubmissionsTotal.WithLabelValues(result).Inc()
	if elapsed >= 0 {
		SubmissionLatency.Observe(elapsed.Seconds())
	}
}

// RecordRegistration records a registration attempt and the resulting
// registry size. A negative size leaves the gauge untouched.
func RecordRegistration(status string, registered int) {
	if !enabled.Load() {
		return
	}
	RegistrationsTotal.WithLabelValues(status).Inc()
	if registered >= 0 {
		RegisteredParticipants.Set(float64(registered))
	}
}

// RecordError records an error event with context about where it occurred.
//
// Example:
//
//	if err := conn.Close(); err != nil {
//	    RecordError(OpAccept, "close")
//	}
func RecordError(operation, errorType string) {
	if !enabled.Load() {
		return
	}
	ErrorsTotal.WithLabelValues(operation, errorType).Inc()
}

// RecordHTTPRequest records an HTTP request with its duration and status.
func RecordHTTPRequest(method, statusCode string, duration float64) {
	if !enabled.Load() {
		return
	}
	HTTPRequestsTotal.WithLabelValues(method, statusCode).Inc()
	HTTPRequestDuration.WithLabelValues(method).Observe(duration)
}

// IncrementActiveConnections increments the active connection count for a protocol.
func IncrementActiveConnections(protocol string) {
	if !enabled.Load() {
		return
	}
	ActiveConnections.WithLabelValues(protocol).Inc()
}

// DecrementActiveConnections decrements the active connection count for a protocol.
func DecrementActiveConnections(protocol string) {
	if !enabled.Load() {
		return
	}
	ActiveConnections.WithLabelValues(protocol).Dec()
}

// Enable enables metrics collection.
func Enable() {
	enabled.Store(true)
}

// Disable disables metrics collection.
// Useful for testing or when metrics are not desired.
func Disable() {
	enabled.Store(false)
}

// IsEnabled returns whether metrics collection is currently enabled.
func IsEnabled() bool {
	return enabled.Load()
}
