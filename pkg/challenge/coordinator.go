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

// Package challenge implements the round state machine of the secret-sharing
// challenge.
//
// Each round the Coordinator draws a random pad as long as the secret, splits
// it into XOR shares and writes one share to every registered participant.
// The first submission after the round starts consumes the pad. If it arrives
// within the time limit and matches the pad, the caller receives the secret
// XORed with the pad, which only a holder of the pad can decrypt.
package challenge

import (
	"bytes"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/jeremyhahn/go-sharechallenge/pkg/crypto/rand"
	"github.com/jeremyhahn/go-sharechallenge/pkg/crypto/secretsharing"
	"github.com/jeremyhahn/go-sharechallenge/pkg/logging"
	"github.com/jeremyhahn/go-sharechallenge/pkg/metrics"
)

const (
	// DefaultTimeLimit is the submission window measured from round start.
	DefaultTimeLimit = time.Second

	// DefaultMinParts is the fewest shares a round is ever split into.
	DefaultMinParts = 3
)

// Clock returns the current time.
type Clock func() time.Time

// RoundSummary describes a round that was just started.
type RoundSummary struct {
	Round        uint64
	Parts        int
	Participants int
	Delivered    int
}

type oneTimePad struct {
	value   []byte
	created time.Time
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l logging.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(clock Clock) Option {
	return func(c *Coordinator) { c.now = clock }
}

// WithRandom sets the entropy source for pads and shares.
func WithRandom(r io.Reader) Option {
	return func(c *Coordinator) { c.rng = r }
}

// WithTimeLimit sets the submission window.
func WithTimeLimit(d time.Duration) Option {
	return func(c *Coordinator) { c.timeLimit = d }
}

// WithMinParts sets the minimum number of shares per round.
func WithMinParts(n int) Option {
	return func(c *Coordinator) { c.minParts = n }
}

// WithShareWriteTimeout bounds each share write with a deadline. Zero
// disables the deadline.
func WithShareWriteTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.writeTimeout = d }
}

// Coordinator owns the secret, the pending pad and the participant
// registry. All exported methods are serialized by one mutex, held for the
// whole operation including share writes.
type Coordinator struct {
	mu sync.Mutex

	secret   []byte
	pending  *oneTimePad
	registry *registry
	round    uint64
	started  time.Time

	rng          io.Reader
	splitter     *secretsharing.Splitter
	now          Clock
	timeLimit    time.Duration
	minParts     int
	writeTimeout time.Duration
	logger       logging.Logger
}

// NewCoordinator creates a Coordinator protecting secret.
func NewCoordinator(secret string, opts ...Option) (*Coordinator, error) {
	c := &Coordinator{
		secret:    []byte(secret),
		registry:  newRegistry(),
		now:       time.Now,
		timeLimit: DefaultTimeLimit,
		minParts:  DefaultMinParts,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.timeLimit <= 0 {
		return nil, fmt.Errorf("%w: time limit must be positive, got %s", ErrInvalidConfig, c.timeLimit)
	}
	if c.minParts < 1 {
		return nil, fmt.Errorf("%w: minimum parts must be at least 1, got %d", ErrInvalidConfig, c.minParts)
	}
	if c.writeTimeout < 0 {
		return nil, fmt.Errorf("%w: share write timeout must not be negative", ErrInvalidConfig)
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.logger == nil {
		c.logger = logging.NewNopLogger()
	}
	if c.rng == nil {
		c.rng = rand.NewSoftwareResolver()
	}
	c.splitter = secretsharing.NewSplitter(c.rng)

	return c, nil
}

// StartNewRound expires any pending pad, generates a new one and delivers
// its shares to every registered participant. Delivery failures are logged
// and do not abort the round. An error is returned only when no pad could
// be generated, in which case registered participants wait for the next
// round.
func (c *Coordinator) StartNewRound() (RoundSummary, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pending != nil {
		c.logger.Info("Round expired without submission", logging.Uint64("round", c.round))
		metrics.RecordPadExpired()
		c.pending = nil
	}

	c.round++
	roundStart := c.now()
	log := c.logger.With(logging.Uint64("round", c.round))

	pad := make([]byte, len(c.secret))
	if _, err := io.ReadFull(c.rng, pad); err != nil {
		metrics.RecordError(metrics.OpStartRound, "random")
		log.Error("Failed to generate round pad", logging.Error(err))
		return RoundSummary{Round: c.round}, fmt.Errorf("failed to generate pad: %w", err)
	}

	numParts := max(c.minParts, c.registry.len())
	shares, err := c.splitter.Split(pad, numParts)
	if err != nil {
		metrics.RecordError(metrics.OpStartRound, "split")
		log.Error("Failed to split round pad", logging.Error(err))
		return RoundSummary{Round: c.round}, fmt.Errorf("failed to split pad: %w", err)
	}

	participants := c.registry.drain()
	log.Info("Sending shares",
		logging.Int("parts", numParts),
		logging.Int("participants", len(participants)))

	delivered := 0
	for i, p := range participants {
		if c.deliver(log, p, shares[i]) {
			delivered++
		}
	}

	// Share delivery time counts against the submission window.
	c.started = roundStart
	c.pending = &oneTimePad{value: pad, created: roundStart}
	metrics.RecordRound(c.round, numParts, delivered, len(participants)-delivered)

	return RoundSummary{
		Round:        c.round,
		Parts:        numParts,
		Participants: len(participants),
		Delivered:    delivered,
	}, nil
}

// deliver writes one share to p and closes the connection.
func (c *Coordinator) deliver(log logging.Logger, p participant, share []byte) bool {
	defer func() {
		if err := p.conn.Close(); err != nil {
			log.Debug("Failed to close participant connection",
				logging.String("addr", p.addr), logging.Error(err))
		}
	}()

	if c.writeTimeout > 0 {
		if err := p.conn.SetWriteDeadline(c.now().Add(c.writeTimeout)); err != nil {
			log.Debug("Failed to set write deadline",
				logging.String("addr", p.addr), logging.Error(err))
		}
	}

	if _, err := p.conn.Write(share); err != nil {
		log.Debug("Failed to deliver share",
			logging.String("addr", p.addr), logging.Error(err))
		return false
	}
	return true
}

// SubmitSecretKey checks candidate against the pending pad. The pad is
// consumed whatever the outcome, so each round accepts one attempt.
// On success the secret XORed with the pad is returned, base64 encoded.
func (c *Coordinator) SubmitSecretKey(candidate []byte) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	pad := c.pending
	c.pending = nil
	if pad == nil {
		metrics.RecordSubmission(metrics.ResultLate, -1)
		c.logger.Debug("Submission without pending pad", logging.Uint64("round", c.round))
		return "", ErrLateSubmission
	}

	log := c.logger.With(logging.Uint64("round", c.round))
	elapsed := c.now().Sub(pad.created)

	if elapsed >= c.timeLimit {
		metrics.RecordSubmission(metrics.ResultLate, elapsed)
		log.Info("Round failed: late submission", logging.Duration("elapsed", elapsed))
		return "", ErrLateSubmission
	}

	if len(candidate) != len(pad.value) || subtle.ConstantTimeCompare(candidate, pad.value) != 1 {
		metrics.RecordSubmission(metrics.ResultInvalidKey, elapsed)
		log.Info("Round failed: invalid secret key", logging.Duration("elapsed", elapsed))
		return "", ErrInvalidSecretKey
	}

	encrypted := bytes.Clone(c.secret)
	secretsharing.XORInPlace(encrypted, pad.value)

	metrics.RecordSubmission(metrics.ResultSuccess, elapsed)
	log.Info("Round success", logging.Duration("elapsed", elapsed))

	return base64.StdEncoding.EncodeToString(encrypted), nil
}

// AddPlayer registers conn for the next round. Connections whose peer
// address cannot be resolved, or whose IP is already registered, are closed
// and false is returned.
func (c *Coordinator) AddPlayer(conn net.Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	addr, err := remoteIP(conn)
	if err != nil {
		metrics.RecordRegistration(metrics.StatusUnresolved, c.registry.len())
		c.logger.Debug("Ignoring participant with unresolvable address", logging.Error(err))
		_ = conn.Close()
		return false
	}

	if !c.registry.add(addr, conn) {
		metrics.RecordRegistration(metrics.StatusDuplicate, c.registry.len())
		c.logger.Debug("Rejecting duplicate participant", logging.String("addr", addr))
		_ = conn.Close()
		return false
	}

	metrics.RecordRegistration(metrics.StatusAccepted, c.registry.len())
	c.logger.Debug("Participant registered",
		logging.String("addr", addr),
		logging.Int("registered", c.registry.len()))
	return true
}

// Round returns the number of the most recently started round.
func (c *Coordinator) Round() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.round
}

// LastRoundStarted returns when the most recent round issued its pad, or
// the zero time if none has.
func (c *Coordinator) LastRoundStarted() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started
}

// Pending reports whether a pad is waiting for a submission.
func (c *Coordinator) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending != nil
}

// Registered returns the number of participants waiting for the next round.
func (c *Coordinator) Registered() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.registry.len()
}
