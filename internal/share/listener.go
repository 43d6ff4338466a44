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

// Package share runs the TCP listener that participants connect to in order
// to receive a share in the next round.
//
// The listener does no parsing. Each accepted connection is handed to the
// Registrar, which keeps it open until the next round writes one share and
// closes it.
package share

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/jeremyhahn/go-sharechallenge/pkg/logging"
	"github.com/jeremyhahn/go-sharechallenge/pkg/metrics"
	"github.com/jeremyhahn/go-sharechallenge/pkg/ratelimit"
)

// Pauses after repeated Accept errors, such as file descriptor exhaustion.
const (
	acceptBackoffInitial = 5 * time.Millisecond
	acceptBackoffMax     = time.Second
)

// newAcceptBackoff returns a backoff that never gives up.
func newAcceptBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = acceptBackoffInitial
	b.MaxInterval = acceptBackoffMax
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Registrar takes ownership of accepted connections. *challenge.Coordinator
// implements it.
type Registrar interface {
	AddPlayer(conn net.Conn) bool
}

// Config holds the share listener configuration.
type Config struct {
	// Addr is the host:port to listen on (default: ":8162")
	Addr string

	// Registrar receives every accepted connection
	Registrar Registrar

	// Limiter throttles new connections per peer IP (optional)
	Limiter *ratelimit.Limiter

	// Logger is the logging adapter (optional)
	Logger logging.Logger
}

// Listener accepts participant connections.
type Listener struct {
	addr      string
	registrar Registrar
	limiter   *ratelimit.Limiter
	logger    logging.Logger

	mu       sync.Mutex
	listener net.Listener
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewListener creates a share listener.
func NewListener(cfg *Config) (*Listener, error) {
	if cfg == nil || cfg.Registrar == nil {
		return nil, fmt.Errorf("registrar is required")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8162"
	}

	log := cfg.Logger
	if log == nil {
		log = logging.NewNopLogger()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Listener{
		addr:      cfg.Addr,
		registrar: cfg.Registrar,
		limiter:   cfg.Limiter,
		logger:    log.With(logging.String("component", "share")),
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Start binds the listening socket and accepts in the background. Bind
// errors are returned synchronously.
func (l *Listener) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.listener != nil {
		return nil
	}

	ln, err := net.Listen("tcp", l.addr)
	if err != nil {
		return fmt.Errorf("failed to bind share listener on %s: %w", l.addr, err)
	}
	l.listener = ln

	l.logger.Info("Share listener started", logging.String("addr", ln.Addr().String()))

	l.wg.Add(1)
	go l.acceptConnections(ln)
	return nil
}

// acceptConnections hands each connection to the registrar in accept order.
func (l *Listener) acceptConnections(ln net.Listener) {
	defer l.wg.Done()

	retry := newAcceptBackoff()
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-l.ctx.Done():
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			metrics.RecordError(metrics.OpAccept, "accept")
			wait := retry.NextBackOff()
			l.logger.Error("Error accepting connection",
				logging.Error(err), logging.Duration("retry_in", wait))
			select {
			case <-l.ctx.Done():
				return
			case <-time.After(wait):
			}
			continue
		}
		retry.Reset()

		l.handle(conn)
	}
}

func (l *Listener) handle(conn net.Conn) {
	if l.limiter != nil && !l.limiter.AllowConn(conn) {
		metrics.RecordRegistration(metrics.StatusThrottled, -1)
		l.logger.Debug("Throttled participant connection",
			logging.String("remote_addr", conn.RemoteAddr().String()))
		_ = conn.Close()
		return
	}

	l.registrar.AddPlayer(newTrackedConn(conn))
}

// Stop closes the listener and waits for the accept loop to exit. Registered
// connections stay with the registrar.
func (l *Listener) Stop() error {
	l.logger.Info("Stopping share listener")
	l.cancel()

	l.mu.Lock()
	ln := l.listener
	l.mu.Unlock()

	var err error
	if ln != nil {
		if cerr := ln.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			l.logger.Error("Failed to close listener", logging.Error(cerr))
			err = cerr
		}
	}

	l.wg.Wait()
	l.logger.Info("Share listener stopped")
	return err
}

// Addr returns the bound address, or nil before Start.
func (l *Listener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.listener == nil {
		return nil
	}
	return l.listener.Addr()
}

// trackedConn keeps the active connection gauge in step with the
// connection's lifetime, which ends when the coordinator closes it.
type trackedConn struct {
	net.Conn
	tracker *metrics.ConnectionTracker
	once    sync.Once
}

func newTrackedConn(conn net.Conn) *trackedConn {
	return &trackedConn{Conn: conn, tracker: metrics.NewConnectionTracker(metrics.ProtocolShare)}
}

func (c *trackedConn) Close() error {
	c.once.Do(c.tracker.Close)
	return c.Conn.Close()
}
