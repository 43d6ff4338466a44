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

package health

import (
	"context"
	"fmt"
	"net"
	"time"
)

// RoundSource exposes the coordinator state the readiness checks report on.
type RoundSource interface {
	Round() uint64
	Registered() int
}

// RoundCheck reports healthy once a round has started within maxAge of the
// check. Before the first round it reports degraded, since the server is
// up but has not yet issued a pad. lastStarted returns the time the most
// recent round started, or the zero time.
func RoundCheck(src RoundSource, lastStarted func() time.Time, maxAge time.Duration) CheckFunc {
	return func(ctx context.Context) CheckResult {
		round := src.Round()
		msg := fmt.Sprintf("round %d, %d participants registered", round, src.Registered())

		started := lastStarted()
		if round == 0 || started.IsZero() {
			return CheckResult{Name: "rounds", Status: StatusDegraded, Message: "no round started yet"}
		}
		if age := time.Since(started); maxAge > 0 && age > maxAge {
			return CheckResult{
				Name:    "rounds",
				Status:  StatusUnhealthy,
				Message: msg,
				Error:   fmt.Sprintf("last round started %s ago", age.Round(time.Second)),
			}
		}
		return CheckResult{Name: "rounds", Status: StatusHealthy, Message: msg}
	}
}

// EntropyCheck draws a few bytes from the random source.
func EntropyCheck(randFn func(int) ([]byte, error)) CheckFunc {
	return func(ctx context.Context) CheckResult {
		if _, err := randFn(16); err != nil {
			return CheckResult{Name: "entropy", Status: StatusUnhealthy, Error: err.Error()}
		}
		return CheckResult{Name: "entropy", Status: StatusHealthy}
	}
}

// ListeningCheck reports healthy when addr returns a bound address. It does
// not dial the listener: a probe connection to the share port would be
// registered as a participant.
func ListeningCheck(name string, addr func() net.Addr) CheckFunc {
	return func(ctx context.Context) CheckResult {
		if a := addr(); a != nil {
			return CheckResult{Name: name, Status: StatusHealthy, Message: a.String()}
		}
		return CheckResult{Name: name, Status: StatusUnhealthy, Error: "listener not bound"}
	}
}
