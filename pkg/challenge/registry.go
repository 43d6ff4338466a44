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
	"errors"
	"fmt"
	"net"
)

var errNoRemoteAddr = errors.New("connection has no remote address")

type participant struct {
	addr string
	conn net.Conn
}

// registry holds at most one connection per remote IP, in registration
// order. It has no lock of its own; the Coordinator guards it.
type registry struct {
	entries []participant
	index   map[string]struct{}
}

func newRegistry() *registry {
	return &registry{index: make(map[string]struct{})}
}

// add registers conn under addr unless addr is already present.
func (r *registry) add(addr string, conn net.Conn) bool {
	if _, exists := r.index[addr]; exists {
		return false
	}
	r.index[addr] = struct{}{}
	r.entries = append(r.entries, participant{addr: addr, conn: conn})
	return true
}

// drain returns every participant in registration order and empties the
// registry.
func (r *registry) drain() []participant {
	out := r.entries
	r.entries = nil
	clear(r.index)
	return out
}

func (r *registry) len() int {
	return len(r.entries)
}

// remoteIP returns the peer IP of conn with the port stripped.
func remoteIP(conn net.Conn) (string, error) {
	addr := conn.RemoteAddr()
	if addr == nil {
		return "", errNoRemoteAddr
	}

	if tcp, ok := addr.(*net.TCPAddr); ok {
		if tcp.IP == nil {
			return "", errNoRemoteAddr
		}
		return tcp.IP.String(), nil
	}

	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return "", fmt.Errorf("failed to parse remote address %q: %w", addr.String(), err)
	}
	if host == "" {
		return "", errNoRemoteAddr
	}
	return host, nil
}
