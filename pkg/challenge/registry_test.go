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
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_AddAndDrainPreservesOrder(t *testing.T) {
	r := newRegistry()
	addrs := []string{"10.0.0.3", "10.0.0.1", "10.0.0.2"}
	for _, a := range addrs {
		require.True(t, r.add(a, newFakeConn(a, 1)))
	}
	assert.Equal(t, 3, r.len())

	drained := r.drain()
	require.Len(t, drained, 3)
	for i, p := range drained {
		assert.Equal(t, addrs[i], p.addr)
	}
	assert.Zero(t, r.len())
	assert.Empty(t, r.drain())
}

func TestRegistry_RejectsDuplicates(t *testing.T) {
	r := newRegistry()
	assert.True(t, r.add("10.0.0.1", newFakeConn("10.0.0.1", 1)))
	assert.False(t, r.add("10.0.0.1", newFakeConn("10.0.0.1", 2)))
	assert.Equal(t, 1, r.len())

	r.drain()
	assert.True(t, r.add("10.0.0.1", newFakeConn("10.0.0.1", 3)))
}

type stringAddr string

func (a stringAddr) Network() string { return "custom" }
func (a stringAddr) String() string  { return string(a) }

type addrConn struct {
	fakeConn
	addr net.Addr
}

func (c *addrConn) RemoteAddr() net.Addr { return c.addr }

func TestRemoteIP(t *testing.T) {
	tests := []struct {
		name    string
		addr    net.Addr
		want    string
		wantErr bool
	}{
		{name: "tcp ipv4", addr: &net.TCPAddr{IP: net.ParseIP("192.0.2.10"), Port: 4242}, want: "192.0.2.10"},
		{name: "tcp ipv6", addr: &net.TCPAddr{IP: net.ParseIP("2001:db8::2"), Port: 4242}, want: "2001:db8::2"},
		{name: "tcp without ip", addr: &net.TCPAddr{Port: 1}, wantErr: true},
		{name: "host port string", addr: stringAddr("198.51.100.4:9000"), want: "198.51.100.4"},
		{name: "no port", addr: stringAddr("pipe"), wantErr: true},
		{name: "empty host", addr: stringAddr(":9000"), wantErr: true},
		{name: "nil addr", addr: nil, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := &addrConn{addr: tt.addr}
			got, err := remoteIP(conn)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRemoteIP_RealConnection(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	client, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer client.Close()

	select {
	case conn := <-accepted:
		defer conn.Close()
		ip, err := remoteIP(conn)
		require.NoError(t, err)
		assert.Equal(t, "127.0.0.1", ip)
	case <-time.After(2 * time.Second):
		t.Fatal("accept timed out")
	}
}
