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
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/jeremyhahn/go-sharechallenge/pkg/crypto/secretsharing"
	"github.com/jeremyhahn/go-sharechallenge/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCoordinator(t *testing.T, secret string, opts ...Option) (*Coordinator, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	c, err := NewCoordinator(secret, append([]Option{WithClock(clock.Now)}, opts...)...)
	require.NoError(t, err)
	return c, clock
}

func TestNewCoordinator_InvalidOptions(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
	}{
		{name: "zero time limit", opts: []Option{WithTimeLimit(0)}},
		{name: "negative time limit", opts: []Option{WithTimeLimit(-time.Second)}},
		{name: "zero min parts", opts: []Option{WithMinParts(0)}},
		{name: "negative write timeout", opts: []Option{WithShareWriteTimeout(-time.Second)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCoordinator("secret", tt.opts...)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestNewCoordinator_Defaults(t *testing.T) {
	c, err := NewCoordinator("secret")
	require.NoError(t, err)
	assert.Equal(t, DefaultTimeLimit, c.timeLimit)
	assert.Equal(t, DefaultMinParts, c.minParts)
	assert.Zero(t, c.Round())
	assert.False(t, c.Pending())
	assert.Zero(t, c.Registered())
}

func TestStartNewRound_ShareCounts(t *testing.T) {
	tests := []struct {
		participants int
		wantParts    int
	}{
		{participants: 0, wantParts: 3},
		{participants: 1, wantParts: 3},
		{participants: 2, wantParts: 3},
		{participants: 5, wantParts: 5},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d participants", tt.participants), func(t *testing.T) {
			c, _ := newTestCoordinator(t, "hello")

			conns := make([]*fakeConn, tt.participants)
			for i := range conns {
				conns[i] = newFakeConn(fmt.Sprintf("10.0.0.%d", i+1), 40000)
				require.True(t, c.AddPlayer(conns[i]))
			}

			summary, err := c.StartNewRound()
			require.NoError(t, err)

			assert.Equal(t, uint64(1), summary.Round)
			assert.Equal(t, tt.wantParts, summary.Parts)
			assert.Equal(t, tt.participants, summary.Participants)
			assert.Equal(t, tt.participants, summary.Delivered)
			assert.Zero(t, c.Registered())
			assert.True(t, c.Pending())

			for i, conn := range conns {
				assert.Len(t, conn.Bytes(), len("hello"), "participant %d", i)
				assert.True(t, conn.Closed(), "participant %d", i)
			}
		})
	}
}

func TestStartNewRound_SharesReconstructPad(t *testing.T) {
	c, _ := newTestCoordinator(t, "a secret worth protecting")

	conns := []*fakeConn{
		newFakeConn("192.0.2.1", 1000),
		newFakeConn("192.0.2.2", 1000),
		newFakeConn("192.0.2.3", 1000),
		newFakeConn("2001:db8::1", 1000),
	}
	for _, conn := range conns {
		require.True(t, c.AddPlayer(conn))
	}

	summary, err := c.StartNewRound()
	require.NoError(t, err)
	require.Equal(t, 4, summary.Parts)

	shares := make([][]byte, len(conns))
	for i, conn := range conns {
		shares[i] = conn.Bytes()
	}
	pad, err := secretsharing.Combine(shares)
	require.NoError(t, err)
	assert.Equal(t, pendingPad(c), pad)

	encrypted, err := c.SubmitSecretKey(pad)
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(encrypted)
	require.NoError(t, err)
	secretsharing.XORInPlace(raw, pad)
	assert.Equal(t, "a secret worth protecting", string(raw))
}

func TestScenario_HelloWithoutParticipants(t *testing.T) {
	c, clock := newTestCoordinator(t, "hello")

	summary, err := c.StartNewRound()
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Parts)
	assert.Zero(t, summary.Delivered)

	pad := pendingPad(c)
	require.Len(t, pad, 5)

	clock.Advance(500 * time.Millisecond)
	resp := Submit(c, SubmissionRequest{SecretKey: base64.StdEncoding.EncodeToString(pad)})

	require.True(t, resp.SecretKeyVerified)
	require.NotNil(t, resp.EncryptedSecret)
	assert.Nil(t, resp.Message)
	assert.NotEmpty(t, *resp.EncryptedSecret)

	raw, err := base64.StdEncoding.DecodeString(*resp.EncryptedSecret)
	require.NoError(t, err)
	secretsharing.XORInPlace(raw, pad)
	assert.Equal(t, "hello", string(raw))
}

func TestSubmitSecretKey_ExactlyOncePerRound(t *testing.T) {
	c, _ := newTestCoordinator(t, "hello")
	_, err := c.StartNewRound()
	require.NoError(t, err)
	pad := pendingPad(c)

	_, err = c.SubmitSecretKey(pad)
	require.NoError(t, err)
	assert.False(t, c.Pending())

	_, err = c.SubmitSecretKey(pad)
	assert.ErrorIs(t, err, ErrLateSubmission)
}

func TestSubmitSecretKey_WrongKeyConsumesPad(t *testing.T) {
	c, _ := newTestCoordinator(t, "hello")
	_, err := c.StartNewRound()
	require.NoError(t, err)
	pad := pendingPad(c)

	wrong := bytes.Clone(pad)
	wrong[0] ^= 0xff
	_, err = c.SubmitSecretKey(wrong)
	assert.ErrorIs(t, err, ErrInvalidSecretKey)

	_, err = c.SubmitSecretKey(pad)
	assert.ErrorIs(t, err, ErrLateSubmission)
}

func TestSubmitSecretKey_WrongLength(t *testing.T) {
	c, _ := newTestCoordinator(t, "hello")
	_, err := c.StartNewRound()
	require.NoError(t, err)
	pad := pendingPad(c)

	_, err = c.SubmitSecretKey(append(pad, 0))
	assert.ErrorIs(t, err, ErrInvalidSecretKey)
}

func TestSubmitSecretKey_TimeLimit(t *testing.T) {
	tests := []struct {
		name    string
		elapsed time.Duration
		wantErr error
	}{
		{name: "immediately", elapsed: 0},
		{name: "just inside window", elapsed: 999 * time.Millisecond},
		{name: "exactly at limit", elapsed: time.Second, wantErr: ErrLateSubmission},
		{name: "well after limit", elapsed: 5 * time.Second, wantErr: ErrLateSubmission},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, clock := newTestCoordinator(t, "hello")
			_, err := c.StartNewRound()
			require.NoError(t, err)
			pad := pendingPad(c)

			clock.Advance(tt.elapsed)
			_, err = c.SubmitSecretKey(pad)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.False(t, c.Pending())
		})
	}
}

func TestSubmitSecretKey_CustomTimeLimit(t *testing.T) {
	c, clock := newTestCoordinator(t, "hello", WithTimeLimit(3*time.Second))
	_, err := c.StartNewRound()
	require.NoError(t, err)

	clock.Advance(2 * time.Second)
	_, err = c.SubmitSecretKey(pendingPad(c))
	assert.NoError(t, err)
}

func TestSubmitSecretKey_NoRound(t *testing.T) {
	c, _ := newTestCoordinator(t, "hello")
	_, err := c.SubmitSecretKey([]byte("hello"))
	assert.ErrorIs(t, err, ErrLateSubmission)
}

func TestSubmitSecretKey_EmptySecret(t *testing.T) {
	c, _ := newTestCoordinator(t, "")
	_, err := c.StartNewRound()
	require.NoError(t, err)

	encrypted, err := c.SubmitSecretKey([]byte{})
	require.NoError(t, err)
	assert.Empty(t, encrypted)
}

func TestSubmitSecretKey_ConcurrentSingleWinner(t *testing.T) {
	c, _ := newTestCoordinator(t, "hello")
	_, err := c.StartNewRound()
	require.NoError(t, err)
	pad := pendingPad(c)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.SubmitSecretKey(pad); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
}

func TestStartNewRound_ExpiresPendingPad(t *testing.T) {
	metrics.Enable()
	c, _ := newTestCoordinator(t, "hello")

	_, err := c.StartNewRound()
	require.NoError(t, err)
	first := pendingPad(c)

	before := testutil.ToFloat64(metrics.PadsExpiredTotal)
	summary, err := c.StartNewRound()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), summary.Round)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.PadsExpiredTotal))

	second := pendingPad(c)
	if bytes.Equal(first, second) {
		t.Skip("pads collided")
	}
	_, err = c.SubmitSecretKey(first)
	assert.ErrorIs(t, err, ErrInvalidSecretKey)
}

func TestStartNewRound_DeliveryFailureDoesNotAbort(t *testing.T) {
	c, _ := newTestCoordinator(t, "hello")

	broken := newFakeConn("10.1.0.1", 1)
	broken.writeErr = errors.New("connection reset by peer")
	healthy := newFakeConn("10.1.0.2", 1)

	require.True(t, c.AddPlayer(broken))
	require.True(t, c.AddPlayer(healthy))

	summary, err := c.StartNewRound()
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Participants)
	assert.Equal(t, 1, summary.Delivered)
	assert.Len(t, healthy.Bytes(), 5)
	assert.True(t, broken.Closed())
	assert.True(t, c.Pending())
}

func TestStartNewRound_WriteDeadline(t *testing.T) {
	c, clock := newTestCoordinator(t, "hello", WithShareWriteTimeout(250*time.Millisecond))
	conn := newFakeConn("10.2.0.1", 1)
	require.True(t, c.AddPlayer(conn))

	_, err := c.StartNewRound()
	require.NoError(t, err)
	assert.Equal(t, clock.Now().Add(250*time.Millisecond), conn.deadline)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, io.ErrUnexpectedEOF }

func TestStartNewRound_EntropyFailure(t *testing.T) {
	c, _ := newTestCoordinator(t, "hello", WithRandom(failingReader{}))
	conn := newFakeConn("10.3.0.1", 1)
	require.True(t, c.AddPlayer(conn))

	summary, err := c.StartNewRound()
	require.Error(t, err)
	assert.Equal(t, uint64(1), summary.Round)
	assert.False(t, c.Pending())
	assert.Equal(t, 1, c.Registered())
	assert.False(t, conn.Closed())
}

func TestAddPlayer_DuplicateAddress(t *testing.T) {
	c, _ := newTestCoordinator(t, "hello")

	first := newFakeConn("203.0.113.7", 50000)
	second := newFakeConn("203.0.113.7", 50001)

	assert.True(t, c.AddPlayer(first))
	assert.False(t, c.AddPlayer(second))

	assert.False(t, first.Closed())
	assert.True(t, second.Closed())
	assert.Equal(t, 1, c.Registered())

	_, err := c.StartNewRound()
	require.NoError(t, err)
	assert.Len(t, first.Bytes(), 5)
	assert.Empty(t, second.Bytes())
}

func TestAddPlayer_ReRegisterAfterRound(t *testing.T) {
	c, _ := newTestCoordinator(t, "hello")

	require.True(t, c.AddPlayer(newFakeConn("203.0.113.8", 1)))
	_, err := c.StartNewRound()
	require.NoError(t, err)

	assert.True(t, c.AddPlayer(newFakeConn("203.0.113.8", 2)))
}

func TestAddPlayer_UnresolvableAddress(t *testing.T) {
	c, _ := newTestCoordinator(t, "hello")

	server, client := net.Pipe()
	defer client.Close()

	assert.False(t, c.AddPlayer(server))
	assert.Zero(t, c.Registered())

	_, err := server.Write([]byte{1})
	assert.ErrorIs(t, err, io.ErrClosedPipe)
}

func TestAddPlayer_DuringActiveRound(t *testing.T) {
	c, _ := newTestCoordinator(t, "hello")
	_, err := c.StartNewRound()
	require.NoError(t, err)

	conn := newFakeConn("198.51.100.1", 1)
	require.True(t, c.AddPlayer(conn))
	assert.Empty(t, conn.Bytes())
	assert.True(t, c.Pending())

	_, err = c.StartNewRound()
	require.NoError(t, err)
	assert.Len(t, conn.Bytes(), 5)
}

func TestLastRoundStarted(t *testing.T) {
	c, clock := newTestCoordinator(t, "hello")
	assert.True(t, c.LastRoundStarted().IsZero())

	clock.Advance(time.Minute)
	_, err := c.StartNewRound()
	require.NoError(t, err)
	assert.Equal(t, clock.Now(), c.LastRoundStarted())
}

func TestSubmitSecretKey_WindowIncludesShareDelivery(t *testing.T) {
	c, clock := newTestCoordinator(t, "hello")
	roundStart := clock.Now()

	conn := newFakeConn("10.0.0.1", 4000)
	conn.onWrite = func() { clock.Advance(2 * time.Second) }
	require.True(t, c.AddPlayer(conn))

	_, err := c.StartNewRound()
	require.NoError(t, err)
	assert.Equal(t, roundStart, c.LastRoundStarted())

	_, err = c.SubmitSecretKey(pendingPad(c))
	assert.ErrorIs(t, err, ErrLateSubmission)
}
