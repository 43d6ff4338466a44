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

package secretsharing

import (
	"bytes"
	"crypto/rand"
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name     string
		secret   []byte
		numParts int
		wantErr  error
	}{
		{name: "three parts", secret: []byte("hello"), numParts: 3},
		{name: "two parts", secret: []byte("hello"), numParts: 2},
		{name: "many parts", secret: []byte("a longer secret value"), numParts: 50},
		{name: "empty secret", secret: []byte{}, numParts: 3},
		{name: "negative parts", secret: []byte("hello"), numParts: -1, wantErr: ErrInvalidParts},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shares, err := Split(tt.secret, tt.numParts)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Len(t, shares, tt.numParts)
			for i, share := range shares {
				assert.Len(t, share, len(tt.secret), "share %d", i)
			}

			got, err := Combine(shares)
			require.NoError(t, err)
			assert.Equal(t, tt.secret, got)
		})
	}
}

func TestSplit_ZeroParts(t *testing.T) {
	shares, err := Split([]byte("hello"), 0)
	require.NoError(t, err)
	assert.NotNil(t, shares)
	assert.Empty(t, shares)
}

func TestSplit_OnePartIsVerbatim(t *testing.T) {
	secret := []byte("hello")
	shares, err := Split(secret, 1)
	require.NoError(t, err)
	require.Len(t, shares, 1)
	assert.Equal(t, secret, shares[0])

	// the share must not alias the caller's buffer
	shares[0][0] = 'j'
	assert.Equal(t, []byte("hello"), secret)
}

func TestSplit_DoesNotModifyInput(t *testing.T) {
	secret := []byte("do not touch")
	orig := bytes.Clone(secret)
	_, err := Split(secret, 4)
	require.NoError(t, err)
	assert.Equal(t, orig, secret)
}

// TestSplit_SharesDifferFromSecret is a statistical check: with 32 byte
// secrets a share equal to the secret has probability 2^-256.
func TestSplit_SharesDifferFromSecret(t *testing.T) {
	for i := 0; i < 200; i++ {
		secret := make([]byte, 32)
		_, err := rand.Read(secret)
		require.NoError(t, err)

		n := 2 + i%6
		shares, err := Split(secret, n)
		require.NoError(t, err)
		for j, share := range shares {
			assert.NotEqual(t, secret, share, "iteration %d share %d", i, j)
		}
	}
}

func TestSplit_RoundTripProperty(t *testing.T) {
	for n := 1; n <= 16; n++ {
		for _, size := range []int{0, 1, 7, 32, 257} {
			secret := make([]byte, size)
			_, err := rand.Read(secret)
			require.NoError(t, err)

			shares, err := Split(secret, n)
			require.NoError(t, err)
			got, err := Combine(shares)
			require.NoError(t, err)
			assert.Equal(t, secret, got, "n=%d size=%d", n, size)
		}
	}
}

type countingReader struct {
	n int
}

func (c *countingReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = byte(c.n)
		c.n++
	}
	return len(p), nil
}

func TestSplitter_EntropyConsumed(t *testing.T) {
	r := &countingReader{}
	s := NewSplitter(r)

	_, err := s.Split(make([]byte, 10), 4)
	require.NoError(t, err)
	assert.Equal(t, 30, r.n)
}

type brokenReader struct{}

func (brokenReader) Read([]byte) (int, error) { return 0, errors.New("entropy exhausted") }

func TestSplitter_RandomSourceError(t *testing.T) {
	s := NewSplitter(brokenReader{})
	_, err := s.Split([]byte("hello"), 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "entropy exhausted")

	// one part draws no entropy
	shares, err := s.Split([]byte("hello"), 1)
	require.NoError(t, err)
	assert.Len(t, shares, 1)
}

func TestCombine_Errors(t *testing.T) {
	_, err := Combine(nil)
	assert.ErrorIs(t, err, ErrNoShares)

	_, err = Combine([][]byte{{1, 2, 3}, {1, 2}})
	assert.ErrorIs(t, err, ErrShareLengthMismatch)
}

func TestCombine_SubsetIsNotSecret(t *testing.T) {
	secret := []byte("thirty-two bytes of secret data!")
	shares, err := Split(secret, 3)
	require.NoError(t, err)

	partial, err := Combine(shares[:2])
	require.NoError(t, err)
	assert.NotEqual(t, secret, partial)
}

func TestXORInPlace(t *testing.T) {
	tests := []struct {
		name string
		dst  []byte
		src  []byte
		want []byte
		n    int
	}{
		{name: "equal length", dst: []byte{0xff, 0x0f}, src: []byte{0x0f, 0x0f}, want: []byte{0xf0, 0x00}, n: 2},
		{name: "shorter src", dst: []byte{1, 2, 3}, src: []byte{1}, want: []byte{0, 2, 3}, n: 1},
		{name: "shorter dst", dst: []byte{1}, src: []byte{1, 2, 3}, want: []byte{0}, n: 1},
		{name: "empty", dst: []byte{}, src: []byte{1}, want: []byte{}, n: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := XORInPlace(tt.dst, tt.src)
			assert.Equal(t, tt.n, n)
			assert.Equal(t, tt.want, tt.dst)
		})
	}
}

func BenchmarkSplit(b *testing.B) {
	secret := make([]byte, 64)
	for _, n := range []int{3, 16, 128} {
		b.Run(strconv.Itoa(n), func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				if _, err := Split(secret, n); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
