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
	"errors"
	"fmt"
	"io"

	"github.com/jeremyhahn/go-sharechallenge/pkg/crypto/rand"
)

var (
	// ErrInvalidParts is returned when a negative share count is requested.
	ErrInvalidParts = errors.New("secretsharing: number of parts must not be negative")

	// ErrNoShares is returned when combining an empty set of shares.
	ErrNoShares = errors.New("secretsharing: no shares to combine")

	// ErrShareLengthMismatch is returned when shares differ in length.
	ErrShareLengthMismatch = errors.New("secretsharing: shares have different lengths")
)

// Splitter splits secrets using its own random source.
type Splitter struct {
	rand io.Reader
}

// NewSplitter returns a Splitter drawing entropy from r. A nil reader
// selects the software resolver.
func NewSplitter(r io.Reader) *Splitter {
	if r == nil {
		r = rand.NewSoftwareResolver()
	}
	return &Splitter{rand: r}
}

var defaultSplitter = NewSplitter(nil)

// Split divides secret into numParts shares using crypto/rand.
func Split(secret []byte, numParts int) ([][]byte, error) {
	return defaultSplitter.Split(secret, numParts)
}

// Split divides secret into numParts shares whose XOR is the secret.
// The input is never modified and no share aliases it.
func (s *Splitter) Split(secret []byte, numParts int) ([][]byte, error) {
	if numParts < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidParts, numParts)
	}

	shares := make([][]byte, 0, numParts)
	if numParts == 0 {
		return shares, nil
	}

	last := make([]byte, len(secret))
	copy(last, secret)

	for i := 0; i < numParts-1; i++ {
		share := make([]byte, len(secret))
		if _, err := io.ReadFull(s.rand, share); err != nil {
			return nil, fmt.Errorf("failed to generate share %d: %w", i, err)
		}
		XORInPlace(last, share)
		shares = append(shares, share)
	}

	return append(shares, last), nil
}

// Combine XOR-folds all shares into a new buffer.
func Combine(shares [][]byte) ([]byte, error) {
	if len(shares) == 0 {
		return nil, ErrNoShares
	}

	out := make([]byte, len(shares[0]))
	for i, share := range shares {
		if len(share) != len(out) {
			return nil, fmt.Errorf("%w: share %d has %d bytes, expected %d",
				ErrShareLengthMismatch, i, len(share), len(out))
		}
		XORInPlace(out, share)
	}
	return out, nil
}

// XORInPlace sets dst[i] ^= src[i] over the shorter of the two buffers and
// returns the number of bytes folded.
func XORInPlace(dst, src []byte) int {
	n := min(len(dst), len(src))
	for i := 0; i < n; i++ {
		dst[i] ^= src[i]
	}
	return n
}
