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

// Package secretsharing implements n-of-n XOR secret sharing.
//
// A secret is split into N shares of the same length as the secret. N-1 of
// the shares are drawn from a cryptographically secure random source and the
// final share is the secret XORed with all of them. XOR-folding every share
// reproduces the secret; any strict subset is uniformly random and reveals
// nothing about it.
//
// # Degenerate Cases
//
//   - Splitting into 0 parts yields an empty set of shares.
//   - Splitting into 1 part yields the secret itself, with no secrecy.
//
// The challenge coordinator never splits into fewer than 3 parts.
//
// # Usage Example
//
//	shares, err := secretsharing.Split([]byte("hello"), 3)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Each participant holds one share. Together they recover the secret.
//	secret, err := secretsharing.Combine(shares)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// # Entropy
//
// A Splitter consumes (N-1)*len(secret) bytes from its random source per
// split. The package-level Split reads from crypto/rand; use NewSplitter with
// a hardware-backed reader from pkg/crypto/rand when required.
package secretsharing
