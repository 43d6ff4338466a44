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
	"testing"
)

func FuzzXORInPlace(f *testing.F) {
	f.Add([]byte{0x00, 0xff}, []byte{0xff, 0x00})
	f.Add([]byte("hello"), []byte("world!"))
	f.Add([]byte{}, []byte{0x01})

	f.Fuzz(func(t *testing.T, a, b []byte) {
		dst := bytes.Clone(a)
		n := XORInPlace(dst, b)
		if n != min(len(a), len(b)) {
			t.Fatalf("folded %d bytes, want %d", n, min(len(a), len(b)))
		}
		// applying twice restores the original
		XORInPlace(dst, b)
		if !bytes.Equal(dst, a) {
			t.Fatalf("double XOR did not restore input")
		}
	})
}

func FuzzSplitCombine(f *testing.F) {
	f.Add([]byte("hello"), uint8(3))
	f.Add([]byte{}, uint8(1))

	f.Fuzz(func(t *testing.T, secret []byte, parts uint8) {
		n := int(parts%32) + 1
		shares, err := Split(secret, n)
		if err != nil {
			t.Fatal(err)
		}
		got, err := Combine(shares)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(got, secret) {
			t.Fatalf("combine(split(s, %d)) != s", n)
		}
	})
}
