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

//go:build tpm2

package rand

import (
	"fmt"
	"sync"

	"github.com/google/go-tpm/tpm2"
	"github.com/google/go-tpm/tpm2/transport"
	"github.com/google/go-tpm/tpmutil"
)

const defaultTPMDevice = "/dev/tpmrm0"

// tpm2Resolver draws entropy with TPM2_GetRandom, chunked to the
// device's per-call limit.
type tpm2Resolver struct {
	mu      sync.Mutex
	tpm     transport.TPMCloser
	maxSize int
}

func newTPM2Resolver(cfg *TPM2Config) (Resolver, error) {
	device := defaultTPMDevice
	maxSize := 32
	if cfg != nil {
		if cfg.Device != "" {
			device = cfg.Device
		}
		if cfg.MaxRequestSize > 0 {
			maxSize = cfg.MaxRequestSize
		}
	}

	rwc, err := tpmutil.OpenTPM(device)
	if err != nil {
		return nil, fmt.Errorf("failed to open TPM2 device %s: %w", device, err)
	}

	return &tpm2Resolver{
		tpm:     transport.FromReadWriteCloser(rwc),
		maxSize: maxSize,
	}, nil
}

func tpm2Available() bool {
	return true
}

func (t *tpm2Resolver) Rand(n int) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.tpm == nil {
		return nil, fmt.Errorf("TPM2 resolver closed")
	}

	out := make([]byte, 0, n)
	for len(out) < n {
		chunk := n - len(out)
		if chunk > t.maxSize {
			chunk = t.maxSize
		}
		rsp, err := tpm2.GetRandom{BytesRequested: uint16(chunk)}.Execute(t.tpm)
		if err != nil {
			return nil, fmt.Errorf("TPM2 GetRandom failed: %w", err)
		}
		if len(rsp.RandomBytes.Buffer) == 0 {
			return nil, ErrShortRead
		}
		out = append(out, rsp.RandomBytes.Buffer...)
	}
	return out[:n], nil
}

func (t *tpm2Resolver) Read(p []byte) (int, error) {
	return readVia(t.Rand, p)
}

func (t *tpm2Resolver) Mode() Mode { return ModeTPM2 }

func (t *tpm2Resolver) Available() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tpm != nil
}

func (t *tpm2Resolver) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.tpm == nil {
		return nil
	}
	err := t.tpm.Close()
	t.tpm = nil
	return err
}
