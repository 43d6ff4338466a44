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

// Package rand provides the entropy source used to generate round pads and
// the random shares of the XOR splitting scheme.
//
// A Resolver is selected at startup from configuration:
//
//	rng, err := rand.NewResolver(&rand.Config{Mode: rand.ModeSoftware})
//	pad, err := rng.Rand(32)
//
// Hardware sources are only compiled in with the matching build tag:
//   - tpm2:   TPM 2.0 GetRandom (github.com/google/go-tpm)
//   - pkcs11: HSM C_GenerateRandom (github.com/miekg/pkcs11)
//
// Without the tag, selecting that mode returns an error, and auto mode
// silently uses the software source. Every Resolver implements io.Reader and
// is safe for concurrent use.
package rand

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
)

// Mode specifies which RNG source to use.
type Mode string

const (
	// ModeAuto uses the first available of PKCS#11, TPM2 and software.
	ModeAuto Mode = "auto"

	// ModeSoftware uses crypto/rand.
	ModeSoftware Mode = "software"

	// ModeTPM2 uses the TPM 2.0 hardware RNG.
	ModeTPM2 Mode = "tpm2"

	// ModePKCS11 uses a PKCS#11 token's RNG.
	ModePKCS11 Mode = "pkcs11"
)

// ErrShortRead is returned when a source yields fewer bytes than requested.
var ErrShortRead = errors.New("rand: short read from entropy source")

// Config contains RNG configuration.
type Config struct {
	// Mode is the primary source. Defaults to ModeAuto.
	Mode Mode

	// FallbackMode is used when the primary source fails a request.
	FallbackMode Mode

	TPM2   *TPM2Config
	PKCS11 *PKCS11Config
}

// TPM2Config contains TPM2 RNG settings.
type TPM2Config struct {
	// Device path (default: /dev/tpmrm0)
	Device string

	// MaxRequestSize caps bytes per TPM2_GetRandom call (default: 32)
	MaxRequestSize int
}

// PKCS11Config contains PKCS#11 RNG settings.
type PKCS11Config struct {
	Module string
	SlotID uint
	PIN    string
}

// Resolver generates random bytes from the configured source.
type Resolver interface {
	io.Reader

	// Rand returns n random bytes.
	Rand(n int) ([]byte, error)

	// Mode reports which source actually serves requests.
	Mode() Mode

	// Available returns true if the source can serve requests.
	Available() bool

	// Close releases device handles.
	Close() error
}

// NewResolver creates a resolver for cfg. A nil cfg selects auto mode.
func NewResolver(cfg *Config) (Resolver, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	mode := cfg.Mode
	if mode == "" {
		mode = ModeAuto
	}

	var primary Resolver
	var err error
	switch mode {
	case ModeAuto:
		primary, err = newAutoResolver(cfg)
	case ModeSoftware:
		primary = NewSoftwareResolver()
	case ModeTPM2:
		primary, err = newTPM2Resolver(cfg.TPM2)
	case ModePKCS11:
		primary, err = newPKCS11Resolver(cfg.PKCS11)
	default:
		return nil, fmt.Errorf("unknown RNG mode: %s", mode)
	}
	if err != nil {
		if cfg.FallbackMode == "" || cfg.FallbackMode == mode {
			return nil, err
		}
		return NewResolver(&Config{Mode: cfg.FallbackMode, TPM2: cfg.TPM2, PKCS11: cfg.PKCS11})
	}

	if cfg.FallbackMode == "" || cfg.FallbackMode == mode {
		return primary, nil
	}
	fallback, err := NewResolver(&Config{Mode: cfg.FallbackMode, TPM2: cfg.TPM2, PKCS11: cfg.PKCS11})
	if err != nil {
		// primary works; a broken fallback is not fatal
		return primary, nil
	}
	return &fallbackResolver{primary: primary, fallback: fallback}, nil
}

// SoftwareResolver uses crypto/rand.
type SoftwareResolver struct{}

var _ Resolver = (*SoftwareResolver)(nil)

// NewSoftwareResolver returns the crypto/rand backed resolver.
func NewSoftwareResolver() *SoftwareResolver {
	return &SoftwareResolver{}
}

func (s *SoftwareResolver) Rand(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (s *SoftwareResolver) Read(p []byte) (int, error) {
	return rand.Read(p)
}

func (s *SoftwareResolver) Mode() Mode { return ModeSoftware }

func (s *SoftwareResolver) Available() bool { return true }

func (s *SoftwareResolver) Close() error { return nil }

// fallbackResolver retries failed requests on a secondary source.
type fallbackResolver struct {
	primary  Resolver
	fallback Resolver
}

func (f *fallbackResolver) Rand(n int) ([]byte, error) {
	b, err := f.primary.Rand(n)
	if err != nil {
		return f.fallback.Rand(n)
	}
	return b, nil
}

func (f *fallbackResolver) Read(p []byte) (int, error) {
	return readVia(f.Rand, p)
}

func (f *fallbackResolver) Mode() Mode { return f.primary.Mode() }

func (f *fallbackResolver) Available() bool {
	return f.primary.Available() || f.fallback.Available()
}

func (f *fallbackResolver) Close() error {
	return errors.Join(f.primary.Close(), f.fallback.Close())
}

// readVia adapts a Rand-style function to io.Reader semantics.
func readVia(randFn func(int) ([]byte, error), p []byte) (int, error) {
	data, err := randFn(len(p))
	if err != nil {
		return 0, err
	}
	if len(data) < len(p) {
		return copy(p, data), ErrShortRead
	}
	return copy(p, data), nil
}
