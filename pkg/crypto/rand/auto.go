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

package rand

// newAutoResolver picks the best compiled-in source that opens successfully.
// Preference order: PKCS#11, TPM2, software.
func newAutoResolver(cfg *Config) (Resolver, error) {
	if pkcs11Available() && cfg.PKCS11 != nil {
		if r, err := newPKCS11Resolver(cfg.PKCS11); err == nil {
			if r.Available() {
				return r, nil
			}
			_ = r.Close()
		}
	}

	if tpm2Available() {
		if r, err := newTPM2Resolver(cfg.TPM2); err == nil {
			if r.Available() {
				return r, nil
			}
			_ = r.Close()
		}
	}

	return NewSoftwareResolver(), nil
}
