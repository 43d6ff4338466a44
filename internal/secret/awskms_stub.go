//go:build !awskms

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

package secret

import (
	"fmt"

	"github.com/jeremyhahn/go-sharechallenge/internal/config"
)

func newAWSKMSSource(*config.AWSKMSConfig) (Source, error) {
	return nil, fmt.Errorf("awskms (use -tags awskms): %w", ErrNotCompiled)
}
