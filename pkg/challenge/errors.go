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

import "errors"

var (
	// ErrInvalidSecretKey is returned when a submission decodes but does
	// not match the pending pad.
	ErrInvalidSecretKey = errors.New("invalid secret key")

	// ErrLateSubmission is returned when no pad is pending or the pending
	// pad is older than the time limit.
	ErrLateSubmission = errors.New("late submission")

	// ErrInvalidConfig is returned by NewCoordinator for unusable options.
	ErrInvalidConfig = errors.New("invalid coordinator configuration")
)
