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

// Package validation checks operator-supplied identifiers before they reach
// external secret stores, and scrubs client-controlled strings before they
// are logged.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	// mountPattern matches Vault mount names
	mountPattern = regexp.MustCompile(`^[a-zA-Z0-9_\-]+$`)

	// pathSegmentPattern matches one segment of a Vault KV path
	pathSegmentPattern = regexp.MustCompile(`^[a-zA-Z0-9_\-\.]+$`)

	// azureNamePattern matches Azure Key Vault secret names
	azureNamePattern = regexp.MustCompile(`^[0-9a-zA-Z\-]{1,127}$`)
)

const (
	maxSecretPathLen = 512
	maxLogLen        = 1000
)

// checkRaw rejects empty input, null bytes and control characters.
func checkRaw(what, s string) error {
	if s == "" {
		return fmt.Errorf("%s cannot be empty", what)
	}
	if strings.Contains(s, "\x00") {
		return fmt.Errorf("%s contains null byte", what)
	}
	for _, r := range s {
		if r < 32 || r == 127 {
			return fmt.Errorf("%s contains control characters", what)
		}
	}
	return nil
}

// ValidateSecretPath validates a Vault KV secret path such as
// "challenge/prod/secret". Paths are relative to the mount; absolute paths,
// empty segments and parent references are rejected.
func ValidateSecretPath(path string) error {
	if err := checkRaw("secret path", path); err != nil {
		return err
	}

	// Check length before pattern matching (prevent ReDoS)
	if len(path) > maxSecretPathLen {
		return fmt.Errorf("secret path too long (max %d characters)", maxSecretPathLen)
	}
	if strings.HasPrefix(path, "/") {
		return fmt.Errorf("secret path must be relative to the mount")
	}

	for _, seg := range strings.Split(path, "/") {
		switch seg {
		case "":
			return fmt.Errorf("secret path contains an empty segment")
		case ".", "..":
			return fmt.Errorf("secret path contains path traversal attempt")
		}
		if !pathSegmentPattern.MatchString(seg) {
			return fmt.Errorf("secret path contains invalid characters (allowed: a-z, A-Z, 0-9, -, _, ., /)")
		}
	}
	return nil
}

// ValidateMountName validates a Vault secrets engine mount name.
func ValidateMountName(mount string) error {
	if err := checkRaw("mount name", mount); err != nil {
		return err
	}
	if len(mount) > 64 {
		return fmt.Errorf("mount name too long (max 64 characters)")
	}
	if !mountPattern.MatchString(mount) {
		return fmt.Errorf("mount name contains invalid characters (allowed: a-z, A-Z, 0-9, -, _)")
	}
	return nil
}

// ValidateSecretName validates an Azure Key Vault secret name.
func ValidateSecretName(name string) error {
	if err := checkRaw("secret name", name); err != nil {
		return err
	}
	if !azureNamePattern.MatchString(name) {
		return fmt.Errorf("secret name must be 1-127 characters of a-z, A-Z, 0-9 or -")
	}
	return nil
}

// SanitizeForLog sanitizes a string for safe logging (prevents log injection).
func SanitizeForLog(s string) string {
	// Remove control characters and null bytes
	s = strings.Map(func(r rune) rune {
		if r < 32 || r == 127 {
			return -1
		}
		return r
	}, s)

	// Limit length to prevent log flooding
	if len(s) > maxLogLen {
		s = s[:maxLogLen] + "...[truncated]"
	}

	return s
}
