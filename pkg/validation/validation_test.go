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

package validation

import (
	"strings"
	"testing"
)

func TestValidateSecretPath(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		// Valid paths
		{"single segment", "challenge", false},
		{"nested", "challenge/prod/secret", false},
		{"with dash and dot", "team-a/app.v2", false},
		{"underscore", "my_app/secret_1", false},

		// Invalid paths
		{"empty", "", true},
		{"null byte", "chal\x00lenge", true},
		{"absolute", "/challenge/secret", true},
		{"parent reference", "../secret", true},
		{"parent in middle", "a/../b", true},
		{"dot segment", "a/./b", true},
		{"empty segment", "a//b", true},
		{"trailing slash", "a/b/", true},
		{"control character", "a\nb", true},
		{"space", "my secret", true},
		{"query injection", "secret?version=1", true},
		{"too long", strings.Repeat("a", 513), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSecretPath(tt.path)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateSecretPath(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
			}
		})
	}
}

func TestValidateMountName(t *testing.T) {
	tests := []struct {
		name    string
		mount   string
		wantErr bool
	}{
		{"default kv mount", "secret", false},
		{"with dash", "kv-v2", false},
		{"empty", "", true},
		{"slash", "a/b", true},
		{"dot", "kv.v2", true},
		{"too long", strings.Repeat("m", 65), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateMountName(tt.mount)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateMountName(%q) error = %v, wantErr %v", tt.mount, err, tt.wantErr)
			}
		})
	}
}

func TestValidateSecretName(t *testing.T) {
	tests := []struct {
		name    string
		secret  string
		wantErr bool
	}{
		{"simple", "challenge-secret", false},
		{"digits", "secret01", false},
		{"max length", strings.Repeat("a", 127), false},
		{"empty", "", true},
		{"underscore", "challenge_secret", true},
		{"slash", "a/b", true},
		{"too long", strings.Repeat("a", 128), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSecretName(tt.secret)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateSecretName(%q) error = %v, wantErr %v", tt.secret, err, tt.wantErr)
			}
		})
	}
}

func TestSanitizeForLog(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "/secret", "/secret"},
		{"newline injection", "/secret\nlevel=ERROR msg=forged", "/secretlevel=ERROR msg=forged"},
		{"null byte", "a\x00b", "ab"},
		{"delete char", "a\x7fb", "ab"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeForLog(tt.input); got != tt.want {
				t.Errorf("SanitizeForLog(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}

	long := SanitizeForLog(strings.Repeat("x", 2000))
	if !strings.HasSuffix(long, "...[truncated]") || len(long) != 1000+len("...[truncated]") {
		t.Errorf("long input not truncated: len=%d", len(long))
	}
}
