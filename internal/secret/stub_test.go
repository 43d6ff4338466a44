//go:build !vault && !azurekv

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
	"testing"

	"github.com/jeremyhahn/go-sharechallenge/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestNew_RemoteSourcesNotCompiled(t *testing.T) {
	_, err := New(&config.SecretConfig{
		Source: config.SecretSourceVault,
		Vault:  &config.VaultConfig{Address: "http://127.0.0.1:8200", Path: "challenge"},
	}, nil, nil)
	assert.ErrorIs(t, err, ErrNotCompiled)

	_, err = New(&config.SecretConfig{
		Source:  config.SecretSourceAzureKV,
		AzureKV: &config.AzureKVConfig{VaultURL: "https://kv.vault.azure.net/", Name: "challenge"},
	}, nil, nil)
	assert.ErrorIs(t, err, ErrNotCompiled)
}
