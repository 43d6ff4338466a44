//go:build vault

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
	"context"
	"errors"
	"fmt"

	vault "github.com/hashicorp/vault/api"

	"github.com/jeremyhahn/go-sharechallenge/internal/config"
)

const (
	defaultVaultMount = "secret"
	defaultVaultKey   = "value"
)

// kvReader is the subset of the Vault KV v2 client used here.
type kvReader interface {
	Get(ctx context.Context, secretPath string) (*vault.KVSecret, error)
}

// VaultSource reads the secret from a KV v2 mount.
type VaultSource struct {
	kv   kvReader
	addr string
	path string
	key  string
}

func newVaultSource(cfg *config.VaultConfig) (Source, error) {
	if cfg == nil || cfg.Address == "" || cfg.Path == "" {
		return nil, fmt.Errorf("secret: vault address and path are required")
	}

	vaultConfig := vault.DefaultConfig()
	vaultConfig.Address = cfg.Address

	client, err := vault.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}
	if cfg.Token != "" {
		client.SetToken(cfg.Token)
	}
	if cfg.Namespace != "" {
		client.SetNamespace(cfg.Namespace)
	}

	mount := cfg.MountPath
	if mount == "" {
		mount = defaultVaultMount
	}
	key := cfg.Key
	if key == "" {
		key = defaultVaultKey
	}

	return &VaultSource{kv: client.KVv2(mount), addr: cfg.Address, path: cfg.Path, key: key}, nil
}

func (v *VaultSource) Name() string { return config.SecretSourceVault + ":" + v.path }

func (v *VaultSource) Load(ctx context.Context) (string, error) {
	s, err := v.kv.Get(ctx, v.path)
	if err != nil {
		if errors.Is(err, vault.ErrSecretNotFound) {
			return "", fmt.Errorf("vault path %s: %w", v.path, ErrNotFound)
		}
		return "", fmt.Errorf("vault read %s at %s: %w", v.path, v.addr, err)
	}
	if s == nil || s.Data == nil {
		return "", fmt.Errorf("vault path %s: %w", v.path, ErrNotFound)
	}
	raw, ok := s.Data[v.key]
	if !ok {
		return "", fmt.Errorf("vault key %s at %s: %w", v.key, v.path, ErrNotFound)
	}
	str, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("vault key %s at %s is %T, not a string", v.key, v.path, raw)
	}
	return str, nil
}
