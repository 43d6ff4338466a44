//go:build azurekv

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
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"

	"github.com/jeremyhahn/go-sharechallenge/internal/config"
)

// secretGetter is the subset of azsecrets.Client used here.
type secretGetter interface {
	GetSecret(ctx context.Context, name, version string, options *azsecrets.GetSecretOptions) (azsecrets.GetSecretResponse, error)
}

// AzureKVSource reads the secret from Azure Key Vault.
type AzureKVSource struct {
	client  secretGetter
	name    string
	version string
}

func newAzureKVSource(cfg *config.AzureKVConfig) (Source, error) {
	if cfg == nil || cfg.VaultURL == "" || cfg.Name == "" {
		return nil, fmt.Errorf("secret: azurekv vault_url and name are required")
	}

	var client *azsecrets.Client
	if cfg.ClientID != "" && cfg.ClientSecret != "" && cfg.TenantID != "" {
		cred, err := azidentity.NewClientSecretCredential(cfg.TenantID, cfg.ClientID, cfg.ClientSecret, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create client secret credential: %w", err)
		}
		client, err = azsecrets.NewClient(cfg.VaultURL, cred, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create secrets client: %w", err)
		}
	} else {
		// managed identity, workload identity or az CLI login
		cred, err := azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create Azure credential: %w", err)
		}
		client, err = azsecrets.NewClient(cfg.VaultURL, cred, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create secrets client: %w", err)
		}
	}

	return &AzureKVSource{client: client, name: cfg.Name, version: cfg.Version}, nil
}

func (a *AzureKVSource) Name() string { return config.SecretSourceAzureKV + ":" + a.name }

func (a *AzureKVSource) Load(ctx context.Context) (string, error) {
	resp, err := a.client.GetSecret(ctx, a.name, a.version, nil)
	if err != nil {
		return "", fmt.Errorf("azure key vault get %s: %w", a.name, err)
	}
	if resp.Value == nil {
		return "", fmt.Errorf("azure key vault secret %s: %w", a.name, ErrNotFound)
	}
	return *resp.Value, nil
}
