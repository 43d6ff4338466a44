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
	"net/http"
	"net/http/httptest"
	"testing"

	vault "github.com/hashicorp/vault/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-sharechallenge/internal/config"
)

type fakeKV struct {
	secret *vault.KVSecret
	err    error
	path   string
}

func (f *fakeKV) Get(_ context.Context, p string) (*vault.KVSecret, error) {
	f.path = p
	return f.secret, f.err
}

func TestVaultSource_Load(t *testing.T) {
	tests := []struct {
		name    string
		kv      *fakeKV
		want    string
		wantErr error
	}{
		{
			name: "string value",
			kv:   &fakeKV{secret: &vault.KVSecret{Data: map[string]interface{}{"value": "hello"}}},
			want: "hello",
		},
		{
			name:    "missing key",
			kv:      &fakeKV{secret: &vault.KVSecret{Data: map[string]interface{}{"other": "x"}}},
			wantErr: ErrNotFound,
		},
		{
			name:    "nil secret",
			kv:      &fakeKV{},
			wantErr: ErrNotFound,
		},
		{
			name:    "not found",
			kv:      &fakeKV{err: vault.ErrSecretNotFound},
			wantErr: ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &VaultSource{kv: tt.kv, addr: "http://vault", path: "challenge", key: "value"}
			got, err := src.Load(context.Background())
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, "challenge", tt.kv.path)
		})
	}
}

func TestVaultSource_NonStringValue(t *testing.T) {
	src := &VaultSource{
		kv:   &fakeKV{secret: &vault.KVSecret{Data: map[string]interface{}{"value": 42}}},
		path: "challenge",
		key:  "value",
	}
	_, err := src.Load(context.Background())
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestVaultSource_MissingPathAgainstServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/kv/data/challenge", r.URL.Path)
		assert.Equal(t, "test-token", r.Header.Get("X-Vault-Token"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	src, err := New(&config.SecretConfig{
		Source: config.SecretSourceVault,
		Vault: &config.VaultConfig{
			Address:   srv.URL,
			Token:     "test-token",
			MountPath: "kv",
			Path:      "challenge",
		},
	}, nil, nil)
	require.NoError(t, err)

	_, err = src.Load(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNewVaultSource_RequiresAddressAndPath(t *testing.T) {
	_, err := newVaultSource(&config.VaultConfig{Address: "http://vault"})
	require.Error(t, err)
	_, err = newVaultSource(nil)
	require.Error(t, err)
}
