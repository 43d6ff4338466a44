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
	"errors"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSecretGetter struct {
	value   *string
	err     error
	name    string
	version string
}

func (f *fakeSecretGetter) GetSecret(_ context.Context, name, version string, _ *azsecrets.GetSecretOptions) (azsecrets.GetSecretResponse, error) {
	f.name, f.version = name, version
	var resp azsecrets.GetSecretResponse
	resp.Value = f.value
	return resp, f.err
}

func TestAzureKVSource_Load(t *testing.T) {
	value := "hello"
	getter := &fakeSecretGetter{value: &value}
	src := &AzureKVSource{client: getter, name: "challenge", version: "v2"}

	got, err := src.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "hello", got)
	assert.Equal(t, "challenge", getter.name)
	assert.Equal(t, "v2", getter.version)
}

func TestAzureKVSource_Errors(t *testing.T) {
	src := &AzureKVSource{client: &fakeSecretGetter{}, name: "challenge"}
	_, err := src.Load(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)

	boom := errors.New("forbidden")
	src = &AzureKVSource{client: &fakeSecretGetter{err: boom}, name: "challenge"}
	_, err = src.Load(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestNewAzureKVSource_RequiresURLAndName(t *testing.T) {
	_, err := newAzureKVSource(nil)
	require.Error(t, err)
}
