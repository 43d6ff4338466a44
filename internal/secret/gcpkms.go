//go:build gcpkms

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
	"hash/crc32"

	kms "cloud.google.com/go/kms/apiv1"
	"cloud.google.com/go/kms/apiv1/kmspb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/jeremyhahn/go-sharechallenge/internal/config"
)

var crc32c = crc32.MakeTable(crc32.Castagnoli)

// gcpDecrypter is the subset of the Cloud KMS client used here.
type gcpDecrypter interface {
	Decrypt(ctx context.Context, req *kmspb.DecryptRequest) (*kmspb.DecryptResponse, error)
	Close() error
}

// realGCPClient drops the call options so the client fits gcpDecrypter.
type realGCPClient struct {
	*kms.KeyManagementClient
}

func (r *realGCPClient) Decrypt(ctx context.Context, req *kmspb.DecryptRequest) (*kmspb.DecryptResponse, error) {
	return r.KeyManagementClient.Decrypt(ctx, req)
}

// GCPKMSSource decrypts a ciphertext file with Google Cloud KMS. A client is
// opened per Load, since the secret is read once.
type GCPKMSSource struct {
	dial    func(ctx context.Context) (gcpDecrypter, error)
	keyName string
	file    string
}

func newGCPKMSSource(cfg *config.GCPKMSConfig) (Source, error) {
	if cfg == nil || cfg.KeyName == "" || cfg.CiphertextFile == "" {
		return nil, fmt.Errorf("secret: gcpkms key_name and ciphertext_file are required")
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	dial := func(ctx context.Context) (gcpDecrypter, error) {
		client, err := kms.NewKeyManagementClient(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create KMS client: %w", err)
		}
		return &realGCPClient{client}, nil
	}
	return &GCPKMSSource{dial: dial, keyName: cfg.KeyName, file: cfg.CiphertextFile}, nil
}

func (g *GCPKMSSource) Name() string { return config.SecretSourceGCPKMS + ":" + g.file }

func (g *GCPKMSSource) Load(ctx context.Context) (string, error) {
	ct, err := readCiphertext(g.file)
	if err != nil {
		return "", err
	}

	client, err := g.dial(ctx)
	if err != nil {
		return "", err
	}
	defer func() { _ = client.Close() }()

	resp, err := client.Decrypt(ctx, &kmspb.DecryptRequest{
		Name:       g.keyName,
		Ciphertext: ct,
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return "", fmt.Errorf("gcp kms key %s: %w", g.keyName, ErrNotFound)
		}
		return "", fmt.Errorf("gcp kms decrypt: %w", err)
	}

	if sum := resp.GetPlaintextCrc32C(); sum != nil {
		if int64(crc32.Checksum(resp.GetPlaintext(), crc32c)) != sum.GetValue() {
			return "", fmt.Errorf("gcp kms decrypt: plaintext checksum mismatch")
		}
	}
	return trimNewline(string(resp.GetPlaintext())), nil
}
