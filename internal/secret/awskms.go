//go:build awskms

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

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	kmstypes "github.com/aws/aws-sdk-go-v2/service/kms/types"

	"github.com/jeremyhahn/go-sharechallenge/internal/config"
)

// awsDecrypter is the subset of the AWS KMS client used here.
type awsDecrypter interface {
	Decrypt(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
}

// AWSKMSSource decrypts a ciphertext file with AWS KMS.
type AWSKMSSource struct {
	client awsDecrypter
	keyID  string
	file   string
}

func newAWSKMSSource(cfg *config.AWSKMSConfig) (Source, error) {
	if cfg == nil || cfg.Region == "" || cfg.CiphertextFile == "" {
		return nil, fmt.Errorf("secret: awskms region and ciphertext_file are required")
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}

	// Use static credentials if provided
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		creds := credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken)
		opts = append(opts, awsconfig.WithCredentialsProvider(creds))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var clientOpts []func(*kms.Options)
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *kms.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	return &AWSKMSSource{
		client: kms.NewFromConfig(awsCfg, clientOpts...),
		keyID:  cfg.KeyID,
		file:   cfg.CiphertextFile,
	}, nil
}

func (a *AWSKMSSource) Name() string { return config.SecretSourceAWSKMS + ":" + a.file }

func (a *AWSKMSSource) Load(ctx context.Context) (string, error) {
	ct, err := readCiphertext(a.file)
	if err != nil {
		return "", err
	}

	input := &kms.DecryptInput{CiphertextBlob: ct}
	if a.keyID != "" {
		input.KeyId = aws.String(a.keyID)
	}

	out, err := a.client.Decrypt(ctx, input)
	if err != nil {
		var notFound *kmstypes.NotFoundException
		if errors.As(err, &notFound) {
			return "", fmt.Errorf("aws kms key: %w", ErrNotFound)
		}
		return "", fmt.Errorf("aws kms decrypt: %w", err)
	}
	return trimNewline(string(out.Plaintext)), nil
}
