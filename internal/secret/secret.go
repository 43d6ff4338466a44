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

// Package secret resolves the protected challenge secret at startup.
//
// The secret is read exactly once, before any listener is started. It may
// come from an interactive prompt, an environment variable, a file, or a
// remote store (HashiCorp Vault with -tags vault, Azure Key Vault with
// -tags azurekv). A KMS-encrypted file can be decrypted at startup with AWS
// KMS (-tags awskms) or Google Cloud KMS (-tags gcpkms).
package secret

import (
	"bufio"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jeremyhahn/go-sharechallenge/internal/config"
)

var (
	// ErrEmptyCiphertext is returned when a KMS ciphertext file holds no data.
	ErrEmptyCiphertext = errors.New("secret: empty ciphertext")

	// ErrNotCompiled is returned for a remote source that was not built in.
	ErrNotCompiled = errors.New("secret: source not compiled in")

	// ErrNotFound is returned when a remote store has no value at the
	// configured location.
	ErrNotFound = errors.New("secret: not found")
)

// DefaultPrompt is written before reading the secret interactively.
const DefaultPrompt = "Enter secret string: "

// Source yields the protected secret.
type Source interface {
	// Load reads the secret. Implementations do not cache.
	Load(ctx context.Context) (string, error)

	// Name identifies the source in logs.
	Name() string
}

// New builds the Source selected by cfg. in and out back the interactive
// prompt and may be nil for non-prompt sources.
func New(cfg *config.SecretConfig, in io.Reader, out io.Writer) (Source, error) {
	if cfg == nil {
		return nil, fmt.Errorf("secret: nil config")
	}
	switch strings.ToLower(cfg.Source) {
	case "", config.SecretSourcePrompt:
		if in == nil {
			in = os.Stdin
		}
		return &PromptSource{In: in, Out: out, Prompt: DefaultPrompt}, nil
	case config.SecretSourceEnv:
		return &EnvSource{Var: cfg.EnvVar}, nil
	case config.SecretSourceFile:
		return &FileSource{Path: cfg.File}, nil
	case config.SecretSourceVault:
		return newVaultSource(cfg.Vault)
	case config.SecretSourceAzureKV:
		return newAzureKVSource(cfg.AzureKV)
	case config.SecretSourceAWSKMS:
		return newAWSKMSSource(cfg.AWSKMS)
	case config.SecretSourceGCPKMS:
		return newGCPKMSSource(cfg.GCPKMS)
	default:
		return nil, fmt.Errorf("secret: unknown source %q", cfg.Source)
	}
}

// Load resolves the secret from src. An empty secret is valid: rounds then
// use empty pads and the only accepted key is the empty one.
func Load(ctx context.Context, src Source) (string, error) {
	s, err := src.Load(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to load secret from %s: %w", src.Name(), err)
	}
	return s, nil
}

// trimNewline removes one trailing line terminator, keeping any other
// whitespace as part of the secret.
func trimNewline(s string) string {
	s = strings.TrimSuffix(s, "\n")
	return strings.TrimSuffix(s, "\r")
}

// PromptSource reads a single line from In.
type PromptSource struct {
	In     io.Reader
	Out    io.Writer
	Prompt string
}

func (p *PromptSource) Name() string { return config.SecretSourcePrompt }

func (p *PromptSource) Load(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if p.Out != nil && p.Prompt != "" {
		if _, err := io.WriteString(p.Out, p.Prompt); err != nil {
			return "", err
		}
	}
	line, err := bufio.NewReader(p.In).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("failed to read secret: %w", err)
	}
	return trimNewline(line), nil
}

// EnvSource reads the secret from an environment variable.
type EnvSource struct {
	Var string
}

func (e *EnvSource) Name() string { return config.SecretSourceEnv + ":" + e.Var }

func (e *EnvSource) Load(context.Context) (string, error) {
	v, ok := os.LookupEnv(e.Var)
	if !ok {
		return "", fmt.Errorf("environment variable %s: %w", e.Var, ErrNotFound)
	}
	return v, nil
}

// FileSource reads the secret from a file, dropping one trailing newline.
type FileSource struct {
	Path string
}

func (f *FileSource) Name() string { return config.SecretSourceFile + ":" + f.Path }

func (f *FileSource) Load(context.Context) (string, error) {
	// #nosec G304 - secret path is provided by the operator
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return "", err
	}
	return trimNewline(string(data)), nil
}

// readCiphertext reads a base64 KMS ciphertext file.
func readCiphertext(path string) ([]byte, error) {
	// #nosec G304 - ciphertext path is provided by the operator
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	ct, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("ciphertext file %s is not valid base64: %w", path, err)
	}
	if len(ct) == 0 {
		return nil, fmt.Errorf("ciphertext file %s: %w", path, ErrEmptyCiphertext)
	}
	return ct, nil
}
