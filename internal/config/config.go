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

// Package config loads the challenge server configuration from YAML with
// environment variable overrides.
package config

import (
	"fmt"
	"log"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jeremyhahn/go-sharechallenge/pkg/validation"
)

// EnvPrefix prefixes every environment override owned by this service.
const EnvPrefix = "CHALLENGE_"

// Secret sources
const (
	SecretSourcePrompt  = "prompt"
	SecretSourceEnv     = "env"
	SecretSourceFile    = "file"
	SecretSourceVault   = "vault"
	SecretSourceAzureKV = "azurekv"
	SecretSourceAWSKMS  = "awskms"
	SecretSourceGCPKMS  = "gcpkms"
)

// SecretSources lists every accepted secret source, in help-text order.
var SecretSources = []string{
	SecretSourcePrompt,
	SecretSourceEnv,
	SecretSourceFile,
	SecretSourceVault,
	SecretSourceAzureKV,
	SecretSourceAWSKMS,
	SecretSourceGCPKMS,
}

// Config represents the complete server configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Challenge ChallengeConfig `yaml:"challenge"`
	Secret    SecretConfig    `yaml:"secret"`
	RNG       RNGConfig       `yaml:"rng"`
	Logging   LoggingConfig   `yaml:"logging"`
	TLS       TLSConfig       `yaml:"tls"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Health    HealthConfig    `yaml:"health"`
}

// ServerConfig contains listener settings
type ServerConfig struct {
	Host            string        `yaml:"host"`
	APIPort         int           `yaml:"api_port"`
	SharePort       int           `yaml:"share_port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// ChallengeConfig controls round timing and share counts
type ChallengeConfig struct {
	RoundInterval     time.Duration `yaml:"round_interval"`
	TimeLimit         time.Duration `yaml:"time_limit"`
	MinParts          int           `yaml:"min_parts"`
	ShareWriteTimeout time.Duration `yaml:"share_write_timeout"`
}

// SecretConfig selects where the protected secret is read from
type SecretConfig struct {
	Source  string         `yaml:"source"` // prompt, env, file, vault, azurekv, awskms, gcpkms
	EnvVar  string         `yaml:"env_var"`
	File    string         `yaml:"file"`
	Vault   *VaultConfig   `yaml:"vault,omitempty"`
	AzureKV *AzureKVConfig `yaml:"azurekv,omitempty"`
	AWSKMS  *AWSKMSConfig  `yaml:"awskms,omitempty"`
	GCPKMS  *GCPKMSConfig  `yaml:"gcpkms,omitempty"`
}

// VaultConfig locates the secret in a HashiCorp Vault KV v2 mount
type VaultConfig struct {
	Address   string `yaml:"address"`
	Token     string `yaml:"token"`
	Namespace string `yaml:"namespace"`
	MountPath string `yaml:"mount_path"`
	Path      string `yaml:"path"`
	Key       string `yaml:"key"`
}

// AzureKVConfig locates the secret in Azure Key Vault
type AzureKVConfig struct {
	VaultURL     string `yaml:"vault_url"`
	TenantID     string `yaml:"tenant_id"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	Name         string `yaml:"name"`
	Version      string `yaml:"version"`
}

// AWSKMSConfig decrypts a KMS-encrypted secret file with AWS KMS.
// CiphertextFile holds the base64 CiphertextBlob.
type AWSKMSConfig struct {
	Region          string `yaml:"region"`
	KeyID           string `yaml:"key_id"`
	CiphertextFile  string `yaml:"ciphertext_file"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	SessionToken    string `yaml:"session_token"`
}

// GCPKMSConfig decrypts a KMS-encrypted secret file with Google Cloud KMS.
// KeyName is the full CryptoKey resource name.
type GCPKMSConfig struct {
	KeyName         string `yaml:"key_name"`
	CiphertextFile  string `yaml:"ciphertext_file"`
	CredentialsFile string `yaml:"credentials_file"`
	Endpoint        string `yaml:"endpoint"`
}

// RNGConfig selects the entropy source for pads and shares
type RNGConfig struct {
	Mode         string        `yaml:"mode"` // auto, software, tpm2, pkcs11
	FallbackMode string        `yaml:"fallback_mode"`
	TPM2         *TPM2Config   `yaml:"tpm2,omitempty"`
	PKCS11       *PKCS11Config `yaml:"pkcs11,omitempty"`
}

// TPM2Config contains TPM 2.0 RNG settings
type TPM2Config struct {
	Device         string `yaml:"device"`
	MaxRequestSize int    `yaml:"max_request_size"`
}

// PKCS11Config contains PKCS#11 RNG settings
type PKCS11Config struct {
	Module string `yaml:"module"`
	SlotID uint   `yaml:"slot_id"`
	PIN    string `yaml:"pin"`
}

// LoggingConfig controls logging behavior
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// RateLimitConfig controls per-client rate limiting
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMin    int  `yaml:"requests_per_min"`
	Burst             int  `yaml:"burst"`
	ConnectionsPerMin int  `yaml:"connections_per_min"`
	TrustProxyHeaders bool `yaml:"trust_proxy_headers"`
}

// MetricsConfig controls the metrics endpoint. Port 0, or the API port,
// serves metrics on the API listener.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
	Port    int    `yaml:"port"`
}

// HealthConfig controls the health endpoints
type HealthConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			APIPort:         8080,
			SharePort:       8162,
			ShutdownTimeout: 10 * time.Second,
		},
		Challenge: ChallengeConfig{
			RoundInterval: 30 * time.Second,
			TimeLimit:     time.Second,
			MinParts:      3,
		},
		Secret: SecretConfig{
			Source: SecretSourcePrompt,
			EnvVar: EnvPrefix + "SECRET",
		},
		RNG: RNGConfig{
			Mode: "software",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerMin:    120,
			Burst:             10,
			ConnectionsPerMin: 30,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Health: HealthConfig{
			Enabled: true,
		},
	}
}

// Load reads configuration from a YAML file over the defaults and applies
// environment variable overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		// #nosec G304 - config path is provided by the operator
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func envPort(name string, current int) int {
	v := os.Getenv(name)
	if v == "" {
		return current
	}
	port, err := strconv.Atoi(v)
	if err != nil || port < 1 || port > 65535 {
		log.Printf("Warning: invalid %s value %q, using %d", name, v, current)
		return current
	}
	return port
}

func envDuration(name string, current time.Duration) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return current
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("Warning: invalid %s value %q, using %s: %v", name, v, current, err)
		return current
	}
	return d
}

func envString(name string, target *string) {
	if v := os.Getenv(name); v != "" {
		*target = v
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration
func applyEnvOverrides(cfg *Config) {
	envString(EnvPrefix+"HOST", &cfg.Server.Host)
	cfg.Server.APIPort = envPort(EnvPrefix+"API_PORT", cfg.Server.APIPort)
	cfg.Server.SharePort = envPort(EnvPrefix+"SHARE_PORT", cfg.Server.SharePort)

	cfg.Challenge.RoundInterval = envDuration(EnvPrefix+"ROUND_INTERVAL", cfg.Challenge.RoundInterval)
	cfg.Challenge.TimeLimit = envDuration(EnvPrefix+"TIME_LIMIT", cfg.Challenge.TimeLimit)
	if v := os.Getenv(EnvPrefix + "MIN_PARTS"); v != "" {
		if n, err := strconv.Atoi(v); err != nil {
			log.Printf("Warning: invalid %sMIN_PARTS value %q, using %d", EnvPrefix, v, cfg.Challenge.MinParts)
		} else {
			cfg.Challenge.MinParts = n
		}
	}

	envString(EnvPrefix+"LOG_LEVEL", &cfg.Logging.Level)
	envString(EnvPrefix+"LOG_FORMAT", &cfg.Logging.Format)
	envString(EnvPrefix+"SECRET_SOURCE", &cfg.Secret.Source)
	envString(EnvPrefix+"SECRET_FILE", &cfg.Secret.File)
	envString(EnvPrefix+"RNG_MODE", &cfg.RNG.Mode)

	if tpmPath := os.Getenv("TPM_DEVICE_PATH"); tpmPath != "" {
		if cfg.RNG.TPM2 == nil {
			cfg.RNG.TPM2 = &TPM2Config{}
		}
		cfg.RNG.TPM2.Device = tpmPath
	}
	if module := os.Getenv("PKCS11_LIBRARY"); module != "" {
		if cfg.RNG.PKCS11 == nil {
			cfg.RNG.PKCS11 = &PKCS11Config{}
		}
		cfg.RNG.PKCS11.Module = module
	}
	if cfg.RNG.PKCS11 != nil {
		envString("PKCS11_PIN", &cfg.RNG.PKCS11.PIN)
	}

	if cfg.Secret.Vault != nil {
		envString("VAULT_ADDR", &cfg.Secret.Vault.Address)
		envString("VAULT_TOKEN", &cfg.Secret.Vault.Token)
		envString("VAULT_NAMESPACE", &cfg.Secret.Vault.Namespace)
	}

	if cfg.Secret.AzureKV != nil {
		envString("AZURE_KEYVAULT_URL", &cfg.Secret.AzureKV.VaultURL)
		envString("AZURE_TENANT_ID", &cfg.Secret.AzureKV.TenantID)
		envString("AZURE_CLIENT_ID", &cfg.Secret.AzureKV.ClientID)
		envString("AZURE_CLIENT_SECRET", &cfg.Secret.AzureKV.ClientSecret)
	}

	if cfg.Secret.AWSKMS != nil {
		envString("AWS_REGION", &cfg.Secret.AWSKMS.Region)
		envString("AWS_ACCESS_KEY_ID", &cfg.Secret.AWSKMS.AccessKeyID)
		envString("AWS_SECRET_ACCESS_KEY", &cfg.Secret.AWSKMS.SecretAccessKey)
		envString("AWS_SESSION_TOKEN", &cfg.Secret.AWSKMS.SessionToken)
	}

	if cfg.Secret.GCPKMS != nil {
		envString("GOOGLE_APPLICATION_CREDENTIALS", &cfg.Secret.GCPKMS.CredentialsFile)
	}
}

func validPort(p int) bool {
	return p >= 1 && p <= 65535
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if !validPort(c.Server.APIPort) {
		return fmt.Errorf("invalid API port: %d", c.Server.APIPort)
	}
	if !validPort(c.Server.SharePort) {
		return fmt.Errorf("invalid share port: %d", c.Server.SharePort)
	}
	if c.Server.APIPort == c.Server.SharePort {
		return fmt.Errorf("API port and share port must differ: %d", c.Server.APIPort)
	}
	if c.Server.ShutdownTimeout < 0 {
		return fmt.Errorf("shutdown_timeout must not be negative")
	}

	if c.Challenge.RoundInterval <= 0 {
		return fmt.Errorf("round_interval must be positive, got %s", c.Challenge.RoundInterval)
	}
	if c.Challenge.TimeLimit <= 0 {
		return fmt.Errorf("time_limit must be positive, got %s", c.Challenge.TimeLimit)
	}
	if c.Challenge.MinParts < 2 {
		return fmt.Errorf("min_parts must be at least 2, got %d", c.Challenge.MinParts)
	}
	if c.Challenge.ShareWriteTimeout < 0 {
		return fmt.Errorf("share_write_timeout must not be negative")
	}

	if err := c.Secret.validate(); err != nil {
		return err
	}

	switch strings.ToLower(c.RNG.Mode) {
	case "", "auto", "software", "tpm2", "pkcs11":
	default:
		return fmt.Errorf("invalid rng mode: %s (must be auto, software, tpm2, or pkcs11)", c.RNG.Mode)
	}
	if strings.EqualFold(c.RNG.Mode, "pkcs11") && (c.RNG.PKCS11 == nil || c.RNG.PKCS11.Module == "") {
		return fmt.Errorf("rng pkcs11 module is required when mode is pkcs11")
	}

	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validFormats := map[string]bool{
		"json": true, "text": true, "console": true,
	}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		return fmt.Errorf("invalid log format: %s (must be json, text, or console)", c.Logging.Format)
	}

	if c.TLS.Enabled {
		if c.TLS.CertFile == "" {
			return fmt.Errorf("TLS cert_file is required when TLS is enabled")
		}
		if c.TLS.KeyFile == "" {
			return fmt.Errorf("TLS key_file is required when TLS is enabled")
		}
	}

	if c.RateLimit.Enabled && c.RateLimit.RequestsPerMin <= 0 {
		return fmt.Errorf("ratelimit requests_per_min must be positive when enabled")
	}

	if c.Metrics.Enabled {
		if c.Metrics.Port != 0 && !validPort(c.Metrics.Port) {
			return fmt.Errorf("invalid metrics port: %d", c.Metrics.Port)
		}
		if c.Metrics.Port == c.Server.SharePort {
			return fmt.Errorf("metrics port must differ from share port")
		}
		if !strings.HasPrefix(c.Metrics.Path, "/") {
			return fmt.Errorf("metrics path must start with '/': %q", c.Metrics.Path)
		}
	}

	return nil
}

func (s *SecretConfig) validate() error {
	switch strings.ToLower(s.Source) {
	case SecretSourcePrompt:
	case SecretSourceEnv:
		if s.EnvVar == "" {
			return fmt.Errorf("secret env_var is required when source is env")
		}
	case SecretSourceFile:
		if s.File == "" {
			return fmt.Errorf("secret file is required when source is file")
		}
	case SecretSourceVault:
		if s.Vault == nil || s.Vault.Address == "" || s.Vault.Path == "" {
			return fmt.Errorf("secret vault address and path are required when source is vault")
		}
		if err := validation.ValidateSecretPath(s.Vault.Path); err != nil {
			return fmt.Errorf("invalid vault path: %w", err)
		}
		if s.Vault.MountPath != "" {
			if err := validation.ValidateMountName(s.Vault.MountPath); err != nil {
				return fmt.Errorf("invalid vault mount_path: %w", err)
			}
		}
	case SecretSourceAzureKV:
		if s.AzureKV == nil || s.AzureKV.VaultURL == "" || s.AzureKV.Name == "" {
			return fmt.Errorf("secret azurekv vault_url and name are required when source is azurekv")
		}
		if err := validation.ValidateSecretName(s.AzureKV.Name); err != nil {
			return fmt.Errorf("invalid azurekv name: %w", err)
		}
	case SecretSourceAWSKMS:
		if s.AWSKMS == nil || s.AWSKMS.Region == "" || s.AWSKMS.CiphertextFile == "" {
			return fmt.Errorf("secret awskms region and ciphertext_file are required when source is awskms")
		}
	case SecretSourceGCPKMS:
		if s.GCPKMS == nil || s.GCPKMS.KeyName == "" || s.GCPKMS.CiphertextFile == "" {
			return fmt.Errorf("secret gcpkms key_name and ciphertext_file are required when source is gcpkms")
		}
		if !strings.HasPrefix(s.GCPKMS.KeyName, "projects/") {
			return fmt.Errorf("secret gcpkms key_name must be a full resource name (projects/.../cryptoKeys/...)")
		}
	default:
		return fmt.Errorf("invalid secret source: %s (must be one of %s)", s.Source, strings.Join(SecretSources, ", "))
	}
	return nil
}

// APIAddr returns the host:port of the submission API.
func (c *Config) APIAddr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.APIPort))
}

// ShareAddr returns the host:port of the share listener.
func (c *Config) ShareAddr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.SharePort))
}
