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

package cli

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/jeremyhahn/go-sharechallenge/internal/config"
)

// ConfigEnvVar names the environment variable holding the server config path.
const ConfigEnvVar = config.EnvPrefix + "CONFIG"

// Config holds global CLI configuration
type Config struct {
	// ConfigFile is the path to the server configuration file
	ConfigFile string

	// OutputFormat controls output formatting (json, text, table)
	OutputFormat string

	// Verbose enables verbose logging
	Verbose bool

	// Timeout bounds participant network operations. Waiting for a share
	// must outlast a full round interval.
	Timeout time.Duration

	// TLSInsecure skips TLS certificate verification (not recommended)
	TLSInsecure bool

	// TLSCACert is the path to the CA certificate file
	TLSCACert string
}

// NewConfig creates a new Config with default values
func NewConfig() *Config {
	return &Config{
		OutputFormat: "text",
		Timeout:      2 * time.Minute,
	}
}

// ConfigPath returns the server config path, preferring the flag over the
// environment.
func (c *Config) ConfigPath() string {
	if c.ConfigFile != "" {
		return c.ConfigFile
	}
	return os.Getenv(ConfigEnvVar)
}

// LoadServerConfig loads the server configuration. Without a path the
// defaults plus environment overrides are used.
func (c *Config) LoadServerConfig() (*config.Config, error) {
	return config.Load(c.ConfigPath())
}

// HTTPClient returns a client for the submission API.
func (c *Config) HTTPClient() (*http.Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()

	if c.TLSInsecure || c.TLSCACert != "" {
		tlsConfig := &tls.Config{
			MinVersion: tls.VersionTLS12,
			// #nosec G402 - opt-in via --tls-insecure
			InsecureSkipVerify: c.TLSInsecure,
		}
		if c.TLSCACert != "" {
			// #nosec G304 - path is provided by the user
			pem, err := os.ReadFile(c.TLSCACert)
			if err != nil {
				return nil, fmt.Errorf("failed to read CA certificate: %w", err)
			}
			pool := x509.NewCertPool()
			if !pool.AppendCertsFromPEM(pem) {
				return nil, fmt.Errorf("no certificates found in %s", c.TLSCACert)
			}
			tlsConfig.RootCAs = pool
		}
		transport.TLSClientConfig = tlsConfig
	}

	return &http.Client{Transport: transport, Timeout: c.Timeout}, nil
}
