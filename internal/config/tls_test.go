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

package config

import (
	"crypto/tls"
	"os"
	"path/filepath"
	"testing"

	"github.com/jeremyhahn/go-sharechallenge/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tlsFixture struct {
	certFile string
	keyFile  string
	caFile   string
}

func newTLSFixture(t *testing.T) tlsFixture {
	t.Helper()
	dir := t.TempDir()

	ca, err := testutil.GenerateTestCA()
	require.NoError(t, err)
	server, err := testutil.GenerateTestServerCert(ca)
	require.NoError(t, err)

	certFile, keyFile, err := server.WriteFiles(dir)
	require.NoError(t, err)

	caFile := filepath.Join(dir, "ca.pem")
	require.NoError(t, os.WriteFile(caFile, ca.CertPEM, 0o600))

	return tlsFixture{certFile: certFile, keyFile: keyFile, caFile: caFile}
}

func TestLoadTLSConfig_Disabled(t *testing.T) {
	cfg := &TLSConfig{Enabled: false, CertFile: "/does/not/matter"}
	tlsCfg, err := cfg.LoadTLSConfig()
	require.NoError(t, err)
	assert.Nil(t, tlsCfg)
}

func TestLoadTLSConfig_Defaults(t *testing.T) {
	fx := newTLSFixture(t)
	cfg := &TLSConfig{Enabled: true, CertFile: fx.certFile, KeyFile: fx.keyFile}

	tlsCfg, err := cfg.LoadTLSConfig()
	require.NoError(t, err)
	require.NotNil(t, tlsCfg)
	assert.Len(t, tlsCfg.Certificates, 1)
	assert.Equal(t, uint16(tls.VersionTLS12), tlsCfg.MinVersion)
	assert.Zero(t, tlsCfg.MaxVersion)
	assert.Equal(t, tls.NoClientCert, tlsCfg.ClientAuth)
	assert.Nil(t, tlsCfg.ClientCAs)
}

func TestLoadTLSConfig_MissingFiles(t *testing.T) {
	cfg := &TLSConfig{Enabled: true, CertFile: "/nonexistent/cert.pem", KeyFile: "/nonexistent/key.pem"}
	_, err := cfg.LoadTLSConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load server certificate")
}

func TestLoadTLSConfig_Versions(t *testing.T) {
	fx := newTLSFixture(t)

	tests := []struct {
		name    string
		min     string
		max     string
		wantMin uint16
		wantMax uint16
		wantErr bool
	}{
		{name: "tls13 only", min: "TLS1.3", max: "TLS1.3", wantMin: tls.VersionTLS13, wantMax: tls.VersionTLS13},
		{name: "short form", min: "1.2", max: "1.3", wantMin: tls.VersionTLS12, wantMax: tls.VersionTLS13},
		{name: "tls10 refused", min: "TLS1.0", wantErr: true},
		{name: "bad max", max: "SSL3", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &TLSConfig{
				Enabled:    true,
				CertFile:   fx.certFile,
				KeyFile:    fx.keyFile,
				MinVersion: tt.min,
				MaxVersion: tt.max,
			}
			tlsCfg, err := cfg.LoadTLSConfig()
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantMin, tlsCfg.MinVersion)
			assert.Equal(t, tt.wantMax, tlsCfg.MaxVersion)
		})
	}
}

func TestLoadTLSConfig_CipherSuites(t *testing.T) {
	fx := newTLSFixture(t)

	cfg := &TLSConfig{
		Enabled:  true,
		CertFile: fx.certFile,
		KeyFile:  fx.keyFile,
		CipherSuites: []string{
			"TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256",
			"TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305",
		},
	}
	tlsCfg, err := cfg.LoadTLSConfig()
	require.NoError(t, err)
	assert.Equal(t, []uint16{
		tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
		tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
	}, tlsCfg.CipherSuites)

	cfg.CipherSuites = []string{"TLS_RSA_WITH_RC4_128_SHA"}
	_, err = cfg.LoadTLSConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown cipher suite")
}

func TestLoadTLSConfig_ClientAuth(t *testing.T) {
	fx := newTLSFixture(t)

	t.Run("require_and_verify with CA", func(t *testing.T) {
		cfg := &TLSConfig{
			Enabled:    true,
			CertFile:   fx.certFile,
			KeyFile:    fx.keyFile,
			CAFile:     fx.caFile,
			ClientAuth: "require_and_verify",
		}
		tlsCfg, err := cfg.LoadTLSConfig()
		require.NoError(t, err)
		assert.Equal(t, tls.RequireAndVerifyClientCert, tlsCfg.ClientAuth)
		assert.NotNil(t, tlsCfg.ClientCAs)
	})

	t.Run("extra client CAs", func(t *testing.T) {
		cfg := &TLSConfig{
			Enabled:    true,
			CertFile:   fx.certFile,
			KeyFile:    fx.keyFile,
			ClientAuth: "verify",
			ClientCAs:  []string{fx.caFile},
		}
		tlsCfg, err := cfg.LoadTLSConfig()
		require.NoError(t, err)
		assert.Equal(t, tls.VerifyClientCertIfGiven, tlsCfg.ClientAuth)
		assert.NotNil(t, tlsCfg.ClientCAs)
	})

	t.Run("none ignores CA", func(t *testing.T) {
		cfg := &TLSConfig{
			Enabled:    true,
			CertFile:   fx.certFile,
			KeyFile:    fx.keyFile,
			CAFile:     "/nonexistent/ca.pem",
			ClientAuth: "none",
		}
		tlsCfg, err := cfg.LoadTLSConfig()
		require.NoError(t, err)
		assert.Nil(t, tlsCfg.ClientCAs)
	})

	t.Run("unknown mode", func(t *testing.T) {
		cfg := &TLSConfig{Enabled: true, CertFile: fx.certFile, KeyFile: fx.keyFile, ClientAuth: "sometimes"}
		_, err := cfg.LoadTLSConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid client_auth value")
	})
}

func TestParseClientAuthType(t *testing.T) {
	tests := map[string]tls.ClientAuthType{
		"":                   tls.NoClientCert,
		"none":               tls.NoClientCert,
		"request":            tls.RequestClientCert,
		"require":            tls.RequireAnyClientCert,
		"verify":             tls.VerifyClientCertIfGiven,
		"require_and_verify": tls.RequireAndVerifyClientCert,
	}
	for in, want := range tests {
		got, err := parseClientAuthType(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestLoadCertPool(t *testing.T) {
	fx := newTLSFixture(t)

	pool, err := loadCertPool(fx.caFile, nil)
	require.NoError(t, err)
	assert.NotNil(t, pool)

	_, err = loadCertPool("", []string{"/nonexistent/ca.pem"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read CA file")

	garbage := filepath.Join(t.TempDir(), "garbage.pem")
	require.NoError(t, os.WriteFile(garbage, []byte("not a certificate"), 0o600))
	_, err = loadCertPool(garbage, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse CA certificate")
}
