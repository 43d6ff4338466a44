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
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-sharechallenge/internal/config"
	"github.com/jeremyhahn/go-sharechallenge/internal/secret"
	"github.com/jeremyhahn/go-sharechallenge/internal/server"
	"github.com/jeremyhahn/go-sharechallenge/pkg/logging"
)

var (
	serveHost         string
	serveAPIPort      int
	serveSharePort    int
	serveLogLevel     string
	serveSecretSource string
)

// serveCmd runs the challenge server until SIGINT or SIGTERM. SIGHUP
// reloads the configuration file.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the challenge server",
	Long: `Run the challenge server.

The protected secret is read once at startup from the configured source
(prompt, env, file, vault, azurekv, awskms or gcpkms). Cloud sources need
the matching build tag. Send SIGHUP to reload the log level.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "bind address (overrides config)")
	serveCmd.Flags().IntVar(&serveAPIPort, "api-port", 0, "submission API port (overrides config)")
	serveCmd.Flags().IntVar(&serveSharePort, "share-port", 0, "share port (overrides config)")
	serveCmd.Flags().StringVar(&serveLogLevel, "log-level", "", "log level (overrides config)")
	serveCmd.Flags().StringVar(&serveSecretSource, "secret-source", "",
		"secret source: "+strings.Join(config.SecretSources, ", ")+" (overrides config)")
}

// loadServeConfig loads the server config and applies flag overrides.
func loadServeConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := getConfig().LoadServerConfig()
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Server.Host = serveHost
	}
	if flags.Changed("api-port") {
		cfg.Server.APIPort = serveAPIPort
	}
	if flags.Changed("share-port") {
		cfg.Server.SharePort = serveSharePort
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = serveLogLevel
	}
	if flags.Changed("secret-source") {
		cfg.Secret.Source = serveSecretSource
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadServeConfig(cmd)
	if err != nil {
		return err
	}
	printVerbose(cmd, "Loaded configuration from %q", getConfig().ConfigPath())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	src, err := secret.New(&cfg.Secret, cmd.InOrStdin(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	value, err := secret.Load(ctx, src)
	if err != nil {
		return err
	}
	printVerbose(cmd, "Secret loaded from %s", src.Name())

	srv, err := server.New(cfg, value, server.WithVersion(Version), server.WithLogOutput(cmd.ErrOrStderr()))
	if err != nil {
		return err
	}
	if err := srv.Start(); err != nil {
		_ = srv.Shutdown()
		return err
	}

	return waitAndShutdown(ctx, cmd, srv)
}

// waitAndShutdown blocks until ctx is done, reloading on SIGHUP.
func waitAndShutdown(ctx context.Context, cmd *cobra.Command, srv *server.Server) error {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-hup:
			cfg, err := loadServeConfig(cmd)
			if err != nil {
				srv.Logger().Error("Failed to reload configuration", logging.Error(err))
				continue
			}
			if err := srv.Reload(cfg); err != nil {
				srv.Logger().Error("Failed to apply configuration", logging.Error(err))
			}
		case <-ctx.Done():
			return srv.Shutdown()
		}
	}
}
