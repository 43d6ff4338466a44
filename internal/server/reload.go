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

package server

import (
	"fmt"
	"strings"

	"github.com/jeremyhahn/go-sharechallenge/internal/config"
	"github.com/jeremyhahn/go-sharechallenge/pkg/logging"
)

// Reload applies the parts of cfg that can change without a restart.
// Currently only the log level; listeners, challenge timing and the secret
// are fixed for the life of the process.
func (s *Server) Reload(cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Info("Reloading server configuration...")

	if err := s.reloadLogging(cfg); err != nil {
		return fmt.Errorf("failed to reload logging configuration: %w", err)
	}
	s.warnRestartRequired(cfg)

	s.config.Logging = cfg.Logging

	s.logger.Info("Server configuration reloaded successfully")
	return nil
}

// reloadLogging updates the shared log level.
func (s *Server) reloadLogging(cfg *config.Config) error {
	old := s.config.Logging
	if !strings.EqualFold(cfg.Logging.Level, old.Level) {
		s.logger.Info("Updating log level",
			logging.String("old_level", old.Level),
			logging.String("new_level", cfg.Logging.Level))
		s.logLevel.Set(logging.ParseLevel(cfg.Logging.Level))
	}
	if !strings.EqualFold(cfg.Logging.Format, old.Format) {
		s.logger.Warn("Log format change requires a restart",
			logging.String("current", old.Format),
			logging.String("requested", cfg.Logging.Format))
	}
	return nil
}

func (s *Server) warnRestartRequired(cfg *config.Config) {
	if cfg.Server != s.config.Server {
		s.logger.Warn("Listener changes require a restart")
	}
	if cfg.Challenge != s.config.Challenge {
		s.logger.Warn("Challenge timing changes require a restart")
	}
}
