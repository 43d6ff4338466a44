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
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global configuration
	globalConfig *Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "challenge",
	Short: "go-sharechallenge - timed XOR secret-sharing challenge",
	Long: `challenge runs and plays a timed secret-sharing game.

Every round the server draws a random pad, splits it into XOR shares and
hands one share to each participant connected to the share port. Whoever
reassembles the pad and submits it within the time limit receives the
protected secret encrypted under that pad.

Operator commands:
  serve    run the challenge server

Participant commands:
  share    wait for this round's share
  combine  XOR shares back into the pad
  submit   submit a pad and decrypt the reply
  round    show the current round`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Errors are printed in the selected output
// format before being returned.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		printError(err)
		return err
	}
	return nil
}

func init() {
	// Initialize global config
	globalConfig = NewConfig()

	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().StringVar(&globalConfig.ConfigFile, "config", "",
		"server config file (default: $"+ConfigEnvVar+")")
	rootCmd.PersistentFlags().StringVarP(&globalConfig.OutputFormat, "output", "o", "text",
		"output format (text, json, table)")
	rootCmd.PersistentFlags().BoolVarP(&globalConfig.Verbose, "verbose", "v", false,
		"verbose output")
	rootCmd.PersistentFlags().DurationVar(&globalConfig.Timeout, "timeout", globalConfig.Timeout,
		"network timeout for participant commands")
	rootCmd.PersistentFlags().BoolVar(&globalConfig.TLSInsecure, "tls-insecure", false,
		"skip TLS certificate verification")
	rootCmd.PersistentFlags().StringVar(&globalConfig.TLSCACert, "tls-ca", "",
		"CA certificate for verifying the API server")

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(shareCmd)
	rootCmd.AddCommand(combineCmd)
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(roundCmd)
}

// getConfig returns the global configuration
func getConfig() *Config {
	return globalConfig
}

// printError prints an error to stderr in the selected format.
func printError(err error) {
	printer := NewPrinter(globalConfig.OutputFormat, os.Stderr)
	_ = printer.PrintError(err) // Error printing to stderr is best-effort
}

// printVerbose prints a message if verbose mode is enabled
func printVerbose(cmd *cobra.Command, format string, args ...interface{}) {
	if globalConfig.Verbose {
		fmt.Fprintf(cmd.ErrOrStderr(), "[VERBOSE] "+format+"\n", args...)
	}
}
