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
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jeremyhahn/go-sharechallenge/internal/config"
	"github.com/jeremyhahn/go-sharechallenge/internal/rest"
	"github.com/jeremyhahn/go-sharechallenge/pkg/challenge"
	"github.com/jeremyhahn/go-sharechallenge/pkg/crypto/secretsharing"
)

// ErrNoShare is returned when the server closes the share connection
// without sending anything, as it does for duplicate or throttled peers.
var ErrNoShare = errors.New("connection closed without a share")

var (
	shareServer string
	shareSave   string
	apiURL      string
	submitKey   string
)

// Settings keys shared by flags and CHALLENGE_* environment variables.
const (
	settingAPI         = "api"
	settingShareServer = "share_server"
)

// settings resolves participant options: an explicit flag wins, then the
// environment, then the flag default.
var settings = newSettings()

func newSettings() *viper.Viper {
	v := viper.New()
	_ = v.BindEnv(settingAPI, config.EnvPrefix+"API")
	_ = v.BindEnv(settingShareServer, config.EnvPrefix+"SHARE_SERVER")
	return v
}

// bindSetting binds key to the named flag of cmd.
func bindSetting(cmd *cobra.Command, key, flag string) error {
	return settings.BindPFlag(key, cmd.Flags().Lookup(flag))
}

var shareCmd = &cobra.Command{
	Use:   "share",
	Short: "Wait for this round's share",
	Long: `Connect to the share port and wait for the next round to start.
The server writes one share and closes the connection. Only one connection
per IP address is accepted.`,
	Args: cobra.NoArgs,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return bindSetting(cmd, settingShareServer, "server")
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		server := settings.GetString(settingShareServer)
		printVerbose(cmd, "Waiting for share from %s", server)
		share, err := receiveShare(cmd.Context(), server, getConfig().Timeout)
		if err != nil {
			return err
		}
		if shareSave != "" {
			data := base64.StdEncoding.EncodeToString(share) + "\n"
			if err := os.WriteFile(shareSave, []byte(data), 0o600); err != nil {
				return fmt.Errorf("failed to save share: %w", err)
			}
		}
		return NewPrinter(getConfig().OutputFormat, cmd.OutOrStdout()).PrintShare(server, share)
	},
}

var combineCmd = &cobra.Command{
	Use:   "combine [SHARE...]",
	Short: "XOR shares back into the pad",
	Long: `Combine base64 shares into the round's pad. With no arguments, or a
single "-", shares are read one per line from stdin.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		encoded := args
		if len(args) == 0 || (len(args) == 1 && args[0] == "-") {
			var err error
			if encoded, err = readLines(cmd.InOrStdin()); err != nil {
				return err
			}
		}
		pad, err := combineShares(encoded)
		if err != nil {
			return err
		}
		return NewPrinter(getConfig().OutputFormat, cmd.OutOrStdout()).PrintPad(pad, len(encoded))
	},
}

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a pad and decrypt the reply",
	Long: `Submit the combined pad to the API. A verified submission returns the
secret encrypted under the pad, which is decrypted locally.`,
	Args: cobra.NoArgs,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return bindSetting(cmd, settingAPI, "api")
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		key := submitKey
		if key == "-" {
			lines, err := readLines(cmd.InOrStdin())
			if err != nil {
				return err
			}
			if len(lines) == 0 {
				return fmt.Errorf("no key on stdin")
			}
			key = lines[0]
		}
		client, err := getConfig().HTTPClient()
		if err != nil {
			return err
		}
		resp, secret, err := submitPad(cmd.Context(), client, settings.GetString(settingAPI), key)
		if err != nil {
			return err
		}
		return NewPrinter(getConfig().OutputFormat, cmd.OutOrStdout()).PrintSubmission(resp, secret)
	},
}

var roundCmd = &cobra.Command{
	Use:   "round",
	Short: "Show the current round",
	Args:  cobra.NoArgs,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return bindSetting(cmd, settingAPI, "api")
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := getConfig().HTTPClient()
		if err != nil {
			return err
		}
		status, err := fetchRoundStatus(cmd.Context(), client, settings.GetString(settingAPI))
		if err != nil {
			return err
		}
		return NewPrinter(getConfig().OutputFormat, cmd.OutOrStdout()).PrintRoundStatus(status)
	},
}

func init() {
	shareCmd.Flags().StringVar(&shareServer, "server", "localhost:8162", "share port address ($"+config.EnvPrefix+"SHARE_SERVER)")
	shareCmd.Flags().StringVar(&shareSave, "save", "", "also write the share to this file")

	submitCmd.Flags().StringVar(&apiURL, "api", "http://localhost:8080", "submission API base URL ($"+config.EnvPrefix+"API)")
	submitCmd.Flags().StringVar(&submitKey, "key", "", `base64 pad to submit ("-" reads stdin)`)
	_ = submitCmd.MarkFlagRequired("key")

	roundCmd.Flags().StringVar(&apiURL, "api", "http://localhost:8080", "submission API base URL ($"+config.EnvPrefix+"API)")
}

// receiveShare connects to addr and reads until the server closes the
// connection.
func receiveShare(ctx context.Context, addr string, timeout time.Duration) ([]byte, error) {
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	defer conn.Close()

	if timeout > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return nil, err
		}
	}

	share, err := io.ReadAll(conn)
	if err != nil {
		return nil, fmt.Errorf("failed to read share: %w", err)
	}
	if len(share) == 0 {
		return nil, ErrNoShare
	}
	return share, nil
}

// combineShares decodes and XORs base64 shares.
func combineShares(encoded []string) ([]byte, error) {
	if len(encoded) == 0 {
		return nil, fmt.Errorf("at least one share is required")
	}
	shares := make([][]byte, len(encoded))
	for i, s := range encoded {
		b, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
		if err != nil {
			return nil, fmt.Errorf("share %d is not valid base64: %w", i+1, err)
		}
		shares[i] = b
	}
	return secretsharing.Combine(shares)
}

// submitPad posts key and, when verified, decrypts the returned secret.
func submitPad(ctx context.Context, client *http.Client, baseURL, key string) (challenge.SubmissionResponse, string, error) {
	var result challenge.SubmissionResponse

	body, err := json.Marshal(challenge.SubmissionRequest{SecretKey: key})
	if err != nil {
		return result, "", err
	}
	if err := doJSON(ctx, client, http.MethodPost, baseURL+"/api/v1/secret", body, &result); err != nil {
		return result, "", err
	}
	if !result.SecretKeyVerified || result.EncryptedSecret == nil {
		return result, "", nil
	}

	encrypted, err := base64.StdEncoding.DecodeString(*result.EncryptedSecret)
	if err != nil {
		return result, "", fmt.Errorf("server returned invalid encrypted secret: %w", err)
	}
	pad, err := base64.StdEncoding.DecodeString(key)
	if err != nil {
		return result, "", err
	}
	if len(pad) != len(encrypted) {
		return result, "", fmt.Errorf("pad length %d does not match secret length %d", len(pad), len(encrypted))
	}
	secretsharing.XORInPlace(encrypted, pad)
	return result, string(encrypted), nil
}

func fetchRoundStatus(ctx context.Context, client *http.Client, baseURL string) (rest.RoundStatusResponse, error) {
	var status rest.RoundStatusResponse
	err := doJSON(ctx, client, http.MethodGet, baseURL+"/api/v1/round", nil, &status)
	return status, err
}

// doJSON sends a request and decodes a 200 JSON reply into out. Other
// statuses are returned as errors carrying the server's message.
func doJSON(ctx context.Context, client *http.Client, method, url string, body []byte, out interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr rest.ErrorResponse
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Message)
		}
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func readLines(r io.Reader) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, scanner.Err()
}
