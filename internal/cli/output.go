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
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jeremyhahn/go-sharechallenge/internal/rest"
	"github.com/jeremyhahn/go-sharechallenge/pkg/challenge"
)

// OutputFormat defines the output format type
type OutputFormat string

const (
	OutputFormatText  OutputFormat = "text"
	OutputFormatJSON  OutputFormat = "json"
	OutputFormatTable OutputFormat = "table"
)

// Printer handles formatted output
type Printer struct {
	format OutputFormat
	writer io.Writer
}

// NewPrinter creates a new Printer
func NewPrinter(format string, writer io.Writer) *Printer {
	return &Printer{
		format: OutputFormat(format),
		writer: writer,
	}
}

// PrintShare prints a received share, base64 encoded.
func (p *Printer) PrintShare(from string, share []byte) error {
	encoded := base64.StdEncoding.EncodeToString(share)
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"server": from,
			"share":  encoded,
			"length": len(share),
		})
	case OutputFormatTable:
		fmt.Fprintf(p.writer, "%-10s %s\n", "SERVER", from)
		fmt.Fprintf(p.writer, "%-10s %d\n", "LENGTH", len(share))
		fmt.Fprintf(p.writer, "%-10s %s\n", "SHARE", encoded)
		return nil
	case OutputFormatText:
		fmt.Fprintln(p.writer, encoded)
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintPad prints a combined pad, base64 encoded.
func (p *Printer) PrintPad(pad []byte, parts int) error {
	encoded := base64.StdEncoding.EncodeToString(pad)
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"secret_key": encoded,
			"parts":      parts,
		})
	case OutputFormatTable:
		fmt.Fprintf(p.writer, "%-10s %d\n", "PARTS", parts)
		fmt.Fprintf(p.writer, "%-10s %s\n", "PAD", encoded)
		return nil
	case OutputFormatText:
		fmt.Fprintln(p.writer, encoded)
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintSubmission prints a submission result. secret is the decrypted
// secret when the submission was verified.
func (p *Printer) PrintSubmission(resp challenge.SubmissionResponse, secret string) error {
	switch p.format {
	case OutputFormatJSON:
		out := map[string]interface{}{
			"secret_key_verified": resp.SecretKeyVerified,
		}
		if resp.EncryptedSecret != nil {
			out["encrypted_secret"] = *resp.EncryptedSecret
			out["secret"] = secret
		}
		if resp.Message != nil {
			out["message"] = *resp.Message
		}
		return p.printJSON(out)
	case OutputFormatTable, OutputFormatText:
		if !resp.SecretKeyVerified {
			msg := "submission rejected"
			if resp.Message != nil {
				msg = *resp.Message
			}
			fmt.Fprintf(p.writer, "Rejected: %s\n", msg)
			return nil
		}
		if p.format == OutputFormatTable {
			fmt.Fprintf(p.writer, "%-10s %t\n", "VERIFIED", true)
			fmt.Fprintf(p.writer, "%-10s %s\n", "SECRET", secret)
			return nil
		}
		fmt.Fprintln(p.writer, secret)
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintRoundStatus prints the server's round status.
func (p *Printer) PrintRoundStatus(status rest.RoundStatusResponse) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(status)
	case OutputFormatTable:
		fmt.Fprintf(p.writer, "%-8s %-12s %-8s\n", "ROUND", "REGISTERED", "PENDING")
		fmt.Fprintln(p.writer, strings.Repeat("-", 30))
		fmt.Fprintf(p.writer, "%-8d %-12d %-8t\n", status.Round, status.Registered, status.Pending)
		return nil
	case OutputFormatText:
		fmt.Fprintf(p.writer, "Round:      %d\n", status.Round)
		fmt.Fprintf(p.writer, "Registered: %d\n", status.Registered)
		fmt.Fprintf(p.writer, "Pending:    %t\n", status.Pending)
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintSuccess prints a success message
func (p *Printer) PrintSuccess(message string) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"status":  "success",
			"message": message,
		})
	case OutputFormatTable, OutputFormatText:
		fmt.Fprintln(p.writer, message)
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintError prints an error message
func (p *Printer) PrintError(err error) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"status": "error",
			"error":  err.Error(),
		})
	case OutputFormatTable, OutputFormatText:
		fmt.Fprintf(p.writer, "Error: %v\n", err)
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// printJSON prints data as JSON
func (p *Printer) printJSON(data interface{}) error {
	encoder := json.NewEncoder(p.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}
