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

package challenge

import (
	"encoding/base64"
	"strings"

	"github.com/jeremyhahn/go-sharechallenge/pkg/metrics"
)

const (
	// MessageInvalidEncoding is returned when secret_key is not valid base64.
	MessageInvalidEncoding = "Submission rejected: Invalid base64 encoding"

	// MessageVerificationFailed is returned for any rejected key, whether
	// wrong or late.
	MessageVerificationFailed = "Invalid submission: wrong key or too late"
)

// Submitter verifies a decoded candidate pad. *Coordinator implements it.
type Submitter interface {
	SubmitSecretKey(candidate []byte) (string, error)
}

var _ Submitter = (*Coordinator)(nil)

// SubmissionRequest is the body of a submission.
type SubmissionRequest struct {
	SecretKey string `json:"secret_key"`
}

// SubmissionResponse is the result of a submission.
type SubmissionResponse struct {
	SecretKeyVerified bool    `json:"secret_key_verified"`
	EncryptedSecret   *string `json:"encrypted_secret,omitempty"`
	Message           *string `json:"message,omitempty"`
}

// Verified returns a successful response carrying the encrypted secret.
func Verified(encrypted string) SubmissionResponse {
	return SubmissionResponse{SecretKeyVerified: true, EncryptedSecret: &encrypted}
}

// Failed returns a failure response carrying msg.
func Failed(msg string) SubmissionResponse {
	return SubmissionResponse{Message: &msg}
}

// Submit decodes req and passes the candidate to s. Decoding failures never
// reach s, so they do not consume the round's pad. Wrong and late keys are
// reported identically.
func Submit(s Submitter, req SubmissionRequest) SubmissionResponse {
	candidate, err := decodeKey(req.SecretKey)
	if err != nil {
		metrics.RecordSubmission(metrics.ResultBadEncoding, -1)
		return Failed(MessageInvalidEncoding)
	}

	encrypted, err := s.SubmitSecretKey(candidate)
	if err != nil {
		return Failed(MessageVerificationFailed)
	}
	return Verified(encrypted)
}

// decodeKey decodes standard padded base64. The stdlib decoder skips CR and
// LF anywhere in the input, so those are rejected up front.
func decodeKey(key string) ([]byte, error) {
	if strings.ContainsAny(key, "\r\n") {
		return nil, base64.CorruptInputError(strings.IndexAny(key, "\r\n"))
	}
	return base64.StdEncoding.Strict().DecodeString(key)
}
