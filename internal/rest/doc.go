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

// Package rest serves the challenge submission API.
//
// Participants reconstruct the round pad from their shares and POST it here,
// base64 encoded. The first correct submission inside the round's time limit
// receives the secret XORed with the pad.
//
//	srv, _ := rest.NewServer(&rest.Config{
//	    Addr:      ":8080",
//	    Submitter: coordinator,
//	    Rounds:    coordinator,
//	})
//	if err := srv.Listen(); err != nil {
//	    // bind failure
//	}
//	go srv.Serve()
//	defer srv.Stop(ctx)
//
// # API Endpoints
//
// Submission:
//   - POST /secret {"secret_key": "<base64>"}
//   - POST /api/v1/secret (same handler)
//
// Responses are always 200 once the JSON body is decoded:
//
//	{"secret_key_verified": true, "encrypted_secret": "<base64>"}
//	{"secret_key_verified": false, "message": "Invalid submission: wrong key or too late"}
//	{"secret_key_verified": false, "message": "Submission rejected: Invalid base64 encoding"}
//
// A wrong key and a late key produce the same message. Malformed JSON gives
// 400, an oversized body 413 and a throttled client 429, all as ErrorResponse.
//
// Round status:
//   - GET /api/v1/round
//
// Health:
//   - GET /health
//   - GET /health/live
//   - GET /health/ready
//   - GET /health/startup
//
// Every response carries X-Correlation-ID.
package rest
