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

package rest

import (
	"net/http"

	"github.com/jeremyhahn/go-sharechallenge/pkg/correlation"
)

// CorrelationMiddleware tags each request with a correlation ID taken from
// X-Correlation-ID, then X-Request-ID, or freshly generated. The ID is echoed
// in the response so participants can quote it when reporting problems.
func (s *Server) CorrelationMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := correlation.FromHeaders(r.Header.Get)
			r = r.WithContext(correlation.WithCorrelationID(r.Context(), id))
			w.Header().Set(correlation.CorrelationIDHeader, id)
			next.ServeHTTP(w, r)
		})
	}
}
