// Copyright 2026 Forge Works
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ratelimit

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/forgeworks/sidecar/pkg/auth"
)

// Middleware enforces the limit per authenticated user and route path.
// It must sit after the auth middleware so the user identity is already
// in the request context; an unexpected store failure lets the request
// through rather than turning an infrastructure blip into an outage.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := auth.IdentityFromContext(r.Context())
		if !ok || !identity.Authenticated {
			next.ServeHTTP(w, r)
			return
		}

		result, err := l.Allow(r.Context(), identity.UserID, r.URL.Path)
		if err != nil {
			slog.Warn("rate limit check failed, allowing request", "error", err, "user", identity.UserID)
			next.ServeHTTP(w, r)
			return
		}

		if !result.Allowed {
			w.Header().Set("Retry-After", fmt.Sprintf("%d", result.RetryAfter))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprintf(w, `{"error":"Rate limit exceeded","retryAfter":%d}`, result.RetryAfter)
			return
		}

		next.ServeHTTP(w, r)
	})
}
