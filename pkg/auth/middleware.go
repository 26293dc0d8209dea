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

package auth

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const identityContextKey contextKey = "forge_identity"

// TokenFromRequest extracts the bearer token. The Authorization header
// wins over the ?token= query parameter when both are present.
func TokenFromRequest(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header != "" {
		token := strings.TrimPrefix(header, "Bearer ")
		if token != header {
			return token
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

// Middleware authenticates every request and stores the Identity in the
// request context. Unauthenticated requests get a 401.
func Middleware(a Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := a.Authenticate(TokenFromRequest(r))
			if !identity.Authenticated {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"Unauthorized: ` + identity.Error + `"}`))
				return
			}
			ctx := context.WithValue(r.Context(), identityContextKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IdentityFromContext returns the authenticated identity. ok is false
// when the middleware did not run.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityContextKey).(Identity)
	return id, ok
}

// AdminMiddleware guards the admin surface. A missing configured key maps
// to 503, a wrong key to 403, per the admin API contract.
func AdminMiddleware(admin *Admin) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			err := admin.Authorize(TokenFromRequest(r))
			switch err {
			case nil:
				next.ServeHTTP(w, r)
			case ErrNoAdminKey:
				http.Error(w, `{"error":"No admin key"}`, http.StatusServiceUnavailable)
			default:
				http.Error(w, `{"error":"Forbidden"}`, http.StatusForbidden)
			}
		})
	}
}
