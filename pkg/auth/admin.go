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
	"crypto/subtle"
	"errors"
)

// Admin auth errors. Handlers map ErrNoAdminKey to 503 and
// ErrAdminForbidden to 403.
var (
	ErrNoAdminKey     = errors.New("No admin key")
	ErrAdminForbidden = errors.New("invalid admin key")
)

// Admin authorizes requests against a shared secret, separate from
// end-user authentication.
type Admin struct {
	key []byte
}

// NewAdmin creates an admin authorizer. An empty key means every request
// is rejected with ErrNoAdminKey.
func NewAdmin(key string) *Admin {
	return &Admin{key: []byte(key)}
}

// Authorize compares the presented bearer token in constant time.
func (a *Admin) Authorize(token string) error {
	if len(a.key) == 0 {
		return ErrNoAdminKey
	}
	if subtle.ConstantTimeCompare([]byte(token), a.key) != 1 {
		return ErrAdminForbidden
	}
	return nil
}
