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

// Package auth provides end-user and admin authentication.
//
// End-user authentication has two modes selected at startup. Trust mode
// decodes the JWT envelope without checking the signature, for deployments
// behind a gateway that already verified it. Verify mode recomputes the
// HS256 MAC with a configured signing key.
package auth

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/tidwall/gjson"

	"github.com/forgeworks/sidecar/pkg/config"
)

// Identity is the result of authenticating a request. Authentication
// failures are represented as data, never as panics or Go errors: a missing
// or malformed token yields Authenticated=false with a bounded message.
type Identity struct {
	Authenticated bool   `json:"authenticated"`
	UserID        string `json:"userId,omitempty"`
	Error         string `json:"error,omitempty"`
}

// Authenticator resolves a bearer token to an Identity.
type Authenticator interface {
	Authenticate(token string) Identity
}

// New builds an Authenticator from config. The config is assumed to have
// passed validation, so verify mode always has a signing key.
func New(cfg *config.AuthConfig) (Authenticator, error) {
	switch cfg.Mode {
	case config.AuthModeTrust:
		return &TrustAuthenticator{ClaimsPath: cfg.ClaimsPath}, nil
	case config.AuthModeVerify:
		if cfg.SigningKey == "" {
			return nil, fmt.Errorf("verify mode requires a signing key")
		}
		return &VerifyAuthenticator{ClaimsPath: cfg.ClaimsPath, SigningKey: []byte(cfg.SigningKey)}, nil
	default:
		return nil, fmt.Errorf("unknown auth mode '%s'", cfg.Mode)
	}
}

// TrustAuthenticator decodes the JWT payload and extracts the user id
// without verifying the signature.
type TrustAuthenticator struct {
	// ClaimsPath is a dotted path into the payload naming the user id
	// claim, e.g. "sub" or "user.id".
	ClaimsPath string
}

func (a *TrustAuthenticator) Authenticate(token string) Identity {
	if token == "" {
		return Identity{Error: "missing token"}
	}
	payload, err := decodePayload(token)
	if err != nil {
		return Identity{Error: err.Error()}
	}
	return identityFromPayload(payload, a.ClaimsPath)
}

// VerifyAuthenticator requires an HS256 signature over header.payload
// computed with SigningKey.
type VerifyAuthenticator struct {
	ClaimsPath string
	SigningKey []byte
}

func (a *VerifyAuthenticator) Authenticate(token string) Identity {
	if token == "" {
		return Identity{Error: "missing token"}
	}
	// jwx enforces the algorithm: a token signed with anything other than
	// HS256 fails the key match, including alg=none.
	if _, err := jwt.Parse([]byte(token),
		jwt.WithKey(jwa.HS256, a.SigningKey),
		jwt.WithValidate(true),
	); err != nil {
		return Identity{Error: "invalid token: signature verification failed"}
	}

	payload, err := decodePayload(token)
	if err != nil {
		return Identity{Error: err.Error()}
	}
	return identityFromPayload(payload, a.ClaimsPath)
}

// decodePayload returns the decoded JSON payload of a compact JWT.
func decodePayload(token string) ([]byte, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("malformed token: expected 3 segments, got %d", len(parts))
	}
	payload, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(parts[1], "="))
	if err != nil {
		return nil, fmt.Errorf("malformed token: payload is not base64url")
	}
	if !gjson.ValidBytes(payload) {
		return nil, fmt.Errorf("malformed token: payload is not JSON")
	}
	return payload, nil
}

// identityFromPayload walks the dotted claims path into the payload.
// The path is data-driven configuration, never evaluated code.
func identityFromPayload(payload []byte, claimsPath string) Identity {
	if claimsPath == "" {
		claimsPath = "sub"
	}
	claim := gjson.GetBytes(payload, claimsPath)
	if !claim.Exists() || claim.String() == "" {
		return Identity{Error: fmt.Sprintf("claim '%s' not found in token", claimsPath)}
	}
	return Identity{Authenticated: true, UserID: claim.String()}
}
