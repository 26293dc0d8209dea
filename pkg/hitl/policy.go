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

// Package hitl implements the human-in-the-loop pause/resume protocol.
//
// A pause captures the serialized loop state under a random one-shot
// token with a TTL. Resume atomically consumes the token, so a paused
// loop can be continued at most once, from any process instance sharing
// the pause store.
package hitl

import (
	"strings"

	"github.com/forgeworks/sidecar/pkg/config"
)

// mutatingMethods are the HTTP methods the standard level pauses on.
var mutatingMethods = map[string]bool{
	"POST":   true,
	"PUT":    true,
	"PATCH":  true,
	"DELETE": true,
}

// ShouldPause maps the user's HITL sensitivity to a pause decision for
// one tool call.
//
//	autonomous: never pause
//	cautious:   pause when the tool requires confirmation
//	standard:   pause on mutating HTTP methods or required confirmation
//	paranoid:   always pause
func ShouldPause(level string, requiresConfirmation bool, httpMethod string) bool {
	switch level {
	case config.HitlAutonomous:
		return false
	case config.HitlCautious:
		return requiresConfirmation
	case config.HitlParanoid:
		return true
	default:
		// standard, and the conservative fallback for unknown levels
		return requiresConfirmation || mutatingMethods[strings.ToUpper(httpMethod)]
	}
}
