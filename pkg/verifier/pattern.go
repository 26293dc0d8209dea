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

package verifier

import (
	"encoding/json"
	"fmt"
	"regexp"
)

// evalPattern checks the textual form of a tool result against the
// optional match and reject regexes of a pattern verifier. The text is
// result.text when present, otherwise the JSON encoding of the whole
// result. A failed check yields the spec's outcome (default warn).
func evalPattern(spec map[string]any, result map[string]any) (Outcome, string, error) {
	text := stringify(result)

	outcome := OutcomeWarn
	if o, ok := spec["outcome"].(string); ok && ValidOutcome(o) {
		outcome = Outcome(o)
	}

	if pattern, ok := spec["match"].(string); ok && pattern != "" {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return "", "", fmt.Errorf("invalid match pattern: %w", err)
		}
		if !re.MatchString(text) {
			return outcome, fmt.Sprintf("result does not match required pattern %q", pattern), nil
		}
	}

	if pattern, ok := spec["reject"].(string); ok && pattern != "" {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return "", "", fmt.Errorf("invalid reject pattern: %w", err)
		}
		if re.MatchString(text) {
			return outcome, fmt.Sprintf("result matches rejected pattern %q", pattern), nil
		}
	}

	return OutcomePass, "", nil
}

func stringify(result map[string]any) string {
	if text, ok := result["text"].(string); ok {
		return text
	}
	encoded, err := json.Marshal(result)
	if err != nil {
		return fmt.Sprintf("%v", result)
	}
	return string(encoded)
}
