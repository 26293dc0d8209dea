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
	"fmt"
	"sort"
	"strings"
)

// evalSchema checks a tool result against a schema verifier's spec:
// every name in required must be present (block otherwise), and each
// property declared in properties must have the stated JSON type (warn
// otherwise). A missing required key wins over a type mismatch.
func evalSchema(spec map[string]any, result map[string]any) (Outcome, string) {
	var missing []string
	for _, name := range toStringSlice(spec["required"]) {
		if _, ok := result[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return OutcomeBlock, fmt.Sprintf("missing required keys: %s", strings.Join(missing, ", "))
	}

	properties, _ := spec["properties"].(map[string]any)
	var mismatched []string
	for name, decl := range properties {
		value, ok := result[name]
		if !ok {
			continue
		}
		want := declaredType(decl)
		if want == "" {
			continue
		}
		if got := jsonTypeOf(value); got != want {
			mismatched = append(mismatched, fmt.Sprintf("%s (want %s, got %s)", name, want, got))
		}
	}
	if len(mismatched) > 0 {
		sort.Strings(mismatched)
		return OutcomeWarn, fmt.Sprintf("type mismatch: %s", strings.Join(mismatched, "; "))
	}
	return OutcomePass, ""
}

// declaredType accepts both a bare type name and a nested {"type": ...}
// declaration.
func declaredType(decl any) string {
	switch d := decl.(type) {
	case string:
		return d
	case map[string]any:
		if t, ok := d["type"].(string); ok {
			return t
		}
	}
	return ""
}

func jsonTypeOf(value any) string {
	switch value.(type) {
	case string:
		return "string"
	case float64, int, int64:
		return "number"
	case bool:
		return "boolean"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case nil:
		return "null"
	default:
		return "unknown"
	}
}

func toStringSlice(v any) []string {
	switch vv := v.(type) {
	case []string:
		return vv
	case []any:
		out := make([]string, 0, len(vv))
		for _, item := range vv {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
