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

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"reflect"
	"regexp"
	"strings"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR} and ${VAR:-default}.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// Load reads a config file (YAML or JSON), expands environment variables,
// decodes it, and runs the defaults/validation pipeline.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse processes raw config bytes. JSON input is accepted because YAML 1.2
// is a superset of JSON.
func Parse(data []byte) (*Config, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	expanded := expandEnv(raw)

	cfg := &Config{}
	if err := decode(expanded, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	return Process(cfg)
}

// Default returns a processed config with every default applied.
func Default() *Config {
	cfg, err := Process(&Config{})
	if err != nil {
		// All-defaults config always validates.
		panic(err)
	}
	return cfg
}

func decode(raw any, cfg *Config) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:     cfg,
		TagName:    "mapstructure",
		DecodeHook: allowlistHook,
	})
	if err != nil {
		return err
	}
	return dec.Decode(raw)
}

// allowlistHook decodes the '*'-or-list form of toolAllowlist.
func allowlistHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if to != reflect.TypeOf(ToolAllowlist{}) {
		return data, nil
	}
	var a ToolAllowlist
	if err := a.FromAny(data); err != nil {
		return nil, err
	}
	return a, nil
}

// expandEnv walks the parsed config tree replacing ${VAR} references in
// string values. Unset variables without a default expand to "".
func expandEnv(v any) any {
	switch val := v.(type) {
	case string:
		return expandEnvString(val)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = expandEnv(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = expandEnv(item)
		}
		return out
	default:
		return v
	}
}

func expandEnvString(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if v, ok := os.LookupEnv(groups[1]); ok {
			return v
		}
		return groups[3]
	})
}

// MergeSection merges a JSON object onto one section of cfg, returning a
// new Config. Used by the admin overlay; recognized sections mirror the
// admin API: model, hitl, permissions, conversation.
func MergeSection(cfg *Config, section string, body map[string]any) (*Config, error) {
	next := *cfg // sections are values, so this is a deep-enough copy

	switch section {
	case "model":
		if v, ok := body["defaultModel"].(string); ok {
			next.DefaultModel = v
		}
	case "hitl":
		if v, ok := body["defaultHitlLevel"].(string); ok {
			if !ValidHitlLevel(v) {
				return nil, fmt.Errorf("defaultHitlLevel '%s' is not a valid HITL level", v)
			}
			next.DefaultHitlLevel = v
		}
	case "permissions":
		if v, ok := body["allowUserModelSelect"].(bool); ok {
			next.AllowUserModelSelect = v
		}
		if v, ok := body["allowUserHitlConfig"].(bool); ok {
			next.AllowUserHitlConfig = v
		}
	case "conversation":
		if v, ok := body["window"]; ok {
			w, err := asInt(v)
			if err != nil || w < 1 {
				return nil, fmt.Errorf("conversation.window must be a positive integer")
			}
			next.Conversation.Window = w
		}
	default:
		return nil, fmt.Errorf("unknown config section '%s'", section)
	}

	return &next, nil
}

func asInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case float64:
		if n != float64(int(n)) {
			return 0, fmt.Errorf("not an integer")
		}
		return int(n), nil
	case json.Number:
		i, err := n.Int64()
		return int(i), err
	default:
		return 0, fmt.Errorf("not an integer")
	}
}
