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

// Package config defines the sidecar configuration model.
//
// Each section is a struct with SetDefaults and Validate methods. The
// loader runs every config through a single pipeline: decode, defaults,
// validation. Handlers never see a half-validated config.
package config

import (
	"fmt"
)

// HITL sensitivity levels, ordered from least to most restrictive.
const (
	HitlAutonomous = "autonomous"
	HitlCautious   = "cautious"
	HitlStandard   = "standard"
	HitlParanoid   = "paranoid"
)

// ValidHitlLevel reports whether level is one of the recognized
// HITL sensitivity levels.
func ValidHitlLevel(level string) bool {
	switch level {
	case HitlAutonomous, HitlCautious, HitlStandard, HitlParanoid:
		return true
	}
	return false
}

// Config is the root configuration for the sidecar.
type Config struct {
	Auth         AuthConfig         `yaml:"auth,omitempty" mapstructure:"auth"`
	Sidecar      SidecarConfig      `yaml:"sidecar,omitempty" mapstructure:"sidecar"`
	Database     DatabaseConfig     `yaml:"database,omitempty" mapstructure:"database"`
	Conversation ConversationConfig `yaml:"conversation,omitempty" mapstructure:"conversation"`
	RateLimit    RateLimitConfig    `yaml:"rateLimit,omitempty" mapstructure:"rateLimit"`
	Verification VerificationConfig `yaml:"verification,omitempty" mapstructure:"verification"`
	Logging      LoggingConfig      `yaml:"logging,omitempty" mapstructure:"logging"`
	Metrics      MetricsConfig      `yaml:"metrics,omitempty" mapstructure:"metrics"`
	LLM          LLMConfig          `yaml:"llm,omitempty" mapstructure:"llm"`
	Agents       []AgentSeed        `yaml:"agents,omitempty" mapstructure:"agents"`

	// DefaultModel is used when neither agent nor user preferences pick one.
	DefaultModel string `yaml:"defaultModel,omitempty" mapstructure:"defaultModel"`

	// DefaultHitlLevel is the base HITL sensitivity.
	DefaultHitlLevel string `yaml:"defaultHitlLevel,omitempty" mapstructure:"defaultHitlLevel"`

	// AllowUserModelSelect permits end users to override the model.
	AllowUserModelSelect bool `yaml:"allowUserModelSelect,omitempty" mapstructure:"allowUserModelSelect"`

	// AllowUserHitlConfig permits end users to override the HITL level.
	AllowUserHitlConfig bool `yaml:"allowUserHitlConfig,omitempty" mapstructure:"allowUserHitlConfig"`

	// AdminKey is the shared secret for /forge-admin routes.
	// Empty means the admin surface is disabled.
	AdminKey string `yaml:"adminKey,omitempty" mapstructure:"adminKey"`

	// SystemPrompt is the configured fallback system prompt. It sits below
	// agent prompts and the active prompt version in the resolution chain.
	SystemPrompt string `yaml:"systemPrompt,omitempty" mapstructure:"systemPrompt"`
}

// SetDefaults applies defaults to every section.
func (c *Config) SetDefaults() {
	c.Auth.SetDefaults()
	c.Sidecar.SetDefaults()
	c.Database.SetDefaults()
	c.Conversation.SetDefaults()
	c.RateLimit.SetDefaults()
	c.Verification.SetDefaults()
	c.Logging.SetDefaults()
	c.Metrics.SetDefaults()
	c.LLM.SetDefaults()

	if c.DefaultModel == "" {
		c.DefaultModel = "claude-sonnet-4-20250514"
	}
	if c.DefaultHitlLevel == "" {
		c.DefaultHitlLevel = HitlStandard
	}

	// A single seeded agent is the default agent without being marked.
	if len(c.Agents) == 1 && !c.Agents[0].IsDefault {
		c.Agents[0].IsDefault = true
	}
	for i := range c.Agents {
		c.Agents[i].SetDefaults()
	}
}

// Validate checks every section and cross-section constraints.
func (c *Config) Validate() error {
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	if err := c.Sidecar.Validate(); err != nil {
		return err
	}
	if err := c.Database.Validate(); err != nil {
		return err
	}
	if err := c.Conversation.Validate(); err != nil {
		return err
	}
	if err := c.RateLimit.Validate(); err != nil {
		return err
	}
	if err := c.Verification.Validate(); err != nil {
		return err
	}

	if !ValidHitlLevel(c.DefaultHitlLevel) {
		return fmt.Errorf("defaultHitlLevel '%s' is not one of autonomous, cautious, standard, paranoid", c.DefaultHitlLevel)
	}

	// Verify mode needs a signing key before the sidecar can accept traffic.
	if c.Sidecar.Enabled && c.Auth.Mode == AuthModeVerify && c.Auth.SigningKey == "" {
		return fmt.Errorf("auth.signingKey is required when sidecar is enabled and auth.mode is 'verify'")
	}

	defaults := 0
	seen := make(map[string]bool, len(c.Agents))
	for i := range c.Agents {
		if err := c.Agents[i].Validate(); err != nil {
			return fmt.Errorf("agents[%d]: %w", i, err)
		}
		if seen[c.Agents[i].ID] {
			return fmt.Errorf("agents[%d]: duplicate agent id '%s'", i, c.Agents[i].ID)
		}
		seen[c.Agents[i].ID] = true
		if c.Agents[i].IsDefault {
			defaults++
		}
	}
	if len(c.Agents) > 0 && defaults != 1 {
		return fmt.Errorf("exactly one agent must set isDefault, found %d", defaults)
	}

	return nil
}

// Process runs the full defaults-then-validation pipeline.
func Process(cfg *Config) (*Config, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// BoolPtr returns a pointer to b. Useful for optional config flags.
func BoolPtr(b bool) *bool { return &b }

// IntPtr returns a pointer to i.
func IntPtr(i int) *int { return &i }
