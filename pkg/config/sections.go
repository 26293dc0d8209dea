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
	"fmt"
	"runtime"
)

// Auth modes.
const (
	// AuthModeTrust decodes the JWT envelope without checking the signature.
	// Intended for deployments behind a gateway that already verified it.
	AuthModeTrust = "trust"

	// AuthModeVerify recomputes the HS256 MAC with the configured key.
	AuthModeVerify = "verify"
)

// AuthConfig configures end-user authentication.
//
// Example:
//
//	auth:
//	  mode: verify
//	  signingKey: ${FORGE_SIGNING_KEY}
//	  claimsPath: user.id
type AuthConfig struct {
	// Mode is "trust" or "verify".
	Mode string `yaml:"mode,omitempty" mapstructure:"mode"`

	// SigningKey is the HS256 key. Required for verify mode.
	SigningKey string `yaml:"signingKey,omitempty" mapstructure:"signingKey"`

	// ClaimsPath is a dotted path into the JWT payload naming the user id.
	ClaimsPath string `yaml:"claimsPath,omitempty" mapstructure:"claimsPath"`
}

func (c *AuthConfig) SetDefaults() {
	if c.Mode == "" {
		c.Mode = AuthModeTrust
	}
	if c.ClaimsPath == "" {
		c.ClaimsPath = "sub"
	}
}

func (c *AuthConfig) Validate() error {
	if c.Mode != AuthModeTrust && c.Mode != AuthModeVerify {
		return fmt.Errorf("auth.mode '%s' must be 'trust' or 'verify'", c.Mode)
	}
	if c.Mode == AuthModeVerify && c.SigningKey == "" {
		return fmt.Errorf("auth.signingKey is required when auth.mode is 'verify'")
	}
	return nil
}

// SidecarConfig controls the HTTP listener.
type SidecarConfig struct {
	Enabled bool `yaml:"enabled,omitempty" mapstructure:"enabled"`
	Port    int  `yaml:"port,omitempty" mapstructure:"port"`
}

func (c *SidecarConfig) SetDefaults() {
	if c.Port == 0 {
		c.Port = 8799
	}
}

func (c *SidecarConfig) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("sidecar.port %d must be in [1, 65535]", c.Port)
	}
	return nil
}

// Database backends for the registry database (agents, tools, verifiers,
// prompt versions, preferences).
const (
	DatabaseSQLite   = "sqlite"
	DatabasePostgres = "postgres"
)

// DatabaseConfig configures the registry database.
type DatabaseConfig struct {
	// Type is "sqlite" or "postgres".
	Type string `yaml:"type,omitempty" mapstructure:"type"`

	// URL is a file path for sqlite or a connection string for postgres.
	URL string `yaml:"url,omitempty" mapstructure:"url"`
}

func (c *DatabaseConfig) SetDefaults() {
	if c.Type == "" {
		c.Type = DatabaseSQLite
	}
	if c.Type == DatabaseSQLite && c.URL == "" {
		c.URL = "forge.db"
	}
}

func (c *DatabaseConfig) Validate() error {
	switch c.Type {
	case DatabaseSQLite, DatabasePostgres:
	default:
		return fmt.Errorf("database.type '%s' must be 'sqlite' or 'postgres'", c.Type)
	}
	if c.Type == DatabasePostgres && c.URL == "" {
		return fmt.Errorf("database.url is required for postgres")
	}
	return nil
}

// Conversation store backends.
const (
	ConversationSQLite   = "sqlite"
	ConversationPostgres = "postgres"
	ConversationRedis    = "redis"
)

// RedisConfig configures a Redis connection for the conversation store.
type RedisConfig struct {
	URL        string `yaml:"url,omitempty" mapstructure:"url"`
	TTLSeconds int    `yaml:"ttlSeconds,omitempty" mapstructure:"ttlSeconds"`
}

// ConversationConfig configures transcript persistence.
type ConversationConfig struct {
	// Store is "sqlite", "postgres", or "redis".
	Store string `yaml:"store,omitempty" mapstructure:"store"`

	// Window is how many most-recent turns feed the LLM context.
	Window int `yaml:"window,omitempty" mapstructure:"window"`

	// URL overrides the registry database URL for SQL-backed stores.
	URL string `yaml:"url,omitempty" mapstructure:"url"`

	Redis RedisConfig `yaml:"redis,omitempty" mapstructure:"redis"`
}

func (c *ConversationConfig) SetDefaults() {
	if c.Store == "" {
		c.Store = ConversationSQLite
	}
	if c.Window == 0 {
		c.Window = 50
	}
	if c.Store == ConversationRedis {
		if c.Redis.URL == "" {
			c.Redis.URL = "redis://localhost:6379"
		}
		if c.Redis.TTLSeconds == 0 {
			c.Redis.TTLSeconds = 7 * 24 * 3600
		}
	}
}

func (c *ConversationConfig) Validate() error {
	switch c.Store {
	case ConversationSQLite, ConversationPostgres, ConversationRedis:
	default:
		return fmt.Errorf("conversation.store '%s' must be 'sqlite', 'postgres', or 'redis'", c.Store)
	}
	if c.Window < 1 {
		return fmt.Errorf("conversation.window %d must be a positive integer", c.Window)
	}
	if c.Store == ConversationRedis && c.Redis.TTLSeconds < 1 {
		return fmt.Errorf("conversation.redis.ttlSeconds %d must be a positive integer", c.Redis.TTLSeconds)
	}
	return nil
}

// RateLimitConfig configures the per-user, per-route fixed window limiter.
type RateLimitConfig struct {
	Enabled     bool `yaml:"enabled,omitempty" mapstructure:"enabled"`
	WindowMs    int  `yaml:"windowMs,omitempty" mapstructure:"windowMs"`
	MaxRequests int  `yaml:"maxRequests,omitempty" mapstructure:"maxRequests"`

	// RedisURL switches the counter store to Redis when set, making the
	// limiter cluster-wide. Empty means per-process in-memory counters.
	RedisURL string `yaml:"redisUrl,omitempty" mapstructure:"redisUrl"`
}

func (c *RateLimitConfig) SetDefaults() {
	if c.WindowMs == 0 {
		c.WindowMs = 60_000
	}
	if c.MaxRequests == 0 {
		c.MaxRequests = 60
	}
}

func (c *RateLimitConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.WindowMs < 1 {
		return fmt.Errorf("rateLimit.windowMs %d must be a positive integer", c.WindowMs)
	}
	if c.MaxRequests < 1 {
		return fmt.Errorf("rateLimit.maxRequests %d must be a positive integer", c.MaxRequests)
	}
	return nil
}

// VerificationConfig configures the verifier pipeline and its sandbox.
type VerificationConfig struct {
	// Sandbox enables out-of-process execution of custom verifiers.
	// When false custom verifiers degrade per role without executing.
	Sandbox bool `yaml:"sandbox,omitempty" mapstructure:"sandbox"`

	// WorkerPoolSize is the number of sandbox workers.
	// nil means min(4, GOMAXPROCS).
	WorkerPoolSize *int `yaml:"workerPoolSize,omitempty" mapstructure:"workerPoolSize"`

	// CustomTimeout bounds a single custom verifier call, in milliseconds.
	CustomTimeout int `yaml:"customTimeout,omitempty" mapstructure:"customTimeout"`

	// MaxQueueDepth bounds pending sandbox submissions.
	MaxQueueDepth int `yaml:"maxQueueDepth,omitempty" mapstructure:"maxQueueDepth"`

	// WorkerStartTimeoutMs bounds worker process startup.
	WorkerStartTimeoutMs int `yaml:"workerStartTimeoutMs,omitempty" mapstructure:"workerStartTimeoutMs"`
}

func (c *VerificationConfig) SetDefaults() {
	if c.CustomTimeout == 0 {
		c.CustomTimeout = 2000
	}
	if c.MaxQueueDepth == 0 {
		c.MaxQueueDepth = 64
	}
	if c.WorkerStartTimeoutMs == 0 {
		c.WorkerStartTimeoutMs = 5000
	}
}

func (c *VerificationConfig) Validate() error {
	if c.WorkerPoolSize != nil && *c.WorkerPoolSize < 1 {
		return fmt.Errorf("verification.workerPoolSize %d must be null or a positive integer", *c.WorkerPoolSize)
	}
	if c.CustomTimeout < 1 {
		return fmt.Errorf("verification.customTimeout %d must be a positive integer", c.CustomTimeout)
	}
	if c.MaxQueueDepth < 1 {
		return fmt.Errorf("verification.maxQueueDepth %d must be a positive integer", c.MaxQueueDepth)
	}
	return nil
}

// PoolSize resolves the effective worker pool size.
func (c *VerificationConfig) PoolSize() int {
	if c.WorkerPoolSize != nil {
		return *c.WorkerPoolSize
	}
	n := runtime.NumCPU()
	if n > 4 {
		n = 4
	}
	if n < 1 {
		n = 1
	}
	return n
}

// LoggingConfig configures the slog logger.
type LoggingConfig struct {
	Level  string `yaml:"level,omitempty" mapstructure:"level"`
	Format string `yaml:"format,omitempty" mapstructure:"format"`
}

func (c *LoggingConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "text"
	}
}

// MetricsConfig controls the /metrics endpoint.
type MetricsConfig struct {
	Enabled *bool `yaml:"enabled,omitempty" mapstructure:"enabled"`
}

func (c *MetricsConfig) SetDefaults() {
	if c.Enabled == nil {
		c.Enabled = BoolPtr(true)
	}
}

// IsEnabled reports whether metrics are exposed.
func (c *MetricsConfig) IsEnabled() bool {
	return c != nil && c.Enabled != nil && *c.Enabled
}

// LLMConfig carries provider endpoint overrides, mainly for tests and
// proxied deployments.
type LLMConfig struct {
	AnthropicBaseURL string `yaml:"anthropicBaseUrl,omitempty" mapstructure:"anthropicBaseUrl"`
	OpenAIBaseURL    string `yaml:"openaiBaseUrl,omitempty" mapstructure:"openaiBaseUrl"`
	DeepseekBaseURL  string `yaml:"deepseekBaseUrl,omitempty" mapstructure:"deepseekBaseUrl"`
	GeminiBaseURL    string `yaml:"geminiBaseUrl,omitempty" mapstructure:"geminiBaseUrl"`

	// TimeoutSeconds bounds a single provider call. Zero keeps the
	// provider SDK default.
	TimeoutSeconds int `yaml:"timeoutSeconds,omitempty" mapstructure:"timeoutSeconds"`
}

func (c *LLMConfig) SetDefaults() {
	if c.DeepseekBaseURL == "" {
		c.DeepseekBaseURL = "https://api.deepseek.com"
	}
}
