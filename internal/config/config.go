// Copyright (c) 2026 Mailfold Authors
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

// Package config loads configuration from config.yaml and environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ProviderConfig holds OAuth2 client credentials for one mail provider.
type ProviderConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

// AIConfig holds settings for the generative-text service.
type AIConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

// Config holds all configuration for the mailfold backend.
type Config struct {
	// Per-provider OAuth2 credentials, keyed by provider name
	// ("gmail", "outlook"). A provider with empty credentials is
	// treated as not configured.
	Providers map[string]ProviderConfig

	// OAuth redirect base — the frontend URL providers send users back to.
	RedirectBaseURL string

	DatabaseURL string
	RedisURL    string

	JWTSecret string

	AI AIConfig

	// Sync tuning
	SyncPageSize  int
	SyncLockTTL   time.Duration
	RemoteTimeout time.Duration
	SweepInterval time.Duration

	// Server
	Port int
}

// rawConfig mirrors the YAML structure for unmarshalling.
type rawConfig struct {
	Providers map[string]ProviderConfig `yaml:"providers"`
	Redirect  struct {
		BaseURL string `yaml:"base_url"`
	} `yaml:"redirect"`
	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`
	Redis struct {
		URL string `yaml:"url"`
	} `yaml:"redis"`
	Auth struct {
		JWTSecret string `yaml:"jwt_secret"`
	} `yaml:"auth"`
	AI AIConfig `yaml:"ai"`
}

// Load reads configuration from config.yaml (with env var expansion) and
// environment variables for non-YAML settings.
func Load() (*Config, error) {
	configPath := envOrDefault("CONFIG_PATH", "config.yaml")

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", configPath, err)
	}

	// Expand ${VAR} references in the YAML
	expanded := os.ExpandEnv(string(data))

	var raw rawConfig
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("parse config YAML: %w", err)
	}

	cfg := &Config{
		Providers:       make(map[string]ProviderConfig),
		RedirectBaseURL: firstNonEmpty(raw.Redirect.BaseURL, envOrDefault("REDIRECT_BASE_URL", "http://localhost:5173")),
		DatabaseURL:     firstNonEmpty(raw.Database.URL, envOrDefault("DATABASE_URL", "postgres://localhost:5432/mailfold")),
		RedisURL:        firstNonEmpty(raw.Redis.URL, envOrDefault("REDIS_URL", "redis://localhost:6379/0")),
		JWTSecret:       firstNonEmpty(raw.Auth.JWTSecret, os.Getenv("JWT_SECRET")),
		AI:              raw.AI,
		SyncPageSize:    envOrDefaultInt("SYNC_PAGE_SIZE", 50),
		SyncLockTTL:     envOrDefaultDuration("SYNC_LOCK_TTL", 2*time.Minute),
		RemoteTimeout:   envOrDefaultDuration("REMOTE_TIMEOUT", 30*time.Second),
		SweepInterval:   envOrDefaultDuration("SWEEP_INTERVAL", 5*time.Minute),
		Port:            envOrDefaultInt("PORT", 8080),
	}

	// Keep only providers with full credentials (commented out in YAML
	// otherwise).
	for name, pc := range raw.Providers {
		if pc.ClientID == "" || pc.ClientSecret == "" {
			continue
		}
		cfg.Providers[strings.ToLower(name)] = pc
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("auth.jwt_secret (or JWT_SECRET) is required")
	}

	if cfg.AI.Model == "" {
		cfg.AI.Model = "gemini-2.5-flash"
	}
	if cfg.AI.BaseURL == "" {
		cfg.AI.BaseURL = "https://generativelanguage.googleapis.com/v1beta"
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOrDefaultDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
