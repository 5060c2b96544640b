// Copyright (c) 2026 John Earle
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

	"gopkg.in/yaml.v3"
)

// OAuthProviderConfig holds the app registration for one OAuth provider.
type OAuthProviderConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURL  string `yaml:"redirect_url"`
}

// Enabled reports whether the provider has a usable registration.
func (c OAuthProviderConfig) Enabled() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// Config holds all configuration for the inbox service.
type Config struct {
	Google    OAuthProviderConfig
	Microsoft OAuthProviderConfig

	// EncryptionSecret keys the credential cipher. Required in
	// production; development falls back to an ephemeral key.
	EncryptionSecret string

	// DatabaseURL and RedisURL are optional; when empty the in-memory
	// stores are used.
	DatabaseURL string
	RedisURL    string

	Environment string
	Port        int
}

// Production reports whether the service runs with production hardening.
func (c *Config) Production() bool {
	return c.Environment == "production"
}

// rawConfig mirrors the YAML structure for unmarshalling.
type rawConfig struct {
	Providers struct {
		Google    OAuthProviderConfig `yaml:"google"`
		Microsoft OAuthProviderConfig `yaml:"microsoft"`
	} `yaml:"providers"`
	Encryption struct {
		Secret string `yaml:"secret"`
	} `yaml:"encryption"`
	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`
	Redis struct {
		URL string `yaml:"url"`
	} `yaml:"redis"`
}

// Load reads configuration from config.yaml (with env var expansion) and
// environment variables for non-YAML settings. A missing config file is
// not fatal; everything can come from the environment.
func Load() (*Config, error) {
	configPath := envOrDefault("CONFIG_PATH", "/app/config/config.yaml")

	var raw rawConfig
	if data, err := os.ReadFile(configPath); err == nil {
		// Expand ${VAR} references in the YAML
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
			return nil, fmt.Errorf("parse config YAML: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config file %s: %w", configPath, err)
	}

	cfg := &Config{
		Google:           raw.Providers.Google,
		Microsoft:        raw.Providers.Microsoft,
		EncryptionSecret: firstNonEmpty(raw.Encryption.Secret, os.Getenv("ENCRYPTION_SECRET")),
		DatabaseURL:      firstNonEmpty(raw.Database.URL, os.Getenv("DATABASE_URL")),
		RedisURL:         firstNonEmpty(raw.Redis.URL, os.Getenv("REDIS_URL")),
		Environment:      envOrDefault("ENVIRONMENT", "development"),
		Port:             envOrDefaultInt("PORT", 8080),
	}

	if cfg.Google.ClientID == "" {
		cfg.Google.ClientID = os.Getenv("GOOGLE_CLIENT_ID")
		cfg.Google.ClientSecret = os.Getenv("GOOGLE_CLIENT_SECRET")
		cfg.Google.RedirectURL = os.Getenv("GOOGLE_REDIRECT_URL")
	}
	if cfg.Microsoft.ClientID == "" {
		cfg.Microsoft.ClientID = os.Getenv("MICROSOFT_CLIENT_ID")
		cfg.Microsoft.ClientSecret = os.Getenv("MICROSOFT_CLIENT_SECRET")
		cfg.Microsoft.RedirectURL = os.Getenv("MICROSOFT_REDIRECT_URL")
	}

	if cfg.Production() && cfg.EncryptionSecret == "" {
		return nil, fmt.Errorf("ENCRYPTION_SECRET is required in production")
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

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
