package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"questpulse/internal/trigger"
)

// LocalConfig holds configuration for local daemon mode
type LocalConfig struct {
	Daemon    DaemonConfig      `yaml:"daemon"`
	Assistant AssistantConfig   `yaml:"assistant"`
	Monitor   MonitorConfig     `yaml:"monitor"`
	Triggers  []trigger.Trigger `yaml:"triggers,omitempty"`
}

// DaemonConfig holds daemon server settings
type DaemonConfig struct {
	Port     int    `yaml:"port"`
	Bind     string `yaml:"bind"`
	LogLevel string `yaml:"log_level"`
}

// AssistantConfig holds AI provider settings
type AssistantConfig struct {
	DefaultProvider string                     `yaml:"default_provider"`
	Providers       map[string]*ProviderConfig `yaml:"providers"`
}

// ProviderConfig holds settings for a single AI provider
type ProviderConfig struct {
	Enabled bool   `yaml:"enabled"`
	Model   string `yaml:"model"`
	APIKey  string `yaml:"-"` // Loaded from secrets.yaml
}

// MonitorConfig holds health monitoring settings
type MonitorConfig struct {
	CheckIntervalSeconds int `yaml:"check_interval_seconds"`
}

// SecretsConfig holds API keys loaded from secrets.yaml
type SecretsConfig struct {
	Providers map[string]struct {
		APIKey string `yaml:"api_key"`
	} `yaml:"providers"`
}

// Dir returns the path to ~/.questpulse
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".questpulse"), nil
}

// EnsureDir creates ~/.questpulse and subdirectories if they don't exist
func EnsureDir() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}

	subdirs := []string{
		"",
		"logs",
		"data",
	}

	for _, subdir := range subdirs {
		path := filepath.Join(dir, subdir)
		if err := os.MkdirAll(path, 0755); err != nil {
			return "", fmt.Errorf("create dir %s: %w", path, err)
		}
	}

	return dir, nil
}

// DefaultLocalConfig returns sensible defaults for local mode
func DefaultLocalConfig() *LocalConfig {
	return &LocalConfig{
		Daemon: DaemonConfig{
			Port:     7433,
			Bind:     "127.0.0.1",
			LogLevel: "info",
		},
		Assistant: AssistantConfig{
			DefaultProvider: "scripted",
			Providers: map[string]*ProviderConfig{
				"claude": {
					Enabled: false,
					Model:   "claude-sonnet-4-20250514",
				},
				"scripted": {
					Enabled: true,
				},
			},
		},
		Monitor: MonitorConfig{
			CheckIntervalSeconds: 300,
		},
	}
}

// LoadLocalConfig loads configuration from ~/.questpulse/config.yaml
func LoadLocalConfig() (*LocalConfig, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}

	configPath := filepath.Join(dir, "config.yaml")

	// If config doesn't exist, return defaults
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return DefaultLocalConfig(), nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultLocalConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// Load secrets (API keys)
	if err := loadSecrets(dir, cfg); err != nil {
		return nil, fmt.Errorf("load secrets: %w", err)
	}

	return cfg, nil
}

// EffectiveTriggers returns the trigger set with config overrides merged
// over the shipped defaults.
func (c *LocalConfig) EffectiveTriggers() []trigger.Trigger {
	return trigger.Merge(trigger.Defaults(), c.Triggers)
}

// loadSecrets loads API keys from secrets.yaml
func loadSecrets(dir string, cfg *LocalConfig) error {
	secretsPath := filepath.Join(dir, "secrets.yaml")

	// If secrets file doesn't exist, skip
	if _, err := os.Stat(secretsPath); os.IsNotExist(err) {
		return nil
	}

	data, err := os.ReadFile(secretsPath)
	if err != nil {
		return fmt.Errorf("read secrets: %w", err)
	}

	var secrets SecretsConfig
	if err := yaml.Unmarshal(data, &secrets); err != nil {
		return fmt.Errorf("parse secrets: %w", err)
	}

	// Apply secrets to config
	for name, secret := range secrets.Providers {
		if provider, ok := cfg.Assistant.Providers[name]; ok {
			provider.APIKey = secret.APIKey
		}
	}

	return nil
}

// SaveLocalConfig saves configuration to ~/.questpulse/config.yaml
func SaveLocalConfig(cfg *LocalConfig) error {
	dir, err := EnsureDir()
	if err != nil {
		return err
	}

	configPath := filepath.Join(dir, "config.yaml")

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}

// SaveSecrets saves API keys to ~/.questpulse/secrets.yaml
func SaveSecrets(secrets map[string]string) error {
	dir, err := EnsureDir()
	if err != nil {
		return err
	}

	secretsPath := filepath.Join(dir, "secrets.yaml")

	secretsCfg := SecretsConfig{
		Providers: make(map[string]struct {
			APIKey string `yaml:"api_key"`
		}),
	}

	for name, key := range secrets {
		secretsCfg.Providers[name] = struct {
			APIKey string `yaml:"api_key"`
		}{APIKey: key}
	}

	data, err := yaml.Marshal(secretsCfg)
	if err != nil {
		return fmt.Errorf("marshal secrets: %w", err)
	}

	// Write with restricted permissions (owner read/write only)
	if err := os.WriteFile(secretsPath, data, 0600); err != nil {
		return fmt.Errorf("write secrets: %w", err)
	}

	return nil
}
