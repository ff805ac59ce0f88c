// Package config handles configuration loading for maestro. It supports
// XDG config paths, environment variables, and built-in defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for maestro.
type Config struct {
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	Store     StoreConfig     `mapstructure:"store"`
	Roster    RosterConfig    `mapstructure:"roster"`
	Execution ExecutionConfig `mapstructure:"execution"`
}

// AnthropicConfig holds completion-service settings.
type AnthropicConfig struct {
	// APIKey is the Anthropic API key.
	APIKey string `mapstructure:"api_key"`
	// Model is the model name used for classification and synthesis.
	Model string `mapstructure:"model"`
	// UseAWSBedrock routes completion calls through AWS Bedrock.
	UseAWSBedrock bool `mapstructure:"use_aws_bedrock"`
	// AWSRegion is the AWS region for Bedrock.
	AWSRegion string `mapstructure:"aws_region"`
	// AWSProfile is the optional AWS profile name.
	AWSProfile string `mapstructure:"aws_profile"`
}

// StoreConfig holds state-store settings.
type StoreConfig struct {
	// Path is the SQLite database path. Empty uses the XDG default.
	Path string `mapstructure:"path"`
}

// RosterConfig holds agent roster settings.
type RosterConfig struct {
	// Path is an optional YAML roster file. Empty uses the built-in
	// roster.
	Path string `mapstructure:"path"`
	// Watch reloads the roster when the file changes.
	Watch bool `mapstructure:"watch"`
}

// ExecutionConfig holds engine tuning.
type ExecutionConfig struct {
	// MaxRetries is the number of extra attempts after a transient
	// subtask failure.
	MaxRetries int `mapstructure:"max_retries"`
	// Backoff is the fixed delay between attempts.
	Backoff time.Duration `mapstructure:"backoff"`
	// SubtaskTimeout bounds one invocation attempt.
	SubtaskTimeout time.Duration `mapstructure:"subtask_timeout"`
	// DebugLog is an optional path for the orchestrator debug log.
	DebugLog string `mapstructure:"debug_log"`
}

// Load loads configuration with precedence (highest to lowest):
// environment variables, user config (~/.config/maestro/config.yaml),
// built-in defaults.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir())

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	v.AutomaticEnv()
	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")
	v.BindEnv("anthropic.model", "MAESTRO_MODEL")
	v.BindEnv("store.path", "MAESTRO_DB_PATH")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)
	return cfg, nil
}

// LoadFromPath loads configuration from a specific file (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)
	return cfg, nil
}

// setDefaults registers built-in defaults.
func setDefaults(v *viper.Viper) {
	v.SetDefault("anthropic.model", "")
	v.SetDefault("store.path", "")
	v.SetDefault("roster.path", "")
	v.SetDefault("roster.watch", false)
	v.SetDefault("execution.max_retries", 2)
	v.SetDefault("execution.backoff", 2*time.Second)
	v.SetDefault("execution.subtask_timeout", 2*time.Minute)
	v.SetDefault("execution.debug_log", "")
}

// userConfigDir returns the XDG config directory for maestro.
func userConfigDir() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, _ := os.UserHomeDir()
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "maestro")
}
