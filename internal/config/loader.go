package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load reads configuration from the specified file path. It supports YAML
// files, performs environment variable substitution, and falls back to the
// KNACK_APP_ID / KNACK_API_KEY environment variables (including values
// loaded from a .env file) for credentials left blank in the file.
//
// A missing config file is not an error: the defaults carry the full field
// maps, so credentials from the environment are enough to run.
func Load(configPath string) (*Config, error) {
	loadDotEnv()

	cfg := DefaultConfig()

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v := viper.New()
			v.SetConfigFile(configPath)
			v.SetConfigType("yaml")

			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			if err := v.Unmarshal(cfg); err != nil {
				return nil, fmt.Errorf("failed to unmarshal config: %w", err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
	}

	substituteEnvVars(cfg)
	applyCredentialEnv(cfg)

	return cfg, nil
}

// LoadFromViper creates a Config from an existing Viper instance.
// Useful for testing or when Viper is configured externally.
func LoadFromViper(v *viper.Viper) (*Config, error) {
	cfg := DefaultConfig()

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	substituteEnvVars(cfg)
	applyCredentialEnv(cfg)

	return cfg, nil
}

// loadDotEnv loads .env from the working directory and next to the binary,
// without overriding variables already set in the environment.
func loadDotEnv() {
	_ = godotenv.Load()

	if exe, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(exe), ".env")
		if _, err := os.Stat(candidate); err == nil {
			_ = godotenv.Load(candidate)
		}
	}
}

// envVarPattern matches ${VAR_NAME} or $VAR_NAME patterns
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// substituteEnvVars replaces ${VAR_NAME} patterns with environment
// variable values in the fields where secrets typically live.
func substituteEnvVars(cfg *Config) {
	cfg.API.AppID = expandEnvVar(cfg.API.AppID)
	cfg.API.APIKey = expandEnvVar(cfg.API.APIKey)
	cfg.API.BaseURL = expandEnvVar(cfg.API.BaseURL)
	cfg.Archive.OutputDir = expandEnvVar(cfg.Archive.OutputDir)
	cfg.Logging.Output = expandEnvVar(cfg.Logging.Output)
}

// applyCredentialEnv fills blank credentials from the environment.
func applyCredentialEnv(cfg *Config) {
	if cfg.API.AppID == "" {
		cfg.API.AppID = os.Getenv("KNACK_APP_ID")
	}
	if cfg.API.APIKey == "" {
		cfg.API.APIKey = os.Getenv("KNACK_API_KEY")
	}
}

// expandEnvVar expands environment variables in the format ${VAR} or $VAR.
func expandEnvVar(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		var varName string
		if strings.HasPrefix(match, "${") {
			varName = match[2 : len(match)-1]
		} else {
			varName = match[1:]
		}

		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		// Return original if env var not found
		return match
	})
}

// ApplyOverrides applies CLI flag overrides to the configuration.
// Only non-zero/non-empty values are applied.
func (c *Config) ApplyOverrides(logLevel, logFormat string, pageSize int, ratePerSecond float64, keepPolicy string) {
	if logLevel != "" {
		c.Logging.Level = logLevel
	}
	if logFormat != "" {
		c.Logging.Format = logFormat
	}
	if pageSize > 0 {
		c.Processing.PageSize = pageSize
	}
	if ratePerSecond > 0 {
		c.Processing.RatePerSecond = ratePerSecond
	}
	if keepPolicy != "" {
		c.Processing.KeepPolicy = keepPolicy
	}
}
