package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/parcel/internal/installer"
)

var (
	envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)
	safeName      = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)
)

// Load reads, verifies and validates configuration from a file. A directory
// path is treated as the directory containing config.yaml.
func Load(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}
	if info.IsDir() {
		absPath = filepath.Join(absPath, "config.yaml")
		if _, err := os.Stat(absPath); err != nil {
			return nil, fmt.Errorf("directory provided but config.yaml not found: %s", absPath)
		}
	}

	cfg, err := loadConfigFile(absPath)
	if err != nil {
		return nil, err
	}
	cfg.SourcePath = absPath

	if err := verifyConfigHash(absPath); err != nil {
		return nil, err
	}

	cfg = applyConfigDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadConfigFile parses a single file after env interpolation. Defaults are
// not applied here.
func loadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	interpolated := interpolateEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(interpolated), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &cfg, nil
}

// verifyConfigHash enforces the .checksums manifest when one sits next to the
// config file. Without a manifest, verification is skipped.
func verifyConfigHash(path string) error {
	result, err := VerifyIntegrity(path)
	if err != nil {
		return err
	}
	if !result.Passed {
		dir := filepath.Dir(path)
		return fmt.Errorf("config verification failed: %s\n"+
			"If you edited this file intentionally, run: parcel config lock --config %s",
			strings.Join(result.Errors, "; "), dir)
	}
	return nil
}

// applyConfigDefaults merges default values into config where not explicitly set.
func applyConfigDefaults(cfg *Config) *Config {
	defaults := Defaults()

	if cfg.Service.Name == "" {
		cfg.Service.Name = defaults.Service.Name
	}
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = defaults.Service.LogLevel
	}
	cfg.Service.LogLevel = strings.ToLower(cfg.Service.LogLevel)
	if cfg.Service.LogFormat == "" {
		cfg.Service.LogFormat = defaults.Service.LogFormat
	}

	if cfg.API.Listen == "" {
		cfg.API.Listen = defaults.API.Listen
	}
	if cfg.API.ShutdownTimeout == 0 {
		cfg.API.ShutdownTimeout = defaults.API.ShutdownTimeout
	}

	if cfg.Artifacts.Dir == "" {
		cfg.Artifacts.Dir = defaults.Artifacts.Dir
	}
	if cfg.Delivery.Name == "" {
		cfg.Delivery.Name = defaults.Delivery.Name
	}
	if cfg.Transform.Key == 0 {
		cfg.Transform.Key = defaults.Transform.Key
	}

	if cfg.Archive.Engine == "" {
		cfg.Archive.Engine = defaults.Archive.Engine
	}
	if cfg.Archive.Timeout == 0 {
		cfg.Archive.Timeout = defaults.Archive.Timeout
	}
	if cfg.Archive.MinFreeBytes == 0 {
		cfg.Archive.MinFreeBytes = defaults.Archive.MinFreeBytes
	}

	if cfg.Workspace.BaseDir == "" {
		cfg.Workspace.BaseDir = defaults.Workspace.BaseDir
	}
	if cfg.Workspace.StaleAfter == 0 {
		cfg.Workspace.StaleAfter = defaults.Workspace.StaleAfter
	}
	if cfg.Workspace.SweepInterval == 0 {
		cfg.Workspace.SweepInterval = defaults.Workspace.SweepInterval
	}

	if cfg.Weather.Enabled == nil {
		cfg.Weather.Enabled = defaults.Weather.Enabled
	}
	if cfg.Weather.TTL == 0 {
		cfg.Weather.TTL = defaults.Weather.TTL
	}
	if cfg.Weather.Timeout == 0 {
		cfg.Weather.Timeout = defaults.Weather.Timeout
	}
	if cfg.Weather.GeocodeURL == "" {
		cfg.Weather.GeocodeURL = defaults.Weather.GeocodeURL
	}
	if cfg.Weather.ForecastURL == "" {
		cfg.Weather.ForecastURL = defaults.Weather.ForecastURL
	}

	return cfg
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Undefined variables are left as-is (not expanded).
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match
	})
}

// validate performs basic validation on the configuration.
func validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Service.LogLevel] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}
	if cfg.Service.LogFormat != "json" && cfg.Service.LogFormat != "text" {
		return fmt.Errorf("service.log_format must be json or text (got %q)", cfg.Service.LogFormat)
	}

	if err := checkUnresolved("api.operator_token", cfg.API.OperatorToken); err != nil {
		return err
	}
	if err := checkUnresolved("artifacts.dir", cfg.Artifacts.Dir); err != nil {
		return err
	}
	if !safeName.MatchString(cfg.Delivery.Name) {
		return fmt.Errorf("delivery.name %q may only contain letters, digits, '.', '_' and '-'", cfg.Delivery.Name)
	}

	companions := []struct {
		field string
		value string
	}{
		{"companions.windows", cfg.Companions.Windows},
		{"companions.macos", cfg.Companions.MacOS},
		{"companions.linux", cfg.Companions.Linux},
		{"companions.linux_rpm", cfg.Companions.LinuxRPM},
	}
	for _, c := range companions {
		if c.value == "" {
			continue
		}
		if err := checkUnresolved(c.field, c.value); err != nil {
			return err
		}
		if err := installer.ValidateURL(c.value); err != nil {
			return fmt.Errorf("%s: %w", c.field, err)
		}
	}

	if cfg.Transform.Key < 1 || cfg.Transform.Key > 255 {
		return fmt.Errorf("transform.key must be between 1 and 255 (got %d)", cfg.Transform.Key)
	}

	if cfg.Archive.Engine != "builtin" && cfg.Archive.Engine != "external" {
		return fmt.Errorf("archive.engine must be builtin or external (got %q)", cfg.Archive.Engine)
	}
	if cfg.Archive.Timeout <= 0 {
		return fmt.Errorf("archive.timeout must be positive")
	}

	if err := checkUnresolved("workspace.base_dir", cfg.Workspace.BaseDir); err != nil {
		return err
	}
	if cfg.Workspace.StaleAfter <= 0 {
		return fmt.Errorf("workspace.stale_after must be positive")
	}
	if cfg.Workspace.SweepInterval <= 0 {
		return fmt.Errorf("workspace.sweep_interval must be positive")
	}

	if err := checkUnresolved("ledger.path", cfg.Ledger.Path); err != nil {
		return err
	}

	if cfg.Weather.IsEnabled() && cfg.Weather.TTL <= 0 {
		return fmt.Errorf("weather.ttl must be positive")
	}
	return nil
}

// checkUnresolved rejects values that still carry a ${VAR} placeholder.
func checkUnresolved(field, value string) error {
	if matches := envVarPattern.FindStringSubmatch(value); len(matches) > 1 {
		return fmt.Errorf("%s: environment variable ${%s} is not set", field, matches[1])
	}
	return nil
}
