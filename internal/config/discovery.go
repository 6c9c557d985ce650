package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// EnvConfigPath names the environment variable that points at a config file.
const EnvConfigPath = "PARCEL_CONFIG"

// Candidates returns the config locations checked by Discover, in priority
// order: $PARCEL_CONFIG, ~/.config/parcel/config.yaml, /etc/parcel/config.yaml,
// ./config.yaml.
func Candidates() []string {
	var out []string
	if p := os.Getenv(EnvConfigPath); p != "" {
		out = append(out, p)
	}
	if home, err := os.UserHomeDir(); err == nil {
		out = append(out, filepath.Join(home, ".config", "parcel", "config.yaml"))
	}
	return append(out, "/etc/parcel/config.yaml", "./config.yaml")
}

// Discover returns the first existing candidate config file.
func Discover() (string, error) {
	for _, p := range Candidates() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("no config found (checked: $%s, ~/.config/parcel/config.yaml, /etc/parcel/config.yaml, ./config.yaml)", EnvConfigPath)
}

// LoadOrDefault loads path when given, otherwise the discovered config. When
// nothing is found it falls back to validated defaults so the binary can run
// without a config file.
func LoadOrDefault(path string) (*Config, error) {
	if path != "" {
		return Load(path)
	}
	found, err := Discover()
	if err != nil {
		cfg := applyConfigDefaults(&Config{})
		if err := validate(cfg); err != nil {
			return nil, fmt.Errorf("invalid default configuration: %w", err)
		}
		return cfg, nil
	}
	return Load(found)
}
