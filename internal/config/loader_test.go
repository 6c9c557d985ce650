package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		env     map[string]string
		wantErr string
		checkFn func(t *testing.T, cfg *Config)
	}{
		{
			name: "minimal config gets defaults",
			yaml: `
artifacts:
  dir: /srv/builds
`,
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.Artifacts.Dir != "/srv/builds" {
					t.Errorf("artifacts.dir = %q", cfg.Artifacts.Dir)
				}
				if cfg.Delivery.Name != "WeatherApp" {
					t.Errorf("delivery.name default = %q", cfg.Delivery.Name)
				}
				if cfg.Transform.KeyByte() != 0x5a {
					t.Errorf("transform.key default = %#x", cfg.Transform.KeyByte())
				}
				if cfg.Archive.Engine != "builtin" || cfg.Archive.Timeout != 60*time.Second {
					t.Errorf("archive defaults not applied: %+v", cfg.Archive)
				}
				if cfg.API.Listen != "127.0.0.1:8080" {
					t.Errorf("api.listen default = %q", cfg.API.Listen)
				}
				if !cfg.Weather.IsEnabled() || cfg.Weather.TTL != time.Minute {
					t.Errorf("weather defaults not applied: %+v", cfg.Weather)
				}
				if cfg.Ledger.Path != "" {
					t.Errorf("ledger should be disabled by default, got %q", cfg.Ledger.Path)
				}
			},
		},
		{
			name: "full config",
			yaml: `
service:
  name: downloads
  log_level: DEBUG
  log_format: text
api:
  listen: 0.0.0.0:9000
artifacts:
  dir: ./dist
delivery:
  name: Forecast
companions:
  windows: https://cdn.example.com/vcredist_x64.exe
  linux: https://cdn.example.com/runtime.deb
  linux_rpm: https://cdn.example.com/runtime.rpm
transform:
  key: 0x33
archive:
  engine: external
  timeout: 5s
workspace:
  base_dir: /var/tmp/parcel
  stale_after: 30m
ledger:
  path: ./data/downloads.db
weather:
  enabled: false
`,
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.Service.LogLevel != "debug" {
					t.Errorf("log level not normalised: %q", cfg.Service.LogLevel)
				}
				if cfg.Delivery.Name != "Forecast" {
					t.Errorf("delivery.name = %q", cfg.Delivery.Name)
				}
				if cfg.Transform.KeyByte() != 0x33 {
					t.Errorf("transform.key = %#x", cfg.Transform.KeyByte())
				}
				if cfg.Companions.LinuxRPM != "https://cdn.example.com/runtime.rpm" {
					t.Errorf("linux_rpm = %q", cfg.Companions.LinuxRPM)
				}
				if cfg.Archive.Engine != "external" || cfg.Archive.Timeout != 5*time.Second {
					t.Errorf("archive = %+v", cfg.Archive)
				}
				if cfg.Workspace.StaleAfter != 30*time.Minute || cfg.Workspace.SweepInterval != 10*time.Minute {
					t.Errorf("workspace = %+v", cfg.Workspace)
				}
				if cfg.Weather.IsEnabled() {
					t.Error("weather.enabled: false was overridden")
				}
				if cfg.Weather.GeocodeURL == "" {
					t.Error("weather urls should still default")
				}
			},
		},
		{
			name: "weather section with only enabled false",
			yaml: `
weather:
  enabled: false
`,
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.Weather.Enabled == nil || *cfg.Weather.Enabled {
					t.Errorf("weather.enabled = %v, want false", cfg.Weather.Enabled)
				}
				if cfg.Weather.TTL != time.Minute || cfg.Weather.ForecastURL == "" {
					t.Errorf("remaining weather fields should default: %+v", cfg.Weather)
				}
			},
		},
		{
			name: "weather section without enabled key stays on",
			yaml: `
weather:
  ttl: 5m
`,
			checkFn: func(t *testing.T, cfg *Config) {
				if !cfg.Weather.IsEnabled() {
					t.Error("weather should default to enabled")
				}
				if cfg.Weather.TTL != 5*time.Minute {
					t.Errorf("weather.ttl = %v", cfg.Weather.TTL)
				}
			},
		},
		{
			name: "env interpolation",
			yaml: `
artifacts:
  dir: ${PARCEL_TEST_BUILDS}
companions:
  macos: ${PARCEL_TEST_MAC_URL}
`,
			env: map[string]string{
				"PARCEL_TEST_BUILDS":  "/mnt/builds",
				"PARCEL_TEST_MAC_URL": "https://cdn.example.com/helper.dmg",
			},
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.Artifacts.Dir != "/mnt/builds" {
					t.Errorf("artifacts.dir = %q", cfg.Artifacts.Dir)
				}
				if cfg.Companions.MacOS != "https://cdn.example.com/helper.dmg" {
					t.Errorf("companions.macos = %q", cfg.Companions.MacOS)
				}
			},
		},
		{
			name:    "unresolved env var",
			yaml:    "companions:\n  windows: ${PARCEL_TEST_UNSET_VAR}\n",
			wantErr: "PARCEL_TEST_UNSET_VAR",
		},
		{
			name:    "bad log level",
			yaml:    "service:\n  log_level: chatty\n",
			wantErr: "service.log_level",
		},
		{
			name:    "bad key",
			yaml:    "transform:\n  key: 300\n",
			wantErr: "transform.key",
		},
		{
			name:    "bad engine",
			yaml:    "archive:\n  engine: 7zip\n",
			wantErr: "archive.engine",
		},
		{
			name:    "bad companion scheme",
			yaml:    "companions:\n  linux: ftp://mirror/runtime.deb\n",
			wantErr: "companions.linux",
		},
		{
			name:    "bad delivery name",
			yaml:    "delivery:\n  name: ../evil\n",
			wantErr: "delivery.name",
		},
		{
			name:    "invalid yaml",
			yaml:    "service: [\n",
			wantErr: "failed to parse YAML",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := writeConfig(t, t.TempDir(), tt.yaml)

			cfg, err := Load(path)
			if tt.wantErr != "" {
				if err == nil {
					t.Fatalf("Load() succeeded, want error containing %q", tt.wantErr)
				}
				if !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("Load() error = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Load() failed: %v", err)
			}
			if cfg.SourcePath != path {
				t.Errorf("SourcePath = %q, want %q", cfg.SourcePath, path)
			}
			tt.checkFn(t, cfg)
		})
	}
}

func TestLoadDirectory(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "delivery:\n  name: Dir\n")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load(dir) failed: %v", err)
	}
	if cfg.Delivery.Name != "Dir" {
		t.Errorf("delivery.name = %q", cfg.Delivery.Name)
	}
}

func TestLoadMissing(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing config")
	}
}

func TestLoadRejectsTamperedConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "delivery:\n  name: Locked\n")

	if _, err := Lock(path); err != nil {
		t.Fatalf("Lock() failed: %v", err)
	}
	if _, err := Load(path); err != nil {
		t.Fatalf("Load() after lock failed: %v", err)
	}

	writeConfig(t, dir, "delivery:\n  name: Tampered\n")
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected tampered config to be rejected")
	}
	if !strings.Contains(err.Error(), "hash mismatch") {
		t.Errorf("error = %v, want hash mismatch", err)
	}
}

func TestInterpolateEnvLeavesUnknown(t *testing.T) {
	t.Setenv("PARCEL_TEST_KNOWN", "yes")
	got := interpolateEnv("${PARCEL_TEST_KNOWN}-${PARCEL_TEST_UNKNOWN_X}")
	if got != "yes-${PARCEL_TEST_UNKNOWN_X}" {
		t.Errorf("interpolateEnv() = %q", got)
	}
}
