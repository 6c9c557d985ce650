package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCandidatesOrder(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv(EnvConfigPath, "/opt/parcel.yaml")

	got := Candidates()
	want := []string{
		"/opt/parcel.yaml",
		filepath.Join(home, ".config", "parcel", "config.yaml"),
		"/etc/parcel/config.yaml",
		"./config.yaml",
	}
	if len(got) != len(want) {
		t.Fatalf("Candidates() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Candidates()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestDiscoverPrefersEnv(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "delivery:\n  name: Env\n")
	t.Setenv(EnvConfigPath, path)

	found, err := Discover()
	if err != nil {
		t.Fatalf("Discover() failed: %v", err)
	}
	if found != path {
		t.Errorf("Discover() = %q, want %q", found, path)
	}

	cfg, err := LoadOrDefault("")
	if err != nil {
		t.Fatalf("LoadOrDefault() failed: %v", err)
	}
	if cfg.Delivery.Name != "Env" {
		t.Errorf("delivery.name = %q", cfg.Delivery.Name)
	}
}

func TestDiscoverUserConfig(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv(EnvConfigPath, "")

	userDir := filepath.Join(home, ".config", "parcel")
	if err := os.MkdirAll(userDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := writeConfig(t, userDir, "delivery:\n  name: Home\n")

	found, err := Discover()
	if err != nil {
		t.Fatalf("Discover() failed: %v", err)
	}
	if found != path {
		t.Errorf("Discover() = %q, want %q", found, path)
	}
}

func TestLoadOrDefaultExplicitPath(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "delivery:\n  name: Explicit\n")
	cfg, err := LoadOrDefault(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Delivery.Name != "Explicit" {
		t.Errorf("delivery.name = %q", cfg.Delivery.Name)
	}
}
