package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestVerifyIntegrityWithoutManifestWarns(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "delivery:\n  name: x\n")

	result, err := VerifyIntegrity(path)
	if err != nil {
		t.Fatal(err)
	}
	if !result.Passed {
		t.Errorf("expected Passed=true, got errors: %v", result.Errors)
	}
	if len(result.Warnings) != 1 {
		t.Errorf("warnings = %v, want one", result.Warnings)
	}
}

func TestVerifyIntegrityLocked(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "delivery:\n  name: x\n")
	if _, err := Lock(path); err != nil {
		t.Fatal(err)
	}

	result, err := VerifyIntegrity(path)
	if err != nil {
		t.Fatal(err)
	}
	if !result.Passed || len(result.Warnings) > 0 {
		t.Errorf("result = %+v", result)
	}
}

func TestVerifyIntegrityMismatch(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "delivery:\n  name: x\n")
	if _, err := Lock(path); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("delivery:\n  name: y\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	result, err := VerifyIntegrity(path)
	if err != nil {
		t.Fatal(err)
	}
	if result.Passed {
		t.Fatal("expected Passed=false after modification")
	}
	if len(result.Errors) != 1 || !strings.Contains(result.Errors[0], "hash mismatch") {
		t.Errorf("errors = %v", result.Errors)
	}
}

func TestVerifyIntegrityFileNotInManifest(t *testing.T) {
	dir := t.TempDir()
	other := filepath.Join(dir, "other.yaml")
	if err := os.WriteFile(other, []byte("a: b\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Lock(other); err != nil {
		t.Fatal(err)
	}
	path := writeConfig(t, dir, "delivery:\n  name: x\n")

	result, err := VerifyIntegrity(path)
	if err != nil {
		t.Fatal(err)
	}
	if result.Passed {
		t.Fatal("expected Passed=false for unlisted config")
	}
}
