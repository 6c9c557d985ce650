package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// IntegrityResult collects the outcome of a manifest check.
type IntegrityResult struct {
	Passed   bool
	Warnings []string
	Errors   []string
}

// VerifyIntegrity checks configPath against the .checksums manifest in its
// directory. A missing manifest is a warning; a missing or mismatched entry
// is an error.
func VerifyIntegrity(configPath string) (*IntegrityResult, error) {
	result := &IntegrityResult{Passed: true}
	dir := filepath.Dir(configPath)
	name := filepath.Base(configPath)

	manifest, err := LoadChecksums(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("no %s manifest found in %s; run 'parcel config lock' to enable integrity verification", ChecksumFile, dir))
			return result, nil
		}
		return nil, err
	}

	expected, ok := manifest.Hashes[name]
	if !ok {
		result.Passed = false
		result.Errors = append(result.Errors, fmt.Sprintf("config file %s has no hash in %s", name, filepath.Join(dir, ChecksumFile)))
		return result, nil
	}

	if err := VerifyFileHash(configPath, expected); err != nil {
		result.Passed = false
		result.Errors = append(result.Errors, err.Error())
	}
	return result, nil
}

// Lock writes a manifest covering configPath.
func Lock(configPath string) (*HashUpdateReport, error) {
	abs, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}
	if _, err := os.Stat(abs); err != nil {
		return nil, fmt.Errorf("config file not found: %s", abs)
	}
	return GenerateChecksums(filepath.Dir(abs), []string{filepath.Base(abs)}, false)
}
