package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shirou/gopsutil/v4/disk"
)

var networkFilesystems = map[string]struct{}{
	"afpfs":      {},
	"cifs":       {},
	"fuse.sshfs": {},
	"nfs":        {},
	"nfs4":       {},
	"smbfs":      {},
	"smb2":       {},
	"smb3":       {},
	"webdav":     {},
}

// validateSQLiteFilesystem ensures the DB path is on a local filesystem.
func validateSQLiteFilesystem(ctx context.Context, path string) error {
	return validateSQLiteFilesystemWithDetector(path, func(p string) (string, error) {
		return detectFilesystemType(ctx, p)
	})
}

// validateSQLiteFilesystemWithDetector rejects positively identified network
// filesystems. A detector failure is not fatal.
func validateSQLiteFilesystemWithDetector(path string, detector func(string) (string, error)) error {
	if path == "" {
		return fmt.Errorf("sqlite path is empty")
	}

	inspectPath, err := nearestExistingPath(path)
	if err != nil {
		return fmt.Errorf("resolve database path %q: %w", path, err)
	}

	fsType, err := detector(inspectPath)
	if err != nil {
		return nil
	}

	if isNetworkFilesystem(fsType) {
		return fmt.Errorf(
			"database path %q is on network filesystem %q; SQLite requires a local filesystem for reliable locking. Set ledger.path to a local file",
			path,
			fsType,
		)
	}
	return nil
}

// detectFilesystemType returns the fstype of the mount holding path, picking
// the longest matching mountpoint.
func detectFilesystemType(ctx context.Context, path string) (string, error) {
	parts, err := disk.PartitionsWithContext(ctx, true)
	if err != nil {
		return "", fmt.Errorf("list partitions: %w", err)
	}

	best, fsType := -1, ""
	for _, p := range parts {
		if !underMount(path, p.Mountpoint) {
			continue
		}
		if len(p.Mountpoint) > best {
			best, fsType = len(p.Mountpoint), p.Fstype
		}
	}
	if best < 0 {
		return "", fmt.Errorf("no mount found for %q", path)
	}
	return fsType, nil
}

func underMount(path, mountpoint string) bool {
	if mountpoint == "" {
		return false
	}
	mp := filepath.Clean(mountpoint)
	if path == mp || mp == string(filepath.Separator) {
		return true
	}
	return strings.HasPrefix(path, mp+string(filepath.Separator))
}

func nearestExistingPath(path string) (string, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("absolute path: %w", err)
	}

	candidate := absPath
	for {
		_, err := os.Stat(candidate)
		if err == nil {
			return candidate, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("stat %q: %w", candidate, err)
		}

		parent := filepath.Dir(candidate)
		if parent == candidate {
			return "", fmt.Errorf("no existing parent for %q", absPath)
		}
		candidate = parent
	}
}

func isNetworkFilesystem(fsType string) bool {
	normalized := strings.TrimSpace(strings.ToLower(fsType))
	_, found := networkFilesystems[normalized]
	return found
}
