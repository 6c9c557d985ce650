package workspace

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// idPrefix marks directories owned by this manager inside a shared base dir.
const idPrefix = "bundle-"

// fsWorkspaceManager manages per-request workspace directories on local disk.
type fsWorkspaceManager struct {
	baseDir string
	now     func() time.Time
	newID   func() string
}

var _ Manager = (*fsWorkspaceManager)(nil)

// NewFSManager creates a filesystem-backed workspace manager rooted at baseDir.
func NewFSManager(baseDir string) (*fsWorkspaceManager, error) {
	trimmed := strings.TrimSpace(baseDir)
	if trimmed == "" {
		return nil, fmt.Errorf("workspace base directory is empty")
	}

	return &fsWorkspaceManager{
		baseDir: filepath.Clean(trimmed),
		now:     time.Now,
		newID:   func() string { return idPrefix + uuid.NewString() },
	}, nil
}

// BaseDir returns the directory workspaces are created in.
func (m *fsWorkspaceManager) BaseDir() string { return m.baseDir }

// Create makes a new workspace directory. os.Mkdir fails if the path exists,
// so two callers can never share a directory even on an ID collision.
func (m *fsWorkspaceManager) Create(ctx context.Context) (Workspace, error) {
	if err := ctx.Err(); err != nil {
		return Workspace{}, err
	}

	if err := os.MkdirAll(m.baseDir, 0o755); err != nil {
		return Workspace{}, fmt.Errorf("create workspace base directory: %w", err)
	}

	id := m.newID()
	if err := validateID(id); err != nil {
		return Workspace{}, err
	}
	path := filepath.Join(m.baseDir, id)
	if err := os.Mkdir(path, 0o700); err != nil {
		return Workspace{}, fmt.Errorf("create workspace %q: %w", id, err)
	}

	return Workspace{ID: id, Dir: path}, nil
}

// Remove deletes ws. Removing an already-removed workspace is not an error.
func (m *fsWorkspaceManager) Remove(ws Workspace) error {
	if err := validateID(ws.ID); err != nil {
		return err
	}
	path := filepath.Join(m.baseDir, ws.ID)
	if ws.Dir != "" && filepath.Clean(ws.Dir) != path {
		return fmt.Errorf("workspace %q is not under %s", ws.Dir, m.baseDir)
	}
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("remove workspace %q: %w", ws.ID, err)
	}
	return nil
}

// Cleanup removes workspace directories older than olderThan based on directory
// modification time. Only directories carrying the manager's prefix are touched.
func (m *fsWorkspaceManager) Cleanup(ctx context.Context, olderThan time.Duration) (CleanupReport, error) {
	if err := ctx.Err(); err != nil {
		return CleanupReport{}, err
	}
	if olderThan <= 0 {
		return CleanupReport{}, fmt.Errorf("olderThan must be positive")
	}

	entries, err := os.ReadDir(m.baseDir)
	if errors.Is(err, fs.ErrNotExist) {
		return CleanupReport{}, nil
	}
	if err != nil {
		return CleanupReport{}, fmt.Errorf("read workspace base directory: %w", err)
	}

	cutoff := m.now().Add(-olderThan)
	report := CleanupReport{}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), idPrefix) {
			continue
		}

		info, err := entry.Info()
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return report, fmt.Errorf("read workspace entry info %q: %w", entry.Name(), err)
		}
		if info.ModTime().After(cutoff) {
			continue
		}

		path := filepath.Join(m.baseDir, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			return report, fmt.Errorf("remove workspace %q: %w", entry.Name(), err)
		}
		report.DeletedDirs++
	}

	return report, nil
}

func validateID(id string) error {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return fmt.Errorf("workspace id is empty")
	}
	if trimmed == "." || trimmed == ".." {
		return fmt.Errorf("workspace id %q is invalid", id)
	}
	if strings.Contains(trimmed, "/") || strings.Contains(trimmed, `\`) {
		return fmt.Errorf("workspace id %q must not contain path separators", id)
	}
	if filepath.Clean(trimmed) != trimmed || trimmed != id {
		return fmt.Errorf("workspace id %q is invalid", id)
	}
	return nil
}
