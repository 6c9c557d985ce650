package workspace

import (
	"context"
	"time"
)

// Workspace is a temp directory owned by exactly one in-flight request.
type Workspace struct {
	ID  string
	Dir string
}

// CleanupReport summarizes a sweep of stale workspaces.
type CleanupReport struct {
	DeletedDirs int
}

// Manager governs bundle workspace lifecycle.
type Manager interface {
	// Create allocates a fresh, exclusively owned workspace.
	Create(ctx context.Context) (Workspace, error)

	// Remove deletes a workspace and everything in it.
	Remove(ws Workspace) error

	// Cleanup removes workspaces older than olderThan left behind by crashes.
	Cleanup(ctx context.Context, olderThan time.Duration) (CleanupReport, error)
}
