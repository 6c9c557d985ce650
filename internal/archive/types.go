// Package archive assembles zip and tar.gz bundles inside per-request
// workspaces. Every failure path removes the workspace before returning.
package archive

import (
	"errors"
	"fmt"
	"regexp"
	"sync"

	"github.com/mattjoyce/parcel/internal/workspace"
)

// Format is the container written by the assembler.
type Format string

const (
	FormatZip   Format = "zip"
	FormatTarGz Format = "tar.gz"
)

// Ext returns the filename extension including the leading dot.
func (f Format) Ext() string {
	return "." + string(f)
}

// ContentType returns the MIME type delivered for the format.
func (f Format) ContentType() string {
	if f == FormatZip {
		return "application/zip"
	}
	return "application/gzip"
}

// Engine selects how the container file is produced.
type Engine string

const (
	// EngineBuiltin writes archives in-process.
	EngineBuiltin Engine = "builtin"
	// EngineExternal shells out to tar/zip. Kept for hosts where the staged
	// files must be archived by system tooling.
	EngineExternal Engine = "external"
)

// ParseEngine validates an engine name; empty means builtin.
func ParseEngine(s string) (Engine, error) {
	switch Engine(s) {
	case "", EngineBuiltin:
		return EngineBuiltin, nil
	case EngineExternal:
		return EngineExternal, nil
	default:
		return "", fmt.Errorf("unknown archive engine %q (want builtin or external)", s)
	}
}

// Entry is one file inside the archive. Exactly one of Content and Source is
// used; Source wins when both are set.
type Entry struct {
	Name       string
	Content    []byte
	Source     string
	Transform  bool
	Executable bool
}

// Spec describes a single archive to build.
type Spec struct {
	Format  Format
	Name    string
	Entries []Entry
}

var entryName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// Validate checks formats and entry names before any filesystem work.
func (s Spec) Validate() error {
	if s.Format != FormatZip && s.Format != FormatTarGz {
		return fmt.Errorf("unsupported archive format %q", s.Format)
	}
	if s.Name != "" && !entryName.MatchString(s.Name) {
		return fmt.Errorf("invalid archive name %q", s.Name)
	}
	if len(s.Entries) == 0 {
		return errors.New("archive has no entries")
	}
	seen := make(map[string]struct{}, len(s.Entries))
	for i, e := range s.Entries {
		if !entryName.MatchString(e.Name) {
			return fmt.Errorf("entries[%d]: invalid name %q", i, e.Name)
		}
		if _, dup := seen[e.Name]; dup {
			return fmt.Errorf("entries[%d]: duplicate name %q", i, e.Name)
		}
		seen[e.Name] = struct{}{}
	}
	return nil
}

// ErrInsufficientSpace is reported when the workspace filesystem cannot hold
// the staged files plus the archive.
var ErrInsufficientSpace = errors.New("insufficient free disk space")

// ConstructionError wraps any failure while building an archive.
type ConstructionError struct {
	Stage string
	Err   error
}

func (e *ConstructionError) Error() string {
	return fmt.Sprintf("archive %s: %v", e.Stage, e.Err)
}

func (e *ConstructionError) Unwrap() error { return e.Err }

func constructionErr(stage string, err error) error {
	return &ConstructionError{Stage: stage, Err: err}
}

// Bundle is a finished archive. Cleanup removes its workspace and is safe to
// call more than once.
type Bundle struct {
	Path      string
	Size      int64
	Format    Format
	Workspace workspace.Workspace

	once    sync.Once
	release func() error
	err     error
}

// Cleanup removes the bundle's workspace.
func (b *Bundle) Cleanup() error {
	b.once.Do(func() {
		if b.release != nil {
			b.err = b.release()
		}
	})
	return b.err
}
