package archive

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/shirou/gopsutil/v4/disk"

	"github.com/mattjoyce/parcel/internal/transform"
	"github.com/mattjoyce/parcel/internal/workspace"
)

const (
	stageDirName   = "stage"
	defaultName    = "bundle"
	defaultTimeout = 60 * time.Second
)

// Assembler builds archives in isolated workspaces.
type Assembler struct {
	workspaces   workspace.Manager
	engine       Engine
	key          byte
	timeout      time.Duration
	minFreeBytes uint64
	logger       *slog.Logger
	freeSpace    func(ctx context.Context, path string) (uint64, error)
	tarPath      string
	zipPath      string
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithEngine selects the archive engine.
func WithEngine(e Engine) Option {
	return func(a *Assembler) { a.engine = e }
}

// WithKey sets the byte transform key used for entries flagged Transform.
func WithKey(key byte) Option {
	return func(a *Assembler) { a.key = key }
}

// WithTimeout bounds external archiver runs.
func WithTimeout(d time.Duration) Option {
	return func(a *Assembler) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// WithMinFreeBytes sets the headroom that must remain free after staging.
func WithMinFreeBytes(n uint64) Option {
	return func(a *Assembler) { a.minFreeBytes = n }
}

// WithLogger sets the logger used for best-effort cleanup failures.
func WithLogger(l *slog.Logger) Option {
	return func(a *Assembler) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithArchivers overrides the tar and zip executables used by EngineExternal.
func WithArchivers(tarPath, zipPath string) Option {
	return func(a *Assembler) {
		if tarPath != "" {
			a.tarPath = tarPath
		}
		if zipPath != "" {
			a.zipPath = zipPath
		}
	}
}

// New creates an Assembler allocating workspaces from ws.
func New(ws workspace.Manager, opts ...Option) *Assembler {
	a := &Assembler{
		workspaces: ws,
		engine:     EngineBuiltin,
		key:        transform.DefaultKey,
		timeout:    defaultTimeout,
		logger:     slog.Default(),
		freeSpace:  diskFree,
		tarPath:    "tar",
		zipPath:    "zip",
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Engine reports the configured engine.
func (a *Assembler) Engine() Engine { return a.engine }

// Assemble stages spec's entries in a fresh workspace and writes a single
// archive file there. On error no workspace is left behind.
func (a *Assembler) Assemble(ctx context.Context, spec Spec) (*Bundle, error) {
	if err := spec.Validate(); err != nil {
		return nil, constructionErr("validate", err)
	}

	ws, err := a.workspaces.Create(ctx)
	if err != nil {
		return nil, constructionErr("workspace", err)
	}

	done := false
	defer func() {
		if !done {
			a.release(ws)
		}
	}()

	if err := a.preflight(ctx, ws.Dir, spec.Entries); err != nil {
		return nil, constructionErr("preflight", err)
	}

	stageDir := filepath.Join(ws.Dir, stageDirName)
	if err := os.Mkdir(stageDir, 0o700); err != nil {
		return nil, constructionErr("stage", err)
	}
	for _, e := range spec.Entries {
		if err := ctx.Err(); err != nil {
			return nil, constructionErr("stage", err)
		}
		if err := a.stageEntry(stageDir, e); err != nil {
			return nil, constructionErr("stage", fmt.Errorf("entry %q: %w", e.Name, err))
		}
	}

	name := spec.Name
	if name == "" {
		name = defaultName
	}
	out := filepath.Join(ws.Dir, name+spec.Format.Ext())

	switch a.engine {
	case EngineExternal:
		err = a.runExternal(ctx, spec, stageDir, out)
	default:
		err = writeBuiltin(ctx, spec, stageDir, out)
	}
	if err != nil {
		return nil, constructionErr(string(a.engine), err)
	}

	info, err := os.Stat(out)
	if err != nil {
		return nil, constructionErr("stat", err)
	}

	done = true
	return &Bundle{
		Path:      out,
		Size:      info.Size(),
		Format:    spec.Format,
		Workspace: ws,
		release: func() error {
			return a.workspaces.Remove(ws)
		},
	}, nil
}

// release removes ws, logging rather than returning failures.
func (a *Assembler) release(ws workspace.Workspace) {
	if err := a.workspaces.Remove(ws); err != nil {
		a.logger.Error("failed to remove workspace", "workspace", ws.Dir, "error", err)
	}
}

// preflight refuses to start when the staged copies plus the archive would not
// fit next to the configured headroom.
func (a *Assembler) preflight(ctx context.Context, dir string, entries []Entry) error {
	var payload uint64
	for _, e := range entries {
		if e.Source == "" {
			payload += uint64(len(e.Content))
			continue
		}
		info, err := os.Stat(e.Source)
		if err != nil {
			return fmt.Errorf("stat source %q: %w", e.Source, err)
		}
		payload += uint64(info.Size())
	}

	free, err := a.freeSpace(ctx, dir)
	if err != nil {
		a.logger.Warn("disk usage unavailable, skipping space check", "dir", dir, "error", err)
		return nil
	}
	need := 2*payload + a.minFreeBytes
	if free < need {
		return fmt.Errorf("%w: need %d bytes, %d available in %s", ErrInsufficientSpace, need, free, dir)
	}
	return nil
}

func (a *Assembler) stageEntry(stageDir string, e Entry) (err error) {
	mode := os.FileMode(0o644)
	if e.Executable {
		mode = 0o755
	}

	dst, err := os.OpenFile(filepath.Join(stageDir, e.Name), os.O_CREATE|os.O_EXCL|os.O_WRONLY, mode)
	if err != nil {
		return fmt.Errorf("create staged file: %w", err)
	}
	defer func() {
		if cerr := dst.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close staged file: %w", cerr)
		}
	}()

	var w io.Writer = dst
	if e.Transform {
		w = transform.NewWriter(dst, a.key)
	}

	if e.Source == "" {
		if _, err := w.Write(e.Content); err != nil {
			return fmt.Errorf("write content: %w", err)
		}
	} else {
		src, err := os.Open(e.Source)
		if err != nil {
			return fmt.Errorf("open source: %w", err)
		}
		defer src.Close()
		if _, err := io.Copy(w, src); err != nil {
			return fmt.Errorf("copy source: %w", err)
		}
	}

	// The process umask may have stripped bits from the create mode.
	if err := dst.Chmod(mode); err != nil {
		return fmt.Errorf("chmod staged file: %w", err)
	}
	return nil
}

func diskFree(ctx context.Context, path string) (uint64, error) {
	usage, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return 0, err
	}
	return usage.Free, nil
}
