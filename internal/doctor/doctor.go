// Package doctor checks a parcel configuration against the machine it will
// run on.
package doctor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/shirou/gopsutil/v4/disk"

	"github.com/mattjoyce/parcel/internal/builds"
	"github.com/mattjoyce/parcel/internal/bundle"
	"github.com/mattjoyce/parcel/internal/config"
	"github.com/mattjoyce/parcel/internal/platform"
)

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// Doctor validates a loaded configuration.
type Doctor struct {
	cfg      *config.Config
	lookPath func(string) (string, error)
	diskFree func(ctx context.Context, path string) (uint64, error)
}

// New creates a Doctor for cfg.
func New(cfg *config.Config) *Doctor {
	return &Doctor{
		cfg:      cfg,
		lookPath: exec.LookPath,
		diskFree: func(ctx context.Context, path string) (uint64, error) {
			u, err := disk.UsageWithContext(ctx, path)
			if err != nil {
				return 0, err
			}
			return u.Free, nil
		},
	}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate(ctx context.Context) *Result {
	r := &Result{Valid: true}

	d.checkIntegrity(r)
	d.checkArtifacts(ctx, r)
	d.checkWorkspace(ctx, r)
	d.checkArchiveEngine(r)
	d.checkCompanions(r)
	d.checkAPI(r)
	d.checkLedger(r)
	d.checkTransform(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) checkIntegrity(r *Result) {
	if d.cfg.SourcePath == "" {
		return
	}
	res, err := config.VerifyIntegrity(d.cfg.SourcePath)
	if err != nil {
		d.addError(r, "integrity", "", err.Error())
		return
	}
	for _, w := range res.Warnings {
		d.addWarning(r, "integrity", "", w)
	}
	for _, e := range res.Errors {
		d.addError(r, "integrity", "", e)
	}
}

// checkArtifacts reads the build directory and reports platforms with
// nothing to serve.
func (d *Doctor) checkArtifacts(ctx context.Context, r *Result) {
	dir := d.cfg.Artifacts.Dir
	loc := builds.NewLocator(dir, bundle.DisguisedNames(d.cfg.Delivery.Name)...)

	arts, err := loc.List(ctx)
	if err != nil {
		d.addError(r, "artifacts", "artifacts.dir", err.Error())
		return
	}
	if len(arts) == 0 {
		d.addWarning(r, "artifacts", "artifacts.dir",
			fmt.Sprintf("%s holds no builds; every download will return 404", dir))
		return
	}

	for _, os := range []platform.OS{platform.Windows, platform.MacOS, platform.Linux} {
		art, err := loc.Latest(ctx, platform.ForOS(os))
		if errors.Is(err, builds.ErrNotFound) {
			d.addWarning(r, "artifacts", "artifacts.dir", fmt.Sprintf("no build for %s", os))
			continue
		}
		if err != nil {
			d.addError(r, "artifacts", "artifacts.dir", err.Error())
			return
		}
		if art.Platform != os {
			d.addWarning(r, "artifacts", "artifacts.dir",
				fmt.Sprintf("%s downloads fall back to %s", os, art.Name))
		}
	}
}

// checkWorkspace makes sure a scratch directory can be created and that the
// filesystem has the configured headroom.
func (d *Doctor) checkWorkspace(ctx context.Context, r *Result) {
	base := d.cfg.Workspace.BaseDir
	if err := os.MkdirAll(base, 0o755); err != nil {
		d.addError(r, "workspace", "workspace.base_dir", fmt.Sprintf("cannot create %s: %v", base, err))
		return
	}
	probe, err := os.MkdirTemp(base, "doctor-")
	if err != nil {
		d.addError(r, "workspace", "workspace.base_dir", fmt.Sprintf("%s is not writable: %v", base, err))
		return
	}
	_ = os.Remove(probe)

	free, err := d.diskFree(ctx, base)
	if err != nil {
		d.addWarning(r, "workspace", "workspace.base_dir", fmt.Sprintf("free space unknown: %v", err))
		return
	}
	if want := d.cfg.Archive.MinFreeBytes; want > 0 && free < want {
		d.addWarning(r, "workspace", "archive.min_free_bytes",
			fmt.Sprintf("only %d bytes free under %s, below the %d byte floor; archives will fall back to raw", free, base, want))
	}
}

func (d *Doctor) checkArchiveEngine(r *Result) {
	if d.cfg.Archive.Engine != "external" {
		return
	}
	for _, tool := range []struct{ field, path, def string }{
		{"archive.tar_path", d.cfg.Archive.TarPath, "tar"},
		{"archive.zip_path", d.cfg.Archive.ZipPath, "zip"},
	} {
		bin := tool.path
		if bin == "" {
			bin = tool.def
		}
		if _, err := d.lookPath(bin); err != nil {
			d.addError(r, "archive", tool.field, fmt.Sprintf("external engine needs %q: %v", bin, err))
		}
	}
}

func (d *Doctor) checkCompanions(r *Result) {
	c := d.cfg.Companions
	for _, comp := range []struct{ field, url string }{
		{"companions.windows", c.Windows},
		{"companions.macos", c.MacOS},
		{"companions.linux", c.Linux},
		{"companions.linux_rpm", c.LinuxRPM},
	} {
		if comp.url == "" {
			continue
		}
		u, err := url.Parse(comp.url)
		if err != nil {
			d.addError(r, "companions", comp.field, err.Error())
			continue
		}
		if u.Scheme == "http" {
			d.addWarning(r, "companions", comp.field, "companion is fetched over plain http")
		}
	}
	if c.LinuxRPM != "" && c.Linux == "" {
		d.addWarning(r, "companions", "companions.linux",
			"linux_rpm is set without linux; non-rpm distributions get a plain archive")
	}
}

func (d *Doctor) checkAPI(r *Result) {
	host, _, err := net.SplitHostPort(d.cfg.API.Listen)
	if err != nil {
		d.addError(r, "api", "api.listen", err.Error())
		return
	}
	if d.cfg.API.OperatorToken != "" {
		return
	}
	ip := net.ParseIP(host)
	if host == "localhost" || (ip != nil && ip.IsLoopback()) {
		return
	}
	d.addWarning(r, "api", "api.operator_token",
		"listening beyond loopback with no operator token; the download ledger and event stream are public")
}

func (d *Doctor) checkLedger(r *Result) {
	path := d.cfg.Ledger.Path
	if path == "" {
		return
	}
	dir := filepath.Dir(path)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		d.addWarning(r, "ledger", "ledger.path", fmt.Sprintf("directory %s does not exist yet", dir))
	}
}

func (d *Doctor) checkTransform(r *Result) {
	if d.cfg.Transform.Key == config.Defaults().Transform.Key {
		d.addWarning(r, "transform", "transform.key", "using the default transform key")
	}
}

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	if r.Valid && len(r.Warnings) == 0 {
		b.WriteString("Configuration valid.\n")
		return b.String()
	}

	if r.Valid && len(r.Warnings) > 0 {
		b.WriteString("Configuration valid")
		fmt.Fprintf(&b, " (%d warning(s))\n", len(r.Warnings))
	}

	if !r.Valid {
		fmt.Fprintf(&b, "Configuration invalid (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	for _, e := range r.Errors {
		if e.Field != "" {
			fmt.Fprintf(&b, "  ERROR [%s] %s: %s\n", e.Category, e.Field, e.Message)
		} else {
			fmt.Fprintf(&b, "  ERROR [%s] %s\n", e.Category, e.Message)
		}
	}
	for _, w := range r.Warnings {
		if w.Field != "" {
			fmt.Fprintf(&b, "  WARN  [%s] %s: %s\n", w.Category, w.Field, w.Message)
		} else {
			fmt.Fprintf(&b, "  WARN  [%s] %s\n", w.Category, w.Message)
		}
	}

	return b.String()
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
