// Package bundle decides how a selected build is delivered and composes the
// matching download package.
package bundle

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mattjoyce/parcel/internal/archive"
	"github.com/mattjoyce/parcel/internal/builds"
	"github.com/mattjoyce/parcel/internal/delivery"
	"github.com/mattjoyce/parcel/internal/installer"
	"github.com/mattjoyce/parcel/internal/platform"
	"github.com/mattjoyce/parcel/internal/transform"
)

// Mode is one of the three delivery shapes.
type Mode string

const (
	RawBinary        Mode = "raw"
	PlatformArchive  Mode = "archive"
	InstallerPackage Mode = "installer"
)

// DefaultName is the disguised base name when none is configured.
const DefaultName = "WeatherApp"

const octetStream = "application/octet-stream"

// Companions holds the per-platform companion download URLs. Empty means no
// companion for that platform.
type Companions struct {
	Windows  string
	MacOS    string
	Linux    string
	LinuxRPM string
}

// For returns the companion URL for a profile. RPM-family Linux hosts get the
// rpm URL when one is configured and the generic Linux URL otherwise.
func (c Companions) For(p platform.Profile) string {
	switch p.OS() {
	case platform.Windows:
		return c.Windows
	case platform.MacOS:
		return c.MacOS
	default:
		if p.RPMFamily && c.LinuxRPM != "" {
			return c.LinuxRPM
		}
		return c.Linux
	}
}

// Request is the per-download decision.
type Request struct {
	Profile      platform.Profile
	CompanionURL string
	Mode         Mode
}

// Decide applies the delivery decision table.
func Decide(p platform.Profile, c Companions, forceRaw bool) Request {
	req := Request{Profile: p}
	switch {
	case forceRaw:
		req.Mode = RawBinary
	case c.For(p) != "":
		req.Mode = InstallerPackage
		req.CompanionURL = c.For(p)
	default:
		req.Mode = PlatformArchive
	}
	return req
}

// Assembler builds archives. Implemented by *archive.Assembler.
type Assembler interface {
	Assemble(ctx context.Context, spec archive.Spec) (*archive.Bundle, error)
}

// Composer turns a decision and an artifact into a deliverable package.
type Composer struct {
	assembler Assembler
	name      string
	key       byte
	logger    *slog.Logger
}

// Option configures a Composer.
type Option func(*Composer)

// WithName sets the disguised base name.
func WithName(name string) Option {
	return func(c *Composer) {
		if name = strings.TrimSpace(name); name != "" {
			c.name = name
		}
	}
}

// WithKey sets the payload transform key embedded in installer scripts.
func WithKey(key byte) Option {
	return func(c *Composer) { c.key = key }
}

// WithLogger sets the composer logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Composer) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewComposer creates a Composer. The assembler key and the composer key must
// match for installer payloads to round-trip.
func NewComposer(asm Assembler, opts ...Option) *Composer {
	c := &Composer{
		assembler: asm,
		name:      DefaultName,
		key:       transform.DefaultKey,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the disguised base name.
func (c *Composer) Name() string { return c.name }

// Compose builds the package for req. RawBinary never touches the assembler.
// Archive and installer failures are returned as *archive.ConstructionError
// with no workspace left behind.
func (c *Composer) Compose(ctx context.Context, req Request, art builds.Artifact) (delivery.Package, error) {
	os := req.Profile.OS()
	switch req.Mode {
	case RawBinary:
		return c.Raw(os, art), nil
	case PlatformArchive:
		return c.assemble(ctx, PlatformArchive, c.archiveSpec(os, art))
	case InstallerPackage:
		spec, err := c.installerSpec(os, req.CompanionURL, art)
		if err != nil {
			return delivery.Package{}, err
		}
		return c.assemble(ctx, InstallerPackage, spec)
	default:
		return delivery.Package{}, fmt.Errorf("unknown bundle mode %q", req.Mode)
	}
}

// Raw serves the artifact file itself under the raw-binary disguised name.
func (c *Composer) Raw(os platform.OS, art builds.Artifact) delivery.Package {
	return delivery.Package{
		Path:        art.Path,
		Filename:    BinaryName(c.name, os),
		ContentType: octetStream,
		Mode:        string(RawBinary),
		Size:        art.Size,
	}
}

func (c *Composer) archiveSpec(os platform.OS, art builds.Artifact) archive.Spec {
	return archive.Spec{
		Format: ArchiveFormat(os),
		Name:   c.name,
		Entries: []archive.Entry{{
			Name:       BinaryName(c.name, os),
			Source:     art.Path,
			Executable: os != platform.Windows,
		}},
	}
}

func (c *Composer) installerSpec(os platform.OS, companionURL string, art builds.Artifact) (archive.Spec, error) {
	payload := PayloadName(c.name)
	script, err := installer.Render(installer.Options{
		Platform:     os,
		CompanionURL: companionURL,
		PayloadName:  payload,
		BinaryName:   BinaryName(c.name, os),
		Key:          c.key,
	})
	if err != nil {
		return archive.Spec{}, &archive.ConstructionError{Stage: "render installer", Err: err}
	}
	return archive.Spec{
		Format: archive.FormatZip,
		Name:   installerBase(c.name),
		Entries: []archive.Entry{
			{Name: script.Name, Content: []byte(script.Text), Executable: true},
			{Name: payload, Source: art.Path, Transform: true},
		},
	}, nil
}

func (c *Composer) assemble(ctx context.Context, mode Mode, spec archive.Spec) (delivery.Package, error) {
	b, err := c.assembler.Assemble(ctx, spec)
	if err != nil {
		return delivery.Package{}, err
	}
	c.logger.Debug("bundle assembled", "mode", mode, "workspace", b.Workspace.ID, "size", b.Size)
	return delivery.Package{
		Path:        b.Path,
		Filename:    spec.Name + spec.Format.Ext(),
		ContentType: spec.Format.ContentType(),
		Mode:        string(mode),
		Size:        b.Size,
		Cleanup:     b.Cleanup,
	}, nil
}

// ArchiveFormat is zip for Windows and tar.gz for posix platforms.
func ArchiveFormat(os platform.OS) archive.Format {
	if os == platform.Windows {
		return archive.FormatZip
	}
	return archive.FormatTarGz
}

// BinaryName is the disguised executable name for a platform.
func BinaryName(name string, os platform.OS) string {
	if os == platform.Windows {
		return name + ".exe"
	}
	return name
}

// PayloadName is the transformed payload inside installer packages.
func PayloadName(name string) string { return name + ".bin" }

func installerBase(name string) string { return name + "-installer" }

// DisguisedNames lists every filename the service can present for name, so
// the build locator never mistakes one of them for a build.
func DisguisedNames(name string) []string {
	return []string{
		name,
		name + ".exe",
		PayloadName(name),
		name + archive.FormatZip.Ext(),
		name + archive.FormatTarGz.Ext(),
		installerBase(name) + archive.FormatZip.Ext(),
	}
}
