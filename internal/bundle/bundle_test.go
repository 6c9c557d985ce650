package bundle

import (
	"archive/tar"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/parcel/internal/archive"
	"github.com/mattjoyce/parcel/internal/builds"
	"github.com/mattjoyce/parcel/internal/installer"
	"github.com/mattjoyce/parcel/internal/platform"
	"github.com/mattjoyce/parcel/internal/transform"
	"github.com/mattjoyce/parcel/internal/workspace"
)

func TestDecide(t *testing.T) {
	companions := Companions{
		Windows:  "https://cdn.example.com/vcredist.exe",
		Linux:    "https://cdn.example.com/runtime.deb",
		LinuxRPM: "https://cdn.example.com/runtime.rpm",
	}

	tests := []struct {
		name       string
		profile    platform.Profile
		companions Companions
		forceRaw   bool
		wantMode   Mode
		wantURL    string
	}{
		{"windows with companion", platform.ForOS(platform.Windows), companions, false, InstallerPackage, companions.Windows},
		{"windows without companion", platform.ForOS(platform.Windows), Companions{}, false, PlatformArchive, ""},
		{"macos without companion", platform.ForOS(platform.MacOS), companions, false, PlatformArchive, ""},
		{"debian linux", platform.ForOS(platform.Linux), companions, false, InstallerPackage, companions.Linux},
		{"rpm linux", platform.Profile{Linux: true, RPMFamily: true}, companions, false, InstallerPackage, companions.LinuxRPM},
		{"rpm linux without rpm url", platform.Profile{Linux: true, RPMFamily: true}, Companions{Linux: companions.Linux}, false, InstallerPackage, companions.Linux},
		{"forced raw ignores companion", platform.ForOS(platform.Windows), companions, true, RawBinary, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := Decide(tt.profile, tt.companions, tt.forceRaw)
			assert.Equal(t, tt.wantMode, req.Mode)
			assert.Equal(t, tt.wantURL, req.CompanionURL)
			assert.Equal(t, tt.profile, req.Profile)
		})
	}
}

func TestNames(t *testing.T) {
	assert.Equal(t, "WeatherApp.exe", BinaryName("WeatherApp", platform.Windows))
	assert.Equal(t, "WeatherApp", BinaryName("WeatherApp", platform.MacOS))
	assert.Equal(t, archive.FormatZip, ArchiveFormat(platform.Windows))
	assert.Equal(t, archive.FormatTarGz, ArchiveFormat(platform.Linux))
	assert.ElementsMatch(t, []string{
		"WeatherApp", "WeatherApp.exe", "WeatherApp.bin",
		"WeatherApp.zip", "WeatherApp.tar.gz", "WeatherApp-installer.zip",
	}, DisguisedNames("WeatherApp"))
}

type env struct {
	artifacts string
	wsBase    string
	locator   *builds.Locator
	composer  *Composer
}

func newEnv(t *testing.T) env {
	t.Helper()
	root := t.TempDir()
	artifacts := filepath.Join(root, "builds")
	require.NoError(t, os.Mkdir(artifacts, 0o755))
	wsBase := filepath.Join(root, "work")

	mgr, err := workspace.NewFSManager(wsBase)
	require.NoError(t, err)
	asm := archive.New(mgr, archive.WithKey(0x33))
	return env{
		artifacts: artifacts,
		wsBase:    wsBase,
		locator:   builds.NewLocator(artifacts, DisguisedNames(DefaultName)...),
		composer:  NewComposer(asm, WithKey(0x33)),
	}
}

func (e env) addBuild(t *testing.T, name, content string, mtime time.Time) {
	t.Helper()
	path := filepath.Join(e.artifacts, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func (e env) workspaces(t *testing.T) int {
	t.Helper()
	entries, err := os.ReadDir(e.wsBase)
	if errors.Is(err, os.ErrNotExist) {
		return 0
	}
	require.NoError(t, err)
	return len(entries)
}

func readZipEntries(t *testing.T, path string) map[string][]byte {
	t.Helper()
	zr, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer zr.Close()

	out := make(map[string][]byte)
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		b, err := io.ReadAll(rc)
		rc.Close()
		require.NoError(t, err)
		out[f.Name] = b
	}
	return out
}

func TestComposeWindowsArchiveServesNewestBuild(t *testing.T) {
	e := newEnv(t)
	e.addBuild(t, "app-windows-2024-01-01.exe", "january", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	e.addBuild(t, "app-windows-2024-06-01.exe", "june", time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))

	profile := platform.ForOS(platform.Windows)
	art, err := e.locator.Latest(context.Background(), profile)
	require.NoError(t, err)

	pkg, err := e.composer.Compose(context.Background(), Decide(profile, Companions{}, false), art)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pkg.Cleanup() })

	assert.Equal(t, "application/zip", pkg.ContentType)
	assert.Equal(t, "WeatherApp.zip", pkg.Filename)
	assert.Equal(t, string(PlatformArchive), pkg.Mode)

	entries := readZipEntries(t, pkg.Path)
	require.Len(t, entries, 1)
	assert.Equal(t, []byte("june"), entries["WeatherApp.exe"])

	require.NoError(t, pkg.Cleanup())
	assert.Equal(t, 0, e.workspaces(t))
}

func TestComposeLinuxBuildForMacOSIsTarGz(t *testing.T) {
	e := newEnv(t)
	e.addBuild(t, "app-linux-amd64", "elf", time.Now())

	profile := platform.ForOS(platform.MacOS)
	art, err := e.locator.Latest(context.Background(), profile)
	require.NoError(t, err)
	assert.Equal(t, "app-linux-amd64", art.Name)

	pkg, err := e.composer.Compose(context.Background(), Decide(profile, Companions{}, false), art)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pkg.Cleanup() })

	assert.Equal(t, "application/gzip", pkg.ContentType)
	assert.Equal(t, "WeatherApp.tar.gz", pkg.Filename)

	f, err := os.Open(pkg.Path)
	require.NoError(t, err)
	defer f.Close()
	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	tr := tar.NewReader(gz)
	hdr, err := tr.Next()
	require.NoError(t, err)
	assert.Equal(t, "WeatherApp", hdr.Name)
	assert.NotZero(t, hdr.Mode&0o111)
	body, err := io.ReadAll(tr)
	require.NoError(t, err)
	assert.Equal(t, "elf", string(body))
}

func TestComposeInstallerPackage(t *testing.T) {
	e := newEnv(t)
	e.addBuild(t, "app-linux-amd64", "elf-binary", time.Now())

	profile := platform.Profile{Linux: true, RPMFamily: true}
	req := Decide(profile, Companions{LinuxRPM: "https://cdn.example.com/runtime-1.2.rpm"}, false)
	require.Equal(t, InstallerPackage, req.Mode)

	art, err := e.locator.Latest(context.Background(), profile)
	require.NoError(t, err)

	pkg, err := e.composer.Compose(context.Background(), req, art)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pkg.Cleanup() })

	assert.Equal(t, "WeatherApp-installer.zip", pkg.Filename)
	assert.Equal(t, "application/zip", pkg.ContentType)
	assert.Equal(t, string(InstallerPackage), pkg.Mode)

	entries := readZipEntries(t, pkg.Path)
	require.Len(t, entries, 2)
	script := string(entries["install.sh"])
	assert.Contains(t, script, "https://cdn.example.com/runtime-1.2.rpm")
	assert.Contains(t, script, "dnf install -y")
	assert.Equal(t, []byte("elf-binary"), transform.Apply(entries["WeatherApp.bin"], 0x33))
}

func TestComposeRawSkipsAssembler(t *testing.T) {
	asm := &failingAssembler{}
	c := NewComposer(asm, WithName("Forecast"))
	art := builds.Artifact{Name: "app-windows.exe", Path: "/builds/app-windows.exe", Size: 42}

	pkg, err := c.Compose(context.Background(), Decide(platform.ForOS(platform.Windows), Companions{}, true), art)
	require.NoError(t, err)
	assert.Equal(t, "Forecast.exe", pkg.Filename)
	assert.Equal(t, "application/octet-stream", pkg.ContentType)
	assert.Equal(t, art.Path, pkg.Path)
	assert.EqualValues(t, 42, pkg.Size)
	assert.Nil(t, pkg.Cleanup)
	assert.Zero(t, asm.calls)
}

type failingAssembler struct{ calls int }

func (f *failingAssembler) Assemble(context.Context, archive.Spec) (*archive.Bundle, error) {
	f.calls++
	return nil, &archive.ConstructionError{Stage: "stage", Err: errors.New("disk on fire")}
}

func TestComposeArchiveFailureIsConstructionError(t *testing.T) {
	asm := &failingAssembler{}
	c := NewComposer(asm)

	_, err := c.Compose(context.Background(), Decide(platform.ForOS(platform.Linux), Companions{}, false), builds.Artifact{Path: "/x"})
	var ce *archive.ConstructionError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, 1, asm.calls)
}

func TestComposeInstallerRejectsBadCompanion(t *testing.T) {
	asm := &failingAssembler{}
	c := NewComposer(asm)
	req := Request{Profile: platform.ForOS(platform.Windows), Mode: InstallerPackage, CompanionURL: "ftp://bad"}

	_, err := c.Compose(context.Background(), req, builds.Artifact{Path: "/x"})
	var ce *archive.ConstructionError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "render installer", ce.Stage)
	assert.ErrorIs(t, err, installer.ErrInvalidOptions)
	assert.Zero(t, asm.calls)
}
