package builds

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/parcel/internal/platform"
)

var baseTime = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func writeBuild(t *testing.T, dir, name string, mtime time.Time) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("build:"+name), 0o755))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
	return path
}

func TestLatestSelectsNewestForPlatform(t *testing.T) {
	dir := t.TempDir()
	writeBuild(t, dir, "app-windows-2024-01-01.exe", baseTime.AddDate(0, -5, 0))
	writeBuild(t, dir, "app-windows-2024-06-01.exe", baseTime)
	writeBuild(t, dir, "app-linux-2024-07-01", baseTime.AddDate(0, 1, 0))

	loc := NewLocator(dir)
	got, err := loc.Latest(context.Background(), platform.ForOS(platform.Windows))
	require.NoError(t, err)
	assert.Equal(t, "app-windows-2024-06-01.exe", got.Name)
	assert.Equal(t, platform.Windows, got.Platform)
	assert.Equal(t, filepath.Join(dir, "app-windows-2024-06-01.exe"), got.Path)
}

func TestLatestDarwinAndMacosTokens(t *testing.T) {
	dir := t.TempDir()
	writeBuild(t, dir, "app-darwin-arm64", baseTime)
	writeBuild(t, dir, "app-macos-universal", baseTime.Add(time.Hour))

	got, err := NewLocator(dir).Latest(context.Background(), platform.ForOS(platform.MacOS))
	require.NoError(t, err)
	assert.Equal(t, "app-macos-universal", got.Name)
}

func TestLatestFallsBackToUnfilteredSet(t *testing.T) {
	dir := t.TempDir()
	writeBuild(t, dir, "app-linux-amd64", baseTime)

	got, err := NewLocator(dir).Latest(context.Background(), platform.ForOS(platform.MacOS))
	require.NoError(t, err)
	assert.Equal(t, "app-linux-amd64", got.Name)
}

func TestFallbackTieBreakIsLexicographicallyGreatest(t *testing.T) {
	dir := t.TempDir()
	writeBuild(t, dir, "app-linux-a", baseTime)
	writeBuild(t, dir, "app-linux-c", baseTime)
	writeBuild(t, dir, "app-linux-b", baseTime)
	writeBuild(t, dir, "app-linux-z-old", baseTime.Add(-time.Minute))

	got, err := NewLocator(dir).Latest(context.Background(), platform.ForOS(platform.Windows))
	require.NoError(t, err)
	assert.Equal(t, "app-linux-c", got.Name)
}

func TestNewestTieBreak(t *testing.T) {
	cands := []Artifact{
		{Name: "b", ModTime: baseTime},
		{Name: "c", ModTime: baseTime},
		{Name: "a", ModTime: baseTime},
	}
	got, ok := Newest(cands)
	require.True(t, ok)
	assert.Equal(t, "c", got.Name)

	_, ok = Newest(nil)
	assert.False(t, ok)
}

func TestLatestEmptyDirectoryIsNotFound(t *testing.T) {
	_, err := NewLocator(t.TempDir()).Latest(context.Background(), platform.ForOS(platform.Linux))
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestLatestMissingDirectoryIsIOError(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "does-not-exist")
	_, err := NewLocator(dir).Latest(context.Background(), platform.ForOS(platform.Linux))
	require.Error(t, err)

	var ioErr *IOError
	require.True(t, errors.As(err, &ioErr))
	assert.Equal(t, dir, ioErr.Path)
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestListExcludesGeneratedAndNonRegular(t *testing.T) {
	dir := t.TempDir()
	writeBuild(t, dir, "app-linux-amd64", baseTime)
	writeBuild(t, dir, "app-linux.tar.gz", baseTime.Add(time.Hour))
	writeBuild(t, dir, "app-windows.zip", baseTime.Add(time.Hour))
	writeBuild(t, dir, "old.tgz", baseTime.Add(time.Hour))
	writeBuild(t, dir, ".hidden-linux", baseTime.Add(time.Hour))
	writeBuild(t, dir, "WeatherApp.exe", baseTime.Add(time.Hour))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "linux-dir"), 0o755))
	require.NoError(t, os.Symlink(filepath.Join(dir, "app-linux-amd64"), filepath.Join(dir, "app-linux-link")))

	list, err := NewLocator(dir, "weatherapp.exe").List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "app-linux-amd64", list[0].Name)
}

func TestListOrderedNewestFirst(t *testing.T) {
	dir := t.TempDir()
	writeBuild(t, dir, "a-linux", baseTime.Add(-time.Hour))
	writeBuild(t, dir, "b-linux", baseTime)
	writeBuild(t, dir, "c-windows", baseTime.Add(time.Hour))

	list, err := NewLocator(dir).List(context.Background())
	require.NoError(t, err)
	names := []string{list[0].Name, list[1].Name, list[2].Name}
	assert.Equal(t, []string{"c-windows", "b-linux", "a-linux"}, names)
}

func TestListHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewLocator(t.TempDir()).List(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestInferPlatform(t *testing.T) {
	tests := map[string]platform.OS{
		"App-Windows-x64.exe": platform.Windows,
		"app-darwin-arm64":    platform.MacOS,
		"app-MacOS.dmg":       platform.MacOS,
		"app-linux":           platform.Linux,
		"app-universal":       "",
	}
	for name, want := range tests {
		assert.Equal(t, want, InferPlatform(name), name)
	}
}

func TestExclusionRules(t *testing.T) {
	byName := map[string]exclusionRule{}
	for _, r := range exclusionRules {
		byName[r.name] = r
	}
	assert.True(t, byName["hidden"].match(".ds_store"))
	assert.False(t, byName["hidden"].match("app.exe"))
	assert.True(t, byName["archive-output"].match("bundle.tar.gz"))
	assert.True(t, byName["archive-output"].match("bundle.zip"))
	assert.False(t, byName["archive-output"].match("app-linux"))
}
