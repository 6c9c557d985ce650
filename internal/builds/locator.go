// Package builds lists an externally populated artifact directory and selects
// the newest build for a platform.
package builds

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/mattjoyce/parcel/internal/platform"
)

// Artifact is a build file on disk. It is read-only to this service.
type Artifact struct {
	Name     string
	Path     string
	ModTime  time.Time
	Size     int64
	Platform platform.OS
}

// Locator reads a single artifact directory. It holds no mutable state and is
// safe for concurrent use.
type Locator struct {
	dir       string
	disguised map[string]struct{}
}

// NewLocator creates a Locator for dir. excludeNames lists output names the
// service itself produces so they are never picked up as builds.
func NewLocator(dir string, excludeNames ...string) *Locator {
	disguised := make(map[string]struct{}, len(excludeNames))
	for _, n := range excludeNames {
		if n = strings.TrimSpace(n); n != "" {
			disguised[strings.ToLower(n)] = struct{}{}
		}
	}
	return &Locator{dir: filepath.Clean(dir), disguised: disguised}
}

// Dir returns the directory the locator reads.
func (l *Locator) Dir() string { return l.dir }

// List returns every candidate artifact, newest first.
func (l *Locator) List(ctx context.Context) ([]Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, &IOError{Op: "read artifact directory", Path: l.dir, Err: err}
	}

	out := make([]Artifact, 0, len(entries))
	for _, entry := range entries {
		if excluded(entry.Name(), l.disguised) {
			continue
		}

		info, err := entry.Info()
		if errors.Is(err, fs.ErrNotExist) {
			// Removed by a concurrent deploy after the listing.
			continue
		}
		if err != nil {
			return nil, &IOError{Op: "stat artifact", Path: filepath.Join(l.dir, entry.Name()), Err: err}
		}
		if !info.Mode().IsRegular() {
			continue
		}

		out = append(out, Artifact{
			Name:     entry.Name(),
			Path:     filepath.Join(l.dir, entry.Name()),
			ModTime:  info.ModTime(),
			Size:     info.Size(),
			Platform: InferPlatform(entry.Name()),
		})
	}

	sort.Slice(out, func(i, j int) bool { return newer(out[i], out[j]) })
	return out, nil
}

// Latest selects the newest artifact for profile. When no filename carries
// the profile's platform token the full candidate set is used instead.
func (l *Locator) Latest(ctx context.Context, profile platform.Profile) (Artifact, error) {
	all, err := l.List(ctx)
	if err != nil {
		return Artifact{}, err
	}

	want := profile.OS()
	matching := make([]Artifact, 0, len(all))
	for _, a := range all {
		if a.Platform == want {
			matching = append(matching, a)
		}
	}
	if len(matching) == 0 {
		matching = all
	}

	best, ok := Newest(matching)
	if !ok {
		return Artifact{}, ErrNotFound
	}
	return best, nil
}

// Newest picks the artifact with the greatest modification time. Equal times
// are broken by the lexicographically greatest name.
func Newest(candidates []Artifact) (Artifact, bool) {
	if len(candidates) == 0 {
		return Artifact{}, false
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if newer(c, best) {
			best = c
		}
	}
	return best, true
}

func newer(a, b Artifact) bool {
	if !a.ModTime.Equal(b.ModTime) {
		return a.ModTime.After(b.ModTime)
	}
	return a.Name > b.Name
}
