package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/mattjoyce/parcel/internal/builds"
	"github.com/mattjoyce/parcel/internal/bundle"
	"github.com/mattjoyce/parcel/internal/config"
	"github.com/mattjoyce/parcel/internal/delivery"
	"github.com/mattjoyce/parcel/internal/platform"
)

type artifactView struct {
	Name     string    `json:"name"`
	Platform string    `json:"platform,omitempty"`
	Size     int64     `json:"size"`
	ModTime  time.Time `json:"mod_time"`
	Path     string    `json:"path"`
}

func viewOf(a builds.Artifact) artifactView {
	return artifactView{
		Name:     a.Name,
		Platform: string(a.Platform),
		Size:     a.Size,
		ModTime:  a.ModTime.UTC(),
		Path:     a.Path,
	}
}

func loadLocator(configPath string) (*config.Config, *builds.Locator, error) {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, nil, err
	}
	return cfg, builds.NewLocator(cfg.Artifacts.Dir, bundle.DisguisedNames(cfg.Delivery.Name)...), nil
}

func runBuildList(args []string) int {
	fs := newFlagSet("build list")
	configPath := fs.StringP("config", "c", "", "Path to configuration file")
	jsonOut := fs.Bool("json", false, "Output as JSON")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	_, loc, err := loadLocator(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Load error: %v\n", err)
		return 1
	}
	arts, err := loc.List(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list builds: %v\n", err)
		return 1
	}

	views := make([]artifactView, 0, len(arts))
	for _, a := range arts {
		views = append(views, viewOf(a))
	}

	if *jsonOut {
		data, _ := json.MarshalIndent(views, "", "  ")
		fmt.Println(string(data))
		return 0
	}
	if len(views) == 0 {
		fmt.Printf("No builds in %s\n", loc.Dir())
		return 0
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tPLATFORM\tSIZE\tMODIFIED")
	for _, v := range views {
		p := v.Platform
		if p == "" {
			p = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", v.Name, p, v.Size, v.ModTime.Format(time.RFC3339))
	}
	_ = tw.Flush()
	return 0
}

func runBuildLatest(args []string) int {
	fs := newFlagSet("build latest")
	configPath := fs.StringP("config", "c", "", "Path to configuration file")
	osName := fs.String("os", "", "Target platform: windows, macos or linux")
	ua := fs.String("user-agent", "", "Client descriptor used when --os is empty")
	jsonOut := fs.Bool("json", false, "Output as JSON")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	profile, err := platform.Detect(*osName, *ua)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	_, loc, err := loadLocator(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Load error: %v\n", err)
		return 1
	}
	art, err := loc.Latest(context.Background(), profile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "No build for %s: %v\n", profile, err)
		return 1
	}

	if *jsonOut {
		data, _ := json.MarshalIndent(viewOf(art), "", "  ")
		fmt.Println(string(data))
		return 0
	}
	fmt.Printf("%s -> %s\n", profile, art.Name)
	return 0
}

// runBundle writes the package a platform would download, without a server.
func runBundle(args []string) int {
	fs := newFlagSet("bundle")
	configPath := fs.StringP("config", "c", "", "Path to configuration file")
	osName := fs.String("os", "", "Target platform: windows, macos or linux (required)")
	rpm := fs.Bool("rpm", false, "Treat a linux target as an RPM-family distribution")
	raw := fs.Bool("raw", false, "Write the raw build instead of an archive")
	out := fs.StringP("out", "o", "", "Output path (default: the delivered filename in the current directory)")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	if *osName == "" {
		fmt.Fprintln(os.Stderr, "Usage: parcel bundle --os <windows|macos|linux> [--rpm] [--raw] [--out FILE]")
		return 1
	}

	profile, err := platform.Detect(*osName, "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	profile.RPMFamily = *rpm && profile.Linux

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Load error: %v\n", err)
		return 1
	}
	p, err := newPipeline(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Init error: %v\n", err)
		return 1
	}

	ctx := context.Background()
	art, err := p.locator.Latest(ctx, profile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "No build for %s: %v\n", profile, err)
		return 1
	}

	req := bundle.Decide(profile, companionsFromConfig(cfg.Companions), *raw)
	pkg, err := p.composer.Compose(ctx, req, art)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Bundle failed: %v\n", err)
		return 1
	}
	defer func() {
		if pkg.Cleanup != nil {
			_ = pkg.Cleanup()
		}
	}()

	dest := *out
	if dest == "" {
		dest = pkg.Filename
	}
	n, err := copyPackage(pkg, dest)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Write failed: %v\n", err)
		return 1
	}
	fmt.Printf("Wrote %s (%s, %d bytes) from %s\n", dest, pkg.Mode, n, art.Name)
	return 0
}

func copyPackage(pkg delivery.Package, dest string) (int64, error) {
	src, err := os.Open(pkg.Path)
	if err != nil {
		return 0, err
	}
	defer src.Close()

	if dir := filepath.Dir(dest); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return 0, err
		}
	}
	mode := os.FileMode(0o644)
	if pkg.Mode == string(bundle.RawBinary) {
		mode = 0o755
	}
	dst, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(dst, src)
	if closeErr := dst.Close(); err == nil {
		err = closeErr
	}
	return n, err
}
