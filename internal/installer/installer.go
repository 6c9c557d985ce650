// Package installer renders the per-platform install scripts shipped inside
// installer bundles. Rendering is a pure function of its options.
package installer

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"
	"text/template"

	"github.com/mattjoyce/parcel/internal/platform"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var scripts = template.Must(
	template.New("installer").
		Funcs(template.FuncMap{"sh": shellQuote, "bat": batchValue}).
		ParseFS(templateFS, "templates/*.tmpl"),
)

// Script is a rendered installer script.
type Script struct {
	Platform platform.OS
	Name     string
	Text     string
}

// Options controls rendering.
type Options struct {
	Platform     platform.OS
	CompanionURL string
	// PayloadName is the bundled, transformed artifact next to the script.
	PayloadName string
	// BinaryName is the file the script reconstitutes and launches.
	BinaryName string
	Key        byte
}

// CompanionKind classifies the companion download by extension.
type CompanionKind string

const (
	CompanionDeb    CompanionKind = "deb"
	CompanionRPM    CompanionKind = "rpm"
	CompanionDirect CompanionKind = "direct"
)

var (
	safeName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)
	unsafeCh = regexp.MustCompile(`[^A-Za-z0-9._-]`)
)

// ErrInvalidOptions wraps every validation failure from Render.
var ErrInvalidOptions = errors.New("invalid installer options")

// ScriptName returns the script filename used for a platform.
func ScriptName(os platform.OS) string {
	switch os {
	case platform.Windows:
		return "install.bat"
	case platform.MacOS:
		return "install.command"
	default:
		return "install.sh"
	}
}

// Kind classifies a companion URL by the extension of its path.
func Kind(companionURL string) CompanionKind {
	u, err := url.Parse(companionURL)
	if err != nil {
		return CompanionDirect
	}
	switch strings.ToLower(path.Ext(u.Path)) {
	case ".deb":
		return CompanionDeb
	case ".rpm":
		return CompanionRPM
	default:
		return CompanionDirect
	}
}

// ValidateURL checks that a companion URL is an absolute http(s) URL that can
// be embedded in every script dialect.
func ValidateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("parse companion url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("companion url %q must use http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("companion url %q has no host", raw)
	}
	if strings.ContainsAny(raw, "\"\r\n\x00") {
		return fmt.Errorf("companion url %q contains characters that cannot be quoted", raw)
	}
	return nil
}

type scriptData struct {
	CompanionURL  string
	CompanionFile string
	CompanionKind CompanionKind
	PayloadName   string
	BinaryName    string
	Key           int
}

// Render produces the install script for opts.Platform.
func Render(opts Options) (Script, error) {
	if err := ValidateURL(opts.CompanionURL); err != nil {
		return Script{}, fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}
	for field, v := range map[string]string{"payload name": opts.PayloadName, "binary name": opts.BinaryName} {
		if !safeName.MatchString(v) {
			return Script{}, fmt.Errorf("%w: %s %q", ErrInvalidOptions, field, v)
		}
	}
	if opts.Key == 0 {
		return Script{}, fmt.Errorf("%w: transform key must be non-zero", ErrInvalidOptions)
	}

	data := scriptData{
		CompanionURL:  opts.CompanionURL,
		CompanionFile: companionFile(opts.CompanionURL),
		CompanionKind: Kind(opts.CompanionURL),
		PayloadName:   opts.PayloadName,
		BinaryName:    opts.BinaryName,
		Key:           int(opts.Key),
	}

	name := ScriptName(opts.Platform)
	var buf bytes.Buffer
	if err := scripts.ExecuteTemplate(&buf, name+".tmpl", data); err != nil {
		return Script{}, fmt.Errorf("render %s: %w", name, err)
	}

	text := buf.String()
	if opts.Platform == platform.Windows {
		text = strings.ReplaceAll(text, "\n", "\r\n")
	}
	return Script{Platform: opts.Platform, Name: name, Text: text}, nil
}

// companionFile derives a local filename from the URL path, keeping only
// characters that need no quoting.
func companionFile(companionURL string) string {
	name := ""
	if u, err := url.Parse(companionURL); err == nil {
		name = path.Base(u.Path)
	}
	name = unsafeCh.ReplaceAllString(name, "_")
	name = strings.TrimLeft(name, "._-")
	if name == "" {
		return "companion"
	}
	return name
}

// shellQuote wraps s in POSIX single quotes.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// batchValue prepares s for a quoted `set "VAR=value"` statement. Quotes and
// line breaks are rejected by ValidateURL before rendering.
func batchValue(s string) (string, error) {
	if strings.ContainsAny(s, "\"\r\n\x00") {
		return "", fmt.Errorf("value %q cannot be embedded in a batch script", s)
	}
	return strings.ReplaceAll(s, "%", "%%"), nil
}
