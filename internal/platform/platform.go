// Package platform resolves the target platform of a download request from an
// explicit override or a client descriptor such as a User-Agent string.
package platform

import (
	"errors"
	"fmt"
	"strings"
)

// OS names a supported target operating system.
type OS string

const (
	Windows OS = "windows"
	MacOS   OS = "macos"
	Linux   OS = "linux"
)

// ErrUnknownPlatform is returned for an override outside the supported set.
var ErrUnknownPlatform = errors.New("unknown platform")

// Profile is the per-request platform decision. Exactly one of Windows, Mac and
// Linux is true. RPMFamily is only ever true together with Linux.
type Profile struct {
	Windows   bool
	Mac       bool
	Linux     bool
	RPMFamily bool
}

// OS returns the operating system the profile selects.
func (p Profile) OS() OS {
	switch {
	case p.Windows:
		return Windows
	case p.Mac:
		return MacOS
	default:
		return Linux
	}
}

// String renders the profile for logs and ledger rows, e.g. "linux/rpm".
func (p Profile) String() string {
	if p.RPMFamily {
		return string(p.OS()) + "/rpm"
	}
	return string(p.OS())
}

// ForOS builds the profile for a single operating system.
func ForOS(os OS) Profile {
	switch os {
	case Windows:
		return Profile{Windows: true}
	case MacOS:
		return Profile{Mac: true}
	default:
		return Profile{Linux: true}
	}
}

// ParseOS parses an override value. Empty input yields ok=false with no error.
func ParseOS(raw string) (OS, bool, error) {
	v := strings.ToLower(strings.TrimSpace(raw))
	switch v {
	case "":
		return "", false, nil
	case string(Windows):
		return Windows, true, nil
	case string(MacOS):
		return MacOS, true, nil
	case string(Linux):
		return Linux, true, nil
	default:
		return "", false, fmt.Errorf("%w: %q (want windows, macos or linux)", ErrUnknownPlatform, raw)
	}
}

// Detect resolves a Profile. A valid override wins outright; otherwise the
// descriptor rules are applied in order.
func Detect(override, descriptor string) (Profile, error) {
	os, ok, err := ParseOS(override)
	if err != nil {
		return Profile{}, err
	}

	desc := strings.ToLower(descriptor)
	if !ok {
		os = matchDescriptor(desc)
	}

	p := ForOS(os)
	if p.Linux {
		p.RPMFamily = isRPMFamily(desc)
	}
	return p, nil
}
