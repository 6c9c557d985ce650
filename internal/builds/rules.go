package builds

import (
	"strings"

	"github.com/mattjoyce/parcel/internal/platform"
)

// platformRule tags a filename with the platform its token names.
type platformRule struct {
	token string
	os    platform.OS
}

// platformRules are checked in order against the lowercased filename.
var platformRules = []platformRule{
	{token: "windows", os: platform.Windows},
	{token: "darwin", os: platform.MacOS},
	{token: "macos", os: platform.MacOS},
	{token: "linux", os: platform.Linux},
}

// exclusionRule rejects names that are not build artifacts.
type exclusionRule struct {
	name  string
	match func(lower string) bool
}

// archiveSuffixes are outputs this service or a previous run may leave behind.
var archiveSuffixes = []string{".zip", ".tar.gz", ".tgz", ".partial"}

var exclusionRules = []exclusionRule{
	{
		name:  "hidden",
		match: func(n string) bool { return strings.HasPrefix(n, ".") },
	},
	{
		name: "archive-output",
		match: func(n string) bool {
			for _, suffix := range archiveSuffixes {
				if strings.HasSuffix(n, suffix) {
					return true
				}
			}
			return false
		},
	},
}

// InferPlatform returns the platform a filename is tagged with, or "" if it
// carries no platform token.
func InferPlatform(name string) platform.OS {
	lower := strings.ToLower(name)
	for _, r := range platformRules {
		if strings.Contains(lower, r.token) {
			return r.os
		}
	}
	return ""
}

func excluded(name string, disguised map[string]struct{}) bool {
	lower := strings.ToLower(name)
	if _, ok := disguised[lower]; ok {
		return true
	}
	for _, r := range exclusionRules {
		if r.match(lower) {
			return true
		}
	}
	return false
}
