package platform

import "strings"

// rule maps a lowercased descriptor predicate onto an operating system.
type rule struct {
	name  string
	match func(desc string) bool
	os    OS
}

// descriptorRules are evaluated top to bottom; the first match wins.
var descriptorRules = []rule{
	{
		name:  "windows",
		match: func(d string) bool { return strings.Contains(d, "windows") },
		os:    Windows,
	},
	{
		name:  "macintosh",
		match: func(d string) bool { return strings.Contains(d, "macintosh") },
		os:    MacOS,
	},
	{
		name: "linux-not-android",
		match: func(d string) bool {
			return strings.Contains(d, "linux") && !strings.Contains(d, "android")
		},
		os: Linux,
	},
	{
		name:  "default",
		match: func(string) bool { return true },
		os:    Linux,
	},
}

// rpmTokens mark distributions that install .rpm packages.
var rpmTokens = []string{
	"fedora",
	"red hat",
	"rhel",
	"centos",
	"rocky",
	"almalinux",
	"suse",
	"opensuse",
	"mageia",
	"oracle linux",
}

func matchDescriptor(desc string) OS {
	for _, r := range descriptorRules {
		if r.match(desc) {
			return r.os
		}
	}
	return Linux
}

func isRPMFamily(desc string) bool {
	for _, tok := range rpmTokens {
		if strings.Contains(desc, tok) {
			return true
		}
	}
	return false
}
