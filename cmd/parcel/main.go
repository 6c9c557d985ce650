package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/mattjoyce/parcel/internal/tui"
)

var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

// EnvOperatorToken supplies the bearer token for watch and status.
const EnvOperatorToken = "PARCEL_OPERATOR_TOKEN"

func main() {
	os.Exit(runCLI(os.Args[1:]))
}

func runCLI(cliArgs []string) int {
	if len(cliArgs) < 1 {
		printUsage()
		return 1
	}

	cmd := cliArgs[0]
	args := cliArgs[1:]

	switch cmd {
	// --- NOUNS ---
	case "system":
		return runSystemNoun(args)
	case "config":
		return runConfigNoun(args)
	case "build":
		return runBuildNoun(args)
	case "bundle":
		return runBundle(args)

	// --- ROOT ALIASES ---
	case "serve":
		return runServe(args)
	case "watch":
		return runWatch(args)
	case "doctor":
		return runConfigCheck(args)
	case "version", "--version":
		return runVersion(args)
	case "help", "--help", "-h":
		printUsage()
		return 0

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		return 1
	}
}

// newFlagSet returns a pflag set that reports errors instead of exiting.
func newFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SortFlags = false
	return fs
}

// parseFlags parses args and reports whether the caller should continue.
// Help requests exit 0.
func parseFlags(fs *pflag.FlagSet, args []string) (code int, ok bool) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0, false
		}
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1, false
	}
	return 0, true
}

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

func runVersion(args []string) int {
	fs := newFlagSet("version")
	jsonOut := fs.Bool("json", false, "Output version metadata as JSON")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(os.Stderr, "Usage: parcel version [--json]")
		return 1
	}

	info := currentVersionInfo()

	if *jsonOut {
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render version JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	fmt.Printf("parcel %s\n", info.Version)
	fmt.Printf("commit: %s\n", info.Commit)
	fmt.Printf("built_at: %s\n", info.BuildTime)
	return 0
}

func currentVersionInfo() versionInfo {
	info := versionInfo{
		Version:   strings.TrimSpace(version),
		Commit:    "unknown",
		BuildTime: "unknown",
	}
	if info.Version == "" {
		info.Version = "0.0.0-dev"
	}

	commit := strings.TrimSpace(gitCommit)
	if commit == "" || commit == "unknown" {
		commit = strings.TrimSpace(readBuildSetting("vcs.revision"))
	}
	if commit != "" {
		info.Commit = shortenCommit(commit)
	}

	built := strings.TrimSpace(buildDate)
	if built == "" || built == "unknown" {
		built = strings.TrimSpace(readBuildSetting("vcs.time"))
	}
	if t, err := time.Parse(time.RFC3339Nano, built); err == nil {
		info.BuildTime = t.UTC().Format(time.RFC3339)
	}
	return info
}

func shortenCommit(commit string) string {
	if len(commit) <= 12 {
		return commit
	}
	return commit[:12]
}

func readBuildSetting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == key {
			return setting.Value
		}
	}
	return ""
}

func printUsage() {
	fmt.Print(`parcel - serve the newest build for each platform under a disguised name

Usage:
  parcel <noun> <action> [flags]

Core Resources (Nouns):
  system    Server lifecycle and health
  config    Configuration validation and integrity
  build     Artifact directory inspection

System Commands:
  system serve      Start the download server in foreground
  system status     Show health of a running server
  system watch      Live download monitor TUI

Config Commands:
  config check      Validate configuration against this host
  config lock       Record integrity hashes for the config file
  config show       Print the effective configuration

Build Commands:
  build list        List candidate builds, newest first
  build latest      Show the build a platform would receive

Offline:
  bundle            Write the package a platform would download to a file

General:
  serve, watch      Aliases for system serve and system watch
  version           Show version information
  help              Show this help message

Use 'parcel <noun> help' for action-specific flags.
`)
}

// --- NOUN DISPATCHERS ---

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}

func runSystemNoun(args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: parcel system <serve|status|watch>")
		return 1
	}
	if isHelpToken(args[0]) {
		fmt.Println("Usage: parcel system <serve|status|watch>")
		return 0
	}

	switch args[0] {
	case "serve", "start":
		return runServe(args[1:])
	case "status":
		return runSystemStatus(args[1:])
	case "watch":
		return runWatch(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown system action: %s\n", args[0])
		return 1
	}
}

func runConfigNoun(args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: parcel config <check|lock|show>")
		return 1
	}
	if isHelpToken(args[0]) {
		fmt.Println("Usage: parcel config <check|lock|show>")
		return 0
	}

	switch args[0] {
	case "check":
		return runConfigCheck(args[1:])
	case "lock":
		return runConfigLock(args[1:])
	case "show":
		return runConfigShow(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", args[0])
		return 1
	}
}

func runBuildNoun(args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: parcel build <list|latest>")
		return 1
	}
	if isHelpToken(args[0]) {
		fmt.Println("Usage: parcel build <list|latest>")
		return 0
	}

	switch args[0] {
	case "list":
		return runBuildList(args[1:])
	case "latest":
		return runBuildLatest(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown build action: %s\n", args[0])
		return 1
	}
}

func runWatch(args []string) int {
	fs := newFlagSet("watch")
	apiURL := fs.String("api-url", "http://localhost:8080", "Server base URL")
	token := fs.String("token", os.Getenv(EnvOperatorToken), "Operator bearer token")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	if err := tui.Run(*apiURL, *token); err != nil {
		fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
		return 1
	}
	return 0
}
