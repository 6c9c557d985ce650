package main

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/parcel/internal/config"
	"github.com/mattjoyce/parcel/internal/doctor"
)

func runConfigCheck(args []string) int {
	fs := newFlagSet("config check")
	configPath := fs.StringP("config", "c", "", "Path to configuration file")
	format := fs.String("format", "human", "Output format: human or json")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration invalid: %v\n", err)
		return 1
	}

	result := doctor.New(cfg).Validate(context.Background())
	switch *format {
	case "json":
		out, err := doctor.FormatJSON(result)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render JSON: %v\n", err)
			return 1
		}
		fmt.Println(out)
	default:
		fmt.Print(doctor.FormatHuman(result))
	}

	if !result.Valid {
		return 1
	}
	return 0
}

func runConfigLock(args []string) int {
	fs := newFlagSet("config lock")
	configPath := fs.StringP("config", "c", "", "Path to configuration file")
	verbose := fs.BoolP("verbose", "v", false, "List hashed files")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	path := *configPath
	if path == "" {
		discovered, err := config.Discover()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to discover config: %v\n", err)
			return 1
		}
		path = discovered
	}

	report, err := config.Lock(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Lock failed: %v\n", err)
		return 1
	}
	fmt.Printf("Wrote %s\n", report.ChecksumPath)
	if *verbose {
		for _, f := range report.Files {
			fmt.Printf("  %s  %s\n", f.Hash, f.Filename)
		}
	}
	return 0
}

func runConfigShow(args []string) int {
	fs := newFlagSet("config show")
	configPath := fs.StringP("config", "c", "", "Path to configuration file")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Load error: %v\n", err)
		return 1
	}
	if cfg.API.OperatorToken != "" {
		cfg.API.OperatorToken = "<redacted>"
	}
	out, err := yaml.Marshal(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render config: %v\n", err)
		return 1
	}
	fmt.Print(string(out))
	return 0
}
