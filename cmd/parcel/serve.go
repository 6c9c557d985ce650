package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattjoyce/parcel/internal/api"
	"github.com/mattjoyce/parcel/internal/archive"
	"github.com/mattjoyce/parcel/internal/builds"
	"github.com/mattjoyce/parcel/internal/bundle"
	"github.com/mattjoyce/parcel/internal/config"
	"github.com/mattjoyce/parcel/internal/events"
	"github.com/mattjoyce/parcel/internal/ledger"
	"github.com/mattjoyce/parcel/internal/lock"
	"github.com/mattjoyce/parcel/internal/log"
	"github.com/mattjoyce/parcel/internal/storage"
	"github.com/mattjoyce/parcel/internal/weather"
	"github.com/mattjoyce/parcel/internal/workspace"
)

// pipeline is the download path shared by the server and the offline
// bundle command.
type pipeline struct {
	workspaces workspace.Manager
	assembler  *archive.Assembler
	composer   *bundle.Composer
	locator    *builds.Locator
}

func newPipeline(cfg *config.Config) (*pipeline, error) {
	ws, err := workspace.NewFSManager(cfg.Workspace.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("workspace manager: %w", err)
	}
	engine, err := archive.ParseEngine(cfg.Archive.Engine)
	if err != nil {
		return nil, err
	}

	key := cfg.Transform.KeyByte()
	asm := archive.New(ws,
		archive.WithEngine(engine),
		archive.WithKey(key),
		archive.WithTimeout(cfg.Archive.Timeout),
		archive.WithMinFreeBytes(cfg.Archive.MinFreeBytes),
		archive.WithArchivers(cfg.Archive.TarPath, cfg.Archive.ZipPath),
		archive.WithLogger(log.WithComponent("archive")),
	)
	composer := bundle.NewComposer(asm,
		bundle.WithName(cfg.Delivery.Name),
		bundle.WithKey(key),
		bundle.WithLogger(log.WithComponent("bundle")),
	)
	return &pipeline{
		workspaces: ws,
		assembler:  asm,
		composer:   composer,
		locator:    builds.NewLocator(cfg.Artifacts.Dir, bundle.DisguisedNames(composer.Name())...),
	}, nil
}

func companionsFromConfig(c config.CompanionsConfig) bundle.Companions {
	return bundle.Companions{
		Windows:  c.Windows,
		MacOS:    c.MacOS,
		Linux:    c.Linux,
		LinuxRPM: c.LinuxRPM,
	}
}

// app is a fully wired server plus the resources it must release.
type app struct {
	server   *api.Server
	pipeline *pipeline
	hub      *events.Hub
	closers  []func() error
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	p, err := newPipeline(cfg)
	if err != nil {
		return nil, err
	}

	a := &app{pipeline: p, hub: events.NewHub(256)}
	var opts []api.Option

	if cfg.Ledger.Path != "" {
		db, err := storage.OpenSQLite(ctx, cfg.Ledger.Path)
		if err != nil {
			return nil, fmt.Errorf("open ledger: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		opts = append(opts, api.WithLedger(ledger.New(db)))
	}

	if cfg.Weather.IsEnabled() {
		w := cfg.Weather
		client := weather.NewClient(w.GeocodeURL, w.ForecastURL, w.Timeout)
		svc := weather.NewService(client, weather.NewCache[weather.Place](w.TTL), weather.NewCache[weather.Forecast](w.TTL))
		opts = append(opts, api.WithWeather(svc))
	}

	a.server = api.New(api.Config{
		Listen:          cfg.API.Listen,
		ShutdownTimeout: cfg.API.ShutdownTimeout,
		OperatorToken:   cfg.API.OperatorToken,
		Companions:      companionsFromConfig(cfg.Companions),
	}, p.locator, p.composer, a.hub, log.WithComponent("api"), opts...)
	return a, nil
}

// runSweeper removes workspaces abandoned by a crash. It sweeps once at
// start and then every interval until ctx ends.
func runSweeper(ctx context.Context, ws workspace.Manager, interval, staleAfter time.Duration, logger *slog.Logger) {
	sweep := func() {
		report, err := ws.Cleanup(ctx, staleAfter)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("workspace sweep failed", "error", err)
			return
		}
		if report.DeletedDirs > 0 {
			logger.Info("removed stale workspaces", "count", report.DeletedDirs)
		}
	}

	sweep()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweep()
		}
	}
}

func runServe(args []string) int {
	fs := newFlagSet("serve")
	configPath := fs.StringP("config", "c", "", "Path to configuration file")
	listen := fs.String("listen", "", "Override api.listen")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	if *listen != "" {
		cfg.API.Listen = *listen
	}

	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
	logger := log.WithComponent("main")
	logger.Info("parcel starting", "version", version, "config", cfg.SourcePath, "artifacts", cfg.Artifacts.Dir)

	lockPath := lock.PathFor(cfg.Workspace.BaseDir)
	pidLock, err := lock.Acquire(lockPath)
	if err != nil {
		logger.Error("failed to acquire PID lock (another instance may be running)", "path", lockPath, "error", err)
		return 1
	}
	defer pidLock.Release()
	logger.Info("acquired PID lock", "path", lockPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := buildApp(ctx, cfg)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		return 1
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("shutdown cleanup failed", "error", err)
		}
	}()
	if cfg.Ledger.Path != "" {
		logger.Info("download ledger enabled", "path", cfg.Ledger.Path)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go runSweeper(ctx, a.pipeline.workspaces, cfg.Workspace.SweepInterval, cfg.Workspace.StaleAfter, log.WithComponent("sweeper"))

	serverDone := make(chan error, 1)
	go func() { serverDone <- a.server.Start(ctx) }()

	logger.Info("parcel running (press Ctrl+C to stop)", "listen", cfg.API.Listen)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
		// Start returns once in-flight downloads finish or the shutdown timeout passes.
		if err := <-serverDone; err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("api shutdown", "error", err)
		}
	case err := <-serverDone:
		logger.Error("component failed", "error", fmt.Errorf("api: %w", err))
		cancel()
		return 1
	}

	logger.Info("parcel stopped")
	return 0
}

type statusReport struct {
	APIURL  string          `json:"api_url"`
	Healthy bool            `json:"healthy"`
	Health  json.RawMessage `json:"health,omitempty"`
	Error   string          `json:"error,omitempty"`
	LockPID int             `json:"lock_pid,omitempty"`
}

func runSystemStatus(args []string) int {
	fs := newFlagSet("status")
	configPath := fs.StringP("config", "c", "", "Path to configuration file")
	apiURL := fs.String("api-url", "", "Server base URL (default from api.listen)")
	jsonOut := fs.Bool("json", false, "Output as JSON")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	url := *apiURL
	if url == "" {
		url = "http://" + cfg.API.Listen
	}

	report := statusReport{APIURL: url}
	if pid, ok := lock.Holder(lock.PathFor(cfg.Workspace.BaseDir)); ok {
		report.LockPID = pid
	}

	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Get(url + "/healthz")
	if err != nil {
		report.Error = err.Error()
	} else {
		var body json.RawMessage
		decodeErr := json.NewDecoder(resp.Body).Decode(&body)
		resp.Body.Close()
		switch {
		case decodeErr != nil:
			report.Error = decodeErr.Error()
		case resp.StatusCode != http.StatusOK:
			report.Error = resp.Status
		default:
			report.Healthy = true
			report.Health = body
		}
	}

	if *jsonOut {
		data, _ := json.MarshalIndent(report, "", "  ")
		fmt.Println(string(data))
	} else {
		state := "UNREACHABLE"
		if report.Healthy {
			state = "OK"
		}
		fmt.Printf("Server: %s (%s)\n", state, url)
		if report.LockPID > 0 {
			fmt.Printf("Lock held by PID %d\n", report.LockPID)
		}
		if report.Error != "" {
			fmt.Printf("Error: %s\n", report.Error)
		}
		if report.Healthy {
			fmt.Printf("Health: %s\n", report.Health)
		}
	}

	if !report.Healthy {
		return 1
	}
	return 0
}
