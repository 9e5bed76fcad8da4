package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/basket/dlboard/internal/api"
	"github.com/basket/dlboard/internal/audit"
	"github.com/basket/dlboard/internal/bus"
	"github.com/basket/dlboard/internal/config"
	"github.com/basket/dlboard/internal/cron"
	otelPkg "github.com/basket/dlboard/internal/otel"
	"github.com/basket/dlboard/internal/reconcile"
	"github.com/basket/dlboard/internal/stream"
	"github.com/basket/dlboard/internal/table"
	"github.com/basket/dlboard/internal/telemetry"
	"github.com/basket/dlboard/internal/tui"
)

// Version is set via ldflags at build time: -ldflags "-X main.Version=..."
var Version = "v0.3-dev"

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage of %s:

INTERACTIVE MODE (default):
  %s                          Open the download table (TTY required)

HEADLESS MODE:
  %s -no-tui                  Sync and log without a terminal UI

SUBCOMMANDS:
  %s snapshot                 Fetch the current download list and print it
  %s ping                     Check server reachability and auth
  %s version                  Print the version and exit

FLAGS:
`, os.Args[0], os.Args[0], os.Args[0], os.Args[0], os.Args[0], os.Args[0])
	flag.PrintDefaults()
}

func main() {
	flag.Usage = printUsage
	serverFlag := flag.String("server", "", "server base URL (overrides config and DLBOARD_SERVER_URL)")
	tokenFlag := flag.String("token", "", "bearer token (overrides config and DLBOARD_AUTH_TOKEN)")
	noTUI := flag.Bool("no-tui", false, "run headless: sync and log, no terminal UI")
	versionFlag := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *versionFlag {
		fmt.Println("dlboard", Version)
		return
	}

	loadDotEnv(".env")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fatalStartup(nil, "E_CONFIG_LOAD", err)
	}
	if *serverFlag != "" {
		cfg.ServerURL = strings.TrimRight(strings.TrimSpace(*serverFlag), "/")
	}
	if *tokenFlag != "" {
		cfg.AuthToken = strings.TrimSpace(*tokenFlag)
	}

	if args := flag.Args(); len(args) > 0 {
		switch args[0] {
		case "snapshot":
			os.Exit(runSnapshotCommand(ctx, cfg, args[1:]))
		case "ping":
			os.Exit(runPingCommand(ctx, cfg, args[1:]))
		case "version":
			fmt.Println("dlboard", Version)
			return
		default:
			fmt.Fprintf(os.Stderr, "unknown subcommand %q\n\n", args[0])
			printUsage()
			os.Exit(2)
		}
	}

	interactive := isatty.IsTerminal(os.Stdout.Fd()) && !*noTUI && os.Getenv("DLBOARD_NO_TUI") == ""

	if err := audit.Init(cfg.HomeDir); err != nil {
		fatalStartup(nil, "E_AUDIT_INIT", err)
	}
	defer func() { _ = audit.Close() }()

	// Keep stdout clean while the TUI owns the terminal.
	logger, logCloser, err := telemetry.NewLogger(cfg.HomeDir, cfg.LogLevel, interactive)
	if err != nil {
		fatalStartup(nil, "E_LOGGER_INIT", err)
	}
	defer logCloser.Close()
	slog.SetDefault(logger)

	for _, w := range cfg.Warnings {
		logger.Warn("config validation", "warning", w)
	}
	logger.Info("startup phase", "phase", "config_loaded",
		"server_url", cfg.ServerURL,
		"fingerprint", cfg.Fingerprint(),
		"version", Version,
	)

	if cfg.AuditToDB {
		db, err := audit.OpenDB(cfg.HomeDir)
		if err != nil {
			logger.Warn("audit db unavailable, journal only", "error", err)
		} else {
			audit.SetDB(db)
		}
	}

	otelProvider, err := otelPkg.Init(ctx, cfg.OTel)
	if err != nil {
		fatalStartup(logger, "E_OTEL_INIT", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = otelProvider.Shutdown(shutdownCtx)
	}()

	metrics, err := otelPkg.NewMetrics(otelProvider.Meter)
	if err != nil {
		logger.Warn("metrics init failed, continuing without", "error", err)
		metrics = nil
	}
	logger.Info("startup phase", "phase", "telemetry_ready", "otel_enabled", cfg.OTel.Enabled)

	eventBus := bus.New()
	store := table.NewStore(logger)
	client := api.New(cfg.ServerURL, cfg.AuthToken)
	client.SetTracer(otelProvider.Tracer)
	rec := reconcile.New(store, client, eventBus, metrics, logger)
	rec.SetTracer(otelProvider.Tracer)

	if n, err := rec.Snapshot(ctx); err != nil {
		// The stream client retries and every reconnect triggers a resync,
		// so an unreachable server at startup is not fatal.
		logger.Warn("initial snapshot failed", "error", err)
	} else {
		logger.Info("startup phase", "phase", "snapshot_loaded", "records", n)
	}

	// After a drop, the next successful connect replays the full snapshot
	// to pick up mutations the stream missed while down.
	var dropped atomic.Bool
	onState := func(connected bool, err error) {
		msg := ""
		if err != nil {
			msg = err.Error()
		}
		eventBus.Publish(bus.TopicStreamState, bus.StreamStateEvent{Connected: connected, Err: msg})
		if !connected {
			dropped.Store(true)
			return
		}
		if dropped.Swap(false) {
			if metrics != nil {
				metrics.StreamReconnects.Add(ctx, 1)
			}
			go func() {
				if err := rec.Resync(ctx); err != nil {
					logger.Warn("post-reconnect resync failed", "error", err)
				}
			}()
		}
	}
	streamClient := stream.NewClient(cfg.StreamURL(), cfg.AuthToken, rec.HandleEvent, onState, logger)
	go func() { _ = streamClient.Run(ctx) }()
	logger.Info("startup phase", "phase", "stream_started", "url", cfg.StreamURL())

	sched := cron.NewScheduler(cron.Config{
		Expr:   cfg.ResyncCron,
		Logger: logger,
		Fire: func(fireCtx context.Context) {
			if err := rec.Resync(fireCtx); err != nil {
				logger.Warn("scheduled resync failed", "error", err)
			}
		},
	})
	sched.Start(ctx)
	defer sched.Stop()

	watcher := config.NewWatcher(cfg.HomeDir, logger)
	if err := watcher.Start(ctx); err != nil {
		logger.Warn("config watcher unavailable", "error", err)
	} else {
		go watchConfig(ctx, watcher, cfg.Fingerprint(), logger)
	}

	if interactive {
		err := tui.Run(ctx, tui.Options{
			Store:            store,
			Reconciler:       rec,
			Bus:              eventBus,
			FilterDebounceMS: cfg.FilterDebounceMS,
			HighlightTTLMS:   cfg.HighlightTTLMS,
			Stats: func() tui.Stats {
				return tui.Stats{
					Failures: audit.FailureCount(),
					NextSync: sched.NextRun(),
				}
			},
		})
		if err != nil && ctx.Err() == nil {
			logger.Error("dashboard exited with error", "error", err)
		}
		stop()
	} else {
		logger.Info("running headless", "resync_cron", cfg.ResyncCron)
	}

	<-ctx.Done()
	logger.Info("shutdown complete")
}

// watchConfig logs when config.yaml changes on disk. Most settings only
// apply at startup, so a change is surfaced rather than hot-applied.
func watchConfig(ctx context.Context, w *config.Watcher, fingerprint string, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-w.Events():
			if !ok {
				return
			}
			next, err := config.Load()
			if err != nil {
				logger.Warn("config changed but failed to reload", "error", err)
				continue
			}
			if next.Fingerprint() == fingerprint {
				continue
			}
			fingerprint = next.Fingerprint()
			logger.Info("config changed on disk, restart to apply", "fingerprint", fingerprint)
		}
	}
}

func fatalStartup(logger *slog.Logger, reasonCode string, err error) {
	message := ""
	if err != nil {
		message = err.Error()
	}
	audit.Record("fatal", reasonCode+": "+message, nil)

	if logger != nil {
		logger.Error("startup failure", "reason_code", reasonCode, "error", message)
	} else {
		fmt.Fprintf(
			os.Stderr,
			`{"timestamp":"%s","level":"ERROR","component":"dlboard","msg":"startup failure","reason_code":%q,"error":%q}`+"\n",
			time.Now().UTC().Format(time.RFC3339Nano),
			reasonCode,
			message,
		)
	}
	os.Exit(1)
}

func loadDotEnv(path string) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		eq := strings.Index(line, "=")
		if eq <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:eq])
		val := strings.TrimSpace(line[eq+1:])
		if key == "" || os.Getenv(key) != "" {
			continue
		}
		_ = os.Setenv(key, val)
	}
}
