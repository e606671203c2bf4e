// Command planetsim runs the resource-harvesting agent simulation.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/talgya/planet-harvest/internal/api"
	"github.com/talgya/planet-harvest/internal/config"
	"github.com/talgya/planet-harvest/internal/engine"
	"github.com/talgya/planet-harvest/internal/persistence"
	"github.com/talgya/planet-harvest/internal/persistence/eventlog"
)

func main() {
	configPath := flag.String("config", "", "YAML config file (defaults when empty)")
	seed := flag.Int64("seed", 0, "world seed, overrides the config (0 = random)")
	ticks := flag.Uint64("ticks", 0, "stop after this many ticks, overrides the config")
	dbPath := flag.String("db", "", "SQLite run archive, overrides the config")
	eventsPath := flag.String("events", "", "zstd tick log (.jsonl.zst), overrides the config")
	port := flag.Int("port", 0, "HTTP API port, overrides the config (0 = off)")
	verify := flag.Bool("verify", false, "check invariants every tick")
	debug := flag.Bool("debug", false, "log per-agent detail")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	slog.Info("planet harvest: autonomous resource collection")

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "path", *configPath, "error", err)
		os.Exit(1)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "seed":
			cfg.World.Seed = *seed
		case "ticks":
			cfg.Engine.MaxTicks = *ticks
		case "db":
			cfg.Storage.DBPath = *dbPath
		case "events":
			cfg.Storage.EventLog = *eventsPath
		case "port":
			cfg.API.Port = *port
		case "verify":
			cfg.Engine.Verify = *verify
		}
	})
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// ── Simulation ────────────────────────────────────────────────────
	sim, err := engine.NewSimulation(cfg)
	if err != nil {
		slog.Error("failed to build world", "error", err)
		os.Exit(1)
	}
	eng := engine.NewEngine(sim, cfg.Engine)
	status := sim.Status()

	// ── Run archive ───────────────────────────────────────────────────
	runID := uuid.NewString()
	var db *persistence.DB
	if cfg.Storage.DBPath != "" {
		db, err = persistence.Open(cfg.Storage.DBPath)
		if err != nil {
			slog.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if runID, err = db.BeginRun(status, cfg); err != nil {
			slog.Error("failed to archive run", "error", err)
			os.Exit(1)
		}
		slog.Info("database opened", "path", cfg.Storage.DBPath)
	}

	var evlog *eventlog.Writer
	if cfg.Storage.EventLog != "" {
		evlog, err = eventlog.Create(cfg.Storage.EventLog, runID)
		if err != nil {
			slog.Error("failed to open event log", "error", err)
			os.Exit(1)
		}
		defer evlog.Close()
		slog.Info("event log opened", "path", evlog.Path())
	}

	// ── Callbacks ─────────────────────────────────────────────────────
	eng.OnTick = func(f engine.TickFrame) {
		if db != nil {
			if err := db.SaveFrame(runID, f); err != nil {
				slog.Error("tick save failed", "tick", f.Tick, "error", err)
			}
		}
		if evlog != nil {
			if err := evlog.WriteFrame(f); err != nil {
				slog.Error("event log write failed", "tick", f.Tick, "error", err)
			}
		}
	}
	eng.OnReport = func(tick uint64) {
		sim.Report(tick)
		st := sim.Status().Stats
		slog.Info("harvest so far",
			"tick", humanize.Comma(int64(tick)),
			"delivered", humanize.Comma(int64(st.Delivered)),
			"utility", humanize.FormatFloat("#,###.##", st.DeliveredUtility),
			"share", fmt.Sprintf("%.1f%%", percent(st.DeliveredUtility, sim.TotalUtility())),
		)
	}
	eng.OnDone = func(tick uint64, reason string) {
		if db == nil {
			return
		}
		if err := db.SaveAgents(runID, sim.AgentViews()); err != nil {
			slog.Error("agent save failed", "error", err)
		}
		if err := db.FinishRun(runID, tick, reason); err != nil {
			slog.Error("run finish failed", "error", err)
		}
	}

	// ── HTTP API ──────────────────────────────────────────────────────
	var apiServer *api.Server
	if cfg.API.Port > 0 {
		adminKey := os.Getenv("PLANETSIM_ADMIN_KEY")
		if adminKey == "" {
			slog.Warn("PLANETSIM_ADMIN_KEY not set, admin POST endpoints will be disabled")
		}
		apiServer = &api.Server{
			Sim:              sim,
			Eng:              eng,
			DB:               db,
			RunID:            runID,
			Port:             cfg.API.Port,
			AdminKey:         adminKey,
			MaxStreamClients: cfg.API.MaxStreamClients,
			AdminPerMinute:   cfg.API.AdminPerMinute,
		}
		srv := apiServer.Start()
		defer func() {
			_ = srv.Close()
			apiServer.Close()
		}()
	}

	// ── Start ─────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Printf("\n%d agents on a %dx%d planet with %d deposits worth %s.\n",
		status.Agents, status.Width, status.Height, status.Resources,
		humanize.FormatFloat("#,###.", status.TotalUtility))
	if apiServer != nil {
		fmt.Printf("API: http://localhost:%d/api/v1/status\n", cfg.API.Port)
	}
	fmt.Println("Starting simulation... (Ctrl+C to stop)")

	started := time.Now()
	reason := eng.Run(ctx)

	final := sim.Status()
	fmt.Printf("Simulation stopped (%s) at tick %s after %s: %d of %d resources home, utility %s of %s (run %s).\n",
		reason,
		humanize.Comma(int64(final.Tick)),
		time.Since(started).Round(time.Millisecond),
		final.Stats.Delivered, final.Resources,
		humanize.FormatFloat("#,###.##", final.Stats.DeliveredUtility),
		humanize.FormatFloat("#,###.##", final.TotalUtility),
		runID,
	)
}

func percent(part, whole float64) float64 {
	if whole == 0 {
		return 0
	}
	return 100 * part / whole
}
