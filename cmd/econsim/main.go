// Command econsim runs the market-day economy simulation.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/JeremyDaug/EconomicCalculator-sub003/internal/api"
	"github.com/JeremyDaug/EconomicCalculator-sub003/internal/catalog"
	"github.com/JeremyDaug/EconomicCalculator-sub003/internal/config"
	"github.com/JeremyDaug/EconomicCalculator-sub003/internal/demographics"
	"github.com/JeremyDaug/EconomicCalculator-sub003/internal/engine"
	"github.com/JeremyDaug/EconomicCalculator-sub003/internal/genesis"
	"github.com/JeremyDaug/EconomicCalculator-sub003/internal/persistence"
	"github.com/JeremyDaug/EconomicCalculator-sub003/internal/phi"
)

func main() {
	configPath := flag.String("config", "configs/econsim.toml", "TOML config file")
	days := flag.Uint64("days", 0, "stop after this many days (overrides config)")
	fresh := flag.Bool("fresh", false, "ignore saved state and generate a new world")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *days > 0 {
		cfg.Simulation.MaxDays = *days
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	slog.Info("econsim starting",
		"tier_ratio", fmt.Sprintf("%.5f", phi.TierRatio),
		"agnosis", fmt.Sprintf("%.5f", phi.Agnosis),
		"psyche", fmt.Sprintf("%.5f", phi.Psyche),
	)

	if err := run(cfg, *fresh); err != nil {
		slog.Error("econsim failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, fresh bool) error {
	// ── Static data ───────────────────────────────────────────────────
	cat, err := catalog.Load(cfg.Data.Catalog)
	if err != nil {
		return fmt.Errorf("catalog: %w", err)
	}
	demo, err := demographics.Load(cfg.Data.Demographics)
	if err != nil {
		return fmt.Errorf("demographics: %w", err)
	}
	slog.Info("data loaded", "products", len(cat.Products), "processes", len(cat.Processes), "species", len(demo.Species))

	// ── Database ──────────────────────────────────────────────────────
	if err := os.MkdirAll(filepath.Dir(cfg.Data.DB), 0o755); err != nil {
		return err
	}
	db, err := persistence.Open(cfg.Data.DB)
	if err != nil {
		return err
	}
	defer db.Close()
	slog.Info("database opened", "path", cfg.Data.DB)

	// ── Load or generate world state ─────────────────────────────────
	var sim *engine.Simulation
	saved, err := db.HasWorldState()
	if err != nil {
		return err
	}
	if saved && !fresh {
		sim, err = db.LoadWorldState(cfg.Settings())
		if err != nil {
			return err
		}
		// Products added to the catalog since the save start at base value.
		for _, m := range sim.Markets {
			m.SeedHistory(cat)
		}
	} else {
		sim, err = genesis.Generate(cfg.Genesis, cat, demo, cfg.Settings())
		if err != nil {
			return err
		}
		if err := db.SaveWorldState(sim); err != nil {
			slog.Error("initial save failed", "error", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Engine ────────────────────────────────────────────────────────
	eng := engine.NewEngine(sim, cat, demo)
	eng.Interval = cfg.Simulation.Interval.Duration
	eng.MaxDays = cfg.Simulation.MaxDays

	stream := api.NewStream()
	go stream.Run(ctx)

	eng.OnDay = func(r *engine.DayReport) {
		if err := db.RecordDayRun(r); err != nil {
			slog.Error("record day failed", "error", err)
		}
		stream.Publish(r)
		if r.OK() && cfg.Simulation.SaveEvery > 0 && r.Day%cfg.Simulation.SaveEvery == 0 {
			if err := db.SaveWorldState(sim); err != nil {
				slog.Error("periodic save failed", "error", err)
			}
		}
	}

	// ── Snapshots ─────────────────────────────────────────────────────
	if cfg.Snapshots.Enabled {
		arch := newArchiver(sim, cfg.Snapshots.Dir, cfg.Snapshots.Keep)
		if err := arch.schedule(cfg.Snapshots.Cron); err != nil {
			return err
		}
		arch.start()
		defer arch.stop()
	}

	// ── HTTP API ──────────────────────────────────────────────────────
	if cfg.Server.Enabled {
		if cfg.Server.AdminKey == "" {
			slog.Warn("ECONSIM_ADMIN_KEY not set, admin POST endpoints will be disabled")
		}
		srv := &api.Server{
			Sim:         sim,
			Eng:         eng,
			Catalog:     cat,
			DB:          db,
			Stream:      stream,
			Port:        cfg.Server.Port,
			AdminKey:    cfg.Server.AdminKey,
			AdminPerMin: cfg.Server.AdminPerMin,
			CORSOrigins: cfg.Server.CORSOrigins,
		}
		srv.Start(ctx)
		fmt.Printf("API: http://localhost:%d/api/v1/status\n", cfg.Server.Port)
	}

	fmt.Printf("\n%d pops and %d firms trading across %d markets, day %d.\n",
		len(sim.Pops), len(sim.Firms), len(sim.Markets), sim.Day)
	fmt.Println("Starting simulation... (Ctrl+C to stop)")

	if err := eng.Run(ctx); err != nil {
		return err
	}

	// Final save on shutdown.
	slog.Info("final save...")
	if err := db.SaveWorldState(sim); err != nil {
		slog.Error("final save failed", "error", err)
		return nil
	}
	fmt.Println("Simulation stopped. World state saved.")
	return nil
}
