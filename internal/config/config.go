// Package config holds the simulator's configuration: a TOML file layered
// over built-in defaults, with ECONSIM_* environment overrides.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/JeremyDaug/EconomicCalculator-sub003/internal/engine"
	"github.com/JeremyDaug/EconomicCalculator-sub003/internal/genesis"
)

// Config is the root configuration.
type Config struct {
	LogLevel   string           `toml:"log_level"`
	Data       DataConfig       `toml:"data"`
	Simulation SimulationConfig `toml:"simulation"`
	Genesis    genesis.Config   `toml:"genesis"`
	Snapshots  SnapshotConfig   `toml:"snapshots"`
	Server     ServerConfig     `toml:"server"`
}

// DataConfig locates the static data files and the world database.
type DataConfig struct {
	Catalog      string `toml:"catalog"`
	Demographics string `toml:"demographics"`
	DB           string `toml:"db"`
}

// SimulationConfig holds the day loop and trading knobs.
type SimulationConfig struct {
	Interval       duration `toml:"interval"`     // wall time between days
	DayDeadline    duration `toml:"day_deadline"` // 0 = none
	MaxDays        uint64   `toml:"max_days"`     // 0 = unbounded
	SaveEvery      uint64   `toml:"save_every"`   // days between DB saves
	ShoppingTime   float64  `toml:"shopping_time"`
	OfferTime      float64  `toml:"offer_time"`
	PriceTolerance float64  `toml:"price_tolerance"`
	Markup         float64  `toml:"markup"`
}

// SnapshotConfig schedules compressed snapshot files.
type SnapshotConfig struct {
	Enabled bool   `toml:"enabled"`
	Dir     string `toml:"dir"`
	Cron    string `toml:"cron"` // standard 5-field spec
	Keep    int    `toml:"keep"` // newest files kept, 0 = all
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	AdminKey    string   `toml:"admin_key"`
	AdminPerMin int      `toml:"admin_per_min"`
	CORSOrigins []string `toml:"cors_origins"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	s := engine.DefaultSettings()
	return Config{
		LogLevel: "info",
		Data: DataConfig{
			Catalog:      "configs/catalog.yaml",
			Demographics: "configs/demographics.yaml",
			DB:           "data/econsim.db",
		},
		Simulation: SimulationConfig{
			Interval:       duration{time.Second},
			DayDeadline:    duration{s.DayDeadline},
			SaveEvery:      10,
			ShoppingTime:   s.ShoppingTime,
			OfferTime:      s.OfferTime,
			PriceTolerance: s.PriceTolerance,
			Markup:         s.Markup,
		},
		Genesis: genesis.DefaultConfig(),
		Snapshots: SnapshotConfig{
			Dir:  "data/snapshots",
			Cron: "0 * * * *",
			Keep: 24,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8080,
			AdminPerMin: 30,
		},
	}
}

// Settings returns the engine settings this config describes.
func (c *Config) Settings() engine.Settings {
	return engine.Settings{
		DayDeadline:    c.Simulation.DayDeadline.Duration,
		ShoppingTime:   c.Simulation.ShoppingTime,
		OfferTime:      c.Simulation.OfferTime,
		PriceTolerance: c.Simulation.PriceTolerance,
		Markup:         c.Simulation.Markup,
	}
}

// SlogLevel maps LogLevel to a slog level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.Data.Catalog == "" || c.Data.Demographics == "" {
		errs = append(errs, "data: catalog and demographics must be set")
	}
	if c.Data.DB == "" {
		errs = append(errs, "data: db must be set")
	}

	sim := c.Simulation
	if sim.Interval.Duration < 0 || sim.DayDeadline.Duration < 0 {
		errs = append(errs, "simulation: interval and day_deadline must not be negative")
	}
	if sim.ShoppingTime <= 0 {
		errs = append(errs, "simulation: shopping_time must be positive")
	}
	if sim.OfferTime <= 0 || sim.OfferTime > sim.ShoppingTime {
		errs = append(errs, fmt.Sprintf("simulation: offer_time must be in (0, shopping_time], got %v", sim.OfferTime))
	}
	if sim.PriceTolerance < 0 || sim.Markup < 0 {
		errs = append(errs, "simulation: price_tolerance and markup must not be negative")
	}

	g := c.Genesis
	if g.Markets < 1 {
		errs = append(errs, "genesis: markets must be >= 1")
	}
	if g.PopsPerMarket < 0 || g.FirmsPerMarket < 0 || g.MarketsPerState < 0 {
		errs = append(errs, "genesis: counts must not be negative")
	}
	if g.PopSize <= 0 {
		errs = append(errs, "genesis: pop_size must be positive")
	}
	if g.PopCoin < 0 || g.FirmCoin < 0 || g.Endowment < 0 {
		errs = append(errs, "genesis: coin and endowment must not be negative")
	}

	if c.Snapshots.Enabled {
		if c.Snapshots.Dir == "" {
			errs = append(errs, "snapshots: dir must be set when enabled")
		}
		if _, err := cron.ParseStandard(c.Snapshots.Cron); err != nil {
			errs = append(errs, fmt.Sprintf("snapshots: bad cron %q: %v", c.Snapshots.Cron, err))
		}
		if c.Snapshots.Keep < 0 {
			errs = append(errs, "snapshots: keep must not be negative")
		}
	}

	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.AdminPerMin < 1 {
			errs = append(errs, "server: admin_per_min must be >= 1")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
