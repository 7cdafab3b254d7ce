package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path (if path is not empty),
// merges it on top of the built-in defaults, applies ECONSIM_* environment
// variable overrides, and returns the final Config. The caller should invoke
// Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.LogLevel, "ECONSIM_LOG_LEVEL")

	setStr(&cfg.Data.Catalog, "ECONSIM_DATA_CATALOG")
	setStr(&cfg.Data.Demographics, "ECONSIM_DATA_DEMOGRAPHICS")
	setStr(&cfg.Data.DB, "ECONSIM_DATA_DB")

	setDuration(&cfg.Simulation.Interval, "ECONSIM_SIMULATION_INTERVAL")
	setDuration(&cfg.Simulation.DayDeadline, "ECONSIM_SIMULATION_DAY_DEADLINE")
	setUint64(&cfg.Simulation.MaxDays, "ECONSIM_SIMULATION_MAX_DAYS")
	setUint64(&cfg.Simulation.SaveEvery, "ECONSIM_SIMULATION_SAVE_EVERY")

	setInt64(&cfg.Genesis.Seed, "ECONSIM_GENESIS_SEED")
	setInt(&cfg.Genesis.Markets, "ECONSIM_GENESIS_MARKETS")

	setBool(&cfg.Snapshots.Enabled, "ECONSIM_SNAPSHOTS_ENABLED")
	setStr(&cfg.Snapshots.Dir, "ECONSIM_SNAPSHOTS_DIR")
	setStr(&cfg.Snapshots.Cron, "ECONSIM_SNAPSHOTS_CRON")

	setBool(&cfg.Server.Enabled, "ECONSIM_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "ECONSIM_SERVER_PORT")
	setStr(&cfg.Server.AdminKey, "ECONSIM_ADMIN_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "ECONSIM_SERVER_CORS_ORIGINS")
}

// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
