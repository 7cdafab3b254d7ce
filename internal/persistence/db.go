// Package persistence provides SQLite-based world state storage.
package persistence

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/JeremyDaug/EconomicCalculator-sub003/internal/actors"
	"github.com/JeremyDaug/EconomicCalculator-sub003/internal/engine"
	"github.com/JeremyDaug/EconomicCalculator-sub003/internal/market"
)

// ErrInFlight is returned when saving a world with unreconciled markets.
var ErrInFlight = errors.New("world has actors in flight")

// DB wraps a SQLite connection for world state persistence.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS markets (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		members_json TEXT NOT NULL,
		history_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS pops (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		market INTEGER NOT NULL,
		species INTEGER NOT NULL,
		culture INTEGER NOT NULL,
		size REAL NOT NULL,
		state_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS firms (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		market INTEGER NOT NULL,
		process INTEGER NOT NULL,
		state_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS institutions (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		state_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS states (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		state_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS day_runs (
		run_id TEXT PRIMARY KEY,
		day INTEGER NOT NULL,
		started TEXT NOT NULL,
		elapsed_ms INTEGER NOT NULL,
		markets INTEGER NOT NULL,
		relocated INTEGER NOT NULL,
		error TEXT NOT NULL,
		stats_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS world_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_pops_market ON pops(market);
	CREATE INDEX IF NOT EXISTS idx_firms_market ON firms(market);
	CREATE INDEX IF NOT EXISTS idx_day_runs_day ON day_runs(day);
	`
	_, err := db.conn.Exec(schema)
	return err
}

type members struct {
	Pops         []actors.ID `json:"pops"`
	Firms        []actors.ID `json:"firms"`
	Institutions []actors.ID `json:"institutions"`
	States       []actors.ID `json:"states"`
}

// SaveWorldState writes every market and actor in one transaction (full
// replace). It refuses while any market's actors are in flight.
func (db *DB) SaveWorldState(sim *engine.Simulation) error {
	sim.RLock()
	defer sim.RUnlock()

	if len(sim.InFlight) > 0 {
		return fmt.Errorf("save world: %w (%d markets)", ErrInFlight, len(sim.InFlight))
	}
	slog.Info("saving world state", "day", sim.Day, "markets", len(sim.Markets), "pops", len(sim.Pops), "firms", len(sim.Firms))

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, table := range []string{"markets", "pops", "firms", "institutions", "states"} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	for _, m := range sim.Markets {
		mem, _ := json.Marshal(members{Pops: m.Pops, Firms: m.Firms, Institutions: m.Institutions, States: m.States})
		hist, err := json.Marshal(m.History)
		if err != nil {
			return fmt.Errorf("encode market %d: %w", m.ID, err)
		}
		if _, err := tx.Exec("INSERT INTO markets (id, name, members_json, history_json) VALUES (?, ?, ?, ?)",
			m.ID, m.Name, string(mem), string(hist)); err != nil {
			return fmt.Errorf("insert market %d: %w", m.ID, err)
		}
	}

	stmt, err := tx.Preparex(`INSERT INTO pops
		(id, name, market, species, culture, size, state_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, p := range sim.Pops {
		blob, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("encode pop %d: %w", p.ID, err)
		}
		if _, err := stmt.Exec(p.ID, p.Name, p.Market, p.Species, p.Culture, p.Size, string(blob)); err != nil {
			return fmt.Errorf("insert pop %d: %w", p.ID, err)
		}
	}

	for _, f := range sim.Firms {
		blob, err := json.Marshal(f)
		if err != nil {
			return fmt.Errorf("encode firm %d: %w", f.ID, err)
		}
		if _, err := tx.Exec("INSERT INTO firms (id, name, market, process, state_json) VALUES (?, ?, ?, ?, ?)",
			f.ID, f.Name, f.Market, f.Process, string(blob)); err != nil {
			return fmt.Errorf("insert firm %d: %w", f.ID, err)
		}
	}
	for _, i := range sim.Institutions {
		blob, _ := json.Marshal(i)
		if _, err := tx.Exec("INSERT INTO institutions (id, name, state_json) VALUES (?, ?, ?)",
			i.ID, i.Name, string(blob)); err != nil {
			return fmt.Errorf("insert institution %d: %w", i.ID, err)
		}
	}
	for _, st := range sim.States {
		blob, _ := json.Marshal(st)
		if _, err := tx.Exec("INSERT INTO states (id, name, state_json) VALUES (?, ?, ?)",
			st.ID, st.Name, string(blob)); err != nil {
			return fmt.Errorf("insert state %d: %w", st.ID, err)
		}
	}

	if _, err := tx.Exec("INSERT OR REPLACE INTO world_meta (key, value) VALUES (?, ?)",
		"last_day", strconv.FormatUint(sim.Day, 10)); err != nil {
		return fmt.Errorf("save meta: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	slog.Info("world state saved", "day", sim.Day)
	return nil
}

// HasWorldState reports whether a saved world exists.
func (db *DB) HasWorldState() (bool, error) {
	var n int
	if err := db.conn.Get(&n, "SELECT COUNT(*) FROM markets"); err != nil {
		return false, err
	}
	return n > 0, nil
}

type blobRow struct {
	ID   uint64 `db:"id"`
	Name string `db:"name"`
	JSON string `db:"state_json"`
}

type marketRow struct {
	ID      uint64 `db:"id"`
	Name    string `db:"name"`
	Members string `db:"members_json"`
	History string `db:"history_json"`
}

// LoadWorldState rebuilds a simulation from the saved state.
func (db *DB) LoadWorldState(settings engine.Settings) (*engine.Simulation, error) {
	sim := engine.NewSimulation(settings)

	var mrows []marketRow
	if err := db.conn.Select(&mrows, "SELECT id, name, members_json, history_json FROM markets ORDER BY id"); err != nil {
		return nil, fmt.Errorf("load markets: %w", err)
	}
	for _, r := range mrows {
		m := &market.Market{ID: r.ID, Name: r.Name}
		var mem members
		if err := json.Unmarshal([]byte(r.Members), &mem); err != nil {
			return nil, fmt.Errorf("decode market %d members: %w", r.ID, err)
		}
		if err := json.Unmarshal([]byte(r.History), &m.History); err != nil {
			return nil, fmt.Errorf("decode market %d history: %w", r.ID, err)
		}
		m.Pops, m.Firms, m.Institutions, m.States = mem.Pops, mem.Firms, mem.Institutions, mem.States
		sim.Markets[m.ID] = m
	}

	if err := loadBlobs(db.conn, "pops", func(r blobRow) error {
		p := actors.NewPop(actors.ID(r.ID), r.Name, 0, 0, 0, 0)
		if err := json.Unmarshal([]byte(r.JSON), p); err != nil {
			return err
		}
		sim.Pops[p.ID] = p
		return nil
	}); err != nil {
		return nil, err
	}
	if err := loadBlobs(db.conn, "firms", func(r blobRow) error {
		f := actors.NewFirm(actors.ID(r.ID), r.Name, 0, 0)
		if err := json.Unmarshal([]byte(r.JSON), f); err != nil {
			return err
		}
		sim.Firms[f.ID] = f
		return nil
	}); err != nil {
		return nil, err
	}
	if err := loadBlobs(db.conn, "institutions", func(r blobRow) error {
		i := &actors.Institution{Property: make(actors.Property)}
		if err := json.Unmarshal([]byte(r.JSON), i); err != nil {
			return err
		}
		sim.Institutions[i.ID] = i
		return nil
	}); err != nil {
		return nil, err
	}
	if err := loadBlobs(db.conn, "states", func(r blobRow) error {
		st := &actors.State{Property: make(actors.Property)}
		if err := json.Unmarshal([]byte(r.JSON), st); err != nil {
			return err
		}
		sim.States[st.ID] = st
		return nil
	}); err != nil {
		return nil, err
	}

	if v, err := db.GetMeta("last_day"); err == nil {
		day, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("decode last_day %q: %w", v, err)
		}
		sim.Day = day
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	slog.Info("world state loaded", "day", sim.Day, "markets", len(sim.Markets), "pops", len(sim.Pops), "firms", len(sim.Firms))
	return sim, nil
}

func loadBlobs(conn *sqlx.DB, table string, fn func(blobRow) error) error {
	var rows []blobRow
	if err := conn.Select(&rows, "SELECT id, name, state_json FROM "+table+" ORDER BY id"); err != nil {
		return fmt.Errorf("load %s: %w", table, err)
	}
	for _, r := range rows {
		if err := fn(r); err != nil {
			return fmt.Errorf("decode %s %d: %w", table, r.ID, err)
		}
	}
	return nil
}

// SaveMeta stores a key-value pair in world metadata.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO world_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM world_meta WHERE key = ?", key)
	return value, err
}

// DayRun is one row of the day audit log.
type DayRun struct {
	RunID     string `db:"run_id" json:"run_id"`
	Day       uint64 `db:"day" json:"day"`
	Started   string `db:"started" json:"started"`
	ElapsedMS int64  `db:"elapsed_ms" json:"elapsed_ms"`
	Markets   int    `db:"markets" json:"markets"`
	Relocated int    `db:"relocated" json:"relocated"`
	Error     string `db:"error" json:"error,omitempty"`
	StatsJSON string `db:"stats_json" json:"-"`
}

// RecordDayRun appends a day report to the audit log.
func (db *DB) RecordDayRun(r *engine.DayReport) error {
	stats, _ := json.Marshal(r.Stats)
	_, err := db.conn.NamedExec(`INSERT OR REPLACE INTO day_runs
		(run_id, day, started, elapsed_ms, markets, relocated, error, stats_json)
		VALUES (:run_id, :day, :started, :elapsed_ms, :markets, :relocated, :error, :stats_json)`,
		DayRun{
			RunID:     r.RunID,
			Day:       r.Day,
			Started:   r.Started.UTC().Format(time.RFC3339Nano),
			ElapsedMS: r.Elapsed.Milliseconds(),
			Markets:   len(r.Markets),
			Relocated: r.Relocated,
			Error:     r.Error,
			StatsJSON: string(stats),
		})
	if err != nil {
		return fmt.Errorf("record day %d: %w", r.Day, err)
	}
	return nil
}

// RecentDayRuns returns the most recent N day runs, newest first.
func (db *DB) RecentDayRuns(limit int) ([]DayRun, error) {
	var runs []DayRun
	err := db.conn.Select(&runs,
		"SELECT run_id, day, started, elapsed_ms, markets, relocated, error, stats_json FROM day_runs ORDER BY rowid DESC LIMIT ?",
		limit,
	)
	return runs, err
}
