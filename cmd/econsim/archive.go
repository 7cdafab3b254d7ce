package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/robfig/cron/v3"

	"github.com/JeremyDaug/EconomicCalculator-sub003/internal/engine"
	"github.com/JeremyDaug/EconomicCalculator-sub003/internal/persistence/snapshot"
)

// archiver writes snapshot files on a cron schedule and keeps the newest few.
type archiver struct {
	sim  *engine.Simulation
	dir  string
	keep int
	cron *cron.Cron
}

func newArchiver(sim *engine.Simulation, dir string, keep int) *archiver {
	return &archiver{sim: sim, dir: dir, keep: keep, cron: cron.New()}
}

// schedule registers the snapshot job under a standard 5-field spec.
func (a *archiver) schedule(spec string) error {
	if _, err := a.cron.AddFunc(spec, func() {
		if _, err := a.snap(); err != nil {
			slog.Error("snapshot failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("register snapshot job: %w", err)
	}
	return nil
}

func (a *archiver) start() {
	a.cron.Start()
	slog.Info("snapshot scheduler started", "dir", a.dir, "keep", a.keep)
}

func (a *archiver) stop() {
	<-a.cron.Stop().Done()
	slog.Info("snapshot scheduler stopped")
}

// snap writes a snapshot of the current stores and prunes old files.
func (a *archiver) snap() (string, error) {
	s := snapshot.Take(a.sim)
	path := filepath.Join(a.dir, snapshot.Name(s.Header.Day))
	if err := snapshot.Write(path, s); err != nil {
		return "", err
	}
	slog.Info("snapshot written", "path", path, "day", s.Header.Day, "pops", s.Header.Pops)
	if err := a.prune(); err != nil {
		slog.Warn("snapshot prune failed", "error", err)
	}
	return path, nil
}

func (a *archiver) prune() error {
	if a.keep <= 0 {
		return nil
	}
	entries, err := os.ReadDir(a.dir)
	if err != nil {
		return err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), "day-") && strings.HasSuffix(e.Name(), ".json.zst") {
			names = append(names, e.Name())
		}
	}
	// Names are zero-padded by day, so lexical order is day order.
	sort.Strings(names)
	for len(names) > a.keep {
		if err := os.Remove(filepath.Join(a.dir, names[0])); err != nil {
			return err
		}
		names = names[1:]
	}
	return nil
}
