// Package snapshot writes and reads zstd-compressed world snapshots: a JSON
// header line followed by the JSON body.
package snapshot

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/JeremyDaug/EconomicCalculator-sub003/internal/actors"
	"github.com/JeremyDaug/EconomicCalculator-sub003/internal/engine"
	"github.com/JeremyDaug/EconomicCalculator-sub003/internal/market"
)

const Version = 1

type Header struct {
	Version int       `json:"version"`
	Day     uint64    `json:"day"`
	Taken   time.Time `json:"taken"`
	Markets int       `json:"markets"`
	Pops    int       `json:"pops"`
}

// Snapshot is a full copy of the stores between days.
type Snapshot struct {
	Header       Header                `json:"header"`
	Markets      []*market.Market      `json:"markets"`
	Pops         []*actors.Pop         `json:"pops"`
	Firms        []*actors.Firm        `json:"firms"`
	Institutions []*actors.Institution `json:"institutions"`
	States       []*actors.State       `json:"states"`
}

// Take copies the simulation's stores into a snapshot. Actors in flight are
// not included.
func Take(sim *engine.Simulation) *Snapshot {
	sim.RLock()
	defer sim.RUnlock()

	s := &Snapshot{Header: Header{
		Version: Version,
		Day:     sim.Day,
		Taken:   time.Now().UTC(),
		Markets: len(sim.Markets),
		Pops:    len(sim.Pops),
	}}
	for _, id := range sim.MarketIDs() {
		s.Markets = append(s.Markets, sim.Markets[id])
	}
	for _, p := range sim.Pops {
		s.Pops = append(s.Pops, p)
	}
	for _, f := range sim.Firms {
		s.Firms = append(s.Firms, f)
	}
	for _, i := range sim.Institutions {
		s.Institutions = append(s.Institutions, i)
	}
	for _, st := range sim.States {
		s.States = append(s.States, st)
	}
	return s
}

// Restore builds a simulation from a snapshot.
func (s *Snapshot) Restore(settings engine.Settings) *engine.Simulation {
	sim := engine.NewSimulation(settings)
	sim.Day = s.Header.Day
	for _, m := range s.Markets {
		sim.Markets[m.ID] = m
	}
	for _, p := range s.Pops {
		sim.Pops[p.ID] = p
	}
	for _, f := range s.Firms {
		sim.Firms[f.ID] = f
	}
	for _, i := range s.Institutions {
		sim.Institutions[i.ID] = i
	}
	for _, st := range s.States {
		sim.States[st.ID] = st
	}
	return sim
}

// Write encodes a snapshot to path, creating parent directories.
// The snapshot is encoded in full before Write returns, so the stores may
// change afterwards.
func Write(path string, snap *Snapshot) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		enc.Close()
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		enc.Close()
		return err
	}
	if err := json.NewEncoder(bw).Encode(snap); err != nil {
		enc.Close()
		return fmt.Errorf("json encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		enc.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return f.Sync()
}

// ReadHeader decodes only the header line of a snapshot.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("decode header: %w", err)
	}
	return h, nil
}

// Read decodes a snapshot from path.
func Read(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// The body repeats the header.
	if _, err := br.ReadBytes('\n'); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	var snap Snapshot
	if err := json.NewDecoder(br).Decode(&snap); err != nil {
		return nil, fmt.Errorf("json decode: %w", err)
	}
	if snap.Header.Version != Version {
		return nil, fmt.Errorf("snapshot version %d, want %d", snap.Header.Version, Version)
	}
	return &snap, nil
}

// Name returns the conventional file name for a day's snapshot.
func Name(day uint64) string {
	return fmt.Sprintf("day-%08d.json.zst", day)
}
