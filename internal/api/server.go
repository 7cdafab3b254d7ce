// Package api provides the HTTP API for inspecting the simulation.
// GET endpoints are public (read-only observation).
// POST endpoints require a bearer token (admin control plane).
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/JeremyDaug/EconomicCalculator-sub003/internal/actors"
	"github.com/JeremyDaug/EconomicCalculator-sub003/internal/catalog"
	"github.com/JeremyDaug/EconomicCalculator-sub003/internal/engine"
	"github.com/JeremyDaug/EconomicCalculator-sub003/internal/persistence"
)

// Server serves the simulation state over HTTP.
type Server struct {
	Sim         *engine.Simulation
	Eng         *engine.Engine
	Catalog     *catalog.Catalog
	DB          *persistence.DB // optional; day history falls back to memory
	Stream      *Stream
	Port        int
	AdminKey    string // Bearer token for POST endpoints. Empty = POST disabled.
	AdminPerMin int
	CORSOrigins []string
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	perMin := s.AdminPerMin
	if perMin <= 0 {
		perMin = 30
	}
	adminLimiter := NewRateLimiter(perMin, time.Minute)

	mux := http.NewServeMux()

	// Public endpoints (GET, read-only).
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/markets", s.handleMarkets)
	mux.HandleFunc("/api/v1/market/", s.handleMarketDetail)
	mux.HandleFunc("/api/v1/actor/", s.handleActorDetail)
	mux.HandleFunc("/api/v1/inflight", s.handleInFlight)
	mux.HandleFunc("/api/v1/days", s.handleDays)
	if s.Stream != nil {
		mux.HandleFunc("/api/v1/stream", s.Stream.HandleWS)
	}

	// Admin endpoints (POST, require bearer token).
	mux.HandleFunc("/api/v1/relocate", RateLimitMiddleware(adminLimiter, s.adminOnly(s.handleRelocate)))
	mux.HandleFunc("/api/v1/reconcile", RateLimitMiddleware(adminLimiter, s.adminOnly(s.handleReconcile)))

	return corsMiddleware(s.CORSOrigins, mux)
}

// Start serves the API until ctx is cancelled.
func (s *Server) Start(ctx context.Context) {
	addr := fmt.Sprintf(":%d", s.Port)
	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "")

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Localhost dev servers are always allowed.
func corsMiddleware(origins []string, next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:3000": true,
	}
	for _, origin := range origins {
		allowedOrigins[origin] = true
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// checkBearerToken returns true if the request has a valid admin bearer token.
func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.AdminKey
}

// adminOnly wraps a handler to require POST and a bearer token.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if s.AdminKey == "" {
			http.Error(w, "admin endpoints disabled (no ECONSIM_ADMIN_KEY set)", http.StatusForbidden)
			return
		}
		if !s.checkBearerToken(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.Sim.RLock()
	status := map[string]any{
		"name":      "econsim",
		"day":       s.Sim.Day,
		"stats":     s.Sim.Stats,
		"in_flight": len(s.Sim.InFlight),
	}
	if n := len(s.Sim.Reports); n > 0 {
		last := s.Sim.Reports[n-1]
		status["last_day"] = map[string]any{
			"run_id":  last.RunID,
			"day":     last.Day,
			"elapsed": last.Elapsed.String(),
			"error":   last.Error,
		}
	}
	s.Sim.RUnlock()

	if s.Eng != nil {
		status["paused"] = s.Eng.Paused()
	}
	writeJSON(w, status)
}

type marketSummary struct {
	ID           uint64  `json:"id"`
	Name         string  `json:"name"`
	Pops         int     `json:"pops"`
	Firms        int     `json:"firms"`
	Institutions int     `json:"institutions"`
	States       int     `json:"states"`
	Population   float64 `json:"population"`
	InFlight     bool    `json:"in_flight"`
}

func (s *Server) handleMarkets(w http.ResponseWriter, r *http.Request) {
	s.Sim.RLock()
	defer s.Sim.RUnlock()

	out := make([]marketSummary, 0, len(s.Sim.Markets))
	for _, id := range s.Sim.MarketIDs() {
		m := s.Sim.Markets[id]
		sum := marketSummary{
			ID:           m.ID,
			Name:         m.Name,
			Pops:         len(m.Pops),
			Firms:        len(m.Firms),
			Institutions: len(m.Institutions),
			States:       len(m.States),
		}
		_, sum.InFlight = s.Sim.InFlight[id]
		for _, pid := range m.Pops {
			if p, ok := s.Sim.Pops[pid]; ok {
				sum.Population += p.Size
			}
		}
		out = append(out, sum)
	}
	writeJSON(w, out)
}

type priceEntry struct {
	Product  uint64  `json:"product"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Base     float64 `json:"base"`
	Supply   float64 `json:"supply"`
	Demand   float64 `json:"demand"`
	Volume   float64 `json:"volume"`
	Turnover float64 `json:"turnover"`
}

func (s *Server) handleMarketDetail(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "market")
	if !ok {
		return
	}

	s.Sim.RLock()
	defer s.Sim.RUnlock()

	m, ok := s.Sim.Markets[id]
	if !ok {
		http.Error(w, "market not found", http.StatusNotFound)
		return
	}

	var prices []priceEntry
	if m.History != nil {
		for pid, e := range m.History.Entries {
			pe := priceEntry{
				Product: pid, Price: e.Price, Base: e.BasePrice,
				Supply: e.Supply, Demand: e.Demand, Volume: e.Volume, Turnover: e.Turnover,
			}
			if s.Catalog != nil {
				if p, ok := s.Catalog.Product(pid); ok {
					pe.Name = p.Name
				}
			}
			prices = append(prices, pe)
		}
	}
	sort.Slice(prices, func(i, j int) bool { return prices[i].Product < prices[j].Product })

	_, inFlight := s.Sim.InFlight[id]
	writeJSON(w, map[string]any{
		"id":           m.ID,
		"name":         m.Name,
		"pops":         m.Pops,
		"firms":        m.Firms,
		"institutions": m.Institutions,
		"states":       m.States,
		"prices":       prices,
		"in_flight":    inFlight,
	})
}

func (s *Server) handleActorDetail(w http.ResponseWriter, r *http.Request) {
	raw, ok := pathID(w, r, "actor")
	if !ok {
		return
	}
	id := actors.ID(raw)

	s.Sim.RLock()
	defer s.Sim.RUnlock()

	if p, ok := s.Sim.Pops[id]; ok {
		writeJSON(w, map[string]any{"kind": actors.KindPop.String(), "actor": p})
		return
	}
	if f, ok := s.Sim.Firms[id]; ok {
		writeJSON(w, map[string]any{"kind": actors.KindFirm.String(), "actor": f})
		return
	}
	if i, ok := s.Sim.Institutions[id]; ok {
		writeJSON(w, map[string]any{"kind": actors.KindInstitution.String(), "actor": i})
		return
	}
	if st, ok := s.Sim.States[id]; ok {
		writeJSON(w, map[string]any{"kind": actors.KindState.String(), "actor": st})
		return
	}
	for mid, set := range s.Sim.InFlight {
		for _, aid := range set.IDs() {
			if aid == id {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusConflict)
				json.NewEncoder(w).Encode(map[string]any{"error": "actor in flight", "market": mid})
				return
			}
		}
	}
	http.Error(w, "actor not found", http.StatusNotFound)
}

func (s *Server) handleInFlight(w http.ResponseWriter, r *http.Request) {
	s.Sim.RLock()
	defer s.Sim.RUnlock()

	type entry struct {
		Market uint64      `json:"market"`
		Actors []actors.ID `json:"actors"`
	}
	out := make([]entry, 0, len(s.Sim.InFlight))
	for mid, set := range s.Sim.InFlight {
		out = append(out, entry{Market: mid, Actors: set.IDs()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Market < out[j].Market })
	writeJSON(w, out)
}

func (s *Server) handleDays(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = min(n, 500)
	}

	if s.DB != nil {
		runs, err := s.DB.RecentDayRuns(limit)
		if err != nil {
			slog.Error("day runs query failed", "error", err)
			http.Error(w, "query failed", http.StatusInternalServerError)
			return
		}
		writeJSON(w, runs)
		return
	}

	s.Sim.RLock()
	defer s.Sim.RUnlock()
	reports := s.Sim.Reports
	out := make([]engine.DayReport, 0, min(limit, len(reports)))
	for i := len(reports) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, reports[i])
	}
	writeJSON(w, out)
}

func (s *Server) handleRelocate(w http.ResponseWriter, r *http.Request) {
	var req engine.Relocation
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if err := s.Sim.StageRelocation(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	slog.Info("relocation staged", "pop", req.Pop, "from", req.From, "to", req.To)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]any{"staged": req})
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Market uint64 `json:"market"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	n, err := s.Sim.Reconcile(req.Market)
	if errors.Is(err, engine.ErrNotInFlight) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	remaining := s.Sim.InFlightMarkets()
	resumed := false
	if len(remaining) == 0 && s.Eng != nil && s.Eng.Paused() {
		s.Eng.Resume()
		resumed = true
	}
	writeJSON(w, map[string]any{
		"market":     req.Market,
		"reconciled": n,
		"remaining":  remaining,
		"resumed":    resumed,
	})
}

// pathID parses the id in /api/v1/<kind>/<id>.
func pathID(w http.ResponseWriter, r *http.Request, kind string) (uint64, bool) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) < 4 || parts[3] == "" {
		http.Error(w, "missing "+kind+" id", http.StatusBadRequest)
		return 0, false
	}
	id, err := strconv.ParseUint(parts[3], 10, 64)
	if err != nil {
		http.Error(w, "invalid "+kind+" id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
