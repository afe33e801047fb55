// Package api serves the planner's HTTP status and inspection endpoints.
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/highway-planner/internal/config"
	"github.com/banshee-data/highway-planner/internal/db"
	"github.com/banshee-data/highway-planner/internal/httputil"
	"github.com/banshee-data/highway-planner/internal/monitoring"
	"github.com/banshee-data/highway-planner/internal/planner"
	"github.com/banshee-data/highway-planner/internal/units"
	"github.com/banshee-data/highway-planner/internal/version"
)

// ANSI escape codes used by LoggingMiddleware to color request paths and
// status codes.
const (
	colorCyan      = "\033[36m"
	colorReset     = "\033[0m"
	colorYellow    = "\033[33m"
	colorBoldGreen = "\033[1;32m"
	colorBoldRed   = "\033[1;31m"
)

// CycleSource reads recorded cycles.
type CycleSource interface {
	RecentCycles(limit int) ([]db.CycleRecord, error)
	Sessions() ([]db.Session, error)
}

type Server struct {
	planner *planner.Planner
	cycles  CycleSource
	cfg     *config.PlannerConfig
	units   string
}

// NewServer returns a Server reporting on p. cycles may be nil when
// recording is disabled. units is the default speed unit of responses.
func NewServer(p *planner.Planner, cycles CycleSource, cfg *config.PlannerConfig, units string) *Server {
	return &Server{
		planner: p,
		cycles:  cycles,
		cfg:     cfg,
		units:   units,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.showStatus)
	mux.HandleFunc("/api/cycles", s.listCycles)
	mux.HandleFunc("/api/sessions", s.listSessions)
	mux.HandleFunc("/api/config", s.showConfig)
	mux.HandleFunc("/api/charts/trajectory", s.handleTrajectoryChart)
	return mux
}

// requestUnits returns the ?units= override or the server default.
func (s *Server) requestUnits(r *http.Request) (string, bool) {
	u := r.URL.Query().Get("units")
	if u == "" {
		return s.units, true
	}
	return u, units.IsValid(u)
}

// convertSpeed turns a simulator reference speed (mph) into unit.
func convertSpeed(speedMPH float64, unit string) float64 {
	if unit == units.MPH {
		return speedMPH
	}
	return units.ConvertSpeed(units.ToMPS(speedMPH, units.MPH), unit)
}

type statusResponse struct {
	Version        string  `json:"version"`
	GitSHA         string  `json:"git_sha"`
	BuildTime      string  `json:"build_time"`
	Lane           int     `json:"lane"`
	ReferenceSpeed float64 `json:"reference_speed"`
	Units          string  `json:"units"`
	Cycles         uint64  `json:"cycles"`
	Recording      bool    `json:"recording"`
}

func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	unit, ok := s.requestUnits(r)
	if !ok {
		httputil.BadRequest(w, "Invalid 'units' parameter, want one of: "+units.GetValidUnitsString())
		return
	}

	state := s.planner.State()
	httputil.WriteJSONOK(w, statusResponse{
		Version:        version.Version,
		GitSHA:         version.GitSHA,
		BuildTime:      version.BuildTime,
		Lane:           state.Lane,
		ReferenceSpeed: convertSpeed(state.ReferenceSpeed, unit),
		Units:          unit,
		Cycles:         s.planner.Cycles(),
		Recording:      s.cycles != nil,
	})
}

func (s *Server) listCycles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.cycles == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "cycle recording is disabled")
		return
	}
	unit, ok := s.requestUnits(r)
	if !ok {
		httputil.BadRequest(w, "Invalid 'units' parameter, want one of: "+units.GetValidUnitsString())
		return
	}

	limit := db.DefaultRecentLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 || parsed > db.MaxRecentLimit {
			httputil.BadRequest(w, "Invalid 'limit' parameter")
			return
		}
		limit = parsed
	}

	cycles, err := s.cycles.RecentCycles(limit)
	if err != nil {
		httputil.InternalServerError(w, "Failed to retrieve cycles: "+err.Error())
		return
	}
	for i := range cycles {
		cycles[i].ReferenceSpeed = convertSpeed(cycles[i].ReferenceSpeed, unit)
	}
	httputil.WriteJSONOK(w, cycles)
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.cycles == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "cycle recording is disabled")
		return
	}
	sessions, err := s.cycles.Sessions()
	if err != nil {
		httputil.InternalServerError(w, "Failed to retrieve sessions: "+err.Error())
		return
	}
	httputil.WriteJSONOK(w, sessions)
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, map[string]interface{}{
		"units":   s.units,
		"planner": s.cfg.Effective(),
	})
}
