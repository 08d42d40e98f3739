// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/halfline/overunder/internal/domain/model"
	"github.com/halfline/overunder/internal/domain/types"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	// Standings computes the current league table from stored state.
	Standings(ctx context.Context) (types.Standings, error)

	// Refresh runs one guarded update cycle and reports what happened.
	Refresh(ctx context.Context) types.RefreshReport

	// Line operations expose win-total history and manual corrections.
	LineHistory(ctx context.Context, teamID int64, lookbackWeeks int) ([]model.LineObservation, error)
	RecordManualLine(ctx context.Context, teamID int64, week int, line float64, note string) (model.LineObservation, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler    *HealthHandler
	standingsHandler *StandingsHandler
	refreshHandler   *RefreshHandler
	linesHandler     *LinesHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies) *Server {
	return &Server{
		healthHandler:    NewHealthHandler(),
		standingsHandler: NewStandingsHandler(deps),
		refreshHandler:   NewRefreshHandler(deps),
		linesHandler:     NewLinesHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(ctx context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/standings", MetricsMiddleware(s.standingsHandler.HandleGetStandings, "standings"))
	mux.HandleFunc("/refresh", MetricsMiddleware(s.refreshHandler.HandlePostRefresh, "refresh"))
	mux.HandleFunc("/lines/", MetricsMiddleware(s.linesHandler.HandleLines, "lines"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
