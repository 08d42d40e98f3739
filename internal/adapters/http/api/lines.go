package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/halfline/overunder/internal/adapters/repository"
	"github.com/halfline/overunder/internal/domain/model"
)

// Default and maximum lookback window for line history queries, in weeks.
const (
	defaultLookbackWeeks = 8
	maxLookbackWeeks     = 30
)

// LinesDependencies defines the interface for line history and corrections.
type LinesDependencies interface {
	LineHistory(ctx context.Context, teamID int64, lookbackWeeks int) ([]model.LineObservation, error)
	RecordManualLine(ctx context.Context, teamID int64, week int, line float64, note string) (model.LineObservation, error)
}

// LinesHandler handles win-total line requests.
type LinesHandler struct {
	deps LinesDependencies
}

// NewLinesHandler creates a new lines handler.
func NewLinesHandler(deps LinesDependencies) *LinesHandler {
	return &LinesHandler{deps: deps}
}

// lineRequest mirrors the request schema for POST /lines/{teamID}.
type lineRequest struct {
	Week int     `json:"week"`
	Line float64 `json:"line"`
	Note string  `json:"note"`
}

func (l lineRequest) validate() error {
	switch {
	case l.Week < 0:
		return errors.New("week must not be negative")
	case l.Line <= 0:
		return errors.New("line must be positive")
	}
	return nil
}

// HandleLines dispatches GET and POST /lines/{teamID} requests.
func (h *LinesHandler) HandleLines(w http.ResponseWriter, r *http.Request) {
	teamID, err := teamIDFromPath(r.URL.Path)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: %w", ErrBadRequest, err))
		return
	}
	switch r.Method {
	case http.MethodGet:
		h.handleGetHistory(w, r, teamID)
	case http.MethodPost:
		h.handlePostLine(w, r, teamID)
	default:
		http.NotFound(w, r)
	}
}

// handleGetHistory handles GET /lines/{teamID}?lookback=N requests.
func (h *LinesHandler) handleGetHistory(w http.ResponseWriter, r *http.Request, teamID int64) {
	lookback := defaultLookbackWeeks
	if raw := r.URL.Query().Get("lookback"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxLookbackWeeks {
			writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: lookback must be between 1 and %d", ErrBadRequest, maxLookbackWeeks))
			return
		}
		lookback = n
	}
	history, err := h.deps.LineHistory(r.Context(), teamID, lookback)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", fmt.Errorf("%w: team %d", ErrNotFound, teamID))
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

// handlePostLine handles POST /lines/{teamID} requests recording a manual
// line correction.
func (h *LinesHandler) handlePostLine(w http.ResponseWriter, r *http.Request, teamID int64) {
	var req lineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: invalid json body", ErrBadRequest))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: %w", ErrBadRequest, err))
		return
	}
	obs, err := h.deps.RecordManualLine(r.Context(), teamID, req.Week, req.Line, req.Note)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", fmt.Errorf("%w: team %d", ErrNotFound, teamID))
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	writeJSON(w, http.StatusCreated, obs)
}

// teamIDFromPath extracts the team identifier from /lines/{teamID}.
func teamIDFromPath(path string) (int64, error) {
	raw := strings.TrimPrefix(path, "/lines/")
	raw = strings.Trim(raw, "/")
	if raw == "" || strings.Contains(raw, "/") {
		return 0, errors.New("missing team id")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return 0, errors.New("invalid team id")
	}
	return id, nil
}
