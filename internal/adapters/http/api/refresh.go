package api

import (
	"context"
	"net/http"

	"github.com/halfline/overunder/internal/domain/types"
)

// RefreshDependencies defines the interface for triggering update cycles.
type RefreshDependencies interface {
	Refresh(ctx context.Context) types.RefreshReport
}

// RefreshHandler handles manual refresh requests.
type RefreshHandler struct {
	deps RefreshDependencies
}

// NewRefreshHandler creates a new refresh handler.
func NewRefreshHandler(deps RefreshDependencies) *RefreshHandler {
	return &RefreshHandler{deps: deps}
}

// HandlePostRefresh handles POST /refresh requests. A cycle that loses the
// refresh lock to another holder answers 409 with the skip reason so callers
// can distinguish contention from failure.
func (h *RefreshHandler) HandlePostRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	report := h.deps.Refresh(r.Context())
	switch {
	case report.Skipped:
		writeJSON(w, http.StatusConflict, report)
	case report.Failed():
		writeJSON(w, http.StatusBadGateway, report)
	default:
		writeJSON(w, http.StatusOK, report)
	}
}
