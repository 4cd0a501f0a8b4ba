package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mcdev12/fearless/go/internal/draft/orchestrator"
	"github.com/mcdev12/fearless/go/internal/draft/series"
	"github.com/rs/zerolog/log"
)

// StateHandler serves snapshots over plain HTTP so clients can resync after
// a reconnect.
type StateHandler struct {
	drafts DraftBackend
	series SeriesBackend
}

func NewStateHandler(drafts DraftBackend, series SeriesBackend) *StateHandler {
	return &StateHandler{drafts: drafts, series: series}
}

// HandleGetDraftState handles GET /api/drafts/{id}/state
func (h *StateHandler) HandleGetDraftState(w http.ResponseWriter, r *http.Request) {
	draftID := r.PathValue("id")
	state, err := h.drafts.Get(r.Context(), draftID)
	if err != nil {
		if errors.Is(err, orchestrator.ErrDraftNotFound) {
			http.Error(w, "draft not found", http.StatusNotFound)
			return
		}
		log.Error().Err(err).Str("draft_id", draftID).Msg("failed to get draft state")
		http.Error(w, "failed to get draft state", http.StatusInternalServerError)
		return
	}
	writeJSON(w, state)
}

// HandleGetSeriesState handles GET /api/series/{id}/state
func (h *StateHandler) HandleGetSeriesState(w http.ResponseWriter, r *http.Request) {
	seriesID := r.PathValue("id")
	state, err := h.series.GetSeries(r.Context(), seriesID)
	if err != nil {
		if errors.Is(err, series.ErrSeriesNotFound) {
			http.Error(w, "series not found", http.StatusNotFound)
			return
		}
		log.Error().Err(err).Str("series_id", seriesID).Msg("failed to get series state")
		http.Error(w, "failed to get series state", http.StatusInternalServerError)
		return
	}
	writeJSON(w, state)
}

// HandleGetActiveDrafts handles GET /api/drafts/active
func (h *StateHandler) HandleGetActiveDrafts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.drafts.ActiveDrafts(r.Context()))
}

// RegisterStateRoutes registers state-related HTTP routes
func (h *StateHandler) RegisterStateRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/drafts/active", h.HandleGetActiveDrafts)
	mux.HandleFunc("GET /api/drafts/{id}/state", h.HandleGetDraftState)
	mux.HandleFunc("GET /api/series/{id}/state", h.HandleGetSeriesState)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
