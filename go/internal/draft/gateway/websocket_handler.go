package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mcdev12/fearless/go/internal/draft/engine"
	"github.com/mcdev12/fearless/go/internal/draft/events"
	"github.com/mcdev12/fearless/go/internal/draft/orchestrator"
	"github.com/mcdev12/fearless/go/internal/draft/series"
	"github.com/rs/zerolog/log"
)

// DraftBackend serves draft snapshots and applies client commands. The
// orchestrator satisfies it.
type DraftBackend interface {
	Get(ctx context.Context, draftID string) (engine.DraftState, error)
	HandleCommand(ctx context.Context, cmd events.Command) (engine.DraftState, error)
	ActiveDrafts(ctx context.Context) []orchestrator.Summary
}

// SeriesBackend serves series state. The series coordinator satisfies it.
type SeriesBackend interface {
	GetSeries(ctx context.Context, seriesID string) (series.SeriesState, error)
	Count() int
}

// WebSocketHandler handles WebSocket upgrade requests for draft and series
// channels
type WebSocketHandler struct {
	connectionManager *ConnectionManager
	drafts            DraftBackend
	series            SeriesBackend
}

// NewWebSocketHandler creates a WebSocket handler and routes client
// messages from draft connections to drafts.
func NewWebSocketHandler(cm *ConnectionManager, drafts DraftBackend, series SeriesBackend) *WebSocketHandler {
	h := &WebSocketHandler{
		connectionManager: cm,
		drafts:            drafts,
		series:            series,
	}
	cm.onMessage = h.handleClientMessage
	return h
}

// HandleDraftConnection subscribes a client to a draft channel. The current
// snapshot is the first message on the socket.
func (h *WebSocketHandler) HandleDraftConnection(w http.ResponseWriter, r *http.Request) {
	draftID := r.URL.Query().Get("draft_id")
	if draftID == "" {
		http.Error(w, "draft_id is required", http.StatusBadRequest)
		return
	}

	var team engine.Team
	if raw := r.URL.Query().Get("team"); raw != "" {
		parsed, err := engine.ParseTeam(raw)
		if err != nil {
			http.Error(w, "team must be BLUE or RED", http.StatusBadRequest)
			return
		}
		team = parsed
	}

	state, err := h.drafts.Get(r.Context(), draftID)
	if err != nil {
		if errors.Is(err, orchestrator.ErrDraftNotFound) {
			http.Error(w, "draft not found", http.StatusNotFound)
			return
		}
		log.Error().Err(err).Str("draft_id", draftID).Msg("failed to load draft for WebSocket")
		http.Error(w, "failed to load draft", http.StatusInternalServerError)
		return
	}

	if _, err := h.connectionManager.UpgradeConnection(w, r, events.DraftChannel(draftID), draftID, team, state); err != nil {
		// The upgrader has already replied to the client.
		log.Error().Err(err).Str("draft_id", draftID).Msg("failed to upgrade WebSocket connection")
	}
}

// HandleSeriesConnection subscribes a client to a series channel.
func (h *WebSocketHandler) HandleSeriesConnection(w http.ResponseWriter, r *http.Request) {
	seriesID := r.URL.Query().Get("series_id")
	if seriesID == "" {
		http.Error(w, "series_id is required", http.StatusBadRequest)
		return
	}

	state, err := h.series.GetSeries(r.Context(), seriesID)
	if err != nil {
		if errors.Is(err, series.ErrSeriesNotFound) {
			http.Error(w, "series not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load series", http.StatusInternalServerError)
		return
	}

	if _, err := h.connectionManager.UpgradeConnection(w, r, events.SeriesChannel(seriesID), "", "", state); err != nil {
		log.Error().Err(err).Str("series_id", seriesID).Msg("failed to upgrade WebSocket connection")
	}
}

// StatsResponse is returned by the stats endpoint
type StatsResponse struct {
	ConnectionStats
	Drafts []orchestrator.Summary `json:"drafts"`
	Series int                    `json:"series"`
}

// HandleConnectionStats returns statistics about active connections and drafts
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	resp := StatsResponse{
		ConnectionStats: h.connectionManager.GetConnectionStats(),
		Drafts:          h.drafts.ActiveDrafts(r.Context()),
		Series:          h.series.Count(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error().Err(err).Msg("failed to encode stats response")
	}
}

// RegisterRoutes registers WebSocket routes with an HTTP mux
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws/draft", h.HandleDraftConnection)
	mux.HandleFunc("/ws/series", h.HandleSeriesConnection)
	mux.HandleFunc("/ws/stats", h.HandleConnectionStats)
}

// handleClientMessage applies a PREVIEW, ACTION or READY message sent on a
// draft connection. A rejection is sent back to that connection only.
func (h *WebSocketHandler) handleClientMessage(c *Connection, message []byte) {
	if c.DraftID == "" {
		log.Debug().Str("connection_id", c.ID).Msg("ignoring message on series connection")
		return
	}

	var cmd events.Command
	if err := json.Unmarshal(message, &cmd); err != nil {
		h.reject(c, events.Command{}, errors.Join(orchestrator.ErrInvalidRequest, err))
		return
	}
	if cmd.DraftID == "" {
		cmd.DraftID = c.DraftID
	}
	if cmd.Team == "" {
		cmd.Team = string(c.Team)
	}

	if _, err := h.drafts.HandleCommand(context.Background(), cmd); err != nil {
		h.reject(c, cmd, err)
	}
}

func (h *WebSocketHandler) reject(c *Connection, cmd events.Command, err error) {
	code := orchestrator.ErrorCode(err)
	log.Info().
		Err(err).
		Str("connection_id", c.ID).
		Str("draft_id", cmd.DraftID).
		Str("command", cmd.Type).
		Str("code", code).
		Msg("client command rejected")

	h.connectionManager.SendToConnection(c.Channel, c.ID, events.ErrorMessage{
		Type:  "ERROR",
		Error: err.Error(),
		Code:  code,
	})
}
