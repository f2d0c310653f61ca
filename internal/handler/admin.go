package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/trmquang93/planning-poker-sub001/internal/audit"
	apperrors "github.com/trmquang93/planning-poker-sub001/internal/errors"
	"github.com/trmquang93/planning-poker-sub001/internal/httputil"
	"github.com/trmquang93/planning-poker-sub001/internal/model"
	"github.com/trmquang93/planning-poker-sub001/internal/service"
	"github.com/trmquang93/planning-poker-sub001/internal/sse"
)

type AdminHandler struct {
	registry *service.Registry
	broker   *sse.Broker
	keyCheck func(http.Handler) http.Handler
}

func NewAdminHandler(registry *service.Registry, broker *sse.Broker, keyCheck func(http.Handler) http.Handler) *AdminHandler {
	return &AdminHandler{
		registry: registry,
		broker:   broker,
		keyCheck: keyCheck,
	}
}

func (h *AdminHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(h.keyCheck)

	r.Get("/stats", h.Stats)
	r.Get("/sessions", h.ListSessions)
	r.Delete("/sessions/{id}", h.DeleteSession)
	r.Post("/reset", h.Reset)

	return r
}

type sessionSummary struct {
	ID               string              `json:"id"`
	Code             string              `json:"code"`
	Title            string              `json:"title"`
	Status           model.SessionStatus `json:"status"`
	ParticipantCount int                 `json:"participantCount"`
	OnlineCount      int                 `json:"onlineCount"`
	StoryCount       int                 `json:"storyCount"`
	ConnectedClients int                 `json:"connectedClients"`
	Version          int64               `json:"version"`
	CreatedAt        time.Time           `json:"createdAt"`
	ExpiresAt        time.Time           `json:"expiresAt"`
}

// GET /admin/stats
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions":         h.registry.Count(),
		"connectedClients": h.broker.TotalClients(),
	})
}

const (
	defaultPageLimit = 50
	maxPageLimit     = 200
)

// pageBounds reads limit/offset query parameters, clamped to total.
func pageBounds(r *http.Request, total int) (start, end, limit int) {
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if limit <= 0 || limit > maxPageLimit {
		limit = defaultPageLimit
	}
	if offset < 0 {
		offset = 0
	}

	start = min(offset, total)
	end = min(start+limit, total)
	return start, end, limit
}

// GET /admin/sessions?limit=&offset=
func (h *AdminHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions := h.registry.GetAllSessions()
	start, end, limit := pageBounds(r, len(sessions))

	items := make([]sessionSummary, 0, end-start)
	for _, s := range sessions[start:end] {
		online := 0
		for _, p := range s.Participants {
			if p.IsOnline {
				online++
			}
		}
		items = append(items, sessionSummary{
			ID:               s.ID,
			Code:             s.Code,
			Title:            s.Title,
			Status:           s.Status,
			ParticipantCount: len(s.Participants),
			OnlineCount:      online,
			StoryCount:       len(s.Stories),
			ConnectedClients: h.broker.ClientCount(s.ID),
			Version:          s.Version,
			CreatedAt:        s.CreatedAt,
			ExpiresAt:        s.ExpiresAt,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"items":  items,
		"total":  len(sessions),
		"limit":  limit,
		"offset": start,
	})
}

// DELETE /admin/sessions/{id}
func (h *AdminHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if !h.registry.DeleteSession(r.Context(), id) {
		httputil.WriteError(w, apperrors.NotFound("Session"))
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:      audit.EventAdminDelete,
		SessionID: id,
	})
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// POST /admin/reset
func (h *AdminHandler) Reset(w http.ResponseWriter, r *http.Request) {
	cleared := h.registry.ClearAllSessions(r.Context())

	audit.LogFromRequest(r, audit.Event{
		Type:    audit.EventAdminReset,
		Details: map[string]interface{}{"cleared": cleared},
	})
	log.Warn().Int("cleared", cleared).Msg("all sessions cleared by admin")

	writeJSON(w, http.StatusOK, map[string]int{"cleared": cleared})
}
