package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/trmquang93/planning-poker-sub001/internal/audit"
	apperrors "github.com/trmquang93/planning-poker-sub001/internal/errors"
	"github.com/trmquang93/planning-poker-sub001/internal/httputil"
	"github.com/trmquang93/planning-poker-sub001/internal/middleware"
	"github.com/trmquang93/planning-poker-sub001/internal/model"
	"github.com/trmquang93/planning-poker-sub001/internal/service"
)

type SessionHandler struct {
	registry *service.Registry
	opts     SessionRoutesOptions
}

// SessionRoutesOptions carries the optional collaborators of the session routes.
type SessionRoutesOptions struct {
	// EntryLimit guards create and join.
	EntryLimit func(http.Handler) http.Handler
	// RequestTimeout bounds the REST routes only; streams run unbounded.
	RequestTimeout time.Duration
	Events         http.Handler
	WebSocket      http.Handler
}

func NewSessionHandler(registry *service.Registry, opts SessionRoutesOptions) *SessionHandler {
	return &SessionHandler{
		registry: registry,
		opts:     opts,
	}
}

type joinResponse struct {
	Session       model.SessionView `json:"session"`
	ParticipantID string            `json:"participantId"`
}

func (h *SessionHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Participant)

	r.Group(func(r chi.Router) {
		if h.opts.RequestTimeout > 0 {
			r.Use(chimiddleware.Timeout(h.opts.RequestTimeout))
		}

		r.Group(func(r chi.Router) {
			if h.opts.EntryLimit != nil {
				r.Use(h.opts.EntryLimit)
			}
			r.Post("/", h.CreateSession)
			r.Post("/join", h.JoinSession)
		})

		r.Get("/code/{code}", h.GetSessionByCode)
		r.Get("/{sessionID}", h.GetSession)
		r.Post("/{sessionID}/stories", h.AddStory)
		r.Post("/{sessionID}/stories/{storyID}/start", storyAction(h.registry.StartVoting))
		r.Post("/{sessionID}/stories/{storyID}/votes", h.SubmitVote)
		r.Post("/{sessionID}/stories/{storyID}/reveal", storyAction(h.registry.RevealVotes))
		r.Post("/{sessionID}/stories/{storyID}/finalize", h.FinalizeEstimate)
		r.Post("/{sessionID}/stories/{storyID}/revote", storyAction(h.registry.RevoteStory))
		r.Get("/{sessionID}/stories/{storyID}/results", h.StoryResults)
		r.Put("/{sessionID}/participants/{participantID}/status", h.UpdateParticipantStatus)
		r.Delete("/{sessionID}/participants/{participantID}", h.RemoveParticipant)
	})

	if h.opts.Events != nil {
		r.Method(http.MethodGet, "/{sessionID}/events", h.opts.Events)
	}
	if h.opts.WebSocket != nil {
		r.Method(http.MethodGet, "/{sessionID}/ws", h.opts.WebSocket)
	}

	return r
}

// writeSession renders s as seen by the requesting participant.
func writeSession(w http.ResponseWriter, r *http.Request, status int, s *model.Session) {
	writeJSON(w, status, model.NewSessionView(s, middleware.GetParticipantID(r.Context())))
}

// POST /api/sessions
func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title           string      `json:"title"`
		FacilitatorName string      `json:"facilitatorName"`
		Scale           model.Scale `json:"scale"`
	}
	if err := decodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}

	result, err := h.registry.CreateSession(r.Context(), req.Title, req.FacilitatorName, req.Scale)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, joinResponse{
		Session:       model.NewSessionView(result.Session, result.ParticipantID),
		ParticipantID: result.ParticipantID,
	})
}

// POST /api/sessions/join
func (h *SessionHandler) JoinSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}

	result, err := h.registry.JoinSession(r.Context(), req.Code, req.Name)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, joinResponse{
		Session:       model.NewSessionView(result.Session, result.ParticipantID),
		ParticipantID: result.ParticipantID,
	})
}

// GET /api/sessions/{sessionID}
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	s := h.registry.GetSession(chi.URLParam(r, "sessionID"))
	if s == nil {
		httputil.WriteError(w, apperrors.NotFound("Session"))
		return
	}
	writeSession(w, r, http.StatusOK, s)
}

// GET /api/sessions/code/{code}
func (h *SessionHandler) GetSessionByCode(w http.ResponseWriter, r *http.Request) {
	s := h.registry.GetSessionByCode(chi.URLParam(r, "code"))
	if s == nil {
		httputil.WriteError(w, apperrors.NotFound("Session"))
		return
	}
	writeSession(w, r, http.StatusOK, s)
}

// POST /api/sessions/{sessionID}/stories
func (h *SessionHandler) AddStory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title       string `json:"title"`
		Description string `json:"description"`
	}
	if err := decodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}

	s, err := h.registry.AddStory(r.Context(),
		chi.URLParam(r, "sessionID"),
		middleware.GetParticipantID(r.Context()),
		req.Title, req.Description)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	writeSession(w, r, http.StatusCreated, s)
}

type storyTransition func(ctx context.Context, sessionID, requesterID, storyID string) (*model.Session, error)

// storyAction adapts a facilitator-only story transition to a handler.
func storyAction(transition storyTransition) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := transition(r.Context(),
			chi.URLParam(r, "sessionID"),
			middleware.GetParticipantID(r.Context()),
			chi.URLParam(r, "storyID"))
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		writeSession(w, r, http.StatusOK, s)
	}
}

// POST /api/sessions/{sessionID}/stories/{storyID}/votes
func (h *SessionHandler) SubmitVote(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Value model.VoteValue `json:"value"`
	}
	if err := decodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}

	s, err := h.registry.SubmitVote(r.Context(),
		chi.URLParam(r, "sessionID"),
		middleware.GetParticipantID(r.Context()),
		chi.URLParam(r, "storyID"),
		req.Value)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	writeSession(w, r, http.StatusOK, s)
}

// POST /api/sessions/{sessionID}/stories/{storyID}/finalize
func (h *SessionHandler) FinalizeEstimate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Estimate model.VoteValue `json:"estimate"`
	}
	if err := decodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}

	s, err := h.registry.FinalizeEstimate(r.Context(),
		chi.URLParam(r, "sessionID"),
		middleware.GetParticipantID(r.Context()),
		chi.URLParam(r, "storyID"),
		req.Estimate)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	writeSession(w, r, http.StatusOK, s)
}

// GET /api/sessions/{sessionID}/stories/{storyID}/results
func (h *SessionHandler) StoryResults(w http.ResponseWriter, r *http.Request) {
	summary, err := h.registry.StoryResults(chi.URLParam(r, "sessionID"), chi.URLParam(r, "storyID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// PUT /api/sessions/{sessionID}/participants/{participantID}/status
func (h *SessionHandler) UpdateParticipantStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IsOnline *bool `json:"isOnline"`
	}
	if err := decodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if req.IsOnline == nil {
		httputil.WriteError(w, apperrors.InvalidInput("isOnline", "is required"))
		return
	}

	s, err := h.registry.UpdateParticipantStatus(r.Context(),
		chi.URLParam(r, "sessionID"),
		chi.URLParam(r, "participantID"),
		*req.IsOnline)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	writeSession(w, r, http.StatusOK, s)
}

// DELETE /api/sessions/{sessionID}/participants/{participantID}
func (h *SessionHandler) RemoveParticipant(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	participantID := chi.URLParam(r, "participantID")

	if middleware.GetParticipantID(r.Context()) != participantID {
		audit.LogFromRequest(r, audit.Event{
			Type:          audit.EventActionDenied,
			SessionID:     sessionID,
			ParticipantID: middleware.GetParticipantID(r.Context()),
			Details: map[string]interface{}{
				"action":   "remove_participant",
				"targetId": participantID,
			},
		})
		httputil.WriteError(w, apperrors.Forbidden("Participants can only remove themselves"))
		return
	}

	s, err := h.registry.RemoveParticipant(r.Context(), sessionID, participantID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:          audit.EventParticipantLeave,
		SessionID:     sessionID,
		ParticipantID: participantID,
	})
	writeJSON(w, http.StatusOK, model.NewSessionView(s, ""))
}
