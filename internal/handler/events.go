package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	apperrors "github.com/trmquang93/planning-poker-sub001/internal/errors"
	"github.com/trmquang93/planning-poker-sub001/internal/httputil"
	"github.com/trmquang93/planning-poker-sub001/internal/middleware"
	"github.com/trmquang93/planning-poker-sub001/internal/service"
	"github.com/trmquang93/planning-poker-sub001/internal/sse"
)

// EventsHandler streams session changes as server-sent events.
type EventsHandler struct {
	broker            *sse.Broker
	registry          *service.Registry
	heartbeatInterval time.Duration
}

func NewEventsHandler(broker *sse.Broker, registry *service.Registry) *EventsHandler {
	return &EventsHandler{
		broker:            broker,
		registry:          registry,
		heartbeatInterval: sse.HeartbeatInterval,
	}
}

// GET /api/sessions/{sessionID}/events
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	viewerID := middleware.GetParticipantID(r.Context())

	session, err := h.registry.LiveSession(sessionID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.WriteError(w, apperrors.Internal("Streaming not supported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	client := h.broker.Subscribe(sessionID)
	defer h.broker.Unsubscribe(client)

	logger := log.With().
		Str("sessionId", sessionID).
		Str("participantId", viewerID).
		Logger()
	logger.Info().Msg("sse connection established")

	snapshot, err := snapshotEvent(session, viewerID)
	if err != nil {
		logger.Error().Err(err).Msg("failed to encode session snapshot")
		return
	}
	if err := h.sendEvent(w, flusher, snapshot); err != nil {
		return
	}

	ctx := r.Context()
	heartbeat := time.NewTicker(h.heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("sse connection closed by client")
			return

		case <-client.Done:
			logger.Info().Msg("sse connection closed by broker")
			return

		case event := <-client.Events:
			if err := h.sendEvent(w, flusher, viewerEvent(h.registry, event, viewerID)); err != nil {
				logger.Error().Err(err).Msg("failed to send event")
				return
			}
			if event.Terminal() {
				logger.Info().Str("event", event.Type).Msg("session ended, closing sse stream")
				return
			}

		case <-heartbeat.C:
			if _, err := fmt.Fprintf(w, ": ping\n\n"); err != nil {
				logger.Debug().Msg("heartbeat failed, closing connection")
				return
			}
			flusher.Flush()
		}
	}
}

func (h *EventsHandler) sendEvent(w http.ResponseWriter, flusher http.Flusher, event sse.Event) error {
	if event.Version > 0 {
		if _, err := fmt.Fprintf(w, "id: %d\n", event.Version); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "event: %s\n", event.Type); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", event.Data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
