package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/trmquang93/planning-poker-sub001/internal/config"
	apperrors "github.com/trmquang93/planning-poker-sub001/internal/errors"
	"github.com/trmquang93/planning-poker-sub001/internal/httputil"
	"github.com/trmquang93/planning-poker-sub001/internal/middleware"
	"github.com/trmquang93/planning-poker-sub001/internal/service"
	"github.com/trmquang93/planning-poker-sub001/internal/sse"
)

// WSHandler pushes session changes over a WebSocket. The participant is
// marked online while the socket is open.
type WSHandler struct {
	broker   *sse.Broker
	registry *service.Registry
	upgrader websocket.Upgrader

	writeTimeout time.Duration
	pongTimeout  time.Duration
	pingInterval time.Duration
}

func NewWSHandler(broker *sse.Broker, registry *service.Registry) *WSHandler {
	return &WSHandler{
		broker:   broker,
		registry: registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		writeTimeout: config.WSWriteTimeout,
		pongTimeout:  config.WSPongTimeout,
		pingInterval: config.WSPingInterval,
	}
}

// GET /api/sessions/{sessionID}/ws?participantId=
func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	participantID := middleware.GetParticipantID(r.Context())

	session, err := h.registry.LiveSession(sessionID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if participantID == "" || session.Participant(participantID) == nil {
		httputil.WriteError(w, apperrors.Forbidden("Participant is not part of this session"))
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("sessionId", sessionID).Msg("failed to upgrade websocket")
		return
	}

	logger := log.With().
		Str("sessionId", sessionID).
		Str("participantId", participantID).
		Logger()
	ctx := context.WithoutCancel(r.Context())

	client := h.broker.Subscribe(sessionID)
	h.setPresence(ctx, logger, sessionID, participantID, true)

	go h.writePump(conn, client, participantID, logger)
	h.readPump(conn, logger)

	h.broker.Unsubscribe(client)
	h.setPresence(ctx, logger, sessionID, participantID, false)
	logger.Info().Msg("websocket closed")
}

func (h *WSHandler) setPresence(ctx context.Context, logger zerolog.Logger, sessionID, participantID string, online bool) {
	if _, err := h.registry.UpdateParticipantStatus(ctx, sessionID, participantID, online); err != nil {
		logger.Debug().Err(err).Bool("online", online).Msg("presence update skipped")
	}
}

// readPump drains client frames so control messages are processed. It
// returns once the connection fails or closes.
func (h *WSHandler) readPump(conn *websocket.Conn, logger zerolog.Logger) {
	defer conn.Close()

	conn.SetReadLimit(config.WSMaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(h.pongTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(h.pongTimeout))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug().Err(err).Msg("websocket read error")
			}
			return
		}
	}
}

// writePump is the only writer on conn.
func (h *WSHandler) writePump(conn *websocket.Conn, client *sse.Client, viewerID string, logger zerolog.Logger) {
	ticker := time.NewTicker(h.pingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	if s := h.registry.GetSession(client.SessionID); s != nil {
		snapshot, err := snapshotEvent(s, viewerID)
		if err != nil {
			logger.Error().Err(err).Msg("failed to encode session snapshot")
			return
		}
		if err := h.writeEvent(conn, snapshot); err != nil {
			return
		}
	}

	for {
		select {
		case <-client.Done:
			h.writeClose(conn, websocket.CloseGoingAway, "")
			return

		case event := <-client.Events:
			if err := h.writeEvent(conn, viewerEvent(h.registry, event, viewerID)); err != nil {
				logger.Debug().Err(err).Msg("failed to write websocket event")
				return
			}
			if event.Terminal() {
				h.writeClose(conn, websocket.CloseNormalClosure, event.Type)
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *WSHandler) writeEvent(conn *websocket.Conn, event sse.Event) error {
	conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
	return conn.WriteJSON(event)
}

func (h *WSHandler) writeClose(conn *websocket.Conn, code int, text string) {
	conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, text))
}
