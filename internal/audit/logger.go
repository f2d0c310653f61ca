package audit

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type EventType string

const (
	EventActionDenied     EventType = "action_denied"
	EventAdminAuthFailure EventType = "admin_auth_failure"
	EventAdminDelete      EventType = "admin_session_delete"
	EventAdminReset       EventType = "admin_reset"
	EventRateLimitExceed  EventType = "rate_limit_exceeded"
	EventParticipantLeave EventType = "participant_leave"
)

type Event struct {
	Type          EventType
	SessionID     string
	ParticipantID string
	IP            string
	UserAgent     string
	Details       map[string]interface{}
}

func Log(ctx context.Context, event Event) {
	logger := log.Ctx(ctx)
	if logger.GetLevel() == zerolog.Disabled {
		logger = &log.Logger
	}

	ctxLogger := logger.With().
		Str("audit", "security").
		Str("event_type", string(event.Type)).
		Time("timestamp", time.Now()).
		Logger()

	if event.SessionID != "" {
		ctxLogger = ctxLogger.With().Str("session_id", event.SessionID).Logger()
	}
	if event.ParticipantID != "" {
		ctxLogger = ctxLogger.With().Str("participant_id", event.ParticipantID).Logger()
	}
	if event.IP != "" {
		ctxLogger = ctxLogger.With().Str("ip", event.IP).Logger()
	}
	if event.UserAgent != "" {
		ctxLogger = ctxLogger.With().Str("user_agent", event.UserAgent).Logger()
	}

	logEvent := ctxLogger.Info()
	for k, v := range event.Details {
		logEvent = addField(logEvent, k, v)
	}
	logEvent.Msg("security audit event")
}

func addField(e *zerolog.Event, key string, value interface{}) *zerolog.Event {
	switch v := value.(type) {
	case string:
		return e.Str(key, v)
	case int:
		return e.Int(key, v)
	case int64:
		return e.Int64(key, v)
	case bool:
		return e.Bool(key, v)
	default:
		return e.Interface(key, v)
	}
}

func LogFromRequest(r *http.Request, event Event) {
	event.IP = ClientIP(r)
	event.UserAgent = r.UserAgent()
	Log(r.Context(), event)
}

// ClientIP prefers proxy headers over the socket address.
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return forwarded
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	return r.RemoteAddr
}
