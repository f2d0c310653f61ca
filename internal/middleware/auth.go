package middleware

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const ParticipantContextKey contextKey = "participantId"

const ParticipantHeader = "X-Participant-ID"

// GetParticipantID returns the acting participant, or "" when the request
// carried none.
func GetParticipantID(ctx context.Context) string {
	if id, ok := ctx.Value(ParticipantContextKey).(string); ok {
		return id
	}
	return ""
}

// WithParticipantID stores id as the acting participant.
func WithParticipantID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ParticipantContextKey, id)
}

// Participant lifts the acting participant id off the request. Authority is
// decided by the registry, so a missing id is not rejected here.
func Participant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := extractParticipantID(r)
		if id == "" {
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithParticipantID(r.Context(), id)))
	})
}

func extractParticipantID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(ParticipantHeader)); id != "" {
		return id
	}
	// Browsers cannot set headers on EventSource/WebSocket handshakes.
	return strings.TrimSpace(r.URL.Query().Get("participantId"))
}
