package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/trmquang93/planning-poker-sub001/internal/config"
)

// Pinger is a dependency whose reachability is reported by the health check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a plain function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type HealthHandler struct {
	checks map[string]Pinger
}

// NewHealthHandler reports on the named dependencies. Nil entries are
// treated as not configured.
func NewHealthHandler(checks map[string]Pinger) *HealthHandler {
	return &HealthHandler{checks: checks}
}

// GET /health
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), config.DBPingTimeout)
	defer cancel()

	status := http.StatusOK
	deps := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if check == nil {
			deps[name] = "disabled"
			continue
		}
		if err := check.Ping(ctx); err != nil {
			deps[name] = "unreachable"
			status = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "ok"
	}

	state := "ok"
	if status != http.StatusOK {
		state = "degraded"
	}
	writeJSON(w, status, map[string]any{
		"status":       state,
		"timestamp":    time.Now().UnixMilli(),
		"dependencies": deps,
	})
}
