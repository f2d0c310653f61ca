package middleware

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/trmquang93/planning-poker-sub001/internal/audit"
	apperrors "github.com/trmquang93/planning-poker-sub001/internal/errors"
	"github.com/trmquang93/planning-poker-sub001/internal/httputil"
	"github.com/trmquang93/planning-poker-sub001/internal/util"
)

const AdminKeyHeader = "X-Admin-Key"

// AdminKeyMiddleware guards administrative routes with a bcrypt-hashed key.
type AdminKeyMiddleware struct {
	keyHash string
}

func NewAdminKeyMiddleware(keyHash string) *AdminKeyMiddleware {
	return &AdminKeyMiddleware{keyHash: keyHash}
}

func (m *AdminKeyMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.keyHash == "" {
			httputil.WriteError(w, apperrors.Forbidden("Admin access is disabled"))
			return
		}

		key := r.Header.Get(AdminKeyHeader)
		if key == "" || !util.CheckPasswordHash(key, m.keyHash) {
			log.Warn().Str("path", r.URL.Path).Msg("admin key rejected")
			audit.LogFromRequest(r, audit.Event{
				Type:    audit.EventAdminAuthFailure,
				Details: map[string]interface{}{"path": r.URL.Path},
			})
			httputil.WriteError(w, apperrors.Forbidden("Invalid admin key"))
			return
		}

		next.ServeHTTP(w, r)
	})
}
