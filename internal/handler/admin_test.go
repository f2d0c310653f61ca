package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/trmquang93/planning-poker-sub001/internal/middleware"
)

func newAdminRouter(t *testing.T, s *testServer) http.Handler {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("admin-key"), bcrypt.MinCost)
	require.NoError(t, err)
	return NewAdminHandler(s.registry, s.broker, middleware.NewAdminKeyMiddleware(string(hash)).Handler).Routes()
}

func adminRequest(method, path string) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set(middleware.AdminKeyHeader, "admin-key")
	return req
}

func TestAdminHandler(t *testing.T) {
	s := newTestServer(t)
	router := newAdminRouter(t, s)
	first, _, _, _, _ := s.seed(t)
	s.seed(t)

	t.Run("requires the admin key", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest("GET", "/sessions", nil))
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("lists sessions", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, adminRequest("GET", "/sessions"))
		require.Equal(t, http.StatusOK, rec.Code)

		body := decodeBody[struct {
			Items []sessionSummary `json:"items"`
			Total int              `json:"total"`
		}](t, rec)
		assert.Equal(t, 2, body.Total)
		for _, item := range body.Items {
			if item.ID == first {
				assert.Equal(t, 2, item.ParticipantCount)
				assert.Equal(t, 2, item.OnlineCount)
				assert.Equal(t, 1, item.StoryCount)
				return
			}
		}
		t.Fatalf("session %s not listed", first)
	})

	t.Run("paginates", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, adminRequest("GET", "/sessions?limit=1&offset=1"))
		require.Equal(t, http.StatusOK, rec.Code)

		body := decodeBody[struct {
			Items  []sessionSummary `json:"items"`
			Total  int              `json:"total"`
			Offset int              `json:"offset"`
		}](t, rec)
		assert.Len(t, body.Items, 1)
		assert.Equal(t, 2, body.Total)
		assert.Equal(t, 1, body.Offset)

		rec = httptest.NewRecorder()
		router.ServeHTTP(rec, adminRequest("GET", "/sessions?offset=10"))
		assert.Contains(t, rec.Body.String(), `"items":[]`)
	})

	t.Run("stats", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, adminRequest("GET", "/stats"))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"sessions":2,"connectedClients":0}`, rec.Body.String())
	})

	t.Run("deletes a session", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, adminRequest("DELETE", "/sessions/"+first))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Nil(t, s.registry.GetSession(first))

		rec = httptest.NewRecorder()
		router.ServeHTTP(rec, adminRequest("DELETE", "/sessions/"+first))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("reset clears everything", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, adminRequest("POST", "/reset"))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"cleared":1}`, rec.Body.String())
		assert.Equal(t, 0, s.registry.Count())
	})
}

func TestHealthHandler(t *testing.T) {
	t.Run("ok with no dependencies configured", func(t *testing.T) {
		h := NewHealthHandler(map[string]Pinger{"database": nil})
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"database":"disabled"`)
	})

	t.Run("degraded when a dependency fails", func(t *testing.T) {
		h := NewHealthHandler(map[string]Pinger{
			"redis":    PingFunc(func(context.Context) error { return errors.New("connection refused") }),
			"database": PingFunc(func(context.Context) error { return nil }),
		})
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, rec.Body.String(), `"redis":"unreachable"`)
		assert.Contains(t, rec.Body.String(), `"database":"ok"`)
	})
}
