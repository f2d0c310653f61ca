package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trmquang93/planning-poker-sub001/internal/model"
	"github.com/trmquang93/planning-poker-sub001/internal/sse"
)

func wsURL(srv *httptest.Server, sessionID, participantID string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") +
		"/api/sessions/" + sessionID + "/ws?participantId=" + participantID
}

func isOnline(s *model.Session, participantID string) bool {
	if p := s.Participant(participantID); p != nil {
		return p.IsOnline
	}
	return false
}

func TestWSHandler(t *testing.T) {
	t.Run("rejects strangers before upgrading", func(t *testing.T) {
		s := newTestServer(t)
		sessionID, _, _, _, _ := s.seed(t)

		srv := httptest.NewServer(s.router)
		defer srv.Close()

		_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, sessionID, "part_stranger"), nil)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("tracks presence and pushes events", func(t *testing.T) {
		s := newTestServer(t)
		sessionID, _, facilitatorID, voterID, storyID := s.seed(t)
		ctx := context.Background()

		_, err := s.registry.UpdateParticipantStatus(ctx, sessionID, voterID, false)
		require.NoError(t, err)

		srv := httptest.NewServer(s.router)
		defer srv.Close()

		conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, sessionID, voterID), nil)
		require.NoError(t, err)
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))

		var first sse.Event
		require.NoError(t, conn.ReadJSON(&first))
		assert.Equal(t, "session_snapshot", first.Type)

		require.Eventually(t, func() bool {
			return isOnline(s.registry.GetSession(sessionID), voterID)
		}, time.Second, 10*time.Millisecond)

		_, err = s.registry.StartVoting(ctx, sessionID, facilitatorID, storyID)
		require.NoError(t, err)

		found := false
		for !found {
			var ev sse.Event
			require.NoError(t, conn.ReadJSON(&ev))
			found = ev.Type == string(model.EventVotingStarted)
		}

		require.NoError(t, conn.Close())

		require.Eventually(t, func() bool {
			return !isOnline(s.registry.GetSession(sessionID), voterID)
		}, 2*time.Second, 10*time.Millisecond)
		assert.Eventually(t, func() bool {
			return s.broker.ClientCount(sessionID) == 0
		}, time.Second, 10*time.Millisecond)
	})

	t.Run("closes after the session is deleted", func(t *testing.T) {
		s := newTestServer(t)
		sessionID, _, _, voterID, _ := s.seed(t)

		srv := httptest.NewServer(s.router)
		defer srv.Close()

		conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, sessionID, voterID), nil)
		require.NoError(t, err)
		defer conn.Close()
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))

		var first sse.Event
		require.NoError(t, conn.ReadJSON(&first))
		require.Eventually(t, func() bool {
			return s.broker.ClientCount(sessionID) == 1
		}, time.Second, 10*time.Millisecond)

		require.True(t, s.registry.DeleteSession(context.Background(), sessionID))

		var last sse.Event
		for {
			var ev sse.Event
			if err := conn.ReadJSON(&ev); err != nil {
				assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), err.Error())
				break
			}
			last = ev
		}
		assert.Equal(t, string(model.EventSessionDeleted), last.Type)
	})
}
