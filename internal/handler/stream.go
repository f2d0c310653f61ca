package handler

import (
	"encoding/json"

	"github.com/trmquang93/planning-poker-sub001/internal/model"
	"github.com/trmquang93/planning-poker-sub001/internal/service"
	"github.com/trmquang93/planning-poker-sub001/internal/sse"
)

const eventSnapshot = "session_snapshot"

// viewerEvent re-projects a broadcast for one participant so their own vote
// stays visible before reveal. Events for sessions held by another instance,
// or for a viewer with no id, keep the anonymous payload.
func viewerEvent(registry *service.Registry, event sse.Event, viewerID string) sse.Event {
	if viewerID == "" || event.Terminal() || registry == nil {
		return event
	}
	s := registry.GetSession(event.SessionID)
	if s == nil || s.Version < event.Version {
		return event
	}
	data, err := json.Marshal(model.NewSessionView(s, viewerID))
	if err != nil {
		return event
	}
	event.Data = data
	event.Version = s.Version
	return event
}

// snapshotEvent is the first frame a new stream receives.
func snapshotEvent(s *model.Session, viewerID string) (sse.Event, error) {
	data, err := json.Marshal(model.NewSessionView(s, viewerID))
	if err != nil {
		return sse.Event{}, err
	}
	return sse.Event{
		Type:      eventSnapshot,
		SessionID: s.ID,
		Version:   s.Version,
		Data:      data,
	}, nil
}
