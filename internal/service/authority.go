package service

import (
	"context"

	"github.com/trmquang93/planning-poker-sub001/internal/audit"
	apperrors "github.com/trmquang93/planning-poker-sub001/internal/errors"
	"github.com/trmquang93/planning-poker-sub001/internal/model"
)

const (
	msgAddStories  = "Only facilitators can add stories"
	msgStartVoting = "Only facilitators can start voting"
	msgRevealVotes = "Only facilitators can reveal votes"
	msgFinalize    = "Only facilitators can finalize estimates"
	msgStartRevote = "Only facilitators can start revoting"
)

// requireFacilitator rejects requesters who are not facilitators of s,
// including ids that are not participants at all.
func requireFacilitator(ctx context.Context, s *model.Session, requesterID, message string) error {
	p := s.Participant(requesterID)
	if p != nil && p.IsFacilitator() {
		return nil
	}

	audit.Log(ctx, audit.Event{
		Type:          audit.EventActionDenied,
		SessionID:     s.ID,
		ParticipantID: requesterID,
		Details:       map[string]interface{}{"reason": message},
	})
	return apperrors.Unauthorized(message)
}
