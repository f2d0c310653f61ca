package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/trmquang93/planning-poker-sub001/internal/errors"
	"github.com/trmquang93/planning-poker-sub001/internal/model"
	"github.com/trmquang93/planning-poker-sub001/internal/util"
)

const (
	maxSessionTitleLen    = 100
	maxParticipantNameLen = 50
	maxStoryTitleLen      = 200
	maxDescriptionLen     = 2000
)

// JoinResult is returned by CreateSession and JoinSession.
type JoinResult struct {
	Session       *model.Session `json:"session"`
	ParticipantID string         `json:"participantId"`
}

func validSessionTitle(title string) (string, error) {
	title, ok := util.TextWithin(title, 1, maxSessionTitleLen)
	if !ok {
		return "", apperrors.ValidationError("Session title must be between 1 and 100 characters")
	}
	return title, nil
}

func validParticipantName(name string) (string, error) {
	name, ok := util.TextWithin(name, 1, maxParticipantNameLen)
	if !ok {
		return "", apperrors.ValidationError("Participant name must be between 1 and 50 characters")
	}
	return name, nil
}

// CreateSession opens a new session with its creator as the sole facilitator.
func (r *Registry) CreateSession(ctx context.Context, title, facilitatorName string, scale model.Scale) (*JoinResult, error) {
	title, err := validSessionTitle(title)
	if err != nil {
		return nil, err
	}
	name, err := validParticipantName(facilitatorName)
	if err != nil {
		return nil, err
	}
	if scale == "" {
		scale = model.ScaleFibonacci
	}
	if !scale.IsValid() {
		return nil, apperrors.ValidationError("Unknown estimation scale")
	}

	snapshot, participantID, err := func() (*model.Session, string, error) {
		r.mu.Lock()
		defer r.mu.Unlock()

		code, err := r.allocateCode()
		if err != nil {
			return nil, "", err
		}

		now := r.now()
		participantID := util.GenerateParticipantID()
		s := &model.Session{
			ID:     util.GenerateSessionID(),
			Code:   code,
			Title:  title,
			Scale:  scale,
			Status: model.SessionStatusWaiting,
			Participants: []model.Participant{{
				ID:       participantID,
				Name:     name,
				Role:     model.RoleFacilitator,
				IsOnline: true,
				JoinedAt: now,
			}},
			Stories:   []model.Story{},
			Version:   1,
			CreatedAt: now,
			UpdatedAt: now,
			ExpiresAt: now.Add(r.cfg.SessionTTL),
		}

		r.sessions[s.ID] = s
		r.codes[s.Code] = s.ID
		return s.Clone(), participantID, nil
	}()
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("sessionId", snapshot.ID).
		Str("code", snapshot.Code).
		Str("scale", string(snapshot.Scale)).
		Msg("session created")

	r.emit(ctx, change{event: model.EventSessionCreated, participantID: participantID}, snapshot.ID, snapshot, snapshot.CreatedAt)
	return &JoinResult{Session: snapshot, ParticipantID: participantID}, nil
}

// JoinSession adds a member to the session identified by its share code.
func (r *Registry) JoinSession(ctx context.Context, code, participantName string) (*JoinResult, error) {
	name, err := validParticipantName(participantName)
	if err != nil {
		return nil, err
	}

	var participantID string
	snapshot, err := r.mutate(ctx, r.byCode(code), func(s *model.Session, now time.Time) (change, error) {
		if s.ParticipantByName(name) != nil {
			return change{}, apperrors.DuplicateName(name)
		}

		participantID = util.GenerateParticipantID()
		s.Participants = append(s.Participants, model.Participant{
			ID:       participantID,
			Name:     name,
			Role:     model.RoleMember,
			IsOnline: true,
			JoinedAt: now,
		})
		return change{event: model.EventParticipantJoined, participantID: participantID}, nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("sessionId", snapshot.ID).Str("participantId", participantID).Msg("participant joined")
	return &JoinResult{Session: snapshot, ParticipantID: participantID}, nil
}

// AddStory appends a pending story to the backlog.
func (r *Registry) AddStory(ctx context.Context, sessionID, requesterID, title, description string) (*model.Session, error) {
	return r.mutate(ctx, r.byID(sessionID), func(s *model.Session, now time.Time) (change, error) {
		if err := requireFacilitator(ctx, s, requesterID, msgAddStories); err != nil {
			return change{}, err
		}

		title, ok := util.TextWithin(title, 1, maxStoryTitleLen)
		if !ok {
			return change{}, apperrors.ValidationError("Story title must be between 1 and 200 characters")
		}
		description, ok := util.TextWithin(description, 0, maxDescriptionLen)
		if !ok {
			return change{}, apperrors.ValidationError("Story description must be at most 2000 characters")
		}

		story := model.Story{
			ID:          util.GenerateStoryID(),
			Title:       title,
			Description: description,
			Status:      model.StoryStatusPending,
			Votes:       make(map[string]model.VoteValue),
			CreatedAt:   now,
		}
		s.Stories = append(s.Stories, story)
		return change{event: model.EventStoryAdded, participantID: requesterID, storyID: story.ID}, nil
	})
}

// UpdateParticipantStatus records whether a participant is connected.
func (r *Registry) UpdateParticipantStatus(ctx context.Context, sessionID, participantID string, isOnline bool) (*model.Session, error) {
	return r.mutate(ctx, r.byID(sessionID), func(s *model.Session, _ time.Time) (change, error) {
		p := s.Participant(participantID)
		if p == nil {
			return change{}, apperrors.NotFound("Participant")
		}
		p.IsOnline = isOnline
		return change{event: model.EventParticipantStatus, participantID: participantID}, nil
	})
}

// RemoveParticipant drops a participant and their vote on the open round.
// Votes on completed stories are kept as history.
func (r *Registry) RemoveParticipant(ctx context.Context, sessionID, participantID string) (*model.Session, error) {
	return r.mutate(ctx, r.byID(sessionID), func(s *model.Session, _ time.Time) (change, error) {
		idx := -1
		for i := range s.Participants {
			if s.Participants[i].ID == participantID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return change{}, apperrors.NotFound("Participant")
		}

		s.Participants = append(s.Participants[:idx], s.Participants[idx+1:]...)
		for i := range s.Stories {
			if s.Stories[i].Status == model.StoryStatusVoting {
				delete(s.Stories[i].Votes, participantID)
			}
		}
		return change{event: model.EventParticipantRemoved, participantID: participantID}, nil
	})
}
