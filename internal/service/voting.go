package service

import (
	"context"
	"strings"
	"time"

	apperrors "github.com/trmquang93/planning-poker-sub001/internal/errors"
	"github.com/trmquang93/planning-poker-sub001/internal/estimate"
	"github.com/trmquang93/planning-poker-sub001/internal/model"
)

// StartVoting opens a fresh round on storyID. Any other story still in voting
// goes back to pending with its votes dropped, so at most one story is ever
// open.
func (r *Registry) StartVoting(ctx context.Context, sessionID, requesterID, storyID string) (*model.Session, error) {
	return r.mutate(ctx, r.byID(sessionID), func(s *model.Session, _ time.Time) (change, error) {
		if err := requireFacilitator(ctx, s, requesterID, msgStartVoting); err != nil {
			return change{}, err
		}
		story := s.Story(storyID)
		if story == nil {
			return change{}, apperrors.NotFound("Story")
		}

		for i := range s.Stories {
			if s.Stories[i].ID != storyID && s.Stories[i].Status == model.StoryStatusVoting {
				s.Stories[i].ReturnToPending()
			}
		}
		story.OpenVoting()

		id := story.ID
		s.CurrentStoryID = &id
		s.Status = model.SessionStatusVoting
		return change{event: model.EventVotingStarted, participantID: requesterID, storyID: storyID}, nil
	})
}

// SubmitVote records or replaces participantID's vote on the open round.
func (r *Registry) SubmitVote(ctx context.Context, sessionID, participantID, storyID string, value model.VoteValue) (*model.Session, error) {
	value, ok := normalizeVote(value)
	if !ok {
		return nil, apperrors.ValidationError("Vote value is required")
	}

	return r.mutate(ctx, r.byID(sessionID), func(s *model.Session, _ time.Time) (change, error) {
		if s.Participant(participantID) == nil {
			return change{}, apperrors.NotFound("Participant")
		}
		story := s.Story(storyID)
		if story == nil {
			return change{}, apperrors.NotFound("Story")
		}
		if !s.IsCurrentStory(storyID) || story.Status != model.StoryStatusVoting {
			return change{}, apperrors.InvalidState("Voting is not open for this story")
		}
		if s.Status == model.SessionStatusRevealing {
			return change{}, apperrors.InvalidState("Votes have already been revealed")
		}
		if r.cfg.EnforceVoteScale && !s.Scale.Contains(value) {
			return change{}, apperrors.ValidationError("Vote value is not part of the session scale")
		}

		story.Votes[participantID] = value
		return change{event: model.EventVoteSubmitted, participantID: participantID, storyID: storyID}, nil
	})
}

// RevealVotes makes the open round's votes visible to everyone.
func (r *Registry) RevealVotes(ctx context.Context, sessionID, requesterID, storyID string) (*model.Session, error) {
	return r.mutate(ctx, r.byID(sessionID), func(s *model.Session, _ time.Time) (change, error) {
		if err := requireFacilitator(ctx, s, requesterID, msgRevealVotes); err != nil {
			return change{}, err
		}
		if _, err := currentStory(s, storyID); err != nil {
			return change{}, err
		}

		s.Status = model.SessionStatusRevealing
		return change{event: model.EventVotesRevealed, participantID: requesterID, storyID: storyID}, nil
	})
}

// FinalizeEstimate closes the round with the facilitator's chosen value. The
// estimate is free-form and never checked against the scale.
func (r *Registry) FinalizeEstimate(ctx context.Context, sessionID, requesterID, storyID string, value model.VoteValue) (*model.Session, error) {
	return r.mutate(ctx, r.byID(sessionID), func(s *model.Session, now time.Time) (change, error) {
		if err := requireFacilitator(ctx, s, requesterID, msgFinalize); err != nil {
			return change{}, err
		}
		final, ok := normalizeVote(value)
		if !ok {
			return change{}, apperrors.ValidationError("Final estimate is required")
		}
		story, err := currentStory(s, storyID)
		if err != nil {
			return change{}, err
		}

		story.Complete(final, now)
		s.CurrentStoryID = nil
		s.Status = model.SessionStatusWaiting
		return change{event: model.EventEstimateFinalized, participantID: requesterID, storyID: storyID}, nil
	})
}

// RevoteStory reopens a completed story for a new round.
func (r *Registry) RevoteStory(ctx context.Context, sessionID, requesterID, storyID string) (*model.Session, error) {
	return r.mutate(ctx, r.byID(sessionID), func(s *model.Session, _ time.Time) (change, error) {
		if err := requireFacilitator(ctx, s, requesterID, msgStartRevote); err != nil {
			return change{}, err
		}
		story := s.Story(storyID)
		if story == nil {
			return change{}, apperrors.NotFound("Story")
		}
		if story.Status != model.StoryStatusCompleted {
			return change{}, apperrors.InvalidState("Can only revote on completed stories")
		}
		if len(s.VotingStories()) > 0 {
			return change{}, apperrors.InvalidState("Another story is currently being voted on")
		}

		story.OpenVoting()
		id := story.ID
		s.CurrentStoryID = &id
		s.Status = model.SessionStatusVoting
		return change{event: model.EventRevoteStarted, participantID: requesterID, storyID: storyID}, nil
	})
}

// StoryResults summarizes the votes of a revealed or completed story.
func (r *Registry) StoryResults(sessionID, storyID string) (*estimate.Summary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, err := r.byID(sessionID)(r.now())
	if err != nil {
		return nil, err
	}
	story := s.Story(storyID)
	if story == nil {
		return nil, apperrors.NotFound("Story")
	}

	revealed := story.Status == model.StoryStatusCompleted ||
		(s.IsCurrentStory(storyID) && s.Status == model.SessionStatusRevealing)
	if !revealed {
		return nil, apperrors.InvalidState("Votes have not been revealed")
	}

	summary := estimate.Summarize(story.VoteList(s.Participants))
	return &summary, nil
}

// currentStory returns storyID if it is the round currently open.
func currentStory(s *model.Session, storyID string) (*model.Story, error) {
	story := s.Story(storyID)
	if story == nil {
		return nil, apperrors.NotFound("Story")
	}
	if !s.IsCurrentStory(storyID) {
		return nil, apperrors.InvalidState("Story is not currently being voted on")
	}
	return story, nil
}

// normalizeVote trims token votes and reads numeric text as a number, so "5"
// and 5 count the same everywhere. Missing or blank values report false.
func normalizeVote(v model.VoteValue) (model.VoteValue, bool) {
	if v.IsNumeric() {
		return v, true
	}
	token, ok := v.Token()
	if !ok {
		return model.VoteValue{}, false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return model.VoteValue{}, false
	}
	return model.ParseVoteValue(token), true
}
