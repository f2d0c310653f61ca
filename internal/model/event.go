package model

import "time"

type SessionEventType string

const (
	EventSessionCreated     SessionEventType = "session_created"
	EventParticipantJoined  SessionEventType = "participant_joined"
	EventParticipantStatus  SessionEventType = "participant_status"
	EventParticipantRemoved SessionEventType = "participant_removed"
	EventStoryAdded         SessionEventType = "story_added"
	EventVotingStarted      SessionEventType = "voting_started"
	EventVoteSubmitted      SessionEventType = "vote_submitted"
	EventVotesRevealed      SessionEventType = "votes_revealed"
	EventEstimateFinalized  SessionEventType = "estimate_finalized"
	EventRevoteStarted      SessionEventType = "revote_started"
	EventSessionDeleted     SessionEventType = "session_deleted"
	EventSessionExpired     SessionEventType = "session_expired"
)

// SessionEvent is the "session changed" fact emitted once per successful
// mutation. Session is nil for deletions.
type SessionEvent struct {
	Type          SessionEventType `json:"type"`
	SessionID     string           `json:"sessionId"`
	ParticipantID string           `json:"participantId,omitempty"`
	StoryID       string           `json:"storyId,omitempty"`
	Version       int64            `json:"version"`
	Session       *Session         `json:"-"`
	OccurredAt    time.Time        `json:"occurredAt"`
}
