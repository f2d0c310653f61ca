package model

import (
	"time"
)

type Participant struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Role     ParticipantRole `json:"role"`
	IsOnline bool            `json:"isOnline"`
	JoinedAt time.Time       `json:"joinedAt"`
}

func (p Participant) IsFacilitator() bool {
	return p.Role == RoleFacilitator
}

type Story struct {
	ID            string               `json:"id"`
	Title         string               `json:"title"`
	Description   string               `json:"description,omitempty"`
	Status        StoryStatus          `json:"status"`
	Votes         map[string]VoteValue `json:"votes"`
	FinalEstimate *VoteValue           `json:"finalEstimate,omitempty"`
	CreatedAt     time.Time            `json:"createdAt"`
	CompletedAt   *time.Time           `json:"completedAt,omitempty"`
}

// VoteList returns the story's votes ordered by the given participant order,
// followed by votes of participants no longer in the session.
func (s *Story) VoteList(participants []Participant) []VoteValue {
	out := make([]VoteValue, 0, len(s.Votes))
	seen := make(map[string]bool, len(s.Votes))
	for _, p := range participants {
		if v, ok := s.Votes[p.ID]; ok {
			out = append(out, v)
			seen[p.ID] = true
		}
	}
	for id, v := range s.Votes {
		if !seen[id] {
			out = append(out, v)
		}
	}
	return out
}

// resetVoting clears every trace of a previous round.
func (s *Story) resetVoting() {
	s.Votes = make(map[string]VoteValue)
	s.FinalEstimate = nil
	s.CompletedAt = nil
}

// OpenVoting moves the story into a fresh voting round.
func (s *Story) OpenVoting() {
	s.Status = StoryStatusVoting
	s.resetVoting()
}

// ReturnToPending abandons an unfinished round.
func (s *Story) ReturnToPending() {
	s.Status = StoryStatusPending
	s.resetVoting()
}

// Complete closes the story with the chosen estimate.
func (s *Story) Complete(estimate VoteValue, at time.Time) {
	s.Status = StoryStatusCompleted
	s.FinalEstimate = &estimate
	completedAt := at
	s.CompletedAt = &completedAt
}

type Session struct {
	ID             string        `json:"id"`
	Code           string        `json:"code"`
	Title          string        `json:"title"`
	Scale          Scale         `json:"scale"`
	Status         SessionStatus `json:"status"`
	Participants   []Participant `json:"participants"`
	Stories        []Story       `json:"stories"`
	CurrentStoryID *string       `json:"currentStoryId,omitempty"`
	Version        int64         `json:"version"`
	CreatedAt      time.Time     `json:"createdAt"`
	UpdatedAt      time.Time     `json:"updatedAt"`
	ExpiresAt      time.Time     `json:"expiresAt"`
}

func (s *Session) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

func (s *Session) Participant(id string) *Participant {
	for i := range s.Participants {
		if s.Participants[i].ID == id {
			return &s.Participants[i]
		}
	}
	return nil
}

func (s *Session) ParticipantByName(name string) *Participant {
	for i := range s.Participants {
		if s.Participants[i].Name == name {
			return &s.Participants[i]
		}
	}
	return nil
}

func (s *Session) Story(id string) *Story {
	for i := range s.Stories {
		if s.Stories[i].ID == id {
			return &s.Stories[i]
		}
	}
	return nil
}

// CurrentStory returns the story under vote, or nil while waiting.
func (s *Session) CurrentStory() *Story {
	if s.CurrentStoryID == nil {
		return nil
	}
	return s.Story(*s.CurrentStoryID)
}

func (s *Session) IsCurrentStory(storyID string) bool {
	return s.CurrentStoryID != nil && *s.CurrentStoryID == storyID
}

// Facilitators returns every participant holding the facilitator role.
func (s *Session) Facilitators() []Participant {
	var out []Participant
	for _, p := range s.Participants {
		if p.IsFacilitator() {
			out = append(out, p)
		}
	}
	return out
}

// VotingStories returns the ids of stories currently in voting status.
func (s *Session) VotingStories() []string {
	var ids []string
	for _, st := range s.Stories {
		if st.Status == StoryStatusVoting {
			ids = append(ids, st.ID)
		}
	}
	return ids
}

// Clone returns a deep copy that shares no mutable state with s.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}

	out := *s
	out.Participants = make([]Participant, len(s.Participants))
	copy(out.Participants, s.Participants)

	out.Stories = make([]Story, len(s.Stories))
	for i, st := range s.Stories {
		cp := st
		cp.Votes = make(map[string]VoteValue, len(st.Votes))
		for k, v := range st.Votes {
			cp.Votes[k] = v
		}
		if st.FinalEstimate != nil {
			est := *st.FinalEstimate
			cp.FinalEstimate = &est
		}
		if st.CompletedAt != nil {
			at := *st.CompletedAt
			cp.CompletedAt = &at
		}
		out.Stories[i] = cp
	}

	if s.CurrentStoryID != nil {
		id := *s.CurrentStoryID
		out.CurrentStoryID = &id
	}
	return &out
}
