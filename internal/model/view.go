package model

import "time"

// SessionView is what a participant is allowed to see of a session.
type SessionView struct {
	ID             string        `json:"id"`
	Code           string        `json:"code"`
	Title          string        `json:"title"`
	Scale          Scale         `json:"scale"`
	ScaleValues    []VoteValue   `json:"scaleValues"`
	Status         SessionStatus `json:"status"`
	Participants   []Participant `json:"participants"`
	Stories        []StoryView   `json:"stories"`
	CurrentStoryID *string       `json:"currentStoryId,omitempty"`
	Version        int64         `json:"version"`
	CreatedAt      time.Time     `json:"createdAt"`
	UpdatedAt      time.Time     `json:"updatedAt"`
	ExpiresAt      time.Time     `json:"expiresAt"`
}

type StoryView struct {
	ID            string               `json:"id"`
	Title         string               `json:"title"`
	Description   string               `json:"description,omitempty"`
	Status        StoryStatus          `json:"status"`
	VotesRevealed bool                 `json:"votesRevealed"`
	Votes         map[string]VoteValue `json:"votes"`
	VotedBy       []string             `json:"votedBy"`
	FinalEstimate *VoteValue           `json:"finalEstimate,omitempty"`
	CreatedAt     time.Time            `json:"createdAt"`
	CompletedAt   *time.Time           `json:"completedAt,omitempty"`
}

// NewSessionView projects s for viewerID. Votes of the active story stay
// hidden until the facilitator reveals them; the viewer always sees their
// own vote. An empty viewerID yields the anonymous broadcast view.
func NewSessionView(s *Session, viewerID string) SessionView {
	view := SessionView{
		ID:           s.ID,
		Code:         s.Code,
		Title:        s.Title,
		Scale:        s.Scale,
		ScaleValues:  s.Scale.Values(),
		Status:       s.Status,
		Participants: make([]Participant, len(s.Participants)),
		Stories:      make([]StoryView, 0, len(s.Stories)),
		Version:      s.Version,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
		ExpiresAt:    s.ExpiresAt,
	}
	copy(view.Participants, s.Participants)
	if s.CurrentStoryID != nil {
		id := *s.CurrentStoryID
		view.CurrentStoryID = &id
	}

	for i := range s.Stories {
		view.Stories = append(view.Stories, newStoryView(s, &s.Stories[i], viewerID))
	}
	return view
}

func newStoryView(s *Session, st *Story, viewerID string) StoryView {
	revealed := st.Status == StoryStatusCompleted ||
		(s.IsCurrentStory(st.ID) && s.Status == SessionStatusRevealing)

	view := StoryView{
		ID:            st.ID,
		Title:         st.Title,
		Description:   st.Description,
		Status:        st.Status,
		VotesRevealed: revealed,
		Votes:         make(map[string]VoteValue),
		VotedBy:       make([]string, 0, len(st.Votes)),
		CreatedAt:     st.CreatedAt,
	}
	if st.FinalEstimate != nil {
		est := *st.FinalEstimate
		view.FinalEstimate = &est
	}
	if st.CompletedAt != nil {
		at := *st.CompletedAt
		view.CompletedAt = &at
	}

	for _, p := range s.Participants {
		if _, ok := st.Votes[p.ID]; ok {
			view.VotedBy = append(view.VotedBy, p.ID)
		}
	}
	for id, v := range st.Votes {
		if revealed || (viewerID != "" && id == viewerID) {
			view.Votes[id] = v
		}
	}
	return view
}
