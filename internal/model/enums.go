package model

type ParticipantRole string

const (
	RoleFacilitator ParticipantRole = "facilitator"
	RoleMember      ParticipantRole = "member"
)

type StoryStatus string

const (
	StoryStatusPending   StoryStatus = "pending"
	StoryStatusVoting    StoryStatus = "voting"
	StoryStatusCompleted StoryStatus = "completed"
)

type SessionStatus string

const (
	SessionStatusWaiting   SessionStatus = "waiting"
	SessionStatusVoting    SessionStatus = "voting"
	SessionStatusRevealing SessionStatus = "revealing"
)

type Scale string

const (
	ScaleFibonacci Scale = "FIBONACCI"
	ScaleTShirt    Scale = "T_SHIRT"
	ScalePowersOf2 Scale = "POWERS_OF_2"
)

var scaleValues = map[Scale][]VoteValue{
	ScaleFibonacci: {
		NumericVote(0), NumericVote(1), NumericVote(2), NumericVote(3), NumericVote(5),
		NumericVote(8), NumericVote(13), NumericVote(21), NumericVote(34), NumericVote(55),
		NumericVote(89), TokenVote("?"), TokenVote("∞"),
	},
	ScaleTShirt: {
		TokenVote("XS"), TokenVote("S"), TokenVote("M"), TokenVote("L"),
		TokenVote("XL"), TokenVote("XXL"), TokenVote("?"),
	},
	ScalePowersOf2: {
		NumericVote(0), NumericVote(1), NumericVote(2), NumericVote(4), NumericVote(8),
		NumericVote(16), NumericVote(32), NumericVote(64), TokenVote("?"),
	},
}

// IsValid reports whether s is one of the known scales.
func (s Scale) IsValid() bool {
	_, ok := scaleValues[s]
	return ok
}

// Values returns the admissible cards of the scale in display order.
func (s Scale) Values() []VoteValue {
	values := scaleValues[s]
	out := make([]VoteValue, len(values))
	copy(out, values)
	return out
}

// Contains reports whether v is a card of the scale. A token that spells a
// number on the scale (e.g. "8") matches the numeric card.
func (s Scale) Contains(v VoteValue) bool {
	for _, card := range scaleValues[s] {
		if card.Equal(v) {
			return true
		}
	}
	return false
}

// Scales lists every supported scale.
func Scales() []Scale {
	return []Scale{ScaleFibonacci, ScaleTShirt, ScalePowersOf2}
}
