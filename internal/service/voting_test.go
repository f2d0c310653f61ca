package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/trmquang93/planning-poker-sub001/internal/errors"
	"github.com/trmquang93/planning-poker-sub001/internal/estimate"
	"github.com/trmquang93/planning-poker-sub001/internal/model"
)

type table struct {
	r       *Registry
	session string
	code    string
	alice   string
	bob     string
	stories []string
}

// newTable sets up a session run by Alice with Bob as a member and the given stories.
func newTable(t *testing.T, cfg RegistryConfig, titles ...string) *table {
	t.Helper()
	ctx := context.Background()
	r, _ := newTestRegistry(t, cfg, nil)

	created, err := r.CreateSession(ctx, "Sprint 1", "Alice", model.ScaleFibonacci)
	require.NoError(t, err)
	joined, err := r.JoinSession(ctx, created.Session.Code, "Bob")
	require.NoError(t, err)

	tb := &table{
		r:       r,
		session: created.Session.ID,
		code:    created.Session.Code,
		alice:   created.ParticipantID,
		bob:     joined.ParticipantID,
	}
	for _, title := range titles {
		s, err := r.AddStory(ctx, tb.session, tb.alice, title, "")
		require.NoError(t, err)
		tb.stories = append(tb.stories, s.Stories[len(s.Stories)-1].ID)
	}
	return tb
}

func (tb *table) snapshot() *model.Session {
	return tb.r.GetSession(tb.session)
}

func assertSingleActiveStory(t *testing.T, s *model.Session) {
	t.Helper()
	voting := s.VotingStories()
	assert.LessOrEqual(t, len(voting), 1, "more than one story in voting")
	if len(voting) == 1 {
		require.NotNil(t, s.CurrentStoryID)
		assert.Equal(t, voting[0], *s.CurrentStoryID)
	}
}

func TestVoting_FullRound(t *testing.T) {
	ctx := context.Background()
	tb := newTable(t, RegistryConfig{}, "Login flow")
	story := tb.stories[0]

	s := tb.snapshot()
	require.Len(t, s.Stories, 1)
	assert.Equal(t, model.StoryStatusPending, s.Stories[0].Status)
	assert.Empty(t, s.Stories[0].Votes)

	s, err := tb.r.StartVoting(ctx, tb.session, tb.alice, story)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusVoting, s.Status)
	require.NotNil(t, s.CurrentStoryID)
	assert.Equal(t, story, *s.CurrentStoryID)
	assert.Equal(t, model.StoryStatusVoting, s.Story(story).Status)

	_, err = tb.r.SubmitVote(ctx, tb.session, tb.alice, story, model.NumericVote(5))
	require.NoError(t, err)
	s, err = tb.r.SubmitVote(ctx, tb.session, tb.bob, story, model.NumericVote(8))
	require.NoError(t, err)
	assert.Equal(t, map[string]model.VoteValue{
		tb.alice: model.NumericVote(5),
		tb.bob:   model.NumericVote(8),
	}, s.Story(story).Votes)

	s, err = tb.r.RevealVotes(ctx, tb.session, tb.alice, story)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusRevealing, s.Status)
	assert.Equal(t, model.StoryStatusVoting, s.Story(story).Status)

	s, err = tb.r.FinalizeEstimate(ctx, tb.session, tb.alice, story, model.NumericVote(5))
	require.NoError(t, err)
	st := s.Story(story)
	assert.Equal(t, model.StoryStatusCompleted, st.Status)
	require.NotNil(t, st.FinalEstimate)
	assert.Equal(t, model.NumericVote(5), *st.FinalEstimate)
	assert.NotNil(t, st.CompletedAt)
	assert.Equal(t, model.SessionStatusWaiting, s.Status)
	assert.Nil(t, s.CurrentStoryID)
	assert.Len(t, st.Votes, 2)
}

func TestVoting_FacilitatorOnly(t *testing.T) {
	ctx := context.Background()
	tb := newTable(t, RegistryConfig{}, "Login flow")
	story := tb.stories[0]

	before := tb.snapshot()

	tests := []struct {
		name string
		call func(requester string) error
		msg  string
	}{
		{"add story", func(p string) error {
			_, err := tb.r.AddStory(ctx, tb.session, p, "Sneaky", "")
			return err
		}, "Only facilitators can add stories"},
		{"start voting", func(p string) error {
			_, err := tb.r.StartVoting(ctx, tb.session, p, story)
			return err
		}, "Only facilitators can start voting"},
		{"reveal", func(p string) error {
			_, err := tb.r.RevealVotes(ctx, tb.session, p, story)
			return err
		}, "Only facilitators can reveal votes"},
		{"finalize", func(p string) error {
			_, err := tb.r.FinalizeEstimate(ctx, tb.session, p, story, model.NumericVote(3))
			return err
		}, "Only facilitators can finalize estimates"},
		{"revote", func(p string) error {
			_, err := tb.r.RevoteStory(ctx, tb.session, p, story)
			return err
		}, "Only facilitators can start revoting"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			requireCode(t, tc.call(tb.bob), apperrors.ErrCodeUnauthorized, tc.msg)
			requireCode(t, tc.call("part_stranger"), apperrors.ErrCodeUnauthorized, tc.msg)
		})
	}

	assert.Equal(t, before, tb.snapshot())
}

func TestVoting_StartVoting(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown story", func(t *testing.T) {
		tb := newTable(t, RegistryConfig{})
		_, err := tb.r.StartVoting(ctx, tb.session, tb.alice, "story_missing")
		requireCode(t, err, apperrors.ErrCodeNotFound, "Story not found")
	})

	t.Run("restarting clears votes", func(t *testing.T) {
		tb := newTable(t, RegistryConfig{}, "A")
		story := tb.stories[0]
		_, err := tb.r.StartVoting(ctx, tb.session, tb.alice, story)
		require.NoError(t, err)
		_, err = tb.r.SubmitVote(ctx, tb.session, tb.bob, story, model.NumericVote(3))
		require.NoError(t, err)

		s, err := tb.r.StartVoting(ctx, tb.session, tb.alice, story)
		require.NoError(t, err)
		assert.Empty(t, s.Story(story).Votes)
	})

	t.Run("switching stories demotes the open one", func(t *testing.T) {
		tb := newTable(t, RegistryConfig{}, "A", "B")
		a, b := tb.stories[0], tb.stories[1]
		_, err := tb.r.StartVoting(ctx, tb.session, tb.alice, a)
		require.NoError(t, err)
		_, err = tb.r.SubmitVote(ctx, tb.session, tb.bob, a, model.NumericVote(3))
		require.NoError(t, err)

		s, err := tb.r.StartVoting(ctx, tb.session, tb.alice, b)
		require.NoError(t, err)
		assert.Equal(t, model.StoryStatusPending, s.Story(a).Status)
		assert.Empty(t, s.Story(a).Votes)
		assert.Equal(t, model.StoryStatusVoting, s.Story(b).Status)
		assertSingleActiveStory(t, s)
	})

	t.Run("starting from revealing reopens voting", func(t *testing.T) {
		tb := newTable(t, RegistryConfig{}, "A")
		story := tb.stories[0]
		_, err := tb.r.StartVoting(ctx, tb.session, tb.alice, story)
		require.NoError(t, err)
		_, err = tb.r.RevealVotes(ctx, tb.session, tb.alice, story)
		require.NoError(t, err)

		s, err := tb.r.StartVoting(ctx, tb.session, tb.alice, story)
		require.NoError(t, err)
		assert.Equal(t, model.SessionStatusVoting, s.Status)
	})
}

func TestVoting_SubmitVote(t *testing.T) {
	ctx := context.Background()

	t.Run("last write wins", func(t *testing.T) {
		tb := newTable(t, RegistryConfig{}, "A")
		story := tb.stories[0]
		_, err := tb.r.StartVoting(ctx, tb.session, tb.alice, story)
		require.NoError(t, err)

		_, err = tb.r.SubmitVote(ctx, tb.session, tb.bob, story, model.NumericVote(3))
		require.NoError(t, err)
		s, err := tb.r.SubmitVote(ctx, tb.session, tb.bob, story, model.TokenVote("?"))
		require.NoError(t, err)

		votes := s.Story(story).Votes
		assert.Len(t, votes, 1)
		assert.Equal(t, model.TokenVote("?"), votes[tb.bob])
	})

	t.Run("rejects missing value", func(t *testing.T) {
		tb := newTable(t, RegistryConfig{}, "A")
		_, err := tb.r.SubmitVote(ctx, tb.session, tb.bob, tb.stories[0], model.VoteValue{})
		requireCode(t, err, apperrors.ErrCodeValidation, "Vote value is required")
	})

	t.Run("rejects blank tokens", func(t *testing.T) {
		tb := newTable(t, RegistryConfig{}, "A")
		_, err := tb.r.StartVoting(ctx, tb.session, tb.alice, tb.stories[0])
		require.NoError(t, err)

		for _, token := range []string{"", "   ", "\t\n"} {
			_, err = tb.r.SubmitVote(ctx, tb.session, tb.bob, tb.stories[0], model.TokenVote(token))
			requireCode(t, err, apperrors.ErrCodeValidation, "Vote value is required")
		}
		assert.Empty(t, tb.snapshot().Story(tb.stories[0]).Votes)
	})

	t.Run("numeric text is stored as a number", func(t *testing.T) {
		tb := newTable(t, RegistryConfig{}, "A")
		_, err := tb.r.StartVoting(ctx, tb.session, tb.alice, tb.stories[0])
		require.NoError(t, err)

		s, err := tb.r.SubmitVote(ctx, tb.session, tb.bob, tb.stories[0], model.TokenVote(" 5 "))
		require.NoError(t, err)
		vote := s.Story(tb.stories[0]).Votes[tb.bob]
		n, ok := vote.Number()
		require.True(t, ok)
		assert.Equal(t, 5.0, n)

		s, err = tb.r.SubmitVote(ctx, tb.session, tb.bob, tb.stories[0], model.TokenVote(" ? "))
		require.NoError(t, err)
		assert.Equal(t, model.TokenVote("?"), s.Story(tb.stories[0]).Votes[tb.bob])
	})

	t.Run("unknown participant", func(t *testing.T) {
		tb := newTable(t, RegistryConfig{}, "A")
		_, err := tb.r.StartVoting(ctx, tb.session, tb.alice, tb.stories[0])
		require.NoError(t, err)
		_, err = tb.r.SubmitVote(ctx, tb.session, "part_ghost", tb.stories[0], model.NumericVote(1))
		requireCode(t, err, apperrors.ErrCodeNotFound, "Participant not found")
	})

	t.Run("story not open", func(t *testing.T) {
		tb := newTable(t, RegistryConfig{}, "A")
		_, err := tb.r.SubmitVote(ctx, tb.session, tb.bob, tb.stories[0], model.NumericVote(1))
		requireCode(t, err, apperrors.ErrCodeInvalidState, "Voting is not open for this story")
	})

	t.Run("after reveal", func(t *testing.T) {
		tb := newTable(t, RegistryConfig{}, "A")
		story := tb.stories[0]
		_, err := tb.r.StartVoting(ctx, tb.session, tb.alice, story)
		require.NoError(t, err)
		_, err = tb.r.RevealVotes(ctx, tb.session, tb.alice, story)
		require.NoError(t, err)

		_, err = tb.r.SubmitVote(ctx, tb.session, tb.bob, story, model.NumericVote(1))
		requireCode(t, err, apperrors.ErrCodeInvalidState, "Votes have already been revealed")
	})

	t.Run("scale not enforced by default", func(t *testing.T) {
		tb := newTable(t, RegistryConfig{}, "A")
		_, err := tb.r.StartVoting(ctx, tb.session, tb.alice, tb.stories[0])
		require.NoError(t, err)
		_, err = tb.r.SubmitVote(ctx, tb.session, tb.bob, tb.stories[0], model.NumericVote(4))
		assert.NoError(t, err)
	})

	t.Run("scale enforced when configured", func(t *testing.T) {
		tb := newTable(t, RegistryConfig{EnforceVoteScale: true}, "A")
		_, err := tb.r.StartVoting(ctx, tb.session, tb.alice, tb.stories[0])
		require.NoError(t, err)

		_, err = tb.r.SubmitVote(ctx, tb.session, tb.bob, tb.stories[0], model.NumericVote(4))
		requireCode(t, err, apperrors.ErrCodeValidation, "Vote value is not part of the session scale")

		_, err = tb.r.SubmitVote(ctx, tb.session, tb.bob, tb.stories[0], model.TokenVote("13"))
		assert.NoError(t, err)
	})
}

func TestVoting_RevealAndFinalize(t *testing.T) {
	ctx := context.Background()

	t.Run("finalize without an active story is rejected", func(t *testing.T) {
		tb := newTable(t, RegistryConfig{}, "A")
		_, err := tb.r.FinalizeEstimate(ctx, tb.session, tb.alice, tb.stories[0], model.NumericVote(3))
		requireCode(t, err, apperrors.ErrCodeInvalidState, "Story is not currently being voted on")

		_, err = tb.r.RevealVotes(ctx, tb.session, tb.alice, tb.stories[0])
		requireCode(t, err, apperrors.ErrCodeInvalidState, "Story is not currently being voted on")
	})

	t.Run("finalize needs a value", func(t *testing.T) {
		tb := newTable(t, RegistryConfig{}, "A")
		_, err := tb.r.StartVoting(ctx, tb.session, tb.alice, tb.stories[0])
		require.NoError(t, err)
		_, err = tb.r.FinalizeEstimate(ctx, tb.session, tb.alice, tb.stories[0], model.VoteValue{})
		requireCode(t, err, apperrors.ErrCodeValidation, "Final estimate is required")
	})

	t.Run("finalize rejects a blank token", func(t *testing.T) {
		tb := newTable(t, RegistryConfig{}, "A")
		_, err := tb.r.StartVoting(ctx, tb.session, tb.alice, tb.stories[0])
		require.NoError(t, err)

		_, err = tb.r.FinalizeEstimate(ctx, tb.session, tb.alice, tb.stories[0], model.TokenVote("  "))
		requireCode(t, err, apperrors.ErrCodeValidation, "Final estimate is required")

		story := tb.snapshot().Story(tb.stories[0])
		assert.Equal(t, model.StoryStatusVoting, story.Status)
		assert.Nil(t, story.FinalEstimate)
	})

	t.Run("finalize reads numeric text as a number", func(t *testing.T) {
		tb := newTable(t, RegistryConfig{}, "A")
		_, err := tb.r.StartVoting(ctx, tb.session, tb.alice, tb.stories[0])
		require.NoError(t, err)

		s, err := tb.r.FinalizeEstimate(ctx, tb.session, tb.alice, tb.stories[0], model.TokenVote("8"))
		require.NoError(t, err)
		final := s.Story(tb.stories[0]).FinalEstimate
		require.NotNil(t, final)
		assert.True(t, final.IsNumeric())
	})

	t.Run("finalize ignores scale", func(t *testing.T) {
		tb := newTable(t, RegistryConfig{EnforceVoteScale: true}, "A")
		_, err := tb.r.StartVoting(ctx, tb.session, tb.alice, tb.stories[0])
		require.NoError(t, err)
		s, err := tb.r.FinalizeEstimate(ctx, tb.session, tb.alice, tb.stories[0], model.NumericVote(4))
		require.NoError(t, err)
		assert.Equal(t, model.NumericVote(4), *s.Story(tb.stories[0]).FinalEstimate)
	})

	t.Run("unknown story", func(t *testing.T) {
		tb := newTable(t, RegistryConfig{})
		_, err := tb.r.RevealVotes(ctx, tb.session, tb.alice, "story_missing")
		requireCode(t, err, apperrors.ErrCodeNotFound, "Story not found")
	})
}

func TestVoting_Revote(t *testing.T) {
	ctx := context.Background()

	complete := func(t *testing.T, tb *table, story string) {
		t.Helper()
		_, err := tb.r.StartVoting(ctx, tb.session, tb.alice, story)
		require.NoError(t, err)
		_, err = tb.r.SubmitVote(ctx, tb.session, tb.bob, story, model.NumericVote(8))
		require.NoError(t, err)
		_, err = tb.r.RevealVotes(ctx, tb.session, tb.alice, story)
		require.NoError(t, err)
		_, err = tb.r.FinalizeEstimate(ctx, tb.session, tb.alice, story, model.NumericVote(8))
		require.NoError(t, err)
	}

	t.Run("pending story", func(t *testing.T) {
		tb := newTable(t, RegistryConfig{}, "A")
		_, err := tb.r.RevoteStory(ctx, tb.session, tb.alice, tb.stories[0])
		requireCode(t, err, apperrors.ErrCodeInvalidState, "Can only revote on completed stories")
	})

	t.Run("another story is open", func(t *testing.T) {
		tb := newTable(t, RegistryConfig{}, "A", "B")
		complete(t, tb, tb.stories[0])
		_, err := tb.r.StartVoting(ctx, tb.session, tb.alice, tb.stories[1])
		require.NoError(t, err)

		before := tb.snapshot()
		_, err = tb.r.RevoteStory(ctx, tb.session, tb.alice, tb.stories[0])
		requireCode(t, err, apperrors.ErrCodeInvalidState, "Another story is currently being voted on")
		assert.Equal(t, before, tb.snapshot())
	})

	t.Run("unknown story", func(t *testing.T) {
		tb := newTable(t, RegistryConfig{})
		_, err := tb.r.RevoteStory(ctx, tb.session, tb.alice, "story_missing")
		requireCode(t, err, apperrors.ErrCodeNotFound, "Story not found")
	})

	t.Run("resets the round", func(t *testing.T) {
		tb := newTable(t, RegistryConfig{}, "A")
		story := tb.stories[0]
		complete(t, tb, story)

		s, err := tb.r.RevoteStory(ctx, tb.session, tb.alice, story)
		require.NoError(t, err)
		st := s.Story(story)
		assert.Equal(t, model.StoryStatusVoting, st.Status)
		assert.Empty(t, st.Votes)
		assert.Nil(t, st.FinalEstimate)
		assert.Nil(t, st.CompletedAt)
		assert.Equal(t, model.SessionStatusVoting, s.Status)
		require.NotNil(t, s.CurrentStoryID)
		assert.Equal(t, story, *s.CurrentStoryID)
	})
}

func TestVoting_StoryResults(t *testing.T) {
	ctx := context.Background()
	tb := newTable(t, RegistryConfig{}, "A")
	story := tb.stories[0]

	_, err := tb.r.StartVoting(ctx, tb.session, tb.alice, story)
	require.NoError(t, err)
	_, err = tb.r.SubmitVote(ctx, tb.session, tb.alice, story, model.NumericVote(5))
	require.NoError(t, err)
	_, err = tb.r.SubmitVote(ctx, tb.session, tb.bob, story, model.NumericVote(8))
	require.NoError(t, err)

	t.Run("hidden before reveal", func(t *testing.T) {
		_, err := tb.r.StoryResults(tb.session, story)
		requireCode(t, err, apperrors.ErrCodeInvalidState, "Votes have not been revealed")
	})

	t.Run("summarized after reveal", func(t *testing.T) {
		_, err := tb.r.RevealVotes(ctx, tb.session, tb.alice, story)
		require.NoError(t, err)

		res, err := tb.r.StoryResults(tb.session, story)
		require.NoError(t, err)
		assert.Equal(t, 2, res.VoteCount)
		require.NotNil(t, res.Average)
		assert.Equal(t, 6.5, *res.Average)
		require.NotNil(t, res.Suggestion)
		assert.Equal(t, model.NumericVote(5), *res.Suggestion)
		assert.Equal(t, estimate.ConsensusModerate, res.Consensus)
	})

	t.Run("still available once completed", func(t *testing.T) {
		_, err := tb.r.FinalizeEstimate(ctx, tb.session, tb.alice, story, model.NumericVote(8))
		require.NoError(t, err)

		res, err := tb.r.StoryResults(tb.session, story)
		require.NoError(t, err)
		assert.Equal(t, 2, res.VoteCount)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := tb.r.StoryResults("sess_missing", story)
		requireCode(t, err, apperrors.ErrCodeNotFound, "Session not found")
		_, err = tb.r.StoryResults(tb.session, "story_missing")
		requireCode(t, err, apperrors.ErrCodeNotFound, "Story not found")
	})
}

func TestVoting_StoryResultsFromTextVotes(t *testing.T) {
	ctx := context.Background()
	tb := newTable(t, RegistryConfig{EnforceVoteScale: true}, "A")
	story := tb.stories[0]

	_, err := tb.r.StartVoting(ctx, tb.session, tb.alice, story)
	require.NoError(t, err)
	_, err = tb.r.SubmitVote(ctx, tb.session, tb.alice, story, model.TokenVote("5"))
	require.NoError(t, err)
	_, err = tb.r.SubmitVote(ctx, tb.session, tb.bob, story, model.TokenVote("8"))
	require.NoError(t, err)
	_, err = tb.r.RevealVotes(ctx, tb.session, tb.alice, story)
	require.NoError(t, err)

	res, err := tb.r.StoryResults(tb.session, story)
	require.NoError(t, err)
	assert.Equal(t, 2, res.VoteCount)
	require.NotNil(t, res.Average)
	assert.Equal(t, 6.5, *res.Average)
	require.NotNil(t, res.Median)
	assert.Equal(t, 6.5, *res.Median)
	assert.NotNil(t, res.Disagreement)
	require.Len(t, res.Distribution, 2)
	assert.True(t, res.Distribution[0].Value.IsNumeric())
}

func TestVoting_ConcurrentVotesAreNotLost(t *testing.T) {
	ctx := context.Background()
	tb := newTable(t, RegistryConfig{}, "A", "B")

	var members []string
	for i := 0; i < 20; i++ {
		res, err := tb.r.JoinSession(ctx, tb.code, "m"+string(rune('a'+i)))
		require.NoError(t, err)
		members = append(members, res.ParticipantID)
	}
	_, err := tb.r.StartVoting(ctx, tb.session, tb.alice, tb.stories[0])
	require.NoError(t, err)

	var wg sync.WaitGroup
	for _, id := range members {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := tb.r.SubmitVote(ctx, tb.session, id, tb.stories[0], model.NumericVote(3))
			assert.NoError(t, err)
		}(id)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 10; i++ {
			s := tb.r.GetSession(tb.session)
			assert.LessOrEqual(t, len(s.VotingStories()), 1)
		}
	}()
	wg.Wait()

	s := tb.snapshot()
	assert.Len(t, s.Story(tb.stories[0]).Votes, len(members))
	assertSingleActiveStory(t, s)
}
