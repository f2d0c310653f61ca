package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/trmquang93/planning-poker-sub001/internal/errors"
	"github.com/trmquang93/planning-poker-sub001/internal/model"
	"github.com/trmquang93/planning-poker-sub001/internal/util"
)

const (
	DefaultSessionTTL = 2 * time.Hour

	maxCodeAttempts = 100
)

// Notifier relays "session changed" facts to the real-time layer.
type Notifier interface {
	Notify(ctx context.Context, event model.SessionEvent) error
}

type RegistryConfig struct {
	SessionTTL       time.Duration
	EnforceVoteScale bool
}

// Registry is the single authority over live sessions. Every operation on a
// session runs under the registry lock from lookup to snapshot, so effects on
// one session are linearizable. Snapshots handed out are deep copies.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*model.Session
	codes    map[string]string // code -> session id
	notifier Notifier
	cfg      RegistryConfig
	now      func() time.Time
	newCode  func() string
}

func NewRegistry(cfg RegistryConfig, notifier Notifier) *Registry {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}
	return &Registry{
		sessions: make(map[string]*model.Session),
		codes:    make(map[string]string),
		notifier: notifier,
		cfg:      cfg,
		now:      time.Now,
		newCode:  util.GenerateSessionCode,
	}
}

// change describes the event a successful mutation emits.
type change struct {
	event         model.SessionEventType
	participantID string
	storyID       string
}

type finder func(now time.Time) (*model.Session, error)

// byID resolves a live session. Must be called with r.mu held.
func (r *Registry) byID(id string) finder {
	return func(now time.Time) (*model.Session, error) {
		s, ok := r.sessions[id]
		if !ok || s.IsExpired(now) {
			return nil, apperrors.NotFound("Session")
		}
		return s, nil
	}
}

// byCode resolves a live session by its share code. Must be called with r.mu held.
func (r *Registry) byCode(code string) finder {
	return func(now time.Time) (*model.Session, error) {
		code := util.NormalizeSessionCode(code)
		if !util.IsValidSessionCode(code) {
			return nil, apperrors.NotFound("Session")
		}
		id, ok := r.codes[code]
		if !ok {
			return nil, apperrors.NotFound("Session")
		}
		return r.byID(id)(now)
	}
}

// mutate runs fn against the resolved session under the write lock. fn must
// validate everything before touching the session so a failure leaves no
// partial state behind.
func (r *Registry) mutate(
	ctx context.Context,
	find finder,
	fn func(s *model.Session, now time.Time) (change, error),
) (*model.Session, error) {
	snapshot, c, now, err := func() (*model.Session, change, time.Time, error) {
		r.mu.Lock()
		defer r.mu.Unlock()

		now := r.now()
		s, err := find(now)
		if err != nil {
			return nil, change{}, now, err
		}

		c, err := fn(s, now)
		if err != nil {
			return nil, change{}, now, err
		}

		touch(s, now)
		return s.Clone(), c, now, nil
	}()
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("sessionId", snapshot.ID).
		Str("event", string(c.event)).
		Int64("version", snapshot.Version).
		Msg("session updated")

	r.emit(ctx, c, snapshot.ID, snapshot, now)
	return snapshot, nil
}

func touch(s *model.Session, now time.Time) {
	s.UpdatedAt = now
	s.Version++
}

func (r *Registry) emit(ctx context.Context, c change, sessionID string, snapshot *model.Session, at time.Time) {
	if r.notifier == nil {
		return
	}

	event := model.SessionEvent{
		Type:          c.event,
		SessionID:     sessionID,
		ParticipantID: c.participantID,
		StoryID:       c.storyID,
		OccurredAt:    at,
	}
	if snapshot != nil {
		event.Session = snapshot.Clone()
		event.Version = snapshot.Version
	}

	if err := r.notifier.Notify(ctx, event); err != nil {
		log.Warn().
			Err(err).
			Str("sessionId", sessionID).
			Str("event", string(c.event)).
			Msg("failed to publish session event")
	}
}

// GetSession returns a snapshot of the session, or nil when it does not exist.
func (r *Registry) GetSession(id string) *model.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.sessions[id].Clone()
}

// LiveSession returns a snapshot of a session that has not expired. Unlike
// GetSession it hides sessions still waiting for the sweeper.
func (r *Registry) LiveSession(id string) (*model.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, err := r.byID(id)(r.now())
	if err != nil {
		return nil, err
	}
	return s.Clone(), nil
}

// GetSessionByCode returns a snapshot of the session owning code, or nil.
func (r *Registry) GetSessionByCode(code string) *model.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.codes[util.NormalizeSessionCode(code)]
	if !ok {
		return nil
	}
	return r.sessions[id].Clone()
}

// GetAllSessions returns snapshots of every session, oldest first.
func (r *Registry) GetAllSessions() []*model.Session {
	r.mu.RLock()
	out := make([]*model.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s.Clone())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// DeleteSession removes the session and reports whether it existed.
func (r *Registry) DeleteSession(ctx context.Context, id string) bool {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		r.removeLocked(s)
	}
	now := r.now()
	r.mu.Unlock()

	if !ok {
		return false
	}

	log.Info().Str("sessionId", id).Msg("session deleted")
	r.emit(ctx, change{event: model.EventSessionDeleted}, id, nil, now)
	return true
}

// ClearAllSessions empties the registry and returns how many sessions were dropped.
func (r *Registry) ClearAllSessions(ctx context.Context) int {
	r.mu.Lock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.sessions = make(map[string]*model.Session)
	r.codes = make(map[string]string)
	now := r.now()
	r.mu.Unlock()

	for _, id := range ids {
		r.emit(ctx, change{event: model.EventSessionDeleted}, id, nil, now)
	}
	log.Info().Int("count", len(ids)).Msg("registry cleared")
	return len(ids)
}

// DeleteExpired removes every session whose expiresAt is not after now.
func (r *Registry) DeleteExpired(ctx context.Context) (int64, error) {
	r.mu.Lock()
	now := r.now()
	var expired []string
	for id, s := range r.sessions {
		if s.IsExpired(now) {
			r.removeLocked(s)
			expired = append(expired, id)
		}
	}
	r.mu.Unlock()

	for _, id := range expired {
		r.emit(ctx, change{event: model.EventSessionExpired}, id, nil, now)
	}
	return int64(len(expired)), nil
}

// Restore loads previously saved sessions, skipping expired ones and any whose
// id or code is already taken. It returns how many were restored.
func (r *Registry) Restore(sessions []*model.Session) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	restored := 0
	for _, s := range sessions {
		if s == nil || s.IsExpired(now) {
			continue
		}
		if _, taken := r.sessions[s.ID]; taken {
			continue
		}
		if _, taken := r.codes[s.Code]; taken {
			log.Warn().Str("sessionId", s.ID).Str("code", s.Code).Msg("skipping restored session with duplicate code")
			continue
		}
		cp := s.Clone()
		r.sessions[cp.ID] = cp
		r.codes[cp.Code] = cp.ID
		restored++
	}
	return restored
}

func (r *Registry) removeLocked(s *model.Session) {
	delete(r.sessions, s.ID)
	if r.codes[s.Code] == s.ID {
		delete(r.codes, s.Code)
	}
}

// allocateCode draws codes until one is free. Must be called with r.mu held.
func (r *Registry) allocateCode() (string, error) {
	for i := 0; i < maxCodeAttempts; i++ {
		code := r.newCode()
		if _, taken := r.codes[code]; !taken {
			return code, nil
		}
		log.Debug().Str("code", code).Msg("session code collision, retrying")
	}
	return "", apperrors.Internal("Could not allocate a session code")
}
