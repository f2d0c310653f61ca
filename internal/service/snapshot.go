package service

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/trmquang93/planning-poker-sub001/internal/database"
	"github.com/trmquang93/planning-poker-sub001/internal/model"
	"github.com/trmquang93/planning-poker-sub001/internal/repository"
)

// SnapshotService persists registry contents to Postgres and brings them back
// on startup.
type SnapshotService struct {
	db   *database.DB
	repo repository.SnapshotRepository
}

func NewSnapshotService(db *database.DB, repo repository.SnapshotRepository) *SnapshotService {
	return &SnapshotService{db: db, repo: repo}
}

// SaveAll replaces the stored snapshot set in one transaction.
func (s *SnapshotService) SaveAll(ctx context.Context, sessions []*model.Session) error {
	return s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		return s.repo.WithTx(tx).ReplaceAll(ctx, sessions)
	})
}

func (s *SnapshotService) DeleteExpired(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpired(ctx)
}

// RestoreInto loads unexpired snapshots into registry.
func (s *SnapshotService) RestoreInto(ctx context.Context, registry *Registry) (int, error) {
	sessions, err := s.repo.LoadActive(ctx, time.Now())
	if err != nil {
		return 0, fmt.Errorf("load snapshots: %w", err)
	}

	restored := registry.Restore(sessions)
	log.Info().
		Int("found", len(sessions)).
		Int("restored", restored).
		Msg("sessions restored from snapshot")
	return restored, nil
}
