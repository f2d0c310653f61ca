package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/trmquang93/planning-poker-sub001/internal/model"
)

type SnapshotRepository interface {
	// ReplaceAll overwrites the table with sessions. Run it on a
	// transaction-bound repository so readers never see a partial set.
	ReplaceAll(ctx context.Context, sessions []*model.Session) error
	LoadActive(ctx context.Context, now time.Time) ([]*model.Session, error)
	DeleteExpired(ctx context.Context) (int64, error)
	WithTx(tx *sqlx.Tx) SnapshotRepository
}

type snapshotDB interface {
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type snapshotRow struct {
	ID        string    `db:"id"`
	Code      string    `db:"code"`
	Payload   []byte    `db:"payload"`
	ExpiresAt time.Time `db:"expires_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

type snapshotRepo struct {
	db snapshotDB
}

func NewSnapshotRepository(db *sqlx.DB) SnapshotRepository {
	return &snapshotRepo{db: db}
}

func (r *snapshotRepo) WithTx(tx *sqlx.Tx) SnapshotRepository {
	return &snapshotRepo{db: tx}
}

func (r *snapshotRepo) ReplaceAll(ctx context.Context, sessions []*model.Session) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM session_snapshots`); err != nil {
		return fmt.Errorf("clear snapshots: %w", err)
	}

	for _, s := range sessions {
		payload, err := json.Marshal(s)
		if err != nil {
			return fmt.Errorf("encode session %s: %w", s.ID, err)
		}
		_, err = r.db.ExecContext(ctx, `
			INSERT INTO session_snapshots (id, code, payload, expires_at, updated_at)
			VALUES ($1, $2, $3, $4, $5)
		`, s.ID, s.Code, payload, s.ExpiresAt, s.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert snapshot %s: %w", s.ID, err)
		}
	}
	return nil
}

func (r *snapshotRepo) LoadActive(ctx context.Context, now time.Time) ([]*model.Session, error) {
	var rows []snapshotRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, code, payload, expires_at, updated_at
		FROM session_snapshots
		WHERE expires_at > $1
		ORDER BY updated_at
	`, now)
	if err != nil {
		return nil, err
	}

	sessions := make([]*model.Session, 0, len(rows))
	for _, row := range rows {
		var s model.Session
		if err := json.Unmarshal(row.Payload, &s); err != nil {
			log.Warn().Err(err).Str("sessionId", row.ID).Msg("skipping unreadable session snapshot")
			continue
		}
		sessions = append(sessions, &s)
	}
	return sessions, nil
}

func (r *snapshotRepo) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM session_snapshots WHERE expires_at <= NOW()
	`)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
