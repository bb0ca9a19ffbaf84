package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"exam-practice-service/internal/domain"
	"github.com/uptrace/bun"
)

type examProgressModel struct {
	bun.BaseModel `bun:"table:exam_progress,alias:ep"`

	UserID     string              `bun:"user_id,pk"`
	CategoryID string              `bun:"category_id,pk"`
	Version    int64               `bun:"version,notnull"`
	State      domain.SessionState `bun:"state,type:jsonb,notnull"`
	UpdatedAt  time.Time           `bun:"updated_at,notnull"`
}

// ProgressStore keeps in-progress snapshots in Postgres when Redis is not
// configured.
type ProgressStore struct {
	db *bun.DB
}

func NewProgressStore(db *bun.DB) *ProgressStore {
	return &ProgressStore{db: db}
}

func (s *ProgressStore) GetSession(ctx context.Context, userID string, category domain.Category) (domain.SessionState, error) {
	var m examProgressModel
	err := s.db.NewSelect().
		Model(&m).
		Where("user_id = ?", userID).
		Where("category_id = ?", string(category)).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.SessionState{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.SessionState{}, fmt.Errorf("get session: %w", err)
	}
	return m.State, nil
}

// UpsertSession only overwrites a row holding an older version.
func (s *ProgressStore) UpsertSession(ctx context.Context, state domain.SessionState) error {
	m := examProgressModel{
		UserID:     state.UserID,
		CategoryID: string(state.CategoryID),
		Version:    state.Version,
		State:      state,
		UpdatedAt:  state.UpdatedAt,
	}
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = time.Now()
	}
	res, err := s.db.NewInsert().
		Model(&m).
		On("CONFLICT (user_id, category_id) DO UPDATE").
		Set("version = EXCLUDED.version").
		Set("state = EXCLUDED.state").
		Set("updated_at = EXCLUDED.updated_at").
		Where("ep.version < EXCLUDED.version").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrStaleSession
	}
	return nil
}

func (s *ProgressStore) DeleteSession(ctx context.Context, userID string, category domain.Category) error {
	_, err := s.db.NewDelete().
		Model((*examProgressModel)(nil)).
		Where("user_id = ?", userID).
		Where("category_id = ?", string(category)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
