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

type profileModel struct {
	bun.BaseModel `bun:"table:profiles,alias:pr"`

	UserID         string       `bun:"user_id,pk"`
	IsPremium      bool         `bun:"is_premium,notnull"`
	StreakCount    int          `bun:"streak_count,notnull"`
	LastActivityAt bun.NullTime `bun:"last_activity_at"`
}

// StreakService keeps the daily study streak on the user's profile row.
type StreakService struct {
	db  *bun.DB
	now func() time.Time
}

func NewStreakService(db *bun.DB) *StreakService {
	return &StreakService{db: db, now: time.Now}
}

// RecordActivity advances the streak inside a row-locking transaction and
// creates the profile on first activity. changed is false for a repeat on
// the same day.
func (s *StreakService) RecordActivity(ctx context.Context, userID string) (int, bool, error) {
	var (
		count   int
		changed bool
	)
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		p := profileModel{UserID: userID}
		err := tx.NewSelect().
			Model(&p).
			WherePK().
			For("UPDATE").
			Scan(ctx)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		now := s.now()
		count, changed = domain.NextStreak(p.LastActivityAt.Time, p.StreakCount, now)
		p.StreakCount = count
		p.LastActivityAt = bun.NullTime{Time: now}

		_, err = tx.NewInsert().
			Model(&p).
			On("CONFLICT (user_id) DO UPDATE").
			Set("streak_count = EXCLUDED.streak_count").
			Set("last_activity_at = EXCLUDED.last_activity_at").
			Exec(ctx)
		return err
	})
	if err != nil {
		return 0, false, fmt.Errorf("record activity: %w", err)
	}
	return count, changed, nil
}

// SetPremium creates or updates the entitlement flag of a profile.
func SetPremium(ctx context.Context, db bun.IDB, userID string, premium bool) error {
	p := profileModel{UserID: userID, IsPremium: premium}
	_, err := db.NewInsert().
		Model(&p).
		On("CONFLICT (user_id) DO UPDATE").
		Set("is_premium = EXCLUDED.is_premium").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("set premium: %w", err)
	}
	return nil
}
