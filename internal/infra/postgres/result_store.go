package postgres

import (
	"context"
	"fmt"
	"time"

	"exam-practice-service/internal/domain"
	"github.com/uptrace/bun"
)

type examResultModel struct {
	bun.BaseModel `bun:"table:exam_results,alias:er"`

	ID         string    `bun:"id,pk,type:uuid"`
	UserID     string    `bun:"user_id,notnull"`
	CategoryID string    `bun:"category_id,notnull"`
	Score      int       `bun:"score,notnull"`
	TotalItems int       `bun:"total_items,notnull"`
	CreatedAt  time.Time `bun:"created_at,notnull"`
}

func (m examResultModel) toDomain() domain.ExamResult {
	return domain.ExamResult{
		ID:         m.ID,
		UserID:     m.UserID,
		CategoryID: domain.Category(m.CategoryID),
		Score:      m.Score,
		TotalItems: m.TotalItems,
		CreatedAt:  m.CreatedAt,
	}
}

// ResultStore is the append-only exam history in Postgres.
type ResultStore struct {
	db *bun.DB
}

func NewResultStore(db *bun.DB) *ResultStore {
	return &ResultStore{db: db}
}

func (s *ResultStore) AppendResult(ctx context.Context, result domain.ExamResult) error {
	m := examResultModel{
		ID:         result.ID,
		UserID:     result.UserID,
		CategoryID: string(result.CategoryID),
		Score:      result.Score,
		TotalItems: result.TotalItems,
		CreatedAt:  result.CreatedAt,
	}
	if _, err := s.db.NewInsert().Model(&m).Exec(ctx); err != nil {
		return fmt.Errorf("insert exam result: %w", err)
	}
	return nil
}

// ListRecentResults returns up to limit results, newest first.
func (s *ResultStore) ListRecentResults(ctx context.Context, userID string, limit int) ([]domain.ExamResult, error) {
	var rows []examResultModel
	err := s.db.NewSelect().
		Model(&rows).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list exam results: %w", err)
	}
	out := make([]domain.ExamResult, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (s *ResultStore) TotalScore(ctx context.Context, userID string) (int, error) {
	var total int
	err := s.db.NewSelect().
		Model((*examResultModel)(nil)).
		ColumnExpr("COALESCE(SUM(score), 0)").
		Where("user_id = ?", userID).
		Scan(ctx, &total)
	if err != nil {
		return 0, fmt.Errorf("sum exam results: %w", err)
	}
	return total, nil
}
