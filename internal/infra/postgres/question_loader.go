package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"exam-practice-service/internal/domain"
	"github.com/jackc/pgx/v4/pgxpool"
)

// QuestionLoader loads question banks from Postgres.
type QuestionLoader struct {
	pool *pgxpool.Pool
}

func NewQuestionLoader(pool *pgxpool.Pool) *QuestionLoader {
	return &QuestionLoader{pool: pool}
}

func (l *QuestionLoader) LoadQuestions(ctx context.Context, category domain.Category) ([]domain.Question, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT id, category_id, topic, prompt, choices, correct_answer, explanation
		FROM questions WHERE category_id=$1 ORDER BY id`, string(category))
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	var out []domain.Question
	for rows.Next() {
		var (
			q       domain.Question
			cat     string
			choices []byte
			correct string
		)
		if err := rows.Scan(&q.ID, &cat, &q.Topic, &q.Prompt, &choices, &correct, &q.Explanation); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		if err := json.Unmarshal(choices, &q.Choices); err != nil {
			return nil, fmt.Errorf("unmarshal choices of %s: %w", q.ID, err)
		}
		q.Category = domain.Category(cat)
		q.Correct = domain.Option(correct)
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	return out, nil
}

// LoadTopics returns the registered topics plus any topic used by a question.
func (l *QuestionLoader) LoadTopics(ctx context.Context) ([]string, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT name FROM topics
		UNION
		SELECT DISTINCT topic FROM questions WHERE topic <> ''
		ORDER BY 1`)
	if err != nil {
		return nil, fmt.Errorf("load topics: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan topic: %w", err)
		}
		out = append(out, name)
	}
	return out, rows.Err()
}
