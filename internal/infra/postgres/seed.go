package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"exam-practice-service/internal/domain"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type questionModel struct {
	bun.BaseModel `bun:"table:questions,alias:q"`

	ID            string                   `bun:"id,pk"`
	CategoryID    string                   `bun:"category_id,notnull"`
	Topic         string                   `bun:"topic,notnull"`
	Prompt        string                   `bun:"prompt,notnull"`
	Choices       map[domain.Option]string `bun:"choices,type:jsonb,notnull"`
	CorrectAnswer string                   `bun:"correct_answer,notnull"`
	Explanation   string                   `bun:"explanation,notnull"`
}

type topicModel struct {
	bun.BaseModel `bun:"table:topics,alias:t"`

	Name string `bun:"name,pk"`
}

// Catalog is the JSON import format of the seed command.
type Catalog struct {
	Topics    []string          `json:"topics"`
	Questions []domain.Question `json:"questions"`
}

// ReadCatalog decodes a catalog, assigning IDs to questions without one and
// rejecting malformed questions.
func ReadCatalog(r io.Reader) (Catalog, error) {
	var c Catalog
	if err := json.NewDecoder(r).Decode(&c); err != nil {
		return Catalog{}, fmt.Errorf("decode catalog: %w", err)
	}
	for i := range c.Questions {
		q := &c.Questions[i]
		if q.ID == "" {
			q.ID = uuid.NewString()
		}
		cat, err := domain.ParseCategory(string(q.Category))
		if err != nil {
			return Catalog{}, fmt.Errorf("question %q: %w", q.ID, err)
		}
		q.Category = cat
		if err := domain.ValidateQuestion(*q); err != nil {
			return Catalog{}, err
		}
	}
	return c, nil
}

// SeedCatalog upserts the catalog's topics and questions in one transaction.
func SeedCatalog(ctx context.Context, db *bun.DB, c Catalog) error {
	return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if len(c.Topics) > 0 {
			topics := make([]topicModel, 0, len(c.Topics))
			for _, t := range c.Topics {
				topics = append(topics, topicModel{Name: t})
			}
			if _, err := tx.NewInsert().Model(&topics).On("CONFLICT (name) DO NOTHING").Exec(ctx); err != nil {
				return fmt.Errorf("seed topics: %w", err)
			}
		}
		if len(c.Questions) == 0 {
			return nil
		}
		rows := make([]questionModel, 0, len(c.Questions))
		for _, q := range c.Questions {
			rows = append(rows, questionModel{
				ID:            q.ID,
				CategoryID:    string(q.Category),
				Topic:         q.Topic,
				Prompt:        q.Prompt,
				Choices:       q.Choices,
				CorrectAnswer: string(q.Correct),
				Explanation:   q.Explanation,
			})
		}
		_, err := tx.NewInsert().
			Model(&rows).
			On("CONFLICT (id) DO UPDATE").
			Set("category_id = EXCLUDED.category_id").
			Set("topic = EXCLUDED.topic").
			Set("prompt = EXCLUDED.prompt").
			Set("choices = EXCLUDED.choices").
			Set("correct_answer = EXCLUDED.correct_answer").
			Set("explanation = EXCLUDED.explanation").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("seed questions: %w", err)
		}
		return nil
	})
}
