package domain

import (
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ValidateQuestion checks the shape of a question from the bank.
func ValidateQuestion(q Question) error {
	if err := validate.Struct(q); err != nil {
		return fmt.Errorf("question %q: %w", q.ID, err)
	}
	for o := range q.Choices {
		if !o.Valid() {
			return fmt.Errorf("question %q: %w %q", q.ID, ErrInvalidOption, o)
		}
	}
	return nil
}

// ValidQuestions drops malformed questions, logging each one.
func ValidQuestions(questions []Question) []Question {
	out := make([]Question, 0, len(questions))
	for _, q := range questions {
		if err := ValidateQuestion(q); err != nil {
			log.Printf("skipping invalid question: %v", err)
			continue
		}
		out = append(out, q)
	}
	return out
}

// PickByIDs returns the bank questions named by ids, in ids order. IDs that
// are no longer in the bank are skipped.
func PickByIDs(bank []Question, ids []string) []Question {
	byID := make(map[string]Question, len(bank))
	for _, q := range bank {
		byID[q.ID] = q
	}
	out := make([]Question, 0, len(ids))
	for _, id := range ids {
		if q, ok := byID[id]; ok {
			out = append(out, q)
			delete(byID, id)
		}
	}
	return out
}

// Sample returns up to limit questions in random order without repeats.
func Sample(bank []Question, limit int, rnd *rand.Rand) []Question {
	if limit <= 0 || limit > len(bank) {
		limit = len(bank)
	}
	out := make([]Question, 0, limit)
	for _, i := range rnd.Perm(len(bank))[:limit] {
		out = append(out, bank[i])
	}
	return out
}

// TopicsOf returns the distinct non-empty topics of the bank.
func TopicsOf(bank []Question) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, q := range bank {
		if q.Topic == "" {
			continue
		}
		if _, ok := seen[q.Topic]; ok {
			continue
		}
		seen[q.Topic] = struct{}{}
		out = append(out, q.Topic)
	}
	return out
}

// NextStreak advances a daily streak. Activity on the same day keeps it,
// activity the day after extends it and anything else restarts at one.
// changed is false only for a repeat on the same day.
func NextStreak(last time.Time, count int, now time.Time) (next int, changed bool) {
	today := day(now)
	if last.IsZero() || count <= 0 {
		return 1, true
	}
	prev := day(last)
	switch {
	case prev.Equal(today):
		return count, false
	case prev.AddDate(0, 0, 1).Equal(today):
		return count + 1, true
	}
	return 1, true
}

func day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
