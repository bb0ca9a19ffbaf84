package domain

import "time"

// Option labels one of the four choices of a question.
type Option string

const (
	OptionA Option = "A"
	OptionB Option = "B"
	OptionC Option = "C"
	OptionD Option = "D"
)

// Options lists the choice labels in display order.
var Options = []Option{OptionA, OptionB, OptionC, OptionD}

// Valid reports whether o is one of A, B, C or D.
func (o Option) Valid() bool {
	switch o {
	case OptionA, OptionB, OptionC, OptionD:
		return true
	}
	return false
}

// Question models an MCQ question with exactly one correct option.
type Question struct {
	ID          string            `json:"id" validate:"required"`
	Category    Category          `json:"category" validate:"required"`
	Topic       string            `json:"topic,omitempty"`
	Prompt      string            `json:"prompt" validate:"required"`
	Choices     map[Option]string `json:"choices" validate:"len=4,dive,required"`
	Correct     Option            `json:"correct" validate:"required,oneof=A B C D"`
	Explanation string            `json:"explanation"`
}

// AnswerRecord is the recorded choice for one question. FirstCorrect is the
// correctness of the first commit and is never changed by revisions.
type AnswerRecord struct {
	QuestionID   string `json:"questionId"`
	Chosen       Option `json:"chosen"`
	FirstCorrect bool   `json:"firstCorrect"`
}

// TopicScore aggregates first answers per topic.
type TopicScore struct {
	Correct int `json:"correct"`
	Total   int `json:"total"`
}

// Percent returns round(100 * correct / total), zero for an empty topic.
func (t TopicScore) Percent() int {
	if t.Total == 0 {
		return 0
	}
	return (200*t.Correct + t.Total) / (2 * t.Total)
}

// SessionState is the persisted snapshot of an in-progress exam.
type SessionState struct {
	UserID        string                 `json:"userId"`
	CategoryID    Category               `json:"categoryId"`
	QuestionIDs   []string               `json:"questionIds"`
	CurrentIndex  int                    `json:"currentIndex"`
	Score         int                    `json:"score"`
	Answers       []AnswerRecord         `json:"answers"`
	Topics        map[TopicID]TopicScore `json:"topics"`
	TimeRemaining int                    `json:"timeRemainingSeconds"`
	Version       int64                  `json:"version"`
	UpdatedAt     time.Time              `json:"updatedAt"`
}

// ExamResult is an append-only record of a completed attempt.
type ExamResult struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	CategoryID Category  `json:"categoryId"`
	Score      int       `json:"score"`
	TotalItems int       `json:"totalItems"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Percent returns the rounded percentage of correct items.
func (r ExamResult) Percent() int {
	return TopicScore{Correct: r.Score, Total: r.TotalItems}.Percent()
}

// Passed reports whether the result meets the pass threshold.
func (r ExamResult) Passed() bool {
	return r.Percent() >= PassThreshold
}

// Tier is the entitlement level controlling question count and timer budget.
type Tier string

const (
	TierBase    Tier = "base"
	TierPremium Tier = "premium"
)
