package app

import "exam-practice-service/internal/domain"

// QuestionView is a question as shown to the candidate. The answer key and
// explanation are only filled once the question is locked.
type QuestionView struct {
	ID          string                   `json:"id"`
	Topic       domain.TopicID           `json:"topic"`
	Prompt      string                   `json:"prompt"`
	Choices     map[domain.Option]string `json:"choices"`
	Correct     domain.Option            `json:"correct,omitempty"`
	Explanation string                   `json:"explanation,omitempty"`
}

// View is a read-only snapshot of a controller, published after every event.
type View struct {
	UserID        string          `json:"userId"`
	Category      domain.Category `json:"category"`
	Phase         Phase           `json:"phase"`
	Index         int             `json:"index"`
	Total         int             `json:"total"`
	Question      *QuestionView   `json:"question,omitempty"`
	Pending       domain.Option   `json:"pending,omitempty"`
	Locked        bool            `json:"locked"`
	AnsweredRight *bool           `json:"answeredRight,omitempty"`
	Answered      int             `json:"answered"`
	Unanswered    []int           `json:"unanswered"`
	TimeRemaining int             `json:"timeRemaining"`
	Score         int             `json:"score"`
	Resumed       bool            `json:"resumed,omitempty"`

	Breakdown []TopicRow         `json:"breakdown,omitempty"`
	Clinical  *TopicRow          `json:"clinical,omitempty"`
	Result    *domain.ExamResult `json:"result,omitempty"`
	Streak    int                `json:"streak,omitempty"`
	Milestone bool               `json:"milestone,omitempty"`
	Error     string             `json:"error,omitempty"`
}

// View renders the exam. The locked answer reports the banked first-answer
// correctness, not the current selection.
func (e *Exam) View() View {
	v := View{
		UserID:        e.userID,
		Category:      e.category,
		Phase:         e.phase,
		Index:         e.index,
		Total:         len(e.questions),
		Pending:       e.pending,
		Locked:        e.locked,
		Answered:      len(e.answers),
		Unanswered:    e.Unanswered(),
		TimeRemaining: e.remaining,
		Score:         e.score,
	}
	if e.failure != nil {
		v.Error = e.failure.Error()
	}
	if e.running() && len(e.questions) > 0 {
		q := e.questions[e.index]
		qv := &QuestionView{
			ID:      q.ID,
			Topic:   e.topics.Resolve(q.Topic),
			Prompt:  q.Prompt,
			Choices: q.Choices,
		}
		if e.locked {
			qv.Correct = q.Correct
			qv.Explanation = q.Explanation
			if i, ok := e.answerIdx[q.ID]; ok {
				right := e.answers[i].FirstCorrect
				v.AnsweredRight = &right
			}
		}
		v.Question = qv
	}
	if e.phase == PhaseFinished {
		v.Breakdown = e.Breakdown()
		v.Clinical = e.Clinical()
	}
	return v
}
