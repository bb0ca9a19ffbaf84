package app

import (
	"sort"
	"time"

	"exam-practice-service/internal/domain"
)

// Phase is the lifecycle state of an exam attempt.
type Phase string

const (
	PhaseLoading       Phase = "loading"
	PhaseInProgress    Phase = "in_progress"
	PhaseReviewPending Phase = "review_pending"
	PhaseFinished      Phase = "finished"
	PhaseFailed        Phase = "failed"
)

// Exam is the state machine of a single timed attempt. It performs no I/O;
// the Controller feeds it commands and ticks one at a time.
type Exam struct {
	userID   string
	category domain.Category

	phase     Phase
	failure   error
	questions []domain.Question
	topics    *domain.TopicRegistry

	index   int
	pending domain.Option
	locked  bool
	// revisit marks a question locked by navigating back to its record;
	// selecting a new option reopens it for revision.
	revisit bool

	answers   []domain.AnswerRecord
	answerIdx map[string]int

	score       int
	topicScores map[domain.TopicID]domain.TopicScore
	remaining   int
	version     int64
}

// NewExam returns an attempt in the Loading phase.
func NewExam(userID string, category domain.Category) *Exam {
	return &Exam{
		userID:      userID,
		category:    category,
		phase:       PhaseLoading,
		answerIdx:   make(map[string]int),
		topicScores: make(map[domain.TopicID]domain.TopicScore),
	}
}

// Phase returns the current lifecycle state.
func (e *Exam) Phase() Phase { return e.phase }

// Score returns the number of correct first answers.
func (e *Exam) Score() int { return e.score }

// Remaining returns the seconds left on the countdown.
func (e *Exam) Remaining() int { return e.remaining }

// Start moves a loading exam into progress with the fetched questions.
func (e *Exam) Start(questions []domain.Question, topics *domain.TopicRegistry, budget time.Duration) error {
	if e.phase != PhaseLoading {
		return domain.ErrInvalidState
	}
	if len(questions) == 0 {
		e.Fail(domain.ErrNoQuestions)
		return domain.ErrNoQuestions
	}
	e.questions = questions
	e.topics = topics
	e.remaining = int(budget / time.Second)
	e.phase = PhaseInProgress
	e.unlock()
	return nil
}

// Fail moves a loading exam into the absorbing failed state.
func (e *Exam) Fail(err error) {
	if e.phase != PhaseLoading {
		return
	}
	e.failure = err
	e.phase = PhaseFailed
}

// Restore overwrites the fresh defaults with a stored snapshot. A non-nil
// questions replaces the sampled set with the one the snapshot was taken
// against. Answers for questions outside the set are dropped, and when any
// are dropped the score and topic counts are rebuilt from the survivors.
func (e *Exam) Restore(s domain.SessionState, questions []domain.Question) error {
	if e.phase != PhaseInProgress {
		return domain.ErrInvalidState
	}
	if len(questions) > 0 {
		e.questions = questions
	}
	known := make(map[string]struct{}, len(e.questions))
	for _, q := range e.questions {
		known[q.ID] = struct{}{}
	}

	e.answers = e.answers[:0]
	e.answerIdx = make(map[string]int, len(s.Answers))
	for _, rec := range s.Answers {
		if _, ok := known[rec.QuestionID]; !ok {
			continue
		}
		if i, dup := e.answerIdx[rec.QuestionID]; dup {
			e.answers[i] = rec
			continue
		}
		e.answerIdx[rec.QuestionID] = len(e.answers)
		e.answers = append(e.answers, rec)
	}

	e.topicScores = make(map[domain.TopicID]domain.TopicScore, len(s.Topics))
	switch {
	case len(e.answers) != len(s.Answers):
		e.rebuildScore()
		e.rebuildTopics()
	case s.Topics != nil:
		e.score = s.Score
		for id, ts := range s.Topics {
			key := e.topics.Resolve(string(id))
			e.topicScores[key] = mergeTopic(e.topicScores[key], ts)
		}
	default:
		e.score = s.Score
		e.rebuildTopics()
	}

	e.remaining = s.TimeRemaining
	e.version = s.Version
	e.index = clamp(s.CurrentIndex, 0, len(e.questions)-1)
	e.settle()
	return nil
}

// Supersede records the version of a declined snapshot so the next save
// replaces it.
func (e *Exam) Supersede(s domain.SessionState) {
	if s.Version > e.version {
		e.version = s.Version
	}
}

// SelectOption sets the pending choice of an unlocked question. On a
// revisited question it unlocks the question for a revised commit.
func (e *Exam) SelectOption(o domain.Option) error {
	if e.phase != PhaseInProgress || (e.locked && !e.revisit) {
		return domain.ErrInvalidState
	}
	if !o.Valid() {
		return domain.ErrInvalidOption
	}
	e.pending = o
	e.locked = false
	e.revisit = false
	return nil
}

// CommitAnswer locks the current question with the pending choice. Only the
// first commit for a question moves the score and topic counters.
func (e *Exam) CommitAnswer() (bool, error) {
	if e.phase != PhaseInProgress || e.locked {
		return false, domain.ErrInvalidState
	}
	if e.pending == "" {
		return false, domain.ErrNoPendingChoice
	}
	q := e.questions[e.index]
	correct := e.pending == q.Correct
	e.locked = true
	e.revisit = false

	if i, ok := e.answerIdx[q.ID]; ok {
		e.answers[i].Chosen = e.pending
		return e.answers[i].FirstCorrect, nil
	}

	e.answerIdx[q.ID] = len(e.answers)
	e.answers = append(e.answers, domain.AnswerRecord{
		QuestionID:   q.ID,
		Chosen:       e.pending,
		FirstCorrect: correct,
	})
	topic := e.topics.Resolve(q.Topic)
	ts := e.topicScores[topic]
	ts.Total++
	if correct {
		e.score++
		ts.Correct++
	}
	e.topicScores[topic] = ts
	return correct, nil
}

// Next advances from a locked question. On the last question it opens the
// review instead of finishing.
func (e *Exam) Next() error {
	if e.phase != PhaseInProgress || !e.locked {
		return domain.ErrInvalidState
	}
	if e.index+1 >= len(e.questions) {
		e.phase = PhaseReviewPending
		return nil
	}
	e.index++
	e.settle()
	return nil
}

// JumpTo moves to any question, closing the review if it is open.
func (e *Exam) JumpTo(index int) error {
	if e.phase != PhaseInProgress && e.phase != PhaseReviewPending {
		return domain.ErrInvalidState
	}
	if index < 0 || index >= len(e.questions) {
		return domain.ErrIndexOutOfRange
	}
	e.index = index
	e.phase = PhaseInProgress
	e.settle()
	return nil
}

// OpenReview shows the review summary without finishing.
func (e *Exam) OpenReview() error {
	if e.phase != PhaseInProgress {
		return domain.ErrInvalidState
	}
	e.phase = PhaseReviewPending
	return nil
}

// Submit confirms the review and finishes the exam.
func (e *Exam) Submit() error {
	if e.phase != PhaseReviewPending {
		return domain.ErrInvalidState
	}
	e.phase = PhaseFinished
	return nil
}

// Expire finishes the exam from any running phase, bypassing the review.
func (e *Exam) Expire() bool {
	if !e.running() {
		return false
	}
	e.remaining = 0
	e.phase = PhaseFinished
	return true
}

// Tick counts one second down and reports whether the budget ran out.
func (e *Exam) Tick() bool {
	if !e.running() {
		return false
	}
	if e.remaining > 0 {
		e.remaining--
	}
	return e.remaining <= 0
}

// Unanswered returns the indices without a record, in order.
func (e *Exam) Unanswered() []int {
	out := make([]int, 0, len(e.questions)-len(e.answers))
	for i, q := range e.questions {
		if _, ok := e.answerIdx[q.ID]; !ok {
			out = append(out, i)
		}
	}
	return out
}

// Answers returns a copy of the records in commit order.
func (e *Exam) Answers() []domain.AnswerRecord {
	out := make([]domain.AnswerRecord, len(e.answers))
	copy(out, e.answers)
	return out
}

// Checkpoint returns the next snapshot to persist, bumping its version.
func (e *Exam) Checkpoint(now time.Time) domain.SessionState {
	e.version++
	ids := make([]string, len(e.questions))
	for i, q := range e.questions {
		ids[i] = q.ID
	}
	topics := make(map[domain.TopicID]domain.TopicScore, len(e.topicScores))
	for id, ts := range e.topicScores {
		topics[id] = ts
	}
	return domain.SessionState{
		UserID:        e.userID,
		CategoryID:    e.category,
		QuestionIDs:   ids,
		CurrentIndex:  e.index,
		Score:         e.score,
		Answers:       e.Answers(),
		Topics:        topics,
		TimeRemaining: e.remaining,
		Version:       e.version,
		UpdatedAt:     now,
	}
}

// Result builds the history row of a finished exam.
func (e *Exam) Result(id string, now time.Time) domain.ExamResult {
	return domain.ExamResult{
		ID:         id,
		UserID:     e.userID,
		CategoryID: e.category,
		Score:      e.score,
		TotalItems: len(e.questions),
		CreatedAt:  now,
	}
}

// TopicRow is one line of the per-topic breakdown.
type TopicRow struct {
	Topic   domain.TopicID `json:"topic"`
	Correct int            `json:"correct"`
	Total   int            `json:"total"`
	Percent int            `json:"percent"`
	Passed  bool           `json:"passed"`
}

// Breakdown returns one row per topic, sorted by topic name.
func (e *Exam) Breakdown() []TopicRow {
	rows := make([]TopicRow, 0, len(e.topicScores))
	for id, ts := range e.topicScores {
		rows = append(rows, topicRow(id, ts))
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Topic < rows[j].Topic })
	return rows
}

// Clinical returns the medical-surgical aggregate if that topic was seen.
func (e *Exam) Clinical() *TopicRow {
	ts, ok := e.topicScores[domain.TopicMedSurg]
	if !ok {
		return nil
	}
	row := topicRow(domain.TopicMedSurg, ts)
	return &row
}

func topicRow(id domain.TopicID, ts domain.TopicScore) TopicRow {
	p := ts.Percent()
	return TopicRow{
		Topic:   id,
		Correct: ts.Correct,
		Total:   ts.Total,
		Percent: p,
		Passed:  p >= domain.PassThreshold,
	}
}

func (e *Exam) running() bool {
	return e.phase == PhaseInProgress || e.phase == PhaseReviewPending
}

// settle re-locks the current question if it already has a record.
func (e *Exam) settle() {
	q := e.questions[e.index]
	if i, ok := e.answerIdx[q.ID]; ok {
		e.pending = e.answers[i].Chosen
		e.locked = true
		e.revisit = true
		return
	}
	e.unlock()
}

func (e *Exam) unlock() {
	e.pending = ""
	e.locked = false
	e.revisit = false
}

func (e *Exam) rebuildScore() {
	e.score = 0
	for _, rec := range e.answers {
		if rec.FirstCorrect {
			e.score++
		}
	}
}

func (e *Exam) rebuildTopics() {
	byID := make(map[string]domain.Question, len(e.questions))
	for _, q := range e.questions {
		byID[q.ID] = q
	}
	for _, rec := range e.answers {
		topic := e.topics.Resolve(byID[rec.QuestionID].Topic)
		ts := e.topicScores[topic]
		ts.Total++
		if rec.FirstCorrect {
			ts.Correct++
		}
		e.topicScores[topic] = ts
	}
}

func mergeTopic(a, b domain.TopicScore) domain.TopicScore {
	return domain.TopicScore{Correct: a.Correct + b.Correct, Total: a.Total + b.Total}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
