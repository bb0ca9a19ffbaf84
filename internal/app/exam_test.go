package app_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"exam-practice-service/internal/app"
	"exam-practice-service/internal/domain"
)

func TestCommitFirstAnswerScores(t *testing.T) {
	exam := startedExam(t, 3, 10*time.Minute)

	if _, err := exam.CommitAnswer(); !errors.Is(err, domain.ErrNoPendingChoice) {
		t.Fatalf("expected no pending choice, got %v", err)
	}
	if err := exam.Next(); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("next before commit should be rejected, got %v", err)
	}

	mustSelect(t, exam, domain.OptionA)
	correct, err := exam.CommitAnswer()
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if !correct || exam.Score() != 1 {
		t.Fatalf("expected correct answer and score 1, got correct=%v score=%d", correct, exam.Score())
	}
	if err := exam.SelectOption(domain.OptionB); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("select on locked question should be rejected, got %v", err)
	}
	if _, err := exam.CommitAnswer(); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("second commit should be rejected, got %v", err)
	}
}

func TestSelectRejectsUnknownOption(t *testing.T) {
	exam := startedExam(t, 1, time.Minute)
	if err := exam.SelectOption("E"); !errors.Is(err, domain.ErrInvalidOption) {
		t.Fatalf("expected invalid option, got %v", err)
	}
}

func TestRevisionKeepsBankedScore(t *testing.T) {
	exam := startedExam(t, 3, 10*time.Minute)

	mustSelect(t, exam, domain.OptionB) // wrong
	mustCommit(t, exam)
	mustNext(t, exam)

	if err := exam.JumpTo(0); err != nil {
		t.Fatalf("jump: %v", err)
	}
	view := exam.View()
	if !view.Locked || view.Pending != domain.OptionB {
		t.Fatalf("expected revisited question locked with prior choice, got %+v", view)
	}

	mustSelect(t, exam, domain.OptionA) // now correct
	correct, err := exam.CommitAnswer()
	if err != nil {
		t.Fatalf("revise: %v", err)
	}
	if correct {
		t.Fatalf("revision must report the banked first answer")
	}
	if exam.Score() != 0 {
		t.Fatalf("revision must not move the score, got %d", exam.Score())
	}
	answers := exam.Answers()
	if len(answers) != 1 || answers[0].Chosen != domain.OptionA {
		t.Fatalf("expected single record with revised choice, got %+v", answers)
	}
	rows := exam.Breakdown()
	if len(rows) != 1 || rows[0].Total != 1 || rows[0].Correct != 0 {
		t.Fatalf("topic counters moved on revision: %+v", rows)
	}
}

func TestNextOnLastQuestionOpensReview(t *testing.T) {
	exam := startedExam(t, 2, 10*time.Minute)

	mustSelect(t, exam, domain.OptionA)
	mustCommit(t, exam)
	mustNext(t, exam)
	mustSelect(t, exam, domain.OptionC)
	mustCommit(t, exam)
	mustNext(t, exam)

	if exam.Phase() != app.PhaseReviewPending {
		t.Fatalf("expected review, got %s", exam.Phase())
	}
	if err := exam.Submit(); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if exam.Phase() != app.PhaseFinished {
		t.Fatalf("expected finished, got %s", exam.Phase())
	}
}

func TestReviewTracksUnanswered(t *testing.T) {
	exam := startedExam(t, 4, 10*time.Minute)

	mustSelect(t, exam, domain.OptionA)
	mustCommit(t, exam)
	if err := exam.OpenReview(); err != nil {
		t.Fatalf("open review: %v", err)
	}
	if got := exam.Unanswered(); fmt.Sprint(got) != "[1 2 3]" {
		t.Fatalf("expected [1 2 3], got %v", got)
	}
	if err := exam.Submit(); err != nil {
		t.Fatalf("submit from review should be allowed: %v", err)
	}

	exam = startedExam(t, 4, 10*time.Minute)
	mustSelect(t, exam, domain.OptionA)
	mustCommit(t, exam)
	_ = exam.OpenReview()
	if err := exam.JumpTo(2); err != nil {
		t.Fatalf("jump from review: %v", err)
	}
	if exam.Phase() != app.PhaseInProgress {
		t.Fatalf("jump should close review, got %s", exam.Phase())
	}
	mustSelect(t, exam, domain.OptionD)
	mustCommit(t, exam)
	if got := exam.Unanswered(); fmt.Sprint(got) != "[1 3]" {
		t.Fatalf("expected [1 3], got %v", got)
	}
	if err := exam.JumpTo(4); !errors.Is(err, domain.ErrIndexOutOfRange) {
		t.Fatalf("expected out of range, got %v", err)
	}
}

func TestTickExpiresOnce(t *testing.T) {
	exam := startedExam(t, 3, 3*time.Second)

	if exam.Tick() || exam.Tick() {
		t.Fatalf("expired too early")
	}
	if !exam.Tick() {
		t.Fatalf("expected expiry on third tick")
	}
	if !exam.Expire() {
		t.Fatalf("expected expire to finish the exam")
	}
	if exam.Expire() || exam.Tick() {
		t.Fatalf("finished exam must not expire or tick again")
	}
	if exam.Remaining() != 0 {
		t.Fatalf("expected no time left, got %d", exam.Remaining())
	}
}

func TestRestoreOverwritesDefaults(t *testing.T) {
	exam := startedExam(t, 6, 30*time.Minute)
	stored := domain.SessionState{
		UserID:       "u1",
		CategoryID:   domain.CategoryNP3,
		CurrentIndex: 3,
		Score:        2,
		Answers: []domain.AnswerRecord{
			{QuestionID: "q0", Chosen: domain.OptionA, FirstCorrect: true},
			{QuestionID: "q1", Chosen: domain.OptionA, FirstCorrect: true},
			{QuestionID: "q2", Chosen: domain.OptionC, FirstCorrect: false},
			{QuestionID: "gone", Chosen: domain.OptionB},
		},
		TimeRemaining: 500,
		Version:       7,
	}
	if err := exam.Restore(stored, nil); err != nil {
		t.Fatalf("restore: %v", err)
	}

	snap := exam.Checkpoint(time.Now())
	if snap.CurrentIndex != 3 || snap.Score != 2 || snap.TimeRemaining != 500 {
		t.Fatalf("restore did not take the stored values: %+v", snap)
	}
	if len(snap.Answers) != 3 {
		t.Fatalf("expected unknown question dropped, got %+v", snap.Answers)
	}
	if snap.Version != 8 {
		t.Fatalf("expected version to continue from stored, got %d", snap.Version)
	}
	if got := snap.Topics[domain.TopicID("Pharmacology")]; got.Total != 3 || got.Correct != 2 {
		t.Fatalf("expected topic counters rebuilt from records, got %+v", got)
	}
}

func TestRestoreRecomputesScoreForDroppedAnswers(t *testing.T) {
	exam := startedExam(t, 4, 30*time.Minute)
	stored := domain.SessionState{
		CurrentIndex: 9,
		Score:        3,
		Answers: []domain.AnswerRecord{
			{QuestionID: "q1", Chosen: domain.OptionA, FirstCorrect: true},
			{QuestionID: "retired-1", Chosen: domain.OptionA, FirstCorrect: true},
			{QuestionID: "retired-2", Chosen: domain.OptionA, FirstCorrect: true},
		},
		Topics: map[domain.TopicID]domain.TopicScore{"Pharmacology": {Correct: 3, Total: 3}},
	}
	if err := exam.Restore(stored, nil); err != nil {
		t.Fatalf("restore: %v", err)
	}
	snap := exam.Checkpoint(time.Now())
	if snap.Score != 1 || len(snap.Answers) != 1 || snap.CurrentIndex != 3 {
		t.Fatalf("expected score rebuilt from the surviving answer, got %+v", snap)
	}
	if got := snap.Topics["Pharmacology"]; got.Correct != 1 || got.Total != 1 {
		t.Fatalf("expected topic counts rebuilt, got %+v", got)
	}
}

func TestRestoreUsesStoredQuestionSet(t *testing.T) {
	exam := startedExam(t, 3, 30*time.Minute)
	stored := makeQuestions(8)[5:]
	state := domain.SessionState{
		QuestionIDs:  []string{"q5", "q6", "q7"},
		CurrentIndex: 1,
		Score:        1,
		Answers:      []domain.AnswerRecord{{QuestionID: "q5", Chosen: domain.OptionA, FirstCorrect: true}},
	}
	if err := exam.Restore(state, stored); err != nil {
		t.Fatalf("restore: %v", err)
	}
	snap := exam.Checkpoint(time.Now())
	if len(snap.QuestionIDs) != 3 || snap.QuestionIDs[0] != "q5" || snap.QuestionIDs[2] != "q7" {
		t.Fatalf("expected the stored question order, got %v", snap.QuestionIDs)
	}
	if snap.Score != 1 || len(snap.Answers) != 1 || snap.CurrentIndex != 1 {
		t.Fatalf("expected the stored answers kept, got %+v", snap)
	}
}

func TestBreakdownPassThreshold(t *testing.T) {
	questions := makeQuestions(5)
	questions[4].Topic = ""
	exam := app.NewExam("u1", domain.CategoryNP3)
	if err := exam.Start(questions, domain.NewTopicRegistry("Pharmacology", string(domain.TopicMedSurg)), time.Minute); err != nil {
		t.Fatalf("start: %v", err)
	}
	for _, o := range []domain.Option{domain.OptionA, domain.OptionA, domain.OptionB, domain.OptionA, domain.OptionB} {
		mustSelect(t, exam, o)
		mustCommit(t, exam)
		if err := exam.Next(); err != nil {
			t.Fatalf("next: %v", err)
		}
	}

	rows := exam.Breakdown()
	if len(rows) != 2 {
		t.Fatalf("expected 2 topics, got %+v", rows)
	}
	general, pharma := rows[0], rows[1]
	if general.Topic != domain.TopicGeneral || general.Total != 1 || general.Passed {
		t.Fatalf("unexpected general row %+v", general)
	}
	if pharma.Correct != 3 || pharma.Total != 4 || pharma.Percent != 75 || !pharma.Passed {
		t.Fatalf("expected 3/4 = 75%% pass, got %+v", pharma)
	}
	if exam.Clinical() != nil {
		t.Fatalf("clinical aggregate should be absent")
	}
}

func TestStartWithoutQuestionsFails(t *testing.T) {
	exam := app.NewExam("u1", domain.CategoryNP1)
	if err := exam.Start(nil, nil, time.Minute); !errors.Is(err, domain.ErrNoQuestions) {
		t.Fatalf("expected no questions, got %v", err)
	}
	if exam.Phase() != app.PhaseFailed {
		t.Fatalf("expected failed, got %s", exam.Phase())
	}
	if err := exam.SelectOption(domain.OptionA); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("failed exam must reject commands, got %v", err)
	}
}

func startedExam(t *testing.T, n int, budget time.Duration) *app.Exam {
	t.Helper()
	exam := app.NewExam("u1", domain.CategoryNP3)
	if err := exam.Start(makeQuestions(n), domain.NewTopicRegistry("Pharmacology"), budget); err != nil {
		t.Fatalf("start: %v", err)
	}
	return exam
}

// makeQuestions returns n Pharmacology questions whose answer is A.
func makeQuestions(n int) []domain.Question {
	out := make([]domain.Question, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, domain.Question{
			ID:       fmt.Sprintf("q%d", i),
			Category: domain.CategoryNP3,
			Topic:    "Pharmacology",
			Prompt:   fmt.Sprintf("Question %d", i),
			Choices: map[domain.Option]string{
				domain.OptionA: "right",
				domain.OptionB: "wrong",
				domain.OptionC: "wrong",
				domain.OptionD: "wrong",
			},
			Correct:     domain.OptionA,
			Explanation: "A is right.",
		})
	}
	return out
}

func mustSelect(t *testing.T, exam *app.Exam, o domain.Option) {
	t.Helper()
	if err := exam.SelectOption(o); err != nil {
		t.Fatalf("select %s: %v", o, err)
	}
}

func mustCommit(t *testing.T, exam *app.Exam) {
	t.Helper()
	if _, err := exam.CommitAnswer(); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

func mustNext(t *testing.T, exam *app.Exam) {
	t.Helper()
	if err := exam.Next(); err != nil {
		t.Fatalf("next: %v", err)
	}
}
