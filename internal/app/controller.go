package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"exam-practice-service/internal/domain"
	"github.com/google/uuid"
)

// QuestionSource supplies a bounded, randomized question set per category.
// FetchByIDs rebuilds a stored set in order, skipping IDs no longer in the bank.
type QuestionSource interface {
	FetchQuestions(ctx context.Context, category domain.Category, limit int) ([]domain.Question, error)
	FetchByIDs(ctx context.Context, category domain.Category, ids []string) ([]domain.Question, error)
	Topics(ctx context.Context) ([]string, error)
}

// ProgressStore keeps the in-progress snapshot per (user, category).
type ProgressStore interface {
	GetSession(ctx context.Context, userID string, category domain.Category) (domain.SessionState, error)
	UpsertSession(ctx context.Context, state domain.SessionState) error
	DeleteSession(ctx context.Context, userID string, category domain.Category) error
}

// ResultStore keeps the append-only exam history.
type ResultStore interface {
	AppendResult(ctx context.Context, result domain.ExamResult) error
	ListRecentResults(ctx context.Context, userID string, limit int) ([]domain.ExamResult, error)
	TotalScore(ctx context.Context, userID string) (int, error)
}

// SessionStore combines progress and history persistence.
type SessionStore interface {
	ProgressStore
	ResultStore
}

// StreakService records daily study activity and returns the new streak.
// changed is false when the day was already counted.
type StreakService interface {
	RecordActivity(ctx context.Context, userID string) (streak int, changed bool, err error)
}

// ResumePrompt asks the candidate whether to continue a stored attempt.
type ResumePrompt interface {
	ConfirmResume(ctx context.Context, state domain.SessionState) (bool, error)
}

// ResumePromptFunc adapts a function to ResumePrompt.
type ResumePromptFunc func(ctx context.Context, state domain.SessionState) (bool, error)

func (f ResumePromptFunc) ConfirmResume(ctx context.Context, state domain.SessionState) (bool, error) {
	return f(ctx, state)
}

// Ticker delivers the one-second countdown.
type Ticker interface {
	Chan() <-chan time.Time
	Stop()
}

type clockTicker struct{ t *time.Ticker }

func (t clockTicker) Chan() <-chan time.Time { return t.t.C }
func (t clockTicker) Stop()                  { t.t.Stop() }

func newClockTicker(d time.Duration) Ticker {
	return clockTicker{t: time.NewTicker(d)}
}

// Settings fixes who is sitting which exam and under what entitlement.
type Settings struct {
	UserID     string
	Category   domain.Category
	Limit      int
	Budget     time.Duration
	Milestones []int
}

// ControllerOption customizes a Controller.
type ControllerOption func(*Controller)

// WithClock overrides the wall clock used for timestamps.
func WithClock(now func() time.Time) ControllerOption {
	return func(c *Controller) { c.now = now }
}

// WithTicker overrides the countdown ticker, mainly for tests.
func WithTicker(newTicker func(time.Duration) Ticker) ControllerOption {
	return func(c *Controller) { c.newTicker = newTicker }
}

// WithIDs overrides result ID generation.
func WithIDs(newID func() string) ControllerOption {
	return func(c *Controller) { c.newID = newID }
}

type command struct {
	fn    func(e *Exam) (save bool, err error)
	reply chan error
}

// Controller owns one timed exam attempt. Commands and ticks are serialized
// on a single event loop; autosaves go through one coalescing writer.
type Controller struct {
	settings  Settings
	questions QuestionSource
	store     SessionStore
	streaks   StreakService
	prompt    ResumePrompt
	now       func() time.Time
	newTicker func(time.Duration) Ticker
	newID     func() string

	exam          *Exam
	resumeChecked bool
	resumed       bool

	startOnce sync.Once
	started   atomic.Bool
	stopOnce  sync.Once
	stop      chan struct{}
	done      chan struct{}
	cmds      chan command
	saves     chan domain.SessionState
	savesDone chan struct{}
	degraded  atomic.Bool

	mu          sync.RWMutex
	last        View
	finalErr    error
	closed      bool
	subscribers map[chan View]struct{}
}

// NewController builds a controller in the Loading phase.
func NewController(settings Settings, questions QuestionSource, store SessionStore, streaks StreakService, prompt ResumePrompt, opts ...ControllerOption) *Controller {
	c := &Controller{
		settings:    settings,
		questions:   questions,
		store:       store,
		streaks:     streaks,
		prompt:      prompt,
		now:         time.Now,
		newTicker:   newClockTicker,
		newID:       uuid.NewString,
		exam:        NewExam(settings.UserID, settings.Category),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
		cmds:        make(chan command),
		saves:       make(chan domain.SessionState, 1),
		savesDone:   make(chan struct{}),
		subscribers: make(map[chan View]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.last = c.exam.View()
	return c
}

// Start fetches the questions, offers resumption and starts the countdown.
// It runs at most once; later calls return ErrInvalidState.
func (c *Controller) Start(ctx context.Context) error {
	err := domain.ErrInvalidState
	c.startOnce.Do(func() {
		err = c.load(ctx)
		if err != nil {
			c.publish()
			c.closeSubscribers()
			close(c.savesDone)
			close(c.done)
			return
		}
		c.publish()
		c.started.Store(true)
		go c.saveLoop(ctx)
		go c.loop(ctx, c.newTicker(time.Second))
	})
	return err
}

func (c *Controller) load(ctx context.Context) error {
	s := c.settings
	questions, err := c.questions.FetchQuestions(ctx, s.Category, s.Limit)
	if err != nil {
		if errors.Is(err, domain.ErrNoQuestions) {
			c.exam.Fail(domain.ErrNoQuestions)
			return domain.ErrNoQuestions
		}
		wrapped := fmt.Errorf("%w: %w", domain.ErrFetchFailure, err)
		c.exam.Fail(wrapped)
		return wrapped
	}

	topics, err := c.questions.Topics(ctx)
	if err != nil {
		log.Printf("topic registry unavailable, using %s: %v", domain.TopicGeneral, err)
	}
	if err := c.exam.Start(questions, domain.NewTopicRegistry(topics...), s.Budget); err != nil {
		return err
	}
	c.checkResume(ctx)
	return nil
}

func (c *Controller) checkResume(ctx context.Context) {
	if c.resumeChecked {
		return
	}
	c.resumeChecked = true

	state, err := c.store.GetSession(ctx, c.settings.UserID, c.settings.Category)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return
	}
	if err != nil {
		log.Printf("resume lookup failed for %s/%s: %v", c.settings.UserID, c.settings.Category, err)
		return
	}

	accept := false
	if c.prompt != nil {
		accept, err = c.prompt.ConfirmResume(ctx, state)
		if err != nil {
			log.Printf("resume prompt failed for %s/%s: %v", c.settings.UserID, c.settings.Category, err)
			accept = false
		}
	}
	if !accept {
		c.exam.Supersede(state)
		return
	}
	if err := c.exam.Restore(state, c.storedQuestions(ctx, state)); err != nil {
		log.Printf("restore failed for %s/%s: %v", c.settings.UserID, c.settings.Category, err)
		return
	}
	c.resumed = true
}

// storedQuestions reloads the question set a snapshot was taken against. A nil
// result keeps the freshly sampled set.
func (c *Controller) storedQuestions(ctx context.Context, state domain.SessionState) []domain.Question {
	if len(state.QuestionIDs) == 0 {
		return nil
	}
	questions, err := c.questions.FetchByIDs(ctx, c.settings.Category, state.QuestionIDs)
	if err != nil {
		log.Printf("reloading stored questions for %s/%s failed: %v", c.settings.UserID, c.settings.Category, err)
		return nil
	}
	if len(questions) < len(state.QuestionIDs) {
		log.Printf("%d stored questions left the %s bank", len(state.QuestionIDs)-len(questions), c.settings.Category)
	}
	if len(questions) == 0 {
		return nil
	}
	return questions
}

func (c *Controller) loop(ctx context.Context, ticker Ticker) {
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			c.halt()
			return
		case <-c.stop:
			c.halt()
			return
		case <-ticker.Chan():
			if c.exam.Tick() {
				c.exam.Expire()
				c.finish(ctx)
				return
			}
			c.persist()
			c.publish()
		case cmd := <-c.cmds:
			save, err := cmd.fn(c.exam)
			if err == nil && c.exam.Phase() == PhaseFinished {
				cmd.reply <- c.finish(ctx)
				return
			}
			if err == nil && save {
				c.persist()
			}
			c.publish()
			cmd.reply <- err
		}
	}
}

// halt tears the loop down without finalizing; the stored snapshot stays
// resumable.
func (c *Controller) halt() {
	close(c.saves)
	<-c.savesDone
	c.closeSubscribers()
	close(c.done)
}

// finish runs the best-effort finalization. Pending autosaves are flushed
// first so no snapshot lands after the delete.
func (c *Controller) finish(ctx context.Context) error {
	close(c.saves)
	<-c.savesDone

	s := c.settings
	fe := &domain.FinalizationError{}

	streak, advanced := 0, false
	if c.streaks != nil {
		n, changed, err := c.streaks.RecordActivity(ctx, s.UserID)
		if err != nil {
			fe.Streak = fmt.Errorf("%w: record activity: %w", domain.ErrPersistence, err)
		} else {
			streak, advanced = n, changed
		}
	}

	result := c.exam.Result(c.newID(), c.now())
	if err := c.store.AppendResult(ctx, result); err != nil {
		fe.Result = fmt.Errorf("%w: append result: %w", domain.ErrPersistence, err)
	}
	if err := c.store.DeleteSession(ctx, s.UserID, s.Category); err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
		fe.Delete = fmt.Errorf("%w: delete session: %w", domain.ErrPersistence, err)
	}

	view := c.exam.View()
	view.Resumed = c.resumed
	view.Result = &result
	view.Streak = streak
	// celebrate only the attempt that moved the streak onto the milestone
	view.Milestone = advanced && isMilestone(streak, s.Milestones)

	var finalErr error
	if fe.Failed() {
		finalErr = fe
		view.Error = fe.Error()
		log.Printf("exam %s/%s finished with errors: %v", s.UserID, s.Category, fe)
	}

	c.mu.Lock()
	c.last = view
	c.finalErr = finalErr
	c.broadcastLocked(view)
	c.mu.Unlock()

	c.closeSubscribers()
	close(c.done)
	return finalErr
}

func (c *Controller) persist() {
	snap := c.exam.Checkpoint(c.now())
	select {
	case c.saves <- snap:
	default:
		// Only the loop sends, so after draining the stale snapshot the
		// buffer has room.
		select {
		case <-c.saves:
		default:
		}
		c.saves <- snap
	}
}

func (c *Controller) saveLoop(ctx context.Context) {
	defer close(c.savesDone)
	for snap := range c.saves {
		err := c.store.UpsertSession(ctx, snap)
		if err != nil {
			if !c.degraded.Swap(true) {
				log.Printf("autosave failed for %s/%s, continuing without persistence: %v", snap.UserID, snap.CategoryID, err)
			}
			continue
		}
		if c.degraded.Swap(false) {
			log.Printf("autosave recovered for %s/%s", snap.UserID, snap.CategoryID)
		}
	}
}

func (c *Controller) do(ctx context.Context, fn func(e *Exam) (bool, error)) error {
	if !c.started.Load() {
		select {
		case <-c.done:
			return c.closedErr()
		default:
			return domain.ErrInvalidState
		}
	}
	cmd := command{fn: fn, reply: make(chan error, 1)}
	select {
	case c.cmds <- cmd:
	case <-c.done:
		return c.closedErr()
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) closedErr() error {
	switch c.View().Phase {
	case PhaseFinished, PhaseFailed:
		return domain.ErrInvalidState
	}
	return domain.ErrControllerClosed
}

// SelectOption sets the pending choice for the current question.
func (c *Controller) SelectOption(ctx context.Context, o domain.Option) error {
	return c.do(ctx, func(e *Exam) (bool, error) {
		return false, e.SelectOption(o)
	})
}

// CommitAnswer locks the current question and reports the banked correctness.
func (c *Controller) CommitAnswer(ctx context.Context) (bool, error) {
	var correct bool
	err := c.do(ctx, func(e *Exam) (bool, error) {
		var err error
		correct, err = e.CommitAnswer()
		return err == nil, err
	})
	return correct, err
}

// Next advances or, from the last question, opens the review.
func (c *Controller) Next(ctx context.Context) error {
	return c.do(ctx, func(e *Exam) (bool, error) {
		err := e.Next()
		return err == nil, err
	})
}

// JumpTo moves to the question at index.
func (c *Controller) JumpTo(ctx context.Context, index int) error {
	return c.do(ctx, func(e *Exam) (bool, error) {
		err := e.JumpTo(index)
		return err == nil, err
	})
}

// OpenReview shows the answered/unanswered summary.
func (c *Controller) OpenReview(ctx context.Context) error {
	return c.do(ctx, func(e *Exam) (bool, error) {
		return false, e.OpenReview()
	})
}

// Submit confirms the review. A returned *domain.FinalizationError means the
// exam finished but some finalization step failed.
func (c *Controller) Submit(ctx context.Context) error {
	return c.do(ctx, func(e *Exam) (bool, error) {
		return false, e.Submit()
	})
}

// Sync waits until every earlier event has been applied and returns the view.
func (c *Controller) Sync(ctx context.Context) (View, error) {
	err := c.do(ctx, func(*Exam) (bool, error) { return false, nil })
	if errors.Is(err, domain.ErrInvalidState) || errors.Is(err, domain.ErrControllerClosed) {
		err = nil
	}
	return c.View(), err
}

// Dispose stops the countdown and the event loop without finalizing.
func (c *Controller) Dispose() {
	c.stopOnce.Do(func() { close(c.stop) })
	c.startOnce.Do(func() {
		c.closeSubscribers()
		close(c.savesDone)
		close(c.done)
	})
	<-c.done
}

// Done is closed once the controller has finished, failed or been disposed.
func (c *Controller) Done() <-chan struct{} { return c.done }

// View returns the latest published snapshot.
func (c *Controller) View() View {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last
}

// Finalization returns the finalization failure, if any.
func (c *Controller) Finalization() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.finalErr
}

// Settings returns the controller's fixed parameters.
func (c *Controller) Settings() Settings { return c.settings }

// Subscribe returns a channel of views starting with the current one. The
// caller must invoke cancel to avoid leaks.
func (c *Controller) Subscribe() (<-chan View, func()) {
	ch := make(chan View, 8)

	c.mu.Lock()
	ch <- c.last
	if c.closed {
		close(ch)
		c.mu.Unlock()
		return ch, func() {}
	}
	c.subscribers[ch] = struct{}{}
	c.mu.Unlock()

	cancel := func() {
		c.mu.Lock()
		if _, ok := c.subscribers[ch]; ok {
			delete(c.subscribers, ch)
			close(ch)
		}
		c.mu.Unlock()
	}
	return ch, cancel
}

func (c *Controller) publish() {
	view := c.exam.View()
	view.Resumed = c.resumed
	c.mu.Lock()
	c.last = view
	c.broadcastLocked(view)
	c.mu.Unlock()
}

func (c *Controller) broadcastLocked(v View) {
	for ch := range c.subscribers {
		select {
		case ch <- v:
		default:
			// drop the oldest update for slow readers
			select {
			case <-ch:
			default:
			}
			ch <- v
		}
	}
}

func (c *Controller) closeSubscribers() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for ch := range c.subscribers {
		delete(c.subscribers, ch)
		close(ch)
	}
}

func isMilestone(streak int, milestones []int) bool {
	for _, m := range milestones {
		if streak == m {
			return true
		}
	}
	return false
}
