package app

import (
	"context"
	"log"
	"time"

	"exam-practice-service/internal/domain"
)

// ControllerRegistry tracks the running controllers (in-memory, Redis, etc).
type ControllerRegistry interface {
	// Put stores c under key and returns the controller it replaced, if any.
	Put(key string, c *Controller) *Controller
	Get(key string) (*Controller, bool)
	// DeleteIf removes key only while it still maps to c.
	DeleteIf(key string, c *Controller)
}

// EntitlementSource reports whether a user has premium access.
type EntitlementSource interface {
	IsPremium(ctx context.Context, userID string) (bool, error)
}

// TierPolicy sizes an exam for one entitlement tier.
type TierPolicy struct {
	Limit  int
	Budget time.Duration
}

// Policy holds the exam parameters taken from configuration.
type Policy struct {
	Base         TierPolicy
	Premium      TierPolicy
	Milestones   []int
	HistoryLimit int
}

// For returns the policy of the given tier.
func (p Policy) For(tier domain.Tier) TierPolicy {
	if tier == domain.TierPremium {
		return p.Premium
	}
	return p.Base
}

// ExamService contains the exam use cases exposed to the transports.
type ExamService struct {
	questions    QuestionSource
	store        SessionStore
	streaks      StreakService
	entitlements EntitlementSource
	registry     ControllerRegistry
	policy       Policy
	opts         []ControllerOption
}

func NewExamService(questions QuestionSource, store SessionStore, streaks StreakService, entitlements EntitlementSource, registry ControllerRegistry, policy Policy, opts ...ControllerOption) *ExamService {
	return &ExamService{
		questions:    questions,
		store:        store,
		streaks:      streaks,
		entitlements: entitlements,
		registry:     registry,
		policy:       policy,
		opts:         opts,
	}
}

// ControllerKey identifies the live attempt of a user in a category.
func ControllerKey(userID string, category domain.Category) string {
	return userID + ":" + string(category)
}

// Start begins a session for (user, category). ctx bounds the loading phase
// and the controller's lifetime. A controller already running for the same
// pair is disposed first.
func (s *ExamService) Start(ctx context.Context, userID, category string, prompt ResumePrompt) (*Controller, error) {
	cat, err := domain.ParseCategory(category)
	if err != nil {
		return nil, err
	}
	p := s.policy.For(s.tier(ctx, userID))

	c := NewController(Settings{
		UserID:     userID,
		Category:   cat,
		Limit:      p.Limit,
		Budget:     p.Budget,
		Milestones: s.policy.Milestones,
	}, s.questions, s.store, s.streaks, prompt, s.opts...)

	key := ControllerKey(userID, cat)
	if prev := s.registry.Put(key, c); prev != nil {
		prev.Dispose()
	}
	if err := c.Start(ctx); err != nil {
		s.registry.DeleteIf(key, c)
		return c, err
	}
	go func() {
		<-c.Done()
		s.registry.DeleteIf(key, c)
	}()
	return c, nil
}

// Active returns the running controller for (user, category).
func (s *ExamService) Active(userID string, category domain.Category) (*Controller, bool) {
	return s.registry.Get(ControllerKey(userID, category))
}

// Progress returns the stored in-progress snapshot, if any.
func (s *ExamService) Progress(ctx context.Context, userID, category string) (domain.SessionState, error) {
	cat, err := domain.ParseCategory(category)
	if err != nil {
		return domain.SessionState{}, err
	}
	return s.store.GetSession(ctx, userID, cat)
}

// HistoryEntry is a completed attempt with its pass tag.
type HistoryEntry struct {
	domain.ExamResult
	Percent int  `json:"percent"`
	Passed  bool `json:"passed"`
}

// History is the dashboard view of a user's results.
type History struct {
	UserID     string         `json:"userId"`
	Results    []HistoryEntry `json:"results"`
	TotalScore int            `json:"totalScore"`
	Rank       domain.Rank    `json:"rank"`
}

// History lists the most recent results; limit <= 0 uses the configured one.
func (s *ExamService) History(ctx context.Context, userID string, limit int) (History, error) {
	if limit <= 0 {
		limit = s.policy.HistoryLimit
	}
	results, err := s.store.ListRecentResults(ctx, userID, limit)
	if err != nil {
		return History{}, err
	}
	total, err := s.store.TotalScore(ctx, userID)
	if err != nil {
		return History{}, err
	}

	entries := make([]HistoryEntry, 0, len(results))
	for _, r := range results {
		entries = append(entries, HistoryEntry{ExamResult: r, Percent: r.Percent(), Passed: r.Passed()})
	}
	return History{
		UserID:     userID,
		Results:    entries,
		TotalScore: total,
		Rank:       domain.RankFor(total),
	}, nil
}

func (s *ExamService) tier(ctx context.Context, userID string) domain.Tier {
	if s.entitlements == nil {
		return domain.TierBase
	}
	premium, err := s.entitlements.IsPremium(ctx, userID)
	if err != nil {
		log.Printf("entitlement lookup failed for %s, using base tier: %v", userID, err)
		return domain.TierBase
	}
	if premium {
		return domain.TierPremium
	}
	return domain.TierBase
}
