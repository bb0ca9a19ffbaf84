package memory

import (
	"context"
	"sync"
	"time"

	"exam-practice-service/internal/domain"
)

// StreakService keeps daily study streaks in memory.
type StreakService struct {
	mu      sync.Mutex
	now     func() time.Time
	streaks map[string]streak
}

type streak struct {
	count int
	last  time.Time
}

func NewStreakService(now func() time.Time) *StreakService {
	if now == nil {
		now = time.Now
	}
	return &StreakService{now: now, streaks: make(map[string]streak)}
}

func (s *StreakService) RecordActivity(_ context.Context, userID string) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	cur := s.streaks[userID]
	count, changed := domain.NextStreak(cur.last, cur.count, now)
	s.streaks[userID] = streak{count: count, last: now}
	return count, changed, nil
}

// Entitlements is a fixed set of premium users.
type Entitlements struct {
	premium map[string]struct{}
}

func NewEntitlements(premiumUsers ...string) *Entitlements {
	e := &Entitlements{premium: make(map[string]struct{}, len(premiumUsers))}
	for _, u := range premiumUsers {
		e.premium[u] = struct{}{}
	}
	return e
}

func (e *Entitlements) IsPremium(_ context.Context, userID string) (bool, error) {
	_, ok := e.premium[userID]
	return ok, nil
}
