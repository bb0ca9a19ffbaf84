package memory

import (
	"context"
	"sort"
	"sync"

	"exam-practice-service/internal/domain"
)

// SessionStore is an in-memory implementation of app.SessionStore.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]domain.SessionState
	results  map[string][]domain.ExamResult
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]domain.SessionState),
		results:  make(map[string][]domain.ExamResult),
	}
}

func (s *SessionStore) GetSession(_ context.Context, userID string, category domain.Category) (domain.SessionState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.sessions[sessionKey(userID, category)]
	if !ok {
		return domain.SessionState{}, domain.ErrSessionNotFound
	}
	return cloneState(state), nil
}

// UpsertSession replaces the stored snapshot unless it holds a newer version.
func (s *SessionStore) UpsertSession(_ context.Context, state domain.SessionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := sessionKey(state.UserID, state.CategoryID)
	if current, ok := s.sessions[key]; ok && current.Version >= state.Version {
		return domain.ErrStaleSession
	}
	s.sessions[key] = cloneState(state)
	return nil
}

func (s *SessionStore) DeleteSession(_ context.Context, userID string, category domain.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionKey(userID, category))
	return nil
}

func (s *SessionStore) AppendResult(_ context.Context, result domain.ExamResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[result.UserID] = append(s.results[result.UserID], result)
	return nil
}

// ListRecentResults returns the newest results first.
func (s *SessionStore) ListRecentResults(_ context.Context, userID string, limit int) ([]domain.ExamResult, error) {
	s.mu.RLock()
	out := make([]domain.ExamResult, len(s.results[userID]))
	copy(out, s.results[userID])
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *SessionStore) TotalScore(_ context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0
	for _, r := range s.results[userID] {
		total += r.Score
	}
	return total, nil
}

func sessionKey(userID string, category domain.Category) string {
	return userID + ":" + string(category)
}

func cloneState(s domain.SessionState) domain.SessionState {
	out := s
	out.QuestionIDs = append([]string(nil), s.QuestionIDs...)
	out.Answers = append([]domain.AnswerRecord(nil), s.Answers...)
	if s.Topics != nil {
		out.Topics = make(map[domain.TopicID]domain.TopicScore, len(s.Topics))
		for k, v := range s.Topics {
			out.Topics[k] = v
		}
	}
	return out
}
