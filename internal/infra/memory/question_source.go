package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"exam-practice-service/internal/domain"
	"golang.org/x/sync/singleflight"
)

// QuestionLoader fetches a category's question bank from a backing store.
type QuestionLoader interface {
	LoadQuestions(ctx context.Context, category domain.Category) ([]domain.Question, error)
	LoadTopics(ctx context.Context) ([]string, error)
}

// QuestionSource caches question banks with TTL and samples exams from them.
type QuestionSource struct {
	loader QuestionLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand

	mu    sync.RWMutex
	cache map[domain.Category]cachedBank
}

type cachedBank struct {
	questions []domain.Question
	expiresAt time.Time
}

func NewQuestionSource(loader QuestionLoader, ttl time.Duration) *QuestionSource {
	return &QuestionSource{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[domain.Category]cachedBank),
	}
}

// FetchQuestions returns up to limit random questions of the category.
func (s *QuestionSource) FetchQuestions(ctx context.Context, category domain.Category, limit int) ([]domain.Question, error) {
	bank, err := s.bank(ctx, category)
	if err != nil {
		return nil, err
	}
	if len(bank) == 0 {
		return nil, domain.ErrNoQuestions
	}
	s.rndMu.Lock()
	defer s.rndMu.Unlock()
	return domain.Sample(bank, limit, s.rnd), nil
}

// FetchByIDs returns the named questions in the given order, skipping IDs
// that left the bank.
func (s *QuestionSource) FetchByIDs(ctx context.Context, category domain.Category, ids []string) ([]domain.Question, error) {
	bank, err := s.bank(ctx, category)
	if err != nil {
		return nil, err
	}
	return domain.PickByIDs(bank, ids), nil
}

// Topics returns the topic registry of the loader.
func (s *QuestionSource) Topics(ctx context.Context) ([]string, error) {
	return s.loader.LoadTopics(ctx)
}

func (s *QuestionSource) bank(ctx context.Context, category domain.Category) ([]domain.Question, error) {
	now := s.clock()

	s.mu.RLock()
	if entry, ok := s.cache[category]; ok && entry.expiresAt.After(now) {
		s.mu.RUnlock()
		return entry.questions, nil
	}
	s.mu.RUnlock()

	result, err, _ := s.sf.Do(string(category), func() (interface{}, error) {
		now := s.clock()
		s.mu.RLock()
		if entry, ok := s.cache[category]; ok && entry.expiresAt.After(now) {
			s.mu.RUnlock()
			return entry.questions, nil
		}
		s.mu.RUnlock()

		loaded, err := s.loader.LoadQuestions(ctx, category)
		if err != nil {
			return nil, err
		}
		questions := domain.ValidQuestions(loaded)

		s.mu.Lock()
		s.cache[category] = cachedBank{
			questions: questions,
			expiresAt: now.Add(s.ttlWithJitter()),
		}
		s.mu.Unlock()
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

func (s *QuestionSource) ttlWithJitter() time.Duration {
	if s.ttl <= 0 {
		return 0
	}
	s.rndMu.Lock()
	defer s.rndMu.Unlock()
	// add up to 10% jitter to spread expirations
	jitterMax := int64(s.ttl) / 10
	return s.ttl + time.Duration(s.rnd.Int63n(jitterMax+1))
}

// StaticQuestionLoader is a loader backed by an in-memory map (useful for tests/demos).
type StaticQuestionLoader struct {
	banks  map[domain.Category][]domain.Question
	topics []string
}

// NewStaticQuestionLoader builds a loader whose topic registry is every topic
// used by the banks plus the extra ones given.
func NewStaticQuestionLoader(banks map[domain.Category][]domain.Question, extraTopics ...string) *StaticQuestionLoader {
	var all []domain.Question
	for _, bank := range banks {
		all = append(all, bank...)
	}
	return &StaticQuestionLoader{
		banks:  banks,
		topics: append(domain.TopicsOf(all), extraTopics...),
	}
}

func (l *StaticQuestionLoader) LoadQuestions(_ context.Context, category domain.Category) ([]domain.Question, error) {
	return l.banks[category], nil
}

func (l *StaticQuestionLoader) LoadTopics(context.Context) ([]string, error) {
	return l.topics, nil
}
