package redis

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"math/rand"
	"sync"
	"time"

	"exam-practice-service/internal/domain"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// QuestionLoader fetches a category's question bank from a backing store (e.g., Postgres).
type QuestionLoader interface {
	LoadQuestions(ctx context.Context, category domain.Category) ([]domain.Question, error)
	LoadTopics(ctx context.Context) ([]string, error)
}

// QuestionCache caches whole question banks in Redis and falls back to a loader on cache miss.
// Banks are stored as:  SET exam:bank:{category} <json questions>
// Topics are stored as: SET exam:topics <json topic names>
type QuestionCache struct {
	client *redis.Client
	loader QuestionLoader
	ttl    time.Duration
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewQuestionCache(client *redis.Client, loader QuestionLoader, ttl time.Duration) *QuestionCache {
	return &QuestionCache{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// FetchQuestions samples up to limit questions from the cached bank.
func (c *QuestionCache) FetchQuestions(ctx context.Context, category domain.Category, limit int) ([]domain.Question, error) {
	bank, err := c.bank(ctx, category)
	if err != nil {
		return nil, err
	}
	if len(bank) == 0 {
		return nil, domain.ErrNoQuestions
	}
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return domain.Sample(bank, limit, c.rnd), nil
}

// FetchByIDs rebuilds a stored question set from the cached bank.
func (c *QuestionCache) FetchByIDs(ctx context.Context, category domain.Category, ids []string) ([]domain.Question, error) {
	bank, err := c.bank(ctx, category)
	if err != nil {
		return nil, err
	}
	return domain.PickByIDs(bank, ids), nil
}

// Topics returns the topic registry names.
func (c *QuestionCache) Topics(ctx context.Context) ([]string, error) {
	var topics []string
	if ok := c.readJSON(ctx, topicsKey, &topics); ok {
		return topics, nil
	}
	result, err, _ := c.sf.Do(topicsKey, func() (interface{}, error) {
		topics, err := c.loader.LoadTopics(ctx)
		if err != nil {
			return nil, err
		}
		c.writeJSON(ctx, topicsKey, topics)
		return topics, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]string), nil
}

func (c *QuestionCache) bank(ctx context.Context, category domain.Category) ([]domain.Question, error) {
	key := bankKey(category)
	var bank []domain.Question
	if ok := c.readJSON(ctx, key, &bank); ok {
		return bank, nil
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		var bank []domain.Question
		if ok := c.readJSON(ctx, key, &bank); ok {
			return bank, nil
		}
		bank, err := c.loader.LoadQuestions(ctx, category)
		if err != nil {
			return nil, err
		}
		bank = domain.ValidQuestions(bank)
		if len(bank) > 0 {
			c.writeJSON(ctx, key, bank)
		}
		return bank, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

func (c *QuestionCache) readJSON(ctx context.Context, key string, v interface{}) bool {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Printf("question cache read %s failed: %v", key, err)
		}
		return false
	}
	if err := json.Unmarshal(raw, v); err != nil {
		log.Printf("question cache entry %s is corrupt: %v", key, err)
		return false
	}
	return true
}

// writeJSON is best-effort; a failed write only costs another load.
func (c *QuestionCache) writeJSON(ctx context.Context, key string, v interface{}) {
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, raw, c.ttlWithJitter()).Err(); err != nil {
		log.Printf("question cache write %s failed: %v", key, err)
	}
}

const topicsKey = "exam:topics"

func bankKey(category domain.Category) string {
	return "exam:bank:" + string(category)
}

func (c *QuestionCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
