package quiz

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-quiz/internal/config"
	"github.com/stemsi/exstem-quiz/internal/model"
	"golang.org/x/sync/singleflight"
)

// QuestionLoader fetches the questions of a test from the upstream.
type QuestionLoader interface {
	Questions(ctx context.Context, token string) ([]model.Question, error)
}

// QuestionCache keeps each test's question list in Redis, keyed by token,
// and collapses concurrent misses for the same token into one upstream call.
type QuestionCache struct {
	rdb    *redis.Client
	loader QuestionLoader
	ttl    time.Duration
	sf     singleflight.Group
	log    zerolog.Logger

	rndMu sync.Mutex
	rnd   *rand.Rand
}

// NewQuestionCache creates a QuestionCache. A non-positive ttl stores entries
// without expiry.
func NewQuestionCache(rdb *redis.Client, loader QuestionLoader, ttl time.Duration, log zerolog.Logger) *QuestionCache {
	return &QuestionCache{
		rdb:    rdb,
		loader: loader,
		ttl:    ttl,
		log:    log.With().Str("component", "question_cache").Logger(),
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Get returns the questions for token, loading them on a miss. A Redis
// failure degrades to a direct upstream load.
func (c *QuestionCache) Get(ctx context.Context, token string) ([]model.Question, error) {
	if qs, ok := c.lookup(ctx, token); ok {
		return qs, nil
	}

	result, err, _ := c.sf.Do(token, func() (interface{}, error) {
		// Another caller may have filled it while we waited.
		if qs, ok := c.lookup(ctx, token); ok {
			return qs, nil
		}

		qs, err := c.loader.Questions(ctx, token)
		if err != nil {
			return nil, err
		}

		data, err := json.Marshal(qs)
		if err == nil {
			if err := c.rdb.Set(ctx, config.CacheKey.QuestionsKey(token), data, c.ttlWithJitter()).Err(); err != nil {
				c.log.Warn().Err(err).Str("token", token).Msg("Failed to cache questions")
			}
		}
		return qs, nil
	})
	if err != nil {
		return nil, err
	}
	return cloneQuestions(result.([]model.Question)), nil
}

// Invalidate drops the cached entry for token.
func (c *QuestionCache) Invalidate(ctx context.Context, token string) error {
	return c.rdb.Del(ctx, config.CacheKey.QuestionsKey(token)).Err()
}

func (c *QuestionCache) lookup(ctx context.Context, token string) ([]model.Question, bool) {
	raw, err := c.rdb.Get(ctx, config.CacheKey.QuestionsKey(token)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn().Err(err).Str("token", token).Msg("Question cache read failed")
		}
		return nil, false
	}

	var qs []model.Question
	if err := json.Unmarshal(raw, &qs); err != nil {
		c.log.Warn().Err(err).Str("token", token).Msg("Discarding corrupt cached questions")
		return nil, false
	}
	return qs, true
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

// cloneQuestions gives every singleflight waiter its own slice.
func cloneQuestions(qs []model.Question) []model.Question {
	out := make([]model.Question, len(qs))
	for i, q := range qs {
		q.Answers = append([]model.Answer(nil), q.Answers...)
		out[i] = q
	}
	return out
}
