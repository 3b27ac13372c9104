package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-quiz/internal/config"
	"github.com/stemsi/exstem-quiz/internal/model"
	"github.com/stemsi/exstem-quiz/internal/repository"
)

const (
	BatchSize    = 50
	BatchTimeout = 2 * time.Second
	PollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis
)

// CheatWriter persists cheat logs.
type CheatWriter interface {
	InsertBatch(ctx context.Context, batch []*model.CheatLog) error
	Insert(ctx context.Context, l *model.CheatLog) error
}

// CheatWorker drains the cheat log queue into PostgreSQL in batches.
type CheatWorker struct {
	store CheatWriter
	rdb   *redis.Client
	log   zerolog.Logger

	// backoff is slept after a requeue or a Redis error.
	backoff time.Duration
}

func NewCheatWorker(store CheatWriter, rdb *redis.Client, log zerolog.Logger) *CheatWorker {
	return &CheatWorker{
		store:   store,
		rdb:     rdb,
		log:     log.With().Str("component", "cheat_worker").Logger(),
		backoff: 2 * time.Second,
	}
}

// Start runs until ctx is cancelled, then flushes what it holds.
func (w *CheatWorker) Start(ctx context.Context) {
	w.log.Info().Msg("CheatWorker started")

	buffer := make([]*model.CheatLog, 0, BatchSize)
	lastFlushTime := time.Now()

	for {
		// 1. Flush on size or age
		if len(buffer) > 0 {
			if len(buffer) >= BatchSize || time.Since(lastFlushTime) >= BatchTimeout {
				w.flushSafe(ctx, buffer)
				buffer = buffer[:0]
				lastFlushTime = time.Now()
			}
		}

		// 2. Graceful shutdown
		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return
		default:
		}

		// 3. BLPop returns immediately if data exists
		result, err := w.rdb.BLPop(ctx, PollTimeout, config.WorkerKey.PersistCheatsQueue).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				w.shutdown(buffer)
				return
			}
			w.log.Error().Err(err).Msg("Redis connection error, backing off")
			w.sleep(ctx)
			continue
		}

		if len(result) < 2 {
			continue
		}

		var entry model.CheatLog
		if err := json.Unmarshal([]byte(result[1]), &entry); err != nil {
			// Malformed JSON can never succeed; discard it.
			w.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed JSON")
			continue
		}
		if len(entry.Payload) == 0 {
			entry.Payload = json.RawMessage("{}")
		}

		buffer = append(buffer, &entry)
	}
}

// flushSafe attempts bulk insert, then row-by-row insert, then requeue.
func (w *CheatWorker) flushSafe(ctx context.Context, batch []*model.CheatLog) {
	if err := w.store.InsertBatch(ctx, batch); err != nil {
		w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk insert failed, attempting row-by-row recovery")
		w.fallbackInsert(ctx, batch)
		return
	}
	w.log.Debug().Int("count", len(batch)).Msg("Cheat logs persisted")
}

func (w *CheatWorker) fallbackInsert(ctx context.Context, batch []*model.CheatLog) {
	requeueList := make([]*model.CheatLog, 0)

	for _, l := range batch {
		err := w.store.Insert(ctx, l)
		if err == nil {
			continue
		}
		if errors.Is(err, repository.ErrInvalidRecord) {
			w.log.Error().Err(err).Str("session_id", l.SessionID).Msg("Dropping invalid cheat log")
			continue
		}
		w.log.Error().Err(err).Str("session_id", l.SessionID).Msg("Insert failed, requeueing")
		requeueList = append(requeueList, l)
	}

	if len(requeueList) > 0 {
		w.requeue(ctx, requeueList)
	}
}

func (w *CheatWorker) requeue(ctx context.Context, items []*model.CheatLog) {
	// A cancelled ctx must not lose the batch.
	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	pipe := w.rdb.Pipeline()
	for _, l := range items {
		data, _ := json.Marshal(l)
		pipe.RPush(pushCtx, config.WorkerKey.PersistCheatsQueue, data)
	}
	if _, err := pipe.Exec(pushCtx); err != nil {
		w.log.Error().Err(err).Int("count", len(items)).Msg("CRITICAL: Failed to requeue items to Redis. Data loss occurred.")
		return
	}

	w.log.Info().Int("count", len(items)).Msg("Requeued failed items back to Redis")
	// Avoid thrashing while the database is down.
	w.sleep(ctx)
}

func (w *CheatWorker) sleep(ctx context.Context) {
	t := time.NewTimer(w.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (w *CheatWorker) shutdown(buffer []*model.CheatLog) {
	w.log.Info().Int("buffered", len(buffer)).Msg("Worker stopping, flushing remaining buffer...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if len(buffer) > 0 {
		w.flushSafe(shutdownCtx, buffer)
	}
}
