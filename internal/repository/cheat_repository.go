package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-quiz/internal/model"
)

// ErrInvalidRecord marks a row that can never be inserted.
var ErrInvalidRecord = errors.New("invalid cheat log record")

// CheatRepository reads persisted cheat logs. Rows are written in bulk by
// the cheat worker.
type CheatRepository struct {
	pool *pgxpool.Pool
}

// NewCheatRepository creates a new CheatRepository.
func NewCheatRepository(pool *pgxpool.Pool) *CheatRepository {
	return &CheatRepository{pool: pool}
}

// ListByToken returns the newest cheat logs of a test.
func (r *CheatRepository) ListByToken(ctx context.Context, token string, limit int) ([]model.StoredCheatLog, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, session_id::text, test_token, student_name, event, payload, recorded_at
		 FROM cheat_logs
		 WHERE test_token = $1
		 ORDER BY recorded_at DESC, id DESC
		 LIMIT $2`,
		token, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]model.StoredCheatLog, 0)
	for rows.Next() {
		var l model.StoredCheatLog
		if err := rows.Scan(&l.ID, &l.SessionID, &l.Token, &l.StudentName, &l.Event, &l.Payload, &l.RecordedAt); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// CountBySession returns the number of persisted cheat logs per session of a test.
func (r *CheatRepository) CountBySession(ctx context.Context, token string) (map[string]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT session_id::text, COUNT(*)
		 FROM cheat_logs
		 WHERE test_token = $1
		 GROUP BY session_id`,
		token,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var sid string
		var count int64
		if err := rows.Scan(&sid, &count); err != nil {
			return nil, err
		}
		counts[sid] = count
	}
	return counts, rows.Err()
}

var cheatLogColumns = []string{"session_id", "test_token", "student_name", "event", "payload", "recorded_at"}

// InsertBatch copies a batch of cheat logs in one round trip.
func (r *CheatRepository) InsertBatch(ctx context.Context, batch []*model.CheatLog) error {
	rows := make([][]interface{}, 0, len(batch))
	for _, l := range batch {
		sid, err := uuid.Parse(l.SessionID)
		if err != nil {
			// Fails the batch so the caller falls back to row inserts.
			return fmt.Errorf("session id %q: %w", l.SessionID, err)
		}
		rows = append(rows, []interface{}{
			sid, l.Token, l.StudentName, l.Event, string(l.Payload), time.Unix(l.Timestamp, 0),
		})
	}

	_, err := r.pool.CopyFrom(ctx, pgx.Identifier{"cheat_logs"}, cheatLogColumns, pgx.CopyFromRows(rows))
	return err
}

// Insert writes a single cheat log.
func (r *CheatRepository) Insert(ctx context.Context, l *model.CheatLog) error {
	sid, err := uuid.Parse(l.SessionID)
	if err != nil {
		return fmt.Errorf("%w: session id %q", ErrInvalidRecord, l.SessionID)
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO cheat_logs (session_id, test_token, student_name, event, payload, recorded_at)
		 VALUES ($1, $2, $3, $4, $5::jsonb, $6)`,
		sid, l.Token, l.StudentName, l.Event, string(l.Payload), time.Unix(l.Timestamp, 0),
	)
	return err
}
