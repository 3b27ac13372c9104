package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-quiz/internal/model"
)

// QuizSessionRepository keeps the ledger of quiz attempts.
type QuizSessionRepository struct {
	pool *pgxpool.Pool
}

// NewQuizSessionRepository creates a new QuizSessionRepository.
func NewQuizSessionRepository(pool *pgxpool.Pool) *QuizSessionRepository {
	return &QuizSessionRepository{pool: pool}
}

// Create inserts a new in-progress attempt.
func (r *QuizSessionRepository) Create(ctx context.Context, s *model.QuizSession) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO quiz_sessions (id, test_token, student_name, started_at, status)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO NOTHING`,
		s.ID, s.Token, s.StudentName, s.StartedAt, model.SessionStatusInProgress,
	)
	return err
}

// Complete marks an attempt as completed with the upstream scorecard.
func (r *QuizSessionRepository) Complete(ctx context.Context, id uuid.UUID, result *model.TestResult) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE quiz_sessions
		 SET status = $1, finished_at = $2, correct_answers = $3, score_percentage = $4
		 WHERE id = $5`,
		model.SessionStatusCompleted, time.Now(), result.CorrectAnswers, result.ScorePercentage, id,
	)
	return err
}

// ListByToken returns every attempt at a test, newest first.
func (r *QuizSessionRepository) ListByToken(ctx context.Context, token string) ([]model.QuizSession, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, test_token, student_name, started_at, finished_at, status, correct_answers, score_percentage
		 FROM quiz_sessions
		 WHERE test_token = $1
		 ORDER BY started_at DESC`, token,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []model.QuizSession
	for rows.Next() {
		var s model.QuizSession
		if err := rows.Scan(&s.ID, &s.Token, &s.StudentName, &s.StartedAt, &s.FinishedAt, &s.Status, &s.CorrectAnswers, &s.ScorePercentage); err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}
