package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-quiz/internal/config"
	"github.com/stemsi/exstem-quiz/internal/model"
	"github.com/stemsi/exstem-quiz/internal/quiz"
)

// Quiz session errors.
var (
	ErrTestUnavailable = errors.New("test is not active")
	ErrNoQuestions     = errors.New("test has no questions")
	ErrSessionNotFound = errors.New("quiz session not found")
)

// Upstream is the subset of the quiz API the service calls directly.
type Upstream interface {
	TestDetail(ctx context.Context, token string) (*model.TestDetail, error)
	QuestionDetail(ctx context.Context, token string, order int) (*model.QuestionDetail, error)
	Submit(ctx context.Context, payload model.SubmitPayload) (*model.TestResult, error)
	Chat(ctx context.Context, testResultID int, message string) (*model.ChatReply, error)
}

// QuestionSource returns the question list of a test.
type QuestionSource interface {
	Get(ctx context.Context, token string) ([]model.Question, error)
	Invalidate(ctx context.Context, token string) error
}

// SessionLedger records attempts durably.
type SessionLedger interface {
	Create(ctx context.Context, s *model.QuizSession) error
	Complete(ctx context.Context, id uuid.UUID, result *model.TestResult) error
}

// sessionSweepInterval is how often expired sessions leave memory.
const sessionSweepInterval = time.Minute

// Session is a live quiz attempt. It expires with its ticket and Redis
// mirror.
type Session struct {
	ID        uuid.UUID
	StartedAt time.Time
	ExpiresAt time.Time
	Sheet     *quiz.AnswerSheet
}

// Token returns the test token of the session.
func (s *Session) Token() string { return s.Sheet.Token() }

// State reports the current answer progress.
func (s *Session) State() model.SessionState {
	return model.SessionState{
		SessionID:             s.ID.String(),
		AnswerIDs:             s.Sheet.AnswerIDs(),
		UnansweredQuestionIDs: s.Sheet.UnansweredQuestionIDs(),
	}
}

// QuizService owns quiz sessions. Live sessions sit in memory; their
// metadata and answers are mirrored to Redis so a restarted gateway can
// resume them from a ticket.
type QuizService struct {
	upstream  Upstream
	questions QuestionSource
	ledger    SessionLedger
	math      *MathService
	tickets   *TicketService
	rdb       *redis.Client
	ttl       time.Duration
	log       zerolog.Logger

	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
}

// NewQuizService creates a new QuizService. sessionTTL bounds how long the
// Redis mirror of a session survives.
func NewQuizService(
	upstream Upstream,
	questions QuestionSource,
	ledger SessionLedger,
	math *MathService,
	tickets *TicketService,
	rdb *redis.Client,
	sessionTTL time.Duration,
	log zerolog.Logger,
) *QuizService {
	return &QuizService{
		upstream:  upstream,
		questions: questions,
		ledger:    ledger,
		math:      math,
		tickets:   tickets,
		rdb:       rdb,
		ttl:       sessionTTL,
		log:       log.With().Str("component", "quiz_service").Logger(),
		sessions:  make(map[uuid.UUID]*Session),
	}
}

// Detail returns the upstream test detail for token.
func (s *QuizService) Detail(ctx context.Context, token string) (*model.TestDetail, error) {
	return s.upstream.TestDetail(ctx, token)
}

// Start validates the token upstream, opens a session and signs its ticket.
func (s *QuizService) Start(ctx context.Context, req *model.StartQuizRequest) (*model.StartQuizResponse, *Session, error) {
	detail, err := s.upstream.TestDetail(ctx, req.Token)
	if err != nil {
		return nil, nil, err
	}
	if !detail.Available() {
		return nil, nil, ErrTestUnavailable
	}

	questions, err := s.questions.Get(ctx, req.Token)
	if err != nil {
		return nil, nil, err
	}
	if len(questions) == 0 {
		return nil, nil, ErrNoQuestions
	}

	startedAt := time.Now().UTC()
	sess := &Session{
		ID:        uuid.New(),
		StartedAt: startedAt,
		ExpiresAt: startedAt.Add(s.ttl),
		Sheet:     quiz.NewAnswerSheet(req.Token, req.StudentName, questions),
	}

	metaKey := config.CacheKey.SessionKey(sess.ID.String())
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, metaKey, map[string]interface{}{
		"token":        req.Token,
		"student_name": req.StudentName,
		"started_at":   sess.StartedAt.Unix(),
	})
	pipe.Expire(ctx, metaKey, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, nil, fmt.Errorf("store session: %w", err)
	}

	ticket, expiresAt, err := s.tickets.Issue(sess.ID, req.Token, req.StudentName)
	if err != nil {
		return nil, nil, err
	}

	if err := s.ledger.Create(ctx, &model.QuizSession{
		ID:          sess.ID,
		Token:       req.Token,
		StudentName: req.StudentName,
		StartedAt:   sess.StartedAt,
		Status:      model.SessionStatusInProgress,
	}); err != nil {
		s.log.Warn().Err(err).Str("session_id", sess.ID.String()).Msg("Failed to record session start")
	}

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	s.log.Info().
		Str("session_id", sess.ID.String()).
		Str("token", req.Token).
		Int("questions", len(questions)).
		Msg("Quiz session started")

	return &model.StartQuizResponse{
		SessionID: sess.ID.String(),
		Ticket:    ticket,
		ExpiresAt: expiresAt.UTC().Format(time.RFC3339),
		Test:      detail,
	}, sess, nil
}

// Resume returns the live session for claims, rebuilding it from Redis when
// this process has not seen it. A session whose Redis mirror is gone was
// submitted elsewhere or expired.
func (s *QuizService) Resume(ctx context.Context, claims *Claims) (*Session, error) {
	id, err := uuid.Parse(claims.SessionID)
	if err != nil {
		return nil, ErrSessionNotFound
	}
	metaKey := config.CacheKey.SessionKey(id.String())

	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if ok {
		if time.Now().After(sess.ExpiresAt) {
			s.drop(id)
			return nil, ErrSessionNotFound
		}
		n, err := s.rdb.Exists(ctx, metaKey).Result()
		if err != nil {
			// Redis is down; the in-memory copy still serves this process.
			s.log.Warn().Err(err).Str("session_id", id.String()).Msg("Session mirror check failed")
			return sess, nil
		}
		if n == 0 {
			s.drop(id)
			return nil, ErrSessionNotFound
		}
		return sess, nil
	}

	meta, err := s.rdb.HGetAll(ctx, metaKey).Result()
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if len(meta) == 0 || meta["token"] != claims.TestToken {
		return nil, ErrSessionNotFound
	}

	questions, err := s.questions.Get(ctx, meta["token"])
	if err != nil {
		return nil, err
	}

	sess = &Session{
		ID:    id,
		Sheet: quiz.NewAnswerSheet(meta["token"], meta["student_name"], questions),
	}
	if ts, err := strconv.ParseInt(meta["started_at"], 10, 64); err == nil {
		sess.StartedAt = time.Unix(ts, 0).UTC()
		sess.ExpiresAt = sess.StartedAt.Add(s.ttl)
	} else {
		sess.ExpiresAt = time.Now().UTC().Add(s.ttl)
	}

	saved, err := s.rdb.HGetAll(ctx, config.CacheKey.SessionAnswersKey(id.String())).Result()
	if err != nil {
		return nil, fmt.Errorf("load answers: %w", err)
	}
	restored := sess.Sheet.Restore(parseAnswerHash(saved))

	s.mu.Lock()
	if existing, ok := s.sessions[id]; ok {
		sess = existing
	} else {
		s.sessions[id] = sess
	}
	s.mu.Unlock()

	s.log.Info().
		Str("session_id", id.String()).
		Int("answers_restored", restored).
		Msg("Quiz session resumed")

	return sess, nil
}

// Questions returns the session's questions in display order, rendered and
// without correct answers.
func (s *QuizService) Questions(ctx context.Context, sess *Session) ([]model.RenderedQuestion, error) {
	questions, err := s.questions.Get(ctx, sess.Token())
	if err != nil {
		return nil, err
	}
	sort.SliceStable(questions, func(i, j int) bool { return questions[i].Order < questions[j].Order })

	out := make([]model.RenderedQuestion, 0, len(questions))
	for _, q := range questions {
		text, html := s.math.Render(q.Text)
		rq := model.RenderedQuestion{
			ID:      q.ID,
			Order:   q.Order,
			Text:    text,
			HTML:    html,
			Answers: make([]model.RenderedAnswer, 0, len(q.Answers)),
		}
		for _, a := range q.Answers {
			atext, ahtml := s.math.Render(a.Text)
			rq.Answers = append(rq.Answers, model.RenderedAnswer{ID: a.ID, Text: atext, HTML: ahtml})
		}
		out = append(out, rq)
	}
	return out, nil
}

// RecordAnswer stores one choice in the sheet and its Redis mirror.
func (s *QuizService) RecordAnswer(ctx context.Context, sess *Session, questionID, answerID int) (*model.SessionState, error) {
	if err := sess.Sheet.Answer(questionID, answerID); err != nil {
		return nil, err
	}

	key := config.CacheKey.SessionAnswersKey(sess.ID.String())
	pipe := s.rdb.Pipeline()
	pipe.HSet(ctx, key, strconv.Itoa(questionID), answerID)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		// The in-memory sheet stays authoritative for this process.
		s.log.Warn().Err(err).Str("session_id", sess.ID.String()).Msg("Failed to mirror answer")
	}

	state := sess.State()
	return &state, nil
}

// Submit sends the sheet upstream and closes the session on success.
func (s *QuizService) Submit(ctx context.Context, sess *Session) (*model.TestResult, error) {
	payload := sess.Sheet.Submission()
	result, err := s.upstream.Submit(ctx, payload)
	if err != nil {
		return nil, err
	}

	s.forget(ctx, sess.ID)
	if err := s.ledger.Complete(ctx, sess.ID, result); err != nil {
		s.log.Warn().Err(err).Str("session_id", sess.ID.String()).Msg("Failed to record session completion")
	}

	s.log.Info().
		Str("session_id", sess.ID.String()).
		Int("answered", len(payload.AnswerIDs)).
		Int("unanswered", len(payload.UnansweredQuestionIDs)).
		Int("correct", result.CorrectAnswers).
		Msg("Quiz submitted")

	return result, nil
}

// QuestionDetail returns the rendered review view of one question.
func (s *QuizService) QuestionDetail(ctx context.Context, token string, order int) (*model.RenderedQuestionDetail, error) {
	detail, err := s.upstream.QuestionDetail(ctx, token, order)
	if err != nil {
		return nil, err
	}
	qText, qHTML := s.math.Render(detail.QuestionText)
	aText, aHTML := s.math.Render(detail.CorrectAnswer)
	return &model.RenderedQuestionDetail{
		QuestionText:      qText,
		QuestionHTML:      qHTML,
		CorrectAnswer:     aText,
		CorrectAnswerHTML: aHTML,
	}, nil
}

// Chat relays a message to the explanation assistant and renders its reply.
func (s *QuizService) Chat(ctx context.Context, req *model.ChatRequest) (*model.RenderedChatReply, error) {
	reply, err := s.upstream.Chat(ctx, req.TestResultID, req.Message)
	if err != nil {
		return nil, err
	}
	text, html := s.math.RenderProse(reply.Response)
	return &model.RenderedChatReply{Response: text, HTML: html, Status: reply.Status}, nil
}

// RefreshQuestions drops the cached question list of a test and loads it
// again, so edits made upstream reach new sessions. Live sessions keep the
// sheet they started with.
func (s *QuizService) RefreshQuestions(ctx context.Context, token string) (int, error) {
	if err := s.questions.Invalidate(ctx, token); err != nil {
		return 0, fmt.Errorf("invalidate questions: %w", err)
	}
	questions, err := s.questions.Get(ctx, token)
	if err != nil {
		return 0, err
	}
	if len(questions) == 0 {
		return 0, ErrNoQuestions
	}

	s.log.Info().Str("token", token).Int("questions", len(questions)).Msg("Question cache refreshed")
	return len(questions), nil
}

// ActiveSessions returns the number of sessions live in this process.
func (s *QuizService) ActiveSessions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// RunSweeper evicts expired sessions from memory until ctx is done. Their
// Redis mirrors expire on their own.
func (s *QuizService) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(sessionSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := s.sweepExpired(now); n > 0 {
				s.log.Info().Int("evicted", n).Msg("Expired quiz sessions evicted")
			}
		}
	}
}

func (s *QuizService) sweepExpired(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	evicted := 0
	for id, sess := range s.sessions {
		if now.After(sess.ExpiresAt) {
			delete(s.sessions, id)
			evicted++
		}
	}
	return evicted
}

func (s *QuizService) drop(id uuid.UUID) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

func (s *QuizService) forget(ctx context.Context, id uuid.UUID) {
	s.drop(id)

	if err := s.rdb.Del(ctx,
		config.CacheKey.SessionKey(id.String()),
		config.CacheKey.SessionAnswersKey(id.String()),
	).Err(); err != nil {
		s.log.Warn().Err(err).Str("session_id", id.String()).Msg("Failed to drop session mirror")
	}
}

func parseAnswerHash(raw map[string]string) map[int]int {
	out := make(map[int]int, len(raw))
	for k, v := range raw {
		qid, err1 := strconv.Atoi(k)
		aid, err2 := strconv.Atoi(v)
		if err1 != nil || err2 != nil {
			continue
		}
		out[qid] = aid
	}
	return out
}
