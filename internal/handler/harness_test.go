package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-quiz/internal/config"
	"github.com/stemsi/exstem-quiz/internal/mathrender"
	"github.com/stemsi/exstem-quiz/internal/mathtext"
	"github.com/stemsi/exstem-quiz/internal/middleware"
	"github.com/stemsi/exstem-quiz/internal/model"
	"github.com/stemsi/exstem-quiz/internal/quiz"
	"github.com/stemsi/exstem-quiz/internal/response"
	"github.com/stemsi/exstem-quiz/internal/service"
	"github.com/stemsi/exstem-quiz/internal/validator"
	"github.com/stretchr/testify/require"
)

const (
	testToken  = "MATH-01"
	proctorKey = "proctor-secret"
)

func init() {
	gin.SetMode(gin.TestMode)
	validator.Setup()
}

// ─── Fakes ──────────────────────────────────────────────────────────

type fakeUpstream struct {
	mu        sync.Mutex
	detail    map[string]*model.TestDetail
	questions map[string][]model.Question
	loads     int
	submitted []model.SubmitPayload
	result    *model.TestResult
	submitErr error
	reply     *model.ChatReply
}

func newFakeUpstream() *fakeUpstream {
	return &fakeUpstream{
		detail: map[string]*model.TestDetail{
			testToken: {Name: "Aljabar", SubjectName: "Matematika", DeadlineStart: "2026-10-19T07:00:00Z", DeadlineEnd: "2026-10-19T09:00:00Z"},
		},
		questions: map[string][]model.Question{
			testToken: {
				{ID: 12, Order: 2, Text: "sqrt(16) = ?", CorrectAnswerID: 121, Answers: []model.Answer{{ID: 121, Text: "4"}, {ID: 122, Text: "8"}}},
				{ID: 11, Order: 1, Text: "x^2", CorrectAnswerID: 112, Answers: []model.Answer{{ID: 111, Text: "6"}, {ID: 112, Text: "9"}}},
			},
		},
		result: &model.TestResult{ID: 77, TotalQuestions: 2, CorrectAnswers: 1, ScorePercentage: "50.00"},
		reply:  &model.ChatReply{Response: "Karena $3^2 = 9$", Status: "success"},
	}
}

func (f *fakeUpstream) TestDetail(ctx context.Context, token string) (*model.TestDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.detail[token]
	if !ok {
		return nil, quiz.ErrNotFound
	}
	return d, nil
}

func (f *fakeUpstream) Questions(ctx context.Context, token string) ([]model.Question, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads++
	qs, ok := f.questions[token]
	if !ok {
		return nil, quiz.ErrNotFound
	}
	return append([]model.Question(nil), qs...), nil
}

func (f *fakeUpstream) QuestionDetail(ctx context.Context, token string, order int) (*model.QuestionDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, q := range f.questions[token] {
		if q.Order == order {
			for _, a := range q.Answers {
				if a.ID == q.CorrectAnswerID {
					return &model.QuestionDetail{QuestionText: q.Text, CorrectAnswer: a.Text}, nil
				}
			}
		}
	}
	return nil, quiz.ErrNotFound
}

func (f *fakeUpstream) Submit(ctx context.Context, payload model.SubmitPayload) (*model.TestResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	f.submitted = append(f.submitted, payload)
	res := *f.result
	res.StudentName = payload.StudentName
	return &res, nil
}

func (f *fakeUpstream) Chat(ctx context.Context, testResultID int, message string) (*model.ChatReply, error) {
	if testResultID != f.result.ID {
		return nil, quiz.ErrNotFound
	}
	return f.reply, nil
}

func (f *fakeUpstream) loadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loads
}

type fakeLedger struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*model.QuizSession
	order    []uuid.UUID
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{sessions: make(map[uuid.UUID]*model.QuizSession)}
}

func (l *fakeLedger) Create(ctx context.Context, s *model.QuizSession) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	cp := *s
	l.sessions[s.ID] = &cp
	l.order = append(l.order, s.ID)
	return nil
}

func (l *fakeLedger) Complete(ctx context.Context, id uuid.UUID, result *model.TestResult) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.sessions[id]
	if !ok {
		return nil
	}
	s.Status = model.SessionStatusCompleted
	correct := result.CorrectAnswers
	score := result.ScorePercentage
	s.CorrectAnswers = &correct
	s.ScorePercentage = &score
	return nil
}

func (l *fakeLedger) ListByToken(ctx context.Context, token string) ([]model.QuizSession, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []model.QuizSession
	for i := len(l.order) - 1; i >= 0; i-- {
		if s := l.sessions[l.order[i]]; s.Token == token {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (l *fakeLedger) get(id string) *model.QuizSession {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.sessions[uuid.MustParse(id)]
	if !ok {
		return nil
	}
	cp := *s
	return &cp
}

type fakeCheatLogs struct {
	logs   []model.StoredCheatLog
	counts map[string]int64
}

func (f *fakeCheatLogs) ListByToken(ctx context.Context, token string, limit int) ([]model.StoredCheatLog, error) {
	var out []model.StoredCheatLog
	for _, l := range f.logs {
		if l.Token == token && len(out) < limit {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeCheatLogs) CountBySession(ctx context.Context, token string) (map[string]int64, error) {
	return f.counts, nil
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(ctx context.Context) error { return p.err }

// ─── Environment ────────────────────────────────────────────────────

type testEnv struct {
	t        *testing.T
	mr       *miniredis.Miniredis
	rdb      *redis.Client
	upstream *fakeUpstream
	ledger   *fakeLedger
	logs     *fakeCheatLogs
	tickets  *service.TicketService
	quiz     *service.QuizService
	proctor  *service.ProctorService
	monitor  *MonitorHandler
	system   *SystemHandler
	engine   *gin.Engine
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := &config.Config{TicketSecret: "test-secret", TicketExpiry: time.Hour}
	log := zerolog.Nop()

	env := &testEnv{
		t:        t,
		mr:       mr,
		rdb:      rdb,
		upstream: newFakeUpstream(),
		ledger:   newFakeLedger(),
		logs:     &fakeCheatLogs{counts: map[string]int64{}},
		tickets:  service.NewTicketService(cfg),
	}

	math := service.NewMathServiceWith(mathrender.NewPipeline(
		mathtext.New(),
		mathrender.NewRenderer(mathrender.MarkupEngine{}, log),
	))
	settings := service.MonitorSettings{Throttle: time.Minute, DevToolsPoll: -1, DevToolsThreshold: 160}
	cache := quiz.NewQuestionCache(rdb, env.upstream, time.Hour, log)

	env.quiz = service.NewQuizService(env.upstream, cache, env.ledger, math, env.tickets, rdb, time.Hour, log)
	env.proctor = service.NewProctorService(rdb, env.logs, env.ledger, settings, log)
	t.Cleanup(env.proctor.Close)

	quizHandler := NewQuizHandler(env.quiz, env.proctor, settings, log)
	wsHandler := NewWSHandler(env.quiz, env.proctor, log, nil)
	env.monitor = NewMonitorHandler(rdb, env.quiz, env.proctor, log)
	env.system = NewSystemHandler(rdb, fakePinger{}, env.quiz, env.proctor, log)
	mathHandler := NewMathHandler(math)

	r := gin.New()
	r.Use(response.RequestIDMiddleware())
	r.GET("/health", env.system.Health)

	public := r.Group("/api/v1/quiz")
	public.GET("/tests/detail", quizHandler.GetTestDetail)
	public.POST("/sessions", quizHandler.StartQuiz)
	public.GET("/monitor-config", quizHandler.GetMonitorConfig)

	session := r.Group("/api/v1/quiz/session", middleware.RequireTicket(env.tickets))
	session.GET("/questions", quizHandler.GetQuestions)
	session.GET("/state", quizHandler.GetState)
	session.PUT("/answers", quizHandler.RecordAnswer)
	session.POST("/submit", quizHandler.SubmitQuiz)
	session.POST("/question-detail", quizHandler.GetQuestionDetail)
	session.POST("/chat", quizHandler.Chat)
	session.POST("/signals", quizHandler.PostSignal)

	r.GET("/ws/v1/quiz/stream", middleware.RequireTicket(env.tickets), wsHandler.QuizStream)
	r.POST("/api/v1/math/render", mathHandler.RenderMath)

	proctor := r.Group("/api/v1/proctor", middleware.RequireProctorKey(proctorKey))
	proctor.GET("/system", env.system.Status)
	proctor.GET("/tests/:token/monitor", env.monitor.MonitorTestSSE)
	proctor.GET("/tests/:token/snapshot", env.monitor.GetSnapshot)
	proctor.GET("/tests/:token/cheats", env.monitor.ListCheatLogs)
	proctor.POST("/tests/:token/refresh-cache", env.monitor.RefreshQuestionCache)

	env.engine = r
	return env
}

// envelope mirrors response.Response with raw data for per-test decoding.
type envelope struct {
	Data  json.RawMessage     `json:"data"`
	Error *response.ErrorBody `json:"error"`
}

func (e *testEnv) do(method, path, ticket string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	e.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(e.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if ticket != "" {
		req.Header.Set("Authorization", "Bearer "+ticket)
	}
	if strings.HasPrefix(path, "/api/v1/proctor") {
		req.Header.Set("X-Proctor-Key", proctorKey)
	}

	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		require.NoError(e.t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w, env
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

// start opens a session for name and returns the start response.
func (e *testEnv) start(name string) model.StartQuizResponse {
	e.t.Helper()
	w, env := e.do(http.MethodPost, "/api/v1/quiz/sessions", "", gin.H{"token": testToken, "student_name": name})
	require.Equal(e.t, http.StatusCreated, w.Code, w.Body.String())
	return decode[model.StartQuizResponse](e.t, env.Data)
}
