package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-quiz/internal/cheat"
	"github.com/stemsi/exstem-quiz/internal/middleware"
	"github.com/stemsi/exstem-quiz/internal/model"
	"github.com/stemsi/exstem-quiz/internal/response"
	"github.com/stemsi/exstem-quiz/internal/service"
	"github.com/stemsi/exstem-quiz/internal/validator"
)

// QuizHandler handles the student-facing quiz endpoints.
type QuizHandler struct {
	quizService    *service.QuizService
	proctorService *service.ProctorService
	settings       service.MonitorSettings
	log            zerolog.Logger
}

// NewQuizHandler creates a new QuizHandler.
func NewQuizHandler(
	quizService *service.QuizService,
	proctorService *service.ProctorService,
	settings service.MonitorSettings,
	log zerolog.Logger,
) *QuizHandler {
	return &QuizHandler{
		quizService:    quizService,
		proctorService: proctorService,
		settings:       settings,
		log:            log.With().Str("component", "quiz_handler").Logger(),
	}
}

// GetTestDetail godoc
// GET /api/v1/quiz/tests/detail?token=
// Looks up a test before the student commits to starting it.
func (h *QuizHandler) GetTestDetail(c *gin.Context) {
	var q model.TestDetailQuery
	if fields := validator.BindQuery(c, &q); fields != nil {
		response.FailValidation(c, fields)
		return
	}

	detail, err := h.quizService.Detail(c.Request.Context(), q.Token)
	if err != nil {
		failFromError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"test": detail, "available": detail.Available()})
}

// StartQuiz godoc
// POST /api/v1/quiz/sessions
// Opens a session and returns the ticket every later call must carry.
func (h *QuizHandler) StartQuiz(c *gin.Context) {
	var req model.StartQuizRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailValidation(c, fields)
		return
	}

	resp, sess, err := h.quizService.Start(c.Request.Context(), &req)
	if err != nil {
		failFromError(c, h.log, err)
		return
	}

	h.proctorService.Announce(c.Request.Context(), service.FeedJoined, sess)
	response.Success(c, http.StatusCreated, resp)
}

// GetMonitorConfig godoc
// GET /api/v1/quiz/monitor-config
// Tells the quiz page which DOM signals to forward and how to go fullscreen.
func (h *QuizHandler) GetMonitorConfig(c *gin.Context) {
	response.Success(c, http.StatusOK, gin.H{
		"events":              cheat.Events,
		"fullscreen_methods":  cheat.FullscreenRequest(),
		"throttle_ms":         h.settings.Throttle.Milliseconds(),
		"devtools_poll_ms":    h.settings.DevToolsPoll.Milliseconds(),
		"devtools_threshold":  h.settings.DevToolsThreshold,
		"beacon_signal_types": []string{cheat.SignalPageHide, cheat.SignalBeforeUnload},
	})
}

// GetQuestions godoc
// GET /api/v1/quiz/session/questions
// Returns the rendered questions without correct answers.
func (h *QuizHandler) GetQuestions(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}

	questions, err := h.quizService.Questions(c.Request.Context(), sess)
	if err != nil {
		failFromError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"questions": questions, "state": sess.State()})
}

// GetState godoc
// GET /api/v1/quiz/session/state
func (h *QuizHandler) GetState(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	response.Success(c, http.StatusOK, sess.State())
}

// RecordAnswer godoc
// PUT /api/v1/quiz/session/answers
// Records one choice. A later choice for the same question replaces it.
func (h *QuizHandler) RecordAnswer(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}

	var req model.RecordAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailValidation(c, fields)
		return
	}

	state, err := h.quizService.RecordAnswer(c.Request.Context(), sess, req.QuestionID, req.AnswerID)
	if err != nil {
		failFromError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, state)
}

// SubmitQuiz godoc
// POST /api/v1/quiz/session/submit
// Sends the answer sheet upstream and stops cheat monitoring.
func (h *QuizHandler) SubmitQuiz(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}

	result, err := h.quizService.Submit(c.Request.Context(), sess)
	if err != nil {
		failFromError(c, h.log, err)
		return
	}

	h.proctorService.Detach(sess.ID, nil)
	h.proctorService.Announce(c.Request.Context(), service.FeedSubmitted, sess)
	response.Success(c, http.StatusOK, result)
}

// GetQuestionDetail godoc
// POST /api/v1/quiz/session/question-detail
// Review view of one question. Works after submit, since it only needs the
// test token carried by the ticket.
func (h *QuizHandler) GetQuestionDetail(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.FailCode(c, response.ErrTicketRequired)
		return
	}

	var req model.QuestionDetailRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailValidation(c, fields)
		return
	}

	detail, err := h.quizService.QuestionDetail(c.Request.Context(), claims.TestToken, req.QuestionOrder)
	if err != nil {
		failFromError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, detail)
}

// Chat godoc
// POST /api/v1/quiz/session/chat
// Relays a question about a submitted result to the explanation assistant.
func (h *QuizHandler) Chat(c *gin.Context) {
	var req model.ChatRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailValidation(c, fields)
		return
	}

	reply, err := h.quizService.Chat(c.Request.Context(), &req)
	if err != nil {
		failFromError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, reply)
}

// PostSignal godoc
// POST /api/v1/quiz/session/signals?ticket=
// Beacon fallback for signals sent while the page unloads, when the quiz
// stream may already be closed.
func (h *QuizHandler) PostSignal(c *gin.Context) {
	var sig cheat.Signal
	if err := c.ShouldBindJSON(&sig); err != nil {
		response.FailValidation(c, validator.TranslateErrors(err))
		return
	}
	if !cheat.IsSignal(sig.Type) {
		response.FailCode(c, response.ErrUnknownSignal)
		return
	}

	sess, ok := h.session(c)
	if !ok {
		return
	}

	if !h.proctorService.Handle(sess.ID, sig) {
		m := h.proctorService.Attach(sess, sig.PageURL, c.Request.UserAgent())
		m.Handle(sig)
		h.proctorService.Detach(sess.ID, m)
	}

	c.Status(http.StatusAccepted)
}

// session resumes the ticket's session, writing the error response itself
// when it cannot.
func (h *QuizHandler) session(c *gin.Context) (*service.Session, bool) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.FailCode(c, response.ErrTicketRequired)
		return nil, false
	}

	sess, err := h.quizService.Resume(c.Request.Context(), claims)
	if err != nil {
		failFromError(c, h.log, err)
		return nil, false
	}
	return sess, true
}
