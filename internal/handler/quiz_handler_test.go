package handler

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-quiz/internal/cheat"
	"github.com/stemsi/exstem-quiz/internal/config"
	"github.com/stemsi/exstem-quiz/internal/model"
	"github.com/stemsi/exstem-quiz/internal/quiz"
	"github.com/stemsi/exstem-quiz/internal/response"
	"github.com/stemsi/exstem-quiz/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetTestDetail(t *testing.T) {
	env := newTestEnv(t)

	w, body := env.do(http.MethodGet, "/api/v1/quiz/tests/detail?token="+testToken, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[struct {
		Test      model.TestDetail `json:"test"`
		Available bool             `json:"available"`
	}](t, body.Data)
	assert.Equal(t, "Aljabar", got.Test.Name)
	assert.True(t, got.Available)

	w, body = env.do(http.MethodGet, "/api/v1/quiz/tests/detail?token=UNKNOWN", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, response.ErrTestNotFound, body.Error.Code)

	w, body = env.do(http.MethodGet, "/api/v1/quiz/tests/detail?token=bad%20token", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, response.ErrValidation, body.Error.Code)
	assert.Contains(t, body.Error.Fields, "token")
}

func TestStartQuiz(t *testing.T) {
	env := newTestEnv(t)

	// Subscribe first to observe the join announcement.
	sub := env.rdb.Subscribe(t.Context(), config.CacheKey.ProctorChannel(testToken))
	defer sub.Close()
	_, err := sub.Receive(t.Context())
	require.NoError(t, err)

	resp := env.start("Budi")
	assert.NotEmpty(t, resp.Ticket)
	assert.NotEmpty(t, resp.ExpiresAt)
	require.NotNil(t, resp.Test)
	assert.Equal(t, "Aljabar", resp.Test.Name)

	claims, err := env.tickets.Validate(resp.Ticket)
	require.NoError(t, err)
	assert.Equal(t, resp.SessionID, claims.SessionID)
	assert.Equal(t, testToken, claims.TestToken)

	stored := env.ledger.get(resp.SessionID)
	require.NotNil(t, stored)
	assert.Equal(t, model.SessionStatusInProgress, stored.Status)
	assert.Equal(t, "Budi", stored.StudentName)

	msg, err := sub.ReceiveMessage(t.Context())
	require.NoError(t, err)
	assert.Contains(t, msg.Payload, `"type":"joined"`)
	assert.Contains(t, msg.Payload, resp.SessionID)
}

func TestStartQuizRejections(t *testing.T) {
	env := newTestEnv(t)
	inactive := false
	env.upstream.detail["CLOSED"] = &model.TestDetail{Name: "Lama", IsActive: &inactive}
	env.upstream.detail["EMPTY"] = &model.TestDetail{Name: "Kosong"}
	env.upstream.questions["EMPTY"] = nil

	tests := []struct {
		name   string
		body   gin.H
		status int
		code   response.ErrCode
	}{
		{"missing name", gin.H{"token": testToken}, http.StatusBadRequest, response.ErrValidation},
		{"malformed token", gin.H{"token": "a b", "student_name": "Budi"}, http.StatusBadRequest, response.ErrValidation},
		{"unknown token", gin.H{"token": "NOPE", "student_name": "Budi"}, http.StatusNotFound, response.ErrTestNotFound},
		{"inactive test", gin.H{"token": "CLOSED", "student_name": "Budi"}, http.StatusUnprocessableEntity, response.ErrTestNotAvailable},
		{"no questions", gin.H{"token": "EMPTY", "student_name": "Budi"}, http.StatusUnprocessableEntity, response.ErrNoQuestions},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, body := env.do(http.MethodPost, "/api/v1/quiz/sessions", "", tt.body)
			assert.Equal(t, tt.status, w.Code)
			require.NotNil(t, body.Error)
			assert.Equal(t, tt.code, body.Error.Code)
		})
	}
	assert.Zero(t, env.quiz.ActiveSessions())
}

func TestSessionRoutesRequireTicket(t *testing.T) {
	env := newTestEnv(t)

	w, body := env.do(http.MethodGet, "/api/v1/quiz/session/questions", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, response.ErrTicketRequired, body.Error.Code)

	w, body = env.do(http.MethodGet, "/api/v1/quiz/session/questions", "forged", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, response.ErrTicketInvalid, body.Error.Code)
}

func TestQuestionsHideCorrectAnswers(t *testing.T) {
	env := newTestEnv(t)
	resp := env.start("Budi")

	w, body := env.do(http.MethodGet, "/api/v1/quiz/session/questions", resp.Ticket, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, string(body.Data), "correct_answer")

	got := decode[struct {
		Questions []model.RenderedQuestion `json:"questions"`
		State     model.SessionState       `json:"state"`
	}](t, body.Data)
	require.Len(t, got.Questions, 2)
	assert.Equal(t, 11, got.Questions[0].ID)
	assert.Equal(t, 12, got.Questions[1].ID)
	assert.Equal(t, "$x^{2}$", got.Questions[0].Text)
	assert.Contains(t, string(got.Questions[0].HTML), `class="math-content"`)
	assert.Equal(t, []int{11, 12}, got.State.UnansweredQuestionIDs)
	assert.Empty(t, got.State.AnswerIDs)
}

func TestRecordAnswerAndSubmit(t *testing.T) {
	env := newTestEnv(t)
	resp := env.start("Budi")

	w, body := env.do(http.MethodPut, "/api/v1/quiz/session/answers", resp.Ticket, gin.H{"question_id": 11, "answer_id": 112})
	require.Equal(t, http.StatusOK, w.Code)
	state := decode[model.SessionState](t, body.Data)
	assert.Equal(t, []int{112}, state.AnswerIDs)
	assert.Equal(t, []int{12}, state.UnansweredQuestionIDs)

	// A later choice replaces the earlier one.
	w, _ = env.do(http.MethodPut, "/api/v1/quiz/session/answers", resp.Ticket, gin.H{"question_id": 11, "answer_id": 111})
	require.Equal(t, http.StatusOK, w.Code)

	w, body = env.do(http.MethodPut, "/api/v1/quiz/session/answers", resp.Ticket, gin.H{"question_id": 11, "answer_id": 121})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, response.ErrUnknownAnswer, body.Error.Code)

	w, body = env.do(http.MethodPut, "/api/v1/quiz/session/answers", resp.Ticket, gin.H{"question_id": 99, "answer_id": 1})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, response.ErrUnknownQuestion, body.Error.Code)

	w, body = env.do(http.MethodPost, "/api/v1/quiz/session/submit", resp.Ticket, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	result := decode[model.TestResult](t, body.Data)
	assert.Equal(t, 77, result.ID)
	assert.Equal(t, "Budi", result.StudentName)

	require.Len(t, env.upstream.submitted, 1)
	assert.Equal(t, model.SubmitPayload{
		Token:                 testToken,
		StudentName:           "Budi",
		AnswerIDs:             []int{111},
		UnansweredQuestionIDs: []int{12},
	}, env.upstream.submitted[0])

	stored := env.ledger.get(resp.SessionID)
	assert.Equal(t, model.SessionStatusCompleted, stored.Status)
	require.NotNil(t, stored.CorrectAnswers)
	assert.Equal(t, 1, *stored.CorrectAnswers)

	// The session is gone once submitted.
	assert.False(t, env.mr.Exists(config.CacheKey.SessionKey(resp.SessionID)))
	w, body = env.do(http.MethodGet, "/api/v1/quiz/session/state", resp.Ticket, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, response.ErrSessionNotFound, body.Error.Code)
}

func TestSubmitUpstreamFailureKeepsSession(t *testing.T) {
	env := newTestEnv(t)
	resp := env.start("Budi")
	env.upstream.submitErr = quiz.ErrUpstream

	w, body := env.do(http.MethodPost, "/api/v1/quiz/session/submit", resp.Ticket, nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, response.ErrUpstreamUnavailable, body.Error.Code)

	w, _ = env.do(http.MethodGet, "/api/v1/quiz/session/state", resp.Ticket, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSessionResumesOnAnotherProcess(t *testing.T) {
	env := newTestEnv(t)
	resp := env.start("Budi")

	w, _ := env.do(http.MethodPut, "/api/v1/quiz/session/answers", resp.Ticket, gin.H{"question_id": 12, "answer_id": 121})
	require.Equal(t, http.StatusOK, w.Code)

	// A second gateway sharing Redis has never seen the session.
	fresh := service.NewQuizService(
		env.upstream,
		quiz.NewQuestionCache(env.rdb, env.upstream, time.Hour, zerolog.Nop()),
		env.ledger, nil, env.tickets, env.rdb, time.Hour, zerolog.Nop(),
	)

	claims, err := env.tickets.Validate(resp.Ticket)
	require.NoError(t, err)
	sess, err := fresh.Resume(t.Context(), claims)
	require.NoError(t, err)
	assert.Equal(t, "Budi", sess.Sheet.StudentName())
	assert.Equal(t, []int{121}, sess.State().AnswerIDs)
	assert.Equal(t, []int{11}, sess.State().UnansweredQuestionIDs)
}

func TestGetMonitorConfig(t *testing.T) {
	env := newTestEnv(t)

	w, body := env.do(http.MethodGet, "/api/v1/quiz/monitor-config", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[struct {
		Events            []string `json:"events"`
		FullscreenMethods []string `json:"fullscreen_methods"`
		ThrottleMS        int64    `json:"throttle_ms"`
		BeaconSignalTypes []string `json:"beacon_signal_types"`
	}](t, body.Data)
	assert.Len(t, got.Events, len(cheat.Events))
	assert.Equal(t, "requestFullscreen", got.FullscreenMethods[0])
	assert.Equal(t, int64(60000), got.ThrottleMS)
	assert.ElementsMatch(t, []string{"pagehide", "beforeunload"}, got.BeaconSignalTypes)
}

func TestPostSignal(t *testing.T) {
	env := newTestEnv(t)
	resp := env.start("Budi")

	w, _ := env.do(http.MethodPost, "/api/v1/quiz/session/signals", resp.Ticket, cheat.Signal{Type: cheat.SignalPageHide, PageURL: "https://quiz.test/ujian"})
	require.Equal(t, http.StatusAccepted, w.Code)

	queued, err := env.mr.List(config.WorkerKey.PersistCheatsQueue)
	require.NoError(t, err)
	require.Len(t, queued, 1)
	entry := decode[model.CheatLog](t, []byte(queued[0]))
	assert.Equal(t, string(cheat.EventPageHide), entry.Event)
	assert.Equal(t, resp.SessionID, entry.SessionID)
	assert.Equal(t, "Budi", entry.StudentName)
	assert.Contains(t, string(entry.Payload), "https://quiz.test/ujian")

	count := env.mr.HGet(config.CacheKey.CheatCountKey(testToken), resp.SessionID)
	assert.Equal(t, "1", count)

	// The transient monitor is not left attached.
	assert.Zero(t, env.proctor.ActiveMonitors())

	w, body := env.do(http.MethodPost, "/api/v1/quiz/session/signals", resp.Ticket, gin.H{"type": "scroll"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, response.ErrUnknownSignal, body.Error.Code)

	w, body = env.do(http.MethodPost, "/api/v1/quiz/session/signals", resp.Ticket, gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, response.ErrValidation, body.Error.Code)
}

func TestPostSignalIsThrottled(t *testing.T) {
	env := newTestEnv(t)
	resp := env.start("Budi")

	for i := 0; i < 5; i++ {
		w, _ := env.do(http.MethodPost, "/api/v1/quiz/session/signals", resp.Ticket, cheat.Signal{Type: cheat.SignalCopy})
		require.Equal(t, http.StatusAccepted, w.Code)
	}
	w, _ := env.do(http.MethodPost, "/api/v1/quiz/session/signals", resp.Ticket, cheat.Signal{Type: cheat.SignalPaste})
	require.Equal(t, http.StatusAccepted, w.Code)

	queued, err := env.mr.List(config.WorkerKey.PersistCheatsQueue)
	require.NoError(t, err)
	require.Len(t, queued, 2)
	assert.Equal(t, string(cheat.EventCopy), decode[model.CheatLog](t, []byte(queued[0])).Event)
	assert.Equal(t, string(cheat.EventPaste), decode[model.CheatLog](t, []byte(queued[1])).Event)
	assert.Equal(t, "2", env.mr.HGet(config.CacheKey.CheatCountKey(testToken), resp.SessionID))
}

func TestQuestionDetailAndChat(t *testing.T) {
	env := newTestEnv(t)
	resp := env.start("Budi")

	w, body := env.do(http.MethodPost, "/api/v1/quiz/session/question-detail", resp.Ticket, gin.H{"question_order": 1})
	require.Equal(t, http.StatusOK, w.Code)
	detail := decode[model.RenderedQuestionDetail](t, body.Data)
	assert.Equal(t, "$x^{2}$", detail.QuestionText)
	assert.Contains(t, string(detail.QuestionHTML), `\(x^{2}\)`)

	w, body = env.do(http.MethodPost, "/api/v1/quiz/session/question-detail", resp.Ticket, gin.H{"question_order": 9})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, response.ErrTestNotFound, body.Error.Code)

	w, body = env.do(http.MethodPost, "/api/v1/quiz/session/chat", resp.Ticket, gin.H{"test_result_id": 77, "message": "Kenapa 9?"})
	require.Equal(t, http.StatusOK, w.Code)
	reply := decode[model.RenderedChatReply](t, body.Data)
	assert.Equal(t, "Karena $3^2 = 9$", reply.Response)
	assert.Contains(t, string(reply.HTML), `\(3^2 = 9\)`)
	assert.Equal(t, "success", reply.Status)

	w, body = env.do(http.MethodPost, "/api/v1/quiz/session/chat", resp.Ticket, gin.H{"test_result_id": 77})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, body.Error.Fields, "message")
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		want response.ErrCode
	}{
		{quiz.ErrNotFound, response.ErrTestNotFound},
		{quiz.ErrRejected, response.ErrUpstreamRejected},
		{errors.Join(errors.New("post"), quiz.ErrUpstream), response.ErrUpstreamUnavailable},
		{service.ErrTestUnavailable, response.ErrTestNotAvailable},
		{service.ErrTicketInvalid, response.ErrTicketInvalid},
		{errors.New("boom"), response.ErrInternal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, errorCode(tt.err), "%v", tt.err)
	}
}
