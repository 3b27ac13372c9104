package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-quiz/internal/cheat"
	"github.com/stemsi/exstem-quiz/internal/middleware"
	"github.com/stemsi/exstem-quiz/internal/response"
	"github.com/stemsi/exstem-quiz/internal/service"
	ws "github.com/stemsi/exstem-quiz/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

const closeWait = time.Second

// WSHandler serves the quiz stream: the page forwards browser signals and
// answers over one socket for the life of the quiz.
type WSHandler struct {
	quizService    *service.QuizService
	proctorService *service.ProctorService
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(quizService *service.QuizService, proctorService *service.ProctorService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		quizService:    quizService,
		proctorService: proctorService,
		log:            log.With().Str("component", "ws_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// QuizStream godoc
// WS /ws/v1/quiz/stream?ticket=
// Attaches the cheat monitor for as long as the socket is open.
func (h *WSHandler) QuizStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.FailCode(c, response.ErrTicketRequired)
		return
	}

	// Resolve the session before upgrading so failures are plain HTTP errors.
	sess, err := h.quizService.Resume(c.Request.Context(), claims)
	if err != nil {
		failFromError(c, h.log, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	pageURL := c.Query("page_url")
	if pageURL == "" {
		pageURL = c.Request.Referer()
	}
	monitor := h.proctorService.Attach(sess, pageURL, c.Request.UserAgent())
	defer h.proctorService.Detach(sess.ID, monitor)

	wsLog := h.log.With().
		Str("session_id", sess.ID.String()).
		Str("token", sess.Token()).
		Logger()
	wsLog.Info().Msg("Student connected")

	_ = ws.WriteJSON(conn, ws.EventFullscreen, ws.FullscreenData{Methods: cheat.FullscreenRequest()})
	_ = ws.WriteJSON(conn, ws.EventState, sess.State())

	for {
		var msg ws.RequestPayload
		if err := ws.ReadJSON(conn, &msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		switch msg.Action {
		case ws.ActionSignal:
			h.handleSignal(conn, monitor, &msg)
		case ws.ActionAnswer:
			h.handleAnswer(c, conn, wsLog, sess, &msg)
		case ws.ActionSubmit:
			if h.handleSubmit(c, conn, wsLog, sess, monitor) {
				return
			}
		case ws.ActionPing:
			_ = ws.WriteTyped(conn, ws.PongResponse{Event: ws.EventPong})
		default:
			wsLog.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
			_ = ws.WriteError(conn, "unknown action: "+string(msg.Action))
		}
	}
}

// handleSignal feeds one browser signal to the monitor. Signals get no
// reply except a renewed fullscreen request after the page leaves it.
func (h *WSHandler) handleSignal(conn *websocket.Conn, monitor *cheat.Monitor, msg *ws.RequestPayload) {
	if msg.Signal == nil || !cheat.IsSignal(msg.Signal.Type) {
		_ = ws.WriteError(conn, "invalid signal")
		return
	}

	monitor.Handle(*msg.Signal)

	if ev, ok := cheat.Classify(*msg.Signal); ok && ev == cheat.EventFullscreenExited {
		_ = ws.WriteJSON(conn, ws.EventFullscreen, ws.FullscreenData{Methods: cheat.FullscreenRequest()})
	}
}

func (h *WSHandler) handleAnswer(c *gin.Context, conn *websocket.Conn, wsLog zerolog.Logger, sess *service.Session, msg *ws.RequestPayload) {
	if msg.QuestionID <= 0 || msg.AnswerID <= 0 {
		_ = ws.WriteError(conn, "question_id and answer_id are required")
		return
	}

	state, err := h.quizService.RecordAnswer(c.Request.Context(), sess, msg.QuestionID, msg.AnswerID)
	if err != nil {
		wsLog.Debug().Err(err).Int("question_id", msg.QuestionID).Msg("Answer rejected")
		_ = ws.WriteError(conn, response.GetMessage(errorCode(err)))
		return
	}

	_ = ws.WriteJSON(conn, ws.EventSuccess, state)
}

// handleSubmit reports true when the session is closed and the stream
// should end.
func (h *WSHandler) handleSubmit(c *gin.Context, conn *websocket.Conn, wsLog zerolog.Logger, sess *service.Session, monitor *cheat.Monitor) bool {
	result, err := h.quizService.Submit(c.Request.Context(), sess)
	if err != nil {
		wsLog.Warn().Err(err).Msg("Submit failed")
		_ = ws.WriteError(conn, response.GetMessage(errorCode(err)))
		return false
	}

	h.proctorService.Detach(sess.ID, monitor)
	h.proctorService.Announce(c.Request.Context(), service.FeedSubmitted, sess)

	_ = ws.WriteJSON(conn, ws.EventGraded, result)
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "submitted"),
		time.Now().Add(closeWait))
	return true
}
