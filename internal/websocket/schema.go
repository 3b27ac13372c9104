package websocket

import (
	"github.com/stemsi/exstem-quiz/internal/cheat"
	"github.com/stemsi/exstem-quiz/internal/model"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionSignal Action = "signal"
	ActionAnswer Action = "answer"
	ActionSubmit Action = "submit"
	ActionPing   Action = "ping"
)

// RequestPayload is every client message. Only the fields of the named
// action are read.
type RequestPayload struct {
	Action Action `json:"action"`

	// answer
	QuestionID int `json:"question_id,omitempty"`
	AnswerID   int `json:"answer_id,omitempty"`

	// signal
	Signal *cheat.Signal `json:"signal,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventFullscreen Event = "fullscreen"
	EventState      Event = "state"
	EventSuccess    Event = "success"
	EventGraded     Event = "graded"
	EventError      Event = "error"
	EventPong       Event = "pong"
)

// Envelope wraps every data-carrying event.
type Envelope struct {
	Event Event       `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

// FullscreenData asks the page to enter fullscreen, trying Methods in order
// on document.documentElement.
type FullscreenData struct {
	Methods []string `json:"methods"`
}

// StateData is sent on connect and after every recorded answer.
type StateData = model.SessionState

// GradedData is the upstream scorecard sent after submit.
type GradedData = model.TestResult

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
