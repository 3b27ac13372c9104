package model

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus enumerates quiz session states.
type SessionStatus string

const (
	SessionStatusInProgress SessionStatus = "IN_PROGRESS"
	SessionStatusCompleted  SessionStatus = "COMPLETED"
)

// QuizSession is one student's attempt at a test token.
type QuizSession struct {
	ID          uuid.UUID     `json:"id"`
	Token       string        `json:"token"`
	StudentName string        `json:"student_name"`
	StartedAt   time.Time     `json:"started_at"`
	FinishedAt  *time.Time    `json:"finished_at,omitempty"`
	Status      SessionStatus `json:"status"`
	// Set from the upstream scorecard on completion.
	CorrectAnswers  *int    `json:"correct_answers,omitempty"`
	ScorePercentage *string `json:"score_percentage,omitempty"`
}

// RecordAnswerRequest selects one answer for one question.
type RecordAnswerRequest struct {
	QuestionID int `json:"question_id" binding:"required,min=1"`
	AnswerID   int `json:"answer_id" binding:"required,min=1"`
}

// SessionState is the answer progress reported back to the page.
type SessionState struct {
	SessionID             string `json:"session_id"`
	AnswerIDs             []int  `json:"answer_ids"`
	UnansweredQuestionIDs []int  `json:"unanswered_question_ids"`
}
