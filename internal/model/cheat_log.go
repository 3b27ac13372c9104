package model

import (
	"encoding/json"
	"time"
)

// CheatLog is one delivered cheat event, as queued for persistence and
// published to the proctor feed.
type CheatLog struct {
	SessionID   string          `json:"session_id"`
	Token       string          `json:"token"`
	StudentName string          `json:"student_name"`
	Event       string          `json:"event"`
	Payload     json.RawMessage `json:"payload"`
	Timestamp   int64           `json:"timestamp"`
}

// StoredCheatLog is a persisted cheat log row.
type StoredCheatLog struct {
	ID          int64           `json:"id"`
	SessionID   string          `json:"session_id"`
	Token       string          `json:"token"`
	StudentName string          `json:"student_name"`
	Event       string          `json:"event"`
	Payload     json.RawMessage `json:"payload"`
	RecordedAt  time.Time       `json:"recorded_at"`
}
