package model

// TestDetail is the upstream description of a test, looked up by its token.
type TestDetail struct {
	Name          string `json:"name"`
	GroupName     string `json:"group_name"`
	SubjectName   string `json:"subject_name"`
	IsActive      *bool  `json:"is_active,omitempty"`
	Valid         *bool  `json:"valid,omitempty"`
	TestName      string `json:"test_name,omitempty"`
	TestType      string `json:"test_type,omitempty"`
	ExpiresAt     string `json:"expires_at,omitempty"`
	DeadlineStart string `json:"deadline_start"`
	DeadlineEnd   string `json:"deadline_end"`
}

// Available reports whether the upstream still accepts attempts for the test.
// Missing flags count as available.
func (d *TestDetail) Available() bool {
	if d.IsActive != nil && !*d.IsActive {
		return false
	}
	if d.Valid != nil && !*d.Valid {
		return false
	}
	return true
}

// TestResult is the scorecard returned by the upstream after submission.
type TestResult struct {
	ID                     int            `json:"id"`
	StudentName            string         `json:"student_name"`
	StudentUUID            string         `json:"student_uuid"`
	TestName               string         `json:"test_name"`
	GroupName              string         `json:"group_name"`
	SubjectName            string         `json:"subject_name"`
	TotalQuestions         int            `json:"total_questions"`
	CorrectAnswers         int            `json:"correct_answers"`
	ScorePercentage        string         `json:"score_percentage"`
	CorrectAnswerQuestions []int          `json:"correct_answer_questions"`
	WrongAnswerQuestions   []int          `json:"wrong_answer_questions"`
	StudentAnswersMap      map[string]int `json:"student_answers_map,omitempty"`
}

// SubmitPayload is the body sent to the upstream submit endpoint.
type SubmitPayload struct {
	Token                 string `json:"token"`
	StudentName           string `json:"student_name"`
	AnswerIDs             []int  `json:"answer_ids"`
	UnansweredQuestionIDs []int  `json:"unanswered_question_ids"`
}

// StartQuizRequest is the payload for opening a quiz session.
type StartQuizRequest struct {
	Token       string `json:"token" binding:"required,quiztoken"`
	StudentName string `json:"student_name" binding:"required,min=1,max=255"`
}

// StartQuizResponse carries the session ticket and the rendered test detail.
type StartQuizResponse struct {
	SessionID string      `json:"session_id"`
	Ticket    string      `json:"ticket"`
	ExpiresAt string      `json:"expires_at"`
	Test      *TestDetail `json:"test"`
}

// TestDetailQuery is the query string of the test lookup endpoint.
type TestDetailQuery struct {
	Token string `form:"token" binding:"required,quiztoken"`
}
