package model

import "html/template"

// Answer is one selectable option of a question.
type Answer struct {
	ID   int    `json:"id"`
	Text string `json:"text"`
}

// Question is the upstream question. CorrectAnswerID never leaves the gateway.
type Question struct {
	ID              int      `json:"id"`
	Text            string   `json:"text"`
	Order           int      `json:"order"`
	Answers         []Answer `json:"answers"`
	CorrectAnswerID int      `json:"correct_answer_id,omitempty"`
}

// QuestionDetail is the review view of one question, by order.
type QuestionDetail struct {
	QuestionText  string `json:"question_text"`
	CorrectAnswer string `json:"correct_answer"`
}

// QuestionDetailRequest looks up a question by its display order.
type QuestionDetailRequest struct {
	QuestionOrder int `json:"question_order" binding:"required,min=1"`
}

// RenderedAnswer is an answer with its text rendered to an HTML fragment.
type RenderedAnswer struct {
	ID   int           `json:"id"`
	Text string        `json:"text"`
	HTML template.HTML `json:"html"`
}

// RenderedQuestion is the student-facing question: normalized, rendered,
// and without the correct answer.
type RenderedQuestion struct {
	ID      int              `json:"id"`
	Order   int              `json:"order"`
	Text    string           `json:"text"`
	HTML    template.HTML    `json:"html"`
	Answers []RenderedAnswer `json:"answers"`
}

// RenderedQuestionDetail is QuestionDetail with both fields rendered.
type RenderedQuestionDetail struct {
	QuestionText      string        `json:"question_text"`
	QuestionHTML      template.HTML `json:"question_html"`
	CorrectAnswer     string        `json:"correct_answer"`
	CorrectAnswerHTML template.HTML `json:"correct_answer_html"`
}
