package model

import "html/template"

// ChatRequest asks the explanation assistant about a submitted result.
type ChatRequest struct {
	TestResultID int    `json:"test_result_id" binding:"required,min=1"`
	Message      string `json:"message" binding:"required,min=1,max=2000"`
}

// ChatReply is the upstream chatbot response.
type ChatReply struct {
	Response string `json:"response"`
	Status   string `json:"status"`
}

// RenderedChatReply is ChatReply with the response rendered to HTML.
type RenderedChatReply struct {
	Response string        `json:"response"`
	HTML     template.HTML `json:"html"`
	Status   string        `json:"status"`
}

// RenderMathRequest is the body of the math preview endpoint.
type RenderMathRequest struct {
	Text string `json:"text" binding:"max=10000"`
}
