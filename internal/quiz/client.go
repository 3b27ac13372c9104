// Package quiz talks to the upstream quiz API and holds the per-session
// answer state that the cheat monitor reads.
package quiz

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-quiz/internal/model"
)

// Upstream errors.
var (
	ErrNotFound = errors.New("upstream resource not found")
	ErrRejected = errors.New("upstream rejected request")
	ErrUpstream = errors.New("upstream unavailable")
)

const maxErrorBody = 512

// Client is the upstream quiz REST client. Calls are not retried.
type Client struct {
	baseURL    string
	chatbotURL string
	http       *http.Client
	chatHTTP   *http.Client
	log        zerolog.Logger
}

// NewClient builds a Client. chatTimeout applies to the chatbot endpoint,
// which answers much slower than the quiz API.
func NewClient(baseURL, chatbotURL string, timeout, chatTimeout time.Duration, log zerolog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		chatbotURL: chatbotURL,
		http:       &http.Client{Timeout: timeout},
		chatHTTP:   &http.Client{Timeout: chatTimeout},
		log:        log.With().Str("component", "quiz_client").Logger(),
	}
}

// TestDetail looks up a test by its access token.
func (c *Client) TestDetail(ctx context.Context, token string) (*model.TestDetail, error) {
	var detail model.TestDetail
	q := url.Values{"token": {token}}
	if err := c.do(ctx, c.http, http.MethodGet, c.baseURL+"/tests/detail/?"+q.Encode(), nil, &detail); err != nil {
		return nil, fmt.Errorf("test detail: %w", err)
	}
	return &detail, nil
}

// Questions fetches every question of the test, answers included.
func (c *Client) Questions(ctx context.Context, token string) ([]model.Question, error) {
	var questions []model.Question
	q := url.Values{"token": {token}}
	if err := c.do(ctx, c.http, http.MethodGet, c.baseURL+"/tests/questions/?"+q.Encode(), nil, &questions); err != nil {
		return nil, fmt.Errorf("questions: %w", err)
	}
	return questions, nil
}

// QuestionDetail fetches the review view of the question at order.
func (c *Client) QuestionDetail(ctx context.Context, token string, order int) (*model.QuestionDetail, error) {
	body := map[string]interface{}{"token": token, "question_order": order}
	var detail model.QuestionDetail
	// The upstream path is misspelled.
	if err := c.do(ctx, c.http, http.MethodPost, c.baseURL+"/qestion/detail/", body, &detail); err != nil {
		return nil, fmt.Errorf("question detail: %w", err)
	}
	return &detail, nil
}

// Submit sends the final answer set and returns the scorecard.
func (c *Client) Submit(ctx context.Context, payload model.SubmitPayload) (*model.TestResult, error) {
	var result model.TestResult
	if err := c.do(ctx, c.http, http.MethodPost, c.baseURL+"/tests/submit/", payload, &result); err != nil {
		return nil, fmt.Errorf("submit: %w", err)
	}
	return &result, nil
}

// Chat relays a question about a submitted result to the explanation bot.
func (c *Client) Chat(ctx context.Context, testResultID int, message string) (*model.ChatReply, error) {
	body := map[string]interface{}{"test_result_id": testResultID, "user_message": message}
	var reply model.ChatReply
	if err := c.do(ctx, c.chatHTTP, http.MethodPost, c.chatbotURL, body, &reply); err != nil {
		return nil, fmt.Errorf("chat: %w", err)
	}
	return &reply, nil
}

func (c *Client) do(ctx context.Context, hc *http.Client, method, target string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	c.log.Debug().
		Str("method", method).
		Str("path", req.URL.Path).
		Int("status", resp.StatusCode).
		Dur("took", time.Since(start)).
		Msg("Upstream call")

	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return statusError(resp.StatusCode, snippet)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrUpstream, err)
	}
	return nil
}

func statusError(status int, body []byte) error {
	detail := strings.TrimSpace(string(body))
	switch {
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: status %d: %s", ErrNotFound, status, detail)
	case status >= 400 && status < 500:
		return fmt.Errorf("%w: status %d: %s", ErrRejected, status, detail)
	default:
		return fmt.Errorf("%w: status %d: %s", ErrUpstream, status, detail)
	}
}
