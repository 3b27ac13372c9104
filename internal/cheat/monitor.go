// Package cheat classifies browser signals forwarded by the quiz page into
// suspicious-activity events, throttles repeats per event, and delivers a
// payload snapshot of the student's current answer state to the configured
// sinks.
package cheat

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultThrottle          = 15 * time.Second
	DefaultDevToolsPoll      = 1 * time.Second
	DefaultDevToolsThreshold = 160

	webhookTimeout = 10 * time.Second
	webhookBacklog = 64
	timeLayout     = "15:04:05"
)

// State is the externally owned quiz state. It is read on every delivery,
// never copied at attach time.
type State interface {
	Token() string
	StudentName() string
	AnswerIDs() []int
	UnansweredQuestionIDs() []int
}

// Payload is the immutable snapshot delivered for one event.
type Payload struct {
	Event                 Event     `json:"event"`
	Time                  string    `json:"time"`
	Token                 string    `json:"token"`
	StudentName           string    `json:"studentName"`
	AnswerIDs             []int     `json:"answerIds"`
	UnansweredQuestionIDs []int     `json:"unansweredQuestionIds"`
	PageURL               string    `json:"pageUrl"`
	UserAgent             string    `json:"userAgent"`
	At                    time.Time `json:"-"`
}

// Config configures a Monitor. A nil State yields payloads with empty
// identity and answer fields.
type Config struct {
	State State

	// Throttle is the minimum gap between two deliveries of the same event.
	// Zero means DefaultThrottle.
	Throttle time.Duration
	// Sent carries delivery times across monitors of the same page. Nil
	// gives the monitor a fresh Throttle.
	Sent *Throttle
	// DevToolsPoll is the docked-devtools check interval. Zero means
	// DefaultDevToolsPoll, negative disables polling.
	DevToolsPoll time.Duration
	// DevToolsThreshold is the outer/inner size gap in pixels. Zero means
	// DefaultDevToolsThreshold.
	DevToolsThreshold int

	// OnLog is called synchronously, in observation order. It must not call
	// back into the Monitor.
	OnLog      func(Payload)
	WebhookURL string
	HTTPClient *http.Client

	PageURL   string
	UserAgent string

	Logger zerolog.Logger
	Now    func() time.Time
}

type viewport struct {
	outerW, innerW, outerH, innerH int
}

// Monitor is attached for the lifetime of one quiz page.
type Monitor struct {
	cfg Config
	log zerolog.Logger

	mu       sync.Mutex
	sent     *Throttle
	view     viewport
	pageURL  string
	detached bool

	// hooks feeds the webhook goroutine in delivery order. It is closed on
	// Detach; queued payloads are still posted.
	hooks chan Payload

	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// Attach starts a Monitor. The returned Monitor must be released with
// Detach, which stops the devtools poll and drops all later signals.
func Attach(cfg Config) *Monitor {
	if cfg.State == nil {
		cfg.State = emptyState{}
	}
	if cfg.Throttle == 0 {
		cfg.Throttle = DefaultThrottle
	}
	if cfg.DevToolsPoll == 0 {
		cfg.DevToolsPoll = DefaultDevToolsPoll
	}
	if cfg.DevToolsThreshold == 0 {
		cfg.DevToolsThreshold = DefaultDevToolsThreshold
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: webhookTimeout}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Sent == nil {
		cfg.Sent = NewThrottle()
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Monitor{
		cfg:     cfg,
		log:     cfg.Logger.With().Str("component", "cheat_monitor").Logger(),
		sent:    cfg.Sent,
		pageURL: cfg.PageURL,
		cancel:  cancel,
	}

	if cfg.WebhookURL != "" {
		m.hooks = make(chan Payload, webhookBacklog)
		go m.runWebhook()
	}
	if cfg.DevToolsPoll > 0 {
		m.wg.Add(1)
		go m.pollDevTools(ctx)
	}
	return m
}

// Detach stops the monitor. It is safe to call more than once. Webhook
// posts already queued finish in the background.
func (m *Monitor) Detach() {
	m.once.Do(func() {
		m.mu.Lock()
		m.detached = true
		if m.hooks != nil {
			close(m.hooks)
		}
		m.mu.Unlock()

		m.cancel()
		m.wg.Wait()
	})
}

// Handle classifies a raw signal and delivers it when it maps to an event.
// Resize signals only update the viewport used by the devtools poll.
func (m *Monitor) Handle(s Signal) {
	m.mu.Lock()
	if s.PageURL != "" {
		m.pageURL = s.PageURL
	}
	if s.Type == SignalResize {
		m.view = viewport{
			outerW: s.OuterWidth, innerW: s.InnerWidth,
			outerH: s.OuterHeight, innerH: s.InnerHeight,
		}
	}
	m.mu.Unlock()

	if ev, ok := Classify(s); ok {
		m.Report(ev)
	}
}

// Report delivers ev unless the same event was delivered within the
// throttle window. Dropped events are not queued.
func (m *Monitor) Report(ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.detached {
		return
	}

	now := m.cfg.Now()
	if !m.sent.Allow(ev, now, m.cfg.Throttle) {
		return
	}

	m.deliver(m.snapshot(ev, now))
}

func (m *Monitor) snapshot(ev Event, now time.Time) Payload {
	st := m.cfg.State
	return Payload{
		Event:                 ev,
		Time:                  now.Format(timeLayout),
		Token:                 st.Token(),
		StudentName:           st.StudentName(),
		AnswerIDs:             nonNil(st.AnswerIDs()),
		UnansweredQuestionIDs: nonNil(st.UnansweredQuestionIDs()),
		PageURL:               m.pageURL,
		UserAgent:             m.cfg.UserAgent,
		At:                    now,
	}
}

// deliver runs with m.mu held so payloads leave in observation order.
func (m *Monitor) deliver(p Payload) {
	if m.cfg.OnLog != nil {
		m.callOnLog(p)
	}
	if m.hooks != nil {
		select {
		case m.hooks <- p:
		default:
			m.log.Warn().Str("event", string(p.Event)).Msg("Webhook backlog full, cheat log dropped")
		}
	}
	if m.cfg.OnLog == nil && m.cfg.WebhookURL == "" {
		m.log.Info().
			Str("event", string(p.Event)).
			Str("time", p.Time).
			Str("token", p.Token).
			Str("student_name", p.StudentName).
			Ints("answer_ids", p.AnswerIDs).
			Ints("unanswered_question_ids", p.UnansweredQuestionIDs).
			Str("page_url", p.PageURL).
			Msg("Cheating log")
	}
}

func (m *Monitor) callOnLog(p Payload) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error().Interface("panic", r).Str("event", string(p.Event)).Msg("Cheat log sink panicked")
		}
	}()
	m.cfg.OnLog(p)
}

// runWebhook posts queued payloads one at a time, in delivery order, until
// the queue is closed and drained.
func (m *Monitor) runWebhook() {
	for p := range m.hooks {
		m.postWebhook(p)
	}
}

// postWebhook uses its own context so a delivery started by a before-unload
// signal outlives the page connection.
func (m *Monitor) postWebhook(p Payload) {
	body, err := json.Marshal(p)
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), webhookTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		m.log.Debug().Err(err).Msg("Build webhook request failed")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.cfg.HTTPClient.Do(req)
	if err != nil {
		m.log.Debug().Err(err).Str("event", string(p.Event)).Msg("Webhook delivery failed")
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if resp.StatusCode >= 300 {
		m.log.Debug().Int("status", resp.StatusCode).Str("event", string(p.Event)).Msg("Webhook rejected cheat log")
	}
}

func (m *Monitor) pollDevTools(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.DevToolsPoll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if m.devToolsDocked() {
				m.Report(EventDevToolsOpened)
			}
		}
	}
}

// devToolsDocked compares outer and inner window sizes against the
// threshold. A zero viewport (no resize seen yet) never triggers.
func (m *Monitor) devToolsDocked() bool {
	m.mu.Lock()
	v := m.view
	m.mu.Unlock()

	if v.outerW == 0 && v.outerH == 0 {
		return false
	}
	limit := m.cfg.DevToolsThreshold
	return v.outerW-v.innerW > limit || v.outerH-v.innerH > limit
}

type emptyState struct{}

func (emptyState) Token() string                { return "" }
func (emptyState) StudentName() string          { return "" }
func (emptyState) AnswerIDs() []int             { return nil }
func (emptyState) UnansweredQuestionIDs() []int { return nil }

func nonNil(ids []int) []int {
	if ids == nil {
		return []int{}
	}
	return ids
}
