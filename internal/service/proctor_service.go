package service

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-quiz/internal/cheat"
	"github.com/stemsi/exstem-quiz/internal/config"
	"github.com/stemsi/exstem-quiz/internal/model"
)

const (
	sinkTimeout = 2 * time.Second

	// throttleSweepInterval is how often idle per-session throttles are
	// dropped.
	throttleSweepInterval = time.Minute
)

// CheatLogReader reads persisted cheat logs.
type CheatLogReader interface {
	ListByToken(ctx context.Context, token string, limit int) ([]model.StoredCheatLog, error)
	CountBySession(ctx context.Context, token string) (map[string]int64, error)
}

// SessionLister lists the attempts at a test.
type SessionLister interface {
	ListByToken(ctx context.Context, token string) ([]model.QuizSession, error)
}

// MonitorSettings are the cheat monitor knobs shared by every session.
type MonitorSettings struct {
	Throttle          time.Duration
	DevToolsPoll      time.Duration
	DevToolsThreshold int
	WebhookURL        string
}

// MonitorSettingsFrom reads the monitor knobs from cfg.
func MonitorSettingsFrom(cfg *config.Config) MonitorSettings {
	return MonitorSettings{
		Throttle:          cfg.CheatThrottle,
		DevToolsPoll:      cfg.DevToolsPoll,
		DevToolsThreshold: cfg.DevToolsThresholdPx,
		WebhookURL:        cfg.CheatWebhookURL,
	}
}

// Proctor feed message types.
const (
	FeedCheat     = "cheat"
	FeedJoined    = "joined"
	FeedSubmitted = "submitted"
)

// FeedMessage is published on a test's proctor channel. Data is a
// *model.CheatLog for FeedCheat and a StudentProgress otherwise.
type FeedMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// StudentProgress is one attempt as seen by the proctor.
type StudentProgress struct {
	SessionID      string              `json:"session_id"`
	StudentName    string              `json:"student_name"`
	Status         model.SessionStatus `json:"status"`
	StartedAt      time.Time           `json:"started_at"`
	CorrectAnswers *int                `json:"correct_answers,omitempty"`
	Score          *string             `json:"score_percentage,omitempty"`
	CheatCount     int64               `json:"cheat_count"`
}

// ProctorSnapshot is the state of one test sent when a proctor attaches.
type ProctorSnapshot struct {
	Token           string            `json:"token"`
	TotalJoined     int               `json:"total_joined"`
	TotalInProgress int               `json:"total_in_progress"`
	TotalCompleted  int               `json:"total_completed"`
	TotalCheats     int64             `json:"total_cheats"`
	Students        []StudentProgress `json:"students"`
}

// ProctorService attaches cheat monitors to quiz sessions and fans their
// payloads out to the persistence queue, the live proctor feed and the
// optional webhook.
type ProctorService struct {
	rdb      *redis.Client
	logs     CheatLogReader
	sessions SessionLister
	settings MonitorSettings
	log      zerolog.Logger

	mu       sync.Mutex
	monitors map[uuid.UUID]*cheat.Monitor
	// throttles outlive monitors, so a reconnect or a beacon cannot
	// reset the throttle window of a session.
	throttles map[uuid.UUID]*cheat.Throttle
	now       func() time.Time
}

// NewProctorService creates a new ProctorService.
func NewProctorService(rdb *redis.Client, logs CheatLogReader, sessions SessionLister, settings MonitorSettings, log zerolog.Logger) *ProctorService {
	return &ProctorService{
		rdb:      rdb,
		logs:     logs,
		sessions: sessions,
		settings: settings,
		log:      log.With().Str("component", "proctor_service").Logger(),
		monitors:  make(map[uuid.UUID]*cheat.Monitor),
		throttles: make(map[uuid.UUID]*cheat.Throttle),
		now:       time.Now,
	}
}

// Attach starts a monitor for sess, replacing any earlier one (a reloaded
// page reconnects with the same ticket).
func (s *ProctorService) Attach(sess *Session, pageURL, userAgent string) *cheat.Monitor {
	m := cheat.Attach(cheat.Config{
		State:             sess.Sheet,
		Throttle:          s.settings.Throttle,
		Sent:              s.throttle(sess.ID),
		DevToolsPoll:      s.settings.DevToolsPoll,
		DevToolsThreshold: s.settings.DevToolsThreshold,
		OnLog:             s.sink(sess.ID.String(), sess.Token()),
		WebhookURL:        s.settings.WebhookURL,
		PageURL:           pageURL,
		UserAgent:         userAgent,
		Logger:            s.log,
	})

	s.mu.Lock()
	prev := s.monitors[sess.ID]
	s.monitors[sess.ID] = m
	s.mu.Unlock()

	if prev != nil {
		prev.Detach()
	}
	return m
}

// Detach stops the monitor of a session if it is still the current one.
func (s *ProctorService) Detach(sessionID uuid.UUID, m *cheat.Monitor) {
	s.mu.Lock()
	if cur, ok := s.monitors[sessionID]; ok && (m == nil || cur == m) {
		delete(s.monitors, sessionID)
		m = cur
	}
	s.mu.Unlock()

	if m != nil {
		m.Detach()
	}
}

// Handle feeds a signal to the session's monitor. It reports false when no
// monitor is attached.
func (s *ProctorService) Handle(sessionID uuid.UUID, sig cheat.Signal) bool {
	s.mu.Lock()
	m, ok := s.monitors[sessionID]
	s.mu.Unlock()
	if !ok {
		return false
	}
	m.Handle(sig)
	return true
}

func (s *ProctorService) throttle(sessionID uuid.UUID) *cheat.Throttle {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.throttles[sessionID]
	if !ok {
		t = cheat.NewThrottle()
		s.throttles[sessionID] = t
	}
	return t
}

// RunSweeper drops idle throttles of detached sessions until ctx is done.
func (s *ProctorService) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(throttleSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.sweepThrottles(); n > 0 {
				s.log.Debug().Int("dropped", n).Msg("Idle cheat throttles dropped")
			}
		}
	}
}

func (s *ProctorService) sweepThrottles() int {
	window := s.settings.Throttle
	if window <= 0 {
		window = cheat.DefaultThrottle
	}
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	dropped := 0
	for id, t := range s.throttles {
		if _, attached := s.monitors[id]; attached {
			continue
		}
		if t.Idle(now, window) {
			delete(s.throttles, id)
			dropped++
		}
	}
	return dropped
}

// ActiveMonitors returns the number of attached monitors.
func (s *ProctorService) ActiveMonitors() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.monitors)
}

// Close detaches every monitor.
func (s *ProctorService) Close() {
	s.mu.Lock()
	monitors := s.monitors
	s.monitors = make(map[uuid.UUID]*cheat.Monitor)
	s.mu.Unlock()

	for _, m := range monitors {
		m.Detach()
	}
}

// sink queues, counts and publishes a payload. It runs on the monitor's
// delivery path, so Redis calls are bounded by sinkTimeout.
func (s *ProctorService) sink(sessionID, token string) func(cheat.Payload) {
	return func(p cheat.Payload) {
		raw, err := json.Marshal(p)
		if err != nil {
			s.log.Error().Err(err).Msg("Encode cheat payload failed")
			return
		}
		entry := &model.CheatLog{
			SessionID:   sessionID,
			Token:       token,
			StudentName: p.StudentName,
			Event:       string(p.Event),
			Payload:     raw,
			Timestamp:   p.At.Unix(),
		}
		queued, _ := json.Marshal(entry)
		feed, _ := json.Marshal(FeedMessage{Type: FeedCheat, Data: entry})

		ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
		defer cancel()

		pipe := s.rdb.Pipeline()
		pipe.RPush(ctx, config.WorkerKey.PersistCheatsQueue, queued)
		pipe.HIncrBy(ctx, config.CacheKey.CheatCountKey(token), sessionID, 1)
		pipe.Publish(ctx, config.CacheKey.ProctorChannel(token), feed)
		if _, err := pipe.Exec(ctx); err != nil {
			s.log.Error().Err(err).
				Str("session_id", sessionID).
				Str("event", string(p.Event)).
				Msg("Failed to queue cheat log")
			return
		}

		s.log.Info().
			Str("session_id", sessionID).
			Str("token", token).
			Str("event", string(p.Event)).
			Msg("Cheat event recorded")
	}
}

// Announce publishes a join or submit of sess on its test's proctor feed.
// Failures are logged; the feed is advisory.
func (s *ProctorService) Announce(ctx context.Context, typ string, sess *Session) {
	status := model.SessionStatusInProgress
	if typ == FeedSubmitted {
		status = model.SessionStatusCompleted
	}
	msg, err := json.Marshal(FeedMessage{Type: typ, Data: StudentProgress{
		SessionID:   sess.ID.String(),
		StudentName: sess.Sheet.StudentName(),
		Status:      status,
		StartedAt:   sess.StartedAt,
	}})
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sinkTimeout)
	defer cancel()
	if err := s.rdb.Publish(ctx, config.CacheKey.ProctorChannel(sess.Token()), msg).Err(); err != nil {
		s.log.Warn().Err(err).Str("type", typ).Str("session_id", sess.ID.String()).Msg("Failed to announce session")
	}
}

// CheatCounts returns the cheat count of every session of a test. Live Redis
// counters win over persisted rows, which lag behind the worker.
func (s *ProctorService) CheatCounts(ctx context.Context, token string) (map[string]int64, int64, error) {
	var (
		live      map[string]string
		persisted map[string]int64
		liveErr   error
		dbErr     error
		wg        sync.WaitGroup
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		live, liveErr = s.rdb.HGetAll(ctx, config.CacheKey.CheatCountKey(token)).Result()
	}()
	go func() {
		defer wg.Done()
		persisted, dbErr = s.logs.CountBySession(ctx, token)
	}()
	wg.Wait()

	if liveErr != nil && dbErr != nil {
		return nil, 0, liveErr
	}

	counts := make(map[string]int64)
	for sid, n := range persisted {
		counts[sid] = n
	}
	for sid, raw := range live {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil && n > counts[sid] {
			counts[sid] = n
		}
	}

	var total int64
	for _, n := range counts {
		total += n
	}
	return counts, total, nil
}

// Snapshot gathers every attempt at a test with its cheat count.
func (s *ProctorService) Snapshot(ctx context.Context, token string) (*ProctorSnapshot, error) {
	sessions, err := s.sessions.ListByToken(ctx, token)
	if err != nil {
		return nil, err
	}

	// Cheat counts are best-effort.
	counts, total, err := s.CheatCounts(ctx, token)
	if err != nil {
		s.log.Warn().Err(err).Str("token", token).Msg("Cheat counts unavailable for snapshot")
	}

	snap := &ProctorSnapshot{
		Token:       token,
		TotalJoined: len(sessions),
		TotalCheats: total,
		Students:    make([]StudentProgress, 0, len(sessions)),
	}
	for _, sess := range sessions {
		switch sess.Status {
		case model.SessionStatusInProgress:
			snap.TotalInProgress++
		case model.SessionStatusCompleted:
			snap.TotalCompleted++
		}
		snap.Students = append(snap.Students, StudentProgress{
			SessionID:      sess.ID.String(),
			StudentName:    sess.StudentName,
			Status:         sess.Status,
			StartedAt:      sess.StartedAt,
			CorrectAnswers: sess.CorrectAnswers,
			Score:          sess.ScorePercentage,
			CheatCount:     counts[sess.ID.String()],
		})
	}
	return snap, nil
}

// Logs returns the newest persisted cheat logs of a test.
func (s *ProctorService) Logs(ctx context.Context, token string, limit int) ([]model.StoredCheatLog, error) {
	return s.logs.ListByToken(ctx, token, limit)
}
