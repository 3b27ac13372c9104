package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stemsi/exstem-quiz/internal/config"
	"github.com/stemsi/exstem-quiz/internal/model"
	"github.com/stemsi/exstem-quiz/internal/response"
	"github.com/stemsi/exstem-quiz/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sseEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`

	TotalCheats int64            `json:"total_cheats"`
	CheatCounts map[string]int64 `json:"cheat_counts"`
}

// openFeed connects to the proctor SSE feed and returns a channel of its
// decoded events.
func openFeed(t *testing.T, env *testEnv, token string) <-chan sseEvent {
	t.Helper()
	server := httptest.NewServer(env.engine)
	t.Cleanup(server.Close)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/api/v1/proctor/tests/"+token+"/monitor", nil)
	require.NoError(t, err)
	req.Header.Set("X-Proctor-Key", proctorKey)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := make(chan sseEvent, 16)
	go func() {
		defer close(events)
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line, ok := strings.CutPrefix(scanner.Text(), "data: ")
			if !ok {
				continue
			}
			var ev sseEvent
			if json.Unmarshal([]byte(line), &ev) != nil {
				continue
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return events
}

func nextEvent(t *testing.T, events <-chan sseEvent, typ string) sseEvent {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			require.True(t, ok, "feed closed before %q", typ)
			if ev.Type == typ {
				return ev
			}
		case <-timeout:
			t.Fatalf("no %q event", typ)
		}
	}
}

func TestMonitorFeed(t *testing.T) {
	env := newTestEnv(t)
	env.monitor.refreshEvery = 20 * time.Millisecond
	env.monitor.keepAliveEvery = time.Hour

	early := env.start("Awal")
	events := openFeed(t, env, testToken)

	snap := decode[service.ProctorSnapshot](t, nextEvent(t, events, "snapshot").Data)
	assert.Equal(t, 1, snap.TotalJoined)
	assert.Equal(t, 1, snap.TotalInProgress)
	require.Len(t, snap.Students, 1)
	assert.Equal(t, early.SessionID, snap.Students[0].SessionID)

	joined := env.start("Baru")
	progress := decode[service.StudentProgress](t, nextEvent(t, events, "joined").Data)
	assert.Equal(t, joined.SessionID, progress.SessionID)
	assert.Equal(t, "Baru", progress.StudentName)

	w, _ := env.do(http.MethodPost, "/api/v1/quiz/session/signals", joined.Ticket, map[string]string{"type": "copy"})
	require.Equal(t, http.StatusAccepted, w.Code)
	entry := decode[model.CheatLog](t, nextEvent(t, events, "cheat").Data)
	assert.Equal(t, "Copy", entry.Event)
	assert.Equal(t, joined.SessionID, entry.SessionID)

	refresh := nextEvent(t, events, "refresh")
	assert.Equal(t, int64(1), refresh.TotalCheats)
	assert.Equal(t, int64(1), refresh.CheatCounts[joined.SessionID])

	w, _ = env.do(http.MethodPost, "/api/v1/quiz/session/submit", joined.Ticket, nil)
	require.Equal(t, http.StatusOK, w.Code)
	done := decode[service.StudentProgress](t, nextEvent(t, events, "submitted").Data)
	assert.Equal(t, model.SessionStatusCompleted, done.Status)
}

func TestMonitorFeedRejectsBadToken(t *testing.T) {
	env := newTestEnv(t)

	w, body := env.do(http.MethodGet, "/api/v1/proctor/tests/bad%20token/monitor", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, response.ErrInvalidID, body.Error.Code)
}

func TestProctorRoutesRequireKey(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/proctor/tests/"+testToken+"/snapshot", nil)
	w := httptest.NewRecorder()
	env.engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGetSnapshotMergesCheatCounts(t *testing.T) {
	env := newTestEnv(t)
	a := env.start("Ani")
	b := env.start("Bima")

	w, _ := env.do(http.MethodPost, "/api/v1/quiz/session/submit", b.Ticket, nil)
	require.Equal(t, http.StatusOK, w.Code)

	// Persisted rows lag behind the live counter for a, lead for b.
	env.logs.counts = map[string]int64{a.SessionID: 1, b.SessionID: 4}
	env.mr.HSet(config.CacheKey.CheatCountKey(testToken), a.SessionID, "3")

	w, body := env.do(http.MethodGet, "/api/v1/proctor/tests/"+testToken+"/snapshot", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	snap := decode[service.ProctorSnapshot](t, body.Data)
	assert.Equal(t, 2, snap.TotalJoined)
	assert.Equal(t, 1, snap.TotalInProgress)
	assert.Equal(t, 1, snap.TotalCompleted)
	assert.Equal(t, int64(7), snap.TotalCheats)

	byID := map[string]service.StudentProgress{}
	for _, s := range snap.Students {
		byID[s.SessionID] = s
	}
	assert.Equal(t, int64(3), byID[a.SessionID].CheatCount)
	assert.Equal(t, int64(4), byID[b.SessionID].CheatCount)
	require.NotNil(t, byID[b.SessionID].Score)
	assert.Equal(t, "50.00", *byID[b.SessionID].Score)
}

func TestListCheatLogs(t *testing.T) {
	env := newTestEnv(t)
	for i := 0; i < 3; i++ {
		env.logs.logs = append(env.logs.logs, model.StoredCheatLog{ID: int64(i + 1), Token: testToken, Event: "Copy", Payload: json.RawMessage(`{}`)})
	}

	w, body := env.do(http.MethodGet, "/api/v1/proctor/tests/"+testToken+"/cheats?limit=2", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[struct {
		Logs  []model.StoredCheatLog `json:"logs"`
		Limit int                    `json:"limit"`
	}](t, body.Data)
	assert.Len(t, got.Logs, 2)
	assert.Equal(t, 2, got.Limit)

	w, body = env.do(http.MethodGet, "/api/v1/proctor/tests/OTHER/cheats?limit=100000", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"logs":[],"limit":500}`, string(body.Data))

	w, body = env.do(http.MethodGet, "/api/v1/proctor/tests/"+testToken+"/cheats?limit=-1", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, body.Error.Fields, "limit")
}

func TestRefreshQuestionCache(t *testing.T) {
	env := newTestEnv(t)
	env.start("Ani")
	require.Equal(t, 1, env.upstream.loadCount())

	env.upstream.mu.Lock()
	env.upstream.questions[testToken] = env.upstream.questions[testToken][:1]
	env.upstream.mu.Unlock()

	w, body := env.do(http.MethodPost, "/api/v1/proctor/tests/"+testToken+"/refresh-cache", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[struct {
		Questions int `json:"questions"`
	}](t, body.Data)
	assert.Equal(t, 1, got.Questions)
	assert.Equal(t, 2, env.upstream.loadCount())

	w, body = env.do(http.MethodPost, "/api/v1/proctor/tests/NOPE/refresh-cache", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, response.ErrTestNotFound, body.Error.Code)
}
