package handler

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stemsi/exstem-quiz/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	w, body := env.do(http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"OK","checks":{"redis":"ok","postgres":"ok"}}`, string(body.Data))

	env.system.db = fakePinger{err: errors.New("connection refused")}
	w, body = env.do(http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, string(body.Data), "connection refused")

	env.system.db = nil
	env.mr.Close()
	w, body = env.do(http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, string(body.Data), `"postgres":"disabled"`)
}

func TestStatus(t *testing.T) {
	env := newTestEnv(t)
	env.start("Ani")
	_, err := env.mr.Lpush(config.WorkerKey.PersistCheatsQueue, `{}`)
	require.NoError(t, err)

	w, body := env.do(http.MethodGet, "/api/v1/proctor/system", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	st := decode[systemStatus](t, body.Data)
	assert.Equal(t, 1, st.ActiveSessions)
	assert.Equal(t, int64(1), st.QueueCheats)
	assert.Positive(t, st.Goroutines)
	assert.NotEmpty(t, st.GoVersion)
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "1h2m3s", formatDuration(time.Hour+2*time.Minute+3*time.Second+400*time.Millisecond))
}
