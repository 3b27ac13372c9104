package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CHEAT_THROTTLE_MS", "")
	t.Setenv("DEVTOOLS_POLL_MS", "")

	cfg := Load()
	assert.Equal(t, 15*time.Second, cfg.CheatThrottle)
	assert.Equal(t, time.Second, cfg.DevToolsPoll)
	assert.Equal(t, 160, cfg.DevToolsThresholdPx)
	assert.Equal(t, "tex", cfg.MathEngine)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("CHEAT_THROTTLE_MS", "2500")
	t.Setenv("DEVTOOLS_THRESHOLD_PX", "200")
	t.Setenv("UPSTREAM_TIMEOUT_SECONDS", "not-a-number")
	t.Setenv("ALLOWED_ORIGINS", " https://a.example ,,https://b.example")

	cfg := Load()
	assert.Equal(t, 2500*time.Millisecond, cfg.CheatThrottle)
	assert.Equal(t, 200, cfg.DevToolsThresholdPx)
	assert.Equal(t, 10*time.Second, cfg.UpstreamTimeout)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
}

func TestCacheKeys(t *testing.T) {
	assert.Equal(t, "test:abc:questions", CacheKey.QuestionsKey("abc"))
	assert.Equal(t, "session:s1:answers", CacheKey.SessionAnswersKey("s1"))
	assert.Equal(t, "test:abc:monitor", CacheKey.ProctorChannel("abc"))
}
