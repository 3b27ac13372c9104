package handler

import (
	"context"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-quiz/internal/config"
	"github.com/stemsi/exstem-quiz/internal/response"
	"github.com/stemsi/exstem-quiz/internal/service"
)

const pingTimeout = 2 * time.Second

// Pinger is a backend that can report liveness. *pgxpool.Pool satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SystemHandler reports gateway health and runtime state.
type SystemHandler struct {
	rdb            *redis.Client
	db             Pinger
	quizService    *service.QuizService
	proctorService *service.ProctorService
	startTime      time.Time
	log            zerolog.Logger
}

// NewSystemHandler creates a new SystemHandler. db may be nil when the
// ledger is disabled.
func NewSystemHandler(rdb *redis.Client, db Pinger, quizService *service.QuizService, proctorService *service.ProctorService, log zerolog.Logger) *SystemHandler {
	return &SystemHandler{
		rdb:            rdb,
		db:             db,
		quizService:    quizService,
		proctorService: proctorService,
		startTime:      time.Now(),
		log:            log.With().Str("component", "system_handler").Logger(),
	}
}

type systemStatus struct {
	Timestamp int64  `json:"timestamp"`
	Uptime    string `json:"uptime"`

	// Go Application
	Goroutines int    `json:"goroutines"`
	HeapAlloc  uint64 `json:"heap_alloc"`
	HeapSys    uint64 `json:"heap_sys"`
	NumGC      uint32 `json:"num_gc"`
	GoVersion  string `json:"go_version"`
	NumCPU     int    `json:"num_cpu"`

	// Quiz
	ActiveSessions int   `json:"active_sessions"`
	ActiveMonitors int   `json:"active_monitors"`
	QueueCheats    int64 `json:"queue_cheats"`
}

// Health godoc
// GET /health
// 200 when Redis and PostgreSQL answer, 503 otherwise.
func (h *SystemHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), pingTimeout)
	defer cancel()

	checks := map[string]string{"redis": "ok", "postgres": "ok"}
	if h.db == nil {
		checks["postgres"] = "disabled"
	}
	var mu sync.Mutex
	var wg sync.WaitGroup

	check := func(name string, fn func(context.Context) error) {
		defer wg.Done()
		if err := fn(ctx); err != nil {
			mu.Lock()
			checks[name] = err.Error()
			mu.Unlock()
		}
	}

	wg.Add(1)
	go check("redis", func(ctx context.Context) error { return h.rdb.Ping(ctx).Err() })
	if h.db != nil {
		wg.Add(1)
		go check("postgres", h.db.Ping)
	}
	wg.Wait()

	status := http.StatusOK
	for name, v := range checks {
		if v != "ok" && v != "disabled" {
			h.log.Warn().Str("backend", name).Str("error", v).Msg("Health check failed")
			status = http.StatusServiceUnavailable
		}
	}

	response.Success(c, status, gin.H{"status": http.StatusText(status), "checks": checks})
}

// Status godoc
// GET /api/v1/proctor/system
func (h *SystemHandler) Status(c *gin.Context) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	st := systemStatus{
		Timestamp:      time.Now().Unix(),
		Uptime:         formatDuration(time.Since(h.startTime)),
		Goroutines:     runtime.NumGoroutine(),
		HeapAlloc:      ms.HeapAlloc,
		HeapSys:        ms.HeapSys,
		NumGC:          ms.NumGC,
		GoVersion:      runtime.Version(),
		NumCPU:         runtime.NumCPU(),
		ActiveSessions: h.quizService.ActiveSessions(),
		ActiveMonitors: h.proctorService.ActiveMonitors(),
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), pingTimeout)
	defer cancel()
	if n, err := h.rdb.LLen(ctx, config.WorkerKey.PersistCheatsQueue).Result(); err == nil {
		st.QueueCheats = n
	}

	response.Success(c, http.StatusOK, st)
}

func formatDuration(d time.Duration) string {
	return d.Truncate(time.Second).String()
}
