package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-quiz/internal/config"
	"github.com/stemsi/exstem-quiz/internal/model"
	"github.com/stemsi/exstem-quiz/internal/response"
	"github.com/stemsi/exstem-quiz/internal/service"
	"github.com/stemsi/exstem-quiz/internal/validator"
)

const (
	refreshInterval   = 15 * time.Second
	keepAliveInterval = 30 * time.Second
	refreshTimeout    = 5 * time.Second // prevent slow queries from blocking the SSE loop

	defaultLogLimit = 100
	maxLogLimit     = 500
)

// MonitorHandler serves the proctor views of a test.
type MonitorHandler struct {
	rdb            *redis.Client
	quizService    *service.QuizService
	proctorService *service.ProctorService
	log            zerolog.Logger

	// Intervals are fields so tests can shorten them.
	refreshEvery   time.Duration
	keepAliveEvery time.Duration
}

// NewMonitorHandler creates a new MonitorHandler.
func NewMonitorHandler(
	rdb *redis.Client,
	quizService *service.QuizService,
	proctorService *service.ProctorService,
	log zerolog.Logger,
) *MonitorHandler {
	return &MonitorHandler{
		rdb:            rdb,
		quizService:    quizService,
		proctorService: proctorService,
		log:            log.With().Str("component", "monitor_handler").Logger(),
		refreshEvery:   refreshInterval,
		keepAliveEvery: keepAliveInterval,
	}
}

// MonitorTestSSE godoc
// GET /api/v1/proctor/tests/:token/monitor
// Streams a snapshot, then every join, submit and cheat event of the test.
func (h *MonitorHandler) MonitorTestSSE(c *gin.Context) {
	token, ok := tokenParam(c)
	if !ok {
		return
	}
	reqCtx := c.Request.Context()

	// Subscribe before the snapshot so nothing published in between is lost.
	pubsub := h.rdb.Subscribe(reqCtx, config.CacheKey.ProctorChannel(token))
	defer pubsub.Close()
	if _, err := pubsub.Receive(reqCtx); err != nil {
		h.log.Error().Err(err).Str("token", token).Msg("Proctor feed subscribe failed")
		response.FailCode(c, response.ErrInternal)
		return
	}
	ch := pubsub.Channel()

	sseHeaders(c)
	h.sendSnapshot(c, reqCtx, token)

	keepAliveTicker := time.NewTicker(h.keepAliveEvery)
	defer keepAliveTicker.Stop()

	refreshTicker := time.NewTicker(h.refreshEvery)
	defer refreshTicker.Stop()

	// Skip refreshes until something happens on the feed.
	active := false

	h.log.Info().Str("token", token).Msg("Proctor attached to live monitor SSE")

	pingPayload := []byte(`{"type":"ping"}`)

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Str("token", token).Msg("Proctor disconnected from live monitor SSE")
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}
			// Already JSON; forward as is.
			writeSSEData(c, []byte(msg.Payload))
			active = true

		case <-refreshTicker.C:
			if !active {
				continue
			}
			h.sendRefresh(c, reqCtx, token)

		case <-keepAliveTicker.C:
			writeSSEData(c, pingPayload)
		}
	}
}

func (h *MonitorHandler) sendSnapshot(c *gin.Context, parentCtx context.Context, token string) {
	ctx, cancel := context.WithTimeout(parentCtx, refreshTimeout)
	defer cancel()

	snap, err := h.proctorService.Snapshot(ctx, token)
	if err != nil {
		h.log.Warn().Err(err).Str("token", token).Msg("Snapshot unavailable")
		snap = &service.ProctorSnapshot{Token: token, Students: []service.StudentProgress{}}
	}
	writeSSEJSON(c, gin.H{"type": "snapshot", "data": snap})
}

// sendRefresh sends the current cheat counts. It corrects the proctor view
// for feed messages lost while the connection was congested.
func (h *MonitorHandler) sendRefresh(c *gin.Context, parentCtx context.Context, token string) {
	ctx, cancel := context.WithTimeout(parentCtx, refreshTimeout)
	defer cancel()

	counts, total, err := h.proctorService.CheatCounts(ctx, token)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to fetch cheat counts for refresh")
		return
	}

	writeSSEJSON(c, gin.H{
		"type":         "refresh",
		"total_cheats": total,
		"cheat_counts": counts,
	})
}

// GetSnapshot godoc
// GET /api/v1/proctor/tests/:token/snapshot
func (h *MonitorHandler) GetSnapshot(c *gin.Context) {
	token, ok := tokenParam(c)
	if !ok {
		return
	}

	snap, err := h.proctorService.Snapshot(c.Request.Context(), token)
	if err != nil {
		failFromError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, snap)
}

// ListCheatLogs godoc
// GET /api/v1/proctor/tests/:token/cheats?limit=
// Returns the newest persisted cheat logs, newest first.
func (h *MonitorHandler) ListCheatLogs(c *gin.Context) {
	token, ok := tokenParam(c)
	if !ok {
		return
	}

	limit := defaultLogLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			response.FailValidation(c, map[string]string{"limit": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxLogLimit)
	}

	logs, err := h.proctorService.Logs(c.Request.Context(), token, limit)
	if err != nil {
		failFromError(c, h.log, err)
		return
	}
	if logs == nil {
		logs = []model.StoredCheatLog{}
	}

	response.Success(c, http.StatusOK, gin.H{"logs": logs, "limit": limit})
}

// RefreshQuestionCache godoc
// POST /api/v1/proctor/tests/:token/refresh-cache
// Reloads the cached questions after they were edited upstream.
func (h *MonitorHandler) RefreshQuestionCache(c *gin.Context) {
	token, ok := tokenParam(c)
	if !ok {
		return
	}

	n, err := h.quizService.RefreshQuestions(c.Request.Context(), token)
	if err != nil {
		failFromError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "question cache refreshed", "questions": n})
}

func tokenParam(c *gin.Context) (string, bool) {
	token := c.Param("token")
	if !validator.ValidToken(token) {
		response.FailCode(c, response.ErrInvalidID)
		return "", false
	}
	return token, true
}
