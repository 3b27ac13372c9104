package router

import (
	"context"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-quiz/internal/config"
	"github.com/stemsi/exstem-quiz/internal/handler"
	"github.com/stemsi/exstem-quiz/internal/logger"
	"github.com/stemsi/exstem-quiz/internal/middleware"
	"github.com/stemsi/exstem-quiz/internal/response"
)

// startRatePerMinute bounds session starts per client IP.
const startRatePerMinute = 30

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Quiz    *handler.QuizHandler
	WS      *handler.WSHandler
	Monitor *handler.MonitorHandler
	Math    *handler.MathHandler
	System  *handler.SystemHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
// ctx bounds the rate limiter sweeps.
func SetupRouter(
	ctx context.Context,
	tickets middleware.TicketValidator,
	handlers *Handlers,
	cfg *config.Config,
	log zerolog.Logger,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery())

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID", "X-Proctor-Key"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Request ID first so the access log can carry it.
	router.Use(response.RequestIDMiddleware())
	router.Use(logger.Middleware(log, response.ContextKeyRequestID))
	router.Use(middleware.Brotli())

	router.GET("/health", handlers.System.Health)

	startLimiter := middleware.NewRateLimiter(ctx, startRatePerMinute, time.Minute, middleware.ByClientIP)
	renderLimiter := middleware.NewRateLimiter(ctx, cfg.RenderRatePerMinute, time.Minute, middleware.BySessionOrIP)

	// ─── 1. Public Quiz Group ──────────────────────────────────────────
	public := router.Group("/api/v1/quiz")
	{
		public.GET("/tests/detail", handlers.Quiz.GetTestDetail)
		public.POST("/sessions", startLimiter.Middleware(), handlers.Quiz.StartQuiz)
		public.GET("/monitor-config", middleware.CacheControl(middleware.CacheStatic), handlers.Quiz.GetMonitorConfig)
	}

	// ─── 2. Session Group (Ticket) ─────────────────────────────────────
	session := router.Group("/api/v1/quiz/session")
	session.Use(middleware.RequireTicket(tickets), middleware.CacheControl(middleware.CacheNoStore))
	{
		session.GET("/questions", handlers.Quiz.GetQuestions)
		session.GET("/state", handlers.Quiz.GetState)
		session.PUT("/answers", handlers.Quiz.RecordAnswer)
		session.POST("/submit", handlers.Quiz.SubmitQuiz)
		session.POST("/question-detail", handlers.Quiz.GetQuestionDetail)
		session.POST("/chat", handlers.Quiz.Chat)
		session.POST("/signals", handlers.Quiz.PostSignal)
	}

	// ─── 3. WebSocket Group (Ticket via ?ticket=) ──────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireTicket(tickets))
	{
		ws.GET("/quiz/stream", handlers.WS.QuizStream)
	}

	// ─── 4. Math Group (Rate Limited) ──────────────────────────────────
	math := router.Group("/api/v1/math")
	math.Use(renderLimiter.Middleware())
	{
		math.POST("/render", handlers.Math.RenderMath)
	}

	// ─── 5. Proctor Group (Shared Key) ─────────────────────────────────
	if cfg.ProctorAPIKey == "" {
		log.Warn().Msg("PROCTOR_API_KEY not set, proctor routes disabled")
		return router
	}
	proctor := router.Group("/api/v1/proctor")
	proctor.Use(middleware.RequireProctorKey(cfg.ProctorAPIKey))
	{
		proctor.GET("/system", handlers.System.Status)
		proctor.GET("/tests/:token/monitor", handlers.Monitor.MonitorTestSSE)
		proctor.GET("/tests/:token/snapshot", handlers.Monitor.GetSnapshot)
		proctor.GET("/tests/:token/cheats", handlers.Monitor.ListCheatLogs)
		proctor.POST("/tests/:token/refresh-cache", handlers.Monitor.RefreshQuestionCache)
	}

	return router
}
