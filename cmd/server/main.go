package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-quiz/internal/config"
	"github.com/stemsi/exstem-quiz/internal/database"
	"github.com/stemsi/exstem-quiz/internal/handler"
	"github.com/stemsi/exstem-quiz/internal/logger"
	"github.com/stemsi/exstem-quiz/internal/quiz"
	"github.com/stemsi/exstem-quiz/internal/repository"
	"github.com/stemsi/exstem-quiz/internal/router"
	"github.com/stemsi/exstem-quiz/internal/service"
	"github.com/stemsi/exstem-quiz/internal/validator"
	"github.com/stemsi/exstem-quiz/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Str("upstream", cfg.UpstreamAPIURL).
		Str("math_engine", cfg.MathEngine).
		Msg("Starting ExStem Quiz Gateway")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Initialize Repositories ───────────────────────────────────────
	sessionRepo := repository.NewQuizSessionRepository(pool)
	cheatRepo := repository.NewCheatRepository(pool)

	// ─── Initialize Upstream Client ────────────────────────────────────
	upstream := quiz.NewClient(cfg.UpstreamAPIURL, cfg.UpstreamChatbotURL, cfg.UpstreamTimeout, cfg.UpstreamChatTimeout, log)
	questionCache := quiz.NewQuestionCache(rdb, upstream, cfg.QuestionCacheTTL, log)

	// ─── Initialize Services ──────────────────────────────────────────
	mathService, err := service.NewMathService(cfg.MathRulesFile, cfg.MathEngine, log)
	if err != nil {
		log.Fatal().Err(err).Str("file", cfg.MathRulesFile).Msg("Failed to load math rules")
	}
	ticketService := service.NewTicketService(cfg)
	quizService := service.NewQuizService(upstream, questionCache, sessionRepo, mathService, ticketService, rdb, cfg.TicketExpiry, log)
	monitorSettings := service.MonitorSettingsFrom(cfg)
	proctorService := service.NewProctorService(rdb, cheatRepo, sessionRepo, monitorSettings, log)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Quiz:    handler.NewQuizHandler(quizService, proctorService, monitorSettings, log),
		WS:      handler.NewWSHandler(quizService, proctorService, log, cfg.AllowedOrigins),
		Monitor: handler.NewMonitorHandler(rdb, quizService, proctorService, log),
		Math:    handler.NewMathHandler(mathService),
		System:  handler.NewSystemHandler(rdb, pool, quizService, proctorService, log),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup

	cheatWorker := worker.NewCheatWorker(cheatRepo, rdb, log)
	workers.Add(1)
	go func() {
		defer workers.Done()
		cheatWorker.Start(workerCtx)
	}()

	// Expired sessions and idle cheat throttles leave memory.
	workers.Add(2)
	go func() {
		defer workers.Done()
		quizService.RunSweeper(workerCtx)
	}()
	go func() {
		defer workers.Done()
		proctorService.RunSweeper(workerCtx)
	}()

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(ctx, ticketService, handlers, cfg, log)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout). Hijacked sockets
	// are not tracked by Shutdown, so monitors are detached explicitly.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}
	proctorService.Close()

	// 2. Stop background workers and wait for the cheat queue to drain.
	workerCancel()
	workers.Wait()

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
