package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/tzavrishon/mivhan/internal/config"
	"github.com/tzavrishon/mivhan/internal/database"
	"github.com/tzavrishon/mivhan/internal/handler"
	"github.com/tzavrishon/mivhan/internal/logger"
	"github.com/tzavrishon/mivhan/internal/repository"
	"github.com/tzavrishon/mivhan/internal/router"
	"github.com/tzavrishon/mivhan/internal/service"
	"github.com/tzavrishon/mivhan/internal/validator"
	"github.com/tzavrishon/mivhan/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat, nil)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Int("sections", len(cfg.ExamLayout)).
		Msg("Starting exam server")

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
	learnerRepo := repository.NewLearnerRepository(pool)
	questionRepo := repository.NewQuestionRepository(pool)
	attemptRepo := repository.NewAttemptRepository(pool)
	answerRepo := repository.NewAnswerRepository(pool)

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg, rdb)
	learnerService := service.NewLearnerService(learnerRepo, authService)
	events := service.NewEventPublisher(rdb, log)
	examService := service.NewExamService(attemptRepo, questionRepo, answerRepo, rdb, events, cfg.ExamLayout, log)

	// Warn early when the bank cannot fill a section.
	if counts, err := questionRepo.CountByKind(ctx); err != nil {
		log.Warn().Err(err).Msg("Question bank check failed")
	} else {
		for _, l := range cfg.ExamLayout {
			if counts[l.Kind] < l.Questions {
				log.Warn().
					Str("kind", string(l.Kind)).
					Int("have", counts[l.Kind]).
					Int("need", l.Questions).
					Msg("Question bank smaller than section size")
			}
		}
	}

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Auth:   handler.NewAuthHandler(authService, learnerService, log),
		Exam:   handler.NewExamHandler(examService, log),
		WS:     handler.NewWSHandler(rdb, examService, log, cfg.AllowedOrigins),
		Health: handler.NewHealthHandler(pool, rdb, log),
	}
	limiters := router.NewLimiters(cfg)

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	workerDone := make(chan struct{})

	eventWorker := worker.NewEventWorker(pool, rdb, log)
	go func() {
		defer close(workerDone)
		eventWorker.Start(workerCtx)
	}()

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, limiters, cfg, log)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}
	limiters.Stop()

	// 2. Stop the event worker and wait for the queue to drain.
	workerCancel()
	select {
	case <-workerDone:
	case <-time.After(10 * time.Second):
		log.Warn().Msg("Event worker did not drain in time")
	}

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
