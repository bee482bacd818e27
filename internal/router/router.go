package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/tzavrishon/mivhan/internal/config"
	"github.com/tzavrishon/mivhan/internal/handler"
	"github.com/tzavrishon/mivhan/internal/middleware"
	"github.com/tzavrishon/mivhan/internal/response"
	"github.com/tzavrishon/mivhan/internal/service"
)

// mediaMaxAge is one year: media files are immutable once seeded.
const mediaMaxAge = 31536000

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth   *handler.AuthHandler
	Exam   *handler.ExamHandler
	WS     *handler.WSHandler
	Health *handler.HealthHandler
}

// Limiters holds the rate limiters so main can stop their cleanup loops.
type Limiters struct {
	Login  *middleware.RateLimiter
	Submit *middleware.RateLimiter
}

// NewLimiters builds the per-IP limiters from config.
func NewLimiters(cfg *config.Config) *Limiters {
	return &Limiters{
		Login:  middleware.NewRateLimiter(cfg.LoginRatePerMinute, time.Minute),
		Submit: middleware.NewRateLimiter(cfg.SubmitRatePerMinute, time.Minute),
	}
}

// Stop ends the cleanup goroutines.
func (l *Limiters) Stop() {
	l.Login.Stop()
	l.Submit.Stop()
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	limiters *Limiters,
	cfg *config.Config,
	log zerolog.Logger,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", response.HeaderRequestID}
	corsConfig.ExposeHeaders = []string{response.HeaderRequestID, "Retry-After"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.Use(response.RequestIDMiddleware())
	router.Use(middleware.Brotli())

	// Question images and other static media.
	media := router.Group("/media")
	media.Use(middleware.CacheControl(mediaMaxAge))
	{
		media.Static("/", cfg.MediaDir)
	}

	router.GET("/health", handlers.Health.Health)

	requireLearner := middleware.RequireLearnerJWT(authService)
	singleDevice := middleware.CheckSingleDeviceSession(authService, log)

	// ─── 1. Auth Group ─────────────────────────────────────────────────
	auth := router.Group("/api/v1/auth/learner")
	{
		auth.POST("/login", limiters.Login.Middleware(), handlers.Auth.LearnerLogin)
		auth.POST("/logout", requireLearner, singleDevice, handlers.Auth.LearnerLogout)
		auth.GET("/me", requireLearner, singleDevice, handlers.Auth.GetLearnerProfile)
	}

	// ─── 2. Exam Group (JWT + Single Device) ───────────────────────────
	exam := router.Group("/api/v1/exam")
	exam.Use(requireLearner, singleDevice, middleware.NoStore())
	{
		exam.POST("/start", handlers.Exam.StartAttempt)
		exam.GET("/attempts", handlers.Exam.ListAttempts)
		exam.GET("/:attempt_id/section/current", handlers.Exam.CurrentSection)
		exam.POST("/:attempt_id/answer", limiters.Submit.Middleware(), handlers.Exam.SubmitAnswer)
		exam.POST("/:attempt_id/section/confirm-finish", handlers.Exam.ConfirmSection)
		exam.POST("/:attempt_id/finish", handlers.Exam.FinishAttempt)
	}

	// ─── 3. WebSocket Group (Learner WS Auth) ──────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireLearnerWSAuth(authService), singleDevice)
	{
		ws.GET("/exam/:attempt_id/events", handlers.WS.AttemptEvents)
	}

	return router
}
