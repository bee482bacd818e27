package handler

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/tzavrishon/mivhan/internal/config"
)

const healthCheckTimeout = 2 * time.Second

// HealthHandler reports liveness of the service and its backing stores.
type HealthHandler struct {
	pool      *pgxpool.Pool
	rdb       *redis.Client
	startTime time.Time
	log       zerolog.Logger
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *HealthHandler {
	return &HealthHandler{
		pool:      pool,
		rdb:       rdb,
		startTime: time.Now(),
		log:       log.With().Str("component", "health_handler").Logger(),
	}
}

type healthStatus struct {
	Status      string `json:"status"`
	Uptime      string `json:"uptime"`
	Postgres    string `json:"postgres"`
	Redis       string `json:"redis"`
	EventQueue  int64  `json:"event_queue"`
	Goroutines  int    `json:"goroutines"`
	GoVersion   string `json:"go_version"`
	CheckedAtMs int64  `json:"checked_at_ms"`
}

// Health godoc
// GET /health
// Pings PostgreSQL and Redis and reports the event queue backlog.
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	st := healthStatus{
		Status:      "ok",
		Uptime:      formatDuration(time.Since(h.startTime)),
		Postgres:    "ok",
		Redis:       "ok",
		Goroutines:  runtime.NumGoroutine(),
		GoVersion:   runtime.Version(),
		CheckedAtMs: time.Now().UnixMilli(),
	}

	if err := h.pool.Ping(ctx); err != nil {
		h.log.Warn().Err(err).Msg("PostgreSQL ping failed")
		st.Status, st.Postgres = "degraded", "down"
	}

	// ── Redis + queue backlog (pipelined) ──
	pipe := h.rdb.Pipeline()
	pingCmd := pipe.Ping(ctx)
	queueCmd := pipe.LLen(ctx, config.WorkerKey.PersistExamEventsQueue)
	if _, err := pipe.Exec(ctx); err != nil || pingCmd.Err() != nil {
		h.log.Warn().Err(err).Msg("Redis ping failed")
		st.Status, st.Redis = "degraded", "down"
	} else {
		st.EventQueue, _ = queueCmd.Result()
	}

	code := http.StatusOK
	if st.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, st)
}

// ---------- Helpers ----------

func formatDuration(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	}
	return fmt.Sprintf("%dm %ds", minutes, seconds)
}
