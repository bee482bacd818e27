package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/tzavrishon/mivhan/internal/config"
	"github.com/tzavrishon/mivhan/internal/middleware"
	"github.com/tzavrishon/mivhan/internal/model"
	"github.com/tzavrishon/mivhan/internal/response"
	"github.com/tzavrishon/mivhan/internal/service"
	ws "github.com/tzavrishon/mivhan/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				// Non-browser clients (the terminal client) send no Origin.
				return true
			}
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// AttemptLookup checks attempt ownership before streaming.
type AttemptLookup interface {
	GetAttempt(ctx context.Context, attemptID uuid.UUID, learnerID int) (*model.ExamAttempt, error)
}

// WSHandler streams attempt events over WebSocket.
type WSHandler struct {
	rdb      *redis.Client
	attempts AttemptLookup
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(rdb *redis.Client, attempts AttemptLookup, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		rdb:      rdb,
		attempts: attempts,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// AttemptEvents godoc
// WS /ws/v1/exam/:attempt_id/events?token=
// Streams section_started, answer_recorded, section_locked and
// attempt_finished events of one attempt. The stream closes after
// attempt_finished.
func (h *WSHandler) AttemptEvents(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	// SECURITY: only the owner may watch an attempt.
	if _, err := h.attempts.GetAttempt(c.Request.Context(), attemptID, claims.UserID); err != nil {
		if errors.Is(err, service.ErrAttemptNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrAttemptNotFound)
			return
		}
		h.log.Error().Err(err).Msg("Attempt lookup failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().
		Int("learner_id", claims.UserID).
		Str("attempt_id", attemptID.String()).
		Logger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub := h.rdb.Subscribe(ctx, config.CacheKey.AttemptEventsChannel(attemptID))
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		wsLog.Error().Err(err).Msg("Subscribe failed")
		ws.WriteError(conn, "subscription failed")
		return
	}

	if err := ws.WriteTyped(conn, ws.ReadyResponse{Event: ws.EventReady, AttemptID: attemptID.String()}); err != nil {
		return
	}
	wsLog.Info().Msg("Learner subscribed to attempt events")

	// Reader goroutine. All writes stay in the loop below.
	pongs := make(chan struct{}, 1)
	go func() {
		defer cancel()
		ws.KeepAlive(conn)
		for {
			var msg ws.RequestEnvelope
			if err := conn.ReadJSON(&msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					wsLog.Warn().Err(err).Msg("Unexpected close")
				}
				return
			}
			if msg.Action == ws.ActionPing {
				select {
				case pongs <- struct{}{}:
				default:
				}
			}
		}
	}()

	ping := time.NewTicker(ws.PingPeriod)
	defer ping.Stop()
	messages := sub.Channel()

	for {
		select {
		case <-ctx.Done():
			wsLog.Debug().Msg("Connection closed")
			return

		case <-ping.C:
			if err := ws.WritePing(conn); err != nil {
				return
			}

		case <-pongs:
			if err := ws.WriteTyped(conn, ws.PongResponse{Event: ws.EventPong}); err != nil {
				return
			}

		case msg, ok := <-messages:
			if !ok {
				return
			}
			if err := ws.WriteTyped(conn, ws.ExamEventResponse{
				Event: ws.EventExamEvent,
				Data:  json.RawMessage(msg.Payload),
			}); err != nil {
				return
			}
			if isFinished(msg.Payload) {
				_ = ws.WriteClose(conn, "attempt finished")
				wsLog.Info().Msg("Attempt finished, closing stream")
				return
			}
		}
	}
}

func isFinished(payload string) bool {
	var ev struct {
		Type model.ExamEventType `json:"type"`
	}
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return false
	}
	return ev.Type == model.EventAttemptFinished
}
