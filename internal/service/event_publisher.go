package service

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/tzavrishon/mivhan/internal/config"
	"github.com/tzavrishon/mivhan/internal/model"
)

// EventPublisher fans attempt events out to live subscribers over Redis
// PubSub and queues them for the event worker. Publishing never fails the
// request that produced the event.
type EventPublisher struct {
	rdb *redis.Client
	log zerolog.Logger
}

// NewEventPublisher creates a new EventPublisher.
func NewEventPublisher(rdb *redis.Client, log zerolog.Logger) *EventPublisher {
	return &EventPublisher{
		rdb: rdb,
		log: log.With().Str("component", "event_publisher").Logger(),
	}
}

// Publish sends ev to the attempt channel and the persistence queue.
func (p *EventPublisher) Publish(ctx context.Context, ev model.ExamEvent) {
	raw, err := json.Marshal(ev)
	if err != nil {
		p.log.Error().Err(err).Msg("Marshal event failed")
		return
	}

	_, err = p.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Publish(ctx, config.CacheKey.AttemptEventsChannel(ev.AttemptID), raw)
		pipe.RPush(ctx, config.WorkerKey.PersistExamEventsQueue, raw)
		return nil
	})
	if err != nil {
		p.log.Warn().Err(err).
			Str("attempt_id", ev.AttemptID.String()).
			Str("type", string(ev.Type)).
			Msg("Publish event failed")
	}
}

func eventPayload(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return raw
}
