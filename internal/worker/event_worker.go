package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/tzavrishon/mivhan/internal/config"
	"github.com/tzavrishon/mivhan/internal/model"
)

const (
	EventBatchSize    = 50
	EventBatchTimeout = 2 * time.Second
	EventPollTimeout  = 1 * time.Second
)

// EventWorker consumes persist_exam_events_queue and writes the attempt audit
// trail to PostgreSQL in batches.
type EventWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

// NewEventWorker creates a new EventWorker.
func NewEventWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *EventWorker {
	return &EventWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "event_worker").Logger(),
	}
}

// Start begins the worker loop. Call in a goroutine. On cancellation the
// current batch is flushed and the rest of the queue drained.
func (w *EventWorker) Start(ctx context.Context) {
	w.log.Info().Msg("EventWorker started")

	batch := make([]*model.ExamEvent, 0, EventBatchSize)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 &&
			(len(batch) >= EventBatchSize || time.Since(lastFlush) >= EventBatchTimeout) {

			w.flushSafe(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Msg("Shutdown requested. Flushing remaining batch...")
			w.flushSafe(context.Background(), batch)
			w.drain(context.Background())
			w.log.Info().Msg("EventWorker stopped")
			return

		default:
			item, err := w.rdb.BLPop(ctx, EventPollTimeout, config.WorkerKey.PersistExamEventsQueue).Result()
			if err != nil {
				if err != redis.Nil && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
				}
				continue
			}

			if len(item) < 2 {
				continue
			}

			ev, err := decodeEvent(item[1])
			if err != nil {
				w.log.Error().Err(err).Msg("Invalid JSON payload")
				continue
			}

			batch = append(batch, ev)
		}
	}
}

func decodeEvent(raw string) (*model.ExamEvent, error) {
	var ev model.ExamEvent
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		return nil, err
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	return &ev, nil
}

func (w *EventWorker) flushSafe(ctx context.Context, batch []*model.ExamEvent) {
	if len(batch) == 0 {
		return
	}

	if err := w.bulkInsert(ctx, batch); err != nil {
		w.log.Warn().Err(err).Msg("bulk event insert failed, using fallback")

		for _, ev := range batch {
			if err := w.persistSingle(ctx, ev); err != nil {
				w.log.Error().Err(err).
					Str("attempt_id", ev.AttemptID.String()).
					Str("type", string(ev.Type)).
					Msg("persistSingle failed, requeueing")
				raw, _ := json.Marshal(ev)
				w.rdb.RPush(ctx, config.WorkerKey.PersistExamEventsQueue, raw)
			}
		}
		return
	}

	w.log.Debug().Int("count", len(batch)).Msg("Events persisted")
}

// eventColumns splits a batch into the column arrays fed to UNNEST.
type eventColumns struct {
	attemptIDs  []uuid.UUID
	sectionIDs  []*uuid.UUID
	questionIDs []*uuid.UUID
	types       []string
	payloads    [][]byte
	createdAt   []time.Time
}

func columnsOf(batch []*model.ExamEvent) eventColumns {
	n := len(batch)
	cols := eventColumns{
		attemptIDs:  make([]uuid.UUID, 0, n),
		sectionIDs:  make([]*uuid.UUID, 0, n),
		questionIDs: make([]*uuid.UUID, 0, n),
		types:       make([]string, 0, n),
		payloads:    make([][]byte, 0, n),
		createdAt:   make([]time.Time, 0, n),
	}
	for _, ev := range batch {
		cols.attemptIDs = append(cols.attemptIDs, ev.AttemptID)
		cols.sectionIDs = append(cols.sectionIDs, ev.SectionID)
		cols.questionIDs = append(cols.questionIDs, ev.QuestionID)
		cols.types = append(cols.types, string(ev.Type))
		cols.payloads = append(cols.payloads, payloadOf(ev))
		cols.createdAt = append(cols.createdAt, ev.CreatedAt)
	}
	return cols
}

func payloadOf(ev *model.ExamEvent) []byte {
	if len(ev.Payload) == 0 {
		return nil
	}
	return ev.Payload
}

func (w *EventWorker) bulkInsert(ctx context.Context, batch []*model.ExamEvent) error {
	cols := columnsOf(batch)

	query := `
		INSERT INTO exam_events (attempt_id, section_id, question_id, event_type, payload, created_at)
		SELECT u.attempt_id, u.section_id, u.question_id, u.event_type, u.payload, u.created_at
		FROM UNNEST(
			$1::uuid[],
			$2::uuid[],
			$3::uuid[],
			$4::text[],
			$5::jsonb[],
			$6::timestamptz[]
		) AS u (attempt_id, section_id, question_id, event_type, payload, created_at)
	`

	_, err := w.pool.Exec(ctx, query,
		cols.attemptIDs, cols.sectionIDs, cols.questionIDs, cols.types, cols.payloads, cols.createdAt)
	return err
}

func (w *EventWorker) persistSingle(ctx context.Context, ev *model.ExamEvent) error {
	_, err := w.pool.Exec(ctx,
		`INSERT INTO exam_events (attempt_id, section_id, question_id, event_type, payload, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		ev.AttemptID, ev.SectionID, ev.QuestionID, string(ev.Type), payloadOf(ev), ev.CreatedAt,
	)
	return err
}

// drain persists everything left in the queue before shutdown.
func (w *EventWorker) drain(ctx context.Context) {
	drained := 0
	batch := make([]*model.ExamEvent, 0, EventBatchSize)
	for {
		raw, err := w.rdb.LPop(ctx, config.WorkerKey.PersistExamEventsQueue).Result()
		if err != nil {
			break
		}
		ev, err := decodeEvent(raw)
		if err != nil {
			w.log.Error().Err(err).Msg("Drain unmarshal error")
			continue
		}
		batch = append(batch, ev)
		if len(batch) == EventBatchSize {
			w.flushSafe(ctx, batch)
			drained += len(batch)
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		w.flushSafe(ctx, batch)
		drained += len(batch)
	}

	if drained > 0 {
		w.log.Info().Int("count", drained).Msg("Drained remaining events")
	}
}
