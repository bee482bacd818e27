package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/tzavrishon/mivhan/internal/config"
	"github.com/tzavrishon/mivhan/internal/model"
	"github.com/tzavrishon/mivhan/internal/repository"
	"github.com/tzavrishon/mivhan/internal/response"
)

// Exam errors.
var (
	ErrAttemptNotFound      = errors.New("attempt not found")
	ErrAttemptCompleted     = errors.New("attempt already completed")
	ErrNoActiveSection      = errors.New("no active section")
	ErrSectionExpired       = errors.New("section time is over")
	ErrQuestionNotInSection = errors.New("question does not belong to the current section")
	ErrInvalidOption        = errors.New("option does not belong to the question")
	ErrAlreadyAnswered      = errors.New("question already answered")
	ErrNoQuestions          = errors.New("no exam questions available")
)

// sectionStartTTL keeps cached start times around for a while after the
// section deadline.
const sectionStartTTL = 6 * time.Hour

// ExamService runs attempts: it hands out sections in order, enforces their
// deadlines, records answers and computes the final result.
type ExamService struct {
	attemptRepo  *repository.AttemptRepository
	questionRepo *repository.QuestionRepository
	answerRepo   *repository.AnswerRepository
	rdb          *redis.Client
	events       *EventPublisher
	layout       []config.SectionLayout
	log          zerolog.Logger
	now          func() time.Time
}

// NewExamService creates a new ExamService.
func NewExamService(
	attemptRepo *repository.AttemptRepository,
	questionRepo *repository.QuestionRepository,
	answerRepo *repository.AnswerRepository,
	rdb *redis.Client,
	events *EventPublisher,
	layout []config.SectionLayout,
	log zerolog.Logger,
) *ExamService {
	return &ExamService{
		attemptRepo:  attemptRepo,
		questionRepo: questionRepo,
		answerRepo:   answerRepo,
		rdb:          rdb,
		events:       events,
		layout:       layout,
		log:          log.With().Str("component", "exam_service").Logger(),
		now:          time.Now,
	}
}

// clock returns the current time at database precision.
func (s *ExamService) clock() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

// ─── Start ──────────────────────────────────────────────────────────

// StartAttempt creates an attempt with one section per configured layout
// entry, draws each section's questions and starts the first section.
func (s *ExamService) StartAttempt(ctx context.Context, learnerID int) (*model.StartExamResponse, error) {
	now := s.clock()

	sections := make([]model.ExamSection, 0, len(s.layout))
	questionIDs := make([][]uuid.UUID, 0, len(s.layout))
	for i, l := range s.layout {
		ids, err := s.questionRepo.RandomIDsByKind(ctx, l.Kind, l.Questions)
		if err != nil {
			return nil, fmt.Errorf("draw %s questions: %w", l.Kind, err)
		}
		if len(ids) == 0 {
			return nil, fmt.Errorf("%w: %s", ErrNoQuestions, l.Kind)
		}
		if len(ids) < l.Questions {
			s.log.Warn().
				Str("kind", string(l.Kind)).
				Int("wanted", l.Questions).
				Int("drawn", len(ids)).
				Msg("Question bank too small, section shortened")
		}
		sections = append(sections, model.ExamSection{
			Kind:            l.Kind,
			OrderIndex:      i,
			DurationSeconds: int(l.Duration / time.Second),
		})
		questionIDs = append(questionIDs, ids)
	}
	if len(sections) == 0 {
		return nil, ErrNoQuestions
	}
	sections[0].StartedAt = &now

	attempt := &model.ExamAttempt{LearnerID: learnerID, CreatedAt: now}
	if err := s.attemptRepo.Create(ctx, attempt, sections, questionIDs); err != nil {
		return nil, fmt.Errorf("create attempt: %w", err)
	}

	s.cacheStart(ctx, attempt.ID, sections[0].ID, now, sections[0].Duration())
	s.publishSectionStarted(ctx, attempt.ID, &sections[0], now)

	s.log.Info().
		Str("attempt_id", attempt.ID.String()).
		Int("learner_id", learnerID).
		Int("sections", len(sections)).
		Msg("Attempt started")

	resp := &model.StartExamResponse{
		AttemptID: attempt.ID,
		Sections:  make([]model.SectionSummary, 0, len(sections)),
	}
	for _, sec := range sections {
		resp.Sections = append(resp.Sections, model.SectionSummary{
			SectionID:       sec.ID,
			Kind:            sec.Kind,
			OrderIndex:      sec.OrderIndex,
			DurationSeconds: sec.DurationSeconds,
			Locked:          sec.Locked,
		})
	}
	return resp, nil
}

// ─── Current section ────────────────────────────────────────────────

// CurrentSection returns the first unlocked section of the attempt. A section
// whose deadline already passed is locked on the spot and the next one is
// started, so the learner always receives a section with time left.
func (s *ExamService) CurrentSection(ctx context.Context, attemptID uuid.UUID, learnerID int) (*model.CurrentSectionResponse, error) {
	attempt, err := s.ownedAttempt(ctx, attemptID, learnerID)
	if err != nil {
		return nil, err
	}
	if attempt.CompletedAt != nil {
		return nil, ErrAttemptCompleted
	}

	sec, started, err := s.activeSection(ctx, attemptID)
	if err != nil {
		return nil, err
	}

	remaining := remainingTime(started, sec.Duration(), s.clock())

	questions, err := s.questionRepo.ListForSection(ctx, sec.ID)
	if err != nil {
		return nil, fmt.Errorf("list section questions: %w", err)
	}
	if questions == nil {
		questions = []model.ExamQuestion{}
	}

	answered, err := s.answerRepo.AnsweredQuestionIDs(ctx, sec.ID)
	if err != nil {
		return nil, fmt.Errorf("list answered questions: %w", err)
	}

	return &model.CurrentSectionResponse{
		SectionID:           sec.ID,
		Kind:                sec.Kind,
		OrderIndex:          sec.OrderIndex,
		RemainingSeconds:    int64(remaining / time.Second),
		Expired:             remaining <= 0,
		Questions:           questions,
		AnsweredQuestionIDs: answered,
	}, nil
}

// activeSection walks the unlocked sections in order, locking every expired
// one, and returns the first with time left together with its start time.
func (s *ExamService) activeSection(ctx context.Context, attemptID uuid.UUID) (*model.ExamSection, time.Time, error) {
	sections, err := s.attemptRepo.ListSections(ctx, attemptID)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("list sections: %w", err)
	}

	for i := range sections {
		sec := &sections[i]
		if sec.Locked {
			continue
		}

		started, err := s.sectionStart(ctx, attemptID, sec)
		if err != nil {
			return nil, time.Time{}, err
		}

		now := s.clock()
		if remainingTime(started, sec.Duration(), now) > 0 {
			return sec, started, nil
		}

		// Deadline passed without a confirm: lock it now and move on.
		if _, err := s.lockAndAdvance(ctx, attemptID, sec, now, "expired"); err != nil {
			return nil, time.Time{}, err
		}
	}
	return nil, time.Time{}, ErrNoActiveSection
}

// firstUnlocked returns the first unlocked section without touching it.
func (s *ExamService) firstUnlocked(ctx context.Context, attemptID uuid.UUID) (*model.ExamSection, error) {
	sections, err := s.attemptRepo.ListSections(ctx, attemptID)
	if err != nil {
		return nil, fmt.Errorf("list sections: %w", err)
	}
	for i := range sections {
		if !sections[i].Locked {
			return &sections[i], nil
		}
	}
	return nil, nil
}

// sectionStart returns when a section started, starting it if needed. Redis
// holds the start time; PostgreSQL is the source of truth on a miss and the
// cache heals itself.
func (s *ExamService) sectionStart(ctx context.Context, attemptID uuid.UUID, sec *model.ExamSection) (time.Time, error) {
	key := config.CacheKey.SectionStartKey(attemptID, sec.ID)

	val, err := s.rdb.Get(ctx, key).Result()
	switch {
	case err == nil:
		ms, perr := strconv.ParseInt(val, 10, 64)
		if perr == nil {
			return time.UnixMilli(ms).UTC(), nil
		}
		s.log.Warn().Str("key", key).Str("value", val).Msg("Invalid start time in cache")
	case !errors.Is(err, redis.Nil):
		s.log.Warn().Err(err).Str("key", key).Msg("Redis error reading start time, using database")
	}

	// [CACHE MISS] Fall back to PostgreSQL, starting the section if nobody has.
	now := s.clock()
	started, fresh, err := s.attemptRepo.StartSection(ctx, sec.ID, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("start section: %w", err)
	}
	sec.StartedAt = &started
	if fresh {
		s.publishSectionStarted(ctx, attemptID, sec, started)
	}

	// Self-heal the cache.
	s.cacheStart(ctx, attemptID, sec.ID, started, sec.Duration())
	return started, nil
}

func (s *ExamService) cacheStart(ctx context.Context, attemptID, sectionID uuid.UUID, started time.Time, d time.Duration) {
	key := config.CacheKey.SectionStartKey(attemptID, sectionID)
	if err := s.rdb.Set(ctx, key, started.UnixMilli(), d+sectionStartTTL).Err(); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("Failed to cache start time")
	}
}

// lockAndAdvance locks sec, starts the next section and publishes both
// transitions. It returns the next section, nil when none is left.
func (s *ExamService) lockAndAdvance(ctx context.Context, attemptID uuid.UUID, sec *model.ExamSection, now time.Time, reason string) (*model.ExamSection, error) {
	next, locked, err := s.attemptRepo.LockAndAdvance(ctx, attemptID, sec.ID, now)
	if err != nil {
		return nil, fmt.Errorf("lock section: %w", err)
	}

	if locked {
		sectionID := sec.ID
		s.events.Publish(ctx, model.ExamEvent{
			AttemptID: attemptID,
			SectionID: &sectionID,
			Type:      model.EventSectionLocked,
			Payload:   eventPayload(map[string]any{"order_index": sec.OrderIndex, "reason": reason}),
			CreatedAt: now,
		})
		s.log.Debug().
			Str("attempt_id", attemptID.String()).
			Int("order_index", sec.OrderIndex).
			Str("reason", reason).
			Msg("Section locked")
	}

	if next != nil && next.StartedAt != nil {
		s.cacheStart(ctx, attemptID, next.ID, *next.StartedAt, next.Duration())
		if next.StartedAt.Equal(now) {
			s.publishSectionStarted(ctx, attemptID, next, now)
		}
	}
	return next, nil
}

func (s *ExamService) publishSectionStarted(ctx context.Context, attemptID uuid.UUID, sec *model.ExamSection, at time.Time) {
	sectionID := sec.ID
	s.events.Publish(ctx, model.ExamEvent{
		AttemptID: attemptID,
		SectionID: &sectionID,
		Type:      model.EventSectionStarted,
		Payload:   eventPayload(map[string]any{"order_index": sec.OrderIndex, "kind": sec.Kind}),
		CreatedAt: at,
	})
}

// ─── Answers ────────────────────────────────────────────────────────

// SubmitAnswer records the learner's choice for a question of the current
// section. The first answer wins; a repeat yields ErrAlreadyAnswered.
func (s *ExamService) SubmitAnswer(ctx context.Context, attemptID uuid.UUID, learnerID int, req model.SubmitAnswerRequest) (*model.SubmitAnswerResponse, error) {
	attempt, err := s.ownedAttempt(ctx, attemptID, learnerID)
	if err != nil {
		return nil, err
	}
	if attempt.CompletedAt != nil {
		return nil, ErrAttemptCompleted
	}

	sec, err := s.firstUnlocked(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if sec == nil {
		return nil, ErrNoActiveSection
	}

	started, err := s.sectionStart(ctx, attemptID, sec)
	if err != nil {
		return nil, err
	}
	if remainingTime(started, sec.Duration(), s.clock()) <= 0 {
		return nil, ErrSectionExpired
	}

	ok, err := s.attemptRepo.SectionContains(ctx, sec.ID, req.QuestionID)
	if err != nil {
		return nil, fmt.Errorf("check section question: %w", err)
	}
	if !ok {
		return nil, ErrQuestionNotInSection
	}

	correct, explanation, err := s.questionRepo.GetOptionVerdict(ctx, req.QuestionID, req.SelectedOptionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvalidOption
		}
		return nil, fmt.Errorf("check option: %w", err)
	}

	answer := &model.ExamAnswer{
		SectionID:        sec.ID,
		QuestionID:       req.QuestionID,
		SelectedOptionID: req.SelectedOptionID,
		IsCorrect:        correct,
		TimeMs:           req.TimeMs,
	}
	if err := s.answerRepo.Insert(ctx, answer); err != nil {
		if errors.Is(err, repository.ErrDuplicateAnswer) {
			return nil, ErrAlreadyAnswered
		}
		return nil, fmt.Errorf("insert answer: %w", err)
	}

	sectionID, questionID := sec.ID, req.QuestionID
	s.events.Publish(ctx, model.ExamEvent{
		AttemptID:  attemptID,
		SectionID:  &sectionID,
		QuestionID: &questionID,
		Type:       model.EventAnswerRecorded,
		Payload:    eventPayload(map[string]any{"correct": correct, "time_ms": req.TimeMs, "order_index": answer.OrderIndex}),
		CreatedAt:  answer.AnsweredAt,
	})

	return &model.SubmitAnswerResponse{Correct: correct, Explanation: explanation}, nil
}

// ─── Confirm & finish ───────────────────────────────────────────────

// ConfirmSection locks the current section and starts the next one. When
// sectionID is set and does not name the current section, the call does
// nothing: the section was already locked by an earlier confirm or by
// expiry. With no unlocked section left it also succeeds.
func (s *ExamService) ConfirmSection(ctx context.Context, attemptID uuid.UUID, learnerID int, sectionID uuid.UUID) error {
	if _, err := s.ownedAttempt(ctx, attemptID, learnerID); err != nil {
		return err
	}

	sec, err := s.firstUnlocked(ctx, attemptID)
	if err != nil {
		return err
	}
	if sec == nil {
		return nil
	}
	if sectionID != uuid.Nil && sec.ID != sectionID {
		return nil
	}

	_, err = s.lockAndAdvance(ctx, attemptID, sec, s.clock(), "confirmed")
	return err
}

// FinishAttempt locks whatever is left, stores the final score and returns
// the result. Finishing again returns the stored result.
func (s *ExamService) FinishAttempt(ctx context.Context, attemptID uuid.UUID, learnerID int) (*model.ExamResult, error) {
	attempt, err := s.ownedAttempt(ctx, attemptID, learnerID)
	if err != nil {
		return nil, err
	}

	if attempt.CompletedAt == nil {
		now := s.clock()
		if _, err := s.attemptRepo.LockRemaining(ctx, attemptID, now); err != nil {
			return nil, fmt.Errorf("lock remaining sections: %w", err)
		}

		stats, err := s.attemptRepo.SectionStats(ctx, attemptID)
		if err != nil {
			return nil, fmt.Errorf("section stats: %w", err)
		}
		result := BuildResult(attemptID, stats, attempt.CreatedAt, now)

		completed, err := s.attemptRepo.Complete(ctx, attemptID, result.TotalScore90, now)
		if err != nil {
			return nil, fmt.Errorf("complete attempt: %w", err)
		}
		if completed {
			s.events.Publish(ctx, model.ExamEvent{
				AttemptID: attemptID,
				Type:      model.EventAttemptFinished,
				Payload:   eventPayload(map[string]any{"total_score_90": result.TotalScore90, "correct_answers": result.CorrectAnswers}),
				CreatedAt: now,
			})
			s.log.Info().
				Str("attempt_id", attemptID.String()).
				Int("score", result.TotalScore90).
				Msg("Attempt finished")
			return result, nil
		}

		// A concurrent finish won; report what it stored.
		if attempt, err = s.attemptRepo.GetByID(ctx, attemptID); err != nil {
			return nil, fmt.Errorf("reload attempt: %w", err)
		}
	}

	stats, err := s.attemptRepo.SectionStats(ctx, attemptID)
	if err != nil {
		return nil, fmt.Errorf("section stats: %w", err)
	}
	result := BuildResult(attemptID, stats, attempt.CreatedAt, *attempt.CompletedAt)
	if attempt.TotalScore90 != nil {
		result.TotalScore90 = *attempt.TotalScore90
	}
	return result, nil
}

// ListAttempts returns the learner's attempts, newest first.
func (s *ExamService) ListAttempts(ctx context.Context, learnerID, page, perPage int) ([]model.AttemptListItem, *response.Pagination, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 10
	}
	if perPage > 100 {
		perPage = 100
	}

	items, total, err := s.attemptRepo.ListByLearner(ctx, learnerID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, nil, err
	}

	return items, response.NewPagination(page, perPage, total), nil
}

// GetAttempt returns the attempt if it belongs to learnerID.
func (s *ExamService) GetAttempt(ctx context.Context, attemptID uuid.UUID, learnerID int) (*model.ExamAttempt, error) {
	return s.ownedAttempt(ctx, attemptID, learnerID)
}

// ownedAttempt loads an attempt and hides it from anyone but its learner.
func (s *ExamService) ownedAttempt(ctx context.Context, attemptID uuid.UUID, learnerID int) (*model.ExamAttempt, error) {
	attempt, err := s.attemptRepo.GetByID(ctx, attemptID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	if attempt.LearnerID != learnerID {
		return nil, ErrAttemptNotFound
	}
	return attempt, nil
}

// ─── Scoring ────────────────────────────────────────────────────────

// remainingTime is max(0, duration - (now - started)).
func remainingTime(started time.Time, d time.Duration, now time.Time) time.Duration {
	left := d - now.Sub(started)
	if left < 0 {
		return 0
	}
	return left
}

// Score90 scales correct answers onto the 0-90 range over every assigned
// question, answered or not.
func Score90(correct, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(90 * float64(correct) / float64(total)))
}

// BuildResult aggregates per-section stats into the attempt result. Accuracy
// is correct over answered, in percent; unanswered questions only count
// against the score. Section time is ended minus started and zero for a
// section that never started.
func BuildResult(attemptID uuid.UUID, stats []repository.SectionStats, createdAt, completedAt time.Time) *model.ExamResult {
	res := &model.ExamResult{
		AttemptID:        attemptID,
		TotalTimeSeconds: int64(completedAt.Sub(createdAt) / time.Second),
		Sections:         make([]model.SectionScore, 0, len(stats)),
	}
	if res.TotalTimeSeconds < 0 {
		res.TotalTimeSeconds = 0
	}

	for _, st := range stats {
		sc := model.SectionScore{
			Kind:       st.Kind,
			OrderIndex: st.OrderIndex,
			Correct:    st.Correct,
			Answered:   st.Answered,
			Total:      st.Total,
		}
		if st.Answered > 0 {
			sc.Accuracy = math.Round(float64(st.Correct)/float64(st.Answered)*1000) / 10
		}
		if st.StartedAt != nil && st.EndedAt != nil && st.EndedAt.After(*st.StartedAt) {
			sc.TimeSpentSeconds = int64(st.EndedAt.Sub(*st.StartedAt) / time.Second)
		}
		res.Sections = append(res.Sections, sc)
		res.CorrectAnswers += st.Correct
		res.TotalQuestions += st.Total
	}

	res.TotalScore90 = Score90(res.CorrectAnswers, res.TotalQuestions)
	return res
}
