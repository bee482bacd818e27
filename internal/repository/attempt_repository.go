package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tzavrishon/mivhan/internal/model"
)

// SectionStats aggregates the answers of one section for result building.
type SectionStats struct {
	Kind       model.SectionKind
	OrderIndex int
	StartedAt  *time.Time
	EndedAt    *time.Time
	Total      int
	Answered   int
	Correct    int
}

// AttemptRepository handles exam attempt and section data access.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

const sectionColumns = `id, attempt_id, kind, order_index, duration_seconds, started_at, ended_at, locked, score_section`

func scanSection(row pgx.Row, s *model.ExamSection) error {
	return row.Scan(&s.ID, &s.AttemptID, &s.Kind, &s.OrderIndex, &s.DurationSeconds,
		&s.StartedAt, &s.EndedAt, &s.Locked, &s.ScoreSection)
}

// lockSectionSQL locks one section and stores its score. A section found
// expired after the fact ends at its deadline, not at the time of locking.
const lockSectionSQL = `
	UPDATE exam_sections
	SET locked = TRUE,
	    ended_at = CASE
	        WHEN started_at IS NULL THEN NULL
	        ELSE LEAST($2::timestamptz, started_at + make_interval(secs => duration_seconds))
	    END,
	    score_section = (SELECT COUNT(*) FROM exam_answers a WHERE a.section_id = exam_sections.id AND a.is_correct)
	WHERE %s AND NOT locked`

// Create inserts an attempt with its sections and their drawn questions in a
// single transaction. questionIDs[i] belongs to sections[i].
func (r *AttemptRepository) Create(ctx context.Context, a *model.ExamAttempt, sections []model.ExamSection, questionIDs [][]uuid.UUID) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`INSERT INTO exam_attempts (learner_id, created_at)
			 VALUES ($1, $2)
			 RETURNING id`,
			a.LearnerID, a.CreatedAt,
		).Scan(&a.ID)
		if err != nil {
			return err
		}

		for i := range sections {
			s := &sections[i]
			s.AttemptID = a.ID
			err := tx.QueryRow(ctx,
				`INSERT INTO exam_sections (attempt_id, kind, order_index, duration_seconds, started_at)
				 VALUES ($1, $2, $3, $4, $5)
				 RETURNING id`,
				s.AttemptID, s.Kind, s.OrderIndex, s.DurationSeconds, s.StartedAt,
			).Scan(&s.ID)
			if err != nil {
				return err
			}

			ids := questionIDs[i]
			positions := make([]int32, len(ids))
			for p := range ids {
				positions[p] = int32(p)
			}
			_, err = tx.Exec(ctx,
				`INSERT INTO exam_section_questions (section_id, question_id, position)
				 SELECT $1, q.question_id, q.position
				 FROM UNNEST($2::uuid[], $3::int[]) AS q(question_id, position)`,
				s.ID, ids, positions,
			)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// GetByID retrieves an attempt by ID.
func (r *AttemptRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.ExamAttempt, error) {
	a := &model.ExamAttempt{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, learner_id, created_at, completed_at, total_score_90
		 FROM exam_attempts WHERE id = $1`, id,
	).Scan(&a.ID, &a.LearnerID, &a.CreatedAt, &a.CompletedAt, &a.TotalScore90)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// ListSections returns the sections of an attempt in order.
func (r *AttemptRepository) ListSections(ctx context.Context, attemptID uuid.UUID) ([]model.ExamSection, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+sectionColumns+`
		 FROM exam_sections WHERE attempt_id = $1
		 ORDER BY order_index`, attemptID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sections []model.ExamSection
	for rows.Next() {
		var s model.ExamSection
		if err := scanSection(rows, &s); err != nil {
			return nil, err
		}
		sections = append(sections, s)
	}
	return sections, rows.Err()
}

// StartSection sets the start time of a section unless it already has one.
// It returns the effective start time and whether this call started it.
func (r *AttemptRepository) StartSection(ctx context.Context, sectionID uuid.UUID, at time.Time) (time.Time, bool, error) {
	var started time.Time
	err := r.pool.QueryRow(ctx,
		`UPDATE exam_sections
		 SET started_at = $2
		 WHERE id = $1 AND started_at IS NULL
		 RETURNING started_at`, sectionID, at,
	).Scan(&started)
	if err == nil {
		return started, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, false, err
	}

	existing, err := r.SectionStartedAt(ctx, sectionID)
	if err != nil {
		return time.Time{}, false, err
	}
	if existing == nil {
		return time.Time{}, false, fmt.Errorf("section %s has no start time", sectionID)
	}
	return *existing, false, nil
}

// SectionStartedAt reads the stored start time of a section. It is nil while
// the section has not started.
func (r *AttemptRepository) SectionStartedAt(ctx context.Context, sectionID uuid.UUID) (*time.Time, error) {
	var started *time.Time
	err := r.pool.QueryRow(ctx,
		`SELECT started_at FROM exam_sections WHERE id = $1`, sectionID,
	).Scan(&started)
	return started, err
}

// SectionContains reports whether questionID was drawn into the section.
func (r *AttemptRepository) SectionContains(ctx context.Context, sectionID, questionID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM exam_section_questions
			WHERE section_id = $1 AND question_id = $2
		 )`, sectionID, questionID,
	).Scan(&exists)
	return exists, err
}

// LockAndAdvance locks a section, stores its score and starts the next
// unlocked section of the attempt, all in one transaction. It returns the
// next section (nil when none is left) and whether this call locked the
// section. Locking an already locked section changes nothing.
func (r *AttemptRepository) LockAndAdvance(ctx context.Context, attemptID, sectionID uuid.UUID, at time.Time) (*model.ExamSection, bool, error) {
	var (
		next   *model.ExamSection
		locked bool
	)
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, fmtLock("id = $1"), sectionID, at)
		if err != nil {
			return err
		}
		locked = tag.RowsAffected() == 1

		s := &model.ExamSection{}
		err = scanSection(tx.QueryRow(ctx,
			`UPDATE exam_sections
			 SET started_at = COALESCE(started_at, $2)
			 WHERE id = (
				SELECT id FROM exam_sections
				WHERE attempt_id = $1 AND NOT locked
				ORDER BY order_index
				LIMIT 1
			 )
			 RETURNING `+sectionColumns, attemptID, at,
		), s)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		next = s
		return nil
	})
	return next, locked, err
}

// LockRemaining locks every unlocked section of an attempt with its score.
func (r *AttemptRepository) LockRemaining(ctx context.Context, attemptID uuid.UUID, at time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, fmtLock("attempt_id = $1"), attemptID, at)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Complete stores the final score. It only succeeds once per attempt; the
// returned bool is false when the attempt was already completed.
func (r *AttemptRepository) Complete(ctx context.Context, attemptID uuid.UUID, score int, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE exam_attempts
		 SET completed_at = $2, total_score_90 = $3
		 WHERE id = $1 AND completed_at IS NULL`,
		attemptID, at, score)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// SectionStats returns per-section totals in section order. Total counts the
// drawn questions, not the answers.
func (r *AttemptRepository) SectionStats(ctx context.Context, attemptID uuid.UUID) ([]SectionStats, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT s.kind, s.order_index, s.started_at, s.ended_at,
		        (SELECT COUNT(*) FROM exam_section_questions q WHERE q.section_id = s.id),
		        (SELECT COUNT(*) FROM exam_answers a WHERE a.section_id = s.id),
		        (SELECT COUNT(*) FROM exam_answers a WHERE a.section_id = s.id AND a.is_correct)
		 FROM exam_sections s
		 WHERE s.attempt_id = $1
		 ORDER BY s.order_index`, attemptID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []SectionStats
	for rows.Next() {
		var st SectionStats
		if err := rows.Scan(&st.Kind, &st.OrderIndex, &st.StartedAt, &st.EndedAt,
			&st.Total, &st.Answered, &st.Correct); err != nil {
			return nil, err
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

// ListByLearner retrieves a learner's attempts, newest first.
func (r *AttemptRepository) ListByLearner(ctx context.Context, learnerID, limit, offset int) ([]model.AttemptListItem, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM exam_attempts WHERE learner_id = $1`, learnerID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, created_at, completed_at, total_score_90
		 FROM exam_attempts
		 WHERE learner_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`, learnerID, limit, offset,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items := []model.AttemptListItem{}
	for rows.Next() {
		var it model.AttemptListItem
		if err := rows.Scan(&it.ID, &it.CreatedAt, &it.CompletedAt, &it.TotalScore90); err != nil {
			return nil, 0, err
		}
		items = append(items, it)
	}
	return items, total, rows.Err()
}

func fmtLock(where string) string {
	return fmt.Sprintf(lockSectionSQL, where)
}
