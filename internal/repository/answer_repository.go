package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tzavrishon/mivhan/internal/model"
)

// ErrDuplicateAnswer is returned when the question already has an answer in
// the section.
var ErrDuplicateAnswer = errors.New("question already answered in this section")

// AnswerRepository handles exam answer data access.
type AnswerRepository struct {
	pool *pgxpool.Pool
}

// NewAnswerRepository creates a new AnswerRepository.
func NewAnswerRepository(pool *pgxpool.Pool) *AnswerRepository {
	return &AnswerRepository{pool: pool}
}

// Insert records an answer. The unique (section_id, question_id) pair makes
// the first write win; later ones get ErrDuplicateAnswer.
func (r *AnswerRepository) Insert(ctx context.Context, a *model.ExamAnswer) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO exam_answers (section_id, question_id, selected_option_id, is_correct, time_ms, order_index)
		 SELECT $1::uuid, $2::uuid, $3::uuid, $4::boolean, $5::bigint, COUNT(*)
		 FROM exam_answers WHERE section_id = $1
		 ON CONFLICT (section_id, question_id) DO NOTHING
		 RETURNING id, order_index, answered_at`,
		a.SectionID, a.QuestionID, a.SelectedOptionID, a.IsCorrect, a.TimeMs,
	).Scan(&a.ID, &a.OrderIndex, &a.AnsweredAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrDuplicateAnswer
	}
	return err
}

// AnsweredQuestionIDs lists the questions of a section that have an answer,
// in answer order.
func (r *AnswerRepository) AnsweredQuestionIDs(ctx context.Context, sectionID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT question_id FROM exam_answers
		 WHERE section_id = $1
		 ORDER BY order_index, id`, sectionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []uuid.UUID{}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
