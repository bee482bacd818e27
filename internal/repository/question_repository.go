package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tzavrishon/mivhan/internal/model"
)

// QuestionRepository handles question bank data access.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

// RandomIDsByKind draws up to n random exam questions of the given kind.
func (r *QuestionRepository) RandomIDsByKind(ctx context.Context, kind model.SectionKind, n int) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id FROM questions
		 WHERE kind = $1 AND is_exam_question
		 ORDER BY random()
		 LIMIT $2`, kind, n,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]uuid.UUID, 0, n)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListForSection returns a section's questions in their drawn order with
// options ordered by option_order. Correctness is never selected.
func (r *QuestionRepository) ListForSection(ctx context.Context, sectionID uuid.UUID) ([]model.ExamQuestion, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT q.id, q.prompt_text, q.prompt_image_url, o.id, o.text, o.image_url
		 FROM exam_section_questions esq
		 JOIN questions q ON q.id = esq.question_id
		 JOIN question_options o ON o.question_id = q.id
		 WHERE esq.section_id = $1
		 ORDER BY esq.position, o.option_order`, sectionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.ExamQuestion
	for rows.Next() {
		var (
			q model.ExamQuestion
			o model.ExamOption
		)
		if err := rows.Scan(&q.ID, &q.PromptText, &q.PromptImageURL, &o.ID, &o.Text, &o.ImageURL); err != nil {
			return nil, err
		}
		if n := len(questions); n > 0 && questions[n-1].ID == q.ID {
			questions[n-1].Options = append(questions[n-1].Options, o)
			continue
		}
		q.Options = []model.ExamOption{o}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// GetOptionVerdict returns whether optionID is the correct option of
// questionID, plus the question's explanation. pgx.ErrNoRows means the option
// does not belong to the question.
func (r *QuestionRepository) GetOptionVerdict(ctx context.Context, questionID, optionID uuid.UUID) (bool, *string, error) {
	var (
		correct     bool
		explanation *string
	)
	err := r.pool.QueryRow(ctx,
		`SELECT o.is_correct, q.explanation
		 FROM question_options o
		 JOIN questions q ON q.id = o.question_id
		 WHERE o.id = $1 AND o.question_id = $2`, optionID, questionID,
	).Scan(&correct, &explanation)
	if err != nil {
		return false, nil, err
	}
	return correct, explanation, nil
}

// CountByKind returns the number of exam questions per kind.
func (r *QuestionRepository) CountByKind(ctx context.Context) (map[model.SectionKind]int, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT kind, COUNT(*) FROM questions WHERE is_exam_question GROUP BY kind`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[model.SectionKind]int)
	for rows.Next() {
		var (
			kind model.SectionKind
			n    int
		)
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, err
		}
		counts[kind] = n
	}
	return counts, rows.Err()
}

// Create inserts a question together with its options.
func (r *QuestionRepository) Create(ctx context.Context, q *model.Question) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`INSERT INTO questions (kind, prompt_text, prompt_image_url, explanation, is_exam_question)
			 VALUES ($1, $2, $3, $4, $5)
			 RETURNING id, created_at`,
			q.Kind, q.PromptText, q.PromptImageURL, q.Explanation, q.IsExamQuestion,
		).Scan(&q.ID, &q.CreatedAt)
		if err != nil {
			return err
		}

		for i := range q.Options {
			o := &q.Options[i]
			o.QuestionID = q.ID
			o.OptionOrder = i
			err := tx.QueryRow(ctx,
				`INSERT INTO question_options (question_id, option_order, text, image_url, is_correct)
				 VALUES ($1, $2, $3, $4, $5)
				 RETURNING id`,
				o.QuestionID, o.OptionOrder, o.Text, o.ImageURL, o.IsCorrect,
			).Scan(&o.ID)
			if err != nil {
				return err
			}
		}
		return nil
	})
}
