package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dojang-hub/dojang-exam-hub/internal/domain/exam"
	"github.com/dojang-hub/dojang-exam-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// EXAM REPOSITORY IMPLEMENTATION
// The exam is persisted as an aggregate: the root row carries an optimistic
// version and the candidate rows are rewritten with it in one transaction.
// ══════════════════════════════════════════════════════════════════════════════

// ExamRepository implements exam.Repository for PostgreSQL.
type ExamRepository struct {
	conn *Connection
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(conn *Connection) *ExamRepository {
	return &ExamRepository{conn: conn}
}

const examColumns = `
	id, name, exam_type, status, target_belt_rank, min_passing_score,
	categories, requirements, instructors, scheduled_at, version,
	created_at, updated_at
`

// Create creates a new exam. Candidates are empty at creation time.
func (r *ExamRepository) Create(ctx context.Context, e *exam.Exam) error {
	categories, requirements, instructors, err := marshalExamParts(e)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO exams (
			id, name, exam_type, status, target_belt_rank, min_passing_score,
			categories, requirements, instructors, scheduled_at, version,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err = r.conn.Exec(ctx, query,
		string(e.ID),
		e.Name,
		string(e.Type),
		string(e.Status),
		nullableString(string(e.TargetBeltRank)),
		float64(e.MinPassingScore),
		categories,
		requirements,
		instructors,
		e.ScheduledAt,
		e.Version,
		e.CreatedAt,
		e.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.NewDomainError("exam", "Create", shared.ErrAlreadyExists, "exam already exists")
		}
		return fmt.Errorf("failed to create exam: %w", err)
	}

	return nil
}

// GetByID returns an exam with all its candidates.
func (r *ExamRepository) GetByID(ctx context.Context, id shared.ExamID) (*exam.Exam, error) {
	query := `SELECT ` + examColumns + ` FROM exams WHERE id = $1`

	e, err := r.scanExam(r.conn.QueryRow(ctx, query, string(id)))
	if err != nil {
		return nil, err
	}

	candidates, err := r.loadCandidates(ctx, e.ID)
	if err != nil {
		return nil, err
	}
	e.Candidates = candidates

	return e, nil
}

// Save persists the aggregate with a version check:
// UPDATE ... WHERE id = $n AND version = $m. Candidate rows are rewritten in
// the same transaction. Increments e.Version on success.
func (r *ExamRepository) Save(ctx context.Context, e *exam.Exam) error {
	categories, requirements, instructors, err := marshalExamParts(e)
	if err != nil {
		return err
	}

	return NewUnitOfWork(r.conn).WithinTx(ctx, func(txCtx context.Context) error {
		query := `
			UPDATE exams SET
				name = $1,
				exam_type = $2,
				status = $3,
				target_belt_rank = $4,
				min_passing_score = $5,
				categories = $6,
				requirements = $7,
				instructors = $8,
				scheduled_at = $9,
				version = version + 1,
				updated_at = $10
			WHERE id = $11 AND version = $12
		`

		result, err := r.conn.Exec(txCtx, query,
			e.Name,
			string(e.Type),
			string(e.Status),
			nullableString(string(e.TargetBeltRank)),
			float64(e.MinPassingScore),
			categories,
			requirements,
			instructors,
			e.ScheduledAt,
			time.Now().UTC(),
			string(e.ID),
			e.Version,
		)
		if err != nil {
			return fmt.Errorf("failed to save exam: %w", err)
		}

		if result.RowsAffected() == 0 {
			exists, err := r.exists(txCtx, e.ID)
			if err != nil {
				return err
			}
			if !exists {
				return shared.ErrExamNotFound
			}
			return shared.ErrExamVersionConflict
		}

		if err := r.rewriteCandidates(txCtx, e); err != nil {
			return err
		}

		e.Version++
		return nil
	})
}

// GetAll returns exams with pagination.
func (r *ExamRepository) GetAll(ctx context.Context, opts exam.ListOptions) ([]*exam.Exam, error) {
	query := `SELECT ` + examColumns + ` FROM exams`
	if !opts.IncludeCancelled {
		query += ` WHERE status != 'cancelled'`
	}
	query += ` ORDER BY scheduled_at DESC LIMIT $1 OFFSET $2`

	return r.queryExams(ctx, query, normalizeLimit(opts.Limit), opts.Offset)
}

// GetByStatus returns exams with the given status.
func (r *ExamRepository) GetByStatus(ctx context.Context, status exam.Status, opts exam.ListOptions) ([]*exam.Exam, error) {
	query := `SELECT ` + examColumns + ` FROM exams
		WHERE status = $3
		ORDER BY scheduled_at DESC LIMIT $1 OFFSET $2`

	return r.queryExams(ctx, query, normalizeLimit(opts.Limit), opts.Offset, string(status))
}

// ─────────────────────────────────────────────────────────────────────────────
// Candidates
// ─────────────────────────────────────────────────────────────────────────────

// loadCandidates fetches the candidate rows of an exam.
func (r *ExamRepository) loadCandidates(ctx context.Context, examID shared.ExamID) ([]exam.Candidate, error) {
	query := `
		SELECT id, student_id, enrolled_at, fee_cents, discount_percent,
			   paid_cents, paid, last_payment_reference, last_paid_at,
			   waived, waived_by, waiver_reason, eligibility, graded, passed
		FROM exam_candidates
		WHERE exam_id = $1
		ORDER BY enrolled_at
	`

	rows, err := r.conn.Query(ctx, query, string(examID))
	if err != nil {
		return nil, fmt.Errorf("failed to query candidates: %w", err)
	}
	defer rows.Close()

	var candidates []exam.Candidate
	for rows.Next() {
		var (
			c           exam.Candidate
			studentID   string
			lastRef     *string
			lastPaidAt  *time.Time
			waivedBy    *string
			reason      *string
			eligibility []byte
		)

		err := rows.Scan(
			&c.ID,
			&studentID,
			&c.EnrolledAt,
			&c.Payment.FeeCents,
			&c.Payment.DiscountPercent,
			&c.Payment.PaidCents,
			&c.Payment.Paid,
			&lastRef,
			&lastPaidAt,
			&c.Waiver.Waived,
			&waivedBy,
			&reason,
			&eligibility,
			&c.Graded,
			&c.Passed,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan candidate: %w", err)
		}

		c.StudentID = shared.StudentID(studentID)
		if lastRef != nil {
			c.Payment.LastReference = *lastRef
		}
		if lastPaidAt != nil {
			c.Payment.LastPaidAt = *lastPaidAt
		}
		if waivedBy != nil {
			c.Waiver.WaivedBy = shared.StaffID(*waivedBy)
		}
		if reason != nil {
			c.Waiver.Reason = *reason
		}
		if len(eligibility) > 0 {
			if err := json.Unmarshal(eligibility, &c.Eligibility); err != nil {
				return nil, fmt.Errorf("failed to unmarshal eligibility: %w", err)
			}
		}

		candidates = append(candidates, c)
	}

	return candidates, rows.Err()
}

// rewriteCandidates deletes and re-inserts the candidate rows. Runs inside
// the Save transaction.
func (r *ExamRepository) rewriteCandidates(ctx context.Context, e *exam.Exam) error {
	if _, err := r.conn.Exec(ctx,
		`DELETE FROM exam_candidates WHERE exam_id = $1`, string(e.ID)); err != nil {
		return fmt.Errorf("failed to clear candidates: %w", err)
	}

	query := `
		INSERT INTO exam_candidates (
			id, exam_id, student_id, enrolled_at, fee_cents, discount_percent,
			paid_cents, paid, last_payment_reference, last_paid_at,
			waived, waived_by, waiver_reason, eligibility, graded, passed
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	for i := range e.Candidates {
		c := &e.Candidates[i]

		eligibility, err := json.Marshal(c.Eligibility)
		if err != nil {
			return fmt.Errorf("failed to marshal eligibility: %w", err)
		}

		_, err = r.conn.Exec(ctx, query,
			c.ID,
			string(e.ID),
			string(c.StudentID),
			c.EnrolledAt,
			int64(c.Payment.FeeCents),
			c.Payment.DiscountPercent,
			int64(c.Payment.PaidCents),
			c.Payment.Paid,
			nullableString(c.Payment.LastReference),
			nullableTime(c.Payment.LastPaidAt),
			c.Waiver.Waived,
			nullableString(string(c.Waiver.WaivedBy)),
			nullableString(c.Waiver.Reason),
			eligibility,
			c.Graded,
			c.Passed,
		)
		if err != nil {
			if IsUniqueViolation(err) {
				return shared.ErrAlreadyEnrolled
			}
			return fmt.Errorf("failed to insert candidate: %w", err)
		}
	}

	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Scan helpers
// ─────────────────────────────────────────────────────────────────────────────

func (r *ExamRepository) exists(ctx context.Context, id shared.ExamID) (bool, error) {
	var exists bool
	err := r.conn.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM exams WHERE id = $1)`, string(id)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check exam existence: %w", err)
	}
	return exists, nil
}

func (r *ExamRepository) queryExams(ctx context.Context, query string, args ...interface{}) ([]*exam.Exam, error) {
	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query exams: %w", err)
	}
	defer rows.Close()

	var exams []*exam.Exam
	for rows.Next() {
		e, err := r.scanExam(rows)
		if err != nil {
			return nil, err
		}
		exams = append(exams, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Listing endpoints do not need candidate rosters; GetByID loads them.
	return exams, nil
}

func (r *ExamRepository) scanExam(row pgx.Row) (*exam.Exam, error) {
	var (
		e            exam.Exam
		id           string
		examType     string
		status       string
		targetBelt   *string
		minScore     float64
		categories   []byte
		requirements []byte
		instructors  []byte
	)

	err := row.Scan(
		&id,
		&e.Name,
		&examType,
		&status,
		&targetBelt,
		&minScore,
		&categories,
		&requirements,
		&instructors,
		&e.ScheduledAt,
		&e.Version,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrExamNotFound
		}
		return nil, fmt.Errorf("failed to scan exam: %w", err)
	}

	e.ID = shared.ExamID(id)
	e.Type = exam.Type(examType)
	e.Status = exam.Status(status)
	e.MinPassingScore = shared.Score(minScore)
	if targetBelt != nil {
		e.TargetBeltRank = shared.BeltRank(*targetBelt)
	}

	if err := json.Unmarshal(categories, &e.Categories); err != nil {
		return nil, fmt.Errorf("failed to unmarshal categories: %w", err)
	}
	if err := json.Unmarshal(requirements, &e.Requirements); err != nil {
		return nil, fmt.Errorf("failed to unmarshal requirements: %w", err)
	}
	if err := json.Unmarshal(instructors, &e.Instructors); err != nil {
		return nil, fmt.Errorf("failed to unmarshal instructors: %w", err)
	}

	return &e, nil
}

func marshalExamParts(e *exam.Exam) (categories, requirements, instructors []byte, err error) {
	if categories, err = json.Marshal(e.Categories); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal categories: %w", err)
	}
	if requirements, err = json.Marshal(e.Requirements); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal requirements: %w", err)
	}
	if instructors, err = json.Marshal(e.Instructors); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal instructors: %w", err)
	}
	return categories, requirements, instructors, nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	return limit
}
