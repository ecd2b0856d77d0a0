package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dojang-hub/dojang-exam-hub/internal/domain/grade"
	"github.com/dojang-hub/dojang-exam-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GRADE REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// GradeRepository implements grade.Repository for PostgreSQL.
type GradeRepository struct {
	conn *Connection
}

// NewGradeRepository creates a new GradeRepository.
func NewGradeRepository(conn *Connection) *GradeRepository {
	return &GradeRepository{conn: conn}
}

const gradeColumns = `
	id, exam_id, student_id, scores, final_score, result, state,
	finalized_at, graded_by, reviewed_by, created_at, updated_at
`

// Create persists a new grade. The uq_grade constraint on (exam_id, student_id)
// closes the race two concurrent finalizations would otherwise open.
func (r *GradeRepository) Create(ctx context.Context, g *grade.Grade) error {
	scores, err := json.Marshal(g.Scores)
	if err != nil {
		return fmt.Errorf("failed to marshal scores: %w", err)
	}

	query := `
		INSERT INTO grades (
			id, exam_id, student_id, scores, final_score, result, state,
			finalized_at, graded_by, reviewed_by, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err = r.conn.Exec(ctx, query,
		g.ID,
		string(g.ExamID),
		string(g.StudentID),
		scores,
		float64(g.FinalScore),
		string(g.Result),
		string(g.State),
		nullableTime(g.FinalizedAt),
		nullableString(string(g.GradedBy)),
		nullableString(string(g.ReviewedBy)),
		g.CreatedAt,
		g.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrGradeExists
		}
		return fmt.Errorf("failed to create grade: %w", err)
	}

	return nil
}

// GetByID returns a grade by its ID.
func (r *GradeRepository) GetByID(ctx context.Context, id string) (*grade.Grade, error) {
	query := `SELECT ` + gradeColumns + ` FROM grades WHERE id = $1`
	return r.scanGrade(r.conn.QueryRow(ctx, query, id))
}

// GetByExamAndStudent returns the grade of one candidate in one exam.
func (r *GradeRepository) GetByExamAndStudent(ctx context.Context, examID shared.ExamID, studentID shared.StudentID) (*grade.Grade, error) {
	query := `SELECT ` + gradeColumns + ` FROM grades WHERE exam_id = $1 AND student_id = $2`
	return r.scanGrade(r.conn.QueryRow(ctx, query, string(examID), string(studentID)))
}

// Update persists changes to an existing grade.
func (r *GradeRepository) Update(ctx context.Context, g *grade.Grade) error {
	scores, err := json.Marshal(g.Scores)
	if err != nil {
		return fmt.Errorf("failed to marshal scores: %w", err)
	}

	query := `
		UPDATE grades SET
			scores = $1,
			final_score = $2,
			result = $3,
			state = $4,
			finalized_at = $5,
			graded_by = $6,
			reviewed_by = $7,
			updated_at = $8
		WHERE id = $9
	`

	result, err := r.conn.Exec(ctx, query,
		scores,
		float64(g.FinalScore),
		string(g.Result),
		string(g.State),
		nullableTime(g.FinalizedAt),
		nullableString(string(g.GradedBy)),
		nullableString(string(g.ReviewedBy)),
		time.Now().UTC(),
		g.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update grade: %w", err)
	}
	if result.RowsAffected() == 0 {
		return shared.ErrGradeNotFound
	}

	return nil
}

// GetByExam returns all grades recorded for an exam.
func (r *GradeRepository) GetByExam(ctx context.Context, examID shared.ExamID) ([]*grade.Grade, error) {
	query := `SELECT ` + gradeColumns + ` FROM grades WHERE exam_id = $1 ORDER BY created_at`

	rows, err := r.conn.Query(ctx, query, string(examID))
	if err != nil {
		return nil, fmt.Errorf("failed to query grades: %w", err)
	}
	defer rows.Close()

	var grades []*grade.Grade
	for rows.Next() {
		g, err := r.scanGrade(rows)
		if err != nil {
			return nil, err
		}
		grades = append(grades, g)
	}

	return grades, rows.Err()
}

// ExistsForCandidate reports whether any grade references the (exam, student) pair.
func (r *GradeRepository) ExistsForCandidate(ctx context.Context, examID shared.ExamID, studentID shared.StudentID) (bool, error) {
	var exists bool
	err := r.conn.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM grades WHERE exam_id = $1 AND student_id = $2)`,
		string(examID), string(studentID)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check grade existence: %w", err)
	}
	return exists, nil
}

func (r *GradeRepository) scanGrade(row pgx.Row) (*grade.Grade, error) {
	var (
		g           grade.Grade
		examID      string
		studentID   string
		scores      []byte
		finalScore  float64
		result      string
		state       string
		finalizedAt *time.Time
		gradedBy    *string
		reviewedBy  *string
	)

	err := row.Scan(
		&g.ID,
		&examID,
		&studentID,
		&scores,
		&finalScore,
		&result,
		&state,
		&finalizedAt,
		&gradedBy,
		&reviewedBy,
		&g.CreatedAt,
		&g.UpdatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrGradeNotFound
		}
		return nil, fmt.Errorf("failed to scan grade: %w", err)
	}

	g.ExamID = shared.ExamID(examID)
	g.StudentID = shared.StudentID(studentID)
	g.FinalScore = shared.Score(finalScore)
	g.Result = grade.Result(result)
	g.State = grade.State(state)
	if finalizedAt != nil {
		g.FinalizedAt = *finalizedAt
	}
	if gradedBy != nil {
		g.GradedBy = shared.StaffID(*gradedBy)
	}
	if reviewedBy != nil {
		g.ReviewedBy = shared.StaffID(*reviewedBy)
	}

	if len(scores) > 0 {
		if err := json.Unmarshal(scores, &g.Scores); err != nil {
			return nil, fmt.Errorf("failed to unmarshal scores: %w", err)
		}
	}

	return &g, nil
}
