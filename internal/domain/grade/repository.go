package grade

import (
	"context"

	"github.com/dojang-hub/dojang-exam-hub/internal/domain/shared"
)

// Repository defines storage operations for grades.
// The (exam, student) uniqueness is enforced by a database constraint in
// addition to the service-level check, closing concurrent race windows.
type Repository interface {
	// Create persists a new grade.
	// Returns shared.ErrGradeExists when a grade already exists for the
	// (exam, student) pair.
	Create(ctx context.Context, g *Grade) error

	// GetByID returns a grade by its ID.
	// Returns shared.ErrGradeNotFound when missing.
	GetByID(ctx context.Context, id string) (*Grade, error)

	// GetByExamAndStudent returns the grade of one candidate in one exam.
	// Returns shared.ErrGradeNotFound when missing.
	GetByExamAndStudent(ctx context.Context, examID shared.ExamID, studentID shared.StudentID) (*Grade, error)

	// Update persists changes to an existing grade.
	// Returns shared.ErrGradeNotFound when missing.
	Update(ctx context.Context, g *Grade) error

	// GetByExam returns all grades recorded for an exam.
	GetByExam(ctx context.Context, examID shared.ExamID) ([]*Grade, error)

	// ExistsForCandidate reports whether any grade references the pair.
	// Used to block unenrollment of graded candidates.
	ExistsForCandidate(ctx context.Context, examID shared.ExamID, studentID shared.StudentID) (bool, error)
}
