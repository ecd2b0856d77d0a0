package query

import (
	"context"

	"github.com/dojang-hub/dojang-exam-hub/internal/domain/grade"
	"github.com/dojang-hub/dojang-exam-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET GRADE QUERY
// Возвращает оценку кандидата по ID либо по паре (экзамен, ученик).
// ══════════════════════════════════════════════════════════════════════════════

// GetGradeQuery содержит параметры запроса оценки.
type GetGradeQuery struct {
	// GradeID - прямой идентификатор оценки (приоритетный способ).
	GradeID string

	// ExamID + StudentID - альтернативный способ идентификации.
	ExamID    shared.ExamID
	StudentID shared.StudentID
}

// Validate проверяет корректность параметров запроса.
func (q GetGradeQuery) Validate() error {
	if q.GradeID != "" {
		return nil
	}
	if !q.ExamID.IsValid() || !q.StudentID.IsValid() {
		return shared.NewDomainError("query", "GetGrade", shared.ErrInvalidInput,
			"either grade_id or both exam_id and student_id must be provided")
	}
	return nil
}

// GetGradeHandler обрабатывает GetGradeQuery.
type GetGradeHandler struct {
	gradeRepo grade.Repository
}

// NewGetGradeHandler создаёт новый GetGradeHandler.
func NewGetGradeHandler(gradeRepo grade.Repository) *GetGradeHandler {
	return &GetGradeHandler{gradeRepo: gradeRepo}
}

// Handle выполняет запрос оценки.
func (h *GetGradeHandler) Handle(ctx context.Context, q GetGradeQuery) (*grade.Grade, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	if q.GradeID != "" {
		return h.gradeRepo.GetByID(ctx, q.GradeID)
	}
	return h.gradeRepo.GetByExamAndStudent(ctx, q.ExamID, q.StudentID)
}
