package query

import (
	"context"

	"github.com/dojang-hub/dojang-exam-hub/internal/domain/graduation"
	"github.com/dojang-hub/dojang-exam-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET STUDENT GRADUATIONS QUERY
// История аттестаций ученика: все записи, включая отменённые.
// ══════════════════════════════════════════════════════════════════════════════

// GetStudentGraduationsQuery содержит параметры запроса истории аттестаций.
type GetStudentGraduationsQuery struct {
	StudentID shared.StudentID
}

// Validate проверяет корректность параметров запроса.
func (q GetStudentGraduationsQuery) Validate() error {
	if !q.StudentID.IsValid() {
		return shared.ErrInvalidStudentID
	}
	return nil
}

// GetStudentGraduationsHandler обрабатывает GetStudentGraduationsQuery.
type GetStudentGraduationsHandler struct {
	graduationRepo graduation.Repository
}

// NewGetStudentGraduationsHandler создаёт новый GetStudentGraduationsHandler.
func NewGetStudentGraduationsHandler(graduationRepo graduation.Repository) *GetStudentGraduationsHandler {
	return &GetStudentGraduationsHandler{graduationRepo: graduationRepo}
}

// Handle выполняет запрос истории аттестаций.
func (h *GetStudentGraduationsHandler) Handle(ctx context.Context, q GetStudentGraduationsQuery) ([]*graduation.Graduation, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	return h.graduationRepo.GetByStudent(ctx, q.StudentID)
}
