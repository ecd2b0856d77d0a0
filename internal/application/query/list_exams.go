package query

import (
	"context"

	"github.com/dojang-hub/dojang-exam-hub/internal/domain/exam"
	"github.com/dojang-hub/dojang-exam-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LIST EXAMS QUERY
// Возвращает страницу экзаменов, опционально отфильтрованную по статусу.
// ══════════════════════════════════════════════════════════════════════════════

// ListExamsQuery содержит параметры запроса списка экзаменов.
type ListExamsQuery struct {
	// Status - фильтр по статусу ("" = все).
	Status string

	// IncludeCancelled - включать ли отменённые экзамены (только без фильтра).
	IncludeCancelled bool

	// Offset, Limit - пагинация.
	Offset int
	Limit  int
}

// Validate проверяет корректность параметров запроса.
func (q ListExamsQuery) Validate() error {
	if q.Status != "" && !exam.Status(q.Status).IsValid() {
		return shared.NewDomainError("query", "ListExams", shared.ErrInvalidInput,
			"unknown exam status: "+q.Status)
	}
	if q.Offset < 0 || q.Limit < 0 {
		return shared.NewDomainError("query", "ListExams", shared.ErrInvalidInput,
			"offset and limit must be non-negative")
	}
	return nil
}

// ListExamsHandler обрабатывает ListExamsQuery.
type ListExamsHandler struct {
	examRepo exam.Repository
}

// NewListExamsHandler создаёт новый ListExamsHandler.
func NewListExamsHandler(examRepo exam.Repository) *ListExamsHandler {
	return &ListExamsHandler{examRepo: examRepo}
}

// Handle выполняет запрос списка экзаменов.
func (h *ListExamsHandler) Handle(ctx context.Context, q ListExamsQuery) ([]*exam.Exam, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	opts := exam.DefaultListOptions()
	if q.Limit > 0 {
		opts.Limit = q.Limit
	}
	opts.Offset = q.Offset
	opts.IncludeCancelled = q.IncludeCancelled

	if q.Status != "" {
		return h.examRepo.GetByStatus(ctx, exam.Status(q.Status), opts)
	}
	return h.examRepo.GetAll(ctx, opts)
}
