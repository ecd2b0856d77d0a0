package exam

import (
	"context"

	"github.com/dojang-hub/dojang-exam-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACE
// Экзамен сохраняется целиком как агрегат: строки кандидатов перезаписываются
// в одной транзакции с инкрементом версии корня.
// ══════════════════════════════════════════════════════════════════════════════

// Repository определяет операции хранилища для агрегата экзамена.
type Repository interface {
	// Create создаёт новый экзамен.
	// Возвращает shared.ErrAlreadyExists, если экзамен уже существует.
	Create(ctx context.Context, e *Exam) error

	// GetByID возвращает экзамен со всеми кандидатами.
	// Возвращает shared.ErrExamNotFound, если экзамен не найден.
	GetByID(ctx context.Context, id shared.ExamID) (*Exam, error)

	// Save сохраняет агрегат с проверкой версии:
	// UPDATE ... WHERE id = $1 AND version = $2.
	// Возвращает shared.ErrExamVersionConflict при конкурентной модификации.
	// При успехе инкрементирует e.Version.
	Save(ctx context.Context, e *Exam) error

	// GetAll возвращает экзамены с пагинацией.
	GetAll(ctx context.Context, opts ListOptions) ([]*Exam, error)

	// GetByStatus возвращает экзамены в указанном состоянии.
	GetByStatus(ctx context.Context, status Status, opts ListOptions) ([]*Exam, error)
}

// ListOptions содержит параметры для пагинации и сортировки.
type ListOptions struct {
	// Offset - смещение (для пагинации).
	Offset int

	// Limit - максимальное количество записей.
	Limit int

	// IncludeCancelled - включать отменённые экзамены.
	IncludeCancelled bool
}

// DefaultListOptions возвращает параметры по умолчанию.
func DefaultListOptions() ListOptions {
	return ListOptions{
		Offset: 0,
		Limit:  50,
	}
}
