package student

import (
	"context"
	"time"

	"github.com/dojang-hub/dojang-exam-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Эти интерфейсы определяют контракт для работы с хранилищем данных.
// Реализации находятся в infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Repository определяет операции чтения и записи для учеников.
// Подсистема экзаменов мутирует только пояс и счётчики аттестаций.
type Repository interface {
	// GetByID возвращает ученика по внутреннему ID.
	// Возвращает shared.ErrStudentNotFound, если ученик не найден.
	GetByID(ctx context.Context, id shared.StudentID) (*Student, error)

	// GetByIDs возвращает учеников по списку ID.
	GetByIDs(ctx context.Context, ids []shared.StudentID) ([]*Student, error)

	// Update обновляет данные ученика.
	// Возвращает shared.ErrStudentNotFound, если ученик не найден.
	Update(ctx context.Context, s *Student) error

	// Exists проверяет существование ученика по ID.
	Exists(ctx context.Context, id shared.StudentID) (bool, error)
}

// AttendanceLog определяет доступ к журналу посещаемости (только чтение).
type AttendanceLog interface {
	// GetByStudent возвращает все записи посещаемости ученика.
	GetByStudent(ctx context.Context, studentID shared.StudentID) ([]AttendanceRecord, error)

	// CountByStatus возвращает количество записей ученика по статусу.
	// Пустой статус означает все записи.
	CountByStatus(ctx context.Context, studentID shared.StudentID, status AttendanceStatus) (int, error)

	// GetByStudentSince возвращает записи не раньше указанной даты.
	GetByStudentSince(ctx context.Context, studentID shared.StudentID, since time.Time) ([]AttendanceRecord, error)
}

// PaymentLedger определяет доступ к платёжной истории (только чтение).
type PaymentLedger interface {
	// GetByStudent возвращает все платёжные записи ученика.
	GetByStudent(ctx context.Context, studentID shared.StudentID) ([]PaymentRecord, error)

	// CountDelinquent возвращает количество записей в статусах pending/overdue.
	CountDelinquent(ctx context.Context, studentID shared.StudentID) (int, error)
}
