package graduation

import (
	"context"

	"github.com/dojang-hub/dojang-exam-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACE
// Уникальность активной аттестации на пару (экзамен, ученик) и глобальная
// уникальность номера сертификата обеспечиваются ограничениями хранилища.
// ══════════════════════════════════════════════════════════════════════════════

// Repository определяет операции хранилища для аттестаций.
type Repository interface {
	// Create создаёт новую аттестацию.
	// Возвращает shared.ErrAlreadyGraduated, если активная аттестация
	// для пары (экзамен, ученик) уже существует.
	Create(ctx context.Context, g *Graduation) error

	// GetByID возвращает аттестацию по ID.
	// Возвращает shared.ErrGraduationNotFound, если не найдена.
	GetByID(ctx context.Context, id string) (*Graduation, error)

	// GetByExamAndStudent возвращает активную аттестацию пары.
	// Возвращает shared.ErrGraduationNotFound, если не найдена.
	GetByExamAndStudent(ctx context.Context, examID shared.ExamID, studentID shared.StudentID) (*Graduation, error)

	// Update сохраняет изменения аттестации.
	// Возвращает shared.ErrGraduationNotFound, если не найдена.
	Update(ctx context.Context, g *Graduation) error

	// ExistsForCandidate проверяет наличие активной аттестации пары.
	ExistsForCandidate(ctx context.Context, examID shared.ExamID, studentID shared.StudentID) (bool, error)

	// GetByStudent возвращает все аттестации ученика.
	GetByStudent(ctx context.Context, studentID shared.StudentID) ([]*Graduation, error)

	// FindUnapplied возвращает pending-аттестации с неприменённым каскадом.
	// Используется джобой реконсиляции после сбоя (повторное утверждение
	// безопасно благодаря идемпотентности каскада).
	FindUnapplied(ctx context.Context, limit int) ([]*Graduation, error)

	// CertificateNumberExists проверяет занятость номера сертификата.
	CertificateNumberExists(ctx context.Context, number string) (bool, error)
}
