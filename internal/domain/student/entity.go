// Package student содержит доменную модель ученика академии.
// Это ядро бизнес-логики - здесь нет внешних зависимостей.
//
// Для подсистемы экзаменов ученик - внешний коллаборатор: читаются пояс,
// посещаемость и платёжная история; записывается только поле пояса
// (каскад при утверждении аттестации) и накопительные счётчики аттестаций.
package student

import (
	"fmt"
	"strings"
	"time"

	"github.com/dojang-hub/dojang-exam-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// Belt представляет текущий пояс ученика с данными о присвоении.
type Belt struct {
	// Level - уровень пояса (blanco ... negro).
	Level shared.BeltRank

	// ObtainedAt - дата присвоения текущего пояса.
	// Может быть нулевой для учеников, созданных до ввода аттестаций:
	// в этом случае стаж считается от даты регистрации.
	ObtainedAt time.Time

	// CertifiedBy - инструктор, присвоивший пояс.
	CertifiedBy shared.StaffID
}

// IsValid проверяет корректность пояса.
func (b Belt) IsValid() bool {
	return b.Level.IsValid()
}

// TenureSince возвращает дату, от которой считается стаж на текущем поясе.
// Если дата присвоения отсутствует, используется fallback (дата регистрации).
func (b Belt) TenureSince(fallback time.Time) time.Time {
	if b.ObtainedAt.IsZero() {
		return fallback
	}
	return b.ObtainedAt
}

// AttendanceStatus определяет статус записи посещаемости.
type AttendanceStatus string

const (
	// AttendancePresent - ученик присутствовал.
	AttendancePresent AttendanceStatus = "present"
	// AttendanceAbsent - ученик отсутствовал.
	AttendanceAbsent AttendanceStatus = "absent"
	// AttendanceJustified - отсутствие по уважительной причине.
	AttendanceJustified AttendanceStatus = "justified"
	// AttendanceLate - ученик опоздал.
	AttendanceLate AttendanceStatus = "late"
)

// IsValid проверяет, что статус корректен.
func (s AttendanceStatus) IsValid() bool {
	switch s {
	case AttendancePresent, AttendanceAbsent, AttendanceJustified, AttendanceLate:
		return true
	default:
		return false
	}
}

// AttendanceRecord - одна запись журнала посещаемости.
type AttendanceRecord struct {
	StudentID shared.StudentID
	Date      time.Time
	Status    AttendanceStatus
}

// PaymentStatus определяет статус записи платёжной истории.
type PaymentStatus string

const (
	// PaymentPending - платёж ожидается.
	PaymentPending PaymentStatus = "pending"
	// PaymentPaid - платёж получен.
	PaymentPaid PaymentStatus = "paid"
	// PaymentOverdue - платёж просрочен.
	PaymentOverdue PaymentStatus = "overdue"
	// PaymentCancelled - платёж отменён.
	PaymentCancelled PaymentStatus = "cancelled"
)

// IsValid проверяет, что статус корректен.
func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentPending, PaymentPaid, PaymentOverdue, PaymentCancelled:
		return true
	default:
		return false
	}
}

// IsDelinquent возвращает true, если запись блокирует допуск к экзамену.
func (s PaymentStatus) IsDelinquent() bool {
	return s == PaymentPending || s == PaymentOverdue
}

// PaymentRecord - одна запись платёжной истории ученика.
type PaymentRecord struct {
	StudentID   shared.StudentID
	Status      PaymentStatus
	AmountCents shared.Money
	CreatedAt   time.Time
}

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: STUDENT
// ══════════════════════════════════════════════════════════════════════════════

// Student - сущность ученика академии.
type Student struct {
	// ID - внутренний уникальный идентификатор (UUID в строковом формате).
	ID shared.StudentID

	// DisplayName - отображаемое имя.
	DisplayName string

	// Belt - текущий пояс.
	Belt Belt

	// Active - false для мягко деактивированных учеников.
	Active bool

	// JoinedAt - дата регистрации в академии.
	JoinedAt time.Time

	// GraduationTestsTaken - сколько аттестаций ученик проходил.
	GraduationTestsTaken int

	// GraduationTestsPassed - сколько аттестаций сдано успешно.
	GraduationTestsPassed int

	// CreatedAt - время создания записи.
	CreatedAt time.Time

	// UpdatedAt - время последнего обновления.
	UpdatedAt time.Time
}

// NewStudentParams содержит параметры для создания нового ученика.
type NewStudentParams struct {
	ID          shared.StudentID
	DisplayName string
	BeltLevel   shared.BeltRank
	JoinedAt    time.Time
}

// NewStudent создаёт нового ученика с валидацией всех полей.
func NewStudent(params NewStudentParams) (*Student, error) {
	if !params.ID.IsValid() {
		return nil, shared.ErrInvalidStudentID
	}

	displayName := strings.TrimSpace(params.DisplayName)
	if len(displayName) == 0 || len(displayName) > 100 {
		return nil, shared.NewDomainError("student", "Create", shared.ErrInvalidInput, "display name must be 1-100 chars")
	}

	if !params.BeltLevel.IsValid() {
		return nil, shared.ErrInvalidBeltRank
	}

	now := time.Now().UTC()
	joinedAt := params.JoinedAt
	if joinedAt.IsZero() {
		joinedAt = now
	}

	return &Student{
		ID:          params.ID,
		DisplayName: displayName,
		Belt: Belt{
			Level: params.BeltLevel,
		},
		Active:    true,
		JoinedAt:  joinedAt,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN METHODS (Business Logic)
// ══════════════════════════════════════════════════════════════════════════════

// BeltTenureDays возвращает стаж на текущем поясе в календарных днях.
func (s *Student) BeltTenureDays(at time.Time) int {
	return shared.DaysBetween(s.Belt.TenureSince(s.JoinedAt), at)
}

// PromoteBelt применяет каскад аттестации: новый пояс, дата присвоения,
// присвоивший инструктор. Вызывается ТОЛЬКО из перехода pending→approved.
func (s *Student) PromoteBelt(level shared.BeltRank, obtainedAt time.Time, certifiedBy shared.StaffID) error {
	if !level.IsValid() {
		return shared.ErrInvalidBeltRank
	}

	s.Belt = Belt{
		Level:       level,
		ObtainedAt:  obtainedAt,
		CertifiedBy: certifiedBy,
	}
	s.UpdatedAt = time.Now().UTC()
	return nil
}

// RecordGraduationAttempt обновляет накопительные счётчики аттестаций.
func (s *Student) RecordGraduationAttempt(passed bool) {
	s.GraduationTestsTaken++
	if passed {
		s.GraduationTestsPassed++
	}
	s.UpdatedAt = time.Now().UTC()
}

// Deactivate мягко деактивирует ученика.
func (s *Student) Deactivate() {
	s.Active = false
	s.UpdatedAt = time.Now().UTC()
}

// String возвращает строковое представление ученика для логирования.
func (s *Student) String() string {
	return fmt.Sprintf(
		"Student{ID: %s, Name: %s, Belt: %s, Tests: %d/%d}",
		s.ID, s.DisplayName, s.Belt.Level, s.GraduationTestsPassed, s.GraduationTestsTaken,
	)
}

// Clone создаёт глубокую копию ученика.
func (s *Student) Clone() *Student {
	if s == nil {
		return nil
	}

	clone := *s
	return &clone
}
