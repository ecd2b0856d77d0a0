// Package graduation содержит доменную модель аттестации - неизменяемой связки
// (экзамен, оценка, ученик) с конечным автоматом жизненного цикла.
//
// Каскад пояса - явный шаг перехода pending→approved, а не скрытый побочный
// эффект сохранения. Флаг StudentUpdated гарантирует, что мутация ученика
// применяется не более одного раза, сколько бы раз переход ни вызывался.
package graduation

import (
	"fmt"
	"strings"
	"time"

	"github.com/dojang-hub/dojang-exam-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// STATE MACHINE
// pending → approved → certified
//    │          │
//    └──────────┴────→ cancelled (терминальное)
// ══════════════════════════════════════════════════════════════════════════════

// State определяет состояние аттестации.
type State string

const (
	// StatePending - аттестация создана, ожидает утверждения.
	StatePending State = "pending"
	// StateApproved - утверждена, каскад пояса применён.
	StateApproved State = "approved"
	// StateCertified - выдан сертификат (терминальное).
	StateCertified State = "certified"
	// StateCancelled - отменена административно (терминальное).
	// Уже применённый каскад пояса НЕ откатывается.
	StateCancelled State = "cancelled"
)

// IsValid проверяет, что состояние корректно.
func (s State) IsValid() bool {
	switch s {
	case StatePending, StateApproved, StateCertified, StateCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal возвращает true для терминальных состояний.
func (s State) IsTerminal() bool {
	return s == StateCertified || s == StateCancelled
}

// CanCancel возвращает true, если из состояния возможна отмена.
func (s State) CanCancel() bool {
	return s == StatePending || s == StateApproved
}

// ══════════════════════════════════════════════════════════════════════════════
// CERTIFICATE
// ══════════════════════════════════════════════════════════════════════════════

// Certificate - метаданные выданного сертификата.
type Certificate struct {
	// Number - глобально уникальный номер сертификата.
	Number string

	// FileRef - ссылка на файл сертификата во внешнем хранилище.
	FileRef string

	// FileType - тип файла (например, "pdf").
	FileType string

	// IssuedAt - дата выдачи.
	IssuedAt time.Time
}

// Validate проверяет обязательные поля сертификата.
func (c Certificate) Validate() error {
	if strings.TrimSpace(c.FileRef) == "" || strings.TrimSpace(c.FileType) == "" {
		return shared.ErrCertificateMissing
	}
	return nil
}

// CertificateNumber форматирует номер сертификата: год + месяц + суффикс.
// Уникальность обеспечивает хранилище; при коллизии генерация повторяется
// с новым суффиксом.
func CertificateNumber(at time.Time, suffix string) string {
	return fmt.Sprintf("%04d%02d-%s", at.Year(), int(at.Month()), strings.ToUpper(suffix))
}

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: GRADUATION
// ══════════════════════════════════════════════════════════════════════════════

// Graduation - неизменяемая запись аттестации.
// Создаётся только из финализированной оценки с результатом pass.
type Graduation struct {
	// ID - внутренний уникальный идентификатор (UUID в строковом формате).
	ID string

	// ExamID - экзамен.
	ExamID shared.ExamID

	// GradeID - оценка, на основании которой создана аттестация.
	GradeID string

	// StudentID - аттестуемый ученик.
	StudentID shared.StudentID

	// PreviousBelt - пояс ученика на момент создания.
	PreviousBelt shared.BeltRank

	// NewBelt - присваиваемый пояс (целевой пояс экзамена).
	NewBelt shared.BeltRank

	// Date - дата аттестации.
	Date time.Time

	// Certifiers - сертифицирующие инструкторы.
	Certifiers []shared.StaffID

	// Certificate - метаданные сертификата (nil до выдачи).
	Certificate *Certificate

	// State - состояние конечного автомата.
	State State

	// StudentUpdated - true, если каскад пояса уже применён к ученику.
	// Защищает от повторной мутации при ретраях утверждения.
	StudentUpdated bool

	// StudentUpdatedAt - когда каскад был применён.
	StudentUpdatedAt time.Time

	// ApprovedBy - сотрудник, утвердивший аттестацию.
	ApprovedBy shared.StaffID

	// ApprovedAt - когда аттестация была утверждена.
	ApprovedAt time.Time

	// Notes - административные заметки (причины отмены и т.п.).
	Notes []string

	// CreatedAt - время создания записи.
	CreatedAt time.Time

	// UpdatedAt - время последнего обновления.
	UpdatedAt time.Time
}

// NewGraduationParams содержит параметры для создания аттестации.
type NewGraduationParams struct {
	ID           string
	ExamID       shared.ExamID
	GradeID      string
	StudentID    shared.StudentID
	PreviousBelt shared.BeltRank
	NewBelt      shared.BeltRank
	Date         time.Time
	Certifiers   []shared.StaffID
}

// NewGraduation создаёт аттестацию в состоянии pending.
// Проверка результата оценки (pass) выполняется на уровне сервиса:
// доменный слой не имеет доступа к хранилищу оценок.
func NewGraduation(params NewGraduationParams) (*Graduation, error) {
	if strings.TrimSpace(params.ID) == "" {
		return nil, shared.NewDomainError("graduation", "Create", shared.ErrInvalidID, "graduation ID is required")
	}
	if !params.ExamID.IsValid() {
		return nil, shared.NewDomainError("graduation", "Create", shared.ErrInvalidID, "invalid exam ID")
	}
	if strings.TrimSpace(params.GradeID) == "" {
		return nil, shared.NewDomainError("graduation", "Create", shared.ErrInvalidID, "grade ID is required")
	}
	if !params.StudentID.IsValid() {
		return nil, shared.ErrInvalidStudentID
	}
	if !params.PreviousBelt.IsValid() || !params.NewBelt.IsValid() {
		return nil, shared.ErrInvalidBeltRank
	}

	now := time.Now().UTC()
	date := params.Date
	if date.IsZero() {
		date = now
	}

	return &Graduation{
		ID:           params.ID,
		ExamID:       params.ExamID,
		GradeID:      params.GradeID,
		StudentID:    params.StudentID,
		PreviousBelt: params.PreviousBelt,
		NewBelt:      params.NewBelt,
		Date:         date,
		Certifiers:   params.Certifiers,
		State:        StatePending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// TRANSITIONS
// ══════════════════════════════════════════════════════════════════════════════

// Approve выполняет переход pending→approved.
//
// Возвращает cascadeNeeded = true, если вызывающий обязан применить каскад
// пояса к ученику и затем вызвать MarkStudentUpdated. Если каскад уже был
// применён (StudentUpdated == true), переход продвигает состояние, но
// повторной мутации ученика не требует.
//
// Повторное утверждение уже утверждённой аттестации - no-op без ошибки:
// это делает ретраи и реконсиляцию безопасными.
func (g *Graduation) Approve(approvedBy shared.StaffID, at time.Time) (cascadeNeeded bool, err error) {
	switch g.State {
	case StatePending:
		// продолжаем
	case StateApproved:
		return false, nil
	default:
		return false, shared.WrapError("graduation", "Approve", shared.ErrStateTransition,
			fmt.Sprintf("cannot approve graduation in state %q", g.State), nil)
	}

	g.State = StateApproved
	g.ApprovedBy = approvedBy
	g.ApprovedAt = at
	g.UpdatedAt = time.Now().UTC()

	return !g.StudentUpdated, nil
}

// FirstCertifier возвращает инструктора, записываемого в belt.certifiedBy.
func (g *Graduation) FirstCertifier() shared.StaffID {
	if len(g.Certifiers) == 0 {
		return ""
	}
	return g.Certifiers[0]
}

// MarkStudentUpdated фиксирует применение каскада пояса.
func (g *Graduation) MarkStudentUpdated(at time.Time) {
	g.StudentUpdated = true
	g.StudentUpdatedAt = at
	g.UpdatedAt = time.Now().UTC()
}

// Certify выполняет переход approved→certified, прикрепляя сертификат.
// Номер сертификата должен быть сгенерирован и сохранён до вызова.
func (g *Graduation) Certify(cert Certificate) error {
	if g.State != StateApproved {
		return shared.WrapError("graduation", "Certify", shared.ErrStateTransition,
			fmt.Sprintf("cannot certify graduation in state %q", g.State), nil)
	}
	if err := cert.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(cert.Number) == "" {
		return shared.NewDomainError("graduation", "Certify", shared.ErrInvalidInput, "certificate number is required")
	}

	if cert.IssuedAt.IsZero() {
		cert.IssuedAt = time.Now().UTC()
	}

	g.Certificate = &cert
	g.State = StateCertified
	g.UpdatedAt = time.Now().UTC()
	return nil
}

// Cancel выполняет переход pending/approved→cancelled.
// Причина обязательна и дописывается в заметки. Уже применённый каскад
// пояса не откатывается: отмена - административный флаг, а не undo.
func (g *Graduation) Cancel(reason string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return shared.ErrReasonRequired
	}
	if !g.State.CanCancel() {
		return shared.WrapError("graduation", "Cancel", shared.ErrStateTransition,
			fmt.Sprintf("cannot cancel graduation in state %q", g.State), nil)
	}

	g.Notes = append(g.Notes, fmt.Sprintf("cancelled: %s", reason))
	g.State = StateCancelled
	g.UpdatedAt = time.Now().UTC()
	return nil
}

// String возвращает строковое представление аттестации для логирования.
func (g *Graduation) String() string {
	return fmt.Sprintf(
		"Graduation{ID: %s, Student: %s, %s→%s, State: %s, StudentUpdated: %t}",
		g.ID, g.StudentID, g.PreviousBelt, g.NewBelt, g.State, g.StudentUpdated,
	)
}

// Clone создаёт глубокую копию аттестации.
func (g *Graduation) Clone() *Graduation {
	if g == nil {
		return nil
	}

	clone := *g
	clone.Certifiers = append([]shared.StaffID(nil), g.Certifiers...)
	clone.Notes = append([]string(nil), g.Notes...)
	if g.Certificate != nil {
		cert := *g.Certificate
		clone.Certificate = &cert
	}
	return &clone
}
