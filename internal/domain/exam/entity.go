// Package exam содержит доменную модель экзамена-аттестации.
// Экзамен - агрегат: список кандидатов встроен в него, и любая мутация
// кандидатов проходит через корень агрегата под оптимистической блокировкой.
package exam

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/dojang-hub/dojang-exam-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// Type определяет тип экзамена.
type Type string

const (
	// TypeGraduation - аттестация на следующий пояс.
	// Требует совпадения текущего пояса кандидата с требуемым.
	TypeGraduation Type = "graduation"
	// TypeEvaluation - промежуточная оценка без смены пояса.
	TypeEvaluation Type = "evaluation"
)

// IsValid проверяет, что тип корректен.
func (t Type) IsValid() bool {
	return t == TypeGraduation || t == TypeEvaluation
}

// Status определяет текущее состояние экзамена.
type Status string

const (
	// StatusScheduled - экзамен запланирован, идёт запись кандидатов.
	StatusScheduled Status = "scheduled"
	// StatusInProgress - экзамен проводится.
	StatusInProgress Status = "in_progress"
	// StatusCompleted - экзамен завершён.
	StatusCompleted Status = "completed"
	// StatusCancelled - экзамен отменён (мягкая деактивация).
	StatusCancelled Status = "cancelled"
)

// IsValid проверяет, что статус корректен.
func (s Status) IsValid() bool {
	switch s {
	case StatusScheduled, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	default:
		return false
	}
}

// AcceptsEnrollment возвращает true, если в экзамен можно записываться.
func (s Status) AcceptsEnrollment() bool {
	return s == StatusScheduled
}

// AcceptsGrading возвращает true, если по экзамену можно выставлять оценки.
func (s Status) AcceptsGrading() bool {
	return s == StatusInProgress || s == StatusCompleted
}

// Category - весовая категория оценивания (например, Técnica 40%).
type Category struct {
	// Name - название категории.
	Name string

	// Weight - вес категории в процентах (0-100).
	Weight shared.Weight
}

// Validate проверяет одну категорию.
func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return shared.NewDomainError("exam", "Validate", shared.ErrEmptyValue, "category name is required")
	}
	if !c.Weight.IsValid() {
		return shared.ErrCategoryWeight
	}
	return nil
}

// Requirements - требования допуска к экзамену.
type Requirements struct {
	// MinAttendancePercent - минимальный процент посещаемости (0-100, включительно).
	MinAttendancePercent float64

	// MinDaysSinceBelt - минимальный стаж на текущем поясе в днях.
	MinDaysSinceBelt int

	// PaymentMustBeCurrent - требуется ли отсутствие задолженностей.
	PaymentMustBeCurrent bool

	// CurrentBeltRequired - требуемый текущий пояс (только для graduation).
	CurrentBeltRequired shared.BeltRank

	// FeeCents - стоимость участия в экзамене.
	FeeCents shared.Money
}

// Validate проверяет требования.
func (r Requirements) Validate(examType Type) error {
	if r.MinAttendancePercent < 0 || r.MinAttendancePercent > 100 {
		return shared.NewDomainError("exam", "Validate", shared.ErrValueOutOfRange, "min attendance percent must be 0-100")
	}
	if r.MinDaysSinceBelt < 0 {
		return shared.NewDomainError("exam", "Validate", shared.ErrNegativeValue, "min days since belt cannot be negative")
	}
	if !r.FeeCents.IsValid() {
		return shared.NewDomainError("exam", "Validate", shared.ErrNegativeValue, "exam fee cannot be negative")
	}
	if examType == TypeGraduation && !r.CurrentBeltRequired.IsValid() {
		return shared.NewDomainError("exam", "Validate", shared.ErrInvalidInput, "graduation exam requires a current belt requirement")
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// CANDIDATE (запись кандидата внутри агрегата)
// ══════════════════════════════════════════════════════════════════════════════

// CandidatePayment - платёжная подзапись кандидата по взносу за экзамен.
type CandidatePayment struct {
	// FeeCents - полная стоимость на момент записи.
	FeeCents shared.Money

	// DiscountPercent - персональная скидка кандидата (0-100).
	DiscountPercent float64

	// PaidCents - накопленная оплаченная сумма.
	PaidCents shared.Money

	// Paid - true, когда накоплено >= стоимости со скидкой.
	Paid bool

	// LastReference - референс последнего платежа (для аудита).
	LastReference string

	// LastPaidAt - время последнего платежа.
	LastPaidAt time.Time
}

// DiscountedFee возвращает стоимость со скидкой.
func (p CandidatePayment) DiscountedFee() shared.Money {
	return p.FeeCents.ApplyDiscount(p.DiscountPercent)
}

// Outstanding возвращает остаток к оплате.
func (p CandidatePayment) Outstanding() shared.Money {
	due := p.DiscountedFee()
	if p.PaidCents >= due {
		return 0
	}
	return due - p.PaidCents
}

// Waiver - административное освобождение от оплаты.
type Waiver struct {
	// Waived - true, если оплата не требуется.
	Waived bool

	// WaivedBy - сотрудник, авторизовавший освобождение. Хранится как есть.
	WaivedBy shared.StaffID

	// Reason - причина в свободной форме (для аудита).
	Reason string
}

// Candidate - запись ученика в списке кандидатов экзамена.
type Candidate struct {
	// ID - идентификатор записи кандидата.
	ID string

	// StudentID - ученик.
	StudentID shared.StudentID

	// EnrolledAt - время записи.
	EnrolledAt time.Time

	// Payment - платёжная подзапись.
	Payment CandidatePayment

	// Waiver - освобождение от оплаты.
	Waiver Waiver

	// Eligibility - снимок допуска на момент записи (информационный).
	Eligibility EligibilityResult

	// Graded - по кандидату выставлена итоговая оценка.
	Graded bool

	// Passed - кандидат сдал экзамен.
	Passed bool
}

// PaymentSettled возвращает true, если взнос оплачен или освобождён.
func (c Candidate) PaymentSettled() bool {
	return c.Waiver.Waived || c.Payment.Paid
}

// ══════════════════════════════════════════════════════════════════════════════
// MAIN AGGREGATE: EXAM
// ══════════════════════════════════════════════════════════════════════════════

// Exam - корень агрегата экзамена.
type Exam struct {
	// ID - внутренний уникальный идентификатор (UUID в строковом формате).
	ID shared.ExamID

	// Name - название экзамена (например, "Attestation Q3 2026").
	Name string

	// Type - тип экзамена.
	Type Type

	// TargetBeltRank - пояс, присваиваемый при успешной сдаче.
	TargetBeltRank shared.BeltRank

	// MinPassingScore - проходной балл (0-100).
	MinPassingScore shared.Score

	// Categories - весовые категории оценивания. Сумма весов = 100 ± 0.01.
	Categories []Category

	// Requirements - требования допуска.
	Requirements Requirements

	// Instructors - инструкторы экзамена (сертификаторы по умолчанию).
	Instructors []shared.StaffID

	// Candidates - упорядоченный список кандидатов (встроен в агрегат).
	Candidates []Candidate

	// Status - состояние жизненного цикла.
	Status Status

	// Version - версия агрегата для оптимистической блокировки.
	// Инкрементируется хранилищем при каждом сохранении.
	Version int

	// ScheduledAt - планируемая дата проведения.
	ScheduledAt time.Time

	// CreatedAt - время создания записи.
	CreatedAt time.Time

	// UpdatedAt - время последнего обновления.
	UpdatedAt time.Time
}

// NewExamParams содержит параметры для создания нового экзамена.
type NewExamParams struct {
	ID              shared.ExamID
	Name            string
	Type            Type
	TargetBeltRank  shared.BeltRank
	MinPassingScore shared.Score
	Categories      []Category
	Requirements    Requirements
	Instructors     []shared.StaffID
	ScheduledAt     time.Time
}

// NewExam создаёт новый экзамен с валидацией всех инвариантов.
func NewExam(params NewExamParams) (*Exam, error) {
	if !params.ID.IsValid() {
		return nil, shared.NewDomainError("exam", "Create", shared.ErrInvalidID, "invalid exam ID")
	}
	if strings.TrimSpace(params.Name) == "" {
		return nil, shared.NewDomainError("exam", "Create", shared.ErrEmptyValue, "exam name is required")
	}
	if !params.Type.IsValid() {
		return nil, shared.NewDomainError("exam", "Create", shared.ErrInvalidInput, "invalid exam type")
	}
	if !params.TargetBeltRank.IsValid() {
		return nil, shared.ErrInvalidBeltRank
	}
	if !params.MinPassingScore.IsValid() {
		return nil, shared.NewDomainError("exam", "Create", shared.ErrValueOutOfRange, "min passing score must be 0-100")
	}
	if err := ValidateCategories(params.Categories); err != nil {
		return nil, err
	}
	if err := params.Requirements.Validate(params.Type); err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	return &Exam{
		ID:              params.ID,
		Name:            strings.TrimSpace(params.Name),
		Type:            params.Type,
		TargetBeltRank:  params.TargetBeltRank,
		MinPassingScore: params.MinPassingScore,
		Categories:      params.Categories,
		Requirements:    params.Requirements,
		Instructors:     params.Instructors,
		Candidates:      nil,
		Status:          StatusScheduled,
		Version:         0,
		ScheduledAt:     params.ScheduledAt,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// ValidateCategories проверяет инвариант суммы весов: 100 ± 0.01
// для непустого списка категорий.
func ValidateCategories(categories []Category) error {
	if len(categories) == 0 {
		return nil
	}

	var sum float64
	for _, c := range categories {
		if err := c.Validate(); err != nil {
			return err
		}
		sum += c.Weight.Float64()
	}

	if math.Abs(sum-100) > shared.WeightSumTolerance {
		return shared.WrapError("exam", "Validate", shared.ErrValidation,
			fmt.Sprintf("category weights sum to %.2f, expected 100", sum), shared.ErrInvalidCategories)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN METHODS (Business Logic)
// ══════════════════════════════════════════════════════════════════════════════

// Candidate возвращает запись кандидата по ученику.
// Возвращает shared.ErrCandidateNotFound, если ученик не записан.
func (e *Exam) Candidate(studentID shared.StudentID) (*Candidate, error) {
	for i := range e.Candidates {
		if e.Candidates[i].StudentID == studentID {
			return &e.Candidates[i], nil
		}
	}
	return nil, shared.ErrCandidateNotFound
}

// IsEnrolled проверяет, записан ли ученик.
func (e *Exam) IsEnrolled(studentID shared.StudentID) bool {
	_, err := e.Candidate(studentID)
	return err == nil
}

// EnrollParams - параметры записи кандидата.
type EnrollParams struct {
	CandidateID     string
	StudentID       shared.StudentID
	DiscountPercent float64
	WaivePayment    bool
	WaivedBy        shared.StaffID
	WaiverReason    string
	Eligibility     EligibilityResult
	EnrolledAt      time.Time
}

// Enroll добавляет кандидата в список. Снимок допуска сохраняется как есть:
// несоответствие требованиям само по себе запись не блокирует.
func (e *Exam) Enroll(params EnrollParams) (*Candidate, error) {
	if !e.Status.AcceptsEnrollment() {
		return nil, shared.ErrExamNotOpen
	}
	if e.IsEnrolled(params.StudentID) {
		return nil, shared.ErrAlreadyEnrolled
	}
	if params.DiscountPercent < 0 || params.DiscountPercent > 100 {
		return nil, shared.NewDomainError("exam", "Enroll", shared.ErrValueOutOfRange, "discount percent must be 0-100")
	}
	if params.WaivePayment && !params.WaivedBy.IsValid() {
		return nil, shared.ErrWaiverUnauthorized
	}

	enrolledAt := params.EnrolledAt
	if enrolledAt.IsZero() {
		enrolledAt = time.Now().UTC()
	}

	candidate := Candidate{
		ID:         params.CandidateID,
		StudentID:  params.StudentID,
		EnrolledAt: enrolledAt,
		Payment: CandidatePayment{
			FeeCents:        e.Requirements.FeeCents,
			DiscountPercent: params.DiscountPercent,
		},
		Waiver: Waiver{
			Waived:   params.WaivePayment,
			WaivedBy: params.WaivedBy,
			Reason:   strings.TrimSpace(params.WaiverReason),
		},
		Eligibility: params.Eligibility,
	}

	// Взнос 0 (или скидка 100%) считается оплаченным сразу.
	if candidate.Payment.DiscountedFee() == 0 {
		candidate.Payment.Paid = true
	}

	e.Candidates = append(e.Candidates, candidate)
	e.UpdatedAt = time.Now().UTC()

	return &e.Candidates[len(e.Candidates)-1], nil
}

// RemoveCandidate удаляет кандидата из списка.
// Проверка на существующую оценку выполняется на уровне сервиса.
func (e *Exam) RemoveCandidate(studentID shared.StudentID) error {
	for i := range e.Candidates {
		if e.Candidates[i].StudentID == studentID {
			e.Candidates = append(e.Candidates[:i], e.Candidates[i+1:]...)
			e.UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return shared.ErrCandidateNotFound
}

// RecordPayment накапливает оплату взноса кандидата.
// Флаг Paid выставляется при достижении стоимости со скидкой.
func (e *Exam) RecordPayment(studentID shared.StudentID, amount shared.Money, reference string, at time.Time) (*Candidate, error) {
	if !amount.IsValid() || amount == 0 {
		return nil, shared.NewDomainError("exam", "RecordPayment", shared.ErrInvalidInput, "payment amount must be positive")
	}

	candidate, err := e.Candidate(studentID)
	if err != nil {
		return nil, err
	}

	candidate.Payment.PaidCents = candidate.Payment.PaidCents.Add(amount)
	candidate.Payment.LastReference = reference
	candidate.Payment.LastPaidAt = at
	if candidate.Payment.PaidCents >= candidate.Payment.DiscountedFee() {
		candidate.Payment.Paid = true
	}
	e.UpdatedAt = time.Now().UTC()

	return candidate, nil
}

// MarkGraded отмечает кандидата как оценённого.
func (e *Exam) MarkGraded(studentID shared.StudentID, passed bool) error {
	candidate, err := e.Candidate(studentID)
	if err != nil {
		return err
	}

	candidate.Graded = true
	candidate.Passed = passed
	e.UpdatedAt = time.Now().UTC()
	return nil
}

// Start переводит экзамен в состояние проведения.
func (e *Exam) Start() error {
	if e.Status != StatusScheduled {
		return shared.WrapError("exam", "Start", shared.ErrStateTransition,
			fmt.Sprintf("cannot start exam in status %q", e.Status), nil)
	}
	e.Status = StatusInProgress
	e.UpdatedAt = time.Now().UTC()
	return nil
}

// Complete завершает экзамен.
func (e *Exam) Complete() error {
	if e.Status != StatusInProgress {
		return shared.WrapError("exam", "Complete", shared.ErrStateTransition,
			fmt.Sprintf("cannot complete exam in status %q", e.Status), nil)
	}
	e.Status = StatusCompleted
	e.UpdatedAt = time.Now().UTC()
	return nil
}

// Cancel отменяет экзамен (мягкая деактивация, записи не удаляются).
func (e *Exam) Cancel() error {
	if e.Status == StatusCompleted || e.Status == StatusCancelled {
		return shared.WrapError("exam", "Cancel", shared.ErrStateTransition,
			fmt.Sprintf("cannot cancel exam in status %q", e.Status), nil)
	}
	e.Status = StatusCancelled
	e.UpdatedAt = time.Now().UTC()
	return nil
}

// DefaultCertifiers возвращает инструкторов экзамена как сертификаторов
// по умолчанию для создаваемых аттестаций.
func (e *Exam) DefaultCertifiers() []shared.StaffID {
	return e.Instructors
}

// SortedCandidates возвращает копию списка кандидатов, упорядоченную
// по времени записи.
func (e *Exam) SortedCandidates() []Candidate {
	out := make([]Candidate, len(e.Candidates))
	copy(out, e.Candidates)
	sort.Slice(out, func(i, j int) bool {
		return out[i].EnrolledAt.Before(out[j].EnrolledAt)
	})
	return out
}

// String возвращает строковое представление экзамена для логирования.
func (e *Exam) String() string {
	return fmt.Sprintf(
		"Exam{ID: %s, Name: %s, Type: %s, Target: %s, Candidates: %d, Status: %s, v%d}",
		e.ID, e.Name, e.Type, e.TargetBeltRank, len(e.Candidates), e.Status, e.Version,
	)
}
