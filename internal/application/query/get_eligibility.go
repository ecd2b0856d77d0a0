// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/dojang-hub/dojang-exam-hub/internal/domain/exam"
	"github.com/dojang-hub/dojang-exam-hub/internal/domain/shared"
	"github.com/dojang-hub/dojang-exam-hub/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET ELIGIBILITY QUERY
// Вычисляет три независимых сигнала допуска ученика к экзамену:
// посещаемость, стаж на поясе, платёжная дисциплина. Чистое чтение.
// ══════════════════════════════════════════════════════════════════════════════

// GetEligibilityQuery содержит параметры запроса допуска.
type GetEligibilityQuery struct {
	// StudentID - внутренний ID ученика.
	StudentID shared.StudentID

	// ExamID - экзамен, чьи требования применяются.
	ExamID shared.ExamID

	// BypassCache - принудительно пересчитать, минуя кэш.
	BypassCache bool
}

// Validate проверяет корректность параметров запроса.
func (q GetEligibilityQuery) Validate() error {
	if !q.StudentID.IsValid() {
		return shared.ErrInvalidStudentID
	}
	if !q.ExamID.IsValid() {
		return shared.NewDomainError("query", "GetEligibility", shared.ErrInvalidID, "invalid exam ID")
	}
	return nil
}

// EligibilityCache кэширует снимки допуска (обычно Redis с коротким TTL).
type EligibilityCache interface {
	// Get возвращает закэшированный снимок, если он есть.
	Get(ctx context.Context, studentID shared.StudentID, examID shared.ExamID) (*exam.EligibilityResult, bool, error)

	// Set сохраняет снимок.
	Set(ctx context.Context, studentID shared.StudentID, examID shared.ExamID, result exam.EligibilityResult) error

	// InvalidateStudent сбрасывает все снимки ученика.
	InvalidateStudent(ctx context.Context, studentID shared.StudentID) error
}

// ══════════════════════════════════════════════════════════════════════════════
// ELIGIBILITY EVALUATOR
// ══════════════════════════════════════════════════════════════════════════════

// EligibilityEvaluator вычисляет снимок допуска по требованиям экзамена.
//
// Контракт ошибок: отсутствие ученика - жёсткая ошибка NotFound; сбой
// чтения журналов посещаемости или платежей превращается в отрицательный
// снимок с пояснением, а не в ошибку (спокойная деградация: запись на
// экзамен снимок не блокирует).
type EligibilityEvaluator struct {
	studentRepo   student.Repository
	attendanceLog student.AttendanceLog
	paymentLedger student.PaymentLedger

	// now подменяется в тестах.
	now func() time.Time
}

// NewEligibilityEvaluator создаёт новый EligibilityEvaluator.
func NewEligibilityEvaluator(
	studentRepo student.Repository,
	attendanceLog student.AttendanceLog,
	paymentLedger student.PaymentLedger,
) *EligibilityEvaluator {
	return &EligibilityEvaluator{
		studentRepo:   studentRepo,
		attendanceLog: attendanceLog,
		paymentLedger: paymentLedger,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Evaluate вычисляет снимок допуска ученика к экзамену.
func (e *EligibilityEvaluator) Evaluate(ctx context.Context, studentID shared.StudentID, ex *exam.Exam) (exam.EligibilityResult, error) {
	s, err := e.studentRepo.GetByID(ctx, studentID)
	if err != nil {
		return exam.EligibilityResult{}, err
	}

	at := e.now()
	result := exam.EligibilityResult{
		Attendance:  e.checkAttendance(ctx, studentID, ex.Requirements),
		Tenure:      e.checkTenure(s, ex.Requirements, at),
		Payment:     e.checkPayment(ctx, studentID, ex.Requirements),
		EvaluatedAt: at,
	}

	return result, nil
}

// checkAttendance считает долю present среди всех записей посещаемости.
// Сравнение с минимумом включительное: ровно на границе - допуск есть.
func (e *EligibilityEvaluator) checkAttendance(ctx context.Context, studentID shared.StudentID, req exam.Requirements) exam.AttendanceCheck {
	total, err := e.attendanceLog.CountByStatus(ctx, studentID, "")
	if err != nil {
		return exam.AttendanceCheck{
			Reason: fmt.Sprintf("attendance log unavailable: %v", err),
		}
	}

	present, err := e.attendanceLog.CountByStatus(ctx, studentID, student.AttendancePresent)
	if err != nil {
		return exam.AttendanceCheck{
			Reason: fmt.Sprintf("attendance log unavailable: %v", err),
		}
	}

	var ratio float64
	if total > 0 {
		ratio = float64(present) / float64(total) * 100
	}
	// Округление до сотых, чтобы граничное сравнение было стабильным.
	ratio = math.Round(ratio*100) / 100

	check := exam.AttendanceCheck{
		Ratio:    ratio,
		MeetsMin: ratio >= req.MinAttendancePercent,
	}
	if !check.MeetsMin {
		check.Reason = fmt.Sprintf("attendance %.2f%% is below required %.2f%%", ratio, req.MinAttendancePercent)
	}
	return check
}

// checkTenure считает календарные дни на текущем поясе.
// При отсутствии даты присвоения пояса используется дата регистрации.
func (e *EligibilityEvaluator) checkTenure(s *student.Student, req exam.Requirements, at time.Time) exam.TenureCheck {
	days := s.BeltTenureDays(at)

	check := exam.TenureCheck{
		Days:     days,
		MeetsMin: days >= req.MinDaysSinceBelt,
	}
	if !check.MeetsMin {
		check.Reason = fmt.Sprintf("belt held %d days, %d required", days, req.MinDaysSinceBelt)
	}
	return check
}

// checkPayment проверяет отсутствие задолженностей (pending/overdue).
// Если экзамен не требует платёжной дисциплины, сигнал автоматически true.
func (e *EligibilityEvaluator) checkPayment(ctx context.Context, studentID shared.StudentID, req exam.Requirements) exam.PaymentCheck {
	if !req.PaymentMustBeCurrent {
		return exam.PaymentCheck{MeetsRequirement: true}
	}

	delinquent, err := e.paymentLedger.CountDelinquent(ctx, studentID)
	if err != nil {
		return exam.PaymentCheck{
			Reason: fmt.Sprintf("payment ledger unavailable: %v", err),
		}
	}

	check := exam.PaymentCheck{
		MeetsRequirement: delinquent == 0,
		DelinquentCount:  delinquent,
	}
	if !check.MeetsRequirement {
		check.Reason = fmt.Sprintf("%d pending or overdue payment(s)", delinquent)
	}
	return check
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// GetEligibilityHandler обрабатывает GetEligibilityQuery.
type GetEligibilityHandler struct {
	examRepo  exam.Repository
	evaluator *EligibilityEvaluator
	cache     EligibilityCache // может быть nil
}

// NewGetEligibilityHandler создаёт новый GetEligibilityHandler.
func NewGetEligibilityHandler(examRepo exam.Repository, evaluator *EligibilityEvaluator, cache EligibilityCache) *GetEligibilityHandler {
	return &GetEligibilityHandler{
		examRepo:  examRepo,
		evaluator: evaluator,
		cache:     cache,
	}
}

// Handle выполняет запрос допуска.
func (h *GetEligibilityHandler) Handle(ctx context.Context, q GetEligibilityQuery) (exam.EligibilityResult, error) {
	if err := q.Validate(); err != nil {
		return exam.EligibilityResult{}, err
	}

	if h.cache != nil && !q.BypassCache {
		if cached, ok, err := h.cache.Get(ctx, q.StudentID, q.ExamID); err == nil && ok {
			return *cached, nil
		}
	}

	ex, err := h.examRepo.GetByID(ctx, q.ExamID)
	if err != nil {
		return exam.EligibilityResult{}, err
	}

	result, err := h.evaluator.Evaluate(ctx, q.StudentID, ex)
	if err != nil {
		return exam.EligibilityResult{}, err
	}

	if h.cache != nil {
		// Сбой кэша не влияет на результат.
		_ = h.cache.Set(ctx, q.StudentID, q.ExamID, result)
	}

	return result, nil
}
