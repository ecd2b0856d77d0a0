// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dojang-hub/dojang-exam-hub/internal/domain/exam"
	"github.com/dojang-hub/dojang-exam-hub/internal/domain/shared"
	"github.com/dojang-hub/dojang-exam-hub/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENROLL CANDIDATE COMMAND
// Enrolls a student into a scheduled exam. Eligibility is evaluated and
// snapshotted on the candidate record; whether a failed evaluation blocks the
// enrollment depends on the configured policy.
// ══════════════════════════════════════════════════════════════════════════════

// EnrollmentPolicy controls how a failed eligibility evaluation is treated.
type EnrollmentPolicy string

const (
	// PolicyAdvisory - the eligibility snapshot is recorded but never blocks.
	PolicyAdvisory EnrollmentPolicy = "advisory"

	// PolicyStrict - an ineligible student cannot be enrolled.
	PolicyStrict EnrollmentPolicy = "strict"
)

// EligibilityEvaluator evaluates a student's eligibility against an exam's
// requirements. Implemented by the query-side evaluator.
type EligibilityEvaluator interface {
	Evaluate(ctx context.Context, studentID shared.StudentID, ex *exam.Exam) (exam.EligibilityResult, error)
}

// EnrollCandidateCommand contains the data to enroll a candidate.
type EnrollCandidateCommand struct {
	// ExamID is the target exam.
	ExamID string

	// StudentID is the student being enrolled.
	StudentID string

	// DiscountPercent reduces the exam fee (0-100).
	DiscountPercent float64

	// WaivePayment marks the fee as waived entirely.
	WaivePayment bool

	// WaivedBy is the staff member authorizing the waiver (required when waiving).
	WaivedBy string

	// WaiverReason documents why the fee was waived.
	WaiverReason string

	// Policy selects advisory or strict eligibility enforcement.
	// Defaults to advisory.
	Policy EnrollmentPolicy

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c EnrollCandidateCommand) Validate() error {
	if c.ExamID == "" {
		return errors.New("enroll_candidate: exam_id is required")
	}
	if c.StudentID == "" {
		return errors.New("enroll_candidate: student_id is required")
	}
	if c.DiscountPercent < 0 || c.DiscountPercent > 100 {
		return errors.New("enroll_candidate: discount_percent must be between 0 and 100")
	}
	if c.WaivePayment && c.WaivedBy == "" {
		return errors.New("enroll_candidate: waived_by is required when waiving payment")
	}

	switch c.Policy {
	case "", PolicyAdvisory, PolicyStrict:
	default:
		return fmt.Errorf("enroll_candidate: unknown policy: %s", c.Policy)
	}

	return nil
}

// EnrollCandidateResult contains the result of the enrollment.
type EnrollCandidateResult struct {
	// CandidateID is the ID of the new candidate record.
	CandidateID string `json:"candidate_id"`

	// ExamID is the exam the student was enrolled into.
	ExamID string `json:"exam_id"`

	// StudentID is the enrolled student.
	StudentID string `json:"student_id"`

	// Eligibility is the snapshot taken at enrollment time.
	Eligibility exam.EligibilityResult `json:"eligibility"`

	// FeeCents is the fee after discount, zero when waived.
	FeeCents int64 `json:"fee_cents"`

	// PaymentSettled indicates no further payment is required.
	PaymentSettled bool `json:"payment_settled"`

	// EnrolledAt is when the enrollment happened.
	EnrolledAt time.Time `json:"enrolled_at"`
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// EnrollCandidateHandler handles the EnrollCandidateCommand.
type EnrollCandidateHandler struct {
	examRepo       exam.Repository
	studentRepo    student.Repository
	evaluator      EligibilityEvaluator
	eventPublisher shared.EventPublisher
}

// NewEnrollCandidateHandler creates a new EnrollCandidateHandler.
func NewEnrollCandidateHandler(
	examRepo exam.Repository,
	studentRepo student.Repository,
	evaluator EligibilityEvaluator,
	eventPublisher shared.EventPublisher,
) *EnrollCandidateHandler {
	return &EnrollCandidateHandler{
		examRepo:       examRepo,
		studentRepo:    studentRepo,
		evaluator:      evaluator,
		eventPublisher: eventPublisher,
	}
}

// Handle executes the enroll candidate command.
func (h *EnrollCandidateHandler) Handle(ctx context.Context, cmd EnrollCandidateCommand) (*EnrollCandidateResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("enroll_candidate: validation failed: %w", err)
	}

	examID, err := shared.NewExamID(cmd.ExamID)
	if err != nil {
		return nil, err
	}
	studentID, err := shared.NewStudentID(cmd.StudentID)
	if err != nil {
		return nil, err
	}

	ex, err := h.examRepo.GetByID(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("enroll_candidate: failed to get exam: %w", err)
	}

	stud, err := h.studentRepo.GetByID(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("enroll_candidate: failed to get student: %w", err)
	}

	// A graduation exam targets one specific belt; the student must hold
	// the belt the exam tests from.
	if ex.Type == exam.TypeGraduation && ex.Requirements.CurrentBeltRequired != "" &&
		stud.Belt.Level != ex.Requirements.CurrentBeltRequired {
		return nil, shared.WrapError("exam", "Enroll", shared.ErrBeltMismatch,
			fmt.Sprintf("exam requires belt %q, student holds %q",
				ex.Requirements.CurrentBeltRequired, stud.Belt.Level), nil)
	}

	eligibility, err := h.evaluator.Evaluate(ctx, studentID, ex)
	if err != nil {
		return nil, fmt.Errorf("enroll_candidate: eligibility evaluation failed: %w", err)
	}

	if cmd.Policy == PolicyStrict && !eligibility.Eligible() {
		return nil, shared.NewDomainError("exam", "Enroll", shared.ErrNotEligible,
			fmt.Sprintf("student does not meet exam requirements: %v", eligibility.Reasons()))
	}

	now := time.Now().UTC()
	candidate, err := ex.Enroll(exam.EnrollParams{
		CandidateID:     uuid.NewString(),
		StudentID:       studentID,
		DiscountPercent: cmd.DiscountPercent,
		WaivePayment:    cmd.WaivePayment,
		WaivedBy:        shared.StaffID(cmd.WaivedBy),
		WaiverReason:    cmd.WaiverReason,
		Eligibility:     eligibility,
		EnrolledAt:      now,
	})
	if err != nil {
		return nil, err
	}

	if err := h.examRepo.Save(ctx, ex); err != nil {
		return nil, fmt.Errorf("enroll_candidate: failed to save exam: %w", err)
	}

	event := shared.NewCandidateEnrolledEvent(
		string(ex.ID), string(studentID), candidate.Waiver.Waived, eligibility.Eligible())
	if cmd.CorrelationID != "" {
		event.BaseEvent = event.BaseEvent.WithCorrelationID(cmd.CorrelationID)
	}
	_ = h.eventPublisher.Publish(event)

	return &EnrollCandidateResult{
		CandidateID:    candidate.ID,
		ExamID:         string(ex.ID),
		StudentID:      string(studentID),
		Eligibility:    eligibility,
		FeeCents:       int64(candidate.Payment.DiscountedFee()),
		PaymentSettled: candidate.PaymentSettled(),
		EnrolledAt:     now,
	}, nil
}
