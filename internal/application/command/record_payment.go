package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dojang-hub/dojang-exam-hub/internal/domain/exam"
	"github.com/dojang-hub/dojang-exam-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECORD PAYMENT COMMAND
// Records a fee payment for an enrolled candidate. Payments accumulate; the
// candidate is settled once the discounted fee is covered in full.
// ══════════════════════════════════════════════════════════════════════════════

// RecordPaymentCommand contains the data to record a payment.
type RecordPaymentCommand struct {
	// ExamID is the exam the payment applies to.
	ExamID string

	// StudentID is the paying candidate.
	StudentID string

	// AmountCents is the payment amount in cents (must be positive).
	AmountCents int64

	// Reference is an external payment reference (receipt, transfer ID).
	Reference string

	// PaidAt is when the payment was made (defaults to now if zero).
	PaidAt time.Time

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c RecordPaymentCommand) Validate() error {
	if c.ExamID == "" {
		return errors.New("record_payment: exam_id is required")
	}
	if c.StudentID == "" {
		return errors.New("record_payment: student_id is required")
	}
	if c.AmountCents <= 0 {
		return errors.New("record_payment: amount_cents must be positive")
	}
	return nil
}

// RecordPaymentResult contains the result of recording a payment.
type RecordPaymentResult struct {
	// ExamID is the exam the payment was applied to.
	ExamID string `json:"exam_id"`

	// StudentID is the paying candidate.
	StudentID string `json:"student_id"`

	// PaidCents is the total amount paid so far.
	PaidCents int64 `json:"paid_cents"`

	// OutstandingCents is the remaining balance.
	OutstandingCents int64 `json:"outstanding_cents"`

	// FullyPaid indicates the fee is now covered.
	FullyPaid bool `json:"fully_paid"`

	// RecordedAt is when the payment was recorded.
	RecordedAt time.Time `json:"recorded_at"`
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// RecordPaymentHandler handles the RecordPaymentCommand.
type RecordPaymentHandler struct {
	examRepo       exam.Repository
	eventPublisher shared.EventPublisher
}

// NewRecordPaymentHandler creates a new RecordPaymentHandler.
func NewRecordPaymentHandler(examRepo exam.Repository, eventPublisher shared.EventPublisher) *RecordPaymentHandler {
	return &RecordPaymentHandler{
		examRepo:       examRepo,
		eventPublisher: eventPublisher,
	}
}

// Handle executes the record payment command.
func (h *RecordPaymentHandler) Handle(ctx context.Context, cmd RecordPaymentCommand) (*RecordPaymentResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("record_payment: validation failed: %w", err)
	}

	examID, err := shared.NewExamID(cmd.ExamID)
	if err != nil {
		return nil, err
	}
	studentID, err := shared.NewStudentID(cmd.StudentID)
	if err != nil {
		return nil, err
	}

	paidAt := cmd.PaidAt
	if paidAt.IsZero() {
		paidAt = time.Now().UTC()
	}

	ex, err := h.examRepo.GetByID(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("record_payment: failed to get exam: %w", err)
	}

	candidate, err := ex.RecordPayment(studentID, shared.Money(cmd.AmountCents), cmd.Reference, paidAt)
	if err != nil {
		return nil, err
	}

	if err := h.examRepo.Save(ctx, ex); err != nil {
		return nil, fmt.Errorf("record_payment: failed to save exam: %w", err)
	}

	event := shared.NewPaymentRecordedEvent(
		string(ex.ID), string(studentID), cmd.AmountCents, cmd.Reference, candidate.Payment.Paid)
	if cmd.CorrelationID != "" {
		event.BaseEvent = event.BaseEvent.WithCorrelationID(cmd.CorrelationID)
	}
	_ = h.eventPublisher.Publish(event)

	return &RecordPaymentResult{
		ExamID:           string(ex.ID),
		StudentID:        string(studentID),
		PaidCents:        int64(candidate.Payment.PaidCents),
		OutstandingCents: int64(candidate.Payment.Outstanding()),
		FullyPaid:        candidate.Payment.Paid,
		RecordedAt:       paidAt,
	}, nil
}
