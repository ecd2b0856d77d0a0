package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dojang-hub/dojang-exam-hub/internal/domain/graduation"
	"github.com/dojang-hub/dojang-exam-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CANCEL GRADUATION COMMAND
// Cancels a pending or approved graduation with a documented reason.
// A cascade that already promoted the student is NOT reversed: the belt stays,
// only the graduation record is voided. Certified graduations are immutable.
// ══════════════════════════════════════════════════════════════════════════════

// CancelGraduationCommand contains the data to cancel a graduation.
type CancelGraduationCommand struct {
	// GraduationID is the graduation to cancel.
	GraduationID string

	// Reason documents why the graduation is cancelled (required).
	Reason string

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c CancelGraduationCommand) Validate() error {
	if c.GraduationID == "" {
		return errors.New("cancel_graduation: graduation_id is required")
	}
	if c.Reason == "" {
		return errors.New("cancel_graduation: reason is required")
	}
	return nil
}

// CancelGraduationResult contains the result of the cancellation.
type CancelGraduationResult struct {
	// GraduationID is the cancelled graduation.
	GraduationID string `json:"graduation_id"`

	// StudentID is the affected student.
	StudentID string `json:"student_id"`

	// CascadeKept indicates the belt cascade had already been applied and
	// was deliberately left in place.
	CascadeKept bool `json:"cascade_kept"`

	// CancelledAt is when the cancellation happened.
	CancelledAt time.Time `json:"cancelled_at"`
}

// CancelGraduationHandler handles the CancelGraduationCommand.
type CancelGraduationHandler struct {
	graduationRepo graduation.Repository
	eventPublisher shared.EventPublisher
}

// NewCancelGraduationHandler creates a new CancelGraduationHandler.
func NewCancelGraduationHandler(
	graduationRepo graduation.Repository,
	eventPublisher shared.EventPublisher,
) *CancelGraduationHandler {
	return &CancelGraduationHandler{
		graduationRepo: graduationRepo,
		eventPublisher: eventPublisher,
	}
}

// Handle executes the cancel graduation command.
func (h *CancelGraduationHandler) Handle(ctx context.Context, cmd CancelGraduationCommand) (*CancelGraduationResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("cancel_graduation: validation failed: %w", err)
	}

	grad, err := h.graduationRepo.GetByID(ctx, cmd.GraduationID)
	if err != nil {
		return nil, fmt.Errorf("cancel_graduation: failed to get graduation: %w", err)
	}

	if err := grad.Cancel(cmd.Reason); err != nil {
		return nil, err
	}

	if err := h.graduationRepo.Update(ctx, grad); err != nil {
		return nil, fmt.Errorf("cancel_graduation: failed to save graduation: %w", err)
	}

	event := shared.NewGraduationCancelledEvent(
		grad.ID, string(grad.StudentID), cmd.Reason, grad.StudentUpdated)
	if cmd.CorrelationID != "" {
		event.BaseEvent = event.BaseEvent.WithCorrelationID(cmd.CorrelationID)
	}
	_ = h.eventPublisher.Publish(event)

	return &CancelGraduationResult{
		GraduationID: grad.ID,
		StudentID:    string(grad.StudentID),
		CascadeKept:  grad.StudentUpdated,
		CancelledAt:  time.Now().UTC(),
	}, nil
}
