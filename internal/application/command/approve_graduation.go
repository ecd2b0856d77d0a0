package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dojang-hub/dojang-exam-hub/internal/domain/graduation"
	"github.com/dojang-hub/dojang-exam-hub/internal/domain/shared"
	"github.com/dojang-hub/dojang-exam-hub/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// APPROVE GRADUATION COMMAND
// Moves a pending graduation to approved and applies the belt cascade to the
// student's profile. Approving an already-approved graduation is a no-op, and
// a cascade that was already applied is never applied twice, so retries and
// reconciliation are safe.
// ══════════════════════════════════════════════════════════════════════════════

// ApproveGraduationCommand contains the data to approve a graduation.
type ApproveGraduationCommand struct {
	// GraduationID is the graduation to approve.
	GraduationID string

	// ApprovedBy is the staff member approving.
	ApprovedBy string

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c ApproveGraduationCommand) Validate() error {
	if c.GraduationID == "" {
		return errors.New("approve_graduation: graduation_id is required")
	}
	if c.ApprovedBy == "" {
		return errors.New("approve_graduation: approved_by is required")
	}
	return nil
}

// ApproveGraduationResult contains the result of the approval.
type ApproveGraduationResult struct {
	// GraduationID is the approved graduation.
	GraduationID string `json:"graduation_id"`

	// StudentID is the promoted student.
	StudentID string `json:"student_id"`

	// PreviousBelt is the belt before promotion.
	PreviousBelt string `json:"previous_belt"`

	// NewBelt is the belt after promotion.
	NewBelt string `json:"new_belt"`

	// CascadeApplied indicates the student profile was mutated by this call.
	// False when the graduation was already approved or the cascade had
	// already run.
	CascadeApplied bool `json:"cascade_applied"`

	// ApprovedAt is when the approval happened.
	ApprovedAt time.Time `json:"approved_at"`
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// ApproveGraduationHandler handles the ApproveGraduationCommand.
type ApproveGraduationHandler struct {
	graduationRepo graduation.Repository
	studentRepo    student.Repository
	eventPublisher shared.EventPublisher
}

// NewApproveGraduationHandler creates a new ApproveGraduationHandler.
func NewApproveGraduationHandler(
	graduationRepo graduation.Repository,
	studentRepo student.Repository,
	eventPublisher shared.EventPublisher,
) *ApproveGraduationHandler {
	return &ApproveGraduationHandler{
		graduationRepo: graduationRepo,
		studentRepo:    studentRepo,
		eventPublisher: eventPublisher,
	}
}

// Handle executes the approve graduation command.
//
// The cascade runs before the graduation record is saved: if the student
// update fails, the graduation stays pending with student_updated=false and
// the reconciliation job will re-drive it later.
func (h *ApproveGraduationHandler) Handle(ctx context.Context, cmd ApproveGraduationCommand) (*ApproveGraduationResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("approve_graduation: validation failed: %w", err)
	}

	grad, err := h.graduationRepo.GetByID(ctx, cmd.GraduationID)
	if err != nil {
		return nil, fmt.Errorf("approve_graduation: failed to get graduation: %w", err)
	}

	now := time.Now().UTC()
	cascadeNeeded, err := grad.Approve(shared.StaffID(cmd.ApprovedBy), now)
	if err != nil {
		return nil, err
	}

	cascadeApplied := false
	if cascadeNeeded {
		if err := h.applyCascade(ctx, grad); err != nil {
			return nil, err
		}
		grad.MarkStudentUpdated(time.Now().UTC())
		cascadeApplied = true
	}

	if err := h.graduationRepo.Update(ctx, grad); err != nil {
		return nil, fmt.Errorf("approve_graduation: failed to save graduation: %w", err)
	}

	if cascadeApplied {
		event := shared.NewBeltPromotedEvent(
			grad.ID, string(grad.ExamID), string(grad.StudentID),
			string(grad.PreviousBelt), string(grad.NewBelt), string(grad.FirstCertifier()))
		if cmd.CorrelationID != "" {
			event.BaseEvent = event.BaseEvent.WithCorrelationID(cmd.CorrelationID)
		}
		_ = h.eventPublisher.Publish(event)
	}

	return &ApproveGraduationResult{
		GraduationID:   grad.ID,
		StudentID:      string(grad.StudentID),
		PreviousBelt:   string(grad.PreviousBelt),
		NewBelt:        string(grad.NewBelt),
		CascadeApplied: cascadeApplied,
		ApprovedAt:     grad.ApprovedAt,
	}, nil
}

// applyCascade promotes the student's belt and bumps the attempt counters.
func (h *ApproveGraduationHandler) applyCascade(ctx context.Context, grad *graduation.Graduation) error {
	stud, err := h.studentRepo.GetByID(ctx, grad.StudentID)
	if err != nil {
		return fmt.Errorf("approve_graduation: failed to get student: %w", err)
	}

	if err := stud.PromoteBelt(grad.NewBelt, grad.Date, grad.FirstCertifier()); err != nil {
		return err
	}
	stud.RecordGraduationAttempt(true)

	if err := h.studentRepo.Update(ctx, stud); err != nil {
		return fmt.Errorf("approve_graduation: failed to update student: %w", err)
	}

	return nil
}
