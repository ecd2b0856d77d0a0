package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dojang-hub/dojang-exam-hub/internal/domain/exam"
	"github.com/dojang-hub/dojang-exam-hub/internal/domain/grade"
	"github.com/dojang-hub/dojang-exam-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// UNENROLL CANDIDATE COMMAND
// Withdraws a candidate from a scheduled exam. Withdrawal is refused once a
// grade exists for the candidate.
// ══════════════════════════════════════════════════════════════════════════════

// UnenrollCandidateCommand contains the data to withdraw a candidate.
type UnenrollCandidateCommand struct {
	// ExamID is the exam to withdraw from.
	ExamID string

	// StudentID is the candidate being withdrawn.
	StudentID string

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c UnenrollCandidateCommand) Validate() error {
	if c.ExamID == "" {
		return errors.New("unenroll_candidate: exam_id is required")
	}
	if c.StudentID == "" {
		return errors.New("unenroll_candidate: student_id is required")
	}
	return nil
}

// UnenrollCandidateResult contains the result of the withdrawal.
type UnenrollCandidateResult struct {
	ExamID      string    `json:"exam_id"`
	StudentID   string    `json:"student_id"`
	WithdrawnAt time.Time `json:"withdrawn_at"`
}

// UnenrollCandidateHandler handles the UnenrollCandidateCommand.
type UnenrollCandidateHandler struct {
	examRepo       exam.Repository
	gradeRepo      grade.Repository
	eventPublisher shared.EventPublisher
}

// NewUnenrollCandidateHandler creates a new UnenrollCandidateHandler.
func NewUnenrollCandidateHandler(
	examRepo exam.Repository,
	gradeRepo grade.Repository,
	eventPublisher shared.EventPublisher,
) *UnenrollCandidateHandler {
	return &UnenrollCandidateHandler{
		examRepo:       examRepo,
		gradeRepo:      gradeRepo,
		eventPublisher: eventPublisher,
	}
}

// Handle executes the unenroll candidate command.
func (h *UnenrollCandidateHandler) Handle(ctx context.Context, cmd UnenrollCandidateCommand) (*UnenrollCandidateResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("unenroll_candidate: validation failed: %w", err)
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
		return nil, fmt.Errorf("unenroll_candidate: failed to get exam: %w", err)
	}

	if !ex.Status.AcceptsEnrollment() {
		return nil, shared.WrapError("exam", "Unenroll", shared.ErrStateTransition,
			fmt.Sprintf("cannot withdraw from exam in status %q", ex.Status), nil)
	}

	graded, err := h.gradeRepo.ExistsForCandidate(ctx, examID, studentID)
	if err != nil {
		return nil, fmt.Errorf("unenroll_candidate: failed to check grades: %w", err)
	}
	if graded {
		return nil, shared.NewDomainError("exam", "Unenroll", shared.ErrConflict,
			"candidate already has a grade and cannot be withdrawn")
	}

	if err := ex.RemoveCandidate(studentID); err != nil {
		return nil, err
	}

	if err := h.examRepo.Save(ctx, ex); err != nil {
		return nil, fmt.Errorf("unenroll_candidate: failed to save exam: %w", err)
	}

	event := shared.NewCandidateWithdrawnEvent(string(ex.ID), string(studentID))
	if cmd.CorrelationID != "" {
		event.BaseEvent = event.BaseEvent.WithCorrelationID(cmd.CorrelationID)
	}
	_ = h.eventPublisher.Publish(event)

	return &UnenrollCandidateResult{
		ExamID:      string(ex.ID),
		StudentID:   string(studentID),
		WithdrawnAt: time.Now().UTC(),
	}, nil
}
