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
// MANAGE EXAM COMMAND
// Drives the exam lifecycle: scheduled → in_progress → completed, with a
// cancel branch from any non-terminal status.
// ══════════════════════════════════════════════════════════════════════════════

// ExamAction defines a lifecycle transition request.
type ExamAction string

const (
	// ExamActionStart - begin a scheduled exam.
	ExamActionStart ExamAction = "start"

	// ExamActionComplete - close an in-progress exam for grading review.
	ExamActionComplete ExamAction = "complete"

	// ExamActionCancel - cancel an exam (soft, records are kept).
	ExamActionCancel ExamAction = "cancel"
)

// ManageExamCommand contains the data for an exam lifecycle transition.
type ManageExamCommand struct {
	// ExamID is the exam to transition.
	ExamID string

	// Action is the requested transition.
	Action ExamAction

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c ManageExamCommand) Validate() error {
	if c.ExamID == "" {
		return errors.New("manage_exam: exam_id is required")
	}

	switch c.Action {
	case ExamActionStart, ExamActionComplete, ExamActionCancel:
	default:
		return fmt.Errorf("manage_exam: unknown action: %s", c.Action)
	}

	return nil
}

// ManageExamResult contains the result of the transition.
type ManageExamResult struct {
	ExamID    string    `json:"exam_id"`
	OldStatus string    `json:"old_status"`
	NewStatus string    `json:"new_status"`
	ChangedAt time.Time `json:"changed_at"`
}

// ManageExamHandler handles the ManageExamCommand.
type ManageExamHandler struct {
	examRepo       exam.Repository
	eventPublisher shared.EventPublisher
}

// NewManageExamHandler creates a new ManageExamHandler.
func NewManageExamHandler(examRepo exam.Repository, eventPublisher shared.EventPublisher) *ManageExamHandler {
	return &ManageExamHandler{
		examRepo:       examRepo,
		eventPublisher: eventPublisher,
	}
}

// Handle executes the manage exam command.
func (h *ManageExamHandler) Handle(ctx context.Context, cmd ManageExamCommand) (*ManageExamResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("manage_exam: validation failed: %w", err)
	}

	examID, err := shared.NewExamID(cmd.ExamID)
	if err != nil {
		return nil, err
	}

	ex, err := h.examRepo.GetByID(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("manage_exam: failed to get exam: %w", err)
	}

	oldStatus := ex.Status

	switch cmd.Action {
	case ExamActionStart:
		err = ex.Start()
	case ExamActionComplete:
		err = ex.Complete()
	case ExamActionCancel:
		err = ex.Cancel()
	}
	if err != nil {
		return nil, err
	}

	if err := h.examRepo.Save(ctx, ex); err != nil {
		return nil, fmt.Errorf("manage_exam: failed to save exam: %w", err)
	}

	event := shared.NewExamStatusChangedEvent(string(ex.ID), string(oldStatus), string(ex.Status))
	if cmd.CorrelationID != "" {
		event.BaseEvent = event.BaseEvent.WithCorrelationID(cmd.CorrelationID)
	}
	_ = h.eventPublisher.Publish(event)

	return &ManageExamResult{
		ExamID:    string(ex.ID),
		OldStatus: string(oldStatus),
		NewStatus: string(ex.Status),
		ChangedAt: ex.UpdatedAt,
	}, nil
}
