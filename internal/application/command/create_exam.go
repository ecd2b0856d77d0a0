package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dojang-hub/dojang-exam-hub/internal/domain/exam"
	"github.com/dojang-hub/dojang-exam-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CREATE EXAM COMMAND
// Schedules a new exam with its grading categories and admission requirements.
// ══════════════════════════════════════════════════════════════════════════════

// CategoryInput is a weighted grading category as submitted by staff.
type CategoryInput struct {
	Name   string
	Weight float64
}

// CreateExamCommand contains the data to schedule an exam.
type CreateExamCommand struct {
	// Name is the human-readable exam name.
	Name string

	// Type is "graduation" or "evaluation".
	Type string

	// TargetBeltRank is the belt awarded on passing (graduation exams).
	TargetBeltRank string

	// MinPassingScore is the passing threshold (0-100).
	MinPassingScore float64

	// Categories are the weighted grading categories. Weights must sum
	// to 100 within tolerance.
	Categories []CategoryInput

	// MinAttendancePercent is the admission attendance threshold.
	MinAttendancePercent float64

	// MinDaysSinceBelt is the admission belt-tenure threshold.
	MinDaysSinceBelt int

	// PaymentMustBeCurrent requires no delinquent payments for admission.
	PaymentMustBeCurrent bool

	// CurrentBeltRequired is the belt a candidate must hold to enroll.
	CurrentBeltRequired string

	// FeeCents is the exam fee in cents.
	FeeCents int64

	// Instructors are the staff members running the exam.
	Instructors []string

	// ScheduledAt is when the exam takes place.
	ScheduledAt time.Time
}

// Validate validates the command.
func (c CreateExamCommand) Validate() error {
	if c.Name == "" {
		return errors.New("create_exam: name is required")
	}
	if c.Type == "" {
		return errors.New("create_exam: type is required")
	}
	if c.ScheduledAt.IsZero() {
		return errors.New("create_exam: scheduled_at is required")
	}
	return nil
}

// CreateExamResult contains the result of scheduling an exam.
type CreateExamResult struct {
	ExamID      string    `json:"exam_id"`
	Name        string    `json:"name"`
	Status      string    `json:"status"`
	ScheduledAt time.Time `json:"scheduled_at"`
}

// CreateExamHandler handles the CreateExamCommand.
type CreateExamHandler struct {
	examRepo       exam.Repository
	eventPublisher shared.EventPublisher
}

// NewCreateExamHandler creates a new CreateExamHandler.
func NewCreateExamHandler(examRepo exam.Repository, eventPublisher shared.EventPublisher) *CreateExamHandler {
	return &CreateExamHandler{
		examRepo:       examRepo,
		eventPublisher: eventPublisher,
	}
}

// Handle executes the create exam command.
func (h *CreateExamHandler) Handle(ctx context.Context, cmd CreateExamCommand) (*CreateExamResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("create_exam: validation failed: %w", err)
	}

	categories := make([]exam.Category, 0, len(cmd.Categories))
	for _, c := range cmd.Categories {
		categories = append(categories, exam.Category{
			Name:   c.Name,
			Weight: shared.Weight(c.Weight),
		})
	}

	instructors := make([]shared.StaffID, 0, len(cmd.Instructors))
	for _, id := range cmd.Instructors {
		instructors = append(instructors, shared.StaffID(id))
	}

	ex, err := exam.NewExam(exam.NewExamParams{
		ID:              shared.ExamID(uuid.NewString()),
		Name:            cmd.Name,
		Type:            exam.Type(cmd.Type),
		TargetBeltRank:  shared.BeltRank(cmd.TargetBeltRank),
		MinPassingScore: shared.Score(cmd.MinPassingScore),
		Categories:      categories,
		Requirements: exam.Requirements{
			MinAttendancePercent: cmd.MinAttendancePercent,
			MinDaysSinceBelt:     cmd.MinDaysSinceBelt,
			PaymentMustBeCurrent: cmd.PaymentMustBeCurrent,
			CurrentBeltRequired:  shared.BeltRank(cmd.CurrentBeltRequired),
			FeeCents:             shared.Money(cmd.FeeCents),
		},
		Instructors: instructors,
		ScheduledAt: cmd.ScheduledAt,
	})
	if err != nil {
		return nil, err
	}

	if err := h.examRepo.Create(ctx, ex); err != nil {
		return nil, fmt.Errorf("create_exam: failed to create exam: %w", err)
	}

	event := shared.NewExamScheduledEvent(string(ex.ID), ex.Name, string(ex.Type), ex.ScheduledAt)
	_ = h.eventPublisher.Publish(event)

	return &CreateExamResult{
		ExamID:      string(ex.ID),
		Name:        ex.Name,
		Status:      string(ex.Status),
		ScheduledAt: ex.ScheduledAt,
	}, nil
}
