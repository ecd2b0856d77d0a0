package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dojang-hub/dojang-exam-hub/internal/domain/exam"
	"github.com/dojang-hub/dojang-exam-hub/internal/domain/grade"
	"github.com/dojang-hub/dojang-exam-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// FINALIZE GRADE COMMAND
// Records category scores for a candidate and computes the weighted final
// score. Re-finalizing an existing grade recomputes it; a reviewed grade is
// immutable.
// ══════════════════════════════════════════════════════════════════════════════

// CategoryScoreInput is a single category score as submitted by an instructor.
type CategoryScoreInput struct {
	Category string
	Score    float64
	Notes    string
}

// FinalizeGradeCommand contains the data to finalize a grade.
type FinalizeGradeCommand struct {
	// ExamID is the exam the grade belongs to.
	ExamID string

	// StudentID is the graded candidate.
	StudentID string

	// Scores are the per-category scores. Categories must match the exam's
	// configured categories; weights are taken from the exam.
	Scores []CategoryScoreInput

	// GradedBy is the instructor submitting the scores.
	GradedBy string

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c FinalizeGradeCommand) Validate() error {
	if c.ExamID == "" {
		return errors.New("finalize_grade: exam_id is required")
	}
	if c.StudentID == "" {
		return errors.New("finalize_grade: student_id is required")
	}
	if len(c.Scores) == 0 {
		return errors.New("finalize_grade: at least one category score is required")
	}
	for _, s := range c.Scores {
		if s.Category == "" {
			return errors.New("finalize_grade: category name is required")
		}
	}
	return nil
}

// FinalizeGradeResult contains the result of finalizing a grade.
type FinalizeGradeResult struct {
	// GradeID is the ID of the grade record.
	GradeID string `json:"grade_id"`

	// ExamID is the exam the grade belongs to.
	ExamID string `json:"exam_id"`

	// StudentID is the graded candidate.
	StudentID string `json:"student_id"`

	// FinalScore is the weighted final score, rounded to two decimals.
	FinalScore float64 `json:"final_score"`

	// Passed indicates the final score met the exam's passing threshold.
	Passed bool `json:"passed"`

	// Recomputed indicates an existing grade was re-finalized.
	Recomputed bool `json:"recomputed"`

	// FinalizedAt is when the grade was finalized.
	FinalizedAt time.Time `json:"finalized_at"`
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// FinalizeGradeHandler handles the FinalizeGradeCommand.
type FinalizeGradeHandler struct {
	examRepo       exam.Repository
	gradeRepo      grade.Repository
	eventPublisher shared.EventPublisher
}

// NewFinalizeGradeHandler creates a new FinalizeGradeHandler.
func NewFinalizeGradeHandler(
	examRepo exam.Repository,
	gradeRepo grade.Repository,
	eventPublisher shared.EventPublisher,
) *FinalizeGradeHandler {
	return &FinalizeGradeHandler{
		examRepo:       examRepo,
		gradeRepo:      gradeRepo,
		eventPublisher: eventPublisher,
	}
}

// Handle executes the finalize grade command.
func (h *FinalizeGradeHandler) Handle(ctx context.Context, cmd FinalizeGradeCommand) (*FinalizeGradeResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("finalize_grade: validation failed: %w", err)
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
		return nil, fmt.Errorf("finalize_grade: failed to get exam: %w", err)
	}

	if !ex.Status.AcceptsGrading() {
		return nil, shared.WrapError("grade", "Finalize", shared.ErrStateTransition,
			fmt.Sprintf("cannot grade exam in status %q", ex.Status), nil)
	}
	if !ex.IsEnrolled(studentID) {
		return nil, shared.ErrNotEnrolled
	}

	scores, err := h.resolveScores(ex, cmd.Scores)
	if err != nil {
		return nil, err
	}

	// Fetch-or-create: re-finalization of a draft or finalized grade
	// recomputes it in place.
	recomputed := true
	gr, err := h.gradeRepo.GetByExamAndStudent(ctx, examID, studentID)
	if err != nil {
		if !shared.IsNotFound(err) {
			return nil, fmt.Errorf("finalize_grade: failed to get grade: %w", err)
		}
		gr, err = grade.NewGrade(uuid.NewString(), examID, studentID)
		if err != nil {
			return nil, err
		}
		recomputed = false
	}

	gr.GradedBy = shared.StaffID(cmd.GradedBy)
	if err := gr.Finalize(scores, ex.MinPassingScore); err != nil {
		return nil, err
	}

	if recomputed {
		if err := h.gradeRepo.Update(ctx, gr); err != nil {
			return nil, fmt.Errorf("finalize_grade: failed to update grade: %w", err)
		}
	} else {
		if err := h.gradeRepo.Create(ctx, gr); err != nil {
			return nil, fmt.Errorf("finalize_grade: failed to create grade: %w", err)
		}
	}

	if err := ex.MarkGraded(studentID, gr.Passed()); err != nil {
		return nil, err
	}
	if err := h.examRepo.Save(ctx, ex); err != nil {
		return nil, fmt.Errorf("finalize_grade: failed to save exam: %w", err)
	}

	event := shared.NewGradeFinalizedEvent(
		gr.ID, string(ex.ID), string(studentID), float64(gr.FinalScore), gr.Passed())
	if cmd.CorrelationID != "" {
		event.BaseEvent = event.BaseEvent.WithCorrelationID(cmd.CorrelationID)
	}
	_ = h.eventPublisher.Publish(event)

	return &FinalizeGradeResult{
		GradeID:     gr.ID,
		ExamID:      string(ex.ID),
		StudentID:   string(studentID),
		FinalScore:  float64(gr.FinalScore),
		Passed:      gr.Passed(),
		Recomputed:  recomputed,
		FinalizedAt: gr.FinalizedAt,
	}, nil
}

// resolveScores pairs submitted scores with the exam's category weights.
// Every configured category must receive exactly one score.
func (h *FinalizeGradeHandler) resolveScores(ex *exam.Exam, inputs []CategoryScoreInput) ([]grade.CategoryScore, error) {
	weights := make(map[string]shared.Weight, len(ex.Categories))
	for _, cat := range ex.Categories {
		weights[cat.Name] = cat.Weight
	}

	seen := make(map[string]bool, len(inputs))
	scores := make([]grade.CategoryScore, 0, len(inputs))
	for _, in := range inputs {
		weight, ok := weights[in.Category]
		if !ok {
			return nil, shared.NewDomainError("grade", "Finalize", shared.ErrInvalidInput,
				fmt.Sprintf("category %q is not part of the exam", in.Category))
		}
		if seen[in.Category] {
			return nil, shared.NewDomainError("grade", "Finalize", shared.ErrInvalidInput,
				fmt.Sprintf("duplicate score for category %q", in.Category))
		}
		seen[in.Category] = true

		scores = append(scores, grade.CategoryScore{
			Category: in.Category,
			Score:    shared.Score(in.Score),
			Weight:   weight,
			Notes:    in.Notes,
		})
	}

	if len(seen) != len(ex.Categories) {
		return nil, shared.NewDomainError("grade", "Finalize", shared.ErrInvalidInput,
			fmt.Sprintf("expected scores for %d categories, got %d", len(ex.Categories), len(seen)))
	}

	return scores, nil
}
