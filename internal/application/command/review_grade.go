package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dojang-hub/dojang-exam-hub/internal/domain/grade"
	"github.com/dojang-hub/dojang-exam-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REVIEW GRADE COMMAND
// Marks a finalized grade as reviewed, locking it against recomputation.
// ══════════════════════════════════════════════════════════════════════════════

// ReviewGradeCommand contains the data to review a grade.
type ReviewGradeCommand struct {
	// GradeID is the grade to review.
	GradeID string

	// ReviewedBy is the staff member signing off.
	ReviewedBy string
}

// Validate validates the command.
func (c ReviewGradeCommand) Validate() error {
	if c.GradeID == "" {
		return errors.New("review_grade: grade_id is required")
	}
	if c.ReviewedBy == "" {
		return errors.New("review_grade: reviewed_by is required")
	}
	return nil
}

// ReviewGradeResult contains the result of the review.
type ReviewGradeResult struct {
	GradeID    string    `json:"grade_id"`
	ReviewedBy string    `json:"reviewed_by"`
	ReviewedAt time.Time `json:"reviewed_at"`
}

// ReviewGradeHandler handles the ReviewGradeCommand.
type ReviewGradeHandler struct {
	gradeRepo grade.Repository
}

// NewReviewGradeHandler creates a new ReviewGradeHandler.
func NewReviewGradeHandler(gradeRepo grade.Repository) *ReviewGradeHandler {
	return &ReviewGradeHandler{gradeRepo: gradeRepo}
}

// Handle executes the review grade command.
func (h *ReviewGradeHandler) Handle(ctx context.Context, cmd ReviewGradeCommand) (*ReviewGradeResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("review_grade: validation failed: %w", err)
	}

	gr, err := h.gradeRepo.GetByID(ctx, cmd.GradeID)
	if err != nil {
		return nil, fmt.Errorf("review_grade: failed to get grade: %w", err)
	}

	if err := gr.Review(shared.StaffID(cmd.ReviewedBy)); err != nil {
		return nil, err
	}

	if err := h.gradeRepo.Update(ctx, gr); err != nil {
		return nil, fmt.Errorf("review_grade: failed to save grade: %w", err)
	}

	return &ReviewGradeResult{
		GradeID:    gr.ID,
		ReviewedBy: cmd.ReviewedBy,
		ReviewedAt: gr.UpdatedAt,
	}, nil
}
