// Package saga contains complex business processes that orchestrate
// multiple domain operations in a coordinated manner.
package saga

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dojang-hub/dojang-exam-hub/internal/domain/exam"
	"github.com/dojang-hub/dojang-exam-hub/internal/domain/grade"
	"github.com/dojang-hub/dojang-exam-hub/internal/domain/graduation"
	"github.com/dojang-hub/dojang-exam-hub/internal/domain/shared"
	"github.com/dojang-hub/dojang-exam-hub/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// GRADUATION FLOW SAGA
// Complex business process: batch graduation of a completed exam
// Flow: Load Exam → Resolve Requests (or full roster) → Per Candidate:
//
//	Verify Passing Grade → Create Graduation → Approve + Belt Cascade
//
// Each candidate runs in its own transaction. A rejection or failure on one
// candidate becomes a failed entry and processing continues with the rest;
// nothing from a failed candidate is left half-applied.
// ══════════════════════════════════════════════════════════════════════════════

// UnitOfWork runs a function inside a storage transaction. Repository calls
// made with the callback's context join that transaction.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// NopUnitOfWork runs the callback without a transaction. Used in tests and
// for stores that do not support transactions.
type NopUnitOfWork struct{}

// WithinTx implements UnitOfWork.
func (NopUnitOfWork) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// BatchRequest scopes the batch to one candidate. GradeID is optional; when
// set, the grade must belong to the (exam, student) pair.
type BatchRequest struct {
	StudentID string
	GradeID   string
}

// BatchInput contains the data to process a graduation batch.
type BatchInput struct {
	// ExamID - the completed exam to process.
	ExamID string

	// Requests - the candidates to process. An empty list means the full
	// roster of the exam.
	Requests []BatchRequest

	// ApprovedBy - staff member driving the batch. Required unless
	// LeavePending is set.
	ApprovedBy string

	// LeavePending - create graduations without approving them, deferring
	// the belt cascade to a manual ApproveGraduation call. By default each
	// new graduation is approved immediately.
	LeavePending bool

	// Date - the graduation date recorded on each record (defaults to the
	// exam's scheduled date).
	Date time.Time

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate checks if the input is valid.
func (i BatchInput) Validate() error {
	if i.ExamID == "" {
		return errors.New("graduation_flow: exam ID is required")
	}
	if !i.LeavePending && i.ApprovedBy == "" {
		return errors.New("graduation_flow: approved_by is required unless graduations are left pending")
	}
	for _, r := range i.Requests {
		if r.StudentID == "" {
			return errors.New("graduation_flow: every request needs a student ID")
		}
	}
	return nil
}

// CandidateOutcome describes one successfully processed candidate.
type CandidateOutcome struct {
	// StudentID - the processed candidate.
	StudentID string

	// GraduationID - the created (or pre-existing) graduation record.
	GraduationID string

	// State - the graduation state after processing.
	State graduation.State

	// PreviousBelt - the candidate's belt before the batch.
	PreviousBelt string

	// CascadeApplied - the belt cascade ran for this candidate.
	CascadeApplied bool
}

// CandidateFailure describes one candidate whose processing failed.
// errors.Is on Err distinguishes the rejection kinds: ErrGradeNotApproved
// (no passing grade), ErrAlreadyGraduated, ErrNotEnrolled.
type CandidateFailure struct {
	// StudentID - the failed candidate.
	StudentID string

	// Reason - human-readable failure description.
	Reason string

	// Err - the underlying error.
	Err error
}

// BatchResult contains the result of a graduation batch.
type BatchResult struct {
	// ExamID - the processed exam.
	ExamID string

	// Succeeded - candidates processed without error.
	Succeeded []CandidateOutcome

	// Failed - candidates rejected or errored. A candidate without a
	// passing grade lands here with ErrGradeNotApproved.
	Failed []CandidateFailure

	// ProcessedAt - when the batch completed.
	ProcessedAt time.Time
}

// FullyProcessed returns true if no candidate failed.
func (r *BatchResult) FullyProcessed() bool {
	return len(r.Failed) == 0
}

// ══════════════════════════════════════════════════════════════════════════════
// PROCESSOR
// ══════════════════════════════════════════════════════════════════════════════

// GraduationProcessor drives the graduation flow for exam batches and the
// reconciliation of stuck graduations.
type GraduationProcessor struct {
	examRepo       exam.Repository
	gradeRepo      grade.Repository
	graduationRepo graduation.Repository
	studentRepo    student.Repository
	uow            UnitOfWork
	eventPublisher shared.EventPublisher
}

// NewGraduationProcessor creates a new GraduationProcessor.
func NewGraduationProcessor(
	examRepo exam.Repository,
	gradeRepo grade.Repository,
	graduationRepo graduation.Repository,
	studentRepo student.Repository,
	uow UnitOfWork,
	eventPublisher shared.EventPublisher,
) *GraduationProcessor {
	if uow == nil {
		uow = NopUnitOfWork{}
	}
	return &GraduationProcessor{
		examRepo:       examRepo,
		gradeRepo:      gradeRepo,
		graduationRepo: graduationRepo,
		studentRepo:    studentRepo,
		uow:            uow,
		eventPublisher: eventPublisher,
	}
}

// ProcessBatch creates and approves graduations for the requested candidates
// of an exam (the full roster when no requests are given).
//
// Candidates are processed sequentially, each in its own transaction. The
// returned result covers every requested candidate as a succeeded or failed
// entry; an error is returned only when the batch could not start at all.
func (p *GraduationProcessor) ProcessBatch(ctx context.Context, input BatchInput) (*BatchResult, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}

	examID, err := shared.NewExamID(input.ExamID)
	if err != nil {
		return nil, err
	}

	ex, err := p.examRepo.GetByID(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("graduation_flow: failed to get exam: %w", err)
	}

	if ex.Type != exam.TypeGraduation {
		return nil, shared.NewDomainError("graduation", "ProcessBatch", shared.ErrInvalidInput,
			fmt.Sprintf("exam %q is not a graduation exam", ex.ID))
	}
	if ex.Status != exam.StatusCompleted {
		return nil, shared.WrapError("graduation", "ProcessBatch", shared.ErrStateTransition,
			fmt.Sprintf("cannot process batch for exam in status %q", ex.Status), nil)
	}

	date := input.Date
	if date.IsZero() {
		date = ex.ScheduledAt
	}

	requests := input.Requests
	if len(requests) == 0 {
		for _, candidate := range ex.SortedCandidates() {
			requests = append(requests, BatchRequest{StudentID: string(candidate.StudentID)})
		}
	}

	result := &BatchResult{ExamID: string(ex.ID)}

	for _, req := range requests {
		studentID := shared.StudentID(req.StudentID)
		outcome, err := p.processCandidate(ctx, ex, studentID, req.GradeID, input, date)
		if err != nil {
			result.Failed = append(result.Failed, CandidateFailure{
				StudentID: req.StudentID,
				Reason:    err.Error(),
				Err:       err,
			})
			continue
		}
		result.Succeeded = append(result.Succeeded, *outcome)
	}

	result.ProcessedAt = time.Now().UTC()

	event := shared.NewBatchCompletedEvent(string(ex.ID), len(result.Succeeded), len(result.Failed))
	if input.CorrelationID != "" {
		event.BaseEvent = event.BaseEvent.WithCorrelationID(input.CorrelationID)
	}
	_ = p.eventPublisher.Publish(event)

	return result, nil
}

// processCandidate handles a single candidate inside one transaction.
func (p *GraduationProcessor) processCandidate(
	ctx context.Context,
	ex *exam.Exam,
	studentID shared.StudentID,
	gradeID string,
	input BatchInput,
	date time.Time,
) (*CandidateOutcome, error) {
	if !ex.IsEnrolled(studentID) {
		return nil, shared.ErrNotEnrolled
	}

	gr, err := p.loadPassingGrade(ctx, ex, studentID, gradeID)
	if err != nil {
		return nil, err
	}

	if existing, err := p.graduationRepo.GetByExamAndStudent(ctx, ex.ID, studentID); err == nil {
		return nil, fmt.Errorf("%w: graduation %s", shared.ErrAlreadyGraduated, existing.ID)
	} else if !shared.IsNotFound(err) {
		return nil, fmt.Errorf("failed to check existing graduation: %w", err)
	}

	var outcome *CandidateOutcome
	err = p.uow.WithinTx(ctx, func(txCtx context.Context) error {
		stud, err := p.studentRepo.GetByID(txCtx, studentID)
		if err != nil {
			return fmt.Errorf("failed to get student: %w", err)
		}

		previousBelt := stud.Belt.Level

		grad, err := graduation.NewGraduation(graduation.NewGraduationParams{
			ID:           uuid.NewString(),
			ExamID:       ex.ID,
			GradeID:      gr.ID,
			StudentID:    studentID,
			PreviousBelt: previousBelt,
			NewBelt:      ex.TargetBeltRank,
			Date:         date,
			Certifiers:   ex.DefaultCertifiers(),
		})
		if err != nil {
			return err
		}

		if err := p.graduationRepo.Create(txCtx, grad); err != nil {
			return fmt.Errorf("failed to create graduation: %w", err)
		}

		cascadeApplied := false
		if !input.LeavePending {
			cascadeApplied, err = p.approveWithCascade(txCtx, grad, stud, shared.StaffID(input.ApprovedBy))
			if err != nil {
				return err
			}
		}

		outcome = &CandidateOutcome{
			StudentID:      string(studentID),
			GraduationID:   grad.ID,
			State:          grad.State,
			PreviousBelt:   string(previousBelt),
			CascadeApplied: cascadeApplied,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	p.publishCandidateEvents(ex, gr, outcome, input.CorrelationID)

	return outcome, nil
}

// loadPassingGrade resolves the candidate's grade, either by an explicit grade
// ID or by the (exam, student) pair. A missing, mismatched, draft or
// non-passing grade is rejected with ErrGradeNotApproved.
func (p *GraduationProcessor) loadPassingGrade(
	ctx context.Context,
	ex *exam.Exam,
	studentID shared.StudentID,
	gradeID string,
) (*grade.Grade, error) {
	var (
		gr  *grade.Grade
		err error
	)
	if gradeID != "" {
		gr, err = p.gradeRepo.GetByID(ctx, gradeID)
	} else {
		gr, err = p.gradeRepo.GetByExamAndStudent(ctx, ex.ID, studentID)
	}
	if err != nil {
		if shared.IsNotFound(err) {
			return nil, shared.ErrGradeNotApproved
		}
		return nil, fmt.Errorf("failed to get grade: %w", err)
	}

	if gr.ExamID != ex.ID || gr.StudentID != studentID {
		return nil, fmt.Errorf("%w: grade %s does not belong to this candidate", shared.ErrGradeNotApproved, gr.ID)
	}
	if gr.State == grade.StateDraft || !gr.Passed() {
		return nil, shared.ErrGradeNotApproved
	}
	return gr, nil
}

// approveWithCascade performs the pending→approved transition and applies the
// belt cascade inside the caller's transaction.
func (p *GraduationProcessor) approveWithCascade(
	ctx context.Context,
	grad *graduation.Graduation,
	stud *student.Student,
	approvedBy shared.StaffID,
) (bool, error) {
	cascadeNeeded, err := grad.Approve(approvedBy, time.Now().UTC())
	if err != nil {
		return false, err
	}

	if cascadeNeeded {
		if err := stud.PromoteBelt(grad.NewBelt, grad.Date, grad.FirstCertifier()); err != nil {
			return false, err
		}
		stud.RecordGraduationAttempt(true)
		if err := p.studentRepo.Update(ctx, stud); err != nil {
			return false, fmt.Errorf("failed to update student: %w", err)
		}
		grad.MarkStudentUpdated(time.Now().UTC())
	}

	if err := p.graduationRepo.Update(ctx, grad); err != nil {
		return false, fmt.Errorf("failed to save graduation: %w", err)
	}

	return cascadeNeeded, nil
}

// publishCandidateEvents emits the events for one processed candidate.
// Publication happens after the transaction commits.
func (p *GraduationProcessor) publishCandidateEvents(
	ex *exam.Exam,
	gr *grade.Grade,
	outcome *CandidateOutcome,
	correlationID string,
) {
	created := shared.NewGraduationCreatedEvent(
		outcome.GraduationID, string(ex.ID), gr.ID, outcome.StudentID, string(ex.TargetBeltRank))
	if correlationID != "" {
		created.BaseEvent = created.BaseEvent.WithCorrelationID(correlationID)
	}
	_ = p.eventPublisher.Publish(created)

	if outcome.CascadeApplied {
		var certifier string
		if len(ex.DefaultCertifiers()) > 0 {
			certifier = string(ex.DefaultCertifiers()[0])
		}
		promoted := shared.NewBeltPromotedEvent(
			outcome.GraduationID, string(ex.ID), outcome.StudentID,
			outcome.PreviousBelt, string(ex.TargetBeltRank), certifier)
		if correlationID != "" {
			promoted.BaseEvent = promoted.BaseEvent.WithCorrelationID(correlationID)
		}
		_ = p.eventPublisher.Publish(promoted)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// RECONCILIATION
// ══════════════════════════════════════════════════════════════════════════════

// ReconcileResult contains the result of a reconciliation run.
type ReconcileResult struct {
	// Examined - graduations inspected this run.
	Examined int

	// Applied - graduations whose cascade was re-driven.
	Applied int

	// Failed - graduations that errored again and stay pending.
	Failed []CandidateFailure

	// RanAt - when the run happened.
	RanAt time.Time
}

// ReconcilePending re-drives pending graduations whose belt cascade never ran,
// typically after a crash between graduation creation and approval. The
// approve transition is idempotent, so re-driving an already-cascaded record
// is harmless.
func (p *GraduationProcessor) ReconcilePending(ctx context.Context, approvedBy shared.StaffID, limit int) (*ReconcileResult, error) {
	if limit <= 0 {
		limit = 50
	}

	stuck, err := p.graduationRepo.FindUnapplied(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("graduation_flow: failed to find unapplied graduations: %w", err)
	}

	result := &ReconcileResult{Examined: len(stuck)}

	for _, grad := range stuck {
		grad := grad
		err := p.uow.WithinTx(ctx, func(txCtx context.Context) error {
			stud, err := p.studentRepo.GetByID(txCtx, grad.StudentID)
			if err != nil {
				return fmt.Errorf("failed to get student: %w", err)
			}
			_, err = p.approveWithCascade(txCtx, grad, stud, approvedBy)
			return err
		})
		if err != nil {
			result.Failed = append(result.Failed, CandidateFailure{
				StudentID: string(grad.StudentID),
				Reason:    err.Error(),
				Err:       err,
			})
			continue
		}

		result.Applied++
		_ = p.eventPublisher.Publish(
			shared.NewReconciliationAppliedEvent(grad.ID, string(grad.StudentID)))
	}

	result.RanAt = time.Now().UTC()
	return result, nil
}
