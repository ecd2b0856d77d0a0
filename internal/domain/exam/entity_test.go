package exam

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dojang-hub/dojang-exam-hub/internal/domain/shared"
)

const (
	testExamID    = shared.ExamID("aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa")
	testStudentID = shared.StudentID("bbbbbbbb-bbbb-bbbb-bbbb-bbbbbbbbbbbb")
	otherStudent  = shared.StudentID("cccccccc-cccc-cccc-cccc-cccccccccccc")
)

func validParams() NewExamParams {
	return NewExamParams{
		ID:              testExamID,
		Name:            "Attestation Q3 2026",
		Type:            TypeGraduation,
		TargetBeltRank:  shared.BeltAmarillo,
		MinPassingScore: 70,
		Categories: []Category{
			{Name: "tecnica", Weight: 40},
			{Name: "combate", Weight: 30},
			{Name: "teoria", Weight: 30},
		},
		Requirements: Requirements{
			MinAttendancePercent: 80,
			MinDaysSinceBelt:     90,
			PaymentMustBeCurrent: true,
			CurrentBeltRequired:  shared.BeltBlanco,
			FeeCents:             50000,
		},
		Instructors: []shared.StaffID{"staff:sabonim"},
		ScheduledAt: time.Date(2026, 9, 15, 10, 0, 0, 0, time.UTC),
	}
}

func TestNewExam(t *testing.T) {
	e, err := NewExam(validParams())
	require.NoError(t, err)

	assert.Equal(t, StatusScheduled, e.Status)
	assert.Equal(t, 0, e.Version)
	assert.Empty(t, e.Candidates)
	assert.Equal(t, []shared.StaffID{"staff:sabonim"}, e.DefaultCertifiers())
}

func TestNewExam_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*NewExamParams)
	}{
		{"invalid ID", func(p *NewExamParams) { p.ID = "not-a-uuid" }},
		{"empty name", func(p *NewExamParams) { p.Name = "   " }},
		{"unknown type", func(p *NewExamParams) { p.Type = "midterm" }},
		{"unknown target belt", func(p *NewExamParams) { p.TargetBeltRank = "purpura" }},
		{"passing score above 100", func(p *NewExamParams) { p.MinPassingScore = 101 }},
		{"negative attendance", func(p *NewExamParams) { p.Requirements.MinAttendancePercent = -1 }},
		{"negative tenure", func(p *NewExamParams) { p.Requirements.MinDaysSinceBelt = -1 }},
		{"negative fee", func(p *NewExamParams) { p.Requirements.FeeCents = -100 }},
		{"graduation without current belt", func(p *NewExamParams) { p.Requirements.CurrentBeltRequired = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := validParams()
			tt.mutate(&params)
			_, err := NewExam(params)
			assert.Error(t, err)
		})
	}
}

func TestNewExam_EvaluationWithoutCurrentBelt(t *testing.T) {
	params := validParams()
	params.Type = TypeEvaluation
	params.Requirements.CurrentBeltRequired = ""

	_, err := NewExam(params)
	assert.NoError(t, err)
}

func TestValidateCategories(t *testing.T) {
	err := ValidateCategories([]Category{
		{Name: "tecnica", Weight: 60},
		{Name: "combate", Weight: 40},
	})
	assert.NoError(t, err)

	// Drift within the tolerance is accepted.
	err = ValidateCategories([]Category{
		{Name: "tecnica", Weight: 60.005},
		{Name: "combate", Weight: 40},
	})
	assert.NoError(t, err)

	err = ValidateCategories([]Category{
		{Name: "tecnica", Weight: 60},
		{Name: "combate", Weight: 30},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrInvalidCategories)

	// Empty list is allowed; the sum invariant binds non-empty lists only.
	assert.NoError(t, ValidateCategories(nil))
}

func TestExam_Enroll(t *testing.T) {
	e, err := NewExam(validParams())
	require.NoError(t, err)

	candidate, err := e.Enroll(EnrollParams{
		CandidateID: "cand-1",
		StudentID:   testStudentID,
	})
	require.NoError(t, err)

	assert.Equal(t, shared.Money(50000), candidate.Payment.FeeCents)
	assert.False(t, candidate.Payment.Paid)
	assert.False(t, candidate.PaymentSettled())
	assert.True(t, e.IsEnrolled(testStudentID))
}

func TestExam_Enroll_Duplicate(t *testing.T) {
	e, err := NewExam(validParams())
	require.NoError(t, err)

	_, err = e.Enroll(EnrollParams{CandidateID: "cand-1", StudentID: testStudentID})
	require.NoError(t, err)

	_, err = e.Enroll(EnrollParams{CandidateID: "cand-2", StudentID: testStudentID})
	assert.ErrorIs(t, err, shared.ErrAlreadyEnrolled)
}

func TestExam_Enroll_ClosedExam(t *testing.T) {
	e, err := NewExam(validParams())
	require.NoError(t, err)
	require.NoError(t, e.Start())

	_, err = e.Enroll(EnrollParams{CandidateID: "cand-1", StudentID: testStudentID})
	assert.ErrorIs(t, err, shared.ErrExamNotOpen)
}

func TestExam_Enroll_WaiverRequiresStaff(t *testing.T) {
	e, err := NewExam(validParams())
	require.NoError(t, err)

	_, err = e.Enroll(EnrollParams{
		CandidateID:  "cand-1",
		StudentID:    testStudentID,
		WaivePayment: true,
	})
	assert.ErrorIs(t, err, shared.ErrWaiverUnauthorized)

	candidate, err := e.Enroll(EnrollParams{
		CandidateID:  "cand-1",
		StudentID:    testStudentID,
		WaivePayment: true,
		WaivedBy:     "staff:director",
		WaiverReason: "scholarship",
	})
	require.NoError(t, err)
	assert.True(t, candidate.PaymentSettled())
	assert.False(t, candidate.Payment.Paid)
}

func TestExam_Enroll_FullDiscountSettlesImmediately(t *testing.T) {
	e, err := NewExam(validParams())
	require.NoError(t, err)

	candidate, err := e.Enroll(EnrollParams{
		CandidateID:     "cand-1",
		StudentID:       testStudentID,
		DiscountPercent: 100,
	})
	require.NoError(t, err)
	assert.True(t, candidate.Payment.Paid)
	assert.True(t, candidate.PaymentSettled())
}

func TestExam_Enroll_ZeroFeeSettlesImmediately(t *testing.T) {
	params := validParams()
	params.Requirements.FeeCents = 0
	e, err := NewExam(params)
	require.NoError(t, err)

	candidate, err := e.Enroll(EnrollParams{CandidateID: "cand-1", StudentID: testStudentID})
	require.NoError(t, err)
	assert.True(t, candidate.Payment.Paid)
}

func TestExam_Enroll_InvalidDiscount(t *testing.T) {
	e, err := NewExam(validParams())
	require.NoError(t, err)

	_, err = e.Enroll(EnrollParams{
		CandidateID:     "cand-1",
		StudentID:       testStudentID,
		DiscountPercent: 101,
	})
	assert.ErrorIs(t, err, shared.ErrValueOutOfRange)
}

func TestExam_RecordPayment(t *testing.T) {
	e, err := NewExam(validParams())
	require.NoError(t, err)
	_, err = e.Enroll(EnrollParams{
		CandidateID:     "cand-1",
		StudentID:       testStudentID,
		DiscountPercent: 20, // due: 40000
	})
	require.NoError(t, err)

	paidAt := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

	candidate, err := e.RecordPayment(testStudentID, 25000, "rcpt-001", paidAt)
	require.NoError(t, err)
	assert.False(t, candidate.Payment.Paid)
	assert.Equal(t, shared.Money(15000), candidate.Payment.Outstanding())

	candidate, err = e.RecordPayment(testStudentID, 15000, "rcpt-002", paidAt.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, candidate.Payment.Paid)
	assert.Equal(t, shared.Money(0), candidate.Payment.Outstanding())
	assert.Equal(t, "rcpt-002", candidate.Payment.LastReference)
}

func TestExam_RecordPayment_Validation(t *testing.T) {
	e, err := NewExam(validParams())
	require.NoError(t, err)
	_, err = e.Enroll(EnrollParams{CandidateID: "cand-1", StudentID: testStudentID})
	require.NoError(t, err)

	_, err = e.RecordPayment(testStudentID, 0, "rcpt", time.Now())
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	_, err = e.RecordPayment(otherStudent, 1000, "rcpt", time.Now())
	assert.ErrorIs(t, err, shared.ErrCandidateNotFound)
}

func TestExam_RemoveCandidate(t *testing.T) {
	e, err := NewExam(validParams())
	require.NoError(t, err)
	_, err = e.Enroll(EnrollParams{CandidateID: "cand-1", StudentID: testStudentID})
	require.NoError(t, err)

	require.NoError(t, e.RemoveCandidate(testStudentID))
	assert.False(t, e.IsEnrolled(testStudentID))

	err = e.RemoveCandidate(testStudentID)
	assert.ErrorIs(t, err, shared.ErrCandidateNotFound)
}

func TestExam_MarkGraded(t *testing.T) {
	e, err := NewExam(validParams())
	require.NoError(t, err)
	_, err = e.Enroll(EnrollParams{CandidateID: "cand-1", StudentID: testStudentID})
	require.NoError(t, err)

	require.NoError(t, e.MarkGraded(testStudentID, true))

	candidate, err := e.Candidate(testStudentID)
	require.NoError(t, err)
	assert.True(t, candidate.Graded)
	assert.True(t, candidate.Passed)
}

func TestExam_Lifecycle(t *testing.T) {
	e, err := NewExam(validParams())
	require.NoError(t, err)

	assert.True(t, e.Status.AcceptsEnrollment())
	assert.False(t, e.Status.AcceptsGrading())

	require.NoError(t, e.Start())
	assert.Equal(t, StatusInProgress, e.Status)
	assert.True(t, e.Status.AcceptsGrading())

	require.NoError(t, e.Complete())
	assert.Equal(t, StatusCompleted, e.Status)
	assert.True(t, e.Status.AcceptsGrading())
}

func TestExam_Lifecycle_InvalidTransitions(t *testing.T) {
	e, err := NewExam(validParams())
	require.NoError(t, err)

	// scheduled → completed is not allowed.
	err = e.Complete()
	assert.ErrorIs(t, err, shared.ErrStateTransition)

	require.NoError(t, e.Start())
	err = e.Start()
	assert.ErrorIs(t, err, shared.ErrStateTransition)

	require.NoError(t, e.Complete())
	err = e.Cancel()
	assert.ErrorIs(t, err, shared.ErrStateTransition)
}

func TestExam_Cancel(t *testing.T) {
	e, err := NewExam(validParams())
	require.NoError(t, err)
	_, err = e.Enroll(EnrollParams{CandidateID: "cand-1", StudentID: testStudentID})
	require.NoError(t, err)

	require.NoError(t, e.Cancel())
	assert.Equal(t, StatusCancelled, e.Status)
	// Soft deactivation keeps the enrollment records.
	assert.Len(t, e.Candidates, 1)

	err = e.Cancel()
	assert.ErrorIs(t, err, shared.ErrStateTransition)
}

func TestExam_SortedCandidates(t *testing.T) {
	e, err := NewExam(validParams())
	require.NoError(t, err)

	later := time.Date(2026, 9, 2, 10, 0, 0, 0, time.UTC)
	earlier := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

	_, err = e.Enroll(EnrollParams{CandidateID: "cand-1", StudentID: testStudentID, EnrolledAt: later})
	require.NoError(t, err)
	_, err = e.Enroll(EnrollParams{CandidateID: "cand-2", StudentID: otherStudent, EnrolledAt: earlier})
	require.NoError(t, err)

	sorted := e.SortedCandidates()
	require.Len(t, sorted, 2)
	assert.Equal(t, otherStudent, sorted[0].StudentID)
	assert.Equal(t, testStudentID, sorted[1].StudentID)

	// The aggregate's own list keeps enrollment order.
	assert.Equal(t, testStudentID, e.Candidates[0].StudentID)
}
