package command

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dojang-hub/dojang-exam-hub/internal/domain/graduation"
	"github.com/dojang-hub/dojang-exam-hub/internal/domain/shared"
	"github.com/dojang-hub/dojang-exam-hub/internal/domain/student"
)

// seedGraduation stores a pending graduation for a stored blanco-belt student.
func seedGraduation(t *testing.T, gradRepo *memGraduationRepo, studentRepo *memStudentRepo) (*graduation.Graduation, *student.Student) {
	t.Helper()
	stud := makeStudent(t, studentRepo)

	grad, err := graduation.NewGraduation(graduation.NewGraduationParams{
		ID:           uuid.NewString(),
		ExamID:       shared.ExamID(uuid.NewString()),
		GradeID:      uuid.NewString(),
		StudentID:    stud.ID,
		PreviousBelt: shared.BeltBlanco,
		NewBelt:      shared.BeltAmarillo,
		Date:         time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC),
		Certifiers:   []shared.StaffID{"staff:sabonim"},
	})
	require.NoError(t, err)
	require.NoError(t, gradRepo.Create(context.Background(), grad))
	return grad, stud
}

func TestApproveGraduationHandler(t *testing.T) {
	gradRepo := newMemGraduationRepo()
	studentRepo := newMemStudentRepo()
	publisher := &recordingPublisher{}
	grad, stud := seedGraduation(t, gradRepo, studentRepo)

	handler := NewApproveGraduationHandler(gradRepo, studentRepo, publisher)

	result, err := handler.Handle(context.Background(), ApproveGraduationCommand{
		GraduationID: grad.ID,
		ApprovedBy:   "staff:director",
	})
	require.NoError(t, err)

	assert.True(t, result.CascadeApplied)
	assert.Equal(t, string(shared.BeltBlanco), result.PreviousBelt)
	assert.Equal(t, string(shared.BeltAmarillo), result.NewBelt)

	promoted, err := studentRepo.GetByID(context.Background(), stud.ID)
	require.NoError(t, err)
	assert.Equal(t, shared.BeltAmarillo, promoted.Belt.Level)
	assert.Equal(t, shared.StaffID("staff:sabonim"), promoted.Belt.CertifiedBy)
	assert.Equal(t, 1, promoted.GraduationTestsPassed)

	saved, err := gradRepo.GetByID(context.Background(), grad.ID)
	require.NoError(t, err)
	assert.Equal(t, graduation.StateApproved, saved.State)
	assert.True(t, saved.StudentUpdated)

	assert.Contains(t, publisher.types(), shared.EventBeltPromoted)
}

func TestApproveGraduationHandler_Idempotent(t *testing.T) {
	gradRepo := newMemGraduationRepo()
	studentRepo := newMemStudentRepo()
	publisher := &recordingPublisher{}
	grad, stud := seedGraduation(t, gradRepo, studentRepo)

	handler := NewApproveGraduationHandler(gradRepo, studentRepo, publisher)
	cmd := ApproveGraduationCommand{GraduationID: grad.ID, ApprovedBy: "staff:director"}

	first, err := handler.Handle(context.Background(), cmd)
	require.NoError(t, err)
	assert.True(t, first.CascadeApplied)

	second, err := handler.Handle(context.Background(), cmd)
	require.NoError(t, err)
	assert.False(t, second.CascadeApplied)

	// The attempt counters must not double-count on retry.
	promoted, err := studentRepo.GetByID(context.Background(), stud.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, promoted.GraduationTestsTaken)
	assert.Len(t, publisher.types(), 1)
}

func TestApproveGraduationHandler_StudentUpdateFailureKeepsPending(t *testing.T) {
	gradRepo := newMemGraduationRepo()
	studentRepo := newMemStudentRepo()
	grad, _ := seedGraduation(t, gradRepo, studentRepo)

	// Drop the student: the cascade fails before anything is saved.
	studentRepo.mu.Lock()
	studentRepo.students = map[shared.StudentID]*student.Student{}
	studentRepo.mu.Unlock()

	handler := NewApproveGraduationHandler(gradRepo, studentRepo, &recordingPublisher{})

	_, err := handler.Handle(context.Background(), ApproveGraduationCommand{
		GraduationID: grad.ID,
		ApprovedBy:   "staff:director",
	})
	require.Error(t, err)

	// Reconciliation picks the record up later.
	saved, err := gradRepo.GetByID(context.Background(), grad.ID)
	require.NoError(t, err)
	assert.Equal(t, graduation.StatePending, saved.State)
	assert.False(t, saved.StudentUpdated)
}

func TestCertifyGraduationHandler(t *testing.T) {
	gradRepo := newMemGraduationRepo()
	studentRepo := newMemStudentRepo()
	publisher := &recordingPublisher{}
	grad, _ := seedGraduation(t, gradRepo, studentRepo)

	approve := NewApproveGraduationHandler(gradRepo, studentRepo, publisher)
	_, err := approve.Handle(context.Background(), ApproveGraduationCommand{
		GraduationID: grad.ID,
		ApprovedBy:   "staff:director",
	})
	require.NoError(t, err)

	handler := NewCertifyGraduationHandler(gradRepo, publisher)
	issuedAt := time.Date(2026, 9, 16, 0, 0, 0, 0, time.UTC)

	result, err := handler.Handle(context.Background(), CertifyGraduationCommand{
		GraduationID: grad.ID,
		FileRef:      "certificates/grad-1.pdf",
		FileType:     "pdf",
		IssuedAt:     issuedAt,
	})
	require.NoError(t, err)

	// Generated number: year+month prefix with a random suffix.
	assert.Regexp(t, `^202609-[0-9A-F]{8}$`, result.CertificateNumber)
	assert.Equal(t, issuedAt, result.IssuedAt)

	saved, err := gradRepo.GetByID(context.Background(), grad.ID)
	require.NoError(t, err)
	assert.Equal(t, graduation.StateCertified, saved.State)
	require.NotNil(t, saved.Certificate)
	assert.Equal(t, result.CertificateNumber, saved.Certificate.Number)

	assert.Contains(t, publisher.types(), shared.EventGraduationCertified)
}

func TestCertifyGraduationHandler_ExplicitNumberConflict(t *testing.T) {
	gradRepo := newMemGraduationRepo()
	studentRepo := newMemStudentRepo()
	publisher := &recordingPublisher{}

	certify := NewCertifyGraduationHandler(gradRepo, publisher)
	approve := NewApproveGraduationHandler(gradRepo, studentRepo, publisher)

	first, _ := seedGraduation(t, gradRepo, studentRepo)
	_, err := approve.Handle(context.Background(), ApproveGraduationCommand{GraduationID: first.ID, ApprovedBy: "staff:director"})
	require.NoError(t, err)
	_, err = certify.Handle(context.Background(), CertifyGraduationCommand{
		GraduationID:      first.ID,
		CertificateNumber: "202609-CUSTOM1",
		FileRef:           "certificates/first.pdf",
		FileType:          "pdf",
	})
	require.NoError(t, err)

	second, _ := seedGraduation(t, gradRepo, studentRepo)
	_, err = approve.Handle(context.Background(), ApproveGraduationCommand{GraduationID: second.ID, ApprovedBy: "staff:director"})
	require.NoError(t, err)
	_, err = certify.Handle(context.Background(), CertifyGraduationCommand{
		GraduationID:      second.ID,
		CertificateNumber: "202609-CUSTOM1",
		FileRef:           "certificates/second.pdf",
		FileType:          "pdf",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrAlreadyExists)
}

func TestCertifyGraduationHandler_PendingGraduation(t *testing.T) {
	gradRepo := newMemGraduationRepo()
	studentRepo := newMemStudentRepo()
	grad, _ := seedGraduation(t, gradRepo, studentRepo)

	handler := NewCertifyGraduationHandler(gradRepo, &recordingPublisher{})

	_, err := handler.Handle(context.Background(), CertifyGraduationCommand{
		GraduationID: grad.ID,
		FileRef:      "certificates/grad-1.pdf",
		FileType:     "pdf",
	})
	assert.ErrorIs(t, err, shared.ErrStateTransition)
}

func TestCancelGraduationHandler_Pending(t *testing.T) {
	gradRepo := newMemGraduationRepo()
	studentRepo := newMemStudentRepo()
	publisher := &recordingPublisher{}
	grad, _ := seedGraduation(t, gradRepo, studentRepo)

	handler := NewCancelGraduationHandler(gradRepo, publisher)

	result, err := handler.Handle(context.Background(), CancelGraduationCommand{
		GraduationID: grad.ID,
		Reason:       "enrolled by mistake",
	})
	require.NoError(t, err)
	assert.False(t, result.CascadeKept)

	saved, err := gradRepo.GetByID(context.Background(), grad.ID)
	require.NoError(t, err)
	assert.Equal(t, graduation.StateCancelled, saved.State)
	assert.Contains(t, saved.Notes, "cancelled: enrolled by mistake")

	assert.Contains(t, publisher.types(), shared.EventGraduationCancelled)
}

func TestCancelGraduationHandler_ApprovedKeepsBelt(t *testing.T) {
	gradRepo := newMemGraduationRepo()
	studentRepo := newMemStudentRepo()
	publisher := &recordingPublisher{}
	grad, stud := seedGraduation(t, gradRepo, studentRepo)

	approve := NewApproveGraduationHandler(gradRepo, studentRepo, publisher)
	_, err := approve.Handle(context.Background(), ApproveGraduationCommand{
		GraduationID: grad.ID,
		ApprovedBy:   "staff:director",
	})
	require.NoError(t, err)

	handler := NewCancelGraduationHandler(gradRepo, publisher)
	result, err := handler.Handle(context.Background(), CancelGraduationCommand{
		GraduationID: grad.ID,
		Reason:       "administrative reversal",
	})
	require.NoError(t, err)
	assert.True(t, result.CascadeKept)

	// The promotion stays in place.
	promoted, err := studentRepo.GetByID(context.Background(), stud.ID)
	require.NoError(t, err)
	assert.Equal(t, shared.BeltAmarillo, promoted.Belt.Level)
}

func TestCancelGraduationHandler_Certified(t *testing.T) {
	gradRepo := newMemGraduationRepo()
	studentRepo := newMemStudentRepo()
	publisher := &recordingPublisher{}
	grad, _ := seedGraduation(t, gradRepo, studentRepo)

	approve := NewApproveGraduationHandler(gradRepo, studentRepo, publisher)
	_, err := approve.Handle(context.Background(), ApproveGraduationCommand{GraduationID: grad.ID, ApprovedBy: "staff:director"})
	require.NoError(t, err)

	certify := NewCertifyGraduationHandler(gradRepo, publisher)
	_, err = certify.Handle(context.Background(), CertifyGraduationCommand{
		GraduationID: grad.ID,
		FileRef:      "certificates/grad-1.pdf",
		FileType:     "pdf",
	})
	require.NoError(t, err)

	handler := NewCancelGraduationHandler(gradRepo, publisher)
	_, err = handler.Handle(context.Background(), CancelGraduationCommand{
		GraduationID: grad.ID,
		Reason:       "too late",
	})
	assert.ErrorIs(t, err, shared.ErrStateTransition)
}

func TestGraduationLifecycleCommands_Validate(t *testing.T) {
	assert.Error(t, ApproveGraduationCommand{}.Validate())
	assert.Error(t, ApproveGraduationCommand{GraduationID: "g"}.Validate())
	assert.NoError(t, ApproveGraduationCommand{GraduationID: "g", ApprovedBy: "staff:x"}.Validate())

	assert.Error(t, CertifyGraduationCommand{}.Validate())
	assert.NoError(t, CertifyGraduationCommand{GraduationID: "g"}.Validate())

	assert.Error(t, CancelGraduationCommand{GraduationID: "g"}.Validate())
	assert.Error(t, CancelGraduationCommand{Reason: "r"}.Validate())
	assert.NoError(t, CancelGraduationCommand{GraduationID: "g", Reason: "r"}.Validate())
}
