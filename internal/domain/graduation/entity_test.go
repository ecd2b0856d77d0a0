package graduation

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
)

func newPending(t *testing.T) *Graduation {
	t.Helper()
	g, err := NewGraduation(NewGraduationParams{
		ID:           "grad-1",
		ExamID:       testExamID,
		GradeID:      "grade-1",
		StudentID:    testStudentID,
		PreviousBelt: shared.BeltBlanco,
		NewBelt:      shared.BeltAmarillo,
		Date:         time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC),
		Certifiers:   []shared.StaffID{"staff:sabonim", "staff:assistant"},
	})
	require.NoError(t, err)
	return g
}

func validCertificate() Certificate {
	return Certificate{
		Number:   "202609-A1B2",
		FileRef:  "certificates/grad-1.pdf",
		FileType: "pdf",
		IssuedAt: time.Date(2026, 9, 16, 0, 0, 0, 0, time.UTC),
	}
}

func TestNewGraduation(t *testing.T) {
	g := newPending(t)

	assert.Equal(t, StatePending, g.State)
	assert.False(t, g.StudentUpdated)
	assert.Nil(t, g.Certificate)
	assert.Equal(t, shared.StaffID("staff:sabonim"), g.FirstCertifier())
}

func TestNewGraduation_Validation(t *testing.T) {
	base := NewGraduationParams{
		ID:           "grad-1",
		ExamID:       testExamID,
		GradeID:      "grade-1",
		StudentID:    testStudentID,
		PreviousBelt: shared.BeltBlanco,
		NewBelt:      shared.BeltAmarillo,
	}

	tests := []struct {
		name   string
		mutate func(*NewGraduationParams)
	}{
		{"empty ID", func(p *NewGraduationParams) { p.ID = " " }},
		{"invalid exam ID", func(p *NewGraduationParams) { p.ExamID = "nope" }},
		{"empty grade ID", func(p *NewGraduationParams) { p.GradeID = "" }},
		{"invalid student ID", func(p *NewGraduationParams) { p.StudentID = "nope" }},
		{"invalid previous belt", func(p *NewGraduationParams) { p.PreviousBelt = "dorado" }},
		{"invalid new belt", func(p *NewGraduationParams) { p.NewBelt = "dorado" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := base
			tt.mutate(&params)
			_, err := NewGraduation(params)
			assert.Error(t, err)
		})
	}
}

func TestGraduation_Approve(t *testing.T) {
	g := newPending(t)
	at := time.Date(2026, 9, 15, 12, 0, 0, 0, time.UTC)

	cascadeNeeded, err := g.Approve("staff:director", at)
	require.NoError(t, err)

	assert.True(t, cascadeNeeded)
	assert.Equal(t, StateApproved, g.State)
	assert.Equal(t, shared.StaffID("staff:director"), g.ApprovedBy)
	assert.Equal(t, at, g.ApprovedAt)
}

func TestGraduation_Approve_Idempotent(t *testing.T) {
	g := newPending(t)
	at := time.Date(2026, 9, 15, 12, 0, 0, 0, time.UTC)

	cascadeNeeded, err := g.Approve("staff:director", at)
	require.NoError(t, err)
	require.True(t, cascadeNeeded)
	g.MarkStudentUpdated(at)

	// Re-approving an approved graduation is a no-op.
	cascadeNeeded, err = g.Approve("staff:other", at.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, cascadeNeeded)
	assert.Equal(t, shared.StaffID("staff:director"), g.ApprovedBy)
}

func TestGraduation_Approve_CascadeAlreadyApplied(t *testing.T) {
	// Retry path: the belt cascade was applied but the state save failed.
	// The next approval must advance the state without asking for the
	// cascade again.
	g := newPending(t)
	g.MarkStudentUpdated(time.Now().UTC())

	cascadeNeeded, err := g.Approve("staff:director", time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, cascadeNeeded)
	assert.Equal(t, StateApproved, g.State)
}

func TestGraduation_Approve_FromTerminalStates(t *testing.T) {
	g := newPending(t)
	_, err := g.Approve("staff:director", time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, g.Certify(validCertificate()))

	_, err = g.Approve("staff:director", time.Now().UTC())
	assert.ErrorIs(t, err, shared.ErrStateTransition)

	g2 := newPending(t)
	require.NoError(t, g2.Cancel("duplicate record"))
	_, err = g2.Approve("staff:director", time.Now().UTC())
	assert.ErrorIs(t, err, shared.ErrStateTransition)
}

func TestGraduation_Certify(t *testing.T) {
	g := newPending(t)
	_, err := g.Approve("staff:director", time.Now().UTC())
	require.NoError(t, err)

	cert := validCertificate()
	require.NoError(t, g.Certify(cert))

	assert.Equal(t, StateCertified, g.State)
	require.NotNil(t, g.Certificate)
	assert.Equal(t, cert.Number, g.Certificate.Number)
	assert.True(t, g.State.IsTerminal())
}

func TestGraduation_Certify_RequiresApproved(t *testing.T) {
	g := newPending(t)

	err := g.Certify(validCertificate())
	assert.ErrorIs(t, err, shared.ErrStateTransition)
}

func TestGraduation_Certify_Validation(t *testing.T) {
	g := newPending(t)
	_, err := g.Approve("staff:director", time.Now().UTC())
	require.NoError(t, err)

	cert := validCertificate()
	cert.FileRef = ""
	assert.ErrorIs(t, g.Certify(cert), shared.ErrCertificateMissing)

	cert = validCertificate()
	cert.Number = "  "
	err = g.Certify(cert)
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	assert.Equal(t, StateApproved, g.State)
}

func TestGraduation_Certify_DefaultsIssuedAt(t *testing.T) {
	g := newPending(t)
	_, err := g.Approve("staff:director", time.Now().UTC())
	require.NoError(t, err)

	cert := validCertificate()
	cert.IssuedAt = time.Time{}
	require.NoError(t, g.Certify(cert))
	assert.False(t, g.Certificate.IssuedAt.IsZero())
}

func TestGraduation_Cancel(t *testing.T) {
	g := newPending(t)

	require.NoError(t, g.Cancel("enrolled by mistake"))
	assert.Equal(t, StateCancelled, g.State)
	assert.Contains(t, g.Notes, "cancelled: enrolled by mistake")
}

func TestGraduation_Cancel_KeepsAppliedCascade(t *testing.T) {
	g := newPending(t)
	at := time.Now().UTC()
	_, err := g.Approve("staff:director", at)
	require.NoError(t, err)
	g.MarkStudentUpdated(at)

	require.NoError(t, g.Cancel("administrative reversal"))

	// Cancellation does not roll back the belt mutation.
	assert.Equal(t, StateCancelled, g.State)
	assert.True(t, g.StudentUpdated)
}

func TestGraduation_Cancel_RequiresReason(t *testing.T) {
	g := newPending(t)
	err := g.Cancel("   ")
	assert.ErrorIs(t, err, shared.ErrReasonRequired)
}

func TestGraduation_Cancel_TerminalStates(t *testing.T) {
	g := newPending(t)
	_, err := g.Approve("staff:director", time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, g.Certify(validCertificate()))

	err = g.Cancel("too late")
	assert.ErrorIs(t, err, shared.ErrStateTransition)

	g2 := newPending(t)
	require.NoError(t, g2.Cancel("first"))
	err = g2.Cancel("second")
	assert.ErrorIs(t, err, shared.ErrStateTransition)
}

func TestCertificateNumber(t *testing.T) {
	at := time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "202603-A1B2", CertificateNumber(at, "a1b2"))
}

func TestGraduation_Clone(t *testing.T) {
	g := newPending(t)
	_, err := g.Approve("staff:director", time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, g.Certify(validCertificate()))

	clone := g.Clone()
	clone.Certificate.Number = "changed"
	clone.Notes = append(clone.Notes, "extra")
	clone.Certifiers[0] = "staff:other"

	assert.Equal(t, "202609-A1B2", g.Certificate.Number)
	assert.Empty(t, g.Notes)
	assert.Equal(t, shared.StaffID("staff:sabonim"), g.Certifiers[0])
}
