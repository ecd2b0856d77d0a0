package saga

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dojang-hub/dojang-exam-hub/internal/application/query"
	"github.com/dojang-hub/dojang-exam-hub/internal/domain/exam"
	"github.com/dojang-hub/dojang-exam-hub/internal/domain/grade"
	"github.com/dojang-hub/dojang-exam-hub/internal/domain/graduation"
	"github.com/dojang-hub/dojang-exam-hub/internal/domain/shared"
	"github.com/dojang-hub/dojang-exam-hub/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// IN-MEMORY FAKES
// ══════════════════════════════════════════════════════════════════════════════

type fakeExamRepo struct {
	mu    sync.Mutex
	exams map[shared.ExamID]*exam.Exam
}

func newFakeExamRepo() *fakeExamRepo {
	return &fakeExamRepo{exams: make(map[shared.ExamID]*exam.Exam)}
}

func (r *fakeExamRepo) Create(_ context.Context, e *exam.Exam) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.exams[e.ID]; ok {
		return shared.ErrAlreadyExists
	}
	r.exams[e.ID] = e
	return nil
}

func (r *fakeExamRepo) GetByID(_ context.Context, id shared.ExamID) (*exam.Exam, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.exams[id]
	if !ok {
		return nil, shared.ErrExamNotFound
	}
	return e, nil
}

func (r *fakeExamRepo) Save(_ context.Context, e *exam.Exam) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exams[e.ID] = e
	e.Version++
	return nil
}

func (r *fakeExamRepo) GetAll(_ context.Context, _ exam.ListOptions) ([]*exam.Exam, error) {
	return nil, nil
}

func (r *fakeExamRepo) GetByStatus(_ context.Context, _ exam.Status, _ exam.ListOptions) ([]*exam.Exam, error) {
	return nil, nil
}

type fakeGradeRepo struct {
	mu     sync.Mutex
	grades map[string]*grade.Grade
}

func newFakeGradeRepo() *fakeGradeRepo {
	return &fakeGradeRepo{grades: make(map[string]*grade.Grade)}
}

func (r *fakeGradeRepo) Create(_ context.Context, g *grade.Grade) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.grades[g.ID] = g
	return nil
}

func (r *fakeGradeRepo) GetByID(_ context.Context, id string) (*grade.Grade, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.grades[id]
	if !ok {
		return nil, shared.ErrGradeNotFound
	}
	return g, nil
}

func (r *fakeGradeRepo) GetByExamAndStudent(_ context.Context, examID shared.ExamID, studentID shared.StudentID) (*grade.Grade, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, g := range r.grades {
		if g.ExamID == examID && g.StudentID == studentID {
			return g, nil
		}
	}
	return nil, shared.ErrGradeNotFound
}

func (r *fakeGradeRepo) Update(_ context.Context, g *grade.Grade) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.grades[g.ID] = g
	return nil
}

func (r *fakeGradeRepo) GetByExam(_ context.Context, examID shared.ExamID) ([]*grade.Grade, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*grade.Grade
	for _, g := range r.grades {
		if g.ExamID == examID {
			out = append(out, g)
		}
	}
	return out, nil
}

func (r *fakeGradeRepo) ExistsForCandidate(ctx context.Context, examID shared.ExamID, studentID shared.StudentID) (bool, error) {
	_, err := r.GetByExamAndStudent(ctx, examID, studentID)
	if err != nil {
		return false, nil
	}
	return true, nil
}

type fakeGraduationRepo struct {
	mu          sync.Mutex
	graduations map[string]*graduation.Graduation
	createErr   map[shared.StudentID]error
}

func newFakeGraduationRepo() *fakeGraduationRepo {
	return &fakeGraduationRepo{
		graduations: make(map[string]*graduation.Graduation),
		createErr:   make(map[shared.StudentID]error),
	}
}

func (r *fakeGraduationRepo) Create(_ context.Context, g *graduation.Graduation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.createErr[g.StudentID]; err != nil {
		return err
	}
	for _, existing := range r.graduations {
		if existing.ExamID == g.ExamID && existing.StudentID == g.StudentID && existing.State != graduation.StateCancelled {
			return shared.ErrAlreadyGraduated
		}
	}
	r.graduations[g.ID] = g.Clone()
	return nil
}

func (r *fakeGraduationRepo) GetByID(_ context.Context, id string) (*graduation.Graduation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.graduations[id]
	if !ok {
		return nil, shared.ErrGraduationNotFound
	}
	return g.Clone(), nil
}

func (r *fakeGraduationRepo) GetByExamAndStudent(_ context.Context, examID shared.ExamID, studentID shared.StudentID) (*graduation.Graduation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, g := range r.graduations {
		if g.ExamID == examID && g.StudentID == studentID && g.State != graduation.StateCancelled {
			return g.Clone(), nil
		}
	}
	return nil, shared.ErrGraduationNotFound
}

func (r *fakeGraduationRepo) Update(_ context.Context, g *graduation.Graduation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.graduations[g.ID]; !ok {
		return shared.ErrGraduationNotFound
	}
	r.graduations[g.ID] = g.Clone()
	return nil
}

func (r *fakeGraduationRepo) ExistsForCandidate(ctx context.Context, examID shared.ExamID, studentID shared.StudentID) (bool, error) {
	_, err := r.GetByExamAndStudent(ctx, examID, studentID)
	if err != nil {
		return false, nil
	}
	return true, nil
}

func (r *fakeGraduationRepo) GetByStudent(_ context.Context, studentID shared.StudentID) ([]*graduation.Graduation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*graduation.Graduation
	for _, g := range r.graduations {
		if g.StudentID == studentID {
			out = append(out, g.Clone())
		}
	}
	return out, nil
}

func (r *fakeGraduationRepo) FindUnapplied(_ context.Context, limit int) ([]*graduation.Graduation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*graduation.Graduation
	for _, g := range r.graduations {
		if g.State == graduation.StatePending && !g.StudentUpdated {
			out = append(out, g.Clone())
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (r *fakeGraduationRepo) CertificateNumberExists(_ context.Context, number string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, g := range r.graduations {
		if g.Certificate != nil && g.Certificate.Number == number {
			return true, nil
		}
	}
	return false, nil
}

type fakeStudentRepo struct {
	mu       sync.Mutex
	students map[shared.StudentID]*student.Student
}

func newFakeStudentRepo() *fakeStudentRepo {
	return &fakeStudentRepo{students: make(map[shared.StudentID]*student.Student)}
}

func (r *fakeStudentRepo) GetByID(_ context.Context, id shared.StudentID) (*student.Student, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.students[id]
	if !ok {
		return nil, shared.ErrStudentNotFound
	}
	return s.Clone(), nil
}

func (r *fakeStudentRepo) GetByIDs(ctx context.Context, ids []shared.StudentID) ([]*student.Student, error) {
	var out []*student.Student
	for _, id := range ids {
		s, err := r.GetByID(ctx, id)
		if err != nil {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (r *fakeStudentRepo) Update(_ context.Context, s *student.Student) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.students[s.ID]; !ok {
		return shared.ErrStudentNotFound
	}
	r.students[s.ID] = s.Clone()
	return nil
}

func (r *fakeStudentRepo) Exists(_ context.Context, id shared.StudentID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.students[id]
	return ok, nil
}

func (r *fakeStudentRepo) add(s *student.Student) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.students[s.ID] = s
}

type capturingPublisher struct {
	mu     sync.Mutex
	events []shared.Event
}

func (p *capturingPublisher) Publish(event shared.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *capturingPublisher) byType(t shared.EventType) []shared.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []shared.Event
	for _, e := range p.events {
		if e.EventType() == t {
			out = append(out, e)
		}
	}
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// FIXTURE
// ══════════════════════════════════════════════════════════════════════════════

type sagaFixture struct {
	examRepo       *fakeExamRepo
	gradeRepo      *fakeGradeRepo
	graduationRepo *fakeGraduationRepo
	studentRepo    *fakeStudentRepo
	publisher      *capturingPublisher
	processor      *GraduationProcessor
	exam           *exam.Exam
}

func newSagaFixture(t *testing.T) *sagaFixture {
	t.Helper()

	f := &sagaFixture{
		examRepo:       newFakeExamRepo(),
		gradeRepo:      newFakeGradeRepo(),
		graduationRepo: newFakeGraduationRepo(),
		studentRepo:    newFakeStudentRepo(),
		publisher:      &capturingPublisher{},
	}
	f.processor = NewGraduationProcessor(
		f.examRepo, f.gradeRepo, f.graduationRepo, f.studentRepo,
		NopUnitOfWork{}, f.publisher,
	)

	ex, err := exam.NewExam(exam.NewExamParams{
		ID:              shared.ExamID(uuid.NewString()),
		Name:            "Attestation Q3 2026",
		Type:            exam.TypeGraduation,
		TargetBeltRank:  shared.BeltAmarillo,
		MinPassingScore: 70,
		Categories: []exam.Category{
			{Name: "tecnica", Weight: 60},
			{Name: "combate", Weight: 40},
		},
		Requirements: exam.Requirements{
			CurrentBeltRequired: shared.BeltBlanco,
		},
		Instructors: []shared.StaffID{"staff:sabonim"},
		ScheduledAt: time.Date(2026, 9, 15, 10, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	f.exam = ex
	require.NoError(t, f.examRepo.Create(context.Background(), ex))
	return f
}

// addCandidate enrolls a student and optionally records a finalized grade.
func (f *sagaFixture) addCandidate(t *testing.T, score float64, graded bool) shared.StudentID {
	t.Helper()

	studentID := shared.StudentID(uuid.NewString())
	stud, err := student.NewStudent(student.NewStudentParams{
		ID:          studentID,
		DisplayName: "Candidate " + string(studentID[:8]),
		BeltLevel:   shared.BeltBlanco,
	})
	require.NoError(t, err)
	f.studentRepo.add(stud)

	_, err = f.exam.Enroll(exam.EnrollParams{
		CandidateID: uuid.NewString(),
		StudentID:   studentID,
	})
	require.NoError(t, err)

	if graded {
		g, err := grade.NewGrade(uuid.NewString(), f.exam.ID, studentID)
		require.NoError(t, err)
		require.NoError(t, g.Finalize([]grade.CategoryScore{
			{Category: "tecnica", Score: shared.Score(score), Weight: 60},
			{Category: "combate", Score: shared.Score(score), Weight: 40},
		}, f.exam.MinPassingScore))
		require.NoError(t, f.gradeRepo.Create(context.Background(), g))
	}

	return studentID
}

func (f *sagaFixture) completeExam(t *testing.T) {
	t.Helper()
	require.NoError(t, f.exam.Start())
	require.NoError(t, f.exam.Complete())
}

// ══════════════════════════════════════════════════════════════════════════════
// PROCESS BATCH
// ══════════════════════════════════════════════════════════════════════════════

func TestProcessBatch_ApprovesAndCascades(t *testing.T) {
	f := newSagaFixture(t)
	passed := f.addCandidate(t, 85, true)
	f.completeExam(t)

	result, err := f.processor.ProcessBatch(context.Background(), BatchInput{
		ExamID:     string(f.exam.ID),
		ApprovedBy: "staff:director",
	})
	require.NoError(t, err)

	require.Len(t, result.Succeeded, 1)
	assert.True(t, result.FullyProcessed())

	outcome := result.Succeeded[0]
	assert.Equal(t, string(passed), outcome.StudentID)
	assert.Equal(t, graduation.StateApproved, outcome.State)
	assert.Equal(t, string(shared.BeltBlanco), outcome.PreviousBelt)
	assert.True(t, outcome.CascadeApplied)

	// The belt cascade reached the student record.
	stud, err := f.studentRepo.GetByID(context.Background(), passed)
	require.NoError(t, err)
	assert.Equal(t, shared.BeltAmarillo, stud.Belt.Level)
	assert.Equal(t, 1, stud.GraduationTestsPassed)

	// The stored graduation carries the cascade flag.
	grad, err := f.graduationRepo.GetByID(context.Background(), outcome.GraduationID)
	require.NoError(t, err)
	assert.True(t, grad.StudentUpdated)

	assert.Len(t, f.publisher.byType(shared.EventGraduationCreated), 1)
	assert.Len(t, f.publisher.byType(shared.EventBeltPromoted), 1)
	assert.Len(t, f.publisher.byType(shared.EventBatchCompleted), 1)
}

func TestProcessBatch_LeavePending(t *testing.T) {
	f := newSagaFixture(t)
	passed := f.addCandidate(t, 85, true)
	f.completeExam(t)

	result, err := f.processor.ProcessBatch(context.Background(), BatchInput{
		ExamID:       string(f.exam.ID),
		LeavePending: true,
	})
	require.NoError(t, err)

	require.Len(t, result.Succeeded, 1)
	assert.Equal(t, graduation.StatePending, result.Succeeded[0].State)
	assert.False(t, result.Succeeded[0].CascadeApplied)

	// The student's belt is untouched until approval.
	stud, err := f.studentRepo.GetByID(context.Background(), passed)
	require.NoError(t, err)
	assert.Equal(t, shared.BeltBlanco, stud.Belt.Level)

	assert.Empty(t, f.publisher.byType(shared.EventBeltPromoted))
}

func TestProcessBatch_NonPassingGradeIsFailedEntry(t *testing.T) {
	f := newSagaFixture(t)
	first := f.addCandidate(t, 85, true)
	failed := f.addCandidate(t, 50, true)
	third := f.addCandidate(t, 92, true)
	f.completeExam(t)

	result, err := f.processor.ProcessBatch(context.Background(), BatchInput{
		ExamID:     string(f.exam.ID),
		ApprovedBy: "staff:director",
	})
	require.NoError(t, err)

	// Two pass, one does not: the non-passing candidate is a failed entry
	// and does not roll back the other two.
	require.Len(t, result.Succeeded, 2)
	require.Len(t, result.Failed, 1)

	succeededIDs := []string{result.Succeeded[0].StudentID, result.Succeeded[1].StudentID}
	assert.ElementsMatch(t, []string{string(first), string(third)}, succeededIDs)

	assert.Equal(t, string(failed), result.Failed[0].StudentID)
	assert.ErrorIs(t, result.Failed[0].Err, shared.ErrGradeNotApproved)

	stud, err := f.studentRepo.GetByID(context.Background(), failed)
	require.NoError(t, err)
	assert.Equal(t, shared.BeltBlanco, stud.Belt.Level)
}

func TestProcessBatch_UngradedCandidateIsFailedEntry(t *testing.T) {
	f := newSagaFixture(t)
	passed := f.addCandidate(t, 85, true)
	ungraded := f.addCandidate(t, 0, false)
	f.completeExam(t)

	result, err := f.processor.ProcessBatch(context.Background(), BatchInput{
		ExamID:     string(f.exam.ID),
		ApprovedBy: "staff:director",
	})
	require.NoError(t, err)

	require.Len(t, result.Succeeded, 1)
	assert.Equal(t, string(passed), result.Succeeded[0].StudentID)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, string(ungraded), result.Failed[0].StudentID)
	assert.ErrorIs(t, result.Failed[0].Err, shared.ErrGradeNotApproved)
}

func TestProcessBatch_PartialFailureIsolation(t *testing.T) {
	f := newSagaFixture(t)
	first := f.addCandidate(t, 85, true)
	broken := f.addCandidate(t, 90, true)
	third := f.addCandidate(t, 80, true)
	f.completeExam(t)

	// The middle candidate's graduation insert fails; the rest of the batch
	// must still go through.
	f.graduationRepo.createErr[broken] = errors.New("storage unavailable")

	result, err := f.processor.ProcessBatch(context.Background(), BatchInput{
		ExamID:     string(f.exam.ID),
		ApprovedBy: "staff:director",
	})
	require.NoError(t, err)

	assert.False(t, result.FullyProcessed())
	require.Len(t, result.Succeeded, 2)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, string(broken), result.Failed[0].StudentID)
	assert.Contains(t, result.Failed[0].Reason, "storage unavailable")

	succeededIDs := []string{result.Succeeded[0].StudentID, result.Succeeded[1].StudentID}
	assert.ElementsMatch(t, []string{string(first), string(third)}, succeededIDs)

	// Nothing half-applied for the failed candidate.
	stud, err := f.studentRepo.GetByID(context.Background(), broken)
	require.NoError(t, err)
	assert.Equal(t, shared.BeltBlanco, stud.Belt.Level)
}

func TestProcessBatch_RerunReportsAlreadyGraduated(t *testing.T) {
	f := newSagaFixture(t)
	passed := f.addCandidate(t, 85, true)
	f.completeExam(t)

	input := BatchInput{
		ExamID:     string(f.exam.ID),
		ApprovedBy: "staff:director",
	}

	first, err := f.processor.ProcessBatch(context.Background(), input)
	require.NoError(t, err)
	require.Len(t, first.Succeeded, 1)

	// The rerun rejects the already-graduated candidate and, crucially,
	// does not cascade the belt a second time.
	second, err := f.processor.ProcessBatch(context.Background(), input)
	require.NoError(t, err)
	assert.Empty(t, second.Succeeded)
	require.Len(t, second.Failed, 1)
	assert.Equal(t, string(passed), second.Failed[0].StudentID)
	assert.ErrorIs(t, second.Failed[0].Err, shared.ErrAlreadyGraduated)
	assert.Contains(t, second.Failed[0].Reason, first.Succeeded[0].GraduationID)

	stud, err := f.studentRepo.GetByID(context.Background(), passed)
	require.NoError(t, err)
	assert.Equal(t, shared.BeltAmarillo, stud.Belt.Level)
	assert.Equal(t, 1, stud.GraduationTestsTaken)
}

func TestProcessBatch_ScopedRequests(t *testing.T) {
	f := newSagaFixture(t)
	wanted := f.addCandidate(t, 85, true)
	other := f.addCandidate(t, 90, true)
	f.completeExam(t)

	gr, err := f.gradeRepo.GetByExamAndStudent(context.Background(), f.exam.ID, wanted)
	require.NoError(t, err)

	result, err := f.processor.ProcessBatch(context.Background(), BatchInput{
		ExamID:     string(f.exam.ID),
		ApprovedBy: "staff:director",
		Requests: []BatchRequest{
			{StudentID: string(wanted), GradeID: gr.ID},
		},
	})
	require.NoError(t, err)

	require.Len(t, result.Succeeded, 1)
	assert.Equal(t, string(wanted), result.Succeeded[0].StudentID)
	assert.Empty(t, result.Failed)

	// The unrequested candidate is untouched.
	_, err = f.graduationRepo.GetByExamAndStudent(context.Background(), f.exam.ID, other)
	assert.ErrorIs(t, err, shared.ErrGraduationNotFound)
}

func TestProcessBatch_RequestGradeMismatch(t *testing.T) {
	f := newSagaFixture(t)
	first := f.addCandidate(t, 85, true)
	second := f.addCandidate(t, 90, true)
	f.completeExam(t)

	// Bind the first student's request to the second student's grade.
	wrongGrade, err := f.gradeRepo.GetByExamAndStudent(context.Background(), f.exam.ID, second)
	require.NoError(t, err)

	result, err := f.processor.ProcessBatch(context.Background(), BatchInput{
		ExamID:     string(f.exam.ID),
		ApprovedBy: "staff:director",
		Requests: []BatchRequest{
			{StudentID: string(first), GradeID: wrongGrade.ID},
		},
	})
	require.NoError(t, err)

	assert.Empty(t, result.Succeeded)
	require.Len(t, result.Failed, 1)
	assert.ErrorIs(t, result.Failed[0].Err, shared.ErrGradeNotApproved)
}

func TestProcessBatch_RequestForUnenrolledStudent(t *testing.T) {
	f := newSagaFixture(t)
	f.addCandidate(t, 85, true)
	f.completeExam(t)

	outsider := uuid.NewString()
	result, err := f.processor.ProcessBatch(context.Background(), BatchInput{
		ExamID:     string(f.exam.ID),
		ApprovedBy: "staff:director",
		Requests: []BatchRequest{
			{StudentID: outsider},
		},
	})
	require.NoError(t, err)

	assert.Empty(t, result.Succeeded)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, outsider, result.Failed[0].StudentID)
	assert.ErrorIs(t, result.Failed[0].Err, shared.ErrNotEnrolled)
}

func TestProcessBatch_RequiresCompletedGraduationExam(t *testing.T) {
	f := newSagaFixture(t)
	f.addCandidate(t, 85, true)

	// Still scheduled.
	_, err := f.processor.ProcessBatch(context.Background(), BatchInput{
		ExamID:     string(f.exam.ID),
		ApprovedBy: "staff:director",
	})
	assert.ErrorIs(t, err, shared.ErrStateTransition)
}

func TestProcessBatch_RejectsEvaluationExam(t *testing.T) {
	f := newSagaFixture(t)
	f.exam.Type = exam.TypeEvaluation
	f.completeExam(t)

	_, err := f.processor.ProcessBatch(context.Background(), BatchInput{
		ExamID:     string(f.exam.ID),
		ApprovedBy: "staff:director",
	})
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestBatchInput_Validate(t *testing.T) {
	assert.Error(t, BatchInput{}.Validate())
	assert.Error(t, BatchInput{ExamID: "x"}.Validate())
	assert.Error(t, BatchInput{ExamID: "x", ApprovedBy: "staff:director",
		Requests: []BatchRequest{{}}}.Validate())
	assert.NoError(t, BatchInput{ExamID: "x", LeavePending: true}.Validate())
	assert.NoError(t, BatchInput{ExamID: "x", ApprovedBy: "staff:director"}.Validate())
}

// ══════════════════════════════════════════════════════════════════════════════
// END-TO-END
// ══════════════════════════════════════════════════════════════════════════════

type stubAttendanceLog struct {
	total   int
	present int
}

func (l stubAttendanceLog) GetByStudent(_ context.Context, _ shared.StudentID) ([]student.AttendanceRecord, error) {
	return nil, nil
}

func (l stubAttendanceLog) CountByStatus(_ context.Context, _ shared.StudentID, status student.AttendanceStatus) (int, error) {
	if status == student.AttendancePresent {
		return l.present, nil
	}
	return l.total, nil
}

func (l stubAttendanceLog) GetByStudentSince(_ context.Context, _ shared.StudentID, _ time.Time) ([]student.AttendanceRecord, error) {
	return nil, nil
}

type stubPaymentLedger struct {
	delinquent int
}

func (l stubPaymentLedger) GetByStudent(_ context.Context, _ shared.StudentID) ([]student.PaymentRecord, error) {
	return nil, nil
}

func (l stubPaymentLedger) CountDelinquent(_ context.Context, _ shared.StudentID) (int, error) {
	return l.delinquent, nil
}

// The full workflow in one pass: eligibility → enrollment → grading →
// graduation with the belt cascade.
func TestGraduationFlow_EndToEnd(t *testing.T) {
	f := newSagaFixture(t)
	f.exam.Requirements.MinAttendancePercent = 75
	f.exam.Requirements.MinDaysSinceBelt = 90
	f.exam.Requirements.PaymentMustBeCurrent = true

	// Blanco belt held 120 days, 10/10 present, no debts.
	studentID := shared.StudentID(uuid.NewString())
	stud, err := student.NewStudent(student.NewStudentParams{
		ID:          studentID,
		DisplayName: "Veteran Blanco",
		BeltLevel:   shared.BeltBlanco,
		JoinedAt:    time.Now().UTC().AddDate(0, 0, -120),
	})
	require.NoError(t, err)
	f.studentRepo.add(stud)

	evaluator := query.NewEligibilityEvaluator(
		f.studentRepo,
		stubAttendanceLog{total: 10, present: 10},
		stubPaymentLedger{},
	)
	eligibility, err := evaluator.Evaluate(context.Background(), studentID, f.exam)
	require.NoError(t, err)
	assert.True(t, eligibility.Attendance.MeetsMin)
	assert.True(t, eligibility.Tenure.MeetsMin)
	assert.True(t, eligibility.Payment.MeetsRequirement)
	require.True(t, eligibility.Eligible())

	_, err = f.exam.Enroll(exam.EnrollParams{
		CandidateID: uuid.NewString(),
		StudentID:   studentID,
		Eligibility: eligibility,
	})
	require.NoError(t, err)

	// Final score 85 against threshold 70.
	g, err := grade.NewGrade(uuid.NewString(), f.exam.ID, studentID)
	require.NoError(t, err)
	require.NoError(t, g.Finalize([]grade.CategoryScore{
		{Category: "tecnica", Score: 85, Weight: 60},
		{Category: "combate", Score: 85, Weight: 40},
	}, f.exam.MinPassingScore))
	assert.Equal(t, grade.ResultPass, g.Result)
	require.NoError(t, f.gradeRepo.Create(context.Background(), g))

	f.completeExam(t)

	result, err := f.processor.ProcessBatch(context.Background(), BatchInput{
		ExamID:     string(f.exam.ID),
		ApprovedBy: "staff:director",
	})
	require.NoError(t, err)
	require.Len(t, result.Succeeded, 1)
	assert.Equal(t, graduation.StateApproved, result.Succeeded[0].State)

	stud, err = f.studentRepo.GetByID(context.Background(), studentID)
	require.NoError(t, err)
	assert.Equal(t, shared.BeltAmarillo, stud.Belt.Level)

	grad, err := f.graduationRepo.GetByID(context.Background(), result.Succeeded[0].GraduationID)
	require.NoError(t, err)
	assert.True(t, grad.StudentUpdated)
}

// ══════════════════════════════════════════════════════════════════════════════
// RECONCILIATION
// ══════════════════════════════════════════════════════════════════════════════

func TestReconcilePending(t *testing.T) {
	f := newSagaFixture(t)
	passed := f.addCandidate(t, 85, true)
	f.completeExam(t)

	// Create without approving: a crash before approval leaves the record
	// pending with the cascade unapplied.
	result, err := f.processor.ProcessBatch(context.Background(), BatchInput{
		ExamID:       string(f.exam.ID),
		LeavePending: true,
	})
	require.NoError(t, err)
	require.Len(t, result.Succeeded, 1)

	recon, err := f.processor.ReconcilePending(context.Background(), "system:reconciliation", 50)
	require.NoError(t, err)

	assert.Equal(t, 1, recon.Examined)
	assert.Equal(t, 1, recon.Applied)
	assert.Empty(t, recon.Failed)

	stud, err := f.studentRepo.GetByID(context.Background(), passed)
	require.NoError(t, err)
	assert.Equal(t, shared.BeltAmarillo, stud.Belt.Level)

	grad, err := f.graduationRepo.GetByID(context.Background(), result.Succeeded[0].GraduationID)
	require.NoError(t, err)
	assert.Equal(t, graduation.StateApproved, grad.State)
	assert.True(t, grad.StudentUpdated)

	assert.Len(t, f.publisher.byType(shared.EventReconciliationApplied), 1)
}

func TestReconcilePending_NothingStuck(t *testing.T) {
	f := newSagaFixture(t)

	recon, err := f.processor.ReconcilePending(context.Background(), "system:reconciliation", 50)
	require.NoError(t, err)
	assert.Equal(t, 0, recon.Examined)
	assert.Equal(t, 0, recon.Applied)
}

func TestReconcilePending_KeepsFailuresPending(t *testing.T) {
	f := newSagaFixture(t)
	f.addCandidate(t, 85, true)
	f.completeExam(t)

	result, err := f.processor.ProcessBatch(context.Background(), BatchInput{
		ExamID:       string(f.exam.ID),
		LeavePending: true,
	})
	require.NoError(t, err)
	require.Len(t, result.Succeeded, 1)

	// Removing the student makes the cascade fail; the record must stay
	// pending for the next run.
	f.studentRepo.mu.Lock()
	f.studentRepo.students = map[shared.StudentID]*student.Student{}
	f.studentRepo.mu.Unlock()

	recon, err := f.processor.ReconcilePending(context.Background(), "system:reconciliation", 50)
	require.NoError(t, err)
	assert.Equal(t, 1, recon.Examined)
	assert.Equal(t, 0, recon.Applied)
	require.Len(t, recon.Failed, 1)

	grad, err := f.graduationRepo.GetByID(context.Background(), result.Succeeded[0].GraduationID)
	require.NoError(t, err)
	assert.Equal(t, graduation.StatePending, grad.State)
}
