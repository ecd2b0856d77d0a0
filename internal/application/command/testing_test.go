package command

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/dojang-hub/dojang-exam-hub/internal/domain/exam"
	"github.com/dojang-hub/dojang-exam-hub/internal/domain/grade"
	"github.com/dojang-hub/dojang-exam-hub/internal/domain/graduation"
	"github.com/dojang-hub/dojang-exam-hub/internal/domain/shared"
	"github.com/dojang-hub/dojang-exam-hub/internal/domain/student"
)

// In-memory fakes shared by the command handler tests.

type memExamRepo struct {
	mu    sync.Mutex
	exams map[shared.ExamID]*exam.Exam
}

func newMemExamRepo() *memExamRepo {
	return &memExamRepo{exams: make(map[shared.ExamID]*exam.Exam)}
}

func (r *memExamRepo) Create(_ context.Context, e *exam.Exam) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.exams[e.ID]; ok {
		return shared.ErrAlreadyExists
	}
	r.exams[e.ID] = e
	return nil
}

func (r *memExamRepo) GetByID(_ context.Context, id shared.ExamID) (*exam.Exam, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.exams[id]
	if !ok {
		return nil, shared.ErrExamNotFound
	}
	return e, nil
}

func (r *memExamRepo) Save(_ context.Context, e *exam.Exam) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.exams[e.ID]; !ok {
		return shared.ErrExamNotFound
	}
	r.exams[e.ID] = e
	e.Version++
	return nil
}

func (r *memExamRepo) GetAll(_ context.Context, _ exam.ListOptions) ([]*exam.Exam, error) {
	return nil, nil
}

func (r *memExamRepo) GetByStatus(_ context.Context, _ exam.Status, _ exam.ListOptions) ([]*exam.Exam, error) {
	return nil, nil
}

type memStudentRepo struct {
	mu       sync.Mutex
	students map[shared.StudentID]*student.Student
}

func newMemStudentRepo() *memStudentRepo {
	return &memStudentRepo{students: make(map[shared.StudentID]*student.Student)}
}

func (r *memStudentRepo) GetByID(_ context.Context, id shared.StudentID) (*student.Student, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.students[id]
	if !ok {
		return nil, shared.ErrStudentNotFound
	}
	return s, nil
}

func (r *memStudentRepo) GetByIDs(_ context.Context, ids []shared.StudentID) ([]*student.Student, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*student.Student
	for _, id := range ids {
		if s, ok := r.students[id]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *memStudentRepo) Update(_ context.Context, s *student.Student) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.students[s.ID] = s
	return nil
}

func (r *memStudentRepo) Exists(_ context.Context, id shared.StudentID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.students[id]
	return ok, nil
}

type memGradeRepo struct {
	mu     sync.Mutex
	grades map[string]*grade.Grade
}

func newMemGradeRepo() *memGradeRepo {
	return &memGradeRepo{grades: make(map[string]*grade.Grade)}
}

func (r *memGradeRepo) Create(_ context.Context, g *grade.Grade) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.grades {
		if existing.ExamID == g.ExamID && existing.StudentID == g.StudentID {
			return shared.ErrGradeExists
		}
	}
	r.grades[g.ID] = g
	return nil
}

func (r *memGradeRepo) GetByID(_ context.Context, id string) (*grade.Grade, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.grades[id]
	if !ok {
		return nil, shared.ErrGradeNotFound
	}
	return g, nil
}

func (r *memGradeRepo) GetByExamAndStudent(_ context.Context, examID shared.ExamID, studentID shared.StudentID) (*grade.Grade, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, g := range r.grades {
		if g.ExamID == examID && g.StudentID == studentID {
			return g, nil
		}
	}
	return nil, shared.ErrGradeNotFound
}

func (r *memGradeRepo) Update(_ context.Context, g *grade.Grade) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.grades[g.ID]; !ok {
		return shared.ErrGradeNotFound
	}
	r.grades[g.ID] = g
	return nil
}

func (r *memGradeRepo) GetByExam(_ context.Context, examID shared.ExamID) ([]*grade.Grade, error) {
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

func (r *memGradeRepo) ExistsForCandidate(ctx context.Context, examID shared.ExamID, studentID shared.StudentID) (bool, error) {
	_, err := r.GetByExamAndStudent(ctx, examID, studentID)
	return err == nil, nil
}

type memGraduationRepo struct {
	mu          sync.Mutex
	graduations map[string]*graduation.Graduation
}

func newMemGraduationRepo() *memGraduationRepo {
	return &memGraduationRepo{graduations: make(map[string]*graduation.Graduation)}
}

func (r *memGraduationRepo) Create(_ context.Context, g *graduation.Graduation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.graduations[g.ID] = g.Clone()
	return nil
}

func (r *memGraduationRepo) GetByID(_ context.Context, id string) (*graduation.Graduation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.graduations[id]
	if !ok {
		return nil, shared.ErrGraduationNotFound
	}
	return g.Clone(), nil
}

func (r *memGraduationRepo) GetByExamAndStudent(_ context.Context, examID shared.ExamID, studentID shared.StudentID) (*graduation.Graduation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, g := range r.graduations {
		if g.ExamID == examID && g.StudentID == studentID && g.State != graduation.StateCancelled {
			return g.Clone(), nil
		}
	}
	return nil, shared.ErrGraduationNotFound
}

func (r *memGraduationRepo) Update(_ context.Context, g *graduation.Graduation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.graduations[g.ID]; !ok {
		return shared.ErrGraduationNotFound
	}
	r.graduations[g.ID] = g.Clone()
	return nil
}

func (r *memGraduationRepo) ExistsForCandidate(ctx context.Context, examID shared.ExamID, studentID shared.StudentID) (bool, error) {
	_, err := r.GetByExamAndStudent(ctx, examID, studentID)
	return err == nil, nil
}

func (r *memGraduationRepo) GetByStudent(_ context.Context, studentID shared.StudentID) ([]*graduation.Graduation, error) {
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

func (r *memGraduationRepo) FindUnapplied(_ context.Context, limit int) ([]*graduation.Graduation, error) {
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

func (r *memGraduationRepo) CertificateNumberExists(_ context.Context, number string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, g := range r.graduations {
		if g.Certificate != nil && g.Certificate.Number == number {
			return true, nil
		}
	}
	return false, nil
}

type stubEvaluator struct {
	result exam.EligibilityResult
	err    error
}

func (e *stubEvaluator) Evaluate(_ context.Context, _ shared.StudentID, _ *exam.Exam) (exam.EligibilityResult, error) {
	return e.result, e.err
}

func eligibleSnapshot() exam.EligibilityResult {
	return exam.EligibilityResult{
		Attendance:  exam.AttendanceCheck{Ratio: 95, MeetsMin: true},
		Tenure:      exam.TenureCheck{Days: 200, MeetsMin: true},
		Payment:     exam.PaymentCheck{MeetsRequirement: true},
		EvaluatedAt: time.Now().UTC(),
	}
}

func ineligibleSnapshot() exam.EligibilityResult {
	return exam.EligibilityResult{
		Attendance:  exam.AttendanceCheck{Ratio: 40, MeetsMin: false, Reason: "attendance 40.00% is below required 80.00%"},
		Tenure:      exam.TenureCheck{Days: 200, MeetsMin: true},
		Payment:     exam.PaymentCheck{MeetsRequirement: true},
		EvaluatedAt: time.Now().UTC(),
	}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.Event
}

func (p *recordingPublisher) Publish(event shared.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types() []shared.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]shared.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventType())
	}
	return out
}

// makeExam stores a scheduled graduation exam testing blanco→amarillo.
func makeExam(t *testing.T, repo *memExamRepo) *exam.Exam {
	t.Helper()
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
			MinAttendancePercent: 80,
			MinDaysSinceBelt:     90,
			PaymentMustBeCurrent: true,
			CurrentBeltRequired:  shared.BeltBlanco,
			FeeCents:             50000,
		},
		Instructors: []shared.StaffID{"staff:sabonim"},
		ScheduledAt: time.Date(2026, 9, 15, 10, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.NoError(t, repo.Create(context.Background(), ex))
	return ex
}

// makeStudent stores an active blanco-belt student.
func makeStudent(t *testing.T, repo *memStudentRepo) *student.Student {
	t.Helper()
	s, err := student.NewStudent(student.NewStudentParams{
		ID:          shared.StudentID(uuid.NewString()),
		DisplayName: "Ana Torres",
		BeltLevel:   shared.BeltBlanco,
	})
	require.NoError(t, err)
	repo.mu.Lock()
	repo.students[s.ID] = s
	repo.mu.Unlock()
	return s
}
