package query

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dojang-hub/dojang-exam-hub/internal/domain/exam"
	"github.com/dojang-hub/dojang-exam-hub/internal/domain/shared"
	"github.com/dojang-hub/dojang-exam-hub/internal/domain/student"
)

const (
	testStudentID = shared.StudentID("bbbbbbbb-bbbb-bbbb-bbbb-bbbbbbbbbbbb")
	testExamID    = shared.ExamID("aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa")
)

var testNow = time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

// ──────────────────────────────────────────────────────────────────────────────
// fakes
// ──────────────────────────────────────────────────────────────────────────────

type stubStudentRepo struct {
	students map[shared.StudentID]*student.Student
}

func (r *stubStudentRepo) GetByID(_ context.Context, id shared.StudentID) (*student.Student, error) {
	s, ok := r.students[id]
	if !ok {
		return nil, shared.ErrStudentNotFound
	}
	return s, nil
}

func (r *stubStudentRepo) GetByIDs(_ context.Context, ids []shared.StudentID) ([]*student.Student, error) {
	var out []*student.Student
	for _, id := range ids {
		if s, ok := r.students[id]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *stubStudentRepo) Update(_ context.Context, s *student.Student) error {
	r.students[s.ID] = s
	return nil
}

func (r *stubStudentRepo) Exists(_ context.Context, id shared.StudentID) (bool, error) {
	_, ok := r.students[id]
	return ok, nil
}

type stubAttendanceLog struct {
	total   int
	present int
	err     error
}

func (l *stubAttendanceLog) GetByStudent(_ context.Context, _ shared.StudentID) ([]student.AttendanceRecord, error) {
	return nil, l.err
}

func (l *stubAttendanceLog) CountByStatus(_ context.Context, _ shared.StudentID, status student.AttendanceStatus) (int, error) {
	if l.err != nil {
		return 0, l.err
	}
	if status == "" {
		return l.total, nil
	}
	if status == student.AttendancePresent {
		return l.present, nil
	}
	return l.total - l.present, nil
}

func (l *stubAttendanceLog) GetByStudentSince(_ context.Context, _ shared.StudentID, _ time.Time) ([]student.AttendanceRecord, error) {
	return nil, l.err
}

type stubPaymentLedger struct {
	delinquent int
	err        error
}

func (l *stubPaymentLedger) GetByStudent(_ context.Context, _ shared.StudentID) ([]student.PaymentRecord, error) {
	return nil, l.err
}

func (l *stubPaymentLedger) CountDelinquent(_ context.Context, _ shared.StudentID) (int, error) {
	if l.err != nil {
		return 0, l.err
	}
	return l.delinquent, nil
}

type stubEligibilityCache struct {
	store   map[string]exam.EligibilityResult
	setKeys []string
}

func cacheKey(studentID shared.StudentID, examID shared.ExamID) string {
	return string(studentID) + "/" + string(examID)
}

func (c *stubEligibilityCache) Get(_ context.Context, studentID shared.StudentID, examID shared.ExamID) (*exam.EligibilityResult, bool, error) {
	r, ok := c.store[cacheKey(studentID, examID)]
	if !ok {
		return nil, false, nil
	}
	return &r, true, nil
}

func (c *stubEligibilityCache) Set(_ context.Context, studentID shared.StudentID, examID shared.ExamID, result exam.EligibilityResult) error {
	key := cacheKey(studentID, examID)
	c.store[key] = result
	c.setKeys = append(c.setKeys, key)
	return nil
}

func (c *stubEligibilityCache) InvalidateStudent(_ context.Context, studentID shared.StudentID) error {
	for key := range c.store {
		if len(key) >= len(studentID) && key[:len(studentID)] == string(studentID) {
			delete(c.store, key)
		}
	}
	return nil
}

type stubExamRepo struct {
	exam *exam.Exam
}

func (r *stubExamRepo) Create(_ context.Context, _ *exam.Exam) error { return nil }

func (r *stubExamRepo) GetByID(_ context.Context, id shared.ExamID) (*exam.Exam, error) {
	if r.exam == nil || r.exam.ID != id {
		return nil, shared.ErrExamNotFound
	}
	return r.exam, nil
}

func (r *stubExamRepo) Save(_ context.Context, _ *exam.Exam) error { return nil }

func (r *stubExamRepo) GetAll(_ context.Context, _ exam.ListOptions) ([]*exam.Exam, error) {
	return nil, nil
}

func (r *stubExamRepo) GetByStatus(_ context.Context, _ exam.Status, _ exam.ListOptions) ([]*exam.Exam, error) {
	return nil, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// fixture
// ──────────────────────────────────────────────────────────────────────────────

func newTestStudent(t *testing.T, beltObtainedAt time.Time) *student.Student {
	t.Helper()
	s, err := student.NewStudent(student.NewStudentParams{
		ID:          testStudentID,
		DisplayName: "Ana Torres",
		BeltLevel:   shared.BeltBlanco,
		JoinedAt:    testNow.AddDate(-1, 0, 0),
	})
	require.NoError(t, err)
	s.Belt.ObtainedAt = beltObtainedAt
	return s
}

func strictExam() *exam.Exam {
	return &exam.Exam{
		ID:     testExamID,
		Type:   exam.TypeGraduation,
		Status: exam.StatusScheduled,
		Requirements: exam.Requirements{
			MinAttendancePercent: 80,
			MinDaysSinceBelt:     90,
			PaymentMustBeCurrent: true,
			CurrentBeltRequired:  shared.BeltBlanco,
		},
	}
}

func newEvaluator(repo *stubStudentRepo, att *stubAttendanceLog, pay *stubPaymentLedger) *EligibilityEvaluator {
	e := NewEligibilityEvaluator(repo, att, pay)
	e.now = func() time.Time { return testNow }
	return e
}

// ──────────────────────────────────────────────────────────────────────────────
// evaluator
// ──────────────────────────────────────────────────────────────────────────────

func TestEligibilityEvaluator_AllSignalsPass(t *testing.T) {
	repo := &stubStudentRepo{students: map[shared.StudentID]*student.Student{
		testStudentID: newTestStudent(t, testNow.AddDate(0, 0, -120)),
	}}
	evaluator := newEvaluator(repo, &stubAttendanceLog{total: 100, present: 90}, &stubPaymentLedger{})

	result, err := evaluator.Evaluate(context.Background(), testStudentID, strictExam())
	require.NoError(t, err)

	assert.True(t, result.Eligible())
	assert.Empty(t, result.Reasons())
	assert.Equal(t, 90.0, result.Attendance.Ratio)
	assert.Equal(t, 120, result.Tenure.Days)
	assert.Equal(t, testNow, result.EvaluatedAt)
}

func TestEligibilityEvaluator_AttendanceBoundaryIsInclusive(t *testing.T) {
	repo := &stubStudentRepo{students: map[shared.StudentID]*student.Student{
		testStudentID: newTestStudent(t, testNow.AddDate(0, 0, -120)),
	}}
	// 80 of 100 = exactly the required 80%.
	evaluator := newEvaluator(repo, &stubAttendanceLog{total: 100, present: 80}, &stubPaymentLedger{})

	result, err := evaluator.Evaluate(context.Background(), testStudentID, strictExam())
	require.NoError(t, err)
	assert.True(t, result.Attendance.MeetsMin)

	evaluator = newEvaluator(repo, &stubAttendanceLog{total: 100, present: 79}, &stubPaymentLedger{})
	result, err = evaluator.Evaluate(context.Background(), testStudentID, strictExam())
	require.NoError(t, err)
	assert.False(t, result.Attendance.MeetsMin)
	assert.Contains(t, result.Attendance.Reason, "below required")
}

func TestEligibilityEvaluator_NoAttendanceRecords(t *testing.T) {
	repo := &stubStudentRepo{students: map[shared.StudentID]*student.Student{
		testStudentID: newTestStudent(t, testNow.AddDate(0, 0, -120)),
	}}
	evaluator := newEvaluator(repo, &stubAttendanceLog{}, &stubPaymentLedger{})

	result, err := evaluator.Evaluate(context.Background(), testStudentID, strictExam())
	require.NoError(t, err)

	// Zero records means a 0% ratio, which fails a positive minimum.
	assert.Equal(t, 0.0, result.Attendance.Ratio)
	assert.False(t, result.Attendance.MeetsMin)
}

func TestEligibilityEvaluator_TenureBoundaryIsInclusive(t *testing.T) {
	repo := &stubStudentRepo{students: map[shared.StudentID]*student.Student{
		testStudentID: newTestStudent(t, testNow.AddDate(0, 0, -90)),
	}}
	evaluator := newEvaluator(repo, &stubAttendanceLog{total: 10, present: 10}, &stubPaymentLedger{})

	result, err := evaluator.Evaluate(context.Background(), testStudentID, strictExam())
	require.NoError(t, err)
	assert.Equal(t, 90, result.Tenure.Days)
	assert.True(t, result.Tenure.MeetsMin)

	repo.students[testStudentID] = newTestStudent(t, testNow.AddDate(0, 0, -89))
	result, err = evaluator.Evaluate(context.Background(), testStudentID, strictExam())
	require.NoError(t, err)
	assert.False(t, result.Tenure.MeetsMin)
	assert.Contains(t, result.Tenure.Reason, "90 required")
}

func TestEligibilityEvaluator_TenureFallsBackToJoinDate(t *testing.T) {
	repo := &stubStudentRepo{students: map[shared.StudentID]*student.Student{
		testStudentID: newTestStudent(t, time.Time{}),
	}}
	evaluator := newEvaluator(repo, &stubAttendanceLog{total: 10, present: 10}, &stubPaymentLedger{})

	result, err := evaluator.Evaluate(context.Background(), testStudentID, strictExam())
	require.NoError(t, err)

	// Joined a year ago; without a belt date the join date anchors tenure.
	assert.True(t, result.Tenure.MeetsMin)
	assert.Equal(t, 365, result.Tenure.Days)
}

func TestEligibilityEvaluator_PaymentDelinquency(t *testing.T) {
	repo := &stubStudentRepo{students: map[shared.StudentID]*student.Student{
		testStudentID: newTestStudent(t, testNow.AddDate(0, 0, -120)),
	}}
	evaluator := newEvaluator(repo, &stubAttendanceLog{total: 10, present: 10}, &stubPaymentLedger{delinquent: 2})

	result, err := evaluator.Evaluate(context.Background(), testStudentID, strictExam())
	require.NoError(t, err)

	assert.False(t, result.Payment.MeetsRequirement)
	assert.Equal(t, 2, result.Payment.DelinquentCount)
	assert.Contains(t, result.Reasons(), "2 pending or overdue payment(s)")
}

func TestEligibilityEvaluator_PaymentNotRequired(t *testing.T) {
	repo := &stubStudentRepo{students: map[shared.StudentID]*student.Student{
		testStudentID: newTestStudent(t, testNow.AddDate(0, 0, -120)),
	}}
	evaluator := newEvaluator(repo, &stubAttendanceLog{total: 10, present: 10}, &stubPaymentLedger{delinquent: 5})

	ex := strictExam()
	ex.Requirements.PaymentMustBeCurrent = false

	result, err := evaluator.Evaluate(context.Background(), testStudentID, ex)
	require.NoError(t, err)
	assert.True(t, result.Payment.MeetsRequirement)
}

func TestEligibilityEvaluator_StudentNotFound(t *testing.T) {
	repo := &stubStudentRepo{students: map[shared.StudentID]*student.Student{}}
	evaluator := newEvaluator(repo, &stubAttendanceLog{}, &stubPaymentLedger{})

	_, err := evaluator.Evaluate(context.Background(), testStudentID, strictExam())
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestEligibilityEvaluator_LogFailuresDegradeToNegativeSignals(t *testing.T) {
	repo := &stubStudentRepo{students: map[shared.StudentID]*student.Student{
		testStudentID: newTestStudent(t, testNow.AddDate(0, 0, -120)),
	}}
	evaluator := newEvaluator(repo,
		&stubAttendanceLog{err: errors.New("connection refused")},
		&stubPaymentLedger{err: errors.New("connection refused")})

	result, err := evaluator.Evaluate(context.Background(), testStudentID, strictExam())
	require.NoError(t, err)

	assert.False(t, result.Eligible())
	assert.False(t, result.Attendance.MeetsMin)
	assert.Contains(t, result.Attendance.Reason, "attendance log unavailable")
	assert.False(t, result.Payment.MeetsRequirement)
	assert.Contains(t, result.Payment.Reason, "payment ledger unavailable")
	// Tenure needs no external log and still computes.
	assert.True(t, result.Tenure.MeetsMin)
}

// ──────────────────────────────────────────────────────────────────────────────
// handler
// ──────────────────────────────────────────────────────────────────────────────

func TestGetEligibilityHandler_CachesResult(t *testing.T) {
	repo := &stubStudentRepo{students: map[shared.StudentID]*student.Student{
		testStudentID: newTestStudent(t, testNow.AddDate(0, 0, -120)),
	}}
	evaluator := newEvaluator(repo, &stubAttendanceLog{total: 10, present: 10}, &stubPaymentLedger{})
	cache := &stubEligibilityCache{store: map[string]exam.EligibilityResult{}}
	handler := NewGetEligibilityHandler(&stubExamRepo{exam: strictExam()}, evaluator, cache)

	q := GetEligibilityQuery{StudentID: testStudentID, ExamID: testExamID}

	first, err := handler.Handle(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, cache.setKeys, 1)

	// The second call is served from the cache, not re-evaluated.
	second, err := handler.Handle(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Len(t, cache.setKeys, 1)
}

func TestGetEligibilityHandler_BypassCache(t *testing.T) {
	repo := &stubStudentRepo{students: map[shared.StudentID]*student.Student{
		testStudentID: newTestStudent(t, testNow.AddDate(0, 0, -120)),
	}}
	evaluator := newEvaluator(repo, &stubAttendanceLog{total: 10, present: 10}, &stubPaymentLedger{})
	cache := &stubEligibilityCache{store: map[string]exam.EligibilityResult{}}
	handler := NewGetEligibilityHandler(&stubExamRepo{exam: strictExam()}, evaluator, cache)

	q := GetEligibilityQuery{StudentID: testStudentID, ExamID: testExamID}
	_, err := handler.Handle(context.Background(), q)
	require.NoError(t, err)

	q.BypassCache = true
	_, err = handler.Handle(context.Background(), q)
	require.NoError(t, err)
	assert.Len(t, cache.setKeys, 2)
}

func TestGetEligibilityHandler_NilCache(t *testing.T) {
	repo := &stubStudentRepo{students: map[shared.StudentID]*student.Student{
		testStudentID: newTestStudent(t, testNow.AddDate(0, 0, -120)),
	}}
	evaluator := newEvaluator(repo, &stubAttendanceLog{total: 10, present: 10}, &stubPaymentLedger{})
	handler := NewGetEligibilityHandler(&stubExamRepo{exam: strictExam()}, evaluator, nil)

	result, err := handler.Handle(context.Background(), GetEligibilityQuery{StudentID: testStudentID, ExamID: testExamID})
	require.NoError(t, err)
	assert.True(t, result.Eligible())
}

func TestGetEligibilityHandler_Validation(t *testing.T) {
	handler := NewGetEligibilityHandler(&stubExamRepo{}, nil, nil)

	_, err := handler.Handle(context.Background(), GetEligibilityQuery{StudentID: "nope", ExamID: testExamID})
	assert.ErrorIs(t, err, shared.ErrInvalidStudentID)

	_, err = handler.Handle(context.Background(), GetEligibilityQuery{StudentID: testStudentID, ExamID: "nope"})
	assert.ErrorIs(t, err, shared.ErrInvalidID)
}

func TestGetEligibilityHandler_ExamNotFound(t *testing.T) {
	handler := NewGetEligibilityHandler(&stubExamRepo{}, nil, nil)

	_, err := handler.Handle(context.Background(), GetEligibilityQuery{StudentID: testStudentID, ExamID: testExamID})
	assert.ErrorIs(t, err, shared.ErrExamNotFound)
}

func TestGetEligibilityQuery_Validate(t *testing.T) {
	assert.NoError(t, GetEligibilityQuery{StudentID: testStudentID, ExamID: testExamID}.Validate())
	assert.Error(t, GetEligibilityQuery{ExamID: testExamID}.Validate())
	assert.Error(t, GetEligibilityQuery{StudentID: testStudentID}.Validate())
}
