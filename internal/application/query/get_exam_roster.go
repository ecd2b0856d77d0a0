package query

import (
	"context"
	"time"

	"github.com/dojang-hub/dojang-exam-hub/internal/domain/exam"
	"github.com/dojang-hub/dojang-exam-hub/internal/domain/grade"
	"github.com/dojang-hub/dojang-exam-hub/internal/domain/shared"
	"github.com/dojang-hub/dojang-exam-hub/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET EXAM ROSTER QUERY
// Собирает полный состав экзамена: кандидаты, статус оплаты и оценки.
// ══════════════════════════════════════════════════════════════════════════════

// GetExamRosterQuery содержит параметры запроса состава экзамена.
type GetExamRosterQuery struct {
	ExamID shared.ExamID

	// IncludeGrades - подгружать итоговые оценки кандидатов.
	IncludeGrades bool
}

// Validate проверяет корректность параметров запроса.
func (q GetExamRosterQuery) Validate() error {
	if !q.ExamID.IsValid() {
		return shared.NewDomainError("query", "GetExamRoster", shared.ErrInvalidInput,
			"exam_id must be a valid UUID")
	}
	return nil
}

// RosterEntry - одна строка состава: кандидат плюс сводка по нему.
type RosterEntry struct {
	StudentID    shared.StudentID `json:"student_id"`
	DisplayName  string           `json:"display_name"`
	BeltLevel    shared.BeltRank  `json:"belt_level"`
	EnrolledAt   time.Time        `json:"enrolled_at"`
	FeeWaived    bool             `json:"fee_waived"`
	PaymentDone  bool             `json:"payment_done"`
	OutstandingC int64            `json:"outstanding_cents"`
	Eligible     bool             `json:"eligible"`
	Graded       bool             `json:"graded"`
	Passed       bool             `json:"passed"`
	FinalScore   *float64         `json:"final_score,omitempty"`
	GradeState   string           `json:"grade_state,omitempty"`
}

// RosterResult - результат запроса состава.
type RosterResult struct {
	ExamID     shared.ExamID `json:"exam_id"`
	ExamName   string        `json:"exam_name"`
	ExamStatus exam.Status   `json:"exam_status"`
	TargetBelt string        `json:"target_belt,omitempty"`
	Entries    []RosterEntry `json:"entries"`
}

// GetExamRosterHandler обрабатывает GetExamRosterQuery.
type GetExamRosterHandler struct {
	examRepo    exam.Repository
	studentRepo student.Repository
	gradeRepo   grade.Repository
}

// NewGetExamRosterHandler создаёт новый GetExamRosterHandler.
func NewGetExamRosterHandler(
	examRepo exam.Repository,
	studentRepo student.Repository,
	gradeRepo grade.Repository,
) *GetExamRosterHandler {
	return &GetExamRosterHandler{
		examRepo:    examRepo,
		studentRepo: studentRepo,
		gradeRepo:   gradeRepo,
	}
}

// Handle выполняет запрос состава экзамена.
//
// Имена и пояса подтягиваются пакетной выборкой; кандидаты, чьи профили
// не нашлись, остаются в составе с пустым именем.
func (h *GetExamRosterHandler) Handle(ctx context.Context, q GetExamRosterQuery) (*RosterResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	ex, err := h.examRepo.GetByID(ctx, q.ExamID)
	if err != nil {
		return nil, err
	}

	ids := make([]shared.StudentID, 0, len(ex.Candidates))
	for _, c := range ex.Candidates {
		ids = append(ids, c.StudentID)
	}

	profiles := make(map[shared.StudentID]*student.Student, len(ids))
	if len(ids) > 0 {
		students, err := h.studentRepo.GetByIDs(ctx, ids)
		if err != nil {
			return nil, shared.WrapError("query", "GetExamRoster", shared.ErrInternal, "failed to load candidate profiles", err)
		}
		for _, s := range students {
			profiles[s.ID] = s
		}
	}

	var grades map[shared.StudentID]*grade.Grade
	if q.IncludeGrades {
		list, err := h.gradeRepo.GetByExam(ctx, ex.ID)
		if err != nil {
			return nil, shared.WrapError("query", "GetExamRoster", shared.ErrInternal, "failed to load grades", err)
		}
		grades = make(map[shared.StudentID]*grade.Grade, len(list))
		for _, g := range list {
			grades[g.StudentID] = g
		}
	}

	result := &RosterResult{
		ExamID:     ex.ID,
		ExamName:   ex.Name,
		ExamStatus: ex.Status,
		TargetBelt: string(ex.TargetBeltRank),
		Entries:    make([]RosterEntry, 0, len(ex.Candidates)),
	}

	for _, c := range ex.SortedCandidates() {
		entry := RosterEntry{
			StudentID:    c.StudentID,
			EnrolledAt:   c.EnrolledAt,
			FeeWaived:    c.Waiver.Waived,
			PaymentDone:  c.PaymentSettled(),
			OutstandingC: int64(c.Payment.Outstanding()),
			Eligible:     c.Eligibility.Eligible(),
			Graded:       c.Graded,
			Passed:       c.Passed,
		}
		if s, ok := profiles[c.StudentID]; ok {
			entry.DisplayName = s.DisplayName
			entry.BeltLevel = s.Belt.Level
		}
		if g, ok := grades[c.StudentID]; ok {
			score := float64(g.FinalScore)
			entry.FinalScore = &score
			entry.GradeState = string(g.State)
		}
		result.Entries = append(result.Entries, entry)
	}

	return result, nil
}
