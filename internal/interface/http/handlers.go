package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/dojang-hub/dojang-exam-hub/internal/application/command"
	"github.com/dojang-hub/dojang-exam-hub/internal/application/query"
	"github.com/dojang-hub/dojang-exam-hub/internal/application/saga"
	"github.com/dojang-hub/dojang-exam-hub/internal/domain/exam"
	"github.com/dojang-hub/dojang-exam-hub/internal/domain/shared"
	"github.com/dojang-hub/dojang-exam-hub/pkg/logger"
	"github.com/dojang-hub/dojang-exam-hub/pkg/timeutil"
)

// validate is the shared request validator. Struct tags on the request DTOs
// describe the transport-level rules; domain rules live in the command
// Validate methods and are reported through writeDomainError.
var validate = validator.New()

// decodeJSON decodes and validates a request body into dst.
func decodeJSON(r *http.Request, dst interface{}) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return fmt.Errorf("reading request body: %w", err)
	}
	defer r.Body.Close()

	if len(body) == 0 {
		return fmt.Errorf("request body is empty")
	}

	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("validation failed: %s", strings.Join(fields, ", "))
		}
		return err
	}

	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleRoot serves the root endpoint with basic API information.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	info := map[string]interface{}{
		"name":        "Dojang Exam Hub API",
		"version":     "v1",
		"description": "REST API for belt examinations, grading and graduations",
		"endpoints": map[string]string{
			"health":      "/health",
			"exams":       "/api/v1/exams",
			"grades":      "/api/v1/grades/{id}",
			"graduations": "/api/v1/students/{id}/graduations",
		},
	}

	writeJSON(w, http.StatusOK, info)
}

// handleHealth handles the health check endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		status := s.deps.HealthChecker.Check(r.Context())
		if !status.Healthy {
			writeJSON(w, http.StatusServiceUnavailable, status)
			return
		}
		writeJSON(w, http.StatusOK, status)
		return
	}

	// Default health response
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"uptime":  s.Uptime().String(),
		"version": "v1",
	})
}

// handleReady handles the readiness probe endpoint (for Kubernetes).
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		status := s.deps.HealthChecker.Check(r.Context())
		if !status.Ready {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not_ready",
				"reason": status.Message,
			})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleLive handles the liveness probe endpoint (for Kubernetes).
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// ══════════════════════════════════════════════════════════════════════════════
// EXAM HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

type categoryRequest struct {
	Name   string  `json:"name" validate:"required"`
	Weight float64 `json:"weight" validate:"gt=0,lte=100"`
}

type createExamRequest struct {
	Name                 string            `json:"name" validate:"required,max=200"`
	Type                 string            `json:"type" validate:"required,oneof=graduation evaluation"`
	TargetBeltRank       string            `json:"target_belt_rank"`
	MinPassingScore      float64           `json:"min_passing_score" validate:"gte=0,lte=100"`
	Categories           []categoryRequest `json:"categories" validate:"required,min=1,dive"`
	MinAttendancePercent float64           `json:"min_attendance_percent" validate:"gte=0,lte=100"`
	MinDaysSinceBelt     int               `json:"min_days_since_belt" validate:"gte=0"`
	PaymentMustBeCurrent bool              `json:"payment_must_be_current"`
	CurrentBeltRequired  string            `json:"current_belt_required"`
	FeeCents             int64             `json:"fee_cents" validate:"gte=0"`
	Instructors          []string          `json:"instructors"`
	ScheduledAt          time.Time         `json:"scheduled_at" validate:"required"`
}

// handleCreateExam handles POST /api/v1/exams
func (s *Server) handleCreateExam(w http.ResponseWriter, r *http.Request) {
	if s.deps.CreateExamHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Exam handler not configured")
		return
	}

	var req createExamRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	cmd := command.CreateExamCommand{
		Name:                 req.Name,
		Type:                 req.Type,
		TargetBeltRank:       req.TargetBeltRank,
		MinPassingScore:      req.MinPassingScore,
		MinAttendancePercent: req.MinAttendancePercent,
		MinDaysSinceBelt:     req.MinDaysSinceBelt,
		PaymentMustBeCurrent: req.PaymentMustBeCurrent,
		CurrentBeltRequired:  req.CurrentBeltRequired,
		FeeCents:             req.FeeCents,
		Instructors:          req.Instructors,
		ScheduledAt:          req.ScheduledAt,
	}
	for _, c := range req.Categories {
		cmd.Categories = append(cmd.Categories, command.CategoryInput{Name: c.Name, Weight: c.Weight})
	}

	result, err := s.deps.CreateExamHandler.Handle(r.Context(), cmd)
	if err != nil {
		s.logger.Error("failed to create exam", logger.Err(err), logger.String("request_id", getRequestID(r.Context())))
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

// examSummary is the list representation of an exam.
type examSummary struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Type           string    `json:"type"`
	TargetBeltRank string    `json:"target_belt_rank,omitempty"`
	Status         string    `json:"status"`
	CandidateCount int       `json:"candidate_count"`
	ScheduledAt    time.Time `json:"scheduled_at"`
	ScheduledDate  string    `json:"scheduled_date"`
}

// handleListExams handles GET /api/v1/exams
func (s *Server) handleListExams(w http.ResponseWriter, r *http.Request) {
	if s.deps.ListExamsHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Exam handler not configured")
		return
	}

	q := query.ListExamsQuery{
		Status:           getQueryParam(r, "status", ""),
		IncludeCancelled: getQueryParamBool(r, "include_cancelled"),
		Limit:            getQueryParamInt(r, "limit", 50),
		Offset:           getQueryParamInt(r, "offset", 0),
	}

	exams, err := s.deps.ListExamsHandler.Handle(r.Context(), q)
	if err != nil {
		s.logger.Error("failed to list exams", logger.Err(err))
		writeDomainError(w, err)
		return
	}

	summaries := make([]examSummary, 0, len(exams))
	for _, e := range exams {
		summaries = append(summaries, examSummary{
			ID:             string(e.ID),
			Name:           e.Name,
			Type:           string(e.Type),
			TargetBeltRank: string(e.TargetBeltRank),
			Status:         string(e.Status),
			CandidateCount: len(e.Candidates),
			ScheduledAt:    e.ScheduledAt,
			ScheduledDate:  timeutil.FormatDateStr(e.ScheduledAt),
		})
	}

	meta := &ResponseMeta{
		TotalCount: len(summaries),
		PageSize:   q.Limit,
		HasMore:    len(summaries) == q.Limit,
	}

	writeJSONWithMeta(w, r, http.StatusOK, summaries, meta)
}

type manageExamRequest struct {
	Action string `json:"action" validate:"required,oneof=start complete cancel"`
}

// handleManageExam handles POST /api/v1/exams/{id}/actions
func (s *Server) handleManageExam(w http.ResponseWriter, r *http.Request) {
	examID := r.PathValue("id")
	if examID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Exam ID is required")
		return
	}

	if s.deps.ManageExamHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Exam handler not configured")
		return
	}

	var req manageExamRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	result, err := s.deps.ManageExamHandler.Handle(r.Context(), command.ManageExamCommand{
		ExamID:        examID,
		Action:        command.ExamAction(req.Action),
		CorrelationID: getRequestID(r.Context()),
	})
	if err != nil {
		s.logger.Error("failed to manage exam", logger.Err(err), logger.ExamID(examID))
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleGetRoster handles GET /api/v1/exams/{id}/roster
func (s *Server) handleGetRoster(w http.ResponseWriter, r *http.Request) {
	examID := r.PathValue("id")
	if examID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Exam ID is required")
		return
	}

	if s.deps.GetExamRosterHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Roster handler not configured")
		return
	}

	q := query.GetExamRosterQuery{
		ExamID:        shared.ExamID(examID),
		IncludeGrades: getQueryParamBool(r, "include_grades"),
	}

	result, err := s.deps.GetExamRosterHandler.Handle(r.Context(), q)
	if err != nil {
		s.logger.Error("failed to get roster", logger.Err(err), logger.ExamID(examID))
		writeDomainError(w, err)
		return
	}

	meta := &ResponseMeta{TotalCount: len(result.Entries)}
	writeJSONWithMeta(w, r, http.StatusOK, result, meta)
}

// ══════════════════════════════════════════════════════════════════════════════
// ENROLLMENT & PAYMENT HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

type enrollRequest struct {
	StudentID       string  `json:"student_id" validate:"required"`
	DiscountPercent float64 `json:"discount_percent" validate:"gte=0,lte=100"`
	WaivePayment    bool    `json:"waive_payment"`
	WaivedBy        string  `json:"waived_by" validate:"required_if=WaivePayment true"`
	WaiverReason    string  `json:"waiver_reason"`
	Policy          string  `json:"policy" validate:"omitempty,oneof=advisory strict"`
}

// handleEnroll handles POST /api/v1/exams/{id}/candidates
func (s *Server) handleEnroll(w http.ResponseWriter, r *http.Request) {
	examID := r.PathValue("id")
	if examID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Exam ID is required")
		return
	}

	if s.deps.EnrollCandidateHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Enrollment handler not configured")
		return
	}

	var req enrollRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	policy := s.deps.DefaultEnrollPolicy
	if req.Policy != "" {
		policy = command.EnrollmentPolicy(req.Policy)
	}
	if policy == "" {
		policy = command.PolicyAdvisory
	}

	result, err := s.deps.EnrollCandidateHandler.Handle(r.Context(), command.EnrollCandidateCommand{
		ExamID:          examID,
		StudentID:       req.StudentID,
		DiscountPercent: req.DiscountPercent,
		WaivePayment:    req.WaivePayment,
		WaivedBy:        req.WaivedBy,
		WaiverReason:    req.WaiverReason,
		Policy:          policy,
		CorrelationID:   getRequestID(r.Context()),
	})
	if err != nil {
		s.logger.Error("failed to enroll candidate", logger.Err(err),
			logger.ExamID(examID), logger.StudentID(req.StudentID))
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

// handleUnenroll handles DELETE /api/v1/exams/{id}/candidates/{studentID}
func (s *Server) handleUnenroll(w http.ResponseWriter, r *http.Request) {
	examID := r.PathValue("id")
	studentID := r.PathValue("studentID")
	if examID == "" || studentID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Exam ID and Student ID are required")
		return
	}

	if s.deps.UnenrollCandidateHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Enrollment handler not configured")
		return
	}

	result, err := s.deps.UnenrollCandidateHandler.Handle(r.Context(), command.UnenrollCandidateCommand{
		ExamID:        examID,
		StudentID:     studentID,
		CorrelationID: getRequestID(r.Context()),
	})
	if err != nil {
		s.logger.Error("failed to unenroll candidate", logger.Err(err),
			logger.ExamID(examID), logger.StudentID(studentID))
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

type paymentRequest struct {
	AmountCents int64     `json:"amount_cents" validate:"gt=0"`
	Reference   string    `json:"reference"`
	PaidAt      time.Time `json:"paid_at"`
}

// handleRecordPayment handles POST /api/v1/exams/{id}/candidates/{studentID}/payments
func (s *Server) handleRecordPayment(w http.ResponseWriter, r *http.Request) {
	examID := r.PathValue("id")
	studentID := r.PathValue("studentID")
	if examID == "" || studentID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Exam ID and Student ID are required")
		return
	}

	if s.deps.RecordPaymentHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Payment handler not configured")
		return
	}

	var req paymentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	paidAt := req.PaidAt
	if paidAt.IsZero() {
		paidAt = time.Now().UTC()
	}

	result, err := s.deps.RecordPaymentHandler.Handle(r.Context(), command.RecordPaymentCommand{
		ExamID:        examID,
		StudentID:     studentID,
		AmountCents:   req.AmountCents,
		Reference:     req.Reference,
		PaidAt:        paidAt,
		CorrelationID: getRequestID(r.Context()),
	})
	if err != nil {
		s.logger.Error("failed to record payment", logger.Err(err),
			logger.ExamID(examID), logger.StudentID(studentID))
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// eligibilityResponse augments the eligibility snapshot with the overall verdict.
type eligibilityResponse struct {
	StudentID string                 `json:"student_id"`
	ExamID    string                 `json:"exam_id"`
	Eligible  bool                   `json:"eligible"`
	Reasons   []string               `json:"reasons,omitempty"`
	Checks    exam.EligibilityResult `json:"checks"`
}

// handleGetEligibility handles GET /api/v1/exams/{id}/candidates/{studentID}/eligibility
func (s *Server) handleGetEligibility(w http.ResponseWriter, r *http.Request) {
	examID := r.PathValue("id")
	studentID := r.PathValue("studentID")
	if examID == "" || studentID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Exam ID and Student ID are required")
		return
	}

	if s.deps.GetEligibilityHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Eligibility handler not configured")
		return
	}

	q := query.GetEligibilityQuery{
		StudentID:   shared.StudentID(studentID),
		ExamID:      shared.ExamID(examID),
		BypassCache: getQueryParamBool(r, "fresh"),
	}

	result, err := s.deps.GetEligibilityHandler.Handle(r.Context(), q)
	if err != nil {
		s.logger.Error("failed to evaluate eligibility", logger.Err(err),
			logger.ExamID(examID), logger.StudentID(studentID))
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, eligibilityResponse{
		StudentID: studentID,
		ExamID:    examID,
		Eligible:  result.Eligible(),
		Reasons:   result.Reasons(),
		Checks:    result,
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// GRADING HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

type categoryScoreRequest struct {
	Category string  `json:"category" validate:"required"`
	Score    float64 `json:"score" validate:"gte=0,lte=100"`
	Notes    string  `json:"notes"`
}

type finalizeGradeRequest struct {
	Scores   []categoryScoreRequest `json:"scores" validate:"required,min=1,dive"`
	GradedBy string                 `json:"graded_by" validate:"required"`
}

// handleFinalizeGrade handles POST /api/v1/exams/{id}/candidates/{studentID}/grade
func (s *Server) handleFinalizeGrade(w http.ResponseWriter, r *http.Request) {
	examID := r.PathValue("id")
	studentID := r.PathValue("studentID")
	if examID == "" || studentID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Exam ID and Student ID are required")
		return
	}

	if s.deps.FinalizeGradeHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Grading handler not configured")
		return
	}

	var req finalizeGradeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	cmd := command.FinalizeGradeCommand{
		ExamID:        examID,
		StudentID:     studentID,
		GradedBy:      req.GradedBy,
		CorrelationID: getRequestID(r.Context()),
	}
	for _, sc := range req.Scores {
		cmd.Scores = append(cmd.Scores, command.CategoryScoreInput{
			Category: sc.Category,
			Score:    sc.Score,
			Notes:    sc.Notes,
		})
	}

	result, err := s.deps.FinalizeGradeHandler.Handle(r.Context(), cmd)
	if err != nil {
		s.logger.Error("failed to finalize grade", logger.Err(err),
			logger.ExamID(examID), logger.StudentID(studentID))
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

// handleGetGrade handles GET /api/v1/grades/{id}
func (s *Server) handleGetGrade(w http.ResponseWriter, r *http.Request) {
	gradeID := r.PathValue("id")
	if gradeID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Grade ID is required")
		return
	}

	if s.deps.GetGradeHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Grade handler not configured")
		return
	}

	g, err := s.deps.GetGradeHandler.Handle(r.Context(), query.GetGradeQuery{GradeID: gradeID})
	if err != nil {
		s.logger.Error("failed to get grade", logger.Err(err), logger.GradeID(gradeID))
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, g)
}

type reviewGradeRequest struct {
	ReviewedBy string `json:"reviewed_by" validate:"required"`
}

// handleReviewGrade handles POST /api/v1/grades/{id}/review
func (s *Server) handleReviewGrade(w http.ResponseWriter, r *http.Request) {
	gradeID := r.PathValue("id")
	if gradeID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Grade ID is required")
		return
	}

	if s.deps.ReviewGradeHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Grade handler not configured")
		return
	}

	var req reviewGradeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	result, err := s.deps.ReviewGradeHandler.Handle(r.Context(), command.ReviewGradeCommand{
		GradeID:    gradeID,
		ReviewedBy: req.ReviewedBy,
	})
	if err != nil {
		s.logger.Error("failed to review grade", logger.Err(err), logger.GradeID(gradeID))
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// ══════════════════════════════════════════════════════════════════════════════
// GRADUATION HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

type processBatchRequest struct {
	// ApprovedBy is required unless LeavePending is set; the processor
	// enforces the pairing.
	ApprovedBy string `json:"approved_by"`
	// Requests scopes the batch to specific candidates; empty means the
	// exam's full roster.
	Requests []batchRequestItem `json:"requests" validate:"dive"`
	// LeavePending defers the belt cascade to a manual approval.
	LeavePending bool      `json:"leave_pending"`
	Date         time.Time `json:"date"`
}

type batchRequestItem struct {
	StudentID string `json:"student_id" validate:"required"`
	GradeID   string `json:"grade_id"`
}

// batchResponse is the transport view of a graduation batch run.
type batchResponse struct {
	ExamID      string         `json:"exam_id"`
	Succeeded   []batchOutcome `json:"succeeded"`
	Failed      []batchFailure `json:"failed"`
	ProcessedAt time.Time      `json:"processed_at"`
}

type batchOutcome struct {
	StudentID      string `json:"student_id"`
	GraduationID   string `json:"graduation_id"`
	State          string `json:"state"`
	PreviousBelt   string `json:"previous_belt"`
	CascadeApplied bool   `json:"cascade_applied"`
}

type batchFailure struct {
	StudentID string `json:"student_id"`
	Reason    string `json:"reason"`
}

// handleProcessBatch handles POST /api/v1/exams/{id}/graduations
func (s *Server) handleProcessBatch(w http.ResponseWriter, r *http.Request) {
	examID := r.PathValue("id")
	if examID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Exam ID is required")
		return
	}

	if s.deps.GraduationProcessor == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Graduation processor not configured")
		return
	}

	var req processBatchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	date := req.Date
	if date.IsZero() {
		date = timeutil.Now()
	}

	requests := make([]saga.BatchRequest, 0, len(req.Requests))
	for _, item := range req.Requests {
		requests = append(requests, saga.BatchRequest{
			StudentID: item.StudentID,
			GradeID:   item.GradeID,
		})
	}

	result, err := s.deps.GraduationProcessor.ProcessBatch(r.Context(), saga.BatchInput{
		ExamID:        examID,
		Requests:      requests,
		ApprovedBy:    req.ApprovedBy,
		LeavePending:  req.LeavePending || s.deps.BatchManualApproval,
		Date:          date,
		CorrelationID: getRequestID(r.Context()),
	})
	if err != nil {
		s.logger.Error("failed to process graduation batch", logger.Err(err), logger.ExamID(examID))
		writeDomainError(w, err)
		return
	}

	resp := batchResponse{
		ExamID:      result.ExamID,
		Succeeded:   make([]batchOutcome, 0, len(result.Succeeded)),
		Failed:      make([]batchFailure, 0, len(result.Failed)),
		ProcessedAt: result.ProcessedAt,
	}
	for _, o := range result.Succeeded {
		resp.Succeeded = append(resp.Succeeded, batchOutcome{
			StudentID:      o.StudentID,
			GraduationID:   o.GraduationID,
			State:          string(o.State),
			PreviousBelt:   o.PreviousBelt,
			CascadeApplied: o.CascadeApplied,
		})
	}
	for _, f := range result.Failed {
		resp.Failed = append(resp.Failed, batchFailure{StudentID: f.StudentID, Reason: f.Reason})
	}

	// Per-candidate failures do not fail the batch; 207 signals a mixed outcome.
	status := http.StatusOK
	if len(resp.Failed) > 0 {
		status = http.StatusMultiStatus
	}

	writeJSON(w, status, resp)
}

type approveGraduationRequest struct {
	ApprovedBy string `json:"approved_by" validate:"required"`
}

// handleApproveGraduation handles POST /api/v1/graduations/{id}/approve
func (s *Server) handleApproveGraduation(w http.ResponseWriter, r *http.Request) {
	graduationID := r.PathValue("id")
	if graduationID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Graduation ID is required")
		return
	}

	if s.deps.ApproveGraduationHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Graduation handler not configured")
		return
	}

	var req approveGraduationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	result, err := s.deps.ApproveGraduationHandler.Handle(r.Context(), command.ApproveGraduationCommand{
		GraduationID:  graduationID,
		ApprovedBy:    req.ApprovedBy,
		CorrelationID: getRequestID(r.Context()),
	})
	if err != nil {
		s.logger.Error("failed to approve graduation", logger.Err(err), logger.GraduationID(graduationID))
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

type certifyGraduationRequest struct {
	CertificateNumber string    `json:"certificate_number"`
	FileRef           string    `json:"file_ref" validate:"required"`
	FileType          string    `json:"file_type" validate:"required,oneof=pdf png jpg"`
	IssuedAt          time.Time `json:"issued_at"`
}

// handleCertifyGraduation handles POST /api/v1/graduations/{id}/certify
func (s *Server) handleCertifyGraduation(w http.ResponseWriter, r *http.Request) {
	graduationID := r.PathValue("id")
	if graduationID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Graduation ID is required")
		return
	}

	if s.deps.CertifyGraduationHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Graduation handler not configured")
		return
	}

	var req certifyGraduationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	issuedAt := req.IssuedAt
	if issuedAt.IsZero() {
		issuedAt = time.Now().UTC()
	}

	result, err := s.deps.CertifyGraduationHandler.Handle(r.Context(), command.CertifyGraduationCommand{
		GraduationID:      graduationID,
		CertificateNumber: req.CertificateNumber,
		FileRef:           req.FileRef,
		FileType:          req.FileType,
		IssuedAt:          issuedAt,
		CorrelationID:     getRequestID(r.Context()),
	})
	if err != nil {
		s.logger.Error("failed to certify graduation", logger.Err(err), logger.GraduationID(graduationID))
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

type cancelGraduationRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// handleCancelGraduation handles POST /api/v1/graduations/{id}/cancel
func (s *Server) handleCancelGraduation(w http.ResponseWriter, r *http.Request) {
	graduationID := r.PathValue("id")
	if graduationID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Graduation ID is required")
		return
	}

	if s.deps.CancelGraduationHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Graduation handler not configured")
		return
	}

	var req cancelGraduationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	result, err := s.deps.CancelGraduationHandler.Handle(r.Context(), command.CancelGraduationCommand{
		GraduationID:  graduationID,
		Reason:        req.Reason,
		CorrelationID: getRequestID(r.Context()),
	})
	if err != nil {
		s.logger.Error("failed to cancel graduation", logger.Err(err), logger.GraduationID(graduationID))
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// graduationView is the transport representation of a graduation record.
type graduationView struct {
	ID                string     `json:"id"`
	ExamID            string     `json:"exam_id"`
	StudentID         string     `json:"student_id"`
	PreviousBelt      string     `json:"previous_belt"`
	NewBelt           string     `json:"new_belt"`
	Date              time.Time  `json:"date"`
	DateFormatted     string     `json:"date_formatted"`
	State             string     `json:"state"`
	CertificateNumber string     `json:"certificate_number,omitempty"`
	CertificateDate   string     `json:"certificate_date,omitempty"`
	ApprovedBy        string     `json:"approved_by,omitempty"`
	ApprovedAt        *time.Time `json:"approved_at,omitempty"`
}

// handleGetStudentGraduations handles GET /api/v1/students/{id}/graduations
func (s *Server) handleGetStudentGraduations(w http.ResponseWriter, r *http.Request) {
	studentID := r.PathValue("id")
	if studentID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Student ID is required")
		return
	}

	if s.deps.GetStudentGraduationsHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Graduation handler not configured")
		return
	}

	graduations, err := s.deps.GetStudentGraduationsHandler.Handle(r.Context(), query.GetStudentGraduationsQuery{
		StudentID: shared.StudentID(studentID),
	})
	if err != nil {
		s.logger.Error("failed to get graduations", logger.Err(err), logger.StudentID(studentID))
		writeDomainError(w, err)
		return
	}

	views := make([]graduationView, 0, len(graduations))
	for _, g := range graduations {
		view := graduationView{
			ID:            g.ID,
			ExamID:        string(g.ExamID),
			StudentID:     string(g.StudentID),
			PreviousBelt:  string(g.PreviousBelt),
			NewBelt:       string(g.NewBelt),
			Date:          g.Date,
			DateFormatted: timeutil.FormatCertificate(g.Date),
			State:         string(g.State),
			ApprovedBy:    string(g.ApprovedBy),
		}
		if !g.ApprovedAt.IsZero() {
			at := g.ApprovedAt
			view.ApprovedAt = &at
		}
		if g.Certificate != nil {
			view.CertificateNumber = g.Certificate.Number
			view.CertificateDate = timeutil.FormatDateStr(g.Certificate.IssuedAt)
		}
		views = append(views, view)
	}

	meta := &ResponseMeta{TotalCount: len(views)}
	writeJSONWithMeta(w, r, http.StatusOK, views, meta)
}
