// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"encoding/json"
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types - these drive the event-driven architecture.
// Each event represents something significant that happened in the workflow.
const (
	// Exam events
	EventExamCreated        EventType = "exam.created"
	EventExamStatusChanged  EventType = "exam.status_changed"
	EventCandidateEnrolled  EventType = "exam.candidate_enrolled"
	EventCandidateWithdrawn EventType = "exam.candidate_withdrawn"
	EventPaymentRecorded    EventType = "exam.payment_recorded"
	EventPaymentWaived      EventType = "exam.payment_waived"

	// Grade events
	EventGradeDrafted   EventType = "grade.drafted"
	EventGradeFinalized EventType = "grade.finalized"
	EventGradeReviewed  EventType = "grade.reviewed"

	// Graduation events
	EventGraduationCreated   EventType = "graduation.created"
	EventBeltPromoted        EventType = "graduation.belt_promoted"
	EventGraduationCertified EventType = "graduation.certified"
	EventGraduationCancelled EventType = "graduation.cancelled"

	// System events
	EventBatchCompleted        EventType = "system.batch_completed"
	EventReconciliationApplied EventType = "system.reconciliation_applied"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now(),
		AggregateId: aggregateID,
		Version:     1,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Exam Events
// ═══════════════════════════════════════════════════════════════════════════

// ExamScheduledEvent is emitted when a new exam is scheduled.
type ExamScheduledEvent struct {
	BaseEvent
	ExamID      string    `json:"exam_id"`
	Name        string    `json:"name"`
	ExamType    string    `json:"exam_type"`
	ScheduledAt time.Time `json:"scheduled_at"`
}

// Payload implements Event interface.
func (e ExamScheduledEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"exam_id":      e.ExamID,
		"name":         e.Name,
		"exam_type":    e.ExamType,
		"scheduled_at": e.ScheduledAt,
	}
}

// NewExamScheduledEvent creates a new ExamScheduledEvent.
func NewExamScheduledEvent(examID, name, examType string, scheduledAt time.Time) ExamScheduledEvent {
	return ExamScheduledEvent{
		BaseEvent:   NewBaseEvent(EventExamCreated, examID),
		ExamID:      examID,
		Name:        name,
		ExamType:    examType,
		ScheduledAt: scheduledAt,
	}
}

// ExamStatusChangedEvent is emitted on exam lifecycle transitions.
type ExamStatusChangedEvent struct {
	BaseEvent
	ExamID    string `json:"exam_id"`
	OldStatus string `json:"old_status"`
	NewStatus string `json:"new_status"`
}

// Payload implements Event interface.
func (e ExamStatusChangedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"exam_id":    e.ExamID,
		"old_status": e.OldStatus,
		"new_status": e.NewStatus,
	}
}

// NewExamStatusChangedEvent creates a new ExamStatusChangedEvent.
func NewExamStatusChangedEvent(examID, oldStatus, newStatus string) ExamStatusChangedEvent {
	return ExamStatusChangedEvent{
		BaseEvent: NewBaseEvent(EventExamStatusChanged, examID),
		ExamID:    examID,
		OldStatus: oldStatus,
		NewStatus: newStatus,
	}
}

// CandidateEnrolledEvent is emitted when a student is enrolled into an exam.
type CandidateEnrolledEvent struct {
	BaseEvent
	ExamID          string  `json:"exam_id"`
	StudentID       string  `json:"student_id"`
	PaymentWaived   bool    `json:"payment_waived"`
	FullyEligible   bool    `json:"fully_eligible"`
	DiscountApplied float64 `json:"discount_applied,omitempty"`
}

// Payload implements Event interface.
func (e CandidateEnrolledEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"exam_id":          e.ExamID,
		"student_id":       e.StudentID,
		"payment_waived":   e.PaymentWaived,
		"fully_eligible":   e.FullyEligible,
		"discount_applied": e.DiscountApplied,
	}
}

// NewCandidateEnrolledEvent creates a new CandidateEnrolledEvent.
func NewCandidateEnrolledEvent(examID, studentID string, waived, eligible bool) CandidateEnrolledEvent {
	return CandidateEnrolledEvent{
		BaseEvent:     NewBaseEvent(EventCandidateEnrolled, examID),
		ExamID:        examID,
		StudentID:     studentID,
		PaymentWaived: waived,
		FullyEligible: eligible,
	}
}

// CandidateWithdrawnEvent is emitted when a candidate is removed from an exam.
type CandidateWithdrawnEvent struct {
	BaseEvent
	ExamID    string `json:"exam_id"`
	StudentID string `json:"student_id"`
}

// Payload implements Event interface.
func (e CandidateWithdrawnEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"exam_id":    e.ExamID,
		"student_id": e.StudentID,
	}
}

// NewCandidateWithdrawnEvent creates a new CandidateWithdrawnEvent.
func NewCandidateWithdrawnEvent(examID, studentID string) CandidateWithdrawnEvent {
	return CandidateWithdrawnEvent{
		BaseEvent: NewBaseEvent(EventCandidateWithdrawn, examID),
		ExamID:    examID,
		StudentID: studentID,
	}
}

// PaymentRecordedEvent is emitted when an exam fee payment is recorded.
type PaymentRecordedEvent struct {
	BaseEvent
	ExamID      string `json:"exam_id"`
	StudentID   string `json:"student_id"`
	AmountCents int64  `json:"amount_cents"`
	Reference   string `json:"reference,omitempty"`
	FullyPaid   bool   `json:"fully_paid"`
}

// Payload implements Event interface.
func (e PaymentRecordedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"exam_id":      e.ExamID,
		"student_id":   e.StudentID,
		"amount_cents": e.AmountCents,
		"reference":    e.Reference,
		"fully_paid":   e.FullyPaid,
	}
}

// NewPaymentRecordedEvent creates a new PaymentRecordedEvent.
func NewPaymentRecordedEvent(examID, studentID string, amountCents int64, reference string, fullyPaid bool) PaymentRecordedEvent {
	return PaymentRecordedEvent{
		BaseEvent:   NewBaseEvent(EventPaymentRecorded, examID),
		ExamID:      examID,
		StudentID:   studentID,
		AmountCents: amountCents,
		Reference:   reference,
		FullyPaid:   fullyPaid,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Grade Events
// ═══════════════════════════════════════════════════════════════════════════

// GradeFinalizedEvent is emitted when a grade is finalized and its
// pass/fail result is decided.
type GradeFinalizedEvent struct {
	BaseEvent
	GradeID    string  `json:"grade_id"`
	ExamID     string  `json:"exam_id"`
	StudentID  string  `json:"student_id"`
	FinalScore float64 `json:"final_score"`
	Passed     bool    `json:"passed"`
}

// Payload implements Event interface.
func (e GradeFinalizedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"grade_id":    e.GradeID,
		"exam_id":     e.ExamID,
		"student_id":  e.StudentID,
		"final_score": e.FinalScore,
		"passed":      e.Passed,
	}
}

// NewGradeFinalizedEvent creates a new GradeFinalizedEvent.
func NewGradeFinalizedEvent(gradeID, examID, studentID string, finalScore float64, passed bool) GradeFinalizedEvent {
	return GradeFinalizedEvent{
		BaseEvent:  NewBaseEvent(EventGradeFinalized, gradeID),
		GradeID:    gradeID,
		ExamID:     examID,
		StudentID:  studentID,
		FinalScore: finalScore,
		Passed:     passed,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Graduation Events
// ═══════════════════════════════════════════════════════════════════════════

// GraduationCreatedEvent is emitted when a pending graduation is created
// from a passing grade.
type GraduationCreatedEvent struct {
	BaseEvent
	GraduationID string `json:"graduation_id"`
	ExamID       string `json:"exam_id"`
	GradeID      string `json:"grade_id"`
	StudentID    string `json:"student_id"`
	NewBelt      string `json:"new_belt"`
}

// Payload implements Event interface.
func (e GraduationCreatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"graduation_id": e.GraduationID,
		"exam_id":       e.ExamID,
		"grade_id":      e.GradeID,
		"student_id":    e.StudentID,
		"new_belt":      e.NewBelt,
	}
}

// NewGraduationCreatedEvent creates a new GraduationCreatedEvent.
func NewGraduationCreatedEvent(graduationID, examID, gradeID, studentID, newBelt string) GraduationCreatedEvent {
	return GraduationCreatedEvent{
		BaseEvent:    NewBaseEvent(EventGraduationCreated, graduationID),
		GraduationID: graduationID,
		ExamID:       examID,
		GradeID:      gradeID,
		StudentID:    studentID,
		NewBelt:      newBelt,
	}
}

// BeltPromotedEvent is emitted when the belt cascade is applied to a student.
// This fires exactly once per graduation; re-approvals do not repeat it.
type BeltPromotedEvent struct {
	BaseEvent
	GraduationID string `json:"graduation_id"`
	ExamID       string `json:"exam_id"`
	StudentID    string `json:"student_id"`
	PreviousBelt string `json:"previous_belt"`
	NewBelt      string `json:"new_belt"`
	CertifiedBy  string `json:"certified_by"`
}

// Payload implements Event interface.
func (e BeltPromotedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"graduation_id": e.GraduationID,
		"exam_id":       e.ExamID,
		"student_id":    e.StudentID,
		"previous_belt": e.PreviousBelt,
		"new_belt":      e.NewBelt,
		"certified_by":  e.CertifiedBy,
	}
}

// NewBeltPromotedEvent creates a new BeltPromotedEvent.
func NewBeltPromotedEvent(graduationID, examID, studentID, previousBelt, newBelt, certifiedBy string) BeltPromotedEvent {
	return BeltPromotedEvent{
		BaseEvent:    NewBaseEvent(EventBeltPromoted, graduationID),
		GraduationID: graduationID,
		ExamID:       examID,
		StudentID:    studentID,
		PreviousBelt: previousBelt,
		NewBelt:      newBelt,
		CertifiedBy:  certifiedBy,
	}
}

// GraduationCertifiedEvent is emitted when a certificate is attached.
type GraduationCertifiedEvent struct {
	BaseEvent
	GraduationID      string `json:"graduation_id"`
	StudentID         string `json:"student_id"`
	CertificateNumber string `json:"certificate_number"`
}

// Payload implements Event interface.
func (e GraduationCertifiedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"graduation_id":      e.GraduationID,
		"student_id":         e.StudentID,
		"certificate_number": e.CertificateNumber,
	}
}

// NewGraduationCertifiedEvent creates a new GraduationCertifiedEvent.
func NewGraduationCertifiedEvent(graduationID, studentID, certNumber string) GraduationCertifiedEvent {
	return GraduationCertifiedEvent{
		BaseEvent:         NewBaseEvent(EventGraduationCertified, graduationID),
		GraduationID:      graduationID,
		StudentID:         studentID,
		CertificateNumber: certNumber,
	}
}

// GraduationCancelledEvent is emitted when a graduation is cancelled.
type GraduationCancelledEvent struct {
	BaseEvent
	GraduationID string `json:"graduation_id"`
	StudentID    string `json:"student_id"`
	Reason       string `json:"reason"`
	CascadeKept  bool   `json:"cascade_kept"` // true if the belt had already been applied
}

// Payload implements Event interface.
func (e GraduationCancelledEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"graduation_id": e.GraduationID,
		"student_id":    e.StudentID,
		"reason":        e.Reason,
		"cascade_kept":  e.CascadeKept,
	}
}

// NewGraduationCancelledEvent creates a new GraduationCancelledEvent.
func NewGraduationCancelledEvent(graduationID, studentID, reason string, cascadeKept bool) GraduationCancelledEvent {
	return GraduationCancelledEvent{
		BaseEvent:    NewBaseEvent(EventGraduationCancelled, graduationID),
		GraduationID: graduationID,
		StudentID:    studentID,
		Reason:       reason,
		CascadeKept:  cascadeKept,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// System Events
// ═══════════════════════════════════════════════════════════════════════════

// BatchCompletedEvent is emitted when a graduation batch finishes processing.
type BatchCompletedEvent struct {
	BaseEvent
	ExamID    string `json:"exam_id"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
}

// Payload implements Event interface.
func (e BatchCompletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"exam_id":   e.ExamID,
		"succeeded": e.Succeeded,
		"failed":    e.Failed,
	}
}

// NewBatchCompletedEvent creates a new BatchCompletedEvent.
func NewBatchCompletedEvent(examID string, succeeded, failed int) BatchCompletedEvent {
	return BatchCompletedEvent{
		BaseEvent: NewBaseEvent(EventBatchCompleted, examID),
		ExamID:    examID,
		Succeeded: succeeded,
		Failed:    failed,
	}
}

// ReconciliationAppliedEvent is emitted when the reconciliation job re-drives
// a pending graduation whose cascade had not been applied.
type ReconciliationAppliedEvent struct {
	BaseEvent
	GraduationID string `json:"graduation_id"`
	StudentID    string `json:"student_id"`
}

// Payload implements Event interface.
func (e ReconciliationAppliedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"graduation_id": e.GraduationID,
		"student_id":    e.StudentID,
	}
}

// NewReconciliationAppliedEvent creates a new ReconciliationAppliedEvent.
func NewReconciliationAppliedEvent(graduationID, studentID string) ReconciliationAppliedEvent {
	return ReconciliationAppliedEvent{
		BaseEvent:    NewBaseEvent(EventReconciliationApplied, graduationID),
		GraduationID: graduationID,
		StudentID:    studentID,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Event Envelope (for serialization and transport)
// ═══════════════════════════════════════════════════════════════════════════

// EventEnvelope wraps an event for transport/storage.
type EventEnvelope struct {
	ID            string          `json:"id"`
	Type          EventType       `json:"type"`
	AggregateID   string          `json:"aggregate_id"`
	Timestamp     time.Time       `json:"timestamp"`
	Version       int             `json:"version"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}
