// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")
	ErrInvalidEntity = errors.New("invalid entity")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrNegativeValue   = errors.New("value cannot be negative")
	ErrValueOutOfRange = errors.New("value out of range")
	ErrInvalidFormat   = errors.New("invalid format")

	// State errors
	ErrInvalidState     = errors.New("invalid state")
	ErrStateTransition  = errors.New("invalid state transition")
	ErrAlreadyProcessed = errors.New("already processed")

	// Conflict errors
	ErrConflict = errors.New("conflict")

	// Concurrency errors
	ErrConcurrentModification = errors.New("concurrent modification detected")
	ErrOptimisticLock         = errors.New("optimistic lock failure")

	// Infrastructure errors
	ErrInternal           = errors.New("internal error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
)

// DomainError attaches domain and operation context to one of the sentinel
// kinds above. errors.Is against the sentinel still works through Kind.
type DomainError struct {
	Domain  string // "exam", "grade", "graduation"
	Op      string // operation that failed, e.g. "Enroll", "Finalize"
	Kind    error  // sentinel this error classifies as
	Message string
	Err     error // wrapped cause, optional
}

func (e *DomainError) Error() string {
	msg := fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is matches against both the sentinel kind and the wrapped cause.
func (e *DomainError) Is(target error) bool {
	return (e.Kind != nil && errors.Is(e.Kind, target)) ||
		(e.Err != nil && errors.Is(e.Err, target))
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{Domain: domain, Op: op, Kind: kind, Message: message}
}

// WrapError is NewDomainError with an underlying cause attached.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{Domain: domain, Op: op, Kind: kind, Message: message, Err: err}
}

// Student domain errors
var (
	ErrStudentNotFound     = NewDomainError("student", "Find", ErrNotFound, "student not found")
	ErrStudentExists       = NewDomainError("student", "Create", ErrAlreadyExists, "student already exists")
	ErrInvalidBeltRank     = NewDomainError("student", "Validate", ErrInvalidInput, "invalid belt rank")
	ErrStudentDeactivated  = NewDomainError("student", "CheckStatus", ErrInvalidState, "student is deactivated")
	ErrInvalidStudentID    = NewDomainError("student", "Validate", ErrInvalidID, "invalid student ID")
	ErrInvalidInstructorID = NewDomainError("student", "Validate", ErrInvalidID, "invalid instructor ID")
)

// Exam domain errors
var (
	ErrExamNotFound        = NewDomainError("exam", "Find", ErrNotFound, "exam not found")
	ErrExamNotOpen         = NewDomainError("exam", "CheckStatus", ErrInvalidState, "exam is not open for this operation")
	ErrInvalidCategories   = NewDomainError("exam", "Validate", ErrValidation, "category weights must sum to 100")
	ErrCategoryWeight      = NewDomainError("exam", "Validate", ErrValueOutOfRange, "category weight out of range")
	ErrAlreadyEnrolled     = NewDomainError("exam", "Enroll", ErrAlreadyExists, "student already enrolled in this exam")
	ErrCandidateNotFound   = NewDomainError("exam", "FindCandidate", ErrNotFound, "candidate not found in exam")
	ErrBeltMismatch        = NewDomainError("exam", "Enroll", ErrConflict, "student belt does not match required belt")
	ErrWaiverUnauthorized  = NewDomainError("exam", "Enroll", ErrInvalidInput, "payment waiver requires an authorizing staff identity")
	ErrNotEligible         = NewDomainError("exam", "Enroll", ErrConflict, "student does not meet exam requirements")
	ErrExamVersionConflict = NewDomainError("exam", "Save", ErrOptimisticLock, "exam was modified concurrently")
)

// Grade domain errors
var (
	ErrGradeNotFound      = NewDomainError("grade", "Find", ErrNotFound, "grade not found")
	ErrGradeExists        = NewDomainError("grade", "Create", ErrAlreadyExists, "grade already exists for this candidate")
	ErrGradeAlreadyExists = NewDomainError("grade", "Unenroll", ErrConflict, "a grade already references this candidate")
	ErrNotEnrolled        = NewDomainError("grade", "Finalize", ErrConflict, "student is not an enrolled candidate of this exam")
	ErrGradeReviewed      = NewDomainError("grade", "Finalize", ErrStateTransition, "grade has been reviewed and is immutable")
	ErrGradeNotFinalized  = NewDomainError("grade", "Review", ErrInvalidState, "grade is not finalized")
	ErrInvalidScore       = NewDomainError("grade", "Validate", ErrValueOutOfRange, "score must be between 0 and 100")
)

// Graduation domain errors
var (
	ErrGraduationNotFound = NewDomainError("graduation", "Find", ErrNotFound, "graduation not found")
	ErrAlreadyGraduated   = NewDomainError("graduation", "Create", ErrAlreadyExists, "graduation already exists for this candidate")
	ErrGradeNotApproved   = NewDomainError("graduation", "Create", ErrConflict, "grade is missing or not a passing grade")
	ErrGraduationState    = NewDomainError("graduation", "Transition", ErrStateTransition, "invalid graduation state transition")
	ErrCertificateMissing = NewDomainError("graduation", "Certify", ErrInvalidInput, "certificate payload is required")
	ErrReasonRequired     = NewDomainError("graduation", "Cancel", ErrInvalidInput, "cancellation reason is required")
)

// isAny reports whether err matches at least one of the sentinels.
func isAny(err error, sentinels ...error) bool {
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return true
		}
	}
	return false
}

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict checks if the error represents a conflict
// (duplicates, optimistic lock failures, prerequisite violations).
func IsConflict(err error) bool {
	return isAny(err, ErrConflict, ErrAlreadyExists, ErrOptimisticLock, ErrConcurrentModification)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return isAny(err, ErrValidation, ErrInvalidID, ErrInvalidInput,
		ErrEmptyValue, ErrNegativeValue, ErrValueOutOfRange, ErrInvalidFormat)
}

// IsStateError checks if the error is an invalid-transition error.
func IsStateError(err error) bool {
	return isAny(err, ErrInvalidState, ErrStateTransition, ErrAlreadyProcessed)
}

// IsRetryable checks if the operation can be retried.
func IsRetryable(err error) bool {
	return isAny(err, ErrServiceUnavailable, ErrTimeout, ErrConcurrentModification, ErrOptimisticLock)
}
