package command

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dojang-hub/dojang-exam-hub/internal/domain/graduation"
	"github.com/dojang-hub/dojang-exam-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CERTIFY GRADUATION COMMAND
// Attaches a certificate to an approved graduation and moves it to certified.
// Certificate numbers are generated here and checked for uniqueness against
// the store, with a bounded retry on collision.
// ══════════════════════════════════════════════════════════════════════════════

// certNumberAttempts bounds the collision retry loop.
const certNumberAttempts = 5

// CertifyGraduationCommand contains the data to certify a graduation.
type CertifyGraduationCommand struct {
	// GraduationID is the graduation to certify.
	GraduationID string

	// CertificateNumber is an explicit number to use. When empty, a
	// number is generated from the issue date and a random suffix.
	CertificateNumber string

	// FileRef is a storage reference for the rendered certificate document.
	FileRef string

	// FileType is the document type (e.g. "pdf").
	FileType string

	// IssuedAt is the certificate issue time (defaults to now if zero).
	IssuedAt time.Time

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c CertifyGraduationCommand) Validate() error {
	if c.GraduationID == "" {
		return errors.New("certify_graduation: graduation_id is required")
	}
	return nil
}

// CertifyGraduationResult contains the result of the certification.
type CertifyGraduationResult struct {
	// GraduationID is the certified graduation.
	GraduationID string `json:"graduation_id"`

	// StudentID is the certified student.
	StudentID string `json:"student_id"`

	// CertificateNumber is the assigned certificate number.
	CertificateNumber string `json:"certificate_number"`

	// IssuedAt is the certificate issue time.
	IssuedAt time.Time `json:"issued_at"`
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// CertifyGraduationHandler handles the CertifyGraduationCommand.
type CertifyGraduationHandler struct {
	graduationRepo graduation.Repository
	eventPublisher shared.EventPublisher
}

// NewCertifyGraduationHandler creates a new CertifyGraduationHandler.
func NewCertifyGraduationHandler(
	graduationRepo graduation.Repository,
	eventPublisher shared.EventPublisher,
) *CertifyGraduationHandler {
	return &CertifyGraduationHandler{
		graduationRepo: graduationRepo,
		eventPublisher: eventPublisher,
	}
}

// Handle executes the certify graduation command.
func (h *CertifyGraduationHandler) Handle(ctx context.Context, cmd CertifyGraduationCommand) (*CertifyGraduationResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("certify_graduation: validation failed: %w", err)
	}

	grad, err := h.graduationRepo.GetByID(ctx, cmd.GraduationID)
	if err != nil {
		return nil, fmt.Errorf("certify_graduation: failed to get graduation: %w", err)
	}

	issuedAt := cmd.IssuedAt
	if issuedAt.IsZero() {
		issuedAt = time.Now().UTC()
	}

	number, err := h.resolveNumber(ctx, cmd.CertificateNumber, issuedAt)
	if err != nil {
		return nil, err
	}

	cert := graduation.Certificate{
		Number:   number,
		FileRef:  cmd.FileRef,
		FileType: cmd.FileType,
		IssuedAt: issuedAt,
	}
	if err := grad.Certify(cert); err != nil {
		return nil, err
	}

	if err := h.graduationRepo.Update(ctx, grad); err != nil {
		return nil, fmt.Errorf("certify_graduation: failed to save graduation: %w", err)
	}

	event := shared.NewGraduationCertifiedEvent(grad.ID, string(grad.StudentID), number)
	if cmd.CorrelationID != "" {
		event.BaseEvent = event.BaseEvent.WithCorrelationID(cmd.CorrelationID)
	}
	_ = h.eventPublisher.Publish(event)

	return &CertifyGraduationResult{
		GraduationID:      grad.ID,
		StudentID:         string(grad.StudentID),
		CertificateNumber: number,
		IssuedAt:          issuedAt,
	}, nil
}

// resolveNumber returns the explicit number if given, otherwise generates a
// unique one. Explicit numbers are checked once; generated numbers retry on
// collision.
func (h *CertifyGraduationHandler) resolveNumber(ctx context.Context, explicit string, issuedAt time.Time) (string, error) {
	if explicit != "" {
		taken, err := h.graduationRepo.CertificateNumberExists(ctx, explicit)
		if err != nil {
			return "", fmt.Errorf("certify_graduation: failed to check certificate number: %w", err)
		}
		if taken {
			return "", shared.NewDomainError("graduation", "Certify", shared.ErrAlreadyExists,
				fmt.Sprintf("certificate number %q is already in use", explicit))
		}
		return explicit, nil
	}

	for attempt := 0; attempt < certNumberAttempts; attempt++ {
		suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
		number := graduation.CertificateNumber(issuedAt, suffix)

		taken, err := h.graduationRepo.CertificateNumberExists(ctx, number)
		if err != nil {
			return "", fmt.Errorf("certify_graduation: failed to check certificate number: %w", err)
		}
		if !taken {
			return number, nil
		}
	}

	return "", shared.NewDomainError("graduation", "Certify", shared.ErrInternal,
		"could not generate a unique certificate number")
}
