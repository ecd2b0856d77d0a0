package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dojang-hub/dojang-exam-hub/internal/domain/graduation"
	"github.com/dojang-hub/dojang-exam-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GRADUATION REPOSITORY IMPLEMENTATION
// Хранилище аттестаций. Частичные уникальные индексы uq_graduation_active и
// uq_certificate_number страхуют инварианты уникальности на уровне БД.
// ══════════════════════════════════════════════════════════════════════════════

// GraduationRepository implements graduation.Repository for PostgreSQL.
type GraduationRepository struct {
	conn *Connection
}

// NewGraduationRepository creates a new GraduationRepository.
func NewGraduationRepository(conn *Connection) *GraduationRepository {
	return &GraduationRepository{conn: conn}
}

const graduationColumns = `
	id, exam_id, grade_id, student_id, previous_belt, new_belt,
	graduation_date, certifiers, certificate, state,
	student_updated, student_updated_at, approved_by, approved_at,
	notes, created_at, updated_at
`

// certificateRecord is the JSONB shape of a stored certificate.
type certificateRecord struct {
	Number   string    `json:"number"`
	FileRef  string    `json:"file_ref"`
	FileType string    `json:"file_type"`
	IssuedAt time.Time `json:"issued_at"`
}

// Create создаёт новую аттестацию.
func (r *GraduationRepository) Create(ctx context.Context, g *graduation.Graduation) error {
	certifiers, certificate, certNumber, notes, err := marshalGraduationParts(g)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO graduations (
			id, exam_id, grade_id, student_id, previous_belt, new_belt,
			graduation_date, certifiers, certificate, certificate_number, state,
			student_updated, student_updated_at, approved_by, approved_at,
			notes, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`

	_, err = r.conn.Exec(ctx, query,
		g.ID,
		string(g.ExamID),
		g.GradeID,
		string(g.StudentID),
		string(g.PreviousBelt),
		string(g.NewBelt),
		g.Date,
		certifiers,
		certificate,
		certNumber,
		string(g.State),
		g.StudentUpdated,
		nullableTime(g.StudentUpdatedAt),
		nullableString(string(g.ApprovedBy)),
		nullableTime(g.ApprovedAt),
		notes,
		g.CreatedAt,
		g.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrAlreadyGraduated
		}
		return fmt.Errorf("failed to create graduation: %w", err)
	}

	return nil
}

// GetByID возвращает аттестацию по ID.
func (r *GraduationRepository) GetByID(ctx context.Context, id string) (*graduation.Graduation, error) {
	query := `SELECT ` + graduationColumns + ` FROM graduations WHERE id = $1`
	return r.scanGraduation(r.conn.QueryRow(ctx, query, id))
}

// GetByExamAndStudent возвращает активную (не отменённую) аттестацию пары.
func (r *GraduationRepository) GetByExamAndStudent(ctx context.Context, examID shared.ExamID, studentID shared.StudentID) (*graduation.Graduation, error) {
	query := `SELECT ` + graduationColumns + ` FROM graduations
		WHERE exam_id = $1 AND student_id = $2 AND state != 'cancelled'`
	return r.scanGraduation(r.conn.QueryRow(ctx, query, string(examID), string(studentID)))
}

// Update сохраняет изменения аттестации.
func (r *GraduationRepository) Update(ctx context.Context, g *graduation.Graduation) error {
	certifiers, certificate, certNumber, notes, err := marshalGraduationParts(g)
	if err != nil {
		return err
	}

	query := `
		UPDATE graduations SET
			certifiers = $1,
			certificate = $2,
			certificate_number = $3,
			state = $4,
			student_updated = $5,
			student_updated_at = $6,
			approved_by = $7,
			approved_at = $8,
			notes = $9,
			updated_at = $10
		WHERE id = $11
	`

	result, err := r.conn.Exec(ctx, query,
		certifiers,
		certificate,
		certNumber,
		string(g.State),
		g.StudentUpdated,
		nullableTime(g.StudentUpdatedAt),
		nullableString(string(g.ApprovedBy)),
		nullableTime(g.ApprovedAt),
		notes,
		time.Now().UTC(),
		g.ID,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			// Гонка генерации номера сертификата: номер успел занять другой
			// процесс между проверкой и записью.
			return shared.NewDomainError("graduation", "Update", shared.ErrAlreadyExists, "certificate number already taken")
		}
		return fmt.Errorf("failed to update graduation: %w", err)
	}
	if result.RowsAffected() == 0 {
		return shared.ErrGraduationNotFound
	}

	return nil
}

// ExistsForCandidate проверяет наличие активной аттестации пары.
func (r *GraduationRepository) ExistsForCandidate(ctx context.Context, examID shared.ExamID, studentID shared.StudentID) (bool, error) {
	var exists bool
	err := r.conn.QueryRow(ctx,
		`SELECT EXISTS(
			SELECT 1 FROM graduations
			WHERE exam_id = $1 AND student_id = $2 AND state != 'cancelled'
		)`,
		string(examID), string(studentID)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check graduation existence: %w", err)
	}
	return exists, nil
}

// GetByStudent возвращает все аттестации ученика, новые первыми.
func (r *GraduationRepository) GetByStudent(ctx context.Context, studentID shared.StudentID) ([]*graduation.Graduation, error) {
	query := `SELECT ` + graduationColumns + ` FROM graduations
		WHERE student_id = $1 ORDER BY graduation_date DESC`
	return r.queryGraduations(ctx, query, string(studentID))
}

// FindUnapplied возвращает pending-аттестации с неприменённым каскадом.
// Запрос обслуживается частичным индексом idx_graduations_unapplied.
func (r *GraduationRepository) FindUnapplied(ctx context.Context, limit int) ([]*graduation.Graduation, error) {
	query := `SELECT ` + graduationColumns + ` FROM graduations
		WHERE state = 'pending' AND NOT student_updated
		ORDER BY created_at
		LIMIT $1`
	return r.queryGraduations(ctx, query, normalizeLimit(limit))
}

// CertificateNumberExists проверяет занятость номера сертификата.
func (r *GraduationRepository) CertificateNumberExists(ctx context.Context, number string) (bool, error) {
	var exists bool
	err := r.conn.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM graduations WHERE certificate_number = $1)`,
		number).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check certificate number: %w", err)
	}
	return exists, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Scan helpers
// ─────────────────────────────────────────────────────────────────────────────

func (r *GraduationRepository) queryGraduations(ctx context.Context, query string, args ...interface{}) ([]*graduation.Graduation, error) {
	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query graduations: %w", err)
	}
	defer rows.Close()

	var grads []*graduation.Graduation
	for rows.Next() {
		g, err := r.scanGraduation(rows)
		if err != nil {
			return nil, err
		}
		grads = append(grads, g)
	}

	return grads, rows.Err()
}

func (r *GraduationRepository) scanGraduation(row pgx.Row) (*graduation.Graduation, error) {
	var (
		g            graduation.Graduation
		examID       string
		studentID    string
		previousBelt string
		newBelt      string
		certifiers   []byte
		certificate  []byte
		state        string
		updatedAt    *time.Time
		approvedBy   *string
		approvedAt   *time.Time
		notes        []byte
	)

	err := row.Scan(
		&g.ID,
		&examID,
		&g.GradeID,
		&studentID,
		&previousBelt,
		&newBelt,
		&g.Date,
		&certifiers,
		&certificate,
		&state,
		&g.StudentUpdated,
		&updatedAt,
		&approvedBy,
		&approvedAt,
		&notes,
		&g.CreatedAt,
		&g.UpdatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrGraduationNotFound
		}
		return nil, fmt.Errorf("failed to scan graduation: %w", err)
	}

	g.ExamID = shared.ExamID(examID)
	g.StudentID = shared.StudentID(studentID)
	g.PreviousBelt = shared.BeltRank(previousBelt)
	g.NewBelt = shared.BeltRank(newBelt)
	g.State = graduation.State(state)
	if updatedAt != nil {
		g.StudentUpdatedAt = *updatedAt
	}
	if approvedBy != nil {
		g.ApprovedBy = shared.StaffID(*approvedBy)
	}
	if approvedAt != nil {
		g.ApprovedAt = *approvedAt
	}

	if len(certifiers) > 0 {
		if err := json.Unmarshal(certifiers, &g.Certifiers); err != nil {
			return nil, fmt.Errorf("failed to unmarshal certifiers: %w", err)
		}
	}
	if len(notes) > 0 {
		if err := json.Unmarshal(notes, &g.Notes); err != nil {
			return nil, fmt.Errorf("failed to unmarshal notes: %w", err)
		}
	}
	if len(certificate) > 0 {
		var rec certificateRecord
		if err := json.Unmarshal(certificate, &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal certificate: %w", err)
		}
		g.Certificate = &graduation.Certificate{
			Number:   rec.Number,
			FileRef:  rec.FileRef,
			FileType: rec.FileType,
			IssuedAt: rec.IssuedAt,
		}
	}

	return &g, nil
}

func marshalGraduationParts(g *graduation.Graduation) (certifiers, certificate []byte, certNumber *string, notes []byte, err error) {
	if certifiers, err = json.Marshal(g.Certifiers); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to marshal certifiers: %w", err)
	}
	if notes, err = json.Marshal(g.Notes); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to marshal notes: %w", err)
	}
	if g.Certificate != nil {
		rec := certificateRecord{
			Number:   g.Certificate.Number,
			FileRef:  g.Certificate.FileRef,
			FileType: g.Certificate.FileType,
			IssuedAt: g.Certificate.IssuedAt,
		}
		if certificate, err = json.Marshal(rec); err != nil {
			return nil, nil, nil, nil, fmt.Errorf("failed to marshal certificate: %w", err)
		}
		certNumber = &g.Certificate.Number
	}
	return certifiers, certificate, certNumber, notes, nil
}
