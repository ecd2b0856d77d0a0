package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dojang-hub/dojang-exam-hub/internal/domain/shared"
	"github.com/dojang-hub/dojang-exam-hub/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// StudentRepository implements student.Repository for PostgreSQL.
type StudentRepository struct {
	conn *Connection
}

// NewStudentRepository creates a new StudentRepository.
func NewStudentRepository(conn *Connection) *StudentRepository {
	return &StudentRepository{conn: conn}
}

const studentColumns = `
	id, display_name, belt_level, belt_obtained_at, belt_certified_by,
	active, joined_at, graduation_tests_taken, graduation_tests_passed,
	created_at, updated_at
`

// GetByID returns a student by internal ID.
func (r *StudentRepository) GetByID(ctx context.Context, id shared.StudentID) (*student.Student, error) {
	query := `SELECT ` + studentColumns + ` FROM students WHERE id = $1`

	row := r.conn.QueryRow(ctx, query, string(id))
	return r.scanStudent(row)
}

// GetByIDs returns students by a list of IDs. Missing IDs are silently
// omitted from the result.
func (r *StudentRepository) GetByIDs(ctx context.Context, ids []shared.StudentID) ([]*student.Student, error) {
	if len(ids) == 0 {
		return []*student.Student{}, nil
	}

	raw := make([]string, len(ids))
	for i, id := range ids {
		raw[i] = string(id)
	}

	query := `SELECT ` + studentColumns + ` FROM students WHERE id = ANY($1)`

	rows, err := r.conn.Query(ctx, query, raw)
	if err != nil {
		return nil, fmt.Errorf("failed to query students: %w", err)
	}
	defer rows.Close()

	var students []*student.Student
	for rows.Next() {
		s, err := r.scanStudentRows(rows)
		if err != nil {
			return nil, err
		}
		students = append(students, s)
	}

	return students, rows.Err()
}

// Create creates a new student.
func (r *StudentRepository) Create(ctx context.Context, s *student.Student) error {
	query := `
		INSERT INTO students (
			id, display_name, belt_level, belt_obtained_at, belt_certified_by,
			active, joined_at, graduation_tests_taken, graduation_tests_passed,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.conn.Exec(ctx, query,
		string(s.ID),
		s.DisplayName,
		string(s.Belt.Level),
		nullableTime(s.Belt.ObtainedAt),
		nullableString(string(s.Belt.CertifiedBy)),
		s.Active,
		s.JoinedAt,
		s.GraduationTestsTaken,
		s.GraduationTestsPassed,
		s.CreatedAt,
		s.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrStudentExists
		}
		return fmt.Errorf("failed to create student: %w", err)
	}

	return nil
}

// Update updates a student.
func (r *StudentRepository) Update(ctx context.Context, s *student.Student) error {
	query := `
		UPDATE students SET
			display_name = $1,
			belt_level = $2,
			belt_obtained_at = $3,
			belt_certified_by = $4,
			active = $5,
			graduation_tests_taken = $6,
			graduation_tests_passed = $7,
			updated_at = $8
		WHERE id = $9
	`

	result, err := r.conn.Exec(ctx, query,
		s.DisplayName,
		string(s.Belt.Level),
		nullableTime(s.Belt.ObtainedAt),
		nullableString(string(s.Belt.CertifiedBy)),
		s.Active,
		s.GraduationTestsTaken,
		s.GraduationTestsPassed,
		time.Now().UTC(),
		string(s.ID),
	)
	if err != nil {
		return fmt.Errorf("failed to update student: %w", err)
	}

	if result.RowsAffected() == 0 {
		return shared.ErrStudentNotFound
	}

	return nil
}

// Exists checks whether a student exists.
func (r *StudentRepository) Exists(ctx context.Context, id shared.StudentID) (bool, error) {
	var exists bool
	err := r.conn.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM students WHERE id = $1)`, string(id)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check student existence: %w", err)
	}
	return exists, nil
}

// scanStudent scans a student from a single row.
func (r *StudentRepository) scanStudent(row pgx.Row) (*student.Student, error) {
	var (
		s           student.Student
		id          string
		beltLevel   string
		obtainedAt  *time.Time
		certifiedBy *string
	)

	err := row.Scan(
		&id,
		&s.DisplayName,
		&beltLevel,
		&obtainedAt,
		&certifiedBy,
		&s.Active,
		&s.JoinedAt,
		&s.GraduationTestsTaken,
		&s.GraduationTestsPassed,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrStudentNotFound
		}
		return nil, fmt.Errorf("failed to scan student: %w", err)
	}

	s.ID = shared.StudentID(id)
	s.Belt.Level = shared.BeltRank(beltLevel)
	if obtainedAt != nil {
		s.Belt.ObtainedAt = *obtainedAt
	}
	if certifiedBy != nil {
		s.Belt.CertifiedBy = shared.StaffID(*certifiedBy)
	}

	return &s, nil
}

// scanStudentRows scans a student from a rows iterator.
func (r *StudentRepository) scanStudentRows(rows pgx.Rows) (*student.Student, error) {
	return r.scanStudent(rows)
}

// ══════════════════════════════════════════════════════════════════════════════
// ATTENDANCE LOG IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// AttendanceRepository implements student.AttendanceLog for PostgreSQL.
type AttendanceRepository struct {
	conn *Connection
}

// NewAttendanceRepository creates a new AttendanceRepository.
func NewAttendanceRepository(conn *Connection) *AttendanceRepository {
	return &AttendanceRepository{conn: conn}
}

// GetByStudent returns all attendance records of a student.
func (r *AttendanceRepository) GetByStudent(ctx context.Context, studentID shared.StudentID) ([]student.AttendanceRecord, error) {
	query := `
		SELECT student_id, session_date, status
		FROM attendance_records
		WHERE student_id = $1
		ORDER BY session_date
	`
	return r.queryRecords(ctx, query, string(studentID))
}

// GetByStudentSince returns attendance records on or after the given date.
func (r *AttendanceRepository) GetByStudentSince(ctx context.Context, studentID shared.StudentID, since time.Time) ([]student.AttendanceRecord, error) {
	query := `
		SELECT student_id, session_date, status
		FROM attendance_records
		WHERE student_id = $1 AND session_date >= $2
		ORDER BY session_date
	`
	return r.queryRecords(ctx, query, string(studentID), since)
}

// CountByStatus returns the number of records with the given status.
// An empty status counts all records.
func (r *AttendanceRepository) CountByStatus(ctx context.Context, studentID shared.StudentID, status student.AttendanceStatus) (int, error) {
	var (
		count int
		err   error
	)

	if status == "" {
		err = r.conn.QueryRow(ctx,
			`SELECT COUNT(*) FROM attendance_records WHERE student_id = $1`,
			string(studentID)).Scan(&count)
	} else {
		err = r.conn.QueryRow(ctx,
			`SELECT COUNT(*) FROM attendance_records WHERE student_id = $1 AND status = $2`,
			string(studentID), string(status)).Scan(&count)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to count attendance: %w", err)
	}

	return count, nil
}

func (r *AttendanceRepository) queryRecords(ctx context.Context, query string, args ...interface{}) ([]student.AttendanceRecord, error) {
	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query attendance: %w", err)
	}
	defer rows.Close()

	var records []student.AttendanceRecord
	for rows.Next() {
		var (
			rec    student.AttendanceRecord
			id     string
			status string
		)
		if err := rows.Scan(&id, &rec.Date, &status); err != nil {
			return nil, fmt.Errorf("failed to scan attendance record: %w", err)
		}
		rec.StudentID = shared.StudentID(id)
		rec.Status = student.AttendanceStatus(status)
		records = append(records, rec)
	}

	return records, rows.Err()
}

// ══════════════════════════════════════════════════════════════════════════════
// PAYMENT LEDGER IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// PaymentRepository implements student.PaymentLedger for PostgreSQL.
type PaymentRepository struct {
	conn *Connection
}

// NewPaymentRepository creates a new PaymentRepository.
func NewPaymentRepository(conn *Connection) *PaymentRepository {
	return &PaymentRepository{conn: conn}
}

// GetByStudent returns all payment records of a student.
func (r *PaymentRepository) GetByStudent(ctx context.Context, studentID shared.StudentID) ([]student.PaymentRecord, error) {
	query := `
		SELECT student_id, status, amount_cents, created_at
		FROM payment_records
		WHERE student_id = $1
		ORDER BY created_at
	`

	rows, err := r.conn.Query(ctx, query, string(studentID))
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()

	var records []student.PaymentRecord
	for rows.Next() {
		var (
			rec    student.PaymentRecord
			id     string
			status string
			amount int64
		)
		if err := rows.Scan(&id, &status, &amount, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan payment record: %w", err)
		}
		rec.StudentID = shared.StudentID(id)
		rec.Status = student.PaymentStatus(status)
		rec.AmountCents = shared.Money(amount)
		records = append(records, rec)
	}

	return records, rows.Err()
}

// CountDelinquent returns the number of pending or overdue payment records.
func (r *PaymentRepository) CountDelinquent(ctx context.Context, studentID shared.StudentID) (int, error) {
	var count int
	err := r.conn.QueryRow(ctx,
		`SELECT COUNT(*) FROM payment_records WHERE student_id = $1 AND status IN ('pending', 'overdue')`,
		string(studentID)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count delinquent payments: %w", err)
	}
	return count, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SCAN HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
