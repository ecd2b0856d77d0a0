package postgres

// allMigrations lists the embedded schema migrations in apply order.
func allMigrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_students", UpSQL: migration001Up, DownSQL: migration001Down},
		{Version: 2, Name: "create_exams", UpSQL: migration002Up, DownSQL: migration002Down},
		{Version: 3, Name: "create_grades_graduations", UpSQL: migration003Up, DownSQL: migration003Down},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: CREATE STUDENTS
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- Migration: Create students, attendance and payment tables
-- Version: 001

CREATE TABLE IF NOT EXISTS students (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    display_name VARCHAR(100) NOT NULL,
    belt_level VARCHAR(20) NOT NULL DEFAULT 'blanco',
    belt_obtained_at TIMESTAMP WITH TIME ZONE,
    belt_certified_by VARCHAR(100),
    active BOOLEAN NOT NULL DEFAULT TRUE,
    joined_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    graduation_tests_taken INTEGER NOT NULL DEFAULT 0,
    graduation_tests_passed INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_belt CHECK (belt_level IN
        ('blanco', 'amarillo', 'naranja', 'verde', 'azul', 'rojo', 'negro')),
    CONSTRAINT valid_test_counters CHECK (
        graduation_tests_taken >= 0 AND
        graduation_tests_passed >= 0 AND
        graduation_tests_passed <= graduation_tests_taken)
);

CREATE INDEX IF NOT EXISTS idx_students_belt_level ON students(belt_level);
CREATE INDEX IF NOT EXISTS idx_students_active ON students(active) WHERE active;

-- Attendance log: one row per class session per student.
CREATE TABLE IF NOT EXISTS attendance_records (
    id SERIAL PRIMARY KEY,
    student_id UUID NOT NULL REFERENCES students(id) ON DELETE CASCADE,
    session_date DATE NOT NULL,
    status VARCHAR(20) NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_attendance_status CHECK (status IN
        ('present', 'absent', 'justified', 'late')),
    CONSTRAINT uq_attendance UNIQUE (student_id, session_date)
);

CREATE INDEX IF NOT EXISTS idx_attendance_student ON attendance_records(student_id);
CREATE INDEX IF NOT EXISTS idx_attendance_student_date ON attendance_records(student_id, session_date DESC);

-- Payment ledger: monthly fees and one-off charges.
CREATE TABLE IF NOT EXISTS payment_records (
    id SERIAL PRIMARY KEY,
    student_id UUID NOT NULL REFERENCES students(id) ON DELETE CASCADE,
    concept VARCHAR(100) NOT NULL,
    amount_cents BIGINT NOT NULL,
    status VARCHAR(20) NOT NULL DEFAULT 'pending',
    due_date DATE,
    paid_at TIMESTAMP WITH TIME ZONE,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_payment_status CHECK (status IN
        ('pending', 'paid', 'overdue', 'cancelled')),
    CONSTRAINT valid_amount CHECK (amount_cents >= 0)
);

CREATE INDEX IF NOT EXISTS idx_payments_student ON payment_records(student_id);
CREATE INDEX IF NOT EXISTS idx_payments_delinquent ON payment_records(student_id)
    WHERE status = 'overdue';
`

const migration001Down = `
DROP TABLE IF EXISTS payment_records;
DROP TABLE IF EXISTS attendance_records;
DROP TABLE IF EXISTS students;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: CREATE EXAMS
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
-- Migration: Create exams and candidates
-- Version: 002

CREATE TABLE IF NOT EXISTS exams (
    id UUID PRIMARY KEY,
    name VARCHAR(200) NOT NULL,
    exam_type VARCHAR(20) NOT NULL,
    status VARCHAR(20) NOT NULL DEFAULT 'scheduled',
    target_belt_rank VARCHAR(20),
    min_passing_score DECIMAL(5,2) NOT NULL DEFAULT 70.00,
    categories JSONB NOT NULL DEFAULT '[]'::jsonb,
    requirements JSONB NOT NULL DEFAULT '{}'::jsonb,
    instructors JSONB NOT NULL DEFAULT '[]'::jsonb,
    scheduled_at TIMESTAMP WITH TIME ZONE NOT NULL,
    version INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_exam_type CHECK (exam_type IN ('graduation', 'evaluation')),
    CONSTRAINT valid_exam_status CHECK (status IN
        ('scheduled', 'in_progress', 'completed', 'cancelled')),
    CONSTRAINT valid_min_score CHECK (min_passing_score >= 0 AND min_passing_score <= 100)
);

CREATE INDEX IF NOT EXISTS idx_exams_status ON exams(status);
CREATE INDEX IF NOT EXISTS idx_exams_scheduled_at ON exams(scheduled_at);

-- One candidate row per enrolled student per exam.
CREATE TABLE IF NOT EXISTS exam_candidates (
    id UUID PRIMARY KEY,
    exam_id UUID NOT NULL REFERENCES exams(id) ON DELETE CASCADE,
    student_id UUID NOT NULL REFERENCES students(id) ON DELETE CASCADE,
    enrolled_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    fee_cents BIGINT NOT NULL DEFAULT 0,
    discount_percent DECIMAL(5,2) NOT NULL DEFAULT 0,
    paid_cents BIGINT NOT NULL DEFAULT 0,
    paid BOOLEAN NOT NULL DEFAULT FALSE,
    last_payment_reference VARCHAR(200),
    last_paid_at TIMESTAMP WITH TIME ZONE,
    waived BOOLEAN NOT NULL DEFAULT FALSE,
    waived_by VARCHAR(100),
    waiver_reason TEXT,
    eligibility JSONB NOT NULL DEFAULT '{}'::jsonb,
    graded BOOLEAN NOT NULL DEFAULT FALSE,
    passed BOOLEAN NOT NULL DEFAULT FALSE,

    CONSTRAINT uq_exam_candidate UNIQUE (exam_id, student_id),
    CONSTRAINT valid_discount CHECK (discount_percent >= 0 AND discount_percent <= 100)
);

CREATE INDEX IF NOT EXISTS idx_candidates_exam ON exam_candidates(exam_id);
CREATE INDEX IF NOT EXISTS idx_candidates_student ON exam_candidates(student_id);
`

const migration002Down = `
DROP TABLE IF EXISTS exam_candidates;
DROP TABLE IF EXISTS exams;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: CREATE GRADES AND GRADUATIONS
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
-- Migration: Create grades and graduations
-- Version: 003

CREATE TABLE IF NOT EXISTS grades (
    id UUID PRIMARY KEY,
    exam_id UUID NOT NULL REFERENCES exams(id) ON DELETE CASCADE,
    student_id UUID NOT NULL REFERENCES students(id) ON DELETE CASCADE,
    scores JSONB NOT NULL DEFAULT '[]'::jsonb,
    final_score DECIMAL(5,2) NOT NULL DEFAULT 0,
    result VARCHAR(10) NOT NULL DEFAULT 'pending',
    state VARCHAR(20) NOT NULL DEFAULT 'draft',
    finalized_at TIMESTAMP WITH TIME ZONE,
    graded_by VARCHAR(100),
    reviewed_by VARCHAR(100),
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT uq_grade UNIQUE (exam_id, student_id),
    CONSTRAINT valid_grade_result CHECK (result IN ('pending', 'pass', 'fail')),
    CONSTRAINT valid_grade_state CHECK (state IN ('draft', 'finalized', 'reviewed')),
    CONSTRAINT valid_final_score CHECK (final_score >= 0 AND final_score <= 100)
);

CREATE INDEX IF NOT EXISTS idx_grades_exam ON grades(exam_id);
CREATE INDEX IF NOT EXISTS idx_grades_student ON grades(student_id);

CREATE TABLE IF NOT EXISTS graduations (
    id UUID PRIMARY KEY,
    exam_id UUID NOT NULL REFERENCES exams(id) ON DELETE CASCADE,
    grade_id UUID NOT NULL REFERENCES grades(id) ON DELETE CASCADE,
    student_id UUID NOT NULL REFERENCES students(id) ON DELETE CASCADE,
    previous_belt VARCHAR(20) NOT NULL,
    new_belt VARCHAR(20) NOT NULL,
    graduation_date TIMESTAMP WITH TIME ZONE NOT NULL,
    certifiers JSONB NOT NULL DEFAULT '[]'::jsonb,
    certificate JSONB,
    certificate_number VARCHAR(50),
    state VARCHAR(20) NOT NULL DEFAULT 'pending',
    student_updated BOOLEAN NOT NULL DEFAULT FALSE,
    student_updated_at TIMESTAMP WITH TIME ZONE,
    approved_by VARCHAR(100),
    approved_at TIMESTAMP WITH TIME ZONE,
    notes JSONB NOT NULL DEFAULT '[]'::jsonb,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_graduation_state CHECK (state IN
        ('pending', 'approved', 'certified', 'cancelled'))
);

-- One active graduation per (exam, student); cancelled records do not block
-- a re-run of the batch.
CREATE UNIQUE INDEX IF NOT EXISTS uq_graduation_active
    ON graduations(exam_id, student_id) WHERE state != 'cancelled';

-- Certificate numbers are globally unique.
CREATE UNIQUE INDEX IF NOT EXISTS uq_certificate_number
    ON graduations(certificate_number) WHERE certificate_number IS NOT NULL;

-- Reconciliation scan: pending graduations whose cascade never ran.
CREATE INDEX IF NOT EXISTS idx_graduations_unapplied
    ON graduations(created_at) WHERE state = 'pending' AND NOT student_updated;

CREATE INDEX IF NOT EXISTS idx_graduations_student ON graduations(student_id);
`

const migration003Down = `
DROP TABLE IF EXISTS graduations;
DROP TABLE IF EXISTS grades;
`
