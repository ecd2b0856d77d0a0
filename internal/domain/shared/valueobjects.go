// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"
)

// ═══════════════════════════════════════════════════════════════════════════
// ID Value Objects
// ═══════════════════════════════════════════════════════════════════════════

// UUID validation regex (simple version).
var uuidRegex = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// StudentID represents a unique student identifier (UUID format).
type StudentID string

// IsValid checks if the student ID is a valid UUID.
func (s StudentID) IsValid() bool {
	return uuidRegex.MatchString(string(s))
}

// String returns the string representation.
func (s StudentID) String() string {
	return string(s)
}

// IsEmpty checks if the ID is empty.
func (s StudentID) IsEmpty() bool {
	return s == ""
}

// NewStudentID creates a new StudentID with validation.
func NewStudentID(id string) (StudentID, error) {
	sid := StudentID(strings.ToLower(strings.TrimSpace(id)))
	if !sid.IsValid() {
		return "", NewDomainError("shared", "NewStudentID", ErrInvalidID, "invalid student ID format")
	}
	return sid, nil
}

// ExamID represents a unique exam identifier (UUID format).
type ExamID string

// IsValid checks if the exam ID is a valid UUID.
func (e ExamID) IsValid() bool {
	return uuidRegex.MatchString(string(e))
}

// String returns the string representation.
func (e ExamID) String() string {
	return string(e)
}

// IsEmpty checks if the ID is empty.
func (e ExamID) IsEmpty() bool {
	return e == ""
}

// NewExamID creates a new ExamID with validation.
func NewExamID(id string) (ExamID, error) {
	eid := ExamID(strings.ToLower(strings.TrimSpace(id)))
	if !eid.IsValid() {
		return "", NewDomainError("shared", "NewExamID", ErrInvalidID, "invalid exam ID format")
	}
	return eid, nil
}

// StaffID identifies an instructor or administrative staff member.
// Role checks are performed by the caller; this subsystem only stamps identities.
type StaffID string

// IsValid checks if the staff ID is non-empty.
func (s StaffID) IsValid() bool {
	return strings.TrimSpace(string(s)) != ""
}

// String returns the string representation.
func (s StaffID) String() string {
	return string(s)
}

// ═══════════════════════════════════════════════════════════════════════════
// Belt Rank Value Object
// ═══════════════════════════════════════════════════════════════════════════

// BeltRank represents a belt level in the academy's progression.
type BeltRank string

// Belt progression, lowest to highest.
const (
	BeltBlanco   BeltRank = "blanco"
	BeltAmarillo BeltRank = "amarillo"
	BeltNaranja  BeltRank = "naranja"
	BeltVerde    BeltRank = "verde"
	BeltAzul     BeltRank = "azul"
	BeltRojo     BeltRank = "rojo"
	BeltNegro    BeltRank = "negro"
)

// beltOrder maps each rank to its position in the progression.
var beltOrder = map[BeltRank]int{
	BeltBlanco:   0,
	BeltAmarillo: 1,
	BeltNaranja:  2,
	BeltVerde:    3,
	BeltAzul:     4,
	BeltRojo:     5,
	BeltNegro:    6,
}

// IsValid checks that the rank belongs to the known progression.
func (b BeltRank) IsValid() bool {
	_, ok := beltOrder[b]
	return ok
}

// String returns the string representation.
func (b BeltRank) String() string {
	return string(b)
}

// Order returns the rank's position in the progression (0 = blanco).
func (b BeltRank) Order() int {
	return beltOrder[b]
}

// IsAbove returns true if b ranks above other.
func (b BeltRank) IsAbove(other BeltRank) bool {
	return beltOrder[b] > beltOrder[other]
}

// Next returns the next rank in the progression, or the same rank for negro.
func (b BeltRank) Next() BeltRank {
	order := beltOrder[b]
	for rank, o := range beltOrder {
		if o == order+1 {
			return rank
		}
	}
	return b
}

// NewBeltRank creates a BeltRank with validation.
func NewBeltRank(s string) (BeltRank, error) {
	rank := BeltRank(strings.ToLower(strings.TrimSpace(s)))
	if !rank.IsValid() {
		return "", NewDomainError("shared", "NewBeltRank", ErrInvalidInput, fmt.Sprintf("unknown belt rank %q", s))
	}
	return rank, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Score Value Object
// ═══════════════════════════════════════════════════════════════════════════

// Score represents a 0-100 value used for category scores and final grades.
type Score float64

const (
	MinScore Score = 0
	MaxScore Score = 100
)

// IsValid checks if the score is within the 0-100 range.
func (s Score) IsValid() bool {
	return s >= MinScore && s <= MaxScore
}

// Float64 returns the underlying float64 value.
func (s Score) Float64() float64 {
	return float64(s)
}

// Round2 returns the score rounded to 2 decimal places.
func (s Score) Round2() Score {
	return Score(math.Round(float64(s)*100) / 100)
}

// NewScore creates a Score with validation.
func NewScore(v float64) (Score, error) {
	s := Score(v)
	if !s.IsValid() {
		return 0, NewDomainError("shared", "NewScore", ErrValueOutOfRange, "score must be between 0 and 100")
	}
	return s, nil
}

// Weight represents a category weight as a percentage (0-100).
type Weight float64

// IsValid checks if the weight is within the 0-100 range.
func (w Weight) IsValid() bool {
	return w >= 0 && w <= 100
}

// Float64 returns the underlying float64 value.
func (w Weight) Float64() float64 {
	return float64(w)
}

// WeightSumTolerance is the allowed drift of a category weight sum from 100.
const WeightSumTolerance = 0.01

// ═══════════════════════════════════════════════════════════════════════════
// Money Value Object
// ═══════════════════════════════════════════════════════════════════════════

// Money represents a monetary amount in the academy's currency, in cents.
// Integer cents avoid float accumulation errors in fee bookkeeping.
type Money int64

// IsValid checks that the amount is non-negative.
func (m Money) IsValid() bool {
	return m >= 0
}

// Int64 returns the underlying cents value.
func (m Money) Int64() int64 {
	return int64(m)
}

// Add returns the sum of two amounts.
func (m Money) Add(other Money) Money {
	return m + other
}

// ApplyDiscount returns the amount reduced by the given percentage (0-100).
func (m Money) ApplyDiscount(percent float64) Money {
	if percent <= 0 {
		return m
	}
	if percent >= 100 {
		return 0
	}
	discounted := float64(m) * (100 - percent) / 100
	return Money(math.Round(discounted))
}

// String formats the amount as units.cents.
func (m Money) String() string {
	return fmt.Sprintf("%d.%02d", m/100, m%100)
}

// NewMoney creates a Money value with validation.
func NewMoney(cents int64) (Money, error) {
	m := Money(cents)
	if !m.IsValid() {
		return 0, NewDomainError("shared", "NewMoney", ErrNegativeValue, "amount cannot be negative")
	}
	return m, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Time helpers
// ═══════════════════════════════════════════════════════════════════════════

// DaysBetween returns the number of whole calendar days between two times.
func DaysBetween(from, to time.Time) int {
	if to.Before(from) {
		return 0
	}
	return int(to.Sub(from).Hours() / 24)
}
