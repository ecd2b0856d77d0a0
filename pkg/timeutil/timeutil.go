// Package timeutil provides timezone utilities for Mexico City time (UTC-6).
// The dojang operates on local wall-clock time for schedules, attendance and
// graduation dates. Mexico abolished DST in 2022, so the offset is constant.
// No external dependencies - uses only standard library.
package timeutil

import (
	"fmt"
	"time"
)

// DojangTZ is the dojang's local timezone (UTC-6, no DST).
var DojangTZ = time.FixedZone("America/Mexico_City", -6*60*60)

// Now returns the current time in the dojang timezone.
func Now() time.Time {
	return time.Now().In(DojangTZ)
}

// ToLocal converts a time to the dojang timezone.
func ToLocal(t time.Time) time.Time {
	return t.In(DojangTZ)
}

// ToUTC converts a time to UTC.
func ToUTC(t time.Time) time.Time {
	return t.UTC()
}

// Date creates a time in the dojang timezone with the given date.
func Date(year, month, day int) time.Time {
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, DojangTZ)
}

// DateTime creates a time in the dojang timezone with the given date and time.
func DateTime(year, month, day, hour, min, sec int) time.Time {
	return time.Date(year, time.Month(month), day, hour, min, sec, 0, DojangTZ)
}

// StartOfDay returns the start of the day (00:00:00) in the dojang timezone.
func StartOfDay(t time.Time) time.Time {
	local := ToLocal(t)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, DojangTZ)
}

// EndOfDay returns the end of the day (23:59:59.999999999) in the dojang timezone.
func EndOfDay(t time.Time) time.Time {
	local := ToLocal(t)
	return time.Date(local.Year(), local.Month(), local.Day(), 23, 59, 59, 999999999, DojangTZ)
}

// StartOfWeek returns the start of the week (Monday 00:00:00) in the dojang timezone.
func StartOfWeek(t time.Time) time.Time {
	local := ToLocal(t)
	weekday := int(local.Weekday())
	if weekday == 0 {
		weekday = 7 // Sunday
	}
	return StartOfDay(local.AddDate(0, 0, -(weekday - 1)))
}

// EndOfWeek returns the end of the week (Sunday 23:59:59) in the dojang timezone.
func EndOfWeek(t time.Time) time.Time {
	return EndOfDay(StartOfWeek(t).AddDate(0, 0, 6))
}

// DaysSince calculates the number of full days since the given time.
func DaysSince(t time.Time) int {
	now := StartOfDay(Now())
	then := StartOfDay(t)
	return int(now.Sub(then).Hours() / 24)
}

// Training hours for the dojang.
const (
	// TrainingDayStart is when classes start (7:00 AM).
	TrainingDayStart = 7
	// TrainingDayEnd is when the last class ends (10:00 PM).
	TrainingDayEnd = 22
)

// IsTrainingHours checks if the given time is within training hours (7:00-22:00).
func IsTrainingHours(t time.Time) bool {
	hour := ToLocal(t).Hour()
	return hour >= TrainingDayStart && hour < TrainingDayEnd
}

// IsWeekend checks if the given time is on a weekend.
func IsWeekend(t time.Time) bool {
	weekday := ToLocal(t).Weekday()
	return weekday == time.Saturday || weekday == time.Sunday
}

// NextTrainingDay returns the next weekday (exams are never scheduled on Sundays,
// Saturday morning sessions count as training days).
func NextTrainingDay(t time.Time) time.Time {
	next := ToLocal(t).AddDate(0, 0, 1)
	for next.Weekday() == time.Sunday {
		next = next.AddDate(0, 0, 1)
	}
	return StartOfDay(next)
}

// Common date/time formats.
const (
	// FormatDate is the standard date format (YYYY-MM-DD).
	FormatDate = "2006-01-02"
	// FormatTime is the standard time format (HH:MM).
	FormatTime = "15:04"
	// FormatDateTime is the standard datetime format.
	FormatDateTime = "2006-01-02 15:04"
	// FormatSpanishDate is the Spanish date format (DD/MM/YYYY).
	FormatSpanishDate = "02/01/2006"
	// FormatSpanishDateTime is the Spanish datetime format.
	FormatSpanishDateTime = "02/01/2006 15:04"
	// FormatCertificateDate is the long format printed on certificates.
	FormatCertificateDate = "2 January 2006"
)

// FormatLocal formats a time in the dojang timezone with the given layout.
func FormatLocal(t time.Time, layout string) string {
	return ToLocal(t).Format(layout)
}

// FormatDateStr formats a time as a date string (YYYY-MM-DD) in the dojang timezone.
func FormatDateStr(t time.Time) string {
	return FormatLocal(t, FormatDate)
}

// FormatDateTimeStr formats a time as a datetime string in the dojang timezone.
func FormatDateTimeStr(t time.Time) string {
	return FormatLocal(t, FormatDateTime)
}

// FormatSpanish formats a time in Spanish format (DD/MM/YYYY).
func FormatSpanish(t time.Time) string {
	return FormatLocal(t, FormatSpanishDate)
}

// ParseLocal parses a time string in the dojang timezone.
func ParseLocal(layout, value string) (time.Time, error) {
	return time.ParseInLocation(layout, value, DojangTZ)
}

// ParseDateLocal parses a date string (YYYY-MM-DD) in the dojang timezone.
func ParseDateLocal(value string) (time.Time, error) {
	return ParseLocal(FormatDate, value)
}

// Attendance utilities.

// IsSameDay checks if two times are on the same day in the dojang timezone.
func IsSameDay(t1, t2 time.Time) bool {
	a1, a2 := ToLocal(t1), ToLocal(t2)
	return a1.Year() == a2.Year() && a1.YearDay() == a2.YearDay()
}

// DaysBetween calculates the number of days between two times.
func DaysBetween(t1, t2 time.Time) int {
	a1 := StartOfDay(t1)
	a2 := StartOfDay(t2)
	days := int(a2.Sub(a1).Hours() / 24)
	if days < 0 {
		days = -days
	}
	return days
}

// MonthNameEs returns the Spanish name for a month, as printed on certificates.
func MonthNameEs(m time.Month) string {
	names := []string{
		"", "enero", "febrero", "marzo", "abril", "mayo", "junio",
		"julio", "agosto", "septiembre", "octubre", "noviembre", "diciembre",
	}
	if int(m) >= 1 && int(m) <= 12 {
		return names[m]
	}
	return ""
}

// FormatCertificate formats a graduation date the way it appears on a printed
// certificate: "15 de marzo de 2026".
func FormatCertificate(t time.Time) string {
	local := ToLocal(t)
	return fmt.Sprintf("%d de %s de %d", local.Day(), MonthNameEs(local.Month()), local.Year())
}
