package exam

import "time"

// ══════════════════════════════════════════════════════════════════════════════
// ELIGIBILITY SNAPSHOT
// Три независимых сигнала допуска, вычисляемых EligibilityEvaluator.
// Снимок хранится на кандидате и носит информационный характер.
// ══════════════════════════════════════════════════════════════════════════════

// AttendanceCheck - сигнал посещаемости.
type AttendanceCheck struct {
	// Ratio - доля записей present среди всех записей (0-100, проценты).
	Ratio float64 `json:"ratio"`

	// MeetsMin - true, если Ratio >= требуемого минимума (включительно).
	MeetsMin bool `json:"meets_min"`

	// Reason - пояснение при MeetsMin == false.
	Reason string `json:"reason,omitempty"`
}

// TenureCheck - сигнал стажа на текущем поясе.
type TenureCheck struct {
	// Days - календарные дни с присвоения текущего пояса.
	Days int `json:"days"`

	// MeetsMin - true, если Days >= требуемого минимума.
	MeetsMin bool `json:"meets_min"`

	// Reason - пояснение при MeetsMin == false.
	Reason string `json:"reason,omitempty"`
}

// PaymentCheck - сигнал платёжной дисциплины.
type PaymentCheck struct {
	// MeetsRequirement - true, если требование оплаты выполнено.
	// Автоматически true, когда экзамен его не предъявляет.
	MeetsRequirement bool `json:"meets_requirement"`

	// DelinquentCount - количество записей pending/overdue.
	DelinquentCount int `json:"delinquent_count"`

	// Reason - пояснение при MeetsRequirement == false.
	Reason string `json:"reason,omitempty"`
}

// EligibilityResult - снимок трёх сигналов допуска.
type EligibilityResult struct {
	Attendance AttendanceCheck `json:"attendance"`
	Tenure     TenureCheck     `json:"tenure"`
	Payment    PaymentCheck    `json:"payment"`

	// EvaluatedAt - момент вычисления снимка.
	EvaluatedAt time.Time `json:"evaluated_at"`
}

// Eligible возвращает true, если все три сигнала положительны.
func (r EligibilityResult) Eligible() bool {
	return r.Attendance.MeetsMin && r.Tenure.MeetsMin && r.Payment.MeetsRequirement
}

// Reasons собирает пояснения всех непройденных проверок.
func (r EligibilityResult) Reasons() []string {
	var reasons []string
	if !r.Attendance.MeetsMin && r.Attendance.Reason != "" {
		reasons = append(reasons, r.Attendance.Reason)
	}
	if !r.Tenure.MeetsMin && r.Tenure.Reason != "" {
		reasons = append(reasons, r.Tenure.Reason)
	}
	if !r.Payment.MeetsRequirement && r.Payment.Reason != "" {
		reasons = append(reasons, r.Payment.Reason)
	}
	return reasons
}
