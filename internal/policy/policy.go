// Package policy содержит правила выдачи книг по классам.
package policy

import (
	"strings"
	"time"
)

// LoanPolicy задаёт лимит одновременных выдач и срок возврата для ступени обучения.
type LoanPolicy struct {
	MaxActiveLoans int
	LoanDuration   time.Duration
}

const day = 24 * time.Hour

// ForClass возвращает политику выдачи для указанного названия класса.
// Ступень определяется по вхождению подстроки без учёта регистра.
func ForClass(className string) LoanPolicy {
	name := strings.ToUpper(className)

	switch {
	case strings.Contains(name, "AÑOS"):
		return LoanPolicy{MaxActiveLoans: 1, LoanDuration: 7 * day}
	case strings.Contains(name, "PRIMARIA"):
		return LoanPolicy{MaxActiveLoans: 2, LoanDuration: 15 * day}
	case strings.Contains(name, "SECUNDARIA"):
		return LoanPolicy{MaxActiveLoans: 3, LoanDuration: 20 * day}
	default:
		return LoanPolicy{MaxActiveLoans: 3, LoanDuration: 15 * day}
	}
}
