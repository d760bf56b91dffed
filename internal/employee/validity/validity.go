// Package validity implements the expiration date arithmetic and status
// classification for certification records. All functions are pure: they
// take dates in, return dates or statuses out, and touch no shared state.
package validity

import (
	"time"

	"github.com/wareflow/ems/internal/employee/models"
)

// Validity periods per certification category.
const (
	cacesDefaultYears = 5
	cacesR4895Years   = 10
	visitDefaultYears = 2
	visitRecoveryYear = 1
)

// Alert window boundaries, in days until expiration. Both are half-open on
// the lower bound: exactly 30 days left is a warning, exactly 60 is valid.
const (
	CriticalDays = 30
	WarningDays  = 60
)

// Status classifies a certification record relative to a reference day.
type Status string

const (
	StatusValid     Status = "valid"
	StatusWarning   Status = "warning"
	StatusCritical  Status = "critical"
	StatusExpired   Status = "expired"
	StatusPermanent Status = "permanent"
)

// CacesYears returns the validity in years for an equipment class.
// Every R489 class is valid five years except R489-5, which is valid ten.
func CacesYears(class models.CacesClass) int {
	if class == models.CacesR489_5 {
		return cacesR4895Years
	}
	return cacesDefaultYears
}

// CacesExpiration returns the expiration date of a certificate of the given
// class completed on the given day.
func CacesExpiration(class models.CacesClass, completed time.Time) time.Time {
	return AddYears(completed, CacesYears(class))
}

// VisitExpiration returns the expiration date of a medical visit. Recovery
// visits are valid one year, every other visit type two years.
func VisitExpiration(visitType models.VisitType, visited time.Time) time.Time {
	if visitType == models.VisitRecovery {
		return AddYears(visited, visitRecoveryYear)
	}
	return AddYears(visited, visitDefaultYears)
}

// TrainingExpiration returns the expiration date of a training completed on
// the given day, or nil when months is nil (permanent training).
func TrainingExpiration(completed time.Time, months *int) *time.Time {
	if months == nil {
		return nil
	}
	exp := AddMonths(completed, *months)
	return &exp
}

// AddYears adds n calendar years to d, clamping the day of month when the
// target year lacks it: Feb 29 plus five years lands on Feb 28, not Mar 1.
func AddYears(d time.Time, n int) time.Time {
	year := d.Year() + n
	day := clampDay(d.Day(), d.Month(), year)
	return time.Date(year, d.Month(), day, 0, 0, 0, 0, d.Location())
}

// AddMonths adds n calendar months to d, clamping the day of month to the
// target month's length: Jan 31 plus one month lands on Feb 28 or 29, never
// Mar 2 or 3.
func AddMonths(d time.Time, n int) time.Time {
	total := int(d.Month()) - 1 + n
	year := d.Year() + total/12
	month := time.Month(total%12 + 1)
	day := clampDay(d.Day(), month, year)
	return time.Date(year, month, day, 0, 0, 0, 0, d.Location())
}

// clampDay caps day to the number of days in month/year.
func clampDay(day int, month time.Month, year int) int {
	last := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if day > last {
		return last
	}
	return day
}

// DaysUntil returns the signed number of days from today until expiration.
// Negative means already expired. Both arguments are treated as pure dates;
// any time-of-day component is dropped.
func DaysUntil(expiration, today time.Time) int {
	e := truncateToDay(expiration)
	t := truncateToDay(today)
	return int(e.Sub(t).Hours() / 24)
}

// Classify maps an expiration date to an alert status as of today.
// A nil expiration is permanent. Past dates are expired, under 30 days left
// is critical, under 60 is warning, everything else is valid.
func Classify(expiration *time.Time, today time.Time) Status {
	if expiration == nil {
		return StatusPermanent
	}
	days := DaysUntil(*expiration, today)
	switch {
	case days < 0:
		return StatusExpired
	case days < CriticalDays:
		return StatusCritical
	case days < WarningDays:
		return StatusWarning
	default:
		return StatusValid
	}
}

func truncateToDay(d time.Time) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
}
