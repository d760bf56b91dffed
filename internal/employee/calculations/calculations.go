// Package calculations derives per-employee figures from certification
// records: seniority, a compliance score, a roll-up status and a list of
// next actions. Everything here is pure; callers fetch the records and
// pass them in.
package calculations

import (
	"fmt"
	"sort"
	"time"

	"github.com/wareflow/ems/internal/employee/validity"
)

// Item is one compliance-relevant record: a certificate, visit or
// non-permanent training. A nil Expiration marks a permanent item, which
// scoring and actions ignore.
type Item struct {
	Kind       string
	Label      string
	Expiration *time.Time
}

// Score summarizes an employee's compliance items.
type Score struct {
	// Score is normalized to 0..100; 100 with no items at all.
	Score         int
	TotalItems    int
	ValidItems    int
	WarningItems  int
	CriticalItems int
	ExpiredItems  int
}

// Priority orders next actions.
type Priority string

const (
	PriorityUrgent   Priority = "urgent"
	PriorityUpcoming Priority = "upcoming"
)

// Action is one entry of the "what to renew next" list.
type Action struct {
	Priority    Priority
	Description string
	DaysUntil   int
}

// Per-item score contributions before normalization.
const (
	pointsValid    = 100
	pointsWarning  = 50
	pointsCritical = -30
	pointsExpired  = -100
)

// Seniority returns the number of complete years between entryDate and
// today, zero when the entry date is in the future or less than a year
// back. Feb 29 anniversaries count as completed on Feb 28 of non-leap
// years.
func Seniority(entryDate, today time.Time) int {
	if entryDate.After(today) {
		return 0
	}
	years := today.Year() - entryDate.Year()
	anniversary := validity.AddYears(entryDate, years)
	if anniversary.After(today) {
		years--
	}
	if years < 0 {
		return 0
	}
	return years
}

// ComplianceScore scores an employee's items as of today. Each non-
// permanent item contributes by status; the average is normalized from
// [-100, 100] to [0, 100]. No items means nothing to comply with, which
// scores a clean 100.
func ComplianceScore(items []Item, today time.Time) Score {
	score := Score{}
	total := 0
	for _, item := range items {
		if item.Expiration == nil {
			continue
		}
		score.TotalItems++
		switch validity.Classify(item.Expiration, today) {
		case validity.StatusValid:
			score.ValidItems++
			total += pointsValid
		case validity.StatusWarning:
			score.WarningItems++
			total += pointsWarning
		case validity.StatusCritical:
			score.CriticalItems++
			total += pointsCritical
		case validity.StatusExpired:
			score.ExpiredItems++
			total += pointsExpired
		}
	}
	if score.TotalItems == 0 {
		score.Score = 100
		return score
	}
	average := total / score.TotalItems
	score.Score = (average + 100) / 2
	return score
}

// ComplianceStatus rolls the items up to a single badge: critical when
// anything is expired, warning when anything is about to expire, compliant
// otherwise.
func ComplianceStatus(items []Item, today time.Time) string {
	status := "compliant"
	for _, item := range items {
		if item.Expiration == nil {
			continue
		}
		switch validity.Classify(item.Expiration, today) {
		case validity.StatusExpired:
			return "critical"
		case validity.StatusCritical:
			status = "warning"
		}
	}
	return status
}

// NextActions lists the renewals an employee needs, most pressing first:
// expired and critical items are urgent, warnings are upcoming, valid and
// permanent items produce nothing.
func NextActions(items []Item, today time.Time) []Action {
	var actions []Action
	for _, item := range items {
		if item.Expiration == nil {
			continue
		}
		days := validity.DaysUntil(*item.Expiration, today)
		switch validity.Classify(item.Expiration, today) {
		case validity.StatusExpired:
			actions = append(actions, Action{
				Priority:    PriorityUrgent,
				Description: fmt.Sprintf("%s %q expired %d day(s) ago", item.Kind, item.Label, -days),
				DaysUntil:   days,
			})
		case validity.StatusCritical:
			actions = append(actions, Action{
				Priority:    PriorityUrgent,
				Description: fmt.Sprintf("%s %q expires in %d day(s)", item.Kind, item.Label, days),
				DaysUntil:   days,
			})
		case validity.StatusWarning:
			actions = append(actions, Action{
				Priority:    PriorityUpcoming,
				Description: fmt.Sprintf("%s %q expires in %d day(s)", item.Kind, item.Label, days),
				DaysUntil:   days,
			})
		}
	}
	sort.SliceStable(actions, func(i, j int) bool {
		if actions[i].Priority != actions[j].Priority {
			return actions[i].Priority == PriorityUrgent
		}
		return actions[i].DaysUntil < actions[j].DaysUntil
	})
	return actions
}
