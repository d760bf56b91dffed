package controller

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/wareflow/ems/internal/employee/models"
	"github.com/wareflow/ems/internal/employee/validity"
)

// CertKind names the certification record kind an alert refers to.
type CertKind string

const (
	KindCaces    CertKind = "caces"
	KindVisit    CertKind = "medical_visit"
	KindTraining CertKind = "training"
)

// Alert is one row of the alert list: a certification record approaching or
// past its expiration date.
type Alert struct {
	Kind       CertKind
	RecordID   uuid.UUID
	EmployeeID uuid.UUID
	// Label is the category shown to the user: CACES class, visit type or
	// training title.
	Label          string
	ExpirationDate time.Time
	DaysLeft       int
	Status         validity.Status
}

// ExpiringSoon returns every certification record of any kind expiring
// within the next `days` days, soonest first.
func (s *EmployeeService) ExpiringSoon(ctx context.Context, days int) ([]Alert, error) {
	now := today()

	caces, err := s.repo.CacesExpiringWithin(ctx, now, days)
	if err != nil {
		return nil, err
	}
	visits, err := s.repo.VisitsExpiringWithin(ctx, now, days)
	if err != nil {
		return nil, err
	}
	trainings, err := s.repo.TrainingsExpiringWithin(ctx, now, days)
	if err != nil {
		return nil, err
	}
	return collectAlerts(now, caces, visits, trainings), nil
}

// Expired returns every certification record of any kind already past its
// expiration date, longest-expired first.
func (s *EmployeeService) Expired(ctx context.Context) ([]Alert, error) {
	now := today()

	caces, err := s.repo.CacesExpired(ctx, now)
	if err != nil {
		return nil, err
	}
	visits, err := s.repo.VisitsExpired(ctx, now)
	if err != nil {
		return nil, err
	}
	trainings, err := s.repo.TrainingsExpired(ctx, now)
	if err != nil {
		return nil, err
	}
	return collectAlerts(now, caces, visits, trainings), nil
}

func collectAlerts(now time.Time, caces []models.Caces, visits []models.MedicalVisit, trainings []models.OnlineTraining) []Alert {
	alerts := make([]Alert, 0, len(caces)+len(visits)+len(trainings))
	for _, c := range caces {
		alerts = append(alerts, newAlert(KindCaces, c.ID, c.EmployeeID, string(c.Class), c.ExpirationDate, now))
	}
	for _, v := range visits {
		alerts = append(alerts, newAlert(KindVisit, v.ID, v.EmployeeID, string(v.VisitType), v.ExpirationDate, now))
	}
	for _, t := range trainings {
		if t.ExpirationDate == nil {
			continue
		}
		alerts = append(alerts, newAlert(KindTraining, t.ID, t.EmployeeID, t.Title, *t.ExpirationDate, now))
	}
	sort.SliceStable(alerts, func(i, j int) bool {
		return alerts[i].DaysLeft < alerts[j].DaysLeft
	})
	return alerts
}

func newAlert(kind CertKind, recordID, employeeID uuid.UUID, label string, expiration, now time.Time) Alert {
	exp := expiration
	return Alert{
		Kind:           kind,
		RecordID:       recordID,
		EmployeeID:     employeeID,
		Label:          label,
		ExpirationDate: expiration,
		DaysLeft:       validity.DaysUntil(expiration, now),
		Status:         validity.Classify(&exp, now),
	}
}
