package models

import (
	"time"

	"github.com/google/uuid"
)

// CacesClass represents a class of heavy-equipment operating certificate
// (CACES R489 family).
type CacesClass string

const (
	CacesR489_1A CacesClass = "R489-1A"
	CacesR489_1B CacesClass = "R489-1B"
	CacesR489_3  CacesClass = "R489-3"
	CacesR489_4  CacesClass = "R489-4"
	CacesR489_5  CacesClass = "R489-5"
)

// CacesClasses lists every recognized certificate class.
var CacesClasses = []CacesClass{
	CacesR489_1A,
	CacesR489_1B,
	CacesR489_3,
	CacesR489_4,
	CacesR489_5,
}

// VisitType represents the kind of an occupational-medicine visit.
type VisitType string

const (
	VisitInitial  VisitType = "initial"
	VisitPeriodic VisitType = "periodic"
	VisitRecovery VisitType = "recovery"
)

// VisitResult represents the outcome of a medical visit.
type VisitResult string

const (
	ResultFit                 VisitResult = "fit"
	ResultUnfit               VisitResult = "unfit"
	ResultFitWithRestrictions VisitResult = "fit_with_restrictions"
)

// Caces is a time-boxed authorization to operate a class of heavy equipment.
// ExpirationDate is derived from CompletionDate and the class validity.
type Caces struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	EmployeeID uuid.UUID `gorm:"type:uuid;not null;index:idx_caces_employee_expiration"`
	Employee   *Employee `gorm:"constraint:OnDelete:CASCADE"`
	// Class is the equipment class, one of CacesClasses.
	Class CacesClass `gorm:"size:20;not null"`
	// CompletionDate is the day the certificate was obtained.
	CompletionDate time.Time `gorm:"not null"`
	// ExpirationDate is always CompletionDate plus the class validity.
	ExpirationDate time.Time `gorm:"not null;index:idx_caces_employee_expiration"`
	// DocumentPath points at the scanned certificate, relative to the
	// document root. Required.
	DocumentPath string `gorm:"size:500;not null"`
	CreatedAt    time.Time
}

// MedicalVisit is an occupational-medicine checkup record. Validity is one
// year for recovery visits and two years otherwise.
type MedicalVisit struct {
	ID         uuid.UUID   `gorm:"type:uuid;primaryKey"`
	EmployeeID uuid.UUID   `gorm:"type:uuid;not null;index:idx_visit_employee_expiration"`
	Employee   *Employee   `gorm:"constraint:OnDelete:CASCADE"`
	VisitType  VisitType   `gorm:"size:20;not null"`
	VisitDate  time.Time   `gorm:"not null"`
	Result     VisitResult `gorm:"size:30;not null"`
	// ExpirationDate is derived from VisitDate and VisitType.
	ExpirationDate time.Time `gorm:"not null;index:idx_visit_employee_expiration"`
	DocumentPath   string    `gorm:"size:500;not null"`
	CreatedAt      time.Time
}

// OnlineTraining is a completion record for an online course. A nil
// ValidityMonths means the training never expires; ExpirationDate is nil in
// that case and the record never shows up in expiring or expired queries.
type OnlineTraining struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey"`
	EmployeeID     uuid.UUID  `gorm:"type:uuid;not null;index:idx_training_employee_expiration"`
	Employee       *Employee  `gorm:"constraint:OnDelete:CASCADE"`
	Title          string     `gorm:"size:255;not null"`
	CompletionDate time.Time  `gorm:"not null"`
	ValidityMonths *int       `gorm:""`
	ExpirationDate *time.Time `gorm:"index:idx_training_employee_expiration"`
	// CertificatePath is optional for trainings, unlike the two regulated
	// certification kinds.
	CertificatePath *string `gorm:"size:500"`
	CreatedAt       time.Time
}
