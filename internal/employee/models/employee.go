// Package models defines the core domain models for the employee data store:
// Employee, Caces, MedicalVisit, OnlineTraining and their enumerations.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Status represents the employment status of an employee.
type Status string

const (
	// StatusActive marks an employee currently under contract.
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// ContractType represents the kind of employment contract.
type ContractType string

const (
	ContractCDI        ContractType = "CDI"
	ContractCDD        ContractType = "CDD"
	ContractInterim    ContractType = "Interim"
	ContractAlternance ContractType = "Alternance"
)

// Employee defines the domain model for a warehouse employee.
type Employee struct {
	// ID is the unique identifier for the employee.
	ID uuid.UUID `gorm:"type:uuid;primaryKey"`
	// Matricule is the optional external reference code, unique when present.
	// It is also used to build document folder names, so it is restricted to
	// a path-safe character set.
	Matricule *string `gorm:"size:50;uniqueIndex"`
	// FirstName is the employee’s first name.
	FirstName string `gorm:"size:100;not null"`
	// LastName is the employee’s last name.
	LastName string `gorm:"size:100;not null"`
	// Status is the employment status (active or inactive).
	Status Status `gorm:"size:20;not null;default:active"`
	// Workspace is the warehouse area the employee is assigned to.
	Workspace string `gorm:"size:100"`
	// Role is the employee’s job title.
	Role string `gorm:"size:100"`
	// ContractType is the kind of employment contract.
	ContractType ContractType `gorm:"size:20"`
	// EntryDate is the date the employee joined the company.
	EntryDate time.Time `gorm:"not null"`
	// Phone is an optional contact number.
	Phone string `gorm:"size:30"`
	// Email is an optional contact address.
	Email string `gorm:"size:255"`
	// AvatarPath is an optional relative path to a profile picture.
	AvatarPath *string `gorm:"size:500"`
	// CreatedAt records when the employee row was created.
	CreatedAt time.Time
	// UpdatedAt records the last modification time, refreshed on every save.
	UpdatedAt time.Time
}

// EmployeeUpdate represents the fields that can be updated for an Employee.
// Pointer types are used to allow partial updates.
type EmployeeUpdate struct {
	ID           uuid.UUID
	Matricule    *string
	FirstName    *string
	LastName     *string
	Status       *Status
	Workspace    *string
	Role         *string
	ContractType *ContractType
	EntryDate    *time.Time
	Phone        *string
	Email        *string
	AvatarPath   *string
}

// FullName returns the display name used by list views and alerts.
func (e *Employee) FullName() string {
	return e.FirstName + " " + e.LastName
}
