// Package controller implements the core business logic (service layer)
// for managing employees and their certification records. Every mutating
// operation runs the same pipeline: validate the input, compute derived
// expiration fields, then write.
package controller

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/wareflow/ems/internal/employee/db"
	e "github.com/wareflow/ems/internal/employee/errors"
	"github.com/wareflow/ems/internal/employee/models"
	"github.com/wareflow/ems/internal/employee/validation"
	"github.com/wareflow/ems/internal/employee/validity"
	"go.uber.org/zap"
)

// DocumentExtensions is the allow-list for supporting document paths.
var DocumentExtensions = []string{".pdf", ".jpg", ".jpeg", ".png"}

// Repository defines the storage interface the service operates against.
// *db.Repository satisfies it, including the transaction-scoped copies
// handed out by WithTransaction.
type Repository interface {
	CreateEmployee(ctx context.Context, employee *models.Employee) error
	GetEmployee(ctx context.Context, id uuid.UUID) (*models.Employee, error)
	UpdateEmployee(ctx context.Context, update *models.EmployeeUpdate) error
	DeleteEmployee(ctx context.Context, id uuid.UUID) error
	ListEmployees(ctx context.Context, status *models.Status) ([]models.Employee, error)
	MatriculeExists(ctx context.Context, matricule string, exclude uuid.UUID) (bool, error)

	CreateCaces(ctx context.Context, caces *models.Caces) error
	CacesFor(ctx context.Context, employeeID uuid.UUID) ([]models.Caces, error)
	CacesByClass(ctx context.Context, class models.CacesClass) ([]models.Caces, error)
	CacesExpiringWithin(ctx context.Context, today time.Time, days int) ([]models.Caces, error)
	CacesExpired(ctx context.Context, today time.Time) ([]models.Caces, error)
	DeleteCaces(ctx context.Context, id uuid.UUID) error

	CreateMedicalVisit(ctx context.Context, visit *models.MedicalVisit) error
	VisitsFor(ctx context.Context, employeeID uuid.UUID) ([]models.MedicalVisit, error)
	VisitsByType(ctx context.Context, visitType models.VisitType) ([]models.MedicalVisit, error)
	VisitsExpiringWithin(ctx context.Context, today time.Time, days int) ([]models.MedicalVisit, error)
	VisitsExpired(ctx context.Context, today time.Time) ([]models.MedicalVisit, error)
	DeleteMedicalVisit(ctx context.Context, id uuid.UUID) error

	CreateTraining(ctx context.Context, training *models.OnlineTraining) error
	TrainingsFor(ctx context.Context, employeeID uuid.UUID) ([]models.OnlineTraining, error)
	TrainingsExpiringWithin(ctx context.Context, today time.Time, days int) ([]models.OnlineTraining, error)
	TrainingsExpired(ctx context.Context, today time.Time) ([]models.OnlineTraining, error)
	DeleteTraining(ctx context.Context, id uuid.UUID) error

	WithTransaction(ctx context.Context, fn func(repo *db.Repository) error) error
	Close() error
}

// EmployeeService provides the in-process API surface consumed by the GUI,
// the CLI and the spreadsheet import collaborator.
type EmployeeService struct {
	repo   Repository
	logger *zap.Logger
}

// NewEmployeeService constructs an EmployeeService with a repository and a
// logger.
func NewEmployeeService(repo Repository, logger *zap.Logger) *EmployeeService {
	return &EmployeeService{
		repo:   repo,
		logger: logger.Named("employee_service"),
	}
}

// today returns the current wall-clock day with the time component dropped.
func today() time.Time {
	now := time.Now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

// ---- Employees ----

// CreateEmployee validates and persists a new employee.
func (s *EmployeeService) CreateEmployee(ctx context.Context, employee *models.Employee) (*models.Employee, error) {
	employee.ID = uuid.New()
	if err := s.createEmployee(ctx, s.repo, employee); err != nil {
		return nil, err
	}
	return employee, nil
}

func (s *EmployeeService) createEmployee(ctx context.Context, repo Repository, employee *models.Employee) error {
	if employee.FirstName == "" || employee.LastName == "" {
		return fmt.Errorf("%w: first and last name are required", e.ErrInvalidInput)
	}
	entry, err := validation.EntryDate(employee.EntryDate, today())
	if err != nil {
		return err
	}
	employee.EntryDate = entry

	if employee.Matricule != nil {
		normalized, err := validation.Matricule(*employee.Matricule)
		if err != nil {
			return err
		}
		exists, err := repo.MatriculeExists(ctx, normalized, employee.ID)
		if err != nil {
			return err
		}
		if exists {
			return e.ErrDuplicateMatricule
		}
		employee.Matricule = &normalized
	}
	if employee.AvatarPath != nil {
		if _, err := validation.SafePath(*employee.AvatarPath, nil); err != nil {
			return err
		}
	}
	if employee.Status == "" {
		employee.Status = models.StatusActive
	}
	return repo.CreateEmployee(ctx, employee)
}

// GetEmployee retrieves an employee by ID, returning ErrNotFound if absent.
func (s *EmployeeService) GetEmployee(ctx context.Context, id uuid.UUID) (*models.Employee, error) {
	return s.repo.GetEmployee(ctx, id)
}

// ListEmployees returns all employees, optionally filtered by status.
func (s *EmployeeService) ListEmployees(ctx context.Context, status *models.Status) ([]models.Employee, error) {
	return s.repo.ListEmployees(ctx, status)
}

// UpdateEmployee re-validates the changed fields, applies the partial
// update and returns the refreshed record.
func (s *EmployeeService) UpdateEmployee(ctx context.Context, update *models.EmployeeUpdate) (*models.Employee, error) {
	if update.ID == uuid.Nil {
		return nil, fmt.Errorf("%w: invalid employee ID", e.ErrInvalidInput)
	}
	if update.Matricule != nil {
		normalized, err := validation.Matricule(*update.Matricule)
		if err != nil {
			return nil, err
		}
		exists, err := s.repo.MatriculeExists(ctx, normalized, update.ID)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, e.ErrDuplicateMatricule
		}
		update.Matricule = &normalized
	}
	if update.EntryDate != nil {
		entry, err := validation.EntryDate(*update.EntryDate, today())
		if err != nil {
			return nil, err
		}
		update.EntryDate = &entry
	}
	if update.AvatarPath != nil {
		if _, err := validation.SafePath(*update.AvatarPath, nil); err != nil {
			return nil, err
		}
	}

	if err := s.repo.UpdateEmployee(ctx, update); err != nil {
		return nil, err
	}
	return s.repo.GetEmployee(ctx, update.ID)
}

// DeleteEmployee removes the employee and all owned certification records.
// The cascade is atomic; confirmation is the UI's job, not ours.
func (s *EmployeeService) DeleteEmployee(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.DeleteEmployee(ctx, id); err != nil {
		return err
	}
	s.logger.Info("employee deleted with owned certifications",
		zap.String("employee_id", id.String()))
	return nil
}

// ---- Certification records ----

// AddCaces validates, derives the expiration date and persists an equipment
// certificate.
func (s *EmployeeService) AddCaces(ctx context.Context, caces *models.Caces) (*models.Caces, error) {
	caces.ID = uuid.New()
	if err := s.addCaces(ctx, s.repo, caces); err != nil {
		return nil, err
	}
	return caces, nil
}

func (s *EmployeeService) addCaces(ctx context.Context, repo Repository, caces *models.Caces) error {
	class, err := validation.CacesClass(string(caces.Class))
	if err != nil {
		return err
	}
	caces.Class = class

	completion, err := validation.DateRange("completion_date", caces.CompletionDate,
		&validation.EmployeeEntryFloor, nil)
	if err != nil {
		return err
	}
	caces.CompletionDate = completion

	if _, err := validation.SafePath(caces.DocumentPath, DocumentExtensions); err != nil {
		return err
	}
	if _, err := repo.GetEmployee(ctx, caces.EmployeeID); err != nil {
		return err
	}
	if caces.ExpirationDate.IsZero() {
		caces.ExpirationDate = validity.CacesExpiration(caces.Class, caces.CompletionDate)
	}
	return repo.CreateCaces(ctx, caces)
}

// AddMedicalVisit validates the type/result combination, derives the
// expiration date and persists a medical visit.
func (s *EmployeeService) AddMedicalVisit(ctx context.Context, visit *models.MedicalVisit) (*models.MedicalVisit, error) {
	visit.ID = uuid.New()
	if err := s.addMedicalVisit(ctx, s.repo, visit); err != nil {
		return nil, err
	}
	return visit, nil
}

func (s *EmployeeService) addMedicalVisit(ctx context.Context, repo Repository, visit *models.MedicalVisit) error {
	if err := validation.VisitConsistency(visit.VisitType, visit.Result); err != nil {
		return err
	}
	visitDate, err := validation.DateRange("visit_date", visit.VisitDate,
		&validation.EmployeeEntryFloor, nil)
	if err != nil {
		return err
	}
	visit.VisitDate = visitDate

	if _, err := validation.SafePath(visit.DocumentPath, DocumentExtensions); err != nil {
		return err
	}
	if _, err := repo.GetEmployee(ctx, visit.EmployeeID); err != nil {
		return err
	}
	if visit.ExpirationDate.IsZero() {
		visit.ExpirationDate = validity.VisitExpiration(visit.VisitType, visit.VisitDate)
	}
	return repo.CreateMedicalVisit(ctx, visit)
}

// AddTraining persists an online training. A nil ValidityMonths makes the
// training permanent: no expiration, never alerted on.
func (s *EmployeeService) AddTraining(ctx context.Context, training *models.OnlineTraining) (*models.OnlineTraining, error) {
	training.ID = uuid.New()
	if err := s.addTraining(ctx, s.repo, training); err != nil {
		return nil, err
	}
	return training, nil
}

func (s *EmployeeService) addTraining(ctx context.Context, repo Repository, training *models.OnlineTraining) error {
	if training.Title == "" {
		return fmt.Errorf("%w: training title is required", e.ErrInvalidInput)
	}
	completion, err := validation.DateRange("completion_date", training.CompletionDate,
		&validation.EmployeeEntryFloor, nil)
	if err != nil {
		return err
	}
	training.CompletionDate = completion

	if training.ValidityMonths != nil && *training.ValidityMonths < 1 {
		return fmt.Errorf("%w: validity months must be positive", e.ErrInvalidInput)
	}
	if training.CertificatePath != nil {
		if _, err := validation.SafePath(*training.CertificatePath, DocumentExtensions); err != nil {
			return err
		}
	}
	if _, err := repo.GetEmployee(ctx, training.EmployeeID); err != nil {
		return err
	}
	if training.ExpirationDate == nil {
		training.ExpirationDate = validity.TrainingExpiration(training.CompletionDate, training.ValidityMonths)
	}
	return repo.CreateTraining(ctx, training)
}

// Certifications bundles every certification record an employee owns.
type Certifications struct {
	Caces     []models.Caces
	Visits    []models.MedicalVisit
	Trainings []models.OnlineTraining
}

// CertificationsFor returns all certification records owned by an employee.
// An explicit query rather than a lazy back-reference, so the fetch cost is
// visible at the call site.
func (s *EmployeeService) CertificationsFor(ctx context.Context, employeeID uuid.UUID) (*Certifications, error) {
	caces, err := s.repo.CacesFor(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	visits, err := s.repo.VisitsFor(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	trainings, err := s.repo.TrainingsFor(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	return &Certifications{Caces: caces, Visits: visits, Trainings: trainings}, nil
}
