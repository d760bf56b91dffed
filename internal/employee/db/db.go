// Package db implements the persistent store for employees, their
// certification records and the application lock, backed by a single shared
// SQLite file.
package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	e "github.com/wareflow/ems/internal/employee/errors"
	"github.com/wareflow/ems/internal/employee/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type Repository struct {
	db *gorm.DB
}

type Config struct {
	// Path is the database file, typically on a shared network drive.
	Path string
	// BusyTimeoutMS bounds how long a blocked writer waits on SQLite's own
	// lock before failing. Defaults to 5000.
	BusyTimeoutMS int
}

// NewRepository opens (or creates) the database file and migrates the
// schema. WAL mode lets readers keep working while a writer is active, and
// foreign-key enforcement must be switched on explicitly or cascade deletes
// silently stop cascading.
func NewRepository(cfg *Config) (*Repository, error) {
	timeout := cfg.BusyTimeoutMS
	if timeout <= 0 {
		timeout = 5000
	}
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=%d&_foreign_keys=on",
		cfg.Path, timeout)

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open database: %v", e.ErrStorage, err)
	}

	// An in-memory database exists per connection, so the pool must be
	// capped at one or each connection sees its own empty schema.
	if cfg.Path == ":memory:" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", e.ErrStorage, err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := migrate(db); err != nil {
		return nil, err
	}
	return &Repository{db: db}, nil
}

func migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.Employee{},
		&models.Caces{},
		&models.MedicalVisit{},
		&models.OnlineTraining{},
		&models.AppLock{},
	)
	if err != nil {
		return fmt.Errorf("%w: failed to migrate database: %v", e.ErrStorage, err)
	}
	return nil
}

// storage wraps low-level database failures so callers can tell them apart
// from validation problems.
func storage(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", e.ErrStorage, op, err)
}

// ---- Employees ----

func (r *Repository) CreateEmployee(ctx context.Context, employee *models.Employee) error {
	result := r.db.WithContext(ctx).Create(employee)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return e.ErrDuplicateMatricule
		}
		return storage("create employee", result.Error)
	}
	return nil
}

func (r *Repository) GetEmployee(ctx context.Context, id uuid.UUID) (*models.Employee, error) {
	var employee models.Employee
	result := r.db.WithContext(ctx).First(&employee, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, e.ErrNotFound
		}
		return nil, storage("get employee", result.Error)
	}
	return &employee, nil
}

func (r *Repository) UpdateEmployee(ctx context.Context, update *models.EmployeeUpdate) error {
	result := r.db.WithContext(ctx).Model(&models.Employee{}).
		Where("id = ?", update.ID).
		Updates(update)

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return e.ErrDuplicateMatricule
		}
		return storage("update employee", result.Error)
	}
	if result.RowsAffected == 0 {
		return e.ErrNotFound
	}
	return nil
}

// DeleteEmployee removes an employee and every certification record the
// employee owns, in one transaction. Either all rows disappear or none do.
func (r *Repository) DeleteEmployee(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, model := range []any{&models.Caces{}, &models.MedicalVisit{}, &models.OnlineTraining{}} {
			if err := tx.Delete(model, "employee_id = ?", id).Error; err != nil {
				return storage("cascade delete", err)
			}
		}
		result := tx.Delete(&models.Employee{}, "id = ?", id)
		if result.Error != nil {
			return storage("delete employee", result.Error)
		}
		if result.RowsAffected == 0 {
			return e.ErrNotFound
		}
		return nil
	})
}

// ListEmployees returns employees ordered by last name, optionally filtered
// by status.
func (r *Repository) ListEmployees(ctx context.Context, status *models.Status) ([]models.Employee, error) {
	var employees []models.Employee
	query := r.db.WithContext(ctx).Order("last_name, first_name")
	if status != nil {
		query = query.Where("status = ?", *status)
	}
	if err := query.Find(&employees).Error; err != nil {
		return nil, storage("list employees", err)
	}
	return employees, nil
}

// MatriculeExists reports whether a different employee already carries the
// matricule. The excluded ID makes update checks skip the row being updated.
func (r *Repository) MatriculeExists(ctx context.Context, matricule string, exclude uuid.UUID) (bool, error) {
	var count int64
	result := r.db.WithContext(ctx).Model(&models.Employee{}).
		Where("matricule = ? AND id <> ?", matricule, exclude).
		Limit(1).
		Count(&count)
	if result.Error != nil {
		return false, storage("check matricule", result.Error)
	}
	return count > 0, nil
}

// ---- Caces ----

func (r *Repository) CreateCaces(ctx context.Context, caces *models.Caces) error {
	if err := r.db.WithContext(ctx).Create(caces).Error; err != nil {
		return storage("create caces", err)
	}
	return nil
}

func (r *Repository) CacesFor(ctx context.Context, employeeID uuid.UUID) ([]models.Caces, error) {
	var records []models.Caces
	err := r.db.WithContext(ctx).
		Where("employee_id = ?", employeeID).
		Order("expiration_date").
		Find(&records).Error
	if err != nil {
		return nil, storage("list caces", err)
	}
	return records, nil
}

func (r *Repository) CacesByClass(ctx context.Context, class models.CacesClass) ([]models.Caces, error) {
	var records []models.Caces
	err := r.db.WithContext(ctx).
		Where("class = ?", class).
		Order("expiration_date").
		Find(&records).Error
	if err != nil {
		return nil, storage("list caces by class", err)
	}
	return records, nil
}

// CacesExpiringWithin returns certificates whose expiration falls between
// today and today+days inclusive, soonest first.
func (r *Repository) CacesExpiringWithin(ctx context.Context, today time.Time, days int) ([]models.Caces, error) {
	var records []models.Caces
	err := r.db.WithContext(ctx).
		Where("expiration_date >= ? AND expiration_date <= ?", today, today.AddDate(0, 0, days)).
		Order("expiration_date").
		Find(&records).Error
	if err != nil {
		return nil, storage("list expiring caces", err)
	}
	return records, nil
}

func (r *Repository) CacesExpired(ctx context.Context, today time.Time) ([]models.Caces, error) {
	var records []models.Caces
	err := r.db.WithContext(ctx).
		Where("expiration_date < ?", today).
		Order("expiration_date").
		Find(&records).Error
	if err != nil {
		return nil, storage("list expired caces", err)
	}
	return records, nil
}

func (r *Repository) DeleteCaces(ctx context.Context, id uuid.UUID) error {
	return deleteByID[models.Caces](ctx, r, id, "delete caces")
}

// ---- Medical visits ----

func (r *Repository) CreateMedicalVisit(ctx context.Context, visit *models.MedicalVisit) error {
	if err := r.db.WithContext(ctx).Create(visit).Error; err != nil {
		return storage("create medical visit", err)
	}
	return nil
}

func (r *Repository) VisitsFor(ctx context.Context, employeeID uuid.UUID) ([]models.MedicalVisit, error) {
	var records []models.MedicalVisit
	err := r.db.WithContext(ctx).
		Where("employee_id = ?", employeeID).
		Order("expiration_date").
		Find(&records).Error
	if err != nil {
		return nil, storage("list medical visits", err)
	}
	return records, nil
}

func (r *Repository) VisitsByType(ctx context.Context, visitType models.VisitType) ([]models.MedicalVisit, error) {
	var records []models.MedicalVisit
	err := r.db.WithContext(ctx).
		Where("visit_type = ?", visitType).
		Order("expiration_date").
		Find(&records).Error
	if err != nil {
		return nil, storage("list medical visits by type", err)
	}
	return records, nil
}

func (r *Repository) VisitsExpiringWithin(ctx context.Context, today time.Time, days int) ([]models.MedicalVisit, error) {
	var records []models.MedicalVisit
	err := r.db.WithContext(ctx).
		Where("expiration_date >= ? AND expiration_date <= ?", today, today.AddDate(0, 0, days)).
		Order("expiration_date").
		Find(&records).Error
	if err != nil {
		return nil, storage("list expiring medical visits", err)
	}
	return records, nil
}

func (r *Repository) VisitsExpired(ctx context.Context, today time.Time) ([]models.MedicalVisit, error) {
	var records []models.MedicalVisit
	err := r.db.WithContext(ctx).
		Where("expiration_date < ?", today).
		Order("expiration_date").
		Find(&records).Error
	if err != nil {
		return nil, storage("list expired medical visits", err)
	}
	return records, nil
}

func (r *Repository) DeleteMedicalVisit(ctx context.Context, id uuid.UUID) error {
	return deleteByID[models.MedicalVisit](ctx, r, id, "delete medical visit")
}

// ---- Online trainings ----

func (r *Repository) CreateTraining(ctx context.Context, training *models.OnlineTraining) error {
	if err := r.db.WithContext(ctx).Create(training).Error; err != nil {
		return storage("create training", err)
	}
	return nil
}

func (r *Repository) TrainingsFor(ctx context.Context, employeeID uuid.UUID) ([]models.OnlineTraining, error) {
	var records []models.OnlineTraining
	err := r.db.WithContext(ctx).
		Where("employee_id = ?", employeeID).
		Order("expiration_date").
		Find(&records).Error
	if err != nil {
		return nil, storage("list trainings", err)
	}
	return records, nil
}

// TrainingsExpiringWithin excludes permanent trainings: a null expiration
// never matches the window.
func (r *Repository) TrainingsExpiringWithin(ctx context.Context, today time.Time, days int) ([]models.OnlineTraining, error) {
	var records []models.OnlineTraining
	err := r.db.WithContext(ctx).
		Where("expiration_date IS NOT NULL AND expiration_date >= ? AND expiration_date <= ?",
			today, today.AddDate(0, 0, days)).
		Order("expiration_date").
		Find(&records).Error
	if err != nil {
		return nil, storage("list expiring trainings", err)
	}
	return records, nil
}

func (r *Repository) TrainingsExpired(ctx context.Context, today time.Time) ([]models.OnlineTraining, error) {
	var records []models.OnlineTraining
	err := r.db.WithContext(ctx).
		Where("expiration_date IS NOT NULL AND expiration_date < ?", today).
		Order("expiration_date").
		Find(&records).Error
	if err != nil {
		return nil, storage("list expired trainings", err)
	}
	return records, nil
}

func (r *Repository) DeleteTraining(ctx context.Context, id uuid.UUID) error {
	return deleteByID[models.OnlineTraining](ctx, r, id, "delete training")
}

func deleteByID[T any](ctx context.Context, r *Repository, id uuid.UUID, op string) error {
	var model T
	result := r.db.WithContext(ctx).Delete(&model, "id = ?", id)
	if result.Error != nil {
		return storage(op, result.Error)
	}
	if result.RowsAffected == 0 {
		return e.ErrNotFound
	}
	return nil
}

// ---- Application lock ----

// GetAppLock returns the lock row regardless of staleness, or ErrNotFound.
func (r *Repository) GetAppLock(ctx context.Context) (*models.AppLock, error) {
	var lock models.AppLock
	result := r.db.WithContext(ctx).First(&lock)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, e.ErrNotFound
		}
		return nil, storage("get lock", result.Error)
	}
	return &lock, nil
}

func (r *Repository) CreateAppLock(ctx context.Context, lock *models.AppLock) error {
	if err := r.db.WithContext(ctx).Create(lock).Error; err != nil {
		return storage("create lock", err)
	}
	return nil
}

// TouchAppLock refreshes only the heartbeat timestamp, and only when the
// stored holder matches. Reports whether a row was updated.
func (r *Repository) TouchAppLock(ctx context.Context, hostname string, pid int, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.AppLock{}).
		Where("hostname = ? AND pid = ?", hostname, pid).
		Update("last_heartbeat", at)
	if result.Error != nil {
		return false, storage("touch lock", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// DeleteAppLock removes the lock row only when the stored holder matches.
// Reports whether a row was deleted.
func (r *Repository) DeleteAppLock(ctx context.Context, hostname string, pid int) (bool, error) {
	result := r.db.WithContext(ctx).
		Where("hostname = ? AND pid = ?", hostname, pid).
		Delete(&models.AppLock{})
	if result.Error != nil {
		return false, storage("delete lock", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// ClearAppLock unconditionally removes any lock row. Used when reclaiming a
// stale lock inside the acquisition transaction.
func (r *Repository) ClearAppLock(ctx context.Context) error {
	if err := r.db.WithContext(ctx).Where("1 = 1").Delete(&models.AppLock{}).Error; err != nil {
		return storage("clear lock", err)
	}
	return nil
}

// ---- Plumbing ----

func (r *Repository) WithTransaction(ctx context.Context, fn func(repo *Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Repository{db: tx})
	})
}

func (r *Repository) Exec(ctx context.Context, query string, params ...interface{}) error {
	result := r.db.WithContext(ctx).Exec(query, params...)
	if result.Error != nil {
		return result.Error
	}
	return nil
}

func (r *Repository) Close() error {
	db, err := r.db.DB()
	if err != nil {
		return err
	}
	return db.Close()
}
