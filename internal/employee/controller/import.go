package controller

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/wareflow/ems/internal/employee/db"
	e "github.com/wareflow/ems/internal/employee/errors"
	"github.com/wareflow/ems/internal/employee/models"
)

// ImportMode selects the batch policy. The store primitive is always
// atomic per submitted batch; tolerant mode gets its per-row semantics by
// applying each row as its own single-row batch.
type ImportMode int

const (
	// Strict rolls back the whole batch when any row fails.
	Strict ImportMode = iota
	// Tolerant commits the rows that pass and reports the rest.
	Tolerant
)

// ImportRowError pairs a rejected row's position in the batch with the
// structured error that rejected it.
type ImportRowError struct {
	Index int
	Err   error
}

// ImportResult is reported per batch: how many rows went in, and which
// rows were rejected and why.
type ImportResult struct {
	Inserted int
	Rejected []ImportRowError
}

// errBatchRejected aborts the strict-mode transaction once every row has
// been examined. It never escapes to the caller.
var errBatchRejected = fmt.Errorf("batch rejected")

// runImport applies n rows through apply. Validation failures are collected
// per row rather than short-circuiting; storage faults abort the import
// outright.
func (s *EmployeeService) runImport(ctx context.Context, n int, mode ImportMode,
	apply func(ctx context.Context, repo Repository, i int) error) (*ImportResult, error) {

	result := &ImportResult{}

	if mode == Tolerant {
		for i := 0; i < n; i++ {
			err := s.repo.WithTransaction(ctx, func(tx *db.Repository) error {
				return apply(ctx, tx, i)
			})
			if err != nil {
				if errors.Is(err, e.ErrStorage) {
					return nil, err
				}
				result.Rejected = append(result.Rejected, ImportRowError{Index: i, Err: err})
				continue
			}
			result.Inserted++
		}
		return result, nil
	}

	err := s.repo.WithTransaction(ctx, func(tx *db.Repository) error {
		for i := 0; i < n; i++ {
			if err := apply(ctx, tx, i); err != nil {
				if errors.Is(err, e.ErrStorage) {
					return err
				}
				result.Rejected = append(result.Rejected, ImportRowError{Index: i, Err: err})
				continue
			}
			result.Inserted++
		}
		if len(result.Rejected) > 0 {
			return errBatchRejected
		}
		return nil
	})
	if err != nil && !errors.Is(err, errBatchRejected) {
		return nil, err
	}
	if len(result.Rejected) > 0 {
		// The transaction rolled back, so nothing was actually inserted.
		result.Inserted = 0
	}
	return result, nil
}

// ImportEmployees applies a batch of pre-parsed employee rows.
func (s *EmployeeService) ImportEmployees(ctx context.Context, rows []models.Employee, mode ImportMode) (*ImportResult, error) {
	return s.runImport(ctx, len(rows), mode, func(ctx context.Context, repo Repository, i int) error {
		rows[i].ID = uuid.New()
		return s.createEmployee(ctx, repo, &rows[i])
	})
}

// ImportCaces applies a batch of pre-parsed equipment-certificate rows.
func (s *EmployeeService) ImportCaces(ctx context.Context, rows []models.Caces, mode ImportMode) (*ImportResult, error) {
	return s.runImport(ctx, len(rows), mode, func(ctx context.Context, repo Repository, i int) error {
		rows[i].ID = uuid.New()
		return s.addCaces(ctx, repo, &rows[i])
	})
}

// ImportMedicalVisits applies a batch of pre-parsed medical-visit rows.
func (s *EmployeeService) ImportMedicalVisits(ctx context.Context, rows []models.MedicalVisit, mode ImportMode) (*ImportResult, error) {
	return s.runImport(ctx, len(rows), mode, func(ctx context.Context, repo Repository, i int) error {
		rows[i].ID = uuid.New()
		return s.addMedicalVisit(ctx, repo, &rows[i])
	})
}

// ImportTrainings applies a batch of pre-parsed training rows.
func (s *EmployeeService) ImportTrainings(ctx context.Context, rows []models.OnlineTraining, mode ImportMode) (*ImportResult, error) {
	return s.runImport(ctx, len(rows), mode, func(ctx context.Context, repo Repository, i int) error {
		rows[i].ID = uuid.New()
		return s.addTraining(ctx, repo, &rows[i])
	})
}
