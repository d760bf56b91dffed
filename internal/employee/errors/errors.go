package errors

import (
	"fmt"
)

var (
	ErrNotFound           = fmt.Errorf("not found")
	ErrDuplicateMatricule = fmt.Errorf("duplicate matricule")
	ErrInvalidInput       = fmt.Errorf("invalid input")
	// ErrStorage marks unrecoverable storage faults (disk unavailable, file
	// locked by the OS, corruption). Callers present these generically
	// instead of pointing at a field.
	ErrStorage = fmt.Errorf("storage failure")
)
