// Package validation implements the field and cross-field checks run before
// a record reaches the store. Each check returns the normalized value on
// success or a structured *Error identifying the offending field.
package validation

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	e "github.com/wareflow/ems/internal/employee/errors"
	"github.com/wareflow/ems/internal/employee/models"
)

// Error is a structured validation failure. It unwraps to ErrInvalidInput so
// callers can branch with errors.Is while still reaching the field details.
type Error struct {
	Field   string
	Value   any
	Message string
	// Details carries machine-readable context, e.g. which forbidden
	// pattern matched.
	Details map[string]string
}

func (v *Error) Error() string {
	return fmt.Sprintf("%s: %s (got %v)", v.Field, v.Message, v.Value)
}

func (v *Error) Unwrap() error {
	return e.ErrInvalidInput
}

func newError(field string, value any, message string, details map[string]string) *Error {
	return &Error{Field: field, Value: value, Message: message, Details: details}
}

// EmployeeEntryFloor is the oldest acceptable entry date.
var EmployeeEntryFloor = time.Date(1900, time.January, 1, 0, 0, 0, 0, time.UTC)

var matriculePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// traversalPatterns are the substrings that would let a value escape its
// base directory when used to build a file path. A bare ".." is only a
// traversal when it forms a whole path component, which containsTraversal
// checks separately.
var traversalPatterns = []string{"../", `..\`}

// Matricule validates an external reference code: 3 to 50 characters,
// letters, digits, underscore and dash only, no traversal sequences. The
// value doubles as a folder name downstream, hence the strictness.
func Matricule(value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if len(trimmed) < 3 || len(trimmed) > 50 {
		return "", newError("matricule", value, "must be 3 to 50 characters",
			map[string]string{"length": fmt.Sprintf("%d", len(trimmed))})
	}
	for _, pattern := range traversalPatterns {
		if strings.Contains(trimmed, pattern) {
			return "", newError("matricule", value, "must not contain path traversal sequences",
				map[string]string{"pattern": pattern})
		}
	}
	if !matriculePattern.MatchString(trimmed) {
		return "", newError("matricule", value, "only letters, digits, '_' and '-' are allowed", nil)
	}
	return trimmed, nil
}

// DateRange validates that a date falls between optional bounds. The field
// name is threaded through for error messages.
func DateRange(field string, value time.Time, min, max *time.Time) (time.Time, error) {
	if value.IsZero() {
		return time.Time{}, newError(field, value, "is required", nil)
	}
	if min != nil && value.Before(*min) {
		return time.Time{}, newError(field, value,
			fmt.Sprintf("must not be before %s", min.Format("2006-01-02")), nil)
	}
	if max != nil && value.After(*max) {
		return time.Time{}, newError(field, value,
			fmt.Sprintf("must not be after %s", max.Format("2006-01-02")), nil)
	}
	return value, nil
}

// EntryDate validates an employee entry date: required, not before
// 1900-01-01, not in the future.
func EntryDate(value time.Time, today time.Time) (time.Time, error) {
	return DateRange("entry_date", value, &EmployeeEntryFloor, &today)
}

// CacesClass validates an equipment class case-insensitively and returns
// the canonical uppercase form.
func CacesClass(value string) (models.CacesClass, error) {
	canonical := models.CacesClass(strings.ToUpper(strings.TrimSpace(value)))
	for _, class := range models.CacesClasses {
		if canonical == class {
			return class, nil
		}
	}
	return "", newError("class", value, "unknown CACES class",
		map[string]string{"allowed": joinClasses()})
}

// VisitConsistency validates the visit type and result and rejects the one
// forbidden combination: a recovery visit whose result is not
// fit_with_restrictions.
func VisitConsistency(visitType models.VisitType, result models.VisitResult) error {
	switch visitType {
	case models.VisitInitial, models.VisitPeriodic, models.VisitRecovery:
	default:
		return newError("visit_type", visitType, "unknown visit type", nil)
	}
	switch result {
	case models.ResultFit, models.ResultUnfit, models.ResultFitWithRestrictions:
	default:
		return newError("result", result, "unknown visit result", nil)
	}
	if visitType == models.VisitRecovery && result != models.ResultFitWithRestrictions {
		return newError("result", result,
			"a recovery visit requires result fit_with_restrictions",
			map[string]string{"visit_type": string(visitType)})
	}
	return nil
}

// SafePath validates a document path: relative, no traversal sequences, no
// drive letters, and optionally restricted to an extension allow-list
// (lowercase, with leading dot, e.g. ".pdf").
func SafePath(value string, allowedExts []string) (string, error) {
	if value == "" {
		return "", newError("path", value, "is required", nil)
	}
	if strings.HasPrefix(value, "/") || strings.HasPrefix(value, `\`) {
		return "", newError("path", value, "must be relative",
			map[string]string{"pattern": "leading separator"})
	}
	if len(value) >= 2 && value[1] == ':' && isASCIILetter(value[0]) {
		return "", newError("path", value, "must not start with a drive letter",
			map[string]string{"pattern": "drive letter"})
	}
	if pattern, found := containsTraversal(value); found {
		return "", newError("path", value, "must not contain path traversal sequences",
			map[string]string{"pattern": pattern})
	}
	if len(allowedExts) > 0 {
		ext := strings.ToLower(extensionOf(value))
		for _, allowed := range allowedExts {
			if ext == allowed {
				return value, nil
			}
		}
		return "", newError("path", value, "file extension is not allowed",
			map[string]string{"extension": ext, "allowed": strings.Join(allowedExts, ",")})
	}
	return value, nil
}

// containsTraversal reports whether the path contains a traversal sequence
// and which pattern matched.
func containsTraversal(path string) (string, bool) {
	for _, pattern := range traversalPatterns {
		if strings.Contains(path, pattern) {
			return pattern, true
		}
	}
	for _, part := range strings.FieldsFunc(path, func(r rune) bool {
		return r == '/' || r == '\\'
	}) {
		if part == ".." {
			return "..", true
		}
	}
	return "", false
}

func extensionOf(path string) string {
	idx := strings.LastIndexByte(path, '.')
	if idx < 0 {
		return ""
	}
	return path[idx:]
}

func isASCIILetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func joinClasses() string {
	parts := make([]string, len(models.CacesClasses))
	for i, class := range models.CacesClasses {
		parts[i] = string(class)
	}
	return strings.Join(parts, ",")
}
