package controller

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wareflow/ems/internal/employee/db"
	e "github.com/wareflow/ems/internal/employee/errors"
	"github.com/wareflow/ems/internal/employee/models"
	"github.com/wareflow/ems/internal/pkg/utils"
	"go.uber.org/zap/zaptest"
)

func setupService(t *testing.T) *EmployeeService {
	repo, err := db.NewRepository(&db.Config{Path: ":memory:"})
	require.NoError(t, err, "failed to open test database")
	t.Cleanup(func() { _ = repo.Close() })
	return NewEmployeeService(repo, zaptest.NewLogger(t))
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func createTestEmployee(t *testing.T, s *EmployeeService) *models.Employee {
	employee, err := s.CreateEmployee(context.Background(), &models.Employee{
		FirstName:    "Jean",
		LastName:     "Dupont",
		Status:       models.StatusActive,
		Workspace:    "Quai",
		Role:         "Préparateur",
		ContractType: models.ContractCDI,
		EntryDate:    day(2020, time.January, 15),
	})
	require.NoError(t, err, "CreateEmployee should succeed")
	return employee
}

// TestCreateEmployeeValidation rejects bad names, dates and matricules
// before anything reaches the store.
func TestCreateEmployeeValidation(t *testing.T) {
	s := setupService(t)
	ctx := context.Background()

	_, err := s.CreateEmployee(ctx, &models.Employee{LastName: "Dupont", EntryDate: day(2020, 1, 1)})
	assert.ErrorIs(t, err, e.ErrInvalidInput, "missing first name")

	_, err = s.CreateEmployee(ctx, &models.Employee{
		FirstName: "Jean", LastName: "Dupont",
		EntryDate: time.Now().AddDate(0, 0, 7),
	})
	assert.ErrorIs(t, err, e.ErrInvalidInput, "future entry date")

	_, err = s.CreateEmployee(ctx, &models.Employee{
		FirstName: "Jean", LastName: "Dupont",
		EntryDate: day(2020, 1, 1),
		Matricule: utils.Ptr("../escape"),
	})
	assert.ErrorIs(t, err, e.ErrInvalidInput, "traversal in matricule")
}

// TestCreateEmployeeDuplicateMatricule checks the uniqueness guard.
func TestCreateEmployeeDuplicateMatricule(t *testing.T) {
	s := setupService(t)
	ctx := context.Background()

	_, err := s.CreateEmployee(ctx, &models.Employee{
		FirstName: "Jean", LastName: "Dupont",
		EntryDate: day(2020, 1, 1),
		Matricule: utils.Ptr("MATR001"),
	})
	require.NoError(t, err)

	_, err = s.CreateEmployee(ctx, &models.Employee{
		FirstName: "Marie", LastName: "Martin",
		EntryDate: day(2021, 1, 1),
		Matricule: utils.Ptr("MATR001"),
	})
	assert.ErrorIs(t, err, e.ErrDuplicateMatricule)
}

// TestUpdateEmployeeKeepsOwnMatricule ensures updating a record with its
// existing matricule does not trip the uniqueness check.
func TestUpdateEmployeeKeepsOwnMatricule(t *testing.T) {
	s := setupService(t)
	ctx := context.Background()

	employee, err := s.CreateEmployee(ctx, &models.Employee{
		FirstName: "Jean", LastName: "Dupont",
		EntryDate: day(2020, 1, 1),
		Matricule: utils.Ptr("MATR001"),
	})
	require.NoError(t, err)

	updated, err := s.UpdateEmployee(ctx, &models.EmployeeUpdate{
		ID:        employee.ID,
		Matricule: utils.Ptr("MATR001"),
		Role:      utils.Ptr("Cariste"),
	})
	require.NoError(t, err, "re-saving the same matricule should be allowed")
	assert.Equal(t, "Cariste", updated.Role)
}

// TestAddCacesDerivesExpiration verifies the validate-then-compute-then-
// write pipeline fills in the expiration date.
func TestAddCacesDerivesExpiration(t *testing.T) {
	s := setupService(t)
	ctx := context.Background()
	employee := createTestEmployee(t, s)

	caces, err := s.AddCaces(ctx, &models.Caces{
		EmployeeID:     employee.ID,
		Class:          "r489-1a",
		CompletionDate: day(2023, time.January, 10),
		DocumentPath:   "caces/MATR001/cert.pdf",
	})
	require.NoError(t, err)
	assert.Equal(t, models.CacesR489_1A, caces.Class, "class should be normalized to uppercase")
	assert.Equal(t, day(2028, time.January, 10), caces.ExpirationDate, "5-year class")

	ten, err := s.AddCaces(ctx, &models.Caces{
		EmployeeID:     employee.ID,
		Class:          models.CacesR489_5,
		CompletionDate: day(2023, time.January, 10),
		DocumentPath:   "caces/MATR001/cert5.pdf",
	})
	require.NoError(t, err)
	assert.Equal(t, day(2033, time.January, 10), ten.ExpirationDate, "R489-5 is a 10-year class")
}

// TestAddCacesRejections covers unknown class, bad document path and
// missing employee.
func TestAddCacesRejections(t *testing.T) {
	s := setupService(t)
	ctx := context.Background()
	employee := createTestEmployee(t, s)

	_, err := s.AddCaces(ctx, &models.Caces{
		EmployeeID:     employee.ID,
		Class:          "R489-9",
		CompletionDate: day(2023, 1, 10),
		DocumentPath:   "caces/cert.pdf",
	})
	assert.ErrorIs(t, err, e.ErrInvalidInput, "unknown class")

	_, err = s.AddCaces(ctx, &models.Caces{
		EmployeeID:     employee.ID,
		Class:          models.CacesR489_3,
		CompletionDate: day(2023, 1, 10),
		DocumentPath:   "../../etc/passwd.pdf",
	})
	assert.ErrorIs(t, err, e.ErrInvalidInput, "traversal in document path")

	_, err = s.AddCaces(ctx, &models.Caces{
		EmployeeID:     uuid.New(),
		Class:          models.CacesR489_3,
		CompletionDate: day(2023, 1, 10),
		DocumentPath:   "caces/cert.pdf",
	})
	assert.ErrorIs(t, err, e.ErrNotFound, "unknown employee")
}

// TestAddMedicalVisitRecoveryInvariant checks the recovery/result rule end
// to end: unfit is rejected, fit_with_restrictions is accepted with a
// one-year validity.
func TestAddMedicalVisitRecoveryInvariant(t *testing.T) {
	s := setupService(t)
	ctx := context.Background()
	employee := createTestEmployee(t, s)

	_, err := s.AddMedicalVisit(ctx, &models.MedicalVisit{
		EmployeeID:   employee.ID,
		VisitType:    models.VisitRecovery,
		VisitDate:    day(2024, time.February, 1),
		Result:       models.ResultUnfit,
		DocumentPath: "medical/visit.pdf",
	})
	assert.ErrorIs(t, err, e.ErrInvalidInput, "recovery + unfit must be rejected")

	visit, err := s.AddMedicalVisit(ctx, &models.MedicalVisit{
		EmployeeID:   employee.ID,
		VisitType:    models.VisitRecovery,
		VisitDate:    day(2024, time.February, 1),
		Result:       models.ResultFitWithRestrictions,
		DocumentPath: "medical/visit.pdf",
	})
	require.NoError(t, err)
	assert.Equal(t, day(2025, time.February, 1), visit.ExpirationDate, "recovery visits are valid one year")
}

// TestAddTrainingPermanent ensures a training without validity months never
// gets an expiration date.
func TestAddTrainingPermanent(t *testing.T) {
	s := setupService(t)
	ctx := context.Background()
	employee := createTestEmployee(t, s)

	training, err := s.AddTraining(ctx, &models.OnlineTraining{
		EmployeeID:     employee.ID,
		Title:          "Accueil sécurité",
		CompletionDate: day(2024, time.January, 5),
	})
	require.NoError(t, err)
	assert.Nil(t, training.ExpirationDate)

	limited, err := s.AddTraining(ctx, &models.OnlineTraining{
		EmployeeID:     employee.ID,
		Title:          "Gestes et postures",
		CompletionDate: day(2024, time.January, 31),
		ValidityMonths: utils.Ptr(1),
	})
	require.NoError(t, err)
	require.NotNil(t, limited.ExpirationDate)
	assert.Equal(t, day(2024, time.February, 29), *limited.ExpirationDate, "day clamped to leap February")
}

// TestCertificationsFor verifies the explicit back-reference query.
func TestCertificationsFor(t *testing.T) {
	s := setupService(t)
	ctx := context.Background()
	employee := createTestEmployee(t, s)

	_, err := s.AddCaces(ctx, &models.Caces{
		EmployeeID:     employee.ID,
		Class:          models.CacesR489_1B,
		CompletionDate: day(2023, 1, 10),
		DocumentPath:   "caces/cert.pdf",
	})
	require.NoError(t, err)
	_, err = s.AddTraining(ctx, &models.OnlineTraining{
		EmployeeID:     employee.ID,
		Title:          "Accueil sécurité",
		CompletionDate: day(2024, 1, 5),
	})
	require.NoError(t, err)

	certs, err := s.CertificationsFor(ctx, employee.ID)
	require.NoError(t, err)
	assert.Len(t, certs.Caces, 1)
	assert.Empty(t, certs.Visits)
	assert.Len(t, certs.Trainings, 1)
}

// TestExpiringSoonAggregation checks the cross-kind alert list is sorted
// soonest first and skips permanent trainings.
func TestExpiringSoonAggregation(t *testing.T) {
	s := setupService(t)
	ctx := context.Background()
	employee := createTestEmployee(t, s)

	now := time.Now()
	addCacesExpiring := func(daysLeft int) {
		exp := day(now.Year(), now.Month(), now.Day()).AddDate(0, 0, daysLeft)
		_, err := s.AddCaces(ctx, &models.Caces{
			EmployeeID:     employee.ID,
			Class:          models.CacesR489_1A,
			CompletionDate: exp.AddDate(-5, 0, 0),
			ExpirationDate: exp,
			DocumentPath:   "caces/cert.pdf",
		})
		require.NoError(t, err)
	}
	addCacesExpiring(25)
	addCacesExpiring(10)
	addCacesExpiring(90) // outside a 60-day window

	_, err := s.AddTraining(ctx, &models.OnlineTraining{
		EmployeeID:     employee.ID,
		Title:          "Accueil sécurité",
		CompletionDate: day(2024, 1, 5),
	})
	require.NoError(t, err)

	alerts, err := s.ExpiringSoon(ctx, 60)
	require.NoError(t, err)
	require.Len(t, alerts, 2)
	assert.Equal(t, 10, alerts[0].DaysLeft, "soonest first")
	assert.Equal(t, 25, alerts[1].DaysLeft)
	for _, a := range alerts {
		assert.Equal(t, KindCaces, a.Kind)
	}
}

// TestImportStrictRollsBack ensures one bad row undoes the whole batch and
// every rejected row is reported with its index.
func TestImportStrictRollsBack(t *testing.T) {
	s := setupService(t)
	ctx := context.Background()

	rows := []models.Employee{
		{FirstName: "Jean", LastName: "Dupont", EntryDate: day(2020, 1, 1)},
		{FirstName: "", LastName: "Martin", EntryDate: day(2021, 1, 1)}, // invalid
		{FirstName: "Luc", LastName: "Bernard", EntryDate: day(2022, 1, 1)},
	}
	result, err := s.ImportEmployees(ctx, rows, Strict)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Inserted, "strict mode commits nothing on failure")
	require.Len(t, result.Rejected, 1)
	assert.Equal(t, 1, result.Rejected[0].Index)

	assert.ErrorIs(t, result.Rejected[0].Err, e.ErrInvalidInput)

	all, err := s.ListEmployees(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, all, "no partial writes")
}

// TestImportTolerantKeepsGoodRows ensures per-row commit in tolerant mode.
func TestImportTolerantKeepsGoodRows(t *testing.T) {
	s := setupService(t)
	ctx := context.Background()

	rows := []models.Employee{
		{FirstName: "Jean", LastName: "Dupont", EntryDate: day(2020, 1, 1)},
		{FirstName: "", LastName: "Martin", EntryDate: day(2021, 1, 1)}, // invalid
		{FirstName: "Luc", LastName: "Bernard", EntryDate: day(2022, 1, 1)},
	}
	result, err := s.ImportEmployees(ctx, rows, Tolerant)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Inserted)
	require.Len(t, result.Rejected, 1)
	assert.Equal(t, 1, result.Rejected[0].Index)

	all, err := s.ListEmployees(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

// TestImportStrictAllGood commits the full batch.
func TestImportStrictAllGood(t *testing.T) {
	s := setupService(t)
	ctx := context.Background()

	rows := []models.Employee{
		{FirstName: "Jean", LastName: "Dupont", EntryDate: day(2020, 1, 1)},
		{FirstName: "Marie", LastName: "Martin", EntryDate: day(2021, 1, 1)},
	}
	result, err := s.ImportEmployees(ctx, rows, Strict)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Inserted)
	assert.Empty(t, result.Rejected)
}

// TestDeleteEmployeeCascade verifies the service-level cascade.
func TestDeleteEmployeeCascade(t *testing.T) {
	s := setupService(t)
	ctx := context.Background()
	employee := createTestEmployee(t, s)

	_, err := s.AddCaces(ctx, &models.Caces{
		EmployeeID:     employee.ID,
		Class:          models.CacesR489_4,
		CompletionDate: day(2023, 1, 10),
		DocumentPath:   "caces/cert.pdf",
	})
	require.NoError(t, err)

	require.NoError(t, s.DeleteEmployee(ctx, employee.ID))

	certs, err := s.CertificationsFor(ctx, employee.ID)
	require.NoError(t, err)
	assert.Empty(t, certs.Caces)

	_, err = s.GetEmployee(ctx, employee.ID)
	assert.ErrorIs(t, err, e.ErrNotFound)
}
