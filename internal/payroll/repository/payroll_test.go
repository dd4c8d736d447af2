package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shiftline/shiftline-backend/internal/payroll/repository"
	"github.com/shiftline/shiftline-backend/pkg/database"
	"github.com/shiftline/shiftline-backend/pkg/errors"
	"github.com/shiftline/shiftline-backend/pkg/logger"
	"github.com/shiftline/shiftline-backend/pkg/tenant"
	"github.com/shiftline/shiftline-backend/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	payrollCompanyID = "11111111-2222-3333-4444-555555555555"
	payrollRunID     = "aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee"
	payrollActorID   = "6f9619ff-8b86-4d01-b42d-00cf4fc964ff"
)

func newPayrollRepo(t *testing.T) (*repository.PayrollRepository, *testutil.MockDB, context.Context) {
	mockDB := testutil.NewMockDB(t)
	db := database.NewFromSqlx(mockDB.DB, logger.New("test", "test"))
	ctx := tenant.WithCompany(context.Background(), payrollCompanyID, "demo")
	return repository.NewPayrollRepository(db), mockDB, ctx
}

func TestPayrollFinalizeDraft(t *testing.T) {
	repo, mockDB, ctx := newPayrollRepo(t)
	defer mockDB.Close()

	at := time.Now().UTC()
	mockDB.ExpectExec("UPDATE payroll_runs SET").
		WithArgs(payrollRunID, payrollCompanyID, repository.StatusFinalized,
			payrollActorID, at, nil, repository.StatusDraft).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Finalize(ctx, payrollRunID, payrollActorID, nil, at)
	require.NoError(t, err)

	mockDB.ExpectationsWereMet(t)
}

func TestPayrollFinalizeNonDraftConflicts(t *testing.T) {
	repo, mockDB, ctx := newPayrollRepo(t)
	defer mockDB.Close()

	// The guarded UPDATE matches no row when the run already left
	// DRAFT, so a finalized run can never be finalized again.
	at := time.Now().UTC()
	mockDB.ExpectExec("UPDATE payroll_runs SET").
		WithArgs(payrollRunID, payrollCompanyID, repository.StatusFinalized,
			payrollActorID, at, nil, repository.StatusDraft).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Finalize(ctx, payrollRunID, payrollActorID, nil, at)
	assert.True(t, errors.Is(err, errors.ErrConflict))

	mockDB.ExpectationsWereMet(t)
}

func TestPayrollDeleteOnlyDraft(t *testing.T) {
	repo, mockDB, ctx := newPayrollRepo(t)
	defer mockDB.Close()

	mockDB.ExpectExec("DELETE FROM payroll_runs").
		WithArgs(payrollRunID, payrollCompanyID, repository.StatusDraft).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.DeleteDraft(ctx, payrollRunID)
	assert.True(t, errors.Is(err, errors.ErrConflict))

	mockDB.ExpectationsWereMet(t)
}

func TestPayrollVoidAlreadyVoidConflicts(t *testing.T) {
	repo, mockDB, ctx := newPayrollRepo(t)
	defer mockDB.Close()

	at := time.Now().UTC()
	mockDB.ExpectExec("UPDATE payroll_runs SET").
		WithArgs(payrollRunID, payrollCompanyID, repository.StatusVoid,
			payrollActorID, at, "wrong period").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Void(ctx, payrollRunID, payrollActorID, "wrong period", at)
	assert.True(t, errors.Is(err, errors.ErrConflict))

	mockDB.ExpectationsWereMet(t)
}

func TestPayrollFinalizeRequiresTenant(t *testing.T) {
	repo, mockDB, _ := newPayrollRepo(t)
	defer mockDB.Close()

	err := repo.Finalize(context.Background(), payrollRunID, payrollActorID, nil, time.Now().UTC())
	assert.Error(t, err)

	mockDB.ExpectationsWereMet(t)
}
