package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shiftline/shiftline-backend/internal/leave/repository"
	"github.com/shiftline/shiftline-backend/pkg/database"
	"github.com/shiftline/shiftline-backend/pkg/errors"
	"github.com/shiftline/shiftline-backend/pkg/logger"
	"github.com/shiftline/shiftline-backend/pkg/tenant"
	"github.com/shiftline/shiftline-backend/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testCompanyID  = "11111111-2222-3333-4444-555555555555"
	testEmployeeID = "6f9619ff-8b86-4d01-b42d-00cf4fc964ff"
	testRequestID  = "aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee"
)

func newLeaveRepo(t *testing.T) (*repository.LeaveRepository, *testutil.MockDB, context.Context) {
	mockDB := testutil.NewMockDB(t)
	db := database.NewFromSqlx(mockDB.DB, logger.New("test", "test"))
	ctx := tenant.WithCompany(context.Background(), testCompanyID, "demo")
	return repository.NewLeaveRepository(db), mockDB, ctx
}

func TestLeaveCreateDefaultsToPending(t *testing.T) {
	repo, mockDB, ctx := newLeaveRepo(t)
	defer mockDB.Close()

	now := time.Now().UTC()
	mockDB.ExpectQuery("INSERT INTO leave_requests").
		WithArgs(
			testutil.AnyUUID{}, testCompanyID, testEmployeeID,
			repository.TypeVacation, testutil.AnyTime{}, testutil.AnyTime{},
			nil, nil, repository.StatusPending,
		).
		WillReturnRows(testutil.MockRows("created_at", "updated_at").AddRow(now, now))

	lr := &repository.LeaveRequest{
		CompanyID:  testCompanyID,
		EmployeeID: testEmployeeID,
		LeaveType:  repository.TypeVacation,
		StartDate:  now,
		EndDate:    now.Add(48 * time.Hour),
	}
	err := repo.Create(ctx, lr)
	require.NoError(t, err)
	assert.NotEmpty(t, lr.ID)
	assert.Equal(t, repository.StatusPending, lr.Status)

	mockDB.ExpectationsWereMet(t)
}

func TestLeaveReview(t *testing.T) {
	repo, mockDB, ctx := newLeaveRepo(t)
	defer mockDB.Close()

	at := time.Now().UTC()
	mockDB.ExpectExec("UPDATE leave_requests SET").
		WithArgs(testRequestID, testCompanyID, repository.StatusApproved,
			testEmployeeID, at, nil, repository.StatusPending).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Review(ctx, testRequestID, repository.StatusApproved, testEmployeeID, at, nil)
	require.NoError(t, err)

	mockDB.ExpectationsWereMet(t)
}

func TestLeaveReviewNotPendingConflicts(t *testing.T) {
	repo, mockDB, ctx := newLeaveRepo(t)
	defer mockDB.Close()

	at := time.Now().UTC()
	mockDB.ExpectExec("UPDATE leave_requests SET").
		WithArgs(testRequestID, testCompanyID, repository.StatusRejected,
			testEmployeeID, at, nil, repository.StatusPending).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Review(ctx, testRequestID, repository.StatusRejected, testEmployeeID, at, nil)
	assert.True(t, errors.Is(err, errors.ErrConflict))

	mockDB.ExpectationsWereMet(t)
}

func TestLeaveCancelOnlyOwnPending(t *testing.T) {
	repo, mockDB, ctx := newLeaveRepo(t)
	defer mockDB.Close()

	mockDB.ExpectExec("UPDATE leave_requests SET status").
		WithArgs(testRequestID, testCompanyID, testEmployeeID,
			repository.StatusCancelled, repository.StatusPending).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Cancel(ctx, testRequestID, testEmployeeID)
	assert.True(t, errors.Is(err, errors.ErrConflict))

	mockDB.ExpectationsWereMet(t)
}

func TestLeaveGetByIDNotFound(t *testing.T) {
	repo, mockDB, ctx := newLeaveRepo(t)
	defer mockDB.Close()

	mockDB.ExpectQuery("FROM leave_requests WHERE id").
		WithArgs(testRequestID, testCompanyID).
		WillReturnRows(testutil.MockRows("id"))

	_, err := repo.GetByID(ctx, testRequestID)
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	mockDB.ExpectationsWereMet(t)
}

func TestLeaveListRequiresTenant(t *testing.T) {
	repo, mockDB, _ := newLeaveRepo(t)
	defer mockDB.Close()

	_, err := repo.List(context.Background(), repository.LeaveListParams{})
	assert.Error(t, err)

	mockDB.ExpectationsWereMet(t)
}
