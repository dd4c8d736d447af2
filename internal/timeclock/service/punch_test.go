package service

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shiftline/shiftline-backend/internal/audit"
	"github.com/shiftline/shiftline-backend/internal/company"
	"github.com/shiftline/shiftline-backend/internal/timeclock/repository"
	userrepo "github.com/shiftline/shiftline-backend/internal/user/repository"
	"github.com/shiftline/shiftline-backend/pkg/clock"
	"github.com/shiftline/shiftline-backend/pkg/database"
	"github.com/shiftline/shiftline-backend/pkg/errors"
	"github.com/shiftline/shiftline-backend/pkg/logger"
	"github.com/shiftline/shiftline-backend/pkg/messaging"
	"github.com/shiftline/shiftline-backend/pkg/tenant"
	"github.com/shiftline/shiftline-backend/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	punchCompanyID  = "0f8fad5b-d9cb-469f-a165-70867728950e"
	punchEmployeeID = "7c9e6679-7425-40de-944b-e07fc1f90ae7"
	punchEntryID    = "16fd2706-8baf-433b-82eb-8c7fada847da"
	punchSessionID  = "fdda765f-fc57-4edf-9f29-1f0c9b1dcd4b"
)

var punchNow = time.Date(2025, 6, 16, 20, 0, 0, 0, time.UTC)

func newPunchService(t *testing.T) (*PunchService, *testutil.MockDB, *testutil.MockPublisher, context.Context) {
	mockDB := testutil.NewMockDB(t)
	log := logger.New("test", "test")
	db := database.NewFromSqlx(mockDB.DB, log)
	pub := testutil.NewMockPublisher()

	svc := NewPunchService(
		db,
		repository.NewTimeEntryRepository(db),
		repository.NewCashDrawerRepository(db),
		nil, // employee already resolved in these tests
		nil,
		clock.Fixed(punchNow),
		audit.NewRecorder(db, pub, log),
		pub,
		log,
	)
	ctx := tenant.WithCompany(context.Background(), punchCompanyID, "demo")
	return svc, mockDB, pub, ctx
}

func punchEmployee() *userrepo.User {
	return &userrepo.User{
		ID:        punchEmployeeID,
		CompanyID: punchCompanyID,
		Name:      "Dana Field",
		Role:      "FRONTDESK",
		Status:    "active",
	}
}

func cashSettings() company.Settings {
	s := company.DefaultSettings()
	s.CashDrawerEnabled = true
	s.CashDrawerRequiredForAll = true
	return s
}

func expectNoOpenEntry(mockDB *testutil.MockDB) {
	mockDB.ExpectQuery("FROM time_entries").
		WithArgs(punchCompanyID, punchEmployeeID).
		WillReturnRows(testutil.MockRows("id"))
}

func expectOpenEntry(mockDB *testutil.MockDB, clockInAt time.Time) {
	mockDB.ExpectQuery("FROM time_entries").
		WithArgs(punchCompanyID, punchEmployeeID).
		WillReturnRows(testutil.MockRows(
			"id", "company_id", "employee_id", "clock_in_at", "break_minutes", "source", "status").
			AddRow(punchEntryID, punchCompanyID, punchEmployeeID, clockInAt, 0, repository.SourceKiosk, repository.StatusOpen))
}

func TestPunchClocksInWhenIdle(t *testing.T) {
	svc, mockDB, pub, ctx := newPunchService(t)
	defer mockDB.Close()

	mockDB.ExpectBegin()
	mockDB.ExpectAdvisoryLock()
	expectNoOpenEntry(mockDB)
	mockDB.ExpectQuery("INSERT INTO time_entries").
		WithArgs(
			testutil.AnyUUID{}, punchCompanyID, punchEmployeeID, testutil.AnyTime{},
			nil, 0, repository.SourceKiosk, repository.StatusOpen,
			nil, nil, nil, nil, nil,
		).
		WillReturnRows(testutil.MockRows("created_at", "updated_at").AddRow(punchNow, punchNow))
	mockDB.ExpectExec("INSERT INTO audit_logs").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectCommit()

	result, err := svc.punch(ctx, punchEmployee(), company.DefaultSettings(), PunchRequest{Source: repository.SourceKiosk})
	require.NoError(t, err)
	assert.Equal(t, ActionClockIn, result.Action)
	require.NotNil(t, result.Entry)
	assert.Equal(t, repository.StatusOpen, result.Entry.Status)
	assert.Nil(t, result.CashSession)
	pub.AssertEventPublished(t, messaging.EventTimeClockIn)

	mockDB.ExpectationsWereMet(t)
}

func TestPunchClocksOutWhenOpen(t *testing.T) {
	svc, mockDB, pub, ctx := newPunchService(t)
	defer mockDB.Close()

	mockDB.ExpectBegin()
	mockDB.ExpectAdvisoryLock()
	expectOpenEntry(mockDB, punchNow.Add(-8*time.Hour))
	mockDB.ExpectQuery("FROM cash_drawer_sessions WHERE time_entry_id").
		WithArgs(punchEntryID).
		WillReturnRows(testutil.MockRows("id"))
	mockDB.ExpectExec("UPDATE time_entries SET").
		WithArgs(punchEntryID, testutil.AnyTime{}, repository.StatusClosed, nil, nil, nil, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectExec("INSERT INTO audit_logs").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectCommit()

	result, err := svc.punch(ctx, punchEmployee(), company.DefaultSettings(), PunchRequest{Source: repository.SourceKiosk})
	require.NoError(t, err)
	assert.Equal(t, ActionClockOut, result.Action)
	require.NotNil(t, result.Entry.ClockOutAt)

	var closed *messaging.TimeClockOutEvent
	for _, e := range pub.PublishedEvents {
		if e.Type == messaging.EventTimeClockOut {
			payload := e.Payload.(messaging.TimeClockOutEvent)
			closed = &payload
		}
	}
	require.NotNil(t, closed, "clock-out event not published")
	assert.Equal(t, 480, closed.WorkedMinutes)
	assert.Equal(t, 480, closed.RoundedMinutes)

	mockDB.ExpectationsWereMet(t)
}

func TestPunchMissingCashStartIsBadRequest(t *testing.T) {
	svc, mockDB, pub, ctx := newPunchService(t)
	defer mockDB.Close()

	mockDB.ExpectBegin()
	mockDB.ExpectAdvisoryLock()
	expectNoOpenEntry(mockDB)
	mockDB.ExpectRollback()

	_, err := svc.punch(ctx, punchEmployee(), cashSettings(), PunchRequest{Source: repository.SourceKiosk})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrBadRequest))

	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, http.StatusBadRequest, appErr.StatusCode)
	pub.AssertNoEventsPublished(t)

	mockDB.ExpectationsWereMet(t)
}

func TestPunchMissingCashEndIsBadRequest(t *testing.T) {
	svc, mockDB, _, ctx := newPunchService(t)
	defer mockDB.Close()

	mockDB.ExpectBegin()
	mockDB.ExpectAdvisoryLock()
	expectOpenEntry(mockDB, punchNow.Add(-6*time.Hour))
	mockDB.ExpectQuery("FROM cash_drawer_sessions WHERE time_entry_id").
		WithArgs(punchEntryID).
		WillReturnRows(testutil.MockRows(
			"id", "company_id", "time_entry_id", "start_cash_cents", "start_counted_at", "start_count_source", "status").
			AddRow(punchSessionID, punchCompanyID, punchEntryID, int64(10000), punchNow.Add(-6*time.Hour), repository.SourceKiosk, repository.CashStatusOpen))
	mockDB.ExpectRollback()

	_, err := svc.punch(ctx, punchEmployee(), cashSettings(), PunchRequest{Source: repository.SourceKiosk})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrBadRequest))

	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, http.StatusBadRequest, appErr.StatusCode)

	mockDB.ExpectationsWereMet(t)
}

func TestPunchCashRequiredOpensDrawerSession(t *testing.T) {
	svc, mockDB, pub, ctx := newPunchService(t)
	defer mockDB.Close()

	startCash := int64(10000)

	mockDB.ExpectBegin()
	mockDB.ExpectAdvisoryLock()
	expectNoOpenEntry(mockDB)
	mockDB.ExpectQuery("INSERT INTO time_entries").
		WillReturnRows(testutil.MockRows("created_at", "updated_at").AddRow(punchNow, punchNow))
	mockDB.ExpectQuery("INSERT INTO cash_drawer_sessions").
		WithArgs(
			testutil.AnyUUID{}, punchCompanyID, testutil.AnyUUID{},
			startCash, testutil.AnyTime{}, repository.SourceKiosk, repository.CashStatusOpen,
		).
		WillReturnRows(testutil.MockRows("created_at", "updated_at").AddRow(punchNow, punchNow))
	mockDB.ExpectExec("INSERT INTO cash_drawer_audits").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectExec("INSERT INTO audit_logs").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectCommit()

	result, err := svc.punch(ctx, punchEmployee(), cashSettings(), PunchRequest{
		Source:         repository.SourceKiosk,
		CashStartCents: &startCash,
	})
	require.NoError(t, err)
	assert.Equal(t, ActionClockIn, result.Action)
	require.NotNil(t, result.CashSession)
	assert.Equal(t, startCash, result.CashSession.StartCashCents)
	assert.Equal(t, repository.CashStatusOpen, result.CashSession.Status)
	pub.AssertEventPublished(t, messaging.EventCashSessionOpened)

	mockDB.ExpectationsWereMet(t)
}

func TestPunchClockOutWithDeltaNeedsReview(t *testing.T) {
	svc, mockDB, pub, ctx := newPunchService(t)
	defer mockDB.Close()

	endCash := int64(9000)

	mockDB.ExpectBegin()
	mockDB.ExpectAdvisoryLock()
	expectOpenEntry(mockDB, punchNow.Add(-8*time.Hour))
	mockDB.ExpectQuery("FROM cash_drawer_sessions WHERE time_entry_id").
		WithArgs(punchEntryID).
		WillReturnRows(testutil.MockRows(
			"id", "company_id", "time_entry_id", "start_cash_cents", "start_counted_at", "start_count_source", "status").
			AddRow(punchSessionID, punchCompanyID, punchEntryID, int64(10000), punchNow.Add(-8*time.Hour), repository.SourceKiosk, repository.CashStatusOpen))
	mockDB.ExpectExec("UPDATE time_entries SET").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectExec("UPDATE cash_drawer_sessions SET").
		WithArgs(
			punchSessionID, endCash, testutil.AnyTime{}, repository.SourceKiosk,
			nil, nil, nil, int64(-1000), repository.CashStatusReviewNeeded,
		).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectExec("INSERT INTO cash_drawer_audits").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectExec("INSERT INTO audit_logs").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectCommit()

	result, err := svc.punch(ctx, punchEmployee(), cashSettings(), PunchRequest{
		Source:       repository.SourceKiosk,
		CashEndCents: &endCash,
	})
	require.NoError(t, err)
	assert.Equal(t, ActionClockOut, result.Action)
	require.NotNil(t, result.CashSession)
	assert.Equal(t, repository.CashStatusReviewNeeded, result.CashSession.Status)
	require.NotNil(t, result.CashSession.DeltaCents)
	assert.Equal(t, int64(-1000), *result.CashSession.DeltaCents)
	pub.AssertEventPublished(t, messaging.EventCashSessionClosed)

	mockDB.ExpectationsWereMet(t)
}
