package service

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shiftline/shiftline-backend/internal/auth/hash"
	authrepo "github.com/shiftline/shiftline-backend/internal/auth/repository"
	"github.com/shiftline/shiftline-backend/internal/auth/token"
	"github.com/shiftline/shiftline-backend/internal/company"
	userrepo "github.com/shiftline/shiftline-backend/internal/user/repository"
	"github.com/shiftline/shiftline-backend/pkg/clock"
	"github.com/shiftline/shiftline-backend/pkg/config"
	"github.com/shiftline/shiftline-backend/pkg/database"
	"github.com/shiftline/shiftline-backend/pkg/errors"
	"github.com/shiftline/shiftline-backend/pkg/logger"
	"github.com/shiftline/shiftline-backend/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	authCompanyID = "9a6f1c52-0d9e-4a51-8b5e-2f3a64c7d101"
	authUserID    = "5b7cfa04-6c7e-4f0a-9d2e-8a1b3c4d5e6f"
	authSessionID = "1c438b2e-7f90-4a6d-b3c1-5d8e9f0a1b2c"
	authUserEmail = "owner@demo.test"
)

func newAuthService(t *testing.T) (*AuthService, *testutil.MockDB, *testutil.MockMailer, *clock.FixedClock) {
	mockDB := testutil.NewMockDB(t)
	log := logger.New("test", "test")
	db := database.NewFromSqlx(mockDB.DB, log)

	codec := token.NewCodec(&config.JWTConfig{
		Secret:        "unit-test-secret",
		AccessExpiry:  15 * time.Minute,
		RefreshExpiry: 30 * 24 * time.Hour,
		SetupExpiry:   72 * time.Hour,
		Issuer:        "shiftline",
	})
	m := testutil.NewMockMailer()
	clk := clock.Fixed(time.Date(2025, 6, 16, 12, 0, 0, 0, time.UTC))

	svc := NewAuthService(
		db,
		userrepo.NewUserRepository(db),
		authrepo.NewSessionRepository(db),
		company.NewRepository(db),
		codec,
		m,
		clk,
		testutil.NewMockPublisher(),
		log,
		"https://app.demo.test/setup",
	)
	return svc, mockDB, m, clk
}

func issueRefresh(t *testing.T, svc *AuthService) string {
	t.Helper()
	pair, _, err := svc.codec.IssuePair(token.Identity{
		UserID:      authUserID,
		CompanyID:   authCompanyID,
		CompanySlug: "demo",
		Role:        "ADMIN",
		Email:       authUserEmail,
	})
	require.NoError(t, err)
	return pair.RefreshToken
}

func expectRefreshLookups(mockDB *testutil.MockDB) {
	mockDB.ExpectQuery("FROM users WHERE id").
		WithArgs(authUserID, authCompanyID).
		WillReturnRows(testutil.MockRows("id", "company_id", "name", "email", "role", "status").
			AddRow(authUserID, authCompanyID, "Owner", authUserEmail, "ADMIN", "active"))
	mockDB.ExpectQuery("FROM companies WHERE id").
		WithArgs(authCompanyID).
		WillReturnRows(testutil.MockRows("id", "name", "slug", "kiosk_enabled").
			AddRow(authCompanyID, "Demo Co", "demo", true))
}

func TestRefreshRotatesMatchingSession(t *testing.T) {
	svc, mockDB, _, _ := newAuthService(t)
	defer mockDB.Close()

	refresh := issueRefresh(t, svc)
	liveHash, err := hash.Hash(refresh)
	require.NoError(t, err)

	expectRefreshLookups(mockDB)
	mockDB.ExpectBegin()
	mockDB.ExpectQuery("FROM sessions").
		WithArgs(authUserID, authCompanyID).
		WillReturnRows(testutil.MockRows(
			"id", "user_id", "company_id", "refresh_token_hash", "created_at", "expires_at").
			AddRow(authSessionID, authUserID, authCompanyID, liveHash,
				time.Now().Add(-time.Hour), time.Now().Add(24*time.Hour)))
	mockDB.ExpectExec("UPDATE sessions SET revoked_at").
		WithArgs(authSessionID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectQuery("INSERT INTO sessions").
		WithArgs(testutil.AnyUUID{}, authUserID, authCompanyID, testutil.AnyString{}, nil, nil, testutil.AnyTime{}).
		WillReturnRows(testutil.MockRows("created_at").AddRow(time.Now()))
	mockDB.ExpectCommit()

	resp, err := svc.Refresh(context.Background(), refresh, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, resp.Tokens)
	assert.NotEqual(t, refresh, resp.Tokens.RefreshToken)
	assert.Equal(t, "demo", resp.Company.Slug)

	mockDB.ExpectationsWereMet(t)
}

func TestRefreshReuseRevokesEverySession(t *testing.T) {
	svc, mockDB, _, _ := newAuthService(t)
	defer mockDB.Close()

	// The presented token is a valid JWT, but no live session carries
	// its hash: it was already rotated, so it must be treated as stolen.
	refresh := issueRefresh(t, svc)
	staleHash, err := hash.Hash("already-rotated-refresh-token")
	require.NoError(t, err)
	otherHash, err := hash.Hash("a-second-device-refresh-token")
	require.NoError(t, err)

	expectRefreshLookups(mockDB)
	mockDB.ExpectBegin()
	mockDB.ExpectQuery("FROM sessions").
		WithArgs(authUserID, authCompanyID).
		WillReturnRows(testutil.MockRows(
			"id", "user_id", "company_id", "refresh_token_hash", "created_at", "expires_at").
			AddRow(authSessionID, authUserID, authCompanyID, staleHash,
				time.Now().Add(-time.Hour), time.Now().Add(24*time.Hour)).
			AddRow("2d549c3f-8e01-4b7d-a4c2-6e9f0a1b2c3d", authUserID, authCompanyID, otherHash,
				time.Now().Add(-time.Hour), time.Now().Add(24*time.Hour)))
	mockDB.ExpectExec("UPDATE sessions SET revoked_at = NOW()").
		WithArgs(authUserID, authCompanyID).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mockDB.ExpectCommit()

	_, err = svc.Refresh(context.Background(), refresh, nil, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrUnauthorized))

	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, http.StatusUnauthorized, appErr.StatusCode)

	mockDB.ExpectationsWereMet(t)
}

func TestSendVerificationOTPInsideCooldownDoesNotResend(t *testing.T) {
	svc, mockDB, m, clk := newAuthService(t)
	defer mockDB.Close()

	lastSent := clk.Now().Add(-10 * time.Second)

	mockDB.ExpectBegin()
	mockDB.ExpectQuery("FROM users WHERE id").
		WithArgs(authUserID).
		WillReturnRows(testutil.MockRows(
			"id", "company_id", "email", "name", "last_verification_sent_at").
			AddRow(authUserID, authCompanyID, authUserEmail, "Owner", lastSent))
	mockDB.ExpectCommit()

	err := svc.SendVerificationOTP(context.Background(), authUserID)
	require.NoError(t, err)
	assert.Empty(t, m.Sent, "no email expected inside the cooldown")

	mockDB.ExpectationsWereMet(t)
}

func TestSendVerificationOTPAfterCooldownSends(t *testing.T) {
	svc, mockDB, m, clk := newAuthService(t)
	defer mockDB.Close()

	lastSent := clk.Now().Add(-2 * time.Minute)

	mockDB.ExpectBegin()
	mockDB.ExpectQuery("FROM users WHERE id").
		WithArgs(authUserID).
		WillReturnRows(testutil.MockRows(
			"id", "company_id", "email", "name", "last_verification_sent_at").
			AddRow(authUserID, authCompanyID, authUserEmail, "Owner", lastSent))
	mockDB.ExpectExec("UPDATE users SET").
		WithArgs(authUserID, testutil.AnyString{}, testutil.AnyTime{}, testutil.AnyTime{}).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectCommit()

	err := svc.SendVerificationOTP(context.Background(), authUserID)
	require.NoError(t, err)
	m.AssertEmailSent(t, "verification_code", authUserEmail)

	mockDB.ExpectationsWereMet(t)
}

func TestVerifyEmailOTPWrongCodeCountsAttempt(t *testing.T) {
	svc, mockDB, _, clk := newAuthService(t)
	defer mockDB.Close()

	storedHash, err := hash.Hash("123456")
	require.NoError(t, err)
	expires := clk.Now().Add(10 * time.Minute)

	mockDB.ExpectBegin()
	mockDB.ExpectQuery("FROM users WHERE id").
		WithArgs(authUserID).
		WillReturnRows(testutil.MockRows(
			"id", "company_id", "verification_pin_hash", "verification_expires_at", "verification_attempts").
			AddRow(authUserID, authCompanyID, storedHash, expires, 0))
	mockDB.ExpectQuery("UPDATE users SET verification_attempts = verification_attempts + 1").
		WithArgs(authUserID).
		WillReturnRows(testutil.MockRows("verification_attempts").AddRow(1))
	// The failed attempt must commit, or the counter never moves.
	mockDB.ExpectCommit()

	err = svc.VerifyEmailOTP(context.Background(), authUserID, "000000")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrUnauthorized))

	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "4", appErr.Details["remaining_attempts"])

	mockDB.ExpectationsWereMet(t)
}

func TestVerifyEmailOTPLocksOutAfterMaxAttempts(t *testing.T) {
	svc, mockDB, _, clk := newAuthService(t)
	defer mockDB.Close()

	storedHash, err := hash.Hash("123456")
	require.NoError(t, err)
	expires := clk.Now().Add(10 * time.Minute)

	mockDB.ExpectBegin()
	mockDB.ExpectQuery("FROM users WHERE id").
		WithArgs(authUserID).
		WillReturnRows(testutil.MockRows(
			"id", "company_id", "verification_pin_hash", "verification_expires_at", "verification_attempts").
			AddRow(authUserID, authCompanyID, storedHash, expires, 4))
	mockDB.ExpectQuery("UPDATE users SET verification_attempts = verification_attempts + 1").
		WithArgs(authUserID).
		WillReturnRows(testutil.MockRows("verification_attempts").AddRow(5))
	mockDB.ExpectExec("verification_pin_hash = NULL").
		WithArgs(authUserID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectCommit()

	err = svc.VerifyEmailOTP(context.Background(), authUserID, "000000")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrRateLimited))

	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, http.StatusTooManyRequests, appErr.StatusCode)

	mockDB.ExpectationsWereMet(t)
}
