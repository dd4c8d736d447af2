package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shiftline/shiftline-backend/pkg/database"
	"github.com/shiftline/shiftline-backend/pkg/errors"
	"github.com/shiftline/shiftline-backend/pkg/tenant"
	"github.com/shopspring/decimal"
)

// User is a user row. Verification and password-reset OTP state lives
// directly on the row and is only touched under a row lock.
type User struct {
	ID                 string           `db:"id" json:"id"`
	CompanyID          string           `db:"company_id" json:"company_id"`
	Name               string           `db:"name" json:"name"`
	Email              string           `db:"email" json:"email"`
	PasswordHash       *string          `db:"password_hash" json:"-"`
	PINHash            *string          `db:"pin_hash" json:"-"`
	Role               string           `db:"role" json:"role"`
	Status             string           `db:"status" json:"status"`
	JobRole            *string          `db:"job_role" json:"job_role,omitempty"`
	PayRateCents       int64            `db:"pay_rate_cents" json:"pay_rate_cents"`
	PayRateType        string           `db:"pay_rate_type" json:"pay_rate_type"`
	OvertimeMultiplier *decimal.Decimal `db:"overtime_multiplier" json:"overtime_multiplier,omitempty"`
	LastLoginAt        *time.Time       `db:"last_login_at" json:"last_login_at,omitempty"`

	EmailVerified          bool       `db:"email_verified" json:"email_verified"`
	VerificationRequired   bool       `db:"verification_required" json:"verification_required"`
	LastVerifiedAt         *time.Time `db:"last_verified_at" json:"last_verified_at,omitempty"`
	VerificationPINHash    *string    `db:"verification_pin_hash" json:"-"`
	VerificationExpiresAt  *time.Time `db:"verification_expires_at" json:"-"`
	VerificationAttempts   int        `db:"verification_attempts" json:"-"`
	LastVerificationSentAt *time.Time `db:"last_verification_sent_at" json:"-"`

	PasswordResetOTPHash      *string    `db:"password_reset_otp_hash" json:"-"`
	PasswordResetOTPExpiresAt *time.Time `db:"password_reset_otp_expires_at" json:"-"`
	PasswordResetAttempts     int        `db:"password_reset_attempts" json:"-"`
	LastPasswordResetSentAt   *time.Time `db:"last_password_reset_sent_at" json:"-"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// HasPIN reports whether a kiosk PIN is configured.
func (u *User) HasPIN() bool {
	return u.PINHash != nil && *u.PINHash != ""
}

// ListParams filters employee listings
type ListParams struct {
	Role    *string
	Status  *string
	Search  *string
	WithPIN *bool
	Page    int
	PerPage int
}

// UserRepository handles user persistence
type UserRepository struct {
	db *database.DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `
	id, company_id, name, email, password_hash, pin_hash, role, status,
	job_role, pay_rate_cents, pay_rate_type, overtime_multiplier, last_login_at,
	email_verified, verification_required, last_verified_at,
	verification_pin_hash, verification_expires_at, verification_attempts, last_verification_sent_at,
	password_reset_otp_hash, password_reset_otp_expires_at, password_reset_attempts, last_password_reset_sent_at,
	created_at, updated_at`

// ============================================================================
// CRUD
// ============================================================================

// CreateTx inserts a user inside the caller's transaction.
func (r *UserRepository) CreateTx(ctx context.Context, tx sqlx.ExtContext, u *User) error {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	if u.PayRateType == "" {
		u.PayRateType = "HOURLY"
	}
	if u.Status == "" {
		u.Status = "active"
	}

	query := `
		INSERT INTO users (
			id, company_id, name, email, password_hash, pin_hash, role, status,
			job_role, pay_rate_cents, pay_rate_type, overtime_multiplier,
			email_verified, verification_required
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at, updated_at
	`
	err := tx.QueryRowxContext(ctx, query,
		u.ID, u.CompanyID, u.Name, u.Email, u.PasswordHash, u.PINHash, u.Role, u.Status,
		u.JobRole, u.PayRateCents, u.PayRateType, u.OvertimeMultiplier,
		u.EmailVerified, u.VerificationRequired,
	).Scan(&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}

// Create inserts a user outside a transaction.
func (r *UserRepository) Create(ctx context.Context, u *User) error {
	return r.CreateTx(ctx, r.db.DB, u)
}

// GetByID gets a user by ID within the caller's company
func (r *UserRepository) GetByID(ctx context.Context, id string) (*User, error) {
	companyID, err := tenant.CompanyID(ctx)
	if err != nil {
		return nil, err
	}

	var u User
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 AND company_id = $2`
	err = r.db.GetContext(ctx, &u, query, id, companyID)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("user")
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetByEmail gets a user by email (case-insensitive) within the caller's company
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*User, error) {
	companyID, err := tenant.CompanyID(ctx)
	if err != nil {
		return nil, err
	}

	var u User
	query := `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1) AND company_id = $2`
	err = r.db.GetContext(ctx, &u, query, email, companyID)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("user")
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// ListByEmailGlobal returns all users matching an email across
// companies. Login and forgot-password have no tenant context yet;
// email is unique per company, so more than one row can match.
func (r *UserRepository) ListByEmailGlobal(ctx context.Context, email string) ([]*User, error) {
	var users []*User
	query := `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1) ORDER BY created_at`
	if err := r.db.SelectContext(ctx, &users, query, email); err != nil {
		return nil, err
	}
	return users, nil
}

// List returns employees of the caller's company with filters
func (r *UserRepository) List(ctx context.Context, params ListParams) ([]*User, int64, error) {
	companyID, err := tenant.CompanyID(ctx)
	if err != nil {
		return nil, 0, err
	}

	if params.Page < 1 {
		params.Page = 1
	}
	if params.PerPage < 1 || params.PerPage > 100 {
		params.PerPage = 50
	}

	where := ` WHERE company_id = $1
		AND ($2::text IS NULL OR role = $2)
		AND ($3::text IS NULL OR status = $3)
		AND ($4::text IS NULL OR name ILIKE '%' || $4 || '%' OR email ILIKE '%' || $4 || '%')
		AND ($5::bool IS NULL OR ($5 AND pin_hash IS NOT NULL) OR (NOT $5 AND pin_hash IS NULL))`

	var total int64
	countQuery := `SELECT COUNT(*) FROM users` + where
	if err := r.db.GetContext(ctx, &total, countQuery,
		companyID, params.Role, params.Status, params.Search, params.WithPIN); err != nil {
		return nil, 0, err
	}

	var users []*User
	listQuery := `SELECT ` + userColumns + ` FROM users` + where + `
		ORDER BY name
		LIMIT $6 OFFSET $7`
	offset := (params.Page - 1) * params.PerPage
	if err := r.db.SelectContext(ctx, &users, listQuery,
		companyID, params.Role, params.Status, params.Search, params.WithPIN,
		params.PerPage, offset); err != nil {
		return nil, 0, err
	}

	return users, total, nil
}

// Update updates the mutable profile fields of a user
func (r *UserRepository) Update(ctx context.Context, u *User) error {
	companyID, err := tenant.CompanyID(ctx)
	if err != nil {
		return err
	}

	query := `
		UPDATE users SET
			name = $3, email = $4, role = $5, status = $6, job_role = $7,
			pay_rate_cents = $8, overtime_multiplier = $9, updated_at = NOW()
		WHERE id = $1 AND company_id = $2
	`
	result, err := r.db.ExecContext(ctx, query,
		u.ID, companyID, u.Name, u.Email, u.Role, u.Status, u.JobRole,
		u.PayRateCents, u.OvertimeMultiplier,
	)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("user")
	}
	return nil
}

// SetStatus activates or deactivates a user
func (r *UserRepository) SetStatus(ctx context.Context, id, status string) error {
	return r.SetStatusTx(ctx, r.db.DB, id, status)
}

// SetStatusTx is SetStatus inside the caller's transaction.
func (r *UserRepository) SetStatusTx(ctx context.Context, tx sqlx.ExtContext, id, status string) error {
	companyID, err := tenant.CompanyID(ctx)
	if err != nil {
		return err
	}

	query := `UPDATE users SET status = $3, updated_at = NOW() WHERE id = $1 AND company_id = $2`
	result, err := tx.ExecContext(ctx, query, id, companyID, status)
	if err != nil {
		return err
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("user")
	}
	return nil
}

// ============================================================================
// CREDENTIALS
// ============================================================================

// SetPIN sets or clears the kiosk PIN hash. A duplicate PIN surfaces
// as a unique violation from the partial (company_id, pin_hash) index.
func (r *UserRepository) SetPIN(ctx context.Context, id string, pinHash *string) error {
	companyID, err := tenant.CompanyID(ctx)
	if err != nil {
		return err
	}

	query := `UPDATE users SET pin_hash = $3, updated_at = NOW() WHERE id = $1 AND company_id = $2`
	result, err := r.db.ExecContext(ctx, query, id, companyID, pinHash)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("user")
	}
	return nil
}

// SetPassword overwrites the password hash
func (r *UserRepository) SetPassword(ctx context.Context, id, passwordHash string) error {
	companyID, err := tenant.CompanyID(ctx)
	if err != nil {
		return err
	}

	query := `UPDATE users SET password_hash = $3, updated_at = NOW() WHERE id = $1 AND company_id = $2`
	result, err := r.db.ExecContext(ctx, query, id, companyID, passwordHash)
	if err != nil {
		return err
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("user")
	}
	return nil
}

// StampLastLogin records a successful login
func (r *UserRepository) StampLastLogin(ctx context.Context, id string) error {
	query := `UPDATE users SET last_login_at = NOW() WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}

// ListPunchable returns active employees of a company that can punch:
// non-admin, non-developer, with a configured PIN. PIN resolution
// argon2-verifies the candidate PIN against each row.
func (r *UserRepository) ListPunchable(ctx context.Context, companyID string) ([]*User, error) {
	var users []*User
	query := `SELECT ` + userColumns + ` FROM users
		WHERE company_id = $1
		  AND status = 'active'
		  AND pin_hash IS NOT NULL
		  AND role NOT IN ('ADMIN', 'DEVELOPER')
		ORDER BY name`
	if err := r.db.SelectContext(ctx, &users, query, companyID); err != nil {
		return nil, err
	}
	return users, nil
}

// ListPayable returns the employees eligible for a payroll run:
// non-admin, non-developer, optionally narrowed to an id allowlist and
// optionally including inactive accounts.
func (r *UserRepository) ListPayable(ctx context.Context, includeInactive bool, employeeIDs []string) ([]*User, error) {
	companyID, err := tenant.CompanyID(ctx)
	if err != nil {
		return nil, err
	}

	var ids interface{}
	if len(employeeIDs) > 0 {
		ids = pq.Array(employeeIDs)
	}

	var users []*User
	query := `SELECT ` + userColumns + ` FROM users
		WHERE company_id = $1
		  AND role NOT IN ('ADMIN', 'DEVELOPER')
		  AND ($2 OR status = 'active')
		  AND ($3::uuid[] IS NULL OR id = ANY($3))
		ORDER BY name`
	if err := r.db.SelectContext(ctx, &users, query, companyID, includeInactive, ids); err != nil {
		return nil, err
	}
	return users, nil
}

// ============================================================================
// OTP STATE (row-locked)
// ============================================================================

// GetForUpdateTx locks and returns a user row. OTP flows mutate the
// verification columns only while holding this lock.
func (r *UserRepository) GetForUpdateTx(ctx context.Context, tx *sqlx.Tx, id string) (*User, error) {
	var u User
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 FOR UPDATE`
	err := tx.GetContext(ctx, &u, query, id)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("user")
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// SetVerificationOTPTx stores a fresh verification code hash and
// resets the attempt counter.
func (r *UserRepository) SetVerificationOTPTx(ctx context.Context, tx *sqlx.Tx, id, otpHash string, expiresAt, sentAt time.Time) error {
	query := `
		UPDATE users SET
			verification_pin_hash = $2, verification_expires_at = $3,
			verification_attempts = 0, last_verification_sent_at = $4,
			updated_at = NOW()
		WHERE id = $1
	`
	_, err := tx.ExecContext(ctx, query, id, otpHash, expiresAt, sentAt)
	return err
}

// ClearVerificationOTPTx drops the pending verification code.
func (r *UserRepository) ClearVerificationOTPTx(ctx context.Context, tx *sqlx.Tx, id string) error {
	query := `
		UPDATE users SET
			verification_pin_hash = NULL, verification_expires_at = NULL,
			verification_attempts = 0, updated_at = NOW()
		WHERE id = $1
	`
	_, err := tx.ExecContext(ctx, query, id)
	return err
}

// IncrementVerificationAttemptsTx bumps the failed-attempt counter.
func (r *UserRepository) IncrementVerificationAttemptsTx(ctx context.Context, tx *sqlx.Tx, id string) (int, error) {
	var attempts int
	query := `
		UPDATE users SET verification_attempts = verification_attempts + 1, updated_at = NOW()
		WHERE id = $1
		RETURNING verification_attempts
	`
	err := tx.QueryRowxContext(ctx, query, id).Scan(&attempts)
	return attempts, err
}

// MarkVerifiedTx records a successful verification and clears OTP state.
func (r *UserRepository) MarkVerifiedTx(ctx context.Context, tx *sqlx.Tx, id string, at time.Time) error {
	query := `
		UPDATE users SET
			email_verified = TRUE, verification_required = FALSE, last_verified_at = $2,
			verification_pin_hash = NULL, verification_expires_at = NULL,
			verification_attempts = 0, updated_at = NOW()
		WHERE id = $1
	`
	_, err := tx.ExecContext(ctx, query, id, at)
	return err
}

// SetPasswordResetOTPTx stores a fresh password-reset code hash.
func (r *UserRepository) SetPasswordResetOTPTx(ctx context.Context, tx *sqlx.Tx, id, otpHash string, expiresAt, sentAt time.Time) error {
	query := `
		UPDATE users SET
			password_reset_otp_hash = $2, password_reset_otp_expires_at = $3,
			password_reset_attempts = 0, last_password_reset_sent_at = $4,
			updated_at = NOW()
		WHERE id = $1
	`
	_, err := tx.ExecContext(ctx, query, id, otpHash, expiresAt, sentAt)
	return err
}

// ClearPasswordResetOTPTx drops the pending reset code.
func (r *UserRepository) ClearPasswordResetOTPTx(ctx context.Context, tx *sqlx.Tx, id string) error {
	query := `
		UPDATE users SET
			password_reset_otp_hash = NULL, password_reset_otp_expires_at = NULL,
			password_reset_attempts = 0, updated_at = NOW()
		WHERE id = $1
	`
	_, err := tx.ExecContext(ctx, query, id)
	return err
}

// IncrementPasswordResetAttemptsTx bumps the failed-attempt counter.
func (r *UserRepository) IncrementPasswordResetAttemptsTx(ctx context.Context, tx *sqlx.Tx, id string) (int, error) {
	var attempts int
	query := `
		UPDATE users SET password_reset_attempts = password_reset_attempts + 1, updated_at = NOW()
		WHERE id = $1
		RETURNING password_reset_attempts
	`
	err := tx.QueryRowxContext(ctx, query, id).Scan(&attempts)
	return attempts, err
}

// CompletePasswordResetTx overwrites the password and clears reset state.
func (r *UserRepository) CompletePasswordResetTx(ctx context.Context, tx *sqlx.Tx, id, passwordHash string) error {
	query := `
		UPDATE users SET
			password_hash = $2,
			password_reset_otp_hash = NULL, password_reset_otp_expires_at = NULL,
			password_reset_attempts = 0, updated_at = NOW()
		WHERE id = $1
	`
	_, err := tx.ExecContext(ctx, query, id, passwordHash)
	return err
}

// CleanupExpiredOTPState clears verification and reset codes past
// their expiry across all companies. Called from the maintenance ticker.
func (r *UserRepository) CleanupExpiredOTPState(ctx context.Context) (int64, error) {
	query := `
		UPDATE users SET
			verification_pin_hash = CASE WHEN verification_expires_at < NOW() THEN NULL ELSE verification_pin_hash END,
			verification_expires_at = CASE WHEN verification_expires_at < NOW() THEN NULL ELSE verification_expires_at END,
			password_reset_otp_hash = CASE WHEN password_reset_otp_expires_at < NOW() THEN NULL ELSE password_reset_otp_hash END,
			password_reset_otp_expires_at = CASE WHEN password_reset_otp_expires_at < NOW() THEN NULL ELSE password_reset_otp_expires_at END
		WHERE verification_expires_at < NOW() OR password_reset_otp_expires_at < NOW()
	`
	result, err := r.db.ExecContext(ctx, query)
	if err != nil {
		return 0, err
	}
	affected, _ := result.RowsAffected()
	return affected, nil
}
