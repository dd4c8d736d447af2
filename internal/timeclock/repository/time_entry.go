package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shiftline/shiftline-backend/pkg/database"
	"github.com/shiftline/shiftline-backend/pkg/errors"
	"github.com/shiftline/shiftline-backend/pkg/tenant"
)

// Time entry statuses
const (
	StatusOpen     = "open"
	StatusClosed   = "closed"
	StatusEdited   = "edited"
	StatusApproved = "approved"
)

// Punch sources
const (
	SourceKiosk = "kiosk"
	SourceWeb   = "web"
)

// exportLimit bounds list queries feeding exports.
const exportLimit = 10000

// TimeEntry is one worked shift. At most one row per employee has a
// NULL clock_out_at, enforced by a partial unique index.
type TimeEntry struct {
	ID           string     `db:"id" json:"id"`
	CompanyID    string     `db:"company_id" json:"company_id"`
	EmployeeID   string     `db:"employee_id" json:"employee_id"`
	ClockInAt    time.Time  `db:"clock_in_at" json:"clock_in_at"`
	ClockOutAt   *time.Time `db:"clock_out_at" json:"clock_out_at,omitempty"`
	BreakMinutes int        `db:"break_minutes" json:"break_minutes"`
	Source       string     `db:"source" json:"source"`
	Status       string     `db:"status" json:"status"`
	Note         *string    `db:"note" json:"note,omitempty"`
	EditedBy     *string    `db:"edited_by" json:"edited_by,omitempty"`
	EditReason   *string    `db:"edit_reason" json:"edit_reason,omitempty"`

	ClockInIP        *string  `db:"clock_in_ip" json:"clock_in_ip,omitempty"`
	ClockInUserAgent *string  `db:"clock_in_user_agent" json:"-"`
	ClockInLat       *float64 `db:"clock_in_lat" json:"clock_in_lat,omitempty"`
	ClockInLng       *float64 `db:"clock_in_lng" json:"clock_in_lng,omitempty"`

	ClockOutIP        *string  `db:"clock_out_ip" json:"clock_out_ip,omitempty"`
	ClockOutUserAgent *string  `db:"clock_out_user_agent" json:"-"`
	ClockOutLat       *float64 `db:"clock_out_lat" json:"clock_out_lat,omitempty"`
	ClockOutLng       *float64 `db:"clock_out_lng" json:"clock_out_lng,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// PunchMeta is the request metadata captured on each punch
type PunchMeta struct {
	IP        *string
	UserAgent *string
	Lat       *float64
	Lng       *float64
}

// EntryListParams filters time entry listings
type EntryListParams struct {
	EmployeeID *string
	Status     *string
	From       *time.Time
	To         *time.Time
	Limit      int
}

// TimeEntryRepository handles time entry persistence
type TimeEntryRepository struct {
	db *database.DB
}

// NewTimeEntryRepository creates a new time entry repository
func NewTimeEntryRepository(db *database.DB) *TimeEntryRepository {
	return &TimeEntryRepository{db: db}
}

const entryColumns = `
	id, company_id, employee_id, clock_in_at, clock_out_at, break_minutes, source, status,
	note, edited_by, edit_reason,
	clock_in_ip, clock_in_user_agent, clock_in_lat, clock_in_lng,
	clock_out_ip, clock_out_user_agent, clock_out_lat, clock_out_lng,
	created_at, updated_at`

// CreateTx inserts an open entry inside the caller's transaction. The
// partial unique open-entry index turns a concurrent double clock-in
// into a conflict.
func (r *TimeEntryRepository) CreateTx(ctx context.Context, tx sqlx.ExtContext, e *TimeEntry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Status == "" {
		e.Status = StatusOpen
	}

	query := `
		INSERT INTO time_entries (
			id, company_id, employee_id, clock_in_at, clock_out_at, break_minutes, source, status,
			note, clock_in_ip, clock_in_user_agent, clock_in_lat, clock_in_lng
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at, updated_at
	`
	err := tx.QueryRowxContext(ctx, query,
		e.ID, e.CompanyID, e.EmployeeID, e.ClockInAt, e.ClockOutAt, e.BreakMinutes, e.Source, e.Status,
		e.Note, e.ClockInIP, e.ClockInUserAgent, e.ClockInLat, e.ClockInLng,
	).Scan(&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}

// Create inserts an entry outside a transaction (manual admin creation).
func (r *TimeEntryRepository) Create(ctx context.Context, e *TimeEntry) error {
	return r.CreateTx(ctx, r.db.DB, e)
}

// GetByID returns one entry within the caller's company
func (r *TimeEntryRepository) GetByID(ctx context.Context, id string) (*TimeEntry, error) {
	companyID, err := tenant.CompanyID(ctx)
	if err != nil {
		return nil, err
	}

	var e TimeEntry
	query := `SELECT ` + entryColumns + ` FROM time_entries WHERE id = $1 AND company_id = $2`
	err = r.db.GetContext(ctx, &e, query, id, companyID)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("time entry")
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// GetOpenTx returns the employee's open entry, or nil when the
// employee is idle. Called while holding the punch advisory lock.
func (r *TimeEntryRepository) GetOpenTx(ctx context.Context, tx *sqlx.Tx, companyID, employeeID string) (*TimeEntry, error) {
	var e TimeEntry
	query := `
		SELECT ` + entryColumns + `
		FROM time_entries
		WHERE company_id = $1 AND employee_id = $2 AND clock_out_at IS NULL
	`
	err := tx.GetContext(ctx, &e, query, companyID, employeeID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// GetOpen is GetOpenTx outside a transaction (kiosk check-pin state).
func (r *TimeEntryRepository) GetOpen(ctx context.Context, companyID, employeeID string) (*TimeEntry, error) {
	var e TimeEntry
	query := `
		SELECT ` + entryColumns + `
		FROM time_entries
		WHERE company_id = $1 AND employee_id = $2 AND clock_out_at IS NULL
	`
	err := r.db.GetContext(ctx, &e, query, companyID, employeeID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// CloseTx closes an open entry inside the caller's transaction.
func (r *TimeEntryRepository) CloseTx(ctx context.Context, tx sqlx.ExtContext, id string, clockOutAt time.Time, meta PunchMeta) error {
	query := `
		UPDATE time_entries SET
			clock_out_at = $2, status = $3,
			clock_out_ip = $4, clock_out_user_agent = $5, clock_out_lat = $6, clock_out_lng = $7,
			updated_at = NOW()
		WHERE id = $1 AND clock_out_at IS NULL
	`
	result, err := tx.ExecContext(ctx, query, id, clockOutAt, StatusClosed,
		meta.IP, meta.UserAgent, meta.Lat, meta.Lng)
	if err != nil {
		return err
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.Conflict("shift is already closed")
	}
	return nil
}

// List returns entries of the caller's company with filters. The limit
// is capped so exports stay bounded.
func (r *TimeEntryRepository) List(ctx context.Context, params EntryListParams) ([]*TimeEntry, error) {
	companyID, err := tenant.CompanyID(ctx)
	if err != nil {
		return nil, err
	}

	if params.Limit <= 0 || params.Limit > exportLimit {
		params.Limit = exportLimit
	}

	var entries []*TimeEntry
	query := `
		SELECT ` + entryColumns + `
		FROM time_entries
		WHERE company_id = $1
		  AND ($2::uuid IS NULL OR employee_id = $2)
		  AND ($3::text IS NULL OR status = $3)
		  AND ($4::timestamptz IS NULL OR clock_in_at >= $4)
		  AND ($5::timestamptz IS NULL OR clock_in_at < $5)
		ORDER BY clock_in_at DESC
		LIMIT $6
	`
	if err := r.db.SelectContext(ctx, &entries, query,
		companyID, params.EmployeeID, params.Status, params.From, params.To, params.Limit); err != nil {
		return nil, err
	}
	return entries, nil
}

// ListForPayroll returns every entry of an employee potentially
// overlapping a UTC period. Open entries are included so the engine
// can count them as exceptions.
func (r *TimeEntryRepository) ListForPayroll(ctx context.Context, employeeID string, periodStartUTC, periodEndUTC time.Time) ([]*TimeEntry, error) {
	companyID, err := tenant.CompanyID(ctx)
	if err != nil {
		return nil, err
	}

	var entries []*TimeEntry
	query := `
		SELECT ` + entryColumns + `
		FROM time_entries
		WHERE company_id = $1 AND employee_id = $2
		  AND clock_in_at <= $3
		  AND (clock_out_at IS NULL OR clock_out_at >= $4)
		ORDER BY clock_in_at
	`
	if err := r.db.SelectContext(ctx, &entries, query, companyID, employeeID, periodEndUTC, periodStartUTC); err != nil {
		return nil, err
	}
	return entries, nil
}

// AdminUpdate applies an admin edit and stamps the editor and reason.
// The status moves to edited so payroll counts the entry as an exception.
func (r *TimeEntryRepository) AdminUpdate(ctx context.Context, e *TimeEntry) error {
	companyID, err := tenant.CompanyID(ctx)
	if err != nil {
		return err
	}

	query := `
		UPDATE time_entries SET
			clock_in_at = $3, clock_out_at = $4, break_minutes = $5, note = $6,
			status = $7, edited_by = $8, edit_reason = $9, updated_at = NOW()
		WHERE id = $1 AND company_id = $2
	`
	result, err := r.db.ExecContext(ctx, query,
		e.ID, companyID, e.ClockInAt, e.ClockOutAt, e.BreakMinutes, e.Note,
		e.Status, e.EditedBy, e.EditReason,
	)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("time entry")
	}
	return nil
}

// Delete removes an entry; the cash drawer session cascades via FK.
func (r *TimeEntryRepository) Delete(ctx context.Context, id string) error {
	companyID, err := tenant.CompanyID(ctx)
	if err != nil {
		return err
	}

	result, err := r.db.ExecContext(ctx,
		`DELETE FROM time_entries WHERE id = $1 AND company_id = $2`, id, companyID)
	if err != nil {
		return err
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("time entry")
	}
	return nil
}
