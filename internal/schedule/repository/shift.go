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

// Scheduled shift statuses
const (
	ShiftStatusDraft     = "DRAFT"
	ShiftStatusPublished = "PUBLISHED"
	ShiftStatusApproved  = "APPROVED"
	ShiftStatusCancelled = "CANCELLED"
)

// Shift is one scheduled shift. Start and end are local times of day;
// an end at or before the start denotes an overnight shift.
type Shift struct {
	ID         string    `db:"id" json:"id"`
	CompanyID  string    `db:"company_id" json:"company_id"`
	EmployeeID string    `db:"employee_id" json:"employee_id"`
	ShiftDate  time.Time `db:"shift_date" json:"shift_date"`
	StartTime  string    `db:"start_time" json:"start_time"`
	EndTime    string    `db:"end_time" json:"end_time"`

	BreakMinutes int     `db:"break_minutes" json:"break_minutes"`
	Status       string  `db:"status" json:"status"`
	Notes        *string `db:"notes" json:"notes,omitempty"`
	JobRole      *string `db:"job_role" json:"job_role,omitempty"`
	TemplateID   *string `db:"template_id" json:"template_id,omitempty"`
	SeriesID     *string `db:"series_id" json:"series_id,omitempty"`

	RequiresApproval bool       `db:"requires_approval" json:"requires_approval"`
	ApprovedBy       *string    `db:"approved_by" json:"approved_by,omitempty"`
	ApprovedAt       *time.Time `db:"approved_at" json:"approved_at,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// ShiftListParams filters shift listings
type ShiftListParams struct {
	EmployeeID *string
	Status     *string
	From       *time.Time
	To         *time.Time
}

// ShiftRepository handles scheduled shift persistence
type ShiftRepository struct {
	db *database.DB
}

// NewShiftRepository creates a new shift repository
func NewShiftRepository(db *database.DB) *ShiftRepository {
	return &ShiftRepository{db: db}
}

const shiftColumns = `
	id, company_id, employee_id, shift_date, start_time, end_time,
	break_minutes, status, notes, job_role, template_id, series_id,
	requires_approval, approved_by, approved_at, created_at, updated_at`

// CreateTx inserts a shift inside the caller's transaction
func (r *ShiftRepository) CreateTx(ctx context.Context, tx sqlx.ExtContext, s *Shift) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	if s.Status == "" {
		s.Status = ShiftStatusPublished
	}

	query := `
		INSERT INTO shifts (
			id, company_id, employee_id, shift_date, start_time, end_time,
			break_minutes, status, notes, job_role, template_id, series_id, requires_approval
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at, updated_at
	`
	err := tx.QueryRowxContext(ctx, query,
		s.ID, s.CompanyID, s.EmployeeID, s.ShiftDate, s.StartTime, s.EndTime,
		s.BreakMinutes, s.Status, s.Notes, s.JobRole, s.TemplateID, s.SeriesID, s.RequiresApproval,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}

// Create inserts a shift outside a transaction
func (r *ShiftRepository) Create(ctx context.Context, s *Shift) error {
	return r.CreateTx(ctx, r.db.DB, s)
}

// GetByID returns one shift within the caller's company
func (r *ShiftRepository) GetByID(ctx context.Context, id string) (*Shift, error) {
	companyID, err := tenant.CompanyID(ctx)
	if err != nil {
		return nil, err
	}

	var s Shift
	query := `SELECT ` + shiftColumns + ` FROM shifts WHERE id = $1 AND company_id = $2`
	err = r.db.GetContext(ctx, &s, query, id, companyID)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("shift")
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Update rewrites the mutable fields of a shift
func (r *ShiftRepository) Update(ctx context.Context, s *Shift) error {
	companyID, err := tenant.CompanyID(ctx)
	if err != nil {
		return err
	}

	query := `
		UPDATE shifts SET
			employee_id = $3, shift_date = $4, start_time = $5, end_time = $6,
			break_minutes = $7, status = $8, notes = $9, job_role = $10, updated_at = NOW()
		WHERE id = $1 AND company_id = $2
	`
	result, err := r.db.ExecContext(ctx, query,
		s.ID, companyID, s.EmployeeID, s.ShiftDate, s.StartTime, s.EndTime,
		s.BreakMinutes, s.Status, s.Notes, s.JobRole,
	)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("shift")
	}
	return nil
}

// Approve stamps the approver and moves the shift to APPROVED
func (r *ShiftRepository) Approve(ctx context.Context, id, approvedBy string, at time.Time) error {
	companyID, err := tenant.CompanyID(ctx)
	if err != nil {
		return err
	}

	query := `
		UPDATE shifts SET status = $3, approved_by = $4, approved_at = $5, updated_at = NOW()
		WHERE id = $1 AND company_id = $2 AND status != $6
	`
	result, err := r.db.ExecContext(ctx, query, id, companyID, ShiftStatusApproved, approvedBy, at, ShiftStatusCancelled)
	if err != nil {
		return err
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("shift")
	}
	return nil
}

// Delete removes a shift
func (r *ShiftRepository) Delete(ctx context.Context, id string) error {
	return r.DeleteTx(ctx, r.db.DB, id)
}

// DeleteTx removes a shift inside the caller's transaction. The
// overwrite conflict policy deletes displaced shifts this way.
func (r *ShiftRepository) DeleteTx(ctx context.Context, tx sqlx.ExtContext, id string) error {
	companyID, err := tenant.CompanyID(ctx)
	if err != nil {
		return err
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM shifts WHERE id = $1 AND company_id = $2`, id, companyID)
	if err != nil {
		return err
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("shift")
	}
	return nil
}

// List returns shifts of the caller's company with filters, ordered by
// date then start time.
func (r *ShiftRepository) List(ctx context.Context, params ShiftListParams) ([]*Shift, error) {
	companyID, err := tenant.CompanyID(ctx)
	if err != nil {
		return nil, err
	}

	var shifts []*Shift
	query := `
		SELECT ` + shiftColumns + `
		FROM shifts
		WHERE company_id = $1
		  AND ($2::uuid IS NULL OR employee_id = $2)
		  AND ($3::text IS NULL OR status = $3)
		  AND ($4::date IS NULL OR shift_date >= $4)
		  AND ($5::date IS NULL OR shift_date <= $5)
		ORDER BY shift_date, start_time
	`
	if err := r.db.SelectContext(ctx, &shifts, query,
		companyID, params.EmployeeID, params.Status, params.From, params.To); err != nil {
		return nil, err
	}
	return shifts, nil
}

// ListAround returns an employee's non-cancelled shifts on the day
// before, of, and after a date. Overnight shifts reach into adjacent
// days, so conflict detection always fetches the widened window and
// re-filters by the overlap predicate.
func (r *ShiftRepository) ListAround(ctx context.Context, employeeID string, date time.Time, excludeID *string) ([]*Shift, error) {
	companyID, err := tenant.CompanyID(ctx)
	if err != nil {
		return nil, err
	}

	var shifts []*Shift
	query := `
		SELECT ` + shiftColumns + `
		FROM shifts
		WHERE company_id = $1 AND employee_id = $2
		  AND shift_date BETWEEN $3 AND $4
		  AND status != $5
		  AND ($6::uuid IS NULL OR id != $6)
		ORDER BY shift_date, start_time
	`
	if err := r.db.SelectContext(ctx, &shifts, query,
		companyID, employeeID,
		date.AddDate(0, 0, -1), date.AddDate(0, 0, 1),
		ShiftStatusCancelled, excludeID); err != nil {
		return nil, err
	}
	return shifts, nil
}
