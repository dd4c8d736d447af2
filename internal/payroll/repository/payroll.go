package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shiftline/shiftline-backend/pkg/database"
	"github.com/shiftline/shiftline-backend/pkg/errors"
	"github.com/shiftline/shiftline-backend/pkg/tenant"
	"github.com/shopspring/decimal"
)

// Payroll run types
const (
	TypeWeekly   = "WEEKLY"
	TypeBiweekly = "BIWEEKLY"
)

// Payroll run statuses
const (
	StatusDraft     = "DRAFT"
	StatusFinalized = "FINALIZED"
	StatusVoid      = "VOID"
)

// PayrollRun is one generated payroll period. The timezone is a
// snapshot of the company timezone at generation time, so later
// settings changes never move a run's boundaries.
type PayrollRun struct {
	ID          string `db:"id" json:"id"`
	CompanyID   string `db:"company_id" json:"company_id"`
	PayrollType string `db:"payroll_type" json:"payroll_type"`

	PeriodStartDate time.Time `db:"period_start_date" json:"period_start_date"`
	PeriodEndDate   time.Time `db:"period_end_date" json:"period_end_date"`
	Timezone        string    `db:"timezone" json:"timezone"`

	Status      string    `db:"status" json:"status"`
	GeneratedBy string    `db:"generated_by" json:"generated_by"`
	GeneratedAt time.Time `db:"generated_at" json:"generated_at"`

	FinalizedBy  *string    `db:"finalized_by" json:"finalized_by,omitempty"`
	FinalizedAt  *time.Time `db:"finalized_at" json:"finalized_at,omitempty"`
	FinalizeNote *string    `db:"finalize_note" json:"finalize_note,omitempty"`
	VoidedBy     *string    `db:"voided_by" json:"voided_by,omitempty"`
	VoidedAt     *time.Time `db:"voided_at" json:"voided_at,omitempty"`
	VoidReason   *string    `db:"void_reason" json:"void_reason,omitempty"`

	TotalRegularHours  decimal.Decimal `db:"total_regular_hours" json:"total_regular_hours"`
	TotalOvertimeHours decimal.Decimal `db:"total_overtime_hours" json:"total_overtime_hours"`
	TotalGrossPayCents int64           `db:"total_gross_pay_cents" json:"total_gross_pay_cents"`
	EmployeeCount      int             `db:"employee_count" json:"employee_count"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// PayrollLineItem is one employee's slice of a run. Pay rate and
// multiplier are snapshots taken at generation time.
type PayrollLineItem struct {
	ID           string `db:"id" json:"id"`
	PayrollRunID string `db:"payroll_run_id" json:"payroll_run_id"`
	EmployeeID   string `db:"employee_id" json:"employee_id"`
	EmployeeName string `db:"employee_name" json:"employee_name"`

	RegularMinutes  int `db:"regular_minutes" json:"regular_minutes"`
	OvertimeMinutes int `db:"overtime_minutes" json:"overtime_minutes"`
	TotalMinutes    int `db:"total_minutes" json:"total_minutes"`

	PayRateCents       int64           `db:"pay_rate_cents" json:"pay_rate_cents"`
	OvertimeMultiplier decimal.Decimal `db:"overtime_multiplier" json:"overtime_multiplier"`

	RegularPayCents  int64 `db:"regular_pay_cents" json:"regular_pay_cents"`
	OvertimePayCents int64 `db:"overtime_pay_cents" json:"overtime_pay_cents"`
	TotalPayCents    int64 `db:"total_pay_cents" json:"total_pay_cents"`

	ExceptionsCount int             `db:"exceptions_count" json:"exceptions_count"`
	Details         json.RawMessage `db:"details" json:"details,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// RunListParams filters run listings
type RunListParams struct {
	PayrollType *string
	Status      *string
	From        *time.Time
	To          *time.Time
	Limit       int
}

// PayrollRepository handles payroll run and line item persistence
type PayrollRepository struct {
	db *database.DB
}

// NewPayrollRepository creates a new payroll repository
func NewPayrollRepository(db *database.DB) *PayrollRepository {
	return &PayrollRepository{db: db}
}

const runColumns = `
	id, company_id, payroll_type, period_start_date, period_end_date, timezone,
	status, generated_by, generated_at,
	finalized_by, finalized_at, finalize_note, voided_by, voided_at, void_reason,
	total_regular_hours, total_overtime_hours, total_gross_pay_cents, employee_count,
	created_at, updated_at`

const itemColumns = `
	id, payroll_run_id, employee_id, employee_name,
	regular_minutes, overtime_minutes, total_minutes,
	pay_rate_cents, overtime_multiplier,
	regular_pay_cents, overtime_pay_cents, total_pay_cents,
	exceptions_count, details, created_at`

// CreateRunTx inserts a run inside the caller's transaction
func (r *PayrollRepository) CreateRunTx(ctx context.Context, tx sqlx.ExtContext, run *PayrollRun) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}

	query := `
		INSERT INTO payroll_runs (
			id, company_id, payroll_type, period_start_date, period_end_date, timezone,
			status, generated_by, generated_at,
			total_regular_hours, total_overtime_hours, total_gross_pay_cents, employee_count
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at, updated_at
	`
	err := tx.QueryRowxContext(ctx, query,
		run.ID, run.CompanyID, run.PayrollType, run.PeriodStartDate, run.PeriodEndDate, run.Timezone,
		run.Status, run.GeneratedBy, run.GeneratedAt,
		run.TotalRegularHours, run.TotalOvertimeHours, run.TotalGrossPayCents, run.EmployeeCount,
	).Scan(&run.CreatedAt, &run.UpdatedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}

// InsertLineItemTx inserts one line item inside the caller's transaction
func (r *PayrollRepository) InsertLineItemTx(ctx context.Context, tx sqlx.ExtContext, item *PayrollLineItem) error {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}

	query := `
		INSERT INTO payroll_line_items (
			id, payroll_run_id, employee_id, employee_name,
			regular_minutes, overtime_minutes, total_minutes,
			pay_rate_cents, overtime_multiplier,
			regular_pay_cents, overtime_pay_cents, total_pay_cents,
			exceptions_count, details
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at
	`
	err := tx.QueryRowxContext(ctx, query,
		item.ID, item.PayrollRunID, item.EmployeeID, item.EmployeeName,
		item.RegularMinutes, item.OvertimeMinutes, item.TotalMinutes,
		item.PayRateCents, item.OvertimeMultiplier,
		item.RegularPayCents, item.OvertimePayCents, item.TotalPayCents,
		item.ExceptionsCount, item.Details,
	).Scan(&item.CreatedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}

// GetRun returns one run within the caller's company
func (r *PayrollRepository) GetRun(ctx context.Context, id string) (*PayrollRun, error) {
	companyID, err := tenant.CompanyID(ctx)
	if err != nil {
		return nil, err
	}

	var run PayrollRun
	query := `SELECT ` + runColumns + ` FROM payroll_runs WHERE id = $1 AND company_id = $2`
	err = r.db.GetContext(ctx, &run, query, id, companyID)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("payroll run")
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// ListItems returns a run's line items ordered by employee name
func (r *PayrollRepository) ListItems(ctx context.Context, runID string) ([]*PayrollLineItem, error) {
	var items []*PayrollLineItem
	query := `SELECT ` + itemColumns + ` FROM payroll_line_items WHERE payroll_run_id = $1 ORDER BY employee_name`
	if err := r.db.SelectContext(ctx, &items, query, runID); err != nil {
		return nil, err
	}
	return items, nil
}

// ListRuns returns the company's runs, newest period first
func (r *PayrollRepository) ListRuns(ctx context.Context, params RunListParams) ([]*PayrollRun, error) {
	companyID, err := tenant.CompanyID(ctx)
	if err != nil {
		return nil, err
	}

	limit := params.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var runs []*PayrollRun
	query := `
		SELECT ` + runColumns + `
		FROM payroll_runs
		WHERE company_id = $1
		  AND ($2::text IS NULL OR payroll_type = $2)
		  AND ($3::text IS NULL OR status = $3)
		  AND ($4::date IS NULL OR period_start_date >= $4)
		  AND ($5::date IS NULL OR period_end_date <= $5)
		ORDER BY period_start_date DESC, generated_at DESC
		LIMIT $6
	`
	if err := r.db.SelectContext(ctx, &runs, query,
		companyID, params.PayrollType, params.Status, params.From, params.To, limit); err != nil {
		return nil, err
	}
	return runs, nil
}

// FindDuplicate returns a non-VOID run covering the same typed period,
// or nil when none exists.
func (r *PayrollRepository) FindDuplicate(ctx context.Context, payrollType string, periodStart, periodEnd time.Time) (*PayrollRun, error) {
	companyID, err := tenant.CompanyID(ctx)
	if err != nil {
		return nil, err
	}

	var run PayrollRun
	query := `
		SELECT ` + runColumns + `
		FROM payroll_runs
		WHERE company_id = $1 AND payroll_type = $2
		  AND period_start_date = $3 AND period_end_date = $4
		  AND status != $5
		LIMIT 1
	`
	err = r.db.GetContext(ctx, &run, query, companyID, payrollType, periodStart, periodEnd, StatusVoid)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// Finalize moves a DRAFT run to FINALIZED
func (r *PayrollRepository) Finalize(ctx context.Context, id, actorID string, note *string, at time.Time) error {
	companyID, err := tenant.CompanyID(ctx)
	if err != nil {
		return err
	}

	query := `
		UPDATE payroll_runs SET
			status = $3, finalized_by = $4, finalized_at = $5, finalize_note = $6, updated_at = NOW()
		WHERE id = $1 AND company_id = $2 AND status = $7
	`
	result, err := r.db.ExecContext(ctx, query, id, companyID, StatusFinalized, actorID, at, note, StatusDraft)
	if err != nil {
		return err
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.Conflict("only draft payroll runs can be finalized")
	}
	return nil
}

// Void moves a DRAFT or FINALIZED run to VOID
func (r *PayrollRepository) Void(ctx context.Context, id, actorID, reason string, at time.Time) error {
	companyID, err := tenant.CompanyID(ctx)
	if err != nil {
		return err
	}

	query := `
		UPDATE payroll_runs SET
			status = $3, voided_by = $4, voided_at = $5, void_reason = $6, updated_at = NOW()
		WHERE id = $1 AND company_id = $2 AND status != $3
	`
	result, err := r.db.ExecContext(ctx, query, id, companyID, StatusVoid, actorID, at, reason)
	if err != nil {
		return err
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.Conflict("payroll run is already void")
	}
	return nil
}

// DeleteDraft removes a DRAFT run; line items cascade
func (r *PayrollRepository) DeleteDraft(ctx context.Context, id string) error {
	companyID, err := tenant.CompanyID(ctx)
	if err != nil {
		return err
	}

	query := `DELETE FROM payroll_runs WHERE id = $1 AND company_id = $2 AND status = $3`
	result, err := r.db.ExecContext(ctx, query, id, companyID, StatusDraft)
	if err != nil {
		return err
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.Conflict("only draft payroll runs can be deleted")
	}
	return nil
}

// ListItemsForEmployee returns an employee's line items across
// finalized runs, newest period first.
func (r *PayrollRepository) ListItemsForEmployee(ctx context.Context, employeeID string, limit int) ([]*PayrollLineItem, error) {
	companyID, err := tenant.CompanyID(ctx)
	if err != nil {
		return nil, err
	}

	if limit <= 0 || limit > 100 {
		limit = 24
	}

	var items []*PayrollLineItem
	query := `
		SELECT ` + itemColumnsPrefixed + `
		FROM payroll_line_items i
		JOIN payroll_runs r ON r.id = i.payroll_run_id
		WHERE r.company_id = $1 AND i.employee_id = $2 AND r.status = $3
		ORDER BY r.period_start_date DESC
		LIMIT $4
	`
	if err := r.db.SelectContext(ctx, &items, query, companyID, employeeID, StatusFinalized, limit); err != nil {
		return nil, err
	}
	return items, nil
}

const itemColumnsPrefixed = `
	i.id, i.payroll_run_id, i.employee_id, i.employee_name,
	i.regular_minutes, i.overtime_minutes, i.total_minutes,
	i.pay_rate_cents, i.overtime_multiplier,
	i.regular_pay_cents, i.overtime_pay_cents, i.total_pay_cents,
	i.exceptions_count, i.details, i.created_at`
