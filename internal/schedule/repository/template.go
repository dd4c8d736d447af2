package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/shiftline/shiftline-backend/pkg/database"
	"github.com/shiftline/shiftline-backend/pkg/errors"
	"github.com/shiftline/shiftline-backend/pkg/tenant"
)

// Template recurrence kinds
const (
	TemplateNone     = "NONE"
	TemplateWeekly   = "WEEKLY"
	TemplateBiweekly = "BIWEEKLY"
	TemplateMonthly  = "MONTHLY"
)

// ShiftTemplate is a recurrence descriptor expanded into shifts.
type ShiftTemplate struct {
	ID           string `db:"id" json:"id"`
	CompanyID    string `db:"company_id" json:"company_id"`
	Name         string `db:"name" json:"name"`
	TemplateType string `db:"template_type" json:"template_type"`

	DayOfWeek   *int `db:"day_of_week" json:"day_of_week,omitempty"`
	DayOfMonth  *int `db:"day_of_month" json:"day_of_month,omitempty"`
	WeekOfMonth *int `db:"week_of_month" json:"week_of_month,omitempty"`

	StartDate time.Time  `db:"start_date" json:"start_date"`
	EndDate   *time.Time `db:"end_date" json:"end_date,omitempty"`

	StartTime    string `db:"start_time" json:"start_time"`
	EndTime      string `db:"end_time" json:"end_time"`
	BreakMinutes int    `db:"break_minutes" json:"break_minutes"`

	EmployeeID *string `db:"employee_id" json:"employee_id,omitempty"`
	Department *string `db:"department" json:"department,omitempty"`
	JobRole    *string `db:"job_role" json:"job_role,omitempty"`

	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// TemplateRepository handles shift template persistence
type TemplateRepository struct {
	db *database.DB
}

// NewTemplateRepository creates a new template repository
func NewTemplateRepository(db *database.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

const templateColumns = `
	id, company_id, name, template_type, day_of_week, day_of_month, week_of_month,
	start_date, end_date, start_time, end_time, break_minutes,
	employee_id, department, job_role, is_active, created_at, updated_at`

// Create inserts a template
func (r *TemplateRepository) Create(ctx context.Context, t *ShiftTemplate) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}

	query := `
		INSERT INTO shift_templates (
			id, company_id, name, template_type, day_of_week, day_of_month, week_of_month,
			start_date, end_date, start_time, end_time, break_minutes,
			employee_id, department, job_role, is_active
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRowxContext(ctx, query,
		t.ID, t.CompanyID, t.Name, t.TemplateType, t.DayOfWeek, t.DayOfMonth, t.WeekOfMonth,
		t.StartDate, t.EndDate, t.StartTime, t.EndTime, t.BreakMinutes,
		t.EmployeeID, t.Department, t.JobRole, t.IsActive,
	).Scan(&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}

// GetByID returns one template within the caller's company
func (r *TemplateRepository) GetByID(ctx context.Context, id string) (*ShiftTemplate, error) {
	companyID, err := tenant.CompanyID(ctx)
	if err != nil {
		return nil, err
	}

	var t ShiftTemplate
	query := `SELECT ` + templateColumns + ` FROM shift_templates WHERE id = $1 AND company_id = $2`
	err = r.db.GetContext(ctx, &t, query, id, companyID)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("shift template")
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// List returns the caller's company templates, active first
func (r *TemplateRepository) List(ctx context.Context) ([]*ShiftTemplate, error) {
	companyID, err := tenant.CompanyID(ctx)
	if err != nil {
		return nil, err
	}

	var templates []*ShiftTemplate
	query := `
		SELECT ` + templateColumns + `
		FROM shift_templates
		WHERE company_id = $1
		ORDER BY is_active DESC, name
	`
	if err := r.db.SelectContext(ctx, &templates, query, companyID); err != nil {
		return nil, err
	}
	return templates, nil
}
