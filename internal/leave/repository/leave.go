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

// Leave request types
const (
	TypeVacation = "vacation"
	TypeSick     = "sick"
	TypePersonal = "personal"
	TypeOther    = "other"
)

// Leave request statuses
const (
	StatusPending   = "pending"
	StatusApproved  = "approved"
	StatusRejected  = "rejected"
	StatusCancelled = "cancelled"
)

// LeaveRequest is one employee absence request
type LeaveRequest struct {
	ID         string `db:"id" json:"id"`
	CompanyID  string `db:"company_id" json:"company_id"`
	EmployeeID string `db:"employee_id" json:"employee_id"`

	LeaveType       string    `db:"leave_type" json:"leave_type"`
	StartDate       time.Time `db:"start_date" json:"start_date"`
	EndDate         time.Time `db:"end_date" json:"end_date"`
	PartialDayHours *float64  `db:"partial_day_hours" json:"partial_day_hours,omitempty"`
	Reason          *string   `db:"reason" json:"reason,omitempty"`

	Status        string     `db:"status" json:"status"`
	ReviewedBy    *string    `db:"reviewed_by" json:"reviewed_by,omitempty"`
	ReviewedAt    *time.Time `db:"reviewed_at" json:"reviewed_at,omitempty"`
	ReviewComment *string    `db:"review_comment" json:"review_comment,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// LeaveListParams filters leave request listings
type LeaveListParams struct {
	EmployeeID *string
	Status     *string
	LeaveType  *string
	From       *time.Time
	To         *time.Time
}

// LeaveRepository handles leave request persistence
type LeaveRepository struct {
	db *database.DB
}

// NewLeaveRepository creates a new leave repository
func NewLeaveRepository(db *database.DB) *LeaveRepository {
	return &LeaveRepository{db: db}
}

const leaveColumns = `
	id, company_id, employee_id, leave_type, start_date, end_date,
	partial_day_hours, reason, status, reviewed_by, reviewed_at, review_comment,
	created_at, updated_at`

// Create inserts a pending leave request
func (r *LeaveRepository) Create(ctx context.Context, lr *LeaveRequest) error {
	if lr.ID == "" {
		lr.ID = uuid.New().String()
	}
	if lr.Status == "" {
		lr.Status = StatusPending
	}

	query := `
		INSERT INTO leave_requests (
			id, company_id, employee_id, leave_type, start_date, end_date,
			partial_day_hours, reason, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRowxContext(ctx, query,
		lr.ID, lr.CompanyID, lr.EmployeeID, lr.LeaveType, lr.StartDate, lr.EndDate,
		lr.PartialDayHours, lr.Reason, lr.Status,
	).Scan(&lr.CreatedAt, &lr.UpdatedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}

// GetByID returns one request within the caller's company
func (r *LeaveRepository) GetByID(ctx context.Context, id string) (*LeaveRequest, error) {
	companyID, err := tenant.CompanyID(ctx)
	if err != nil {
		return nil, err
	}

	var lr LeaveRequest
	query := `SELECT ` + leaveColumns + ` FROM leave_requests WHERE id = $1 AND company_id = $2`
	err = r.db.GetContext(ctx, &lr, query, id, companyID)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("leave request")
	}
	if err != nil {
		return nil, err
	}
	return &lr, nil
}

// Review resolves a pending request to approved or rejected
func (r *LeaveRepository) Review(ctx context.Context, id, status, reviewedBy string, at time.Time, comment *string) error {
	companyID, err := tenant.CompanyID(ctx)
	if err != nil {
		return err
	}

	query := `
		UPDATE leave_requests SET
			status = $3, reviewed_by = $4, reviewed_at = $5, review_comment = $6, updated_at = NOW()
		WHERE id = $1 AND company_id = $2 AND status = $7
	`
	result, err := r.db.ExecContext(ctx, query, id, companyID, status, reviewedBy, at, comment, StatusPending)
	if err != nil {
		return err
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.Conflict("leave request is no longer pending")
	}
	return nil
}

// Cancel lets the owner withdraw a still-pending request
func (r *LeaveRepository) Cancel(ctx context.Context, id, employeeID string) error {
	companyID, err := tenant.CompanyID(ctx)
	if err != nil {
		return err
	}

	query := `
		UPDATE leave_requests SET status = $4, updated_at = NOW()
		WHERE id = $1 AND company_id = $2 AND employee_id = $3 AND status = $5
	`
	result, err := r.db.ExecContext(ctx, query, id, companyID, employeeID, StatusCancelled, StatusPending)
	if err != nil {
		return err
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.Conflict("only your own pending requests can be cancelled")
	}
	return nil
}

// List returns the company's requests with filters, newest first
func (r *LeaveRepository) List(ctx context.Context, params LeaveListParams) ([]*LeaveRequest, error) {
	companyID, err := tenant.CompanyID(ctx)
	if err != nil {
		return nil, err
	}

	var requests []*LeaveRequest
	query := `
		SELECT ` + leaveColumns + `
		FROM leave_requests
		WHERE company_id = $1
		  AND ($2::uuid IS NULL OR employee_id = $2)
		  AND ($3::text IS NULL OR status = $3)
		  AND ($4::text IS NULL OR leave_type = $4)
		  AND ($5::date IS NULL OR end_date >= $5)
		  AND ($6::date IS NULL OR start_date <= $6)
		ORDER BY created_at DESC
	`
	if err := r.db.SelectContext(ctx, &requests, query,
		companyID, params.EmployeeID, params.Status, params.LeaveType, params.From, params.To); err != nil {
		return nil, err
	}
	return requests, nil
}
