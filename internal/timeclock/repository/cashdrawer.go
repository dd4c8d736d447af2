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
)

// Cash drawer session statuses
const (
	CashStatusOpen         = "OPEN"
	CashStatusClosed       = "CLOSED"
	CashStatusReviewNeeded = "REVIEW_NEEDED"
)

// Cash drawer audit actions
const (
	CashAuditCreateStart = "CREATE_START"
	CashAuditSetEnd      = "SET_END"
	CashAuditEditStart   = "EDIT_START"
	CashAuditEditEnd     = "EDIT_END"
	CashAuditReview      = "REVIEW"
	CashAuditVoid        = "VOID"
)

// CashDrawerSession is the one-to-one cash sibling of a time entry.
type CashDrawerSession struct {
	ID          string `db:"id" json:"id"`
	CompanyID   string `db:"company_id" json:"company_id"`
	TimeEntryID string `db:"time_entry_id" json:"time_entry_id"`

	StartCashCents   int64     `db:"start_cash_cents" json:"start_cash_cents"`
	StartCountedAt   time.Time `db:"start_counted_at" json:"start_counted_at"`
	StartCountSource string    `db:"start_count_source" json:"start_count_source"`

	EndCashCents   *int64     `db:"end_cash_cents" json:"end_cash_cents,omitempty"`
	EndCountedAt   *time.Time `db:"end_counted_at" json:"end_counted_at,omitempty"`
	EndCountSource *string    `db:"end_count_source" json:"end_count_source,omitempty"`

	CollectedCashCents *int64 `db:"collected_cash_cents" json:"collected_cash_cents,omitempty"`
	DropAmountCents    *int64 `db:"drop_amount_cents" json:"drop_amount_cents,omitempty"`
	BeveragesCashCents *int64 `db:"beverages_cash_cents" json:"beverages_cash_cents,omitempty"`

	DeltaCents *int64 `db:"delta_cents" json:"delta_cents,omitempty"`
	Status     string `db:"status" json:"status"`

	ReviewedBy *string    `db:"reviewed_by" json:"reviewed_by,omitempty"`
	ReviewedAt *time.Time `db:"reviewed_at" json:"reviewed_at,omitempty"`
	ReviewNote *string    `db:"review_note" json:"review_note,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// CashSessionView joins the session with its entry's employee.
type CashSessionView struct {
	CashDrawerSession
	EmployeeID   string `db:"employee_id" json:"employee_id"`
	EmployeeName string `db:"employee_name" json:"employee_name"`
}

// CashAuditRow is one append-only cash drawer audit record
type CashAuditRow struct {
	ID          string          `db:"id" json:"id"`
	CompanyID   string          `db:"company_id" json:"company_id"`
	SessionID   string          `db:"session_id" json:"session_id"`
	Action      string          `db:"action" json:"action"`
	ActorUserID *string         `db:"actor_user_id" json:"actor_user_id,omitempty"`
	OldValues   json.RawMessage `db:"old_values" json:"old_values,omitempty"`
	NewValues   json.RawMessage `db:"new_values" json:"new_values,omitempty"`
	Reason      *string         `db:"reason" json:"reason,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}

// CashListParams filters cash drawer session listings
type CashListParams struct {
	EmployeeID *string
	Status     *string
	From       *time.Time
	To         *time.Time
	Limit      int
}

// CashSummary aggregates a filtered set of sessions
type CashSummary struct {
	TotalSessions    int64 `db:"total_sessions" json:"total_sessions"`
	TotalDeltaCents  int64 `db:"total_delta_cents" json:"total_delta_cents"`
	AvgDeltaCents    int64 `db:"avg_delta_cents" json:"avg_delta_cents"`
	NeedsReviewCount int64 `db:"needs_review_count" json:"needs_review_count"`
	OpenCount        int64 `db:"open_count" json:"open_count"`
}

// CashDrawerRepository handles cash drawer persistence
type CashDrawerRepository struct {
	db *database.DB
}

// NewCashDrawerRepository creates a new cash drawer repository
func NewCashDrawerRepository(db *database.DB) *CashDrawerRepository {
	return &CashDrawerRepository{db: db}
}

const cashColumns = `
	id, company_id, time_entry_id,
	start_cash_cents, start_counted_at, start_count_source,
	end_cash_cents, end_counted_at, end_count_source,
	collected_cash_cents, drop_amount_cents, beverages_cash_cents,
	delta_cents, status, reviewed_by, reviewed_at, review_note,
	created_at, updated_at`

// CreateTx opens a session inside the punch transaction. The unique
// time_entry_id index rejects a second session for the same entry.
func (r *CashDrawerRepository) CreateTx(ctx context.Context, tx sqlx.ExtContext, s *CashDrawerSession) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	if s.Status == "" {
		s.Status = CashStatusOpen
	}

	query := `
		INSERT INTO cash_drawer_sessions (
			id, company_id, time_entry_id, start_cash_cents, start_counted_at, start_count_source, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`
	err := tx.QueryRowxContext(ctx, query,
		s.ID, s.CompanyID, s.TimeEntryID, s.StartCashCents, s.StartCountedAt, s.StartCountSource, s.Status,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}

// GetByID returns one session within the caller's company
func (r *CashDrawerRepository) GetByID(ctx context.Context, id string) (*CashDrawerSession, error) {
	companyID, err := tenant.CompanyID(ctx)
	if err != nil {
		return nil, err
	}

	var s CashDrawerSession
	query := `SELECT ` + cashColumns + ` FROM cash_drawer_sessions WHERE id = $1 AND company_id = $2`
	err = r.db.GetContext(ctx, &s, query, id, companyID)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("cash drawer session")
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetByTimeEntryTx returns the session of an entry, or nil when the
// entry has none. Called inside the punch transaction.
func (r *CashDrawerRepository) GetByTimeEntryTx(ctx context.Context, tx *sqlx.Tx, timeEntryID string) (*CashDrawerSession, error) {
	var s CashDrawerSession
	query := `SELECT ` + cashColumns + ` FROM cash_drawer_sessions WHERE time_entry_id = $1`
	err := tx.GetContext(ctx, &s, query, timeEntryID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// SetEndTx records the closing count inside the punch transaction.
func (r *CashDrawerRepository) SetEndTx(ctx context.Context, tx sqlx.ExtContext, s *CashDrawerSession) error {
	query := `
		UPDATE cash_drawer_sessions SET
			end_cash_cents = $2, end_counted_at = $3, end_count_source = $4,
			collected_cash_cents = $5, drop_amount_cents = $6, beverages_cash_cents = $7,
			delta_cents = $8, status = $9, updated_at = NOW()
		WHERE id = $1
	`
	_, err := tx.ExecContext(ctx, query,
		s.ID, s.EndCashCents, s.EndCountedAt, s.EndCountSource,
		s.CollectedCashCents, s.DropAmountCents, s.BeveragesCashCents,
		s.DeltaCents, s.Status,
	)
	return err
}

// UpdateAmountsTx persists an admin edit of the counted amounts.
func (r *CashDrawerRepository) UpdateAmountsTx(ctx context.Context, tx sqlx.ExtContext, s *CashDrawerSession) error {
	companyID, err := tenant.CompanyID(ctx)
	if err != nil {
		return err
	}

	query := `
		UPDATE cash_drawer_sessions SET
			start_cash_cents = $3, end_cash_cents = $4, delta_cents = $5, status = $6, updated_at = NOW()
		WHERE id = $1 AND company_id = $2
	`
	result, err := tx.ExecContext(ctx, query,
		s.ID, companyID, s.StartCashCents, s.EndCashCents, s.DeltaCents, s.Status)
	if err != nil {
		return err
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("cash drawer session")
	}
	return nil
}

// ReviewTx stamps the reviewer and forces the session closed.
func (r *CashDrawerRepository) ReviewTx(ctx context.Context, tx sqlx.ExtContext, id, reviewedBy string, reviewedAt time.Time, note *string) error {
	companyID, err := tenant.CompanyID(ctx)
	if err != nil {
		return err
	}

	query := `
		UPDATE cash_drawer_sessions SET
			reviewed_by = $3, reviewed_at = $4, review_note = $5, status = $6, updated_at = NOW()
		WHERE id = $1 AND company_id = $2
	`
	result, err := tx.ExecContext(ctx, query, id, companyID, reviewedBy, reviewedAt, note, CashStatusClosed)
	if err != nil {
		return err
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("cash drawer session")
	}
	return nil
}

// List returns sessions joined with the owning employee, newest first.
func (r *CashDrawerRepository) List(ctx context.Context, params CashListParams) ([]*CashSessionView, error) {
	companyID, err := tenant.CompanyID(ctx)
	if err != nil {
		return nil, err
	}

	if params.Limit <= 0 || params.Limit > exportLimit {
		params.Limit = exportLimit
	}

	var sessions []*CashSessionView
	query := `
		SELECT cds.id, cds.company_id, cds.time_entry_id,
			cds.start_cash_cents, cds.start_counted_at, cds.start_count_source,
			cds.end_cash_cents, cds.end_counted_at, cds.end_count_source,
			cds.collected_cash_cents, cds.drop_amount_cents, cds.beverages_cash_cents,
			cds.delta_cents, cds.status, cds.reviewed_by, cds.reviewed_at, cds.review_note,
			cds.created_at, cds.updated_at,
			te.employee_id, u.name AS employee_name
		FROM cash_drawer_sessions cds
		JOIN time_entries te ON te.id = cds.time_entry_id
		JOIN users u ON u.id = te.employee_id
		WHERE cds.company_id = $1
		  AND ($2::uuid IS NULL OR te.employee_id = $2)
		  AND ($3::text IS NULL OR cds.status = $3)
		  AND ($4::timestamptz IS NULL OR cds.start_counted_at >= $4)
		  AND ($5::timestamptz IS NULL OR cds.start_counted_at < $5)
		ORDER BY cds.start_counted_at DESC
		LIMIT $6
	`
	if err := r.db.SelectContext(ctx, &sessions, query,
		companyID, params.EmployeeID, params.Status, params.From, params.To, params.Limit); err != nil {
		return nil, err
	}
	return sessions, nil
}

// Summary aggregates sessions matching the filters.
func (r *CashDrawerRepository) Summary(ctx context.Context, params CashListParams) (*CashSummary, error) {
	companyID, err := tenant.CompanyID(ctx)
	if err != nil {
		return nil, err
	}

	var s CashSummary
	query := `
		SELECT
			COUNT(*) AS total_sessions,
			COALESCE(SUM(cds.delta_cents), 0) AS total_delta_cents,
			COALESCE(AVG(cds.delta_cents), 0)::bigint AS avg_delta_cents,
			COUNT(*) FILTER (WHERE cds.status = 'REVIEW_NEEDED') AS needs_review_count,
			COUNT(*) FILTER (WHERE cds.status = 'OPEN') AS open_count
		FROM cash_drawer_sessions cds
		JOIN time_entries te ON te.id = cds.time_entry_id
		WHERE cds.company_id = $1
		  AND ($2::uuid IS NULL OR te.employee_id = $2)
		  AND ($3::timestamptz IS NULL OR cds.start_counted_at >= $3)
		  AND ($4::timestamptz IS NULL OR cds.start_counted_at < $4)
	`
	if err := r.db.GetContext(ctx, &s, query,
		companyID, params.EmployeeID, params.From, params.To); err != nil {
		return nil, err
	}
	return &s, nil
}

// AppendAuditTx writes one cash drawer audit row.
func (r *CashDrawerRepository) AppendAuditTx(ctx context.Context, tx sqlx.ExtContext, a *CashAuditRow) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}

	query := `
		INSERT INTO cash_drawer_audits (id, company_id, session_id, action, actor_user_id, old_values, new_values, reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := tx.ExecContext(ctx, query,
		a.ID, a.CompanyID, a.SessionID, a.Action, a.ActorUserID, a.OldValues, a.NewValues, a.Reason)
	return err
}

// AppendAudit writes one cash drawer audit row outside a transaction.
func (r *CashDrawerRepository) AppendAudit(ctx context.Context, a *CashAuditRow) error {
	return r.AppendAuditTx(ctx, r.db.DB, a)
}

// ListAudits returns the audit trail of one session, oldest first.
func (r *CashDrawerRepository) ListAudits(ctx context.Context, sessionID string) ([]*CashAuditRow, error) {
	companyID, err := tenant.CompanyID(ctx)
	if err != nil {
		return nil, err
	}

	var rows []*CashAuditRow
	query := `
		SELECT id, company_id, session_id, action, actor_user_id, old_values, new_values, reason, created_at
		FROM cash_drawer_audits
		WHERE session_id = $1 AND company_id = $2
		ORDER BY created_at
	`
	if err := r.db.SelectContext(ctx, &rows, query, sessionID, companyID); err != nil {
		return nil, err
	}
	return rows, nil
}
