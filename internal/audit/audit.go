// Package audit writes the append-only cross-entity action log.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shiftline/shiftline-backend/pkg/database"
	"github.com/shiftline/shiftline-backend/pkg/logger"
	"github.com/shiftline/shiftline-backend/pkg/messaging"
	"github.com/shiftline/shiftline-backend/pkg/tenant"
)

// Actions recorded in the audit log
const (
	ActionClockIn         = "CLOCK_IN"
	ActionClockOut        = "CLOCK_OUT"
	ActionTimeEntryEdit   = "TIME_ENTRY_EDIT"
	ActionTimeEntryManual = "TIME_ENTRY_MANUAL"
	ActionTimeEntryDelete = "TIME_ENTRY_DELETE"
	ActionCashEdit        = "CASH_EDIT"
	ActionCashReview      = "CASH_REVIEW"
	ActionPayrollGenerate = "PAYROLL_GENERATE"
	ActionPayrollFinalize = "PAYROLL_FINALIZE"
	ActionPayrollVoid     = "PAYROLL_VOID"
	ActionPayrollDelete   = "PAYROLL_DELETE"
	ActionShiftBulkCreate = "SHIFT_BULK_CREATE"
	ActionLeaveReview     = "LEAVE_REVIEW"
	ActionUserInvite      = "USER_INVITE"
	ActionUserDeactivate  = "USER_DEACTIVATE"
	ActionSettingsUpdate  = "SETTINGS_UPDATE"
)

// Log is one audit log row
type Log struct {
	ID          string          `db:"id" json:"id"`
	CompanyID   string          `db:"company_id" json:"company_id"`
	ActorUserID *string         `db:"actor_user_id" json:"actor_user_id,omitempty"`
	Action      string          `db:"action" json:"action"`
	EntityType  string          `db:"entity_type" json:"entity_type"`
	EntityID    string          `db:"entity_id" json:"entity_id"`
	Metadata    json.RawMessage `db:"metadata" json:"metadata,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}

// Recorder persists audit rows and mirrors them to the event bus.
// Event publication is best-effort and never fails the caller.
type Recorder struct {
	db        *database.DB
	publisher messaging.EventPublisher
	logger    *logger.Logger
}

// NewRecorder creates a new audit recorder
func NewRecorder(db *database.DB, pub messaging.EventPublisher, log *logger.Logger) *Recorder {
	return &Recorder{db: db, publisher: pub, logger: log}
}

// Record writes one audit row outside any transaction.
func (r *Recorder) Record(ctx context.Context, actorUserID *string, action, entityType, entityID string, metadata map[string]any) error {
	return r.record(ctx, r.db, actorUserID, action, entityType, entityID, metadata)
}

// RecordTx writes one audit row inside the caller's transaction so it
// commits or rolls back with the change it describes.
func (r *Recorder) RecordTx(ctx context.Context, tx *sqlx.Tx, actorUserID *string, action, entityType, entityID string, metadata map[string]any) error {
	return r.record(ctx, tx, actorUserID, action, entityType, entityID, metadata)
}

func (r *Recorder) record(ctx context.Context, ext sqlx.ExtContext, actorUserID *string, action, entityType, entityID string, metadata map[string]any) error {
	companyID, err := tenant.CompanyID(ctx)
	if err != nil {
		return err
	}

	var meta json.RawMessage
	if metadata != nil {
		meta, err = json.Marshal(metadata)
		if err != nil {
			return err
		}
	}

	logID := uuid.New().String()
	query := `
		INSERT INTO audit_logs (id, company_id, actor_user_id, action, entity_type, entity_id, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	if _, err := ext.ExecContext(ctx, query, logID, companyID, actorUserID, action, entityType, entityID, meta); err != nil {
		return err
	}

	actor := ""
	if actorUserID != nil {
		actor = *actorUserID
	}
	if pubErr := r.publisher.Publish(ctx, messaging.EventAuditLogCreated, messaging.AuditLogCreatedEvent{
		LogID:      logID,
		UserID:     actor,
		Action:     action,
		Resource:   entityType,
		ResourceID: entityID,
		Changes:    metadata,
	}); pubErr != nil {
		r.logger.Warn().Err(pubErr).Str("action", action).Msg("failed to publish audit event")
	}

	return nil
}

// List returns audit rows for the caller's company, newest first.
func (r *Recorder) List(ctx context.Context, entityType string, limit int) ([]*Log, error) {
	companyID, err := tenant.CompanyID(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	var logs []*Log
	query := `
		SELECT id, company_id, actor_user_id, action, entity_type, entity_id, metadata, created_at
		FROM audit_logs
		WHERE company_id = $1 AND ($2 = '' OR entity_type = $2)
		ORDER BY created_at DESC
		LIMIT $3
	`
	if err := r.db.SelectContext(ctx, &logs, query, companyID, entityType, limit); err != nil {
		return nil, err
	}
	return logs, nil
}
