package service

import (
	"context"
	"encoding/json"

	"github.com/jmoiron/sqlx"
	"github.com/shiftline/shiftline-backend/internal/audit"
	"github.com/shiftline/shiftline-backend/internal/company"
	"github.com/shiftline/shiftline-backend/internal/timeclock/repository"
	"github.com/shiftline/shiftline-backend/pkg/clock"
	"github.com/shiftline/shiftline-backend/pkg/database"
	"github.com/shiftline/shiftline-backend/pkg/errors"
	"github.com/shiftline/shiftline-backend/pkg/httputil"
	"github.com/shiftline/shiftline-backend/pkg/logger"
	"github.com/shiftline/shiftline-backend/pkg/messaging"
	"github.com/shiftline/shiftline-backend/pkg/tenant"
)

// CashDrawerService implements cash drawer admin operations
type CashDrawerService struct {
	db        *database.DB
	cash      *repository.CashDrawerRepository
	companies *company.Service
	auditor   *audit.Recorder
	clock     clock.Clock
	publisher messaging.EventPublisher
	logger    *logger.Logger
}

// NewCashDrawerService creates a new cash drawer service
func NewCashDrawerService(
	db *database.DB,
	cash *repository.CashDrawerRepository,
	companies *company.Service,
	clk clock.Clock,
	auditor *audit.Recorder,
	pub messaging.EventPublisher,
	log *logger.Logger,
) *CashDrawerService {
	return &CashDrawerService{
		db:        db,
		cash:      cash,
		companies: companies,
		auditor:   auditor,
		clock:     clk,
		publisher: pub,
		logger:    log,
	}
}

// List returns sessions matching the filters
func (s *CashDrawerService) List(ctx context.Context, params repository.CashListParams) ([]*repository.CashSessionView, error) {
	return s.cash.List(ctx, params)
}

// Summary aggregates sessions matching the filters
func (s *CashDrawerService) Summary(ctx context.Context, params repository.CashListParams) (*repository.CashSummary, error) {
	return s.cash.Summary(ctx, params)
}

// Get returns one session with its audit trail
func (s *CashDrawerService) Get(ctx context.Context, id string) (*repository.CashDrawerSession, []*repository.CashAuditRow, error) {
	session, err := s.cash.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	audits, err := s.cash.ListAudits(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return session, audits, nil
}

// CashEditRequest changes the counted amounts of a session
type CashEditRequest struct {
	StartCashCents *int64 `json:"start_cash_cents,omitempty" validate:"omitempty,min=0"`
	EndCashCents   *int64 `json:"end_cash_cents,omitempty" validate:"omitempty,min=0"`
	Reason         string `json:"reason" validate:"required,min=3"`
}

// Edit rewrites counted amounts, recomputes the delta and re-derives
// the status. Gated on the company's cash_drawer_allow_edit setting.
func (s *CashDrawerService) Edit(ctx context.Context, id string, req CashEditRequest) (*repository.CashDrawerSession, error) {
	settings, _, err := s.companies.SettingsFor(ctx)
	if err != nil {
		return nil, err
	}
	if !settings.CashDrawerAllowEdit {
		return nil, errors.Forbidden("cash drawer editing is disabled for this company")
	}
	if req.StartCashCents == nil && req.EndCashCents == nil {
		return nil, errors.BadRequest("nothing to edit")
	}

	session, err := s.cash.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.Status == repository.CashStatusOpen && req.EndCashCents != nil {
		return nil, errors.Conflict("cannot set an end count while the shift is still open")
	}

	companyID, err := tenant.CompanyID(ctx)
	if err != nil {
		return nil, err
	}
	actorID := httputil.GetUserID(ctx)

	oldStart := session.StartCashCents
	oldEnd := session.EndCashCents

	if req.StartCashCents != nil {
		session.StartCashCents = *req.StartCashCents
	}
	if req.EndCashCents != nil {
		session.EndCashCents = req.EndCashCents
	}
	if session.EndCashCents != nil {
		delta := *session.EndCashCents - session.StartCashCents
		session.DeltaCents = &delta
		if delta != 0 {
			session.Status = repository.CashStatusReviewNeeded
		} else {
			session.Status = repository.CashStatusClosed
		}
	}

	err = s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		if err := s.cash.UpdateAmountsTx(ctx, tx, session); err != nil {
			return err
		}

		if req.StartCashCents != nil && *req.StartCashCents != oldStart {
			if err := s.appendEditAuditTx(ctx, tx, companyID, session.ID, repository.CashAuditEditStart,
				actorID, req.Reason,
				map[string]any{"start_cash_cents": oldStart},
				map[string]any{"start_cash_cents": session.StartCashCents}); err != nil {
				return err
			}
		}
		if req.EndCashCents != nil {
			oldVals := map[string]any{}
			if oldEnd != nil {
				oldVals["end_cash_cents"] = *oldEnd
			}
			if err := s.appendEditAuditTx(ctx, tx, companyID, session.ID, repository.CashAuditEditEnd,
				actorID, req.Reason,
				oldVals,
				map[string]any{"end_cash_cents": *session.EndCashCents}); err != nil {
				return err
			}
		}

		return s.auditor.RecordTx(ctx, tx, &actorID, audit.ActionCashEdit, "cash_drawer_session", session.ID, map[string]any{
			"reason": req.Reason,
		})
	})
	if err != nil {
		return nil, err
	}

	if pubErr := s.publisher.Publish(ctx, messaging.EventCashSessionEdited, messaging.CashSessionEditedEvent{
		SessionID: session.ID,
		EditedBy:  actorID,
		Reason:    req.Reason,
	}); pubErr != nil {
		s.logger.Warn().Err(pubErr).Msg("failed to publish cash edit event")
	}

	return session, nil
}

// ReviewRequest closes out a flagged session
type ReviewRequest struct {
	Note *string `json:"note,omitempty"`
}

// Review stamps the reviewer and closes the session. Review always
// lands on CLOSED; REVIEW_NEEDED is strictly interim.
func (s *CashDrawerService) Review(ctx context.Context, id string, req ReviewRequest) (*repository.CashDrawerSession, error) {
	session, err := s.cash.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.Status == repository.CashStatusOpen {
		return nil, errors.Conflict("cannot review a session while the shift is still open")
	}

	companyID, err := tenant.CompanyID(ctx)
	if err != nil {
		return nil, err
	}
	actorID := httputil.GetUserID(ctx)
	now := s.clock.Now().UTC()

	err = s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		if err := s.cash.ReviewTx(ctx, tx, id, actorID, now, req.Note); err != nil {
			return err
		}

		newValues, _ := json.Marshal(map[string]any{"status": repository.CashStatusClosed})
		if err := s.cash.AppendAuditTx(ctx, tx, &repository.CashAuditRow{
			CompanyID:   companyID,
			SessionID:   session.ID,
			Action:      repository.CashAuditReview,
			ActorUserID: &actorID,
			NewValues:   newValues,
			Reason:      req.Note,
		}); err != nil {
			return err
		}

		return s.auditor.RecordTx(ctx, tx, &actorID, audit.ActionCashReview, "cash_drawer_session", session.ID, nil)
	})
	if err != nil {
		return nil, err
	}

	session.Status = repository.CashStatusClosed
	session.ReviewedBy = &actorID
	session.ReviewedAt = &now
	session.ReviewNote = req.Note

	if pubErr := s.publisher.Publish(ctx, messaging.EventCashSessionReviewed, messaging.CashSessionReviewedEvent{
		SessionID:  session.ID,
		ReviewedBy: actorID,
	}); pubErr != nil {
		s.logger.Warn().Err(pubErr).Msg("failed to publish cash review event")
	}

	return session, nil
}

func (s *CashDrawerService) appendEditAuditTx(ctx context.Context, tx *sqlx.Tx, companyID, sessionID, action, actorID, reason string, oldVals, newVals map[string]any) error {
	oldJSON, _ := json.Marshal(oldVals)
	newJSON, _ := json.Marshal(newVals)
	return s.cash.AppendAuditTx(ctx, tx, &repository.CashAuditRow{
		CompanyID:   companyID,
		SessionID:   sessionID,
		Action:      action,
		ActorUserID: &actorID,
		OldValues:   oldJSON,
		NewValues:   newJSON,
		Reason:      &reason,
	})
}
