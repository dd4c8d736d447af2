package service

import (
	"context"

	"github.com/shiftline/shiftline-backend/internal/audit"
	"github.com/shiftline/shiftline-backend/internal/company"
	"github.com/shiftline/shiftline-backend/internal/payroll/repository"
	timerepo "github.com/shiftline/shiftline-backend/internal/timeclock/repository"
	userrepo "github.com/shiftline/shiftline-backend/internal/user/repository"
	"github.com/shiftline/shiftline-backend/pkg/clock"
	"github.com/shiftline/shiftline-backend/pkg/database"
	"github.com/shiftline/shiftline-backend/pkg/errors"
	"github.com/shiftline/shiftline-backend/pkg/httputil"
	"github.com/shiftline/shiftline-backend/pkg/logger"
	"github.com/shiftline/shiftline-backend/pkg/messaging"
)

// PayrollService generates payroll runs and drives their lifecycle.
type PayrollService struct {
	db        *database.DB
	runs      *repository.PayrollRepository
	entries   *timerepo.TimeEntryRepository
	users     *userrepo.UserRepository
	companies *company.Service
	auditor   *audit.Recorder
	clock     clock.Clock
	publisher messaging.EventPublisher
	logger    *logger.Logger
}

// NewPayrollService creates a new payroll service
func NewPayrollService(
	db *database.DB,
	runs *repository.PayrollRepository,
	entries *timerepo.TimeEntryRepository,
	users *userrepo.UserRepository,
	companies *company.Service,
	clk clock.Clock,
	auditor *audit.Recorder,
	pub messaging.EventPublisher,
	log *logger.Logger,
) *PayrollService {
	return &PayrollService{
		db:        db,
		runs:      runs,
		entries:   entries,
		users:     users,
		companies: companies,
		auditor:   auditor,
		clock:     clk,
		publisher: pub,
		logger:    log,
	}
}

// List returns the company's runs with filters
func (s *PayrollService) List(ctx context.Context, params repository.RunListParams) ([]*repository.PayrollRun, error) {
	return s.runs.ListRuns(ctx, params)
}

// Get returns one run with its line items
func (s *PayrollService) Get(ctx context.Context, id string) (*RunDetail, error) {
	run, err := s.runs.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	items, err := s.runs.ListItems(ctx, run.ID)
	if err != nil {
		return nil, err
	}
	return &RunDetail{Run: run, Items: items}, nil
}

// FinalizeRequest closes a draft run for editing
type FinalizeRequest struct {
	Note *string `json:"note,omitempty"`
}

// Finalize moves a DRAFT run to FINALIZED. Finalized runs are immutable.
func (s *PayrollService) Finalize(ctx context.Context, id string, req FinalizeRequest) (*repository.PayrollRun, error) {
	run, err := s.runs.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	if run.Status != repository.StatusDraft {
		return nil, errors.Conflict("only draft payroll runs can be finalized")
	}

	actorID := httputil.GetUserID(ctx)
	if err := s.runs.Finalize(ctx, id, actorID, req.Note, s.clock.Now().UTC()); err != nil {
		return nil, err
	}
	if err := s.auditor.Record(ctx, &actorID, audit.ActionPayrollFinalize, "payroll_run", id, nil); err != nil {
		s.logger.Warn().Err(err).Str("run_id", id).Msg("failed to record payroll finalize audit")
	}

	run, err = s.runs.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	s.publishRun(ctx, messaging.EventPayrollRunFinalized, run, actorID)
	return run, nil
}

// VoidRequest voids a run with a mandatory reason
type VoidRequest struct {
	Reason string `json:"reason" validate:"required,min=3"`
}

// Void moves a DRAFT or FINALIZED run to VOID. VOID is terminal.
func (s *PayrollService) Void(ctx context.Context, id string, req VoidRequest) (*repository.PayrollRun, error) {
	run, err := s.runs.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	if run.Status == repository.StatusVoid {
		return nil, errors.Conflict("payroll run is already void")
	}

	actorID := httputil.GetUserID(ctx)
	if err := s.runs.Void(ctx, id, actorID, req.Reason, s.clock.Now().UTC()); err != nil {
		return nil, err
	}
	if err := s.auditor.Record(ctx, &actorID, audit.ActionPayrollVoid, "payroll_run", id, map[string]any{
		"reason": req.Reason,
	}); err != nil {
		s.logger.Warn().Err(err).Str("run_id", id).Msg("failed to record payroll void audit")
	}

	run, err = s.runs.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	s.publishRun(ctx, messaging.EventPayrollRunVoided, run, actorID)
	return run, nil
}

// Delete removes a DRAFT run; line items cascade in the store.
func (s *PayrollService) Delete(ctx context.Context, id string) error {
	run, err := s.runs.GetRun(ctx, id)
	if err != nil {
		return err
	}
	if run.Status != repository.StatusDraft {
		return errors.Conflict("only draft payroll runs can be deleted")
	}

	if err := s.runs.DeleteDraft(ctx, id); err != nil {
		return err
	}
	actorID := httputil.GetUserID(ctx)
	if err := s.auditor.Record(ctx, &actorID, audit.ActionPayrollDelete, "payroll_run", id, nil); err != nil {
		s.logger.Warn().Err(err).Str("run_id", id).Msg("failed to record payroll delete audit")
	}
	return nil
}

// My returns the caller's own finalized line items
func (s *PayrollService) My(ctx context.Context, limit int) ([]*repository.PayrollLineItem, error) {
	return s.runs.ListItemsForEmployee(ctx, httputil.GetUserID(ctx), limit)
}
