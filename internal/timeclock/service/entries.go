package service

import (
	"context"
	"time"

	"github.com/shiftline/shiftline-backend/internal/audit"
	"github.com/shiftline/shiftline-backend/internal/company"
	"github.com/shiftline/shiftline-backend/internal/timeclock/repository"
	userrepo "github.com/shiftline/shiftline-backend/internal/user/repository"
	"github.com/shiftline/shiftline-backend/pkg/errors"
	"github.com/shiftline/shiftline-backend/pkg/httputil"
	"github.com/shiftline/shiftline-backend/pkg/logger"
	"github.com/shiftline/shiftline-backend/pkg/messaging"
	"github.com/shiftline/shiftline-backend/pkg/timeutil"
)

// EntryService implements time entry listing and admin editing
type EntryService struct {
	entries   *repository.TimeEntryRepository
	users     *userrepo.UserRepository
	companies *company.Service
	auditor   *audit.Recorder
	publisher messaging.EventPublisher
	logger    *logger.Logger
}

// NewEntryService creates a new entry service
func NewEntryService(
	entries *repository.TimeEntryRepository,
	users *userrepo.UserRepository,
	companies *company.Service,
	auditor *audit.Recorder,
	pub messaging.EventPublisher,
	log *logger.Logger,
) *EntryService {
	return &EntryService{
		entries:   entries,
		users:     users,
		companies: companies,
		auditor:   auditor,
		publisher: pub,
		logger:    log,
	}
}

// EntryFilter is the external filter shape; local dates are converted
// to UTC bounds via the company timezone.
type EntryFilter struct {
	EmployeeID *string
	Status     *string
	FromDate   string
	ToDate     string
	Limit      int
}

func (s *EntryService) toListParams(ctx context.Context, f EntryFilter) (repository.EntryListParams, error) {
	params := repository.EntryListParams{
		EmployeeID: f.EmployeeID,
		Status:     f.Status,
		Limit:      f.Limit,
	}
	if f.FromDate == "" && f.ToDate == "" {
		return params, nil
	}

	_, loc, err := s.companies.SettingsFor(ctx)
	if err != nil {
		return params, err
	}
	if f.FromDate != "" {
		d, err := timeutil.ParseDate(f.FromDate)
		if err != nil {
			return params, errors.BadRequest("from must be a YYYY-MM-DD date")
		}
		from := timeutil.DayStart(d, loc)
		params.From = &from
	}
	if f.ToDate != "" {
		d, err := timeutil.ParseDate(f.ToDate)
		if err != nil {
			return params, errors.BadRequest("to must be a YYYY-MM-DD date")
		}
		to := timeutil.DayStart(d.AddDate(0, 0, 1), loc)
		params.To = &to
	}
	return params, nil
}

// ListMine returns the caller's own entries
func (s *EntryService) ListMine(ctx context.Context, f EntryFilter) ([]*repository.TimeEntry, error) {
	userID := httputil.GetUserID(ctx)
	if userID == "" {
		return nil, errors.Unauthorized("not authenticated")
	}
	f.EmployeeID = &userID

	params, err := s.toListParams(ctx, f)
	if err != nil {
		return nil, err
	}
	return s.entries.List(ctx, params)
}

// List returns entries for admins with filters
func (s *EntryService) List(ctx context.Context, f EntryFilter) ([]*repository.TimeEntry, error) {
	params, err := s.toListParams(ctx, f)
	if err != nil {
		return nil, err
	}
	return s.entries.List(ctx, params)
}

// EntryEditRequest is an admin edit of a time entry
type EntryEditRequest struct {
	ClockInAt    *time.Time `json:"clock_in_at,omitempty"`
	ClockOutAt   *time.Time `json:"clock_out_at,omitempty"`
	BreakMinutes *int       `json:"break_minutes,omitempty" validate:"omitempty,min=0"`
	Note         *string    `json:"note,omitempty"`
	Reason       string     `json:"reason" validate:"required,min=3"`
}

// Edit applies an admin edit. The entry moves to status edited so
// payroll flags it as an exception; editor and reason are stamped.
func (s *EntryService) Edit(ctx context.Context, id string, req EntryEditRequest) (*repository.TimeEntry, error) {
	e, err := s.entries.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.ClockInAt == nil && req.ClockOutAt == nil && req.BreakMinutes == nil && req.Note == nil {
		return nil, errors.BadRequest("nothing to edit")
	}

	if req.ClockInAt != nil {
		e.ClockInAt = req.ClockInAt.UTC()
	}
	if req.ClockOutAt != nil {
		utc := req.ClockOutAt.UTC()
		e.ClockOutAt = &utc
	}
	if req.BreakMinutes != nil {
		e.BreakMinutes = *req.BreakMinutes
	}
	if req.Note != nil {
		e.Note = req.Note
	}
	if e.ClockOutAt != nil && e.ClockOutAt.Before(e.ClockInAt) {
		return nil, errors.Validation(map[string]string{
			"clock_out_at": "must not be before clock_in_at",
		})
	}

	actorID := httputil.GetUserID(ctx)
	e.Status = repository.StatusEdited
	e.EditedBy = &actorID
	e.EditReason = &req.Reason

	if err := s.entries.AdminUpdate(ctx, e); err != nil {
		return nil, err
	}

	if err := s.auditor.Record(ctx, &actorID, audit.ActionTimeEntryEdit, "time_entry", e.ID, map[string]any{
		"reason": req.Reason,
	}); err != nil {
		s.logger.Warn().Err(err).Msg("failed to record time entry edit audit")
	}

	if pubErr := s.publisher.Publish(ctx, messaging.EventTimeEntryEdited, messaging.TimeEntryEditedEvent{
		TimeEntryID: e.ID,
		EmployeeID:  e.EmployeeID,
		EditedBy:    actorID,
		Fields:      map[string]any{"reason": req.Reason},
	}); pubErr != nil {
		s.logger.Warn().Err(pubErr).Msg("failed to publish time entry edit event")
	}

	return e, nil
}

// ManualRequest creates a closed entry by hand
type ManualRequest struct {
	EmployeeID   string     `json:"employee_id" validate:"required,uuid"`
	ClockInAt    time.Time  `json:"clock_in_at" validate:"required"`
	ClockOutAt   *time.Time `json:"clock_out_at,omitempty"`
	BreakMinutes int        `json:"break_minutes" validate:"min=0"`
	Note         *string    `json:"note,omitempty"`
}

// CreateManual inserts an entry on behalf of an employee. The entry is
// marked edited so it surfaces in payroll exceptions.
func (s *EntryService) CreateManual(ctx context.Context, req ManualRequest) (*repository.TimeEntry, error) {
	emp, err := s.users.GetByID(ctx, req.EmployeeID)
	if err != nil {
		return nil, err
	}
	if req.ClockOutAt != nil && req.ClockOutAt.Before(req.ClockInAt) {
		return nil, errors.Validation(map[string]string{
			"clock_out_at": "must not be before clock_in_at",
		})
	}

	actorID := httputil.GetUserID(ctx)
	status := repository.StatusOpen
	if req.ClockOutAt != nil {
		status = repository.StatusEdited
	}

	var clockOut *time.Time
	if req.ClockOutAt != nil {
		utc := req.ClockOutAt.UTC()
		clockOut = &utc
	}

	e := &repository.TimeEntry{
		CompanyID:    emp.CompanyID,
		EmployeeID:   emp.ID,
		ClockInAt:    req.ClockInAt.UTC(),
		ClockOutAt:   clockOut,
		BreakMinutes: req.BreakMinutes,
		Source:       repository.SourceWeb,
		Status:       status,
		Note:         req.Note,
		EditedBy:     &actorID,
	}
	if err := s.entries.Create(ctx, e); err != nil {
		return nil, err
	}

	if err := s.auditor.Record(ctx, &actorID, audit.ActionTimeEntryManual, "time_entry", e.ID, map[string]any{
		"employee_id": emp.ID,
	}); err != nil {
		s.logger.Warn().Err(err).Msg("failed to record manual entry audit")
	}

	return e, nil
}

// Delete removes an entry; its cash session cascades.
func (s *EntryService) Delete(ctx context.Context, id string) error {
	e, err := s.entries.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.entries.Delete(ctx, id); err != nil {
		return err
	}

	actorID := httputil.GetUserID(ctx)
	if err := s.auditor.Record(ctx, &actorID, audit.ActionTimeEntryDelete, "time_entry", id, map[string]any{
		"employee_id": e.EmployeeID,
	}); err != nil {
		s.logger.Warn().Err(err).Msg("failed to record entry delete audit")
	}

	if pubErr := s.publisher.Publish(ctx, messaging.EventTimeEntryDeleted, messaging.TimeEntryDeletedEvent{
		TimeEntryID: id,
		EmployeeID:  e.EmployeeID,
		DeletedBy:   actorID,
	}); pubErr != nil {
		s.logger.Warn().Err(pubErr).Msg("failed to publish entry delete event")
	}

	return nil
}
