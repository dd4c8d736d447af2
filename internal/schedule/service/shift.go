package service

import (
	"context"
	"time"

	"github.com/shiftline/shiftline-backend/internal/audit"
	"github.com/shiftline/shiftline-backend/internal/company"
	"github.com/shiftline/shiftline-backend/internal/schedule/repository"
	"github.com/shiftline/shiftline-backend/internal/user/domain"
	userrepo "github.com/shiftline/shiftline-backend/internal/user/repository"
	"github.com/shiftline/shiftline-backend/pkg/clock"
	"github.com/shiftline/shiftline-backend/pkg/database"
	"github.com/shiftline/shiftline-backend/pkg/errors"
	"github.com/shiftline/shiftline-backend/pkg/httputil"
	"github.com/shiftline/shiftline-backend/pkg/logger"
	"github.com/shiftline/shiftline-backend/pkg/messaging"
	"github.com/shiftline/shiftline-backend/pkg/tenant"
	"github.com/shiftline/shiftline-backend/pkg/timeutil"
)

// ScheduleService implements shift CRUD, conflict detection, bulk week
// generation and template expansion.
type ScheduleService struct {
	db        *database.DB
	shifts    *repository.ShiftRepository
	templates *repository.TemplateRepository
	users     *userrepo.UserRepository
	companies *company.Service
	auditor   *audit.Recorder
	clock     clock.Clock
	publisher messaging.EventPublisher
	logger    *logger.Logger
}

// NewScheduleService creates a new schedule service
func NewScheduleService(
	db *database.DB,
	shifts *repository.ShiftRepository,
	templates *repository.TemplateRepository,
	users *userrepo.UserRepository,
	companies *company.Service,
	clk clock.Clock,
	auditor *audit.Recorder,
	pub messaging.EventPublisher,
	log *logger.Logger,
) *ScheduleService {
	return &ScheduleService{
		db:        db,
		shifts:    shifts,
		templates: templates,
		users:     users,
		companies: companies,
		auditor:   auditor,
		clock:     clk,
		publisher: pub,
		logger:    log,
	}
}

// Conflict describes an existing shift that overlaps a candidate
type Conflict struct {
	ShiftID   string `json:"shift_id"`
	ShiftDate string `json:"shift_date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Status    string `json:"status"`
}

func toConflict(s *repository.Shift) Conflict {
	return Conflict{
		ShiftID:   s.ID,
		ShiftDate: timeutil.FormatDate(s.ShiftDate),
		StartTime: s.StartTime,
		EndTime:   s.EndTime,
		Status:    s.Status,
	}
}

// shiftInterval converts a stored shift to an absolute interval.
func shiftInterval(s *repository.Shift, loc *time.Location) (timeutil.Interval, error) {
	startMin, err := timeutil.ParseTimeOfDay(s.StartTime)
	if err != nil {
		return timeutil.Interval{}, err
	}
	endMin, err := timeutil.ParseTimeOfDay(s.EndTime)
	if err != nil {
		return timeutil.Interval{}, err
	}
	return timeutil.ShiftInterval(s.ShiftDate, startMin, endMin, loc), nil
}

// findConflicts fetches the employee's shifts on the candidate date
// plus the adjacent days and re-filters with the overlap predicate, so
// overnight shifts on neighbouring dates are caught and the widened
// fetch never leaks non-overlapping rows.
func (s *ScheduleService) findConflicts(ctx context.Context, loc *time.Location, employeeID string, date time.Time, startMin, endMin int, excludeID *string) ([]Conflict, error) {
	candidate := timeutil.ShiftInterval(date, startMin, endMin, loc)

	nearby, err := s.shifts.ListAround(ctx, employeeID, date, excludeID)
	if err != nil {
		return nil, err
	}

	var conflicts []Conflict
	for _, existing := range nearby {
		iv, err := shiftInterval(existing, loc)
		if err != nil {
			s.logger.Warn().Err(err).Str("shift_id", existing.ID).Msg("skipping shift with malformed times")
			continue
		}
		if candidate.Overlaps(iv) {
			conflicts = append(conflicts, toConflict(existing))
		}
	}
	return conflicts, nil
}

// ShiftRequest creates or updates a single shift
type ShiftRequest struct {
	EmployeeID   string  `json:"employee_id" validate:"required,uuid"`
	ShiftDate    string  `json:"shift_date" validate:"required"`
	StartTime    string  `json:"start_time" validate:"required"`
	EndTime      string  `json:"end_time" validate:"required"`
	BreakMinutes int     `json:"break_minutes" validate:"min=0"`
	Status       string  `json:"status,omitempty" validate:"omitempty,oneof=DRAFT PUBLISHED"`
	Notes        *string `json:"notes,omitempty"`
	JobRole      *string `json:"job_role,omitempty"`
}

// ShiftResult carries the saved shift plus any conflicts. The shift is
// persisted even when conflicts exist; the caller decides what to do.
type ShiftResult struct {
	Shift     *repository.Shift `json:"shift"`
	Conflicts []Conflict        `json:"conflicts,omitempty"`
}

func (s *ScheduleService) parseShiftTimes(req ShiftRequest) (time.Time, int, int, error) {
	date, err := timeutil.ParseDate(req.ShiftDate)
	if err != nil {
		return time.Time{}, 0, 0, errors.Validation(map[string]string{"shift_date": "must be a YYYY-MM-DD date"})
	}
	startMin, err := timeutil.ParseTimeOfDay(req.StartTime)
	if err != nil {
		return time.Time{}, 0, 0, errors.Validation(map[string]string{"start_time": "must be an HH:MM time"})
	}
	endMin, err := timeutil.ParseTimeOfDay(req.EndTime)
	if err != nil {
		return time.Time{}, 0, 0, errors.Validation(map[string]string{"end_time": "must be an HH:MM time"})
	}
	return date, startMin, endMin, nil
}

// checkSchedulable verifies the employee belongs to the company and
// can hold scheduled shifts.
func (s *ScheduleService) checkSchedulable(ctx context.Context, employeeID string) (*userrepo.User, error) {
	u, err := s.users.GetByID(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	if !domain.CanPunch(u.Role) {
		return nil, errors.BadRequest("admins and developers are not scheduled")
	}
	return u, nil
}

// Create persists a single shift and reports conflicts
func (s *ScheduleService) Create(ctx context.Context, req ShiftRequest) (*ShiftResult, error) {
	companyID, err := tenant.CompanyID(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := s.checkSchedulable(ctx, req.EmployeeID); err != nil {
		return nil, err
	}
	date, startMin, endMin, err := s.parseShiftTimes(req)
	if err != nil {
		return nil, err
	}

	_, loc, err := s.companies.SettingsFor(ctx)
	if err != nil {
		return nil, err
	}
	conflicts, err := s.findConflicts(ctx, loc, req.EmployeeID, date, startMin, endMin, nil)
	if err != nil {
		return nil, err
	}

	status := req.Status
	if status == "" {
		status = repository.ShiftStatusPublished
	}
	shift := &repository.Shift{
		CompanyID:    companyID,
		EmployeeID:   req.EmployeeID,
		ShiftDate:    date,
		StartTime:    req.StartTime,
		EndTime:      req.EndTime,
		BreakMinutes: req.BreakMinutes,
		Status:       status,
		Notes:        req.Notes,
		JobRole:      req.JobRole,
	}
	if err := s.shifts.Create(ctx, shift); err != nil {
		return nil, err
	}

	s.publishCreated(ctx, shift)
	return &ShiftResult{Shift: shift, Conflicts: conflicts}, nil
}

// Update rewrites a shift and reports conflicts, excluding itself.
func (s *ScheduleService) Update(ctx context.Context, id string, req ShiftRequest) (*ShiftResult, error) {
	shift, err := s.shifts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if shift.Status == repository.ShiftStatusCancelled {
		return nil, errors.Conflict("cannot update a cancelled shift")
	}
	if _, err := s.checkSchedulable(ctx, req.EmployeeID); err != nil {
		return nil, err
	}
	date, startMin, endMin, err := s.parseShiftTimes(req)
	if err != nil {
		return nil, err
	}

	_, loc, err := s.companies.SettingsFor(ctx)
	if err != nil {
		return nil, err
	}
	conflicts, err := s.findConflicts(ctx, loc, req.EmployeeID, date, startMin, endMin, &id)
	if err != nil {
		return nil, err
	}

	shift.EmployeeID = req.EmployeeID
	shift.ShiftDate = date
	shift.StartTime = req.StartTime
	shift.EndTime = req.EndTime
	shift.BreakMinutes = req.BreakMinutes
	if req.Status != "" {
		shift.Status = req.Status
	}
	shift.Notes = req.Notes
	shift.JobRole = req.JobRole
	if err := s.shifts.Update(ctx, shift); err != nil {
		return nil, err
	}

	if err := s.publisher.Publish(ctx, messaging.EventShiftUpdated, messaging.ShiftUpdatedEvent{
		ShiftID:    shift.ID,
		EmployeeID: shift.EmployeeID,
		Fields: map[string]any{
			"shift_date": timeutil.FormatDate(shift.ShiftDate),
			"start_time": shift.StartTime,
			"end_time":   shift.EndTime,
			"status":     shift.Status,
		},
	}); err != nil {
		s.logger.Warn().Err(err).Msg("failed to publish shift update event")
	}
	return &ShiftResult{Shift: shift, Conflicts: conflicts}, nil
}

// Approve moves a shift to APPROVED
func (s *ScheduleService) Approve(ctx context.Context, id string) (*repository.Shift, error) {
	actorID := httputil.GetUserID(ctx)
	if err := s.shifts.Approve(ctx, id, actorID, s.clock.Now().UTC()); err != nil {
		return nil, err
	}
	return s.shifts.GetByID(ctx, id)
}

// Delete removes a shift
func (s *ScheduleService) Delete(ctx context.Context, id string) error {
	shift, err := s.shifts.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.shifts.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.publisher.Publish(ctx, messaging.EventShiftDeleted, messaging.ShiftDeletedEvent{
		ShiftID:    shift.ID,
		EmployeeID: shift.EmployeeID,
	}); err != nil {
		s.logger.Warn().Err(err).Msg("failed to publish shift delete event")
	}
	return nil
}

// List returns shifts with filters
func (s *ScheduleService) List(ctx context.Context, params repository.ShiftListParams) ([]*repository.Shift, error) {
	return s.shifts.List(ctx, params)
}

func (s *ScheduleService) publishCreated(ctx context.Context, shift *repository.Shift) {
	if err := s.publisher.Publish(ctx, messaging.EventShiftCreated, messaging.ShiftCreatedEvent{
		ShiftID:    shift.ID,
		EmployeeID: shift.EmployeeID,
		ShiftDate:  timeutil.FormatDate(shift.ShiftDate),
		StartTime:  shift.StartTime,
		EndTime:    shift.EndTime,
		Status:     shift.Status,
	}); err != nil {
		s.logger.Warn().Err(err).Msg("failed to publish shift create event")
	}
}
