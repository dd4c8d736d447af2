package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shiftline/shiftline-backend/internal/audit"
	"github.com/shiftline/shiftline-backend/internal/schedule/repository"
	"github.com/shiftline/shiftline-backend/pkg/errors"
	"github.com/shiftline/shiftline-backend/pkg/httputil"
	"github.com/shiftline/shiftline-backend/pkg/messaging"
	"github.com/shiftline/shiftline-backend/pkg/tenant"
	"github.com/shiftline/shiftline-backend/pkg/timeutil"
)

// TemplateRequest creates a shift template
type TemplateRequest struct {
	Name         string  `json:"name" validate:"required,min=2,max=120"`
	TemplateType string  `json:"template_type" validate:"required,oneof=NONE WEEKLY BIWEEKLY MONTHLY"`
	DayOfWeek    *int    `json:"day_of_week,omitempty" validate:"omitempty,min=0,max=6"`
	DayOfMonth   *int    `json:"day_of_month,omitempty" validate:"omitempty,min=1,max=31"`
	StartDate    string  `json:"start_date" validate:"required"`
	EndDate      *string `json:"end_date,omitempty"`
	StartTime    string  `json:"start_time" validate:"required"`
	EndTime      string  `json:"end_time" validate:"required"`
	BreakMinutes int     `json:"break_minutes" validate:"min=0"`
	EmployeeID   *string `json:"employee_id,omitempty" validate:"omitempty,uuid"`
	Department   *string `json:"department,omitempty"`
	JobRole      *string `json:"job_role,omitempty"`
}

// CreateTemplate validates and stores a recurrence template
func (s *ScheduleService) CreateTemplate(ctx context.Context, req TemplateRequest) (*repository.ShiftTemplate, error) {
	companyID, err := tenant.CompanyID(ctx)
	if err != nil {
		return nil, err
	}

	startDate, err := timeutil.ParseDate(req.StartDate)
	if err != nil {
		return nil, errors.Validation(map[string]string{"start_date": "must be a YYYY-MM-DD date"})
	}
	var endDate *time.Time
	if req.EndDate != nil {
		d, err := timeutil.ParseDate(*req.EndDate)
		if err != nil {
			return nil, errors.Validation(map[string]string{"end_date": "must be a YYYY-MM-DD date"})
		}
		if d.Before(startDate) {
			return nil, errors.Validation(map[string]string{"end_date": "must not precede start_date"})
		}
		endDate = &d
	}
	if _, err := timeutil.ParseTimeOfDay(req.StartTime); err != nil {
		return nil, errors.Validation(map[string]string{"start_time": "must be an HH:MM time"})
	}
	if _, err := timeutil.ParseTimeOfDay(req.EndTime); err != nil {
		return nil, errors.Validation(map[string]string{"end_time": "must be an HH:MM time"})
	}

	switch req.TemplateType {
	case repository.TemplateWeekly, repository.TemplateBiweekly:
		if req.DayOfWeek == nil {
			return nil, errors.Validation(map[string]string{"day_of_week": "required for weekly and biweekly templates"})
		}
	case repository.TemplateMonthly:
		if req.DayOfMonth == nil {
			return nil, errors.Validation(map[string]string{"day_of_month": "required for monthly templates"})
		}
	}

	if req.EmployeeID != nil {
		if _, err := s.checkSchedulable(ctx, *req.EmployeeID); err != nil {
			return nil, err
		}
	}

	tmpl := &repository.ShiftTemplate{
		CompanyID:    companyID,
		Name:         req.Name,
		TemplateType: req.TemplateType,
		DayOfWeek:    req.DayOfWeek,
		DayOfMonth:   req.DayOfMonth,
		StartDate:    startDate,
		EndDate:      endDate,
		StartTime:    req.StartTime,
		EndTime:      req.EndTime,
		BreakMinutes: req.BreakMinutes,
		EmployeeID:   req.EmployeeID,
		Department:   req.Department,
		JobRole:      req.JobRole,
		IsActive:     true,
	}
	if err := s.templates.Create(ctx, tmpl); err != nil {
		return nil, err
	}
	return tmpl, nil
}

// ListTemplates returns the company's templates
func (s *ScheduleService) ListTemplates(ctx context.Context) ([]*repository.ShiftTemplate, error) {
	return s.templates.List(ctx)
}

// GenerateResult reports a template expansion
type GenerateResult struct {
	TemplateID    string              `json:"template_id"`
	FromDate      string              `json:"from_date"`
	ToDate        string              `json:"to_date"`
	CreatedShifts []*repository.Shift `json:"created_shifts"`
	SkippedDates  []string            `json:"skipped_dates,omitempty"`
	Conflicts     []Conflict          `json:"conflicts,omitempty"`
}

// matches reports whether the template recurs on the given date.
func templateMatches(t *repository.ShiftTemplate, date time.Time) bool {
	switch t.TemplateType {
	case repository.TemplateNone:
		return date.Equal(t.StartDate)
	case repository.TemplateWeekly:
		return t.DayOfWeek != nil && timeutil.WeekdayIndex(date.Weekday()) == *t.DayOfWeek
	case repository.TemplateBiweekly:
		if t.DayOfWeek == nil || timeutil.WeekdayIndex(date.Weekday()) != *t.DayOfWeek {
			return false
		}
		return timeutil.DaysBetween(t.StartDate, date)%14 < 7
	case repository.TemplateMonthly:
		return t.DayOfMonth != nil && date.Day() == *t.DayOfMonth
	}
	return false
}

// Generate expands a template into published shifts over a date window.
// Dates whose candidate would overlap an existing shift are skipped and
// reported, never overwritten.
func (s *ScheduleService) Generate(ctx context.Context, templateID, fromDate, toDate string) (*GenerateResult, error) {
	companyID, err := tenant.CompanyID(ctx)
	if err != nil {
		return nil, err
	}

	tmpl, err := s.templates.GetByID(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if !tmpl.IsActive {
		return nil, errors.Conflict("template is inactive")
	}
	if tmpl.EmployeeID == nil {
		return nil, errors.BadRequest("template has no assigned employee")
	}
	if _, err := s.checkSchedulable(ctx, *tmpl.EmployeeID); err != nil {
		return nil, err
	}

	from, err := timeutil.ParseDate(fromDate)
	if err != nil {
		return nil, errors.Validation(map[string]string{"from_date": "must be a YYYY-MM-DD date"})
	}
	to, err := timeutil.ParseDate(toDate)
	if err != nil {
		return nil, errors.Validation(map[string]string{"to_date": "must be a YYYY-MM-DD date"})
	}
	if to.Before(from) {
		return nil, errors.Validation(map[string]string{"to_date": "must not precede from_date"})
	}

	// Clamp the window to the template's own range.
	if from.Before(tmpl.StartDate) {
		from = tmpl.StartDate
	}
	if tmpl.EndDate != nil && to.After(*tmpl.EndDate) {
		to = *tmpl.EndDate
	}

	startMin, err := timeutil.ParseTimeOfDay(tmpl.StartTime)
	if err != nil {
		return nil, err
	}
	endMin, err := timeutil.ParseTimeOfDay(tmpl.EndTime)
	if err != nil {
		return nil, err
	}

	_, loc, err := s.companies.SettingsFor(ctx)
	if err != nil {
		return nil, err
	}

	result := &GenerateResult{
		TemplateID: tmpl.ID,
		FromDate:   timeutil.FormatDate(from),
		ToDate:     timeutil.FormatDate(to),
	}

	type candidate struct {
		date time.Time
	}
	var candidates []candidate
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if !templateMatches(tmpl, d) {
			continue
		}
		conflicts, err := s.findConflicts(ctx, loc, *tmpl.EmployeeID, d, startMin, endMin, nil)
		if err != nil {
			return nil, err
		}
		if len(conflicts) > 0 {
			result.SkippedDates = append(result.SkippedDates, timeutil.FormatDate(d))
			result.Conflicts = append(result.Conflicts, conflicts...)
			continue
		}
		candidates = append(candidates, candidate{date: d})
	}

	actorID := httputil.GetUserID(ctx)
	seriesID := uuid.New().String()

	err = s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		for _, c := range candidates {
			shift := &repository.Shift{
				CompanyID:    companyID,
				EmployeeID:   *tmpl.EmployeeID,
				ShiftDate:    c.date,
				StartTime:    tmpl.StartTime,
				EndTime:      tmpl.EndTime,
				BreakMinutes: tmpl.BreakMinutes,
				Status:       repository.ShiftStatusPublished,
				JobRole:      tmpl.JobRole,
				TemplateID:   &tmpl.ID,
				SeriesID:     &seriesID,
			}
			if err := s.shifts.CreateTx(ctx, tx, shift); err != nil {
				return err
			}
			result.CreatedShifts = append(result.CreatedShifts, shift)
		}

		return s.auditor.RecordTx(ctx, tx, &actorID, audit.ActionShiftBulkCreate, "shift_template", tmpl.ID, map[string]any{
			"from":    result.FromDate,
			"to":      result.ToDate,
			"created": len(result.CreatedShifts),
			"skipped": len(result.SkippedDates),
		})
	})
	if err != nil {
		return nil, err
	}

	if pubErr := s.publisher.Publish(ctx, messaging.EventTemplateApplied, messaging.TemplateAppliedEvent{
		TemplateID: tmpl.ID,
		FromDate:   result.FromDate,
		ToDate:     result.ToDate,
		Created:    len(result.CreatedShifts),
		Skipped:    len(result.SkippedDates),
		AppliedBy:  actorID,
	}); pubErr != nil {
		s.logger.Warn().Err(pubErr).Msg("failed to publish template applied event")
	}

	return result, nil
}
