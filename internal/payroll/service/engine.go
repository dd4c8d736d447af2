package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shiftline/shiftline-backend/internal/audit"
	"github.com/shiftline/shiftline-backend/internal/company"
	"github.com/shiftline/shiftline-backend/internal/payroll/repository"
	"github.com/shiftline/shiftline-backend/internal/timeclock"
	timerepo "github.com/shiftline/shiftline-backend/internal/timeclock/repository"
	userrepo "github.com/shiftline/shiftline-backend/internal/user/repository"
	"github.com/shiftline/shiftline-backend/pkg/errors"
	"github.com/shiftline/shiftline-backend/pkg/httputil"
	"github.com/shiftline/shiftline-backend/pkg/messaging"
	"github.com/shiftline/shiftline-backend/pkg/tenant"
	"github.com/shiftline/shiftline-backend/pkg/timeutil"
	"github.com/shopspring/decimal"
)

var sixty = decimal.NewFromInt(60)

// GenerateRequest asks for a new payroll run
type GenerateRequest struct {
	PayrollType     string   `json:"payroll_type" validate:"required,oneof=WEEKLY BIWEEKLY"`
	StartDate       string   `json:"start_date" validate:"required"`
	EmployeeIDs     []string `json:"employee_ids,omitempty" validate:"omitempty,dive,uuid"`
	IncludeInactive bool     `json:"include_inactive"`
	AllowDuplicate  bool     `json:"allow_duplicate"`
}

// RunDetail is a run with its line items and generation warnings
type RunDetail struct {
	Run      *repository.PayrollRun        `json:"run"`
	Items    []*repository.PayrollLineItem `json:"items"`
	Warnings []string                      `json:"warnings,omitempty"`
}

// weekBlock is the per-week slice of a line item breakdown
type weekBlock struct {
	StartDate       string   `json:"start_date"`
	EndDate         string   `json:"end_date"`
	RegularMinutes  int      `json:"regular_minutes"`
	OvertimeMinutes int      `json:"overtime_minutes"`
	TotalMinutes    int      `json:"total_minutes"`
	EntryIDs        []string `json:"entry_ids"`
}

// lineDetails is the persisted per-employee breakdown
type lineDetails struct {
	DailyMinutes map[string]int `json:"daily_minutes"`
	Weeks        []weekBlock    `json:"weeks"`
	EntryIDs     []string       `json:"entry_ids"`
}

// resolvePeriod computes the period bounds from the run type and
// validates them against company settings.
func resolvePeriod(req GenerateRequest, settings company.Settings) (time.Time, time.Time, []string, error) {
	start, err := timeutil.ParseDate(req.StartDate)
	if err != nil {
		return time.Time{}, time.Time{}, nil, errors.Validation(map[string]string{"start_date": "must be a YYYY-MM-DD date"})
	}

	var warnings []string
	var end time.Time
	switch req.PayrollType {
	case repository.TypeWeekly:
		end = start.AddDate(0, 0, 6)
		if timeutil.WeekdayIndex(start.Weekday()) != settings.PayrollWeekStartDay {
			warnings = append(warnings, "start_date does not fall on the configured payroll week start day")
		}
	case repository.TypeBiweekly:
		end = start.AddDate(0, 0, 13)
		if settings.BiweeklyAnchorDate != "" {
			anchor, err := timeutil.ParseDate(settings.BiweeklyAnchorDate)
			if err == nil {
				days := timeutil.DaysBetween(anchor, start)
				if ((days%14)+14)%14 != 0 {
					return time.Time{}, time.Time{}, nil, errors.Validation(map[string]string{
						"start_date": "must be a whole number of fortnights from the biweekly anchor date",
					})
				}
			}
		}
	}
	return start, end, warnings, nil
}

// roundCents computes round-half-up((minutes / 60) × rate × multiplier)
// entirely in decimal.
func roundCents(minutes int, rateCents int64, multiplier decimal.Decimal) int64 {
	return decimal.NewFromInt(rateCents).
		Mul(decimal.NewFromInt(int64(minutes))).
		Mul(multiplier).
		Div(sixty).
		Round(0).
		IntPart()
}

// buildLineItem runs the per-employee pipeline: fetch overlapping
// entries, split minutes into anchored weeks, allocate overtime and
// compute pay in decimal.
func (s *PayrollService) buildLineItem(
	ctx context.Context,
	emp *userrepo.User,
	periodStart, periodEnd time.Time,
	loc *time.Location,
	settings company.Settings,
) (*repository.PayrollLineItem, error) {
	periodStartUTC := timeutil.DayStart(periodStart, loc)
	periodEndUTC := timeutil.DayStart(periodEnd.AddDate(0, 0, 1), loc)

	entries, err := s.entries.ListForPayroll(ctx, emp.ID, periodStartUTC, periodEndUTC)
	if err != nil {
		return nil, err
	}

	multiplier := settings.OvertimeMultiplierDefault
	if emp.OvertimeMultiplier != nil {
		multiplier = *emp.OvertimeMultiplier
	}

	// Week blocks anchored on the configured week start day; the first
	// block may begin before the period when the period is misaligned.
	firstWeek := timeutil.WeekStartOf(periodStart, settings.PayrollWeekStartDay)
	var weeks []weekBlock
	for ws := firstWeek; !ws.After(periodEnd); ws = ws.AddDate(0, 0, 7) {
		weeks = append(weeks, weekBlock{
			StartDate: timeutil.FormatDate(ws),
			EndDate:   timeutil.FormatDate(ws.AddDate(0, 0, 6)),
			EntryIDs:  []string{},
		})
	}

	details := lineDetails{DailyMinutes: map[string]int{}, EntryIDs: []string{}}
	weekMinutes := make([]int, len(weeks))
	weekEntries := make([][]string, len(weeks))
	exceptions := 0

	for _, e := range entries {
		details.EntryIDs = append(details.EntryIDs, e.ID)
		if e.ClockOutAt == nil {
			exceptions++
			continue
		}
		if e.Status == timerepo.StatusEdited {
			exceptions++
		}

		minutes := timeclock.ComputePaidMinutes(e.ClockInAt, e.ClockOutAt, e.BreakMinutes, settings.RoundingPolicy, settings.BreaksPaid)
		localDate := e.ClockInAt.In(loc)
		day := time.Date(localDate.Year(), localDate.Month(), localDate.Day(), 0, 0, 0, 0, time.UTC)

		idx := timeutil.DaysBetween(firstWeek, day) / 7
		if day.Before(firstWeek) || idx < 0 || idx >= len(weeks) {
			continue
		}
		weekMinutes[idx] += minutes
		weekEntries[idx] = append(weekEntries[idx], e.ID)
		details.DailyMinutes[timeutil.FormatDate(day)] += minutes
	}

	thresholdMin := settings.OvertimeThresholdMinutes()
	totalRegular, totalOvertime := 0, 0
	for i := range weeks {
		total := weekMinutes[i]
		overtime := 0
		if settings.OvertimeEnabled && total > thresholdMin {
			overtime = total - thresholdMin
		}
		regular := total - overtime
		weeks[i].RegularMinutes = regular
		weeks[i].OvertimeMinutes = overtime
		weeks[i].TotalMinutes = total
		weeks[i].EntryIDs = append(weeks[i].EntryIDs, weekEntries[i]...)
		totalRegular += regular
		totalOvertime += overtime
	}
	details.Weeks = weeks

	detailsJSON, err := json.Marshal(details)
	if err != nil {
		return nil, err
	}

	regularPay := roundCents(totalRegular, emp.PayRateCents, decimal.NewFromInt(1))
	overtimePay := roundCents(totalOvertime, emp.PayRateCents, multiplier)

	return &repository.PayrollLineItem{
		EmployeeID:         emp.ID,
		EmployeeName:       emp.Name,
		RegularMinutes:     totalRegular,
		OvertimeMinutes:    totalOvertime,
		TotalMinutes:       totalRegular + totalOvertime,
		PayRateCents:       emp.PayRateCents,
		OvertimeMultiplier: multiplier,
		RegularPayCents:    regularPay,
		OvertimePayCents:   overtimePay,
		TotalPayCents:      regularPay + overtimePay,
		ExceptionsCount:    exceptions,
		Details:            detailsJSON,
	}, nil
}

// Generate runs the payroll pipeline and persists a DRAFT run with one
// line item per eligible employee.
func (s *PayrollService) Generate(ctx context.Context, req GenerateRequest) (*RunDetail, error) {
	companyID, err := tenant.CompanyID(ctx)
	if err != nil {
		return nil, err
	}
	settings, loc, err := s.companies.SettingsFor(ctx)
	if err != nil {
		return nil, err
	}

	periodStart, periodEnd, warnings, err := resolvePeriod(req, settings)
	if err != nil {
		return nil, err
	}

	if !req.AllowDuplicate {
		dup, err := s.runs.FindDuplicate(ctx, req.PayrollType, periodStart, periodEnd)
		if err != nil {
			return nil, err
		}
		if dup != nil {
			return nil, errors.Conflict("a payroll run for this period already exists").
				WithDetails(map[string]string{"existing_run_id": dup.ID})
		}
	}

	employees, err := s.users.ListPayable(ctx, req.IncludeInactive, req.EmployeeIDs)
	if err != nil {
		return nil, err
	}

	var items []*repository.PayrollLineItem
	for _, emp := range employees {
		if emp.PayRateCents == 0 {
			continue
		}
		item, err := s.buildLineItem(ctx, emp, periodStart, periodEnd, loc, settings)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	actorID := httputil.GetUserID(ctx)
	run := &repository.PayrollRun{
		CompanyID:       companyID,
		PayrollType:     req.PayrollType,
		PeriodStartDate: periodStart,
		PeriodEndDate:   periodEnd,
		Timezone:        settings.Timezone,
		Status:          repository.StatusDraft,
		GeneratedBy:     actorID,
		GeneratedAt:     s.clock.Now().UTC(),
		EmployeeCount:   len(items),
	}

	totalRegularMin, totalOvertimeMin := 0, 0
	var totalPay int64
	for _, item := range items {
		totalRegularMin += item.RegularMinutes
		totalOvertimeMin += item.OvertimeMinutes
		totalPay += item.TotalPayCents
	}
	run.TotalRegularHours = decimal.NewFromInt(int64(totalRegularMin)).Div(sixty).Round(2)
	run.TotalOvertimeHours = decimal.NewFromInt(int64(totalOvertimeMin)).Div(sixty).Round(2)
	run.TotalGrossPayCents = totalPay

	err = s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		if err := s.runs.CreateRunTx(ctx, tx, run); err != nil {
			return err
		}
		for _, item := range items {
			item.PayrollRunID = run.ID
			if err := s.runs.InsertLineItemTx(ctx, tx, item); err != nil {
				return err
			}
		}
		return s.auditor.RecordTx(ctx, tx, &actorID, audit.ActionPayrollGenerate, "payroll_run", run.ID, map[string]any{
			"payroll_type": run.PayrollType,
			"period_start": timeutil.FormatDate(run.PeriodStartDate),
			"period_end":   timeutil.FormatDate(run.PeriodEndDate),
			"employees":    len(items),
			"gross_cents":  totalPay,
		})
	})
	if err != nil {
		return nil, err
	}

	s.publishRun(ctx, messaging.EventPayrollRunCreated, run, actorID)
	return &RunDetail{Run: run, Items: items, Warnings: warnings}, nil
}

func (s *PayrollService) publishRun(ctx context.Context, routingKey string, run *repository.PayrollRun, actorID string) {
	if err := s.publisher.Publish(ctx, routingKey, messaging.PayrollRunEvent{
		RunID:       run.ID,
		PeriodStart: timeutil.FormatDate(run.PeriodStartDate),
		PeriodEnd:   timeutil.FormatDate(run.PeriodEndDate),
		Status:      run.Status,
		ActorID:     actorID,
	}); err != nil {
		s.logger.Warn().Err(err).Str("run_id", run.ID).Msg("failed to publish payroll run event")
	}
}
