package service

import (
	"context"
	"strings"
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

// Conflict policies for bulk week creation
const (
	PolicySkip      = "skip"
	PolicyOverwrite = "overwrite"
	PolicyDraft     = "draft"
	PolicyError     = "error"
)

// Bulk generation modes
const (
	ModeSameEachDay = "same_each_day"
	ModePerDay      = "per_day"
)

// conflictMarker is appended to notes when the draft policy saves a
// conflicting shift anyway.
const conflictMarker = "[Conflict detected on creation]"

// weekDays orders the per-day keys Monday first.
var weekDays = []string{"mon", "tue", "wed", "thu", "fri", "sat", "sun"}

// DayPlan enables one weekday, optionally overriding the template
// times in per_day mode.
type DayPlan struct {
	Enabled      bool    `json:"enabled"`
	StartTime    *string `json:"start_time,omitempty"`
	EndTime      *string `json:"end_time,omitempty"`
	BreakMinutes *int    `json:"break_minutes,omitempty"`
}

// BulkWeekRequest creates a week of shifts for one employee
type BulkWeekRequest struct {
	WeekStartDate  string             `json:"week_start_date" validate:"required"`
	EmployeeID     string             `json:"employee_id" validate:"required,uuid"`
	Mode           string             `json:"mode" validate:"required,oneof=same_each_day per_day"`
	StartTime      string             `json:"start_time" validate:"required"`
	EndTime        string             `json:"end_time" validate:"required"`
	BreakMinutes   int                `json:"break_minutes" validate:"min=0"`
	Status         string             `json:"status,omitempty" validate:"omitempty,oneof=DRAFT PUBLISHED"`
	Notes          *string            `json:"notes,omitempty"`
	JobRole        *string            `json:"job_role,omitempty"`
	Days           map[string]DayPlan `json:"days" validate:"required"`
	ConflictPolicy string             `json:"conflict_policy" validate:"required,oneof=skip overwrite draft error"`
}

// BulkCandidate is one would-be shift with its conflicts
type BulkCandidate struct {
	ShiftDate    string     `json:"shift_date"`
	StartTime    string     `json:"start_time"`
	EndTime      string     `json:"end_time"`
	BreakMinutes int        `json:"break_minutes"`
	Conflicts    []Conflict `json:"conflicts,omitempty"`
}

// BulkWeekResult reports what a commit did (or a preview would do)
type BulkWeekResult struct {
	WeekStartDate    string              `json:"week_start_date"`
	SeriesID         string              `json:"series_id,omitempty"`
	Candidates       []BulkCandidate     `json:"candidates"`
	CreatedShifts    []*repository.Shift `json:"created_shifts,omitempty"`
	CreatedCount     int                 `json:"created_count"`
	OverwrittenCount int                 `json:"overwritten_count"`
	SkippedCount     int                 `json:"skipped_count"`
}

type bulkCandidate struct {
	date      time.Time
	startMin  int
	endMin    int
	startTime string
	endTime   string
	breakMin  int
	conflicts []Conflict
}

// planWeek expands the request into dated candidates with conflicts.
func (s *ScheduleService) planWeek(ctx context.Context, req BulkWeekRequest) (time.Time, []bulkCandidate, error) {
	if _, err := s.checkSchedulable(ctx, req.EmployeeID); err != nil {
		return time.Time{}, nil, err
	}

	start, err := timeutil.ParseDate(req.WeekStartDate)
	if err != nil {
		return time.Time{}, nil, errors.Validation(map[string]string{"week_start_date": "must be a YYYY-MM-DD date"})
	}
	monday := timeutil.MondayOf(start)

	_, loc, err := s.companies.SettingsFor(ctx)
	if err != nil {
		return time.Time{}, nil, err
	}

	var candidates []bulkCandidate
	for i, key := range weekDays {
		plan, ok := req.Days[key]
		if !ok || !plan.Enabled {
			continue
		}

		startTime, endTime, breakMin := req.StartTime, req.EndTime, req.BreakMinutes
		if req.Mode == ModePerDay {
			if plan.StartTime != nil {
				startTime = *plan.StartTime
			}
			if plan.EndTime != nil {
				endTime = *plan.EndTime
			}
			if plan.BreakMinutes != nil {
				breakMin = *plan.BreakMinutes
			}
		}

		startMin, err := timeutil.ParseTimeOfDay(startTime)
		if err != nil {
			return time.Time{}, nil, errors.Validation(map[string]string{key: "start_time must be an HH:MM time"})
		}
		endMin, err := timeutil.ParseTimeOfDay(endTime)
		if err != nil {
			return time.Time{}, nil, errors.Validation(map[string]string{key: "end_time must be an HH:MM time"})
		}

		date := monday.AddDate(0, 0, i)
		conflicts, err := s.findConflicts(ctx, loc, req.EmployeeID, date, startMin, endMin, nil)
		if err != nil {
			return time.Time{}, nil, err
		}

		candidates = append(candidates, bulkCandidate{
			date:      date,
			startMin:  startMin,
			endMin:    endMin,
			startTime: startTime,
			endTime:   endTime,
			breakMin:  breakMin,
			conflicts: conflicts,
		})
	}
	return monday, candidates, nil
}

// conflictShiftIDs returns the distinct conflicting shift ids across
// all candidates, in first-seen order. An overnight shift can overlap
// two adjacent candidates and must only be deleted and counted once.
func conflictShiftIDs(candidates []bulkCandidate) []string {
	seen := map[string]bool{}
	var ids []string
	for _, c := range candidates {
		for _, conflict := range c.conflicts {
			if seen[conflict.ShiftID] {
				continue
			}
			seen[conflict.ShiftID] = true
			ids = append(ids, conflict.ShiftID)
		}
	}
	return ids
}

// conflictDetails maps each conflicting candidate date to its
// conflicting shift ids, comma separated.
func conflictDetails(candidates []bulkCandidate) map[string]string {
	details := map[string]string{}
	for _, c := range candidates {
		if len(c.conflicts) == 0 {
			continue
		}
		ids := make([]string, 0, len(c.conflicts))
		for _, conflict := range c.conflicts {
			ids = append(ids, conflict.ShiftID)
		}
		details[timeutil.FormatDate(c.date)] = strings.Join(ids, ",")
	}
	return details
}

func toBulkCandidates(candidates []bulkCandidate) []BulkCandidate {
	out := make([]BulkCandidate, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, BulkCandidate{
			ShiftDate:    timeutil.FormatDate(c.date),
			StartTime:    c.startTime,
			EndTime:      c.endTime,
			BreakMinutes: c.breakMin,
			Conflicts:    c.conflicts,
		})
	}
	return out
}

// PreviewWeek computes the would-be shifts without persisting
func (s *ScheduleService) PreviewWeek(ctx context.Context, req BulkWeekRequest) (*BulkWeekResult, error) {
	monday, candidates, err := s.planWeek(ctx, req)
	if err != nil {
		return nil, err
	}
	return &BulkWeekResult{
		WeekStartDate: timeutil.FormatDate(monday),
		Candidates:    toBulkCandidates(candidates),
	}, nil
}

// CommitWeek creates the week under a fresh series id, applying the
// conflict policy per candidate. Under the error policy any conflict
// fails the whole call.
func (s *ScheduleService) CommitWeek(ctx context.Context, req BulkWeekRequest) (*BulkWeekResult, error) {
	companyID, err := tenant.CompanyID(ctx)
	if err != nil {
		return nil, err
	}

	monday, candidates, err := s.planWeek(ctx, req)
	if err != nil {
		return nil, err
	}

	if req.ConflictPolicy == PolicyError {
		if details := conflictDetails(candidates); len(details) > 0 {
			return nil, errors.Conflict("candidate shifts conflict with existing shifts").WithDetails(details)
		}
	}

	status := req.Status
	if status == "" {
		status = repository.ShiftStatusPublished
	}
	seriesID := uuid.New().String()
	actorID := httputil.GetUserID(ctx)

	result := &BulkWeekResult{
		WeekStartDate: timeutil.FormatDate(monday),
		SeriesID:      seriesID,
		Candidates:    toBulkCandidates(candidates),
	}

	err = s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		if req.ConflictPolicy == PolicyOverwrite {
			for _, id := range conflictShiftIDs(candidates) {
				if err := s.shifts.DeleteTx(ctx, tx, id); err != nil {
					return err
				}
				result.OverwrittenCount++
			}
		}

		for _, c := range candidates {
			shiftStatus := status
			notes := req.Notes

			if len(c.conflicts) > 0 {
				switch req.ConflictPolicy {
				case PolicySkip:
					result.SkippedCount++
					continue
				case PolicyDraft:
					shiftStatus = repository.ShiftStatusDraft
					marked := conflictMarker
					if notes != nil && *notes != "" {
						marked = *notes + " " + conflictMarker
					}
					notes = &marked
				}
			}

			shift := &repository.Shift{
				CompanyID:    companyID,
				EmployeeID:   req.EmployeeID,
				ShiftDate:    c.date,
				StartTime:    c.startTime,
				EndTime:      c.endTime,
				BreakMinutes: c.breakMin,
				Status:       shiftStatus,
				Notes:        notes,
				JobRole:      req.JobRole,
				SeriesID:     &seriesID,
			}
			if err := s.shifts.CreateTx(ctx, tx, shift); err != nil {
				return err
			}
			result.CreatedShifts = append(result.CreatedShifts, shift)
			result.CreatedCount++
		}

		return s.auditor.RecordTx(ctx, tx, &actorID, audit.ActionShiftBulkCreate, "shift_series", seriesID, map[string]any{
			"week_start":  result.WeekStartDate,
			"employee_id": req.EmployeeID,
			"created":     result.CreatedCount,
			"overwritten": result.OverwrittenCount,
			"skipped":     result.SkippedCount,
		})
	})
	if err != nil {
		return nil, err
	}

	if pubErr := s.publisher.Publish(ctx, messaging.EventWeekPublished, messaging.WeekPublishedEvent{
		WeekStart:   result.WeekStartDate,
		Created:     result.CreatedCount,
		Overwritten: result.OverwrittenCount,
		Skipped:     result.SkippedCount,
		PublishedBy: actorID,
	}); pubErr != nil {
		s.logger.Warn().Err(pubErr).Msg("failed to publish bulk week event")
	}

	return result, nil
}
