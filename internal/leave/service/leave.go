package service

import (
	"context"

	"github.com/shiftline/shiftline-backend/internal/audit"
	"github.com/shiftline/shiftline-backend/internal/leave/repository"
	userrepo "github.com/shiftline/shiftline-backend/internal/user/repository"
	"github.com/shiftline/shiftline-backend/pkg/clock"
	"github.com/shiftline/shiftline-backend/pkg/errors"
	"github.com/shiftline/shiftline-backend/pkg/httputil"
	"github.com/shiftline/shiftline-backend/pkg/logger"
	"github.com/shiftline/shiftline-backend/pkg/mailer"
	"github.com/shiftline/shiftline-backend/pkg/messaging"
	"github.com/shiftline/shiftline-backend/pkg/tenant"
	"github.com/shiftline/shiftline-backend/pkg/timeutil"
)

// LeaveService handles absence requests and their review.
type LeaveService struct {
	requests  *repository.LeaveRepository
	users     *userrepo.UserRepository
	auditor   *audit.Recorder
	clock     clock.Clock
	mailer    mailer.EmailSender
	publisher messaging.EventPublisher
	logger    *logger.Logger
}

// NewLeaveService creates a new leave service
func NewLeaveService(
	requests *repository.LeaveRepository,
	users *userrepo.UserRepository,
	clk clock.Clock,
	auditor *audit.Recorder,
	m mailer.EmailSender,
	pub messaging.EventPublisher,
	log *logger.Logger,
) *LeaveService {
	return &LeaveService{
		requests:  requests,
		users:     users,
		auditor:   auditor,
		clock:     clk,
		mailer:    m,
		publisher: pub,
		logger:    log,
	}
}

// SubmitRequest opens a new leave request for the caller
type SubmitRequest struct {
	LeaveType       string   `json:"leave_type" validate:"required,oneof=vacation sick personal other"`
	StartDate       string   `json:"start_date" validate:"required"`
	EndDate         string   `json:"end_date" validate:"required"`
	PartialDayHours *float64 `json:"partial_day_hours,omitempty" validate:"omitempty,gt=0,lte=24"`
	Reason          *string  `json:"reason,omitempty"`
}

// Submit creates a pending request owned by the caller
func (s *LeaveService) Submit(ctx context.Context, req SubmitRequest) (*repository.LeaveRequest, error) {
	companyID, err := tenant.CompanyID(ctx)
	if err != nil {
		return nil, err
	}

	start, err := timeutil.ParseDate(req.StartDate)
	if err != nil {
		return nil, errors.Validation(map[string]string{"start_date": "must be a YYYY-MM-DD date"})
	}
	end, err := timeutil.ParseDate(req.EndDate)
	if err != nil {
		return nil, errors.Validation(map[string]string{"end_date": "must be a YYYY-MM-DD date"})
	}
	if end.Before(start) {
		return nil, errors.Validation(map[string]string{"end_date": "must not precede start_date"})
	}

	lr := &repository.LeaveRequest{
		CompanyID:       companyID,
		EmployeeID:      httputil.GetUserID(ctx),
		LeaveType:       req.LeaveType,
		StartDate:       start,
		EndDate:         end,
		PartialDayHours: req.PartialDayHours,
		Reason:          req.Reason,
		Status:          repository.StatusPending,
	}
	if err := s.requests.Create(ctx, lr); err != nil {
		return nil, err
	}

	if err := s.publisher.Publish(ctx, messaging.EventLeaveRequested, messaging.LeaveRequestedEvent{
		RequestID:  lr.ID,
		EmployeeID: lr.EmployeeID,
		LeaveType:  lr.LeaveType,
		StartDate:  timeutil.FormatDate(lr.StartDate),
		EndDate:    timeutil.FormatDate(lr.EndDate),
	}); err != nil {
		s.logger.Warn().Err(err).Msg("failed to publish leave requested event")
	}
	return lr, nil
}

// ReviewRequest resolves a pending request
type ReviewRequest struct {
	Comment *string `json:"comment,omitempty"`
}

// Approve resolves a pending request to approved
func (s *LeaveService) Approve(ctx context.Context, id string, req ReviewRequest) (*repository.LeaveRequest, error) {
	return s.review(ctx, id, repository.StatusApproved, req.Comment)
}

// Reject resolves a pending request to rejected
func (s *LeaveService) Reject(ctx context.Context, id string, req ReviewRequest) (*repository.LeaveRequest, error) {
	return s.review(ctx, id, repository.StatusRejected, req.Comment)
}

func (s *LeaveService) review(ctx context.Context, id, status string, comment *string) (*repository.LeaveRequest, error) {
	lr, err := s.requests.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if lr.Status != repository.StatusPending {
		return nil, errors.Conflict("leave request is no longer pending")
	}

	actorID := httputil.GetUserID(ctx)
	if err := s.requests.Review(ctx, id, status, actorID, s.clock.Now().UTC(), comment); err != nil {
		return nil, err
	}

	if err := s.auditor.Record(ctx, &actorID, audit.ActionLeaveReview, "leave_request", id, map[string]any{
		"status":  status,
		"comment": comment,
	}); err != nil {
		s.logger.Warn().Err(err).Str("request_id", id).Msg("failed to record leave review audit")
	}

	// Decision mail is best-effort; the review stands even if it fails.
	if emp, err := s.users.GetByID(ctx, lr.EmployeeID); err == nil {
		if err := s.mailer.SendLeaveDecision(ctx, emp.Email, emp.Name, lr.LeaveType, status,
			timeutil.FormatDate(lr.StartDate), timeutil.FormatDate(lr.EndDate)); err != nil {
			s.logger.Warn().Err(err).Str("request_id", id).Msg("failed to send leave decision mail")
		}
	}

	if err := s.publisher.Publish(ctx, messaging.EventLeaveReviewed, messaging.LeaveReviewedEvent{
		RequestID:  id,
		EmployeeID: lr.EmployeeID,
		Status:     status,
		ReviewerID: actorID,
	}); err != nil {
		s.logger.Warn().Err(err).Msg("failed to publish leave reviewed event")
	}

	return s.requests.GetByID(ctx, id)
}

// Cancel withdraws the caller's own pending request
func (s *LeaveService) Cancel(ctx context.Context, id string) (*repository.LeaveRequest, error) {
	if err := s.requests.Cancel(ctx, id, httputil.GetUserID(ctx)); err != nil {
		return nil, err
	}
	return s.requests.GetByID(ctx, id)
}

// ListMine returns the caller's own requests
func (s *LeaveService) ListMine(ctx context.Context, params repository.LeaveListParams) ([]*repository.LeaveRequest, error) {
	userID := httputil.GetUserID(ctx)
	params.EmployeeID = &userID
	return s.requests.List(ctx, params)
}

// List returns the company's requests with filters
func (s *LeaveService) List(ctx context.Context, params repository.LeaveListParams) ([]*repository.LeaveRequest, error) {
	return s.requests.List(ctx, params)
}

// Get returns one request; non-admin callers only see their own.
func (s *LeaveService) Get(ctx context.Context, id string) (*repository.LeaveRequest, error) {
	return s.requests.GetByID(ctx, id)
}
