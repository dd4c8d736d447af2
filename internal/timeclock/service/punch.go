package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shiftline/shiftline-backend/internal/audit"
	"github.com/shiftline/shiftline-backend/internal/auth/hash"
	"github.com/shiftline/shiftline-backend/internal/company"
	"github.com/shiftline/shiftline-backend/internal/timeclock"
	"github.com/shiftline/shiftline-backend/internal/timeclock/repository"
	"github.com/shiftline/shiftline-backend/internal/user/domain"
	userrepo "github.com/shiftline/shiftline-backend/internal/user/repository"
	"github.com/shiftline/shiftline-backend/pkg/clock"
	"github.com/shiftline/shiftline-backend/pkg/database"
	"github.com/shiftline/shiftline-backend/pkg/errors"
	"github.com/shiftline/shiftline-backend/pkg/logger"
	"github.com/shiftline/shiftline-backend/pkg/messaging"
	"github.com/shiftline/shiftline-backend/pkg/tenant"
)

// Punch actions reported back to the caller
const (
	ActionClockIn  = "clock_in"
	ActionClockOut = "clock_out"
)

// PunchService is the punch state machine coordinator
type PunchService struct {
	db        *database.DB
	entries   *repository.TimeEntryRepository
	cash      *repository.CashDrawerRepository
	users     *userrepo.UserRepository
	companies *company.Service
	auditor   *audit.Recorder
	clock     clock.Clock
	publisher messaging.EventPublisher
	logger    *logger.Logger
}

// NewPunchService creates a new punch service
func NewPunchService(
	db *database.DB,
	entries *repository.TimeEntryRepository,
	cash *repository.CashDrawerRepository,
	users *userrepo.UserRepository,
	companies *company.Service,
	clk clock.Clock,
	auditor *audit.Recorder,
	pub messaging.EventPublisher,
	log *logger.Logger,
) *PunchService {
	return &PunchService{
		db:        db,
		entries:   entries,
		cash:      cash,
		users:     users,
		companies: companies,
		auditor:   auditor,
		clock:     clk,
		publisher: pub,
		logger:    log,
	}
}

// PunchRequest toggles an employee between idle and on-shift. Exactly
// one resolution input is used: employee id, email, or kiosk PIN.
type PunchRequest struct {
	EmployeeID string `json:"employee_id,omitempty"`
	Email      string `json:"email,omitempty" validate:"omitempty,email"`
	PIN        string `json:"pin,omitempty"`

	Source string  `json:"source" validate:"required,oneof=kiosk web"`
	Note   *string `json:"note,omitempty"`

	CashStartCents     *int64 `json:"cash_start_cents,omitempty" validate:"omitempty,min=0"`
	CashEndCents       *int64 `json:"cash_end_cents,omitempty" validate:"omitempty,min=0"`
	CollectedCashCents *int64 `json:"collected_cash_cents,omitempty" validate:"omitempty,min=0"`
	DropAmountCents    *int64 `json:"drop_amount_cents,omitempty" validate:"omitempty,min=0"`
	BeveragesCashCents *int64 `json:"beverages_cash_cents,omitempty" validate:"omitempty,min=0"`

	Meta repository.PunchMeta `json:"-"`
}

// PunchResult reports the transition that happened
type PunchResult struct {
	Action       string                        `json:"action"`
	EmployeeID   string                        `json:"employee_id"`
	EmployeeName string                        `json:"employee_name"`
	Entry        *repository.TimeEntry         `json:"entry"`
	CashSession  *repository.CashDrawerSession `json:"cash_session,omitempty"`
}

// Punch resolves the employee within the tenant in context and toggles
// their shift. The whole transition runs in one transaction under an
// advisory lock keyed on (company, employee), so two concurrent
// punches for the same employee serialize.
func (s *PunchService) Punch(ctx context.Context, req PunchRequest) (*PunchResult, error) {
	settings, _, err := s.companies.SettingsFor(ctx)
	if err != nil {
		return nil, err
	}

	emp, err := s.resolveEmployee(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.punch(ctx, emp, settings, req)
}

// PunchBySlug is the public kiosk path: the company comes from the
// slug, the employee from the PIN.
func (s *PunchService) PunchBySlug(ctx context.Context, slug string, req PunchRequest) (*PunchResult, error) {
	c, settings, err := s.companies.ResolveSlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	ctx = tenant.WithCompany(ctx, c.ID, c.Slug)

	if req.PIN == "" {
		return nil, errors.InvalidCredentials()
	}
	emp, err := s.resolveByPIN(ctx, c.ID, req.PIN)
	if err != nil {
		return nil, err
	}
	req.Source = repository.SourceKiosk
	return s.punch(ctx, emp, settings, req)
}

// CheckPIN resolves a kiosk PIN to the employee and their shift state.
func (s *PunchService) CheckPIN(ctx context.Context, slug, pin string) (*PunchResult, error) {
	c, _, err := s.companies.ResolveSlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	ctx = tenant.WithCompany(ctx, c.ID, c.Slug)

	emp, err := s.resolveByPIN(ctx, c.ID, pin)
	if err != nil {
		return nil, err
	}

	open, err := s.entries.GetOpen(ctx, c.ID, emp.ID)
	if err != nil {
		return nil, err
	}

	action := ActionClockIn
	if open != nil {
		action = ActionClockOut
	}
	return &PunchResult{
		Action:       action,
		EmployeeID:   emp.ID,
		EmployeeName: emp.Name,
		Entry:        open,
	}, nil
}

// resolveEmployee picks the punching employee by id, email or PIN.
func (s *PunchService) resolveEmployee(ctx context.Context, req PunchRequest) (*userrepo.User, error) {
	companyID, err := tenant.CompanyID(ctx)
	if err != nil {
		return nil, err
	}

	switch {
	case req.EmployeeID != "":
		u, err := s.users.GetByID(ctx, req.EmployeeID)
		if err != nil {
			return nil, err
		}
		return s.checkPunchable(u)
	case req.Email != "":
		u, err := s.users.GetByEmail(ctx, req.Email)
		if err != nil {
			return nil, err
		}
		return s.checkPunchable(u)
	case req.PIN != "":
		return s.resolveByPIN(ctx, companyID, req.PIN)
	default:
		return nil, errors.BadRequest("one of employee_id, email or pin is required")
	}
}

// resolveByPIN verifies the PIN against every punchable employee of
// the company. Hashes are salted, so each row must be checked.
func (s *PunchService) resolveByPIN(ctx context.Context, companyID, pin string) (*userrepo.User, error) {
	if err := domain.ValidatePIN(pin); err != nil {
		return nil, errors.InvalidCredentials()
	}

	candidates, err := s.users.ListPunchable(ctx, companyID)
	if err != nil {
		return nil, err
	}
	for _, u := range candidates {
		ok, verr := hash.Verify(pin, *u.PINHash)
		if verr == nil && ok {
			return u, nil
		}
	}
	return nil, errors.InvalidCredentials()
}

// checkPunchable rejects admins, developers and inactive accounts.
func (s *PunchService) checkPunchable(u *userrepo.User) (*userrepo.User, error) {
	if u.Status != domain.StatusActive {
		return nil, errors.Forbidden("account is inactive")
	}
	if !domain.CanPunch(u.Role) {
		return nil, errors.Forbidden("this role does not punch a time clock")
	}
	return u, nil
}

func (s *PunchService) punch(ctx context.Context, emp *userrepo.User, settings company.Settings, req PunchRequest) (*PunchResult, error) {
	cashRequired := settings.CashRequiredFor(emp.Role)
	now := s.clock.Now().UTC()

	result := &PunchResult{EmployeeID: emp.ID, EmployeeName: emp.Name}
	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		if err := database.AdvisoryLock(ctx, tx, emp.CompanyID, emp.ID); err != nil {
			return err
		}

		open, err := s.entries.GetOpenTx(ctx, tx, emp.CompanyID, emp.ID)
		if err != nil {
			return err
		}
		if open == nil {
			return s.clockIn(ctx, tx, emp, cashRequired, req, now, result)
		}
		return s.clockOut(ctx, tx, emp, open, req, now, result)
	})
	if err != nil {
		return nil, err
	}

	s.publishPunch(ctx, result, settings, req.Source)
	return result, nil
}

func (s *PunchService) clockIn(ctx context.Context, tx *sqlx.Tx, emp *userrepo.User, cashRequired bool, req PunchRequest, now time.Time, result *PunchResult) error {
	if cashRequired && req.CashStartCents == nil {
		return errors.BadRequest("cash_start_cents is required for this employee")
	}

	entry := &repository.TimeEntry{
		CompanyID:        emp.CompanyID,
		EmployeeID:       emp.ID,
		ClockInAt:        now,
		Source:           req.Source,
		Status:           repository.StatusOpen,
		Note:             req.Note,
		ClockInIP:        req.Meta.IP,
		ClockInUserAgent: req.Meta.UserAgent,
		ClockInLat:       req.Meta.Lat,
		ClockInLng:       req.Meta.Lng,
	}
	if err := s.entries.CreateTx(ctx, tx, entry); err != nil {
		return err
	}

	if cashRequired {
		session := &repository.CashDrawerSession{
			CompanyID:        emp.CompanyID,
			TimeEntryID:      entry.ID,
			StartCashCents:   *req.CashStartCents,
			StartCountedAt:   now,
			StartCountSource: req.Source,
			Status:           repository.CashStatusOpen,
		}
		if err := s.cash.CreateTx(ctx, tx, session); err != nil {
			return err
		}

		newValues, _ := json.Marshal(map[string]any{"start_cash_cents": session.StartCashCents})
		if err := s.cash.AppendAuditTx(ctx, tx, &repository.CashAuditRow{
			CompanyID: emp.CompanyID,
			SessionID: session.ID,
			Action:    repository.CashAuditCreateStart,
			NewValues: newValues,
		}); err != nil {
			return err
		}
		result.CashSession = session
	}

	if err := s.auditor.RecordTx(ctx, tx, nil, audit.ActionClockIn, "time_entry", entry.ID, map[string]any{
		"employee_id": emp.ID,
		"source":      req.Source,
	}); err != nil {
		return err
	}

	result.Action = ActionClockIn
	result.Entry = entry
	return nil
}

func (s *PunchService) clockOut(ctx context.Context, tx *sqlx.Tx, emp *userrepo.User, open *repository.TimeEntry, req PunchRequest, now time.Time, result *PunchResult) error {
	session, err := s.cash.GetByTimeEntryTx(ctx, tx, open.ID)
	if err != nil {
		return err
	}
	if session != nil && req.CashEndCents == nil {
		return errors.BadRequest("cash_end_cents is required to close this shift")
	}

	if err := s.entries.CloseTx(ctx, tx, open.ID, now, req.Meta); err != nil {
		return err
	}
	open.ClockOutAt = &now
	open.Status = repository.StatusClosed

	if session != nil {
		delta := *req.CashEndCents - session.StartCashCents
		status := repository.CashStatusClosed
		if delta != 0 {
			status = repository.CashStatusReviewNeeded
		}

		session.EndCashCents = req.CashEndCents
		session.EndCountedAt = &now
		session.EndCountSource = &req.Source
		session.CollectedCashCents = req.CollectedCashCents
		session.DropAmountCents = req.DropAmountCents
		session.BeveragesCashCents = req.BeveragesCashCents
		session.DeltaCents = &delta
		session.Status = status
		if err := s.cash.SetEndTx(ctx, tx, session); err != nil {
			return err
		}

		newValues, _ := json.Marshal(map[string]any{
			"end_cash_cents": *req.CashEndCents,
			"delta_cents":    delta,
			"status":         status,
		})
		if err := s.cash.AppendAuditTx(ctx, tx, &repository.CashAuditRow{
			CompanyID: emp.CompanyID,
			SessionID: session.ID,
			Action:    repository.CashAuditSetEnd,
			NewValues: newValues,
		}); err != nil {
			return err
		}
		result.CashSession = session
	}

	if err := s.auditor.RecordTx(ctx, tx, nil, audit.ActionClockOut, "time_entry", open.ID, map[string]any{
		"employee_id": emp.ID,
		"source":      req.Source,
	}); err != nil {
		return err
	}

	result.Action = ActionClockOut
	result.Entry = open
	return nil
}

// publishPunch emits the clock-in/out event after commit, best-effort.
func (s *PunchService) publishPunch(ctx context.Context, result *PunchResult, settings company.Settings, source string) {
	var err error
	switch result.Action {
	case ActionClockIn:
		err = s.publisher.Publish(ctx, messaging.EventTimeClockIn, messaging.TimeClockInEvent{
			TimeEntryID: result.Entry.ID,
			EmployeeID:  result.EmployeeID,
			ClockIn:     result.Entry.ClockInAt,
			Source:      source,
		})
	case ActionClockOut:
		entry := result.Entry
		worked := int(entry.ClockOutAt.Sub(entry.ClockInAt) / time.Minute)
		rounded := timeclock.ComputePaidMinutes(
			entry.ClockInAt, entry.ClockOutAt, entry.BreakMinutes,
			settings.RoundingPolicy, settings.BreaksPaid)
		err = s.publisher.Publish(ctx, messaging.EventTimeClockOut, messaging.TimeClockOutEvent{
			TimeEntryID:    entry.ID,
			EmployeeID:     result.EmployeeID,
			ClockIn:        entry.ClockInAt,
			ClockOut:       *entry.ClockOutAt,
			WorkedMinutes:  worked,
			BreakMinutes:   entry.BreakMinutes,
			RoundedMinutes: rounded,
		})
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("action", result.Action).Msg("failed to publish punch event")
	}

	if session := result.CashSession; session != nil {
		var cashErr error
		if result.Action == ActionClockIn {
			cashErr = s.publisher.Publish(ctx, messaging.EventCashSessionOpened, messaging.CashSessionOpenedEvent{
				SessionID:   session.ID,
				TimeEntryID: session.TimeEntryID,
				EmployeeID:  result.EmployeeID,
				OpenCents:   session.StartCashCents,
			})
		} else if session.EndCashCents != nil {
			cashErr = s.publisher.Publish(ctx, messaging.EventCashSessionClosed, messaging.CashSessionClosedEvent{
				SessionID:       session.ID,
				TimeEntryID:     session.TimeEntryID,
				EmployeeID:      result.EmployeeID,
				OpenCents:       session.StartCashCents,
				CloseCents:      *session.EndCashCents,
				DifferenceCents: *session.DeltaCents,
			})
		}
		if cashErr != nil {
			s.logger.Warn().Err(cashErr).Msg("failed to publish cash session event")
		}
	}
}
