package service

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/shiftline/shiftline-backend/internal/audit"
	"github.com/shiftline/shiftline-backend/internal/auth/hash"
	authrepo "github.com/shiftline/shiftline-backend/internal/auth/repository"
	"github.com/shiftline/shiftline-backend/internal/auth/token"
	"github.com/shiftline/shiftline-backend/internal/user/domain"
	"github.com/shiftline/shiftline-backend/internal/user/repository"
	"github.com/shiftline/shiftline-backend/pkg/database"
	"github.com/shiftline/shiftline-backend/pkg/errors"
	"github.com/shiftline/shiftline-backend/pkg/httputil"
	"github.com/shiftline/shiftline-backend/pkg/logger"
	"github.com/shiftline/shiftline-backend/pkg/mailer"
	"github.com/shiftline/shiftline-backend/pkg/messaging"
	"github.com/shiftline/shiftline-backend/pkg/tenant"
	"github.com/shopspring/decimal"
)

// UserService implements employee administration
type UserService struct {
	db        *database.DB
	users     *repository.UserRepository
	sessions  *authrepo.SessionRepository
	codec     *token.Codec
	mailer    mailer.EmailSender
	auditor   *audit.Recorder
	publisher messaging.EventPublisher
	logger    *logger.Logger
	setupURL  string
}

// NewUserService creates a new user service
func NewUserService(
	db *database.DB,
	users *repository.UserRepository,
	sessions *authrepo.SessionRepository,
	codec *token.Codec,
	m mailer.EmailSender,
	auditor *audit.Recorder,
	pub messaging.EventPublisher,
	log *logger.Logger,
	setupURL string,
) *UserService {
	return &UserService{
		db:        db,
		users:     users,
		sessions:  sessions,
		codec:     codec,
		mailer:    m,
		auditor:   auditor,
		publisher: pub,
		logger:    log,
		setupURL:  setupURL,
	}
}

// View is the employee representation returned by admin endpoints
type View struct {
	ID                 string           `json:"id"`
	Name               string           `json:"name"`
	Email              string           `json:"email"`
	Role               string           `json:"role"`
	Status             string           `json:"status"`
	JobRole            *string          `json:"job_role,omitempty"`
	PayRateCents       int64            `json:"pay_rate_cents"`
	PayRateType        string           `json:"pay_rate_type"`
	OvertimeMultiplier *decimal.Decimal `json:"overtime_multiplier,omitempty"`
	HasPIN             bool             `json:"has_pin"`
	EmailVerified      bool             `json:"email_verified"`
	LastLoginAt        *string          `json:"last_login_at,omitempty"`
	CreatedAt          string           `json:"created_at"`
}

func toView(u *repository.User) *View {
	v := &View{
		ID:                 u.ID,
		Name:               u.Name,
		Email:              u.Email,
		Role:               domain.NormalizeRole(u.Role),
		Status:             u.Status,
		JobRole:            u.JobRole,
		PayRateCents:       u.PayRateCents,
		PayRateType:        u.PayRateType,
		OvertimeMultiplier: u.OvertimeMultiplier,
		HasPIN:             u.HasPIN(),
		EmailVerified:      u.EmailVerified,
		CreatedAt:          u.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
	if u.LastLoginAt != nil {
		formatted := u.LastLoginAt.Format("2006-01-02T15:04:05Z07:00")
		v.LastLoginAt = &formatted
	}
	return v
}

// List returns employees of the caller's company
func (s *UserService) List(ctx context.Context, params repository.ListParams) ([]*View, int64, error) {
	users, total, err := s.users.List(ctx, params)
	if err != nil {
		return nil, 0, err
	}
	views := make([]*View, 0, len(users))
	for _, u := range users {
		views = append(views, toView(u))
	}
	return views, total, nil
}

// Get returns one employee
func (s *UserService) Get(ctx context.Context, id string) (*View, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return toView(u), nil
}

// Me returns the caller's own record
func (s *UserService) Me(ctx context.Context) (*View, error) {
	userID := httputil.GetUserID(ctx)
	if userID == "" {
		return nil, errors.Unauthorized("not authenticated")
	}
	return s.Get(ctx, userID)
}

// InviteRequest creates a new employee without a password
type InviteRequest struct {
	Name               string           `json:"name" validate:"required,min=1,max=200"`
	Email              string           `json:"email" validate:"required,email"`
	Role               string           `json:"role" validate:"required"`
	JobRole            *string          `json:"job_role,omitempty" validate:"omitempty,max=100"`
	PayRateCents       int64            `json:"pay_rate_cents" validate:"min=0"`
	OvertimeMultiplier *decimal.Decimal `json:"overtime_multiplier,omitempty"`
	PIN                *string          `json:"pin,omitempty"`
	SendInvitation     bool             `json:"send_invitation"`
}

// Invite creates an employee. With SendInvitation set, a setup link is
// mailed so the invitee picks their own password; otherwise the account
// stays password-less until an admin triggers an invitation later.
func (s *UserService) Invite(ctx context.Context, req InviteRequest) (*View, error) {
	if !domain.IsValidRole(req.Role) {
		return nil, errors.Validation(map[string]string{"role": "unknown role"})
	}
	if req.OvertimeMultiplier != nil && req.OvertimeMultiplier.LessThan(decimal.NewFromInt(1)) {
		return nil, errors.Validation(map[string]string{"overtime_multiplier": "must be at least 1"})
	}

	var pinHash *string
	if req.PIN != nil {
		if err := domain.ValidatePIN(*req.PIN); err != nil {
			return nil, err
		}
		h, err := hash.Hash(*req.PIN)
		if err != nil {
			return nil, errors.Internal("failed to hash PIN")
		}
		pinHash = &h
	}

	actorID := httputil.GetUserID(ctx)
	u := &repository.User{
		Name:                 req.Name,
		Email:                req.Email,
		PINHash:              pinHash,
		Role:                 req.Role,
		Status:               domain.StatusActive,
		JobRole:              req.JobRole,
		PayRateCents:         req.PayRateCents,
		OvertimeMultiplier:   req.OvertimeMultiplier,
		VerificationRequired: true,
	}

	companyID, err := tenant.CompanyID(ctx)
	if err != nil {
		return nil, err
	}
	u.CompanyID = companyID

	err = s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		if err := s.users.CreateTx(ctx, tx, u); err != nil {
			return err
		}
		return s.auditor.RecordTx(ctx, tx, &actorID, audit.ActionUserInvite, "user", u.ID, map[string]any{
			"email": u.Email,
			"role":  u.Role,
		})
	})
	if err != nil {
		return nil, err
	}

	if req.SendInvitation {
		if err := s.sendInvitation(ctx, u); err != nil {
			s.logger.Error().Err(err).Str("user_id", u.ID).Msg("invitation email failed")
		}
	}

	if pubErr := s.publisher.Publish(ctx, messaging.EventUserInvited, messaging.UserInvitedEvent{
		UserID:    u.ID,
		Email:     u.Email,
		InvitedBy: actorID,
	}); pubErr != nil {
		s.logger.Warn().Err(pubErr).Msg("failed to publish user invited event")
	}

	s.logger.Info().Str("user_id", u.ID).Str("role", u.Role).Msg("employee invited")
	return toView(u), nil
}

// ResendInvitation mails a fresh setup link to an employee that has not
// set a password yet.
func (s *UserService) ResendInvitation(ctx context.Context, id string) error {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if u.PasswordHash != nil {
		return errors.Conflict("employee already has a password")
	}
	if u.Status != domain.StatusActive {
		return errors.Conflict("employee is inactive")
	}
	return s.sendInvitation(ctx, u)
}

func (s *UserService) sendInvitation(ctx context.Context, u *repository.User) error {
	setupToken, err := s.codec.IssuePasswordSetup(u.ID, u.CompanyID, u.Email)
	if err != nil {
		return errors.Internal("failed to issue setup token")
	}
	link := s.setupURL + "?token=" + setupToken
	return s.mailer.SendSetupInvitation(ctx, u.Email, u.Name, link)
}

// UpdateRequest updates an employee's mutable fields
type UpdateRequest struct {
	Name               *string          `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Email              *string          `json:"email,omitempty" validate:"omitempty,email"`
	Role               *string          `json:"role,omitempty"`
	JobRole            *string          `json:"job_role,omitempty" validate:"omitempty,max=100"`
	PayRateCents       *int64           `json:"pay_rate_cents,omitempty" validate:"omitempty,min=0"`
	OvertimeMultiplier *decimal.Decimal `json:"overtime_multiplier,omitempty"`
}

// Update applies a partial update to an employee
func (s *UserService) Update(ctx context.Context, id string, req UpdateRequest) (*View, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	fields := map[string]any{}
	if req.Name != nil {
		u.Name = *req.Name
		fields["name"] = *req.Name
	}
	if req.Email != nil {
		u.Email = *req.Email
		fields["email"] = *req.Email
	}
	if req.Role != nil {
		if !domain.IsValidRole(*req.Role) {
			return nil, errors.Validation(map[string]string{"role": "unknown role"})
		}
		u.Role = *req.Role
		fields["role"] = *req.Role
	}
	if req.JobRole != nil {
		u.JobRole = req.JobRole
		fields["job_role"] = *req.JobRole
	}
	if req.PayRateCents != nil {
		u.PayRateCents = *req.PayRateCents
		fields["pay_rate_cents"] = *req.PayRateCents
	}
	if req.OvertimeMultiplier != nil {
		if req.OvertimeMultiplier.LessThan(decimal.NewFromInt(1)) {
			return nil, errors.Validation(map[string]string{"overtime_multiplier": "must be at least 1"})
		}
		u.OvertimeMultiplier = req.OvertimeMultiplier
		fields["overtime_multiplier"] = req.OvertimeMultiplier.String()
	}
	if len(fields) == 0 {
		return toView(u), nil
	}

	if err := s.users.Update(ctx, u); err != nil {
		return nil, err
	}

	if pubErr := s.publisher.Publish(ctx, messaging.EventUserUpdated, messaging.UserUpdatedEvent{
		UserID: u.ID,
		Fields: fields,
	}); pubErr != nil {
		s.logger.Warn().Err(pubErr).Msg("failed to publish user updated event")
	}

	return toView(u), nil
}

// SetPIN sets or replaces the kiosk PIN of an employee. A PIN already
// in use by another employee of the same company surfaces as a conflict.
func (s *UserService) SetPIN(ctx context.Context, id, pin string) error {
	if err := domain.ValidatePIN(pin); err != nil {
		return err
	}
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !domain.CanPunch(u.Role) {
		return errors.BadRequest("admins and developers do not punch; no PIN needed")
	}

	pinHash, err := hash.Hash(pin)
	if err != nil {
		return errors.Internal("failed to hash PIN")
	}
	if err := s.users.SetPIN(ctx, id, &pinHash); err != nil {
		return err
	}

	if pubErr := s.publisher.Publish(ctx, messaging.EventUserPINChanged, messaging.UserUpdatedEvent{
		UserID: id,
		Fields: map[string]any{"pin": "set"},
	}); pubErr != nil {
		s.logger.Warn().Err(pubErr).Msg("failed to publish pin change event")
	}
	return nil
}

// ClearPIN removes the kiosk PIN of an employee
func (s *UserService) ClearPIN(ctx context.Context, id string) error {
	if _, err := s.users.GetByID(ctx, id); err != nil {
		return err
	}
	if err := s.users.SetPIN(ctx, id, nil); err != nil {
		return err
	}

	if pubErr := s.publisher.Publish(ctx, messaging.EventUserPINChanged, messaging.UserUpdatedEvent{
		UserID: id,
		Fields: map[string]any{"pin": "cleared"},
	}); pubErr != nil {
		s.logger.Warn().Err(pubErr).Msg("failed to publish pin change event")
	}
	return nil
}

// Deactivate marks an employee inactive and revokes every live session
// so their tokens stop working immediately.
func (s *UserService) Deactivate(ctx context.Context, id string) error {
	actorID := httputil.GetUserID(ctx)
	if actorID == id {
		return errors.BadRequest("cannot deactivate your own account")
	}

	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if u.Status != domain.StatusActive {
		return errors.Conflict("employee is already inactive")
	}

	err = s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		if err := s.users.SetStatusTx(ctx, tx, id, domain.StatusInactive); err != nil {
			return err
		}
		if _, err := s.sessions.RevokeAllForUserTx(ctx, tx, id, u.CompanyID); err != nil {
			return err
		}
		return s.auditor.RecordTx(ctx, tx, &actorID, audit.ActionUserDeactivate, "user", id, nil)
	})
	if err != nil {
		return err
	}

	if pubErr := s.publisher.Publish(ctx, messaging.EventUserDeactivated, messaging.UserDeactivatedEvent{
		UserID:        id,
		DeactivatedBy: actorID,
	}); pubErr != nil {
		s.logger.Warn().Err(pubErr).Msg("failed to publish deactivation event")
	}

	s.logger.Info().Str("user_id", id).Msg("employee deactivated")
	return nil
}

// Reactivate returns an inactive employee to active status
func (s *UserService) Reactivate(ctx context.Context, id string) error {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if u.Status == domain.StatusActive {
		return errors.Conflict("employee is already active")
	}
	return s.users.SetStatus(ctx, id, domain.StatusActive)
}
