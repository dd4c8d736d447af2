package service

import (
	"context"
	"regexp"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shiftline/shiftline-backend/internal/auth/hash"
	authrepo "github.com/shiftline/shiftline-backend/internal/auth/repository"
	"github.com/shiftline/shiftline-backend/internal/auth/token"
	"github.com/shiftline/shiftline-backend/internal/company"
	"github.com/shiftline/shiftline-backend/internal/user/domain"
	userrepo "github.com/shiftline/shiftline-backend/internal/user/repository"
	"github.com/shiftline/shiftline-backend/pkg/clock"
	"github.com/shiftline/shiftline-backend/pkg/database"
	"github.com/shiftline/shiftline-backend/pkg/errors"
	"github.com/shiftline/shiftline-backend/pkg/logger"
	"github.com/shiftline/shiftline-backend/pkg/mailer"
	"github.com/shiftline/shiftline-backend/pkg/messaging"
	"github.com/shiftline/shiftline-backend/pkg/tenant"
)

// verificationWindow is how long a verification stays current before
// the user must re-verify.
const verificationWindow = 30 * 24 * time.Hour

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// AuthService implements the credential lifecycle
type AuthService struct {
	db        *database.DB
	users     *userrepo.UserRepository
	sessions  *authrepo.SessionRepository
	companies *company.Repository
	codec     *token.Codec
	mailer    mailer.EmailSender
	clock     clock.Clock
	publisher messaging.EventPublisher
	logger    *logger.Logger
	setupURL  string
}

// NewAuthService creates a new auth service
func NewAuthService(
	db *database.DB,
	users *userrepo.UserRepository,
	sessions *authrepo.SessionRepository,
	companies *company.Repository,
	codec *token.Codec,
	m mailer.EmailSender,
	clk clock.Clock,
	pub messaging.EventPublisher,
	log *logger.Logger,
	setupURL string,
) *AuthService {
	return &AuthService{
		db:        db,
		users:     users,
		sessions:  sessions,
		companies: companies,
		codec:     codec,
		mailer:    m,
		clock:     clk,
		publisher: pub,
		logger:    log,
		setupURL:  setupURL,
	}
}

// UserView is the user representation in auth responses
type UserView struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Email         string `json:"email"`
	Role          string `json:"role"`
	Status        string `json:"status"`
	EmailVerified bool   `json:"email_verified"`
}

func toUserView(u *userrepo.User) UserView {
	return UserView{
		ID:            u.ID,
		Name:          u.Name,
		Email:         u.Email,
		Role:          domain.NormalizeRole(u.Role),
		Status:        u.Status,
		EmailVerified: u.EmailVerified,
	}
}

// AuthResponse is returned by register, login, refresh and set-password
type AuthResponse struct {
	User    UserView    `json:"user"`
	Company CompanyView `json:"company"`
	Tokens  *token.Pair `json:"tokens"`
}

// CompanyView is the company representation in auth responses
type CompanyView struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// RegisterCompanyRequest creates a company and its first admin
type RegisterCompanyRequest struct {
	CompanyName string `json:"company_name" validate:"required,min=1,max=200"`
	Slug        string `json:"slug" validate:"required,min=2,max=60"`
	Name        string `json:"name" validate:"required,min=1,max=200"`
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required"`
	UserAgent   *string
	IPAddress   *string
}

// RegisterCompany creates the company and the initial admin user in
// one transaction and returns a logged-in token pair.
func (s *AuthService) RegisterCompany(ctx context.Context, req RegisterCompanyRequest) (*AuthResponse, error) {
	if !slugPattern.MatchString(req.Slug) {
		return nil, errors.Validation(map[string]string{
			"slug": "must be lower-case letters, digits and hyphens",
		})
	}
	if err := domain.ValidatePasswordStrength(req.Password); err != nil {
		return nil, err
	}

	passwordHash, err := hash.Hash(req.Password)
	if err != nil {
		return nil, errors.Internal("failed to hash password")
	}

	c := &company.Company{Name: req.CompanyName, Slug: req.Slug}
	u := &userrepo.User{
		Name:                 req.Name,
		Email:                req.Email,
		PasswordHash:         &passwordHash,
		Role:                 domain.RoleAdmin,
		Status:               domain.StatusActive,
		VerificationRequired: true,
	}

	var pair *token.Pair
	err = s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		if err := s.companies.CreateTx(ctx, tx, c); err != nil {
			return err
		}
		u.CompanyID = c.ID
		if err := s.users.CreateTx(ctx, tx, u); err != nil {
			return err
		}

		pair, err = s.issueSessionTx(ctx, tx, u, c.Slug, req.UserAgent, req.IPAddress)
		return err
	})
	if err != nil {
		return nil, err
	}

	if pubErr := s.publisher.Publish(ctx, messaging.EventCompanyRegistered, messaging.CompanyRegisteredEvent{
		CompanyID:  c.ID,
		Name:       c.Name,
		Slug:       c.Slug,
		OwnerID:    u.ID,
		OwnerEmail: u.Email,
	}); pubErr != nil {
		s.logger.Warn().Err(pubErr).Msg("failed to publish company registration event")
	}

	s.logger.Info().
		Str("company_id", c.ID).
		Str("slug", c.Slug).
		Msg("company registered")

	return &AuthResponse{
		User:    toUserView(u),
		Company: CompanyView{ID: c.ID, Name: c.Name, Slug: c.Slug},
		Tokens:  pair,
	}, nil
}

// LoginRequest authenticates by email and password
type LoginRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required"`
	UserAgent *string
	IPAddress *string
}

// Login verifies the password and issues a token pair with a fresh
// session. Email is unique per company, so the password decides
// between same-address accounts in different companies.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	candidates, err := s.users.ListByEmailGlobal(ctx, req.Email)
	if err != nil {
		return nil, err
	}

	var u *userrepo.User
	for _, candidate := range candidates {
		if candidate.PasswordHash == nil {
			continue
		}
		ok, verr := hash.Verify(req.Password, *candidate.PasswordHash)
		if verr == nil && ok {
			u = candidate
			break
		}
	}
	if u == nil {
		return nil, errors.InvalidCredentials()
	}
	if u.Status != domain.StatusActive {
		return nil, errors.Forbidden("account is inactive")
	}

	c, err := s.companies.GetByID(ctx, u.CompanyID)
	if err != nil {
		return nil, err
	}

	var pair *token.Pair
	err = s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		pair, err = s.issueSessionTx(ctx, tx, u, c.Slug, req.UserAgent, req.IPAddress)
		return err
	})
	if err != nil {
		return nil, err
	}

	if err := s.users.StampLastLogin(ctx, u.ID); err != nil {
		s.logger.Warn().Err(err).Msg("failed to stamp last login")
	}

	s.logger.Info().
		Str("user_id", u.ID).
		Str("company_id", u.CompanyID).
		Msg("user logged in")

	return &AuthResponse{
		User:    toUserView(u),
		Company: CompanyView{ID: c.ID, Name: c.Name, Slug: c.Slug},
		Tokens:  pair,
	}, nil
}

// Refresh rotates a refresh token. The presented token is matched
// against the argon2 hashes of the user's live sessions; a valid JWT
// that matches no live session means the token was already rotated
// and is treated as theft: every live session is revoked.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string, userAgent, ipAddress *string) (*AuthResponse, error) {
	claims, err := s.codec.Parse(refreshToken, token.TypeRefresh)
	if err != nil {
		return nil, err
	}
	userID := claims.Subject
	companyID := claims.CompanyID

	userCtx := tenant.WithCompany(ctx, companyID, claims.CompanySlug)
	u, err := s.users.GetByID(userCtx, userID)
	if err != nil {
		return nil, errors.TokenInvalid()
	}
	if u.Status != domain.StatusActive {
		return nil, errors.Forbidden("account is inactive")
	}
	c, err := s.companies.GetByID(ctx, companyID)
	if err != nil {
		return nil, errors.TokenInvalid()
	}

	var pair *token.Pair
	reused := false
	err = s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		live, err := s.sessions.ListLiveByUserTx(ctx, tx, userID, companyID)
		if err != nil {
			return err
		}

		var matched *authrepo.Session
		for _, sess := range live {
			ok, verr := hash.Verify(refreshToken, sess.RefreshTokenHash)
			if verr == nil && ok {
				matched = sess
				break
			}
		}

		// The revocation must survive the rejection, so the closure
		// returns nil here and the error is raised after commit.
		if matched == nil {
			reused = true
			if len(live) == 0 {
				return nil
			}
			revoked, rerr := s.sessions.RevokeAllForUserTx(ctx, tx, userID, companyID)
			if rerr != nil {
				return rerr
			}
			s.logger.Warn().
				Str("user_id", userID).
				Int64("sessions_revoked", revoked).
				Msg("refresh token reuse detected")
			return nil
		}

		if err := s.sessions.RevokeTx(ctx, tx, matched.ID); err != nil {
			return err
		}

		pair, err = s.issueSessionTx(ctx, tx, u, c.Slug, userAgent, ipAddress)
		return err
	})
	if err != nil {
		return nil, err
	}
	if reused {
		return nil, errors.Unauthorized("refresh token is no longer valid")
	}

	return &AuthResponse{
		User:    toUserView(u),
		Company: CompanyView{ID: c.ID, Name: c.Name, Slug: c.Slug},
		Tokens:  pair,
	}, nil
}

// Logout revokes the session matching the presented refresh token.
// Unknown or already-revoked tokens are not an error.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	claims, err := s.codec.Parse(refreshToken, token.TypeRefresh)
	if err != nil {
		return nil
	}

	live, err := s.sessions.ListLiveByUser(ctx, claims.Subject, claims.CompanyID)
	if err != nil {
		return err
	}
	for _, sess := range live {
		ok, verr := hash.Verify(refreshToken, sess.RefreshTokenHash)
		if verr == nil && ok {
			return s.sessions.Revoke(ctx, sess.ID)
		}
	}
	return nil
}

// SetupInfo describes the account behind a password-setup token
type SetupInfo struct {
	Email       string `json:"email"`
	Name        string `json:"name"`
	CompanyName string `json:"company_name"`
}

// SetPasswordInfo resolves an invitation token to the invitee's details
func (s *AuthService) SetPasswordInfo(ctx context.Context, setupToken string) (*SetupInfo, error) {
	claims, err := s.codec.Parse(setupToken, token.TypePasswordSetup)
	if err != nil {
		return nil, err
	}

	userCtx := tenant.WithCompany(ctx, claims.CompanyID, "")
	u, err := s.users.GetByID(userCtx, claims.Subject)
	if err != nil {
		return nil, errors.TokenInvalid()
	}
	c, err := s.companies.GetByID(ctx, claims.CompanyID)
	if err != nil {
		return nil, errors.TokenInvalid()
	}

	return &SetupInfo{Email: u.Email, Name: u.Name, CompanyName: c.Name}, nil
}

// SetPassword redeems an invitation token: sets the password, marks
// the address verified (the token arrived by email) and logs in.
func (s *AuthService) SetPassword(ctx context.Context, setupToken, password string, userAgent, ipAddress *string) (*AuthResponse, error) {
	claims, err := s.codec.Parse(setupToken, token.TypePasswordSetup)
	if err != nil {
		return nil, err
	}
	if err := domain.ValidatePasswordStrength(password); err != nil {
		return nil, err
	}

	userCtx := tenant.WithCompany(ctx, claims.CompanyID, "")
	u, err := s.users.GetByID(userCtx, claims.Subject)
	if err != nil {
		return nil, errors.TokenInvalid()
	}
	if u.Status != domain.StatusActive {
		return nil, errors.Forbidden("account is inactive")
	}

	passwordHash, err := hash.Hash(password)
	if err != nil {
		return nil, errors.Internal("failed to hash password")
	}

	c, err := s.companies.GetByID(ctx, claims.CompanyID)
	if err != nil {
		return nil, errors.TokenInvalid()
	}

	var pair *token.Pair
	err = s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		if err := s.users.CompletePasswordResetTx(ctx, tx, u.ID, passwordHash); err != nil {
			return err
		}
		if err := s.users.MarkVerifiedTx(ctx, tx, u.ID, s.clock.Now()); err != nil {
			return err
		}
		pair, err = s.issueSessionTx(ctx, tx, u, c.Slug, userAgent, ipAddress)
		return err
	})
	if err != nil {
		return nil, err
	}

	u.EmailVerified = true
	s.logger.Info().Str("user_id", u.ID).Msg("invitation redeemed")

	if pubErr := s.publisher.Publish(ctx, messaging.EventUserPasswordChanged, messaging.UserPasswordChangedEvent{
		UserID: u.ID,
		Via:    "invitation",
	}); pubErr != nil {
		s.logger.Warn().Err(pubErr).Msg("failed to publish password changed event")
	}

	return &AuthResponse{
		User:    toUserView(u),
		Company: CompanyView{ID: c.ID, Name: c.Name, Slug: c.Slug},
		Tokens:  pair,
	}, nil
}

// VerificationCurrent reports whether the user's verification window
// is still open. Middleware rejects core actions when it is not.
func (s *AuthService) VerificationCurrent(u *userrepo.User) bool {
	if u.VerificationRequired {
		return false
	}
	if !u.EmailVerified || u.LastVerifiedAt == nil {
		return false
	}
	return s.clock.Now().Before(u.LastVerifiedAt.Add(verificationWindow))
}

// issueSessionTx mints a token pair and inserts the matching session
// row with the refresh token's argon2 hash.
func (s *AuthService) issueSessionTx(ctx context.Context, tx *sqlx.Tx, u *userrepo.User, slug string, userAgent, ipAddress *string) (*token.Pair, error) {
	pair, refreshExpiry, err := s.codec.IssuePair(token.Identity{
		UserID:      u.ID,
		CompanyID:   u.CompanyID,
		CompanySlug: slug,
		Role:        domain.NormalizeRole(u.Role),
		Email:       u.Email,
	})
	if err != nil {
		return nil, errors.Internal("failed to issue tokens")
	}

	refreshHash, err := hash.Hash(pair.RefreshToken)
	if err != nil {
		return nil, errors.Internal("failed to hash refresh token")
	}

	sess := &authrepo.Session{
		UserID:           u.ID,
		CompanyID:        u.CompanyID,
		RefreshTokenHash: refreshHash,
		UserAgent:        userAgent,
		IPAddress:        ipAddress,
		ExpiresAt:        refreshExpiry,
	}
	if err := s.sessions.CreateTx(ctx, tx, sess); err != nil {
		return nil, err
	}
	return pair, nil
}
