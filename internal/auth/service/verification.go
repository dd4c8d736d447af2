package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shiftline/shiftline-backend/internal/auth/hash"
	"github.com/shiftline/shiftline-backend/internal/user/domain"
	userrepo "github.com/shiftline/shiftline-backend/internal/user/repository"
	"github.com/shiftline/shiftline-backend/pkg/errors"
	"github.com/shiftline/shiftline-backend/pkg/messaging"
	"github.com/shiftline/shiftline-backend/pkg/tenant"
)

// OTP policy constants
const (
	otpLifetime    = 15 * time.Minute
	otpCooldown    = 60 * time.Second
	otpMaxAttempts = 5

	// antiEnumerationDelay masks whether an email exists on the
	// forgot-password surface.
	antiEnumerationDelay = 300 * time.Millisecond
)

// generateOTP produces a cryptographically random six-digit code.
func generateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", fmt.Errorf("failed to generate code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// SendVerificationOTP issues a fresh verification code for the
// authenticated user. Inside the 60-second cooldown the call succeeds
// without sending so the surface cannot be used to spam the inbox.
func (s *AuthService) SendVerificationOTP(ctx context.Context, userID string) error {
	var code string
	var email, name string
	sent := true

	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		u, err := s.users.GetForUpdateTx(ctx, tx, userID)
		if err != nil {
			return err
		}
		email, name = u.Email, u.Name

		now := s.clock.Now()
		if u.LastVerificationSentAt != nil && now.Sub(*u.LastVerificationSentAt) < otpCooldown {
			sent = false
			return nil
		}

		code, err = generateOTP()
		if err != nil {
			return errors.Internal("failed to generate verification code")
		}
		codeHash, err := hash.Hash(code)
		if err != nil {
			return errors.Internal("failed to hash verification code")
		}

		return s.users.SetVerificationOTPTx(ctx, tx, userID, codeHash, now.Add(otpLifetime), now)
	})
	if err != nil {
		return err
	}
	if !sent {
		return nil
	}

	if err := s.mailer.SendVerificationCode(ctx, email, name, code); err != nil {
		// Clear the stored code so the next send attempt is not
		// blocked by a hash the user never received.
		s.logger.Error().Err(err).Str("user_id", userID).Msg("verification email failed")
		if clearErr := s.clearVerificationOTP(ctx, userID); clearErr != nil {
			s.logger.Error().Err(clearErr).Msg("failed to clear verification state")
		}
		return errors.Internal("failed to send verification email")
	}

	s.logger.Info().Str("user_id", userID).Msg("verification code sent")
	return nil
}

// VerifyEmailOTP checks a submitted verification code. Rejections are
// collected and raised after commit so the attempt counter and state
// clears they carry are not rolled back with them.
func (s *AuthService) VerifyEmailOTP(ctx context.Context, userID, code string) error {
	var rejection error
	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		u, err := s.users.GetForUpdateTx(ctx, tx, userID)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		switch {
		case u.VerificationPINHash == nil:
			rejection = errors.BadRequest("no verification code pending; request a new one")
			return nil
		case u.VerificationExpiresAt == nil || now.After(*u.VerificationExpiresAt):
			rejection = errors.BadRequest("verification code expired; request a new one")
			return s.users.ClearVerificationOTPTx(ctx, tx, userID)
		case u.VerificationAttempts >= otpMaxAttempts:
			rejection = errors.RateLimited("too many failed attempts; please request a new code")
			return s.users.ClearVerificationOTPTx(ctx, tx, userID)
		}

		ok, err := hash.Verify(code, *u.VerificationPINHash)
		if err != nil {
			return errors.Internal("failed to verify code")
		}
		if !ok {
			attempts, err := s.users.IncrementVerificationAttemptsTx(ctx, tx, userID)
			if err != nil {
				return err
			}
			if attempts >= otpMaxAttempts {
				rejection = errors.RateLimited("too many failed attempts; please request a new code")
				return s.users.ClearVerificationOTPTx(ctx, tx, userID)
			}
			rejection = errors.Unauthorized("invalid verification code").WithDetails(map[string]string{
				"remaining_attempts": fmt.Sprintf("%d", otpMaxAttempts-attempts),
			})
			return nil
		}

		if err := s.users.MarkVerifiedTx(ctx, tx, userID, now); err != nil {
			return err
		}
		s.logger.Info().Str("user_id", userID).Msg("email verified")
		return nil
	})
	if err != nil {
		return err
	}
	return rejection
}

// ForgotPassword issues a password-reset code. The response is always
// a generic success; unknown addresses only cost a constant delay.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	candidates, err := s.users.ListByEmailGlobal(ctx, email)
	if err != nil {
		return err
	}

	var target *userrepo.User
	for _, c := range candidates {
		if c.Status == domain.StatusActive {
			target = c
			break
		}
	}
	if target == nil {
		time.Sleep(antiEnumerationDelay)
		return nil
	}

	var code string
	sent := true
	err = s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		u, err := s.users.GetForUpdateTx(ctx, tx, target.ID)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		if u.LastPasswordResetSentAt != nil && now.Sub(*u.LastPasswordResetSentAt) < otpCooldown {
			sent = false
			return nil
		}

		code, err = generateOTP()
		if err != nil {
			return errors.Internal("failed to generate reset code")
		}
		codeHash, err := hash.Hash(code)
		if err != nil {
			return errors.Internal("failed to hash reset code")
		}

		return s.users.SetPasswordResetOTPTx(ctx, tx, u.ID, codeHash, now.Add(otpLifetime), now)
	})
	if err != nil {
		return err
	}
	if !sent {
		return nil
	}

	if err := s.mailer.SendPasswordResetCode(ctx, target.Email, target.Name, code); err != nil {
		s.logger.Error().Err(err).Str("user_id", target.ID).Msg("reset email failed")
		if clearErr := s.clearPasswordResetOTP(ctx, target.ID); clearErr != nil {
			s.logger.Error().Err(clearErr).Msg("failed to clear reset state")
		}
		// Still generic: the caller learns nothing about the account.
		return nil
	}

	s.logger.Info().Str("user_id", target.ID).Msg("password reset code sent")
	return nil
}

// ResetPassword redeems a reset code and overwrites the password. All
// of the user's sessions are revoked so a stolen refresh token does
// not survive the reset.
func (s *AuthService) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	if err := domain.ValidatePasswordStrength(newPassword); err != nil {
		return err
	}

	candidates, err := s.users.ListByEmailGlobal(ctx, email)
	if err != nil {
		return err
	}
	var target *userrepo.User
	for _, c := range candidates {
		if c.PasswordResetOTPHash != nil {
			target = c
			break
		}
	}
	if target == nil {
		return errors.BadRequest("invalid or expired reset code")
	}

	passwordHash, err := hash.Hash(newPassword)
	if err != nil {
		return errors.Internal("failed to hash password")
	}

	// Same post-commit shape as VerifyEmailOTP: rejections ride out of
	// the transaction so the state changes behind them stick.
	var rejection error
	err = s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		u, err := s.users.GetForUpdateTx(ctx, tx, target.ID)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		switch {
		case u.PasswordResetOTPHash == nil:
			rejection = errors.BadRequest("invalid or expired reset code")
			return nil
		case u.PasswordResetOTPExpiresAt == nil || now.After(*u.PasswordResetOTPExpiresAt):
			rejection = errors.BadRequest("invalid or expired reset code")
			return s.users.ClearPasswordResetOTPTx(ctx, tx, u.ID)
		case u.PasswordResetAttempts >= otpMaxAttempts:
			rejection = errors.RateLimited("too many failed attempts; please request a new code")
			return s.users.ClearPasswordResetOTPTx(ctx, tx, u.ID)
		}

		ok, err := hash.Verify(code, *u.PasswordResetOTPHash)
		if err != nil {
			return errors.Internal("failed to verify code")
		}
		if !ok {
			attempts, err := s.users.IncrementPasswordResetAttemptsTx(ctx, tx, u.ID)
			if err != nil {
				return err
			}
			if attempts >= otpMaxAttempts {
				rejection = errors.RateLimited("too many failed attempts; please request a new code")
				return s.users.ClearPasswordResetOTPTx(ctx, tx, u.ID)
			}
			rejection = errors.Unauthorized("invalid reset code").WithDetails(map[string]string{
				"remaining_attempts": fmt.Sprintf("%d", otpMaxAttempts-attempts),
			})
			return nil
		}

		if err := s.users.CompletePasswordResetTx(ctx, tx, u.ID, passwordHash); err != nil {
			return err
		}
		if _, err := s.sessions.RevokeAllForUserTx(ctx, tx, u.ID, u.CompanyID); err != nil {
			return err
		}
		s.logger.Info().Str("user_id", u.ID).Msg("password reset completed")
		return nil
	})
	if err != nil {
		return err
	}
	if rejection != nil {
		return rejection
	}

	if pubErr := s.publisher.Publish(ctx, messaging.EventUserPasswordChanged, messaging.UserPasswordChangedEvent{
		UserID: target.ID,
		Via:    "reset",
	}); pubErr != nil {
		s.logger.Warn().Err(pubErr).Msg("failed to publish password changed event")
	}
	return nil
}

// RequireVerified loads the user behind the context and enforces the
// verification gate. Used by the verified-email middleware.
func (s *AuthService) RequireVerified(ctx context.Context, userID string) error {
	if _, err := tenant.CompanyID(ctx); err != nil {
		return err
	}
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if !s.VerificationCurrent(u) {
		return errors.VerificationRequired(u.Email)
	}
	return nil
}

func (s *AuthService) clearVerificationOTP(ctx context.Context, userID string) error {
	return s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		return s.users.ClearVerificationOTPTx(ctx, tx, userID)
	})
}

func (s *AuthService) clearPasswordResetOTP(ctx context.Context, userID string) error {
	return s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		return s.users.ClearPasswordResetOTPTx(ctx, tx, userID)
	})
}
