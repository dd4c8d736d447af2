package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shiftline/shiftline-backend/pkg/database"
)

// Session is a refresh-token session row. The refresh token itself is
// never stored; only its argon2 hash is.
type Session struct {
	ID               string     `db:"id" json:"id"`
	UserID           string     `db:"user_id" json:"user_id"`
	CompanyID        string     `db:"company_id" json:"company_id"`
	RefreshTokenHash string     `db:"refresh_token_hash" json:"-"`
	UserAgent        *string    `db:"user_agent" json:"user_agent,omitempty"`
	IPAddress        *string    `db:"ip_address" json:"ip_address,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	ExpiresAt        time.Time  `db:"expires_at" json:"expires_at"`
	RevokedAt        *time.Time `db:"revoked_at" json:"revoked_at,omitempty"`
}

// SessionRepository handles session persistence
type SessionRepository struct {
	db *database.DB
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(db *database.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

const sessionColumns = `id, user_id, company_id, refresh_token_hash, user_agent, ip_address, created_at, expires_at, revoked_at`

// CreateTx inserts a session inside the caller's transaction
func (r *SessionRepository) CreateTx(ctx context.Context, tx sqlx.ExtContext, s *Session) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}

	query := `
		INSERT INTO sessions (id, user_id, company_id, refresh_token_hash, user_agent, ip_address, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`
	return tx.QueryRowxContext(ctx, query,
		s.ID, s.UserID, s.CompanyID, s.RefreshTokenHash, s.UserAgent, s.IPAddress, s.ExpiresAt,
	).Scan(&s.CreatedAt)
}

// Create inserts a session outside a transaction
func (r *SessionRepository) Create(ctx context.Context, s *Session) error {
	return r.CreateTx(ctx, r.db.DB, s)
}

// ListLiveByUserTx locks and returns all live sessions of a user.
// Rotation verifies the presented token against each hash while the
// rows are locked, so two concurrent refreshes of the same token
// serialize and the loser sees the revocation.
func (r *SessionRepository) ListLiveByUserTx(ctx context.Context, tx *sqlx.Tx, userID, companyID string) ([]*Session, error) {
	var sessions []*Session
	query := `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE user_id = $1 AND company_id = $2 AND revoked_at IS NULL AND expires_at > NOW()
		ORDER BY created_at
		FOR UPDATE
	`
	if err := tx.SelectContext(ctx, &sessions, query, userID, companyID); err != nil {
		return nil, err
	}
	return sessions, nil
}

// ListLiveByUser returns live sessions without locking. Used by logout.
func (r *SessionRepository) ListLiveByUser(ctx context.Context, userID, companyID string) ([]*Session, error) {
	var sessions []*Session
	query := `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE user_id = $1 AND company_id = $2 AND revoked_at IS NULL AND expires_at > NOW()
		ORDER BY created_at
	`
	if err := r.db.SelectContext(ctx, &sessions, query, userID, companyID); err != nil {
		return nil, err
	}
	return sessions, nil
}

// RevokeTx marks one session revoked inside the caller's transaction
func (r *SessionRepository) RevokeTx(ctx context.Context, tx sqlx.ExtContext, sessionID string) error {
	query := `UPDATE sessions SET revoked_at = NOW() WHERE id = $1 AND revoked_at IS NULL`
	_, err := tx.ExecContext(ctx, query, sessionID)
	return err
}

// Revoke marks one session revoked
func (r *SessionRepository) Revoke(ctx context.Context, sessionID string) error {
	return r.RevokeTx(ctx, r.db.DB, sessionID)
}

// RevokeAllForUserTx revokes every live session of a user. Invoked on
// refresh-token reuse detection and on deactivation.
func (r *SessionRepository) RevokeAllForUserTx(ctx context.Context, tx sqlx.ExtContext, userID, companyID string) (int64, error) {
	query := `
		UPDATE sessions SET revoked_at = NOW()
		WHERE user_id = $1 AND company_id = $2 AND revoked_at IS NULL
	`
	result, err := tx.ExecContext(ctx, query, userID, companyID)
	if err != nil {
		return 0, err
	}
	affected, _ := result.RowsAffected()
	return affected, nil
}

// PurgeExpired deletes sessions that expired or were revoked more
// than 30 days ago. Called from the maintenance ticker.
func (r *SessionRepository) PurgeExpired(ctx context.Context) (int64, error) {
	query := `
		DELETE FROM sessions
		WHERE expires_at < NOW() - INTERVAL '30 days'
		   OR revoked_at < NOW() - INTERVAL '30 days'
	`
	result, err := r.db.ExecContext(ctx, query)
	if err != nil {
		return 0, err
	}
	affected, _ := result.RowsAffected()
	return affected, nil
}
