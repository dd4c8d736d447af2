package company

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shiftline/shiftline-backend/pkg/database"
	"github.com/shiftline/shiftline-backend/pkg/errors"
)

// Company is a tenant row
type Company struct {
	ID           string          `db:"id" json:"id"`
	Name         string          `db:"name" json:"name"`
	Slug         string          `db:"slug" json:"slug"`
	KioskEnabled bool            `db:"kiosk_enabled" json:"kiosk_enabled"`
	Settings     json.RawMessage `db:"settings" json:"-"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
}

// Repository handles company persistence
type Repository struct {
	db *database.DB
}

// NewRepository creates a new company repository
func NewRepository(db *database.DB) *Repository {
	return &Repository{db: db}
}

const companyColumns = `id, name, slug, kiosk_enabled, settings, created_at, updated_at`

// CreateTx inserts a company inside the caller's transaction.
// Registration creates the company and its first admin atomically.
func (r *Repository) CreateTx(ctx context.Context, tx *sqlx.Tx, c *Company) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if len(c.Settings) == 0 {
		settings, err := DefaultSettings().Marshal()
		if err != nil {
			return err
		}
		c.Settings = settings
	}

	query := `
		INSERT INTO companies (id, name, slug, kiosk_enabled, settings)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`
	err := tx.QueryRowxContext(ctx, query,
		c.ID, c.Name, c.Slug, c.KioskEnabled, c.Settings,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}

// GetByID gets a company by ID
func (r *Repository) GetByID(ctx context.Context, id string) (*Company, error) {
	var c Company
	query := `SELECT ` + companyColumns + ` FROM companies WHERE id = $1`
	err := r.db.GetContext(ctx, &c, query, id)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("company")
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetBySlug gets a company by slug. Used by the public kiosk surface.
func (r *Repository) GetBySlug(ctx context.Context, slug string) (*Company, error) {
	var c Company
	query := `SELECT ` + companyColumns + ` FROM companies WHERE slug = $1`
	err := r.db.GetContext(ctx, &c, query, slug)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("company")
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// UpdateName renames a company
func (r *Repository) UpdateName(ctx context.Context, id, name string) error {
	query := `UPDATE companies SET name = $2, updated_at = NOW() WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, name)
	if err != nil {
		return err
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("company")
	}
	return nil
}

// UpdateSettings replaces the settings document
func (r *Repository) UpdateSettings(ctx context.Context, id string, settings json.RawMessage) error {
	query := `UPDATE companies SET settings = $2, updated_at = NOW() WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, settings)
	if err != nil {
		return err
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("company")
	}
	return nil
}

// SetKioskEnabled toggles the kiosk flag
func (r *Repository) SetKioskEnabled(ctx context.Context, id string, enabled bool) error {
	query := `UPDATE companies SET kiosk_enabled = $2, updated_at = NOW() WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, enabled)
	if err != nil {
		return err
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("company")
	}
	return nil
}
